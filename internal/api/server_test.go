package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"promotion/internal/config"
	"promotion/internal/economy"
	"promotion/internal/kv"
	"promotion/internal/profile"
	"promotion/internal/social"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	srv    *httptest.Server
	ledger *economy.Ledger
	repo   *social.Memory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	store := kv.NewMemory()
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	ledger := economy.NewLedger(store, logger, economy.WithClock(func() time.Time { return now }))
	repo := social.NewMemory()
	s := New(config.APIConfig{CrashMultiplier: 0.5}, logger, ledger, repo, profile.NewBook(store, logger), nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, ledger: ledger, repo: repo}
}

func (e *testEnv) do(t *testing.T, method, path, userID string, body any, out any) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
		req.Header.Set("X-User-Name", "name-"+userID)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthAndIdentity(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", "", nil, nil))

	var errBody map[string]string
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/v1/market", "", nil, &errBody))
	assert.Contains(t, errBody["error"], "X-User-ID")
}

func TestMarketStartsAtInitialCap(t *testing.T) {
	env := newTestEnv(t)
	var view marketView
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/market", "amy", nil, &view))
	assert.EqualValues(t, economy.InitialMarketCap, view.Market.MarketCap)
	assert.EqualValues(t, economy.DailyQuota, view.Quota.Quota)
	assert.False(t, view.Crash.IsActive)
}

func TestRespectFlowUpdatesBothStores(t *testing.T) {
	env := newTestEnv(t)
	var res respectResult
	status := env.do(t, http.MethodPost, "/v1/respects", "amy", map[string]any{"to_user_id": "bob"}, &res)
	require.Equal(t, http.StatusCreated, status)
	assert.EqualValues(t, 10, res.Receipt.Growth)
	assert.EqualValues(t, 1010, res.Receipt.Data.MarketCap)
	assert.EqualValues(t, 1, res.Sender.GivenRespectsToday)

	remote, err := env.repo.GetUser(t.Context(), "bob")
	require.NoError(t, err)
	assert.EqualValues(t, 10, remote.MarketCap, "remote and local apply the same delta")

	var holders struct {
		Shareholders []economy.Shareholder `json:"shareholders"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/shareholders/bob", "amy", nil, &holders))
	require.Len(t, holders.Shareholders, 1)
	assert.Equal(t, "amy", holders.Shareholders[0].UserID)
}

func TestRespectRules(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/v1/respects", "amy", map[string]any{"to_user_id": "amy"}, nil))
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/v1/respects", "amy", map[string]any{"to": "bob"}, nil))

	var post postView
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/v1/posts", "bob", map[string]any{"content": "passed the exam", "sector": "その他"}, &post))

	body := map[string]any{"to_user_id": "bob", "post_id": post.ID}
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/v1/respects", "amy", body, nil))
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/v1/respects", "amy", body, nil))
}

func TestCrashModeHalvesGrowth(t *testing.T) {
	env := newTestEnv(t)
	var crash economy.MarketCrash
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/crash", "admin", map[string]any{"active": true}, &crash))
	assert.True(t, crash.IsActive)
	assert.InDelta(t, 0.5, crash.GrowthRateMultiplier, 1e-9)

	var res respectResult
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/v1/respects", "amy", map[string]any{"to_user_id": "bob"}, &res))
	assert.EqualValues(t, 5, res.Receipt.Growth)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/crash", "", nil, &crash))
	assert.True(t, crash.IsActive)
}

func TestCompanyLifecycle(t *testing.T) {
	env := newTestEnv(t)

	var reqErr struct {
		Error   string   `json:"error"`
		Reasons []string `json:"reasons"`
	}
	status := env.do(t, http.MethodPost, "/v1/companies", "owner", map[string]any{"name": "Acme"}, &reqErr)
	require.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Len(t, reqErr.Reasons, 1)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/market/sync", "owner", map[string]any{"market_cap": 12_000_000}, nil))

	var created companyView
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/v1/companies", "owner", map[string]any{"name": "Acme"}, &created))
	assert.Equal(t, economy.StageStartup, created.Stage)
	assert.EqualValues(t, 10_000_000, created.Members[0].MarketCap)

	var joined companyView
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/companies/"+created.ID+"/join", "m1", nil, &joined))
	assert.Len(t, joined.Members, 2)
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/v1/companies/"+created.ID+"/join", "m1", nil, nil))

	var ranking struct {
		Companies []economy.RankedCompany `json:"companies"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/companies", "m1", nil, &ranking))
	require.Len(t, ranking.Companies, 1)
	assert.Equal(t, 1, ranking.Companies[0].Rank)

	var contribution economy.Contribution
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/companies/"+created.ID+"/contribution", "owner", nil, &contribution))
	assert.Equal(t, 1, contribution.Rank)

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPost, "/v1/companies/leave", "owner", nil, nil))
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/companies/leave", "m1", nil, nil))
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/v1/companies/leave", "m1", nil, nil))
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/v1/companies/nope", "m1", nil, nil))
}

func TestPostsAndComments(t *testing.T) {
	env := newTestEnv(t)

	var impact struct {
		Amount int64              `json:"amount"`
		Rank   economy.ImpactRank `json:"rank"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/posts/impact", "", map[string]any{"content": "hello", "sector": "その他"}, &impact))
	assert.EqualValues(t, 500, impact.Amount)
	assert.Equal(t, "B", impact.Rank.Rank)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/v1/posts", "bob", map[string]any{"content": " "}, nil))

	var post postView
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/v1/posts", "bob", map[string]any{"content": "hello"}, &post))

	var c profile.Comment
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/v1/posts/"+post.ID+"/comments", "amy", map[string]any{"content": "nice"}, &c))
	assert.Equal(t, "name-amy", c.UserName)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/v1/posts/missing/comments", "amy", map[string]any{"content": "x"}, nil))

	var list struct {
		Posts []postView `json:"posts"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/posts", "amy", nil, &list))
	require.Len(t, list.Posts, 1)
	assert.Equal(t, 1, list.Posts[0].CommentCount)
}

func TestNotificationsWatchAndProfile(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/v1/respects", "amy", map[string]any{"to_user_id": "bob"}, nil))

	var inbox struct {
		Notifications []economy.Notification `json:"notifications"`
		Unread        int                    `json:"unread"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/notifications", "bob", nil, &inbox))
	require.Len(t, inbox.Notifications, 1)
	assert.Equal(t, 1, inbox.Unread)

	id := inbox.Notifications[0].ID
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/notifications/"+id+"/read", "bob", nil, nil))
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/v1/notifications/missing/read", "bob", nil, nil))
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/notifications/read-all", "bob", nil, nil))

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/watch", "amy", map[string]any{"user_id": "bob", "user_name": "Bob"}, nil))
	var watching struct {
		Watching []profile.WatchItem `json:"watching"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/watch", "amy", nil, &watching))
	assert.Len(t, watching.Watching, 1)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/v1/watch/bob", "amy", nil, nil))

	var p profile.UserProfile
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, "/v1/profile", "amy", map[string]any{"vision": "found a company"}, &p))
	assert.Equal(t, "found a company", p.Vision)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/profile", "amy", nil, &p))
	assert.Equal(t, "ビジネス", p.Sector)
	assert.Equal(t, economy.RankManager.String(), p.Rank)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/healthz", "", nil, nil)
	resp, err := http.Get(env.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "promotion_http_requests_total")
}

func TestJoinRejectedWhileInAnotherCompany(t *testing.T) {
	env := newTestEnv(t)
	for _, owner := range []string{"ownerA", "ownerB"} {
		require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/market/sync", owner, map[string]any{"market_cap": 12_000_000}, nil))
	}
	var a, b companyView
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/v1/companies", "ownerA", map[string]any{"name": "A"}, &a))
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/v1/companies", "ownerB", map[string]any{"name": "B"}, &b))

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/companies/"+a.ID+"/join", "m1", nil, nil))

	var errBody map[string]string
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/v1/companies/"+b.ID+"/join", "m1", nil, &errBody))
	assert.Equal(t, economy.ErrAlreadyAffiliated.Error(), errBody["error"])
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/v1/companies/"+b.ID+"/join", "ownerA", nil, nil))

	var got companyView
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/companies/"+b.ID, "m1", nil, &got))
	assert.Len(t, got.Members, 1)
}

func TestPlayersRankedByMarketCap(t *testing.T) {
	env := newTestEnv(t)
	for _, to := range []string{"bob", "bob", "carol"} {
		require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/v1/respects", "amy", map[string]any{"to_user_id": to}, nil))
	}

	var out struct {
		Players []playerView `json:"players"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/players?limit=10", "amy", nil, &out))
	require.Len(t, out.Players, 2)
	assert.Equal(t, "bob", out.Players[0].ID)
	assert.Equal(t, 1, out.Players[0].Position)
	assert.EqualValues(t, 20, out.Players[0].MarketCap)
	assert.Equal(t, "carol", out.Players[1].ID)
	assert.Equal(t, 2, out.Players[1].Position)
	assert.Equal(t, economy.RankNewcomer, out.Players[1].Rank)
}

func TestCommentNotifiesPostAuthor(t *testing.T) {
	env := newTestEnv(t)
	var post postView
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/v1/posts", "bob", map[string]any{"content": "hello"}, &post))
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/v1/posts/"+post.ID+"/comments", "amy", map[string]any{"content": "nice"}, nil))
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/v1/posts/"+post.ID+"/comments", "bob", map[string]any{"content": "thanks"}, nil))

	var inbox struct {
		Notifications []economy.Notification `json:"notifications"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/notifications", "bob", nil, &inbox))
	require.Len(t, inbox.Notifications, 1, "own comments are not notified")
	assert.Equal(t, economy.NotifyHuman, inbox.Notifications[0].Type)
	assert.Equal(t, "name-amy", inbox.Notifications[0].FromUser)
	assert.Contains(t, inbox.Notifications[0].Message, "nice")
}
