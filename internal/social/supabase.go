package social

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Supabase talks to the PostgREST endpoint of a Supabase project. Respects go
// through the record_respect RPC from schema.sql so the insert and the
// counter update share one transaction.
type Supabase struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	log        *slog.Logger
}

func NewSupabase(baseURL, anonKey string, logger *slog.Logger) *Supabase {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supabase{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		log: logger.With("component", "social.supabase"),
	}
}

type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("supabase status %d: %s", e.Status, e.Body)
}

func (s *Supabase) do(ctx context.Context, method, path string, query url.Values, in any, prefer string) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}
	target := s.baseURL + "/rest/v1" + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("apikey", s.anonKey)
	req.Header.Set("Authorization", "Bearer "+s.anonKey)
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("supabase request: %w", err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &statusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}

func (s *Supabase) requestJSON(ctx context.Context, method, path string, query url.Values, in, out any, prefer string) error {
	resp, err := s.do(ctx, method, path, query, in, prefer)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func eq(v string) string { return "eq." + v }

func (s *Supabase) CreatePost(ctx context.Context, in NewPost) (Post, error) {
	if err := in.validate(); err != nil {
		return Post{}, err
	}
	row := map[string]any{
		"id":            uuid.NewString(),
		"user_id":       in.UserID,
		"content":       strings.TrimSpace(in.Content),
		"image_url":     in.ImageURL,
		"impact_amount": in.ImpactAmount,
	}
	var out []Post
	if err := s.requestJSON(ctx, http.MethodPost, "/posts", nil, []any{row}, &out, "return=representation"); err != nil {
		s.log.Error("create post failed", "user_id", in.UserID, "err", err)
		return Post{}, fmt.Errorf("create post: %w", err)
	}
	if len(out) == 0 {
		return Post{}, fmt.Errorf("create post: empty response")
	}
	return out[0], nil
}

func (s *Supabase) ListPosts(ctx context.Context, limit int) ([]Post, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "created_at.desc")
	q.Set("limit", strconv.Itoa(clampLimit(limit)))
	out := []Post{}
	if err := s.requestJSON(ctx, http.MethodGet, "/posts", q, nil, &out, ""); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return out, nil
}

func (s *Supabase) GetPost(ctx context.Context, id string) (Post, error) {
	if uuid.Validate(id) != nil {
		return Post{}, ErrNotFound
	}
	q := url.Values{}
	q.Set("select", "*")
	q.Set("id", eq(id))
	var out []Post
	if err := s.requestJSON(ctx, http.MethodGet, "/posts", q, nil, &out, ""); err != nil {
		return Post{}, fmt.Errorf("get post: %w", err)
	}
	if len(out) == 0 {
		return Post{}, ErrNotFound
	}
	return out[0], nil
}

func (s *Supabase) RecordRespect(ctx context.Context, in NewRespect, growth int64) (Respect, error) {
	in, err := in.normalize()
	if err != nil {
		return Respect{}, err
	}
	args := map[string]any{
		"p_id":     uuid.NewString(),
		"p_from":   in.FromUserID,
		"p_to":     in.ToUserID,
		"p_post":   nullableUUID(in.PostID),
		"p_amount": in.Amount,
		"p_growth": growth,
	}
	var out []Respect
	if err := s.requestJSON(ctx, http.MethodPost, "/rpc/record_respect", nil, args, &out, ""); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.Status == http.StatusNotFound {
			return Respect{}, fmt.Errorf("recipient %s: %w", in.ToUserID, ErrNotFound)
		}
		return Respect{}, fmt.Errorf("record respect: %w", err)
	}
	if len(out) == 0 {
		return Respect{}, fmt.Errorf("record respect: empty response")
	}
	return out[0], nil
}

func (s *Supabase) HasRespectedPost(ctx context.Context, fromUserID, postID string) (bool, error) {
	q := url.Values{}
	q.Set("select", "id")
	q.Set("from_user_id", eq(fromUserID))
	q.Set("post_id", eq(postID))
	q.Set("limit", "1")
	var out []struct {
		ID string `json:"id"`
	}
	if err := s.requestJSON(ctx, http.MethodGet, "/respects", q, nil, &out, ""); err != nil {
		return false, fmt.Errorf("check respect: %w", err)
	}
	return len(out) > 0, nil
}

// RespectCount asks PostgREST for an exact count and reads it back from the
// Content-Range header ("*/42").
func (s *Supabase) RespectCount(ctx context.Context, postID string) (int64, error) {
	q := url.Values{}
	q.Set("select", "id")
	q.Set("post_id", eq(postID))
	resp, err := s.do(ctx, http.MethodHead, "/respects", q, nil, "count=exact")
	if err != nil {
		return 0, fmt.Errorf("count respects: %w", err)
	}
	resp.Body.Close()
	return parseContentRangeTotal(resp.Header.Get("Content-Range"))
}

func parseContentRangeTotal(v string) (int64, error) {
	_, total, ok := strings.Cut(v, "/")
	if !ok || total == "*" {
		return 0, fmt.Errorf("count respects: unexpected content-range %q", v)
	}
	n, err := strconv.ParseInt(total, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("count respects: %w", err)
	}
	return n, nil
}

func (s *Supabase) GetUser(ctx context.Context, id string) (User, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("id", eq(id))
	var out []User
	if err := s.requestJSON(ctx, http.MethodGet, "/users", q, nil, &out, ""); err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	if len(out) == 0 {
		return User{}, ErrNotFound
	}
	return out[0], nil
}

func (s *Supabase) GetOrCreateUser(ctx context.Context, id, name string) (User, error) {
	u, err := s.GetUser(ctx, id)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}
	row := map[string]any{"id": id, "user_name": name, "market_cap": 0, "received_respects": 0}
	if err := s.requestJSON(ctx, http.MethodPost, "/users", nil, []any{row}, nil, "resolution=ignore-duplicates"); err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return s.GetUser(ctx, id)
}

func (s *Supabase) TopUsers(ctx context.Context, limit int) ([]User, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "market_cap.desc,received_respects.desc,id.asc")
	q.Set("limit", strconv.Itoa(clampLimit(limit)))
	out := []User{}
	if err := s.requestJSON(ctx, http.MethodGet, "/users", q, nil, &out, ""); err != nil {
		return nil, fmt.Errorf("top users: %w", err)
	}
	return out, nil
}
