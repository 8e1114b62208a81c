package api

import (
	"net/http"
	"strings"

	"promotion/internal/economy"
	"promotion/internal/social"

	"github.com/go-chi/chi/v5"
)

type marketView struct {
	Market    economy.UserMarketData `json:"market"`
	Rank      economy.Rank           `json:"rank"`
	RankName  string                 `json:"rank_name"`
	Quota     economy.QuotaProgress  `json:"quota"`
	Warning   bool                   `json:"warning"`
	Crash     economy.MarketCrash    `json:"crash"`
	Unread    int                    `json:"unread_notifications"`
	CompanyID string                 `json:"company_id,omitempty"`
}

func (s *Server) marketView(r *http.Request, userID string) marketView {
	ctx := r.Context()
	data := s.ledger.LoadMarketData(ctx, userID)
	quota := data.QuotaProgress()
	rank := data.Rank()
	companyID, _ := s.ledger.UserCompanyID(ctx, userID)
	return marketView{
		Market:    data,
		Rank:      rank,
		RankName:  rank.Name(),
		Quota:     quota,
		Warning:   s.ledger.ShouldShowWarning(ctx, userID),
		Crash:     s.ledger.MarketCrash(ctx),
		Unread:    s.ledger.UnreadCount(ctx, userID),
		CompanyID: companyID,
	}
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.marketView(r, user.UserID))
}

// handleMarketSync overwrites the local market cap, either with the value in
// the body or with the social store's copy.
func (s *Server) handleMarketSync(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		MarketCap *int64 `json:"market_cap"`
	}
	if err := decodeOptionalJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	marketCap := int64(0)
	if in.MarketCap != nil {
		marketCap = *in.MarketCap
	} else {
		remote, err := s.social.GetOrCreateUser(r.Context(), user.UserID, user.UserName)
		if err != nil {
			s.writeRemoteError(w, "get_user", err)
			return
		}
		marketCap = remote.MarketCap
	}
	if marketCap < 0 {
		writeError(w, http.StatusBadRequest, economy.ErrInvalidAmount.Error())
		return
	}
	s.ledger.SyncMarketCap(r.Context(), user.UserID, marketCap)
	s.ledger.SyncMembership(r.Context(), user.UserID)
	writeJSON(w, http.StatusOK, s.marketView(r, user.UserID))
}

type respectResult struct {
	Respect  social.Respect         `json:"respect"`
	Receipt  economy.RespectReceipt `json:"receipt"`
	Sender   economy.UserMarketData `json:"sender"`
	Quota    economy.QuotaProgress  `json:"quota"`
	Dividend *economy.Dividend      `json:"dividend,omitempty"`
}

// handleRespect sends one investment. Growth is decided once, written to the
// social store and only then applied to the ledger, so a remote failure leaves
// local state untouched.
func (s *Server) handleRespect(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		ToUserID   string `json:"to_user_id"`
		ToUserName string `json:"to_user_name"`
		PostID     string `json:"post_id"`
		Amount     int64  `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	in.ToUserID = strings.TrimSpace(in.ToUserID)
	in.PostID = strings.TrimSpace(in.PostID)
	if in.ToUserID == "" {
		writeError(w, http.StatusBadRequest, "to_user_id is required")
		return
	}
	if in.ToUserID == user.UserID {
		writeDomainError(w, social.ErrSelfRespect)
		return
	}
	if in.Amount < 1 {
		in.Amount = 1
	}
	if in.ToUserName == "" {
		in.ToUserName = in.ToUserID
	}

	ctx := r.Context()
	if in.PostID != "" {
		done, err := s.social.HasRespectedPost(ctx, user.UserID, in.PostID)
		if err != nil {
			s.writeRemoteError(w, "has_respected", err)
			return
		}
		if done {
			writeError(w, http.StatusConflict, "already invested in this post")
			return
		}
	}

	growth := economy.RespectGrowth(in.Amount, s.ledger.MarketCrash(ctx))
	if _, err := s.social.GetOrCreateUser(ctx, in.ToUserID, in.ToUserName); err != nil {
		s.writeRemoteError(w, "get_user", err)
		return
	}
	respect, err := s.social.RecordRespect(ctx, social.NewRespect{
		FromUserID: user.UserID,
		ToUserID:   in.ToUserID,
		PostID:     in.PostID,
		Amount:     in.Amount,
	}, growth)
	if err != nil {
		s.writeRemoteError(w, "record_respect", err)
		return
	}

	receipt := s.ledger.CreditRespect(ctx, in.ToUserID, in.Amount, growth, user.UserName)
	sender := s.ledger.SendRespect(ctx, user.UserID)
	s.ledger.RecordInvestment(ctx, user.UserID, in.ToUserID)
	s.ledger.SyncMembership(ctx, user.UserID)
	s.ledger.SyncMembership(ctx, in.ToUserID)
	if receipt.Dividend != nil {
		s.ledger.CreditDividend(ctx, *receipt.Dividend)
		s.ledger.SyncMembership(ctx, receipt.Dividend.ShareholderID)
	}

	writeJSON(w, http.StatusCreated, respectResult{
		Respect:  respect,
		Receipt:  receipt,
		Sender:   sender,
		Quota:    sender.QuotaProgress(),
		Dividend: receipt.Dividend,
	})
}

func (s *Server) handleShareholders(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":      userID,
		"shareholders": s.ledger.Shareholders(r.Context(), userID),
	})
}

type playerView struct {
	social.User
	Position int          `json:"position"`
	Rank     economy.Rank `json:"rank"`
}

// handlePlayers ranks users by their remote market cap.
func (s *Server) handlePlayers(w http.ResponseWriter, r *http.Request) {
	users, err := s.social.TopUsers(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		s.writeRemoteError(w, "top_users", err)
		return
	}
	out := make([]playerView, 0, len(users))
	for i, u := range users {
		out = append(out, playerView{
			User:     u,
			Position: i + 1,
			Rank:     economy.RankFromMarketCap(u.MarketCap, u.ReceivedRespects, 0),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"players": out})
}

func (s *Server) handleCrashStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.MarketCrash(r.Context()))
}

func (s *Server) handleCrashSet(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Active     *bool    `json:"active"`
		Multiplier *float64 `json:"multiplier"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.Active == nil {
		writeError(w, http.StatusBadRequest, "active is required")
		return
	}
	multiplier := s.cfg.CrashMultiplier
	if in.Multiplier != nil {
		multiplier = *in.Multiplier
	}
	if multiplier < 0 {
		writeError(w, http.StatusBadRequest, "multiplier must be >= 0")
		return
	}
	crash := s.ledger.SetMarketCrashMode(r.Context(), *in.Active, multiplier)
	if err := s.announce.MarketCrash(r.Context(), crash); err != nil {
		s.log.Warn("crash announcement failed", "err", err)
	}
	writeJSON(w, http.StatusOK, crash)
}
