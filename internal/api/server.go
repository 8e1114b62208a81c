package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"promotion/internal/announce"
	"promotion/internal/config"
	"promotion/internal/economy"
	"promotion/internal/metrics"
	"promotion/internal/profile"
	"promotion/internal/social"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type contextKey string

const userContextKey contextKey = "user"

// UserContext is the caller identity. Authentication happens upstream; the
// API trusts the X-User-ID and X-User-Name headers.
type UserContext struct {
	UserID   string
	UserName string
}

type Server struct {
	cfg      config.APIConfig
	log      *slog.Logger
	ledger   *economy.Ledger
	social   social.Repository
	book     *profile.Book
	announce *announce.Notifier
	mux      *chi.Mux
}

func New(cfg config.APIConfig, logger *slog.Logger, ledger *economy.Ledger, repo social.Repository, book *profile.Book, notifier *announce.Notifier) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if repo == nil {
		repo = social.NewMemory()
	}
	if notifier == nil {
		notifier = announce.NewNotifier(logger)
	}
	s := &Server{
		cfg:      cfg,
		log:      logger,
		ledger:   ledger,
		social:   repo,
		book:     book,
		announce: notifier,
		mux:      chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/posts/impact", s.handleImpact)
		r.Get("/crash", s.handleCrashStatus)

		r.Group(func(r chi.Router) {
			r.Use(s.identityMiddleware)
			r.Get("/market", s.handleMarket)
			r.Post("/market/sync", s.handleMarketSync)
			r.Post("/respects", s.handleRespect)
			r.Get("/shareholders/{user_id}", s.handleShareholders)
			r.Get("/players", s.handlePlayers)
			r.Post("/crash", s.handleCrashSet)

			r.Get("/companies", s.handleCompanyRanking)
			r.Post("/companies", s.handleCreateCompany)
			r.Post("/companies/requirements", s.handleCompanyRequirements)
			r.Post("/companies/leave", s.handleLeaveCompany)
			r.Get("/companies/{id}", s.handleCompany)
			r.Post("/companies/{id}/join", s.handleJoinCompany)
			r.Get("/companies/{id}/contribution", s.handleContribution)

			r.Get("/posts", s.handlePostsList)
			r.Post("/posts", s.handleCreatePost)
			r.Get("/posts/{id}", s.handlePost)
			r.Get("/posts/{id}/comments", s.handleComments)
			r.Post("/posts/{id}/comments", s.handleAddComment)

			r.Get("/notifications", s.handleNotifications)
			r.Post("/notifications/read-all", s.handleReadAll)
			r.Post("/notifications/{id}/read", s.handleRead)

			r.Get("/watch", s.handleWatchList)
			r.Post("/watch", s.handleWatch)
			r.Delete("/watch/{user_id}", s.handleUnwatch)
			r.Get("/profile", s.handleProfile)
			r.Put("/profile", s.handleSaveProfile)
		})
	})
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func (s *Server) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
			return
		}
		userName := strings.TrimSpace(r.Header.Get("X-User-Name"))
		if userName == "" {
			userName = userID
		}
		ctx := context.WithValue(r.Context(), userContextKey, UserContext{UserID: userID, UserName: userName})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) (UserContext, error) {
	v := ctx.Value(userContextKey)
	user, ok := v.(UserContext)
	if !ok || user.UserID == "" {
		return UserContext{}, errors.New("missing identity")
	}
	return user, nil
}

func writeDomainError(w http.ResponseWriter, err error) {
	var reqErr *economy.RequirementsError
	switch {
	case errors.As(err, &reqErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":   economy.ErrRequirementsUnmet.Error(),
			"reasons": reqErr.Reasons,
		})
	case errors.Is(err, economy.ErrCompanyNotFound), errors.Is(err, social.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, economy.ErrAlreadyMember), errors.Is(err, economy.ErrAlreadyAffiliated), errors.Is(err, economy.ErrCompanyFull):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, economy.ErrCompanyBankrupt), errors.Is(err, economy.ErrOwnerCannotLeave):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, economy.ErrNotInCompany), errors.Is(err, economy.ErrCapitalShortfall),
		errors.Is(err, economy.ErrInvalidAmount), errors.Is(err, economy.ErrInvalidRank),
		errors.Is(err, social.ErrEmptyContent), errors.Is(err, social.ErrSelfRespect),
		errors.Is(err, profile.ErrEmptyComment):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeRemoteError hides social store details from the caller; they are in
// the log.
func (s *Server) writeRemoteError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, social.ErrNotFound) || errors.Is(err, social.ErrSelfRespect) || errors.Is(err, social.ErrEmptyContent) {
		writeDomainError(w, err)
		return
	}
	metrics.SocialErrors.WithLabelValues(op).Inc()
	s.log.Error("social store failed", "op", op, "err", err)
	writeError(w, http.StatusBadGateway, "the server could not complete the request, please try again")
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

// decodeOptionalJSON accepts an empty body.
func decodeOptionalJSON(r *http.Request, out any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := decodeJSON(r, out)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
