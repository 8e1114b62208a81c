package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"promotion/internal/announce"
	"promotion/internal/api"
	"promotion/internal/config"
	"promotion/internal/db"
	"promotion/internal/economy"
	"promotion/internal/kv"
	"promotion/internal/profile"
	"promotion/internal/social"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	store, closeStore, err := kv.Open(ctx, cfg.Store)
	if err != nil {
		logger.Error("store open failed", "kind", cfg.Store.Kind, "err", err)
		os.Exit(1)
	}
	defer closeStore()

	var repo social.Repository
	switch cfg.Social.Kind {
	case config.SocialPostgres:
		pool, err := db.Connect(ctx, cfg.Social.DatabaseURL, db.WithMaxConns(int32(cfg.Social.MaxConns)))
		if err != nil {
			logger.Error("db connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		pg := social.NewPostgres(pool, logger)
		if cfg.Social.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				logger.Error("migrate failed", "err", err)
				os.Exit(1)
			}
		}
		repo = pg
	case config.SocialSupabase:
		repo = social.NewSupabase(cfg.Social.SupabaseURL, cfg.Social.SupabaseAnonKey, logger)
	default:
		repo = social.NewMemory()
	}

	notifier, err := announce.FromWebhook(logger, cfg.DiscordWebhookURL)
	if err != nil {
		logger.Error("discord webhook invalid", "err", err)
		os.Exit(1)
	}

	ledger := economy.NewLedger(store, logger)
	book := profile.NewBook(store, logger)
	server := api.New(cfg, logger, ledger, repo, book, notifier)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("promotion api listening",
		"addr", cfg.Addr,
		"store", cfg.Store.Kind,
		"social", cfg.Social.Kind,
		"announcements", notifier.Enabled(),
	)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
