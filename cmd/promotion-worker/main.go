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
	"promotion/internal/config"
	"promotion/internal/economy"
	"promotion/internal/kv"
	"promotion/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type settler struct {
	ledger        *economy.Ledger
	notifier      *announce.Notifier
	log           *slog.Logger
	top           int
	lastAnnounced string
}

// run syncs company members, settles today's bankruptcy checks and posts the
// ranking once per day.
func (s *settler) run(ctx context.Context) {
	synced := s.ledger.SweepMembers(ctx)
	ranking, bankrupted := s.ledger.SettleCompanies(ctx)

	result := "ok"
	if err := s.notifier.Bankruptcies(ctx, bankrupted); err != nil {
		result = "announce_failed"
	}
	today := s.ledger.Today()
	if today != s.lastAnnounced && len(ranking) > 0 {
		if err := s.notifier.Ranking(ctx, ranking, s.top); err != nil {
			result = "announce_failed"
		} else {
			s.lastAnnounced = today
		}
	}
	metrics.SettleRuns.WithLabelValues(result).Inc()
	s.log.Info("settlement complete",
		"day", today,
		"members_synced", synced,
		"companies", len(ranking),
		"bankrupted", len(bankrupted),
		"result", result,
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerFromEnv()
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

	notifier, err := announce.FromWebhook(logger, cfg.DiscordWebhookURL)
	if err != nil {
		logger.Error("discord webhook invalid", "err", err)
		os.Exit(1)
	}

	s := &settler{
		ledger:   economy.NewLedger(store, logger),
		notifier: notifier,
		log:      logger.With("component", "worker"),
		top:      cfg.RankingTop,
	}

	if cfg.RunOnce {
		s.run(ctx)
		logger.Info("worker run-once completed")
		return
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "err", err)
			}
		}()
		defer metricsServer.Close()
	}

	ticker := time.NewTicker(cfg.SettleEvery)
	defer ticker.Stop()

	logger.Info("worker started", "settle_every", cfg.SettleEvery.String(), "store", cfg.Store.Kind)
	s.run(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			s.run(ctx)
		}
	}
}
