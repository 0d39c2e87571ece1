package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"runesmith/internal/auth"
	"runesmith/internal/config"
	"runesmith/internal/db"
	"runesmith/internal/market"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	marketSvc := market.NewService(pool, logger, cfg.SingleSale)
	authSvc := auth.NewService(pool, logger, cfg.SessionTTL, cfg.StarterPoints)

	sweep := func() {
		expired, err := marketSvc.ExpireListings(ctx, cfg.ListingTTL)
		if err != nil {
			logger.Error("listing expiry sweep failed", "err", err)
		} else if expired > 0 {
			logger.Info("listings expired", "count", expired)
		}
		pruned, err := authSvc.PruneSessions(ctx)
		if err != nil {
			logger.Error("session prune failed", "err", err)
		} else if pruned > 0 {
			logger.Info("sessions pruned", "count", pruned)
		}
	}

	runOnce := strings.EqualFold(strings.TrimSpace(os.Getenv("RUNESMITH_WORKER_RUN_ONCE")), "true")
	if runOnce {
		sweep()
		logger.Info("worker run-once completed")
		return
	}

	ticker := time.NewTicker(cfg.SweepEvery)
	defer ticker.Stop()

	logger.Info("worker started", "sweep_every", cfg.SweepEvery.String(), "listing_ttl", cfg.ListingTTL.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			sweep()
		}
	}
}
