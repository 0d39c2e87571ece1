package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"runesmith/internal/api"
	"runesmith/internal/auth"
	"runesmith/internal/compiler"
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

	authSvc := auth.NewService(pool, logger, cfg.SessionTTL, cfg.StarterPoints)
	marketSvc := market.NewService(pool, logger, cfg.SingleSale)

	var compilerClient *compiler.Client
	if cfg.AnthropicAPIKey != "" {
		compilerClient, err = compiler.New(compiler.Config{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.AnthropicModel,
		})
		if err != nil {
			logger.Error("compiler init failed", "err", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("no anthropic api key set, skill compiler disabled")
	}

	server := api.New(cfg, logger, authSvc, marketSvc, compilerClient)
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

	logger.Info("runesmith api listening", "addr", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
