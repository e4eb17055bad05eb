// improvd serves the improv practice API over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/joho/godotenv"

	"github.com/antonajp/ai4joy-sub002/config"
	"github.com/antonajp/ai4joy-sub002/engine"
	"github.com/antonajp/ai4joy-sub002/httpapi"
	"github.com/antonajp/ai4joy-sub002/logging"
	"github.com/antonajp/ai4joy-sub002/model"
	"github.com/antonajp/ai4joy-sub002/model/anthropic"
	"github.com/antonajp/ai4joy-sub002/model/openai"
	"github.com/antonajp/ai4joy-sub002/partner"
	"github.com/antonajp/ai4joy-sub002/quota"
	"github.com/antonajp/ai4joy-sub002/session"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting improvd", "port", cfg.Port, "provider", cfg.Provider)

	store, err := session.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close store", "error", closeErr)
		}
	}()

	if err := store.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	llm, err := buildModel(cfg)
	if err != nil {
		slog.Error("Failed to initialize model", "error", err)
		os.Exit(1)
	}
	slog.Info("Model ready", "name", llm.Info().Name, "provider", llm.Info().Provider)

	appLogger := logging.NewSlogAdapter(logger)

	limiter := quota.NewLimiter(store, func(o *quota.Options) {
		o.DailyLimit = cfg.DailyLimit
		o.ConcurrentLimit = cfg.ConcurrentLimit
	})
	partners := partner.NewCache(llm, func(o *partner.CacheOptions) {
		o.TTL = cfg.PartnerCacheTTL
	})
	eng := engine.New(store, limiter, partners, func(o *engine.Options) {
		o.TurnTimeout = cfg.TurnTimeout
		o.MaxInputLen = cfg.MaxInputLen
		o.CoachingTurn = cfg.CoachingTurn
		o.Logger = appLogger
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpapi.NewHandler(eng, appLogger).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Abandon sessions left idle past the staleness bound.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				n, err := eng.SweepStale(sweepCtx, cfg.StaleAfter)
				if err != nil {
					slog.Error("Stale session sweep failed", "error", err)
				} else if n > 0 {
					slog.Info("Swept stale sessions", "count", n)
				}
			}
		}
	}()

	go func() {
		slog.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down")

	stopSweep()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped")
}

// buildModel selects the generative backend. API keys come from the SDKs'
// standard environment variables.
func buildModel(cfg *config.Config) (model.Model, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.ModelID != "" {
				o.Model = anthropicsdk.Model(cfg.ModelID)
			}
		}), nil
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			if cfg.ModelID != "" {
				o.Model = cfg.ModelID
			}
		}), nil
	case "mock":
		return model.NewMockModel("mock", "local"), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
