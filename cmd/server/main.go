package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"tfttracker/internal/api"
	"tfttracker/internal/auth"
	"tfttracker/internal/config"
	"tfttracker/internal/data"
	"tfttracker/internal/events"
	"tfttracker/internal/matchsync"
	"tfttracker/internal/riot"
	"tfttracker/internal/stats"
)

func main() {
	envPath, envLoaded := config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}
	logger := config.NewLogger(cfg)
	if envLoaded {
		logger.WithField("path", envPath).Info("loaded .env")
	} else {
		logger.Info("no .env file found, using environment variables")
	}

	ctx := context.Background()

	store, err := data.Open(ctx, cfg.DatabaseURL, cfg.DatabaseAuthToken, logger)
	if err != nil {
		logger.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	cache, err := data.NewCache(ctx, cfg.RedisURL, cfg.CacheTTL, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to cache: %v", err)
	}
	defer cache.Close()

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTAlgorithm, cfg.AccessTokenTTL)
	if err != nil {
		logger.Fatalf("Failed to set up tokens: %v", err)
	}

	hub := events.NewHub(logger)
	defer hub.Close()

	deps := api.Deps{
		Store:      store,
		Cache:      cache,
		Tokens:     tokens,
		Hub:        hub,
		Aggregator: stats.New(stats.NewNormalizer(cfg.TraitPrefix)),
		Logger:     logger,
	}

	client, err := riot.NewClient(riot.Config{
		APIKey:  cfg.RiotAPIKey,
		Regions: cfg.RiotRegions,
		BaseURL: cfg.RiotBaseURL,
	}, logger)
	switch {
	case errors.Is(err, riot.ErrMissingAPIKey):
		logger.Warn("RIOT_API_KEY not set, Riot routes disabled")
	case err != nil:
		logger.Fatalf("Failed to create Riot client: %v", err)
	default:
		logger.WithField("key", cfg.MaskedAPIKey()).Info("Riot client ready")
		deps.Riot = client
		deps.Syncer = matchsync.New(client, store, logger,
			matchsync.WithFetchCount(cfg.MatchFetchCount),
			matchsync.WithCache(cache),
			matchsync.WithPublisher(hub),
		)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.New(deps).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", server.Addr).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("shutting down")
	case err := <-errCh:
		logger.WithError(err).Error("server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
	logger.Info("server stopped")
}
