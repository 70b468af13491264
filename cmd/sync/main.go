package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tfttracker/internal/config"
	"tfttracker/internal/data"
	"tfttracker/internal/matchsync"
	"tfttracker/internal/notify"
	"tfttracker/internal/riot"
)

func main() {
	username := flag.String("user", "", "Only sync this username")
	count := flag.Int("count", 0, "Match ids to request per user (defaults to MATCH_FETCH_COUNT)")
	flag.Parse()

	config.LoadDotEnv()
	cfg, err := config.Parse()
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}
	logger := config.NewLogger(cfg)

	fetchCount := cfg.MatchFetchCount
	if *count > 0 {
		fetchCount = *count
	}

	ctx := matchsync.SetupSignalHandler(logger, nil)

	store, err := data.Open(ctx, cfg.DatabaseURL, cfg.DatabaseAuthToken, logger)
	if err != nil {
		logger.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	opts := []matchsync.Option{matchsync.WithFetchCount(fetchCount)}
	if cfg.RedisURL != "" {
		cache, err := data.NewRedisCache(ctx, cfg.RedisURL, cfg.CacheTTL, logger)
		if err != nil {
			logger.Fatalf("Failed to connect to cache: %v", err)
		}
		defer cache.Close()
		opts = append(opts, matchsync.WithCache(cache))
	} else {
		// The server's in-memory cache lives in another process
		logger.WithField("ttl", cfg.CacheTTL.String()).
			Warn("REDIS_URL not set, server stats refresh only when their cache entries expire")
	}

	client, err := riot.NewClient(riot.Config{
		APIKey:  cfg.RiotAPIKey,
		Regions: cfg.RiotRegions,
		BaseURL: cfg.RiotBaseURL,
	}, logger)
	if err != nil {
		logger.Fatalf("Failed to create Riot client: %v", err)
	}

	syncer := matchsync.New(client, store, logger, opts...)

	start := time.Now()
	results, err := run(ctx, store, syncer, *username)

	report := notify.SyncReport{Users: len(results), Duration: time.Since(start), Err: err}
	for _, r := range results {
		report.Fetched += r.Fetched
		report.Stored += r.Stored
		report.Failed += r.Failed
		fmt.Printf("user %d: fetched=%d stored=%d skipped=%d failed=%d\n",
			r.UserID, r.Fetched, r.Stored, r.Skipped, r.Failed)
	}
	fmt.Printf("synced %d users, %d new matches\n", report.Users, report.Stored)

	if cfg.SyncWebhookURL != "" {
		// ctx may already be cancelled by a signal; the report should still go out
		sendCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if werr := notify.NewWebhookClient(cfg.SyncWebhookURL).SendSyncReport(sendCtx, report); werr != nil {
			logger.WithError(werr).Warn("Failed to post sync report")
		}
		cancel()
	}

	if err != nil {
		logger.Fatalf("Sync finished with errors: %v", err)
	}
}

func run(ctx context.Context, store *data.Store, syncer *matchsync.Syncer, username string) ([]matchsync.Result, error) {
	if username == "" {
		return syncer.SyncAll(ctx)
	}

	u, err := store.GetUserByUsername(ctx, username)
	if errors.Is(err, data.ErrNotFound) {
		return nil, fmt.Errorf("user %q not found", username)
	}
	if err != nil {
		return nil, err
	}
	res, err := syncer.SyncUser(ctx, u)
	if err != nil {
		return nil, err
	}
	return []matchsync.Result{*res}, nil
}
