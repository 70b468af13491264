package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tfttracker/internal/config"
	"tfttracker/internal/riot"
)

func main() {
	baseURL := flag.String("base-url", "", "Override the platform URL; {platform} is replaced per platform")
	platforms := flag.String("platform", "", "Comma-separated platforms to check (default: every platform behind RIOT_REGIONS)")
	timeout := flag.Duration("timeout", 10*time.Second, "Request timeout")
	flag.Parse()

	config.LoadDotEnv()
	cfg, err := config.Parse()
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.RiotAPIKey == "" {
		fmt.Println("RIOT_API_KEY is not set")
		os.Exit(2)
	}

	targets := riot.PlatformsFor(cfg.RiotRegions...)
	if *platforms != "" {
		targets = nil
		for _, p := range strings.Split(*platforms, ",") {
			if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
				targets = append(targets, p)
			}
		}
	}
	if len(targets) == 0 {
		fmt.Println("No platforms to check")
		os.Exit(2)
	}

	opts := []riot.KeyValidatorOption{riot.WithTimeout(*timeout)}
	if *baseURL != "" {
		opts = append(opts, riot.WithBaseURL(*baseURL))
	}

	fmt.Printf("Checking key %s on %s...\n", cfg.MaskedAPIKey(), strings.Join(targets, ", "))
	failed := false
	for _, st := range riot.NewKeyValidator(opts...).CheckPlatforms(context.Background(), cfg.RiotAPIKey, targets) {
		switch {
		case st.Err != nil:
			failed = true
			fmt.Printf("  %-5s could not validate: %v\n", st.Platform, st.Err)
		case !st.Valid:
			failed = true
			fmt.Printf("  %-5s key is invalid or expired\n", st.Platform)
		default:
			fmt.Printf("  %-5s ok %s (%d maintenances, %d incidents)\n", st.Platform, st.Name, st.Maintenances, st.Incidents)
		}
	}
	if failed {
		os.Exit(1)
	}
}
