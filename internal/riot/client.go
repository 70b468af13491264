package riot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
)

const (
	// Rate limits for a dev key (conservative values)
	requestsPerSecond = 15 // Actual: 20
	requestsPer2Min   = 90 // Actual: 100

	defaultRetryAfter = 10 * time.Second
	maxRateLimitRetry = 3
	maxErrorBody      = 4096
)

var (
	// ErrInvalidRegion is returned for regions outside the allow-list
	ErrInvalidRegion = errors.New("invalid region")
	// ErrMissingAPIKey is returned when the client has no key configured
	ErrMissingAPIKey = errors.New("riot api key not configured")
)

// APIError carries a non-200 response from the Riot API
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("riot api returned %d: %s", e.StatusCode, e.Body)
}

// Config holds everything the client needs; nothing is read from globals
type Config struct {
	APIKey  string
	Regions []string // Allowed regional routing values
	BaseURL string   // Overrides https://{region}.api.riotgames.com when set
	Timeout time.Duration
}

// Client is a rate-limited Riot TFT API client
type Client struct {
	apiKey     string
	baseURL    string
	regions    map[string]bool
	httpClient *http.Client
	log        logrus.FieldLogger

	// Rate limiting
	mu          sync.Mutex
	shortWindow []time.Time // Requests in last second
	longWindow  []time.Time // Requests in last 2 minutes
}

// NewClient creates a new Riot API client
func NewClient(cfg Config, logger logrus.FieldLogger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	regions := make(map[string]bool, len(cfg.Regions))
	for _, r := range cfg.Regions {
		regions[strings.ToLower(strings.TrimSpace(r))] = true
	}

	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		regions: regions,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: logger.WithField("component", "riot"),
	}, nil
}

// ValidateRegion lower-cases region and checks it against the allow-list
func (c *Client) ValidateRegion(region string) (string, error) {
	region = strings.ToLower(strings.TrimSpace(region))
	if !c.regions[region] {
		return "", fmt.Errorf("%w: %q", ErrInvalidRegion, region)
	}
	return region, nil
}

func (c *Client) regionURL(region string) string {
	if c.baseURL != "" {
		return c.baseURL
	}
	return fmt.Sprintf("https://%s.api.riotgames.com", region)
}

// waitForRateLimit blocks until we can make another request
func (c *Client) waitForRateLimit(ctx context.Context) error {
	for {
		c.mu.Lock()

		now := time.Now()
		c.shortWindow = pruneBefore(c.shortWindow, now.Add(-1*time.Second))
		c.longWindow = pruneBefore(c.longWindow, now.Add(-2*time.Minute))

		var waitTime time.Duration
		switch {
		case len(c.shortWindow) >= requestsPerSecond:
			waitTime = c.shortWindow[0].Add(time.Second).Sub(now) + 100*time.Millisecond
		case len(c.longWindow) >= requestsPer2Min:
			waitTime = c.longWindow[0].Add(2*time.Minute).Sub(now) + 100*time.Millisecond
		default:
			c.shortWindow = append(c.shortWindow, now)
			c.longWindow = append(c.longWindow, now)
			c.mu.Unlock()
			return nil
		}
		short, long := len(c.shortWindow), len(c.longWindow)
		c.mu.Unlock()

		c.log.WithFields(logrus.Fields{
			"short": short,
			"long":  long,
			"wait":  waitTime.String(),
		}).Debug("rate limit reached, waiting")

		if err := sleepContext(ctx, waitTime); err != nil {
			return err
		}
	}
}

func pruneBefore(window []time.Time, cutoff time.Time) []time.Time {
	kept := window[:0]
	for _, t := range window {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// doRequest makes a rate-limited GET and returns the body of a 200 response
func (c *Client) doRequest(ctx context.Context, rawURL string) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		if err := c.waitForRateLimit(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Riot-Token", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("riot request failed: %w", err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read riot response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxRateLimitRetry {
			waitTime := retryAfter(resp.Header.Get("Retry-After"))
			c.log.WithField("wait", waitTime.String()).Warn("rate limited by riot api")
			if err := sleepContext(ctx, waitTime); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			if len(body) > maxErrorBody {
				body = body[:maxErrorBody]
			}
			return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		return body, nil
	}
}

func retryAfter(header string) time.Duration {
	if header == "" {
		return defaultRetryAfter
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds < 0 {
		return defaultRetryAfter
	}
	return time.Duration(seconds) * time.Second
}

func (c *Client) getJSON(ctx context.Context, rawURL string, result any) error {
	body, err := c.doRequest(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("decode riot response: %w", err)
	}
	return nil
}

// GetAccountByRiotID fetches account info by Riot ID (gameName#tagLine)
func (c *Client) GetAccountByRiotID(ctx context.Context, region, gameName, tagLine string) (*AccountResponse, error) {
	region, err := c.ValidateRegion(region)
	if err != nil {
		return nil, err
	}
	gameName = strings.ToLower(strings.TrimSpace(gameName))
	tagLine = strings.ToLower(strings.TrimSpace(tagLine))

	u := fmt.Sprintf("%s/riot/account/v1/accounts/by-riot-id/%s/%s",
		c.regionURL(region), url.PathEscape(gameName), url.PathEscape(tagLine))

	var account AccountResponse
	if err := c.getJSON(ctx, u, &account); err != nil {
		return nil, err
	}
	if account.PUUID == "" {
		return nil, fmt.Errorf("riot account response missing puuid")
	}
	return &account, nil
}

// GetMatchIDs fetches the most recent TFT match ids for a player
func (c *Client) GetMatchIDs(ctx context.Context, region, puuid string, count int) ([]string, error) {
	region, err := c.ValidateRegion(region)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		count = 10
	}

	u := fmt.Sprintf("%s/tft/match/v1/matches/by-puuid/%s/ids?count=%d",
		c.regionURL(region), url.PathEscape(puuid), count)

	var matchIDs []string
	if err := c.getJSON(ctx, u, &matchIDs); err != nil {
		return nil, err
	}
	return matchIDs, nil
}

// GetMatch fetches match details
func (c *Client) GetMatch(ctx context.Context, region, matchID string) (*Match, error) {
	region, err := c.ValidateRegion(region)
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/tft/match/v1/matches/%s", c.regionURL(region), url.PathEscape(matchID))

	body, err := c.doRequest(ctx, u)
	if err != nil {
		return nil, err
	}
	return ParseMatch(body)
}
