package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
)

const (
	// Embed colors
	colorRed   = 15158332 // 0xE74C3C
	colorGreen = 5763719  // 0x57F287

	defaultWebhookTimeout = 10 * time.Second
	maxRetries            = 3
)

// WebhookPayload is a Discord-compatible webhook message
type WebhookPayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

// Embed is a single rich block of a webhook message
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type EmbedFooter struct {
	Text string `json:"text"`
}

// SyncReport summarizes one batch sync run
type SyncReport struct {
	Users    int
	Fetched  int
	Stored   int
	Failed   int
	Duration time.Duration
	Err      error
}

// NewSyncReportPayload builds the message posted after a batch sync.
// Runs that ended with an error are red and mention @here.
func NewSyncReportPayload(r SyncReport) WebhookPayload {
	embed := Embed{
		Title: "Match sync finished",
		Color: colorGreen,
		Fields: []EmbedField{
			{Name: "Users", Value: formatNumber(r.Users), Inline: true},
			{Name: "Fetched", Value: formatNumber(r.Fetched), Inline: true},
			{Name: "Stored", Value: formatNumber(r.Stored), Inline: true},
			{Name: "Failed", Value: formatNumber(r.Failed), Inline: true},
			{Name: "Runtime", Value: formatDuration(r.Duration), Inline: true},
		},
	}
	payload := WebhookPayload{}
	if r.Err != nil {
		embed.Title = "Match sync finished with errors"
		embed.Color = colorRed
		embed.Description = truncate(r.Err.Error(), 1024)
		payload.Content = "@here"
	}
	payload.Embeds = []Embed{embed}
	return payload
}

// WebhookClient posts notifications to a webhook URL
type WebhookClient struct {
	webhookURL string
	httpClient *http.Client
}

// NewWebhookClient creates a new WebhookClient
func NewWebhookClient(webhookURL string) *WebhookClient {
	return &WebhookClient{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: defaultWebhookTimeout,
		},
	}
}

// SendSyncReport posts a batch sync summary
func (c *WebhookClient) SendSyncReport(ctx context.Context, r SyncReport) error {
	return c.sendPayload(ctx, NewSyncReportPayload(r))
}

// sendPayload posts payload, waiting out 429 responses
func (c *WebhookClient) sendPayload(ctx context.Context, payload WebhookPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		resp.Body.Close()

		// Discord answers 204 No Content
		if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
			return nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := time.Second
			if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
				wait = time.Duration(seconds) * time.Second
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
				continue
			}
		}

		return fmt.Errorf("webhook request failed with status %d", resp.StatusCode)
	}

	return fmt.Errorf("webhook request failed after %d retries", maxRetries)
}

// formatNumber adds thousands separators (47832 -> "47,832")
func formatNumber(n int) string {
	s := strconv.Itoa(n)
	if n < 1000 {
		return s
	}
	var out bytes.Buffer
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out.WriteByte(',')
		}
		out.WriteRune(c)
	}
	return out.String()
}

// formatDuration renders short runs in seconds and longer ones as "Xm Ys"
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
