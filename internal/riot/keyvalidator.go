package riot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	// {platform} is replaced with the platform routing value, e.g. euw1
	platformURLTemplate = "https://{platform}.api.riotgames.com"

	tftStatusEndpoint = "/tft/status/v1/platform-data"

	defaultPlatform          = "na1"
	defaultValidationTimeout = 10 * time.Second
)

// platformsByRegion lists the TFT platforms behind each regional route.
// esports has no public platform.
var platformsByRegion = map[string][]string{
	"americas": {"na1", "br1", "la1", "la2"},
	"europe":   {"euw1", "eun1", "tr1", "ru", "me1"},
	"asia":     {"kr", "jp1"},
	"sea":      {"oc1", "ph2", "sg2", "th2", "tw2", "vn2"},
}

// PlatformsFor returns the platforms served by the given regional routes,
// in region order and without duplicates
func PlatformsFor(regions ...string) []string {
	var out []string
	for _, r := range regions {
		for _, p := range platformsByRegion[strings.ToLower(strings.TrimSpace(r))] {
			if !slices.Contains(out, p) {
				out = append(out, p)
			}
		}
	}
	return out
}

// PlatformStatus is the outcome of checking a key against one platform
type PlatformStatus struct {
	Platform     string
	Name         string
	Valid        bool
	Maintenances int
	Incidents    int
	Err          error // Set when validity could not be determined
}

// KeyValidator validates Riot API keys against the TFT status API
type KeyValidator struct {
	httpClient  *http.Client
	urlTemplate string
	platform    string
}

// KeyValidatorOption configures a KeyValidator
type KeyValidatorOption func(*KeyValidator)

// WithBaseURL overrides the platform host. A {platform} placeholder in
// url is replaced per request.
func WithBaseURL(url string) KeyValidatorOption {
	return func(v *KeyValidator) {
		v.urlTemplate = strings.TrimRight(url, "/")
	}
}

// WithPlatform sets the platform ValidateKey checks
func WithPlatform(platform string) KeyValidatorOption {
	return func(v *KeyValidator) {
		v.platform = strings.ToLower(strings.TrimSpace(platform))
	}
}

// WithTimeout sets a custom timeout for validation requests
func WithTimeout(timeout time.Duration) KeyValidatorOption {
	return func(v *KeyValidator) {
		v.httpClient.Timeout = timeout
	}
}

// NewKeyValidator creates a new KeyValidator with the given options
func NewKeyValidator(opts ...KeyValidatorOption) *KeyValidator {
	v := &KeyValidator{
		httpClient:  &http.Client{Timeout: defaultValidationTimeout},
		urlTemplate: platformURLTemplate,
		platform:    defaultPlatform,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateKey checks the key against the configured platform.
// Returns:
//   - (true, nil) if the key is valid
//   - (false, nil) if the key is invalid (401/403)
//   - (false, error) if there was a network/server error (key validity unknown)
func (v *KeyValidator) ValidateKey(ctx context.Context, apiKey string) (bool, error) {
	st := v.CheckPlatform(ctx, apiKey, v.platform)
	return st.Valid, st.Err
}

// CheckPlatforms checks the key against each platform in turn
func (v *KeyValidator) CheckPlatforms(ctx context.Context, apiKey string, platforms []string) []PlatformStatus {
	out := make([]PlatformStatus, 0, len(platforms))
	for _, p := range platforms {
		out = append(out, v.CheckPlatform(ctx, apiKey, p))
	}
	return out
}

// CheckPlatform requests the platform's TFT status with the key and
// reports the platform's open maintenances and incidents
func (v *KeyValidator) CheckPlatform(ctx context.Context, apiKey, platform string) PlatformStatus {
	st := PlatformStatus{Platform: platform}
	if apiKey == "" {
		st.Err = ErrMissingAPIKey
		return st
	}

	base := strings.ReplaceAll(v.urlTemplate, "{platform}", platform)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+tftStatusEndpoint, nil)
	if err != nil {
		st.Err = fmt.Errorf("failed to create request: %w", err)
		return st
	}
	req.Header.Set("X-Riot-Token", apiKey)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		st.Err = fmt.Errorf("%s: request failed: %w", platform, err)
		return st
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return st
	default:
		st.Err = fmt.Errorf("%s: unexpected status code: %d", platform, resp.StatusCode)
		return st
	}

	st.Valid = true
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || !gjson.ValidBytes(body) {
		// Key accepted, status details unavailable
		return st
	}
	doc := gjson.ParseBytes(body)
	st.Name = doc.Get("name").String()
	st.Maintenances = len(doc.Get("maintenances").Array())
	st.Incidents = len(doc.Get("incidents").Array())
	return st
}
