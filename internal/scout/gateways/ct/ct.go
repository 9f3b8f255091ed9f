// Package ct fetches subdomains for an apex domain from a
// certificate-transparency search endpoint (crt.sh).
package ct

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sdscout/sdscout/internal/scout/common/clock"
	"github.com/sdscout/sdscout/internal/scout/common/log"
	"github.com/sdscout/sdscout/internal/scout/common/utils"
	"github.com/sdscout/sdscout/internal/scout/repos/ctcache"
)

const defaultBaseURL = "https://crt.sh"

// FetchSummary accounts for one CT fetch.
type FetchSummary struct {
	RecordsFetched int
	NamesSeen      int
	Emitted        int
	ElapsedMS      int64
	FromCache      bool
}

// row is the subset of a crt.sh JSON record the fetcher reads.
type row struct {
	NameValue string `json:"name_value"`
}

// Options configures a CT client.
type Options struct {
	Timeout   time.Duration
	BaseURL   string // for tests; defaults to crt.sh
	UserAgent string
	Cache     *ctcache.Cache // nil disables caching
	CacheTTL  time.Duration
	Clock     clock.Clock
	Logger    log.Logger
}

// Client queries the CT endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	cache      *ctcache.Cache
	cacheTTL   time.Duration
	clock      clock.Clock
	logger     log.Logger
}

// New creates a CT client.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		baseURL:    opts.BaseURL,
		userAgent:  opts.UserAgent,
		cache:      opts.Cache,
		cacheTTL:   opts.CacheTTL,
		clock:      opts.Clock,
		logger:     opts.Logger,
	}
}

// FetchSubdomains returns ordered, deduplicated, lowercased subdomains of
// domain found in CT logs. limit < 0 means unlimited.
func (c *Client) FetchSubdomains(ctx context.Context, domain string, limit int) ([]string, FetchSummary, error) {
	start := c.clock.Now()

	if c.cache != nil {
		if cached, ok, err := c.cache.Get(domain, c.cacheTTL, start); err == nil && ok {
			subs := capLimit(cached, limit)
			return subs, FetchSummary{
				Emitted:   len(subs),
				ElapsedMS: clock.ElapsedMS(c.clock, start),
				FromCache: true,
			}, nil
		}
	}

	query := url.QueryEscape("%." + domain)
	endpoint := fmt.Sprintf("%s/?q=%s&output=json", c.baseURL, query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, FetchSummary{}, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, FetchSummary{}, fmt.Errorf("ct fetch failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, FetchSummary{}, fmt.Errorf("ct fetch failed: unexpected status %d", resp.StatusCode)
	}

	var payload []row
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, FetchSummary{}, fmt.Errorf("unexpected ct response shape: %w", err)
	}

	subdomains, namesSeen := extractSubdomains(payload, domain, limit)

	if c.cache != nil {
		if err := c.cache.Put(domain, subdomains, c.clock.Now()); err != nil {
			c.logger.Warn(map[string]any{
				"domain": domain,
				"error":  err.Error(),
			}, "failed to store ct cache entry")
		}
	}

	return subdomains, FetchSummary{
		RecordsFetched: len(payload),
		NamesSeen:      namesSeen,
		Emitted:        len(subdomains),
		ElapsedMS:      clock.ElapsedMS(c.clock, start),
	}, nil
}

// extractSubdomains flattens name_value entries into ordered unique
// subdomains under domain. Wildcard markers are stripped, names that do
// not validate are dropped.
func extractSubdomains(payload []row, domain string, limit int) ([]string, int) {
	var subdomains []string
	seen := make(map[string]struct{})
	namesSeen := 0
	suffix := "." + domain

	for _, r := range payload {
		for _, rawName := range strings.Split(r.NameValue, "\n") {
			name := strings.ToLower(strings.Trim(strings.TrimSpace(rawName), "."))
			if name == "" {
				continue
			}
			namesSeen++
			name = strings.TrimPrefix(name, "*.")
			if name == domain || !strings.HasSuffix(name, suffix) {
				continue
			}
			if _, err := utils.NormalizeLabel(strings.TrimSuffix(name, suffix)); err != nil {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			subdomains = append(subdomains, name)
			if limit >= 0 && len(subdomains) >= limit {
				return subdomains, namesSeen
			}
		}
	}
	return subdomains, namesSeen
}

// SubdomainsToLabels maps fetched subdomains to normalized scan labels by
// stripping the apex suffix. Invalid entries are dropped silently; the CT
// feed is advisory, not user input.
func SubdomainsToLabels(subdomains []string, domain string) []string {
	var labels []string
	seen := make(map[string]struct{})
	suffix := "." + domain
	for _, name := range subdomains {
		item := strings.ToLower(strings.Trim(strings.TrimSpace(name), "."))
		if item == domain || !strings.HasSuffix(item, suffix) {
			continue
		}
		label, err := utils.NormalizeLabel(strings.TrimSuffix(item, suffix))
		if err != nil {
			continue
		}
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		labels = append(labels, label)
	}
	return labels
}

func capLimit(subs []string, limit int) []string {
	if limit >= 0 && len(subs) > limit {
		return subs[:limit]
	}
	return subs
}
