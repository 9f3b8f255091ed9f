// Package httpfetch is the shared HTTP prober used by takeover detection
// and wildcard verification. Bodies are capped and lowercased so callers
// can substring-match without caring about casing or size.
package httpfetch

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxBodyBytes = 16 * 1024

// Client fetches a URL and returns the status code plus the first 16 KiB
// of the body, lowercased. Error status codes still yield their body:
// unclaimed-resource pages are usually 4xx/5xx.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// Options configures a fetch Client.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	// Transport overrides the HTTP transport, for tests.
	Transport http.RoundTripper
}

// New creates a fetch Client. Redirects are followed; TLS verification is
// kept lax because probe targets are frequently misconfigured hosts whose
// certificate is for the wrong name.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		}
	}
	return &Client{
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		userAgent: opts.UserAgent,
	}
}

// Fetch performs a GET and reads the capped body. A non-nil error means
// the request itself failed (network, TLS handshake, timeout); HTTP error
// statuses are returned as data.
func (c *Client) Fetch(ctx context.Context, url string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, strings.ToLower(string(body)), nil
}
