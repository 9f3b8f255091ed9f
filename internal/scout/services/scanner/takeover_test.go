package scanner

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdscout/sdscout/internal/scout/domain"
)

type fetchResponse struct {
	status int
	body   string
	err    error
}

// fakeFetcher scripts HTTP probe responses per URL. Unknown URLs fail as
// if the host were unreachable.
type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]fetchResponse
	fetched   []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (int, string, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, url)
	resp, ok := f.responses[url]
	f.mu.Unlock()
	if !ok {
		return 0, "", assert.AnError
	}
	return resp.status, resp.body, resp.err
}

func TestTakeoverCheck_GitHubPagesHighConfidence(t *testing.T) {
	fetcher := &fakeFetcher{responses: map[string]fetchResponse{
		"https://dangling/": {status: 404, body: "there isn't a github pages site here."},
	}}
	prober := NewTakeoverProber(domain.DefaultFingerprintCatalog(), fetcher, nil)

	finding := prober.Check(context.Background(), "dangling")
	require.NotNil(t, finding)
	assert.Equal(t, "GitHub Pages", finding.Service)
	assert.Equal(t, "high", finding.Confidence)
	assert.Equal(t, 90, finding.Score)
	assert.Equal(t, 404, finding.StatusCode)
	assert.Equal(t, "https://dangling/", finding.URL)
	assert.Equal(t, "there isn't a github pages site here.", finding.MatchedPattern)
}

func TestTakeoverCheck_HTTPFallbackWhenHTTPSFails(t *testing.T) {
	fetcher := &fakeFetcher{responses: map[string]fetchResponse{
		"http://dangling/": {status: 404, body: "no such app"},
	}}
	prober := NewTakeoverProber(domain.DefaultFingerprintCatalog(), fetcher, nil)

	finding := prober.Check(context.Background(), "dangling")
	require.NotNil(t, finding)
	assert.Equal(t, "Heroku", finding.Service)
	assert.Equal(t, "http://dangling/", finding.URL)
}

func TestTakeoverCheck_NoMatch(t *testing.T) {
	fetcher := &fakeFetcher{responses: map[string]fetchResponse{
		"https://healthy/": {status: 200, body: "welcome to our site"},
		"http://healthy/":  {status: 200, body: "welcome to our site"},
	}}
	prober := NewTakeoverProber(domain.DefaultFingerprintCatalog(), fetcher, nil)

	assert.Nil(t, prober.Check(context.Background(), "healthy"))
}

func TestTakeoverCheck_AllFetchesFail(t *testing.T) {
	fetcher := &fakeFetcher{responses: map[string]fetchResponse{}}
	prober := NewTakeoverProber(domain.DefaultFingerprintCatalog(), fetcher, nil)

	assert.Nil(t, prober.Check(context.Background(), "unreachable"))
}

func TestScoreFingerprint(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		statusCode int
		fp         domain.Fingerprint
		wantScore  int
		wantMatch  string
	}{
		{
			name:       "single substring plus status",
			body:       "no such app",
			statusCode: 404,
			fp:         domain.Fingerprint{Service: "Heroku", BodySubstrings: []string{"no such app"}, StatusCodes: []int{404}},
			wantScore:  90,
			wantMatch:  "no such app",
		},
		{
			name:       "single substring wrong status",
			body:       "no such app",
			statusCode: 200,
			fp:         domain.Fingerprint{Service: "Heroku", BodySubstrings: []string{"no such app"}, StatusCodes: []int{404}},
			wantScore:  70,
			wantMatch:  "no such app",
		},
		{
			name:       "no status codes configured",
			body:       "no such app",
			statusCode: 404,
			fp:         domain.Fingerprint{Service: "Heroku", BodySubstrings: []string{"no such app"}},
			wantScore:  70,
			wantMatch:  "no such app",
		},
		{
			name:       "two of two patterns",
			body:       "the requested url was not found on this server - unbounce",
			statusCode: 404,
			fp: domain.Fingerprint{
				Service:        "Unbounce",
				BodySubstrings: []string{"the requested url was not found on this server", "unbounce"},
				StatusCodes:    []int{404},
			},
			wantScore: 90, // 35*2=70, +20 status
			wantMatch: "the requested url was not found on this server",
		},
		{
			name:       "one of two patterns no status",
			body:       "unbounce landing",
			statusCode: 200,
			fp: domain.Fingerprint{
				Service:        "Unbounce",
				BodySubstrings: []string{"the requested url was not found on this server", "unbounce"},
				StatusCodes:    []int{404},
			},
			wantScore: 35,
			wantMatch: "unbounce",
		},
		{
			name:       "many patterns floor at 20",
			body:       "a b c d",
			statusCode: 200,
			fp: domain.Fingerprint{
				Service:        "X",
				BodySubstrings: []string{"a", "z1", "z2", "z3"},
			},
			wantScore: 20, // 70/4=17 floored to 20, one match
			wantMatch: "a",
		},
		{
			name:       "no match scores zero",
			body:       "hello world",
			statusCode: 404,
			fp:         domain.Fingerprint{Service: "X", BodySubstrings: []string{"nope"}},
			wantScore:  0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, matched := scoreFingerprint(tt.body, tt.statusCode, tt.fp)
			assert.Equal(t, tt.wantScore, score)
			assert.Equal(t, tt.wantMatch, matched)
		})
	}
}

func TestConfidenceLabel(t *testing.T) {
	assert.Equal(t, "high", confidenceLabel(90))
	assert.Equal(t, "high", confidenceLabel(100))
	assert.Equal(t, "medium", confidenceLabel(70))
	assert.Equal(t, "medium", confidenceLabel(89))
	assert.Equal(t, "low", confidenceLabel(50))
	assert.Equal(t, "low", confidenceLabel(69))
}
