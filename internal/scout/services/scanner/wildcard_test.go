package scanner

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdscout/sdscout/internal/scout/domain"
)

// zoneResolver answers wildcard probes: any name under a wildcard zone
// resolves to that zone's IPs, scripted names override.
type zoneResolver struct {
	mu        sync.Mutex
	wildcards map[string][]string // parent zone -> ips served for any name
	fixed     map[string][]string // exact fqdn -> ips
	probes    int
}

func (r *zoneResolver) Resolve(_ context.Context, fqdn string) (domain.ResolvedHost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ips, ok := r.fixed[fqdn]; ok {
		return domain.ResolvedHost{IPs: ips}, nil
	}
	if strings.HasPrefix(fqdn, probeLabelPrefix) {
		r.probes++
	}
	if _, zone, ok := strings.Cut(fqdn, "."); ok {
		if ips, wild := r.wildcards[zone]; wild {
			return domain.ResolvedHost{IPs: ips}, nil
		}
	}
	return domain.ResolvedHost{}, nil
}

func (r *zoneResolver) probeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.probes
}

func newDetector(t *testing.T, resolver HostResolver, opts WildcardOptions) *WildcardDetector {
	t.Helper()
	opts.Resolver = resolver
	d, err := NewWildcardDetector(opts)
	require.NoError(t, err)
	return d
}

func TestIsWildcard_DetectsWildcardZone(t *testing.T) {
	resolver := &zoneResolver{
		wildcards: map[string][]string{"wild.test": {"9.9.9.9"}},
		fixed: map[string][]string{
			"real.wild.test": {"1.1.1.1"},
		},
	}
	d := newDetector(t, resolver, WildcardOptions{Probes: 2})

	assert.True(t, d.IsWildcard(context.Background(), "foo.wild.test", []string{"9.9.9.9"}))
	assert.False(t, d.IsWildcard(context.Background(), "real.wild.test", []string{"1.1.1.1"}))
}

func TestIsWildcard_ZoneProbedOnce(t *testing.T) {
	resolver := &zoneResolver{
		wildcards: map[string][]string{"wild.test": {"9.9.9.9"}},
	}
	d := newDetector(t, resolver, WildcardOptions{Probes: 2})

	for i := 0; i < 5; i++ {
		d.IsWildcard(context.Background(), "foo.wild.test", []string{"9.9.9.9"})
	}
	assert.Equal(t, 2, resolver.probeCount())
}

func TestIsWildcard_MultiLevelZones(t *testing.T) {
	resolver := &zoneResolver{
		wildcards: map[string][]string{"dev.wild.test": {"9.9.9.9"}},
		fixed: map[string][]string{
			"real.dev.wild.test": {"1.1.1.1"},
		},
	}
	d := newDetector(t, resolver, WildcardOptions{Probes: 2})

	// foo.dev.wild.test matches the dev.wild.test wildcard
	assert.True(t, d.IsWildcard(context.Background(), "foo.dev.wild.test", []string{"9.9.9.9"}))
	// real.dev.wild.test has its own answer
	assert.False(t, d.IsWildcard(context.Background(), "real.dev.wild.test", []string{"1.1.1.1"}))
	// the apex zone wild.test is not wildcarded
	assert.False(t, d.IsWildcard(context.Background(), "foo.wild.test", []string{"9.9.9.9"}))
}

func TestIsWildcard_NonWildcardZone(t *testing.T) {
	resolver := &zoneResolver{}
	d := newDetector(t, resolver, WildcardOptions{Probes: 2})

	assert.False(t, d.IsWildcard(context.Background(), "www.example.com", []string{"1.1.1.1"}))
}

func TestIsWildcard_IPSetOrderInsensitive(t *testing.T) {
	resolver := &zoneResolver{
		wildcards: map[string][]string{"wild.test": {"9.9.9.9", "8.8.8.8"}},
	}
	d := newDetector(t, resolver, WildcardOptions{Probes: 2})

	assert.True(t, d.IsWildcard(context.Background(), "foo.wild.test", []string{"8.8.8.8", "9.9.9.9"}))
}

func TestIsWildcard_SingleLabelHostIgnored(t *testing.T) {
	resolver := &zoneResolver{}
	d := newDetector(t, resolver, WildcardOptions{Probes: 2})

	assert.False(t, d.IsWildcard(context.Background(), "localhost", []string{"127.0.0.1"}))
}

// flakyResolver answers only some probes, to exercise the agreement
// threshold.
type flakyResolver struct {
	mu    sync.Mutex
	calls int
	ips   []string
}

func (r *flakyResolver) Resolve(context.Context, string) (domain.ResolvedHost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls == 1 {
		return domain.ResolvedHost{IPs: r.ips}, nil
	}
	return domain.ResolvedHost{}, nil
}

func TestIsWildcard_ThresholdRequiresAgreement(t *testing.T) {
	// only one probe resolves, below the threshold of 2
	resolver := &flakyResolver{ips: []string{"9.9.9.9"}}
	d := newDetector(t, resolver, WildcardOptions{Probes: 3})

	assert.False(t, d.IsWildcard(context.Background(), "foo.wild.test", []string{"9.9.9.9"}))
}

func TestIsWildcard_HTTPVerifySuppressesFalsePositive(t *testing.T) {
	resolver := &zoneResolver{
		wildcards: map[string][]string{"cdn.test": {"9.9.9.9"}},
	}
	fetcher := &wildcardFetcher{
		bodies: map[string]string{
			"real.cdn.test": "<html>the real product site</html>",
		},
		fallback: "<html>default wildcard page</html>",
	}
	d := newDetector(t, resolver, WildcardOptions{Probes: 2, HTTPVerify: true, Fetcher: fetcher})

	// served the shared wildcard IPs but distinct content: a real host
	assert.False(t, d.IsWildcard(context.Background(), "real.cdn.test", []string{"9.9.9.9"}))
	// same content as the probe: a true wildcard hit
	assert.True(t, d.IsWildcard(context.Background(), "ghost.cdn.test", []string{"9.9.9.9"}))
}

func TestIsWildcard_HTTPVerifyFetchFailureKeepsWildcard(t *testing.T) {
	resolver := &zoneResolver{
		wildcards: map[string][]string{"cdn.test": {"9.9.9.9"}},
	}
	fetcher := &wildcardFetcher{failAll: true}
	d := newDetector(t, resolver, WildcardOptions{Probes: 2, HTTPVerify: true, Fetcher: fetcher})

	assert.True(t, d.IsWildcard(context.Background(), "foo.cdn.test", []string{"9.9.9.9"}))
}

// wildcardFetcher serves per-host bodies with a shared fallback for
// probe hosts.
type wildcardFetcher struct {
	bodies   map[string]string
	fallback string
	failAll  bool
}

func (f *wildcardFetcher) Fetch(_ context.Context, url string) (int, string, error) {
	if f.failAll {
		return 0, "", assert.AnError
	}
	host := strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(url, "https://"), "http://"), "/")
	if body, ok := f.bodies[host]; ok {
		return 200, strings.ToLower(body), nil
	}
	return 200, strings.ToLower(f.fallback), nil
}

func TestCanonicalIPSet(t *testing.T) {
	assert.Equal(t, canonicalIPSet([]string{"b", "a"}), canonicalIPSet([]string{"a", "b"}))
	assert.NotEqual(t, canonicalIPSet([]string{"a"}), canonicalIPSet([]string{"a", "b"}))
}

func TestProbeLabel(t *testing.T) {
	a, b := probeLabel(), probeLabel()
	assert.True(t, strings.HasPrefix(a, probeLabelPrefix))
	assert.Len(t, a, len(probeLabelPrefix)+probeRandomHexLen)
	assert.NotEqual(t, a, b)
}
