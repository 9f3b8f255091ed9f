package scanner

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sdscout/sdscout/internal/scout/common/log"
)

const (
	probeLabelPrefix  = "_sdscout-"
	defaultZoneCap    = 4096
	defaultProbes     = 3
	defaultThreshold  = 2
	probeRandomHexLen = 16
)

// WildcardOptions configures a WildcardDetector.
type WildcardOptions struct {
	Resolver HostResolver
	// Probes is the number of random-label probes fired per zone. Min 2.
	Probes int
	// Threshold is the minimum number of probes that must share an IP set
	// before the set counts as a wildcard answer. Min 2.
	Threshold int
	// HTTPVerify enables the content comparison that suppresses false
	// positives on CDNs sharing IPs between wildcard and real hosts.
	HTTPVerify bool
	Fetcher    BodyFetcher
	// ZoneCacheSize bounds the per-zone cache.
	ZoneCacheSize int
	Logger        log.Logger
}

// WildcardDetector classifies whether a resolved candidate's answer is a
// wildcard response for its parent zone. Probe results are cached per zone
// so each zone is probed at most once per scan.
type WildcardDetector struct {
	resolver   HostResolver
	probes     int
	threshold  int
	httpVerify bool
	fetcher    BodyFetcher
	cache      *lru.Cache[string, map[string]struct{}]
	logger     log.Logger
}

// NewWildcardDetector creates a detector.
func NewWildcardDetector(opts WildcardOptions) (*WildcardDetector, error) {
	if opts.Resolver == nil {
		return nil, fmt.Errorf("wildcard detector requires a resolver")
	}
	if opts.Probes < 2 {
		opts.Probes = defaultProbes
	}
	if opts.Threshold < 2 {
		opts.Threshold = defaultThreshold
	}
	if opts.ZoneCacheSize <= 0 {
		opts.ZoneCacheSize = defaultZoneCap
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	cache, err := lru.New[string, map[string]struct{}](opts.ZoneCacheSize)
	if err != nil {
		return nil, err
	}
	return &WildcardDetector{
		resolver:   opts.Resolver,
		probes:     opts.Probes,
		threshold:  opts.Threshold,
		httpVerify: opts.HTTPVerify,
		fetcher:    opts.Fetcher,
		cache:      cache,
		logger:     opts.Logger,
	}, nil
}

// IsWildcard reports whether the candidate's IP set matches a cached
// wildcard answer for its parent zone. Must be called with non-empty ips.
func (d *WildcardDetector) IsWildcard(ctx context.Context, fqdn string, ips []string) bool {
	_, zone, found := strings.Cut(fqdn, ".")
	if !found || zone == "" {
		return false
	}

	sets := d.zoneWildcardSets(ctx, zone)
	if len(sets) == 0 {
		return false
	}
	if _, match := sets[canonicalIPSet(ips)]; !match {
		return false
	}

	if d.httpVerify && d.fetcher != nil && d.contentDiffers(ctx, fqdn, zone) {
		d.logger.Debug(map[string]any{
			"fqdn": fqdn,
			"zone": zone,
		}, "wildcard ip match but content differs, keeping resolved")
		return false
	}
	return true
}

// zoneWildcardSets returns the wildcard IP sets for zone, probing on first
// use. Concurrent first hits against the same zone may both probe; the
// first computed value wins via ContainsOrAdd and the duplicate work is
// discarded, which is benign.
func (d *WildcardDetector) zoneWildcardSets(ctx context.Context, zone string) map[string]struct{} {
	if sets, ok := d.cache.Get(zone); ok {
		return sets
	}

	hits := make(map[string]int)
	for i := 0; i < d.probes; i++ {
		probe := probeLabel() + "." + zone
		host, err := d.resolver.Resolve(ctx, probe)
		if err != nil || len(host.IPs) == 0 {
			continue
		}
		hits[canonicalIPSet(host.IPs)]++
	}

	sets := make(map[string]struct{})
	for ipset, count := range hits {
		if count >= d.threshold {
			sets[ipset] = struct{}{}
		}
	}

	if len(sets) > 0 {
		d.logger.Debug(map[string]any{
			"zone":   zone,
			"ipsets": len(sets),
		}, "wildcard zone detected")
	}

	d.cache.ContainsOrAdd(zone, sets)
	if cached, ok := d.cache.Get(zone); ok {
		return cached
	}
	return sets
}

// contentDiffers fetches the candidate and a fresh random probe host over
// HTTP and compares their bodies after scrubbing hostnames. Differing
// content means the candidate is a real site behind a shared wildcard IP.
// If either fetch fails the wildcard classification stands.
func (d *WildcardDetector) contentDiffers(ctx context.Context, fqdn, zone string) bool {
	probe := probeLabel() + "." + zone
	candidateBody, ok := d.fetchBody(ctx, fqdn)
	if !ok {
		return false
	}
	probeBody, ok := d.fetchBody(ctx, probe)
	if !ok {
		return false
	}
	return scrubHostname(candidateBody, fqdn) != scrubHostname(probeBody, probe)
}

// fetchBody tries https then http for a host.
func (d *WildcardDetector) fetchBody(ctx context.Context, host string) (string, bool) {
	for _, scheme := range []string{"https", "http"} {
		if _, body, err := d.fetcher.Fetch(ctx, scheme+"://"+host+"/"); err == nil {
			return body, true
		}
	}
	return "", false
}

// scrubHostname removes occurrences of the host's own name so that pages
// which merely echo the requested hostname compare equal.
func scrubHostname(body, host string) string {
	return strings.ReplaceAll(body, strings.ToLower(host), "")
}

// canonicalIPSet is the order-insensitive stable key for an IP collection.
func canonicalIPSet(ips []string) string {
	sorted := make([]string, len(ips))
	copy(sorted, ips)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// probeLabel generates a random label that cannot collide with real
// wordlist entries.
func probeLabel() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return probeLabelPrefix + hex[:probeRandomHexLen]
}
