package scanner

import (
	"context"
	"strings"

	"github.com/sdscout/sdscout/internal/scout/common/log"
	"github.com/sdscout/sdscout/internal/scout/domain"
)

const (
	takeoverMinScore    = 50
	takeoverStatusBonus = 20
	takeoverBaseCap     = 90
)

// TakeoverProber scores candidate hosts against the fingerprint catalog
// over HTTPS and HTTP. Network failures on one scheme don't prevent the
// other from being tried; a host with no reachable scheme yields no
// finding.
type TakeoverProber struct {
	catalog domain.FingerprintCatalog
	fetcher BodyFetcher
	logger  log.Logger
}

// NewTakeoverProber creates a prober from a validated catalog.
func NewTakeoverProber(catalog domain.FingerprintCatalog, fetcher BodyFetcher, logger log.Logger) *TakeoverProber {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &TakeoverProber{catalog: catalog, fetcher: fetcher, logger: logger}
}

// Check probes hostname and returns the best finding across both schemes,
// or nil when nothing scores at least the candidate threshold.
func (p *TakeoverProber) Check(ctx context.Context, hostname string) *domain.TakeoverFinding {
	var best *domain.TakeoverFinding
	bestScore := -1

	for _, scheme := range []string{"https", "http"} {
		url := scheme + "://" + hostname + "/"
		statusCode, body, err := p.fetcher.Fetch(ctx, url)
		if err != nil {
			continue
		}

		for _, fp := range p.catalog.Fingerprints {
			score, matched := scoreFingerprint(body, statusCode, fp)
			if score < takeoverMinScore {
				continue
			}
			if score > bestScore {
				bestScore = score
				best = &domain.TakeoverFinding{
					Service:            fp.Service,
					Confidence:         confidenceLabel(score),
					Score:              score,
					FingerprintVersion: p.catalog.Version,
					MatchedPattern:     matched,
					StatusCode:         statusCode,
					URL:                url,
				}
			}
		}
	}

	if best != nil {
		p.logger.Debug(map[string]any{
			"host":    hostname,
			"service": best.Service,
			"score":   best.Score,
		}, "takeover fingerprint matched")
	}
	return best
}

// scoreFingerprint computes the match score for one fingerprint against a
// response. Body matching is substring-based against the already-lowercased
// capped body.
func scoreFingerprint(body string, statusCode int, fp domain.Fingerprint) (int, string) {
	var matched []string
	for _, pattern := range fp.BodySubstrings {
		if strings.Contains(body, pattern) {
			matched = append(matched, pattern)
		}
	}
	if len(matched) == 0 {
		return 0, ""
	}

	perPattern := 70 / len(fp.BodySubstrings)
	if perPattern < 20 {
		perPattern = 20
	}
	score := perPattern * len(matched)
	if score > takeoverBaseCap {
		score = takeoverBaseCap
	}

	if len(fp.StatusCodes) > 0 && containsCode(fp.StatusCodes, statusCode) {
		score += takeoverStatusBonus
		if score > 100 {
			score = 100
		}
	}
	return score, matched[0]
}

func confidenceLabel(score int) string {
	switch {
	case score >= 90:
		return "high"
	case score >= 70:
		return "medium"
	default:
		return "low"
	}
}

func containsCode(codes []int, code int) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
