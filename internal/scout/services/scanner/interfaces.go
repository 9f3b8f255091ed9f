package scanner

import (
	"context"

	"github.com/sdscout/sdscout/internal/scout/domain"
)

// HostResolver resolves one FQDN to its addresses. The two
// implementations are the OS address-info lookup and the built-in DNS
// client pinned to custom nameservers; only the latter can observe CNAME
// chains and TTLs.
type HostResolver interface {
	Resolve(ctx context.Context, fqdn string) (domain.ResolvedHost, error)
}

// BodyFetcher fetches a URL and returns (status, lowercased capped body).
// Implemented by gateways/httpfetch; takeover probing and wildcard
// verification both consume it.
type BodyFetcher interface {
	Fetch(ctx context.Context, url string) (int, string, error)
}

// HostDetailsClient is the seam to the built-in DNS client.
type HostDetailsClient interface {
	ResolveHostDetails(ctx context.Context, name string) (domain.ResolvedHost, error)
}
