package scanner

import (
	"context"
	"errors"
	"net"

	"github.com/sdscout/sdscout/internal/scout/domain"
)

// SystemResolver resolves through the host's address-info lookup. CNAME
// chains and TTLs are invisible on this path.
type SystemResolver struct {
	resolver *net.Resolver
}

// NewSystemResolver returns a resolver backed by the OS lookup machinery.
func NewSystemResolver() *SystemResolver {
	return &SystemResolver{resolver: net.DefaultResolver}
}

// Resolve looks up fqdn, deduplicating sockaddrs in first-seen order.
func (s *SystemResolver) Resolve(ctx context.Context, fqdn string) (domain.ResolvedHost, error) {
	addrs, err := s.resolver.LookupIPAddr(ctx, fqdn)
	if err != nil {
		return domain.ResolvedHost{}, classifyLookupError(err)
	}

	var host domain.ResolvedHost
	seen := make(map[string]struct{})
	for _, addr := range addrs {
		ip := addr.IP.String()
		if _, dup := seen[ip]; dup {
			continue
		}
		seen[ip] = struct{}{}
		host.IPs = append(host.IPs, ip)
	}
	return host, nil
}

// classifyLookupError maps OS lookup failures onto the typed taxonomy:
// "name not found" is not_found, "try again" is retryable, the rest are
// permanent lookup errors.
func classifyLookupError(err error) *domain.ResolveError {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		switch {
		case dnsErr.IsNotFound:
			return &domain.ResolveError{Kind: domain.ErrKindNXDomain, Err: err, Msg: dnsErr.Error()}
		case dnsErr.IsTimeout:
			return domain.NewTimeoutError(err)
		case dnsErr.IsTemporary:
			return &domain.ResolveError{Kind: domain.ErrKindTryAgain, Err: err, Msg: dnsErr.Error()}
		default:
			return &domain.ResolveError{Kind: domain.ErrKindLookup, Err: err, Msg: dnsErr.Error()}
		}
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return domain.NewTimeoutError(err)
	}
	return domain.NewOSError(err)
}

// CustomResolver adapts the built-in DNS client to the HostResolver seam.
type CustomResolver struct {
	client HostDetailsClient
}

// NewCustomResolver wraps the dnsclient.
func NewCustomResolver(client HostDetailsClient) *CustomResolver {
	return &CustomResolver{client: client}
}

func (c *CustomResolver) Resolve(ctx context.Context, fqdn string) (domain.ResolvedHost, error) {
	return c.client.ResolveHostDetails(ctx, fqdn)
}
