// Package dnsclient is a stub-resolver DNS client: it sends RD=1 queries
// to pinned recursive nameservers over UDP, retries over TCP when a
// response is truncated, fails over across servers in order, and follows
// CNAME chains up to a configured depth.
package dnsclient

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/sdscout/sdscout/internal/scout/common/log"
	"github.com/sdscout/sdscout/internal/scout/domain"
	"github.com/sdscout/sdscout/internal/scout/gateways/wire"
)

const (
	defaultTimeout       = 3 * time.Second
	defaultMaxCNAMEDepth = 8
	udpReadBufferSize    = 4096
)

// DialFunc establishes a network connection. Injectable for testing.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Options defines configuration parameters for the DNS client.
// It includes the pinned nameserver list, the per-query timeout, the
// CNAME chase depth, and injectable dial/logging hooks for testing.
type Options struct {
	// Servers is the ordered list of pinned nameservers. Required.
	Servers []domain.Nameserver
	// Timeout bounds each individual UDP or TCP exchange.
	Timeout time.Duration
	// MaxCNAMEDepth limits how many CNAME hops a resolve will follow.
	MaxCNAMEDepth int
	// Dial creates network connections; injectable for testing.
	Dial DialFunc
	// Logger receives per-query diagnostics.
	Logger log.Logger
}

// Client resolves hostnames against a fixed nameserver list. It handles
// the low-level networking concerns of DNS over UDP and TCP while the
// wire package owns message encoding and decoding.
type Client struct {
	servers       []domain.Nameserver // pinned recursive servers, tried in order
	timeout       time.Duration       // per-exchange deadline
	maxCNAMEDepth int                 // CNAME chase limit
	dial          DialFunc            // connection factory
	logger        log.Logger
}

// New creates a Client with the specified options.
// Returns an error if the server list is empty. Sets the default timeout,
// chase depth, dialer and logger when not provided.
func New(opts Options) (*Client, error) {
	if len(opts.Servers) == 0 {
		return nil, fmt.Errorf("no nameservers provided")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxCNAMEDepth <= 0 {
		opts.MaxCNAMEDepth = defaultMaxCNAMEDepth
	}
	if opts.Dial == nil {
		opts.Dial = (&net.Dialer{}).DialContext
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Client{
		servers:       opts.Servers,
		timeout:       opts.Timeout,
		maxCNAMEDepth: opts.MaxCNAMEDepth,
		dial:          opts.Dial,
		logger:        opts.Logger,
	}, nil
}

// ResolveHostDetails resolves name to a ResolvedHost, following CNAME
// chains. NXDOMAIN and empty answer sets return an empty-IP ResolvedHost
// and a nil error; the caller decides the final status.
func (c *Client) ResolveHostDetails(ctx context.Context, name string) (domain.ResolvedHost, error) {
	var host domain.ResolvedHost
	// Accumulators across the whole chain walk: IPs in first-seen order,
	// visited names for the loop guard, and TTL bounds from address records.
	seenIP := make(map[string]struct{})
	visited := map[string]struct{}{strings.Trim(strings.ToLower(name), "."): {}}
	var sawA, sawAAAA bool
	ttlMin, ttlMax := uint32(0), uint32(0)
	hasTTL := false

	current := name
	for depth := 0; depth <= c.maxCNAMEDepth; depth++ {
		gotIPs := false
		var cnameTarget string

		// Query both A and AAAA for the current name, like getaddrinfo.
		for _, qtype := range domain.QueryTypes {
			resp, err := c.query(ctx, current, qtype)
			if err != nil {
				return domain.ResolvedHost{}, err
			}

			// Union answers into the accumulator, preserving first-seen
			// order and tracking TTL bounds.
			for _, addr := range resp.Addresses {
				if qtype == domain.RRTypeA {
					sawA = true
				} else {
					sawAAAA = true
				}
				if !hasTTL || addr.TTL < ttlMin {
					ttlMin = addr.TTL
				}
				if !hasTTL || addr.TTL > ttlMax {
					ttlMax = addr.TTL
				}
				hasTTL = true
				if _, dup := seenIP[addr.IP]; dup {
					continue
				}
				seenIP[addr.IP] = struct{}{}
				host.IPs = append(host.IPs, addr.IP)
				gotIPs = true
			}

			// Append new CNAMEs to the chain, deduped against the last
			// entry (the AAAA response repeats the A response's chain).
			for _, target := range resp.CNAMEs {
				if len(host.CNAMEs) > 0 && host.CNAMEs[len(host.CNAMEs)-1] == target {
					continue
				}
				host.CNAMEs = append(host.CNAMEs, target)
				cnameTarget = target
			}
		}

		// Any IPs collected means the chain terminated in address records.
		if gotIPs || len(host.IPs) > 0 {
			break
		}
		// No IPs and no CNAME target: the name simply has no answers.
		if cnameTarget == "" {
			break
		}
		// Re-entering a visited name would loop forever; stop with the
		// chain collected so far and empty IPs.
		if _, loop := visited[cnameTarget]; loop {
			c.logger.Debug(map[string]any{
				"name":   name,
				"target": cnameTarget,
			}, "cname chain loop, stopping")
			break
		}
		visited[cnameTarget] = struct{}{}
		current = cnameTarget
	}

	host.TTLMin, host.TTLMax, host.HasTTL = ttlMin, ttlMax, hasTTL
	// Emit observed record types in the canonical A, AAAA, CNAME order.
	if sawA {
		host.RecordTypes = append(host.RecordTypes, domain.RRTypeA)
	}
	if sawAAAA {
		host.RecordTypes = append(host.RecordTypes, domain.RRTypeAAAA)
	}
	if len(host.CNAMEs) > 0 {
		host.RecordTypes = append(host.RecordTypes, domain.RRTypeCNAME)
	}
	return host, nil
}

// query tries each nameserver in order until one returns a terminal
// response. A truncated UDP response is retried over TCP against the same
// server. On total failure the last error is returned, preferring timeout
// so the retry policy sees the transient class.
func (c *Client) query(ctx context.Context, name string, qtype domain.RRType) (wire.ParsedResponse, error) {
	// lastErr is the typed error re-raised on total failure; all collects
	// every per-server failure for the diagnostic log.
	var lastErr *domain.ResolveError
	var all error

	for _, ns := range c.servers {
		resp, err := c.queryServer(ctx, ns, name, qtype)
		if err == nil {
			// A non-terminal RCODE (anything but NOERROR/NXDOMAIN) counts
			// as a server failure and moves on to the next nameserver.
			if !resp.RCode.IsTerminal() {
				rerr := domain.NewDNSError(resp.RCode)
				all = multierror.Append(all, fmt.Errorf("server %s: %w", ns, rerr))
				lastErr = preferTimeout(lastErr, rerr)
				continue
			}
			return resp, nil
		}
		// Transport or parse failure: remember it and try the next server.
		all = multierror.Append(all, fmt.Errorf("server %s: %w", ns, err))
		lastErr = preferTimeout(lastErr, asResolveError(err))
	}

	c.logger.Debug(map[string]any{
		"name":  name,
		"qtype": qtype.String(),
		"error": all.Error(),
	}, "all nameservers failed")
	return wire.ParsedResponse{}, lastErr
}

// preferTimeout keeps a timeout error over anything seen later, otherwise
// tracks the most recent failure.
func preferTimeout(prev, next *domain.ResolveError) *domain.ResolveError {
	if prev != nil && prev.Kind == domain.ErrKindTimeout {
		return prev
	}
	return next
}

// asResolveError normalizes transport errors into the typed taxonomy.
func asResolveError(err error) *domain.ResolveError {
	var rerr *domain.ResolveError
	if errors.As(err, &rerr) {
		return rerr
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return domain.NewTimeoutError(err)
	}
	return domain.NewOSError(err)
}

// queryServer performs one UDP exchange with ns, falling back to TCP on
// truncation.
func (c *Client) queryServer(ctx context.Context, ns domain.Nameserver, name string, qtype domain.RRType) (wire.ParsedResponse, error) {
	// Always try UDP first; most answers fit in a single datagram.
	resp, err := c.exchange(ctx, "udp", ns, name, qtype)
	if err != nil {
		return wire.ParsedResponse{}, err
	}
	// TC=1 means the answer was cut off: refetch over TCP from the same
	// server, which carries the full message with length framing.
	if resp.Truncated {
		c.logger.Debug(map[string]any{
			"server": ns.Addr(),
			"name":   name,
		}, "response truncated, retrying over tcp")
		return c.exchange(ctx, "tcp", ns, name, qtype)
	}
	return resp, nil
}

// exchange sends one query and reads one response over the given network.
func (c *Client) exchange(ctx context.Context, network string, ns domain.Nameserver, name string, qtype domain.RRType) (wire.ParsedResponse, error) {
	// Encode the query with a fresh transaction id per exchange.
	id, err := transactionID()
	if err != nil {
		return wire.ParsedResponse{}, domain.NewOSError(err)
	}
	msg, err := wire.EncodeQuery(id, name, qtype)
	if err != nil {
		return wire.ParsedResponse{}, domain.NewOSError(err)
	}

	// Create the connection; the socket is released on every exit path.
	conn, err := c.dial(ctx, network, ns.Addr())
	if err != nil {
		return wire.ParsedResponse{}, asResolveError(err)
	}
	defer conn.Close()

	// Bound the exchange by the client timeout or the context deadline,
	// whichever comes first.
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return wire.ParsedResponse{}, domain.NewOSError(err)
	}

	// Send the query and read one response.
	var data []byte
	if network == "tcp" {
		data, err = tcpExchange(conn, msg)
	} else {
		data, err = udpExchange(conn, msg)
	}
	if err != nil {
		return wire.ParsedResponse{}, asResolveError(err)
	}

	// Decode, validating the transaction id against what was sent.
	resp, err := wire.DecodeResponse(data, id, qtype)
	if err != nil {
		return wire.ParsedResponse{}, domain.NewMalformedError(err)
	}
	return resp, nil
}

// udpExchange sends one datagram and reads one response datagram.
func udpExchange(conn net.Conn, msg []byte) ([]byte, error) {
	if _, err := conn.Write(msg); err != nil {
		return nil, err
	}
	// One read is one complete DNS message over UDP.
	buf := make([]byte, udpReadBufferSize)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// tcpExchange frames the message with the 2-byte length prefix from
// RFC 1035 §4.2.2 and reads the framed response.
func tcpExchange(conn net.Conn, msg []byte) ([]byte, error) {
	// Prefix the message with its length and send both in one write.
	framed := make([]byte, 2+len(msg))
	binary.BigEndian.PutUint16(framed, uint16(len(msg)))
	copy(framed[2:], msg)
	if _, err := conn.Write(framed); err != nil {
		return nil, err
	}

	// Read the response length, then exactly that many bytes.
	hdr := make([]byte, 2)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return nil, err
	}
	data := make([]byte, binary.BigEndian.Uint16(hdr))
	if _, err := io.ReadFull(conn, data); err != nil {
		return nil, err
	}
	return data, nil
}

// transactionID draws a random 16-bit id. Not a secret, only a
// query/response correlator.
func transactionID() (uint16, error) {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}
