// Package scanner drives the subdomain scan: label dedup, bounded-
// concurrency dispatch, retry with exponential backoff, wildcard and
// takeover classification, and streaming NDJSON output.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/sdscout/sdscout/internal/scout/common/clock"
	"github.com/sdscout/sdscout/internal/scout/common/log"
	"github.com/sdscout/sdscout/internal/scout/domain"
)

// Options configures a scan session.
type Options struct {
	// required
	Domain   string
	Resolver HostResolver
	// optional
	Wildcard     *WildcardDetector
	Takeover     *TakeoverProber
	Concurrency  int
	Retries      int
	RetryBackoff time.Duration
	// StatusFilter, when non-nil, restricts which statuses are written.
	StatusFilter map[domain.Status]struct{}
	// IncludeCNAME reclassifies not_found records that carry a CNAME
	// chain. Only meaningful with the custom resolver.
	IncludeCNAME bool
	// ResumeSeen holds labels already present in the prior output.
	ResumeSeen map[string]struct{}
	// CTLabels are certificate-transparency sourced labels appended after
	// the wordlist.
	CTLabels []string
	Clock    clock.Clock
	Logger   log.Logger
	// Sleep is the backoff sleeper, injectable for tests.
	Sleep func(time.Duration)
}

// Summary is the aggregate accounting for one scan.
type Summary struct {
	Attempted             int
	Resolved              int
	NotFound              int
	Errors                int
	Wildcards             int
	CNAMEOnly             int
	TakeoverChecked       int
	TakeoverSuspected     int
	Written               int
	LabelsTotal           int
	LabelsUnique          int
	LabelsDeduped         int
	LabelsSkippedExisting int
	CTLabels              int
	ElapsedMS             int64
}

// Scanner owns one scan session's moving parts: the worker pool, the
// wildcard cache and the counters. The output sink is owned by the caller
// and written by exactly one goroutine here.
type Scanner struct {
	opts Options
}

// New validates options and creates a Scanner.
func New(opts Options) (*Scanner, error) {
	if opts.Domain == "" {
		return nil, fmt.Errorf("scan domain must be non-empty")
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("scan requires a resolver")
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0")
	}
	for st := range opts.StatusFilter {
		if !st.IsValid() {
			return nil, fmt.Errorf("unknown status in filter: %q", st)
		}
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	return &Scanner{opts: opts}, nil
}

// Run scans the given wordlist labels (plus any configured CT labels)
// and streams passing records to sink. Labels must already be normalized.
// Output order follows completion order, not input order.
func (s *Scanner) Run(ctx context.Context, labels []string, sink Sink) (Summary, error) {
	start := s.opts.Clock.Now()
	summary := Summary{CTLabels: len(s.opts.CTLabels)}

	work := s.dedupe(labels, &summary)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var writeErr error
	if s.opts.Concurrency == 1 {
		for _, label := range work {
			res := s.process(ctx, label)
			if err := s.emit(res, sink, &summary); err != nil {
				writeErr = err
				break
			}
		}
	} else {
		writeErr = s.runPool(ctx, cancel, work, sink, &summary)
	}

	summary.ElapsedMS = clock.ElapsedMS(s.opts.Clock, start)
	if writeErr != nil {
		return summary, fmt.Errorf("output write failed: %w", writeErr)
	}
	return summary, nil
}

// dedupe applies the seen-set and resume-set to the incoming label
// stream, accumulating the label counters.
func (s *Scanner) dedupe(labels []string, summary *Summary) []string {
	seen := make(map[string]struct{})
	var work []string

	consume := func(label string) {
		summary.LabelsTotal++
		if _, dup := seen[label]; dup {
			summary.LabelsDeduped++
			return
		}
		seen[label] = struct{}{}
		summary.LabelsUnique++
		if _, done := s.opts.ResumeSeen[label]; done {
			summary.LabelsSkippedExisting++
			return
		}
		work = append(work, label)
	}

	for _, label := range labels {
		consume(label)
	}
	for _, label := range s.opts.CTLabels {
		consume(label)
	}
	return work
}

// runPool dispatches work across exactly Concurrency workers. Results
// funnel through a single collector so the sink sees a totally ordered
// write sequence and counters stay single-threaded.
func (s *Scanner) runPool(ctx context.Context, cancel context.CancelFunc, work []string, sink Sink, summary *Summary) error {
	jobs := make(chan string)
	results := make(chan domain.ScanResult)

	var wg sync.WaitGroup
	for i := 0; i < s.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for label := range jobs {
				results <- s.process(ctx, label)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, label := range work {
			select {
			case jobs <- label:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var writeErr error
	for res := range results {
		if writeErr != nil {
			continue // drain
		}
		if err := s.emit(res, sink, summary); err != nil {
			writeErr = err
			cancel()
		}
	}
	return writeErr
}

// process runs the full per-record sequence: resolve with retries, then
// wildcard reclassification, then CNAME-only reclassification, then the
// takeover probe.
func (s *Scanner) process(ctx context.Context, label string) domain.ScanResult {
	fqdn := label + "." + s.opts.Domain
	res := s.resolveWithRetry(ctx, fqdn)

	if res.Status == domain.StatusResolved && len(res.IPs) > 0 && s.opts.Wildcard != nil {
		if s.opts.Wildcard.IsWildcard(ctx, fqdn, res.IPs) {
			res.Status = domain.StatusWildcard
		}
	}

	if res.Status == domain.StatusNotFound && s.opts.IncludeCNAME && len(res.CNAMEs) > 0 {
		res.Status = domain.StatusCNAME
	}

	if s.opts.Takeover != nil && takeoverEligible(res.Status) {
		res.Takeover = s.opts.Takeover.Check(ctx, fqdn)
	}

	return res
}

func takeoverEligible(status domain.Status) bool {
	return status == domain.StatusResolved || status == domain.StatusWildcard
}

// resolveWithRetry applies the retry policy: transient failures are
// retried up to Retries times with exponential backoff, everything else
// terminates the attempt loop immediately.
func (s *Scanner) resolveWithRetry(ctx context.Context, fqdn string) domain.ScanResult {
	start := s.opts.Clock.Now()
	retries := 0

	for attempt := 0; ; attempt++ {
		host, err := s.opts.Resolver.Resolve(ctx, fqdn)
		elapsed := clock.ElapsedMS(s.opts.Clock, start)

		if err == nil {
			status := domain.StatusResolved
			if len(host.IPs) == 0 {
				status = domain.StatusNotFound
			}
			res := domain.NewScanResult(fqdn, status, host.IPs, elapsed, retries)
			fillHostDetails(&res, host)
			return res
		}

		rerr := asResolveError(err)
		if rerr.Kind == domain.ErrKindNXDomain {
			return domain.NewScanResult(fqdn, domain.StatusNotFound, nil, elapsed, retries)
		}

		if rerr.Retryable() && attempt < s.opts.Retries {
			if s.opts.RetryBackoff > 0 {
				s.opts.Sleep(s.opts.RetryBackoff << attempt)
			}
			retries++
			continue
		}

		res := domain.NewScanResult(fqdn, domain.StatusError, nil, elapsed, retries)
		res.Error = rerr.Error()
		res.ErrorType = rerr.ErrorType()
		if code, ok := errorCode(rerr); ok {
			res.ErrorCode = &code
		}
		return res
	}
}

// asResolveError coerces any resolver failure into the typed taxonomy.
func asResolveError(err error) *domain.ResolveError {
	var rerr *domain.ResolveError
	if errors.As(err, &rerr) {
		return rerr
	}
	return domain.NewOSError(err)
}

// errorCode extracts the numeric error code where one exists: the DNS
// RCODE, or the OS errno.
func errorCode(rerr *domain.ResolveError) (int, bool) {
	if rerr.Kind == domain.ErrKindDNS {
		return int(rerr.RCode), true
	}
	var errno syscall.Errno
	if rerr.Err != nil && errors.As(rerr.Err, &errno) {
		return int(errno), true
	}
	return 0, false
}

// fillHostDetails copies resolver detail fields onto the record. The
// system resolver never populates these.
func fillHostDetails(res *domain.ScanResult, host domain.ResolvedHost) {
	if len(host.CNAMEs) > 0 {
		res.CNAMEs = host.CNAMEs
		res.CanonicalTarget = host.CanonicalTarget()
	}
	if len(host.RecordTypes) > 0 {
		types := make([]string, 0, len(host.RecordTypes))
		for _, t := range host.RecordTypes {
			types = append(types, t.String())
		}
		res.DNSRecordTypes = types
	}
	if host.HasTTL {
		ttlMin, ttlMax := host.TTLMin, host.TTLMax
		res.TTLMin = &ttlMin
		res.TTLMax = &ttlMax
	}
}

// emit applies the status filter, writes the record and updates counters.
func (s *Scanner) emit(res domain.ScanResult, sink Sink, summary *Summary) error {
	summary.Attempted++
	switch res.Status {
	case domain.StatusResolved:
		summary.Resolved++
	case domain.StatusNotFound:
		summary.NotFound++
	case domain.StatusError:
		summary.Errors++
	case domain.StatusWildcard:
		summary.Wildcards++
	case domain.StatusCNAME:
		summary.CNAMEOnly++
	}
	if s.opts.Takeover != nil && takeoverEligible(res.Status) {
		summary.TakeoverChecked++
		if res.Takeover != nil {
			summary.TakeoverSuspected++
		}
	}

	if s.opts.StatusFilter != nil {
		if _, pass := s.opts.StatusFilter[res.Status]; !pass {
			return nil
		}
	}
	if err := sink.Write(res); err != nil {
		return err
	}
	summary.Written++
	return nil
}
