package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sdscout/sdscout/internal/scout/common/log"
	"github.com/sdscout/sdscout/internal/scout/common/utils"
	"github.com/sdscout/sdscout/internal/scout/config"
	"github.com/sdscout/sdscout/internal/scout/domain"
	"github.com/sdscout/sdscout/internal/scout/gateways/ct"
	"github.com/sdscout/sdscout/internal/scout/gateways/dnsclient"
	"github.com/sdscout/sdscout/internal/scout/gateways/httpfetch"
	"github.com/sdscout/sdscout/internal/scout/repos/ctcache"
	"github.com/sdscout/sdscout/internal/scout/services/scanner"
)

func newScanCommand() *cobra.Command {
	cfg := &config.ScanConfig{}

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan subdomains of a domain from a wordlist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.Domain, "domain", "", "apex domain to scan (required)")
	flags.StringVar(&cfg.Wordlist, "wordlist", "", "wordlist path, '-' for stdin (required)")
	flags.StringVar(&cfg.Out, "out", "subdomains.jsonl", "output path, '-' for stdout")
	flags.DurationVar(&cfg.Timeout, "timeout", 3*time.Second, "per-query DNS timeout")
	flags.IntVar(&cfg.Concurrency, "concurrency", 20, "number of parallel resolver workers")
	flags.IntVar(&cfg.Retries, "retries", 0, "retries per label on transient errors")
	flags.DurationVar(&cfg.RetryBackoff, "retry-backoff", 100*time.Millisecond, "initial retry backoff, doubled per retry (0 disables sleeping)")
	flags.StringSliceVar(&cfg.Statuses, "status", nil, "only write records with these statuses")
	flags.BoolVar(&cfg.OnlyResolved, "only-resolved", false, "only write records with status=resolved")
	flags.BoolVar(&cfg.WildcardDetect, "wildcard-detect", true, "classify wildcard DNS answers")
	flags.IntVar(&cfg.WildcardProbes, "wildcard-probes", 3, "random probes fired per zone")
	flags.IntVar(&cfg.WildcardThreshold, "wildcard-threshold", 2, "probe agreement needed to call a zone wildcard")
	flags.BoolVar(&cfg.WildcardHTTP, "wildcard-http-verify", false, "suppress wildcard matches whose HTTP content differs from the zone's")
	flags.BoolVar(&cfg.Takeover, "takeover", false, "probe resolved hosts for dangling-CNAME takeover fingerprints")
	flags.StringVar(&cfg.Fingerprints, "fingerprints", "", "takeover fingerprint catalog JSON file (default embedded catalog)")
	flags.StringSliceVar(&cfg.Resolvers, "resolver", nil, "custom nameserver ip[:port], repeatable")
	flags.StringVar(&cfg.ResolverFile, "resolver-file", "", "file with one nameserver spec per line")
	flags.BoolVar(&cfg.IncludeCNAME, "include-cname", false, "emit cname status for names with only a CNAME chain (custom resolvers only)")
	flags.BoolVar(&cfg.Resume, "resume", false, "skip labels already present in the output file and append")
	flags.BoolVar(&cfg.CT, "ct", false, "augment the wordlist from certificate-transparency logs")
	flags.IntVar(&cfg.CTLimit, "ct-limit", -1, "max CT names to take (-1 = unlimited)")
	flags.StringVar(&cfg.CTCache, "ct-cache", "", "bbolt file caching CT results (empty disables)")
	flags.BoolVar(&cfg.JSONSummary, "json-summary", false, "emit the summary as a JSON line")
	_ = cmd.MarkFlagRequired("domain")
	_ = cmd.MarkFlagRequired("wordlist")

	return cmd
}

func runScan(ctx context.Context, cfg *config.ScanConfig) error {
	if err := cfg.Validate(); err != nil {
		return usageErr(err)
	}

	apex, err := utils.NormalizeDomain(cfg.Domain)
	if err != nil {
		return usageErr(err)
	}
	if reg := utils.RegistrableDomain(apex); reg != apex {
		log.Warn(map[string]any{
			"domain":      apex,
			"registrable": reg,
		}, "scan target is itself a subdomain of a registrable domain")
	}

	resolvers, err := loadResolvers(cfg)
	if err != nil {
		return usageErr(err)
	}

	hostResolver, err := buildResolver(resolvers, cfg.Timeout)
	if err != nil {
		return usageErr(err)
	}

	labels, err := loadWordlist(cfg.Wordlist)
	if err != nil {
		return usageErr(err)
	}

	ctLabels, err := loadCTLabels(ctx, cfg, apex)
	if err != nil {
		return failureErr(err)
	}

	statusFilter, err := buildStatusFilter(cfg)
	if err != nil {
		return usageErr(err)
	}

	var resumeSeen map[string]struct{}
	if cfg.Resume {
		resumeSeen, err = scanner.LoadResumeFile(cfg.Out, apex)
		if err != nil {
			return usageErr(err)
		}
	}

	fetcher := httpfetch.New(httpfetch.Options{Timeout: cfg.Timeout, UserAgent: userAgent})

	var prober *scanner.TakeoverProber
	if cfg.Takeover {
		catalog := domain.DefaultFingerprintCatalog()
		if cfg.Fingerprints != "" {
			catalog, err = domain.LoadFingerprintCatalog(cfg.Fingerprints)
			if err != nil {
				return usageErr(err)
			}
		}
		prober = scanner.NewTakeoverProber(catalog, fetcher, log.GetLogger())
	}

	var wildcard *scanner.WildcardDetector
	if cfg.WildcardDetect {
		wildcard, err = scanner.NewWildcardDetector(scanner.WildcardOptions{
			Resolver:   hostResolver,
			Probes:     cfg.WildcardProbes,
			Threshold:  cfg.WildcardThreshold,
			HTTPVerify: cfg.WildcardHTTP,
			Fetcher:    fetcher,
			Logger:     log.GetLogger(),
		})
		if err != nil {
			return usageErr(err)
		}
	}

	sink, err := openSink(cfg.Out, cfg.Resume)
	if err != nil {
		return usageErr(err)
	}

	scan, err := scanner.New(scanner.Options{
		Domain:       apex,
		Resolver:     hostResolver,
		Wildcard:     wildcard,
		Takeover:     prober,
		Concurrency:  cfg.Concurrency,
		Retries:      cfg.Retries,
		RetryBackoff: cfg.RetryBackoff,
		StatusFilter: statusFilter,
		IncludeCNAME: cfg.IncludeCNAME,
		ResumeSeen:   resumeSeen,
		CTLabels:     ctLabels,
		Logger:       log.GetLogger(),
	})
	if err != nil {
		_ = sink.Close(false)
		return usageErr(err)
	}

	summary, runErr := scan.Run(ctx, labels, sink)
	if closeErr := sink.Close(runErr == nil); closeErr != nil && runErr == nil {
		runErr = closeErr
	}
	if runErr != nil {
		return failureErr(runErr)
	}

	printScanSummary(summary, cfg)
	if summary.Errors > 0 {
		return &exitError{code: exitFailure}
	}
	return nil
}

// loadResolvers merges --resolver flags with --resolver-file entries,
// deduplicated in order.
func loadResolvers(cfg *config.ScanConfig) ([]domain.Nameserver, error) {
	resolvers, err := domain.ParseNameservers(cfg.Resolvers)
	if err != nil {
		return nil, err
	}
	if cfg.ResolverFile != "" {
		fromFile, err := domain.LoadNameserverFile(cfg.ResolverFile)
		if err != nil {
			return nil, err
		}
		seen := make(map[domain.Nameserver]struct{}, len(resolvers))
		for _, ns := range resolvers {
			seen[ns] = struct{}{}
		}
		for _, ns := range fromFile {
			if _, dup := seen[ns]; !dup {
				resolvers = append(resolvers, ns)
			}
		}
	}
	return resolvers, nil
}

// buildResolver picks the custom DNS client when nameservers are pinned,
// otherwise the OS lookup.
func buildResolver(resolvers []domain.Nameserver, timeout time.Duration) (scanner.HostResolver, error) {
	if len(resolvers) == 0 {
		return scanner.NewSystemResolver(), nil
	}
	client, err := dnsclient.New(dnsclient.Options{
		Servers: resolvers,
		Timeout: timeout,
		Logger:  log.GetLogger(),
	})
	if err != nil {
		return nil, err
	}
	return scanner.NewCustomResolver(client), nil
}

func loadWordlist(path string) ([]string, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		fh, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer fh.Close()
		r = fh
	}
	return scanner.ReadLabels(r)
}

// loadCTLabels fetches CT names when --ct is set. A CT failure aborts the
// scan before any resolution starts.
func loadCTLabels(ctx context.Context, cfg *config.ScanConfig, apex string) ([]string, error) {
	if !cfg.CT {
		return nil, nil
	}

	var cache *ctcache.Cache
	if cfg.CTCache != "" {
		var err error
		cache, err = ctcache.Open(cfg.CTCache)
		if err != nil {
			return nil, fmt.Errorf("failed to open ct cache: %w", err)
		}
		defer cache.Close()
	}

	client := ct.New(ct.Options{
		Timeout:   cfg.Timeout,
		UserAgent: userAgent,
		Cache:     cache,
		Logger:    log.GetLogger(),
	})
	subdomains, summary, err := client.FetchSubdomains(ctx, apex, cfg.CTLimit)
	if err != nil {
		return nil, err
	}
	log.Info(map[string]any{
		"records_fetched": summary.RecordsFetched,
		"names_seen":      summary.NamesSeen,
		"emitted":         summary.Emitted,
		"from_cache":      summary.FromCache,
	}, "ct labels fetched")
	return ct.SubdomainsToLabels(subdomains, apex), nil
}

func buildStatusFilter(cfg *config.ScanConfig) (map[domain.Status]struct{}, error) {
	if cfg.OnlyResolved {
		return map[domain.Status]struct{}{domain.StatusResolved: {}}, nil
	}
	if len(cfg.Statuses) == 0 {
		return nil, nil
	}
	filter := make(map[domain.Status]struct{}, len(cfg.Statuses))
	for _, s := range cfg.Statuses {
		st, err := domain.ParseStatus(s)
		if err != nil {
			return nil, err
		}
		filter[st] = struct{}{}
	}
	return filter, nil
}

func openSink(out string, resume bool) (scanner.Sink, error) {
	if out == "-" {
		return scanner.NewWriterSink(os.Stdout), nil
	}
	return scanner.NewFileSink(out, resume)
}

func printScanSummary(s scanner.Summary, cfg *config.ScanConfig) {
	dest := cfg.Out
	if dest == "-" {
		dest = "stdout"
	}
	if cfg.JSONSummary {
		writeJSONSummary(map[string]any{
			"kind":                    "scan_summary",
			"schema_version":          summarySchemaVersion,
			"attempted":               s.Attempted,
			"resolved":                s.Resolved,
			"not_found":               s.NotFound,
			"error":                   s.Errors,
			"wildcard":                s.Wildcards,
			"cname":                   s.CNAMEOnly,
			"written":                 s.Written,
			"labels_total":            s.LabelsTotal,
			"labels_unique":           s.LabelsUnique,
			"labels_deduped":          s.LabelsDeduped,
			"labels_skipped_existing": s.LabelsSkippedExisting,
			"ct_labels":               s.CTLabels,
			"takeover_checked":        s.TakeoverChecked,
			"takeover_suspected":      s.TakeoverSuspected,
			"elapsed_ms":              s.ElapsedMS,
			"out":                     dest,
		})
		return
	}
	fmt.Fprintf(os.Stderr,
		"scanned attempted=%d resolved=%d not_found=%d error=%d wildcard=%d cname=%d wrote=%d elapsed_ms=%d out=%s\n",
		s.Attempted, s.Resolved, s.NotFound, s.Errors, s.Wildcards, s.CNAMEOnly, s.Written, s.ElapsedMS, dest)
}
