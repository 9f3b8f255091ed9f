package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sdscout/sdscout/internal/scout/common/log"
	"github.com/sdscout/sdscout/internal/scout/common/utils"
	"github.com/sdscout/sdscout/internal/scout/gateways/ct"
	"github.com/sdscout/sdscout/internal/scout/repos/ctcache"
)

type ctConfig struct {
	domain      string
	limit       int
	timeout     time.Duration
	cachePath   string
	jsonSummary bool
}

func newCTCommand() *cobra.Command {
	cfg := &ctConfig{}

	cmd := &cobra.Command{
		Use:   "ct",
		Short: "List subdomains found in certificate-transparency logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCT(cmd, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.domain, "domain", "", "apex domain to query (required)")
	flags.IntVar(&cfg.limit, "limit", -1, "max names to emit (-1 = unlimited)")
	flags.DurationVar(&cfg.timeout, "timeout", 10*time.Second, "CT endpoint timeout")
	flags.StringVar(&cfg.cachePath, "cache", "", "bbolt file caching CT results (empty disables)")
	flags.BoolVar(&cfg.jsonSummary, "json-summary", false, "emit the summary as a JSON line")
	_ = cmd.MarkFlagRequired("domain")

	return cmd
}

func runCT(cmd *cobra.Command, cfg *ctConfig) error {
	apex, err := utils.NormalizeDomain(cfg.domain)
	if err != nil {
		return usageErr(err)
	}

	var cache *ctcache.Cache
	if cfg.cachePath != "" {
		cache, err = ctcache.Open(cfg.cachePath)
		if err != nil {
			return usageErr(fmt.Errorf("failed to open ct cache: %w", err))
		}
		defer cache.Close()
	}

	client := ct.New(ct.Options{
		Timeout:   cfg.timeout,
		UserAgent: userAgent,
		Cache:     cache,
		Logger:    log.GetLogger(),
	})

	subdomains, summary, err := client.FetchSubdomains(cmd.Context(), apex, cfg.limit)
	if err != nil {
		return failureErr(err)
	}

	for _, name := range subdomains {
		fmt.Fprintln(os.Stdout, name)
	}

	if cfg.jsonSummary {
		writeJSONSummary(map[string]any{
			"kind":            "ct_summary",
			"schema_version":  summarySchemaVersion,
			"records_fetched": summary.RecordsFetched,
			"names_seen":      summary.NamesSeen,
			"emitted":         summary.Emitted,
			"elapsed_ms":      summary.ElapsedMS,
			"from_cache":      summary.FromCache,
		})
	} else {
		fmt.Fprintf(os.Stderr, "ct records_fetched=%d names_seen=%d emitted=%d elapsed_ms=%d\n",
			summary.RecordsFetched, summary.NamesSeen, summary.Emitted, summary.ElapsedMS)
	}
	return nil
}
