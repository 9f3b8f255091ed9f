package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sdscout/sdscout/internal/scout/common/log"
	"github.com/sdscout/sdscout/internal/scout/domain"
	"github.com/sdscout/sdscout/internal/scout/gateways/httpfetch"
	"github.com/sdscout/sdscout/internal/scout/services/scanner"
)

type takeoverConfig struct {
	host         string
	timeout      time.Duration
	fingerprints string
}

func newTakeoverCommand() *cobra.Command {
	cfg := &takeoverConfig{}

	cmd := &cobra.Command{
		Use:   "takeover",
		Short: "Probe one host for dangling-CNAME takeover fingerprints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTakeover(cmd, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.host, "host", "", "hostname to probe (required)")
	flags.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "HTTP probe timeout")
	flags.StringVar(&cfg.fingerprints, "fingerprints", "", "fingerprint catalog JSON file (default embedded catalog)")
	_ = cmd.MarkFlagRequired("host")

	return cmd
}

func runTakeover(cmd *cobra.Command, cfg *takeoverConfig) error {
	host := strings.ToLower(strings.Trim(strings.TrimSpace(cfg.host), "."))
	if host == "" {
		return usageErr(fmt.Errorf("--host must be non-empty"))
	}

	catalog := domain.DefaultFingerprintCatalog()
	if cfg.fingerprints != "" {
		var err error
		catalog, err = domain.LoadFingerprintCatalog(cfg.fingerprints)
		if err != nil {
			return usageErr(err)
		}
	}

	fetcher := httpfetch.New(httpfetch.Options{Timeout: cfg.timeout, UserAgent: userAgent})
	prober := scanner.NewTakeoverProber(catalog, fetcher, log.GetLogger())

	finding := prober.Check(cmd.Context(), host)
	if finding == nil {
		fmt.Fprintf(os.Stderr, "no takeover fingerprint matched for %s\n", host)
		return nil
	}
	return json.NewEncoder(os.Stdout).Encode(finding)
}
