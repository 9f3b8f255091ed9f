package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sdscout/sdscout/internal/scout/services/diff"
)

type diffConfig struct {
	resolvedOnly  bool
	skipInvalid   bool
	failOnChanges bool
	jsonSummary   bool
}

func newDiffCommand() *cobra.Command {
	cfg := &diffConfig{}

	cmd := &cobra.Command{
		Use:   "diff OLD NEW",
		Short: "Compare two scan outputs and emit change events",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cfg, args[0], args[1])
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&cfg.resolvedOnly, "resolved-only", false, "compare only records with status=resolved")
	flags.BoolVar(&cfg.skipInvalid, "skip-invalid", false, "skip unparseable lines instead of failing")
	flags.BoolVar(&cfg.failOnChanges, "fail-on-changes", false, "exit non-zero when anything was added, removed or changed")
	flags.BoolVar(&cfg.jsonSummary, "json-summary", false, "emit the summary as a JSON line")

	return cmd
}

func runDiff(cfg *diffConfig, oldPath, newPath string) error {
	oldRecs, err := loadDiffInput(oldPath, cfg)
	if err != nil {
		return usageErr(err)
	}
	newRecs, err := loadDiffInput(newPath, cfg)
	if err != nil {
		return usageErr(err)
	}

	summary, events := diff.Compute(oldRecs, newRecs)

	enc := json.NewEncoder(os.Stdout)
	for _, event := range events {
		if err := enc.Encode(event); err != nil {
			return failureErr(err)
		}
	}

	if cfg.jsonSummary {
		writeJSONSummary(map[string]any{
			"kind":           "diff_summary",
			"schema_version": summarySchemaVersion,
			"old_total":      summary.OldTotal,
			"new_total":      summary.NewTotal,
			"added":          summary.Added,
			"removed":        summary.Removed,
			"changed":        summary.Changed,
			"unchanged":      summary.Unchanged,
		})
	} else {
		fmt.Fprintf(os.Stderr, "diffed old=%d new=%d added=%d removed=%d changed=%d unchanged=%d\n",
			summary.OldTotal, summary.NewTotal, summary.Added, summary.Removed, summary.Changed, summary.Unchanged)
	}

	if cfg.failOnChanges && summary.HasChanges() {
		return &exitError{code: exitFailure}
	}
	return nil
}

func loadDiffInput(path string, cfg *diffConfig) (map[string]diff.RecordView, error) {
	var r io.Reader
	src := path
	if path == "-" {
		r = os.Stdin
		src = "stdin"
	} else {
		fh, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer fh.Close()
		r = fh
	}
	return diff.Load(r, src, cfg.resolvedOnly, cfg.skipInvalid)
}
