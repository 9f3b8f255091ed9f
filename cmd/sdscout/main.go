// Command sdscout is an active subdomain discovery engine: it brute-forces
// labels against DNS, mines certificate-transparency logs, flags wildcard
// zones and dangling-CNAME takeover candidates, and diffs prior runs.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sdscout/sdscout/internal/scout/common/log"
	"github.com/sdscout/sdscout/internal/scout/config"
)

const (
	version = "0.2.0"
	appName = "sdscout"
)

// userAgent identifies sdscout on HTTP probes and CT fetches.
const userAgent = appName + "/" + version

// Exit codes: 0 success, 1 scan errors / diff changes / CT fetch failure,
// 2 user or validation error.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// exitError carries an explicit process exit code up to main.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// usageErr wraps a user/validation error (exit 2).
func usageErr(err error) error {
	return &exitError{code: exitUsage, err: err}
}

// failureErr wraps a runtime failure (exit 1).
func failureErr(err error) error {
	return &exitError{code: exitFailure, err: err}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitUsage)
	}

	if err := log.Configure(cfg.Env, cfg.Log.Level); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitUsage)
	}

	root := newRootCommand()
	if err := root.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			if ee.err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", ee.err)
			}
			os.Exit(ee.code)
		}
		// cobra's own errors (unknown flag, unknown command) are usage errors
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitUsage)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "Active subdomain discovery engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newScanCommand())
	root.AddCommand(newDiffCommand())
	root.AddCommand(newCTCommand())
	root.AddCommand(newTakeoverCommand())

	return root
}
