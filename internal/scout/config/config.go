// Package config loads process-level configuration from environment
// variables, with struct defaults and validation. Per-command settings
// come from flags and are validated here too.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/sdscout/sdscout/internal/scout/common/utils"
	"github.com/sdscout/sdscout/internal/scout/domain"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	Log LoggingConfig `koanf:"log" validate:"required"`
}

type LoggingConfig struct {
	// Level defines the logging level: "debug", "info", "warn", or "error".
	Level string `koanf:"level" validate:"required,oneof=debug info warn error"`
}

// DEFAULT_APP_CONFIG defines the default application configuration.
var DEFAULT_APP_CONFIG = AppConfig{
	Env: "prod",
	Log: LoggingConfig{
		Level: "warn",
	},
}

// envLoader loads environment variables with the prefix "SDSCOUT_",
// lowercased with "_" mapped to ".". Mockable in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "SDSCOUT_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, "SDSCOUT_")), "_", ".")
			return key, strings.TrimSpace(value)
		},
	}), nil)
}

// defaultLoader loads default values using the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	// Load default values using the structs provider.
	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	// Layer environment variables with prefix "SDSCOUT_" on top.
	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	// Unmarshal the merged configuration into the AppConfig struct.
	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	// Validate the configuration.
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return &cfg, nil
}

// ScanConfig is the validated per-scan configuration assembled from flags.
type ScanConfig struct {
	// Domain is the apex under which all candidate names sit.
	Domain string `validate:"required,apex_domain"`

	// Wordlist is the label source path, "-" for stdin.
	Wordlist string `validate:"required"`

	// Out is the NDJSON output path, "-" for stdout.
	// default: subdomains.jsonl
	Out string `validate:"required"`

	// Timeout bounds each DNS query.
	// default: 3s
	Timeout time.Duration `validate:"required,gt=0"`

	// Concurrency is the resolver worker count.
	// default: 20
	Concurrency int `validate:"required,gte=1"`

	// Retries is the transient-error retry budget per label.
	Retries int `validate:"gte=0"`

	// RetryBackoff is the initial backoff, doubled per retry. Zero
	// disables sleeping between attempts.
	RetryBackoff time.Duration `validate:"gte=0"`

	// Statuses restricts output to these record statuses when non-empty.
	// Mutually exclusive with OnlyResolved.
	Statuses []string `validate:"dive,scan_status"`

	// OnlyResolved is shorthand for a {resolved} status filter.
	OnlyResolved bool

	// Wildcard detection knobs; probes and threshold both need at least
	// two samples to make agreement meaningful.
	WildcardDetect    bool
	WildcardProbes    int `validate:"gte=2"`
	WildcardThreshold int `validate:"gte=2"`
	WildcardHTTP      bool

	// Takeover enables fingerprint probing; Fingerprints overrides the
	// embedded catalog with a JSON file.
	Takeover     bool
	Fingerprints string

	// Resolvers pins custom nameservers; ResolverFile merges more specs
	// from a file. Empty means the OS resolver.
	Resolvers    []string `validate:"dive,nameserver"`
	ResolverFile string

	// IncludeCNAME emits cname-status records. Requires custom resolvers,
	// since only the built-in client observes chains.
	IncludeCNAME bool

	// Resume appends to Out, skipping labels it already contains.
	Resume bool

	// CT augments the wordlist from certificate-transparency logs.
	CT      bool
	CTLimit int `validate:"gte=-1"`
	CTCache string

	// JSONSummary switches the summary line to a JSON object.
	JSONSummary bool
}

// Validate applies the struct rules plus the cross-field constraints the
// tags cannot express.
func (c *ScanConfig) Validate() error {
	// Register the custom rules, then run the tag-driven validation.
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidations(validate); err != nil {
		return err
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid scan configuration: %w", err)
	}

	// Cross-field constraints: filter exclusivity, resume's need for a
	// real file, and the custom-resolver requirement for CNAME output.
	if c.OnlyResolved && len(c.Statuses) > 0 {
		return fmt.Errorf("--only-resolved and --status are mutually exclusive")
	}
	if c.Resume && c.Out == "-" {
		return fmt.Errorf("--resume requires a file output path, not stdout")
	}
	if c.IncludeCNAME && len(c.Resolvers) == 0 && c.ResolverFile == "" {
		return fmt.Errorf("--include-cname requires custom resolvers")
	}
	return nil
}

// registerValidations registers the custom validation functions shared
// across configs: "apex_domain", "nameserver" and "scan_status".
// Returns an error if any registration fails.
func registerValidations(v *validator.Validate) error {
	if err := v.RegisterValidation("apex_domain", validApexDomain); err != nil {
		return err
	}
	if err := v.RegisterValidation("nameserver", validNameserver); err != nil {
		return err
	}
	return v.RegisterValidation("scan_status", validScanStatus)
}

// validApexDomain accepts a normalizable multi-label hostname.
func validApexDomain(fl validator.FieldLevel) bool {
	_, err := utils.NormalizeDomain(fl.Field().String())
	return err == nil
}

// validNameserver accepts any resolver spec form from §3.
func validNameserver(fl validator.FieldLevel) bool {
	_, err := domain.ParseNameserver(fl.Field().String())
	return err == nil
}

// validScanStatus accepts the known record statuses.
func validScanStatus(fl validator.FieldLevel) bool {
	_, err := domain.ParseStatus(fl.Field().String())
	return err == nil
}
