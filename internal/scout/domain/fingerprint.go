package domain

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Fingerprint matches a hosted service's unclaimed-resource error page.
type Fingerprint struct {
	Service        string   `json:"service"`
	BodySubstrings []string `json:"body_substrings"`
	StatusCodes    []int    `json:"status_codes"`
}

// FingerprintCatalog is a versioned set of takeover fingerprints.
type FingerprintCatalog struct {
	Version      string        `json:"version"`
	Fingerprints []Fingerprint `json:"fingerprints"`
}

// DefaultFingerprintCatalog returns the embedded catalog used when no
// catalog file is supplied.
func DefaultFingerprintCatalog() FingerprintCatalog {
	return FingerprintCatalog{
		Version: "2026-02-09",
		Fingerprints: []Fingerprint{
			{
				Service:        "GitHub Pages",
				BodySubstrings: []string{"there isn't a github pages site here."},
				StatusCodes:    []int{404},
			},
			{
				Service:        "Heroku",
				BodySubstrings: []string{"no such app"},
				StatusCodes:    []int{404},
			},
			{
				Service:        "Shopify",
				BodySubstrings: []string{"sorry, this shop is currently unavailable"},
				StatusCodes:    []int{402, 403, 404},
			},
			{
				Service:        "Fastly",
				BodySubstrings: []string{"fastly error: unknown domain"},
				StatusCodes:    []int{503},
			},
			{
				Service:        "Unbounce",
				BodySubstrings: []string{"the requested url was not found on this server", "unbounce"},
				StatusCodes:    []int{404},
			},
		},
	}
}

// LoadFingerprintCatalog reads and validates a catalog file. Substrings are
// lowercased so matching stays case-insensitive regardless of the file's
// casing.
func LoadFingerprintCatalog(path string) (FingerprintCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FingerprintCatalog{}, err
	}

	var raw FingerprintCatalog
	if err := json.Unmarshal(data, &raw); err != nil {
		return FingerprintCatalog{}, fmt.Errorf("takeover fingerprint catalog must be a JSON object: %w", err)
	}
	return validateCatalog(raw)
}

func validateCatalog(raw FingerprintCatalog) (FingerprintCatalog, error) {
	version := strings.TrimSpace(raw.Version)
	if version == "" {
		return FingerprintCatalog{}, fmt.Errorf("takeover fingerprint catalog requires non-empty 'version'")
	}
	if len(raw.Fingerprints) == 0 {
		return FingerprintCatalog{}, fmt.Errorf("takeover fingerprint catalog requires non-empty 'fingerprints' list")
	}

	out := FingerprintCatalog{Version: version}
	for i, fp := range raw.Fingerprints {
		service := strings.TrimSpace(fp.Service)
		if service == "" {
			return FingerprintCatalog{}, fmt.Errorf("fingerprints[%d] missing non-empty 'service'", i+1)
		}
		var substrings []string
		for _, s := range fp.BodySubstrings {
			s = strings.ToLower(strings.TrimSpace(s))
			if s != "" {
				substrings = append(substrings, s)
			}
		}
		if len(substrings) == 0 {
			return FingerprintCatalog{}, fmt.Errorf("fingerprints[%d] missing non-empty 'body_substrings' list", i+1)
		}
		out.Fingerprints = append(out.Fingerprints, Fingerprint{
			Service:        service,
			BodySubstrings: substrings,
			StatusCodes:    fp.StatusCodes,
		})
	}
	return out, nil
}
