// Package utils holds hostname normalization shared by every layer.
package utils

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// labelRE is the LDH rule from RFC 1035: lowercase letters, digits and
// interior hyphens, at most 63 octets.
var labelRE = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?$`)

const maxHostnameLen = 253

// NormalizeDomain lowercases, trims whitespace and surrounding dots, and
// validates an apex domain. A domain must contain at least two labels.
func NormalizeDomain(raw string) (string, error) {
	domain := strings.ToLower(strings.Trim(strings.TrimSpace(raw), "."))
	if domain == "" {
		return "", fmt.Errorf("domain must be non-empty")
	}
	if err := validateHostname(domain, false, "domain"); err != nil {
		return "", err
	}
	return domain, nil
}

// NormalizeLabel lowercases, trims whitespace and surrounding dots, and
// validates a candidate label. A label may itself be dotted ("foo.dev"),
// in which case every component must validate.
func NormalizeLabel(raw string) (string, error) {
	label := strings.ToLower(strings.Trim(strings.TrimSpace(raw), "."))
	if label == "" {
		return "", fmt.Errorf("label must be non-empty")
	}
	if err := validateHostname(label, true, "label"); err != nil {
		return "", err
	}
	return label, nil
}

func validateHostname(value string, singleLabelOK bool, what string) error {
	if len(value) > maxHostnameLen {
		return fmt.Errorf("%s is too long (max %d characters)", what, maxHostnameLen)
	}
	parts := strings.Split(value, ".")
	if !singleLabelOK && len(parts) < 2 {
		return fmt.Errorf("%s must contain at least one dot", what)
	}
	for _, part := range parts {
		if !labelRE.MatchString(part) {
			return fmt.Errorf("invalid %s: %q", what, value)
		}
	}
	return nil
}

// RegistrableDomain returns the effective TLD plus one for a name, or the
// name itself when the public suffix list cannot resolve it. Used to warn
// when a scan target is itself a subdomain of a registrable domain.
func RegistrableDomain(name string) string {
	apex, err := publicsuffix.EffectiveTLDPlusOne(strings.Trim(name, "."))
	if err != nil {
		return name
	}
	return apex
}
