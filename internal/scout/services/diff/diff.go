// Package diff compares two scan output snapshots. Records are projected
// to a canonical view before comparison so that null-vs-missing fields and
// casing differences in subdomain keys, canonical targets and record types
// never register as changes.
package diff

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// RecordView is the canonical projection of a scan record used as the
// comparison basis. Optional fields are omitted when empty so equality
// ignores null-vs-missing.
type RecordView struct {
	Status          string   `json:"status"`
	IPs             []string `json:"ips"`
	CNAMEs          []string `json:"cnames,omitempty"`
	CanonicalTarget string   `json:"canonical_target,omitempty"`
	DNSRecordTypes  []string `json:"dns_record_types,omitempty"`
	TTLMin          *int64   `json:"ttl_min,omitempty"`
	TTLMax          *int64   `json:"ttl_max,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// Event is one emitted difference.
type Event struct {
	Kind      string      `json:"kind"`
	Subdomain string      `json:"subdomain"`
	Old       *RecordView `json:"old,omitempty"`
	New       *RecordView `json:"new,omitempty"`
}

// Summary is the aggregate outcome of a diff.
type Summary struct {
	OldTotal  int
	NewTotal  int
	Added     int
	Removed   int
	Changed   int
	Unchanged int
}

// HasChanges reports whether anything differs between the snapshots.
func (s Summary) HasChanges() bool {
	return s.Added+s.Removed+s.Changed > 0
}

// rawRecord is the loose decoding target for one NDJSON line.
type rawRecord struct {
	Subdomain       string    `json:"subdomain"`
	Status          string    `json:"status"`
	IPs             []string  `json:"ips"`
	CNAMEs          []string  `json:"cnames"`
	CanonicalTarget string    `json:"canonical_target"`
	DNSRecordTypes  []string  `json:"dns_record_types"`
	TTLMin          *int64   `json:"ttl_min"`
	TTLMax          *int64   `json:"ttl_max"`
	Error           *string  `json:"error"`
}

// Load reads an NDJSON snapshot, keyed by lowercased dot-trimmed
// subdomain. Later duplicates win. With skipInvalid, broken lines are
// dropped; otherwise they fail with a src:lineno diagnostic.
func Load(r io.Reader, src string, resolvedOnly, skipInvalid bool) (map[string]RecordView, error) {
	records := make(map[string]RecordView)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "{") {
			if skipInvalid {
				continue
			}
			return nil, fmt.Errorf("%s:%d: expected JSON object per line", src, lineno)
		}
		var raw rawRecord
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			if skipInvalid {
				continue
			}
			return nil, fmt.Errorf("%s:%d: invalid JSON: %w", src, lineno, err)
		}
		key := strings.ToLower(strings.Trim(strings.TrimSpace(raw.Subdomain), "."))
		if key == "" {
			if skipInvalid {
				continue
			}
			return nil, fmt.Errorf("%s:%d: missing/invalid 'subdomain'", src, lineno)
		}

		view := canonicalize(raw)
		if resolvedOnly && view.Status != "resolved" {
			continue
		}
		records[key] = view
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", src, err)
	}
	return records, nil
}

// canonicalize projects a raw record onto the comparison view: record
// types uppercased and trimmed, canonical target lowercased, empty
// collections dropped.
func canonicalize(raw rawRecord) RecordView {
	view := RecordView{
		Status: raw.Status,
		IPs:    raw.IPs,
	}
	if view.IPs == nil {
		view.IPs = []string{}
	}
	if len(raw.CNAMEs) > 0 {
		view.CNAMEs = raw.CNAMEs
	}
	if target := strings.ToLower(strings.TrimSpace(raw.CanonicalTarget)); target != "" {
		view.CanonicalTarget = target
	}
	if len(raw.DNSRecordTypes) > 0 {
		types := make([]string, 0, len(raw.DNSRecordTypes))
		for _, t := range raw.DNSRecordTypes {
			if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
				types = append(types, t)
			}
		}
		if len(types) > 0 {
			view.DNSRecordTypes = types
		}
	}
	view.TTLMin = raw.TTLMin
	view.TTLMax = raw.TTLMax
	if raw.Error != nil {
		view.Error = *raw.Error
	}
	return view
}

// Equal compares two canonical views field by field.
func (v RecordView) Equal(o RecordView) bool {
	return v.Status == o.Status &&
		stringsEqual(v.IPs, o.IPs) &&
		stringsEqual(v.CNAMEs, o.CNAMEs) &&
		v.CanonicalTarget == o.CanonicalTarget &&
		stringsEqual(v.DNSRecordTypes, o.DNSRecordTypes) &&
		int64PtrEqual(v.TTLMin, o.TTLMin) &&
		int64PtrEqual(v.TTLMax, o.TTLMax) &&
		v.Error == o.Error
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Compute produces the ordered event list and summary for two snapshots.
// Keys are visited in ascending order.
func Compute(oldRecs, newRecs map[string]RecordView) (Summary, []Event) {
	keys := make(map[string]struct{}, len(oldRecs)+len(newRecs))
	for k := range oldRecs {
		keys[k] = struct{}{}
	}
	for k := range newRecs {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	summary := Summary{OldTotal: len(oldRecs), NewTotal: len(newRecs)}
	var events []Event

	for _, key := range sorted {
		o, inOld := oldRecs[key]
		n, inNew := newRecs[key]
		switch {
		case !inOld && inNew:
			summary.Added++
			nv := n
			events = append(events, Event{Kind: "added", Subdomain: key, New: &nv})
		case inOld && !inNew:
			summary.Removed++
			ov := o
			events = append(events, Event{Kind: "removed", Subdomain: key, Old: &ov})
		case o.Equal(n):
			summary.Unchanged++
		default:
			summary.Changed++
			ov, nv := o, n
			events = append(events, Event{Kind: "changed", Subdomain: key, Old: &ov, New: &nv})
		}
	}
	return summary, events
}
