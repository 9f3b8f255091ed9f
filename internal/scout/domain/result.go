package domain

// ResolvedHost is the accumulated outcome of a full resolve: the IPs
// gathered across the CNAME chain, the chain itself, and TTL bounds.
type ResolvedHost struct {
	IPs         []string // first-observation order, unique
	CNAMEs      []string // chain of targets followed, in order
	RecordTypes []RRType // observed types in canonical A, AAAA, CNAME order
	TTLMin      uint32
	TTLMax      uint32
	HasTTL      bool
}

// CanonicalTarget returns the last CNAME in the chain, or "" when the
// answer carried no CNAMEs.
func (r ResolvedHost) CanonicalTarget() string {
	if len(r.CNAMEs) == 0 {
		return ""
	}
	return r.CNAMEs[len(r.CNAMEs)-1]
}

// TakeoverFinding is a scored match of an HTTP response against the
// fingerprint catalog.
type TakeoverFinding struct {
	Service            string `json:"service"`
	Confidence         string `json:"confidence"`
	Score              int    `json:"score"`
	FingerprintVersion string `json:"fingerprint_version"`
	MatchedPattern     string `json:"matched_pattern"`
	StatusCode         int    `json:"status_code"`
	URL                string `json:"url"`
}

// ScanResult is one NDJSON output record, keyed by FQDN.
// Field order here is emission order.
type ScanResult struct {
	Subdomain       string           `json:"subdomain"`
	IPs             []string         `json:"ips"`
	Status          Status           `json:"status"`
	ElapsedMS       int64            `json:"elapsed_ms"`
	Attempts        int              `json:"attempts"`
	Retries         int              `json:"retries"`
	Error           string           `json:"error,omitempty"`
	ErrorType       string           `json:"error_type,omitempty"`
	ErrorCode       *int             `json:"error_code,omitempty"`
	CNAMEs          []string         `json:"cnames,omitempty"`
	CanonicalTarget string           `json:"canonical_target,omitempty"`
	DNSRecordTypes  []string         `json:"dns_record_types,omitempty"`
	TTLMin          *uint32          `json:"ttl_min,omitempty"`
	TTLMax          *uint32          `json:"ttl_max,omitempty"`
	Takeover        *TakeoverFinding `json:"takeover,omitempty"`
}

// NewScanResult constructs a record with the invariants every record must
// hold: a non-nil IP list and attempts == retries + 1.
func NewScanResult(subdomain string, status Status, ips []string, elapsedMS int64, retries int) ScanResult {
	if ips == nil {
		ips = []string{}
	}
	return ScanResult{
		Subdomain: subdomain,
		IPs:       ips,
		Status:    status,
		ElapsedMS: elapsedMS,
		Attempts:  retries + 1,
		Retries:   retries,
	}
}
