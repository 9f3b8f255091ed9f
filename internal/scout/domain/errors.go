package domain

import "fmt"

// ErrorKind tags a resolve failure so that retry policy and record
// classification become switches instead of string matching.
type ErrorKind int

const (
	// ErrKindTimeout is a query that exceeded its deadline. Retryable.
	ErrKindTimeout ErrorKind = iota
	// ErrKindNXDomain is a host lookup that reported "name not found".
	// Classified as not_found, never recorded as an error.
	ErrKindNXDomain
	// ErrKindTryAgain is a host lookup that reported a temporary failure.
	// Retryable.
	ErrKindTryAgain
	// ErrKindLookup is any other host lookup failure.
	ErrKindLookup
	// ErrKindDNS is a DNS response with an RCODE other than NOERROR/NXDOMAIN.
	ErrKindDNS
	// ErrKindMalformed is a wire-format response the parser rejected.
	ErrKindMalformed
	// ErrKindOS is a socket or other operating system error.
	ErrKindOS
)

// ResolveError carries a typed resolve failure through the retry and
// classification layers.
type ResolveError struct {
	Kind  ErrorKind
	RCode RCode // meaningful only when Kind == ErrKindDNS
	Err   error // underlying cause, may be nil
	Msg   string
}

func (e *ResolveError) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Kind == ErrKindDNS {
		return fmt.Sprintf("%s (rcode=%s)", msg, e.RCode)
	}
	return msg
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient: a timeout, or a host
// lookup that asked to try again.
func (e *ResolveError) Retryable() bool {
	return e.Kind == ErrKindTimeout || e.Kind == ErrKindTryAgain
}

// ErrorType returns the record-level error_type string for the failure.
func (e *ResolveError) ErrorType() string {
	switch e.Kind {
	case ErrKindTimeout:
		return "timeout"
	case ErrKindNXDomain, ErrKindTryAgain, ErrKindLookup:
		return "gaierror"
	case ErrKindDNS, ErrKindMalformed:
		return "dns"
	default:
		return "oserror"
	}
}

// NewTimeoutError wraps a deadline failure.
func NewTimeoutError(err error) *ResolveError {
	return &ResolveError{Kind: ErrKindTimeout, Err: err, Msg: "query timed out"}
}

// NewDNSError wraps a non-terminal response code.
func NewDNSError(rcode RCode) *ResolveError {
	return &ResolveError{Kind: ErrKindDNS, RCode: rcode, Msg: "dns error response"}
}

// NewMalformedError wraps a wire-format parse failure.
func NewMalformedError(err error) *ResolveError {
	return &ResolveError{Kind: ErrKindMalformed, Err: err, Msg: "malformed dns response"}
}

// NewOSError wraps a socket failure.
func NewOSError(err error) *ResolveError {
	return &ResolveError{Kind: ErrKindOS, Err: err, Msg: err.Error()}
}
