package domain

import "fmt"

// RRType represents a DNS resource record type. Only the types the scanner
// queries or observes are enumerated; anything else in a response is skipped.
type RRType uint16

const (
	RRTypeA     RRType = 1  // A - IPv4 address
	RRTypeCNAME RRType = 5  // CNAME - Canonical name
	RRTypeAAAA  RRType = 28 // AAAA - IPv6 address
)

// QueryTypes is the fixed set of question types sent per candidate,
// in the order they are queried.
var QueryTypes = []RRType{RRTypeA, RRTypeAAAA}

// RecordTypeOrder is the canonical emission order for observed record types.
var RecordTypeOrder = []RRType{RRTypeA, RRTypeAAAA, RRTypeCNAME}

// String returns the textual representation of the RRType.
func (t RRType) String() string {
	switch t {
	case RRTypeA:
		return "A"
	case RRTypeCNAME:
		return "CNAME"
	case RRTypeAAAA:
		return "AAAA"
	default:
		return fmt.Sprintf("TYPE%d", uint16(t))
	}
}
