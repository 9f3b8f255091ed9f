// Package wire encodes DNS queries and decodes DNS responses in the
// RFC 1035 wire format. The decoder is written for hostile input: every
// malformed shape surfaces as ErrMalformed so callers see one error class.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/sdscout/sdscout/internal/scout/domain"
)

// ErrMalformed is the single error class for any response the parser
// rejects: short messages, id mismatches, truncated names, pointer loops.
var ErrMalformed = errors.New("malformed dns response")

const (
	flagQR = 0x8000
	flagTC = 0x0200
	flagRD = 0x0100

	maxNameIterations = 256
	maxNameLen        = 255
	headerLen         = 12
)

// Address is one A or AAAA answer.
type Address struct {
	IP  string
	TTL uint32
}

// ParsedResponse is the decoded view of a response message that the
// client cares about.
type ParsedResponse struct {
	RCode     domain.RCode
	Truncated bool
	Addresses []Address // answers matching the question type, in order
	CNAMEs    []string  // lowercased dot-trimmed targets, deduped per response
}

// EncodeQuery serializes a single-question query with RD set.
func EncodeQuery(id uint16, qname string, qtype domain.RRType) ([]byte, error) {
	var buf bytes.Buffer

	// Header
	_ = binary.Write(&buf, binary.BigEndian, id)
	_ = binary.Write(&buf, binary.BigEndian, uint16(flagRD)) // standard query, RD=1
	_ = binary.Write(&buf, binary.BigEndian, uint16(1))      // QDCOUNT
	_ = binary.Write(&buf, binary.BigEndian, uint16(0))      // ANCOUNT
	_ = binary.Write(&buf, binary.BigEndian, uint16(0))      // NSCOUNT
	_ = binary.Write(&buf, binary.BigEndian, uint16(0))      // ARCOUNT

	// Question
	name := strings.Trim(qname, ".")
	for _, label := range strings.Split(name, ".") {
		if len(label) > 63 {
			return nil, fmt.Errorf("label too long: %s", label)
		}
		if len(label) > 0 {
			buf.WriteByte(byte(len(label)))
			buf.WriteString(label)
		}
	}
	buf.WriteByte(0) // end of name
	_ = binary.Write(&buf, binary.BigEndian, uint16(qtype))
	_ = binary.Write(&buf, binary.BigEndian, uint16(1)) // QCLASS=IN

	return buf.Bytes(), nil
}

// DecodeResponse parses a response message, validating the transaction id
// and QR flag, and extracts the answers relevant to qtype plus any CNAMEs.
func DecodeResponse(data []byte, expectedID uint16, qtype domain.RRType) (ParsedResponse, error) {
	if len(data) < headerLen {
		return ParsedResponse{}, fmt.Errorf("%w: short message", ErrMalformed)
	}
	id := binary.BigEndian.Uint16(data[0:2])
	if id != expectedID {
		return ParsedResponse{}, fmt.Errorf("%w: transaction id mismatch", ErrMalformed)
	}
	flags := binary.BigEndian.Uint16(data[2:4])
	if flags&flagQR == 0 {
		return ParsedResponse{}, fmt.Errorf("%w: missing QR flag", ErrMalformed)
	}

	resp := ParsedResponse{
		RCode:     domain.RCode(flags & 0x000F),
		Truncated: flags&flagTC != 0,
	}

	qdCount := binary.BigEndian.Uint16(data[4:6])
	anCount := binary.BigEndian.Uint16(data[6:8])

	offset := headerLen
	// Skip questions
	for i := 0; i < int(qdCount); i++ {
		next, err := skipName(data, offset)
		if err != nil {
			return ParsedResponse{}, err
		}
		offset = next + 4 // QTYPE + QCLASS
		if offset > len(data) {
			return ParsedResponse{}, fmt.Errorf("%w: truncated question section", ErrMalformed)
		}
	}

	// Walk answers
	seenCNAME := make(map[string]struct{})
	for i := 0; i < int(anCount); i++ {
		next, err := skipName(data, offset)
		if err != nil {
			return ParsedResponse{}, err
		}
		offset = next
		if offset+10 > len(data) {
			return ParsedResponse{}, fmt.Errorf("%w: truncated answer header", ErrMalformed)
		}
		rtype := domain.RRType(binary.BigEndian.Uint16(data[offset : offset+2]))
		rclass := binary.BigEndian.Uint16(data[offset+2 : offset+4])
		ttl := binary.BigEndian.Uint32(data[offset+4 : offset+8])
		rdLen := int(binary.BigEndian.Uint16(data[offset+8 : offset+10]))
		offset += 10
		if offset+rdLen > len(data) {
			return ParsedResponse{}, fmt.Errorf("%w: truncated rdata", ErrMalformed)
		}
		rdata := data[offset : offset+rdLen]
		rdataOffset := offset
		offset += rdLen

		if rclass != 1 { // not IN
			continue
		}
		switch {
		case rtype == domain.RRTypeCNAME:
			target, _, err := decodeName(data, rdataOffset)
			if err != nil {
				return ParsedResponse{}, err
			}
			target = strings.Trim(strings.ToLower(target), ".")
			if _, dup := seenCNAME[target]; dup || target == "" {
				continue
			}
			seenCNAME[target] = struct{}{}
			resp.CNAMEs = append(resp.CNAMEs, target)
		case rtype == qtype && rtype == domain.RRTypeA && rdLen == 4:
			addr, _ := netip.AddrFromSlice(rdata)
			resp.Addresses = append(resp.Addresses, Address{IP: addr.String(), TTL: ttl})
		case rtype == qtype && rtype == domain.RRTypeAAAA && rdLen == 16:
			addr, _ := netip.AddrFromSlice(rdata)
			resp.Addresses = append(resp.Addresses, Address{IP: addr.String(), TTL: ttl})
		}
	}

	return resp, nil
}

// decodeName decodes a possibly-compressed domain name starting at offset.
// It returns the name and the offset of the byte following the name in the
// original stream: once a compression pointer is taken, that is the byte
// after the first pointer, no matter where decoding jumped.
//
// The iteration cap bounds hostile pointer chains, and label-length bytes
// with either reserved bit pattern (0b01/0b10 prefixes) are rejected.
func decodeName(data []byte, offset int) (string, int, error) {
	var labels []string
	nameLen := 0
	next := -1 // resume offset recorded at the first pointer
	jumped := false

	for iter := 0; ; iter++ {
		if iter >= maxNameIterations {
			return "", 0, fmt.Errorf("%w: name compression loop", ErrMalformed)
		}
		if offset >= len(data) {
			return "", 0, fmt.Errorf("%w: name exceeds message length", ErrMalformed)
		}
		length := int(data[offset])
		switch {
		case length == 0:
			if !jumped {
				next = offset + 1
			}
			return strings.Join(labels, "."), next, nil
		case length&0xC0 == 0xC0:
			if offset+1 >= len(data) {
				return "", 0, fmt.Errorf("%w: truncated compression pointer", ErrMalformed)
			}
			if !jumped {
				next = offset + 2
				jumped = true
			}
			offset = int(binary.BigEndian.Uint16(data[offset:offset+2]) & 0x3FFF)
		case length&0xC0 != 0:
			return "", 0, fmt.Errorf("%w: reserved label bits set", ErrMalformed)
		default:
			if offset+1+length > len(data) {
				return "", 0, fmt.Errorf("%w: label exceeds message length", ErrMalformed)
			}
			nameLen += length + 1
			if nameLen > maxNameLen {
				return "", 0, fmt.Errorf("%w: name too long", ErrMalformed)
			}
			labels = append(labels, string(data[offset+1:offset+1+length]))
			offset += 1 + length
		}
	}
}

// skipName advances past a name without materializing it.
func skipName(data []byte, offset int) (int, error) {
	_, next, err := decodeName(data, offset)
	if err != nil {
		return 0, err
	}
	return next, nil
}
