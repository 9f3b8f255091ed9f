package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveError_Retryable(t *testing.T) {
	assert.True(t, NewTimeoutError(nil).Retryable())
	assert.True(t, (&ResolveError{Kind: ErrKindTryAgain}).Retryable())
	assert.False(t, (&ResolveError{Kind: ErrKindNXDomain}).Retryable())
	assert.False(t, NewDNSError(SERVFAIL).Retryable())
	assert.False(t, NewMalformedError(nil).Retryable())
	assert.False(t, NewOSError(errors.New("boom")).Retryable())
}

func TestResolveError_ErrorType(t *testing.T) {
	assert.Equal(t, "timeout", NewTimeoutError(nil).ErrorType())
	assert.Equal(t, "gaierror", (&ResolveError{Kind: ErrKindNXDomain}).ErrorType())
	assert.Equal(t, "gaierror", (&ResolveError{Kind: ErrKindTryAgain}).ErrorType())
	assert.Equal(t, "dns", NewDNSError(REFUSED).ErrorType())
	assert.Equal(t, "dns", NewMalformedError(nil).ErrorType())
	assert.Equal(t, "oserror", NewOSError(errors.New("boom")).ErrorType())
}

func TestResolveError_MessageIncludesRCode(t *testing.T) {
	err := NewDNSError(SERVFAIL)
	assert.Contains(t, err.Error(), "SERVFAIL")
}

func TestResolveError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	err := NewOSError(inner)
	assert.True(t, errors.Is(err, inner))
}

func TestStatus(t *testing.T) {
	for _, s := range []Status{StatusResolved, StatusNotFound, StatusError, StatusWildcard, StatusCNAME} {
		assert.True(t, s.IsValid())
		parsed, err := ParseStatus(string(s))
		assert.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := ParseStatus("bogus")
	assert.Error(t, err)
}
