package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "simple", input: "Example.COM", want: "example.com"},
		{name: "surrounding dots and spaces", input: "  .example.com. ", want: "example.com"},
		{name: "single label rejected", input: "localhost", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "only dots", input: "...", wantErr: true},
		{name: "underscore rejected", input: "bad_label.com", wantErr: true},
		{name: "leading hyphen rejected", input: "-foo.com", wantErr: true},
		{name: "trailing hyphen rejected", input: "foo-.com", wantErr: true},
		{name: "63 char label ok", input: strings.Repeat("a", 63) + ".com", want: strings.Repeat("a", 63) + ".com"},
		{name: "64 char label rejected", input: strings.Repeat("a", 64) + ".com", wantErr: true},
		{name: "too long overall", input: strings.Repeat("aaaa.", 60) + "com", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeDomain(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "single label", input: "WWW", want: "www"},
		{name: "nested label", input: "foo.dev", want: "foo.dev"},
		{name: "trim dots", input: ".api.", want: "api"},
		{name: "digits and hyphens", input: "a-1", want: "a-1"},
		{name: "empty", input: "", wantErr: true},
		{name: "space inside", input: "a b", wantErr: true},
		{name: "empty component", input: "a..b", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeLabel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeLabel_Idempotent(t *testing.T) {
	inputs := []string{"WWW", " api. ", "foo.Dev", "a-1.b-2"}
	for _, input := range inputs {
		once, err := NormalizeLabel(input)
		assert.NoError(t, err)
		twice, err := NormalizeLabel(once)
		assert.NoError(t, err)
		assert.Equal(t, once, twice)
	}
}

func TestRegistrableDomain(t *testing.T) {
	assert.Equal(t, "example.com", RegistrableDomain("example.com"))
	assert.Equal(t, "example.com", RegistrableDomain("www.example.com"))
	assert.Equal(t, "example.co.uk", RegistrableDomain("api.example.co.uk"))
}
