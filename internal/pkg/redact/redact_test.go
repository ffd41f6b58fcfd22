package redact

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmail_Table(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"ada@x.io", "a***@x.io"},
		{"a@x.io", "***@x.io"},
		{"@x.io", "***@x.io"},
		{"Ёжик@пример.рф", "Ё***@пример.рф"},
		{"no-at-sign", "***"},
		{"a@b@c", "***"},
		{"", "***"},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, Email(tt.in), tt.in)
	}
}

func TestToken_Table(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"", "<empty>"},
		{"short", "***"},
		{"0123456789abcde", "***"},
		{"0123456789abcdef", "***cdef"},
		{"eyJhbGciOiJIUzI1NiJ9.payload.wXyZ", "***wXyZ"},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, Token(tt.in), tt.in)
	}
}
