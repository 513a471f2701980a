// ABOUTME: Tests for the quoted argument parser
// ABOUTME: Table-driven cases for quoting, escapes and malformed input

package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "quoted", input: `"hello" "world"`, want: []string{"hello", "world"}},
		{name: "quoted with space", input: `"hello world"`, want: []string{"hello world"}},
		{name: "unquoted", input: `hello world`, want: []string{"hello", "world"}},
		{name: "mixed", input: `hello "world"`, want: []string{"hello", "world"}},
		{name: "escaped quote", input: `"hello \"world\""`, want: []string{`hello "world"`}},
		{name: "escaped backslash", input: `"a\\b"`, want: []string{`a\b`}},
		{name: "surrounding spaces", input: `   one    two  `, want: []string{"one", "two"}},
		{name: "empty quoted", input: `"" x`, want: []string{"", "x"}},
		{name: "regex", input: `beer "(?i)kalja|olut" "oispa kaljaa"`, want: []string{"beer", "(?i)kalja|olut", "oispa kaljaa"}},
		{name: "unicode", input: `emoji "🍺 ja ☕"`, want: []string{"emoji", "🍺 ja ☕"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseArgs(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseArgs_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "blank", input: "   "},
		{name: "unterminated quote", input: `"hello`},
		{name: "unknown escape", input: `"a\nb"`},
		{name: "trailing backslash", input: `"abc\`},
		{name: "quote inside unquoted", input: `ab"cd"`},
		{name: "text after quote", input: `"ab"cd`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseArgs(tt.input)
			assert.Error(t, err)
		})
	}

	_, err := ParseArgs(" ")
	assert.ErrorIs(t, err, ErrNoArguments)
}
