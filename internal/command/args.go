// ABOUTME: Splits command arguments on spaces with support for double-quoted arguments
// ABOUTME: Inside quotes, \" and \\ are the only escapes

package command

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoArguments is returned by ParseArgs for blank input.
var ErrNoArguments = errors.New("no arguments")

// ParseArgs splits input into arguments. Arguments are separated by one or
// more spaces; a double-quoted argument may contain spaces. An unquoted
// argument cannot contain a quote, and quoted arguments must be followed by a
// space or the end of input.
func ParseArgs(input string) ([]string, error) {
	var args []string
	i := 0
	for {
		for i < len(input) && input[i] == ' ' {
			i++
		}
		if i == len(input) {
			break
		}

		if input[i] == '"' {
			arg, next, err := parseQuoted(input, i+1)
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			i = next
		} else {
			start := i
			for i < len(input) && input[i] != ' ' && input[i] != '"' {
				i++
			}
			args = append(args, input[start:i])
		}

		if i < len(input) && input[i] != ' ' {
			return nil, fmt.Errorf("unexpected %q at position %d", input[i], i)
		}
	}

	if len(args) == 0 {
		return nil, ErrNoArguments
	}
	return args, nil
}

// parseQuoted reads a quoted argument whose body starts at i and returns it
// with the index just past the closing quote.
func parseQuoted(input string, i int) (string, int, error) {
	var b strings.Builder
	for i < len(input) {
		switch c := input[i]; c {
		case '"':
			return b.String(), i + 1, nil
		case '\\':
			if i+1 >= len(input) {
				return "", 0, errors.New("unterminated escape")
			}
			next := input[i+1]
			if next != '"' && next != '\\' {
				return "", 0, fmt.Errorf("invalid escape \\%c", next)
			}
			b.WriteByte(next)
			i += 2
		default:
			b.WriteByte(c)
			i++
		}
	}
	return "", 0, errors.New("unterminated quote")
}
