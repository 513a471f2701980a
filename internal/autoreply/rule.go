// ABOUTME: Autoreply rule model: a chat-scoped trigger pattern plus its response
// ABOUTME: Response is a closed variant of Literal text or an ItemRef to repost

package autoreply

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrInvalidPattern is returned when a trigger pattern does not compile.
	// The wrapped message carries the compiler's explanation.
	ErrInvalidPattern = errors.New("invalid pattern")

	// ErrDuplicateName is returned when a chat already has a rule with the same name.
	ErrDuplicateName = errors.New("duplicate rule name")

	// ErrEmptyResponse is returned for a Literal without text or an ItemRef without ID.
	ErrEmptyResponse = errors.New("empty response")
)

// Response is what a rule posts when it fires. It is implemented only by
// Literal and ItemRef.
type Response interface {
	isResponse()
}

// Literal is a plain text response.
type Literal struct {
	Text string
}

// ItemRef references an item the transport can post, e.g. a sticker.
type ItemRef struct {
	ID string
}

func (Literal) isResponse() {}
func (ItemRef) isResponse() {}

// Rule is an immutable, validated autoreply rule. Build one with NewRule.
type Rule struct {
	chatID   string
	name     string
	pattern  *regexp.Regexp
	response Response
}

// NewRule compiles pattern and builds a rule. It is the only validation point
// for patterns: a Rule value always holds a compiled pattern.
func NewRule(chatID, name, pattern string, response Response) (*Rule, error) {
	if name == "" {
		return nil, errors.New("rule name is required")
	}

	switch resp := response.(type) {
	case nil:
		return nil, errors.New("rule response is required")
	case Literal:
		if resp.Text == "" {
			return nil, fmt.Errorf("%w: literal text is required", ErrEmptyResponse)
		}
	case ItemRef:
		if resp.ID == "" {
			return nil, fmt.Errorf("%w: item response needs an ID", ErrEmptyResponse)
		}
	}

	re, err := compilePattern(pattern)
	if err != nil {
		return nil, err
	}

	return &Rule{
		chatID:   chatID,
		name:     name,
		pattern:  re,
		response: response,
	}, nil
}

// ChatID returns the chat the rule belongs to.
func (r *Rule) ChatID() string { return r.chatID }

// Name returns the rule's name, unique within its chat.
func (r *Rule) Name() string { return r.name }

// Pattern returns the pattern source text.
func (r *Rule) Pattern() string { return r.pattern.String() }

// Response returns what the rule posts when it fires.
func (r *Rule) Response() Response { return r.response }

// ValidatePattern reports whether pattern would be accepted by NewRule.
func ValidatePattern(pattern string) error {
	_, err := compilePattern(pattern)
	return err
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return re, nil
}
