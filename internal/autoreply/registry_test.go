// ABOUTME: Tests for rule construction and the per-chat pattern registry
// ABOUTME: Covers match ordering, shared patterns, duplicate names and copy-on-add

package autoreply

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRule(t *testing.T, chatID, name, pattern string, resp Response) *Rule {
	t.Helper()
	r, err := NewRule(chatID, name, pattern, resp)
	require.NoError(t, err)
	return r
}

func names(rules []*Rule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.Name()
	}
	return out
}

func TestNewRule_InvalidPattern(t *testing.T) {
	_, err := NewRule("c", "broken", "(unclosed", Literal{Text: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPattern)
	assert.Contains(t, err.Error(), "missing closing )")
}

func TestNewRule_Validation(t *testing.T) {
	_, err := NewRule("c", "n", "x", nil)
	assert.Error(t, err)

	_, err = NewRule("c", "n", "x", ItemRef{})
	assert.ErrorIs(t, err, ErrEmptyResponse)

	_, err = NewRule("c", "n", "x", Literal{})
	assert.ErrorIs(t, err, ErrEmptyResponse)

	_, err = NewRule("c", "", "x", Literal{Text: "x"})
	assert.Error(t, err)

	r, err := NewRule("c", "n", "(?i)kalja", ItemRef{ID: "mxc://example.org/beer"})
	require.NoError(t, err)
	assert.Equal(t, "c", r.ChatID())
	assert.Equal(t, "n", r.Name())
	assert.Equal(t, "(?i)kalja", r.Pattern())
	assert.Equal(t, ItemRef{ID: "mxc://example.org/beer"}, r.Response())
}

func TestValidatePattern(t *testing.T) {
	assert.NoError(t, ValidatePattern("(?i)kalja"))
	assert.ErrorIs(t, ValidatePattern("[z-a]"), ErrInvalidPattern)
}

func TestCompile_Empty(t *testing.T) {
	reg, err := Compile(nil)
	require.NoError(t, err)
	assert.Empty(t, reg.Match("anything at all"))
	assert.Empty(t, reg.Match(""))
}

func TestRegistry_MatchReturnsMatchingSubsetInOrder(t *testing.T) {
	rules := []*Rule{
		mustRule(t, "c", "beer", "kalja", Literal{Text: "oispa kaljaa"}),
		mustRule(t, "c", "never", "^xyz$", Literal{Text: "nope"}),
		mustRule(t, "c", "coffee", "kahvi", Literal{Text: "kahvia"}),
		mustRule(t, "c", "sauna", "sauna", Literal{Text: "löylyä"}),
	}
	reg, err := Compile(rules)
	require.NoError(t, err)

	got := reg.Match("kahvi ja kalja")
	assert.Equal(t, []string{"beer", "coffee"}, names(got))

	assert.Empty(t, reg.Match("tee"))
}

func TestRegistry_MatchIsSearchNotFullMatch(t *testing.T) {
	reg, err := Compile([]*Rule{mustRule(t, "c", "cat", "cat", Literal{Text: "meow"})})
	require.NoError(t, err)

	assert.Len(t, reg.Match("concatenate"), 1)
	assert.Len(t, reg.Match("a cat sat"), 1)
}

func TestRegistry_MatchOrderIgnoresNonMatchingInsertions(t *testing.T) {
	a := mustRule(t, "c", "a", "alpha", Literal{Text: "A"})
	b := mustRule(t, "c", "b", "beta", Literal{Text: "B"})
	noise1 := mustRule(t, "c", "n1", "gamma", Literal{Text: "N"})
	noise2 := mustRule(t, "c", "n2", "delta", Literal{Text: "N"})

	reg1, err := Compile([]*Rule{a, noise1, b, noise2})
	require.NoError(t, err)
	reg2, err := Compile([]*Rule{noise2, a, b, noise1})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, names(reg1.Match("alpha beta")))
	assert.Equal(t, []string{"a", "b"}, names(reg2.Match("alpha beta")))
}

func TestRegistry_SharedPatternKeepsAllRules(t *testing.T) {
	rules := []*Rule{
		mustRule(t, "c", "first", "moi", Literal{Text: "moi"}),
		mustRule(t, "c", "other", "hei", Literal{Text: "hei"}),
		mustRule(t, "c", "second", "moi", ItemRef{ID: "wave"}),
	}
	reg, err := Compile(rules)
	require.NoError(t, err)

	assert.Equal(t, []string{"moi", "hei"}, reg.Patterns(), "patterns are deduplicated")

	// Both rules of the shared pattern come back, grouped under the pattern
	assert.Equal(t, []string{"first", "second", "other"}, names(reg.Match("moi hei")))
}

func TestRegistry_AddIsCopyOnWrite(t *testing.T) {
	base, err := Compile([]*Rule{mustRule(t, "c", "a", "alpha", Literal{Text: "A"})})
	require.NoError(t, err)

	next, err := base.Add(mustRule(t, "c", "b", "beta", Literal{Text: "B"}))
	require.NoError(t, err)

	assert.Empty(t, base.Match("beta"), "original registry must not change")
	assert.Equal(t, []string{"b"}, names(next.Match("beta")))
	assert.Equal(t, []string{"a", "b"}, names(next.Rules()))

	// Adding to a shared pattern in the copy leaves the base group alone
	next2, err := base.Add(mustRule(t, "c", "a2", "alpha", Literal{Text: "A2"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names(base.Match("alpha")))
	assert.Equal(t, []string{"a", "a2"}, names(next2.Match("alpha")))
}

func TestRegistry_DuplicateNameRejected(t *testing.T) {
	reg, err := Compile([]*Rule{mustRule(t, "c", "a", "alpha", Literal{Text: "A"})})
	require.NoError(t, err)

	_, err = reg.Add(mustRule(t, "c", "a", "beta", Literal{Text: "B"}))
	assert.ErrorIs(t, err, ErrDuplicateName)
	assert.Empty(t, reg.Match("beta"))

	_, err = Compile([]*Rule{
		mustRule(t, "c", "a", "alpha", Literal{Text: "A"}),
		mustRule(t, "c", "a", "beta", Literal{Text: "B"}),
	})
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestSet_GroupsByChat(t *testing.T) {
	set, err := NewSet([]*Rule{
		mustRule(t, "chat-a", "beer", "kalja", Literal{Text: "A"}),
		mustRule(t, "chat-b", "beer", "kalja", Literal{Text: "B"}),
	})
	require.NoError(t, err)

	got := set.Match("chat-a", "kalja")
	require.Len(t, got, 1)
	assert.Equal(t, Literal{Text: "A"}, got[0].Response())

	assert.Nil(t, set.Match("chat-unknown", "kalja"))
	assert.True(t, set.Has("chat-b", "beer"))
	assert.False(t, set.Has("chat-b", "wine"))
}

func TestSet_AddCreatesChat(t *testing.T) {
	set, err := NewSet(nil)
	require.NoError(t, err)

	require.NoError(t, set.Add(mustRule(t, "new", "hello", "hello", Literal{Text: "hi"})))
	assert.Len(t, set.Match("new", "hello there"), 1)
	assert.Equal(t, []string{"hello"}, names(set.Rules("new")))

	err = set.Add(mustRule(t, "new", "hello", "other", Literal{Text: "x"}))
	assert.ErrorIs(t, err, ErrDuplicateName)
	assert.Empty(t, set.Match("new", "other"))
}

func TestSet_ConcurrentMatchAndAdd(t *testing.T) {
	set, err := NewSet([]*Rule{mustRule(t, "c", "base", "ping", Literal{Text: "pong"})})
	require.NoError(t, err)

	extra := make([]*Rule, 50)
	for i := range extra {
		name := "rule-" + string(rune('A'+i%26)) + string(rune('a'+i/26))
		extra[i] = mustRule(t, "c", name, "ping", Literal{Text: name})
	}

	var wg sync.WaitGroup
	for _, rule := range extra {
		wg.Add(2)
		go func() {
			defer wg.Done()
			matches := set.Match("c", "ping")
			assert.NotEmpty(t, matches)
			assert.Equal(t, "base", matches[0].Name())
		}()
		go func(rule *Rule) {
			defer wg.Done()
			assert.NoError(t, set.Add(rule))
		}(rule)
	}
	wg.Wait()

	assert.Len(t, set.Match("c", "ping"), 51)
}
