// ABOUTME: Pattern registry that matches a message against all rules of a chat
// ABOUTME: Rules sharing a pattern are grouped so each distinct pattern runs once

package autoreply

import (
	"fmt"
	"regexp"
	"sync"
)

// Registry holds the rules of one chat. It is immutable: Add returns a new
// Registry, so a Registry can be matched against without locking.
type Registry struct {
	// keys are the distinct pattern sources in first-registration order;
	// matchers[i] is the compiled form of keys[i].
	keys     []string
	matchers []*regexp.Regexp
	groups   map[string][]*Rule
	rules    []*Rule // all rules in registration order
	names    map[string]struct{}
}

// Compile builds a registry from rules in the given order. An empty input
// yields a registry that matches nothing.
func Compile(rules []*Rule) (*Registry, error) {
	r := &Registry{
		groups: make(map[string][]*Rule),
		names:  make(map[string]struct{}),
	}
	for _, rule := range rules {
		if err := r.insert(rule); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Match returns every rule whose pattern matches somewhere in text. Results
// follow the registration order of patterns and, within a pattern, of rules.
func (r *Registry) Match(text string) []*Rule {
	var matched []*Rule
	for i, re := range r.matchers {
		if re.MatchString(text) {
			matched = append(matched, r.groups[r.keys[i]]...)
		}
	}
	return matched
}

// Add returns a new registry with rule appended to its pattern's group.
// The receiver is left unchanged. A name already used in the registry is
// rejected with ErrDuplicateName.
func (r *Registry) Add(rule *Rule) (*Registry, error) {
	next := r.clone()
	if err := next.insert(rule); err != nil {
		return nil, err
	}
	return next, nil
}

// Has reports whether a rule with the given name exists.
func (r *Registry) Has(name string) bool {
	_, ok := r.names[name]
	return ok
}

// Rules returns all rules in registration order.
func (r *Registry) Rules() []*Rule {
	return append([]*Rule(nil), r.rules...)
}

// Patterns returns the distinct pattern sources the registry matches with.
func (r *Registry) Patterns() []string {
	return append([]string(nil), r.keys...)
}

// insert adds rule in place. Only used while building a registry nobody else sees yet.
func (r *Registry) insert(rule *Rule) error {
	if _, exists := r.names[rule.Name()]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateName, rule.Name())
	}

	key := rule.Pattern()
	group, known := r.groups[key]
	if !known {
		r.keys = append(r.keys, key)
		r.matchers = append(r.matchers, rule.pattern)
	}

	r.groups[key] = append(group, rule)
	r.rules = append(r.rules, rule)
	r.names[rule.Name()] = struct{}{}
	return nil
}

// clone copies every container so the copy can be mutated freely.
func (r *Registry) clone() *Registry {
	c := &Registry{
		keys:     append([]string(nil), r.keys...),
		matchers: append([]*regexp.Regexp(nil), r.matchers...),
		groups:   make(map[string][]*Rule, len(r.groups)+1),
		rules:    append([]*Rule(nil), r.rules...),
		names:    make(map[string]struct{}, len(r.names)+1),
	}
	for k, g := range r.groups {
		c.groups[k] = append([]*Rule(nil), g...)
	}
	for n := range r.names {
		c.names[n] = struct{}{}
	}
	return c
}

// Set holds one Registry per chat. Matching only takes a read lock to fetch
// the chat's current registry; Add swaps in a rebuilt registry under the write lock.
type Set struct {
	mu     sync.RWMutex
	byChat map[string]*Registry
}

// NewSet groups rules by chat and compiles one registry per chat,
// preserving the order rules were given in.
func NewSet(rules []*Rule) (*Set, error) {
	grouped := make(map[string][]*Rule)
	for _, rule := range rules {
		grouped[rule.ChatID()] = append(grouped[rule.ChatID()], rule)
	}

	s := &Set{byChat: make(map[string]*Registry, len(grouped))}
	for chatID, chatRules := range grouped {
		reg, err := Compile(chatRules)
		if err != nil {
			return nil, fmt.Errorf("compiling rules for chat %s: %w", chatID, err)
		}
		s.byChat[chatID] = reg
	}
	return s, nil
}

// Match returns the rules of chatID matching text, or nil for an unknown chat.
func (s *Set) Match(chatID, text string) []*Rule {
	reg := s.registry(chatID)
	if reg == nil {
		return nil
	}
	return reg.Match(text)
}

// Add registers rule in its chat's registry.
func (s *Set) Add(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.byChat[rule.ChatID()]
	if !ok {
		reg = &Registry{
			groups: make(map[string][]*Rule),
			names:  make(map[string]struct{}),
		}
	}

	next, err := reg.Add(rule)
	if err != nil {
		return err
	}
	s.byChat[rule.ChatID()] = next
	return nil
}

// Has reports whether chatID has a rule called name.
func (s *Set) Has(chatID, name string) bool {
	reg := s.registry(chatID)
	return reg != nil && reg.Has(name)
}

// Rules returns the rules of chatID in registration order.
func (s *Set) Rules(chatID string) []*Rule {
	reg := s.registry(chatID)
	if reg == nil {
		return nil
	}
	return reg.Rules()
}

func (s *Set) registry(chatID string) *Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byChat[chatID]
}
