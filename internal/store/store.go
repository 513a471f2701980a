// ABOUTME: Store interface and record types for coven-responder persistence
// ABOUTME: Defines autoreply rules, seen-item histories and per-chat settings

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateRule is returned when a rule with the same chat and name already exists
var ErrDuplicateRule = errors.New("rule already exists")

// ResponseKind constants for stored rule responses
const (
	ResponseKindLiteral = "literal" // Plain text reply
	ResponseKindItem    = "item"    // Opaque item reference, e.g. a sticker URI
)

// Rule is the persisted form of an autoreply rule. The pattern is stored as its
// source text and compiled by the caller when the rule is loaded.
type Rule struct {
	ID            string
	ChatID        string
	Name          string
	Pattern       string
	ResponseKind  string // "literal" or "item"
	ResponseValue string
	CreatedAt     time.Time
}

// UpsertOutcome reports what UpsertRule did with a rule.
// Rules are never overwritten: a name collision is rejected.
type UpsertOutcome int

const (
	UpsertInserted UpsertOutcome = iota
	UpsertRejectedDuplicate
)

func (o UpsertOutcome) String() string {
	switch o {
	case UpsertInserted:
		return "inserted"
	case UpsertRejectedDuplicate:
		return "rejected_duplicate"
	default:
		return "unknown"
	}
}

// ItemRecord identifies an item seen in a chat (e.g. a sticker).
// UniqueID is stable across re-uploads, PayloadRef is what the transport
// needs to post the item again.
type ItemRecord struct {
	UniqueID   string `json:"unique_id"`
	PayloadRef string `json:"payload_ref"`
}

// ChatSettings holds the persisted per-chat settings. Nil fields were never
// set and should fall back to the caller's defaults.
type ChatSettings struct {
	ChatID          string
	FireProbability *float64
	RecencyCapacity *int
	UpdatedAt       time.Time
}

// SettingsUpdate names the chat settings to change. Nil fields keep their stored value.
type SettingsUpdate struct {
	FireProbability *float64
	RecencyCapacity *int
}

// Store defines the persistence operations the responder core needs
type Store interface {
	// Autoreply rules
	ListRules(ctx context.Context) ([]*Rule, error)
	UpsertRule(ctx context.Context, rule *Rule) (UpsertOutcome, error)

	// Seen-item histories, most recent first
	LoadCategoryHistories(ctx context.Context, chatID string) (map[string][]ItemRecord, error)
	SaveCategoryHistory(ctx context.Context, chatID, categoryKey string, items []ItemRecord) error

	// Chat settings
	GetChatSettings(ctx context.Context, chatID string) (*ChatSettings, error)
	SaveFireProbability(ctx context.Context, chatID string, value float64) error
	SaveRecencyCapacity(ctx context.Context, chatID string, capacity int) error
	SaveChatSettings(ctx context.Context, chatID string, update SettingsUpdate) error

	// Close releases any resources held by the store
	Close() error
}
