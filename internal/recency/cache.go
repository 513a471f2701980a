// ABOUTME: Per-chat cache of category histories, lazily loaded once from storage
// ABOUTME: Serializes load, update and persist per chat while chats run in parallel

package recency

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/2389/coven-responder/internal/store"
)

// HistoryStore is the subset of store.Store the cache persists through.
type HistoryStore interface {
	LoadCategoryHistories(ctx context.Context, chatID string) (map[string][]store.ItemRecord, error)
	SaveCategoryHistory(ctx context.Context, chatID, categoryKey string, items []store.ItemRecord) error
}

// chatHistories is the state of one chat. mu guards the whole
// load-if-absent, update, persist sequence.
type chatHistories struct {
	mu     sync.Mutex
	loaded bool
	lists  map[string]*List
}

// Cache maps chat ID to that chat's category histories.
type Cache struct {
	store  HistoryStore
	chats  sync.Map // chatID -> *chatHistories
	pick   func(n int) int
	logger *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithPicker replaces the random index source used for selection.
func WithPicker(pick func(n int) int) Option {
	return func(c *Cache) {
		c.pick = pick
	}
}

// WithLogger sets the cache's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// NewCache creates an empty cache backed by s.
func NewCache(s HistoryStore, opts ...Option) *Cache {
	c := &Cache{
		store:  s,
		pick:   rand.IntN,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "recency")
	return c
}

// SelectForCategory records item as the newest entry of categoryKey in chatID
// and returns a different item from that category's history, if any.
//
// The updated history is persisted before it replaces the in-memory one, so a
// storage failure leaves the cache exactly as it was and is returned as-is.
func (c *Cache) SelectForCategory(ctx context.Context, chatID, categoryKey string, item store.ItemRecord, capacity int) (store.ItemRecord, bool, error) {
	h, err := c.lockChat(ctx, chatID)
	if err != nil {
		return store.ItemRecord{}, false, err
	}
	defer h.mu.Unlock()

	list, ok := h.lists[categoryKey]
	if !ok {
		list = &List{}
	}

	next := list.Recorded(item, capacity)
	if err := c.store.SaveCategoryHistory(ctx, chatID, categoryKey, next); err != nil {
		return store.ItemRecord{}, false, fmt.Errorf("saving history for %s/%s: %w", chatID, categoryKey, err)
	}

	list.items = next
	h.lists[categoryKey] = list

	selected, found := list.Select(c.pick)
	return selected, found, nil
}

// History returns a copy of the current history of one category.
func (c *Cache) History(ctx context.Context, chatID, categoryKey string) ([]store.ItemRecord, error) {
	h, err := c.lockChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	defer h.mu.Unlock()

	list, ok := h.lists[categoryKey]
	if !ok {
		return nil, nil
	}
	return list.Items(), nil
}

// lockChat returns the chat's entry locked, loading it from storage the first
// time. A failed load leaves the entry unloaded so the next call retries.
// The caller must unlock h.mu.
func (c *Cache) lockChat(ctx context.Context, chatID string) (*chatHistories, error) {
	v, _ := c.chats.LoadOrStore(chatID, &chatHistories{})
	h := v.(*chatHistories)

	h.mu.Lock()
	if h.loaded {
		return h, nil
	}

	histories, err := c.store.LoadCategoryHistories(ctx, chatID)
	if err != nil {
		h.mu.Unlock()
		return nil, fmt.Errorf("loading histories for %s: %w", chatID, err)
	}

	h.lists = make(map[string]*List, len(histories))
	for key, items := range histories {
		h.lists[key] = NewList(items)
	}
	h.loaded = true

	c.logger.Debug("loaded chat histories", "chat", chatID, "categories", len(histories))
	return h, nil
}
