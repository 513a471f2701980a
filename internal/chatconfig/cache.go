// ABOUTME: Memoized per-chat settings (fire probability, recency capacity)
// ABOUTME: Loads lazily with defaults and writes through to storage before updating memory

package chatconfig

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/2389/coven-responder/internal/store"
)

// Config holds the effective settings of one chat.
type Config struct {
	ChatID          string  `json:"chat_id"`
	FireProbability float64 `json:"fire_probability"`
	RecencyCapacity int     `json:"recency_capacity"`
}

// Defaults are applied to any setting a chat has never stored.
type Defaults struct {
	FireProbability float64
	RecencyCapacity int
}

// DefaultDefaults returns the stock settings for a new chat.
func DefaultDefaults() Defaults {
	return Defaults{
		FireProbability: 0.5,
		RecencyCapacity: 20,
	}
}

// SettingsStore is the subset of store.Store the cache needs.
type SettingsStore interface {
	GetChatSettings(ctx context.Context, chatID string) (*store.ChatSettings, error)
	SaveFireProbability(ctx context.Context, chatID string, value float64) error
	SaveRecencyCapacity(ctx context.Context, chatID string, capacity int) error
	SaveChatSettings(ctx context.Context, chatID string, update store.SettingsUpdate) error
}

// Cache memoizes Config per chat.
type Cache struct {
	store    SettingsStore
	defaults Defaults

	mu      sync.RWMutex
	configs map[string]Config
}

// NewCache creates an empty cache.
func NewCache(s SettingsStore, defaults Defaults) *Cache {
	return &Cache{
		store:    s,
		defaults: defaults,
		configs:  make(map[string]Config),
	}
}

// Get returns the chat's config, loading it from storage on first use.
// A chat with no stored record gets the defaults, which are memoized too.
func (c *Cache) Get(ctx context.Context, chatID string) (Config, error) {
	c.mu.RLock()
	cfg, ok := c.configs[chatID]
	c.mu.RUnlock()
	if ok {
		return cfg, nil
	}

	settings, err := c.store.GetChatSettings(ctx, chatID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return Config{}, fmt.Errorf("loading config for %s: %w", chatID, err)
	}
	loaded := c.fromSettings(chatID, settings)

	c.mu.Lock()
	defer c.mu.Unlock()
	// A concurrent Get or Set may have won; the memoized value is authoritative.
	if cfg, ok := c.configs[chatID]; ok {
		return cfg, nil
	}
	c.configs[chatID] = loaded
	return loaded, nil
}

// SetFireProbability persists value and then updates the memoized config.
// The value is not range checked here.
func (c *Cache) SetFireProbability(ctx context.Context, chatID string, value float64) error {
	if err := c.store.SaveFireProbability(ctx, chatID, value); err != nil {
		return fmt.Errorf("saving fire probability for %s: %w", chatID, err)
	}
	c.update(chatID, func(cfg *Config) { cfg.FireProbability = value })
	return nil
}

// SetRecencyCapacity persists capacity and then updates the memoized config.
func (c *Cache) SetRecencyCapacity(ctx context.Context, chatID string, capacity int) error {
	if err := c.store.SaveRecencyCapacity(ctx, chatID, capacity); err != nil {
		return fmt.Errorf("saving recency capacity for %s: %w", chatID, err)
	}
	c.update(chatID, func(cfg *Config) { cfg.RecencyCapacity = capacity })
	return nil
}

// Update persists every non-nil field of u in one store call and then updates
// the memoized config. On error nothing changes.
func (c *Cache) Update(ctx context.Context, chatID string, u store.SettingsUpdate) error {
	if u.FireProbability == nil && u.RecencyCapacity == nil {
		return nil
	}
	if err := c.store.SaveChatSettings(ctx, chatID, u); err != nil {
		return fmt.Errorf("saving config for %s: %w", chatID, err)
	}
	c.update(chatID, func(cfg *Config) {
		if u.FireProbability != nil {
			cfg.FireProbability = *u.FireProbability
		}
		if u.RecencyCapacity != nil {
			cfg.RecencyCapacity = *u.RecencyCapacity
		}
	})
	return nil
}

// update applies fn to the memoized entry. A chat that was never loaded starts
// from defaults; its other stored fields are picked up on a later restart.
func (c *Cache) update(chatID string, fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cfg, ok := c.configs[chatID]
	if !ok {
		cfg = c.fromSettings(chatID, nil)
	}
	fn(&cfg)
	c.configs[chatID] = cfg
}

func (c *Cache) fromSettings(chatID string, s *store.ChatSettings) Config {
	cfg := Config{
		ChatID:          chatID,
		FireProbability: c.defaults.FireProbability,
		RecencyCapacity: c.defaults.RecencyCapacity,
	}
	if s == nil {
		return cfg
	}
	if s.FireProbability != nil {
		cfg.FireProbability = *s.FireProbability
	}
	if s.RecencyCapacity != nil {
		cfg.RecencyCapacity = *s.RecencyCapacity
	}
	return cfg
}
