// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject storage failures

package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
// Setting one of the Fail* fields makes the matching operation return that error.
type MockStore struct {
	mu        sync.RWMutex
	rules     []*Rule                            // in registration order
	histories map[string]map[string][]ItemRecord // chatID -> category -> items
	settings  map[string]*ChatSettings           // keyed by chatID

	FailListRules   error
	FailUpsertRule  error
	FailLoadHistory error
	FailSaveHistory error
	FailGetSettings error
	FailSaveSetting error

	// Call counters, useful for asserting lazy-load behavior
	HistoryLoads int
	HistorySaves int
	SettingSaves int
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		histories: make(map[string]map[string][]ItemRecord),
		settings:  make(map[string]*ChatSettings),
	}
}

// ListRules returns copies of all rules in registration order.
func (m *MockStore) ListRules(ctx context.Context) ([]*Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailListRules != nil {
		return nil, m.FailListRules
	}

	result := make([]*Rule, len(m.rules))
	for i, r := range m.rules {
		c := *r
		result[i] = &c
	}
	return result, nil
}

// UpsertRule inserts a rule unless its (chat, name) already exists.
func (m *MockStore) UpsertRule(ctx context.Context, rule *Rule) (UpsertOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailUpsertRule != nil {
		return 0, m.FailUpsertRule
	}

	for _, r := range m.rules {
		if r.ChatID == rule.ChatID && r.Name == rule.Name {
			return UpsertRejectedDuplicate, ErrDuplicateRule
		}
	}

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	// Make a copy to avoid external modification
	c := *rule
	m.rules = append(m.rules, &c)
	return UpsertInserted, nil
}

// LoadCategoryHistories returns copies of all histories stored for a chat.
func (m *MockStore) LoadCategoryHistories(ctx context.Context, chatID string) (map[string][]ItemRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.HistoryLoads++
	if m.FailLoadHistory != nil {
		return nil, m.FailLoadHistory
	}

	result := make(map[string][]ItemRecord)
	for key, items := range m.histories[chatID] {
		result[key] = append([]ItemRecord(nil), items...)
	}
	return result, nil
}

// SaveCategoryHistory replaces one category history of a chat.
func (m *MockStore) SaveCategoryHistory(ctx context.Context, chatID, categoryKey string, items []ItemRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.HistorySaves++
	if m.FailSaveHistory != nil {
		return m.FailSaveHistory
	}

	byKey, ok := m.histories[chatID]
	if !ok {
		byKey = make(map[string][]ItemRecord)
		m.histories[chatID] = byKey
	}
	byKey[categoryKey] = append([]ItemRecord(nil), items...)
	return nil
}

// GetChatSettings returns a copy of the stored settings or ErrNotFound.
func (m *MockStore) GetChatSettings(ctx context.Context, chatID string) (*ChatSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailGetSettings != nil {
		return nil, m.FailGetSettings
	}

	s, ok := m.settings[chatID]
	if !ok {
		return nil, ErrNotFound
	}

	result := *s
	return &result, nil
}

// SaveFireProbability stores the fire probability of a chat.
func (m *MockStore) SaveFireProbability(ctx context.Context, chatID string, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailSaveSetting != nil {
		return m.FailSaveSetting
	}

	s := m.settingsLocked(chatID)
	s.FireProbability = &value
	return nil
}

// SaveRecencyCapacity stores the seen-item history length of a chat.
func (m *MockStore) SaveRecencyCapacity(ctx context.Context, chatID string, capacity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailSaveSetting != nil {
		return m.FailSaveSetting
	}

	s := m.settingsLocked(chatID)
	s.RecencyCapacity = &capacity
	return nil
}

// SaveChatSettings applies every non-nil field of update in one step.
func (m *MockStore) SaveChatSettings(ctx context.Context, chatID string, update SettingsUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SettingSaves++
	if m.FailSaveSetting != nil {
		return m.FailSaveSetting
	}

	s := m.settingsLocked(chatID)
	if update.FireProbability != nil {
		v := *update.FireProbability
		s.FireProbability = &v
	}
	if update.RecencyCapacity != nil {
		c := *update.RecencyCapacity
		s.RecencyCapacity = &c
	}
	return nil
}

// settingsLocked returns the settings entry of a chat, creating it. Must be called with mu held.
func (m *MockStore) settingsLocked(chatID string) *ChatSettings {
	s, ok := m.settings[chatID]
	if !ok {
		s = &ChatSettings{ChatID: chatID}
		m.settings[chatID] = s
	}
	s.UpdatedAt = time.Now().UTC()
	return s
}

// Close is a no-op for the mock.
func (m *MockStore) Close() error {
	return nil
}

// Compile-time interface checks
var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MockStore)(nil)
)
