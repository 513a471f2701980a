// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Persists autoreply rules, seen-item histories and chat settings

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection: every operation queues behind the one in flight.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS autoreplies (
			id             TEXT PRIMARY KEY,
			chat_id        TEXT NOT NULL,
			name           TEXT NOT NULL,
			pattern        TEXT NOT NULL,
			response_kind  TEXT NOT NULL,
			response_value TEXT NOT NULL,
			created_at     TEXT NOT NULL,

			UNIQUE(chat_id, name),
			CHECK (response_kind IN ('literal', 'item'))
		);

		CREATE INDEX IF NOT EXISTS idx_autoreplies_chat ON autoreplies(chat_id);

		CREATE TABLE IF NOT EXISTS seen_items (
			chat_id      TEXT NOT NULL,
			category_key TEXT NOT NULL,
			position     INTEGER NOT NULL,
			unique_id    TEXT NOT NULL,
			payload_ref  TEXT NOT NULL,

			PRIMARY KEY (chat_id, category_key, position)
		);

		CREATE TABLE IF NOT EXISTS chat_configs (
			chat_id          TEXT PRIMARY KEY,
			fire_probability REAL,
			updated_at       TEXT NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	var exists int
	err := s.db.QueryRow(`SELECT 1 FROM pragma_table_info('chat_configs') WHERE name = 'recency_capacity'`).Scan(&exists)
	if err == nil {
		return nil
	}
	if _, err := s.db.Exec(`ALTER TABLE chat_configs ADD COLUMN recency_capacity INTEGER`); err != nil {
		return fmt.Errorf("adding recency_capacity column to chat_configs: %w", err)
	}
	s.logger.Info("applied migration", "column", "recency_capacity", "table", "chat_configs")
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// ListRules returns every stored rule in registration order.
func (s *SQLiteStore) ListRules(ctx context.Context) ([]*Rule, error) {
	query := `
		SELECT id, chat_id, name, pattern, response_kind, response_value, created_at
		FROM autoreplies
		ORDER BY rowid ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	defer rows.Close()

	var rules []*Rule
	for rows.Next() {
		var r Rule
		var createdAtStr string
		if err := rows.Scan(&r.ID, &r.ChatID, &r.Name, &r.Pattern, &r.ResponseKind, &r.ResponseValue, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning rule: %w", err)
		}
		r.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		rules = append(rules, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rules: %w", err)
	}

	return rules, nil
}

// UpsertRule inserts a new rule. A rule whose (chat_id, name) already exists is
// rejected with UpsertRejectedDuplicate and ErrDuplicateRule; nothing is changed.
// An empty ID is filled with a new UUID and a zero CreatedAt with the current time.
func (s *SQLiteStore) UpsertRule(ctx context.Context, rule *Rule) (UpsertOutcome, error) {
	if rule.ResponseKind != ResponseKindLiteral && rule.ResponseKind != ResponseKindItem {
		return 0, fmt.Errorf("invalid response kind %q", rule.ResponseKind)
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO autoreplies (id, chat_id, name, pattern, response_kind, response_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		rule.ID,
		rule.ChatID,
		rule.Name,
		rule.Pattern,
		rule.ResponseKind,
		rule.ResponseValue,
		rule.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return UpsertRejectedDuplicate, ErrDuplicateRule
		}
		return 0, fmt.Errorf("inserting rule: %w", err)
	}

	s.logger.Debug("inserted rule", "id", rule.ID, "chat", rule.ChatID, "name", rule.Name)
	return UpsertInserted, nil
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// LoadCategoryHistories returns every category history stored for a chat.
// Each history is ordered most recent first. A chat without history yields an
// empty, non-nil map.
func (s *SQLiteStore) LoadCategoryHistories(ctx context.Context, chatID string) (map[string][]ItemRecord, error) {
	query := `
		SELECT category_key, unique_id, payload_ref
		FROM seen_items
		WHERE chat_id = ?
		ORDER BY category_key ASC, position ASC
	`

	rows, err := s.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("querying seen items: %w", err)
	}
	defer rows.Close()

	histories := make(map[string][]ItemRecord)
	for rows.Next() {
		var key string
		var item ItemRecord
		if err := rows.Scan(&key, &item.UniqueID, &item.PayloadRef); err != nil {
			return nil, fmt.Errorf("scanning seen item: %w", err)
		}
		histories[key] = append(histories[key], item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating seen items: %w", err)
	}

	return histories, nil
}

// SaveCategoryHistory replaces the stored history of one category in a chat.
// The slice order is preserved.
func (s *SQLiteStore) SaveCategoryHistory(ctx context.Context, chatID, categoryKey string, items []ItemRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM seen_items WHERE chat_id = ? AND category_key = ?`,
		chatID, categoryKey,
	); err != nil {
		return fmt.Errorf("clearing seen items: %w", err)
	}

	insert := `
		INSERT INTO seen_items (chat_id, category_key, position, unique_id, payload_ref)
		VALUES (?, ?, ?, ?, ?)
	`
	for i, item := range items {
		if _, err := tx.ExecContext(ctx, insert, chatID, categoryKey, i, item.UniqueID, item.PayloadRef); err != nil {
			return fmt.Errorf("inserting seen item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing seen items: %w", err)
	}

	s.logger.Debug("saved category history", "chat", chatID, "category", categoryKey, "count", len(items))
	return nil
}

// GetChatSettings retrieves the stored settings of a chat.
// Returns ErrNotFound if nothing was ever stored for it.
func (s *SQLiteStore) GetChatSettings(ctx context.Context, chatID string) (*ChatSettings, error) {
	query := `
		SELECT chat_id, fire_probability, recency_capacity, updated_at
		FROM chat_configs
		WHERE chat_id = ?
	`

	var settings ChatSettings
	var probability sql.NullFloat64
	var capacity sql.NullInt64
	var updatedAtStr string

	err := s.db.QueryRowContext(ctx, query, chatID).Scan(
		&settings.ChatID,
		&probability,
		&capacity,
		&updatedAtStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying chat config: %w", err)
	}

	if probability.Valid {
		p := probability.Float64
		settings.FireProbability = &p
	}
	if capacity.Valid {
		c := int(capacity.Int64)
		settings.RecencyCapacity = &c
	}

	settings.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &settings, nil
}

// SaveFireProbability stores the fire probability of a chat, creating the row if needed.
func (s *SQLiteStore) SaveFireProbability(ctx context.Context, chatID string, value float64) error {
	query := `
		INSERT INTO chat_configs (chat_id, fire_probability, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			fire_probability = excluded.fire_probability,
			updated_at = excluded.updated_at
	`

	if _, err := s.db.ExecContext(ctx, query, chatID, value, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("saving fire probability: %w", err)
	}

	s.logger.Debug("saved fire probability", "chat", chatID, "value", value)
	return nil
}

// SaveChatSettings writes every non-nil field of update in a single statement,
// so either all of them are stored or none is.
func (s *SQLiteStore) SaveChatSettings(ctx context.Context, chatID string, update SettingsUpdate) error {
	query := `
		INSERT INTO chat_configs (chat_id, fire_probability, recency_capacity, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			fire_probability = COALESCE(excluded.fire_probability, chat_configs.fire_probability),
			recency_capacity = COALESCE(excluded.recency_capacity, chat_configs.recency_capacity),
			updated_at = excluded.updated_at
	`

	var probability, capacity any
	if update.FireProbability != nil {
		probability = *update.FireProbability
	}
	if update.RecencyCapacity != nil {
		capacity = *update.RecencyCapacity
	}

	if _, err := s.db.ExecContext(ctx, query, chatID, probability, capacity, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("saving chat settings: %w", err)
	}

	s.logger.Debug("saved chat settings", "chat", chatID)
	return nil
}

// SaveRecencyCapacity stores the seen-item history length of a chat, creating the row if needed.
func (s *SQLiteStore) SaveRecencyCapacity(ctx context.Context, chatID string, capacity int) error {
	query := `
		INSERT INTO chat_configs (chat_id, recency_capacity, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			recency_capacity = excluded.recency_capacity,
			updated_at = excluded.updated_at
	`

	if _, err := s.db.ExecContext(ctx, query, chatID, capacity, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("saving recency capacity: %w", err)
	}

	s.logger.Debug("saved recency capacity", "chat", chatID, "capacity", capacity)
	return nil
}
