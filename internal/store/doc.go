// Package store provides persistent storage for coven-responder using SQLite.
//
// # Architecture
//
// The Store interface covers the three kinds of state the responder keeps:
//
//   - Rules: user-defined autoreply rules, loaded once at startup
//   - Seen items: per-chat, per-category histories of recently posted items
//   - Chat settings: fire probability and history length overrides
//
// SQLiteStore implements Store on modernc.org/sqlite. It keeps a single open
// connection, so at most one operation is in flight and callers queue behind
// each other, across chats as well.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: no settings stored for a chat
//   - ErrDuplicateRule: a rule with the same chat and name exists
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewMockStore() for unit tests. Its Fail* fields inject storage failures:
//
//	s := store.NewMockStore()
//	s.FailSaveHistory = errors.New("disk full")
//
// Use NewSQLiteStore with a path under t.TempDir() for integration tests.
package store
