// Package store provides persistent storage for the gateway using SQLite.
//
// # Data Models
//
//   - Message: one turn of a conversation transcript, keyed by
//     (channel, chat_id). The agent loop reads a recent window of these to
//     build model context, and appends both user and assistant turns.
//   - Reminder: a scheduled message the reminder scheduler delivers to a
//     chat at its fire time. Delivered reminders are retained, flagged.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//
// The schema is created on open, so a fresh database file is usable
// immediately. The driver is modernc.org/sqlite (pure Go, no cgo).
//
// # Error Handling
//
// ErrNotFound is returned when a requested record does not exist. All
// methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewSQLiteStore(filepath.Join(t.TempDir(), "test.db")) for integration
// tests with real SQLite.
package store
