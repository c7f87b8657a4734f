// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides transcript/reminder persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so lexicographic ORDER BY on timestamp columns
// matches chronological order (RFC3339Nano drops trailing zeros and does not).
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

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

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			channel TEXT NOT NULL,
			chat_id TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL,

			CHECK (role IN ('user', 'assistant'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(channel, chat_id, created_at);

		CREATE TABLE IF NOT EXISTS reminders (
			id TEXT PRIMARY KEY,
			channel TEXT NOT NULL,
			chat_id TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			message TEXT NOT NULL,
			fire_at TEXT NOT NULL,
			delivered INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_reminders_due
			ON reminders(delivered, fire_at);

		CREATE INDEX IF NOT EXISTS idx_reminders_conversation
			ON reminders(channel, chat_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// SaveMessage appends a message to its conversation transcript
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *Message) error {
	query := `
		INSERT INTO messages (id, channel, chat_id, sender_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.Channel,
		msg.ChatID,
		msg.SenderID,
		msg.Role,
		msg.Content,
		msg.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("saved message", "id", msg.ID, "channel", msg.Channel, "chat_id", msg.ChatID, "role", msg.Role)
	return nil
}

// RecentMessages retrieves the most recent messages for a conversation,
// returned in chronological order (oldest first).
// If limit is 0 or negative, all messages are returned.
func (s *SQLiteStore) RecentMessages(ctx context.Context, channel, chatID string, limit int) ([]*Message, error) {
	var query string
	var args []any

	if limit > 0 {
		// Get the N most recent messages, but return them in chronological order
		query = `
			SELECT id, channel, chat_id, sender_id, role, content, created_at
			FROM (
				SELECT id, channel, chat_id, sender_id, role, content, created_at
				FROM messages
				WHERE channel = ? AND chat_id = ?
				ORDER BY created_at DESC
				LIMIT ?
			)
			ORDER BY created_at ASC
		`
		args = []any{channel, chatID, limit}
	} else {
		query = `
			SELECT id, channel, chat_id, sender_id, role, content, created_at
			FROM messages
			WHERE channel = ? AND chat_id = ?
			ORDER BY created_at ASC
		`
		args = []any{channel, chatID}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var createdAtStr string

		if err := rows.Scan(&msg.ID, &msg.Channel, &msg.ChatID, &msg.SenderID, &msg.Role, &msg.Content, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}

		msg.CreatedAt, err = time.Parse(timeLayout, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing message created_at: %w", err)
		}

		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	return messages, nil
}

// SaveReminder persists a new reminder
func (s *SQLiteStore) SaveReminder(ctx context.Context, r *Reminder) error {
	query := `
		INSERT INTO reminders (id, channel, chat_id, sender_id, message, fire_at, delivered, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		r.ID,
		r.Channel,
		r.ChatID,
		r.SenderID,
		r.Message,
		r.FireAt.UTC().Format(timeLayout),
		boolToInt(r.Delivered),
		r.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting reminder: %w", err)
	}

	s.logger.Debug("saved reminder", "id", r.ID, "chat_id", r.ChatID, "fire_at", r.FireAt)
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// DueReminders returns undelivered reminders with fire_at at or before now,
// oldest first.
func (s *SQLiteStore) DueReminders(ctx context.Context, now time.Time) ([]*Reminder, error) {
	query := `
		SELECT id, channel, chat_id, sender_id, message, fire_at, delivered, created_at
		FROM reminders
		WHERE delivered = 0 AND fire_at <= ?
		ORDER BY fire_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, now.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("querying due reminders: %w", err)
	}
	defer rows.Close()

	return scanReminders(rows)
}

// ListReminders returns undelivered reminders for a conversation, soonest first.
func (s *SQLiteStore) ListReminders(ctx context.Context, channel, chatID string) ([]*Reminder, error) {
	query := `
		SELECT id, channel, chat_id, sender_id, message, fire_at, delivered, created_at
		FROM reminders
		WHERE delivered = 0 AND channel = ? AND chat_id = ?
		ORDER BY fire_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, channel, chatID)
	if err != nil {
		return nil, fmt.Errorf("querying reminders: %w", err)
	}
	defer rows.Close()

	return scanReminders(rows)
}

func scanReminders(rows *sql.Rows) ([]*Reminder, error) {
	var reminders []*Reminder
	for rows.Next() {
		var r Reminder
		var fireAtStr, createdAtStr string
		var delivered int

		if err := rows.Scan(&r.ID, &r.Channel, &r.ChatID, &r.SenderID, &r.Message, &fireAtStr, &delivered, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning reminder row: %w", err)
		}

		var err error
		r.FireAt, err = time.Parse(timeLayout, fireAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing reminder fire_at: %w", err)
		}
		r.CreatedAt, err = time.Parse(timeLayout, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing reminder created_at: %w", err)
		}
		r.Delivered = delivered != 0

		reminders = append(reminders, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reminder rows: %w", err)
	}
	return reminders, nil
}

// MarkReminderDelivered flags a reminder as delivered.
// Returns ErrNotFound if the reminder doesn't exist.
func (s *SQLiteStore) MarkReminderDelivered(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE reminders SET delivered = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("marking reminder delivered: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("marked reminder delivered", "id", id)
	return nil
}

// DeleteReminder removes a reminder.
// Returns ErrNotFound if the reminder doesn't exist.
func (s *SQLiteStore) DeleteReminder(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting reminder: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted reminder", "id", id)
	return nil
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
