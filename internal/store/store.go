// ABOUTME: Store interface and data types for warren-gateway persistence
// ABOUTME: Defines Message, Reminder structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Message roles, from the model's point of view.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation transcript. A conversation is keyed
// by (channel, chat_id); sender distinguishes participants within a chat.
type Message struct {
	ID        string
	Channel   string
	ChatID    string
	SenderID  string
	Role      string
	Content   string
	CreatedAt time.Time
}

// Reminder is a scheduled message the gateway delivers to a chat at FireAt.
// Delivered reminders are kept for history rather than deleted.
type Reminder struct {
	ID        string
	Channel   string
	ChatID    string
	SenderID  string
	Message   string
	FireAt    time.Time
	Delivered bool
	CreatedAt time.Time
}

// Store persists conversation transcripts and reminders.
type Store interface {
	// SaveMessage appends a message to its conversation transcript.
	SaveMessage(ctx context.Context, msg *Message) error

	// RecentMessages returns up to limit of the newest messages for a
	// conversation, in chronological order (oldest first). limit <= 0
	// returns the whole transcript.
	RecentMessages(ctx context.Context, channel, chatID string, limit int) ([]*Message, error)

	// SaveReminder persists a new reminder.
	SaveReminder(ctx context.Context, r *Reminder) error

	// DueReminders returns undelivered reminders with FireAt at or before
	// the given instant, oldest first.
	DueReminders(ctx context.Context, now time.Time) ([]*Reminder, error)

	// MarkReminderDelivered flags a reminder as delivered.
	// Returns ErrNotFound if no such reminder exists.
	MarkReminderDelivered(ctx context.Context, id string) error

	// ListReminders returns undelivered reminders for a conversation,
	// soonest first.
	ListReminders(ctx context.Context, channel, chatID string) ([]*Reminder, error)

	// DeleteReminder removes a reminder.
	// Returns ErrNotFound if no such reminder exists.
	DeleteReminder(ctx context.Context, id string) error

	Close() error
}
