// ABOUTME: Reminder scheduler that persists reminders and fires them onto the bus.
// ABOUTME: Polls the store for due reminders and publishes each as an outbound message.

package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warrenlabs/warren-gateway/internal/bus"
	"github.com/warrenlabs/warren-gateway/internal/store"
)

// DefaultPollInterval is how often the scheduler checks for due reminders.
const DefaultPollInterval = 15 * time.Second

// OutboundPublisher delivers fired reminders back to their channel.
type OutboundPublisher interface {
	PublishOutbound(ctx context.Context, msg bus.OutboundMessage) error
}

// ScheduleRequest describes a reminder to create.
type ScheduleRequest struct {
	Channel  string
	ChatID   string
	SenderID string
	Message  string
	At       string // ISO datetime or bare clock time
	TZ       string // optional IANA name or US abbreviation
}

// Scheduler persists reminders and delivers each one to its chat when due.
// Reminders survive restarts: due times live in the store, not in memory.
type Scheduler struct {
	store     store.Store
	publisher OutboundPublisher
	interval  time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewScheduler creates a Scheduler polling at the given interval.
// interval <= 0 uses DefaultPollInterval.
func NewScheduler(st store.Store, publisher OutboundPublisher, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:     st,
		publisher: publisher,
		interval:  interval,
		logger:    logger.With("component", "cron"),
	}
}

// Schedule parses the target time, persists the reminder, and returns it.
func (s *Scheduler) Schedule(ctx context.Context, req ScheduleRequest) (*store.Reminder, error) {
	if req.Channel == "" || req.ChatID == "" {
		return nil, fmt.Errorf("channel and chat_id are required")
	}
	if req.Message == "" {
		return nil, fmt.Errorf("message is required")
	}

	fireAt, resolvedTZ, err := ParseOneTimeAt(req.At, req.TZ)
	if err != nil {
		return nil, err
	}

	r := &store.Reminder{
		ID:        uuid.New().String(),
		Channel:   req.Channel,
		ChatID:    req.ChatID,
		SenderID:  req.SenderID,
		Message:   req.Message,
		FireAt:    fireAt,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.SaveReminder(ctx, r); err != nil {
		return nil, fmt.Errorf("saving reminder: %w", err)
	}

	s.logger.Info("reminder scheduled",
		"id", r.ID,
		"channel", r.Channel,
		"chat_id", r.ChatID,
		"fire_at", r.FireAt,
		"tz", resolvedTZ,
	)
	return r, nil
}

// List returns pending reminders for a conversation, soonest first.
func (s *Scheduler) List(ctx context.Context, channel, chatID string) ([]*store.Reminder, error) {
	return s.store.ListReminders(ctx, channel, chatID)
}

// Cancel removes a pending reminder.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	return s.store.DeleteReminder(ctx, id)
}

// Start launches the polling loop. Calling Start twice is an error.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("scheduler already started")
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(runCtx)
	s.logger.Info("reminder scheduler started", "interval", s.interval)
	return nil
}

// Stop halts the polling loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.started = false
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Fire anything that came due while we were down.
	s.deliverDue(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.deliverDue(ctx)
		}
	}
}

// deliverDue publishes every due reminder and marks it delivered. A reminder
// is only marked after a successful publish, so a full bus retries it on the
// next tick.
func (s *Scheduler) deliverDue(ctx context.Context) {
	due, err := s.store.DueReminders(ctx, time.Now())
	if err != nil {
		s.logger.Error("querying due reminders", "error", err)
		return
	}

	for _, r := range due {
		msg := bus.OutboundMessage{
			Channel: r.Channel,
			ChatID:  r.ChatID,
			Content: r.Message,
		}
		if err := s.publisher.PublishOutbound(ctx, msg); err != nil {
			s.logger.Warn("publishing reminder, will retry", "id", r.ID, "error", err)
			continue
		}
		if err := s.store.MarkReminderDelivered(ctx, r.ID); err != nil {
			s.logger.Error("marking reminder delivered", "id", r.ID, "error", err)
			continue
		}
		s.logger.Info("reminder delivered", "id", r.ID, "channel", r.Channel, "chat_id", r.ChatID)
	}
}
