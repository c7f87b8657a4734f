// ABOUTME: The agent loop: consumes inbound bus messages, calls the LLM, publishes replies.
// ABOUTME: Handles dedupe, transcript persistence, progress updates, and correlation metadata.

package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/warrenlabs/warren-gateway/internal/bus"
	"github.com/warrenlabs/warren-gateway/internal/config"
	"github.com/warrenlabs/warren-gateway/internal/dedupe"
	"github.com/warrenlabs/warren-gateway/internal/provider"
	"github.com/warrenlabs/warren-gateway/internal/store"
)

const (
	// progressNotice is sent while the model is still working.
	progressNotice = "Thinking..."

	// errorNotice replaces the reply when the provider call fails.
	errorNotice = "I could not process this message. Please retry."

	dedupeTTL     = 10 * time.Minute
	dedupeMaxSize = 4096
)

// OutboundPublisher delivers replies back onto the bus.
type OutboundPublisher interface {
	PublishOutbound(ctx context.Context, msg bus.OutboundMessage) error
}

// Loop is the conversational core of the gateway. One Loop serves all
// channels; messages are processed in arrival order.
type Loop struct {
	cfg       config.AgentConfig
	inbound   <-chan bus.InboundMessage
	publisher OutboundPublisher
	store     store.Store
	provider  provider.Provider
	seen      *dedupe.Seen
	logger    *slog.Logger
}

// NewLoop creates an agent loop reading from the given inbound queue.
func NewLoop(cfg config.AgentConfig, inbound <-chan bus.InboundMessage, publisher OutboundPublisher, st store.Store, p provider.Provider, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		cfg:       cfg,
		inbound:   inbound,
		publisher: publisher,
		store:     st,
		provider:  p,
		seen:      dedupe.New(dedupeTTL, dedupeMaxSize),
		logger:    logger.With("component", "agent"),
	}
}

// Run processes inbound messages until ctx is cancelled or the queue closes.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("agent loop started", "model", l.cfg.Model, "provider", l.provider.Name())

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("agent loop stopped")
			return

		case msg, ok := <-l.inbound:
			if !ok {
				l.logger.Info("inbound queue closed, agent loop stopped")
				return
			}
			l.handle(ctx, msg)
		}
	}
}

func (l *Loop) handle(ctx context.Context, msg bus.InboundMessage) {
	if msg.ID != "" && l.seen.Duplicate(msg.ID) {
		l.logger.Debug("dropping redelivered message", "id", msg.ID, "channel", msg.Channel)
		return
	}

	l.logger.Info("handling message",
		"channel", msg.Channel,
		"chat_id", msg.ChatID,
		"sender_id", msg.SenderID,
	)

	if err := l.saveTurn(ctx, msg.Channel, msg.ChatID, msg.SenderID, store.RoleUser, msg.Content); err != nil {
		l.logger.Error("saving user turn", "error", err)
		// History is best effort; still answer the message.
	}

	if l.cfg.ProgressUpdates {
		l.publishReply(ctx, msg, progressNotice, true)
	}

	reply := l.generateReply(ctx, msg)

	if err := l.saveTurn(ctx, msg.Channel, msg.ChatID, msg.SenderID, store.RoleAssistant, reply); err != nil {
		l.logger.Error("saving assistant turn", "error", err)
	}

	l.publishReply(ctx, msg, reply, false)
}

// generateReply builds model context from the transcript window and calls
// the provider. Failures come back as a user-facing retry notice.
func (l *Loop) generateReply(ctx context.Context, msg bus.InboundMessage) string {
	history, err := l.store.RecentMessages(ctx, msg.Channel, msg.ChatID, l.cfg.MemoryWindow)
	if err != nil {
		l.logger.Error("loading transcript window", "error", err)
		history = nil
	}

	req := provider.Request{
		System:      l.cfg.SystemPrompt,
		MaxTokens:   l.cfg.MaxTokens,
		Temperature: l.cfg.Temperature,
	}
	for _, turn := range history {
		role := provider.RoleUser
		if turn.Role == store.RoleAssistant {
			role = provider.RoleAssistant
		}
		req.History = append(req.History, provider.Turn{Role: role, Content: turn.Content})
	}
	if len(req.History) == 0 {
		// Transcript read failed or came back empty: fall back to just the
		// message we are answering.
		req.History = []provider.Turn{{Role: provider.RoleUser, Content: msg.Content}}
	}

	resp, err := l.provider.Chat(ctx, l.cfg.Model, req)
	if err != nil {
		l.logger.Error("provider call failed", "provider", l.provider.Name(), "error", err)
		return errorNotice
	}

	if resp.Usage.TotalTokens > 0 {
		l.logger.Debug("completion usage",
			"prompt_tokens", resp.Usage.PromptTokens,
			"completion_tokens", resp.Usage.CompletionTokens,
			"finish_reason", resp.FinishReason,
		)
	}
	return resp.Content
}

func (l *Loop) saveTurn(ctx context.Context, channel, chatID, senderID, role, content string) error {
	return l.store.SaveMessage(ctx, &store.Message{
		ID:        uuid.New().String(),
		Channel:   channel,
		ChatID:    chatID,
		SenderID:  senderID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
}

func (l *Loop) publishReply(ctx context.Context, in bus.InboundMessage, content string, progress bool) {
	out := bus.OutboundMessage{
		Channel:  in.Channel,
		ChatID:   in.ChatID,
		Content:  content,
		Metadata: replyMetadata(in, progress),
	}
	if err := l.publisher.PublishOutbound(ctx, out); err != nil {
		l.logger.Error("publishing reply", "channel", in.Channel, "chat_id", in.ChatID, "error", err)
	}
}

// replyMetadata carries the inbound correlation metadata onto a reply so
// the originating channel can match it to the waiting request. Progress
// updates additionally get the progress namespace with its flag set.
func replyMetadata(in bus.InboundMessage, progress bool) map[string]any {
	meta := make(map[string]any)

	if relay := in.Namespace(bus.RelayNamespace); relay != nil {
		copied := make(map[string]any, len(relay))
		for k, v := range relay {
			copied[k] = v
		}
		meta[bus.RelayNamespace] = copied
	}

	if progress {
		ns := map[string]any{bus.ProgressFlagKey: true}
		if id := in.RequestID(); id != "" {
			ns[bus.RequestIDKey] = id
		}
		meta[bus.ProgressNamespace] = ns
	}

	if len(meta) == 0 {
		return nil
	}
	return meta
}
