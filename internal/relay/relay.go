// ABOUTME: HTTP relay channel that bridges one-shot POST requests to SSE streams.
// ABOUTME: Owns the correlation registry and dispatches outbound bus messages to pending requests.

package relay

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/warrenlabs/warren-gateway/internal/bus"
	"github.com/warrenlabs/warren-gateway/internal/config"
)

// ChannelName identifies the relay on the bus. Inbound messages published by
// the relay carry it, and the channel manager routes outbound messages with
// this channel name back to Send.
const ChannelName = "http"

// InboundPublisher is the bus seam the relay publishes through. Publish may
// fail synchronously; the relay converts that into a terminal stream event.
type InboundPublisher interface {
	PublishInbound(ctx context.Context, msg bus.InboundMessage) error
}

// Channel is the HTTP relay channel. A POST to its route opens an SSE stream
// that stays up until the agent's terminal response, a timeout, or a
// transport failure. Outbound messages arrive out-of-band via Send and are
// matched to open streams through the correlation registry.
type Channel struct {
	cfg       config.HTTPRelayConfig
	publisher InboundPublisher
	registry  *Registry
	logger    *slog.Logger
	accepting atomic.Bool
}

// New creates the relay channel. Pass nil logger for the default.
func New(cfg config.HTTPRelayConfig, publisher InboundPublisher, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path == "" {
		cfg.Path = config.DefaultRelayPath
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = config.DefaultStreamTimeout
	}
	return &Channel{
		cfg:       cfg,
		publisher: publisher,
		registry:  NewRegistry(),
		logger:    logger.With("component", "relay"),
	}
}

// Name returns the channel name used for bus routing.
func (c *Channel) Name() string {
	return ChannelName
}

// RegisterRoutes registers the relay endpoint on the mux. The gateway owns
// the HTTP server; the relay only contributes its route.
func (c *Channel) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc(c.cfg.Path, c.handleMessagePost)
}

// Start begins accepting relay requests. Idempotent against double-start.
func (c *Channel) Start(ctx context.Context) error {
	if c.accepting.Swap(true) {
		return nil
	}
	c.logger.Info("http relay channel started",
		"path", c.cfg.Path,
		"stream_timeout", c.cfg.StreamTimeout,
	)
	return nil
}

// Stop flips the accepting flag and drains the registry. Queued-but-
// undelivered messages are discarded; open streaming loops terminate through
// their own timeout or request-context cancellation. Safe to call even if
// Start never ran.
func (c *Channel) Stop(ctx context.Context) error {
	c.accepting.Store(false)
	c.registry.Drain()
	c.logger.Info("http relay channel stopped")
	return nil
}

// Send is the outbound dispatcher. It resolves the correlation identifier
// from the message metadata and enqueues the message for the matching
// pending request. Messages without a resolvable identifier, or whose
// request is no longer pending, are dropped without error: they belong to a
// request that already timed out, was cancelled, or never existed here.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	requestID := msg.RequestID()
	if requestID == "" {
		return nil
	}

	ch := c.registry.Lookup(requestID)
	if ch == nil {
		c.logger.Debug("no pending relay request", "request_id", requestID)
		return nil
	}

	// Never block the dispatcher: a full delivery channel drops the message.
	select {
	case ch <- msg:
	default:
		c.logger.Warn("delivery channel full, dropping message", "request_id", requestID)
	}
	return nil
}

// Pending returns the number of in-flight relay requests.
func (c *Channel) Pending() int {
	return c.registry.Len()
}

// timeout returns the configured stream timeout.
func (c *Channel) timeout() time.Duration {
	return c.cfg.StreamTimeout
}
