// ABOUTME: In-memory message bus connecting channels to the agent loop.
// ABOUTME: Two bounded FIFO queues with synchronous-failure publish semantics.

package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// queueSize bounds each direction of the bus. Publishing to a full queue
// fails synchronously rather than blocking the publisher.
const queueSize = 256

// ErrBusClosed is returned when publishing after Close.
var ErrBusClosed = errors.New("bus closed")

// ErrBusFull is returned when a queue is saturated.
var ErrBusFull = errors.New("bus queue full")

// MessageBus is the in-process pub/sub seam between channels and the agent.
// Inbound messages flow from channels to the agent loop; outbound messages
// flow from the agent loop back to channels.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
}

// New creates a bus. Pass nil logger for the default.
func New(logger *slog.Logger) *MessageBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageBus{
		inbound:  make(chan InboundMessage, queueSize),
		outbound: make(chan OutboundMessage, queueSize),
		logger:   logger.With("component", "bus"),
	}
}

// PublishInbound enqueues a message for the agent loop. It never blocks:
// a saturated queue or a closed bus fails synchronously.
func (b *MessageBus) PublishInbound(ctx context.Context, msg InboundMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// The mutex stays held across the send so Close cannot slip between the
	// closed check and the enqueue and close the channel under us. The send
	// has a default case, so the lock is never held across a wait.
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}

	select {
	case b.inbound <- msg:
		return nil
	default:
		return ErrBusFull
	}
}

// PublishOutbound enqueues a message for channel delivery.
func (b *MessageBus) PublishOutbound(ctx context.Context, msg OutboundMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}

	select {
	case b.outbound <- msg:
		return nil
	default:
		return ErrBusFull
	}
}

// Inbound returns the receive side of the inbound queue. There is exactly one
// logical consumer: the agent loop.
func (b *MessageBus) Inbound() <-chan InboundMessage {
	return b.inbound
}

// Outbound returns the receive side of the outbound queue. There is exactly
// one logical consumer: the channel manager's routing loop.
func (b *MessageBus) Outbound() <-chan OutboundMessage {
	return b.outbound
}

// Close stops the bus. Queued messages are discarded by the consumers
// draining their channels. Safe to call multiple times.
func (b *MessageBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.inbound)
	close(b.outbound)
	b.logger.Debug("bus closed")
}
