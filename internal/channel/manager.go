// ABOUTME: Manages chat channels, their lifecycle, and routing of outbound messages.
// ABOUTME: Central coordinator between the message bus and channel implementations.

package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/warrenlabs/warren-gateway/internal/bus"
)

// ErrChannelAlreadyRegistered indicates a channel with the same name is already registered.
var ErrChannelAlreadyRegistered = errors.New("channel already registered")

// ErrChannelNotFound indicates the named channel is not registered.
var ErrChannelNotFound = errors.New("channel not found")

// Channel is a transport the gateway can receive messages from and deliver
// replies to. Implementations publish inbound traffic on the message bus and
// receive outbound traffic through Send.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

// Manager owns the registered channels and pumps outbound bus messages to
// the channel named on each message.
type Manager struct {
	channels map[string]Channel
	outbound <-chan bus.OutboundMessage
	mu       sync.RWMutex
	logger   *slog.Logger

	wg sync.WaitGroup
}

// NewManager creates a Manager that drains the given outbound queue.
func NewManager(outbound <-chan bus.OutboundMessage, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		channels: make(map[string]Channel),
		outbound: outbound,
		logger:   logger.With("component", "channels"),
	}
}

// Register adds a channel to the manager.
// Returns ErrChannelAlreadyRegistered if the name is taken.
func (m *Manager) Register(c Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.channels[c.Name()]; exists {
		return ErrChannelAlreadyRegistered
	}
	m.channels[c.Name()] = c
	m.logger.Info("channel registered", "channel", c.Name(), "total", len(m.channels))
	return nil
}

// Get retrieves a registered channel by name.
func (m *Manager) Get(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.channels[name]
	return c, ok
}

// Names returns the names of all registered channels.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}

// StartAll starts every registered channel and begins routing outbound
// messages. A channel that fails to start aborts the whole startup.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, c := range m.channels {
		if err := c.Start(ctx); err != nil {
			return fmt.Errorf("starting channel %s: %w", name, err)
		}
		m.logger.Info("channel started", "channel", name)
	}

	m.wg.Add(1)
	go m.routeOutbound(ctx)
	return nil
}

// StopAll stops every registered channel. Errors are logged, not returned:
// shutdown should always reach every channel.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, c := range m.channels {
		if err := c.Stop(ctx); err != nil {
			m.logger.Error("stopping channel", "channel", name, "error", err)
		}
	}
}

// Wait blocks until the outbound routing loop has exited.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// routeOutbound delivers each outbound bus message to the channel it names.
// Messages for unknown channels are dropped with a warning.
func (m *Manager) routeOutbound(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("outbound routing stopped")
			return

		case msg, ok := <-m.outbound:
			if !ok {
				m.logger.Debug("outbound queue closed")
				return
			}

			c, found := m.Get(msg.Channel)
			if !found {
				m.logger.Warn("dropping message for unknown channel", "channel", msg.Channel)
				continue
			}

			if err := c.Send(ctx, msg); err != nil {
				m.logger.Error("delivering outbound message",
					"channel", msg.Channel,
					"chat_id", msg.ChatID,
					"error", err,
				)
			}
		}
	}
}
