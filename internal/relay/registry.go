// ABOUTME: Concurrency-safe correlation registry mapping request IDs to delivery channels.
// ABOUTME: One live entry per in-flight relay request; removal is unconditional on request exit.

package relay

import (
	"errors"
	"sync"

	"github.com/warrenlabs/warren-gateway/internal/bus"
)

// deliveryBuffer is the capacity of each per-request delivery channel. The
// dispatcher never blocks on a full channel; overflow is dropped with a
// warning, which the caller eventually observes as a timeout.
const deliveryBuffer = 256

// ErrDuplicateID indicates a correlation identifier collision. Identifiers
// are freshly minted UUIDs, so this signals a broken invariant rather than a
// recoverable condition; the affected request fails, the process does not.
var ErrDuplicateID = errors.New("correlation id already registered")

// Registry tracks in-flight relay requests by correlation identifier. Each
// entry owns a FIFO delivery channel carrying outbound messages from the
// dispatcher to the request's streaming loop.
type Registry struct {
	mu      sync.Mutex
	pending map[string]chan bus.OutboundMessage
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{pending: make(map[string]chan bus.OutboundMessage)}
}

// Register creates a delivery channel for id and inserts it. Returns
// ErrDuplicateID if an entry for id already exists.
func (r *Registry) Register(id string) (chan bus.OutboundMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pending[id]; exists {
		return nil, ErrDuplicateID
	}
	ch := make(chan bus.OutboundMessage, deliveryBuffer)
	r.pending[id] = ch
	return ch, nil
}

// Lookup returns the delivery channel for id, or nil if no entry exists.
func (r *Registry) Lookup(id string) chan bus.OutboundMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending[id]
}

// Remove deletes the entry for id. Idempotent; a missing entry is a no-op.
// The channel is not closed: the dispatcher may hold a reference from a
// racing Lookup, and a send on it is harmless once the entry is gone.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id)
}

// Drain discards all queued messages and clears every entry. Called at
// shutdown; in-flight streaming loops terminate via their own timeout or
// request-context cancellation.
func (r *Registry) Drain() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, ch := range r.pending {
		for {
			select {
			case <-ch:
				continue
			default:
			}
			break
		}
		delete(r.pending, id)
	}
}

// Len returns the number of in-flight entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
