// ABOUTME: Sliding-window tracker for recently processed message IDs.
// ABOUTME: The agent loop uses it to drop bus redeliveries.

package dedupe

import (
	"sync"
	"time"
)

// Seen remembers message IDs for a bounded time window so redelivered bus
// messages can be dropped. It keeps two generations of IDs and rotates them
// when the window elapses or the current generation reaches capacity: an ID
// is remembered for at least ttl and at most twice that, and memory is
// bounded at two generations of maxEntries.
type Seen struct {
	mu       sync.Mutex
	ttl      time.Duration
	cap      int
	current  map[string]struct{}
	previous map[string]struct{}
	rotated  time.Time

	now func() time.Time // injectable clock for tests
}

// New creates a tracker with the given window and per-generation capacity.
func New(ttl time.Duration, maxEntries int) *Seen {
	return &Seen{
		ttl:      ttl,
		cap:      maxEntries,
		current:  make(map[string]struct{}),
		previous: make(map[string]struct{}),
		rotated:  time.Now(),
		now:      time.Now,
	}
}

// Duplicate reports whether id was already recorded within the window, and
// records it otherwise. The check and the record are one atomic step, so two
// concurrent deliveries of the same message yield exactly one false.
func (s *Seen) Duplicate(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.maybeRotate()

	if _, ok := s.current[id]; ok {
		return true
	}
	if _, ok := s.previous[id]; ok {
		return true
	}
	s.current[id] = struct{}{}
	return false
}

// maybeRotate ages out the previous generation when the window has elapsed
// or the current generation is full. Must be called with mu held.
func (s *Seen) maybeRotate() {
	if s.now().Sub(s.rotated) < s.ttl && len(s.current) < s.cap {
		return
	}
	s.previous = s.current
	s.current = make(map[string]struct{}, len(s.previous))
	s.rotated = s.now()
}
