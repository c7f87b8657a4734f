// ABOUTME: Tests for the seen-ID tracker.
// ABOUTME: Covers redelivery suppression, window expiry, capacity, and races.

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDuplicate_DropsRedeliveredID(t *testing.T) {
	s := New(time.Minute, 16)

	assert.False(t, s.Duplicate("msg-1"), "first delivery must pass")
	assert.True(t, s.Duplicate("msg-1"), "redelivery must be dropped")
	assert.True(t, s.Duplicate("msg-1"))
}

func TestDuplicate_DistinctIDsPass(t *testing.T) {
	s := New(time.Minute, 16)

	assert.False(t, s.Duplicate("msg-1"))
	assert.False(t, s.Duplicate("msg-2"))
	assert.True(t, s.Duplicate("msg-1"))
	assert.True(t, s.Duplicate("msg-2"))
}

func TestDuplicate_RememberedAcrossOneRotation(t *testing.T) {
	clock := time.Now()
	s := New(time.Minute, 16)
	s.now = func() time.Time { return clock }
	s.rotated = clock

	assert.False(t, s.Duplicate("msg-1"))

	// One window later the ID has moved to the previous generation but is
	// still remembered.
	clock = clock.Add(time.Minute + time.Second)
	assert.False(t, s.Duplicate("msg-2"), "fresh ID passes")
	assert.True(t, s.Duplicate("msg-1"), "ID from previous window still dropped")
}

func TestDuplicate_ExpiresAfterTwoWindows(t *testing.T) {
	clock := time.Now()
	s := New(time.Minute, 16)
	s.now = func() time.Time { return clock }
	s.rotated = clock

	assert.False(t, s.Duplicate("msg-1"))

	clock = clock.Add(time.Minute + time.Second)
	s.Duplicate("rotate-a")
	clock = clock.Add(time.Minute + time.Second)
	s.Duplicate("rotate-b")

	assert.False(t, s.Duplicate("msg-1"), "ID older than two windows is forgotten")
}

func TestDuplicate_CapacityBoundsMemory(t *testing.T) {
	s := New(time.Hour, 4)

	for i := 0; i < 100; i++ {
		s.Duplicate(fmt.Sprintf("msg-%d", i))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.LessOrEqual(t, len(s.current), 4)
	assert.LessOrEqual(t, len(s.previous), 4)
}

func TestDuplicate_OldestGenerationEvictedWhenFull(t *testing.T) {
	s := New(time.Hour, 2)

	assert.False(t, s.Duplicate("msg-1"))
	assert.False(t, s.Duplicate("msg-2"))
	// Filling two more generations pushes msg-1 out entirely.
	assert.False(t, s.Duplicate("msg-3"))
	assert.False(t, s.Duplicate("msg-4"))
	assert.False(t, s.Duplicate("msg-5"))
	assert.False(t, s.Duplicate("msg-6"))

	assert.False(t, s.Duplicate("msg-1"), "evicted ID passes again")
}

// Concurrent deliveries of the same message must let exactly one through.
func TestDuplicate_ConcurrentDeliveries(t *testing.T) {
	s := New(time.Minute, 1024)

	const workers = 16
	var wg sync.WaitGroup
	passed := make(chan struct{}, workers)
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if !s.Duplicate("msg-contended") {
				passed <- struct{}{}
			}
		}()
	}

	close(start)
	wg.Wait()
	close(passed)

	count := 0
	for range passed {
		count++
	}
	assert.Equal(t, 1, count, "exactly one delivery passes")
}
