package sinks

import (
	"context"
	"sync"

	"github.com/registrar-data/entityproc/internal/progress"
)

const defaultMemoryCapacity = 512

// MemorySink keeps the most recent events in a bounded ring so the debug
// listener can show what the run has done so far without any storage.
type MemorySink struct {
	mu       sync.Mutex
	capacity int
	events   []progress.Event
}

// NewMemorySink creates a ring holding up to capacity events (default 512).
func NewMemorySink(capacity int) *MemorySink {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &MemorySink{capacity: capacity}
}

// Consume appends the batch, evicting the oldest events beyond capacity.
func (s *MemorySink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, batch...)
	if over := len(s.events) - s.capacity; over > 0 {
		s.events = append([]progress.Event(nil), s.events[over:]...)
	}
	return nil
}

// Snapshot returns a copy of the retained events in arrival order.
func (s *MemorySink) Snapshot() []progress.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]progress.Event(nil), s.events...)
}

// Close implements the Sink interface; it performs no action.
func (s *MemorySink) Close(context.Context) error {
	return nil
}
