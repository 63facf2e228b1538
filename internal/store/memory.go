package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/convopulse/convopulse/internal/model"
)

// Memory is an in-process EventStore. It backs deployments without a
// database and every metrics test. Safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	events []model.MessageEvent
}

// NewMemory returns an empty in-memory event store.
func NewMemory() *Memory {
	return &Memory{}
}

// Append validates ev and records it. Read-after-write: the event is
// visible to any Query that starts after Append returns.
func (m *Memory) Append(_ context.Context, ev *model.MessageEvent) error {
	if err := Prepare(ev, time.Now()); err != nil {
		return err
	}
	m.mu.Lock()
	m.events = append(m.events, *ev)
	m.mu.Unlock()
	return nil
}

// Query returns copies of matching events ordered by timestamp ascending.
// Events with equal timestamps keep their append order.
func (m *Memory) Query(_ context.Context, f Filter) ([]model.MessageEvent, error) {
	m.mu.RLock()
	var out []model.MessageEvent
	for _, ev := range m.events {
		if f.Matches(ev) {
			out = append(out, ev)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// Len returns the number of stored events.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}
