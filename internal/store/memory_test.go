package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/convopulse/convopulse/internal/model"
)

func ts(t *testing.T, v string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, v)
	if err != nil {
		t.Fatalf("parse time %q: %v", v, err)
	}
	return parsed
}

func TestMemoryAppendValidation(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	cases := []struct {
		name string
		ev   model.MessageEvent
	}{
		{"missing user_id", model.MessageEvent{SessionID: "S1", Role: model.RoleUser}},
		{"missing session_id", model.MessageEvent{UserID: "U1", Role: model.RoleUser}},
		{"unknown role", model.MessageEvent{UserID: "U1", SessionID: "S1", Role: "system"}},
	}
	for _, tc := range cases {
		ev := tc.ev
		err := m.Append(ctx, &ev)
		if !errors.Is(err, ErrValidation) {
			t.Errorf("%s: expected ErrValidation, got %v", tc.name, err)
		}
	}
	if m.Len() != 0 {
		t.Fatalf("rejected events must not be stored, got %d", m.Len())
	}
}

func TestMemoryAppendAssignsServerFields(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	before := time.Now().UTC()
	ev := model.MessageEvent{UserID: "U1", SessionID: "S1", Role: model.RoleUser, Content: "hi"}
	if err := m.Append(ctx, &ev); err != nil {
		t.Fatalf("append: %v", err)
	}
	if ev.ID == uuid.Nil {
		t.Error("expected server-assigned id")
	}
	if ev.Timestamp.Before(before) {
		t.Errorf("expected server-assigned timestamp >= %v, got %v", before, ev.Timestamp)
	}

	// Read-after-write: visible to the next query on the same instance.
	got, err := m.Query(ctx, Filter{SessionID: "S1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].ID != ev.ID {
		t.Fatalf("expected the appended event, got %+v", got)
	}
}

func TestMemoryQueryFilterAndOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	seed := []model.MessageEvent{
		{UserID: "U1", SessionID: "S1", Role: model.RoleUser, Timestamp: ts(t, "2024-01-01T10:00:05Z")},
		{UserID: "U1", SessionID: "S1", Role: model.RoleAssistant, Timestamp: ts(t, "2024-01-01T10:00:00Z")},
		{UserID: "U2", SessionID: "S2", Role: model.RoleUser, Timestamp: ts(t, "2024-01-02T09:00:00Z")},
		{UserID: "U1", SessionID: "S3", Role: model.RoleUser, Timestamp: ts(t, "2024-01-03T09:00:00Z")},
	}
	for i := range seed {
		if err := m.Append(ctx, &seed[i]); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	all, err := m.Query(ctx, Filter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 events, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Timestamp.Before(all[i-1].Timestamp) {
			t.Fatalf("events not ordered by timestamp ascending at %d", i)
		}
	}

	bySession, _ := m.Query(ctx, Filter{SessionID: "S1"})
	if len(bySession) != 2 {
		t.Errorf("session filter: expected 2 events, got %d", len(bySession))
	}

	// Conjunction: user AND time range.
	got, _ := m.Query(ctx, Filter{
		UserID: "U1",
		From:   ts(t, "2024-01-02T00:00:00Z"),
		To:     ts(t, "2024-01-04T00:00:00Z"),
	})
	if len(got) != 1 || got[0].SessionID != "S3" {
		t.Errorf("conjunction filter: expected S3 only, got %+v", got)
	}

	// To is exclusive.
	got, _ = m.Query(ctx, Filter{To: ts(t, "2024-01-02T09:00:00Z")})
	if len(got) != 2 {
		t.Errorf("exclusive To: expected 2 events, got %d", len(got))
	}
}

func TestMemoryConcurrentAppends(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				ev := model.MessageEvent{UserID: "U1", SessionID: "S1", Role: model.RoleUser}
				if err := m.Append(ctx, &ev); err != nil {
					t.Errorf("append: %v", err)
				}
			}
		}(g)
	}
	wg.Wait()

	got, err := m.Query(ctx, Filter{SessionID: "S1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 200 {
		t.Fatalf("expected 200 events after concurrent appends, got %d", len(got))
	}
}
