package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/convopulse/convopulse/internal/model"
)

// ErrValidation is returned by Append when an event is missing required
// fields. The event is rejected, never partially stored.
var ErrValidation = errors.New("invalid message event")

// Filter is a conjunction of optional predicates over the event log.
// Zero values mean "no constraint". The time range is half-open: [From, To).
type Filter struct {
	UserID    string
	SessionID string
	From      time.Time
	To        time.Time
}

// Matches reports whether ev satisfies every set predicate.
func (f Filter) Matches(ev model.MessageEvent) bool {
	if f.UserID != "" && ev.UserID != f.UserID {
		return false
	}
	if f.SessionID != "" && ev.SessionID != f.SessionID {
		return false
	}
	if !f.From.IsZero() && ev.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !ev.Timestamp.Before(f.To) {
		return false
	}
	return true
}

// EventStore is the append-only log of conversation turns. A successful
// Append is visible to every subsequent Query on the same instance.
type EventStore interface {
	// Append validates ev, fills server-assigned fields and records it.
	// Returns an error wrapping ErrValidation when required fields are
	// missing or the role is unknown.
	Append(ctx context.Context, ev *model.MessageEvent) error

	// Query returns events matching f, ordered by timestamp ascending.
	// It never mutates store state.
	Query(ctx context.Context, f Filter) ([]model.MessageEvent, error)
}

// Prepare validates ev and fills server-assigned fields. Shared by all
// EventStore implementations so validation cannot drift between them.
func Prepare(ev *model.MessageEvent, now time.Time) error {
	if ev.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	if ev.SessionID == "" {
		return fmt.Errorf("%w: session_id is required", ErrValidation)
	}
	if !ev.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrValidation, ev.Role)
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = now
	}
	ev.Timestamp = ev.Timestamp.UTC()
	return nil
}
