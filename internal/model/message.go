package model

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies which side of the conversation produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// MessageEvent is one conversation turn in the append-only event log.
// Events are immutable once stored; every event belongs to exactly one
// user and one session.
type MessageEvent struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	SessionID string    `json:"session_id" db:"session_id"`
	Role      Role      `json:"role" db:"role"`
	Content   string    `json:"content" db:"content"` // may be empty
	Timestamp time.Time `json:"timestamp" db:"created_at"`
}
