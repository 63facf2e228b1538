package model

import "time"

// SessionStats is the derived per-session aggregate. A session is never
// stored separately; it exists only as the ordered sequence of its events.
type SessionStats struct {
	SessionID             string  `json:"session_id"`
	MessageCount          int     `json:"message_count"`
	UserMessageCount      int     `json:"user_message_count"`
	AssistantMessageCount int     `json:"assistant_message_count"`
	DurationSeconds       float64 `json:"duration_seconds"`
}

// EngagementReport is a computed, ephemeral summary over a date range.
// Averages are zero when no session had any event in the range.
type EngagementReport struct {
	StartDate                 time.Time `json:"start_date"`
	EndDate                   time.Time `json:"end_date"`
	ActiveUserCount           int       `json:"active_user_count"`
	TotalSessions             int       `json:"total_sessions"`
	AvgSessionDurationSeconds float64   `json:"avg_session_duration_seconds"`
	AvgMessagesPerSession     float64   `json:"avg_messages_per_session"`
}
