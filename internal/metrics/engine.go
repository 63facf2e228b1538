// Package metrics derives engagement statistics from the event log.
//
// Every metric is a pure aggregation computed at read time from raw
// events. Nothing is pre-aggregated on the write path, so new metrics
// can be added without touching ingestion and counters cannot drift
// from the stored events.
package metrics

import (
	"context"
	"time"

	"github.com/convopulse/convopulse/internal/model"
	"github.com/convopulse/convopulse/internal/store"
)

// Engine computes engagement metrics from an EventStore. It holds no
// state of its own and is safe for concurrent use.
type Engine struct {
	store store.EventStore
}

// NewEngine returns an Engine reading from st.
func NewEngine(st store.EventStore) *Engine {
	return &Engine{store: st}
}

// dayRange returns the UTC calendar day containing date as [start, end).
func dayRange(date time.Time) (time.Time, time.Time) {
	d := date.UTC()
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// distinctUsers returns the set of user ids with at least one event in
// the half-open range [from, to).
func (e *Engine) distinctUsers(ctx context.Context, from, to time.Time) (map[string]struct{}, error) {
	events, err := e.store.Query(ctx, store.Filter{From: from, To: to})
	if err != nil {
		return nil, err
	}
	users := make(map[string]struct{})
	for _, ev := range events {
		users[ev.UserID] = struct{}{}
	}
	return users, nil
}

// ActiveUsers counts distinct users with at least one event on the UTC
// calendar date of date.
func (e *Engine) ActiveUsers(ctx context.Context, date time.Time) (int, error) {
	from, to := dayRange(date)
	users, err := e.distinctUsers(ctx, from, to)
	if err != nil {
		return 0, err
	}
	return len(users), nil
}

// Retention returns the percentage of the cohortDate cohort that was
// active again exactly offsetDays later, in [0, 100].
//
// The measure is exact-day return: a cohort member active on an
// intermediate day but not on the target day does not count. An empty
// cohort yields 0 by policy, not an error.
func (e *Engine) Retention(ctx context.Context, cohortDate time.Time, offsetDays int) (float64, error) {
	from, to := dayRange(cohortDate)
	cohort, err := e.distinctUsers(ctx, from, to)
	if err != nil {
		return 0, err
	}
	if len(cohort) == 0 {
		return 0, nil
	}

	from, to = dayRange(cohortDate.AddDate(0, 0, offsetDays))
	active, err := e.distinctUsers(ctx, from, to)
	if err != nil {
		return 0, err
	}

	returned := 0
	for u := range cohort {
		if _, ok := active[u]; ok {
			returned++
		}
	}
	return 100 * float64(returned) / float64(len(cohort)), nil
}

// SessionStats aggregates the events of one session. Returns (nil, nil)
// when the session has no events: a session with zero events does not
// exist, and absence is a result, not a failure.
func (e *Engine) SessionStats(ctx context.Context, sessionID string) (*model.SessionStats, error) {
	events, err := e.store.Query(ctx, store.Filter{SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	stats := sessionStatsOf(sessionID, events)
	return &stats, nil
}

// sessionStatsOf computes stats from the session's events, which must be
// ordered by timestamp ascending.
func sessionStatsOf(sessionID string, events []model.MessageEvent) model.SessionStats {
	stats := model.SessionStats{
		SessionID:    sessionID,
		MessageCount: len(events),
	}
	for _, ev := range events {
		switch ev.Role {
		case model.RoleUser:
			stats.UserMessageCount++
		case model.RoleAssistant:
			stats.AssistantMessageCount++
		}
	}
	stats.DurationSeconds = events[len(events)-1].Timestamp.Sub(events[0].Timestamp).Seconds()
	return stats
}

// EngagementReport summarizes all sessions with at least one event in
// the inclusive date range [startDate, endDate]. Per-session stats are
// computed over the in-range events only, so a session straddling the
// boundary contributes just its in-range portion. With zero qualifying
// sessions the averages are 0; the empty range is an explicit branch,
// never a division by zero.
func (e *Engine) EngagementReport(ctx context.Context, startDate, endDate time.Time) (*model.EngagementReport, error) {
	from, _ := dayRange(startDate)
	_, to := dayRange(endDate)
	events, err := e.store.Query(ctx, store.Filter{From: from, To: to})
	if err != nil {
		return nil, err
	}

	users := make(map[string]struct{})
	bySession := make(map[string][]model.MessageEvent)
	for _, ev := range events {
		users[ev.UserID] = struct{}{}
		bySession[ev.SessionID] = append(bySession[ev.SessionID], ev)
	}

	report := &model.EngagementReport{
		StartDate:       from,
		EndDate:         to.AddDate(0, 0, -1),
		ActiveUserCount: len(users),
		TotalSessions:   len(bySession),
	}
	if len(bySession) == 0 {
		return report, nil
	}

	var totalDuration, totalMessages float64
	for sessionID, sessionEvents := range bySession {
		stats := sessionStatsOf(sessionID, sessionEvents)
		totalDuration += stats.DurationSeconds
		totalMessages += float64(stats.MessageCount)
	}
	report.AvgSessionDurationSeconds = totalDuration / float64(len(bySession))
	report.AvgMessagesPerSession = totalMessages / float64(len(bySession))
	return report, nil
}

// DAU counts distinct users active on date.
func (e *Engine) DAU(ctx context.Context, date time.Time) (int, error) {
	return e.ActiveUsers(ctx, date)
}

// WAU counts distinct users active in the 7-day window ending on date.
func (e *Engine) WAU(ctx context.Context, date time.Time) (int, error) {
	return e.windowUsers(ctx, date, 7)
}

// MAU counts distinct users active in the 30-day window ending on date.
func (e *Engine) MAU(ctx context.Context, date time.Time) (int, error) {
	return e.windowUsers(ctx, date, 30)
}

func (e *Engine) windowUsers(ctx context.Context, date time.Time, days int) (int, error) {
	_, to := dayRange(date)
	from := to.AddDate(0, 0, -days)
	users, err := e.distinctUsers(ctx, from, to)
	if err != nil {
		return 0, err
	}
	return len(users), nil
}

// Stickiness returns the DAU/MAU ratio for date in [0, 1], or 0 when
// MAU is 0.
func (e *Engine) Stickiness(ctx context.Context, date time.Time) (float64, error) {
	dau, err := e.DAU(ctx, date)
	if err != nil {
		return 0, err
	}
	mau, err := e.MAU(ctx, date)
	if err != nil {
		return 0, err
	}
	if mau == 0 {
		return 0, nil
	}
	return float64(dau) / float64(mau), nil
}
