package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/convopulse/convopulse/internal/metrics"
	"github.com/convopulse/convopulse/internal/response"
)

// MetricsHandler serves the query side: engagement and retention
// metrics computed from the event log at read time.
type MetricsHandler struct {
	Engine *metrics.Engine
}

// ActiveUsers returns the distinct active user count for one date
// (GET /metrics/active-users?date=YYYY-MM-DD).
func (h *MetricsHandler) ActiveUsers(c echo.Context) error {
	date, err := parseDate(c.QueryParam("date"))
	if err != nil {
		return response.BadRequest(c, "invalid date", err.Error())
	}
	count, err := h.Engine.ActiveUsers(c.Request().Context(), date)
	if err != nil {
		return response.InternalError(c, "active users failed", err.Error())
	}
	return response.OK(c, map[string]any{
		"date":         date.Format(dateLayout),
		"active_users": count,
	}, "")
}

// Retention returns the exact-day cohort retention percentage
// (GET /metrics/retention?cohort_date=YYYY-MM-DD&offset_days=N).
func (h *MetricsHandler) Retention(c echo.Context) error {
	cohortDate, err := parseDate(c.QueryParam("cohort_date"))
	if err != nil {
		return response.BadRequest(c, "invalid cohort_date", err.Error())
	}
	offsetDays, err := strconv.Atoi(c.QueryParam("offset_days"))
	if err != nil || offsetDays < 0 {
		return response.BadRequest(c, "invalid offset_days", "offset_days must be a non-negative integer")
	}
	pct, err := h.Engine.Retention(c.Request().Context(), cohortDate, offsetDays)
	if err != nil {
		return response.InternalError(c, "retention failed", err.Error())
	}
	return response.OK(c, map[string]any{
		"cohort_date":   cohortDate.Format(dateLayout),
		"offset_days":   offsetDays,
		"retention_pct": pct,
	}, "")
}

// SessionStats returns the per-session aggregate
// (GET /sessions/:id/stats). A session with no events is a 404.
func (h *MetricsHandler) SessionStats(c echo.Context) error {
	sessionID := c.Param("id")
	stats, err := h.Engine.SessionStats(c.Request().Context(), sessionID)
	if err != nil {
		return response.InternalError(c, "session stats failed", err.Error())
	}
	if stats == nil {
		return response.NotFound(c, "session not found", sessionID)
	}
	return response.OK(c, stats, "")
}

// Engagement returns the engagement report for an inclusive date range
// (GET /metrics/engagement?start_date=&end_date=).
func (h *MetricsHandler) Engagement(c echo.Context) error {
	startDate, err := parseDate(c.QueryParam("start_date"))
	if err != nil {
		return response.BadRequest(c, "invalid start_date", err.Error())
	}
	endDate, err := parseDate(c.QueryParam("end_date"))
	if err != nil {
		return response.BadRequest(c, "invalid end_date", err.Error())
	}
	if endDate.Before(startDate) {
		return response.BadRequest(c, "invalid range", "end_date is before start_date")
	}
	report, err := h.Engine.EngagementReport(c.Request().Context(), startDate, endDate)
	if err != nil {
		return response.InternalError(c, "engagement report failed", err.Error())
	}
	return response.OK(c, report, "")
}

// Stickiness returns the DAU/MAU ratio for one date
// (GET /metrics/stickiness?date=YYYY-MM-DD).
func (h *MetricsHandler) Stickiness(c echo.Context) error {
	date, err := parseDate(c.QueryParam("date"))
	if err != nil {
		return response.BadRequest(c, "invalid date", err.Error())
	}
	ctx := c.Request().Context()
	dau, err := h.Engine.DAU(ctx, date)
	if err != nil {
		return response.InternalError(c, "stickiness failed", err.Error())
	}
	mau, err := h.Engine.MAU(ctx, date)
	if err != nil {
		return response.InternalError(c, "stickiness failed", err.Error())
	}
	ratio, err := h.Engine.Stickiness(ctx, date)
	if err != nil {
		return response.InternalError(c, "stickiness failed", err.Error())
	}
	return response.OK(c, map[string]any{
		"date":       date.Format(dateLayout),
		"dau":        dau,
		"mau":        mau,
		"stickiness": ratio,
	}, "")
}
