package handler

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/convopulse/convopulse/internal/archive"
	"github.com/convopulse/convopulse/internal/model"
	"github.com/convopulse/convopulse/internal/obslog"
	"github.com/convopulse/convopulse/internal/response"
	"github.com/convopulse/convopulse/internal/store"
	"github.com/convopulse/convopulse/internal/trace"
)

// MessageHandler serves the ingestion side: appending conversation
// turns to the event log and raw event queries. Archive is optional.
type MessageHandler struct {
	Store   store.EventStore
	Archive *archive.Batcher
	Logger  *obslog.Emitter
}

type logMessageRequest struct {
	UserID    string     `json:"user_id"`
	SessionID string     `json:"session_id"`
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Create appends one conversation turn (POST /messages). Validation
// failures are the only ingestion errors surfaced to the caller.
func (h *MessageHandler) Create(c echo.Context) error {
	var req logMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid payload", err.Error())
	}

	ev := model.MessageEvent{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Role:      model.Role(req.Role),
		Content:   req.Content,
	}
	if req.Timestamp != nil {
		ev.Timestamp = *req.Timestamp
	}

	ctx := c.Request().Context()
	span := trace.FromContext(ctx)
	if span != nil {
		_ = span.SetAttribute(trace.String("session_id", req.SessionID))
		_ = span.SetAttribute(trace.Int("content_bytes", int64(len(req.Content))))
	}

	if err := h.Store.Append(ctx, &ev); err != nil {
		if errors.Is(err, store.ErrValidation) {
			return response.BadRequest(c, "invalid message event", err.Error())
		}
		return response.InternalError(c, "append failed", err.Error())
	}
	if h.Archive != nil {
		h.Archive.Add(ev)
	}

	// Message bodies never go into log fields; size metadata only.
	fields := obslog.Fields{
		"user_id":    ev.UserID,
		"session_id": ev.SessionID,
		"role":       string(ev.Role),
	}
	for k, v := range obslog.ContentMeta("content", ev.Content) {
		fields[k] = v
	}
	traceID := ""
	if span != nil {
		traceID = span.TraceID()
	}
	_ = h.Logger.Emit(zerolog.InfoLevel, "message_logged", traceID, fields)

	return response.Accepted(c, map[string]any{"id": ev.ID}, "")
}

// List queries the event log (GET /messages). Filters: user_id,
// session_id, from, to (dates, to is inclusive).
func (h *MessageHandler) List(c echo.Context) error {
	filter := store.Filter{
		UserID:    c.QueryParam("user_id"),
		SessionID: c.QueryParam("session_id"),
	}
	if v := c.QueryParam("from"); v != "" {
		date, err := parseDate(v)
		if err != nil {
			return response.BadRequest(c, "invalid from date", err.Error())
		}
		filter.From = date
	}
	if v := c.QueryParam("to"); v != "" {
		date, err := parseDate(v)
		if err != nil {
			return response.BadRequest(c, "invalid to date", err.Error())
		}
		filter.To = date.AddDate(0, 0, 1)
	}

	events, err := h.Store.Query(c.Request().Context(), filter)
	if err != nil {
		return response.InternalError(c, "query failed", err.Error())
	}
	if events == nil {
		events = []model.MessageEvent{}
	}
	return response.OK(c, map[string]any{"events": events}, "")
}
