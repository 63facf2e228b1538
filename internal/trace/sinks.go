package trace

import (
	"context"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"
)

// LogSink writes completed traces to a zerolog logger. It is the default
// sink when no APM backend is configured.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink returns a sink logging traces on log.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

// Export logs the full span tree as one entry.
func (s *LogSink) Export(_ context.Context, tr *ExportedTrace) error {
	s.log.Info().
		Str("trace_id", tr.TraceID).
		Int("span_count", len(tr.Spans)).
		Interface("spans", tr.Spans).
		Msg("trace completed")
	return nil
}

// Close is a no-op; the logger outlives the sink.
func (s *LogSink) Close() error { return nil }

const newrelicShutdownTimeout = 10 * time.Second

// NewRelicSink forwards spans to New Relic as custom events. The agent
// buffers and ships asynchronously; Export only hands events over.
type NewRelicSink struct {
	app *newrelic.Application
}

// NewNewRelicSink returns a sink recording spans on app.
func NewNewRelicSink(app *newrelic.Application) *NewRelicSink {
	return &NewRelicSink{app: app}
}

// Export records one ChatSpan custom event per span in the trace.
func (s *NewRelicSink) Export(_ context.Context, tr *ExportedTrace) error {
	for _, sp := range tr.Spans {
		params := map[string]any{
			"trace_id":    sp.TraceID,
			"span_id":     sp.SpanID,
			"name":        sp.Name,
			"duration_ms": sp.EndTime.Sub(sp.StartTime).Milliseconds(),
		}
		if sp.ParentSpanID != "" {
			params["parent_span_id"] = sp.ParentSpanID
		}
		for k, v := range sp.Attributes {
			params["attr."+k] = v
		}
		s.app.RecordCustomEvent("ChatSpan", params)
	}
	return nil
}

// Close flushes the agent's buffers and shuts it down.
func (s *NewRelicSink) Close() error {
	s.app.Shutdown(newrelicShutdownTimeout)
	return nil
}
