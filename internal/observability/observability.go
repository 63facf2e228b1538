// Package observability assembles the per-process observability context:
// structured logger, tracer and export pipeline. One Observability is
// constructed in main and handed by reference to request handlers;
// nothing in it is a mutable global.
package observability

import (
	"context"
	"fmt"
	"os"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/convopulse/convopulse/internal/config"
	"github.com/convopulse/convopulse/internal/obslog"
	"github.com/convopulse/convopulse/internal/trace"
)

// Observability bundles the process logger and tracer.
type Observability struct {
	Logger *obslog.Emitter
	Tracer *trace.Tracer

	log      zerolog.Logger
	exporter *trace.AsyncExporter
	app      *newrelic.Application
}

// New builds the observability context from cfg. When a New Relic
// license is configured, spans are exported to the APM agent and the
// database pool gets the agent's query tracer; otherwise everything
// goes to the process log.
func New(cfg *config.ObservabilityConfig) (*Observability, error) {
	base := zerolog.New(os.Stderr).Level(cfg.Level()).With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("environment", cfg.Environment).
		Logger()

	var app *newrelic.Application
	var sink trace.Sink = trace.NewLogSink(base)
	if cfg.NewRelicLicense != "" {
		var err error
		app, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.ServiceName),
			newrelic.ConfigLicense(cfg.NewRelicLicense),
			newrelic.ConfigDistributedTracerEnabled(true),
		)
		if err != nil {
			return nil, fmt.Errorf("new relic application: %w", err)
		}
		sink = trace.NewNewRelicSink(app)
	}

	exporter := trace.NewAsyncExporter(sink, base, trace.ExporterOptions{
		BufferSize: cfg.ExportBufferSize,
		Retries:    cfg.ExportRetries,
	})

	return &Observability{
		Logger: obslog.New(os.Stderr, obslog.Config{
			Service:       cfg.ServiceName,
			Environment:   cfg.Environment,
			Level:         cfg.Level(),
			MaxFieldBytes: cfg.MaxFieldBytes,
		}),
		Tracer:   trace.NewTracer(exporter, base),
		log:      base,
		exporter: exporter,
		app:      app,
	}, nil
}

// Log returns the process zerolog logger.
func (o *Observability) Log() zerolog.Logger { return o.log }

// App returns the New Relic application, or nil when APM is disabled.
func (o *Observability) App() *newrelic.Application { return o.app }

// Close drains the span exporter and shuts down the APM agent. Call
// after the server has stopped so in-flight traces get exported.
func (o *Observability) Close(ctx context.Context) error {
	return o.exporter.Close(ctx)
}
