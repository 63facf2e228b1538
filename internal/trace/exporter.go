package trace

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ExportedSpan is the wire shape of one span handed to the exporter.
type ExportedSpan struct {
	TraceID      string         `json:"trace_id"`
	SpanID       string         `json:"span_id"`
	ParentSpanID string         `json:"parent_span_id,omitempty"`
	Name         string         `json:"name"`
	StartTime    time.Time      `json:"start_time"`
	EndTime      time.Time      `json:"end_time"`
	Attributes   map[string]any `json:"attributes,omitempty"`
}

// ExportedTrace is one completed trace: the full span tree, exported as
// a single unit.
type ExportedTrace struct {
	TraceID string         `json:"trace_id"`
	Spans   []ExportedSpan `json:"spans"`
}

// Sink is the external tracing backend boundary. The core guarantees a
// sink receives complete, well-formed traces; it does not guarantee
// delivery succeeds.
type Sink interface {
	Export(ctx context.Context, tr *ExportedTrace) error
	Close() error
}

// Exporter accepts completed traces without blocking the caller.
type Exporter interface {
	Enqueue(tr *ExportedTrace)
}

// ExporterOptions tune the async exporter buffer and retry behavior.
type ExporterOptions struct {
	BufferSize int
	Retries    int
}

const (
	defaultBufferSize = 256
	defaultRetries    = 3
	exportTimeout     = 5 * time.Second
	retryBackoffUnit  = 50 * time.Millisecond
)

// AsyncExporter decouples trace export from the request path. Traces go
// into a bounded buffer; when the buffer is full the oldest trace is
// dropped, never the caller blocked. Delivery is retried a bounded
// number of times, then the trace is dropped with a warning. Export
// failure is invisible to the traced operation.
type AsyncExporter struct {
	sink    Sink
	log     zerolog.Logger
	retries int

	ch        chan *ExportedTrace
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Int64
}

// NewAsyncExporter starts the export worker and returns the exporter.
func NewAsyncExporter(sink Sink, log zerolog.Logger, opts ExporterOptions) *AsyncExporter {
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	if opts.Retries <= 0 {
		opts.Retries = defaultRetries
	}
	e := &AsyncExporter{
		sink:    sink,
		log:     log,
		retries: opts.Retries,
		ch:      make(chan *ExportedTrace, opts.BufferSize),
		done:    make(chan struct{}),
	}
	go e.run()
	return e
}

// Enqueue buffers tr for export. Never blocks: on a full buffer the
// oldest buffered trace is dropped to make room.
func (e *AsyncExporter) Enqueue(tr *ExportedTrace) {
	select {
	case e.ch <- tr:
		return
	default:
	}
	select {
	case old := <-e.ch:
		e.dropped.Add(1)
		e.log.Warn().Str("trace_id", old.TraceID).Msg("export buffer full, dropped oldest trace")
	default:
	}
	select {
	case e.ch <- tr:
	default:
		e.dropped.Add(1)
		e.log.Warn().Str("trace_id", tr.TraceID).Msg("export buffer full, dropped trace")
	}
}

// Dropped returns the number of traces dropped by backpressure.
func (e *AsyncExporter) Dropped() int64 {
	return e.dropped.Load()
}

func (e *AsyncExporter) run() {
	for tr := range e.ch {
		e.deliver(tr)
	}
	close(e.done)
}

func (e *AsyncExporter) deliver(tr *ExportedTrace) {
	var err error
	for attempt := 0; attempt < e.retries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * retryBackoffUnit)
		}
		ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
		err = e.sink.Export(ctx, tr)
		cancel()
		if err == nil {
			return
		}
	}
	e.log.Warn().Err(err).Str("trace_id", tr.TraceID).Int("attempts", e.retries).Msg("trace export failed, dropping")
}

// Close drains the buffer, closes the sink and returns. Gives up when
// ctx expires.
func (e *AsyncExporter) Close(ctx context.Context) error {
	e.closeOnce.Do(func() { close(e.ch) })
	select {
	case <-e.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return e.sink.Close()
}
