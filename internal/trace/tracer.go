package trace

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Tracer mints traces. One Tracer is constructed per process and handed
// by reference to request handlers; it is never mutated after
// construction and is safe for concurrent use.
type Tracer struct {
	exporter Exporter
	log      zerolog.Logger
	now      func() time.Time
}

// NewTracer returns a Tracer exporting completed traces through exp.
// Span API misuse is reported on log.
func NewTracer(exp Exporter, log zerolog.Logger) *Tracer {
	return &Tracer{
		exporter: exp,
		log:      log,
		now:      time.Now,
	}
}

// StartTrace opens a new trace and returns its root span. Exactly one
// trace belongs to one inbound request.
func (t *Tracer) StartTrace(name string, attrs ...Attr) *Span {
	tr := &Trace{
		id:     uuid.NewString(),
		tracer: t,
	}
	tr.root = tr.newSpan(nil, name, attrs)
	return tr.root
}

func (t *Tracer) reportMisuse(s *Span, msg, detail string) {
	t.log.Warn().
		Str("trace_id", s.tr.id).
		Str("span_id", s.id).
		Str("detail", detail).
		Msg(msg)
}

// Trace is the tree of spans produced by one inbound request. Spans are
// correlated by the shared trace id.
type Trace struct {
	id     string
	tracer *Tracer
	root   *Span

	mu    sync.Mutex
	spans []*Span
}

func (tr *Trace) newSpan(parent *Span, name string, attrs []Attr) *Span {
	s := &Span{
		tr:    tr,
		id:    uuid.NewString(),
		name:  name,
		start: tr.tracer.now(),
		attrs: make(map[string]any, len(attrs)),
	}
	if parent != nil {
		s.parentID = parent.id
	}
	for _, a := range attrs {
		s.attrs[a.Key] = a.Value()
	}
	tr.mu.Lock()
	tr.spans = append(tr.spans, s)
	tr.mu.Unlock()
	return s
}

// export hands the complete span tree to the exporter as one unit.
// Spans still open at root close are force-closed at the root's end time
// so child intervals stay within the root's and the exported tree is
// always well-formed. Export never blocks or fails the request path.
func (tr *Trace) export() {
	tr.mu.Lock()
	spans := make([]*Span, len(tr.spans))
	copy(spans, tr.spans)
	tr.mu.Unlock()

	tr.root.mu.Lock()
	forcedEnd := tr.root.end
	tr.root.mu.Unlock()
	out := &ExportedTrace{
		TraceID: tr.id,
		Spans:   make([]ExportedSpan, 0, len(spans)),
	}
	for _, s := range spans {
		out.Spans = append(out.Spans, s.snapshot(forcedEnd))
	}
	tr.tracer.exporter.Enqueue(out)
}
