// Package trace provides per-request correlation: a trace context, a
// nested span tree recording operation timing and attributes, and an
// asynchronous exporter boundary.
package trace

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrSpanClosed reports misuse of a span after End: closing twice or
// writing an attribute to a closed span. Misuse is reported, never
// silently accepted, and never corrupts the span tree.
var ErrSpanClosed = errors.New("span already closed")

// Kind discriminates attribute values. Values are restricted to a fixed
// scalar union so the exported shape stays stable and typed.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
)

// Attr is one span attribute: a key and a scalar value.
type Attr struct {
	Key   string
	kind  Kind
	str   string
	num   int64
	fl    float64
	truth bool
}

// String returns a string attribute.
func String(key, value string) Attr {
	return Attr{Key: key, kind: KindString, str: value}
}

// Int returns an integer attribute.
func Int(key string, value int64) Attr {
	return Attr{Key: key, kind: KindInt, num: value}
}

// Float returns a float attribute.
func Float(key string, value float64) Attr {
	return Attr{Key: key, kind: KindFloat, fl: value}
}

// Bool returns a boolean attribute.
func Bool(key string, value bool) Attr {
	return Attr{Key: key, kind: KindBool, truth: value}
}

// Value returns the attribute value as its underlying scalar.
func (a Attr) Value() any {
	switch a.kind {
	case KindInt:
		return a.num
	case KindFloat:
		return a.fl
	case KindBool:
		return a.truth
	default:
		return a.str
	}
}

// Span is one timed unit of work within a trace. Spans form a tree with
// a single root; each span is created as a child of an open span and is
// closed exactly once. A span is owned by one sequential path of
// execution; concurrent sub-operations each take their own child span.
type Span struct {
	tr       *Trace
	id       string
	parentID string
	name     string
	start    time.Time

	mu    sync.Mutex
	end   time.Time
	ended bool
	attrs map[string]any
}

// ID returns the span id, unique within its trace.
func (s *Span) ID() string { return s.id }

// TraceID returns the id shared by every span and log record of the
// request this span belongs to.
func (s *Span) TraceID() string { return s.tr.id }

// Name returns the operation name the span was started with.
func (s *Span) Name() string { return s.name }

// StartChild opens a child span under s. Starting a child under a closed
// span is reported as misuse but still yields a usable span so callers
// on error paths keep working.
func (s *Span) StartChild(name string, attrs ...Attr) *Span {
	s.mu.Lock()
	ended := s.ended
	s.mu.Unlock()
	if ended {
		s.tr.tracer.reportMisuse(s, "child started under closed span", name)
	}
	return s.tr.newSpan(s, name, attrs)
}

// SetAttribute records an attribute on an open span. On a closed span it
// returns ErrSpanClosed and the write is not applied.
func (s *Span) SetAttribute(a Attr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		s.tr.tracer.reportMisuse(s, "attribute write on closed span", a.Key)
		return ErrSpanClosed
	}
	s.attrs[a.Key] = a.Value()
	return nil
}

// End closes the span. Closing is mandatory on success and failure paths
// alike. A second End returns ErrSpanClosed and is not double-counted.
// Ending the root span hands the complete tree to the exporter.
func (s *Span) End() error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		s.tr.tracer.reportMisuse(s, "span closed twice", s.name)
		return ErrSpanClosed
	}
	s.ended = true
	s.end = s.tr.tracer.now()
	if s.end.Before(s.start) {
		s.end = s.start
	}
	s.mu.Unlock()

	if s == s.tr.root {
		s.tr.export()
	}
	return nil
}

// EndWithContext closes the span, first marking it cancelled when ctx is
// already done. Use on paths that may have been cancelled or timed out
// so spans never remain open.
func (s *Span) EndWithContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		_ = s.SetAttribute(Bool("cancelled", true))
		_ = s.SetAttribute(String("cancel_reason", err.Error()))
	}
	return s.End()
}

// snapshot renders the span for export. forcedEnd is used for spans
// still open when the root closes.
func (s *Span) snapshot(forcedEnd time.Time) ExportedSpan {
	s.mu.Lock()
	defer s.mu.Unlock()
	end := s.end
	if !s.ended {
		end = forcedEnd
		if end.Before(s.start) {
			end = s.start
		}
	}
	attrs := make(map[string]any, len(s.attrs))
	for k, v := range s.attrs {
		attrs[k] = v
	}
	if !s.ended {
		attrs["force_closed"] = true
	}
	return ExportedSpan{
		TraceID:      s.tr.id,
		SpanID:       s.id,
		ParentSpanID: s.parentID,
		Name:         s.name,
		StartTime:    s.start,
		EndTime:      end,
		Attributes:   attrs,
	}
}
