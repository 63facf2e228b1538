package trace

import (
	"context"
	"errors"
)

// ErrNoSpan is returned when an operation requires a parent span and the
// context carries none. This is a programmer error, not a runtime
// condition.
var ErrNoSpan = errors.New("no span in context")

type ctxKey struct{}

// WithSpan returns a context carrying s as the current span.
func WithSpan(ctx context.Context, s *Span) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the current span, or nil when the context carries
// none.
func FromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(ctxKey{}).(*Span)
	return s
}

// StartSpanFromContext opens a child of the context's current span and
// returns a context carrying the child. The parent span is taken from
// the explicit context argument, never from ambient state, so parallel
// sub-operations of one request each get their own branch of the tree.
func StartSpanFromContext(ctx context.Context, name string, attrs ...Attr) (context.Context, *Span, error) {
	parent := FromContext(ctx)
	if parent == nil {
		return ctx, nil, ErrNoSpan
	}
	child := parent.StartChild(name, attrs...)
	return WithSpan(ctx, child), child, nil
}
