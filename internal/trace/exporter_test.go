package trace

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeSink is a controllable Sink: it can fail the first N exports and
// block deliveries on a gate.
type fakeSink struct {
	mu       sync.Mutex
	received []*ExportedTrace
	failures int
	gate     chan struct{}
	closed   bool
}

func (s *fakeSink) Export(_ context.Context, tr *ExportedTrace) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("sink unavailable")
	}
	s.received = append(s.received, tr)
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func sampleTrace(id string) *ExportedTrace {
	return &ExportedTrace{TraceID: id, Spans: []ExportedSpan{{TraceID: id, SpanID: "s1", Name: "op"}}}
}

func TestAsyncExporterDelivers(t *testing.T) {
	sink := &fakeSink{}
	exp := NewAsyncExporter(sink, zerolog.Nop(), ExporterOptions{BufferSize: 8})

	exp.Enqueue(sampleTrace("t1"))
	waitFor(t, 2*time.Second, func() bool { return sink.count() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := exp.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !sink.closed {
		t.Error("close must close the sink")
	}
}

func TestAsyncExporterRetriesThenSucceeds(t *testing.T) {
	sink := &fakeSink{failures: 2}
	exp := NewAsyncExporter(sink, zerolog.Nop(), ExporterOptions{BufferSize: 8, Retries: 3})

	exp.Enqueue(sampleTrace("t1"))
	waitFor(t, 2*time.Second, func() bool { return sink.count() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = exp.Close(ctx)
}

func TestAsyncExporterGivesUpAfterRetries(t *testing.T) {
	sink := &fakeSink{failures: 100}
	exp := NewAsyncExporter(sink, zerolog.Nop(), ExporterOptions{BufferSize: 8, Retries: 2})

	exp.Enqueue(sampleTrace("t1"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := exp.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if sink.count() != 0 {
		t.Fatalf("expected delivery to be dropped, got %d", sink.count())
	}
}

func TestAsyncExporterDropsOldestWhenFull(t *testing.T) {
	gate := make(chan struct{})
	sink := &fakeSink{gate: gate}
	exp := NewAsyncExporter(sink, zerolog.Nop(), ExporterOptions{BufferSize: 1})

	// First trace occupies the worker (blocked on the gate), the next
	// fills the buffer, the rest must displace each other.
	exp.Enqueue(sampleTrace("t1"))
	waitFor(t, 2*time.Second, func() bool { return len(exp.ch) == 0 })
	exp.Enqueue(sampleTrace("t2"))
	exp.Enqueue(sampleTrace("t3"))
	exp.Enqueue(sampleTrace("t4"))

	if exp.Dropped() == 0 {
		t.Fatal("expected drops under backpressure")
	}

	close(gate)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := exp.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if sink.count() >= 4 {
		t.Fatalf("expected fewer deliveries than enqueues, got %d", sink.count())
	}
}

func TestAsyncExporterCloseDrainsBuffer(t *testing.T) {
	sink := &fakeSink{}
	exp := NewAsyncExporter(sink, zerolog.Nop(), ExporterOptions{BufferSize: 8})

	exp.Enqueue(sampleTrace("t1"))
	exp.Enqueue(sampleTrace("t2"))
	exp.Enqueue(sampleTrace("t3"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := exp.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if sink.count() != 3 {
		t.Fatalf("close must drain the buffer, delivered %d of 3", sink.count())
	}
}
