package obslog

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func newTestEmitter(buf *bytes.Buffer) *Emitter {
	return New(buf, Config{
		Service:     "convopulse",
		Environment: "test",
		Level:       zerolog.DebugLevel,
	})
}

func TestEmitRecordShape(t *testing.T) {
	var buf bytes.Buffer
	emitter := newTestEmitter(&buf)

	err := emitter.Emit(zerolog.InfoLevel, "chat_request", "trace-123", Fields{
		"user_id":    "U1",
		"latency_ms": 42,
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	if _, ok := record["timestamp"]; !ok {
		t.Error("record missing timestamp")
	}
	if record["level"] != "info" {
		t.Errorf("level: expected info, got %v", record["level"])
	}
	if record["message"] != "chat_request" {
		t.Errorf("message: expected chat_request, got %v", record["message"])
	}
	if record["service"] != "convopulse" || record["environment"] != "test" {
		t.Errorf("service/environment tags wrong: %v", record)
	}
	if record["trace_id"] != "trace-123" {
		t.Errorf("trace_id: expected trace-123, got %v", record["trace_id"])
	}
	if record["user_id"] != "U1" {
		t.Errorf("caller field missing: %v", record)
	}
	if record["latency_ms"] != float64(42) {
		t.Errorf("latency_ms: expected 42, got %v", record["latency_ms"])
	}
}

func TestEmitWithoutTraceID(t *testing.T) {
	var buf bytes.Buffer
	emitter := newTestEmitter(&buf)

	if err := emitter.Emit(zerolog.InfoLevel, "startup", "", nil); err != nil {
		t.Fatalf("emit: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	if _, ok := record["trace_id"]; ok {
		t.Error("trace_id must be absent when not supplied")
	}
}

func TestEmitRejectsOversizedField(t *testing.T) {
	var buf bytes.Buffer
	emitter := newTestEmitter(&buf)

	err := emitter.Emit(zerolog.InfoLevel, "chat_request", "", Fields{
		"content": strings.Repeat("x", DefaultMaxFieldBytes+1),
	})
	if !errors.Is(err, ErrFieldTooLarge) {
		t.Fatalf("expected ErrFieldTooLarge, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatal("rejected record must not be emitted")
	}
}

func TestEmitRejectsNonScalarField(t *testing.T) {
	var buf bytes.Buffer
	emitter := newTestEmitter(&buf)

	err := emitter.Emit(zerolog.InfoLevel, "chat_request", "", Fields{
		"payload": map[string]string{"nested": "no"},
	})
	if !errors.Is(err, ErrFieldType) {
		t.Fatalf("expected ErrFieldType, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatal("rejected record must not be emitted")
	}
}

func TestContentMeta(t *testing.T) {
	fields := ContentMeta("content", "hello")
	if fields["content_bytes"] != 5 {
		t.Fatalf("expected content_bytes 5, got %v", fields["content_bytes"])
	}
}
