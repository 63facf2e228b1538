// Package obslog emits typed, field-tagged log records correlated to a
// trace by trace id. Records are immutable once emitted; ownership
// passes to the configured writer.
package obslog

import (
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

func init() {
	// Records use "timestamp", not zerolog's default "time".
	zerolog.TimestampFieldName = "timestamp"
}

// DefaultMaxFieldBytes bounds string field values. Large free-text
// content (full message bodies) must never land in fields; callers log
// size metadata instead (see ContentMeta).
const DefaultMaxFieldBytes = 256

var (
	// ErrFieldTooLarge rejects a string field over the size limit. This
	// is the cost-control contract: oversized values are a detectable,
	// rejectable condition, not a convention.
	ErrFieldTooLarge = errors.New("log field exceeds size limit")

	// ErrFieldType rejects a non-scalar field value. Fields are a
	// mapping of key to scalar so the emitted shape stays stable.
	ErrFieldType = errors.New("unsupported log field type")
)

// Fields is the caller-supplied key/scalar mapping of one record.
type Fields map[string]any

// Config configures an Emitter. Service and Environment become fixed
// tags on every record, supplied once at process start.
type Config struct {
	Service       string
	Environment   string
	Level         zerolog.Level
	MaxFieldBytes int
}

// Emitter produces structured log records. Safe for concurrent use.
type Emitter struct {
	log           zerolog.Logger
	maxFieldBytes int
}

// New returns an Emitter writing JSON records to w.
func New(w io.Writer, cfg Config) *Emitter {
	if cfg.MaxFieldBytes <= 0 {
		cfg.MaxFieldBytes = DefaultMaxFieldBytes
	}
	logger := zerolog.New(w).Level(cfg.Level).With().
		Timestamp().
		Str("service", cfg.Service).
		Str("environment", cfg.Environment).
		Logger()
	return &Emitter{log: logger, maxFieldBytes: cfg.MaxFieldBytes}
}

// Emit produces one record: {timestamp, level, message, service,
// environment, trace_id?, fields...}. The record is rejected whole when
// any field value is non-scalar or an oversized string.
func (e *Emitter) Emit(level zerolog.Level, event, traceID string, fields Fields) error {
	if err := e.checkFields(fields); err != nil {
		return err
	}
	ev := e.log.WithLevel(level)
	if traceID != "" {
		ev = ev.Str("trace_id", traceID)
	}
	ev.Fields(map[string]any(fields)).Msg(event)
	return nil
}

func (e *Emitter) checkFields(fields Fields) error {
	for key, value := range fields {
		switch v := value.(type) {
		case string:
			if len(v) > e.maxFieldBytes {
				return fmt.Errorf("%w: field %q is %d bytes (limit %d)", ErrFieldTooLarge, key, len(v), e.maxFieldBytes)
			}
		case bool, int, int32, int64, float32, float64:
		default:
			return fmt.Errorf("%w: field %q is %T", ErrFieldType, key, value)
		}
	}
	return nil
}

// ContentMeta returns size-class fields describing content without
// embedding it, for high-volume or high-cardinality values.
func ContentMeta(key, content string) Fields {
	return Fields{key + "_bytes": len(content)}
}
