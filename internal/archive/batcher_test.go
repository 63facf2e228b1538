package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/convopulse/convopulse/internal/model"
)

type fakeUploader struct {
	mu      sync.Mutex
	uploads map[string][]byte
	fail    bool
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{uploads: make(map[string][]byte)}
}

func (u *fakeUploader) Upload(_ context.Context, key string, body []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.fail {
		return errors.New("bucket unreachable")
	}
	u.uploads[key] = body
	return nil
}

func (u *fakeUploader) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.uploads)
}

func (u *fakeUploader) decodeAll(t *testing.T) []model.MessageEvent {
	t.Helper()
	u.mu.Lock()
	defer u.mu.Unlock()
	var all []model.MessageEvent
	for key, body := range u.uploads {
		gz, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			t.Fatalf("gzip reader for %s: %v", key, err)
		}
		raw, err := io.ReadAll(gz)
		if err != nil {
			t.Fatalf("read %s: %v", key, err)
		}
		var batch []model.MessageEvent
		if err := json.Unmarshal(raw, &batch); err != nil {
			t.Fatalf("decode %s: %v", key, err)
		}
		all = append(all, batch...)
	}
	return all
}

func event(user, session string) model.MessageEvent {
	return model.MessageEvent{
		UserID:    user,
		SessionID: session,
		Role:      model.RoleUser,
		Content:   "hi",
		Timestamp: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestBatcherFlushesOnThreshold(t *testing.T) {
	uploader := newFakeUploader()
	b := NewBatcher(BatcherConfig{MaxBatchSize: 2, FlushInterval: time.Hour}, uploader, "events", zerolog.Nop())
	defer b.Stop()

	b.Add(event("U1", "S1"))
	b.Add(event("U1", "S1"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && uploader.count() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if uploader.count() != 1 {
		t.Fatalf("expected 1 upload after threshold, got %d", uploader.count())
	}
	if got := uploader.decodeAll(t); len(got) != 2 {
		t.Fatalf("expected 2 archived events, got %d", len(got))
	}
}

func TestBatcherStopFlushesRemaining(t *testing.T) {
	uploader := newFakeUploader()
	b := NewBatcher(BatcherConfig{MaxBatchSize: 100, FlushInterval: time.Hour}, uploader, "events", zerolog.Nop())

	b.Add(event("U1", "S1"))
	b.Stop()

	if uploader.count() != 1 {
		t.Fatalf("expected final flush on stop, got %d uploads", uploader.count())
	}
	if b.Pending() != 0 {
		t.Fatalf("expected no pending events after stop, got %d", b.Pending())
	}
}

func TestBatcherDropsBatchOnUploadFailure(t *testing.T) {
	uploader := newFakeUploader()
	uploader.fail = true
	b := NewBatcher(BatcherConfig{MaxBatchSize: 100, FlushInterval: time.Hour}, uploader, "events", zerolog.Nop())

	b.Add(event("U1", "S1"))
	b.Stop()

	// A failed batch is dropped, never re-queued or blocking ingestion.
	if b.Pending() != 0 {
		t.Fatalf("failed batch must be dropped, %d pending", b.Pending())
	}
}
