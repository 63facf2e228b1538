package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/convopulse/convopulse/internal/model"
)

// Uploader stores one finished batch. Implemented by S3Client.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte) error
}

// BatcherConfig tunes batch size and flush cadence.
type BatcherConfig struct {
	MaxBatchSize  int
	FlushInterval time.Duration
}

// DefaultBatcherConfig returns the defaults used when the archive
// config leaves them unset.
func DefaultBatcherConfig() BatcherConfig {
	return BatcherConfig{
		MaxBatchSize:  1000,
		FlushInterval: time.Minute,
	}
}

// Batcher collects message events and flushes them to an Uploader when
// the batch is full or the flush interval elapses. Add never blocks on
// the upload; a batch that fails to upload is dropped with a warning
// rather than stalling ingestion.
type Batcher struct {
	cfg      BatcherConfig
	uploader Uploader
	prefix   string
	log      zerolog.Logger

	mu     sync.Mutex
	events []model.MessageEvent

	flushCh  chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewBatcher starts the flush loop and returns the batcher.
func NewBatcher(cfg BatcherConfig, uploader Uploader, prefix string, log zerolog.Logger) *Batcher {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultBatcherConfig().MaxBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultBatcherConfig().FlushInterval
	}
	b := &Batcher{
		cfg:      cfg,
		uploader: uploader,
		prefix:   prefix,
		log:      log,
		flushCh:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go b.loop()
	return b
}

// Add queues ev for archival. When the batch reaches MaxBatchSize the
// flush worker is signalled; Add itself never uploads.
func (b *Batcher) Add(ev model.MessageEvent) {
	b.mu.Lock()
	b.events = append(b.events, ev)
	full := len(b.events) >= b.cfg.MaxBatchSize
	b.mu.Unlock()
	if full {
		select {
		case b.flushCh <- struct{}{}:
		default:
		}
	}
}

// Pending returns the number of events not yet flushed.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

func (b *Batcher) loop() {
	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.flush(context.Background())
		case <-b.flushCh:
			b.flush(context.Background())
		case <-b.stop:
			b.flush(context.Background())
			close(b.done)
			return
		}
	}
}

// flush swaps out the pending batch and uploads it as one gzip-JSON
// object keyed by day and batch id.
func (b *Batcher) flush(ctx context.Context) {
	b.mu.Lock()
	batch := b.events
	b.events = nil
	b.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	body, err := encodeBatch(batch)
	if err != nil {
		b.log.Error().Err(err).Int("count", len(batch)).Msg("encode archive batch")
		return
	}
	key := fmt.Sprintf("%s/%s/%s.json.gz",
		b.prefix, batch[0].Timestamp.UTC().Format("2006-01-02"), uuid.NewString())
	if err := b.uploader.Upload(ctx, key, body); err != nil {
		b.log.Warn().Err(err).Str("key", key).Int("count", len(batch)).Msg("archive upload failed, batch dropped")
		return
	}
	b.log.Info().Str("key", key).Int("count", len(batch)).Msg("archive batch uploaded")
}

// Stop flushes the remaining events and stops the loop.
func (b *Batcher) Stop() {
	b.stopOnce.Do(func() { close(b.stop) })
	<-b.done
}

func encodeBatch(batch []model.MessageEvent) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gz).Encode(batch); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
