// Package ingest keeps the LSH index in sync with the KV store: a startup
// backfill of every stored embedding, a worker that indexes embeddings as
// their post-ids are announced, and a watcher for the shutdown channel.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/postlsh/internal/kv"
	"github.com/hyperjump/postlsh/internal/lsh"
	"github.com/hyperjump/postlsh/internal/vector"
	"go.uber.org/zap"
)

const (
	defaultMaxReconnects = 10
	defaultBackoff       = 100 * time.Millisecond
	maxBackoff           = 5 * time.Second
)

// Worker indexes the embedding of every post-id published on
// kv.ChannelNewEmbedding.
type Worker struct {
	store         kv.Store
	index         *lsh.Index
	stop          *atomic.Bool
	workers       int
	maxReconnects int
	backoff       time.Duration
	logger        *zap.Logger
	ingested      atomic.Int64
	dropped       atomic.Int64
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the logger. Every entry carries a per-worker id.
func WithLogger(l *zap.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// WithStopFlag shares a process-wide stop flag with the worker. The flag is
// checked between messages.
func WithStopFlag(f *atomic.Bool) Option {
	return func(w *Worker) { w.stop = f }
}

// WithPool hands insertions to n goroutines instead of running them on the
// subscription loop. Insertion order is then no longer publish order.
func WithPool(n int) Option {
	return func(w *Worker) { w.workers = n }
}

// WithMaxReconnects bounds consecutive failed resubscribe attempts.
func WithMaxReconnects(n int) Option {
	return func(w *Worker) { w.maxReconnects = n }
}

// WithBackoff sets the base delay between resubscribe attempts.
func WithBackoff(d time.Duration) Option {
	return func(w *Worker) { w.backoff = d }
}

// NewWorker creates a worker reading from store and writing to index.
func NewWorker(store kv.Store, index *lsh.Index, opts ...Option) *Worker {
	w := &Worker{
		store:         store,
		index:         index,
		stop:          new(atomic.Bool),
		maxReconnects: defaultMaxReconnects,
		backoff:       defaultBackoff,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	w.logger = w.logger.With(zap.String("worker", uuid.NewString()))
	return w
}

// Ingested returns how many embeddings the worker has added to the index.
func (w *Worker) Ingested() int64 { return w.ingested.Load() }

// Dropped returns how many messages were discarded after a failure.
func (w *Worker) Dropped() int64 { return w.dropped.Load() }

// Run subscribes and processes messages until ctx is done or the stop flag is
// set, returning nil. It returns an error when the store is closed or the
// subscription cannot be re-established. Against kv.Redis the backoff loop
// covers failed Subscribe calls; live disconnects are healed by the client.
func (w *Worker) Run(ctx context.Context) error {
	jobs := make(chan uint32)
	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				w.ingest(ctx, id)
			}
		}()
	}
	defer func() {
		close(jobs)
		wg.Wait()
	}()

	failures := 0
	for !w.stopped(ctx) {
		sub, err := w.store.Subscribe(ctx, kv.ChannelNewEmbedding)
		if errors.Is(err, kv.ErrClosed) {
			return fmt.Errorf("ingest: %w", err)
		}
		if err == nil {
			w.logger.Info("ingestion subscribed", zap.String("channel", kv.ChannelNewEmbedding))
			var received bool
			received, err = w.consume(ctx, sub, jobs)
			_ = sub.Close()
			if err == nil {
				return nil
			}
			if received {
				failures = 0
			}
		}
		if w.stopped(ctx) {
			return nil
		}
		if failures >= w.maxReconnects {
			return fmt.Errorf("ingest: giving up after %d reconnects: %w", failures, err)
		}
		delay := backoffDelay(w.backoff, failures)
		failures++
		w.logger.Warn("ingestion subscription lost, reconnecting",
			zap.Error(err), zap.Int("attempt", failures), zap.Duration("delay", delay))
		if !sleepCtx(ctx, delay) {
			return nil
		}
	}
	return nil
}

// consume drains sub until a stop is observed (nil error) or Receive fails.
func (w *Worker) consume(ctx context.Context, sub kv.Subscription, jobs chan<- uint32) (bool, error) {
	received := false
	for {
		if w.stopped(ctx) {
			return received, nil
		}
		msg, err := sub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return received, nil
			}
			return received, err
		}
		received = true
		if w.stop.Load() {
			return received, nil
		}
		id, err := kv.ParsePostID(msg.Payload)
		if err != nil {
			w.dropped.Add(1)
			w.logger.Warn("ignoring message", zap.String("payload", msg.Payload), zap.Error(err))
			continue
		}
		if w.workers == 0 {
			w.ingest(ctx, id)
			continue
		}
		select {
		case jobs <- id:
		case <-ctx.Done():
			return received, nil
		}
	}
}

func (w *Worker) ingest(ctx context.Context, id uint32) {
	if err := w.Ingest(ctx, id); err != nil {
		w.dropped.Add(1)
		w.logger.Warn("dropping embedding", zap.Uint32("post_id", id), zap.Error(err))
		return
	}
	w.ingested.Add(1)
	w.logger.Debug("embedding indexed", zap.Uint32("post_id", id))
}

// Ingest fetches, decodes and indexes the embedding of post id.
func (w *Worker) Ingest(ctx context.Context, id uint32) error {
	key := kv.EmbeddingKey(id)
	raw, err := w.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	v, err := vector.Decode(raw, w.index.Dim())
	if err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return w.index.StoreVecs([][]float32{v})
}

func (w *Worker) stopped(ctx context.Context) bool {
	return w.stop.Load() || ctx.Err() != nil
}

// backoffDelay returns base·2^attempt, capped at maxBackoff.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return min(d, maxBackoff)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
