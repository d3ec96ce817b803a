package ingest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hyperjump/postlsh/internal/kv"
	"github.com/hyperjump/postlsh/internal/lsh"
	"github.com/hyperjump/postlsh/internal/vector"
	"go.uber.org/zap"
)

// DefaultBackfillBatch is the number of keys fetched per MGET.
const DefaultBackfillBatch = 500

// Backfill loads every embedding:post:* value into index, in ascending post-id
// order, and returns how many vectors were stored. Any fetch, decode or insert
// error aborts the backfill; vectors from earlier batches stay indexed.
func Backfill(ctx context.Context, store kv.Store, index *lsh.Index, batch int, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batch <= 0 {
		batch = DefaultBackfillBatch
	}
	start := time.Now()
	keys, err := store.Keys(ctx, kv.EmbeddingPattern)
	if err != nil {
		return 0, fmt.Errorf("backfill: list %s: %w", kv.EmbeddingPattern, err)
	}
	if len(keys) == 0 {
		logger.Info("backfill: no embeddings found")
		return 0, nil
	}
	sortEmbeddingKeys(keys)

	total := 0
	for lo := 0; lo < len(keys); lo += batch {
		chunk := keys[lo:min(lo+batch, len(keys))]
		raws, err := store.MGet(ctx, chunk)
		if err != nil {
			return total, fmt.Errorf("backfill: mget: %w", err)
		}
		vecs := make([][]float32, len(raws))
		for i, raw := range raws {
			v, err := vector.Decode(raw, index.Dim())
			if err != nil {
				return total, fmt.Errorf("backfill: %s: %w", chunk[i], err)
			}
			vecs[i] = v
		}
		if err := index.StoreVecs(vecs); err != nil {
			return total, fmt.Errorf("backfill: %w", err)
		}
		total += len(vecs)
		logger.Debug("backfill batch stored", zap.Int("batch", len(vecs)), zap.Int("total", total))
	}
	logger.Info("backfill complete", zap.Int("vectors", total), zap.Duration("took", time.Since(start)))
	return total, nil
}

// sortEmbeddingKeys orders keys by numeric post-id. Keys without a valid id
// sort last, lexicographically.
func sortEmbeddingKeys(keys []string) {
	type entry struct {
		key string
		id  uint32
		ok  bool
	}
	entries := make([]entry, len(keys))
	for i, k := range keys {
		id, err := kv.PostIDFromEmbeddingKey(k)
		entries[i] = entry{key: k, id: id, ok: err == nil}
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.ok != b.ok {
			return a.ok
		}
		if a.ok && a.id != b.id {
			return a.id < b.id
		}
		return a.key < b.key
	})
	for i, e := range entries {
		keys[i] = e.key
	}
}
