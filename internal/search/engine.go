// Package search answers "posts similar to these posts" queries against the
// LSH index, using the KV store to map posts to embeddings and back.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/postlsh/internal/kv"
	"github.com/hyperjump/postlsh/internal/lsh"
	"github.com/hyperjump/postlsh/internal/vector"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxInflight bounds concurrent KV reads per query.
const maxInflight = 32

var (
	// ErrMissingEmbedding means a queried post has no embedding:post:{id} key.
	ErrMissingEmbedding = errors.New("missing embedding")
	// ErrMissingPost means an indexed vector has no post_from_embedding:{fp} key.
	ErrMissingPost = errors.New("missing reverse lookup")
)

// Engine runs similarity queries.
type Engine struct {
	store  kv.Store
	index  *lsh.Index
	logger *zap.Logger
}

// NewEngine creates a search engine with the given dependencies.
func NewEngine(store kv.Store, index *lsh.Index, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, index: index, logger: logger}
}

// Similar returns the post-ids whose embeddings share an LSH bucket with the
// embedding of any post in postIDs. n caps the candidates taken from the index
// per query vector. Input posts are never part of the result, and each post
// appears once, in first-seen order.
func (e *Engine) Similar(ctx context.Context, postIDs []uint32, n int) ([]uint32, error) {
	start := time.Now()
	ids, err := ProcessQuery(postIDs)
	if err != nil {
		return nil, err
	}

	queries, err := e.fetchEmbeddings(ctx, ids)
	if err != nil {
		return nil, err
	}

	var fingerprints []string
	seen := make(map[string]struct{})
	for _, q := range queries {
		candidates, err := e.index.QueryBucketVectors(q, n)
		if err != nil {
			return nil, err
		}
		for _, c := range candidates {
			fp := vector.Fingerprint(c)
			if _, ok := seen[fp]; ok {
				continue
			}
			seen[fp] = struct{}{}
			fingerprints = append(fingerprints, fp)
		}
	}

	posts, err := e.resolvePosts(ctx, fingerprints)
	if err != nil {
		return nil, err
	}

	exclude := make(map[uint32]struct{}, len(ids)+len(posts))
	for _, id := range ids {
		exclude[id] = struct{}{}
	}
	results := make([]uint32, 0, len(posts))
	for _, p := range posts {
		if _, ok := exclude[p]; ok {
			continue
		}
		exclude[p] = struct{}{}
		results = append(results, p)
	}

	e.logger.Debug("similar posts",
		zap.Int("inputs", len(ids)),
		zap.Int("candidates", len(fingerprints)),
		zap.Int("results", len(results)),
		zap.Duration("took", time.Since(start)))
	return results, nil
}

func (e *Engine) fetchEmbeddings(ctx context.Context, ids []uint32) ([][]float32, error) {
	out := make([][]float32, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInflight)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			key := kv.EmbeddingKey(id)
			raw, err := e.store.Get(gctx, key)
			if errors.Is(err, kv.ErrNotFound) {
				return fmt.Errorf("%w for post %d", ErrMissingEmbedding, id)
			}
			if err != nil {
				return fmt.Errorf("get %s: %w", key, err)
			}
			v, err := vector.Decode(raw, e.index.Dim())
			if err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) resolvePosts(ctx context.Context, fingerprints []string) ([]uint32, error) {
	out := make([]uint32, len(fingerprints))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInflight)
	for i, fp := range fingerprints {
		i, fp := i, fp
		g.Go(func() error {
			key := kv.ReverseKey(fp)
			raw, err := e.store.Get(gctx, key)
			if errors.Is(err, kv.ErrNotFound) {
				return fmt.Errorf("%w for embedding %s", ErrMissingPost, fp)
			}
			if err != nil {
				return fmt.Errorf("get %s: %w", key, err)
			}
			id, err := kv.ParsePostID(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			out[i] = id
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
