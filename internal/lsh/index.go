package lsh

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/hyperjump/postlsh/internal/vector"
)

// Index is a bank of hash tables over an append-only vector store. Each stored
// vector gets an internal index equal to its insertion position.
//
// Signatures are computed outside the lock; bucket appends for a whole batch
// happen under the write lock, so a query sees every table update for a vector
// or none of them. Buckets are append-only, so queries share a read lock.
type Index struct {
	family  Family
	mu      sync.RWMutex
	store   [][]float32
	buckets []map[uint64][]int
}

// Stats describes the index shape and contents.
type Stats struct {
	Vectors     int   `json:"vectors"`
	Tables      int   `json:"tables"`
	Projections int   `json:"projections,omitempty"`
	Dim         int   `json:"dim"`
	Seed        int64 `json:"seed"`
	Buckets     int   `json:"buckets"`
}

// New creates an empty index over the given hash family.
func New(family Family) *Index {
	buckets := make([]map[uint64][]int, family.Tables())
	for t := range buckets {
		buckets[t] = make(map[uint64][]int)
	}
	return &Index{
		family:  family,
		buckets: buckets,
	}
}

// NewSRP creates an empty index hashed with sign random projections.
func NewSRP(projections, tables, dim int, seed int64) (*Index, error) {
	family, err := NewSignRandomProjections(projections, tables, dim, seed)
	if err != nil {
		return nil, fmt.Errorf("create srp family: %w", err)
	}
	return New(family), nil
}

// Dim returns the vector dimension accepted by the index.
func (idx *Index) Dim() int {
	return idx.family.Dim()
}

// StoreVecs appends vecs to the store and to every table. The batch is
// rejected as a whole if any vector has the wrong dimension.
func (idx *Index) StoreVecs(vecs [][]float32) error {
	dim := idx.family.Dim()
	for i, v := range vecs {
		if err := vector.CheckDim(v, dim); err != nil {
			return fmt.Errorf("vector %d: %w", i, err)
		}
	}
	if len(vecs) == 0 {
		return nil
	}
	owned := make([][]float32, len(vecs))
	for i, v := range vecs {
		owned[i] = append([]float32(nil), v...)
	}
	sigs := idx.signatures(owned)

	idx.mu.Lock()
	defer idx.mu.Unlock()
	for i, v := range owned {
		id := len(idx.store)
		idx.store = append(idx.store, v)
		for t, sig := range sigs[i] {
			idx.buckets[t][sig] = append(idx.buckets[t][sig], id)
		}
	}
	return nil
}

// QueryBucketIDs returns the internal indices sharing a bucket with q in any
// table, first-seen order (lower table first, insertion order within a
// bucket), deduplicated and truncated to n. A negative n means no limit.
func (idx *Index) QueryBucketIDs(q []float32, n int) ([]int, error) {
	if err := vector.CheckDim(q, idx.family.Dim()); err != nil {
		return nil, err
	}
	sigs := idx.signatures([][]float32{q})[0]
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.collect(sigs, n), nil
}

// QueryBucketVectors is QueryBucketIDs followed by a lookup of each index in
// the store. The returned slices must not be modified.
func (idx *Index) QueryBucketVectors(q []float32, n int) ([][]float32, error) {
	if err := vector.CheckDim(q, idx.family.Dim()); err != nil {
		return nil, err
	}
	sigs := idx.signatures([][]float32{q})[0]
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	ids := idx.collect(sigs, n)
	out := make([][]float32, len(ids))
	for i, id := range ids {
		out[i] = idx.store[id]
	}
	return out, nil
}

// Len returns the number of stored vectors.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.store)
}

// Stats returns a snapshot of the index shape.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	st := Stats{
		Vectors: len(idx.store),
		Tables:  idx.family.Tables(),
		Dim:     idx.family.Dim(),
	}
	if srp, ok := idx.family.(*SignRandomProjections); ok {
		st.Projections = srp.Projections()
		st.Seed = srp.Seed()
	}
	for _, table := range idx.buckets {
		st.Buckets += len(table)
	}
	return st
}

// collect must be called with the read lock held.
func (idx *Index) collect(sigs []uint64, n int) []int {
	ids := make([]int, 0)
	if n == 0 {
		return ids
	}
	seen := make(map[int]struct{})
	for t, sig := range sigs {
		for _, id := range idx.buckets[t][sig] {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
			if n > 0 && len(ids) == n {
				return ids
			}
		}
	}
	return ids
}

// signatures hashes every vector in every table, spreading tables across
// GOMAXPROCS goroutines. The family is read-only, so no lock is needed.
func (idx *Index) signatures(vecs [][]float32) [][]uint64 {
	tables := idx.family.Tables()
	sigs := make([][]uint64, len(vecs))
	for i := range sigs {
		sigs[i] = make([]uint64, tables)
	}
	workers := min(runtime.GOMAXPROCS(0), tables)
	chunk := (tables + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < tables; start += chunk {
		end := min(start+chunk, tables)
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for t := start; t < end; t++ {
				for i, v := range vecs {
					sigs[i][t] = idx.family.Signature(t, v)
				}
			}
		}(start, end)
	}
	wg.Wait()
	return sigs
}
