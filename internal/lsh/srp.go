// Package lsh implements a multi-table locality-sensitive hashing index for
// approximate nearest-neighbor candidate retrieval over float32 vectors.
package lsh

import (
	"fmt"
	"math/rand"
)

// MaxProjections is the widest signature a table can produce; signatures are
// packed into a uint64.
const MaxProjections = 64

// Family is a hash family the Index is parameterized over. Signature must be
// deterministic for a given table and vector.
type Family interface {
	// Tables returns the number of independent hash tables.
	Tables() int
	// Dim returns the vector dimension the family hashes.
	Dim() int
	// Signature returns the bucket key of v in table t. len(v) must equal Dim.
	Signature(t int, v []float32) uint64
}

// SignRandomProjections is the SRP family: bit k of a table's signature is 1
// iff the dot product of the vector with that table's k-th random normal
// projection is >= 0. Bit k occupies position k, least significant first.
type SignRandomProjections struct {
	projections int
	tables      int
	dim         int
	seed        int64
	planes      [][]float32 // per table, projections*dim row-major
}

// NewSignRandomProjections draws tables×projections×dim standard normal
// entries from a source seeded with seed, in table, projection, component
// order. The same arguments always yield the same planes.
func NewSignRandomProjections(projections, tables, dim int, seed int64) (*SignRandomProjections, error) {
	if projections <= 0 || projections > MaxProjections {
		return nil, fmt.Errorf("projections must be in [1,%d], got %d", MaxProjections, projections)
	}
	if tables <= 0 {
		return nil, fmt.Errorf("tables must be positive, got %d", tables)
	}
	if dim <= 0 {
		return nil, fmt.Errorf("dim must be positive, got %d", dim)
	}
	rng := rand.New(rand.NewSource(seed))
	planes := make([][]float32, tables)
	for t := range planes {
		row := make([]float32, projections*dim)
		for i := range row {
			row[i] = float32(rng.NormFloat64())
		}
		planes[t] = row
	}
	return &SignRandomProjections{
		projections: projections,
		tables:      tables,
		dim:         dim,
		seed:        seed,
		planes:      planes,
	}, nil
}

func (s *SignRandomProjections) Tables() int      { return s.tables }
func (s *SignRandomProjections) Dim() int         { return s.dim }
func (s *SignRandomProjections) Projections() int { return s.projections }
func (s *SignRandomProjections) Seed() int64      { return s.seed }

// Signature packs the sign bits of table t's projections of v.
func (s *SignRandomProjections) Signature(t int, v []float32) uint64 {
	plane := s.planes[t]
	var sig uint64
	for k := 0; k < s.projections; k++ {
		row := plane[k*s.dim : (k+1)*s.dim]
		var dot float32
		for j, x := range row {
			dot += x * v[j]
		}
		if dot >= 0 {
			sig |= 1 << uint(k)
		}
	}
	return sig
}
