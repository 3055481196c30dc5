// Package shard implements row sharding and per-J aggregate statistics
// (SPEC_FULL.md §4.4): training/holdout data is partitioned into shards
// bounded by total non-zero count, parallelizing passes over the data.
package shard

import (
	"sensei/internal/feature"
	"sensei/internal/sparse"
)

// InvalidID is the reserved sentinel for an unset row id.
const InvalidID uint32 = 1<<32 - 1

// Label is a training label, always +1 or -1.
type Label int8

const (
	Negative Label = -1
	Positive Label = 1
)

// Shard holds up to MaxShardSize total non-zero entries across its rows.
// Immutable once built.
type Shard struct {
	Rows    *sparse.CSR
	Labels  []Label
	RowIDs  []uint32
	UserIDs []uint64 // optional; zero value means "absent"
}

// nnz returns the shard's current total non-zero count.
func (s *Shard) nnz() int {
	return s.Rows.NNZ()
}

// RowCount returns the number of rows in the shard.
func (s *Shard) RowCount() int {
	return s.Rows.RowCount()
}
