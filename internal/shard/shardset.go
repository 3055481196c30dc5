package shard

import (
	"sensei/internal/feature"
	"sensei/internal/sparse"
)

// Row is one training or holdout row prior to sharding.
type Row struct {
	Label  Label
	RowID  uint32
	UserID uint64
	Js     []feature.J // sorted, duplicate-free atomic J's; extension happens later
}

// Set is a training set or holdout set: rows partitioned into disjoint
// Shards, plus aggregate Stats (SPEC_FULL.md §4.4).
type Set struct {
	MaxShardSize int
	Shards       []*Shard
	Stats        *Stats

	building *shardBuilder
}

// NewSet returns an empty Set that rolls shards over at maxShardSize total
// non-zeros.
func NewSet(maxShardSize int) *Set {
	return &Set{MaxShardSize: maxShardSize, Stats: NewStats()}
}

type shardBuilder struct {
	rows    *sparse.CSR
	labels  []Label
	rowIDs  []uint32
	userIDs []uint64
	nnz     int
}

func newShardBuilder() *shardBuilder {
	return &shardBuilder{rows: sparse.NewCSR()}
}

func (b *shardBuilder) finish() *Shard {
	return &Shard{Rows: b.rows, Labels: b.labels, RowIDs: b.rowIDs, UserIDs: b.userIDs}
}

// AppendRow appends r, rolling over to a new shard if the current shard
// would exceed MaxShardSize (the first row of a new shard is always
// accepted even if it alone exceeds the limit).
func (s *Set) AppendRow(r Row) {
	if s.building == nil {
		s.building = newShardBuilder()
	}
	if s.building.nnz > 0 && s.building.nnz+len(r.Js) > s.MaxShardSize {
		s.Shards = append(s.Shards, s.building.finish())
		s.building = newShardBuilder()
	}
	s.building.rows.AppendRow(r.Js)
	s.building.labels = append(s.building.labels, r.Label)
	s.building.rowIDs = append(s.building.rowIDs, r.RowID)
	s.building.userIDs = append(s.building.userIDs, r.UserID)
	s.building.nnz += len(r.Js)
}

// Flush finalises any in-progress shard. Safe to call multiple times.
func (s *Set) Flush() {
	if s.building != nil && s.building.rows.RowCount() > 0 {
		s.Shards = append(s.Shards, s.building.finish())
		s.building = nil
	}
}

// RowCount returns the total row count across all shards.
func (s *Set) RowCount() int {
	total := 0
	for _, sh := range s.Shards {
		total += sh.RowCount()
	}
	return total
}

// RemoveAndRenumberJs rewrites every shard's row contents under r.
func (s *Set) RemoveAndRenumberJs(r feature.Renumbering) {
	for _, sh := range s.Shards {
		sh.Rows.RemoveAndRenumberJs(r)
	}
}
