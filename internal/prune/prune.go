// Package prune implements feature pruning (SPEC_FULL.md §4.10): given
// fresh per-J scores, remove the lowest-scoring J's subject to a stopping
// condition, respecting the dependees DAG (a parent cannot be removed while
// a live product still depends on it).
package prune

import (
	"container/heap"
	"errors"
	"math"

	"sensei/internal/dependees"
	"sensei/internal/feature"
)

// Config holds pruning stopping conditions. At least one of ScoreThreshold,
// TopCount, TopFraction must be set: each value is consulted only when its
// *Set flag is true, and is ignored otherwise.
type Config struct {
	// ScoreThresholdSet enables stopping once the popped score is >= ScoreThreshold.
	ScoreThresholdSet bool
	ScoreThreshold    float64

	// TopCountSet enables stopping once TopCount J's remain un-removed.
	TopCountSet bool
	TopCount    int

	// TopFractionSet enables stopping once the surviving fraction of the
	// original J count falls to TopFraction.
	TopFractionSet bool
	TopFraction    float64
}

// ErrNoStoppingCondition is returned when Config has none of
// ScoreThreshold/TopCount/TopFraction enabled.
var ErrNoStoppingCondition = errors.New("prune: at least one stopping condition must be set")

// Result reports what a pruning pass removed.
type Result struct {
	Removed            []feature.J
	RemovedNonzeroCount int64
	Renumbering        feature.Renumbering
}

type heapItem struct {
	j     feature.J
	score float64
}

type scoreHeap []heapItem

func (h scoreHeap) Len() int            { return len(h) }
func (h scoreHeap) Less(i, k int) bool  { return h[i].score < h[k].score }
func (h scoreHeap) Swap(i, k int)       { h[i], h[k] = h[k], h[i] }
func (h *scoreHeap) Push(x any)         { *h = append(*h, x.(heapItem)) }
func (h *scoreHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// Select walks existing J's in ascending score order via a min-heap,
// deferring any J whose dependees children are still present, and returns
// the set of J's to remove plus the resulting Renumbering. nonzeroCount(j)
// reports J's non-zero presence count, accumulated into
// Result.RemovedNonzeroCount for reporting. size is the total J-space size
// (0..size) being considered.
func Select(cfg Config, score map[feature.J]float64, graph *dependees.Graph, nonzeroCount func(feature.J) int64, size int) (Result, error) {
	if !cfg.ScoreThresholdSet && !cfg.TopCountSet && !cfg.TopFractionSet {
		return Result{}, ErrNoStoppingCondition
	}

	h := &scoreHeap{}
	heap.Init(h)
	for j, s := range score {
		heap.Push(h, heapItem{j: j, score: s})
	}

	originalCount := len(score)
	removed := make(map[feature.J]bool, len(score))
	blockedBy := make(map[feature.J][]feature.J) // childJ -> parent J's waiting on it

	var removedNonzero int64
	remaining := originalCount

	enqueue := func(j feature.J, s float64) {
		heap.Push(h, heapItem{j: j, score: s})
	}

	for h.Len() > 0 {
		top := heap.Pop(h).(heapItem)
		if removed[top.j] {
			continue
		}
		if top.score == math.Inf(1) {
			break
		}
		if cfg.ScoreThresholdSet && top.score >= cfg.ScoreThreshold {
			break
		}
		if cfg.TopCountSet && remaining <= cfg.TopCount {
			break
		}
		if cfg.TopFractionSet && originalCount > 0 && float64(remaining)/float64(originalCount) <= cfg.TopFraction {
			break
		}

		blocked := false
		for _, child := range graph.Children(top.j) {
			if !removed[child] {
				blockedBy[child] = append(blockedBy[child], top.j)
				blocked = true
				break
			}
		}
		if blocked {
			continue
		}

		removed[top.j] = true
		removedNonzero += nonzeroCount(top.j)
		remaining--

		for _, parentJ := range blockedBy[top.j] {
			enqueue(parentJ, score[parentJ])
		}
		delete(blockedBy, top.j)
	}

	removedSlice := make([]feature.J, 0, len(removed))
	for j := range removed {
		removedSlice = append(removedSlice, j)
	}

	removedBits := make([]bool, size)
	for _, j := range removedSlice {
		if int(j) < size {
			removedBits[j] = true
		}
	}
	renumbering := feature.NewRenumbering(removedBits, size)

	return Result{
		Removed:             removedSlice,
		RemovedNonzeroCount: removedNonzero,
		Renumbering:         renumbering,
	}, nil
}
