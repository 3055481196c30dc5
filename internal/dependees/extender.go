package dependees

import (
	"sort"
	"sync"

	"sensei/internal/feature"
)

// scratch holds the per-extension working state: a dense map from child J
// to "factors of that child seen so far in this row". It is pooled so that
// concurrent extensions across worker goroutines do not allocate per row.
type scratch struct {
	seen map[feature.J]int
}

// RowExtender computes the transitive closure of a sparse row under a
// Graph (SPEC_FULL.md §4.3). One RowExtender may be shared across
// goroutines; each Extend call borrows a pooled scratch buffer so no
// goroutine blocks another.
type RowExtender struct {
	graph *Graph
	pool  sync.Pool
}

// NewRowExtender returns an extender bound to graph.
func NewRowExtender(graph *Graph) *RowExtender {
	return &RowExtender{
		graph: graph,
		pool: sync.Pool{
			New: func() any { return &scratch{seen: make(map[feature.J]int)} },
		},
	}
}

// Extend returns the sorted, duplicate-free closure of row under the
// dependees graph: for every J in row, every child product in
// graph.Children(J) is added once all of its factors are present,
// recursively.
func (x *RowExtender) Extend(row []feature.J) []feature.J {
	s := x.pool.Get().(*scratch)
	clear(s.seen)
	defer x.pool.Put(s)

	present := make(map[feature.J]bool, len(row)*2)
	out := append([]feature.J(nil), row...)
	for _, j := range row {
		present[j] = true
	}

	queue := append([]feature.J(nil), row...)
	for len(queue) > 0 {
		j := queue[0]
		queue = queue[1:]
		for _, child := range x.graph.Children(j) {
			s.seen[child]++
			if present[child] {
				continue
			}
			if s.seen[child] == x.graph.Arity(child) {
				present[child] = true
				out = append(out, child)
				queue = append(queue, child)
			}
		}
	}

	sort.Slice(out, func(i, k int) bool { return out[i] < out[k] })
	return out
}
