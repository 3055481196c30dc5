// Package explore implements feature exploration (SPEC_FULL.md §4.9):
// growing the feature universe by pairing high-scoring existing products
// into new conjunctions, walking pairs in descending score-sum order via a
// container/heap priority queue (the pair-sum heap idiom grounded on the
// retrieved pack's Dijkstra/Prim min-heap priority queues).
package explore

import (
	"container/heap"
	"sort"

	"sensei/internal/dependees"
	"sensei/internal/feature"
)

// Strategy names a scoring strategy for existing product J's.
type Strategy int

const (
	AbsWeight Strategy = iota
	AbsWeightTimesRowCount
	MutualInformation
	PhiCoefficient
)

// Config holds exploration tuning parameters.
type Config struct {
	Strategy             Strategy
	MaxProductSize       int
	MaximumFeaturesAdded int
	ExpectedXjboolsAdded float64
	BonusFeatures        map[feature.J]float64 // multiplicative bonus
	LogTransform         bool
}

// Candidate is one newly formed product, pending interning.
type Candidate struct {
	Parent1, Parent2 feature.J
	Product          feature.JProduct
}

// pairItem is one (j1, j2) pair ordered by descending score sum in the
// priority queue; ties broken by ascending (j1, j2).
type pairItem struct {
	j1, j2   feature.J
	scoreSum float64
}

type pairHeap []pairItem

func (h pairHeap) Len() int { return len(h) }
func (h pairHeap) Less(i, k int) bool {
	if h[i].scoreSum != h[k].scoreSum {
		return h[i].scoreSum > h[k].scoreSum // max-heap on score sum
	}
	if h[i].j1 != h[k].j1 {
		return h[i].j1 < h[k].j1
	}
	return h[i].j2 < h[k].j2
}
func (h pairHeap) Swap(i, k int) { h[i], h[k] = h[k], h[i] }
func (h *pairHeap) Push(x any)   { *h = append(*h, x.(pairItem)) }
func (h *pairHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// Explorer grows the feature universe between training rounds.
type Explorer struct {
	Config Config

	xjboolsPerCandidateFeature float64

	// EmptyFeaturesSkipped mirrors a counter present in the source engine
	// that is initialized but never incremented anywhere in its exploration
	// loop (SPEC_FULL.md §9's open question: unclear whether this is dead
	// code or an unfinished metric). Preserved as a field that stays at
	// zero rather than guessing at an increment site; see DESIGN.md.
	EmptyFeaturesSkipped int
}

// New returns an Explorer with the given configuration.
func New(cfg Config) *Explorer {
	return &Explorer{Config: cfg, xjboolsPerCandidateFeature: 1}
}

// Select walks existing product J's in descending score order, forming
// candidate products from pairs whose score sum is highest, skipping any
// that already exist or would exceed MaxProductSize factors, stopping at
// MaximumFeaturesAdded or when the running estimate of xjboolsAdded
// exceeds ExpectedXjboolsAdded.
func (e *Explorer) Select(existing []feature.J, score map[feature.J]float64, products *feature.ProductMap, factorsOf func(feature.J) feature.JProduct) []Candidate {
	ordered := append([]feature.J(nil), existing...)
	sort.Slice(ordered, func(i, k int) bool {
		if score[ordered[i]] != score[ordered[k]] {
			return score[ordered[i]] > score[ordered[k]]
		}
		return ordered[i] < ordered[k]
	})

	// Seed one (i, i+1) pair per row: since ordered is sorted by descending
	// score, this is each i's best remaining partner, so the heap's top is
	// always the global best remaining pair. Popping (i, j) advances row i
	// to its next-best partner (i, j+1), which keeps every row's emission
	// order non-increasing and visits every i<j pair exactly once.
	h := &pairHeap{}
	heap.Init(h)
	for i := 0; i+1 < len(ordered); i++ {
		heap.Push(h, pairItem{j1: ordered[i], j2: ordered[i+1], scoreSum: score[ordered[i]] + score[ordered[i+1]]})
	}
	idx := make(map[feature.J]int, len(ordered))
	for i, j := range ordered {
		idx[j] = i
	}

	var candidates []Candidate
	var xjboolsAdded float64

	for h.Len() > 0 && len(candidates) < e.Config.MaximumFeaturesAdded {
		top := heap.Pop(h).(pairItem)

		j := idx[top.j2]
		if j+1 < len(ordered) {
			heap.Push(h, pairItem{j1: top.j1, j2: ordered[j+1], scoreSum: score[top.j1] + score[ordered[j+1]]})
		}

		f1 := factorsOf(top.j1)
		f2 := factorsOf(top.j2)
		union := feature.Union(f1, f2)

		if len(union) <= e.Config.MaxProductSize && !products.Contains(union) {
			candidates = append(candidates, Candidate{Parent1: top.j1, Parent2: top.j2, Product: union})
			xjboolsAdded += e.xjboolsPerCandidateFeature
			if xjboolsAdded > e.Config.ExpectedXjboolsAdded {
				break
			}
		}
	}

	if len(candidates) > 0 {
		e.xjboolsPerCandidateFeature = xjboolsAdded / float64(len(candidates))
	} else {
		e.xjboolsPerCandidateFeature /= 2
	}

	return candidates
}

// Intern registers each candidate's product in products and records two
// dependees edges (parent1 -> newJ, parent2 -> newJ) in graph. Returns the
// first newly assigned J and the resulting universe size, for
// World.AddFeatures.
func Intern(candidates []Candidate, products *feature.ProductMap, graph *dependees.Graph) (firstNewJ feature.J, newSize int, err error) {
	if len(candidates) == 0 {
		return feature.InvalidJ, int(products.Size()), nil
	}

	firstNewJ = feature.InvalidJ
	for _, c := range candidates {
		j, err := products.Intern(c.Product)
		if err != nil {
			return feature.InvalidJ, 0, err
		}
		if firstNewJ == feature.InvalidJ {
			firstNewJ = j
		}
		graph.AddEdge(c.Parent1, j, len(c.Product))
		graph.AddEdge(c.Parent2, j, len(c.Product))
	}
	return firstNewJ, int(products.Size()), nil
}
