// Package dependees implements the dependees DAG and the row extender
// described in SPEC_FULL.md §4.3: given a sparse row of atomic J's, the
// extender materialises every product J whose factors are all present.
package dependees

import (
	"fmt"
	"sync"

	"sensei/internal/feature"
	"sensei/internal/sparse"
)

// Graph is the dependees CSR: one row per atomic J, listing the product
// J's that include that atomic J as one of their factors.
type Graph struct {
	mu  sync.RWMutex
	csr *sparse.CSR
	// arity[j] is the number of atomic factors product J j requires.
	arity map[feature.J]int
}

// NewGraph returns an empty dependees graph.
func NewGraph() *Graph {
	return &Graph{csr: sparse.NewCSR(), arity: make(map[feature.J]int)}
}

// AddEdge records that childJ (a product) depends on parentJ (one of its
// atomic factors). childArity is the total number of atomic factors in the
// child product. Callers must preserve parentJ < childJ (SPEC_FULL.md
// §4.3's DAG invariant); AddEdge panics otherwise since violating it would
// make extension loop forever.
func (g *Graph) AddEdge(parentJ, childJ feature.J, childArity int) {
	if childJ <= parentJ {
		panic(fmt.Sprintf("dependees: DAG invariant violated, child J %d <= parent J %d", childJ, parentJ))
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for int(parentJ) >= g.csr.RowCount() {
		g.csr.AppendRow(nil)
	}
	row := g.rowAppend(int(parentJ), childJ)
	_ = row
	g.arity[childJ] = childArity
}

// rowAppend appends childJ to the given row, keeping the row sorted. CSR
// has no in-place row-append primitive, so this rebuilds the CSR's
// underlying slices directly; dependees graphs are built incrementally
// during exploration, which runs between (not during) training passes, so
// this is not on the hot path.
func (g *Graph) rowAppend(rowIdx int, childJ feature.J) int {
	coo := g.csr.ToCOO()
	coo.Add(rowIdx, childJ)
	coo.Sort()
	g.csr = sparse.FromCOO(coo, g.csr.RowCount())
	return rowIdx
}

// SetRowCount ensures the graph has at least n atomic-J rows, called by
// World.AddFeatures after interning new atomic features.
func (g *Graph) SetRowCount(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for g.csr.RowCount() < n {
		g.csr.AppendRow(nil)
	}
}

// Children returns the product J's that depend on parentJ.
func (g *Graph) Children(parentJ feature.J) []feature.J {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if int(parentJ) >= g.csr.RowCount() {
		return nil
	}
	return g.csr.Row(int(parentJ))
}

// Arity returns the number of atomic factors childJ requires.
func (g *Graph) Arity(childJ feature.J) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.arity[childJ]
}

// Renumber applies r to both the graph's row index space (parent J's) and
// to the child J's listed in each row, and to the arity table's keys.
func (g *Graph) Renumber(r feature.Renumbering) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.csr.RemoveAndRenumberJs(r)
	g.csr.RemoveAndRenumberRows(r)

	newArity := make(map[feature.J]int, len(g.arity))
	for childJ, ar := range g.arity {
		if nj, ok := r.Apply(childJ); ok {
			newArity[nj] = ar
		}
	}
	g.arity = newArity
}
