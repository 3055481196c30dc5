// Package sparse provides the compressed sparse row (CSR) and coordinate
// (COO) matrix representations used for the feature universe's dependees
// graph and for data-row storage (SPEC_FULL.md §4.2).
package sparse

import "sensei/internal/feature"

// CSR is a row-major sparse boolean matrix: each row is a sorted slice of
// column indices (J's), stored as one flat Cols slice plus a Bounds slice
// of length RowCount()+1 where row i occupies Cols[Bounds[i]:Bounds[i+1]].
type CSR struct {
	Cols   []feature.J
	Bounds []int
}

// NewCSR returns an empty CSR with a single boundary entry (zero rows).
func NewCSR() *CSR {
	return &CSR{Bounds: []int{0}}
}

// RowCount returns the number of rows.
func (c *CSR) RowCount() int {
	if len(c.Bounds) == 0 {
		return 0
	}
	return len(c.Bounds) - 1
}

// NNZ returns the total number of non-zero entries.
func (c *CSR) NNZ() int {
	return len(c.Cols)
}

// Row returns a zero-copy view of row i's column indices. The caller must
// not mutate the returned slice's length by appending to it.
func (c *CSR) Row(i int) []feature.J {
	return c.Cols[c.Bounds[i]:c.Bounds[i+1]]
}

// AppendRow appends a new row containing cols (assumed already sorted and
// duplicate-free) and returns its row index.
func (c *CSR) AppendRow(cols []feature.J) int {
	c.Cols = append(c.Cols, cols...)
	c.Bounds = append(c.Bounds, len(c.Cols))
	return c.RowCount() - 1
}

// RemoveAndRenumberJs rewrites every row's column contents in place,
// dropping columns whose J was removed by r and remapping survivors,
// compacting each row's boundaries accordingly. Used when pruning shrinks
// the feature universe.
func (c *CSR) RemoveAndRenumberJs(r feature.Renumbering) {
	newCols := make([]feature.J, 0, len(c.Cols))
	newBounds := make([]int, len(c.Bounds))
	newBounds[0] = 0
	for i := 0; i < c.RowCount(); i++ {
		for _, j := range c.Row(i) {
			if nj, ok := r.Apply(j); ok {
				newCols = append(newCols, nj)
			}
		}
		newBounds[i+1] = len(newCols)
	}
	c.Cols = newCols
	c.Bounds = newBounds
}

// RemoveAndRenumberRows treats the row index itself as a J (used for the
// dependees matrix, whose row index is the parent atomic J) and permutes
// rows according to r, dropping rows whose index was removed.
func (c *CSR) RemoveAndRenumberRows(r feature.Renumbering) {
	newRowOf := make(map[int]int, r.NextJ)
	for old := 0; old < c.RowCount(); old++ {
		if nj, ok := r.Apply(feature.J(old)); ok {
			newRowOf[old] = int(nj)
		}
	}
	rows := make([][]feature.J, r.NextJ)
	for old, row := range newRowOf {
		rows[row] = append([]feature.J(nil), c.Row(old)...)
	}
	out := NewCSR()
	for _, row := range rows {
		out.AppendRow(row)
	}
	c.Cols = out.Cols
	c.Bounds = out.Bounds
}

// ToCOO converts c to an unsorted COO matrix.
func (c *CSR) ToCOO() *COO {
	coo := &COO{Entries: make([]Entry, 0, c.NNZ())}
	for i := 0; i < c.RowCount(); i++ {
		for _, j := range c.Row(i) {
			coo.Entries = append(coo.Entries, Entry{Row: i, Col: j})
		}
	}
	return coo
}

// FromCOO builds a CSR from a COO matrix that has already been sorted by
// (Row, Col). rows is the total row count to materialise (rows with no
// entries become empty).
func FromCOO(coo *COO, rows int) *CSR {
	c := NewCSR()
	idx := 0
	for row := 0; row < rows; row++ {
		start := idx
		for idx < len(coo.Entries) && coo.Entries[idx].Row == row {
			idx++
		}
		rowCols := make([]feature.J, idx-start)
		for k, e := range coo.Entries[start:idx] {
			rowCols[k] = e.Col
		}
		c.AppendRow(rowCols)
	}
	return c
}
