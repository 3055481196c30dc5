package sparse

import (
	"sort"

	"sensei/internal/feature"
)

// Entry is a single (row, col) coordinate.
type Entry struct {
	Row int
	Col feature.J
}

// COO is an unordered coordinate list, convertible to CSR after Sort.
type COO struct {
	Entries []Entry
}

// Add appends a coordinate.
func (c *COO) Add(row int, col feature.J) {
	c.Entries = append(c.Entries, Entry{Row: row, Col: col})
}

// Sort orders entries by (Row, Col) ascending; required before FromCOO.
func (c *COO) Sort() {
	sort.Slice(c.Entries, func(i, k int) bool {
		if c.Entries[i].Row != c.Entries[k].Row {
			return c.Entries[i].Row < c.Entries[k].Row
		}
		return c.Entries[i].Col < c.Entries[k].Col
	})
}
