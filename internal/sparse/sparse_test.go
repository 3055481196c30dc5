package sparse_test

import (
	"testing"

	"sensei/internal/feature"
	"sensei/internal/sparse"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSRAppendAndRow(t *testing.T) {
	c := sparse.NewCSR()
	c.AppendRow([]feature.J{1, 3, 5})
	c.AppendRow([]feature.J{2})

	require.Equal(t, 2, c.RowCount())
	assert.Equal(t, []feature.J{1, 3, 5}, c.Row(0))
	assert.Equal(t, []feature.J{2}, c.Row(1))
	assert.Equal(t, 4, c.NNZ())
}

func TestCOORoundTripThroughCSR(t *testing.T) {
	c := sparse.NewCSR()
	c.AppendRow([]feature.J{3, 1})
	c.AppendRow([]feature.J{})
	c.AppendRow([]feature.J{2})

	coo := c.ToCOO()
	coo.Sort()
	back := sparse.FromCOO(coo, c.RowCount())

	assert.Equal(t, c.RowCount(), back.RowCount())
	coo2 := back.ToCOO()
	coo2.Sort()
	assert.Equal(t, coo.Entries, coo2.Entries)
}

func TestRemoveAndRenumberJsCompactsRows(t *testing.T) {
	c := sparse.NewCSR()
	c.AppendRow([]feature.J{0, 1, 2})
	c.AppendRow([]feature.J{1})

	// remove J=1, compact 0->0, 2->1
	rmap := []feature.J{0, feature.InvalidJ, 1}
	r := feature.Renumbering{Map: rmap, NextJ: 2}
	c.RemoveAndRenumberJs(r)

	assert.Equal(t, []feature.J{0, 1}, c.Row(0))
	assert.Equal(t, []feature.J{}, c.Row(1))
}

func TestRemoveAndRenumberRowsPermutesRows(t *testing.T) {
	c := sparse.NewCSR()
	c.AppendRow([]feature.J{9})  // row 0
	c.AppendRow([]feature.J{8})  // row 1, to be removed
	c.AppendRow([]feature.J{7})  // row 2

	rmap := []feature.J{0, feature.InvalidJ, 1}
	r := feature.Renumbering{Map: rmap, NextJ: 2}
	c.RemoveAndRenumberRows(r)

	require.Equal(t, 2, c.RowCount())
	assert.Equal(t, []feature.J{9}, c.Row(0))
	assert.Equal(t, []feature.J{7}, c.Row(1))
}
