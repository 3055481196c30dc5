package dependees_test

import (
	"testing"

	"sensei/internal/dependees"
	"sensei/internal/feature"

	"github.com/stretchr/testify/assert"
)

func TestExtendAddsProductWhenAllFactorsPresent(t *testing.T) {
	g := dependees.NewGraph()
	// product J=2 depends on atomic J=0 and J=1
	g.AddEdge(0, 2, 2)
	g.AddEdge(1, 2, 2)

	x := dependees.NewRowExtender(g)
	got := x.Extend([]feature.J{0, 1})
	assert.Equal(t, []feature.J{0, 1, 2}, got)
}

func TestExtendSkipsProductWhenFactorMissing(t *testing.T) {
	g := dependees.NewGraph()
	g.AddEdge(0, 2, 2)
	g.AddEdge(1, 2, 2)

	x := dependees.NewRowExtender(g)
	got := x.Extend([]feature.J{0})
	assert.Equal(t, []feature.J{0}, got)
}

func TestExtendRecursesThroughMultipleLevels(t *testing.T) {
	g := dependees.NewGraph()
	// 3 = {0,1}, 4 = {0,3} = {0,0,1} conceptually {0,1,3}-arity 2 over {0,3}
	g.AddEdge(0, 3, 2)
	g.AddEdge(1, 3, 2)
	g.AddEdge(0, 4, 2)
	g.AddEdge(3, 4, 2)

	x := dependees.NewRowExtender(g)
	got := x.Extend([]feature.J{0, 1})
	assert.Equal(t, []feature.J{0, 1, 3, 4}, got)
}

func TestExtendIsIdempotentAcrossCalls(t *testing.T) {
	g := dependees.NewGraph()
	g.AddEdge(0, 5, 2)
	g.AddEdge(1, 5, 2)

	x := dependees.NewRowExtender(g)
	first := x.Extend([]feature.J{0, 1})
	second := x.Extend([]feature.J{0, 1})
	assert.Equal(t, first, second)
}

func TestGraphRenumberRemapsRowsAndChildren(t *testing.T) {
	g := dependees.NewGraph()
	g.AddEdge(0, 2, 2)
	g.AddEdge(1, 2, 2)

	rmap := []feature.J{0, 1, feature.InvalidJ}
	r := feature.Renumbering{Map: rmap, NextJ: 2}
	g.Renumber(r)

	assert.Empty(t, g.Children(0))
	assert.Empty(t, g.Children(1))
}
