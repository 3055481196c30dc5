package prune_test

import (
	"math"
	"testing"

	"sensei/internal/dependees"
	"sensei/internal/feature"
	"sensei/internal/prune"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectRequiresAStoppingCondition(t *testing.T) {
	graph := dependees.NewGraph()
	_, err := prune.Select(prune.Config{}, map[feature.J]float64{0: 1}, graph, func(feature.J) int64 { return 0 }, 1)
	assert.ErrorIs(t, err, prune.ErrNoStoppingCondition)
}

func TestSelectRemovesLowestScoringFirst(t *testing.T) {
	graph := dependees.NewGraph()
	graph.SetRowCount(3)
	score := map[feature.J]float64{0: 5, 1: 1, 2: 3}

	res, err := prune.Select(prune.Config{TopCountSet: true, TopCount: 2}, score, graph, func(feature.J) int64 { return 1 }, 3)
	require.NoError(t, err)
	assert.Contains(t, res.Removed, feature.J(1))
	assert.Len(t, res.Removed, 1)
}

func TestSelectDefersParentBlockedByLiveChild(t *testing.T) {
	graph := dependees.NewGraph()
	graph.SetRowCount(2)
	graph.AddEdge(0, 5, 2) // J0 is a parent of product J5
	score := map[feature.J]float64{0: 1, 1: 2, 5: 10}

	res, err := prune.Select(prune.Config{TopCountSet: true, TopCount: 1}, score, graph, func(feature.J) int64 { return 1 }, 6)
	require.NoError(t, err)
	assert.NotContains(t, res.Removed, feature.J(0), "J0 has a live child J5 and must be deferred")
	assert.Contains(t, res.Removed, feature.J(1))
}

func TestSelectAllowsParentRemovalAfterChildRemoved(t *testing.T) {
	graph := dependees.NewGraph()
	graph.SetRowCount(2)
	graph.AddEdge(0, 5, 2)
	score := map[feature.J]float64{0: 1, 5: 2}

	res, err := prune.Select(prune.Config{TopCountSet: true, TopCount: 0}, score, graph, func(feature.J) int64 { return 1 }, 6)
	require.NoError(t, err)
	assert.Contains(t, res.Removed, feature.J(0))
	assert.Contains(t, res.Removed, feature.J(5))
}

func TestSelectStopsAtScoreThreshold(t *testing.T) {
	graph := dependees.NewGraph()
	graph.SetRowCount(3)
	score := map[feature.J]float64{0: 1, 1: 2, 2: 10}

	res, err := prune.Select(prune.Config{ScoreThresholdSet: true, ScoreThreshold: 2}, score, graph, func(feature.J) int64 { return 1 }, 3)
	require.NoError(t, err)
	assert.Contains(t, res.Removed, feature.J(0))
	assert.NotContains(t, res.Removed, feature.J(1))
	assert.NotContains(t, res.Removed, feature.J(2))
}

func TestSelectNeverRemovesInfiniteScore(t *testing.T) {
	graph := dependees.NewGraph()
	graph.SetRowCount(2)
	score := map[feature.J]float64{0: math.Inf(1), 1: 1}

	res, err := prune.Select(prune.Config{TopCountSet: true, TopCount: 0}, score, graph, func(feature.J) int64 { return 1 }, 2)
	require.NoError(t, err)
	assert.Contains(t, res.Removed, feature.J(1))
	assert.NotContains(t, res.Removed, feature.J(0))
}

func TestSelectAccumulatesRemovedNonzeroCount(t *testing.T) {
	graph := dependees.NewGraph()
	graph.SetRowCount(2)
	score := map[feature.J]float64{0: 1, 1: 2}
	counts := map[feature.J]int64{0: 7, 1: 3}

	res, err := prune.Select(prune.Config{TopCountSet: true, TopCount: 0}, score, graph, func(j feature.J) int64 { return counts[j] }, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(10), res.RemovedNonzeroCount)
}

func TestSelectBuildsCompactingRenumbering(t *testing.T) {
	graph := dependees.NewGraph()
	graph.SetRowCount(3)
	score := map[feature.J]float64{0: 1, 1: 2, 2: 3}

	// 3 J's, TopCount 2 survivors: only the lowest-scoring J0 is removed.
	res, err := prune.Select(prune.Config{TopCountSet: true, TopCount: 2}, score, graph, func(feature.J) int64 { return 0 }, 3)
	require.NoError(t, err)
	assert.Equal(t, []feature.J{0}, res.Removed)
	_, ok := res.Renumbering.Apply(0)
	assert.False(t, ok, "removed J must map to invalid")
	nj1, ok1 := res.Renumbering.Apply(1)
	nj2, ok2 := res.Renumbering.Apply(2)
	require.True(t, ok1)
	require.True(t, ok2)
	assert.NotEqual(t, nj1, nj2)
}
