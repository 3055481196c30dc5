package world_test

import (
	"context"
	"testing"

	"sensei/internal/explore"
	"sensei/internal/feature"
	"sensei/internal/metrics"
	"sensei/internal/optimizer"
	"sensei/internal/prune"
	"sensei/internal/shard"
	"sensei/internal/world"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildWorldWithRows(t *testing.T) (*world.World, feature.J, feature.J) {
	t.Helper()
	w := world.New(1<<20, 2, true)

	fA, err := w.Features.Intern("a")
	require.NoError(t, err)
	fB, err := w.Features.Intern("b")
	require.NoError(t, err)

	require.NoError(t, w.InitializeBias(context.Background()))

	rows := []shard.Row{
		{Label: shard.Positive, RowID: 1, Js: []feature.J{fA, fB}},
		{Label: shard.Positive, RowID: 2, Js: []feature.J{fA}},
		{Label: shard.Negative, RowID: 3, Js: []feature.J{fB}},
		{Label: shard.Negative, RowID: 4, Js: []feature.J{}},
	}
	_, err = w.RunCommand(context.Background(), world.Command{Kind: world.CmdReadData, TrainRows: rows})
	require.NoError(t, err)
	require.NoError(t, w.AddFeatures(context.Background(), feature.InvalidJ, w.Products.Size()))

	return w, fA, fB
}

func TestReadDataAndFitModelWeightsReducesLoss(t *testing.T) {
	w, _, _ := buildWorldWithRows(t)
	ctx := context.Background()

	var prevTotal float64
	for i := 0; i < 5; i++ {
		res, err := w.RunCommand(ctx, world.Command{Kind: world.CmdFitModelWeights})
		require.NoError(t, err)
		log := res.IterationLog.(optimizer.IterationLog)
		if i > 0 && !log.Reverted {
			assert.LessOrEqual(t, log.TotalLoss, prevTotal+1e-9)
		}
		prevTotal = log.TotalLoss
	}
	assert.True(t, w.Model.SyncedWithWeights)
}

func TestInitializeBiasInternsEmptyProduct(t *testing.T) {
	w := world.New(1<<20, 1, true)
	require.NoError(t, w.InitializeBias(context.Background()))
	assert.True(t, w.Products.Contains(feature.JProduct{}))
}

func TestExploreAddsProductFeature(t *testing.T) {
	w, fA, fB := buildWorldWithRows(t)
	ctx := context.Background()

	// Give both atomic features a non-zero weight so AbsWeight scoring
	// prefers pairing them.
	w.Model.SetWeight(fA, 1.0)
	w.Model.SetWeight(fB, 1.0)
	sizeBefore := w.Products.Size()

	_, err := w.RunCommand(ctx, world.Command{Kind: world.CmdAddNewProductFeatures, Strategy: explore.AbsWeight})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, w.Products.Size(), sizeBefore)
}

func TestPruneFeaturesRemovesLowestScoring(t *testing.T) {
	w, fA, _ := buildWorldWithRows(t)
	ctx := context.Background()

	w.Model.SetWeight(fA, 5.0)
	sizeBefore := w.Model.Size()

	res, err := w.RunCommand(ctx, world.Command{
		Kind:     world.CmdPruneFeatures,
		Strategy: explore.AbsWeight,
		Prune:    prune.Config{TopCountSet: true, TopCount: sizeBefore - 1},
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(res.PruneResult.Removed), 1)
	assert.LessOrEqual(t, w.Model.Size(), sizeBefore)
}

func TestScoreRowsReturnsRowIDAndDotProduct(t *testing.T) {
	w, fA, _ := buildWorldWithRows(t)
	ctx := context.Background()
	w.Model.SetWeight(fA, 2.0)

	rows := []shard.Row{{RowID: 42, Js: []feature.J{fA}}}
	res, err := w.RunCommand(ctx, world.Command{Kind: world.CmdScoreRows, TrainRows: rows})
	require.NoError(t, err)
	require.Len(t, res.ScoredRows, 1)
	assert.Equal(t, uint32(42), res.ScoredRows[0].RowID)
	assert.InDelta(t, 2.0, res.ScoredRows[0].WX, 1e-9)
}

func TestRunSGDRejectsAdaptiveRegularization(t *testing.T) {
	w, _, _ := buildWorldWithRows(t)
	ctx := context.Background()
	w.Regularization.Confidence.L1 = 0.5

	_, err := w.RunCommand(ctx, world.Command{Kind: world.CmdRunSGD})
	assert.Error(t, err)
}

func TestCommandListRunsEachSubCommandInOrder(t *testing.T) {
	w, fA, _ := buildWorldWithRows(t)
	ctx := context.Background()
	w.Model.SetWeight(fA, 1.0)

	_, err := w.RunCommand(ctx, world.Command{
		Kind: world.CmdCommandList,
		List: []world.Command{
			{Kind: world.CmdFitModelWeights},
			{Kind: world.CmdFitModelWeights},
		},
	})
	require.NoError(t, err)
}

func TestRepeatRunsInnerCommandCountTimes(t *testing.T) {
	w, _, _ := buildWorldWithRows(t)
	ctx := context.Background()

	_, err := w.RunCommand(ctx, world.Command{
		Kind:  world.CmdRepeat,
		Inner: &world.Command{Kind: world.CmdFitModelWeights},
		Count: 3,
	})
	require.NoError(t, err)
}

func TestStoreModelWithoutConfiguredStoreIsConfigurationError(t *testing.T) {
	w, _, _ := buildWorldWithRows(t)
	_, err := w.RunCommand(context.Background(), world.Command{Kind: world.CmdWriteModel})
	assert.Error(t, err)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %q not found", name)
	return 0
}

func TestFitBatchUpdatesMetricsWhenEnabled(t *testing.T) {
	w, _, _ := buildWorldWithRows(t)
	reg := prometheus.NewRegistry()
	w.Metrics = metrics.New(reg)

	_, err := w.RunCommand(context.Background(), world.Command{Kind: world.CmdFitModelWeights})
	require.NoError(t, err)

	assert.Equal(t, 1.0, counterValue(t, reg, "sensei_iterations_total"))
}

func TestExploreAndPruneUpdateFeatureCounters(t *testing.T) {
	w, fA, fB := buildWorldWithRows(t)
	reg := prometheus.NewRegistry()
	w.Metrics = metrics.New(reg)
	ctx := context.Background()

	w.Model.SetWeight(fA, 1.0)
	w.Model.SetWeight(fB, 1.0)
	productsBefore := w.Products.Size()
	_, err := w.RunCommand(ctx, world.Command{Kind: world.CmdAddNewProductFeatures, Strategy: explore.AbsWeight})
	require.NoError(t, err)
	if added := w.Products.Size() - productsBefore; added > 0 {
		assert.Equal(t, float64(added), counterValue(t, reg, "sensei_features_added_total"))
	}

	sizeBefore := w.Model.Size()
	res, err := w.RunCommand(ctx, world.Command{
		Kind:     world.CmdPruneFeatures,
		Strategy: explore.AbsWeight,
		Prune:    prune.Config{TopCountSet: true, TopCount: sizeBefore - 1},
	})
	require.NoError(t, err)
	if removed := len(res.PruneResult.Removed); removed > 0 {
		assert.Equal(t, float64(removed), counterValue(t, reg, "sensei_features_pruned_total"))
	}
}
