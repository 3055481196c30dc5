// Package optimizer implements the two fitting algorithms over a Model: the
// batch quadratic-majorizer optimizer (GradBoost, SPEC_FULL.md §4.7) and
// asynchronous Hogwild-style SGD (§4.8).
package optimizer

import (
	"context"
	"math"
	"sync"

	"sensei/internal/feature"
	"sensei/internal/majorizer"
	"sensei/internal/model"
	"sensei/internal/regularize"
	"sensei/internal/shard"
	"sensei/internal/workerpool"
)

// IterationLog is one batch iteration's summary, emitted to the engine's
// record/text log sinks and, when enabled, mirrored into metrics.
type IterationLog struct {
	TrainRows, HoldoutRows int
	LogLoss                float64
	RegLoss                float64
	TotalLoss              float64
	WeightL1, WeightL2     float64
	NonzeroCount           int
	Reverted               bool // true if the inertia or undo rule rejected this step
}

// GradBoost is the batch majorizer optimizer.
type GradBoost struct {
	Workers        int
	Deterministic  bool
	Inertia        float64
	StepMultiplier float64
	AllowUndo      bool

	prevTotalLoss float64
	pool          sync.Pool
}

// NewGradBoost returns a GradBoost optimizer ready for its first iteration.
func NewGradBoost(workers int, deterministic bool) *GradBoost {
	g := &GradBoost{Workers: workers, Deterministic: deterministic, StepMultiplier: 1, prevTotalLoss: math.Inf(1)}
	g.pool.New = func() any { return majorizer.New(0) }
	return g
}

type rowCache struct {
	extended [][]feature.J
	wx       []float64
}

// RunIteration performs one GradBoost pass over train, per SPEC_FULL.md
// §4.7: fold the majorizer over extended rows, compute total loss, apply
// the coordinate update, then accept or revert per the inertia-restart and
// undo rules.
func (g *GradBoost) RunIteration(ctx context.Context, m *model.Model, regs regularize.Set, stats *shard.Stats, train, holdout *shard.Set, ext shard.Extender) (IterationLog, error) {
	size := m.Size()

	cache, err := g.buildRowCache(ctx, m, train, ext)
	if err != nil {
		return IterationLog{}, err
	}

	merged, logLossOld, err := g.foldMajorizer(ctx, size, train, cache)
	if err != nil {
		return IterationLog{}, err
	}

	regLossOld := g.regularizationLoss(m.W, regs, stats, merged.A)
	beforeTotalLoss := logLossOld + regLossOld

	deltaW := make([]float64, size)
	newW := make([]float64, size)
	for j := 0; j < size; j++ {
		jj := feature.J(j)
		rowsWithJ := int(stats.Positive[jj] + stats.Negative[jj])
		eff := regs.Effective(rowsWithJ, merged.A[j])
		cu := majorizer.CoordinateUpdate{
			AJ: merged.A[j], BJ: merged.B[j],
			W0:             m.W[j],
			DeltaWPrev:     m.DeltaW[j],
			Inertia:        g.Inertia,
			StepMultiplier: g.StepMultiplier,
			Reg:            eff,
		}
		wNew, dw, precision := cu.Apply(m.W[j] == 0)
		newW[j] = wNew
		deltaW[j] = dw
		m.Precision[j] = precision
		m.LossDerivative[j] = merged.B[j]
	}

	// Fresh gradient at w0 is B_j/2 by construction of the Jaakkola-Jordan
	// bound (each row's b_i is twice the loss derivative at the expansion
	// point), so B_j carries the gradient's sign.
	var gradDotDelta float64
	for j := 0; j < size; j++ {
		gradDotDelta += merged.B[j] * deltaW[j]
	}
	if gradDotDelta > 0 {
		for j := range deltaW {
			deltaW[j] = 0
			m.DeltaW[j] = 0
		}
		log := IterationLog{
			TrainRows: train.RowCount(), HoldoutRows: holdout.RowCount(),
			LogLoss: logLossOld, RegLoss: regLossOld, TotalLoss: beforeTotalLoss,
			WeightL1: m.L1Norm(), WeightL2: m.L2Norm(), NonzeroCount: m.NonzeroCount(),
			Reverted: true,
		}
		return log, nil
	}

	afterLogLoss, err := g.evaluateLogLoss(ctx, newW, train, cache)
	if err != nil {
		return IterationLog{}, err
	}
	afterRegLoss := g.regularizationLoss(newW, regs, stats, merged.A)
	afterTotalLoss := afterLogLoss + afterRegLoss

	if g.AllowUndo && afterTotalLoss > g.prevTotalLoss {
		for j := range deltaW {
			deltaW[j] = 0
			m.DeltaW[j] = 0
		}
		g.prevTotalLoss = math.Inf(1)
		return IterationLog{
			TrainRows: train.RowCount(), HoldoutRows: holdout.RowCount(),
			LogLoss: logLossOld, RegLoss: regLossOld, TotalLoss: beforeTotalLoss,
			WeightL1: m.L1Norm(), WeightL2: m.L2Norm(), NonzeroCount: m.NonzeroCount(),
			Reverted: true,
		}, nil
	}

	copy(m.W, newW)
	copy(m.DeltaW, deltaW)
	// Re-sync w·x against the new W; this sets SyncedWithWeights again.
	if _, err := g.buildRowCache(ctx, m, train, ext); err != nil {
		return IterationLog{}, err
	}
	g.prevTotalLoss = afterTotalLoss

	return IterationLog{
		TrainRows: train.RowCount(), HoldoutRows: holdout.RowCount(),
		LogLoss: afterLogLoss, RegLoss: afterRegLoss, TotalLoss: afterTotalLoss,
		WeightL1: m.L1Norm(), WeightL2: m.L2Norm(), NonzeroCount: m.NonzeroCount(),
	}, nil
}

func (g *GradBoost) buildRowCache(ctx context.Context, m *model.Model, train *shard.Set, ext shard.Extender) ([]rowCache, error) {
	cache := make([]rowCache, len(train.Shards))
	err := workerpool.Run(ctx, g.Workers, len(train.Shards), g.Deterministic, func(i int) error {
		sh := train.Shards[i]
		rc := sh.RowCount()
		extended := make([][]feature.J, rc)
		wx := make([]float64, rc)
		for r := 0; r < rc; r++ {
			row := ext.Extend(sh.Rows.Row(r))
			extended[r] = row
			var dot float64
			for _, j := range row {
				dot += m.W[j]
			}
			wx[r] = dot
		}
		cache[i] = rowCache{extended: extended, wx: wx}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.SyncedWithWeights = true
	return cache, nil
}

func (g *GradBoost) foldMajorizer(ctx context.Context, size int, train *shard.Set, cache []rowCache) (*majorizer.Majorizer, float64, error) {
	partials := make([]*majorizer.Majorizer, len(train.Shards))
	losses := make([]float64, len(train.Shards))
	dim := majorizer.Dim1Majorizer{}

	err := workerpool.Run(ctx, g.Workers, len(train.Shards), g.Deterministic, func(i int) error {
		local := g.pool.Get().(*majorizer.Majorizer)
		local.Reset(size)
		sh := train.Shards[i]
		c := cache[i]
		var shardLoss float64
		for r := 0; r < sh.RowCount(); r++ {
			shardLoss += local.AccumulateRow(dim, c.extended[r], sh.Labels[r], c.wx[r])
		}
		partials[i] = local
		losses[i] = shardLoss
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	merged := majorizer.New(size)
	ranges := workerpool.SplitRanges(size, g.Workers)
	foldErr := workerpool.Run(ctx, g.Workers, len(ranges), g.Deterministic, func(i int) error {
		lo, hi := ranges[i][0], ranges[i][1]
		for _, p := range partials {
			merged.MergeRange(p, lo, hi)
		}
		return nil
	})
	if foldErr != nil {
		return nil, 0, foldErr
	}

	for _, p := range partials {
		g.pool.Put(p)
	}

	var totalLoss float64
	for _, l := range losses {
		totalLoss += l
	}
	return merged, totalLoss, nil
}

// evaluateLogLoss computes total logistic loss under candidate weights w,
// reusing the cached extended rows (row membership does not change between
// a fold and its candidate update).
func (g *GradBoost) evaluateLogLoss(ctx context.Context, w []float64, train *shard.Set, cache []rowCache) (float64, error) {
	dim := majorizer.Dim1Majorizer{}
	losses := make([]float64, len(train.Shards))
	err := workerpool.Run(ctx, g.Workers, len(train.Shards), g.Deterministic, func(i int) error {
		sh := train.Shards[i]
		c := cache[i]
		var shardLoss float64
		for r := 0; r < sh.RowCount(); r++ {
			var dot float64
			for _, j := range c.extended[r] {
				dot += w[j]
			}
			_, _, logLoss := dim.Compute(dot, sh.Labels[r], len(c.extended[r]))
			shardLoss += logLoss
		}
		losses[i] = shardLoss
		return nil
	})
	if err != nil {
		return 0, err
	}
	var total float64
	for _, l := range losses {
		total += l
	}
	return total, nil
}

func (g *GradBoost) regularizationLoss(w []float64, regs regularize.Set, stats *shard.Stats, majorizerA []float64) float64 {
	var total float64
	for j, wj := range w {
		jj := feature.J(j)
		rowsWithJ := int(stats.Positive[jj] + stats.Negative[jj])
		eff := regs.Effective(rowsWithJ, majorizerA[j])
		l1 := eff.EffectiveL1(wj == 0)
		total += l1*math.Abs(wj) + eff.L2*wj*wj
	}
	return total
}
