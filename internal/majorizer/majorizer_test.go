package majorizer_test

import (
	"testing"

	"sensei/internal/feature"
	"sensei/internal/majorizer"
	"sensei/internal/regularize"
	"sensei/internal/shard"

	"github.com/stretchr/testify/assert"
)

func TestDim1MajorizerStableAtZeroWx(t *testing.T) {
	dim := majorizer.Dim1Majorizer{}
	a, b, logLoss := dim.Compute(0, shard.Positive, 3)
	assert.InDelta(t, 1.5, a, 1e-9) // ratio 0.5 * nnz 3
	assert.InDelta(t, -1.0, b, 1e-9)
	assert.InDelta(t, 0.6931471805599453, logLoss, 1e-9) // log(2)
}

func TestDim1MajorizerLowLossWhenConfidentAndCorrect(t *testing.T) {
	dim := majorizer.Dim1Majorizer{}
	_, _, logLoss := dim.Compute(10, shard.Positive, 1)
	assert.Less(t, logLoss, 0.001)
}

func TestDim1MajorizerHighLossWhenConfidentAndWrong(t *testing.T) {
	dim := majorizer.Dim1Majorizer{}
	_, _, logLoss := dim.Compute(10, shard.Negative, 1)
	assert.Greater(t, logLoss, 9.0)
}

func TestMajorizerAccumulateRowFoldsIntoEveryActiveJ(t *testing.T) {
	m := majorizer.New(3)
	dim := majorizer.Dim1Majorizer{}
	m.AccumulateRow(dim, []feature.J{0, 2}, shard.Positive, 0)
	assert.NotZero(t, m.A[0])
	assert.NotZero(t, m.A[2])
	assert.Zero(t, m.A[1])
}

func TestMajorizerMergeRangeAddsWithinBounds(t *testing.T) {
	m := majorizer.New(4)
	other := majorizer.New(4)
	other.A[1] = 5
	other.B[1] = 7
	other.A[3] = 100 // outside the merged range, must not leak in

	m.MergeRange(other, 0, 2)
	assert.Equal(t, 5.0, m.A[1])
	assert.Equal(t, 7.0, m.B[1])
	assert.Zero(t, m.A[3])
}

func TestCoordinateUpdateSoftThresholdZerosSmallWeight(t *testing.T) {
	cu := majorizer.CoordinateUpdate{
		AJ: 1, BJ: 0.01, W0: 0, DeltaWPrev: 0, Inertia: 0, StepMultiplier: 1,
		Reg: regularize.Term{L1: 1000},
	}
	wNew, deltaW, _ := cu.Apply(true)
	assert.Zero(t, wNew)
	assert.Zero(t, deltaW)
}

func TestCoordinateUpdateZeroWhenAZero(t *testing.T) {
	cu := majorizer.CoordinateUpdate{AJ: 0, BJ: 5, W0: 0, StepMultiplier: 1}
	wNew, _, _ := cu.Apply(true)
	assert.Zero(t, wNew)
}

func TestPrecisionFormula(t *testing.T) {
	assert.InDelta(t, 2.5, majorizer.Precision(1, 1), 1e-9)
}
