// Package majorizer implements the Jaakkola-Jordan quadratic upper bound on
// logistic loss and the per-J coordinate update derived from it
// (SPEC_FULL.md §4.6). Dim1Majorizer computes the per-row scalar pair; a
// Majorizer folds per-row contributions into per-J accumulators.
package majorizer

import (
	"math"

	"sensei/internal/feature"
	"sensei/internal/regularize"
	"sensei/internal/shard"
)

// stableThreshold is the |wxy| below which the Jaakkola-Jordan ratio is
// replaced by its limit of 0.5, to avoid a 0/0 division near wxy == 0.
const stableThreshold = 1e-6

// Dim1Majorizer computes the per-row (a_i, b_i, logLoss) triple. It carries
// no state; it exists so the per-row formula has a named, testable home
// distinct from the per-J accumulation in Majorizer.
type Dim1Majorizer struct{}

// Compute returns the row's contribution to every active coordinate's
// majorant, plus the row's logistic loss, given the row's cached dot
// product wx, its label, and its non-zero count (== ||x_i||^2 for binary
// features).
func (Dim1Majorizer) Compute(wx float64, label shard.Label, nnz int) (a, b, logLoss float64) {
	y := float64(label)
	wxy := wx * y

	var ratio float64
	if math.Abs(wxy) < stableThreshold {
		ratio = 0.5
	} else {
		ratio = (math.Exp(wxy) - 1) / ((math.Exp(wxy) + 1) * wxy)
	}

	a = ratio * float64(nnz)
	b = (ratio*wx*y - 1) * y
	logLoss = stableLogLoss(wxy)
	return
}

// stableLogLoss returns log(1 + exp(-wxy)) computed without overflow for
// large |wxy|.
func stableLogLoss(wxy float64) float64 {
	if wxy > 0 {
		return math.Log1p(math.Exp(-wxy))
	}
	return -wxy + math.Log1p(math.Exp(wxy))
}

// Majorizer holds the per-J folded majorant (a_j, b_j) across a pass over
// rows.
type Majorizer struct {
	A []float64
	B []float64
}

// New returns a Majorizer sized for size J's.
func New(size int) *Majorizer {
	return &Majorizer{A: make([]float64, size), B: make([]float64, size)}
}

// Reset zeroes m in place, growing it to size if needed.
func (m *Majorizer) Reset(size int) {
	if cap(m.A) < size {
		m.A = make([]float64, size)
		m.B = make([]float64, size)
		return
	}
	m.A = m.A[:size]
	m.B = m.B[:size]
	for i := range m.A {
		m.A[i] = 0
		m.B[i] = 0
	}
}

// AccumulateRow folds one row's Dim1Majorizer contribution into every
// active J's accumulator and returns the row's logistic loss.
func (m *Majorizer) AccumulateRow(dim Dim1Majorizer, row []feature.J, label shard.Label, wx float64) float64 {
	a, b, logLoss := dim.Compute(wx, label, len(row))
	for _, j := range row {
		m.A[j] += a
		m.B[j] += b
	}
	return logLoss
}

// MergeRange adds other's [lo, hi) range into m's, used to fold worker-local
// majorizers over disjoint J-ranges (SPEC_FULL.md §4.7).
func (m *Majorizer) MergeRange(other *Majorizer, lo, hi int) {
	for j := lo; j < hi; j++ {
		m.A[j] += other.A[j]
		m.B[j] += other.B[j]
	}
}

// Precision returns a_j/2 + 2*L2_j for J, the per-coordinate inverse
// variance used by feature-scoring consumers.
func Precision(aJ float64, l2 float64) float64 {
	return aJ/2 + 2*l2
}

// CoordinateUpdate is the input to one per-J coordinate step.
type CoordinateUpdate struct {
	AJ, BJ         float64
	W0             float64
	DeltaWPrev     float64
	Inertia        float64
	StepMultiplier float64
	Reg            regularize.Term
}

// Apply performs the coordinate update described in SPEC_FULL.md §4.6 steps
// 2-6 and returns the new weight and precision for this J. wIsZero should
// reflect whether W0 == 0, used to pick the regularization's dead-zone term.
func (c CoordinateUpdate) Apply(wIsZero bool) (wNew, deltaW, precision float64) {
	l1 := c.Reg.EffectiveL1(wIsZero)
	l2 := c.Reg.L2

	aBig := c.AJ + 4*l2
	bBig := c.AJ*c.W0 - c.StepMultiplier*c.BJ + c.Inertia*c.DeltaWPrev*aBig

	bBig = softThreshold(bBig, 2*l1)

	if aBig == 0 {
		wNew = 0
	} else {
		wNew = bBig / aBig
	}
	deltaW = wNew - c.W0
	precision = Precision(c.AJ, l2)
	return
}

func softThreshold(x, lambda float64) float64 {
	if x > lambda {
		return x - lambda
	}
	if x < -lambda {
		return x + lambda
	}
	return 0
}
