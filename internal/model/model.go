// Package model holds the engine's single canonical weight vector and the
// per-J scratch state the optimizers read and write (SPEC_FULL.md §3/§4.6).
package model

import (
	"time"

	"sensei/internal/feature"
)

// Model is the linear model fit over the feature universe: one weight per
// J, plus the per-J scratch the majorizer needs between iterations.
type Model struct {
	W              []float64   // weight
	DeltaW         []float64   // last applied step, for inertia
	LossDerivative []float64   // b_j from the last majorizer fold
	Precision      []float64   // a_j/2 + 2*L2_j from the last coordinate update
	CreationTime   []time.Time // when each J was added; SGD's NewFeatures mode keys off this

	// SyncedWithWeights is true only while every shard's cached w·x matches
	// the current W. Any direct write to W must flip it false; GradBoost sets
	// it true each time it rebuilds its row cache. Neither optimizer reads it:
	// GradBoost recomputes w·x at the start of every iteration.
	SyncedWithWeights bool
}

// New returns an empty Model sized for zero features.
func New() *Model {
	return &Model{SyncedWithWeights: true}
}

// Size returns the current J-space size.
func (m *Model) Size() int {
	return len(m.W)
}

// Resize grows every per-J slice to at least size, zero-filling new
// entries and stamping them with createdAt, and marks the model desynced
// (new weights default to zero, which trivially matches a zero-initialized
// w·x, but callers resize only as part of AddFeatures which always
// triggers a recompute anyway).
func (m *Model) Resize(size int, createdAt time.Time) {
	m.W = growFloat64(m.W, size)
	m.DeltaW = growFloat64(m.DeltaW, size)
	m.LossDerivative = growFloat64(m.LossDerivative, size)
	m.Precision = growFloat64(m.Precision, size)
	for len(m.CreationTime) < size {
		m.CreationTime = append(m.CreationTime, createdAt)
	}
	m.SyncedWithWeights = false
}

func growFloat64(s []float64, size int) []float64 {
	for len(s) < size {
		s = append(s, 0)
	}
	return s
}

// SetWeight writes w_j and flips SyncedWithWeights false.
func (m *Model) SetWeight(j feature.J, w float64) {
	m.W[j] = w
	m.SyncedWithWeights = false
}

// NonzeroCount returns the number of J's with a non-zero weight.
func (m *Model) NonzeroCount() int {
	n := 0
	for _, w := range m.W {
		if w != 0 {
			n++
		}
	}
	return n
}

// L1Norm returns sum(|w_j|).
func (m *Model) L1Norm() float64 {
	var total float64
	for _, w := range m.W {
		if w < 0 {
			total -= w
		} else {
			total += w
		}
	}
	return total
}

// L2Norm returns sum(w_j^2).
func (m *Model) L2Norm() float64 {
	var total float64
	for _, w := range m.W {
		total += w * w
	}
	return total
}

// RemoveAndRenumber rewrites every per-J slice under r, dropping removed
// J's and compacting survivors in their new order.
func (m *Model) RemoveAndRenumber(r feature.Renumbering) {
	m.W = remapFloat64(m.W, r)
	m.DeltaW = remapFloat64(m.DeltaW, r)
	m.LossDerivative = remapFloat64(m.LossDerivative, r)
	m.Precision = remapFloat64(m.Precision, r)
	m.CreationTime = remapTime(m.CreationTime, r)
	m.SyncedWithWeights = false
}

func remapTime(s []time.Time, r feature.Renumbering) []time.Time {
	out := make([]time.Time, r.NextJ)
	for old, v := range s {
		if nj, ok := r.Apply(feature.J(old)); ok {
			out[nj] = v
		}
	}
	return out
}

func remapFloat64(s []float64, r feature.Renumbering) []float64 {
	out := make([]float64, r.NextJ)
	for old, v := range s {
		if nj, ok := r.Apply(feature.J(old)); ok {
			out[nj] = v
		}
	}
	return out
}
