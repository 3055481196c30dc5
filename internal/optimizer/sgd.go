package optimizer

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"
	"unsafe"

	"sensei/internal/model"
	"sensei/internal/regularize"
	"sensei/internal/shard"
	"sensei/internal/workerpool"
)

// Mode selects which J's a pass updates.
type Mode int

const (
	// AllFeatures updates every J present in a row.
	AllFeatures Mode = iota
	// NewFeatures updates only J's created in the current exploration round,
	// for tuning newly added products without disturbing settled weights.
	NewFeatures
)

// SGD is the asynchronous Hogwild-style optimizer (SPEC_FULL.md §4.8).
type SGD struct {
	Workers       int
	Deterministic bool
	StartLearningRate float64
	DecaySpeed        float64
	Mode              Mode

	rowsProcessed atomic.Uint64
	trainingRows  uint64
	prevTotalLoss float64
}

// NewSGD returns an SGD optimizer with the given learning-rate schedule.
func NewSGD(workers int, deterministic bool, startLearningRate, decaySpeed float64) *SGD {
	return &SGD{
		Workers: workers, Deterministic: deterministic,
		StartLearningRate: startLearningRate, DecaySpeed: decaySpeed,
		prevTotalLoss: math.Inf(1),
	}
}

// currentLearningRate returns eta(t) = start / (1 + decay*progress).
func (s *SGD) currentLearningRate() float64 {
	if s.trainingRows == 0 {
		return s.StartLearningRate
	}
	progress := float64(s.rowsProcessed.Load()) / float64(s.trainingRows)
	return s.StartLearningRate / (1 + s.DecaySpeed*progress)
}

// CurrentLearningRate exposes the decayed learning rate as of the most
// recently completed RunPass, for callers (metrics) outside this package.
func (s *SGD) CurrentLearningRate() float64 {
	return s.currentLearningRate()
}

// RunPass performs one asynchronous pass over train, updating m.W in place.
// regs must be standard (every variant but Base zero); callers validate this
// before invoking RunPass (World.RunSGD returns a configuration error
// otherwise, per SPEC_FULL.md §4.8).
func (s *SGD) RunPass(ctx context.Context, m *model.Model, regs regularize.Set, train *shard.Set, ext shard.Extender, currentCreationTime time.Time) error {
	if !regs.IsStandard() {
		return fmt.Errorf("optimizer: sgd requires standard regularization, got adaptive variants")
	}
	if s.trainingRows == 0 {
		s.trainingRows = uint64(train.RowCount())
	}

	base := regs.Effective(0, 0)
	l1 := base.L1
	l2 := base.L2

	err := workerpool.Run(ctx, s.Workers, len(train.Shards), s.Deterministic, func(i int) error {
		sh := train.Shards[i]
		for r := 0; r < sh.RowCount(); r++ {
			row := ext.Extend(sh.Rows.Row(r))
			var dot float64
			for _, j := range row {
				dot += m.W[j]
			}
			y := float64(sh.Labels[r])
			sigma := 1 / (1 + math.Exp(y*dot))
			eta := s.currentLearningRate()

			for _, j := range row {
				if s.Mode == NewFeatures && !m.CreationTime[j].Equal(currentCreationTime) {
					continue
				}
				addFloat64(&m.W[j], eta*y*sigma)
			}
			s.rowsProcessed.Add(1)
		}

		shardEta := s.currentLearningRate()
		for j := range m.W {
			proximalL1L2Step(&m.W[j], shardEta, l1, l2)
		}
		return nil
	})
	m.SyncedWithWeights = false
	return err
}

// proximalL1L2Step applies one proximal elastic-net step to *addr, clipping
// to zero if the step crosses zero (SPEC_FULL.md §4.8).
func proximalL1L2Step(addr *float64, eta, l1, l2 float64) {
	bits := (*uint64)(unsafe.Pointer(addr))
	for {
		old := atomic.LoadUint64(bits)
		oldW := math.Float64frombits(old)
		sign := signOf(oldW)
		newW := oldW - eta*(l1*sign+2*l2*oldW)
		if sign != 0 && signOf(newW) != sign {
			newW = 0
		}
		newBits := math.Float64bits(newW)
		if atomic.CompareAndSwapUint64(bits, old, newBits) {
			return
		}
	}
}

func signOf(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

// StoreTotalLoss latches currentTotalLoss as the baseline for the next
// MaybeReduce check. Callers must have just completed a fresh full-data
// loss evaluation.
func (s *SGD) StoreTotalLoss(currentTotalLoss float64) {
	s.prevTotalLoss = currentTotalLoss
}

// MaybeReduce multiplies StartLearningRate by factor if currentTotalLoss
// exceeds the loss latched by StoreTotalLoss. factor must lie in (0, 1);
// callers should log a warning before invoking this with an out-of-range
// factor rather than relying on the returned error alone, since a caller
// script is likely to keep running afterward.
func (s *SGD) MaybeReduce(factor float64, currentTotalLoss float64) error {
	if !(factor > 0 && factor < 1) {
		return fmt.Errorf("optimizer: maybe_reduce factor %v must be in (0, 1)", factor)
	}
	if currentTotalLoss > s.prevTotalLoss {
		s.StartLearningRate *= factor
	}
	return nil
}
