package shard

import (
	"context"
	"math"

	"sensei/internal/feature"
	"sensei/internal/workerpool"
)

// Stats holds per-J aggregate presence counts split by label, plus a
// determinism-check hash, over a Set (SPEC_FULL.md §4.4).
type Stats struct {
	Positive []int64
	Negative []int64
	// RowIDHash is a 64-bit XOR-hash of row ids per J, used only to check
	// that two runs over the same data touched the same rows per J.
	RowIDHash []uint64

	PositiveRows int64
	NegativeRows int64
}

// NewStats returns an empty Stats.
func NewStats() *Stats {
	return &Stats{}
}

// Resize grows Positive/Negative/RowIDHash to at least size, zero-filling
// new entries. Called by RecalcStats and when merging partial Stats.
func (st *Stats) Resize(size int) {
	for len(st.Positive) < size {
		st.Positive = append(st.Positive, 0)
	}
	for len(st.Negative) < size {
		st.Negative = append(st.Negative, 0)
	}
	for len(st.RowIDHash) < size {
		st.RowIDHash = append(st.RowIDHash, 0)
	}
}

func (st *Stats) add(other *Stats) {
	st.Resize(len(other.Positive))
	for j := range other.Positive {
		st.Positive[j] += other.Positive[j]
		st.Negative[j] += other.Negative[j]
		st.RowIDHash[j] ^= other.RowIDHash[j]
	}
	st.PositiveRows += other.PositiveRows
	st.NegativeRows += other.NegativeRows
}

// Extender computes the extended (closure) row for a sparse atomic row,
// supplied by the dependees package; shard package depends only on this
// narrow interface to avoid an import cycle with dependees.
type Extender interface {
	Extend(row []feature.J) []feature.J
}

// RecalcStats rebuilds st in place from a parallel pass over s's shards,
// extending each row through ext first so that product features are
// counted too. size is the current J-space size.
func (s *Set) RecalcStats(ctx context.Context, ext Extender, size int, workers int, deterministic bool) error {
	partials := make([]*Stats, len(s.Shards))
	err := workerpool.Run(ctx, workers, len(s.Shards), deterministic, func(i int) error {
		sh := s.Shards[i]
		local := NewStats()
		local.Resize(size)
		for r := 0; r < sh.RowCount(); r++ {
			extended := ext.Extend(sh.Rows.Row(r))
			label := sh.Labels[r]
			rowID := sh.RowIDs[r]
			if label == Positive {
				local.PositiveRows++
			} else {
				local.NegativeRows++
			}
			for _, j := range extended {
				if int(j) >= len(local.Positive) {
					continue
				}
				if label == Positive {
					local.Positive[j]++
				} else {
					local.Negative[j]++
				}
				local.RowIDHash[j] ^= uint64(rowID)
			}
		}
		partials[i] = local
		return nil
	})
	if err != nil {
		return err
	}

	merged := NewStats()
	merged.Resize(size)
	for _, p := range partials {
		merged.add(p)
	}
	*s.Stats = *merged
	return nil
}

// Contingency returns the 2x2 contingency table for J: rows with J present
// and positive/negative, rows without J present and positive/negative.
func (st *Stats) Contingency(j feature.J, totalPositive, totalNegative int64) (presentPos, presentNeg, absentPos, absentNeg int64) {
	presentPos = st.Positive[j]
	presentNeg = st.Negative[j]
	absentPos = totalPositive - presentPos
	absentNeg = totalNegative - presentNeg
	return
}

// MutualInformation returns the mutual information between the presence of
// J and the label, in nats, given total row counts.
func (st *Stats) MutualInformation(j feature.J, totalPositive, totalNegative int64) float64 {
	total := float64(totalPositive + totalNegative)
	if total == 0 {
		return 0
	}
	pp, pn, ap, an := st.Contingency(j, totalPositive, totalNegative)
	cells := []struct{ joint, marginalPresence, marginalLabel float64 }{
		{float64(pp), float64(pp + pn), float64(totalPositive)},
		{float64(pn), float64(pp + pn), float64(totalNegative)},
		{float64(ap), float64(ap + an), float64(totalPositive)},
		{float64(an), float64(ap + an), float64(totalNegative)},
	}
	mi := 0.0
	for _, c := range cells {
		if c.joint == 0 || c.marginalPresence == 0 || c.marginalLabel == 0 {
			continue
		}
		pxy := c.joint / total
		px := c.marginalPresence / total
		py := c.marginalLabel / total
		mi += pxy * math.Log(pxy/(px*py))
	}
	return mi
}

// PhiCoefficient returns the phi (Matthews) correlation coefficient
// between the presence of J and the label.
func (st *Stats) PhiCoefficient(j feature.J, totalPositive, totalNegative int64) float64 {
	pp, pn, ap, an := st.Contingency(j, totalPositive, totalNegative)
	num := float64(pp)*float64(an) - float64(pn)*float64(ap)
	denom := math.Sqrt(float64(pp+pn) * float64(ap+an) * float64(pp+ap) * float64(pn+an))
	if denom == 0 {
		return 0
	}
	return num / denom
}

// LogOdds returns log(P(present|positive)/P(present|negative)) for J.
func (st *Stats) LogOdds(j feature.J, totalPositive, totalNegative int64) float64 {
	pp, pn, _, _ := st.Contingency(j, totalPositive, totalNegative)
	const eps = 1e-9
	pPos := (float64(pp) + eps) / (float64(totalPositive) + eps)
	pNeg := (float64(pn) + eps) / (float64(totalNegative) + eps)
	return math.Log(pPos / pNeg)
}
