package shard_test

import (
	"context"
	"testing"

	"sensei/internal/feature"
	"sensei/internal/shard"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type identityExtender struct{}

func (identityExtender) Extend(row []feature.J) []feature.J { return row }

func buildSet(t *testing.T) *shard.Set {
	t.Helper()
	s := shard.NewSet(1000)
	s.AppendRow(shard.Row{Label: shard.Positive, RowID: 1, Js: []feature.J{0, 1}})
	s.AppendRow(shard.Row{Label: shard.Negative, RowID: 2, Js: []feature.J{1}})
	s.AppendRow(shard.Row{Label: shard.Positive, RowID: 3, Js: []feature.J{0}})
	s.Flush()
	return s
}

func TestRecalcStatsCountsPerJ(t *testing.T) {
	s := buildSet(t)
	err := s.RecalcStats(context.Background(), identityExtender{}, 2, 2, true)
	require.NoError(t, err)

	assert.EqualValues(t, 2, s.Stats.Positive[0])
	assert.EqualValues(t, 0, s.Stats.Negative[0])
	assert.EqualValues(t, 1, s.Stats.Positive[1])
	assert.EqualValues(t, 1, s.Stats.Negative[1])
	assert.EqualValues(t, 2, s.Stats.PositiveRows)
	assert.EqualValues(t, 1, s.Stats.NegativeRows)
}

func TestRecalcStatsDeterministicMatchesConcurrent(t *testing.T) {
	s1 := buildSet(t)
	s2 := buildSet(t)
	require.NoError(t, s1.RecalcStats(context.Background(), identityExtender{}, 2, 1, true))
	require.NoError(t, s2.RecalcStats(context.Background(), identityExtender{}, 2, 4, false))
	assert.Equal(t, s1.Stats.Positive, s2.Stats.Positive)
	assert.Equal(t, s1.Stats.Negative, s2.Stats.Negative)
	assert.Equal(t, s1.Stats.RowIDHash, s2.Stats.RowIDHash)
}

func TestMutualInformationZeroWhenUncorrelated(t *testing.T) {
	st := shard.NewStats()
	st.Resize(1)
	st.Positive[0] = 5
	st.Negative[0] = 5
	mi := st.MutualInformation(0, 10, 10)
	assert.InDelta(t, 0, mi, 1e-9)
}

func TestPhiCoefficientPerfectCorrelation(t *testing.T) {
	st := shard.NewStats()
	st.Resize(1)
	st.Positive[0] = 10
	st.Negative[0] = 0
	phi := st.PhiCoefficient(0, 10, 10)
	assert.InDelta(t, 1.0, phi, 1e-9)
}

func TestLogOddsPositiveWhenSkewedPositive(t *testing.T) {
	st := shard.NewStats()
	st.Resize(1)
	st.Positive[0] = 9
	st.Negative[0] = 1
	lo := st.LogOdds(0, 10, 10)
	assert.Greater(t, lo, 0.0)
}
