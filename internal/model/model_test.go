package model_test

import (
	"testing"
	"time"

	"sensei/internal/feature"
	"sensei/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsSyncedAndEmpty(t *testing.T) {
	m := model.New()
	assert.True(t, m.SyncedWithWeights)
	assert.Equal(t, 0, m.Size())
}

func TestResizeZeroFillsAndDesyncs(t *testing.T) {
	m := model.New()
	now := time.Now()
	m.Resize(3, now)
	require.Len(t, m.W, 3)
	assert.Equal(t, []float64{0, 0, 0}, m.W)
	assert.False(t, m.SyncedWithWeights)
	for _, ct := range m.CreationTime {
		assert.Equal(t, now, ct)
	}
}

func TestResizeStampsOnlyNewEntries(t *testing.T) {
	m := model.New()
	first := time.Now()
	m.Resize(2, first)
	second := first.Add(time.Hour)
	m.Resize(4, second)

	assert.Equal(t, first, m.CreationTime[0])
	assert.Equal(t, first, m.CreationTime[1])
	assert.Equal(t, second, m.CreationTime[2])
	assert.Equal(t, second, m.CreationTime[3])
}

func TestSetWeightFlipsSynced(t *testing.T) {
	m := model.New()
	m.Resize(2, time.Now())
	m.SyncedWithWeights = true
	m.SetWeight(1, 5.0)
	assert.Equal(t, 5.0, m.W[1])
	assert.False(t, m.SyncedWithWeights)
}

func TestNonzeroCountAndNorms(t *testing.T) {
	m := model.New()
	m.Resize(3, time.Now())
	m.W[0] = 1
	m.W[1] = -2
	m.W[2] = 0
	assert.Equal(t, 2, m.NonzeroCount())
	assert.InDelta(t, 3.0, m.L1Norm(), 1e-9)
	assert.InDelta(t, 5.0, m.L2Norm(), 1e-9)
}

func TestRemoveAndRenumberCompacts(t *testing.T) {
	m := model.New()
	m.Resize(3, time.Now())
	m.W[0] = 10
	m.W[1] = 20
	m.W[2] = 30

	r := feature.Renumbering{Map: []feature.J{0, feature.InvalidJ, 1}, NextJ: 2}
	m.RemoveAndRenumber(r)

	require.Len(t, m.W, 2)
	assert.Equal(t, 10.0, m.W[0])
	assert.Equal(t, 30.0, m.W[1])
	assert.False(t, m.SyncedWithWeights)
}
