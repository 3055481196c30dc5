package feature_test

import (
	"sync"
	"testing"

	"sensei/internal/feature"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapInternReturnsSameJForSameKey(t *testing.T) {
	m := feature.NewMap()

	j1, err := m.Intern("a")
	require.NoError(t, err)
	j2, err := m.Intern("a")
	require.NoError(t, err)
	assert.Equal(t, j1, j2)

	j3, err := m.Intern("b")
	require.NoError(t, err)
	assert.NotEqual(t, j1, j3)
}

func TestMapInternConcurrentSameKey(t *testing.T) {
	m := feature.NewMap()
	const goroutines = 64

	var wg sync.WaitGroup
	results := make([]feature.J, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			j, err := m.Intern("shared")
			require.NoError(t, err)
			results[idx] = j
		}(i)
	}
	wg.Wait()

	for _, j := range results {
		assert.Equal(t, results[0], j)
	}
}

func TestMapSyncJToKeyRoundTrip(t *testing.T) {
	m := feature.NewMap()
	names := []string{"a", "b", "c"}
	for _, n := range names {
		_, err := m.Intern(n)
		require.NoError(t, err)
	}
	m.SyncJToKey()

	for _, n := range names {
		j, ok := m.Lookup(n)
		require.True(t, ok)
		got, ok := m.JToKey(j)
		require.True(t, ok)
		assert.Equal(t, n, got)
	}
}

func TestMapJToKeyBeforeSyncIsStale(t *testing.T) {
	m := feature.NewMap()
	_, err := m.Intern("a")
	require.NoError(t, err)

	_, ok := m.JToKey(0)
	assert.False(t, ok, "JToKey should not see entries before SyncJToKey")
}

func TestMapRenumberCompactsAndPreservesOrder(t *testing.T) {
	m := feature.NewMap()
	ja, _ := m.Intern("a")
	jb, _ := m.Intern("b")
	jc, _ := m.Intern("c")

	// remove b, compact a -> 0, c -> 1
	rmap := make([]feature.J, 3)
	rmap[ja] = 0
	rmap[jb] = feature.InvalidJ
	rmap[jc] = 1
	m.Renumber(feature.Renumbering{Map: rmap, NextJ: 2})

	m.SyncJToKey()
	got, ok := m.JToKey(0)
	require.True(t, ok)
	assert.Equal(t, "a", got)
	got, ok = m.JToKey(1)
	require.True(t, ok)
	assert.Equal(t, "c", got)
	assert.False(t, m.Contains("b"))
	assert.Equal(t, 2, m.Size())
}

func TestProductMapInternDeduplicates(t *testing.T) {
	pm := feature.NewProductMap()

	p1 := feature.JProduct{1, 3}
	p2 := feature.JProduct{1, 3}

	j1, err := pm.Intern(p1)
	require.NoError(t, err)
	j2, err := pm.Intern(p2)
	require.NoError(t, err)
	assert.Equal(t, j1, j2)
}

func TestProductMapEmptyProductIsBias(t *testing.T) {
	pm := feature.NewProductMap()
	bias, err := pm.Intern(feature.JProduct{})
	require.NoError(t, err)
	assert.True(t, pm.Contains(feature.JProduct{}))
	assert.Equal(t, feature.J(0), bias)
}

func TestUnionSortsAndDeduplicates(t *testing.T) {
	p := feature.JProduct{1, 4, 7}
	q := feature.JProduct{2, 4, 9}
	got := feature.Union(p, q)
	assert.Equal(t, feature.JProduct{1, 2, 4, 7, 9}, got)
}

func TestJProductContains(t *testing.T) {
	p := feature.JProduct{2, 5, 9}
	assert.True(t, p.Contains(5))
	assert.False(t, p.Contains(6))
}

func TestProductMapRenumberRemapsAtomicFactors(t *testing.T) {
	pm := feature.NewProductMap()
	prod := feature.JProduct{3, 7}
	j, err := pm.Intern(prod)
	require.NoError(t, err)

	// Simulate atomic J 3 -> 0, 7 -> 1 after an unrelated compaction.
	atomicRemap := make([]feature.J, 8)
	atomicRemap[3] = 0
	atomicRemap[7] = 1
	r := feature.Renumbering{Map: atomicRemap, NextJ: 2}
	pm.Renumber(r)

	pm.SyncJToKey()
	// The remap sends j (0) to itself, so looking up j must now return
	// the product with its factors remapped.
	got, ok := pm.JToKey(j)
	require.True(t, ok)
	assert.Equal(t, feature.JProduct{0, 1}, got)
}

func TestOverflowErrorMessage(t *testing.T) {
	err := &feature.OverflowError{Requested: feature.MaxJ + 1}
	assert.Contains(t, err.Error(), "overflow")
}
