package workerpool_test

import (
	"context"
	"sync/atomic"
	"testing"

	"sensei/internal/workerpool"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunVisitsEveryIndex(t *testing.T) {
	var seen atomic.Int64
	err := workerpool.Run(context.Background(), 4, 100, false, func(i int) error {
		seen.Add(1)
		return nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 100, seen.Load())
}

func TestRunDeterministicIsSerialInOrder(t *testing.T) {
	var order []int
	err := workerpool.Run(context.Background(), 8, 10, true, func(i int) error {
		order = append(order, i)
		return nil
	})
	require.NoError(t, err)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestSplitRangesCoversEverythingOnce(t *testing.T) {
	ranges := workerpool.SplitRanges(10, 3)
	covered := make([]bool, 10)
	for _, r := range ranges {
		for i := r[0]; i < r[1]; i++ {
			assert.False(t, covered[i], "index %d covered twice", i)
			covered[i] = true
		}
	}
	for i, ok := range covered {
		assert.True(t, ok, "index %d not covered", i)
	}
}
