package core

import (
	"math/big"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueOrdering(t *testing.T) {
	q := NewQueue()

	weights := map[uint64]int64{1: 40, 2: 90, 3: 10, 4: 90, 5: 55}
	for id := uint64(1); id <= 5; id++ {
		require.Nil(t, q.Insert(id, big.NewInt(weights[id])))
	}
	assert.Equal(t, 5, q.Size())

	ids, got := q.Snapshot()
	expected := make([]int64, 0, len(weights))
	for _, w := range weights {
		expected = append(expected, w)
	}
	sort.Slice(expected, func(i, j int) bool { return expected[i] > expected[j] })
	require.Len(t, got, len(expected))
	for i, w := range got {
		assert.Equal(t, expected[i], w.Int64(), "rank %d", i)
	}
	// equal weights keep insertion order: 2 before 4
	assert.Equal(t, uint64(2), ids[0])
	assert.Equal(t, uint64(4), ids[1])
}

func TestQueueIncreaseWithScan(t *testing.T) {
	q := NewQueue()
	require.Nil(t, q.Insert(1, big.NewInt(10)))
	require.Nil(t, q.Insert(2, big.NewInt(20)))
	require.Nil(t, q.Insert(3, big.NewInt(30)))

	// zero hints fall back to a scan from the head
	require.Nil(t, q.Increase(1, big.NewInt(15), 0, 0))

	ids, _ := q.Snapshot()
	assert.Equal(t, []uint64{3, 1, 2}, ids)
	assert.Equal(t, int64(25), q.ValueOf(1).Int64())
}

func TestQueueHints(t *testing.T) {
	q := NewQueue()
	require.Nil(t, q.Insert(1, big.NewInt(10)))
	require.Nil(t, q.Insert(2, big.NewInt(20)))
	require.Nil(t, q.Insert(3, big.NewInt(30)))

	// correct hints: 1 moves between 3 and 2
	require.Nil(t, q.Increase(1, big.NewInt(15), 3, 2))
	ids, _ := q.Snapshot()
	assert.Equal(t, []uint64{3, 1, 2}, ids)

	// moving to the head and to the tail with edge hints
	require.Nil(t, q.Increase(1, big.NewInt(10), 0, 3))
	ids, _ = q.Snapshot()
	assert.Equal(t, []uint64{1, 3, 2}, ids)

	require.Nil(t, q.Decrease(1, big.NewInt(30), 2, 0))
	ids, _ = q.Snapshot()
	assert.Equal(t, []uint64{3, 2, 1}, ids)
}

func TestQueueInvalidHintRestoresPosition(t *testing.T) {
	q := NewQueue()
	require.Nil(t, q.Insert(1, big.NewInt(10)))
	require.Nil(t, q.Insert(2, big.NewInt(20)))
	require.Nil(t, q.Insert(3, big.NewInt(30)))

	before, beforeWeights := q.Snapshot()

	cases := []struct{ greater, lesser uint64 }{
		{2, 3},  // not adjacent in that order
		{3, 0},  // lesser claims tail but 2 and 1 are lighter
		{99, 2}, // unknown neighbor
		{1, 0},  // greater hint lighter than the new weight
	}
	for _, tc := range cases {
		err := q.Increase(2, big.NewInt(5), tc.greater, tc.lesser)
		assert.ErrorIs(t, err, ErrInvalidHint)

		ids, weights := q.Snapshot()
		assert.Equal(t, before, ids)
		for i := range weights {
			assert.Zero(t, beforeWeights[i].Cmp(weights[i]))
		}
	}
}

func TestQueueWeightUnderflow(t *testing.T) {
	q := NewQueue()
	require.Nil(t, q.Insert(1, big.NewInt(10)))

	err := q.Decrease(1, big.NewInt(11), 0, 0)
	assert.ErrorIs(t, err, ErrWeightUnderflow)
	assert.Equal(t, int64(10), q.ValueOf(1).Int64())
}

func TestQueueInsertAndRemoveErrors(t *testing.T) {
	q := NewQueue()
	require.Nil(t, q.Insert(1, big.NewInt(10)))

	assert.ErrorIs(t, q.Insert(1, big.NewInt(5)), ErrQueueEntryExists)
	assert.ErrorIs(t, q.Insert(0, big.NewInt(5)), ErrQueueEntryMissing)
	assert.ErrorIs(t, q.Remove(2), ErrQueueEntryMissing)
	assert.ErrorIs(t, q.Increase(2, big.NewInt(1), 0, 0), ErrQueueEntryMissing)
	assert.Nil(t, q.ValueOf(2))

	require.Nil(t, q.Remove(1))
	assert.False(t, q.Contains(1))
	assert.Equal(t, 0, q.Size())
}

func TestQueuePopTopN(t *testing.T) {
	q := NewQueue()
	for id := uint64(1); id <= 10; id++ {
		require.Nil(t, q.Insert(id, big.NewInt(int64(id*10))))
	}

	popped := q.PopTopN(5)
	assert.Equal(t, []uint64{10, 9, 8, 7, 6}, popped)
	assert.Equal(t, 5, q.Size())

	// asking for more than remains drains the queue
	popped = q.PopTopN(10)
	assert.Equal(t, []uint64{5, 4, 3, 2, 1}, popped)
	assert.Equal(t, 0, q.Size())
	assert.Empty(t, q.PopTopN(3))
}
