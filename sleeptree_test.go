package coros

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestCoroutine(id uint64) *Coroutine {
	return &Coroutine{id: id, heapIndex: -1, waitFD: -1}
}

func TestSleepTreeMinAndDrainOrder(t *testing.T) {
	tree := newSleepTree()
	a := newTestCoroutine(1)
	b := newTestCoroutine(2)
	c := newTestCoroutine(3)

	tree.insert(a, 300)
	tree.insert(b, 100)
	tree.insert(c, 200)

	require.Equal(t, 3, tree.len())
	require.Same(t, b, tree.min())

	expired := tree.drainExpired(250)
	require.Len(t, expired, 2)
	require.Same(t, b, expired[0])
	require.Same(t, c, expired[1])
	for _, co := range expired {
		require.True(t, co.status.Has(StatusExpired))
		require.False(t, co.status.Has(StatusSleeping))
	}

	require.Equal(t, 1, tree.len())
	require.Same(t, a, tree.min())
}

func TestSleepTreeDeadlineCollisionIncrements(t *testing.T) {
	tree := newSleepTree()
	a := newTestCoroutine(1)
	b := newTestCoroutine(2)

	tree.insert(a, 1000)
	tree.insert(b, 1000)

	require.Equal(t, int64(1000), a.sleepDeadline)
	require.Equal(t, int64(1001), b.sleepDeadline)
}

func TestSleepTreeRemoveIsIdempotent(t *testing.T) {
	tree := newSleepTree()
	a := newTestCoroutine(1)
	tree.insert(a, 500)

	tree.remove(a)
	require.Equal(t, 0, tree.len())
	require.False(t, a.status.Has(StatusSleeping))

	// Removing again must not panic or corrupt the heap.
	tree.remove(a)
	require.Equal(t, 0, tree.len())
}

func TestSleepTreeDrainExpiredIsMonotonic(t *testing.T) {
	tree := newSleepTree()
	deadlines := []int64{50, 10, 40, 20, 30}
	for i, d := range deadlines {
		tree.insert(newTestCoroutine(uint64(i)), d)
	}

	expired := tree.drainExpired(1000)
	require.Len(t, expired, len(deadlines))
	for i := 1; i < len(expired); i++ {
		require.LessOrEqual(t, expired[i-1].sleepDeadline, expired[i].sleepDeadline)
	}
}
