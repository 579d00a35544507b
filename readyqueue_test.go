package coros

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadyQueueFIFOOrder(t *testing.T) {
	q := &readyQueue{}
	a := &Coroutine{id: 1}
	b := &Coroutine{id: 2}
	c := &Coroutine{id: 3}

	q.pushBack(a)
	q.pushBack(b)
	q.pushBack(c)
	require.Equal(t, 3, q.len())

	for _, want := range []*Coroutine{a, b, c} {
		got, ok := q.popFront()
		require.True(t, ok)
		require.Same(t, want, got)
	}
	_, ok := q.popFront()
	require.False(t, ok)
}

func TestReadyQueueSpansChunkBoundary(t *testing.T) {
	q := &readyQueue{}
	n := readyChunkSize*2 + 7
	items := make([]*Coroutine, n)
	for i := range items {
		items[i] = &Coroutine{id: uint64(i)}
		q.pushBack(items[i])
	}
	require.Equal(t, n, q.len())
	for i := 0; i < n; i++ {
		got, ok := q.popFront()
		require.True(t, ok)
		require.Same(t, items[i], got)
	}
	_, ok := q.popFront()
	require.False(t, ok)
}

func TestReadyQueueReusableAfterDrain(t *testing.T) {
	q := &readyQueue{}
	q.pushBack(&Coroutine{id: 1})
	_, _ = q.popFront()
	_, ok := q.popFront()
	require.False(t, ok)

	q.pushBack(&Coroutine{id: 2})
	got, ok := q.popFront()
	require.True(t, ok)
	require.Equal(t, uint64(2), got.id)
}
