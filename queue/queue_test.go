package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFIFOOrder(t *testing.T) {
	q := New[int]()
	for i := 1; i <= 3; i++ {
		require.True(t, q.Push(i))
	}
	require.Equal(t, 3, q.Len())

	for i := 1; i <= 3; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := New[string]()
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Push("late")
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		v, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, "late", v)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake after Push")
	}
}

func TestCloseDrainsThenStops(t *testing.T) {
	q := New[int]()
	q.Push(1)
	q.Push(2)
	q.Close()

	v, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, 1, v)
	v, ok = q.Pop()
	require.True(t, ok)
	require.Equal(t, 2, v)

	_, ok = q.Pop()
	require.False(t, ok)
	require.False(t, q.Push(3), "push after close is rejected")
}

func TestCloseWakesBlockedPop(t *testing.T) {
	q := New[int]()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok := q.Pop()
		require.False(t, ok)
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()
	q.Close() // idempotent

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake after Close")
	}
}
