package scratch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolAcquireReleaseRoundTrip(t *testing.T) {
	p := New(Config{MaxThreads: 2, QueueCapacity: 10, N: 100, NumChunks: 4})
	defer p.Close()

	slot, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 0, slot.Queue.Len())

	slot.Queue.Insert(5, 1.0)
	slot.MarkVisited(5)
	slot.F = append(slot.F, Candidate{ID: 5, Dist: 1.0})

	p.Release(slot)

	slot2, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 0, slot2.Queue.Len(), "slot must be reset on reacquire")
	assert.Equal(t, 0, len(slot2.F))
	assert.False(t, slot2.Visited.Test(5), "visited bits touched by prior query must be cleared")

	p.Release(slot2)
}

func TestPoolAcquireBlocksWhenExhausted(t *testing.T) {
	p := New(Config{MaxThreads: 1, QueueCapacity: 4, N: 10, NumChunks: 1})
	defer p.Close()

	slot, err := p.Acquire()
	require.NoError(t, err)

	done := make(chan struct{})

	go func() {
		s2, err := p.Acquire()
		require.NoError(t, err)
		p.Release(s2)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second Acquire should have blocked while the only slot is held")
	case <-time.After(20 * time.Millisecond):
	}

	p.Release(slot)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second Acquire never completed after release")
	}
}

func TestPoolCloseUnblocksWaiters(t *testing.T) {
	p := New(Config{MaxThreads: 1, QueueCapacity: 4, N: 10, NumChunks: 1})

	slot, err := p.Acquire()
	require.NoError(t, err)
	_ = slot

	errCh := make(chan error, 1)

	go func() {
		_, err := p.Acquire()
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	p.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Acquire never returned after Close")
	}
}
