package snapshot

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_InsertAndGet(t *testing.T) {
	c := NewCache(5, 100, 10*time.Minute)

	s, err := c.Insert([]byte("iron plate backlog"), 10)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)

	got, err := c.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("iron plate backlog"), got.Payload)
	assert.Equal(t, 10.0, got.LoadScore)
}

func TestCache_GetNotFound(t *testing.T) {
	c := NewCache(5, 100, 10*time.Minute)
	_, err := c.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCache_AdmissionRejectsHighLoadScore(t *testing.T) {
	c := NewCache(5, 100, 10*time.Minute)
	_, err := c.Insert([]byte("whole map scan"), 150)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, 0, c.Len())
}

func TestCache_AdmissionCheckedBeforeEviction(t *testing.T) {
	c := NewCache(2, 100, 10*time.Minute)
	a, err := c.Insert([]byte("a"), 1)
	require.NoError(t, err)
	b, err := c.Insert([]byte("b"), 1)
	require.NoError(t, err)

	// Rejected insert at capacity must not evict anything.
	_, err = c.Insert([]byte("huge"), 500)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, []string{a.ID, b.ID}, c.IDs())
}

func TestCache_FIFOEviction(t *testing.T) {
	c := NewCache(5, 100, 10*time.Minute)

	ids := make([]string, 0, 6)
	for i := 0; i < 6; i++ {
		s, err := c.Insert([]byte(fmt.Sprintf("snapshot-%d", i+1)), 1)
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}

	// Exactly the oldest (s1) is gone; s2..s6 remain.
	assert.Equal(t, 5, c.Len())
	_, err := c.Get(ids[0])
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, ids[1:], c.IDs())
}

func TestCache_FIFOEvictionIgnoresAccessOrder(t *testing.T) {
	c := NewCache(2, 100, 10*time.Minute)
	a, _ := c.Insert([]byte("a"), 1)
	b, _ := c.Insert([]byte("b"), 1)

	// Touching the oldest does not save it: eviction is by insertion time.
	_, err := c.Get(a.ID)
	require.NoError(t, err)

	third, _ := c.Insert([]byte("c"), 1)
	_, err = c.Get(a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{b.ID, third.ID}, c.IDs())
}

func TestCache_IdleSweep(t *testing.T) {
	c := NewCache(5, 100, 10*time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	stale, err := c.Insert([]byte("stale"), 1)
	require.NoError(t, err)

	now = now.Add(5 * time.Minute)
	fresh, err := c.Insert([]byte("fresh"), 1)
	require.NoError(t, err)

	now = now.Add(6 * time.Minute) // stale is 11m idle, fresh 6m
	removed := c.Sweep()

	assert.Equal(t, 1, removed)
	_, err = c.Get(stale.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.Get(fresh.ID)
	assert.NoError(t, err)
}

func TestCache_GetRefreshesIdleClock(t *testing.T) {
	c := NewCache(5, 100, 10*time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	s, err := c.Insert([]byte("touched"), 1)
	require.NoError(t, err)

	now = now.Add(8 * time.Minute)
	_, err = c.Get(s.ID)
	require.NoError(t, err)

	now = now.Add(8 * time.Minute) // 16m since insert, 8m since access
	assert.Equal(t, 0, c.Sweep())
	_, err = c.Get(s.ID)
	assert.NoError(t, err)
}

func TestCache_SweepAppliesUnderCapacity(t *testing.T) {
	c := NewCache(5, 100, 10*time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	_, err := c.Insert([]byte("lonely"), 1)
	require.NoError(t, err)

	now = now.Add(11 * time.Minute)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 0, c.Len())
}

func TestCache_Purge(t *testing.T) {
	c := NewCache(5, 100, 10*time.Minute)
	for i := 0; i < 3; i++ {
		_, err := c.Insert([]byte("x"), 1)
		require.NoError(t, err)
	}

	c.Purge()
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.IDs())
}

func TestCache_ReturnedSnapshotIsACopy(t *testing.T) {
	c := NewCache(5, 100, 10*time.Minute)
	s, err := c.Insert([]byte("original"), 1)
	require.NoError(t, err)

	s.Payload[0] = 'X'
	got, err := c.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), got.Payload)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := NewCache(5, 100, 10*time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := c.Insert([]byte("payload"), 1)
			if err == nil {
				_, _ = c.Get(s.ID)
			}
			c.Sweep()
			_ = c.Len()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 5)
}
