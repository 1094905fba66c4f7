// Package snapshot caches recent factory snapshots submitted by the mod so
// follow-up questions can reference them without resending the payload.
//
// Three independent policies:
//   - admission: payloads whose load score exceeds the threshold are
//     rejected outright (the mod must narrow its scan area)
//   - capacity: at most N resident snapshots, strict FIFO eviction by
//     insertion time
//   - idle: a background sweep drops snapshots untouched for longer than
//     the idle timeout, regardless of capacity
package snapshot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	// ErrRejected indicates the payload's load score exceeded the admission
	// threshold. Nothing was evicted and nothing was stored.
	ErrRejected = errors.New("snapshot rejected: load score above threshold")
	// ErrNotFound indicates the referenced snapshot is not resident.
	ErrNotFound = errors.New("snapshot not found")
)

// Snapshot is one cached factory payload.
type Snapshot struct {
	ID             string
	Payload        []byte
	LoadScore      float64
	InsertedAt     time.Time
	LastAccessedAt time.Time
}

// Cache is the bounded snapshot store. All mutation (insert, evict, sweep,
// access refresh) happens under one mutex so the sweep can never race an
// access refresh.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*Snapshot
	order   []string // insertion order, oldest first

	capacity  int
	threshold float64
	idle      time.Duration

	now func() time.Time
}

// NewCache creates a cache with the given capacity, admission threshold,
// and idle timeout.
func NewCache(capacity int, threshold float64, idle time.Duration) *Cache {
	return &Cache{
		entries:   make(map[string]*Snapshot),
		capacity:  capacity,
		threshold: threshold,
		idle:      idle,
		now:       time.Now,
	}
}

// Insert admits a new snapshot, evicting the oldest resident one first if
// the cache is at capacity. Admission is checked before any eviction.
func (c *Cache) Insert(payload []byte, loadScore float64) (Snapshot, error) {
	if loadScore > c.threshold {
		return Snapshot{}, ErrRejected
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
		log.Debug().Str("snapshot_id", oldest).Msg("evicted oldest snapshot (capacity)")
	}

	now := c.now()
	s := &Snapshot{
		ID:             uuid.NewString(),
		Payload:        append([]byte(nil), payload...),
		LoadScore:      loadScore,
		InsertedAt:     now,
		LastAccessedAt: now,
	}
	c.entries[s.ID] = s
	c.order = append(c.order, s.ID)
	return copySnapshot(s), nil
}

// Get returns the snapshot by id and refreshes its idle clock. The refresh
// is part of the same critical section as sweep, so a hit cannot race an
// idle eviction.
func (c *Cache) Get(id string) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.entries[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	s.LastAccessedAt = c.now()
	return copySnapshot(s), nil
}

// Sweep removes snapshots idle for longer than the idle timeout and returns
// how many were dropped.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.idle)
	removed := 0
	kept := c.order[:0]
	for _, id := range c.order {
		s := c.entries[id]
		if s.LastAccessedAt.Before(cutoff) {
			delete(c.entries, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	c.order = kept
	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("idle sweep evicted snapshots")
	}
	return removed
}

// Purge drops every resident snapshot. Called on consent revocation.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Snapshot)
	c.order = nil
}

// Len returns the number of resident snapshots.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// IDs returns resident snapshot ids in insertion order.
func (c *Cache) IDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

// RunSweeper runs the idle sweep on a ticker until ctx is done.
func (c *Cache) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

func copySnapshot(s *Snapshot) Snapshot {
	out := *s
	out.Payload = append([]byte(nil), s.Payload...)
	return out
}
