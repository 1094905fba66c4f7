package consent

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePersister struct {
	mu      sync.Mutex
	saved   bool
	cleared bool
	saveErr error
}

func (p *fakePersister) SaveConsent(time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saveErr != nil {
		return p.saveErr
	}
	p.saved = true
	return nil
}

func (p *fakePersister) ClearConsent() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleared = true
	return nil
}

func TestGate_StartsUnaccepted(t *testing.T) {
	g := New(nil)
	assert.False(t, g.Accepted())
	assert.False(t, g.Snapshot().Accepted)
}

func TestGate_AcceptOpensAndPersists(t *testing.T) {
	p := &fakePersister{}
	g := New(p)

	require.NoError(t, g.Accept())
	assert.True(t, g.Accepted())
	assert.True(t, p.saved)

	rec := g.Snapshot()
	assert.True(t, rec.Accepted)
	assert.False(t, rec.AcceptedAt.IsZero())
}

func TestGate_AcceptTwiceIsNoop(t *testing.T) {
	g := New(&fakePersister{})
	require.NoError(t, g.Accept())
	first := g.Snapshot().AcceptedAt
	require.NoError(t, g.Accept())
	assert.Equal(t, first, g.Snapshot().AcceptedAt)
}

func TestGate_PersistFailureLeavesGateClosed(t *testing.T) {
	p := &fakePersister{saveErr: errors.New("disk full")}
	g := New(p)

	err := g.Accept()
	require.Error(t, err)
	assert.False(t, g.Accepted())
}

func TestGate_RevokeRunsPurgeHooksAndClears(t *testing.T) {
	p := &fakePersister{}
	g := New(p)

	purged := 0
	g.OnRevoke(func() { purged++ })
	g.OnRevoke(func() { purged++ })

	require.NoError(t, g.Accept())
	require.NoError(t, g.Revoke())

	assert.False(t, g.Accepted())
	assert.Equal(t, 2, purged)
	assert.True(t, p.cleared)
	assert.True(t, g.Snapshot().AcceptedAt.IsZero())
}

func TestGate_RevokeWhileUnacceptedIsNoop(t *testing.T) {
	g := New(&fakePersister{})
	purged := false
	g.OnRevoke(func() { purged = true })

	require.NoError(t, g.Revoke())
	assert.False(t, purged)
}

func TestGate_Restore(t *testing.T) {
	g := New(nil)
	at := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	g.Restore(true, at)

	assert.True(t, g.Accepted())
	assert.Equal(t, at, g.Snapshot().AcceptedAt)
}

func TestGate_ConcurrentChecksDuringRevocation(t *testing.T) {
	g := New(&fakePersister{})
	require.NoError(t, g.Accept())

	// The purge hook runs under the write lock: any reader observing the
	// gate mid-revocation must already see it closed.
	var observedOpenDuringPurge bool
	g.OnRevoke(func() {
		// Direct field read: we hold the write lock here.
		observedOpenDuringPurge = g.accepted
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Accepted()
		}()
	}
	require.NoError(t, g.Revoke())
	wg.Wait()

	assert.False(t, observedOpenDuringPurge)
	assert.False(t, g.Accepted())
}
