package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homeadapt/securevoice/internal/util"
)

const testTTL = 7 * 24 * time.Hour

// fakeClock lets tests advance the store's notion of now.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore() (*Store, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 10, 9, 12, 0, 0, 0, time.UTC)}
	store := NewStore(testTTL)
	store.now = clock.Now
	return store, clock
}

func TestCreate(t *testing.T) {
	store, _ := newTestStore()

	record := store.Create("acme", true)

	assert.True(t, util.IsValidUUID(record.ID))
	assert.Equal(t, "acme", record.TenantID)
	assert.False(t, record.Authenticated)
	assert.True(t, record.CredentialsValid())

	other := store.Create("acme", false)
	assert.NotEqual(t, record.ID, other.ID)
	assert.False(t, other.CredentialsValid())
	assert.Equal(t, 2, store.Len())
}

func TestGet(t *testing.T) {
	store, clock := newTestStore()

	t.Run("missing session", func(t *testing.T) {
		_, ok := store.Get("no-such-id")
		assert.False(t, ok)
	})

	t.Run("live session", func(t *testing.T) {
		created := store.Create("acme", true)
		got, ok := store.Get(created.ID)
		require.True(t, ok)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, "acme", got.TenantID)
	})

	t.Run("expired session is evicted on read", func(t *testing.T) {
		created := store.Create("acme", true)
		require.True(t, store.MarkAuthenticated(created.ID))

		clock.Advance(testTTL + time.Second)

		_, ok := store.Get(created.ID)
		assert.False(t, ok, "expired session must read as not-found even if previously authenticated")

		// Eviction is permanent: rolling the clock back does not revive it.
		clock.Advance(-2 * time.Second)
		_, ok = store.Get(created.ID)
		assert.False(t, ok)
	})
}

func TestMarkAuthenticated(t *testing.T) {
	store, clock := newTestStore()
	created := store.Create("acme", true)

	require.True(t, store.MarkAuthenticated(created.ID))
	got, ok := store.Get(created.ID)
	require.True(t, ok)
	assert.True(t, got.Authenticated)

	// Idempotent
	require.True(t, store.MarkAuthenticated(created.ID))
	got, _ = store.Get(created.ID)
	assert.True(t, got.Authenticated)

	// Unknown and expired sessions report failure
	assert.False(t, store.MarkAuthenticated("no-such-id"))
	clock.Advance(testTTL + time.Second)
	assert.False(t, store.MarkAuthenticated(created.ID))
}

func TestTouch(t *testing.T) {
	store, clock := newTestStore()
	created := store.Create("acme", true)

	status := "in-progress"
	require.True(t, store.Touch(created.ID, Activity{CallStatus: &status}))

	got, ok := store.Get(created.ID)
	require.True(t, ok)
	assert.Equal(t, "in-progress", got.CallStatus)
	assert.Equal(t, clock.Now(), got.LastActivity)
	assert.Zero(t, got.ConversationLength)
	assert.True(t, got.LastCallEnded.IsZero())

	length := 7
	require.True(t, store.Touch(created.ID, Activity{ConversationLength: &length, CallEnded: true}))

	got, _ = store.Get(created.ID)
	assert.Equal(t, "in-progress", got.CallStatus, "touch merges, does not overwrite unset fields")
	assert.Equal(t, 7, got.ConversationLength)
	assert.Equal(t, clock.Now(), got.LastCallEnded)

	assert.False(t, store.Touch("no-such-id", Activity{}))
}

func TestExpireIfStale(t *testing.T) {
	store, clock := newTestStore()
	created := store.Create("acme", true)

	assert.False(t, store.ExpireIfStale(created.ID), "fresh session must not expire")
	assert.False(t, store.ExpireIfStale("no-such-id"))

	clock.Advance(testTTL + time.Second)
	assert.True(t, store.ExpireIfStale(created.ID))
	assert.Equal(t, 0, store.Len())
}

func TestPurgeExpired(t *testing.T) {
	store, clock := newTestStore()

	old1 := store.Create("acme", true)
	old2 := store.Create("globex", true)
	clock.Advance(testTTL + time.Second)
	fresh := store.Create("acme", true)

	assert.Equal(t, 2, store.PurgeExpired())
	assert.Equal(t, 1, store.Len())

	_, ok := store.Get(fresh.ID)
	assert.True(t, ok)
	_, ok = store.Get(old1.ID)
	assert.False(t, ok)
	_, ok = store.Get(old2.ID)
	assert.False(t, ok)
}

func TestConcurrentAccess(t *testing.T) {
	store, _ := newTestStore()
	created := store.Create("acme", true)

	var wg sync.WaitGroup
	status := "in-progress"
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			store.MarkAuthenticated(created.ID)
		}()
		go func() {
			defer wg.Done()
			store.Touch(created.ID, Activity{CallStatus: &status})
		}()
		go func() {
			defer wg.Done()
			store.Get(created.ID)
		}()
	}
	wg.Wait()

	got, ok := store.Get(created.ID)
	require.True(t, ok)
	assert.True(t, got.Authenticated)
	assert.Equal(t, "in-progress", got.CallStatus)
}
