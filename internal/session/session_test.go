package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newMemoryManager(t *testing.T) (*Manager, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore(time.Hour)
	t.Cleanup(func() { _ = store.Close() })
	return NewManager(store, time.Hour), store
}

func TestManagerLifecycle(t *testing.T) {
	ctx := context.Background()
	m, store := newMemoryManager(t)

	s, err := m.Create(ctx, 42)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.NotEmpty(t, s.CSRFToken)
	assert.Equal(t, int64(42), s.RegistrationID)

	got, err := m.Lookup(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.CSRFToken, got.CSRFToken)

	require.NoError(t, m.Destroy(ctx, s.ID))
	_, err = m.Lookup(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, store.Len())
}

func TestManagerIssuesDistinctTokens(t *testing.T) {
	ctx := context.Background()
	m, _ := newMemoryManager(t)

	a, err := m.Create(ctx, 1)
	require.NoError(t, err)
	b, err := m.Create(ctx, 1)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.CSRFToken, b.CSRFToken)
}

func TestManagerExpiry(t *testing.T) {
	ctx := context.Background()
	m, store := newMemoryManager(t)
	start := time.Now()
	m.now = func() time.Time { return start }

	s, err := m.Create(ctx, 7)
	require.NoError(t, err)

	m.now = func() time.Time { return start.Add(2 * time.Hour) }
	_, err = m.Lookup(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, store.Len(), "expired session is dropped on lookup")
}

func TestLookupEmptyID(t *testing.T) {
	m, _ := newMemoryManager(t)
	_, err := m.Lookup(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreExpireAndClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := NewMemoryStore(10 * time.Millisecond)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, &Session{ID: "old", ExpiresAt: time.Now().Add(-time.Second)}))
	require.NoError(t, store.Put(ctx, &Session{ID: "live", ExpiresAt: time.Now().Add(time.Hour)}))

	assert.Eventually(t, func() bool { return store.Len() == 1 }, time.Second, 10*time.Millisecond)
	_, err := store.Get(ctx, "live")
	assert.NoError(t, err)

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	m := NewManager(NewRedisStore(client), 30*time.Minute)

	s, err := m.Create(ctx, 9)
	require.NoError(t, err)
	assert.True(t, mr.Exists(redisKeyPrefix+s.ID))
	assert.Greater(t, mr.TTL(redisKeyPrefix+s.ID), 29*time.Minute)

	got, err := m.Lookup(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.RegistrationID)
	assert.Equal(t, s.CSRFToken, got.CSRFToken)

	require.NoError(t, m.Destroy(ctx, s.ID))
	_, err = m.Lookup(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	s2, err := m.Create(ctx, 10)
	require.NoError(t, err)
	mr.FastForward(31 * time.Minute)
	_, err = m.Lookup(ctx, s2.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPrincipal(t *testing.T) {
	owner := Principal{RegistrationID: 3}
	assert.True(t, owner.CanAccess(3))
	assert.False(t, owner.CanAccess(4))

	organizer := Principal{RegistrationID: 1, IsOrganizer: true}
	assert.True(t, organizer.CanAccess(99))

	assert.False(t, Principal{}.CanAccess(0))

	ctx := WithPrincipal(context.Background(), owner)
	got, ok := PrincipalFrom(ctx)
	assert.True(t, ok)
	assert.Equal(t, owner, got)

	_, ok = PrincipalFrom(context.Background())
	assert.False(t, ok)
}
