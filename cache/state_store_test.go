package cache_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabworks/authflow/cache"
	"github.com/tabworks/authflow/domain"
)

func newRecord(kind domain.StateKind, token string, provider domain.Provider) *domain.StateRecord {
	now := time.Now().UTC()
	return &domain.StateRecord{
		Token:       token,
		Kind:        kind,
		Provider:    provider,
		CreatedAt:   now,
		ExpiresAt:   now.Add(domain.StateTTL),
		RedirectURL: "https://app.test/done",
	}
}

func TestMemoryStateStore_PutGetConsume(t *testing.T) {
	store := cache.NewMemoryStateStore(0)
	defer store.Close()
	ctx := context.Background()

	rec := newRecord(domain.StateKindOAuthInit, "tok-1", domain.ProviderGoogle)
	require.NoError(t, store.Put(ctx, rec))

	got, err := store.Get(ctx, domain.StateKindOAuthInit, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", got.Token)
	assert.Equal(t, domain.ProviderGoogle, got.Provider)

	consumed, err := store.Consume(ctx, domain.StateKindOAuthInit, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, rec.RedirectURL, consumed.RedirectURL)

	_, err = store.Get(ctx, domain.StateKindOAuthInit, "tok-1")
	assert.ErrorIs(t, err, domain.ErrStateNotFound)
}

func TestMemoryStateStore_ConsumeOnce(t *testing.T) {
	store := cache.NewMemoryStateStore(0)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newRecord(domain.StateKindSignIn, "tok-once", domain.ProviderGoogle)))

	_, err := store.Consume(ctx, domain.StateKindSignIn, "tok-once")
	require.NoError(t, err)

	_, err = store.Consume(ctx, domain.StateKindSignIn, "tok-once")
	assert.ErrorIs(t, err, domain.ErrStateNotFound)
}

func TestMemoryStateStore_ConsumeOnceConcurrent(t *testing.T) {
	store := cache.NewMemoryStateStore(0)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newRecord(domain.StateKindSignUp, "tok-race", domain.ProviderGoogle)))

	const workers = 32
	var wg sync.WaitGroup
	var successes atomic.Int32
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Consume(ctx, domain.StateKindSignUp, "tok-race"); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load(), "exactly one concurrent consumer may win")
}

func TestMemoryStateStore_ExpiredIsNotFound(t *testing.T) {
	store := cache.NewMemoryStateStore(0)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newRecord(domain.StateKindPermission, "tok-exp", domain.ProviderGoogle)))

	// Jump the clock past the TTL; the entry may still physically exist.
	store.SetClock(func() time.Time { return time.Now().Add(domain.StateTTL + time.Second) })

	_, err := store.Get(ctx, domain.StateKindPermission, "tok-exp")
	assert.ErrorIs(t, err, domain.ErrStateNotFound)

	_, err = store.Consume(ctx, domain.StateKindPermission, "tok-exp")
	assert.ErrorIs(t, err, domain.ErrStateNotFound)
}

func TestMemoryStateStore_KeyspaceIsolation(t *testing.T) {
	store := cache.NewMemoryStateStore(0)
	defer store.Close()
	ctx := context.Background()

	// The same token string under two kinds must resolve independently.
	require.NoError(t, store.Put(ctx, newRecord(domain.StateKindSignUp, "collide", domain.ProviderGoogle)))
	require.NoError(t, store.Put(ctx, newRecord(domain.StateKindSignIn, "collide", domain.ProviderFacebook)))

	_, err := store.Get(ctx, domain.StateKindOAuthInit, "collide")
	assert.ErrorIs(t, err, domain.ErrStateNotFound)
	_, err = store.Get(ctx, domain.StateKindPermission, "collide")
	assert.ErrorIs(t, err, domain.ErrStateNotFound)

	signUp, err := store.Consume(ctx, domain.StateKindSignUp, "collide")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderGoogle, signUp.Provider)

	// Consuming one keyspace leaves the other intact.
	signIn, err := store.Consume(ctx, domain.StateKindSignIn, "collide")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderFacebook, signIn.Provider)
}

func TestMemoryStateStore_CapacityEviction(t *testing.T) {
	store := cache.NewMemoryStateStore(3)
	defer store.Close()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		token := fmt.Sprintf("tok-%d", i)
		require.NoError(t, store.Put(ctx, newRecord(domain.StateKindOAuthInit, token, domain.ProviderGoogle)))
	}

	assert.Equal(t, 3, store.Len(domain.StateKindOAuthInit))

	// The oldest record was evicted; the client restarts the flow.
	_, err := store.Get(ctx, domain.StateKindOAuthInit, "tok-0")
	assert.ErrorIs(t, err, domain.ErrStateNotFound)

	_, err = store.Get(ctx, domain.StateKindOAuthInit, "tok-3")
	assert.NoError(t, err)
}

func TestMemoryStateStore_DeleteAndSweep(t *testing.T) {
	store := cache.NewMemoryStateStore(0)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newRecord(domain.StateKindSignUp, "tok-del", domain.ProviderGoogle)))
	require.NoError(t, store.Delete(ctx, domain.StateKindSignUp, "tok-del"))

	_, err := store.Get(ctx, domain.StateKindSignUp, "tok-del")
	assert.ErrorIs(t, err, domain.ErrStateNotFound)

	// Deleting an absent token is not an error.
	assert.NoError(t, store.Delete(ctx, domain.StateKindSignUp, "tok-del"))
	assert.NoError(t, store.SweepExpired(ctx))
}
