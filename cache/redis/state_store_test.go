package redis_test

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisstore "github.com/tabworks/authflow/cache/redis"
	"github.com/tabworks/authflow/domain"
)

func newRedisStateStore(t *testing.T) *redisstore.StateStore {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set; skipping Redis-backed test")
	}

	client := goredis.NewClient(&goredis.Options{Addr: addr, DB: 9})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Ping(ctx).Err())

	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	return redisstore.NewStateStore(client, "authflow_test")
}

func redisRecord(kind domain.StateKind, token string) *domain.StateRecord {
	now := time.Now().UTC()
	return &domain.StateRecord{
		Token:       token,
		Kind:        kind,
		Provider:    domain.ProviderGoogle,
		CreatedAt:   now,
		ExpiresAt:   now.Add(domain.StateTTL),
		RedirectURL: "https://app.test/done",
		Init:        &domain.InitPayload{AuthType: domain.AuthTypeSignIn},
	}
}

func TestRedisStateStore_PutGetConsume(t *testing.T) {
	store := newRedisStateStore(t)
	ctx := context.Background()

	rec := redisRecord(domain.StateKindOAuthInit, "tok-1")
	require.NoError(t, store.Put(ctx, rec))

	got, err := store.Get(ctx, domain.StateKindOAuthInit, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, rec.RedirectURL, got.RedirectURL)
	require.NotNil(t, got.Init)
	assert.Equal(t, domain.AuthTypeSignIn, got.Init.AuthType)

	consumed, err := store.Consume(ctx, domain.StateKindOAuthInit, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, rec.Token, consumed.Token)

	_, err = store.Consume(ctx, domain.StateKindOAuthInit, "tok-1")
	assert.ErrorIs(t, err, domain.ErrStateNotFound)
}

func TestRedisStateStore_KeyspaceIsolation(t *testing.T) {
	store := newRedisStateStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, redisRecord(domain.StateKindSignUp, "collide")))
	require.NoError(t, store.Put(ctx, redisRecord(domain.StateKindSignIn, "collide")))

	_, err := store.Get(ctx, domain.StateKindPermission, "collide")
	assert.ErrorIs(t, err, domain.ErrStateNotFound)

	_, err = store.Consume(ctx, domain.StateKindSignUp, "collide")
	require.NoError(t, err)

	got, err := store.Get(ctx, domain.StateKindSignIn, "collide")
	require.NoError(t, err)
	assert.Equal(t, domain.StateKindSignIn, got.Kind)
}

func TestRedisStateStore_AlreadyExpiredIsNeverStored(t *testing.T) {
	store := newRedisStateStore(t)
	ctx := context.Background()

	rec := redisRecord(domain.StateKindSignUp, "tok-exp")
	rec.ExpiresAt = time.Now().UTC().Add(-time.Second)
	require.NoError(t, store.Put(ctx, rec))

	_, err := store.Get(ctx, domain.StateKindSignUp, "tok-exp")
	assert.ErrorIs(t, err, domain.ErrStateNotFound)
}

func TestRedisStateStore_Delete(t *testing.T) {
	store := newRedisStateStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, redisRecord(domain.StateKindPermission, "tok-del")))
	require.NoError(t, store.Delete(ctx, domain.StateKindPermission, "tok-del"))

	_, err := store.Get(ctx, domain.StateKindPermission, "tok-del")
	assert.ErrorIs(t, err, domain.ErrStateNotFound)
}
