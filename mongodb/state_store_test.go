package mongodb_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabworks/authflow/domain"
	"github.com/tabworks/authflow/mongodb"
	"github.com/tabworks/authflow/mongodb/testutil"
)

func newMongoStateStore(t *testing.T) *mongodb.StateStore {
	t.Helper()
	db, cleanup := testutil.SetupTestMongoDB(t, "authflow_states")
	t.Cleanup(cleanup)

	store, err := mongodb.NewStateStore(context.Background(), db)
	require.NoError(t, err)
	return store
}

func mongoRecord(kind domain.StateKind, token string) *domain.StateRecord {
	now := time.Now().UTC()
	rec := &domain.StateRecord{
		Token:       token,
		Kind:        kind,
		Provider:    domain.ProviderGoogle,
		CreatedAt:   now,
		ExpiresAt:   now.Add(domain.StateTTL),
		RedirectURL: "https://app.test/done",
	}
	switch kind {
	case domain.StateKindOAuthInit:
		rec.Init = &domain.InitPayload{AuthType: domain.AuthTypeSignUp}
	case domain.StateKindSignUp:
		rec.SignUp = &domain.SignUpPayload{Identity: domain.ProviderIdentity{Email: "jean@example.com"}}
	case domain.StateKindSignIn:
		rec.SignIn = &domain.SignInPayload{AccountID: "acc-1"}
	case domain.StateKindPermission:
		rec.Permission = &domain.PermissionPayload{AccountID: "acc-1", Service: "calendar", ScopeLevel: "full"}
	}
	return rec
}

func TestMongoStateStore_PutGetConsume(t *testing.T) {
	store := newMongoStateStore(t)
	ctx := context.Background()

	rec := mongoRecord(domain.StateKindOAuthInit, "tok-1")
	require.NoError(t, store.Put(ctx, rec))

	got, err := store.Get(ctx, domain.StateKindOAuthInit, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, rec.RedirectURL, got.RedirectURL)
	require.NotNil(t, got.Init)
	assert.Equal(t, domain.AuthTypeSignUp, got.Init.AuthType)

	consumed, err := store.Consume(ctx, domain.StateKindOAuthInit, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, rec.Token, consumed.Token)

	_, err = store.Consume(ctx, domain.StateKindOAuthInit, "tok-1")
	assert.ErrorIs(t, err, domain.ErrStateNotFound)
}

func TestMongoStateStore_ExpiredIsNotFound(t *testing.T) {
	store := newMongoStateStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, mongoRecord(domain.StateKindSignUp, "tok-exp")))

	store.SetClock(func() time.Time { return time.Now().Add(domain.StateTTL + time.Minute) })

	_, err := store.Get(ctx, domain.StateKindSignUp, "tok-exp")
	assert.ErrorIs(t, err, domain.ErrStateNotFound)
	_, err = store.Consume(ctx, domain.StateKindSignUp, "tok-exp")
	assert.ErrorIs(t, err, domain.ErrStateNotFound)
}

func TestMongoStateStore_KeyspaceIsolation(t *testing.T) {
	store := newMongoStateStore(t)
	ctx := context.Background()

	// Same token in two kinds: both live, consumed independently.
	require.NoError(t, store.Put(ctx, mongoRecord(domain.StateKindSignUp, "collide")))
	require.NoError(t, store.Put(ctx, mongoRecord(domain.StateKindSignIn, "collide")))

	_, err := store.Get(ctx, domain.StateKindPermission, "collide")
	assert.ErrorIs(t, err, domain.ErrStateNotFound)

	_, err = store.Consume(ctx, domain.StateKindSignUp, "collide")
	require.NoError(t, err)

	got, err := store.Get(ctx, domain.StateKindSignIn, "collide")
	require.NoError(t, err)
	assert.Equal(t, domain.StateKindSignIn, got.Kind)
}

func TestMongoStateStore_DuplicateTokenRejected(t *testing.T) {
	store := newMongoStateStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, mongoRecord(domain.StateKindSignUp, "dup")))
	assert.Error(t, store.Put(ctx, mongoRecord(domain.StateKindSignUp, "dup")))
}

func TestMongoStateStore_SweepExpired(t *testing.T) {
	store := newMongoStateStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, mongoRecord(domain.StateKindOAuthInit, "tok-live")))
	stale := mongoRecord(domain.StateKindOAuthInit, "tok-stale")
	stale.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, store.Put(ctx, stale))

	require.NoError(t, store.SweepExpired(ctx))

	_, err := store.Get(ctx, domain.StateKindOAuthInit, "tok-live")
	assert.NoError(t, err)
	// The stale row is gone even if the server TTL monitor has not run.
	_, err = store.Get(ctx, domain.StateKindOAuthInit, "tok-stale")
	assert.ErrorIs(t, err, domain.ErrStateNotFound)
}
