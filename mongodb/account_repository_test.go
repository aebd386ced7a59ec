package mongodb_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabworks/authflow/domain"
	"github.com/tabworks/authflow/mongodb"
	"github.com/tabworks/authflow/mongodb/testutil"
)

func newAccountRepo(t *testing.T) *mongodb.AccountRepository {
	t.Helper()
	db, cleanup := testutil.SetupTestMongoDB(t, "authflow_accounts")
	t.Cleanup(cleanup)

	repo, err := mongodb.NewAccountRepository(context.Background(), db)
	require.NoError(t, err)
	return repo
}

func TestAccountRepository_CreateAndGet(t *testing.T) {
	repo := newAccountRepo(t)
	ctx := context.Background()

	account := &domain.Account{
		Provider: domain.ProviderGoogle,
		UserDetails: domain.UserDetails{
			Name:  "Jean Test",
			Email: "Jean@Example.com",
		},
	}
	require.NoError(t, repo.CreateAccount(ctx, account))
	require.NotEmpty(t, account.ID)
	assert.False(t, account.CreatedAt.IsZero())

	byID, err := repo.GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "jean@example.com", byID.UserDetails.Email, "email stored lowercased")

	// Lookup ignores the case of the query too.
	byEmail, err := repo.GetAccountByEmail(ctx, domain.ProviderGoogle, "JEAN@EXAMPLE.COM")
	require.NoError(t, err)
	assert.Equal(t, account.ID, byEmail.ID)
}

func TestAccountRepository_DuplicateIdentity(t *testing.T) {
	repo := newAccountRepo(t)
	ctx := context.Background()

	first := &domain.Account{
		Provider:    domain.ProviderGoogle,
		UserDetails: domain.UserDetails{Email: "jean@example.com"},
	}
	require.NoError(t, repo.CreateAccount(ctx, first))

	dup := &domain.Account{
		Provider:    domain.ProviderGoogle,
		UserDetails: domain.UserDetails{Email: "JEAN@example.com"},
	}
	assert.ErrorIs(t, repo.CreateAccount(ctx, dup), domain.ErrAccountExists)

	// The same email under a different provider is a distinct identity.
	other := &domain.Account{
		Provider:    domain.ProviderFacebook,
		UserDetails: domain.UserDetails{Email: "jean@example.com"},
	}
	assert.NoError(t, repo.CreateAccount(ctx, other))
}

func TestAccountRepository_GetMissing(t *testing.T) {
	repo := newAccountRepo(t)
	ctx := context.Background()

	_, err := repo.GetAccountByID(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = repo.GetAccountByEmail(ctx, domain.ProviderGoogle, "nobody@example.com")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestAccountRepository_UpdateTokens(t *testing.T) {
	repo := newAccountRepo(t)
	ctx := context.Background()

	account := &domain.Account{
		Provider:    domain.ProviderGoogle,
		UserDetails: domain.UserDetails{Email: "jean@example.com"},
	}
	require.NoError(t, repo.CreateAccount(ctx, account))

	tokens := domain.TokenDetails{
		AccessToken:  "at-2",
		RefreshToken: "rt-2",
		Scope:        "https://www.googleapis.com/auth/calendar",
	}
	require.NoError(t, repo.UpdateAccountTokens(ctx, account.ID, tokens))

	got, err := repo.GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "at-2", got.TokenDetails.AccessToken)
	assert.Equal(t, "rt-2", got.TokenDetails.RefreshToken)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt) || got.UpdatedAt.Equal(got.CreatedAt))

	assert.ErrorIs(t, repo.UpdateAccountTokens(ctx, "missing", tokens), domain.ErrAccountNotFound)
}
