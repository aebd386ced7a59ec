package domain

import (
	"context"
	"errors"
)

// ErrStateNotFound is returned by StateStore lookups for tokens that are
// missing, expired, or already consumed. Callers cannot distinguish the
// three cases.
var ErrStateNotFound = errors.New("auth state not found")

// StateStore is the contract every state backend satisfies. Records live in
// four isolated keyspaces, one per StateKind, and disappear either on
// consumption or on expiry.
//
// Consume is the only read most callers should use: it atomically removes
// the record it returns, so a token can never validate twice, even under
// concurrent submission of the same token.
type StateStore interface {
	// Put stores a record under its kind and token until it expires.
	Put(ctx context.Context, rec *StateRecord) error

	// Get returns a live record without consuming it. Expired and missing
	// records are both ErrStateNotFound.
	Get(ctx context.Context, kind StateKind, token string) (*StateRecord, error)

	// Consume atomically removes and returns a live record. At most one of
	// any number of concurrent Consume calls for the same token succeeds.
	Consume(ctx context.Context, kind StateKind, token string) (*StateRecord, error)

	// Delete removes a record if present. Deleting an absent token is not
	// an error.
	Delete(ctx context.Context, kind StateKind, token string) error

	// SweepExpired removes expired records to bound storage growth.
	// Backends with native expiry may treat this as a no-op.
	SweepExpired(ctx context.Context) error
}

// ErrAccountNotFound is returned by account lookups for unknown IDs or
// emails.
var ErrAccountNotFound = errors.New("account not found")

// ErrAccountExists is returned when creating an account whose provider and
// email are already registered.
var ErrAccountExists = errors.New("account already exists")

// AccountRepository is the external account-store collaborator. The auth
// core only creates accounts on sign-up and updates token fields on
// sign-in and permission grants; everything else about account lifecycle
// belongs to the owner of this interface.
type AccountRepository interface {
	CreateAccount(ctx context.Context, account *Account) error
	GetAccountByID(ctx context.Context, id string) (*Account, error)
	GetAccountByEmail(ctx context.Context, provider Provider, email string) (*Account, error)
	UpdateAccountTokens(ctx context.Context, id string, tokens TokenDetails) error
}
