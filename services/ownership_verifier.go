package services

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/tabworks/authflow/domain"
	"github.com/tabworks/authflow/internal/federation"
)

// ErrOwnershipMismatch is the single error every failed ownership check
// resolves to. The internal reason is logged, never surfaced, so a caller
// holding someone else's token learns nothing about whose it is.
var ErrOwnershipMismatch = errors.New("access token does not belong to the requesting account")

// OwnershipVerifier confirms that an access token returned by a provider
// belongs to the account that initiated the flow. Permission callbacks run
// it before any token is persisted; it is the defense against a user being
// signed into the wrong provider account mid-flow.
type OwnershipVerifier struct {
	accounts  domain.AccountRepository
	providers *federation.Registry
}

// NewOwnershipVerifier creates an OwnershipVerifier.
func NewOwnershipVerifier(accounts domain.AccountRepository, providers *federation.Registry) *OwnershipVerifier {
	return &OwnershipVerifier{accounts: accounts, providers: providers}
}

// Verify checks that accessToken resolves to the same email the account
// has on record, comparing case-insensitively. Every failure mode returns
// ErrOwnershipMismatch; the distinct reasons exist only in the logs.
func (v *OwnershipVerifier) Verify(ctx context.Context, provider domain.Provider, accessToken, accountID string) error {
	account, err := v.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		log.Warn().Err(err).Str("account_id", accountID).Msg("Ownership check failed: account lookup")
		return ErrOwnershipMismatch
	}
	if account.UserDetails.Email == "" {
		log.Warn().Str("account_id", accountID).Msg("Ownership check failed: account has no email")
		return ErrOwnershipMismatch
	}

	p, err := v.providers.Get(provider)
	if err != nil {
		log.Warn().Err(err).Str("provider", string(provider)).Msg("Ownership check failed: provider lookup")
		return ErrOwnershipMismatch
	}

	identity, err := p.FetchIdentity(ctx, &oauth2.Token{AccessToken: accessToken})
	if err != nil {
		log.Warn().Err(err).Str("account_id", accountID).Msg("Ownership check failed: identity lookup")
		return ErrOwnershipMismatch
	}

	if !strings.EqualFold(identity.Email, account.UserDetails.Email) {
		log.Warn().Str("account_id", accountID).Msg("Ownership check failed: email mismatch")
		return ErrOwnershipMismatch
	}
	return nil
}
