package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tabworks/authflow/domain"
	flowerr "github.com/tabworks/authflow/errors"
	"github.com/tabworks/authflow/internal/federation"
	"github.com/tabworks/authflow/internal/flowstate"
	"github.com/tabworks/authflow/internal/metrics"
)

// FlowService drives the three-leg OAuth handshake for sign-up, sign-in and
// permission elevation. Every step consumes a single-use state token,
// performs exactly one transition and either redirects forward or
// terminates with a stable error code. Nothing here retries: a failed
// attempt leaves no valid state behind and the user restarts from the
// initiating route.
type FlowService struct {
	states    *flowstate.Manager
	providers *federation.Registry
	accounts  domain.AccountRepository
	sessions  SessionIssuer
	verifier  *OwnershipVerifier

	// frontendBaseURL is where callback redirects deliver freshly minted
	// sign-up/sign-in state tokens, e.g. "https://app.example.com".
	frontendBaseURL string
}

// NewFlowService wires the orchestrator. All collaborators are injected;
// the service holds no global state.
func NewFlowService(
	states *flowstate.Manager,
	providers *federation.Registry,
	accounts domain.AccountRepository,
	sessions SessionIssuer,
	verifier *OwnershipVerifier,
	frontendBaseURL string,
) *FlowService {
	return &FlowService{
		states:          states,
		providers:       providers,
		accounts:        accounts,
		sessions:        sessions,
		verifier:        verifier,
		frontendBaseURL: frontendBaseURL,
	}
}

// CallbackResult is the outcome of a successful provider callback: the
// browser continues to RedirectTo carrying the next state token.
type CallbackResult struct {
	AuthType   domain.AuthType
	StateToken string
	RedirectTo string
}

// FinalizeResult is the outcome of a successful finalize step.
type FinalizeResult struct {
	AccountID   string
	Session     *IssuedSession
	RedirectURL string
}

// BeginAuth starts a sign-up or sign-in flow: it validates the provider,
// mints an oauth_init state and returns the provider consent URL. The
// redirect URL is required; without it the terminal redirect would have no
// destination.
func (s *FlowService) BeginAuth(ctx context.Context, providerName string, authType domain.AuthType, redirectURL string) (string, error) {
	if redirectURL == "" {
		return "", s.fail(flowerr.NewMissingData("redirectUrl is required"), "")
	}
	provider, err := domain.ParseProvider(providerName)
	if err != nil {
		return "", s.fail(flowerr.NewInvalidProvider(providerName), redirectURL)
	}
	p, err := s.providers.Get(provider)
	if err != nil {
		return "", s.fail(flowerr.NewInvalidProvider(providerName), redirectURL)
	}

	rec := &domain.StateRecord{
		Provider:    provider,
		RedirectURL: redirectURL,
		Init:        &domain.InitPayload{AuthType: authType},
	}
	token, err := s.states.Generate(ctx, domain.StateKindOAuthInit, rec)
	if err != nil {
		log.Error().Err(err).Str("provider", providerName).Msg("Failed to generate init state")
		return "", s.fail(flowerr.NewDatabaseError(), redirectURL)
	}
	metrics.StatesIssuedTotal.WithLabelValues(string(domain.StateKindOAuthInit)).Inc()

	log.Debug().Str("provider", providerName).Str("auth_type", string(authType)).Msg("Auth flow initiated")
	return p.AuthCodeURL(token, nil), nil
}

// HandleAuthCallback consumes the oauth_init state the provider echoed
// back, exchanges the code for tokens, fetches the identity and branches:
// a new identity continues to sign-up, a known one to sign-in. The
// opposite combination is a terminal USER_EXISTS / USER_NOT_FOUND.
func (s *FlowService) HandleAuthCallback(ctx context.Context, providerName, stateToken, code string) (*CallbackResult, error) {
	provider, err := domain.ParseProvider(providerName)
	if err != nil {
		return nil, s.fail(flowerr.NewInvalidProvider(providerName), "")
	}

	rec, err := s.states.ValidateAndConsume(ctx, stateToken, domain.StateKindOAuthInit, provider)
	if err != nil {
		return nil, s.stateError(err, "")
	}
	metrics.StatesConsumedTotal.WithLabelValues(string(domain.StateKindOAuthInit)).Inc()
	redirectURL := rec.RedirectURL
	if rec.Init == nil {
		return nil, s.fail(flowerr.NewServerError("malformed init state"), redirectURL)
	}

	p, err := s.providers.Get(provider)
	if err != nil {
		return nil, s.fail(flowerr.NewInvalidProvider(providerName), redirectURL)
	}
	if code == "" {
		return nil, s.fail(flowerr.NewAuthFailed("The provider returned no authorization code"), redirectURL)
	}

	tok, err := p.Exchange(ctx, code)
	if err != nil {
		log.Warn().Err(err).Str("provider", providerName).Msg("Code exchange failed")
		return nil, s.fail(flowerr.NewAuthFailed("Could not exchange the authorization code"), redirectURL)
	}
	identity, err := p.FetchIdentity(ctx, tok)
	if err != nil {
		log.Warn().Err(err).Str("provider", providerName).Msg("Identity fetch failed")
		return nil, s.fail(flowerr.NewAuthFailed("Could not fetch the identity"), redirectURL)
	}
	if identity.Email == "" {
		return nil, s.fail(flowerr.NewMissingEmail(), redirectURL)
	}

	account, err := s.accounts.GetAccountByEmail(ctx, provider, identity.Email)
	switch {
	case err == nil: // identity already has an account
		if rec.Init.AuthType == domain.AuthTypeSignUp {
			return nil, s.fail(flowerr.NewUserExists(), redirectURL)
		}
		return s.mintNextState(ctx, domain.StateKindSignIn, &domain.StateRecord{
			Provider:    provider,
			RedirectURL: redirectURL,
			SignIn:      &domain.SignInPayload{Identity: *identity, AccountID: account.ID},
		}, domain.AuthTypeSignIn, redirectURL)

	case errors.Is(err, domain.ErrAccountNotFound): // identity is new
		if rec.Init.AuthType == domain.AuthTypeSignIn {
			return nil, s.fail(flowerr.NewUserNotFound(), redirectURL)
		}
		return s.mintNextState(ctx, domain.StateKindSignUp, &domain.StateRecord{
			Provider:    provider,
			RedirectURL: redirectURL,
			SignUp:      &domain.SignUpPayload{Identity: *identity},
		}, domain.AuthTypeSignUp, redirectURL)

	default:
		log.Error().Err(err).Str("provider", providerName).Msg("Account lookup failed")
		return nil, s.fail(flowerr.NewDatabaseError(), redirectURL)
	}
}

func (s *FlowService) mintNextState(ctx context.Context, kind domain.StateKind, rec *domain.StateRecord, authType domain.AuthType, redirectURL string) (*CallbackResult, error) {
	token, err := s.states.Generate(ctx, kind, rec)
	if err != nil {
		log.Error().Err(err).Str("kind", string(kind)).Msg("Failed to generate next state")
		return nil, s.fail(flowerr.NewDatabaseError(), redirectURL)
	}
	metrics.StatesIssuedTotal.WithLabelValues(string(kind)).Inc()

	path := "/signin"
	if authType == domain.AuthTypeSignUp {
		path = "/signup"
	}
	return &CallbackResult{
		AuthType:   authType,
		StateToken: token,
		RedirectTo: fmt.Sprintf("%s%s?state=%s", s.frontendBaseURL, path, token),
	}, nil
}

// FinalizeSignUp consumes a sign_up state, creates the account and issues
// the session. A concurrent duplicate registration surfaces as USER_EXISTS
// from the unique account index, never as a second account.
func (s *FlowService) FinalizeSignUp(ctx context.Context, stateToken string) (*FinalizeResult, error) {
	rec, err := s.states.ValidateAndConsume(ctx, stateToken, domain.StateKindSignUp, "")
	if err != nil {
		return nil, s.stateError(err, "")
	}
	metrics.StatesConsumedTotal.WithLabelValues(string(domain.StateKindSignUp)).Inc()
	redirectURL := rec.RedirectURL
	if rec.SignUp == nil {
		return nil, s.fail(flowerr.NewServerError("malformed sign-up state"), redirectURL)
	}
	identity := rec.SignUp.Identity

	account := &domain.Account{
		Provider: rec.Provider,
		UserDetails: domain.UserDetails{
			Name:     identity.Name,
			Email:    identity.Email,
			ImageURL: identity.ImageURL,
		},
		TokenDetails: domain.TokenDetails{
			AccessToken:  identity.AccessToken,
			RefreshToken: identity.RefreshToken,
			ExpiresAt:    identity.TokenExpiry,
		},
	}
	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, domain.ErrAccountExists) {
			return nil, s.fail(flowerr.NewUserExists(), redirectURL)
		}
		log.Error().Err(err).Msg("Account creation failed")
		return nil, s.fail(flowerr.NewDatabaseError(), redirectURL)
	}

	session, err := s.issueSession(ctx, account.ID, identity, redirectURL)
	if err != nil {
		return nil, err
	}
	metrics.SignUpsCompletedTotal.Inc()
	log.Info().Str("account_id", account.ID).Str("provider", string(rec.Provider)).Msg("Sign-up completed")
	return &FinalizeResult{AccountID: account.ID, Session: session, RedirectURL: redirectURL}, nil
}

// FinalizeSignIn consumes a sign_in state, refreshes the account's token
// fields and issues the session.
func (s *FlowService) FinalizeSignIn(ctx context.Context, stateToken string) (*FinalizeResult, error) {
	rec, err := s.states.ValidateAndConsume(ctx, stateToken, domain.StateKindSignIn, "")
	if err != nil {
		return nil, s.stateError(err, "")
	}
	metrics.StatesConsumedTotal.WithLabelValues(string(domain.StateKindSignIn)).Inc()
	redirectURL := rec.RedirectURL
	if rec.SignIn == nil {
		return nil, s.fail(flowerr.NewServerError("malformed sign-in state"), redirectURL)
	}
	identity := rec.SignIn.Identity
	accountID := rec.SignIn.AccountID

	tokens := domain.TokenDetails{
		AccessToken:  identity.AccessToken,
		RefreshToken: identity.RefreshToken,
		ExpiresAt:    identity.TokenExpiry,
	}
	if err := s.accounts.UpdateAccountTokens(ctx, accountID, tokens); err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, s.fail(flowerr.NewUserNotFound(), redirectURL)
		}
		log.Error().Err(err).Str("account_id", accountID).Msg("Token update failed")
		return nil, s.fail(flowerr.NewDatabaseError(), redirectURL)
	}

	session, err := s.issueSession(ctx, accountID, identity, redirectURL)
	if err != nil {
		return nil, err
	}
	metrics.SignInsCompletedTotal.Inc()
	log.Info().Str("account_id", accountID).Str("provider", string(rec.Provider)).Msg("Sign-in completed")
	return &FinalizeResult{AccountID: accountID, Session: session, RedirectURL: redirectURL}, nil
}

// BeginPermission starts a scope-elevation flow for one service of an
// already-authenticated account. The provider is the one the account is
// registered with.
func (s *FlowService) BeginPermission(ctx context.Context, service, scopeLevel, accountID, redirectURL string) (string, error) {
	if redirectURL == "" || accountID == "" || service == "" || scopeLevel == "" {
		return "", s.fail(flowerr.NewMissingData("accountId, service, scopeLevel and redirectUrl are required"), redirectURL)
	}
	account, err := s.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return "", s.fail(flowerr.NewUserNotFound(), redirectURL)
		}
		return "", s.fail(flowerr.NewDatabaseError(), redirectURL)
	}
	provider := account.Provider

	p, err := s.providers.Get(provider)
	if err != nil {
		return "", s.fail(flowerr.NewInvalidProvider(string(provider)), redirectURL)
	}
	scopes, err := federation.ElevatedScopes(provider, service, scopeLevel)
	if err != nil {
		return "", s.fail(flowerr.NewMissingData(fmt.Sprintf("no %s scope level %q for provider %s", service, scopeLevel, provider)), redirectURL)
	}

	rec := &domain.StateRecord{
		Provider:    provider,
		RedirectURL: redirectURL,
		Permission:  &domain.PermissionPayload{AccountID: accountID, Service: service, ScopeLevel: scopeLevel},
	}
	token, err := s.states.Generate(ctx, domain.StateKindPermission, rec)
	if err != nil {
		log.Error().Err(err).Str("provider", string(provider)).Msg("Failed to generate permission state")
		return "", s.fail(flowerr.NewDatabaseError(), redirectURL)
	}
	metrics.StatesIssuedTotal.WithLabelValues(string(domain.StateKindPermission)).Inc()

	log.Debug().
		Str("provider", string(provider)).
		Str("account_id", accountID).
		Str("service", service).
		Str("scope_level", scopeLevel).
		Msg("Permission flow initiated")
	return p.AuthCodeURL(token, scopes), nil
}

// HandlePermissionCallback consumes the permission state, exchanges the
// code and runs the mandatory ownership check before persisting anything.
// An expired state fails before any provider round trip.
func (s *FlowService) HandlePermissionCallback(ctx context.Context, providerName, stateToken, code string) (*FinalizeResult, error) {
	provider, err := domain.ParseProvider(providerName)
	if err != nil {
		return nil, s.fail(flowerr.NewInvalidProvider(providerName), "")
	}

	rec, err := s.states.ValidateAndConsume(ctx, stateToken, domain.StateKindPermission, provider)
	if err != nil {
		return nil, s.stateError(err, "")
	}
	metrics.StatesConsumedTotal.WithLabelValues(string(domain.StateKindPermission)).Inc()
	redirectURL := rec.RedirectURL
	if rec.Permission == nil {
		return nil, s.fail(flowerr.NewServerError("malformed permission state"), redirectURL)
	}
	accountID := rec.Permission.AccountID

	p, err := s.providers.Get(provider)
	if err != nil {
		return nil, s.fail(flowerr.NewInvalidProvider(providerName), redirectURL)
	}
	if code == "" {
		return nil, s.fail(flowerr.NewAuthFailed("The provider returned no authorization code"), redirectURL)
	}

	tok, err := p.Exchange(ctx, code)
	if err != nil {
		log.Warn().Err(err).Str("provider", providerName).Msg("Permission code exchange failed")
		return nil, s.fail(flowerr.NewAuthFailed("Could not exchange the authorization code"), redirectURL)
	}

	// Mandatory cross-check: the granted token must belong to the account
	// that asked for it. No token write happens before this passes.
	if err := s.verifier.Verify(ctx, provider, tok.AccessToken, accountID); err != nil {
		return nil, s.fail(flowerr.NewAuthFailed("The granted token belongs to a different account"), redirectURL)
	}

	scopes, _ := federation.ElevatedScopes(provider, rec.Permission.Service, rec.Permission.ScopeLevel)
	tokens := domain.TokenDetails{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		Scope:        joinScopes(scopes),
	}
	if err := s.accounts.UpdateAccountTokens(ctx, accountID, tokens); err != nil {
		log.Error().Err(err).Str("account_id", accountID).Msg("Permission token update failed")
		return nil, s.fail(flowerr.NewDatabaseError(), redirectURL)
	}

	identity := domain.ProviderIdentity{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenExpiry:  tok.Expiry,
	}
	session, err := s.issueSession(ctx, accountID, identity, redirectURL)
	if err != nil {
		return nil, err
	}
	metrics.PermissionGrantsTotal.Inc()
	log.Info().
		Str("account_id", accountID).
		Str("service", rec.Permission.Service).
		Str("scope_level", rec.Permission.ScopeLevel).
		Msg("Permission grant completed")
	return &FinalizeResult{AccountID: accountID, Session: session, RedirectURL: redirectURL}, nil
}

func (s *FlowService) issueSession(ctx context.Context, accountID string, identity domain.ProviderIdentity, redirectURL string) (*IssuedSession, error) {
	grant := SessionGrant{
		AccountID:    accountID,
		AccessToken:  identity.AccessToken,
		RefreshToken: identity.RefreshToken,
	}
	if !identity.TokenExpiry.IsZero() {
		grant.ExpiresIn = int64(time.Until(identity.TokenExpiry).Seconds())
	}
	session, err := s.sessions.IssueSession(ctx, grant)
	if err != nil {
		log.Error().Err(err).Str("account_id", accountID).Msg("Session issuance failed")
		return nil, s.fail(flowerr.NewServerError("Could not establish a session"), redirectURL)
	}
	return session, nil
}

// stateError maps store errors onto the flow taxonomy: missing, expired,
// consumed and wrong-provider all collapse to INVALID_STATE.
func (s *FlowService) stateError(err error, redirectURL string) error {
	if errors.Is(err, domain.ErrStateNotFound) {
		return s.fail(flowerr.NewInvalidState(), redirectURL)
	}
	log.Error().Err(err).Msg("State store failure")
	return s.fail(flowerr.NewDatabaseError(), redirectURL)
}

func (s *FlowService) fail(fe *flowerr.FlowError, redirectURL string) error {
	metrics.FlowFailuresTotal.WithLabelValues(fe.Code).Inc()
	if redirectURL != "" {
		return fe.WithRedirect(redirectURL)
	}
	return fe
}

func joinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}
