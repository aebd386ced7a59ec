package federation

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/tabworks/authflow/domain"
)

// Config holds the credentials our application registered with one provider.
type Config struct {
	ClientID     string
	ClientSecret string
	// RedirectURL is the callback URL registered with the provider,
	// e.g. "https://api.example.com/auth/callback/google".
	RedirectURL string
	// Scopes are the baseline scopes requested on every sign-up/sign-in.
	// Providers add their own identity scopes when these are missing.
	Scopes []string
}

// OAuth2Provider is one external identity provider the handshake can talk
// to. Implementations are stateless and safe for concurrent use.
type OAuth2Provider interface {
	// Name returns the provider identifier, e.g. domain.ProviderGoogle.
	Name() domain.Provider

	// AuthCodeURL builds the consent URL the browser is redirected to.
	// extraScopes widen the grant beyond the baseline for permission
	// elevation flows; nil requests the baseline only.
	AuthCodeURL(state string, extraScopes []string, opts ...oauth2.AuthCodeOption) string

	// Exchange swaps an authorization code for a token set.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)

	// FetchIdentity resolves the token to the identity it belongs to via
	// the provider's userinfo endpoint.
	FetchIdentity(ctx context.Context, token *oauth2.Token) (*domain.ProviderIdentity, error)
}

// baseProvider carries the oauth2.Config plumbing shared by all providers.
type baseProvider struct {
	name domain.Provider
	conf *oauth2.Config
}

func (b *baseProvider) Name() domain.Provider { return b.name }

// scopedConfig returns the oauth2 config widened with extra scopes, leaving
// the baseline config untouched.
func (b *baseProvider) scopedConfig(extraScopes []string) *oauth2.Config {
	if len(extraScopes) == 0 {
		return b.conf
	}
	conf := *b.conf
	conf.Scopes = append(append([]string{}, conf.Scopes...), extraScopes...)
	return &conf
}

func (b *baseProvider) AuthCodeURL(state string, extraScopes []string, opts ...oauth2.AuthCodeOption) string {
	return b.scopedConfig(extraScopes).AuthCodeURL(state, opts...)
}

func (b *baseProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := b.conf.Exchange(ctx, code)
	if err != nil {
		return nil, ErrExchangeCodeFailed
	}
	return tok, nil
}

// httpClient returns a client that authenticates requests with the token.
func (b *baseProvider) httpClient(ctx context.Context, token *oauth2.Token) *http.Client {
	return b.conf.Client(ctx, token)
}

// Registry holds the configured providers, keyed by name.
type Registry struct {
	providers map[domain.Provider]OAuth2Provider
}

// NewRegistry builds a registry from concrete providers.
func NewRegistry(providers ...OAuth2Provider) *Registry {
	m := make(map[domain.Provider]OAuth2Provider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Registry{providers: m}
}

// Get returns the provider for a name, or ErrProviderNotFound when the
// provider is unknown or not configured.
func (r *Registry) Get(name domain.Provider) (OAuth2Provider, error) {
	if p, ok := r.providers[name]; ok {
		return p, nil
	}
	return nil, ErrProviderNotFound
}
