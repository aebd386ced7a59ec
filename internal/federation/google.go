package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	googleOAuth2 "golang.org/x/oauth2/google"

	"github.com/tabworks/authflow/domain"
)

// GoogleUserInfoEndpoint is a variable so tests can point it at a fake.
var GoogleUserInfoEndpoint = "https://www.googleapis.com/oauth2/v3/userinfo"

// GoogleProvider implements OAuth2Provider for Google.
type GoogleProvider struct {
	baseProvider
}

// NewGoogleProvider creates a GoogleProvider, topping up the identity
// scopes (openid, profile, email) when the config omits them.
func NewGoogleProvider(cfg Config) (*GoogleProvider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrProviderMisconfigured
	}
	scopes := ensureScopes(cfg.Scopes, "openid",
		"https://www.googleapis.com/auth/userinfo.profile",
		"https://www.googleapis.com/auth/userinfo.email")

	return &GoogleProvider{baseProvider{
		name: domain.ProviderGoogle,
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     googleOAuth2.Endpoint,
		},
	}}, nil
}

// AuthCodeURL requests offline access so Google issues a refresh token.
func (g *GoogleProvider) AuthCodeURL(state string, extraScopes []string, opts ...oauth2.AuthCodeOption) string {
	opts = append(opts, oauth2.AccessTypeOffline)
	return g.baseProvider.AuthCodeURL(state, extraScopes, opts...)
}

// FetchIdentity implements OAuth2Provider against Google's userinfo endpoint.
func (g *GoogleProvider) FetchIdentity(ctx context.Context, token *oauth2.Token) (*domain.ProviderIdentity, error) {
	resp, err := g.httpClient(ctx, token).Get(GoogleUserInfoEndpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchIdentityFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d, body: %s", ErrFetchIdentityFailed, resp.StatusCode, string(body))
	}

	var info struct {
		Sub     string `json:"sub"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
		Email   string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchIdentityFailed, err)
	}

	return &domain.ProviderIdentity{
		Provider:     domain.ProviderGoogle,
		Name:         info.Name,
		Email:        info.Email,
		ImageURL:     info.Picture,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenExpiry:  token.Expiry,
	}, nil
}

// ensureScopes appends any of the wanted scopes missing from scopes.
func ensureScopes(scopes []string, wanted ...string) []string {
	out := append([]string{}, scopes...)
	for _, w := range wanted {
		found := false
		for _, s := range out {
			if s == w {
				found = true
				break
			}
		}
		if !found {
			out = append(out, w)
		}
	}
	return out
}

var _ OAuth2Provider = (*GoogleProvider)(nil)
