package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	microsoftOAuth2 "golang.org/x/oauth2/microsoft"

	"github.com/tabworks/authflow/domain"
)

// MicrosoftUserInfoEndpoint is a variable so tests can point it at a fake.
var MicrosoftUserInfoEndpoint = "https://graph.microsoft.com/oidc/userinfo"

// MicrosoftProvider implements OAuth2Provider for Microsoft identities via
// the common Azure AD endpoint.
type MicrosoftProvider struct {
	baseProvider
}

// NewMicrosoftProvider creates a MicrosoftProvider for the "common" tenant.
func NewMicrosoftProvider(cfg Config) (*MicrosoftProvider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrProviderMisconfigured
	}
	scopes := ensureScopes(cfg.Scopes, "openid", "profile", "email", "offline_access")

	return &MicrosoftProvider{baseProvider{
		name: domain.ProviderMicrosoft,
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     microsoftOAuth2.AzureADEndpoint("common"),
		},
	}}, nil
}

// FetchIdentity implements OAuth2Provider against the Graph userinfo
// endpoint.
func (m *MicrosoftProvider) FetchIdentity(ctx context.Context, token *oauth2.Token) (*domain.ProviderIdentity, error) {
	resp, err := m.httpClient(ctx, token).Get(MicrosoftUserInfoEndpoint)
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
		Email   string `json:"email"`
		Picture string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchIdentityFailed, err)
	}

	return &domain.ProviderIdentity{
		Provider:     domain.ProviderMicrosoft,
		Name:         info.Name,
		Email:        info.Email,
		ImageURL:     info.Picture,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenExpiry:  token.Expiry,
	}, nil
}

var _ OAuth2Provider = (*MicrosoftProvider)(nil)
