package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	facebookOAuth2 "golang.org/x/oauth2/facebook"

	"github.com/tabworks/authflow/domain"
)

// FacebookUserInfoEndpoint is a variable so tests can point it at a fake.
// The fields parameter selects the profile data to retrieve.
var FacebookUserInfoEndpoint = "https://graph.facebook.com/me?fields=id,name,email,picture"

// FacebookProvider implements OAuth2Provider for Facebook's Graph API.
type FacebookProvider struct {
	baseProvider
}

// NewFacebookProvider creates a FacebookProvider with the public_profile
// and email scopes topped up when absent.
func NewFacebookProvider(cfg Config) (*FacebookProvider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrProviderMisconfigured
	}
	scopes := ensureScopes(cfg.Scopes, "public_profile", "email")

	return &FacebookProvider{baseProvider{
		name: domain.ProviderFacebook,
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     facebookOAuth2.Endpoint,
		},
	}}, nil
}

// FetchIdentity implements OAuth2Provider against the Graph /me endpoint.
// The email field may be empty when the user declined the email permission.
func (f *FacebookProvider) FetchIdentity(ctx context.Context, token *oauth2.Token) (*domain.ProviderIdentity, error) {
	resp, err := f.httpClient(ctx, token).Get(FacebookUserInfoEndpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchIdentityFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d, body: %s", ErrFetchIdentityFailed, resp.StatusCode, string(body))
	}

	var info struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture struct {
			Data struct {
				URL string `json:"url"`
			} `json:"data"`
		} `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchIdentityFailed, err)
	}

	return &domain.ProviderIdentity{
		Provider:     domain.ProviderFacebook,
		Name:         info.Name,
		Email:        info.Email,
		ImageURL:     info.Picture.Data.URL,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenExpiry:  token.Expiry,
	}, nil
}

var _ OAuth2Provider = (*FacebookProvider)(nil)
