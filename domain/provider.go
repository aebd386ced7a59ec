package domain

import (
	"errors"
	"time"
)

// Provider identifies an external OAuth2 identity provider.
type Provider string

const (
	ProviderGoogle    Provider = "google"
	ProviderMicrosoft Provider = "microsoft"
	ProviderFacebook  Provider = "facebook"
)

// ErrUnknownProvider is returned when a provider identifier does not match
// any supported provider.
var ErrUnknownProvider = errors.New("unknown identity provider")

// ParseProvider validates a raw provider identifier coming from a request
// path. It must be called before any state is generated for a flow.
func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderGoogle, ProviderMicrosoft, ProviderFacebook:
		return Provider(s), nil
	}
	return "", ErrUnknownProvider
}

// ProviderIdentity is the normalized identity and credential payload a
// provider returns after a successful code exchange. It is never persisted
// on its own, only embedded in sign-up and sign-in state records.
type ProviderIdentity struct {
	Provider     Provider  `bson:"provider" json:"provider"`
	Name         string    `bson:"name" json:"name"`
	Email        string    `bson:"email,omitempty" json:"email,omitempty"`
	ImageURL     string    `bson:"image_url,omitempty" json:"image_url,omitempty"`
	AccessToken  string    `bson:"access_token" json:"access_token"`
	RefreshToken string    `bson:"refresh_token,omitempty" json:"refresh_token,omitempty"`
	TokenExpiry  time.Time `bson:"token_expiry,omitempty" json:"token_expiry,omitempty"`
}
