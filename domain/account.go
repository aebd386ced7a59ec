package domain

import "time"

// UserDetails holds the profile fields captured from the identity provider.
type UserDetails struct {
	Name     string `bson:"name,omitempty" json:"name,omitempty"`
	Email    string `bson:"email" json:"email"`
	ImageURL string `bson:"image_url,omitempty" json:"image_url,omitempty"`
}

// TokenDetails holds the provider credentials currently bound to an account.
type TokenDetails struct {
	AccessToken  string    `bson:"access_token" json:"-"`
	RefreshToken string    `bson:"refresh_token,omitempty" json:"-"`
	ExpiresAt    time.Time `bson:"expires_at,omitempty" json:"expires_at,omitempty"`
	Scope        string    `bson:"scope,omitempty" json:"scope,omitempty"`
}

// Account is a registered user of the application.
type Account struct {
	ID           string       `bson:"_id,omitempty" json:"id"`
	Provider     Provider     `bson:"provider" json:"provider"`
	UserDetails  UserDetails  `bson:"user_details" json:"user_details"`
	TokenDetails TokenDetails `bson:"token_details" json:"-"`
	CreatedAt    time.Time    `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `bson:"updated_at" json:"updated_at"`
}
