package domain

import "time"

// StateKind partitions the state store into independent keyspaces. A token
// stored under one kind never validates under another, even on collision.
type StateKind string

const (
	StateKindOAuthInit  StateKind = "oauth_init"
	StateKindSignUp     StateKind = "sign_up"
	StateKindSignIn     StateKind = "sign_in"
	StateKindPermission StateKind = "permission"
)

// Valid reports whether k is one of the four known state kinds.
func (k StateKind) Valid() bool {
	switch k {
	case StateKindOAuthInit, StateKindSignUp, StateKindSignIn, StateKindPermission:
		return true
	}
	return false
}

// AuthType distinguishes the two directions an initiation flow can take.
type AuthType string

const (
	AuthTypeSignUp AuthType = "sign_up"
	AuthTypeSignIn AuthType = "sign_in"
)

// StateTTL is the lifetime of every state record, fixed for all kinds.
const StateTTL = 10 * time.Minute

// InitPayload is carried by oauth_init states created when a browser first
// requests a sign-up or sign-in.
type InitPayload struct {
	AuthType AuthType `bson:"auth_type" json:"auth_type"`
}

// SignUpPayload is carried by sign_up states minted after a provider
// callback resolved to an identity with no existing account.
type SignUpPayload struct {
	Identity ProviderIdentity `bson:"identity" json:"identity"`
}

// SignInPayload is carried by sign_in states minted after a provider
// callback resolved to an identity with an existing account.
type SignInPayload struct {
	Identity  ProviderIdentity `bson:"identity" json:"identity"`
	AccountID string           `bson:"account_id" json:"account_id"`
}

// PermissionPayload is carried by permission states created when an
// authenticated account requests elevated scope for one service.
type PermissionPayload struct {
	AccountID  string `bson:"account_id" json:"account_id"`
	Service    string `bson:"service" json:"service"`
	ScopeLevel string `bson:"scope_level" json:"scope_level"`
}

// StateRecord is a single ephemeral authentication state. Exactly one of the
// payload pointers is set, matching Kind.
type StateRecord struct {
	Token       string    `bson:"token" json:"token"`
	Kind        StateKind `bson:"kind" json:"kind"`
	Provider    Provider  `bson:"provider" json:"provider"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	ExpiresAt   time.Time `bson:"expires_at" json:"expires_at"`
	RedirectURL string    `bson:"redirect_url" json:"redirect_url"`

	Init       *InitPayload       `bson:"init,omitempty" json:"init,omitempty"`
	SignUp     *SignUpPayload     `bson:"sign_up,omitempty" json:"sign_up,omitempty"`
	SignIn     *SignInPayload     `bson:"sign_in,omitempty" json:"sign_in,omitempty"`
	Permission *PermissionPayload `bson:"permission,omitempty" json:"permission,omitempty"`
}

// Expired reports whether the record is past its expiry at the given instant.
func (r *StateRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
