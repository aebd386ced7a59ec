package services

import (
	"context"
	"time"
)

// SessionGrant is the handoff payload the flow core passes to the session
// issuer after a successful finalize step.
type SessionGrant struct {
	AccountID    string
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // seconds until the provider access token expires
}

// IssuedSession acknowledges a successful issuance.
type IssuedSession struct {
	// Token is the opaque session credential handed to the browser,
	// typically via a cookie set by the HTTP layer.
	Token     string
	SessionID string
	ExpiresAt time.Time
}

// SessionIssuer is the external collaborator that turns a validated
// identity into an application session. Issuance failure aborts the flow;
// a handshake is not complete until the session exists.
type SessionIssuer interface {
	IssueSession(ctx context.Context, grant SessionGrant) (*IssuedSession, error)
}
