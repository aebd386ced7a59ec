package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tabworks/authflow/services"
)

// DefaultSessionTTL is how long an application session lives when the
// provider token carries no usable expiry.
const DefaultSessionTTL = 24 * time.Hour

// ErrInvalidSession is returned when a session token fails verification.
var ErrInvalidSession = errors.New("invalid session token")

// JWTIssuer implements services.SessionIssuer with HMAC-signed JWTs. The
// browser receives the signed token via a cookie set by the HTTP layer.
type JWTIssuer struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
	now        func() time.Time
}

// NewJWTIssuer creates an issuer. The signing key must be non-empty.
func NewJWTIssuer(signingKey []byte, issuer string, ttl time.Duration) (*JWTIssuer, error) {
	if len(signingKey) == 0 {
		return nil, errors.New("session signing key is required")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &JWTIssuer{signingKey: signingKey, issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// IssueSession implements services.SessionIssuer.
func (j *JWTIssuer) IssueSession(_ context.Context, grant services.SessionGrant) (*services.IssuedSession, error) {
	if grant.AccountID == "" {
		return nil, errors.New("session grant has no account id")
	}

	now := j.now().UTC()
	ttl := j.ttl
	if grant.ExpiresIn > 0 && time.Duration(grant.ExpiresIn)*time.Second < ttl {
		ttl = time.Duration(grant.ExpiresIn) * time.Second
	}
	expiresAt := now.Add(ttl)
	sessionID := uuid.NewString()

	claims := jwt.RegisteredClaims{
		Issuer:    j.issuer,
		Subject:   grant.AccountID,
		ID:        sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.signingKey)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}

	return &services.IssuedSession{
		Token:     token,
		SessionID: sessionID,
		ExpiresAt: expiresAt,
	}, nil
}

// SetClock overrides the time source. Tests only.
func (j *JWTIssuer) SetClock(now func() time.Time) {
	j.now = now
}

// Verify parses and validates a session token, returning the account ID it
// was issued for.
func (j *JWTIssuer) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return j.signingKey, nil
	}, jwt.WithTimeFunc(func() time.Time { return j.now() }))
	if err != nil || !token.Valid {
		return "", ErrInvalidSession
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidSession
	}
	return claims.Subject, nil
}

var _ services.SessionIssuer = (*JWTIssuer)(nil)
