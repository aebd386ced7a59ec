package federation

import "errors"

var (
	ErrProviderNotFound      = errors.New("provider not found or not configured")
	ErrProviderMisconfigured = errors.New("provider is misconfigured")
	ErrExchangeCodeFailed    = errors.New("failed to exchange authorization code for token")
	ErrFetchIdentityFailed   = errors.New("failed to fetch identity from provider")
	ErrUnknownScope          = errors.New("unknown service or scope level")
)
