package errors

import (
	stderrors "errors"
	"fmt"
)

// FlowError is the error surfaced to clients when an authentication flow
// terminates. Code is a stable machine-readable identifier the frontend
// branches on; Description is for humans only.
type FlowError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`

	// Redirect is the caller-supplied destination to send the browser to
	// with the error code attached, when one is known at failure time.
	Redirect string `json:"-"`
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WithRedirect returns a copy of the error that carries the destination for
// the terminal redirect.
func (e *FlowError) WithRedirect(url string) *FlowError {
	c := *e
	c.Redirect = url
	return &c
}

// Stable flow error codes.
const (
	InvalidState    = "INVALID_STATE"
	InvalidProvider = "INVALID_PROVIDER"
	UserExists      = "USER_EXISTS"
	UserNotFound    = "USER_NOT_FOUND"
	AuthFailed      = "AUTH_FAILED"
	MissingEmail    = "MISSING_EMAIL"
	MissingData     = "MISSING_DATA"
	ServerError     = "SERVER_ERROR"
	DatabaseError   = "DATABASE_ERROR"
)

func NewInvalidState() *FlowError {
	return &FlowError{Code: InvalidState, Description: "The state parameter is missing, expired or already used"}
}

func NewInvalidProvider(name string) *FlowError {
	return &FlowError{Code: InvalidProvider, Description: fmt.Sprintf("Unsupported identity provider %q", name)}
}

func NewUserExists() *FlowError {
	return &FlowError{Code: UserExists, Description: "An account already exists for this identity"}
}

func NewUserNotFound() *FlowError {
	return &FlowError{Code: UserNotFound, Description: "No account exists for this identity"}
}

func NewAuthFailed(description string) *FlowError {
	return &FlowError{Code: AuthFailed, Description: description}
}

func NewMissingEmail() *FlowError {
	return &FlowError{Code: MissingEmail, Description: "The identity provider did not return an email address"}
}

func NewMissingData(description string) *FlowError {
	return &FlowError{Code: MissingData, Description: description}
}

func NewServerError(description string) *FlowError {
	return &FlowError{Code: ServerError, Description: description}
}

func NewDatabaseError() *FlowError {
	return &FlowError{Code: DatabaseError, Description: "A storage operation failed"}
}

// AsFlowError unwraps err to a FlowError if one is in its chain.
func AsFlowError(err error) (*FlowError, bool) {
	var fe *FlowError
	if stderrors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// CodeOf extracts the stable code from any error, falling back to
// SERVER_ERROR for errors that did not originate in a flow.
func CodeOf(err error) string {
	if fe, ok := AsFlowError(err); ok {
		return fe.Code
	}
	return ServerError
}
