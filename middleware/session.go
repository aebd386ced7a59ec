package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tabworks/authflow/session"
)

// accountIDContextKey is the echo context key the verified account ID is
// stored under.
const accountIDContextKey = "authflow_account_id"

// RequireSession returns an echo middleware that verifies the session
// cookie and stores the authenticated account ID on the context. Routes
// that act on behalf of an account, like scope elevation, sit behind it.
func RequireSession(issuer *session.JWTIssuer, cookieName string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing session")
			}
			accountID, err := issuer.Verify(cookie.Value)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid session")
			}
			c.Set(accountIDContextKey, accountID)
			return next(c)
		}
	}
}

// AccountID returns the account ID a verified session put on the context,
// or "" when the request carried no valid session.
func AccountID(c echo.Context) string {
	if v, ok := c.Get(accountIDContextKey).(string); ok {
		return v
	}
	return ""
}
