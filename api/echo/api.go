//nolint:varnamelen
package echo

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/tabworks/authflow/domain"
	flowerr "github.com/tabworks/authflow/errors"
	"github.com/tabworks/authflow/middleware"
	"github.com/tabworks/authflow/services"
)

// SessionCookieName carries the issued session token to the browser.
const SessionCookieName = "authflow_session"

// AuthAPI exposes the handshake flows over HTTP. It is a thin adapter: all
// decisions live in the flow service, the handlers only move query
// parameters in and redirects out.
type AuthAPI struct {
	flows *services.FlowService
}

// NewAuthAPI initializes the auth API.
func NewAuthAPI(flows *services.FlowService) *AuthAPI {
	return &AuthAPI{flows: flows}
}

// RegisterRoutes registers the auth routes. sessionMW, when given, guards
// the permission-elevation route, which acts on behalf of an
// already-authenticated account.
func (a *AuthAPI) RegisterRoutes(e *echo.Echo, sessionMW ...echo.MiddlewareFunc) {
	g := e.Group("/auth")
	g.GET("/signup/:provider", a.SignUpInitHandler)
	g.GET("/signup", a.SignUpFinalizeHandler)
	g.GET("/signin/:provider", a.SignInInitHandler)
	g.GET("/signin", a.SignInFinalizeHandler)
	g.GET("/callback/:provider", a.CallbackHandler)
	g.GET("/permission/:service/:scopeLevel", a.PermissionInitHandler, sessionMW...)
	g.GET("/callback/permission/:provider", a.PermissionCallbackHandler)
}

// SignUpInitHandler starts a sign-up flow and redirects the browser to the
// provider's consent screen.
func (a *AuthAPI) SignUpInitHandler(c echo.Context) error {
	return a.beginAuth(c, domain.AuthTypeSignUp)
}

// SignInInitHandler starts a sign-in flow.
func (a *AuthAPI) SignInInitHandler(c echo.Context) error {
	return a.beginAuth(c, domain.AuthTypeSignIn)
}

func (a *AuthAPI) beginAuth(c echo.Context, authType domain.AuthType) error {
	authURL, err := a.flows.BeginAuth(
		c.Request().Context(),
		c.Param("provider"),
		authType,
		c.QueryParam("redirectUrl"),
	)
	if err != nil {
		return a.failure(c, err)
	}
	return c.Redirect(http.StatusFound, authURL)
}

// CallbackHandler receives the provider redirect for sign-up and sign-in
// flows and forwards the browser to the frontend finalize page with a
// fresh state token.
func (a *AuthAPI) CallbackHandler(c echo.Context) error {
	res, err := a.flows.HandleAuthCallback(
		c.Request().Context(),
		c.Param("provider"),
		c.QueryParam("state"),
		c.QueryParam("code"),
	)
	if err != nil {
		return a.failure(c, err)
	}
	return c.Redirect(http.StatusFound, res.RedirectTo)
}

// SignUpFinalizeHandler completes a sign-up from its state token, sets the
// session cookie and redirects to the caller's destination.
func (a *AuthAPI) SignUpFinalizeHandler(c echo.Context) error {
	res, err := a.flows.FinalizeSignUp(c.Request().Context(), c.QueryParam("state"))
	if err != nil {
		return a.failure(c, err)
	}
	return a.complete(c, res)
}

// SignInFinalizeHandler completes a sign-in from its state token.
func (a *AuthAPI) SignInFinalizeHandler(c echo.Context) error {
	res, err := a.flows.FinalizeSignIn(c.Request().Context(), c.QueryParam("state"))
	if err != nil {
		return a.failure(c, err)
	}
	return a.complete(c, res)
}

// PermissionInitHandler starts a scope-elevation flow for one service. The
// account comes from the accountId query parameter, or from the verified
// session when the route is behind the session middleware.
func (a *AuthAPI) PermissionInitHandler(c echo.Context) error {
	accountID := c.QueryParam("accountId")
	if accountID == "" {
		accountID = middleware.AccountID(c)
	}
	authURL, err := a.flows.BeginPermission(
		c.Request().Context(),
		c.Param("service"),
		c.Param("scopeLevel"),
		accountID,
		c.QueryParam("redirectUrl"),
	)
	if err != nil {
		return a.failure(c, err)
	}
	return c.Redirect(http.StatusFound, authURL)
}

// PermissionCallbackHandler receives the provider redirect for permission
// flows; on success the elevated tokens are already persisted.
func (a *AuthAPI) PermissionCallbackHandler(c echo.Context) error {
	res, err := a.flows.HandlePermissionCallback(
		c.Request().Context(),
		c.Param("provider"),
		c.QueryParam("state"),
		c.QueryParam("code"),
	)
	if err != nil {
		return a.failure(c, err)
	}
	return a.complete(c, res)
}

// complete sets the session cookie and sends the browser back to the
// caller-supplied destination.
func (a *AuthAPI) complete(c echo.Context, res *services.FinalizeResult) error {
	if res.Session != nil {
		c.SetCookie(&http.Cookie{
			Name:     SessionCookieName,
			Value:    res.Session.Token,
			Path:     "/",
			Expires:  res.Session.ExpiresAt,
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return c.Redirect(http.StatusFound, res.RedirectURL)
}

// failure terminates the flow for the client. When the flow knows the
// caller's redirect destination the error code travels there as a query
// parameter; otherwise the client gets a 400 with the structured error.
func (a *AuthAPI) failure(c echo.Context, err error) error {
	fe, ok := flowerr.AsFlowError(err)
	if !ok {
		log.Error().Err(err).Msg("Unclassified flow failure")
		fe = flowerr.NewServerError("Unexpected failure")
	}
	if fe.Redirect != "" {
		return c.Redirect(http.StatusFound, errorRedirect(fe.Redirect, fe.Code))
	}
	status := http.StatusBadRequest
	if fe.Code == flowerr.ServerError || fe.Code == flowerr.DatabaseError {
		status = http.StatusInternalServerError
	}
	return c.JSON(status, fe)
}

func errorRedirect(dest, code string) string {
	u, err := url.Parse(dest)
	if err != nil {
		return dest
	}
	q := u.Query()
	q.Set("error", code)
	u.RawQuery = q.Encode()
	return u.String()
}
