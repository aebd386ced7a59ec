package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabworks/authflow/middleware"
	"github.com/tabworks/authflow/services"
	"github.com/tabworks/authflow/session"
)

const cookieName = "test_session"

func newGuardedEcho(t *testing.T) (*echo.Echo, *session.JWTIssuer) {
	t.Helper()
	issuer, err := session.NewJWTIssuer([]byte("test-signing-key"), "authflow-test", time.Hour)
	require.NoError(t, err)

	e := echo.New()
	e.GET("/whoami", func(c echo.Context) error {
		return c.String(http.StatusOK, middleware.AccountID(c))
	}, middleware.RequireSession(issuer, cookieName))
	return e, issuer
}

func TestRequireSession_NoCookie(t *testing.T) {
	e, _ := newGuardedEcho(t)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireSession_BadToken(t *testing.T) {
	e, _ := newGuardedEcho(t)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: "garbage"})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireSession_ValidToken(t *testing.T) {
	e, issuer := newGuardedEcho(t)

	issued, err := issuer.IssueSession(context.Background(), services.SessionGrant{AccountID: "acc-42"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: issued.Token})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acc-42", rec.Body.String())
}
