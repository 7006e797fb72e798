package portal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedIdentity struct {
	user *User
}

func (f fixedIdentity) Authenticate(context.Context, string, string) (*AuthResult, error) {
	return nil, ErrInvalidCredentials
}

func (f fixedIdentity) CreateAccount(context.Context, Profile) (*AuthResult, error) {
	return nil, ErrAccountRejected
}

func (f fixedIdentity) ValidateToken(_ context.Context, token string) (*User, error) {
	if f.user == nil || token != "good" {
		return nil, ErrInvalidCredentials
	}
	return f.user, nil
}

func newTestAuthenticator(user *User) *RouteAuthenticator {
	return NewHTTPAuthenticator(fixedIdentity{user: user}, DefaultSettings()).WithLogger(NopLogger())
}

func TestNewHTTPAuthenticator(t *testing.T) {
	auther := newTestAuthenticator(nil)
	assert.Equal(t, "/login", auther.Config().GetLoginRoute())
	assert.NotNil(t, auther.ErrorHandler)
	assert.Equal(t, "loading", auther.Views.Loading)
}

func TestRouteAuthenticator_LoadingBeforeRestore(t *testing.T) {
	auther := newTestAuthenticator(nil)
	app := NewApp(auther, nil)

	// a store that was never restored is still loading
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(sessionLocalsKey, NewSessionStore(auther.api, NewCookieTokenStorage(c, auther.cfg)))
		return c.Next()
	})
	app.Get("/", auther.ProtectedRoute(), func(c *fiber.Ctx) error {
		return c.SendString("secret")
	})
	app.Get("/login", auther.PublicOnly(), func(c *fiber.Ctx) error {
		return c.SendString("login form")
	})

	for _, path := range []string{"/", "/login"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, "1", resp.Header.Get("Refresh"), path)
		assert.Empty(t, resp.Header.Get(fiber.HeaderLocation), path)
	}
}

func TestRouteAuthenticator_ProtectedRoute(t *testing.T) {
	auther := newTestAuthenticator(&User{ID: "u-1", Name: "Alice"})
	app := NewApp(auther, nil)
	app.Use(auther.SessionMiddleware(nil))
	app.All("/", auther.ProtectedRoute(), func(c *fiber.Ctx) error {
		store, err := SessionFromContext(c)
		if err != nil {
			return err
		}
		return c.SendString(store.User().Name)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "portal_session", Value: "good"})
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get(fiber.HeaderLocation))

	var rejected bool
	for _, c := range resp.Cookies() {
		rejected = rejected || c.Name == "portal_rejected_route"
	}
	assert.False(t, rejected, "only GET requests are remembered")
}

func TestRouteAuthenticator_GetRedirect(t *testing.T) {
	auther := newTestAuthenticator(nil)
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(auther.GetRedirect(c, "/home"))
	})

	tests := []struct {
		name   string
		cookie string
		want   string
	}{
		{"no cookie", "", "/home"},
		{"local path", "/reports?id=1", "/reports?id=1"},
		{"absolute url", "https://evil.example/", "/home"},
		{"protocol relative", "//evil.example/", "/home"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "portal_rejected_route", Value: tt.cookie})
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)

			body := make([]byte, 64)
			n, _ := resp.Body.Read(body)
			assert.Equal(t, tt.want, string(body[:n]))
		})
	}
}

func TestSessionFromContext_Missing(t *testing.T) {
	auther := newTestAuthenticator(nil)
	app := NewApp(auther, nil)
	app.Get("/", auther.ProtectedRoute())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestCookieTokenStorage(t *testing.T) {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/", func(c *fiber.Ctx) error {
		s := NewCookieTokenStorage(c, DefaultSettings())
		if _, ok := s.Get(); ok {
			return c.SendStatus(http.StatusConflict)
		}
		if err := s.Set("tok"); err != nil {
			return err
		}
		if tok, ok := s.Get(); !ok || tok != "tok" {
			return c.SendStatus(http.StatusExpectationFailed)
		}
		return c.SendStatus(http.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	cookies := resp.Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "portal_session", cookies[0].Name)
	assert.Equal(t, "tok", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}
