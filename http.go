package portal

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

const sessionLocalsKey = "portal.session"

// CookieTokenStorage keeps the session token in an HTTP only cookie of the
// current request. Writes are visible to later Get calls in the same request.
type CookieTokenStorage struct {
	c        *fiber.Ctx
	name     string
	duration time.Duration
	secure   bool
	token    string
	present  bool
}

// NewCookieTokenStorage reads the token cookie named by cfg from c.
func NewCookieTokenStorage(c *fiber.Ctx, cfg Config) *CookieTokenStorage {
	s := &CookieTokenStorage{
		c:        c,
		name:     cfg.GetCookieName(),
		duration: cfg.GetCookieDuration(),
		secure:   cfg.GetCookieSecure(),
	}
	s.token = c.Cookies(s.name)
	s.present = s.token != ""
	return s
}

func (s *CookieTokenStorage) Get() (string, bool) {
	return s.token, s.present
}

func (s *CookieTokenStorage) Set(token string) error {
	s.token, s.present = token, token != ""
	setCookie(s.c, s.name, token, time.Now().Add(s.duration), s.secure)
	return nil
}

func (s *CookieTokenStorage) Clear() error {
	s.token, s.present = "", false
	cookieDel(s.c, s.name, s.secure)
	return nil
}

// StoreFactory builds the session store of a request.
type StoreFactory func(c *fiber.Ctx) *SessionStore

// RouteAuthenticator wires session stores and guard decisions into fiber.
type RouteAuthenticator struct {
	api          IdentityAPI
	cfg          Config
	activitySink ActivitySink
	Logger       Logger
	ErrorHandler fiber.ErrorHandler
	Views        *AuthControllerViews
}

// NewHTTPAuthenticator returns an authenticator that talks to api.
func NewHTTPAuthenticator(api IdentityAPI, cfg Config) *RouteAuthenticator {
	a := &RouteAuthenticator{
		api:          api,
		cfg:          cfg,
		activitySink: noopActivitySink{},
		Logger:       defLogger{},
		Views:        defaultViews(),
	}
	a.ErrorHandler = a.defaultErrHandler
	return a
}

// WithActivitySink forwards session events of every request store to sink.
func (a *RouteAuthenticator) WithActivitySink(sink ActivitySink) *RouteAuthenticator {
	a.activitySink = normalizeActivitySink(sink)
	return a
}

// WithLogger overrides the logger
func (a *RouteAuthenticator) WithLogger(logger Logger) *RouteAuthenticator {
	if logger != nil {
		a.Logger = logger
	}
	return a
}

// Config returns the portal configuration
func (a *RouteAuthenticator) Config() Config {
	return a.cfg
}

// NewStore is the default StoreFactory: a store over the request cookie.
func (a *RouteAuthenticator) NewStore(c *fiber.Ctx) *SessionStore {
	return NewSessionStore(a.api, NewCookieTokenStorage(c, a.cfg),
		WithSessionLogger(a.Logger),
		WithSessionActivitySink(a.activitySink),
		WithRequestTimeout(a.cfg.GetRequestTimeout()),
	)
}

// SessionMiddleware builds the request store with factory, restores it and
// keeps it in the request locals.
func (a *RouteAuthenticator) SessionMiddleware(factory StoreFactory) fiber.Handler {
	if factory == nil {
		factory = a.NewStore
	}
	return func(c *fiber.Ctx) error {
		store := factory(c)
		store.Restore(c.UserContext())
		c.Locals(sessionLocalsKey, store)
		return c.Next()
	}
}

// SessionFromContext returns the store installed by SessionMiddleware.
func SessionFromContext(c *fiber.Ctx) (*SessionStore, error) {
	store, ok := c.Locals(sessionLocalsKey).(*SessionStore)
	if !ok || store == nil {
		return nil, ErrSessionNotFound
	}
	return store, nil
}

// ProtectedRoute lets signed in users through and sends everybody else to
// the login route, remembering where they were going.
func (a *RouteAuthenticator) ProtectedRoute() fiber.Handler {
	return func(c *fiber.Ctx) error {
		store, err := SessionFromContext(c)
		if err != nil {
			return a.ErrorHandler(c, err)
		}
		decision := ProtectedDecision(store.Snapshot(), a.cfg.GetLoginRoute())
		if decision.Kind == DecisionRedirect {
			a.SetRedirect(c)
		}
		return a.apply(c, decision)
	}
}

// PublicOnly keeps signed in users out of the login and registration pages.
func (a *RouteAuthenticator) PublicOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		store, err := SessionFromContext(c)
		if err != nil {
			return a.ErrorHandler(c, err)
		}
		return a.apply(c, PublicDecision(store.Snapshot(), a.cfg.GetProtectedRoot()))
	}
}

func (a *RouteAuthenticator) apply(c *fiber.Ctx, decision Decision) error {
	switch decision.Kind {
	case DecisionLoading:
		c.Set(fiber.HeaderCacheControl, "no-store")
		c.Set("Refresh", "1")
		return c.Render(a.Views.Loading, fiber.Map{})
	case DecisionRedirect:
		return c.Redirect(decision.Location, redirectStatus(c))
	default:
		if store, err := SessionFromContext(c); err == nil && store.User() != nil {
			c.SetUserContext(WithContext(c.UserContext(), store.User()))
		}
		return c.Next()
	}
}

// GetRedirect consumes the rejected route cookie, def is used when there is
// none or when it does not hold a local path.
func (a *RouteAuthenticator) GetRedirect(c *fiber.Ctx, def string) string {
	key := a.cfg.GetRejectedRouteKey()
	r := c.Cookies(key)
	if r == "" {
		return def
	}
	cookieDel(c, key, a.cfg.GetCookieSecure())
	if !isLocalPath(r) {
		return def
	}
	return r
}

// SetRedirect remembers the rejected URL for a short while. Only GET and
// HEAD requests are remembered.
func (a *RouteAuthenticator) SetRedirect(c *fiber.Ctx) {
	if !isSafeMethod(c) {
		return
	}
	key := a.cfg.GetRejectedRouteKey()
	a.Logger.Debug("setting redirect cookie", "key", key, "path", c.OriginalURL())
	setCookie(c, key, c.OriginalURL(), time.Now().Add(5*time.Minute), a.cfg.GetCookieSecure())
}

func (a *RouteAuthenticator) defaultErrHandler(c *fiber.Ctx, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		code := http.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(code)
	}

	code := richErr.Code
	if code < 400 || code > 599 {
		code = http.StatusInternalServerError
	}

	a.Logger.Error(
		"request failed",
		"path", c.OriginalURL(),
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	return c.Status(code).Render(a.Views.Error, fiber.Map{
		"error": richErr,
	})
}

func redirectStatus(c *fiber.Ctx) int {
	if isSafeMethod(c) {
		return http.StatusFound
	}
	return http.StatusSeeOther
}

func isSafeMethod(c *fiber.Ctx) bool {
	m := c.Method()
	return m == fiber.MethodGet || m == fiber.MethodHead
}

func isLocalPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.HasPrefix(p, "/\\")
}

func setCookie(c *fiber.Ctx, name, value string, expires time.Time, secure bool) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func cookieDel(c *fiber.Ctx, name string, secure bool) {
	setCookie(c, name, "", time.Now().Add(-time.Hour*(24*365)), secure)
}
