package portal_test

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	portal "github.com/goliatone/go-auth-portal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// browser keeps cookies between app.Test calls.
type browser struct {
	t       *testing.T
	app     *fiber.App
	cookies map[string]string
}

func newPortal(t *testing.T, idp *stubIdentity, opts ...portal.AuthControllerOption) *browser {
	t.Helper()
	auther := portal.NewHTTPAuthenticator(idp, portal.DefaultSettings()).
		WithLogger(portal.NopLogger())

	app := portal.NewApp(auther, nil)
	portal.RegisterAuthRoutes(app, auther, append([]portal.AuthControllerOption{portal.WithCSRF(false)}, opts...)...)

	return &browser{t: t, app: app, cookies: map[string]string{}}
}

func aliceIdentity() *stubIdentity {
	idp := newStubIdentity()
	idp.add("alice", "secret1", portal.User{ID: "u-1", Name: "Alice", Email: "alice@example.com", Username: "alice"})
	return idp
}

func (b *browser) send(req *http.Request) (*http.Response, string) {
	b.t.Helper()
	for name, value := range b.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	resp, err := b.app.Test(req, -1)
	require.NoError(b.t, err)

	for _, c := range resp.Cookies() {
		if c.Value == "" || (!c.Expires.IsZero() && c.Expires.Before(time.Now())) {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c.Value
	}

	body, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	return resp, string(body)
}

func (b *browser) get(target string) (*http.Response, string) {
	return b.send(httptest.NewRequest(http.MethodGet, target, nil))
}

func (b *browser) post(target string, form url.Values) (*http.Response, string) {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	return b.send(req)
}

func (b *browser) login(identifier, password string) (*http.Response, string) {
	return b.post("/login", url.Values{"identifier": {identifier}, "password": {password}})
}

func TestLoginPage_RendersForAnonymous(t *testing.T) {
	b := newPortal(t, aliceIdentity())

	resp, body := b.get("/login")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Welcome Back")
	assert.Contains(t, body, `action="/login"`)
}

func TestLogin_WrongPassword(t *testing.T) {
	b := newPortal(t, aliceIdentity())

	resp, body := b.login("alice", "nope")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, portal.MsgInvalidLogin)
	assert.Contains(t, body, `value="alice"`)
	assert.NotContains(t, b.cookies, "portal_session")
}

func TestLogin_UnknownUserLooksTheSame(t *testing.T) {
	b := newPortal(t, aliceIdentity())

	resp, body := b.login("mallory", "secret1")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, portal.MsgInvalidLogin)
}

func TestLogin_IdentityDown(t *testing.T) {
	idp := aliceIdentity()
	idp.down = true
	b := newPortal(t, idp)

	resp, body := b.login("alice", "secret1")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, portal.MsgInvalidLogin)
}

func TestLogin_MissingFields(t *testing.T) {
	b := newPortal(t, aliceIdentity())

	resp, body := b.login("   ", "secret1")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, portal.MsgFillAllFields)
}

func TestLogin_SuccessThenDashboard(t *testing.T) {
	b := newPortal(t, aliceIdentity())

	resp, _ := b.login("alice", "secret1")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get(fiber.HeaderLocation))
	require.Contains(t, b.cookies, "portal_session")

	resp, body := b.get("/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Welcome, Alice!")
	assert.Contains(t, body, "alice@example.com")
}

func TestDashboard_AnonymousGoesToLoginAndBack(t *testing.T) {
	b := newPortal(t, aliceIdentity())

	resp, _ := b.get("/?tab=profile")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get(fiber.HeaderLocation))
	assert.Equal(t, "/?tab=profile", b.cookies["portal_rejected_route"])

	resp, _ = b.login("alice", "secret1")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/?tab=profile", resp.Header.Get(fiber.HeaderLocation))
	assert.NotContains(t, b.cookies, "portal_rejected_route")
}

func TestDashboard_StaleCookieIsCleared(t *testing.T) {
	b := newPortal(t, aliceIdentity())
	b.cookies["portal_session"] = "tok-forged"

	resp, _ := b.get("/")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get(fiber.HeaderLocation))
	assert.NotContains(t, b.cookies, "portal_session")
}

func TestPublicRoutes_RedirectSignedInUsers(t *testing.T) {
	b := newPortal(t, aliceIdentity())
	b.login("alice", "secret1")

	for _, path := range []string{"/login", "/register"} {
		resp, _ := b.get(path)
		assert.Equal(t, http.StatusFound, resp.StatusCode, path)
		assert.Equal(t, "/", resp.Header.Get(fiber.HeaderLocation), path)
	}
}

func TestUnknownPathRedirectsHome(t *testing.T) {
	b := newPortal(t, aliceIdentity())

	resp, _ := b.get("/does/not/exist")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get(fiber.HeaderLocation))
}

func TestLogout(t *testing.T) {
	b := newPortal(t, aliceIdentity())
	b.login("alice", "secret1")

	// a plain link cannot sign the user out
	resp, _ := b.get("/logout")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get(fiber.HeaderLocation))
	require.Contains(t, b.cookies, "portal_session")

	resp, _ = b.post("/logout", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get(fiber.HeaderLocation))
	assert.NotContains(t, b.cookies, "portal_session")

	resp, _ = b.get("/")
	assert.Equal(t, "/login", resp.Header.Get(fiber.HeaderLocation))
}

func TestLogin_RateLimited(t *testing.T) {
	limiter := portal.NewLoginRateLimiter(rate.Every(time.Hour), 1)
	b := newPortal(t, aliceIdentity(), portal.WithLoginRateLimiter(limiter))

	resp, _ := b.login("alice", "nope")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := b.login("alice", "secret1")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Contains(t, body, portal.MsgTooManyAttempts)
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderRetryAfter))
}

func TestRegistration_FullFlow(t *testing.T) {
	idp := aliceIdentity()
	b := newPortal(t, idp)

	resp, body := b.get("/register")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Create Your Account")
	require.Contains(t, b.cookies, "portal_draft")

	resp, _ = b.post("/register", url.Values{
		"action":       {"next"},
		"account_type": {"business"},
		"display_name": {"Acme Ltd"},
		"username":     {"acme"},
		"email":        {"ops@acme.test"},
		"phone_number": {"98765 43210"},
	})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/register", resp.Header.Get(fiber.HeaderLocation))

	resp, body = b.get("/register")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Secure Your Account")

	resp, body = b.post("/register", url.Values{
		"action":           {"next"},
		"password":         {"abcde"},
		"confirm_password": {"abcde"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, portal.MsgPasswordTooShort)
	assert.NotContains(t, body, "abcde")

	resp, _ = b.post("/register", url.Values{"action": {"back"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	_, body = b.get("/register")
	assert.Contains(t, body, `value="Acme Ltd"`)
	assert.Contains(t, body, "Company Name")

	b.post("/register", url.Values{"action": {"next"}})
	resp, _ = b.post("/register", url.Values{
		"action":           {"next"},
		"password":         {"secret1"},
		"confirm_password": {"secret1"},
	})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	_, body = b.get("/register")
	assert.Contains(t, body, "Add a Profile Picture")

	resp, _ = b.post("/register", url.Values{"action": {"finish"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get(fiber.HeaderLocation))
	assert.NotContains(t, b.cookies, "portal_draft")
	require.Contains(t, b.cookies, "portal_session")

	profiles := idp.profiles()
	require.Len(t, profiles, 1)
	assert.Equal(t, "Acme Ltd", profiles[0].Name)
	assert.Equal(t, portal.AccountBusiness, profiles[0].AccountType)
	assert.Equal(t, "+919876543210", profiles[0].Phone)

	resp, body = b.get("/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Welcome, Acme Ltd!")
	assert.Contains(t, body, `<span class="avatar">AL</span>`)
}

// registerToStep3 walks a fresh browser through the first two steps.
func registerToStep3(t *testing.T, b *browser) {
	t.Helper()
	b.get("/register")

	resp, _ := b.post("/register", url.Values{
		"action":       {"next"},
		"account_type": {"individual"},
		"display_name": {"Bob Stone"},
		"username":     {"bob"},
		"email":        {"bob@example.com"},
		"phone_number": {"98765 43210"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp, _ = b.post("/register", url.Values{
		"action":           {"next"},
		"password":         {"secret1"},
		"confirm_password": {"secret1"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	_, body := b.get("/register")
	require.Contains(t, body, "Add a Profile Picture")
}

func TestRegistration_OutOfStepFieldsAreIgnored(t *testing.T) {
	idp := aliceIdentity()
	b := newPortal(t, idp)
	registerToStep3(t, b)

	resp, _ := b.post("/register", url.Values{
		"action":           {"skip"},
		"account_type":     {"business"},
		"password":         {"a"},
		"confirm_password": {"zzz"},
		"username":         {""},
		"email":            {""},
	})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get(fiber.HeaderLocation))

	profiles := idp.profiles()
	require.Len(t, profiles, 1)
	assert.Equal(t, "secret1", profiles[0].Password)
	assert.Equal(t, "bob", profiles[0].Username)
	assert.Equal(t, "bob@example.com", profiles[0].Email)
	assert.Equal(t, "Bob Stone", profiles[0].Name)
	assert.Equal(t, portal.AccountIndividual, profiles[0].AccountType)
}

func TestRegistration_StepOneFieldsIgnoredAtCredentials(t *testing.T) {
	b := newPortal(t, aliceIdentity())
	b.get("/register")

	b.post("/register", url.Values{
		"action":       {"next"},
		"display_name": {"Bob Stone"},
		"username":     {"bob"},
		"email":        {"bob@example.com"},
		"phone_number": {"123"},
	})

	// switching the type here would expose the never validated company name
	b.post("/register", url.Values{"action": {"back"}, "account_type": {"business"}})
	_, body := b.get("/register")
	assert.Contains(t, body, `value="Bob Stone"`)
	assert.NotContains(t, body, "Company Name")
}

func TestRegistration_BackKeepsPasswords(t *testing.T) {
	idp := aliceIdentity()
	b := newPortal(t, idp)
	registerToStep3(t, b)

	// rendered password inputs are blank, so every back posts them empty
	for i := 0; i < 2; i++ {
		resp, _ := b.post("/register", url.Values{
			"action":           {"back"},
			"password":         {""},
			"confirm_password": {""},
		})
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	}

	_, body := b.get("/register")
	require.Contains(t, body, "Create Your Account")

	resp, _ := b.post("/register", url.Values{"action": {"next"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp, body = b.post("/register", url.Values{"action": {"next"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.NotContains(t, body, portal.MsgFillBothPasswords)

	_, body = b.get("/register")
	assert.Contains(t, body, "Add a Profile Picture")

	b.post("/register", url.Values{"action": {"finish"}})
	require.Len(t, idp.profiles(), 1)
	assert.Equal(t, "secret1", idp.profiles()[0].Password)
}

func TestRegistration_EnterAtLastStepRerenders(t *testing.T) {
	idp := aliceIdentity()
	b := newPortal(t, idp)
	registerToStep3(t, b)

	resp, _ := b.post("/register", url.Values{})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/register", resp.Header.Get(fiber.HeaderLocation))

	_, body := b.get("/register")
	assert.Contains(t, body, "Add a Profile Picture")
	assert.Empty(t, idp.profiles())
}

func TestRegistration_EmptyDisplayNameStaysOnStep1(t *testing.T) {
	b := newPortal(t, aliceIdentity())
	b.get("/register")

	resp, body := b.post("/register", url.Values{
		"action":       {"next"},
		"username":     {"bob"},
		"email":        {"bob@example.com"},
		"phone_number": {"123"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, portal.MsgFillRequiredFields)
	assert.Contains(t, body, "Create Your Account")
}

func TestRegistration_RejectedStaysOnStep3(t *testing.T) {
	idp := aliceIdentity()
	b := newPortal(t, idp)
	b.get("/register")

	b.post("/register", url.Values{
		"action":       {"next"},
		"display_name": {"Another Alice"},
		"username":     {"alice"},
		"email":        {"alice2@example.com"},
		"phone_number": {"123"},
	})
	b.post("/register", url.Values{
		"action":           {"next"},
		"password":         {"secret1"},
		"confirm_password": {"secret1"},
	})

	resp, body := b.post("/register", url.Values{"action": {"skip"}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, portal.MsgRegistrationFailed)
	assert.Contains(t, body, "Add a Profile Picture")
	assert.NotContains(t, b.cookies, "portal_session")
}

func TestRegistration_UploadPreview(t *testing.T) {
	b := newPortal(t, aliceIdentity())
	b.get("/register")

	b.post("/register", url.Values{
		"action":       {"next"},
		"display_name": {"Bob"},
		"username":     {"bob"},
		"email":        {"bob@example.com"},
		"phone_number": {"123"},
	})
	b.post("/register", url.Values{
		"action":           {"next"},
		"password":         {"secret1"},
		"confirm_password": {"secret1"},
	})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("action", "upload"))
	fw, err := mw.CreateFormFile("profile_image", "me.png")
	require.NoError(t, err)
	_, err = fw.Write(pngBytes(t, 40, 40))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/register", &buf)
	req.Header.Set(fiber.HeaderContentType, mw.FormDataContentType())
	resp, _ := b.send(req)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	_, body := b.get("/register")
	assert.Contains(t, body, "data:image/jpeg;base64,")
	assert.Contains(t, body, `value="remove_image"`)

	b.post("/register", url.Values{"action": {"remove_image"}})
	_, body = b.get("/register")
	assert.NotContains(t, body, "data:image/jpeg;base64,")
}

func TestCSRF_RejectsPostWithoutToken(t *testing.T) {
	b := newPortal(t, aliceIdentity(), portal.WithCSRF(true))

	resp, body := b.get("/login")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `name="_csrf"`)
	require.Contains(t, b.cookies, "portal_csrf")

	resp, _ = b.login("alice", "secret1")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = b.post("/login", url.Values{
		"identifier": {"alice"},
		"password":   {"secret1"},
		"_csrf":      {b.cookies["portal_csrf"]},
	})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}
