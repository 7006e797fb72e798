package portal

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

const (
	csrfLocalsKey = "csrf"
	csrfFormField = "_csrf"
)

// Wizard form actions
const (
	ActionNext        = "next"
	ActionBack        = "back"
	ActionFinish      = "finish"
	ActionSkip        = "skip"
	ActionRemoveImage = "remove_image"
	ActionUpload      = "upload"
)

// AuthControllerRoutes holds the route paths
type AuthControllerRoutes struct {
	Home     string
	Login    string
	Logout   string
	Register string
}

// AuthControllerViews holds the template names
type AuthControllerViews struct {
	Login     string
	Register  string
	Dashboard string
	Loading   string
	Error     string
}

func defaultViews() *AuthControllerViews {
	return &AuthControllerViews{
		Login:     "login",
		Register:  "register",
		Dashboard: "home",
		Loading:   "loading",
		Error:     "errors/500",
	}
}

type AuthController struct {
	Debug         bool
	Logger        Logger
	Routes        *AuthControllerRoutes
	Views         *AuthControllerViews
	Auther        *RouteAuthenticator
	Drafts        DraftStore
	Limiter       *LoginRateLimiter
	DraftCookie   string
	CSRF          bool
	StoreFactory  StoreFactory
	WizardOptions []WizardOption
}

type AuthControllerOption func(*AuthController) *AuthController

// WithDebug dumps form payloads to the logger.
func WithDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

// WithControllerLogger sets the controller logger.
func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithDraftStore sets where wizard drafts live between requests.
func WithDraftStore(store DraftStore) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if store != nil {
			c.Drafts = store
		}
		return c
	}
}

// WithLoginRateLimiter throttles POST login requests.
func WithLoginRateLimiter(limiter *LoginRateLimiter) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Limiter = limiter
		return c
	}
}

// WithCSRF toggles the CSRF middleware.
func WithCSRF(enabled bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.CSRF = enabled
		return c
	}
}

// WithStoreFactory overrides how request session stores are built.
func WithStoreFactory(factory StoreFactory) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.StoreFactory = factory
		return c
	}
}

// WithWizardOptions passes options to every wizard built by the controller.
func WithWizardOptions(opts ...WizardOption) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.WizardOptions = append(c.WizardOptions, opts...)
		return c
	}
}

// NewAuthController returns a controller bound to auther. Routes come from
// the authenticator config.
func NewAuthController(auther *RouteAuthenticator, opts ...AuthControllerOption) *AuthController {
	if auther == nil {
		panic("Missing RouteAuthenticator in auth controller...")
	}

	cfg := auther.Config()
	c := &AuthController{
		Logger: auther.Logger,
		Auther: auther,
		Routes: &AuthControllerRoutes{
			Home:     cfg.GetProtectedRoot(),
			Login:    cfg.GetLoginRoute(),
			Logout:   cfg.GetLogoutRoute(),
			Register: cfg.GetRegisterRoute(),
		},
		Views:       auther.Views,
		Drafts:      NewMemoryDraftStore(cfg.GetDraftTTL()),
		DraftCookie: "portal_draft",
		CSRF:        true,
	}

	for _, opt := range opts {
		c = opt(c)
	}

	c.WizardOptions = append([]WizardOption{
		WithPhoneRegion(cfg.GetPhoneRegion()),
		WithWizardLogger(c.Logger),
	}, c.WizardOptions...)

	return c
}

// RegisterAuthRoutes mounts the portal routes on app.
func RegisterAuthRoutes(app fiber.Router, auther *RouteAuthenticator, opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(auther, opts...)
	controller.Mount(app)
	return controller
}

// Mount installs the middlewares and routes of the controller.
func (a *AuthController) Mount(app fiber.Router) {
	if a.CSRF {
		app.Use(csrf.New(csrf.Config{
			KeyLookup:      "form:" + csrfFormField,
			CookieName:     "portal_csrf",
			CookieSameSite: "Lax",
			CookieHTTPOnly: true,
			Expiration:     time.Hour,
			ContextKey:     csrfLocalsKey,
		}))
	}

	app.Use(a.Auther.SessionMiddleware(a.StoreFactory))

	protected := a.Auther.ProtectedRoute()
	public := a.Auther.PublicOnly()

	app.Get(a.Routes.Home, protected, a.Dashboard)

	app.Get(a.Routes.Login, public, a.LoginShow)
	loginPost := []fiber.Handler{public}
	if a.Limiter != nil {
		loginPost = append(loginPost, a.Limiter.Middleware(a.loginLimited))
	}
	app.Post(a.Routes.Login, append(loginPost, a.LoginPost)...)

	app.Post(a.Routes.Logout, a.LogOut)

	app.Get(a.Routes.Register, public, a.RegistrationShow)
	app.Post(a.Routes.Register, public, a.RegistrationPost)

	app.Use(func(c *fiber.Ctx) error {
		return c.Redirect(a.Routes.Home, redirectStatus(c))
	})
}

func (a *AuthController) Dashboard(c *fiber.Ctx) error {
	user, ok := FromContext(c.UserContext())
	if !ok {
		return a.Auther.ErrorHandler(c, ErrSessionNotFound)
	}
	return c.Render(a.Views.Dashboard, a.viewContext(c, fiber.Map{
		"user": user,
	}))
}

func (a *AuthController) LoginShow(c *fiber.Ctx) error {
	return c.Render(a.Views.Login, a.viewContext(c, fiber.Map{
		"errors": nil,
		"record": LoginRequest{},
	}))
}

func (a *AuthController) LoginPost(c *fiber.Ctx) error {
	payload := new(LoginRequest)
	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("login parse payload", "error", err)
		return a.Auther.ErrorHandler(c, errors.Wrap(err, errors.CategoryBadInput, "Failed to parse form").
			WithCode(errors.CodeBadRequest))
	}

	if a.Debug {
		a.Logger.Debug("login payload", "payload", print.MaybePrettyJSON(LoginRequest{Identifier: payload.Identifier}))
	}

	record := LoginRequest{Identifier: payload.Identifier}

	if err := payload.Validate(); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).Render(a.Views.Login, a.viewContext(c, fiber.Map{
			"record":  record,
			"message": MsgFillAllFields,
		}))
	}

	store, err := SessionFromContext(c)
	if err != nil {
		return a.Auther.ErrorHandler(c, err)
	}

	if err := store.Login(c.UserContext(), payload.Identifier, payload.Password); err != nil {
		a.Logger.Info("login failed", "identifier", payload.Identifier, "kind", KindOf(err))
		return c.Status(fiber.StatusUnauthorized).Render(a.Views.Login, a.viewContext(c, fiber.Map{
			"record":  record,
			"message": LoginFailureMessage(err),
		}))
	}

	return c.Redirect(a.Auther.GetRedirect(c, a.Routes.Home), fiber.StatusSeeOther)
}

func (a *AuthController) loginLimited(c *fiber.Ctx) error {
	return c.Status(fiber.StatusTooManyRequests).Render(a.Views.Login, a.viewContext(c, fiber.Map{
		"record":  LoginRequest{Identifier: c.FormValue("identifier")},
		"message": MsgTooManyAttempts,
	}))
}

func (a *AuthController) LogOut(c *fiber.Ctx) error {
	store, err := SessionFromContext(c)
	if err != nil {
		return a.Auther.ErrorHandler(c, err)
	}
	store.Logout()
	return c.Redirect(a.Routes.Login, redirectStatus(c))
}

func (a *AuthController) RegistrationShow(c *fiber.Ctx) error {
	wizard, _, err := a.loadWizard(c)
	if err != nil {
		return a.Auther.ErrorHandler(c, err)
	}
	return a.renderWizard(c, wizard, fiber.StatusOK)
}

// RegistrationPost applies the posted fields to the draft wizard and runs
// the requested action.
func (a *AuthController) RegistrationPost(c *fiber.Ctx) error {
	wizard, draftID, err := a.loadWizard(c)
	if err != nil {
		return a.Auther.ErrorHandler(c, err)
	}

	values, err := postedValues(c)
	if err != nil {
		return a.Auther.ErrorHandler(c, errors.Wrap(err, errors.CategoryBadInput, "Failed to parse form").
			WithCode(errors.CodeBadRequest))
	}

	action := values["action"]
	delete(values, "action")
	delete(values, csrfFormField)

	if a.Debug {
		a.Logger.Debug("registration post", "action", action, "step", wizard.Step(), "fields", print.MaybePrettyJSON(redactedFields(values)))
	}

	// back keeps the draft as it is, the blank password inputs of step 2
	// must not overwrite it
	if action != ActionBack {
		if ignored := wizard.ApplyFields(values); len(ignored) > 0 {
			a.Logger.Debug("ignoring registration fields", "step", wizard.Step(), "fields", ignored)
		}
	}

	var actionErr error
	switch action {
	case ActionNext:
		actionErr = wizard.Next()
	case ActionBack:
		wizard.Back()
	case ActionRemoveImage:
		wizard.RemoveImage()
	case ActionUpload:
		actionErr = a.attachUpload(c, wizard)
	case ActionFinish:
		if actionErr = a.attachUpload(c, wizard); actionErr == nil {
			actionErr = wizard.Submit(c.UserContext())
		}
	case ActionSkip:
		actionErr = wizard.Skip(c.UserContext())
	default:
		// the enter key posts no action; the last step has nowhere to go
		if wizard.Step() == StepProfilePicture {
			actionErr = a.attachUpload(c, wizard)
		} else {
			actionErr = wizard.Next()
		}
	}

	if wizard.Completed() {
		if err := a.Drafts.Delete(c.UserContext(), draftID); err != nil {
			a.Logger.Warn("failed to delete registration draft", "error", err)
		}
		cookieDel(c, a.DraftCookie, a.Auther.Config().GetCookieSecure())
		return c.Redirect(a.Routes.Home, fiber.StatusSeeOther)
	}

	if err := a.Drafts.Save(c.UserContext(), draftID, wizard.Snapshot()); err != nil {
		return a.Auther.ErrorHandler(c, err)
	}

	if actionErr != nil {
		a.Logger.Debug("registration action failed", "action", action, "step", wizard.Step(), "error", actionErr)
		return a.renderWizard(c, wizard, fiber.StatusUnprocessableEntity)
	}

	return c.Redirect(a.Routes.Register, fiber.StatusSeeOther)
}

func (a *AuthController) attachUpload(c *fiber.Ctx, wizard *Wizard) error {
	fh, err := c.FormFile("profile_image")
	if err != nil || fh == nil || fh.Size == 0 {
		return nil
	}

	f, err := fh.Open()
	if err != nil {
		return WrapFailure(err, ErrInvalidImage)
	}
	defer f.Close()

	limit := wizard.MaxImageBytes()
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return WrapFailure(err, ErrInvalidImage)
	}
	return wizard.AttachImage(data)
}

func (a *AuthController) loadWizard(c *fiber.Ctx) (*Wizard, string, error) {
	store, err := SessionFromContext(c)
	if err != nil {
		return nil, "", err
	}

	draftID := c.Cookies(a.DraftCookie)
	if draftID != "" {
		snap, err := a.Drafts.Load(c.UserContext(), draftID)
		switch {
		case err == nil:
			return RestoreWizard(*snap, store, a.WizardOptions...), draftID, nil
		case !isDraftNotFound(err):
			return nil, "", err
		}
	}

	draftID = NewDraftID()
	setCookie(c, a.DraftCookie, draftID, time.Now().Add(a.Auther.Config().GetDraftTTL()), a.Auther.Config().GetCookieSecure())
	return NewWizard(store, a.WizardOptions...), draftID, nil
}

func (a *AuthController) renderWizard(c *fiber.Ctx, wizard *Wizard, status int) error {
	draft := wizard.Draft()
	draft.Password, draft.ConfirmPassword = "", ""

	var message string
	fields := map[string]string{}
	if stepErr := wizard.Error(); stepErr != nil {
		message = stepErr.Message
		for k, v := range stepErr.Fields {
			fields[k] = v
		}
	}

	preview := ""
	if draft.ProfileImage != nil {
		preview = draft.ProfileImage.Preview
	}

	step := wizard.Step()
	return c.Status(status).Render(a.Views.Register, a.viewContext(c, fiber.Map{
		"step":         int(step),
		"step_name":    step.String(),
		"record":       draft,
		"display_name": draft.DisplayName(),
		"business":     draft.AccountType == AccountBusiness,
		"preview":      preview,
		"message":      message,
		"errors":       fields,
	}))
}

func (a *AuthController) viewContext(c *fiber.Ctx, data fiber.Map) fiber.Map {
	for k, v := range TemplateHelpers() {
		if _, set := data[k]; !set {
			data[k] = v
		}
	}
	if user, ok := FromContext(c.UserContext()); ok {
		data[TemplateUserKey] = user
	}
	data["routes"] = a.Routes
	if token, ok := c.Locals(csrfLocalsKey).(string); ok {
		data["csrf_token"] = token
		data["csrf_field"] = csrfFormField
	}
	return data
}

func isDraftNotFound(err error) bool {
	return IsFailure(err, ErrDraftNotFound)
}

// postedValues collects the first value of every posted form field for both
// urlencoded and multipart bodies.
func postedValues(c *fiber.Ctx) (map[string]string, error) {
	out := map[string]string{}

	if form, err := c.MultipartForm(); err == nil {
		for k, v := range form.Value {
			if len(v) > 0 {
				out[k] = v[0]
			}
		}
		return out, nil
	}

	ct := string(c.Request().Header.ContentType())
	if ct != "" && !isFormContentType(ct) {
		return nil, fmt.Errorf("unsupported content type %q", ct)
	}

	c.Request().PostArgs().VisitAll(func(key, value []byte) {
		k := string(key)
		if _, seen := out[k]; !seen {
			out[k] = string(value)
		}
	})
	return out, nil
}

func isFormContentType(ct string) bool {
	mt, _, _ := strings.Cut(ct, ";")
	mt = strings.TrimSpace(strings.ToLower(mt))
	return mt == fiber.MIMEApplicationForm || mt == fiber.MIMEMultipartForm
}

func redactedFields(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if k == FieldPassword || k == FieldConfirmPassword {
			v = "***"
		}
		out[k] = v
	}
	return out
}

// FiberErrorHandler adapts ErrorHandler for fiber.Config.
func (a *RouteAuthenticator) FiberErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if rerr := a.ErrorHandler(c, err); rerr != nil {
			a.Logger.Error("error view failed", "error", rerr)
			return c.Status(http.StatusInternalServerError).SendString(http.StatusText(http.StatusInternalServerError))
		}
		return nil
	}
}

var _ Registrar = (*SessionStore)(nil)
