package idp

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	portal "github.com/goliatone/go-auth-portal"
	"github.com/goliatone/go-auth-portal/identity"
	goerrors "github.com/goliatone/go-errors"
)

// NewApp returns a fiber app serving the identity protocol.
func NewApp(svc *Service) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "go-auth-portal idp",
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return writeError(c, err)
		},
	})
	RegisterRoutes(app, svc)
	return app
}

// RegisterRoutes mounts the identity protocol on r.
func RegisterRoutes(r fiber.Router, svc *Service) {
	h := &handlers{svc: svc}
	r.Post(identity.PathSessions, h.createSession)
	r.Post(identity.PathAccounts, h.createAccount)
	r.Get(identity.PathCurrentSession, h.currentSession)
}

type handlers struct {
	svc *Service
}

func (h *handlers) createSession(c *fiber.Ctx) error {
	var req identity.SessionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}

	res, err := h.svc.Authenticate(c.UserContext(), req.Identifier, req.Secret)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(identity.AuthResponse{
		Token: res.Token,
		User:  identity.NewUserDTO(res.User),
	})
}

func (h *handlers) createAccount(c *fiber.Ctx) error {
	var req identity.AccountRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}

	res, err := h.svc.CreateAccount(c.UserContext(), req.Profile())
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(identity.AuthResponse{
		Token: res.Token,
		User:  identity.NewUserDTO(res.User),
	})
}

func (h *handlers) currentSession(c *fiber.Ctx) error {
	token, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return c.Status(http.StatusUnauthorized).JSON(identity.ErrorResponse{
			Error:    "missing bearer token",
			TextCode: portal.ErrInvalidCredentials.TextCode,
		})
	}

	user, err := h.svc.ValidateToken(c.UserContext(), strings.TrimSpace(token))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(identity.CurrentSessionResponse{User: identity.NewUserDTO(user)})
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(http.StatusBadRequest).JSON(identity.ErrorResponse{Error: err.Error()})
}

// writeError answers with the status carried by err. Server failures hide
// their cause.
func writeError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	body := identity.ErrorResponse{Error: err.Error()}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		body.Error = richErr.Message
		body.TextCode = richErr.TextCode
	}

	if status >= http.StatusInternalServerError {
		body.Error = http.StatusText(status)
	}
	return c.Status(status).JSON(body)
}

func statusFor(err error) int {
	var fiberErr *fiber.Error
	if goerrors.As(err, &fiberErr) {
		return fiberErr.Code
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code >= 400 {
		return richErr.Code
	}

	switch portal.KindOf(err) {
	case portal.FailureInvalidCredentials:
		return http.StatusUnauthorized
	case portal.FailureAccountRejected:
		return http.StatusConflict
	case portal.FailureInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
