package portal

import (
	"context"
	"fmt"
	"time"
)

// Logger is the structured logger used across the portal. Arguments after the
// message are key/value pairs, *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// User is the identity record exposed to views.
type User struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	Username    string      `json:"username,omitempty"`
	AccountType AccountType `json:"account_type,omitempty"`
}

// AuthResult is what the identity service returns for a successful
// authentication or account creation.
type AuthResult struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// Profile is the payload submitted to create an account.
type Profile struct {
	AccountType      AccountType `json:"account_type"`
	Name             string      `json:"name"`
	Username         string      `json:"username"`
	Email            string      `json:"email"`
	Phone            string      `json:"phone_number"`
	Password         string      `json:"password"`
	ProfileImage     []byte      `json:"profile_image,omitempty"`
	ProfileImageType string      `json:"profile_image_type,omitempty"`
}

// IdentityAPI is the remote identity service
type IdentityAPI interface {
	Authenticate(ctx context.Context, identifier, secret string) (*AuthResult, error)
	CreateAccount(ctx context.Context, profile Profile) (*AuthResult, error)
	ValidateToken(ctx context.Context, token string) (*User, error)
}

// TokenStorage persists the opaque session token on the client side.
type TokenStorage interface {
	Get() (string, bool)
	Set(token string) error
	Clear() error
}

// Config holds the portal options consumed by the HTTP layer
type Config interface {
	GetCookieName() string
	GetCookieDuration() time.Duration
	GetCookieSecure() bool
	GetRejectedRouteKey() string
	GetLoginRoute() string
	GetRegisterRoute() string
	GetLogoutRoute() string
	GetProtectedRoot() string
	GetRequestTimeout() time.Duration
	GetDraftTTL() time.Duration
	GetPhoneRegion() string
}

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] PORTAL " + line(msg, args))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] PORTAL " + line(msg, args))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] PORTAL " + line(msg, args))
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] PORTAL " + line(msg, args))
}

func line(msg string, args []any) string {
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			msg += fmt.Sprintf(" %v=%v", args[i], args[i+1])
			continue
		}
		msg += fmt.Sprintf(" %v", args[i])
	}
	return msg + "\n"
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// NopLogger returns a logger that discards everything.
func NopLogger() Logger {
	return nopLogger{}
}
