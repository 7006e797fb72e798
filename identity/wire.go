package identity

import (
	portal "github.com/goliatone/go-auth-portal"
)

// Paths of the portal identity protocol.
const (
	PathSessions       = "/v1/sessions"
	PathAccounts       = "/v1/accounts"
	PathCurrentSession = "/v1/sessions/current"
)

// SessionRequest is the body of POST /v1/sessions.
type SessionRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

// AccountRequest is the body of POST /v1/accounts. The profile image travels
// base64 encoded, which encoding/json does for byte slices.
type AccountRequest struct {
	AccountType      string `json:"account_type"`
	Name             string `json:"name"`
	Username         string `json:"username"`
	Email            string `json:"email"`
	Phone            string `json:"phone_number,omitempty"`
	Password         string `json:"password"`
	ProfileImage     []byte `json:"profile_image,omitempty"`
	ProfileImageType string `json:"profile_image_type,omitempty"`
}

// UserDTO is the user record on the wire.
type UserDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Username    string `json:"username,omitempty"`
	AccountType string `json:"account_type,omitempty"`
}

// AuthResponse answers session and account creation.
type AuthResponse struct {
	Token string   `json:"token"`
	User  *UserDTO `json:"user"`
}

// CurrentSessionResponse answers GET /v1/sessions/current.
type CurrentSessionResponse struct {
	User *UserDTO `json:"user"`
}

// ErrorResponse is returned with every non 2xx status.
type ErrorResponse struct {
	Error    string `json:"error"`
	TextCode string `json:"text_code,omitempty"`
}

// NewAccountRequest maps a profile to its wire form.
func NewAccountRequest(p portal.Profile) AccountRequest {
	return AccountRequest{
		AccountType:      string(p.AccountType),
		Name:             p.Name,
		Username:         p.Username,
		Email:            p.Email,
		Phone:            p.Phone,
		Password:         p.Password,
		ProfileImage:     p.ProfileImage,
		ProfileImageType: p.ProfileImageType,
	}
}

// Profile maps the request back to a profile.
func (r AccountRequest) Profile() portal.Profile {
	return portal.Profile{
		AccountType:      portal.AccountType(r.AccountType),
		Name:             r.Name,
		Username:         r.Username,
		Email:            r.Email,
		Phone:            r.Phone,
		Password:         r.Password,
		ProfileImage:     r.ProfileImage,
		ProfileImageType: r.ProfileImageType,
	}
}

// NewUserDTO maps a user to its wire form, nil stays nil.
func NewUserDTO(u *portal.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Username:    u.Username,
		AccountType: string(u.AccountType),
	}
}

// User maps the DTO to a portal user, nil stays nil.
func (u *UserDTO) User() *portal.User {
	if u == nil {
		return nil
	}
	return &portal.User{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Username:    u.Username,
		AccountType: portal.AccountType(u.AccountType),
	}
}
