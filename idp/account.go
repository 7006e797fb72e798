package idp

import (
	"strings"
	"time"

	portal "github.com/goliatone/go-auth-portal"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Account is the identity record kept by the development provider.
type Account struct {
	bun.BaseModel    `bun:"table:accounts,alias:acc"`
	ID               uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AccountType      string     `bun:"account_type,notnull" json:"account_type,omitempty"`
	Name             string     `bun:"name,notnull" json:"name,omitempty"`
	Username         string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email            string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone            string     `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash     string     `bun:"password_hash,notnull" json:"-"`
	ProfileImage     []byte     `bun:"profile_image" json:"-"`
	ProfileImageType string     `bun:"profile_image_type" json:"profile_image_type,omitempty"`
	LoginAttempts    int        `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt   *time.Time `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt       *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt        *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt        *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt        *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// User maps the account to the record exposed to the portal.
func (a *Account) User() *portal.User {
	if a == nil {
		return nil
	}
	return &portal.User{
		ID:          a.ID.String(),
		Name:        a.Name,
		Email:       a.Email,
		Username:    a.Username,
		AccountType: portal.AccountType(a.AccountType),
	}
}

// NewAccount builds an unsaved account from a registration profile. Email is
// stored lower cased, the username falls back to the email local part.
func NewAccount(p portal.Profile) *Account {
	email := strings.ToLower(strings.TrimSpace(p.Email))
	accountType := p.AccountType
	if accountType == "" {
		accountType = portal.AccountIndividual
	}
	return &Account{
		AccountType:      string(accountType),
		Name:             strings.TrimSpace(p.Name),
		Username:         usernameFor(p.Username, email),
		Email:            email,
		Phone:            strings.TrimSpace(p.Phone),
		ProfileImage:     p.ProfileImage,
		ProfileImageType: p.ProfileImageType,
	}
}

func usernameFor(username, email string) string {
	if u := strings.TrimSpace(username); u != "" {
		return u
	}
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}

func prepareAccountDefaults(record *Account) {
	if record == nil {
		return
	}
	if record.AccountType == "" {
		record.AccountType = string(portal.AccountIndividual)
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
