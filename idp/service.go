package idp

import (
	"context"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	portal "github.com/goliatone/go-auth-portal"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
)

// MinPasswordLength matches the registration wizard rule.
const MinPasswordLength = 6

// Service is the development identity provider. It satisfies
// portal.IdentityAPI so the front end can use it in process.
type Service struct {
	accounts  Accounts
	tokens    *TokenService
	cost      int
	useHashID bool
	logger    portal.Logger
}

// Option configures a Service
type Option func(*Service)

// WithPasswordCost sets the bcrypt cost for new accounts.
func WithPasswordCost(cost int) Option {
	return func(s *Service) {
		s.cost = cost
	}
}

// WithHashIDs derives account ids from the email so the same email always
// maps to the same id across databases.
func WithHashIDs(enabled bool) Option {
	return func(s *Service) {
		s.useHashID = enabled
	}
}

func WithLogger(logger portal.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService wires the provider over accounts and tokens.
func NewService(accounts Accounts, tokens *TokenService, opts ...Option) *Service {
	s := &Service{
		accounts: accounts,
		tokens:   tokens,
		cost:     DefaultPasswordCost,
		logger:   portal.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticate checks the password of the account matching identifier, which
// may be an email or a username. Unknown accounts and wrong passwords fail
// the same way.
func (s *Service) Authenticate(ctx context.Context, identifier, secret string) (*portal.AuthResult, error) {
	if identifier == "" || secret == "" {
		return nil, portal.WrapFailure(ErrAccountNotFound, portal.ErrInvalidCredentials)
	}

	account, err := s.accounts.GetByLogin(ctx, identifier)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			s.logger.Debug("login for unknown account", "identifier", identifier)
			return nil, portal.WrapFailure(ErrAccountNotFound, portal.ErrInvalidCredentials)
		}
		return nil, portal.WrapFailure(err, portal.ErrIdentityFailure)
	}

	if err := ComparePasswordAndHash(secret, account.PasswordHash); err != nil {
		if trackErr := s.accounts.TrackAttemptedLogin(ctx, account); trackErr != nil {
			s.logger.Error("track attempted login", "account", account.ID, "error", trackErr)
		}
		if portal.IsFailure(err, ErrMismatchedHashAndPassword) {
			return nil, portal.WrapFailure(err, portal.ErrInvalidCredentials)
		}
		return nil, portal.WrapFailure(err, portal.ErrIdentityFailure)
	}

	if err := s.accounts.TrackSuccessfulLogin(ctx, account); err != nil {
		s.logger.Error("track successful login", "account", account.ID, "error", err)
	}

	return s.issue(account)
}

// CreateAccount registers profile and signs the new account in.
func (s *Service) CreateAccount(ctx context.Context, profile portal.Profile) (*portal.AuthResult, error) {
	if err := validateProfile(profile); err != nil {
		inner := ErrInvalidAccount.Clone()
		inner.Source = err
		if verrs, ok := err.(validation.Errors); ok {
			inner.WithMetadata(map[string]any{"fields": fieldMessages(verrs)})
		}
		failure := portal.WrapFailure(inner, portal.ErrAccountRejected)
		failure.Code = http.StatusUnprocessableEntity
		return nil, failure
	}

	account := NewAccount(profile)

	taken, err := s.accounts.IsTaken(ctx, account.Email, account.Username)
	if err != nil {
		return nil, portal.WrapFailure(err, portal.ErrIdentityFailure)
	}
	if taken {
		s.logger.Debug("registration for existing account", "email", account.Email, "username", account.Username)
		return nil, portal.WrapFailure(ErrAccountExists, portal.ErrAccountRejected)
	}

	hash, err := HashPassword(profile.Password, s.cost)
	if err != nil {
		return nil, portal.WrapFailure(err, portal.ErrIdentityFailure)
	}
	account.PasswordHash = hash

	if s.useHashID {
		if id, err := hashid.NewUUID(account.Email); err == nil {
			account.ID = id
		}
	}

	account, err = s.accounts.Register(ctx, account)
	if err != nil {
		if portal.IsFailure(err, ErrAccountExists) {
			return nil, portal.WrapFailure(err, portal.ErrAccountRejected)
		}
		return nil, portal.WrapFailure(goerrors.Wrap(err, goerrors.CategoryInternal, "could not create account"), portal.ErrIdentityFailure)
	}

	s.logger.Info("account created", "account", account.ID, "type", account.AccountType)
	return s.issue(account)
}

// ValidateToken verifies token and loads its account, so tokens of deleted
// accounts stop working before they expire.
func (s *Service) ValidateToken(ctx context.Context, token string) (*portal.User, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, portal.WrapFailure(err, portal.ErrInvalidCredentials)
	}

	account, err := s.accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, portal.WrapFailure(ErrAccountNotFound, portal.ErrInvalidCredentials)
		}
		return nil, portal.WrapFailure(err, portal.ErrIdentityFailure)
	}
	return account.User(), nil
}

func (s *Service) issue(account *Account) (*portal.AuthResult, error) {
	token, err := s.tokens.Generate(account)
	if err != nil {
		return nil, portal.WrapFailure(err, portal.ErrIdentityFailure)
	}
	return &portal.AuthResult{Token: token, User: account.User()}, nil
}

type profileRules portal.Profile

func (p profileRules) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.AccountType, validation.In(portal.AccountIndividual, portal.AccountBusiness)),
		validation.Field(&p.Name, validation.Required),
		validation.Field(&p.Email, validation.Required, is.Email),
		validation.Field(&p.Password, validation.Required, validation.RuneLength(MinPasswordLength, 0)),
	)
}

func validateProfile(p portal.Profile) error {
	return profileRules(p).Validate()
}

func fieldMessages(errs validation.Errors) map[string]string {
	out := make(map[string]string, len(errs))
	for field, err := range errs {
		out[field] = err.Error()
	}
	return out
}

var _ portal.IdentityAPI = (*Service)(nil)
