package portal_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	portal "github.com/goliatone/go-auth-portal"
	"github.com/stretchr/testify/mock"
)

// MockIdentityAPI implements portal.IdentityAPI
type MockIdentityAPI struct {
	mock.Mock
}

func (m *MockIdentityAPI) Authenticate(ctx context.Context, identifier, secret string) (*portal.AuthResult, error) {
	args := m.Called(ctx, identifier, secret)
	res, _ := args.Get(0).(*portal.AuthResult)
	return res, args.Error(1)
}

func (m *MockIdentityAPI) CreateAccount(ctx context.Context, profile portal.Profile) (*portal.AuthResult, error) {
	args := m.Called(ctx, profile)
	res, _ := args.Get(0).(*portal.AuthResult)
	return res, args.Error(1)
}

func (m *MockIdentityAPI) ValidateToken(ctx context.Context, token string) (*portal.User, error) {
	args := m.Called(ctx, token)
	user, _ := args.Get(0).(*portal.User)
	return user, args.Error(1)
}

// MockRegistrar implements portal.Registrar
type MockRegistrar struct {
	mock.Mock
}

func (m *MockRegistrar) Register(ctx context.Context, profile portal.Profile) error {
	args := m.Called(ctx, profile)
	return args.Error(0)
}

// memTokens is a TokenStorage that can be told to fail writes.
type memTokens struct {
	mu       sync.Mutex
	token    string
	present  bool
	failSet  bool
	sets     int
	clears   int
	setCalls []string
}

func (m *memTokens) Get() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.present
}

func (m *memTokens) Set(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	m.setCalls = append(m.setCalls, token)
	if m.failSet {
		return errors.New("disk full")
	}
	m.token, m.present = token, true
	return nil
}

func (m *memTokens) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	m.token, m.present = "", false
	return nil
}

func withToken(token string) *memTokens {
	return &memTokens{token: token, present: true}
}

// stubIdentity is a tiny in-memory identity service for HTTP tests.
type stubIdentity struct {
	mu       sync.Mutex
	accounts map[string]stubAccount
	tokens   map[string]portal.User
	created  []portal.Profile
	next     int
	down     bool
}

type stubAccount struct {
	user     portal.User
	password string
}

func newStubIdentity() *stubIdentity {
	return &stubIdentity{
		accounts: map[string]stubAccount{},
		tokens:   map[string]portal.User{},
	}
}

func (s *stubIdentity) add(username, password string, user portal.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[username] = stubAccount{user: user, password: password}
}

func (s *stubIdentity) issue(user portal.User) string {
	s.next++
	token := fmt.Sprintf("tok-%d", s.next)
	s.tokens[token] = user
	return token
}

func (s *stubIdentity) Authenticate(_ context.Context, identifier, secret string) (*portal.AuthResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, portal.WrapFailure(errors.New("connection refused"), portal.ErrIdentityUnreachable)
	}
	acc, ok := s.accounts[identifier]
	if !ok || acc.password != secret {
		return nil, portal.ErrInvalidCredentials
	}
	u := acc.user
	return &portal.AuthResult{Token: s.issue(u), User: &u}, nil
}

func (s *stubIdentity) CreateAccount(_ context.Context, p portal.Profile) (*portal.AuthResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, portal.WrapFailure(errors.New("connection refused"), portal.ErrIdentityUnreachable)
	}
	if _, exists := s.accounts[p.Username]; exists {
		return nil, portal.ErrAccountRejected
	}
	s.created = append(s.created, p)
	u := portal.User{ID: fmt.Sprintf("user-%d", len(s.created)), Name: p.Name, Email: p.Email, Username: p.Username, AccountType: p.AccountType}
	s.accounts[p.Username] = stubAccount{user: u, password: p.Password}
	return &portal.AuthResult{Token: s.issue(u), User: &u}, nil
}

func (s *stubIdentity) ValidateToken(_ context.Context, token string) (*portal.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.tokens[token]
	if !ok {
		return nil, portal.ErrInvalidCredentials
	}
	return &u, nil
}

func (s *stubIdentity) profiles() []portal.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]portal.Profile(nil), s.created...)
}
