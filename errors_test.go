package portal_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	portal "github.com/goliatone/go-auth-portal"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want portal.FailureKind
	}{
		{"nil", nil, portal.FailureNone},
		{"plain error", errors.New("boom"), portal.FailureNone},
		{"missing credentials", portal.ErrMissingCredentials, portal.FailureInvalidInput},
		{"missing profile fields", portal.ErrMissingProfileFields, portal.FailureInvalidInput},
		{"in flight", portal.ErrOperationInFlight, portal.FailureBusy},
		{"canceled", portal.ErrOperationCanceled, portal.FailureCanceled},
		{"invalid credentials", portal.ErrInvalidCredentials, portal.FailureInvalidCredentials},
		{"rejected", portal.ErrAccountRejected, portal.FailureAccountRejected},
		{"unreachable", portal.ErrIdentityUnreachable, portal.FailureNetwork},
		{"server", portal.ErrIdentityFailure, portal.FailureServer},
		{"draft not found", portal.ErrDraftNotFound, portal.FailureNone},
		{"wrapped with fmt", fmt.Errorf("login: %w", portal.ErrInvalidCredentials), portal.FailureInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, portal.KindOf(tt.err))
		})
	}
}

func TestWrapFailure(t *testing.T) {
	cause := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	err := portal.WrapFailure(cause, portal.ErrIdentityUnreachable)

	assert.Equal(t, portal.FailureNetwork, portal.KindOf(err))
	assert.ErrorIs(t, err, cause)
	assert.True(t, portal.IsFailure(err, portal.ErrIdentityUnreachable))
	assert.False(t, portal.IsFailure(err, portal.ErrIdentityFailure))

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryOperation, richErr.Category)
	assert.Equal(t, "IDENTITY_UNREACHABLE", richErr.TextCode)

	assert.Nil(t, portal.ErrIdentityUnreachable.Source, "sentinel is not mutated")
}

func TestIsFailure_NestedCause(t *testing.T) {
	inner := portal.WrapFailure(errors.New("not a picture"), portal.ErrInvalidImage)
	err := fmt.Errorf("register: %w", portal.WrapFailure(inner, portal.ErrIdentityFailure))

	assert.True(t, portal.IsFailure(err, portal.ErrIdentityFailure))
	assert.True(t, portal.IsFailure(err, portal.ErrInvalidImage))
	assert.False(t, portal.IsFailure(err, portal.ErrDraftNotFound))
	assert.Equal(t, portal.FailureServer, portal.KindOf(err), "the outermost kind wins")

	assert.False(t, portal.IsFailure(nil, portal.ErrInvalidImage))
	assert.False(t, portal.IsFailure(err, nil))
}

func TestStructuredErrorProperties(t *testing.T) {
	tests := []struct {
		err      *goerrors.Error
		category goerrors.Category
		code     int
	}{
		{portal.ErrMissingCredentials, goerrors.CategoryValidation, 400},
		{portal.ErrInvalidCredentials, goerrors.CategoryAuth, 401},
		{portal.ErrAccountRejected, goerrors.CategoryConflict, 409},
		{portal.ErrDraftNotFound, goerrors.CategoryNotFound, 404},
		{portal.ErrInvalidImage, goerrors.CategoryBadInput, 400},
	}

	for _, tt := range tests {
		t.Run(tt.err.TextCode, func(t *testing.T) {
			assert.Equal(t, tt.category, tt.err.Category)
			assert.Equal(t, tt.code, tt.err.Code)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestSessionStore_ClassifiesUntaggedErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want portal.FailureKind
	}{
		{"deadline", context.DeadlineExceeded, portal.FailureNetwork},
		{"net error", &net.DNSError{Err: "no such host", Name: "idp"}, portal.FailureNetwork},
		{"anything else", errors.New("unexpected EOF"), portal.FailureServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(MockIdentityAPI)
			api.On("Authenticate", mock.Anything, "alice", "pw").Return(nil, tt.err)

			store := newStore(api, &memTokens{})
			store.Restore(context.Background())

			err := store.Login(context.Background(), "alice", "pw")
			require.Error(t, err)
			assert.Equal(t, tt.want, portal.KindOf(err))
		})
	}
}
