package portal_test

import (
	"errors"
	"testing"

	portal "github.com/goliatone/go-auth-portal"
	"github.com/stretchr/testify/assert"
)

func TestLoginRequest_Validate(t *testing.T) {
	assert.NoError(t, portal.LoginRequest{Identifier: "alice", Password: "x"}.Validate())
	assert.Error(t, portal.LoginRequest{Identifier: "alice"}.Validate())
	assert.Error(t, portal.LoginRequest{Password: "x"}.Validate())
	assert.Error(t, portal.LoginRequest{Identifier: " \t", Password: "x"}.Validate())
}

func TestLoginFailureMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"no error", nil, ""},
		{"missing input", portal.ErrMissingCredentials, portal.MsgFillAllFields},
		{"busy", portal.ErrOperationInFlight, portal.MsgOperationInProgress},
		{"bad credentials", portal.ErrInvalidCredentials, portal.MsgInvalidLogin},
		{"network", portal.WrapFailure(errors.New("dial tcp"), portal.ErrIdentityUnreachable), portal.MsgInvalidLogin},
		{"server", portal.ErrIdentityFailure, portal.MsgInvalidLogin},
		{"untagged", errors.New("boom"), portal.MsgInvalidLogin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, portal.LoginFailureMessage(tt.err))
		})
	}
}
