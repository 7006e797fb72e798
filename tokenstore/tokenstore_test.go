package tokenstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	portal "github.com/goliatone/go-auth-portal"
	"github.com/goliatone/go-auth-portal/tokenstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	store := tokenstore.NewFile(dir)

	_, ok := store.Get()
	assert.False(t, ok)
	require.NoError(t, store.Clear(), "clearing a missing file is fine")

	require.NoError(t, store.Set("tok-1"))
	token, ok := store.Get()
	require.True(t, ok)
	assert.Equal(t, "tok-1", token)

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// a second storage over the same directory sees the token
	token, ok = tokenstore.NewFile(dir).Get()
	assert.True(t, ok)
	assert.Equal(t, "tok-1", token)

	require.NoError(t, store.Clear())
	_, ok = store.Get()
	assert.False(t, ok)
}

func TestMemory(t *testing.T) {
	store := tokenstore.NewMemory()
	_, ok := store.Get()
	assert.False(t, ok)

	require.NoError(t, store.Set("a"))
	token, ok := store.Get()
	assert.True(t, ok)
	assert.Equal(t, "a", token)

	require.NoError(t, store.Clear())
	_, ok = store.Get()
	assert.False(t, ok)

	token, ok = tokenstore.NewMemory("seed").Get()
	assert.True(t, ok)
	assert.Equal(t, "seed", token)
}

type fakeIdentity struct{}

func (fakeIdentity) Authenticate(_ context.Context, id, secret string) (*portal.AuthResult, error) {
	if id != "alice" || secret != "secret1" {
		return nil, portal.ErrInvalidCredentials
	}
	return &portal.AuthResult{Token: "tok-alice", User: &portal.User{ID: "u-1", Name: "Alice"}}, nil
}

func (fakeIdentity) CreateAccount(context.Context, portal.Profile) (*portal.AuthResult, error) {
	return nil, portal.ErrAccountRejected
}

func (fakeIdentity) ValidateToken(_ context.Context, token string) (*portal.User, error) {
	if token != "tok-alice" {
		return nil, portal.ErrInvalidCredentials
	}
	return &portal.User{ID: "u-1", Name: "Alice"}, nil
}

func TestFile_SurvivesProcessRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := portal.NewSessionStore(fakeIdentity{}, tokenstore.NewFile(dir), portal.WithSessionLogger(portal.NopLogger()))
	first.Restore(ctx)
	require.NoError(t, first.Login(ctx, "alice", "secret1"))

	second := portal.NewSessionStore(fakeIdentity{}, tokenstore.NewFile(dir), portal.WithSessionLogger(portal.NopLogger()))
	assert.True(t, second.IsLoading())
	second.Restore(ctx)
	require.NotNil(t, second.User())
	assert.Equal(t, "u-1", second.User().ID)

	second.Logout()
	_, ok := tokenstore.NewFile(dir).Get()
	assert.False(t, ok)
}
