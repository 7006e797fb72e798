package identity_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	portal "github.com/goliatone/go-auth-portal"
	"github.com/goliatone/go-auth-portal/identity"
	"github.com/goliatone/go-auth-portal/idp"
	"github.com/goliatone/go-auth-portal/tokenstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// fiberTransport routes client requests straight into a fiber app.
type fiberTransport struct {
	app *fiber.App
}

func (f fiberTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return f.app.Test(req, -1)
}

func newIDPClient(t *testing.T) *identity.HTTPClient {
	t.Helper()
	db, err := idp.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, idp.Migrate(context.Background(), db, nil))

	tokens := idp.NewTokenService([]byte("k"), time.Hour, "idp", []string{"portal"}, nil)
	svc := idp.NewService(idp.NewAccountsRepository(db), tokens, idp.WithPasswordCost(bcrypt.MinCost))

	return identity.NewHTTPClient("http://idp.test", identity.WithHTTPClient(&http.Client{
		Transport: fiberTransport{app: idp.NewApp(svc)},
	}))
}

func TestHTTPClient_AgainstIDP(t *testing.T) {
	client := newIDPClient(t)
	ctx := context.Background()

	profile := portal.Profile{
		AccountType: portal.AccountBusiness,
		Name:        "Acme Ltd",
		Username:    "acme",
		Email:       "ops@acme.test",
		Password:    "s3cret!",
	}

	created, err := client.CreateAccount(ctx, profile)
	require.NoError(t, err)
	assert.Equal(t, "Acme Ltd", created.User.Name)

	_, err = client.CreateAccount(ctx, profile)
	assert.Equal(t, portal.FailureAccountRejected, portal.KindOf(err))

	_, err = client.Authenticate(ctx, "acme", "wrong!")
	assert.Equal(t, portal.FailureInvalidCredentials, portal.KindOf(err))

	res, err := client.Authenticate(ctx, "ops@acme.test", "s3cret!")
	require.NoError(t, err)

	user, err := client.ValidateToken(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, created.User.ID, user.ID)
	assert.Equal(t, portal.AccountBusiness, user.AccountType)
}

func TestSessionStore_AgainstIDP(t *testing.T) {
	client := newIDPClient(t)
	tokens := tokenstore.NewMemory()

	store := portal.NewSessionStore(client, tokens)
	store.Restore(context.Background())
	assert.Nil(t, store.User())

	err := store.Register(context.Background(), portal.Profile{
		Name:     "Bob",
		Email:    "bob@example.com",
		Password: "hunter22",
	})
	require.NoError(t, err)
	require.NotNil(t, store.User())

	restored := portal.NewSessionStore(client, tokens)
	restored.Restore(context.Background())
	require.NotNil(t, restored.User())
	assert.Equal(t, "Bob", restored.User().Name)
}
