package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	portal "github.com/goliatone/go-auth-portal"
	goerrors "github.com/goliatone/go-errors"
	kratos "github.com/ory/kratos-client-go"
)

// KratosClient implements the identity operations with Ory Kratos native
// (API) flows. Kratos session tokens are used as portal tokens.
type KratosClient struct {
	api    *kratos.APIClient
	logger portal.Logger
}

// NewKratosClient returns a client for the Kratos public API at publicURL.
func NewKratosClient(publicURL string, httpClient *http.Client, logger portal.Logger) *KratosClient {
	cfg := kratos.NewConfiguration()
	cfg.Servers = []kratos.ServerConfiguration{{URL: strings.TrimRight(publicURL, "/")}}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	if cfg.DefaultHeader == nil {
		cfg.DefaultHeader = map[string]string{}
	}
	cfg.DefaultHeader["Accept"] = "application/json"

	if logger == nil {
		logger = portal.NopLogger()
	}
	return &KratosClient{api: kratos.NewAPIClient(cfg), logger: logger}
}

// Authenticate runs a native login flow with the password method.
func (k *KratosClient) Authenticate(ctx context.Context, identifier, secret string) (*portal.AuthResult, error) {
	flow, res, err := k.api.FrontendAPI.CreateNativeLoginFlow(ctx).Execute()
	if err != nil {
		return nil, k.failure("create_login_flow", res, err, portal.ErrIdentityFailure)
	}

	body := kratos.UpdateLoginFlowWithPasswordMethod{
		Method:     "password",
		Identifier: identifier,
		Password:   secret,
	}

	out, res, err := k.api.FrontendAPI.
		UpdateLoginFlow(ctx).
		Flow(flow.GetId()).
		UpdateLoginFlowBody(kratos.UpdateLoginFlowWithPasswordMethodAsUpdateLoginFlowBody(&body)).
		Execute()
	if err != nil {
		return nil, k.failure("update_login_flow", res, err, portal.ErrInvalidCredentials)
	}

	session := out.GetSession()
	identity := session.GetIdentity()
	return sessionResult(out.GetSessionToken(), identity.GetId(), identity.GetTraits())
}

// CreateAccount runs a native registration flow. Profile images are not part
// of the Kratos identity schema and are dropped.
func (k *KratosClient) CreateAccount(ctx context.Context, profile portal.Profile) (*portal.AuthResult, error) {
	flow, res, err := k.api.FrontendAPI.CreateNativeRegistrationFlow(ctx).Execute()
	if err != nil {
		return nil, k.failure("create_registration_flow", res, err, portal.ErrIdentityFailure)
	}

	body := kratos.UpdateRegistrationFlowWithPasswordMethod{
		Method:   "password",
		Password: profile.Password,
		Traits:   ProfileTraits(profile),
	}

	out, res, err := k.api.FrontendAPI.
		UpdateRegistrationFlow(ctx).
		Flow(flow.GetId()).
		UpdateRegistrationFlowBody(kratos.UpdateRegistrationFlowWithPasswordMethodAsUpdateRegistrationFlowBody(&body)).
		Execute()
	if err != nil {
		return nil, k.failure("update_registration_flow", res, err, portal.ErrAccountRejected)
	}

	identity := out.GetIdentity()
	return sessionResult(out.GetSessionToken(), identity.GetId(), identity.GetTraits())
}

// ValidateToken resolves a Kratos session token.
func (k *KratosClient) ValidateToken(ctx context.Context, token string) (*portal.User, error) {
	session, res, err := k.api.FrontendAPI.ToSession(ctx).XSessionToken(token).Execute()
	if err != nil {
		return nil, k.failure("to_session", res, err, portal.ErrInvalidCredentials)
	}
	if !session.GetActive() {
		return nil, portal.WrapFailure(fmt.Errorf("session %s is not active", session.GetId()), portal.ErrInvalidCredentials)
	}

	identity := session.GetIdentity()
	if identity.GetId() == "" {
		return nil, portal.WrapFailure(fmt.Errorf("session without identity"), portal.ErrIdentityFailure)
	}
	return TraitsUser(identity.GetId(), identity.GetTraits()), nil
}

// failure classifies a Kratos error. rejected is used for 4xx answers, which
// Kratos returns for bad credentials and invalid registrations alike.
func (k *KratosClient) failure(op string, res *http.Response, err error, rejected *goerrors.Error) error {
	if res == nil {
		k.logger.Debug("kratos request failed", "operation", op, "error", err)
		return portal.WrapFailure(err, portal.ErrIdentityUnreachable)
	}

	k.logger.Debug("kratos request rejected", "operation", op, "status", res.StatusCode, "error", err)

	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		if rejected == portal.ErrAccountRejected {
			return portal.WrapFailure(err, portal.ErrAccountRejected)
		}
		return portal.WrapFailure(err, portal.ErrInvalidCredentials)
	case res.StatusCode >= 400 && res.StatusCode < 500:
		return portal.WrapFailure(err, rejected)
	default:
		return portal.WrapFailure(err, portal.ErrIdentityFailure)
	}
}

// ProfileTraits maps a profile to the traits of the portal identity schema.
func ProfileTraits(p portal.Profile) map[string]interface{} {
	traits := map[string]interface{}{
		"email":        p.Email,
		"name":         p.Name,
		"account_type": string(p.AccountType),
	}
	if p.Username != "" {
		traits["username"] = p.Username
	}
	if p.Phone != "" {
		traits["phone"] = p.Phone
	}
	return traits
}

// TraitsUser builds a user from identity traits. A name object with first
// and last parts is joined.
func TraitsUser(id string, raw interface{}) *portal.User {
	u := &portal.User{ID: id}
	traits, _ := raw.(map[string]interface{})
	if traits == nil {
		return u
	}

	u.Email, _ = traits["email"].(string)
	u.Username, _ = traits["username"].(string)
	if t, ok := traits["account_type"].(string); ok {
		u.AccountType = portal.ParseAccountType(t)
	}

	switch name := traits["name"].(type) {
	case string:
		u.Name = name
	case map[string]interface{}:
		first, _ := name["first"].(string)
		last, _ := name["last"].(string)
		u.Name = strings.TrimSpace(first + " " + last)
	}
	if u.Name == "" {
		u.Name = u.Username
	}
	return u
}

func sessionResult(token, id string, traits interface{}) (*portal.AuthResult, error) {
	if token == "" || id == "" {
		return nil, portal.WrapFailure(fmt.Errorf("kratos response without session token"), portal.ErrIdentityFailure)
	}
	return &portal.AuthResult{Token: token, User: TraitsUser(id, traits)}, nil
}

var _ portal.IdentityAPI = (*KratosClient)(nil)
