package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-tokengate/tokengate/internal/cache"
	"github.com/go-tokengate/tokengate/internal/models"
	"github.com/go-tokengate/tokengate/internal/store"
)

func newClientService(t *testing.T, s *store.Store) *ClientService {
	t.Helper()
	return NewClientService(s, testConfig(), cache.NewMemoryCache[models.Client](), nil, nil)
}

func TestAuthenticate_ConfidentialClient(t *testing.T) {
	s := setupTestStore(t)
	svc := newClientService(t, s)
	client, secret := createTestClient(t, s, testClientOpts{authMethod: models.AuthMethodBasic})
	ctx := context.Background()

	authed, err := svc.Authenticate(ctx, ClientCredentials{
		ClientID: client.ClientID, ClientSecret: secret, Method: models.AuthMethodBasic,
	})
	require.NoError(t, err)
	assert.Equal(t, client.ClientID, authed.ClientID)

	// Wrong secret
	_, err = svc.Authenticate(ctx, ClientCredentials{
		ClientID: client.ClientID, ClientSecret: "tg_wrong", Method: models.AuthMethodBasic,
	})
	assert.ErrorIs(t, err, ErrInvalidClient)

	// Missing secret
	_, err = svc.Authenticate(ctx, ClientCredentials{
		ClientID: client.ClientID, Method: models.AuthMethodBasic,
	})
	assert.ErrorIs(t, err, ErrInvalidClient)
}

func TestAuthenticate_MethodRestriction(t *testing.T) {
	s := setupTestStore(t)
	svc := newClientService(t, s)
	client, secret := createTestClient(t, s, testClientOpts{authMethod: models.AuthMethodBasic})

	// Registered for Basic; Post presentation is refused
	_, err := svc.Authenticate(context.Background(), ClientCredentials{
		ClientID: client.ClientID, ClientSecret: secret, Method: models.AuthMethodPost,
	})
	assert.ErrorIs(t, err, ErrInvalidClient)
}

func TestAuthenticate_PublicClient(t *testing.T) {
	s := setupTestStore(t)
	svc := newClientService(t, s)
	public, _ := createTestClient(t, s, testClientOpts{clientType: models.ClientTypePublic})
	ctx := context.Background()

	authed, err := svc.Authenticate(ctx, ClientCredentials{
		ClientID: public.ClientID, Method: models.AuthMethodNone,
	})
	require.NoError(t, err)
	assert.True(t, authed.IsPublic())

	// A public client presenting a secret is misconfigured
	_, err = svc.Authenticate(ctx, ClientCredentials{
		ClientID: public.ClientID, ClientSecret: "tg_anything", Method: models.AuthMethodPost,
	})
	assert.ErrorIs(t, err, ErrInvalidClient)
}

func TestAuthenticate_UniformFailures(t *testing.T) {
	s := setupTestStore(t)
	svc := newClientService(t, s)
	ctx := context.Background()

	// Unknown, empty, and inactive clients are indistinguishable
	_, err := svc.Authenticate(ctx, ClientCredentials{ClientID: "unknown", ClientSecret: "x"})
	assert.ErrorIs(t, err, ErrInvalidClient)

	_, err = svc.Authenticate(ctx, ClientCredentials{})
	assert.ErrorIs(t, err, ErrInvalidClient)

	inactive, secret := createTestClient(t, s, testClientOpts{inactive: true})
	_, err = svc.Authenticate(ctx, ClientCredentials{
		ClientID: inactive.ClientID, ClientSecret: secret, Method: models.AuthMethodBasic,
	})
	assert.ErrorIs(t, err, ErrInvalidClient)
}

func TestCreateClient(t *testing.T) {
	s := setupTestStore(t)
	svc := newClientService(t, s)

	resp, err := svc.CreateClient(context.Background(), CreateClientRequest{
		ClientName:   "My App",
		RedirectURIs: []string{"http://localhost/cb"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ClientTypeConfidential, resp.ClientType)
	assert.Equal(t, models.AuthMethodBasic, resp.AuthMethod)
	assert.Equal(t, "authorization_code refresh_token", resp.GrantTypes)
	assert.True(t, strings.HasPrefix(resp.ClientSecretPlain, "tg_"))
	assert.NotEqual(t, resp.ClientSecretPlain, resp.Client.ClientSecret)
	assert.True(t, resp.ValidateClientSecret([]byte(resp.ClientSecretPlain)))
}

func TestCreateClient_PublicDefaults(t *testing.T) {
	s := setupTestStore(t)
	svc := newClientService(t, s)

	resp, err := svc.CreateClient(context.Background(), CreateClientRequest{
		ClientName: "SPA",
		ClientType: models.ClientTypePublic,
	})
	require.NoError(t, err)
	assert.Equal(t, models.AuthMethodNone, resp.AuthMethod)
	assert.True(t, resp.RequirePKCE)
	assert.Empty(t, resp.ClientSecretPlain)
}

func TestCreateClient_NameRequired(t *testing.T) {
	s := setupTestStore(t)
	svc := newClientService(t, s)

	_, err := svc.CreateClient(context.Background(), CreateClientRequest{ClientName: "   "})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestRegenerateSecret(t *testing.T) {
	s := setupTestStore(t)
	svc := newClientService(t, s)
	client, oldSecret := createTestClient(t, s, testClientOpts{authMethod: models.AuthMethodBasic})
	ctx := context.Background()

	newSecret, err := svc.RegenerateSecret(ctx, client.ClientID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(newSecret, "tg_"))
	assert.NotEqual(t, oldSecret, newSecret)

	// Old secret stops working immediately, cache included
	_, err = svc.Authenticate(ctx, ClientCredentials{
		ClientID: client.ClientID, ClientSecret: oldSecret, Method: models.AuthMethodBasic,
	})
	assert.ErrorIs(t, err, ErrInvalidClient)

	_, err = svc.Authenticate(ctx, ClientCredentials{
		ClientID: client.ClientID, ClientSecret: newSecret, Method: models.AuthMethodBasic,
	})
	assert.NoError(t, err)
}

func TestRegenerateSecret_PublicClientRejected(t *testing.T) {
	s := setupTestStore(t)
	svc := newClientService(t, s)
	public, _ := createTestClient(t, s, testClientOpts{clientType: models.ClientTypePublic})

	_, err := svc.RegenerateSecret(context.Background(), public.ClientID)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestDeactivateClient(t *testing.T) {
	s := setupTestStore(t)
	svc := newClientService(t, s)
	client, secret := createTestClient(t, s, testClientOpts{authMethod: models.AuthMethodBasic})
	ctx := context.Background()

	// Warm the cache, then deactivate; invalidation must take effect now
	_, err := svc.Authenticate(ctx, ClientCredentials{
		ClientID: client.ClientID, ClientSecret: secret, Method: models.AuthMethodBasic,
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeactivateClient(ctx, client.ClientID))

	_, err = svc.Authenticate(ctx, ClientCredentials{
		ClientID: client.ClientID, ClientSecret: secret, Method: models.AuthMethodBasic,
	})
	assert.ErrorIs(t, err, ErrInvalidClient)

	assert.ErrorIs(t, svc.DeactivateClient(ctx, "unknown"), ErrClientNotFound)
}

func TestGetClient_CacheServesDeletedRecord(t *testing.T) {
	s := setupTestStore(t)
	svc := newClientService(t, s)
	client, _ := createTestClient(t, s, testClientOpts{})
	ctx := context.Background()

	first, err := svc.GetClient(ctx, client.ClientID)
	require.NoError(t, err)

	// Mutate the row behind the cache; the cached copy is still served
	require.NoError(t, s.DeactivateClient(client.ClientID))
	cached, err := svc.GetClient(ctx, client.ClientID)
	require.NoError(t, err)
	assert.Equal(t, first.IsActive, cached.IsActive)
}

func TestGetClient_NotFound(t *testing.T) {
	s := setupTestStore(t)
	svc := newClientService(t, s)

	_, err := svc.GetClient(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrClientNotFound)
}
