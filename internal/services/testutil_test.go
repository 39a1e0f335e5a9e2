package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/go-tokengate/tokengate/internal/config"
	"github.com/go-tokengate/tokengate/internal/keys"
	"github.com/go-tokengate/tokengate/internal/models"
	"github.com/go-tokengate/tokengate/internal/store"
	"github.com/go-tokengate/tokengate/internal/token"
)

var (
	testKeysOnce sync.Once
	testKeys     *keys.Manager
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New("sqlite", ":memory:", "test-admin-password")
	require.NoError(t, err)
	return s
}

func testConfig() *config.Config {
	return &config.Config{
		BaseURL:           "http://localhost:8080",
		AccessTokenTTL:    time.Hour,
		RefreshTokenTTL:   720 * time.Hour,
		IDTokenTTL:        time.Hour,
		AuthCodeTTL:       10 * time.Minute,
		ClockSkewLeeway:   30 * time.Second,
		PKCERequired:      false,
		ConsentRemember:   true,
		PolicyMode:        config.PolicyModeStatic,
		BlacklistCacheTTL: 30 * time.Second,
		ClientCacheTTL:    5 * time.Minute,
	}
}

func testSigner(t *testing.T, cfg *config.Config) *token.Signer {
	t.Helper()
	testKeysOnce.Do(func() {
		km, err := keys.GenerateEphemeral(2048)
		if err != nil {
			panic(err)
		}
		testKeys = km
	})
	return token.NewSigner(testKeys, cfg.BaseURL, cfg.ClockSkewLeeway)
}

type testClientOpts struct {
	clientType  string
	authMethod  string
	grantTypes  string
	scopes      string
	requirePKCE bool
	inactive    bool
}

// createTestClient registers a client and returns it together with the
// plaintext secret (empty for public clients).
func createTestClient(t *testing.T, s *store.Store, opts testClientOpts) (*models.Client, string) {
	t.Helper()
	if opts.clientType == "" {
		opts.clientType = models.ClientTypeConfidential
	}
	if opts.grantTypes == "" {
		opts.grantTypes = "authorization_code refresh_token client_credentials"
	}
	if opts.scopes == "" {
		opts.scopes = "openid profile email offline_access"
	}
	client := &models.Client{
		ClientID:     uuid.New().String(),
		ClientName:   "Test Client",
		Scopes:       opts.scopes,
		GrantTypes:   opts.grantTypes,
		RedirectURIs: models.StringArray{"http://localhost/callback"},
		ClientType:   opts.clientType,
		AuthMethod:   opts.authMethod,
		RequirePKCE:  opts.requirePKCE,
		IsActive:     !opts.inactive,
	}
	secret := ""
	if opts.clientType == models.ClientTypeConfidential {
		generated, err := client.GenerateClientSecret(context.Background())
		require.NoError(t, err)
		secret = generated
	}
	require.NoError(t, s.CreateClient(client))
	return client, secret
}

func createTestUser(t *testing.T, s *store.Store) *models.User {
	t.Helper()
	user := &models.User{
		ID:       uuid.New().String(),
		Username: "alice",
		Email:    "alice@example.com",
		Role:     "user",
		FullName: "Alice Example",
	}
	require.NoError(t, s.CreateUser(user))
	return user
}
