package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/go-tokengate/tokengate/internal/cache"
	"github.com/go-tokengate/tokengate/internal/config"
	"github.com/go-tokengate/tokengate/internal/keys"
	"github.com/go-tokengate/tokengate/internal/middleware"
	"github.com/go-tokengate/tokengate/internal/models"
	"github.com/go-tokengate/tokengate/internal/services"
	"github.com/go-tokengate/tokengate/internal/store"
	"github.com/go-tokengate/tokengate/internal/token"
)

const (
	// Verifier and its S256 challenge from RFC 7636 Appendix B
	testVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	testChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

var (
	testKeysOnce sync.Once
	testKeys     *keys.Manager
)

type handlerTestEnv struct {
	store  *store.Store
	config *config.Config
	signer *token.Signer
	keys   *keys.Manager

	userService   *services.UserService
	clientService *services.ClientService
	authzService  *services.AuthorizationService
	tokenService  *services.TokenService
	verifyService *services.VerificationService

	router *gin.Engine
	client *models.Client
	secret string
	user   *models.User
}

func setupHandlerTest(t *testing.T) *handlerTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s, err := store.New("sqlite", ":memory:", "test-admin-password")
	require.NoError(t, err)

	cfg := &config.Config{
		BaseURL:           "http://localhost:8080",
		AccessTokenTTL:    time.Hour,
		RefreshTokenTTL:   720 * time.Hour,
		IDTokenTTL:        time.Hour,
		AuthCodeTTL:       10 * time.Minute,
		ClockSkewLeeway:   30 * time.Second,
		ConsentRemember:   true,
		JWKSCacheMaxAge:   time.Hour,
		BlacklistCacheTTL: 30 * time.Second,
		ClientCacheTTL:    5 * time.Minute,
	}

	testKeysOnce.Do(func() {
		km, err := keys.GenerateEphemeral(2048)
		if err != nil {
			panic(err)
		}
		testKeys = km
	})
	signer := token.NewSigner(testKeys, cfg.BaseURL, cfg.ClockSkewLeeway)

	userService := services.NewUserService(s)
	clientService := services.NewClientService(s, cfg, cache.NewMemoryCache[models.Client](), nil, nil)
	authzService := services.NewAuthorizationService(s, cfg, nil, nil)
	tokenService := services.NewTokenService(
		s, cfg, signer, services.NewStaticResolver(), authzService, nil, nil)
	revocationService := services.NewRevocationService(s, signer, nil, nil)
	verifyService := services.NewVerificationService(s, cfg, signer, cache.NewMemoryCache[bool](), nil)

	tokenHandler := NewTokenHandler(tokenService, clientService, revocationService, verifyService, cfg)
	authzHandler := NewAuthorizationHandler(authzService, userService, cfg)
	oidcHandler := NewOIDCHandler(verifyService, userService, cfg)
	jwksHandler := NewJWKSHandler(testKeys, cfg)

	router := gin.New()
	router.GET("/.well-known/openid-configuration", oidcHandler.Discovery)
	router.GET("/.well-known/jwks.json", jwksHandler.JWKS)

	oauth := router.Group("/oauth")
	{
		oauth.POST("/token", tokenHandler.Token)
		oauth.POST("/revoke", tokenHandler.Revoke)
		oauth.GET("/tokeninfo", tokenHandler.TokenInfo)
		oauth.GET("/userinfo", oidcHandler.UserInfo)
		oauth.POST("/userinfo", oidcHandler.UserInfo)

		authorized := oauth.Group("")
		authorized.Use(middleware.RequireBearer(verifyService))
		{
			authorized.GET("/authorize", authzHandler.Authorize)
			authorized.POST("/authorize/consent", authzHandler.Consent)
			authorized.DELETE("/consent/:client_id", authzHandler.RevokeConsent)
		}
	}

	client := &models.Client{
		ClientID:     uuid.New().String(),
		ClientName:   "Handler Test Client",
		Scopes:       "openid profile email offline_access",
		GrantTypes:   "authorization_code refresh_token client_credentials",
		RedirectURIs: models.StringArray{"http://localhost/callback"},
		ClientType:   models.ClientTypeConfidential,
		AuthMethod:   models.AuthMethodBasic,
		IsActive:     true,
	}
	secret, err := client.GenerateClientSecret(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.CreateClient(client))

	user := &models.User{
		ID:       uuid.New().String(),
		Username: "alice",
		Email:    "alice@example.com",
		Role:     "user",
		FullName: "Alice Example",
	}
	require.NoError(t, s.CreateUser(user))

	return &handlerTestEnv{
		store:         s,
		config:        cfg,
		signer:        signer,
		keys:          testKeys,
		userService:   userService,
		clientService: clientService,
		authzService:  authzService,
		tokenService:  tokenService,
		verifyService: verifyService,
		router:        router,
		client:        client,
		secret:        secret,
		user:          user,
	}
}

// postForm performs a form POST with optional HTTP Basic client authentication.
func (e *handlerTestEnv) postForm(path string, form url.Values, basicAuth bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if basicAuth {
		req.SetBasicAuth(e.client.ClientID, e.secret)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *handlerTestEnv) get(path string, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// issueCode creates an authorization code for the test user and client.
func (e *handlerTestEnv) issueCode(t *testing.T, scopes string) string {
	t.Helper()
	req := &services.AuthorizationRequest{
		Client:              e.client,
		RedirectURI:         "http://localhost/callback",
		Scopes:              scopes,
		Nonce:               "nonce-1",
		CodeChallenge:       testChallenge,
		CodeChallengeMethod: "S256",
	}
	plain, _, err := e.authzService.CreateAuthorizationCode(context.Background(), req, e.user.ID)
	require.NoError(t, err)
	return plain
}

// issueAccessToken runs the code exchange and returns the raw access token.
func (e *handlerTestEnv) issueAccessToken(t *testing.T, scopes string) *services.TokenResponse {
	t.Helper()
	code := e.issueCode(t, scopes)
	resp, err := e.tokenService.Exchange(context.Background(), e.client, services.AuthorizationCodeGrant{
		Code:         code,
		RedirectURI:  "http://localhost/callback",
		CodeVerifier: testVerifier,
	})
	require.NoError(t, err)
	return resp
}
