package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-tokengate/tokengate/internal/cache"
	"github.com/go-tokengate/tokengate/internal/config"
	"github.com/go-tokengate/tokengate/internal/keys"
	"github.com/go-tokengate/tokengate/internal/models"
	"github.com/go-tokengate/tokengate/internal/services"
	"github.com/go-tokengate/tokengate/internal/store"
	"github.com/go-tokengate/tokengate/internal/token"
	"github.com/go-tokengate/tokengate/internal/util"
)

var (
	authTestKeysOnce sync.Once
	authTestKeys     *keys.Manager
)

type authTestEnv struct {
	store         *store.Store
	signer        *token.Signer
	verifyService *services.VerificationService
	userService   *services.UserService
	router        *gin.Engine
}

func setupAuthTest(t *testing.T) *authTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	authTestKeysOnce.Do(func() {
		km, err := keys.GenerateEphemeral(2048)
		if err != nil {
			panic(err)
		}
		authTestKeys = km
	})

	s, err := store.New("sqlite", ":memory:", "test-admin-password")
	require.NoError(t, err)

	cfg := &config.Config{
		BaseURL:           "http://localhost:8080",
		ClockSkewLeeway:   30 * time.Second,
		BlacklistCacheTTL: 30 * time.Second,
	}
	signer := token.NewSigner(authTestKeys, cfg.BaseURL, cfg.ClockSkewLeeway)
	verifyService := services.NewVerificationService(s, cfg, signer, cache.NewMemoryCache[bool](), nil)
	userService := services.NewUserService(s)

	return &authTestEnv{
		store:         s,
		signer:        signer,
		verifyService: verifyService,
		userService:   userService,
		router:        gin.New(),
	}
}

// issueToken signs an access token and persists the matching record so the
// verification service accepts it.
func (e *authTestEnv) issueToken(t *testing.T, userID, scopes string) string {
	t.Helper()
	result, err := e.signer.SignAccessToken(userID, "client-1", scopes, nil, time.Hour)
	require.NoError(t, err)
	require.NoError(t, e.store.CreateAccessToken(&models.AccessToken{
		ID:        uuid.NewString(),
		TokenHash: util.SHA256Hex(result.TokenString),
		JTI:       result.JTI,
		TokenType: "Bearer",
		UserID:    userID,
		ClientID:  "client-1",
		Scopes:    scopes,
		ExpiresAt: result.ExpiresAt,
	}))
	return result.TokenString
}

func (e *authTestEnv) do(method, path, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
		ok     bool
	}{
		{"valid", "Bearer abc123", "abc123", true},
		{"missing", "", "", false},
		{"wrong scheme", "Basic abc123", "", false},
		{"empty token", "Bearer ", "", false},
		{"lowercase scheme", "bearer abc123", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				c.Request.Header.Set("Authorization", tt.header)
			}
			raw, ok := BearerToken(c)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, raw)
		})
	}
}

func TestRequireBearer_MissingToken(t *testing.T) {
	e := setupAuthTest(t)
	e.router.GET("/protected", RequireBearer(e.verifyService), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := e.do(http.MethodGet, "/protected", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, `Bearer realm="TokenGate"`, w.Header().Get("WWW-Authenticate"))
	assert.Contains(t, w.Body.String(), "invalid_token")
}

func TestRequireBearer_GarbageToken(t *testing.T) {
	e := setupAuthTest(t)
	e.router.GET("/protected", RequireBearer(e.verifyService), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := e.do(http.MethodGet, "/protected", "Bearer not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), `error="invalid_token"`)
}

func TestRequireBearer_PopulatesContext(t *testing.T) {
	e := setupAuthTest(t)
	raw := e.issueToken(t, "user-42", "openid profile")

	var gotUserID string
	var gotVerified *token.VerifiedToken
	e.router.GET("/protected", RequireBearer(e.verifyService), func(c *gin.Context) {
		gotUserID = c.GetString(ContextUserID)
		gotVerified, _ = VerifiedTokenFromContext(c)
		c.Status(http.StatusOK)
	})

	w := e.do(http.MethodGet, "/protected", "Bearer "+raw)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-42", gotUserID)
	require.NotNil(t, gotVerified)
	assert.Equal(t, "openid profile", gotVerified.Scopes)
	assert.Equal(t, "client-1", gotVerified.ClientID)
}

func TestRequireScope(t *testing.T) {
	e := setupAuthTest(t)
	raw := e.issueToken(t, "user-42", "openid profile")

	e.router.GET("/profile", RequireBearer(e.verifyService), RequireScope(e.verifyService, "profile"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	e.router.GET("/email", RequireBearer(e.verifyService), RequireScope(e.verifyService, "email"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := e.do(http.MethodGet, "/profile", "Bearer "+raw)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(http.MethodGet, "/email", "Bearer "+raw)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), `insufficient_scope`)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), `scope="email"`)
	assert.Contains(t, w.Body.String(), "insufficient_scope")
}

func TestRequireScope_WithoutRequireBearer(t *testing.T) {
	e := setupAuthTest(t)
	e.router.GET("/misconfigured", RequireScope(e.verifyService, "profile"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	// A verified token never reaches the context, so this is a 401 not a 403.
	w := e.do(http.MethodGet, "/misconfigured", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAdmin(t *testing.T) {
	e := setupAuthTest(t)

	admin, err := e.store.GetUserByUsername("admin")
	require.NoError(t, err)
	require.NoError(t, e.store.CreateUser(&models.User{
		ID:       "user-plain",
		Username: "plain",
		Email:    "plain@example.com",
		Role:     "user",
	}))

	adminToken := e.issueToken(t, admin.ID, "openid")
	userToken := e.issueToken(t, "user-plain", "openid")
	ghostToken := e.issueToken(t, "user-missing", "openid")

	var seenUser *models.User
	e.router.GET("/admin", RequireBearer(e.verifyService), RequireAdmin(e.userService), func(c *gin.Context) {
		value, _ := c.Get("user")
		seenUser, _ = value.(*models.User)
		c.Status(http.StatusOK)
	})

	w := e.do(http.MethodGet, "/admin", "Bearer "+adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, seenUser)
	assert.True(t, seenUser.IsAdmin())

	w = e.do(http.MethodGet, "/admin", "Bearer "+userToken)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Admin access required")

	w = e.do(http.MethodGet, "/admin", "Bearer "+ghostToken)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "User not found")
}

func TestRequireAdmin_NoContextUser(t *testing.T) {
	e := setupAuthTest(t)
	e.router.GET("/admin", RequireAdmin(e.userService), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := e.do(http.MethodGet, "/admin", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "access_denied")
}
