package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-tokengate/tokengate/internal/middleware"
	"github.com/go-tokengate/tokengate/internal/models"
	"github.com/go-tokengate/tokengate/internal/services"
	"github.com/go-tokengate/tokengate/internal/store"
)

type adminTestEnv struct {
	*handlerTestEnv
	auditService *services.AuditService
	adminRouter  *gin.Engine
	adminToken   string
	userToken    string
}

func setupAdminTest(t *testing.T) *adminTestEnv {
	t.Helper()
	e := setupHandlerTest(t)

	auditService := services.NewAuditService(e.store, true, 10)
	t.Cleanup(func() { _ = auditService.Shutdown(context.Background()) })

	clientHandler := NewClientHandler(e.clientService)
	auditHandler := NewAuditHandler(auditService)
	userHandler := NewUserHandler(e.userService)

	router := gin.New()
	admin := router.Group("/admin")
	admin.Use(middleware.RequireBearer(e.verifyService), middleware.RequireAdmin(e.userService))
	{
		admin.GET("/clients", clientHandler.ListClients)
		admin.POST("/clients", clientHandler.CreateClient)
		admin.GET("/clients/:id", clientHandler.GetClient)
		admin.POST("/clients/:id/secret", clientHandler.RegenerateSecret)
		admin.DELETE("/clients/:id", clientHandler.DeactivateClient)
		admin.GET("/users/:id/tokens", userHandler.ListUserTokens)
		admin.GET("/audit-logs", auditHandler.ListAuditLogs)
		admin.GET("/audit-logs/stats", auditHandler.GetAuditLogStats)
		admin.GET("/audit-logs/export", auditHandler.ExportAuditLogs)
	}

	// Token for the seeded admin user
	adminUser, err := e.store.GetUserByUsername("admin")
	require.NoError(t, err)
	adminReq := &services.AuthorizationRequest{
		Client:              e.client,
		RedirectURI:         "http://localhost/callback",
		Scopes:              "openid profile",
		CodeChallenge:       testChallenge,
		CodeChallengeMethod: "S256",
	}
	code, _, err := e.authzService.CreateAuthorizationCode(context.Background(), adminReq, adminUser.ID)
	require.NoError(t, err)
	adminResp, err := e.tokenService.Exchange(context.Background(), e.client, services.AuthorizationCodeGrant{
		Code: code, RedirectURI: "http://localhost/callback", CodeVerifier: testVerifier,
	})
	require.NoError(t, err)

	userResp := e.issueAccessToken(t, "openid profile")

	return &adminTestEnv{
		handlerTestEnv: e,
		auditService:   auditService,
		adminRouter:    router,
		adminToken:     adminResp.AccessToken.RawToken,
		userToken:      userResp.AccessToken.RawToken,
	}
}

func (e *adminTestEnv) adminDo(method, path, bearer string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	e.adminRouter.ServeHTTP(w, req)
	return w
}

func TestAdmin_RequiresAdminRole(t *testing.T) {
	e := setupAdminTest(t)

	w := e.adminDo(http.MethodGet, "/admin/clients", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.adminDo(http.MethodGet, "/admin/clients", e.userToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	body := decodeJSON(t, w.Body.Bytes())
	assert.Equal(t, "access_denied", body["error"])

	w = e.adminDo(http.MethodGet, "/admin/clients", e.adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdmin_ListClientsHidesSecrets(t *testing.T) {
	e := setupAdminTest(t)

	w := e.adminDo(http.MethodGet, "/admin/clients", e.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "client_secret")

	body := decodeJSON(t, w.Body.Bytes())
	clients, ok := body["clients"].([]any)
	require.True(t, ok)
	assert.NotEmpty(t, clients)
}

func TestAdmin_CreateClient(t *testing.T) {
	e := setupAdminTest(t)

	w := e.adminDo(http.MethodPost, "/admin/clients", e.adminToken, map[string]any{
		"client_name":   "Provisioned App",
		"client_type":   models.ClientTypeConfidential,
		"redirect_uris": []string{"http://localhost/cb"},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	body := decodeJSON(t, w.Body.Bytes())
	secret, ok := body["client_secret"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(secret, "tg_"))

	view, ok := body["client"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Provisioned App", view["client_name"])

	// Missing client_name fails binding
	w = e.adminDo(http.MethodPost, "/admin/clients", e.adminToken, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdmin_GetClient(t *testing.T) {
	e := setupAdminTest(t)

	w := e.adminDo(http.MethodGet, "/admin/clients/"+e.client.ClientID, e.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeJSON(t, w.Body.Bytes())
	assert.Equal(t, e.client.ClientID, body["client_id"])

	w = e.adminDo(http.MethodGet, "/admin/clients/unknown", e.adminToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmin_RegenerateSecret(t *testing.T) {
	e := setupAdminTest(t)

	w := e.adminDo(http.MethodPost, "/admin/clients/"+e.client.ClientID+"/secret", e.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeJSON(t, w.Body.Bytes())
	secret, ok := body["client_secret"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(secret, "tg_"))
	assert.NotEqual(t, e.secret, secret)

	w = e.adminDo(http.MethodPost, "/admin/clients/unknown/secret", e.adminToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmin_DeactivateClient(t *testing.T) {
	e := setupAdminTest(t)

	w := e.adminDo(http.MethodDelete, "/admin/clients/"+e.client.ClientID, e.adminToken, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	stored, err := e.store.GetClient(e.client.ClientID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	w = e.adminDo(http.MethodDelete, "/admin/clients/unknown", e.adminToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmin_AuditLogs(t *testing.T) {
	e := setupAdminTest(t)

	require.NoError(t, e.auditService.LogSync(context.Background(), services.AuditLogEntry{
		EventType:     models.EventTokenRevoked,
		Severity:      models.SeverityInfo,
		ActorClientID: e.client.ClientID,
		ResourceType:  models.ResourceToken,
		ResourceID:    "token-1",
		Action:        "Token revoked at client request",
		Success:       true,
	}))

	w := e.adminDo(http.MethodGet, "/admin/audit-logs?event_type=TOKEN_REVOKED", e.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Logs       []models.AuditLog      `json:"logs"`
		Pagination store.PaginationResult `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Logs, 1)
	assert.Equal(t, models.EventTokenRevoked, resp.Logs[0].EventType)
	assert.Equal(t, int64(1), resp.Pagination.Total)
}

func TestAdmin_AuditLogStats(t *testing.T) {
	e := setupAdminTest(t)

	require.NoError(t, e.auditService.LogSync(context.Background(), services.AuditLogEntry{
		EventType: models.EventAccessTokenIssued,
		Severity:  models.SeverityInfo,
		Action:    "issued",
		Success:   true,
	}))

	w := e.adminDo(http.MethodGet, "/admin/audit-logs/stats", e.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeJSON(t, w.Body.Bytes())
	stats, ok := body["stats"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, stats["total_events"])
}

func TestAdmin_ExportAuditLogsCSV(t *testing.T) {
	e := setupAdminTest(t)

	require.NoError(t, e.auditService.LogSync(context.Background(), services.AuditLogEntry{
		EventType: models.EventClientAuthFailure,
		Severity:  models.SeverityWarning,
		Action:    "auth failed",
		Success:   false,
	}))

	w := e.adminDo(http.MethodGet, "/admin/audit-logs/export", e.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Event Type")
	assert.Contains(t, lines[1], "CLIENT_AUTH_FAILURE")
	assert.Contains(t, lines[1], "No")
}

func TestAdmin_ListUserTokens(t *testing.T) {
	e := setupAdminTest(t)

	w := e.adminDo(http.MethodGet, "/admin/users/"+e.user.ID+"/tokens", e.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeJSON(t, w.Body.Bytes())
	tokens, ok := body["tokens"].([]any)
	require.True(t, ok)
	require.Len(t, tokens, 1)

	view, ok := tokens[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, e.client.ClientID, view["client_id"])
	assert.Equal(t, true, view["active"])
	assert.NotEmpty(t, view["jti"])
	assert.NotContains(t, w.Body.String(), "token_hash")

	w = e.adminDo(http.MethodGet, "/admin/users/no-such-user/tokens", e.adminToken, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	body = decodeJSON(t, w.Body.Bytes())
	assert.Equal(t, "not_found", body["error"])
}
