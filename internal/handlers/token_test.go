package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeJSON(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestToken_AuthorizationCodeFlow(t *testing.T) {
	e := setupHandlerTest(t)
	code := e.issueCode(t, "openid profile")

	w := e.postForm("/oauth/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {"http://localhost/callback"},
		"code_verifier": {testVerifier},
	}, true)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	body := decodeJSON(t, w.Body.Bytes())
	assert.NotEmpty(t, body["access_token"])
	assert.NotEmpty(t, body["refresh_token"])
	assert.NotEmpty(t, body["id_token"])
	assert.Equal(t, "Bearer", body["token_type"])
	assert.Equal(t, "openid profile", body["scope"])
	assert.InDelta(t, 3600, body["expires_in"], 10)
}

func TestToken_MissingClientID(t *testing.T) {
	e := setupHandlerTest(t)

	w := e.postForm("/oauth/token", url.Values{
		"grant_type": {"authorization_code"},
	}, false)

	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeJSON(t, w.Body.Bytes())
	assert.Equal(t, "invalid_request", body["error"])
}

func TestToken_InvalidClient(t *testing.T) {
	e := setupHandlerTest(t)

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {e.client.ClientID},
		"client_secret": {"tg_wrong"},
	}
	w := e.postForm("/oauth/token", form, false)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, `Basic realm="TokenGate"`, w.Header().Get("WWW-Authenticate"))
	body := decodeJSON(t, w.Body.Bytes())
	assert.Equal(t, "invalid_client", body["error"])
}

func TestToken_UnsupportedGrantType(t *testing.T) {
	e := setupHandlerTest(t)

	w := e.postForm("/oauth/token", url.Values{
		"grant_type": {"password"},
	}, true)

	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeJSON(t, w.Body.Bytes())
	assert.Equal(t, "unsupported_grant_type", body["error"])
}

func TestToken_InvalidCodeIsInvalidGrant(t *testing.T) {
	e := setupHandlerTest(t)

	w := e.postForm("/oauth/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {"bogus"},
		"redirect_uri":  {"http://localhost/callback"},
		"code_verifier": {testVerifier},
	}, true)

	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeJSON(t, w.Body.Bytes())
	assert.Equal(t, "invalid_grant", body["error"])
}

func TestToken_RefreshFlow(t *testing.T) {
	e := setupHandlerTest(t)
	resp := e.issueAccessToken(t, "openid profile")

	w := e.postForm("/oauth/token", url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {resp.RefreshToken.RawToken},
	}, true)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeJSON(t, w.Body.Bytes())
	assert.NotEmpty(t, body["access_token"])
	assert.NotEqual(t, resp.RefreshToken.RawToken, body["refresh_token"])
}

func TestToken_RefreshMissingToken(t *testing.T) {
	e := setupHandlerTest(t)

	w := e.postForm("/oauth/token", url.Values{
		"grant_type": {"refresh_token"},
	}, true)

	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeJSON(t, w.Body.Bytes())
	assert.Equal(t, "invalid_request", body["error"])
}

func TestToken_ClientCredentialsViaPostAuth(t *testing.T) {
	e := setupHandlerTest(t)

	// client_secret_post presentation is refused when the client is
	// registered for client_secret_basic
	w := e.postForm("/oauth/token", url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {e.client.ClientID},
		"client_secret": {e.secret},
	}, false)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.postForm("/oauth/token", url.Values{
		"grant_type": {"client_credentials"},
	}, true)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeJSON(t, w.Body.Bytes())
	assert.NotEmpty(t, body["access_token"])
	assert.Nil(t, body["refresh_token"])
	assert.Nil(t, body["id_token"])
}

func TestRevoke(t *testing.T) {
	e := setupHandlerTest(t)
	resp := e.issueAccessToken(t, "openid")

	w := e.postForm("/oauth/revoke", url.Values{
		"token":           {resp.RefreshToken.RawToken},
		"token_type_hint": {"refresh_token"},
	}, true)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeJSON(t, w.Body.Bytes())
	assert.Equal(t, true, body["success"])

	// Cascade killed the access token too
	stored, err := e.store.GetAccessTokenByJTI(resp.AccessToken.JTI)
	require.NoError(t, err)
	assert.True(t, stored.Revoked)

	// Unknown tokens also return 200
	w = e.postForm("/oauth/revoke", url.Values{"token": {"unknown"}}, true)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRevoke_WrongContentType(t *testing.T) {
	e := setupHandlerTest(t)

	req := httptest.NewRequest(http.MethodPost, "/oauth/revoke", strings.NewReader(`{"token":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(e.client.ClientID, e.secret)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestRevoke_MissingToken(t *testing.T) {
	e := setupHandlerTest(t)

	w := e.postForm("/oauth/revoke", url.Values{}, true)
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeJSON(t, w.Body.Bytes())
	assert.Equal(t, "invalid_request", body["error"])
}

func TestRevoke_RequiresClientAuth(t *testing.T) {
	e := setupHandlerTest(t)

	w := e.postForm("/oauth/revoke", url.Values{"token": {"anything"}}, false)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, `Basic realm="TokenGate"`, w.Header().Get("WWW-Authenticate"))
}

func TestTokenInfo(t *testing.T) {
	e := setupHandlerTest(t)
	resp := e.issueAccessToken(t, "openid profile")

	w := e.get("/oauth/tokeninfo", resp.AccessToken.RawToken)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeJSON(t, w.Body.Bytes())
	assert.Equal(t, true, body["active"])
	assert.Equal(t, e.user.ID, body["user_id"])
	assert.Equal(t, e.client.ClientID, body["client_id"])
	assert.Equal(t, "user", body["subject_type"])

	// Revoked token: still 200, active=false
	require.NoError(t, e.store.RevokeAccessTokenByJTI(resp.AccessToken.JTI))
	w = e.get("/oauth/tokeninfo", resp.AccessToken.RawToken)
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeJSON(t, w.Body.Bytes())
	assert.Equal(t, false, body["active"])
}

func TestTokenInfo_MissingBearer(t *testing.T) {
	e := setupHandlerTest(t)

	w := e.get("/oauth/tokeninfo", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
