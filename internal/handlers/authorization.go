package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-tokengate/tokengate/internal/config"
	"github.com/go-tokengate/tokengate/internal/services"
	"github.com/go-tokengate/tokengate/internal/util"

	"github.com/gin-gonic/gin"
)

// AuthorizationHandler drives the OAuth 2.1 authorization code flow for a
// bearer-authenticated user: request validation, consent, and code issuance.
type AuthorizationHandler struct {
	authorizationService *services.AuthorizationService
	userService          *services.UserService
	config               *config.Config
}

func NewAuthorizationHandler(
	as *services.AuthorizationService,
	us *services.UserService,
	cfg *config.Config,
) *AuthorizationHandler {
	return &AuthorizationHandler{
		authorizationService: as,
		userService:          us,
		config:               cfg,
	}
}

const (
	errInvalidRequest = "invalid_request"
	maxStateLength    = 1024
	maxNonceLength    = 1024
)

// Authorize validates an authorization request (GET /oauth/authorize).
// When the user's recorded consent already covers the requested scopes, a
// code is issued and the user agent is redirected immediately. Otherwise the
// request details are returned so the caller can prompt for consent.
func (h *AuthorizationHandler) Authorize(c *gin.Context) {
	clientID := c.Query("client_id")
	redirectURI := c.Query("redirect_uri")
	responseType := c.Query("response_type")
	scope := c.Query("scope")
	state := c.Query("state")
	nonce := c.Query("nonce")
	codeChallenge := c.Query("code_challenge")
	codeChallengeMethod := c.Query("code_challenge_method")

	if len(state) > maxStateLength {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             errInvalidRequest,
			"error_description": "state parameter exceeds maximum length",
		})
		return
	}

	if len(nonce) > maxNonceLength {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             errInvalidRequest,
			"error_description": "nonce parameter exceeds maximum length",
		})
		return
	}

	req, err := h.authorizationService.ValidateAuthorizationRequest(
		clientID, redirectURI, responseType, scope, state, nonce,
		codeChallenge, codeChallengeMethod,
	)
	if err != nil {
		h.writeAuthorizeError(c, redirectURI, state, err)
		return
	}

	userID := c.GetString("user_id")

	// Skip the consent prompt when the recorded grant already covers the
	// requested scopes.
	if h.config.ConsentRemember && h.authorizationService.HasConsent(userID, clientID, req.Scopes) {
		h.issueCodeAndRedirect(c, req, userID)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"consent_required": true,
		"client_id":        req.Client.ClientID,
		"client_name":      req.Client.ClientName,
		"redirect_uri":     req.RedirectURI,
		"scope":            req.Scopes,
		"scopes":           strings.Fields(req.Scopes),
		"state":            req.State,
	})
}

// Consent processes the user's consent decision (POST /oauth/authorize/consent).
// The request parameters are re-validated to prevent tampering between the
// authorize and consent steps.
func (h *AuthorizationHandler) Consent(c *gin.Context) {
	action := c.PostForm("action") // "approve" or "deny"
	clientID := c.PostForm("client_id")
	redirectURI := c.PostForm("redirect_uri")
	scope := c.PostForm("scope")
	state := c.PostForm("state")
	nonce := c.PostForm("nonce")
	codeChallenge := c.PostForm("code_challenge")
	codeChallengeMethod := c.PostForm("code_challenge_method")

	if len(state) > maxStateLength || len(nonce) > maxNonceLength {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             errInvalidRequest,
			"error_description": "state or nonce parameter exceeds maximum length",
		})
		return
	}

	req, err := h.authorizationService.ValidateAuthorizationRequest(
		clientID, redirectURI, "code", scope, state, nonce,
		codeChallenge, codeChallengeMethod,
	)
	if err != nil {
		h.writeAuthorizeError(c, redirectURI, state, err)
		return
	}

	// Deny path: redirect with access_denied after validation so the error
	// only ever reaches a registered redirect URI
	if action != "approve" {
		h.redirectWithError(c, req.RedirectURI, state, "access_denied",
			"User denied the authorization request")
		return
	}

	userID := c.GetString("user_id")

	if _, err := h.authorizationService.GrantConsent(
		c.Request.Context(), userID, clientID, req.Scopes,
	); err != nil {
		h.redirectWithError(c, req.RedirectURI, state, "server_error",
			"Failed to save consent")
		return
	}

	h.issueCodeAndRedirect(c, req, userID)
}

// RevokeConsent withdraws the user's consent for one client
// (DELETE /oauth/consent/:client_id). Tokens already issued remain valid
// until they expire or are revoked.
func (h *AuthorizationHandler) RevokeConsent(c *gin.Context) {
	clientID := c.Param("client_id")
	userID := c.GetString("user_id")

	if err := h.authorizationService.RevokeConsent(c.Request.Context(), userID, clientID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":             "not_found",
			"error_description": "No active consent for this client",
		})
		return
	}

	c.Status(http.StatusNoContent)
}

// issueCodeAndRedirect generates an authorization code and redirects to the
// client's redirect_uri with code and state.
func (h *AuthorizationHandler) issueCodeAndRedirect(
	c *gin.Context,
	req *services.AuthorizationRequest,
	userID string,
) {
	plainCode, _, err := h.authorizationService.CreateAuthorizationCode(
		c.Request.Context(), req, userID,
	)
	if err != nil {
		h.redirectWithError(c, req.RedirectURI, req.State, "server_error",
			"Failed to generate authorization code")
		return
	}

	u, err := url.Parse(req.RedirectURI)
	if err != nil || !util.IsSafeRedirectTarget(req.RedirectURI) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid redirect_uri"})
		return
	}
	q := u.Query()
	q.Set("code", plainCode)
	if req.State != "" {
		q.Set("state", req.State)
	}
	u.RawQuery = q.Encode()
	c.Redirect(http.StatusFound, u.String())
}

// writeAuthorizeError reports a validation failure. Errors that bind the
// request to a registered redirect URI (unknown client, bad redirect_uri,
// wrong response_type) must never redirect; everything later in validation
// is reported to the redirect URI per RFC 6749 §4.1.2.1.
func (h *AuthorizationHandler) writeAuthorizeError(
	c *gin.Context,
	redirectURI, state string,
	err error,
) {
	code := oauthErrorCode(err)

	switch {
	case errors.Is(err, services.ErrUnauthorizedClient),
		errors.Is(err, services.ErrInvalidRedirectURI),
		errors.Is(err, services.ErrUnsupportedResponseType):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             code,
			"error_description": err.Error(),
		})
	default:
		h.redirectWithError(c, redirectURI, state, code, err.Error())
	}
}

// redirectWithError sends an OAuth error response as a redirect to the
// client's redirect_uri, falling back to a JSON error when the URI is
// missing or unparsable.
func (h *AuthorizationHandler) redirectWithError(
	c *gin.Context,
	redirectURI, state, errorCode, description string,
) {
	if redirectURI == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             errorCode,
			"error_description": description,
		})
		return
	}
	u, err := url.Parse(redirectURI)
	if err != nil || !util.IsSafeRedirectTarget(redirectURI) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             errorCode,
			"error_description": description,
		})
		return
	}
	q := u.Query()
	q.Set("error", errorCode)
	q.Set("error_description", description)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	c.Redirect(http.StatusFound, u.String())
}

// oauthErrorCode maps service errors to RFC 6749 error codes.
func oauthErrorCode(err error) string {
	switch {
	case errors.Is(err, services.ErrUnauthorizedClient):
		return "unauthorized_client"
	case errors.Is(err, services.ErrUnsupportedResponseType):
		return "unsupported_response_type"
	case errors.Is(err, services.ErrInvalidScope):
		return "invalid_scope"
	case errors.Is(err, services.ErrInvalidRedirectURI):
		return errInvalidRequest
	default:
		return errInvalidRequest
	}
}
