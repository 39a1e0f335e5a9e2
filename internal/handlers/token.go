package handlers

import (
	"errors"
	"net/http"

	"github.com/go-tokengate/tokengate/internal/config"
	"github.com/go-tokengate/tokengate/internal/middleware"
	"github.com/go-tokengate/tokengate/internal/models"
	"github.com/go-tokengate/tokengate/internal/services"

	"github.com/gin-gonic/gin"
)

type TokenHandler struct {
	tokenService      *services.TokenService
	clientService     *services.ClientService
	revocationService *services.RevocationService
	verifyService     *services.VerificationService
	config            *config.Config
}

func NewTokenHandler(
	ts *services.TokenService,
	cs *services.ClientService,
	rs *services.RevocationService,
	vs *services.VerificationService,
	cfg *config.Config,
) *TokenHandler {
	return &TokenHandler{
		tokenService:      ts,
		clientService:     cs,
		revocationService: rs,
		verifyService:     vs,
		config:            cfg,
	}
}

// extractClientCredentials pulls client authentication from the request.
// HTTP Basic Auth is preferred (RFC 6749 §2.3.1); client_secret in the form
// body is accepted as client_secret_post; a bare client_id is treated as a
// public client ("none" method).
func extractClientCredentials(c *gin.Context) services.ClientCredentials {
	if clientID, clientSecret, ok := c.Request.BasicAuth(); ok {
		return services.ClientCredentials{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Method:       models.AuthMethodBasic,
		}
	}

	clientID := c.PostForm("client_id")
	clientSecret := c.PostForm("client_secret")
	if clientSecret != "" {
		return services.ClientCredentials{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Method:       models.AuthMethodPost,
		}
	}

	return services.ClientCredentials{
		ClientID: clientID,
		Method:   models.AuthMethodNone,
	}
}

// Token godoc
//
//	@Summary		Request access token
//	@Description	Exchange an authorization code, refresh token, or client credentials for tokens (RFC 6749, OAuth 2.1)
//	@Tags			OAuth
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			grant_type		formData	string																							true	"Grant type: 'authorization_code', 'refresh_token', or 'client_credentials'"
//	@Param			code			formData	string																							false	"Authorization code (required when grant_type=authorization_code)"
//	@Param			redirect_uri	formData	string																							false	"Redirect URI used on the authorization request"
//	@Param			code_verifier	formData	string																							false	"PKCE code verifier"
//	@Param			refresh_token	formData	string																							false	"Refresh token (required when grant_type=refresh_token)"
//	@Param			scope			formData	string																							false	"Requested scope (narrowing only)"
//	@Param			client_id		formData	string																							false	"OAuth client ID (when not using HTTP Basic Auth)"
//	@Param			client_secret	formData	string																							false	"OAuth client secret (when not using HTTP Basic Auth)"
//	@Success		200				{object}	object{access_token=string,refresh_token=string,token_type=string,expires_in=int,scope=string}	"Tokens issued successfully"
//	@Failure		400				{object}	object{error=string,error_description=string}													"Invalid request"
//	@Failure		401				{object}	object{error=string,error_description=string}													"Client authentication failed"
//	@Failure		429				{object}	object{error=string,error_description=string}													"Rate limit exceeded"
//	@Router			/oauth/token [post]
func (h *TokenHandler) Token(c *gin.Context) {
	creds := extractClientCredentials(c)
	if creds.ClientID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "client_id is required",
		})
		return
	}

	client, err := h.clientService.Authenticate(c.Request.Context(), creds)
	if err != nil {
		// RFC 6749 §5.2: 401 + WWW-Authenticate for invalid_client
		c.Header("WWW-Authenticate", `Basic realm="TokenGate"`)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "invalid_client",
			"error_description": "Client authentication failed",
		})
		return
	}

	var grant services.GrantRequest
	switch c.PostForm("grant_type") {
	case services.GrantTypeAuthorizationCode:
		grant = services.AuthorizationCodeGrant{
			Code:         c.PostForm("code"),
			RedirectURI:  c.PostForm("redirect_uri"),
			CodeVerifier: c.PostForm("code_verifier"),
		}
	case services.GrantTypeRefreshToken:
		refreshToken := c.PostForm("refresh_token")
		if refreshToken == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "invalid_request",
				"error_description": "refresh_token is required",
			})
			return
		}
		grant = services.RefreshTokenGrant{
			RefreshToken: refreshToken,
			Scope:        c.PostForm("scope"),
		}
	case services.GrantTypeClientCredentials:
		grant = services.ClientCredentialsGrant{
			Scope: c.PostForm("scope"),
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "unsupported_grant_type",
			"error_description": "Supported grant types: authorization_code, refresh_token, client_credentials",
		})
		return
	}

	resp, err := h.tokenService.Exchange(c.Request.Context(), client, grant)
	if err != nil {
		h.writeTokenError(c, err)
		return
	}

	body := gin.H{
		"access_token": resp.AccessToken.RawToken,
		"token_type":   resp.AccessToken.TokenType,
		"expires_in":   resp.ExpiresIn,
		"scope":        resp.Scope,
	}
	if resp.RefreshToken != nil {
		body["refresh_token"] = resp.RefreshToken.RawToken
	}
	if resp.IDToken != "" {
		body["id_token"] = resp.IDToken
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, body)
}

// writeTokenError maps service errors onto RFC 6749 §5.2 token endpoint errors.
func (h *TokenHandler) writeTokenError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidGrant):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_grant",
			"error_description": "The provided grant is invalid, expired, revoked, or was issued to another client",
		})
	case errors.Is(err, services.ErrUnauthorizedClient):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "unauthorized_client",
			"error_description": "The client is not authorized to use this grant type",
		})
	case errors.Is(err, services.ErrInvalidScope):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_scope",
			"error_description": "Requested scope exceeds the granted or registered scope",
		})
	case errors.Is(err, services.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "The request is missing a required parameter",
		})
	case errors.Is(err, services.ErrUnsupportedGrantType):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unsupported_grant_type",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "Token issuance failed",
		})
	}
}

// Revoke godoc
//
//	@Summary		Revoke token
//	@Description	Revoke an access token or refresh token (RFC 7009). Returns 200 for both successful revocation and unknown tokens to prevent token scanning.
//	@Tags			OAuth
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			token			formData	string											true	"Token to revoke"
//	@Param			token_type_hint	formData	string											false	"Token type hint: 'access_token' or 'refresh_token'"
//	@Success		200				{string}	string											"Token revoked (or unknown token)"
//	@Failure		400				{object}	object{error=string,error_description=string}	"token parameter missing"
//	@Failure		401				{object}	object{error=string,error_description=string}	"Client authentication failed"
//	@Router			/oauth/revoke [post]
func (h *TokenHandler) Revoke(c *gin.Context) {
	if c.ContentType() != "application/x-www-form-urlencoded" {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{
			"error":             "invalid_request",
			"error_description": "Content-Type must be application/x-www-form-urlencoded",
		})
		return
	}

	creds := extractClientCredentials(c)
	client, err := h.clientService.Authenticate(c.Request.Context(), creds)
	if err != nil {
		c.Header("WWW-Authenticate", `Basic realm="TokenGate"`)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "invalid_client",
			"error_description": "Client authentication failed",
		})
		return
	}

	// RFC 7009 §2.1: the token parameter is REQUIRED
	raw := c.PostForm("token")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "token parameter is required",
		})
		return
	}

	tokenTypeHint := c.PostForm("token_type_hint")

	// RFC 7009 §2.2: respond 200 whether the token was revoked or was already
	// invalid, to prevent token scanning.
	if err := h.revocationService.Revoke(c.Request.Context(), client, raw, tokenTypeHint); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "server_error",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// TokenInfo godoc
//
//	@Summary		Validate access token
//	@Description	Verify token validity and retrieve token information (RFC 7662 style introspection)
//	@Tags			OAuth
//	@Produce		json
//	@Security		BearerAuth
//	@Param			Authorization	header		string																				true	"Bearer token (format: 'Bearer <token>')"
//	@Success		200				{object}	object{active=bool,user_id=string,client_id=string,scope=string,exp=int,iss=string}	"Token state"
//	@Failure		401				{object}	object{error=string}																"Bearer token missing"
//	@Router			/oauth/tokeninfo [get]
func (h *TokenHandler) TokenInfo(c *gin.Context) {
	raw, ok := middleware.BearerToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "missing_token",
		})
		return
	}

	verified, active := h.verifyService.Introspect(c.Request.Context(), raw)
	if !active {
		c.JSON(http.StatusOK, gin.H{"active": false})
		return
	}

	// Distinguish user-delegated tokens from machine (client credentials) tokens
	subjectType := "user"
	if verified.UserID == "" {
		subjectType = "client"
	}

	c.JSON(http.StatusOK, gin.H{
		"active":       true,
		"user_id":      verified.UserID,
		"client_id":    verified.ClientID,
		"scope":        verified.Scopes,
		"exp":          verified.ExpiresAt.Unix(),
		"iss":          h.config.BaseURL,
		"subject_type": subjectType,
		"permissions":  verified.Permissions,
	})
}
