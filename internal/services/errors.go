package services

import "errors"

// OAuth protocol errors. Handlers map these onto RFC 6749 error codes
// with errors.Is; the sentinel message is the wire-format error string.
var (
	ErrInvalidRequest          = errors.New("invalid_request")
	ErrInvalidClient           = errors.New("invalid_client")
	ErrInvalidGrant            = errors.New("invalid_grant")
	ErrUnauthorizedClient      = errors.New("unauthorized_client")
	ErrUnsupportedGrantType    = errors.New("unsupported_grant_type")
	ErrInvalidScope            = errors.New("invalid_scope")
	ErrUnsupportedResponseType = errors.New("unsupported_response_type")
	ErrAccessDenied            = errors.New("access_denied")
)

// Domain errors below never cross the wire verbatim.
var (
	ErrInvalidRedirectURI  = errors.New("invalid redirect_uri")
	ErrAuthCodeNotFound    = errors.New("authorization code not found")
	ErrAuthCodeExpired     = errors.New("authorization code expired")
	ErrAuthCodeAlreadyUsed = errors.New("authorization code already used")
	ErrConsentRequired     = errors.New("user consent required")
	ErrTokenNotActive      = errors.New("token not active")
	ErrInsufficientScope   = errors.New("insufficient scope")
	ErrClientNotFound      = errors.New("client not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidCredentials  = errors.New("invalid username or password")
)
