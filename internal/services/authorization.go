package services

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-tokengate/tokengate/internal/config"
	"github.com/go-tokengate/tokengate/internal/core"
	"github.com/go-tokengate/tokengate/internal/models"
	"github.com/go-tokengate/tokengate/internal/store"
	"github.com/go-tokengate/tokengate/internal/token"
	"github.com/go-tokengate/tokengate/internal/util"

	"github.com/google/uuid"
)

// AuthorizationRequest holds validated parameters for an authorization request.
type AuthorizationRequest struct {
	Client              *models.Client
	RedirectURI         string
	Scopes              string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// AuthorizationService manages the OAuth 2.1 authorization code flow.
type AuthorizationService struct {
	store        *store.Store
	config       *config.Config
	auditService *AuditService
	metrics      core.Recorder
}

func NewAuthorizationService(
	s *store.Store,
	cfg *config.Config,
	auditService *AuditService,
	m core.Recorder,
) *AuthorizationService {
	return &AuthorizationService{
		store:        s,
		config:       cfg,
		auditService: auditService,
		metrics:      m,
	}
}

// ValidateAuthorizationRequest validates all parameters of an incoming
// authorization request. Returns the parsed AuthorizationRequest on success.
func (s *AuthorizationService) ValidateAuthorizationRequest(
	clientID, redirectURI, responseType, scope, state, nonce, codeChallenge, codeChallengeMethod string,
) (*AuthorizationRequest, error) {
	// 1. response_type must be "code"
	if responseType != "code" {
		return nil, ErrUnsupportedResponseType
	}

	// 2. Client must exist, be active, and be registered for this grant
	client, err := s.store.GetClient(clientID)
	if err != nil || !client.IsActive {
		return nil, ErrUnauthorizedClient
	}
	if !client.AllowsGrantType("authorization_code") {
		return nil, ErrUnauthorizedClient
	}

	// 3. redirect_uri must exactly match one of the registered URIs.
	// Errors before this point must never redirect: the URI is untrusted.
	if !client.HasRedirectURI(redirectURI) {
		return nil, ErrInvalidRedirectURI
	}

	// 4. Scope must be a subset of the client's registered scopes
	if scope != "" && !token.NewScopeSet(client.Scopes).ContainsAll(token.ParseScopes(scope)) {
		return nil, ErrInvalidScope
	}
	if scope == "" {
		scope = client.Scopes
	}

	// 5. PKCE. Only S256 exists here: "plain" is a protocol error, and a
	// challenge without a method (or vice versa) is malformed.
	if codeChallenge == "" && codeChallengeMethod != "" {
		return nil, ErrInvalidRequest
	}
	if codeChallenge != "" {
		if codeChallengeMethod == "" {
			codeChallengeMethod = token.ChallengeMethodS256
		}
		if err := token.ValidateChallengeMethod(codeChallengeMethod); err != nil {
			return nil, ErrInvalidRequest
		}
	}
	if codeChallenge == "" {
		if client.RequirePKCE || client.IsPublic() || s.config.PKCERequired {
			return nil, ErrInvalidRequest
		}
	}

	return &AuthorizationRequest{
		Client:              client,
		RedirectURI:         redirectURI,
		Scopes:              scope,
		State:               state,
		Nonce:               nonce,
		CodeChallenge:       codeChallenge,
		CodeChallengeMethod: codeChallengeMethod,
	}, nil
}

// HasConsent reports whether the user has an active consent grant covering
// every requested scope for this client.
func (s *AuthorizationService) HasConsent(userID, clientID, scopes string) bool {
	grant, err := s.store.GetConsentGrant(userID, clientID)
	if err != nil {
		return false
	}
	return token.NewScopeSet(grant.Scopes).ContainsAll(token.ParseScopes(scopes))
}

// GrantConsent records the user's consent decision for a client. New scopes
// are unioned with any still-active grant, so consenting to a narrower
// request never withdraws scopes the user already approved. Revoked grants
// do not contribute; re-consent starts from the newly approved set.
func (s *AuthorizationService) GrantConsent(
	ctx context.Context,
	userID, clientID, scopes string,
) (*models.ConsentGrant, error) {
	if existing, err := s.store.GetConsentGrant(userID, clientID); err == nil {
		granted := token.ParseScopes(existing.Scopes)
		added := token.NewScopeSet(existing.Scopes).MissingFrom(token.ParseScopes(scopes))
		scopes = token.JoinScopes(append(granted, added...))
	}

	grant, err := s.store.UpsertConsentGrant(userID, clientID, scopes)
	if err != nil {
		return nil, fmt.Errorf("failed to save consent grant: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordConsentDecision(true)
	}
	if s.auditService != nil {
		s.auditService.Log(ctx, AuditLogEntry{
			EventType:     models.EventConsentGranted,
			Severity:      models.SeverityInfo,
			ActorUserID:   userID,
			ActorClientID: clientID,
			ResourceType:  models.ResourceAuthorization,
			ResourceID:    grant.UUID,
			Action:        "User granted consent to client",
			Details: models.AuditDetails{
				"client_id": clientID,
				"scopes":    scopes,
			},
			Success: true,
		})
	}

	return grant, nil
}

// RevokeConsent withdraws a user's consent for a client.
func (s *AuthorizationService) RevokeConsent(ctx context.Context, userID, clientID string) error {
	if err := s.store.RevokeConsentGrant(userID, clientID); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordConsentDecision(false)
	}
	if s.auditService != nil {
		s.auditService.Log(ctx, AuditLogEntry{
			EventType:     models.EventConsentRevoked,
			Severity:      models.SeverityInfo,
			ActorUserID:   userID,
			ActorClientID: clientID,
			ResourceType:  models.ResourceAuthorization,
			ResourceID:    clientID,
			Action:        "User revoked consent for client",
			Success:       true,
		})
	}
	return nil
}

// CreateAuthorizationCode generates a one-time authorization code bound to
// the validated request and saves it. Returns the plaintext code for the
// redirect; only its hash is persisted.
func (s *AuthorizationService) CreateAuthorizationCode(
	ctx context.Context,
	req *AuthorizationRequest,
	userID string,
) (string, *models.AuthorizationCode, error) {
	// 32 cryptographically random bytes (256-bit entropy)
	rawBytes, err := util.CryptoRandomBytes(32)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordAuthorizationCodeIssued(false)
		}
		return "", nil, fmt.Errorf("failed to generate authorization code: %w", err)
	}
	plainCode := hex.EncodeToString(rawBytes)

	record := &models.AuthorizationCode{
		UUID:                uuid.New().String(),
		CodeHash:            util.SHA256Hex(plainCode),
		CodePrefix:          plainCode[:8],
		ClientID:            req.Client.ClientID,
		UserID:              userID,
		RedirectURI:         req.RedirectURI,
		Scopes:              req.Scopes,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		Nonce:               req.Nonce,
		ExpiresAt:           time.Now().Add(s.config.AuthCodeTTL),
	}

	if err := s.store.CreateAuthorizationCode(record); err != nil {
		if s.metrics != nil {
			s.metrics.RecordAuthorizationCodeIssued(false)
		}
		return "", nil, fmt.Errorf("failed to save authorization code: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordAuthorizationCodeIssued(true)
	}
	if s.auditService != nil {
		s.auditService.Log(ctx, AuditLogEntry{
			EventType:     models.EventAuthorizationCodeGenerated,
			Severity:      models.SeverityInfo,
			ActorUserID:   userID,
			ActorClientID: req.Client.ClientID,
			ResourceType:  models.ResourceAuthorization,
			ResourceID:    record.UUID,
			Action:        "Authorization code generated",
			Details: models.AuditDetails{
				"client_id":   req.Client.ClientID,
				"scopes":      req.Scopes,
				"code_prefix": record.CodePrefix,
				"pkce":        req.CodeChallenge != "",
			},
			Success: true,
		})
	}

	return plainCode, record, nil
}

// RedeemCode validates a plaintext authorization code against the
// authenticated client and atomically marks it used. The caller issues
// tokens only after this returns successfully.
//
// PKCE fails closed: a stored challenge with no verifier is invalid_grant,
// as is a verifier with no stored challenge.
func (s *AuthorizationService) RedeemCode(
	ctx context.Context,
	client *models.Client,
	plainCode, redirectURI, codeVerifier string,
) (*models.AuthorizationCode, error) {
	record, err := s.store.GetAuthorizationCodeByHash(util.SHA256Hex(plainCode))
	if err != nil {
		s.recordRedeem("not_found")
		return nil, ErrAuthCodeNotFound
	}

	if record.IsUsed() {
		s.recordRedeem("already_used")
		s.logRedeemFailure(ctx, record, "Authorization code replayed")
		return nil, ErrAuthCodeAlreadyUsed
	}
	if record.IsExpired() {
		s.recordRedeem("expired")
		return nil, ErrAuthCodeExpired
	}
	// Codes are bound to the client that requested them
	if record.ClientID != client.ClientID {
		s.recordRedeem("client_mismatch")
		return nil, ErrAuthCodeNotFound
	}
	if record.RedirectURI != redirectURI {
		s.recordRedeem("redirect_mismatch")
		return nil, ErrInvalidRedirectURI
	}

	// PKCE verification against the stored challenge
	if record.CodeChallenge != "" || codeVerifier != "" {
		if err := token.VerifyPKCE(codeVerifier, record.CodeChallenge, record.CodeChallengeMethod); err != nil {
			s.recordRedeem("pkce_failed")
			s.logRedeemFailure(ctx, record, "PKCE verification failed")
			return nil, ErrInvalidGrant
		}
	} else if client.RequirePKCE || client.IsPublic() {
		s.recordRedeem("pkce_failed")
		return nil, ErrInvalidGrant
	}

	// Atomic claim: exactly one concurrent exchange wins
	now := time.Now()
	if err := s.store.MarkAuthorizationCodeUsed(record.CodeHash); err != nil {
		if errors.Is(err, store.ErrAuthCodeAlreadyUsed) {
			s.recordRedeem("already_used")
			s.logRedeemFailure(ctx, record, "Authorization code replayed")
			return nil, ErrAuthCodeAlreadyUsed
		}
		return nil, fmt.Errorf("failed to mark code as used: %w", err)
	}
	record.UsedAt = &now

	s.recordRedeem("success")
	if s.auditService != nil {
		s.auditService.Log(ctx, AuditLogEntry{
			EventType:     models.EventAuthorizationCodeExchanged,
			Severity:      models.SeverityInfo,
			ActorUserID:   record.UserID,
			ActorClientID: client.ClientID,
			ResourceType:  models.ResourceAuthorization,
			ResourceID:    record.UUID,
			Action:        "Authorization code exchanged for tokens",
			Details: models.AuditDetails{
				"client_id":   client.ClientID,
				"scopes":      record.Scopes,
				"code_prefix": record.CodePrefix,
			},
			Success: true,
		})
	}

	return record, nil
}

func (s *AuthorizationService) recordRedeem(result string) {
	if s.metrics != nil {
		s.metrics.RecordAuthorizationCodeRedeemed(result)
	}
}

func (s *AuthorizationService) logRedeemFailure(
	ctx context.Context,
	record *models.AuthorizationCode,
	action string,
) {
	if s.auditService == nil {
		return
	}
	s.auditService.Log(ctx, AuditLogEntry{
		EventType:     models.EventAuthorizationCodeDenied,
		Severity:      models.SeverityWarning,
		ActorUserID:   record.UserID,
		ActorClientID: record.ClientID,
		ResourceType:  models.ResourceAuthorization,
		ResourceID:    record.UUID,
		Action:        action,
		Details: models.AuditDetails{
			"client_id":   record.ClientID,
			"code_prefix": record.CodePrefix,
		},
		Success: false,
	})
}
