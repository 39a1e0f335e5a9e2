package services

import (
	"context"
	"log"

	"github.com/go-tokengate/tokengate/internal/core"
	"github.com/go-tokengate/tokengate/internal/models"
	"github.com/go-tokengate/tokengate/internal/store"
	"github.com/go-tokengate/tokengate/internal/token"
	"github.com/go-tokengate/tokengate/internal/util"
)

// RevocationService implements RFC 7009 token revocation.
//
// Per the RFC, revocation never reveals token state: unknown, expired, and
// already-revoked tokens all succeed silently. The only client-visible
// errors are authentication failures, handled before this service runs.
type RevocationService struct {
	store        *store.Store
	signer       *token.Signer
	auditService *AuditService
	metrics      core.Recorder
}

func NewRevocationService(
	s *store.Store,
	signer *token.Signer,
	auditService *AuditService,
	m core.Recorder,
) *RevocationService {
	return &RevocationService{
		store:        s,
		signer:       signer,
		auditService: auditService,
		metrics:      m,
	}
}

// Revoke processes a revocation request from an authenticated client.
// token_type_hint only orders the lookup; a wrong hint is not an error.
// Revoking a refresh token cascades to every access token issued with it.
func (s *RevocationService) Revoke(
	ctx context.Context,
	client *models.Client,
	raw, tokenTypeHint string,
) error {
	if raw == "" {
		return nil
	}

	hash := util.SHA256Hex(raw)

	// If the value verifies as one of our JWTs, its kind claim orders the
	// lookup more reliably than the caller's hint. Parse failures mean
	// nothing here: expired or foreign values still take the hash path.
	if verified, err := s.signer.ParseAnyToken(raw); err == nil {
		switch verified.Kind {
		case token.KindRefresh:
			tokenTypeHint = "refresh_token"
		case token.KindAccess:
			tokenTypeHint = "access_token"
		}
	}

	if tokenTypeHint == "refresh_token" {
		if done := s.tryRevokeRefresh(ctx, client, hash); done {
			return nil
		}
		s.tryRevokeAccess(ctx, client, hash)
		return nil
	}

	if done := s.tryRevokeAccess(ctx, client, hash); done {
		return nil
	}
	s.tryRevokeRefresh(ctx, client, hash)
	return nil
}

// tryRevokeAccess revokes a single access token by hash. Returns true when
// a record matched, regardless of whether any state changed.
func (s *RevocationService) tryRevokeAccess(
	ctx context.Context,
	client *models.Client,
	hash string,
) bool {
	record, err := s.store.GetAccessTokenByHash(hash)
	if err != nil {
		return false
	}

	// Clients may only revoke their own tokens. Pretend success for
	// foreign tokens so ownership cannot be probed.
	if record.ClientID != client.ClientID {
		log.Printf("[Revoke] Client %s attempted to revoke token owned by %s",
			client.ClientID, record.ClientID)
		s.logForeignAttempt(ctx, client, record.ID)
		return true
	}

	alreadyRevoked := record.Revoked
	if err := s.store.RevokeAccessTokenByJTI(record.JTI); err != nil {
		log.Printf("[Revoke] Access token revocation failed jti=%s: %v", record.JTI, err)
		return true
	}

	if !alreadyRevoked {
		if s.metrics != nil {
			s.metrics.RecordTokenRevoked("access", "client_request")
		}
		s.logRevoked(ctx, client, record.ID, "access", models.AuditDetails{
			"jti":       record.JTI,
			"client_id": client.ClientID,
		})
	}
	return true
}

// tryRevokeRefresh revokes a refresh token and cascades to its linked
// access tokens. Returns true when a record matched.
func (s *RevocationService) tryRevokeRefresh(
	ctx context.Context,
	client *models.Client,
	hash string,
) bool {
	record, err := s.store.GetRefreshTokenByHash(hash)
	if err != nil {
		return false
	}

	if record.ClientID != client.ClientID {
		log.Printf("[Revoke] Client %s attempted to revoke token owned by %s",
			client.ClientID, record.ClientID)
		s.logForeignAttempt(ctx, client, record.ID)
		return true
	}

	alreadyRevoked := record.Revoked
	if err := s.store.RevokeRefreshTokenCascade(record.ID); err != nil {
		log.Printf("[Revoke] Refresh token cascade failed id=%s: %v", record.ID, err)
		return true
	}

	if !alreadyRevoked {
		if s.metrics != nil {
			s.metrics.RecordTokenRevoked("refresh", "client_request")
		}
		s.logRevoked(ctx, client, record.ID, "refresh", models.AuditDetails{
			"jti":       record.JTI,
			"client_id": client.ClientID,
			"cascade":   true,
		})
	}
	return true
}

func (s *RevocationService) logRevoked(
	ctx context.Context,
	client *models.Client,
	resourceID, category string,
	details models.AuditDetails,
) {
	if s.auditService == nil {
		return
	}
	s.auditService.Log(ctx, AuditLogEntry{
		EventType:     models.EventTokenRevoked,
		Severity:      models.SeverityInfo,
		ActorClientID: client.ClientID,
		ResourceType:  models.ResourceToken,
		ResourceID:    resourceID,
		Action:        "Token revoked at client request (" + category + ")",
		Details:       details,
		Success:       true,
	})
}

func (s *RevocationService) logForeignAttempt(
	ctx context.Context,
	client *models.Client,
	resourceID string,
) {
	if s.auditService == nil {
		return
	}
	s.auditService.Log(ctx, AuditLogEntry{
		EventType:     models.EventSuspiciousActivity,
		Severity:      models.SeverityWarning,
		ActorClientID: client.ClientID,
		ResourceType:  models.ResourceToken,
		ResourceID:    resourceID,
		Action:        "Client attempted to revoke a token it does not own",
		Success:       false,
	})
}
