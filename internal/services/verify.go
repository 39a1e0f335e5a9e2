package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/go-tokengate/tokengate/internal/config"
	"github.com/go-tokengate/tokengate/internal/core"
	"github.com/go-tokengate/tokengate/internal/store"
	"github.com/go-tokengate/tokengate/internal/token"
	"github.com/go-tokengate/tokengate/internal/util"
)

// VerificationService validates presented access tokens. Verification is
// layered: signature and claims first, then the blacklist, then the
// persisted record. A token is live only if every layer agrees.
type VerificationService struct {
	store          *store.Store
	config         *config.Config
	signer         *token.Signer
	blacklistCache core.Cache[bool]
	metrics        core.Recorder
}

func NewVerificationService(
	s *store.Store,
	cfg *config.Config,
	signer *token.Signer,
	blacklistCache core.Cache[bool],
	m core.Recorder,
) *VerificationService {
	return &VerificationService{
		store:          s,
		config:         cfg,
		signer:         signer,
		blacklistCache: blacklistCache,
		metrics:        m,
	}
}

// VerifyAccessToken checks a raw access token through every layer and
// returns the verified claims on success.
//
// Error mapping for resource endpoints: any failure here is a 401; scope
// enforcement (RequireScope) is the only 403 source.
func (s *VerificationService) VerifyAccessToken(
	ctx context.Context,
	raw string,
) (*token.VerifiedToken, error) {
	start := time.Now()
	verified, result := s.verify(ctx, raw)
	if s.metrics != nil {
		s.metrics.RecordTokenValidation(result, time.Since(start))
	}
	if verified == nil {
		return nil, ErrTokenNotActive
	}
	return verified, nil
}

func (s *VerificationService) verify(ctx context.Context, raw string) (*token.VerifiedToken, string) {
	// 1. Signature, issuer, expiry, kind
	verified, err := s.signer.ParseAccessToken(raw)
	if err != nil {
		if errors.Is(err, token.ErrExpiredToken) {
			return nil, "expired"
		}
		return nil, "invalid_signature"
	}

	// 2. Blacklist: presence is fatal regardless of the JWT's own claims
	blacklisted, err := s.isBlacklisted(ctx, verified.JTI)
	if err != nil {
		log.Printf("[Verify] Blacklist check failed for jti=%s: %v", verified.JTI, err)
		// Fail closed on blacklist errors
		return nil, "blacklist_error"
	}
	if blacklisted {
		return nil, "revoked"
	}

	// 3. Cross-check the persisted record
	record, err := s.store.GetAccessTokenByJTI(verified.JTI)
	if err != nil {
		return nil, "not_found"
	}
	if record.Revoked {
		return nil, "revoked"
	}
	if record.IsExpired() {
		return nil, "expired"
	}

	// The record found by jti must be for this exact token and subject.
	// A mismatch means a forged or confused token; fail closed.
	if record.TokenHash != util.SHA256Hex(raw) ||
		record.UserID != verified.UserID ||
		record.ClientID != verified.ClientID {
		return nil, "record_mismatch"
	}

	return verified, "success"
}

// isBlacklisted consults the cache-aside blacklist. Cache entries are
// short-lived so revocations propagate within BlacklistCacheTTL.
func (s *VerificationService) isBlacklisted(ctx context.Context, jti string) (bool, error) {
	if s.blacklistCache == nil {
		return s.store.IsTokenBlacklisted(jti)
	}
	return s.blacklistCache.GetWithFetch(
		ctx,
		"blacklist:"+jti,
		s.config.BlacklistCacheTTL,
		func(_ context.Context, _ string) (bool, error) {
			return s.store.IsTokenBlacklisted(jti)
		},
	)
}

// RequireScope checks that the verified token carries the required scope.
func (s *VerificationService) RequireScope(verified *token.VerifiedToken, required string) error {
	if !token.NewScopeSet(verified.Scopes).Has(required) {
		return ErrInsufficientScope
	}
	return nil
}

// Introspect returns the token's state without enforcing liveness, for the
// tokeninfo endpoint. Inactive tokens yield active=false, never an error.
func (s *VerificationService) Introspect(ctx context.Context, raw string) (*token.VerifiedToken, bool) {
	start := time.Now()
	verified, result := s.verify(ctx, raw)
	if s.metrics != nil {
		s.metrics.RecordTokenValidation(result, time.Since(start))
	}
	return verified, verified != nil
}
