package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-tokengate/tokengate/internal/cache"
	"github.com/go-tokengate/tokengate/internal/models"
	"github.com/go-tokengate/tokengate/internal/util"
)

type verifyTestEnv struct {
	env    *tokenTestEnv
	verify *VerificationService
}

func setupVerifyTest(t *testing.T) *verifyTestEnv {
	t.Helper()
	e := setupTokenTest(t)
	cfg := testConfig()
	svc := NewVerificationService(e.store, cfg, e.signer, cache.NewMemoryCache[bool](), nil)
	return &verifyTestEnv{env: e, verify: svc}
}

func TestVerifyAccessToken_Success(t *testing.T) {
	v := setupVerifyTest(t)
	resp := v.env.issueViaCode(t, "openid profile")

	verified, err := v.verify.VerifyAccessToken(context.Background(), resp.AccessToken.RawToken)
	require.NoError(t, err)
	assert.Equal(t, v.env.user.ID, verified.UserID)
	assert.Equal(t, "openid profile", verified.Scopes)
}

func TestVerifyAccessToken_Garbage(t *testing.T) {
	v := setupVerifyTest(t)
	_, err := v.verify.VerifyAccessToken(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, ErrTokenNotActive)
}

func TestVerifyAccessToken_RefreshTokenRejected(t *testing.T) {
	v := setupVerifyTest(t)
	resp := v.env.issueViaCode(t, "openid")

	_, err := v.verify.VerifyAccessToken(context.Background(), resp.RefreshToken.RawToken)
	assert.ErrorIs(t, err, ErrTokenNotActive)
}

func TestVerifyAccessToken_RevokedToken(t *testing.T) {
	v := setupVerifyTest(t)
	resp := v.env.issueViaCode(t, "openid")
	ctx := context.Background()

	require.NoError(t, v.env.store.RevokeAccessTokenByJTI(resp.AccessToken.JTI))

	_, err := v.verify.VerifyAccessToken(ctx, resp.AccessToken.RawToken)
	assert.ErrorIs(t, err, ErrTokenNotActive)
}

func TestVerifyAccessToken_BlacklistCacheDelay(t *testing.T) {
	e := setupTokenTest(t)
	cfg := testConfig()
	cfg.BlacklistCacheTTL = 50 * time.Millisecond
	v := NewVerificationService(e.store, cfg, e.signer, cache.NewMemoryCache[bool](), nil)
	ctx := context.Background()

	resp := e.issueViaCode(t, "openid")

	// Prime the cache with a not-blacklisted answer
	_, err := v.VerifyAccessToken(ctx, resp.AccessToken.RawToken)
	require.NoError(t, err)

	// Revoke via blacklist only; the record itself stays unrevoked so the
	// cached blacklist answer is the deciding layer
	require.NoError(t, e.store.BlacklistToken(resp.AccessToken.JTI, "access", resp.AccessToken.ExpiresAt))

	// After the cache entry expires the revocation is visible
	time.Sleep(80 * time.Millisecond)
	_, err = v.VerifyAccessToken(ctx, resp.AccessToken.RawToken)
	assert.ErrorIs(t, err, ErrTokenNotActive)
}

func TestVerifyAccessToken_NoCacheFallsThroughToStore(t *testing.T) {
	e := setupTokenTest(t)
	v := NewVerificationService(e.store, testConfig(), e.signer, nil, nil)
	ctx := context.Background()

	resp := e.issueViaCode(t, "openid")
	_, err := v.VerifyAccessToken(ctx, resp.AccessToken.RawToken)
	require.NoError(t, err)

	require.NoError(t, e.store.BlacklistToken(resp.AccessToken.JTI, "access", resp.AccessToken.ExpiresAt))
	_, err = v.VerifyAccessToken(ctx, resp.AccessToken.RawToken)
	assert.ErrorIs(t, err, ErrTokenNotActive)
}

func TestVerifyAccessToken_RecordMismatchRejected(t *testing.T) {
	v := setupVerifyTest(t)
	ctx := context.Background()

	// A signed token whose persisted record claims a different subject
	result, err := v.env.signer.SignAccessToken(v.env.user.ID, v.env.client.ClientID, "openid", nil, time.Hour)
	require.NoError(t, err)
	require.NoError(t, v.env.store.CreateAccessToken(&models.AccessToken{
		ID:        uuid.NewString(),
		TokenHash: util.SHA256Hex(result.TokenString),
		JTI:       result.JTI,
		TokenType: "Bearer",
		UserID:    "someone-else",
		ClientID:  v.env.client.ClientID,
		Scopes:    "openid",
		ExpiresAt: result.ExpiresAt,
	}))
	_, err = v.verify.VerifyAccessToken(ctx, result.TokenString)
	assert.ErrorIs(t, err, ErrTokenNotActive)

	// A record whose stored hash is not the hash of the presented token
	result, err = v.env.signer.SignAccessToken(v.env.user.ID, v.env.client.ClientID, "openid", nil, time.Hour)
	require.NoError(t, err)
	require.NoError(t, v.env.store.CreateAccessToken(&models.AccessToken{
		ID:        uuid.NewString(),
		TokenHash: util.SHA256Hex("a-different-token"),
		JTI:       result.JTI,
		TokenType: "Bearer",
		UserID:    v.env.user.ID,
		ClientID:  v.env.client.ClientID,
		Scopes:    "openid",
		ExpiresAt: result.ExpiresAt,
	}))
	_, err = v.verify.VerifyAccessToken(ctx, result.TokenString)
	assert.ErrorIs(t, err, ErrTokenNotActive)
}

func TestRequireScope(t *testing.T) {
	v := setupVerifyTest(t)
	resp := v.env.issueViaCode(t, "openid profile")

	verified, err := v.verify.VerifyAccessToken(context.Background(), resp.AccessToken.RawToken)
	require.NoError(t, err)

	assert.NoError(t, v.verify.RequireScope(verified, "profile"))
	assert.ErrorIs(t, v.verify.RequireScope(verified, "email"), ErrInsufficientScope)
}

func TestIntrospect(t *testing.T) {
	v := setupVerifyTest(t)
	ctx := context.Background()
	resp := v.env.issueViaCode(t, "openid")

	verified, active := v.verify.Introspect(ctx, resp.AccessToken.RawToken)
	assert.True(t, active)
	require.NotNil(t, verified)

	// Inactive tokens report active=false, never an error
	verified, active = v.verify.Introspect(ctx, "garbage")
	assert.False(t, active)
	assert.Nil(t, verified)
}
