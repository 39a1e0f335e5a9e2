package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-tokengate/tokengate/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Authorization code operations

func (s *Store) CreateAuthorizationCode(code *models.AuthorizationCode) error {
	return s.db.Create(code).Error
}

// GetAuthorizationCodeByHash looks up a code by its SHA-256 digest.
func (s *Store) GetAuthorizationCodeByHash(codeHash string) (*models.AuthorizationCode, error) {
	var code models.AuthorizationCode
	if err := s.db.Where("code_hash = ?", codeHash).First(&code).Error; err != nil {
		return nil, err
	}
	return &code, nil
}

// MarkAuthorizationCodeUsed atomically claims a code for exchange. The
// conditional update guarantees exactly one concurrent exchange wins;
// every loser sees ErrAuthCodeAlreadyUsed.
func (s *Store) MarkAuthorizationCodeUsed(codeHash string) error {
	now := time.Now()
	result := s.db.Model(&models.AuthorizationCode{}).
		Where("code_hash = ? AND used_at IS NULL", codeHash).
		Update("used_at", &now)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAuthCodeAlreadyUsed
	}
	return nil
}

func (s *Store) DeleteExpiredAuthorizationCodes() error {
	return s.db.Where("expires_at < ?", time.Now()).
		Delete(&models.AuthorizationCode{}).Error
}

// Access token operations

func (s *Store) CreateAccessToken(token *models.AccessToken) error {
	return s.db.Create(token).Error
}

func (s *Store) GetAccessTokenByJTI(jti string) (*models.AccessToken, error) {
	var t models.AccessToken
	if err := s.db.Where("jti = ?", jti).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) GetAccessTokenByHash(tokenHash string) (*models.AccessToken, error) {
	var t models.AccessToken
	if err := s.db.Where("token_hash = ?", tokenHash).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) GetAccessTokensByUserID(userID string) ([]models.AccessToken, error) {
	var tokens []models.AccessToken
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&tokens).Error; err != nil {
		return nil, err
	}
	return tokens, nil
}

// Refresh token operations

func (s *Store) CreateRefreshToken(token *models.RefreshToken) error {
	return s.db.Create(token).Error
}

func (s *Store) GetRefreshTokenByJTI(jti string) (*models.RefreshToken, error) {
	var t models.RefreshToken
	if err := s.db.Where("jti = ?", jti).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) GetRefreshTokenByHash(tokenHash string) (*models.RefreshToken, error) {
	var t models.RefreshToken
	if err := s.db.Where("token_hash = ?", tokenHash).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// RotateRefreshToken atomically retires old and persists its replacement.
// The conditional update is the rotation race arbiter: if the old token was
// already rotated or revoked by a concurrent request, no replacement is
// created and ErrRefreshTokenRotated is returned so the caller can treat
// the presentation as reuse.
func (s *Store) RotateRefreshToken(old *models.RefreshToken, replacement *models.RefreshToken) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		result := tx.Model(&models.RefreshToken{}).
			Where("id = ? AND revoked = ?", old.ID, false).
			Updates(map[string]any{"revoked": true, "revoked_at": &now})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrRefreshTokenRotated
		}

		if err := tx.Create(replacement).Error; err != nil {
			return err
		}

		// Retired token is dead immediately, not merely flagged.
		entry := &models.TokenBlacklist{
			JTI:       old.JTI,
			TokenType: models.BlacklistTypeRefresh,
			ExpiresAt: old.ExpiresAt,
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(entry).Error
	})
}

// RevokeRefreshTokenCascade revokes a refresh token together with every
// currently valid access token for the same user and client, blacklisting
// all their JTIs in one transaction. A revoked authorization kills every
// live access token it produced, including ones from other code exchanges
// for the same pair. Idempotent: revoking an already revoked token is a
// no-op.
func (s *Store) RevokeRefreshTokenCascade(refreshTokenID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var rt models.RefreshToken
		if err := tx.Where("id = ?", refreshTokenID).First(&rt).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		now := time.Now()
		if err := tx.Model(&models.RefreshToken{}).
			Where("id = ? AND revoked = ?", rt.ID, false).
			Updates(map[string]any{"revoked": true, "revoked_at": &now}).Error; err != nil {
			return err
		}
		if err := blacklistInTx(tx, rt.JTI, models.BlacklistTypeRefresh, rt.ExpiresAt); err != nil {
			return err
		}

		// Refresh tokens always carry a user; a missing one would make the
		// (user, client) scope match every client_credentials token, so fall
		// back to the direct link in that case.
		scope := "user_id = ? AND client_id = ? AND revoked = ? AND expires_at > ?"
		args := []any{rt.UserID, rt.ClientID, false, now}
		if rt.UserID == "" {
			scope = "refresh_token_id = ? AND revoked = ?"
			args = []any{rt.ID, false}
		}

		var affected []models.AccessToken
		if err := tx.Where(scope, args...).Find(&affected).Error; err != nil {
			return err
		}
		ids := make([]string, 0, len(affected))
		for i := range affected {
			if err := blacklistInTx(tx, affected[i].JTI, models.BlacklistTypeAccess, affected[i].ExpiresAt); err != nil {
				return err
			}
			ids = append(ids, affected[i].ID)
		}
		if len(ids) == 0 {
			return nil
		}
		return tx.Model(&models.AccessToken{}).
			Where("id IN ?", ids).
			Update("revoked", true).Error
	})
}

// RevokeRefreshTokenFamily revokes the given refresh token and every
// descendant in its rotation chain. Used when a rotated token is presented
// again, which signals the whole lineage may be compromised.
func (s *Store) RevokeRefreshTokenFamily(startID string) (int, error) {
	revoked := 0
	err := s.db.Transaction(func(tx *gorm.DB) error {
		frontier := []string{startID}
		seen := map[string]bool{startID: true}

		for len(frontier) > 0 {
			var tokens []models.RefreshToken
			if err := tx.Where("id IN ? OR previous_token_id IN ?", frontier, frontier).
				Find(&tokens).Error; err != nil {
				return err
			}

			now := time.Now()
			next := make([]string, 0)
			for i := range tokens {
				rt := &tokens[i]
				if !seen[rt.ID] {
					seen[rt.ID] = true
					next = append(next, rt.ID)
				}
				if rt.Revoked {
					continue
				}
				if err := tx.Model(&models.RefreshToken{}).
					Where("id = ?", rt.ID).
					Updates(map[string]any{"revoked": true, "revoked_at": &now}).Error; err != nil {
					return err
				}
				if err := blacklistInTx(tx, rt.JTI, models.BlacklistTypeRefresh, rt.ExpiresAt); err != nil {
					return err
				}
				revoked++
			}

			ids := make([]string, 0, len(seen))
			for id := range seen {
				ids = append(ids, id)
			}

			var linked []models.AccessToken
			if err := tx.Where("refresh_token_id IN ? AND revoked = ?", ids, false).
				Find(&linked).Error; err != nil {
				return err
			}
			for i := range linked {
				if err := blacklistInTx(tx, linked[i].JTI, models.BlacklistTypeAccess, linked[i].ExpiresAt); err != nil {
					return err
				}
			}
			if err := tx.Model(&models.AccessToken{}).
				Where("refresh_token_id IN ?", ids).
				Update("revoked", true).Error; err != nil {
				return err
			}

			frontier = next
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to revoke token family: %w", err)
	}
	return revoked, nil
}

// RevokeAccessTokenByJTI marks a single access token revoked and
// blacklists its JTI. Idempotent.
func (s *Store) RevokeAccessTokenByJTI(jti string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var t models.AccessToken
		if err := tx.Where("jti = ?", jti).First(&t).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if err := tx.Model(&models.AccessToken{}).
			Where("jti = ?", jti).
			Update("revoked", true).Error; err != nil {
			return err
		}
		return blacklistInTx(tx, t.JTI, models.BlacklistTypeAccess, t.ExpiresAt)
	})
}

func (s *Store) DeleteExpiredTokens() error {
	now := time.Now()
	if err := s.db.Where("expires_at < ?", now).Delete(&models.AccessToken{}).Error; err != nil {
		return err
	}
	return s.db.Where("expires_at < ?", now).Delete(&models.RefreshToken{}).Error
}

// Blacklist operations

func blacklistInTx(tx *gorm.DB, jti, tokenType string, expiresAt time.Time) error {
	entry := &models.TokenBlacklist{
		JTI:       jti,
		TokenType: tokenType,
		ExpiresAt: expiresAt,
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(entry).Error
}

// BlacklistToken records a JTI as revoked. Inserting the same JTI twice is
// a no-op, so revocation stays idempotent.
func (s *Store) BlacklistToken(jti, tokenType string, expiresAt time.Time) error {
	return blacklistInTx(s.db, jti, tokenType, expiresAt)
}

// IsTokenBlacklisted reports whether a JTI has been revoked.
func (s *Store) IsTokenBlacklisted(jti string) (bool, error) {
	var count int64
	err := s.db.Model(&models.TokenBlacklist{}).
		Where("jti = ?", jti).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) DeleteExpiredBlacklistEntries() error {
	return s.db.Where("expires_at < ?", time.Now()).
		Delete(&models.TokenBlacklist{}).Error
}

// Gauge queries

// CountActiveTokensByCategory counts non-revoked, unexpired tokens of the
// given category ("access" or "refresh").
func (s *Store) CountActiveTokensByCategory(category string) (int64, error) {
	var count int64
	now := time.Now()
	var err error
	switch category {
	case models.BlacklistTypeRefresh:
		err = s.db.Model(&models.RefreshToken{}).
			Where("revoked = ? AND expires_at > ?", false, now).
			Count(&count).Error
	default:
		err = s.db.Model(&models.AccessToken{}).
			Where("revoked = ? AND expires_at > ?", false, now).
			Count(&count).Error
	}
	return count, err
}

// CountActiveAuthorizationCodes counts unexpired, unused codes.
func (s *Store) CountActiveAuthorizationCodes() (int64, error) {
	var count int64
	err := s.db.Model(&models.AuthorizationCode{}).
		Where("used_at IS NULL AND expires_at > ?", time.Now()).
		Count(&count).Error
	return count, err
}
