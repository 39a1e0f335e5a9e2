package models

import "time"

// RefreshToken is the persisted record of an issued refresh token.
// Exactly one mutation path exists: revoke-on-rotation or explicit
// revocation. PreviousTokenID forms the rotation chain for audit.
type RefreshToken struct {
	ID        string `gorm:"primaryKey"`
	TokenHash string `gorm:"uniqueIndex;not null"` // SHA256(raw JWT)
	RawToken  string `gorm:"-"`                    // In-memory only; never persisted to DB
	JTI       string `gorm:"uniqueIndex;not null"`
	UserID    string `gorm:"not null;index"`
	ClientID  string `gorm:"not null;index"`
	Scopes    string `gorm:"not null"`
	ExpiresAt time.Time
	Revoked   bool `gorm:"not null;default:false;index"`
	RevokedAt *time.Time
	CreatedAt time.Time

	// Rotation lineage: the token this one replaced, nil for the first in a chain.
	PreviousTokenID string `gorm:"index"`
}

func (t *RefreshToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// IsUsable reports whether the token may still be exchanged.
func (t *RefreshToken) IsUsable() bool {
	return !t.Revoked && !t.IsExpired()
}

func (RefreshToken) TableName() string {
	return "refresh_tokens"
}
