package models

import "time"

// Blacklisted token type constants
const (
	BlacklistTypeAccess  = "access"
	BlacklistTypeRefresh = "refresh"
)

// TokenBlacklist is an append-only record of revoked JWT identifiers.
// The verifier treats presence as fatal regardless of the JWT's own claims.
// Entries may be garbage-collected after ExpiresAt.
type TokenBlacklist struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	JTI       string    `gorm:"uniqueIndex;not null"`
	TokenType string    `gorm:"not null"` // "access" or "refresh"
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
}

func (TokenBlacklist) TableName() string {
	return "token_blacklist"
}
