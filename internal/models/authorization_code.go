package models

import "time"

// AuthorizationCode stores OAuth 2.0 authorization codes (RFC 6749).
// Codes are short-lived (default 10 minutes) and single-use.
type AuthorizationCode struct {
	ID   uint   `gorm:"primaryKey;autoIncrement"`
	UUID string `gorm:"uniqueIndex;size:36;not null"` // Public UUID for audit identification

	// Code storage: SHA256 hash for security, prefix for audit display
	CodeHash   string `gorm:"uniqueIndex;not null"`  // SHA256(plainCode)
	CodePrefix string `gorm:"index;not null;size:8"` // First 8 chars, for logs only

	ClientID string `gorm:"not null;index"`
	UserID   string `gorm:"not null;index"`

	RedirectURI string `gorm:"not null"`
	Scopes      string `gorm:"not null"`

	// PKCE (RFC 7636); only S256 challenges are ever stored
	CodeChallenge       string `gorm:"default:''"`
	CodeChallengeMethod string `gorm:"default:'S256'"`

	// OIDC nonce, echoed into the ID token when present
	Nonce string `gorm:"default:''"`

	ExpiresAt time.Time
	UsedAt    *time.Time // Set immediately upon exchange; prevents replay attacks
	CreatedAt time.Time
}

func (a *AuthorizationCode) IsExpired() bool {
	return time.Now().After(a.ExpiresAt)
}

func (a *AuthorizationCode) IsUsed() bool {
	return a.UsedAt != nil
}

func (AuthorizationCode) TableName() string {
	return "authorization_codes"
}
