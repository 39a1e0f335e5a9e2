package models

import "time"

// AccessToken is the persisted record of an issued access token, distinct
// from the signed JWT itself. Only the hash is stored; the raw token lives
// in memory just long enough to be returned to the client.
type AccessToken struct {
	ID        string `gorm:"primaryKey"`
	TokenHash string `gorm:"uniqueIndex;not null"` // SHA256(raw JWT)
	RawToken  string `gorm:"-"`                    // In-memory only; never persisted to DB
	JTI       string `gorm:"uniqueIndex;not null"` // JWT ID claim, blacklist key
	TokenType string `gorm:"not null;default:'Bearer'"`
	UserID    string `gorm:"index"` // Empty for client_credentials tokens
	ClientID  string `gorm:"not null;index"`
	Scopes    string `gorm:"not null"` // space-separated scopes
	ExpiresAt time.Time
	Revoked   bool `gorm:"not null;default:false;index"`
	CreatedAt time.Time

	// Links the access token to the refresh token issued alongside it,
	// so refresh-token revocation can cascade.
	RefreshTokenID string `gorm:"index"`
}

func (t *AccessToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// IsUsable reports whether the record still authorizes requests.
func (t *AccessToken) IsUsable() bool {
	return !t.Revoked && !t.IsExpired()
}

func (AccessToken) TableName() string {
	return "access_tokens"
}
