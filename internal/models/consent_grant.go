package models

import "time"

// ConsentGrant records a user's consent to a client's scope request.
// There is at most one active record per (UserID, ClientID) pair.
type ConsentGrant struct {
	ID   uint   `gorm:"primaryKey;autoIncrement"`
	UUID string `gorm:"uniqueIndex;size:36;not null"`

	UserID   string `gorm:"not null;uniqueIndex:idx_user_client"`
	ClientID string `gorm:"not null;uniqueIndex:idx_user_client"`

	Scopes    string `gorm:"not null"`
	GrantedAt time.Time
	RevokedAt *time.Time
	IsActive  bool `gorm:"not null;default:true"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ConsentGrant) TableName() string {
	return "consent_grants"
}
