package models

import "time"

// User is the end-user subject of issued tokens. User management is an
// external collaborator; the token core reads these records for UserInfo
// claims and ID token generation only.
type User struct {
	ID           string `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;not null"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string
	Role         string `gorm:"not null;default:'user'"`
	FullName     string
	AvatarURL    string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAdmin returns true if the user has admin role
func (u *User) IsAdmin() bool {
	return u.Role == "admin"
}
