package models

import (
	"context"
	"database/sql/driver"
	"encoding/base32"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-tokengate/tokengate/internal/util"

	"golang.org/x/crypto/bcrypt"
)

// Client type constants
const (
	ClientTypePublic       = "public"
	ClientTypeConfidential = "confidential"
)

// Token endpoint auth method constants (RFC 6749 §2.3)
const (
	AuthMethodBasic = "client_secret_basic"
	AuthMethodPost  = "client_secret_post"
	AuthMethodNone  = "none"
)

// Base32 characters, but lowercased.
const lowerBase32Chars = "abcdefghijklmnopqrstuvwxyz234567"

// base32 encoder that uses lowered characters without padding.
var base32Lower = base32.NewEncoding(lowerBase32Chars).WithPadding(base32.NoPadding)

// Client is a registered OAuth 2.1 client application.
// Created by the admin flow (external); read-only to the token core.
type Client struct {
	ID           int64       `gorm:"primaryKey;autoIncrement"`
	ClientID     string      `gorm:"uniqueIndex;not null"`
	ClientSecret string      `gorm:"default:''"` // bcrypt hashed secret; empty for public clients
	ClientName   string      `gorm:"not null"`
	Description  string      `gorm:"type:text"`
	Scopes       string      `gorm:"not null"` // space-separated allowed scopes
	GrantTypes   string      `gorm:"not null;default:'authorization_code'"`
	RedirectURIs StringArray `gorm:"type:json"`
	ClientType   string      `gorm:"not null;default:'confidential'"` // "confidential" or "public"
	AuthMethod   string      `gorm:"not null;default:'client_secret_basic'"`
	RequirePKCE  bool        `gorm:"not null;default:true"`
	IsActive     bool        `gorm:"not null;default:true"`

	// Per-client TTL overrides; zero means use the global default
	AccessTokenTTL  time.Duration `gorm:"default:0"`
	RefreshTokenTTL time.Duration `gorm:"default:0"`

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GenerateClientSecret generates a fresh client secret, stores its bcrypt hash
// on the model, and returns the plaintext for one-time display.
func (c *Client) GenerateClientSecret(ctx context.Context) (string, error) {
	rBytes, err := util.CryptoRandomBytes(32)
	if err != nil {
		return "", err
	}
	// Add a prefix to the base32, this is in order to make it easier
	// for code scanners to grab sensitive tokens.
	clientSecret := "tg_" + base32Lower.EncodeToString(rBytes)

	hashedSecret, err := bcrypt.GenerateFromPassword([]byte(clientSecret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	c.ClientSecret = string(hashedSecret)
	return clientSecret, nil
}

// ValidateClientSecret validates the given secret against the stored bcrypt hash.
// bcrypt comparison is constant-time with respect to the secret content.
func (c *Client) ValidateClientSecret(secret []byte) bool {
	if c.ClientSecret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.ClientSecret), secret) == nil
}

// IsPublic returns true for clients that cannot hold a secret (browser/mobile/CLI).
func (c *Client) IsPublic() bool {
	return c.ClientType == ClientTypePublic
}

// AllowsGrantType reports whether the client is registered for the given grant type.
func (c *Client) AllowsGrantType(grantType string) bool {
	for _, g := range strings.Fields(c.GrantTypes) {
		if g == grantType {
			return true
		}
	}
	return false
}

// HasRedirectURI reports whether uri exactly matches a registered redirect URI.
// No partial or prefix matching: open-redirect prevention.
func (c *Client) HasRedirectURI(uri string) bool {
	if uri == "" {
		return false
	}
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// StringArray is a custom type for []string that can be stored as JSON in database
type StringArray []string

// Scan implements sql.Scanner interface
func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = []string{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to unmarshal JSON value")
	}
	return json.Unmarshal(bytes, s)
}

// Value implements driver.Valuer interface
func (s StringArray) Value() (driver.Value, error) {
	if len(s) == 0 {
		return json.Marshal([]string{})
	}
	return json.Marshal(s)
}

// TableName overrides the table name used by Client to `oauth_clients`
func (Client) TableName() string {
	return "oauth_clients"
}
