package token

import (
	"crypto/sha256"
	"encoding/base64"
)

// ComputeAtHash computes the at_hash claim for an ID token issued alongside
// an access token: the base64url encoding of the left half of the SHA-256
// hash of the access token (OIDC Core 1.0 §3.1.3.6, RS256 family).
func ComputeAtHash(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
}
