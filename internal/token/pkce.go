package token

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// ChallengeMethodS256 is the only supported PKCE challenge method.
// The "plain" method is rejected at authorization time.
const ChallengeMethodS256 = "S256"

const (
	minVerifierLength = 43
	maxVerifierLength = 128
)

// ValidateChallengeMethod rejects any code_challenge_method other than S256.
func ValidateChallengeMethod(method string) error {
	if method != ChallengeMethodS256 {
		return ErrUnsupportedChallengeMethod
	}
	return nil
}

// ComputeChallenge derives the S256 code_challenge for a verifier.
func ComputeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyPKCE checks a code_verifier against the challenge stored with the
// authorization code. A stored challenge with no verifier, or a verifier
// with no stored challenge, fails closed.
func VerifyPKCE(verifier, storedChallenge, method string) error {
	if storedChallenge == "" || verifier == "" {
		return ErrPKCERequired
	}
	if method != ChallengeMethodS256 {
		return ErrUnsupportedChallengeMethod
	}
	if len(verifier) < minVerifierLength || len(verifier) > maxVerifierLength {
		return ErrPKCEVerificationFailed
	}
	computed := ComputeChallenge(verifier)
	if subtle.ConstantTimeCompare([]byte(computed), []byte(storedChallenge)) != 1 {
		return ErrPKCEVerificationFailed
	}
	return nil
}
