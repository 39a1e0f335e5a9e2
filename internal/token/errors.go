package token

import "errors"

var (
	// ErrInvalidToken indicates the token failed signature or claim checks.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken indicates the token is past its expiry.
	ErrExpiredToken = errors.New("token expired")

	// ErrWrongTokenKind indicates a token of one kind was presented where
	// another kind is required (e.g. refresh token at a resource endpoint).
	ErrWrongTokenKind = errors.New("wrong token kind")

	// ErrUnsupportedChallengeMethod indicates a code_challenge_method other
	// than S256 was requested.
	ErrUnsupportedChallengeMethod = errors.New("unsupported code challenge method")

	// ErrPKCEVerificationFailed indicates the code_verifier did not match the
	// stored code_challenge.
	ErrPKCEVerificationFailed = errors.New("pkce verification failed")

	// ErrPKCERequired indicates the grant requires PKCE but no code_verifier
	// or stored challenge was present.
	ErrPKCERequired = errors.New("pkce required")
)
