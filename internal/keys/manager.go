package keys

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/go-jose/go-jose/v4"
)

// Key status constants. Signing always uses the current key; retired keys
// remain in the known-keys set so outstanding tokens keep verifying.
const (
	StatusCurrent = "current"
	StatusRetired = "retired"
)

var (
	// ErrNoSigningKey indicates the manager holds no usable signing key
	ErrNoSigningKey = errors.New("keys: no signing key available")

	// ErrUnknownKeyID indicates a token referenced a kid outside the known-keys set
	ErrUnknownKeyID = errors.New("keys: unknown key id")
)

// SigningKey is one versioned key pair.
type SigningKey struct {
	KeyID  string
	Key    crypto.Signer
	Status string
}

// Manager holds the ordered set of signing keys. The first key is the
// current signing key; all keys participate in verification and JWKS.
// The set is immutable after construction; rotation is a restart concern.
type Manager struct {
	keys []SigningKey
}

// NewManager builds a Manager from an ordered list of signing keys.
// The first key becomes the current signing key.
func NewManager(signers []SigningKey) (*Manager, error) {
	if len(signers) == 0 {
		return nil, ErrNoSigningKey
	}
	keys := make([]SigningKey, len(signers))
	copy(keys, signers)
	keys[0].Status = StatusCurrent
	for i := 1; i < len(keys); i++ {
		keys[i].Status = StatusRetired
	}
	return &Manager{keys: keys}, nil
}

// LoadFromPaths loads PEM private keys from disk. kids may be empty, in
// which case each key id is derived from its RFC 7638 JWK thumbprint.
func LoadFromPaths(paths, kids []string) (*Manager, error) {
	signers := make([]SigningKey, 0, len(paths))
	for i, path := range paths {
		signer, err := LoadSigningKey(path)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", path, err)
		}
		kid := ""
		if i < len(kids) {
			kid = kids[i]
		}
		if kid == "" {
			kid, err = DeriveKeyID(signer)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", path, err)
			}
		}
		signers = append(signers, SigningKey{KeyID: kid, Key: signer})
	}
	return NewManager(signers)
}

// GenerateEphemeral creates a Manager with a single freshly generated RSA
// key. Tokens signed with it do not survive a restart; development use only.
func GenerateEphemeral(bits int) (*Manager, error) {
	if bits < 2048 {
		bits = 2048
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	kid, err := DeriveKeyID(key)
	if err != nil {
		return nil, err
	}
	return NewManager([]SigningKey{{KeyID: kid, Key: key}})
}

// Current returns the current signing key.
func (m *Manager) Current() SigningKey {
	return m.keys[0]
}

// Lookup returns the key for kid, for verification of any key version.
func (m *Manager) Lookup(kid string) (SigningKey, error) {
	for _, k := range m.keys {
		if k.KeyID == kid {
			return k, nil
		}
	}
	return SigningKey{}, ErrUnknownKeyID
}

// All returns every known key, current first.
func (m *Manager) All() []SigningKey {
	out := make([]SigningKey, len(m.keys))
	copy(out, m.keys)
	return out
}

// LoadSigningKey loads a private key from a PEM file.
// Supports RSA in PKCS1 and PKCS8 formats.
func LoadSigningKey(keyPath string) (crypto.Signer, error) {
	keyPEM, err := os.ReadFile(keyPath) //nolint:gosec // keyPath comes from operator config
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}

	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block from signing key")
	}

	// Try PKCS1 first (RSA only)
	if rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return rsaKey, nil
	}

	// Try PKCS8
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported key type: %T", key)
	}
	return rsaKey, nil
}

// DeriveKeyID computes a key ID from the public key using RFC 7638 JWK Thumbprint.
// The thumbprint is computed as base64url(SHA-256(JWK canonical form)).
func DeriveKeyID(key crypto.Signer) (string, error) {
	jwk := jose.JSONWebKey{Key: key.Public()}

	thumbprint, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("failed to compute key thumbprint: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(thumbprint), nil
}
