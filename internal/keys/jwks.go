package keys

import (
	"log"

	"github.com/go-jose/go-jose/v4"
)

// JWKS returns the public JSON Web Key Set for every known key.
// Keys that cannot be converted are skipped rather than failing the
// whole document; the endpoint must stay available through a bad key.
func (m *Manager) JWKS() jose.JSONWebKeySet {
	set := jose.JSONWebKeySet{Keys: make([]jose.JSONWebKey, 0, len(m.keys))}
	for _, k := range m.keys {
		if k.Key == nil || k.Key.Public() == nil {
			log.Printf("[Keys] Skipping malformed key kid=%s in JWKS export", k.KeyID)
			continue
		}
		set.Keys = append(set.Keys, jose.JSONWebKey{
			Key:       k.Key.Public(),
			KeyID:     k.KeyID,
			Algorithm: "RS256",
			Use:       "sig",
		})
	}
	return set
}
