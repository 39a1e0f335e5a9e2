package bootstrap

import (
	"errors"
	"fmt"
	"log"

	"github.com/go-tokengate/tokengate/internal/config"
	"github.com/go-tokengate/tokengate/internal/keys"
)

// initializeKeyManager loads the RSA signing keys. Configured key files take
// precedence; otherwise an ephemeral key is generated when GENERATE_DEV_KEY
// is set. Ephemeral keys invalidate all issued tokens on restart.
func initializeKeyManager(cfg *config.Config) (*keys.Manager, error) {
	if len(cfg.SigningKeyPaths) > 0 {
		km, err := keys.LoadFromPaths(cfg.SigningKeyPaths, cfg.SigningKeyIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to load signing keys: %w", err)
		}
		log.Printf("[Keys] Loaded %d signing key(s), current kid=%s",
			len(km.All()), km.Current().KeyID)
		return km, nil
	}

	if !cfg.GenerateDevKey {
		return nil, errors.New("no signing keys configured and GENERATE_DEV_KEY=false")
	}

	km, err := keys.GenerateEphemeral(cfg.SigningKeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate dev signing key: %w", err)
	}
	log.Printf("[Keys] Generated ephemeral %d-bit RSA key (kid=%s); tokens will not survive a restart",
		cfg.SigningKeyBits, km.Current().KeyID)
	return km, nil
}
