package bootstrap

import (
	"errors"
	"fmt"
	"log"

	"github.com/go-tokengate/tokengate/internal/config"
	"github.com/go-tokengate/tokengate/internal/middleware"
)

// validateAllConfiguration validates all configuration settings
func validateAllConfiguration(cfg *config.Config) {
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := validateCacheConfig(cfg); err != nil {
		log.Fatalf("Invalid cache configuration: %v", err)
	}
	if err := validateRateLimitConfig(cfg); err != nil {
		log.Fatalf("Invalid rate limit configuration: %v", err)
	}
}

// validateCacheConfig checks that required config is present for the selected cache backend
func validateCacheConfig(cfg *config.Config) error {
	switch cfg.CacheBackend {
	case config.CacheBackendRedis:
		if cfg.CacheRedisAddr == "" {
			return errors.New("CACHE_REDIS_ADDR is required when CACHE_BACKEND=redis")
		}
	case config.CacheBackendMemory:
		// No additional validation needed
	default:
		return fmt.Errorf("invalid CACHE_BACKEND: %s (must be: memory, redis)", cfg.CacheBackend)
	}
	return nil
}

// validateRateLimitConfig checks that required config is present for the selected store
func validateRateLimitConfig(cfg *config.Config) error {
	if !cfg.RateLimitEnabled {
		return nil
	}
	switch middleware.RateLimitStoreType(cfg.RateLimitStore) {
	case middleware.RateLimitStoreRedis:
		if cfg.RateLimitRedisAddr == "" {
			return errors.New("RATE_LIMIT_REDIS_ADDR is required when RATE_LIMIT_STORE=redis")
		}
	case middleware.RateLimitStoreMemory:
		// No additional validation needed
	default:
		return fmt.Errorf(
			"invalid RATE_LIMIT_STORE: %s (must be: memory, redis)",
			cfg.RateLimitStore,
		)
	}
	return nil
}
