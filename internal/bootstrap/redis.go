package bootstrap

import (
	"log"

	"github.com/go-tokengate/tokengate/internal/config"
	"github.com/go-tokengate/tokengate/internal/middleware"
	"github.com/redis/go-redis/v9"
)

// initializeRateLimitRedisClient initializes the go-redis client for rate limiting.
// Returns nil if rate limiting is disabled or using the memory store.
// Note: rate limiting must use go-redis because ulule/limiter depends on go-redis types.
func initializeRateLimitRedisClient(cfg *config.Config) (*redis.Client, error) {
	if !cfg.RateLimitEnabled {
		return nil, nil //nolint:nilnil // redis client not needed in this configuration
	}
	if middleware.RateLimitStoreType(cfg.RateLimitStore) != middleware.RateLimitStoreRedis {
		return nil, nil //nolint:nilnil // redis client not needed in this configuration
	}

	client, err := middleware.CreateRedisClient(
		cfg.RateLimitRedisAddr,
		cfg.RateLimitRedisPassword,
		cfg.RateLimitRedisDB,
	)
	if err != nil {
		return nil, err
	}

	log.Printf(
		"Rate limiting Redis client initialized (address: %s, db: %d)",
		cfg.RateLimitRedisAddr,
		cfg.RateLimitRedisDB,
	)
	return client, nil
}
