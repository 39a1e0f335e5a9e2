package bootstrap

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/go-tokengate/tokengate/internal/config"
	"github.com/go-tokengate/tokengate/internal/middleware"
	"github.com/go-tokengate/tokengate/internal/services"
	"github.com/redis/go-redis/v9"
)

// setupRateLimiting configures the rate limiter applied to the token and
// revocation endpoints. Accepts an optional go-redis client.
func setupRateLimiting(
	cfg *config.Config,
	auditService *services.AuditService,
	redisClient *redis.Client,
) gin.HandlerFunc {
	if !cfg.RateLimitEnabled {
		return func(c *gin.Context) { c.Next() }
	}

	storeType := middleware.RateLimitStoreType(cfg.RateLimitStore)
	log.Printf("Rate limiting enabled (store: %s, limit: %d/min)",
		cfg.RateLimitStore, cfg.RateLimitPerMinute)

	if storeType == middleware.RateLimitStoreRedis {
		log.Printf("Using shared Redis client for rate limiting (provided externally)")
	} else {
		log.Printf("In-memory rate limiting configured (single instance only)")
	}

	limiter, err := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerMinute: cfg.RateLimitPerMinute,
		StoreType:         storeType,
		RedisClient:       redisClient, // nil for memory store
		CleanupInterval:   cfg.RateLimitCleanupInterval,
		AuditService:      auditService,
	})
	if err != nil {
		log.Fatalf("Failed to create token endpoint rate limiter: %v", err)
	}
	return limiter
}
