package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-tokengate/tokengate/internal/models"
	"github.com/go-tokengate/tokengate/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterRedis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// RateLimitStoreType defines the type of rate limit store
type RateLimitStoreType string

const (
	// RateLimitStoreMemory uses in-memory storage (single instance only)
	RateLimitStoreMemory RateLimitStoreType = "memory"
	// RateLimitStoreRedis uses Redis storage (distributed, multi-pod support)
	RateLimitStoreRedis RateLimitStoreType = "redis"
)

// RateLimitConfig holds the configuration for rate limiting with store support
type RateLimitConfig struct {
	// Rate limit settings
	RequestsPerMinute int           // Number of requests allowed per minute
	CleanupInterval   time.Duration // How often to cleanup (only for memory store)

	// Store settings
	StoreType RateLimitStoreType // "memory" or "redis"

	// RedisClient is a shared go-redis client (only used when StoreType = "redis").
	// Multiple limiters can share one client.
	RedisClient *redis.Client

	// AuditService records limit-reached events when set
	AuditService *services.AuditService
}

// CreateRedisClient creates and pings a go-redis client for rate limiting.
// The caller owns the client and may share it across limiters.
func CreateRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	return client, nil
}

// NewRateLimiter creates a new rate limiter with configurable store backend
func NewRateLimiter(config RateLimitConfig) (gin.HandlerFunc, error) {
	// Create rate from requests per minute
	rate := limiter.Rate{
		Period: 1 * time.Minute,
		Limit:  int64(config.RequestsPerMinute),
	}

	var store limiter.Store
	var err error

	switch config.StoreType {
	case RateLimitStoreRedis:
		if config.RedisClient == nil {
			return nil, fmt.Errorf("redis store requires a redis client")
		}

		store, err = limiterRedis.NewStoreWithOptions(config.RedisClient, limiter.StoreOptions{
			Prefix:          "ratelimit",
			CleanUpInterval: config.CleanupInterval,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis store: %w", err)
		}

	case RateLimitStoreMemory:
		fallthrough
	default:
		store = memory.NewStore()
	}

	// Create limiter instance
	instance := limiter.New(store, rate)

	// Create Gin middleware with custom limit reached handler
	middleware := mgin.NewMiddleware(instance, mgin.WithLimitReachedHandler(func(c *gin.Context) {
		if config.AuditService != nil {
			config.AuditService.Log(c.Request.Context(), services.AuditLogEntry{
				EventType:     models.EventRateLimitExceeded,
				Severity:      models.SeverityWarning,
				ActorIP:       c.ClientIP(),
				ResourceType:  models.ResourceAuthorization,
				Action:        "rate_limit_exceeded",
				Success:       false,
				RequestPath:   c.Request.URL.Path,
				RequestMethod: c.Request.Method,
			})
		}
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":             "rate_limit_exceeded",
			"error_description": "Too many requests. Please try again later.",
		})
		c.Abort()
	}))

	return middleware, nil
}

// NewMemoryRateLimiter creates an in-memory rate limiter (single instance)
func NewMemoryRateLimiter(requestsPerMinute int) (gin.HandlerFunc, error) {
	return NewRateLimiter(RateLimitConfig{
		RequestsPerMinute: requestsPerMinute,
		StoreType:         RateLimitStoreMemory,
		CleanupInterval:   5 * time.Minute,
	})
}

// NewRedisRateLimiter creates a Redis-backed rate limiter (distributed, multi-pod).
// It creates a dedicated client; prefer NewRateLimiter with a shared RedisClient
// when running multiple limiters.
func NewRedisRateLimiter(
	requestsPerMinute int,
	redisAddr, redisPassword string,
	redisDB int,
) (gin.HandlerFunc, error) {
	client, err := CreateRedisClient(redisAddr, redisPassword, redisDB)
	if err != nil {
		return nil, err
	}

	return NewRateLimiter(RateLimitConfig{
		RequestsPerMinute: requestsPerMinute,
		StoreType:         RateLimitStoreRedis,
		RedisClient:       client,
		CleanupInterval:   5 * time.Minute,
	})
}
