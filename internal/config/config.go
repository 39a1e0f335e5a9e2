package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Permission resolver mode constants
const (
	PolicyModeStatic  = "static"
	PolicyModeHTTPAPI = "http_api"
)

// Cache backend constants
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

type Config struct {
	// Server settings
	ServerAddr   string
	BaseURL      string // Issuer URL; also used as the `iss` claim
	IsProduction bool

	// Signing keys
	SigningKeyPaths []string // PEM private keys, first entry is the current signing key
	SigningKeyIDs   []string // Optional kid overrides, positionally matched to SigningKeyPaths
	GenerateDevKey  bool     // Generate an ephemeral RSA key when no paths are configured
	SigningKeyBits  int      // Modulus size for generated dev keys
	JWKSCacheMaxAge time.Duration
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	IDTokenTTL      time.Duration
	AuthCodeTTL     time.Duration
	ClockSkewLeeway time.Duration

	// Protocol hardening
	PKCERequired bool // Require S256 PKCE for every authorization request, not only public clients

	// ConsentRemember skips the consent prompt when a recorded grant already
	// covers the requested scopes
	ConsentRemember bool

	// Database
	DatabaseDriver string // "sqlite" or "postgres"
	DatabaseDSN    string // Database connection string (DSN or path)

	// Authorization policy collaborator
	PolicyMode             string // "static" or "http_api"
	PolicyAPIURL           string
	PolicyAPITimeout       time.Duration
	PolicyAPIAuthSecret    string
	PolicyAPIAuthHeader    string
	PolicyAPIMaxRetries    int
	PolicyAPIRetryDelay    time.Duration
	PolicyAPIMaxRetryDelay time.Duration

	// Cache (blacklist / client lookups on the verification hot path)
	CacheBackend       string // "memory" or "redis"
	CacheRedisAddr     string
	CacheRedisPassword string
	CacheRedisDB       int
	BlacklistCacheTTL  time.Duration
	ClientCacheTTL     time.Duration

	// Rate limiting (token endpoint)
	RateLimitEnabled         bool
	RateLimitPerMinute       int
	RateLimitStore           string // "memory" or "redis"
	RateLimitRedisAddr       string
	RateLimitRedisPassword   string
	RateLimitRedisDB         int
	RateLimitCleanupInterval time.Duration // Memory store stale-counter cleanup

	// Audit
	AuditEnabled    bool
	AuditBufferSize int
	AuditRetention  time.Duration // Logs older than this are purged; 0 disables cleanup

	// Storage maintenance
	TokenCleanupInterval time.Duration // Expired token/code/blacklist purge period; 0 disables

	// Metrics
	MetricsEnabled       bool
	MetricsAuthToken     string
	MetricsGaugeInterval time.Duration // Active-token gauge refresh period; 0 disables

	// Seed data
	DefaultAdminPassword string // Empty means generate a random one
}

func Load() *Config {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	driver := getEnv("DATABASE_DRIVER", "sqlite")
	var dsn string
	if driver == "sqlite" {
		dsn = getEnv("DATABASE_DSN", getEnv("DATABASE_PATH", "tokengate.db"))
	} else {
		dsn = getEnv("DATABASE_DSN", "")
	}

	return &Config{
		ServerAddr:   getEnv("SERVER_ADDR", ":8080"),
		BaseURL:      getEnv("BASE_URL", "http://localhost:8080"),
		IsProduction: getEnv("ENVIRONMENT", "development") == "production",

		SigningKeyPaths: getEnvSlice("SIGNING_KEY_PATHS", nil),
		SigningKeyIDs:   getEnvSlice("SIGNING_KEY_IDS", nil),
		GenerateDevKey:  getEnvBool("GENERATE_DEV_KEY", true),
		SigningKeyBits:  getEnvInt("SIGNING_KEY_BITS", 2048),
		JWKSCacheMaxAge: getEnvDuration("JWKS_CACHE_MAX_AGE", time.Hour),
		AccessTokenTTL:  getEnvDuration("ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL: getEnvDuration("REFRESH_TOKEN_TTL", 720*time.Hour), // 30 days
		IDTokenTTL:      getEnvDuration("ID_TOKEN_TTL", time.Hour),
		AuthCodeTTL:     getEnvDuration("AUTH_CODE_TTL", 10*time.Minute),
		ClockSkewLeeway: getEnvDuration("CLOCK_SKEW_LEEWAY", 30*time.Second),

		PKCERequired: getEnvBool("PKCE_REQUIRED", true),

		ConsentRemember: getEnvBool("CONSENT_REMEMBER", true),

		DatabaseDriver: driver,
		DatabaseDSN:    dsn,

		PolicyMode:             getEnv("POLICY_MODE", PolicyModeStatic),
		PolicyAPIURL:           getEnv("POLICY_API_URL", ""),
		PolicyAPITimeout:       getEnvDuration("POLICY_API_TIMEOUT", 10*time.Second),
		PolicyAPIAuthSecret:    getEnv("POLICY_API_AUTH_SECRET", ""),
		PolicyAPIAuthHeader:    getEnv("POLICY_API_AUTH_HEADER", "X-API-Secret"),
		PolicyAPIMaxRetries:    getEnvInt("POLICY_API_MAX_RETRIES", 3),
		PolicyAPIRetryDelay:    getEnvDuration("POLICY_API_RETRY_DELAY", 1*time.Second),
		PolicyAPIMaxRetryDelay: getEnvDuration("POLICY_API_MAX_RETRY_DELAY", 10*time.Second),

		CacheBackend:       getEnv("CACHE_BACKEND", CacheBackendMemory),
		CacheRedisAddr:     getEnv("CACHE_REDIS_ADDR", "localhost:6379"),
		CacheRedisPassword: getEnv("CACHE_REDIS_PASSWORD", ""),
		CacheRedisDB:       getEnvInt("CACHE_REDIS_DB", 0),
		BlacklistCacheTTL:  getEnvDuration("BLACKLIST_CACHE_TTL", 30*time.Second),
		ClientCacheTTL:     getEnvDuration("CLIENT_CACHE_TTL", 5*time.Minute),

		RateLimitEnabled:         getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitPerMinute:       getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		RateLimitStore:           getEnv("RATE_LIMIT_STORE", "memory"),
		RateLimitRedisAddr:       getEnv("RATE_LIMIT_REDIS_ADDR", "localhost:6379"),
		RateLimitRedisPassword:   getEnv("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:         getEnvInt("RATE_LIMIT_REDIS_DB", 0),
		RateLimitCleanupInterval: getEnvDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),

		AuditEnabled:    getEnvBool("AUDIT_ENABLED", true),
		AuditBufferSize: getEnvInt("AUDIT_BUFFER_SIZE", 1000),
		AuditRetention:  getEnvDuration("AUDIT_RETENTION", 90*24*time.Hour),

		TokenCleanupInterval: getEnvDuration("TOKEN_CLEANUP_INTERVAL", time.Hour),

		MetricsEnabled:       getEnvBool("METRICS_ENABLED", false),
		MetricsAuthToken:     getEnv("METRICS_AUTH_TOKEN", ""),
		MetricsGaugeInterval: getEnvDuration("METRICS_GAUGE_INTERVAL", time.Minute),

		DefaultAdminPassword: getEnv("DEFAULT_ADMIN_PASSWORD", ""),
	}
}

// Validate reports configuration combinations that cannot work.
func (c *Config) Validate() error {
	if c.PolicyMode == PolicyModeHTTPAPI && c.PolicyAPIURL == "" {
		return fmt.Errorf("POLICY_MODE=http_api requires POLICY_API_URL")
	}
	if len(c.SigningKeyPaths) == 0 && !c.GenerateDevKey {
		return fmt.Errorf("no signing keys configured: set SIGNING_KEY_PATHS or GENERATE_DEV_KEY=true")
	}
	if len(c.SigningKeyIDs) > 0 && len(c.SigningKeyIDs) != len(c.SigningKeyPaths) {
		return fmt.Errorf("SIGNING_KEY_IDS must match SIGNING_KEY_PATHS in length")
	}
	if c.DatabaseDriver == "postgres" && c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DRIVER=postgres requires DATABASE_DSN")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := []string{}
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}
