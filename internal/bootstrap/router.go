package bootstrap

import (
	"log"
	"net/http"

	"github.com/go-tokengate/tokengate/internal/config"
	"github.com/go-tokengate/tokengate/internal/metrics"
	"github.com/go-tokengate/tokengate/internal/middleware"
	"github.com/go-tokengate/tokengate/internal/services"
	"github.com/go-tokengate/tokengate/internal/store"
	"github.com/go-tokengate/tokengate/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// setupRouter configures the Gin router with all routes and middleware
func setupRouter(
	cfg *config.Config,
	db *store.Store,
	h handlerSet,
	m metrics.Recorder,
	auditService *services.AuditService,
	verificationService *services.VerificationService,
	rateLimitRedisClient *redis.Client,
) *gin.Engine {
	setupGinMode(cfg)
	r := gin.New()

	// Setup middleware
	r.Use(metrics.HTTPMetricsMiddleware(m))
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(util.IPMiddleware())

	// Health check endpoint
	r.GET("/health", createHealthCheckHandler(db))

	// Setup metrics endpoint
	setupMetricsEndpoint(r, cfg)

	// Setup rate limiting
	rateLimiter := setupRateLimiting(cfg, auditService, rateLimitRedisClient)

	// Setup all routes
	setupAllRoutes(r, h, verificationService, rateLimiter)

	// Log server startup info
	logServerStartup(cfg)

	return r
}

// setupMetricsEndpoint configures the Prometheus metrics endpoint
func setupMetricsEndpoint(r *gin.Engine, cfg *config.Config) {
	switch {
	case !cfg.MetricsEnabled:
		log.Printf("Prometheus metrics disabled")
	case cfg.MetricsAuthToken != "":
		log.Printf("Prometheus metrics enabled at /metrics with Bearer token authentication")
		r.GET(
			"/metrics",
			middleware.MetricsAuthMiddleware(cfg.MetricsAuthToken),
			gin.WrapH(promhttp.Handler()),
		)
	default:
		log.Printf("Prometheus metrics enabled at /metrics (no authentication)")
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

// setupAllRoutes configures all application routes
func setupAllRoutes(
	r *gin.Engine,
	h handlerSet,
	verificationService *services.VerificationService,
	rateLimiter gin.HandlerFunc,
) {
	// OIDC discovery documents (public)
	r.GET("/.well-known/openid-configuration", h.oidc.Discovery)
	r.GET("/.well-known/jwks.json", h.jwks.JWKS)

	// OAuth endpoints authenticated by client credentials or bearer token
	oauth := r.Group("/oauth")
	{
		oauth.POST("/token", rateLimiter, h.token.Token)
		oauth.POST("/revoke", rateLimiter, h.token.Revoke)
		oauth.GET("/tokeninfo", h.token.TokenInfo)
		oauth.GET("/userinfo", h.oidc.UserInfo)
		oauth.POST("/userinfo", h.oidc.UserInfo)
	}

	// Authorization Code Flow (requires an authenticated end user)
	authorize := r.Group("/oauth")
	authorize.Use(middleware.RequireBearer(verificationService))
	{
		authorize.GET("/authorize", h.authorization.Authorize)
		authorize.POST("/authorize/consent", h.authorization.Consent)
		authorize.DELETE("/consent/:client_id", h.authorization.RevokeConsent)
	}

	// Admin routes (require admin role)
	admin := r.Group("/admin")
	admin.Use(
		middleware.RequireBearer(verificationService),
		middleware.RequireAdmin(h.userService),
	)
	{
		admin.GET("/clients", h.client.ListClients)
		admin.POST("/clients", h.client.CreateClient)
		admin.GET("/clients/:id", h.client.GetClient)
		admin.POST("/clients/:id/secret", h.client.RegenerateSecret)
		admin.DELETE("/clients/:id", h.client.DeactivateClient)

		admin.GET("/users/:id/tokens", h.user.ListUserTokens)

		admin.GET("/audit-logs", h.audit.ListAuditLogs)
		admin.GET("/audit-logs/stats", h.audit.GetAuditLogStats)
		admin.GET("/audit-logs/export", h.audit.ExportAuditLogs)
	}
}

// createHealthCheckHandler creates health check endpoint handler
// healthCheck godoc
//
//	@Summary		Health check
//	@Description	Check server and database health status
//	@Tags			System
//	@Produce		json
//	@Success		200	{object}	object{status=string,database=string}	"Service is healthy"
//	@Failure		503	{object}	object{status=string,database=string}	"Service is unhealthy"
//	@Router			/health [get]
func createHealthCheckHandler(db *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch err := db.Health(); err {
		case nil:
			c.JSON(http.StatusOK, gin.H{
				"status":   "healthy",
				"database": "connected",
			})
		default:
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "disconnected",
			})
		}
	}
}

// setupGinMode sets Gin mode based on environment configuration
func setupGinMode(cfg *config.Config) {
	mode := ginModeMap[cfg.IsProduction]
	gin.SetMode(mode)
	log.Printf("Gin mode: %s", ginModeLogMessage[cfg.IsProduction])
}

var ginModeMap = map[bool]string{
	true:  gin.ReleaseMode,
	false: gin.DebugMode,
}

var ginModeLogMessage = map[bool]string{
	true:  "Release (production)",
	false: "Debug (development)",
}

// logServerStartup logs server startup information
func logServerStartup(cfg *config.Config) {
	log.Printf("Policy mode: %s", cfg.PolicyMode)
	log.Printf("OAuth authorization server starting on %s", cfg.ServerAddr)
	log.Printf("Issuer: %s", cfg.BaseURL)
	log.Printf("Discovery document: %s/.well-known/openid-configuration", cfg.BaseURL)
	log.Printf("Default user: admin (check logs for password if first run)")
}
