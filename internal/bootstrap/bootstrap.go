package bootstrap

import (
	"net/http"

	"github.com/go-tokengate/tokengate/internal/cache"
	"github.com/go-tokengate/tokengate/internal/config"
	"github.com/go-tokengate/tokengate/internal/core"
	"github.com/go-tokengate/tokengate/internal/keys"
	"github.com/go-tokengate/tokengate/internal/metrics"
	"github.com/go-tokengate/tokengate/internal/models"
	"github.com/go-tokengate/tokengate/internal/services"
	"github.com/go-tokengate/tokengate/internal/store"
	"github.com/go-tokengate/tokengate/internal/token"

	"github.com/appleboy/graceful"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Application holds all initialized components
type Application struct {
	Config *config.Config

	// Core infrastructure
	DB                   *store.Store
	Keys                 *keys.Manager
	Signer               *token.Signer
	MetricsRecorder      metrics.Recorder
	BlacklistCache       core.Cache[bool]
	ClientCache          core.Cache[models.Client]
	MetricsCache         cache.Cache[int64]
	CacheClosers         []func() error
	RateLimitRedisClient *redis.Client

	// Services
	AuditService         *services.AuditService
	UserService          *services.UserService
	ClientService        *services.ClientService
	AuthorizationService *services.AuthorizationService
	TokenService         *services.TokenService
	RevocationService    *services.RevocationService
	VerificationService  *services.VerificationService

	// HTTP
	HandlerSet handlerSet
	Router     *gin.Engine
	Server     *http.Server
}

// Run initializes and starts the application
func Run(cfg *config.Config) error {
	app := &Application{Config: cfg}

	// Phase 1: Validate configuration
	validateAllConfiguration(cfg)

	// Phase 2: Initialize infrastructure
	if err := app.initializeInfrastructure(); err != nil {
		return err
	}

	// Phase 3: Initialize business layer
	if err := app.initializeBusinessLayer(); err != nil {
		return err
	}

	// Phase 4: Initialize HTTP layer
	app.initializeHTTPLayer()

	// Phase 5: Start server with graceful shutdown
	app.startWithGracefulShutdown()

	return nil
}

// initializeInfrastructure sets up database, signing keys, metrics, caches, and Redis
func (app *Application) initializeInfrastructure() error {
	var err error

	// Database
	app.DB, err = initializeDatabase(app.Config)
	if err != nil {
		return err
	}

	// Signing keys and JWT signer
	app.Keys, err = initializeKeyManager(app.Config)
	if err != nil {
		return err
	}
	app.Signer = token.NewSigner(app.Keys, app.Config.BaseURL, app.Config.ClockSkewLeeway)

	// Metrics
	app.MetricsRecorder = initializeMetrics(app.Config)

	// Verification hot-path caches
	app.BlacklistCache, app.ClientCache, app.MetricsCache, app.CacheClosers, err = initializeCaches(
		app.Config,
	)
	if err != nil {
		return err
	}

	// Redis (for rate limiting)
	app.RateLimitRedisClient, err = initializeRateLimitRedisClient(app.Config)
	if err != nil {
		return err
	}

	return nil
}

// initializeBusinessLayer sets up services
func (app *Application) initializeBusinessLayer() error {
	// Audit service (required by other services)
	app.AuditService = services.NewAuditService(
		app.DB,
		app.Config.AuditEnabled,
		app.Config.AuditBufferSize,
	)

	svcs, err := initializeServices(
		app.Config,
		app.DB,
		app.Signer,
		app.BlacklistCache,
		app.ClientCache,
		app.AuditService,
		app.MetricsRecorder,
	)
	if err != nil {
		return err
	}

	app.UserService = svcs.user
	app.ClientService = svcs.client
	app.AuthorizationService = svcs.authorization
	app.TokenService = svcs.token
	app.RevocationService = svcs.revocation
	app.VerificationService = svcs.verification
	return nil
}

// initializeHTTPLayer sets up handlers, router, and server
func (app *Application) initializeHTTPLayer() {
	app.HandlerSet = initializeHandlers(
		app.Config,
		app.Keys,
		app.UserService,
		app.ClientService,
		app.AuthorizationService,
		app.TokenService,
		app.RevocationService,
		app.VerificationService,
		app.AuditService,
	)

	app.Router = setupRouter(
		app.Config,
		app.DB,
		app.HandlerSet,
		app.MetricsRecorder,
		app.AuditService,
		app.VerificationService,
		app.RateLimitRedisClient,
	)

	app.Server = createHTTPServer(app.Config, app.Router)
}

// startWithGracefulShutdown starts the server and handles graceful shutdown
func (app *Application) startWithGracefulShutdown() {
	m := graceful.NewManager()

	addServerRunningJob(m, app.Server)
	addServerShutdownJob(m, app.Server)
	addRedisClientShutdownJob(m, app.RateLimitRedisClient)
	addAuditServiceShutdownJob(m, app.AuditService)
	addAuditLogCleanupJob(m, app.Config, app.AuditService)
	addTokenCleanupJob(m, app.Config, app.DB)
	addMetricsGaugeUpdateJob(m, app.Config, app.DB, app.MetricsRecorder, app.MetricsCache)
	addCacheCleanupJob(m, app.CacheClosers)

	// Wait for graceful shutdown
	<-m.Done()
}
