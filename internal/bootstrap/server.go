package bootstrap

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-tokengate/tokengate/internal/cache"
	"github.com/go-tokengate/tokengate/internal/config"
	"github.com/go-tokengate/tokengate/internal/metrics"
	"github.com/go-tokengate/tokengate/internal/services"
	"github.com/go-tokengate/tokengate/internal/store"

	"github.com/appleboy/graceful"
	"github.com/redis/go-redis/v9"
)

// createHTTPServer creates the HTTP server instance
func createHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// addServerRunningJob adds the HTTP server running job
func addServerRunningJob(m *graceful.Manager, srv *http.Server) {
	m.AddRunningJob(func(ctx context.Context) error {
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start server: %v", err)
			}
		}()
		<-ctx.Done()
		return nil
	})
}

// addServerShutdownJob adds HTTP server shutdown handler
func addServerShutdownJob(m *graceful.Manager, srv *http.Server) {
	m.AddShutdownJob(func() error {
		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server forced to shutdown: %v", err)
			return err
		}

		log.Println("Server exited")
		return nil
	})
}

// addRedisClientShutdownJob adds Redis client shutdown handler
func addRedisClientShutdownJob(m *graceful.Manager, redisClient *redis.Client) {
	if redisClient == nil {
		return
	}

	m.AddShutdownJob(func() error {
		log.Println("Closing Redis connection...")
		if err := redisClient.Close(); err != nil {
			log.Printf("Error closing Redis client: %v", err)
			return err
		}
		log.Println("Redis connection closed")
		return nil
	})
}

// addAuditServiceShutdownJob adds audit service shutdown handler
func addAuditServiceShutdownJob(m *graceful.Manager, auditService *services.AuditService) {
	m.AddShutdownJob(func() error {
		log.Println("Shutting down audit service...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := auditService.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down audit service: %v", err)
			return err
		}
		return nil
	})
}

// addAuditLogCleanupJob adds periodic audit log cleanup job
func addAuditLogCleanupJob(
	m *graceful.Manager,
	cfg *config.Config,
	auditService *services.AuditService,
) {
	if !cfg.AuditEnabled || cfg.AuditRetention <= 0 {
		return
	}

	cleanup := func() {
		if deleted, err := auditService.CleanupOldLogs(cfg.AuditRetention); err != nil {
			log.Printf("Failed to cleanup old audit logs: %v", err)
		} else if deleted > 0 {
			log.Printf("Cleaned up %d old audit logs", deleted)
		}
	}

	m.AddRunningJob(func(ctx context.Context) error {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		// Run cleanup immediately on startup
		cleanup()

		for {
			select {
			case <-ticker.C:
				cleanup()
			case <-ctx.Done():
				return nil
			}
		}
	})
}

// addTokenCleanupJob adds a periodic job that purges expired rows: access
// and refresh tokens, authorization codes, and blacklist entries. Expired
// tokens are already rejected on verification, so this only bounds table
// growth.
func addTokenCleanupJob(m *graceful.Manager, cfg *config.Config, db *store.Store) {
	if cfg.TokenCleanupInterval <= 0 {
		return
	}

	cleanup := func() {
		if err := db.DeleteExpiredTokens(); err != nil {
			log.Printf("Failed to delete expired tokens: %v", err)
		}
		if err := db.DeleteExpiredAuthorizationCodes(); err != nil {
			log.Printf("Failed to delete expired authorization codes: %v", err)
		}
		if err := db.DeleteExpiredBlacklistEntries(); err != nil {
			log.Printf("Failed to delete expired blacklist entries: %v", err)
		}
	}

	m.AddRunningJob(func(ctx context.Context) error {
		ticker := time.NewTicker(cfg.TokenCleanupInterval)
		defer ticker.Stop()

		cleanup()

		for {
			select {
			case <-ticker.C:
				cleanup()
			case <-ctx.Done():
				return nil
			}
		}
	})
}

// addMetricsGaugeUpdateJob adds periodic metrics gauge update job
func addMetricsGaugeUpdateJob(
	m *graceful.Manager,
	cfg *config.Config,
	db *store.Store,
	recorder metrics.Recorder,
	countCache cache.Cache[int64],
) {
	if !metricsGaugesEnabled(cfg) || countCache == nil {
		return
	}

	m.AddRunningJob(func(ctx context.Context) error {
		ticker := time.NewTicker(cfg.MetricsGaugeInterval)
		defer ticker.Stop()

		// The cache TTL matches the update interval so each instance reads
		// at most one fresh count per period.
		cacheWrapper := metrics.NewCacheWrapper(db, countCache)

		// Update immediately on startup
		updateGaugeMetricsWithCache(ctx, cacheWrapper, recorder, cfg.MetricsGaugeInterval)

		for {
			select {
			case <-ticker.C:
				updateGaugeMetricsWithCache(ctx, cacheWrapper, recorder, cfg.MetricsGaugeInterval)
			case <-ctx.Done():
				return nil
			}
		}
	})
}

// addCacheCleanupJob adds cache cleanup on shutdown
func addCacheCleanupJob(m *graceful.Manager, closers []func() error) {
	if len(closers) == 0 {
		return
	}

	m.AddShutdownJob(func() error {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				log.Printf("Error closing cache: %v", err)
			}
		}
		log.Println("Caches closed")
		return nil
	})
}

// errorLogger handles rate-limited error logging
type errorLogger struct {
	lastErrorTimes  map[string]time.Time
	rateLimitWindow time.Duration
}

// newErrorLogger creates a new error logger with rate limiting
func newErrorLogger() *errorLogger {
	return &errorLogger{
		lastErrorTimes:  make(map[string]time.Time),
		rateLimitWindow: 5 * time.Minute, // Log at most once per 5 minutes per operation
	}
}

// logIfNeeded logs an error only if rate limit allows
func (e *errorLogger) logIfNeeded(operation string, err error) {
	now := time.Now()
	lastTime, exists := e.lastErrorTimes[operation]

	if !exists || now.Sub(lastTime) >= e.rateLimitWindow {
		log.Printf("Database query failed for %s: %v (further errors will be suppressed for %v)",
			operation, err, e.rateLimitWindow)
		e.lastErrorTimes[operation] = now
	}
}

var gaugeErrorLogger = newErrorLogger()

// updateGaugeMetricsWithCache updates gauge metrics using a cache-backed store.
// This reduces database load in multi-instance deployments by caching query results.
func updateGaugeMetricsWithCache(
	ctx context.Context,
	cacheWrapper *metrics.CacheWrapper,
	m metrics.Recorder,
	cacheTTL time.Duration,
) {
	for _, category := range []string{"access", "refresh"} {
		count, err := cacheWrapper.GetActiveTokensCount(ctx, category, cacheTTL)
		if err != nil {
			m.RecordDatabaseQueryError("count_" + category + "_tokens")
			gaugeErrorLogger.logIfNeeded("count_"+category+"_tokens", err)
			continue
		}
		m.SetActiveTokensCount(category, int(count))
	}

	codes, err := cacheWrapper.GetActiveAuthorizationCodesCount(ctx, cacheTTL)
	if err != nil {
		m.RecordDatabaseQueryError("count_active_codes")
		gaugeErrorLogger.logIfNeeded("count_active_codes", err)
		return
	}
	m.SetActiveCodesCount(int(codes))
}
