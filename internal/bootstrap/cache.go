package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-tokengate/tokengate/internal/cache"
	"github.com/go-tokengate/tokengate/internal/config"
	"github.com/go-tokengate/tokengate/internal/core"
	"github.com/go-tokengate/tokengate/internal/metrics"
	"github.com/go-tokengate/tokengate/internal/models"
)

const cacheInitTimeout = 10 * time.Second

// initializeMetrics initializes Prometheus metrics
func initializeMetrics(cfg *config.Config) metrics.Recorder {
	m := metrics.Init(cfg.MetricsEnabled)
	if cfg.MetricsEnabled {
		log.Println("Prometheus metrics initialized")
	} else {
		log.Println("Metrics disabled (using noop implementation)")
	}
	return m
}

// initializeCaches builds the verification hot-path caches and the metrics
// count cache based on the configured backend. Every non-nil cache's Close
// is collected for shutdown.
func initializeCaches(
	cfg *config.Config,
) (core.Cache[bool], core.Cache[models.Client], cache.Cache[int64], []func() error, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheInitTimeout)
	defer cancel()

	var closers []func() error

	switch cfg.CacheBackend {
	case config.CacheBackendRedis:
		blacklist, err := cache.NewRueidisCache[bool](
			ctx,
			cfg.CacheRedisAddr, cfg.CacheRedisPassword, cfg.CacheRedisDB,
			"tokengate:blacklist:",
		)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf(
				"failed to initialize redis blacklist cache: %w", err)
		}
		closers = append(closers, blacklist.Close)

		clients, err := cache.NewRueidisCache[models.Client](
			ctx,
			cfg.CacheRedisAddr, cfg.CacheRedisPassword, cfg.CacheRedisDB,
			"tokengate:clients:",
		)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf(
				"failed to initialize redis client cache: %w", err)
		}
		closers = append(closers, clients.Close)

		counts, err := initializeMetricsCache(cfg)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		if counts != nil {
			closers = append(closers, counts.Close)
		}

		log.Printf("Cache backend: redis (addr=%s, db=%d)", cfg.CacheRedisAddr, cfg.CacheRedisDB)
		return blacklist, clients, counts, closers, nil

	default: // memory
		blacklist := cache.NewMemoryCache[bool]()
		clients := cache.NewMemoryCache[models.Client]()
		closers = append(closers, blacklist.Close, clients.Close)

		var counts cache.Cache[int64]
		if metricsGaugesEnabled(cfg) {
			mc := cache.NewMemoryCache[int64]()
			closers = append(closers, mc.Close)
			counts = mc
		}

		log.Println("Cache backend: memory (single instance only)")
		return blacklist, clients, counts, closers, nil
	}
}

// initializeMetricsCache builds the redis-backed count cache used by the
// gauge update job. Uses client-side caching so repeated reads across
// instances stay off the database.
func initializeMetricsCache(cfg *config.Config) (cache.Cache[int64], error) {
	if !metricsGaugesEnabled(cfg) {
		return nil, nil
	}

	counts, err := cache.NewRueidisAsideCache(
		cfg.CacheRedisAddr, cfg.CacheRedisPassword, cfg.CacheRedisDB,
		"tokengate:metrics:",
		cfg.MetricsGaugeInterval,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis-aside metrics cache: %w", err)
	}
	log.Printf("Metrics cache: redis-aside (addr=%s, db=%d, client_ttl=%s)",
		cfg.CacheRedisAddr, cfg.CacheRedisDB, cfg.MetricsGaugeInterval)
	return counts, nil
}

func metricsGaugesEnabled(cfg *config.Config) bool {
	return cfg.MetricsEnabled && cfg.MetricsGaugeInterval > 0
}
