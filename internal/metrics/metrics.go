package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/go-tokengate/tokengate/internal/core"
)

// Recorder is the metrics interface consumed throughout the application.
type Recorder = core.Recorder

// Ensure Metrics implements Recorder interface at compile time
var _ Recorder = (*Metrics)(nil)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Token Metrics
	TokensIssuedTotal       *prometheus.CounterVec
	TokensRevokedTotal      *prometheus.CounterVec
	TokensRefreshedTotal    *prometheus.CounterVec
	TokenValidationTotal    *prometheus.CounterVec
	TokensActive            *prometheus.GaugeVec
	TokenGenerationDuration *prometheus.HistogramVec
	TokenValidationDuration prometheus.Histogram

	// Authorization Code Flow Metrics
	AuthorizationCodesTotal  *prometheus.CounterVec
	AuthorizationCodesActive prometheus.Gauge
	CodeRedemptionTotal      *prometheus.CounterVec
	ConsentDecisionsTotal    *prometheus.CounterVec

	// Client Authentication Metrics
	ClientAuthTotal    *prometheus.CounterVec
	ClientAuthDuration *prometheus.HistogramVec

	// Policy Resolution Metrics
	PolicyLookupTotal    *prometheus.CounterVec
	PolicyLookupDuration *prometheus.HistogramVec

	// HTTP Request Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Database Query Metrics
	DatabaseQueryErrorsTotal *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Init initializes metrics based on enabled flag.
// If enabled=true, returns Prometheus-based Metrics.
// If enabled=false, returns NoopMetrics (zero overhead).
// Uses sync.Once to ensure Prometheus metrics are only registered once.
func Init(enabled bool) Recorder {
	if !enabled {
		return NewNoopMetrics()
	}

	once.Do(func() {
		defaultMetrics = initMetrics()
	})
	return defaultMetrics
}

// initMetrics creates and registers all Prometheus metrics
func initMetrics() *Metrics {
	m := &Metrics{
		// Token Metrics
		TokensIssuedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_tokens_issued_total",
				Help: "Total number of tokens issued",
			},
			[]string{
				"token_type",
				"grant_type",
			}, // token_type: access, refresh; grant_type: authorization_code, refresh_token, client_credentials
		),
		TokensRevokedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_tokens_revoked_total",
				Help: "Total number of tokens revoked",
			},
			[]string{"token_type", "reason"}, // reason: client_request, rotation, reuse_detected
		),
		TokensRefreshedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_tokens_refreshed_total",
				Help: "Total number of token refresh attempts",
			},
			[]string{"result"}, // success, error
		),
		TokenValidationTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_token_validation_total",
				Help: "Total number of token validations",
			},
			[]string{"result"}, // success, expired, revoked, invalid_signature, not_found
		),
		TokensActive: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "oauth_tokens_active",
				Help: "Current number of active tokens",
			},
			[]string{"token_type"}, // access, refresh
		),
		TokenGenerationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oauth_token_generation_duration_seconds",
				Help:    "Time taken to generate tokens",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"grant_type"},
		),
		TokenValidationDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "oauth_token_validation_duration_seconds",
				Help:    "Time taken to validate tokens",
				Buckets: prometheus.DefBuckets,
			},
		),

		// Authorization Code Flow Metrics
		AuthorizationCodesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_authorization_codes_total",
				Help: "Total number of authorization codes generated",
			},
			[]string{"result"}, // success, error
		),
		AuthorizationCodesActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "oauth_authorization_codes_active",
				Help: "Current number of unexpired, unused authorization codes",
			},
		),
		CodeRedemptionTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_code_redemption_total",
				Help: "Total number of authorization code redemption attempts",
			},
			[]string{
				"result",
			}, // success, not_found, expired, already_used, pkce_failed, client_mismatch, redirect_mismatch
		),
		ConsentDecisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_consent_decisions_total",
				Help: "Total number of user consent decisions",
			},
			[]string{"decision"}, // granted, revoked
		),

		// Client Authentication Metrics
		ClientAuthTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_client_auth_total",
				Help: "Total number of client authentication attempts",
			},
			[]string{
				"method",
				"result",
			}, // method: client_secret_basic, client_secret_post, none
		),
		ClientAuthDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oauth_client_auth_duration_seconds",
				Help:    "Time taken to authenticate clients",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),

		// Policy Resolution Metrics
		PolicyLookupTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "policy_lookup_total",
				Help: "Total number of permission policy lookups",
			},
			[]string{"mode", "result"}, // mode: static, http_api
		),
		PolicyLookupDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "policy_lookup_duration_seconds",
				Help:    "Time taken to resolve permissions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),

		// HTTP Request Metrics
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "http_request_duration_seconds",
				Help: "HTTP request latency in seconds",
				Buckets: []float64{
					0.001,
					0.005,
					0.010,
					0.025,
					0.050,
					0.100,
					0.250,
					0.500,
					1.0,
					2.5,
					5.0,
					10.0,
				},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being served",
			},
		),

		// Database Query Metrics
		DatabaseQueryErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "database_query_errors_total",
				Help: "Total number of database query errors during metric collection",
			},
			[]string{"operation"}, // count_access_tokens, count_refresh_tokens, count_codes
		),
	}

	return m
}
