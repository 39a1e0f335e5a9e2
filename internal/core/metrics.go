package core

import "time"

// Recorder defines the interface for recording application metrics.
// Implementations include Metrics (Prometheus-based) and NoopMetrics (no-op).
type Recorder interface {
	// Token Operations
	RecordTokenIssued(tokenType, grantType string, generationTime time.Duration)
	RecordTokenRevoked(tokenType, reason string)
	RecordTokenRefresh(success bool)
	RecordTokenValidation(result string, duration time.Duration)

	// Authorization Endpoint
	RecordAuthorizationCodeIssued(success bool)
	RecordAuthorizationCodeRedeemed(result string)
	RecordConsentDecision(granted bool)

	// Client Authentication
	RecordClientAuthAttempt(method string, success bool, duration time.Duration)

	// Policy Resolution
	RecordPolicyLookup(mode string, duration time.Duration, success bool)

	// Gauge Setters (for periodic updates)
	SetActiveTokensCount(tokenType string, count int)
	SetActiveCodesCount(count int)

	// Database Operations
	RecordDatabaseQueryError(operation string)
}

// MetricsStore defines the DB operations needed by CacheWrapper.
type MetricsStore interface {
	CountActiveTokensByCategory(category string) (int64, error)
	CountActiveAuthorizationCodes() (int64, error)
}
