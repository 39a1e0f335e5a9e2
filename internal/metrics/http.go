package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	resultSuccess = "success"
	resultError   = "error"
	resultFailure = "failure"
)

// HTTPMetricsMiddleware creates a Gin middleware that records HTTP metrics
func HTTPMetricsMiddleware(m Recorder) gin.HandlerFunc {
	// If NoopMetrics, return a lightweight middleware that does nothing
	if _, ok := m.(*NoopMetrics); ok {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	// Type assert to concrete Metrics for Prometheus access
	metrics, ok := m.(*Metrics)
	if !ok {
		// Fallback if unknown implementation
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		// Skip metrics endpoint to avoid self-recording
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()

		// Increment in-flight counter
		metrics.HTTPRequestsInFlight.Inc()
		defer metrics.HTTPRequestsInFlight.Dec()

		// Process request
		c.Next()

		// Record metrics after request completes
		duration := time.Since(start).Seconds()
		method := c.Request.Method
		path := normalizePath(c.FullPath()) // Use route pattern, not actual path
		status := strconv.Itoa(c.Writer.Status())

		// Record request count
		metrics.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()

		// Record request duration
		metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// normalizePath converts the actual request path to route pattern
// Returns the route pattern (e.g., "/users/:id") or the path itself if no match
func normalizePath(fullPath string) string {
	if fullPath == "" {
		return "unknown"
	}
	return fullPath
}

// RecordTokenIssued records token issuance
func (m *Metrics) RecordTokenIssued(tokenType, grantType string, generationTime time.Duration) {
	m.TokensIssuedTotal.WithLabelValues(tokenType, grantType).Inc()
	m.TokensActive.WithLabelValues(tokenType).Inc()
	m.TokenGenerationDuration.WithLabelValues(grantType).Observe(generationTime.Seconds())
}

// RecordTokenRevoked records token revocation
func (m *Metrics) RecordTokenRevoked(tokenType, reason string) {
	m.TokensRevokedTotal.WithLabelValues(tokenType, reason).Inc()
	m.TokensActive.WithLabelValues(tokenType).Dec()
}

// RecordTokenRefresh records token refresh attempt
func (m *Metrics) RecordTokenRefresh(success bool) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	m.TokensRefreshedTotal.WithLabelValues(result).Inc()
}

// RecordTokenValidation records token validation
func (m *Metrics) RecordTokenValidation(result string, duration time.Duration) {
	// result: success, expired, revoked, invalid_signature, not_found
	m.TokenValidationTotal.WithLabelValues(result).Inc()
	m.TokenValidationDuration.Observe(duration.Seconds())
}

// RecordAuthorizationCodeIssued records authorization code generation
func (m *Metrics) RecordAuthorizationCodeIssued(success bool) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	m.AuthorizationCodesTotal.WithLabelValues(result).Inc()

	if success {
		m.AuthorizationCodesActive.Inc()
	}
}

// RecordAuthorizationCodeRedeemed records a code redemption attempt
func (m *Metrics) RecordAuthorizationCodeRedeemed(result string) {
	m.CodeRedemptionTotal.WithLabelValues(result).Inc()

	// Codes leave the active pool whether redeemed or burned
	if result == resultSuccess || result == "expired" || result == "already_used" {
		m.AuthorizationCodesActive.Dec()
	}
}

// RecordConsentDecision records a user consent decision
func (m *Metrics) RecordConsentDecision(granted bool) {
	decision := "granted"
	if !granted {
		decision = "revoked"
	}
	m.ConsentDecisionsTotal.WithLabelValues(decision).Inc()
}

// RecordClientAuthAttempt records a client authentication attempt
func (m *Metrics) RecordClientAuthAttempt(method string, success bool, duration time.Duration) {
	result := resultSuccess
	if !success {
		result = resultFailure
	}
	m.ClientAuthTotal.WithLabelValues(method, result).Inc()
	m.ClientAuthDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordPolicyLookup records a permission resolution call
func (m *Metrics) RecordPolicyLookup(mode string, duration time.Duration, success bool) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	m.PolicyLookupTotal.WithLabelValues(mode, result).Inc()
	m.PolicyLookupDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// SetActiveTokensCount sets the current count of active tokens (for periodic updates)
func (m *Metrics) SetActiveTokensCount(tokenType string, count int) {
	m.TokensActive.WithLabelValues(tokenType).Set(float64(count))
}

// SetActiveCodesCount sets the current count of active authorization codes
func (m *Metrics) SetActiveCodesCount(count int) {
	m.AuthorizationCodesActive.Set(float64(count))
}

// RecordDatabaseQueryError records a database query error during metric collection
func (m *Metrics) RecordDatabaseQueryError(operation string) {
	m.DatabaseQueryErrorsTotal.WithLabelValues(operation).Inc()
}
