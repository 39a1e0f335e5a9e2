package metrics

import "time"

// NoopMetrics is a no-operation implementation of Recorder.
// All methods are empty and do nothing, providing zero overhead when metrics are disabled
type NoopMetrics struct{}

// Ensure NoopMetrics implements Recorder interface at compile time
var _ Recorder = (*NoopMetrics)(nil)

// NewNoopMetrics creates a new no-operation metrics recorder
func NewNoopMetrics() Recorder {
	return &NoopMetrics{}
}

// Token Operations - noop implementations
func (n *NoopMetrics) RecordTokenIssued(tokenType, grantType string, generationTime time.Duration) {}
func (n *NoopMetrics) RecordTokenRevoked(tokenType, reason string)                                 {}
func (n *NoopMetrics) RecordTokenRefresh(success bool)                                             {}
func (n *NoopMetrics) RecordTokenValidation(result string, duration time.Duration)                 {}

// Authorization Endpoint - noop implementations
func (n *NoopMetrics) RecordAuthorizationCodeIssued(success bool)    {}
func (n *NoopMetrics) RecordAuthorizationCodeRedeemed(result string) {}
func (n *NoopMetrics) RecordConsentDecision(granted bool)            {}

// Client Authentication - noop implementations
func (n *NoopMetrics) RecordClientAuthAttempt(method string, success bool, duration time.Duration) {}

// Policy Resolution - noop implementations
func (n *NoopMetrics) RecordPolicyLookup(mode string, duration time.Duration, success bool) {}

// Gauge Setters - noop implementations
func (n *NoopMetrics) SetActiveTokensCount(tokenType string, count int) {}
func (n *NoopMetrics) SetActiveCodesCount(count int)                    {}

// Database Operations - noop implementations
func (n *NoopMetrics) RecordDatabaseQueryError(operation string) {}
