// Package metrics provides internal metrics utilities for cqlharness.
package metrics

import "github.com/arloliu/cqlharness/types"

// NopMetrics is a no-op metrics collector that discards all metrics.
//
// This is used as the default metrics collector when no collector is configured,
// avoiding nil checks throughout the codebase.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements types.MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNopMetrics creates a new no-op metrics collector.
//
// Returns:
//   - *NopMetrics: A collector that discards all metrics
func NewNopMetrics() *NopMetrics {
	return &NopMetrics{}
}

// OrNop returns m, or a NopMetrics when m is nil.
func OrNop(m types.MetricsCollector) types.MetricsCollector {
	if m == nil {
		return NewNopMetrics()
	}

	return m
}

// ----------------------
// Statements
// ----------------------

// IncStatementAttempt discards the metric.
func (m *NopMetrics) IncStatementAttempt() {}

// IncStatementRetry discards the metric.
func (m *NopMetrics) IncStatementRetry(_ types.FailureKind) {}

// IncStatementSatisfied discards the metric.
func (m *NopMetrics) IncStatementSatisfied(_ types.FailureKind) {}

// IncStatementExhausted discards the metric.
func (m *NopMetrics) IncStatementExhausted() {}

// ObserveStatementDuration discards the metric.
func (m *NopMetrics) ObserveStatementDuration(_ float64) {}

// ----------------------
// Provisioning
// ----------------------

// IncClusterReused discards the metric.
func (m *NopMetrics) IncClusterReused(_ string) {}

// IncClusterCreated discards the metric.
func (m *NopMetrics) IncClusterCreated(_ string) {}

// IncProvisionFailure discards the metric.
func (m *NopMetrics) IncProvisionFailure(_ string) {}

// ObserveProvisionDuration discards the metric.
func (m *NopMetrics) ObserveProvisionDuration(_ string, _ float64) {}

// IncRemovalRetry discards the metric.
func (m *NopMetrics) IncRemovalRetry(_ string) {}

// ----------------------
// Host Events
// ----------------------

// IncHostEvent discards the metric.
func (m *NopMetrics) IncHostEvent(_ types.HostState) {}

// ----------------------
// Connection Pool
// ----------------------

// SetConnectionHolders discards the metric.
func (m *NopMetrics) SetConnectionHolders(_ int) {}

// IncPoolViolation discards the metric.
func (m *NopMetrics) IncPoolViolation() {}
