package types

// MetricsCollector defines methods for collecting harness metrics.
//
// Cluster-scoped methods accept the cluster name as a label.
// Implementations should be thread-safe as methods may be called concurrently.
//
// Example usage with VictoriaMetrics (via contrib/metrics/vm):
//
//	import vmmetrics "github.com/arloliu/cqlharness/contrib/metrics/vm"
//
//	collector := vmmetrics.New(vmmetrics.WithPrefix("itest"))
//	h, _ := cqlharness.New(cfg, cqlharness.WithMetrics(collector))
//
//	// Expose metrics via HTTP
//	http.HandleFunc("/metrics", collector.Handler)
type MetricsCollector interface {
	// ----------------------
	// Statements
	// ----------------------

	// IncStatementAttempt increments the statement attempt counter.
	IncStatementAttempt()

	// IncStatementRetry increments the retry counter for a transient failure kind.
	IncStatementRetry(kind FailureKind)

	// IncStatementSatisfied increments the counter of statements whose target
	// state already existed.
	IncStatementSatisfied(kind FailureKind)

	// IncStatementExhausted increments the counter of statements that hit
	// their attempt bound.
	IncStatementExhausted()

	// ObserveStatementDuration records the total duration of a statement
	// execution, across all attempts, in seconds.
	ObserveStatementDuration(seconds float64)

	// ----------------------
	// Provisioning
	// ----------------------

	// IncClusterReused increments the counter when Ensure reuses a matching cluster.
	IncClusterReused(cluster string)

	// IncClusterCreated increments the counter when a cluster is created or reloaded.
	IncClusterCreated(cluster string)

	// IncProvisionFailure increments the counter when start or bootstrap fails.
	IncProvisionFailure(cluster string)

	// ObserveProvisionDuration records the duration of a non-reuse Ensure in seconds.
	ObserveProvisionDuration(cluster string, seconds float64)

	// IncRemovalRetry increments the counter when a removal attempt is retried.
	IncRemovalRetry(cluster string)

	// ----------------------
	// Host Events
	// ----------------------

	// IncHostEvent increments the host event counter for the given state.
	IncHostEvent(state HostState)

	// ----------------------
	// Connection Pool
	// ----------------------

	// SetConnectionHolders sets the current connection holder count gauge.
	SetConnectionHolders(count int)

	// IncPoolViolation increments the pool invariant violation counter.
	IncPoolViolation()
}
