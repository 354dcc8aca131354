package vm

import (
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
	"github.com/arloliu/cqlharness/types"
)

// Option configures a Collector.
type Option func(*Collector)

// WithPrefix sets the metric name prefix.
//
// Default: "cqlharness"
//
// Parameters:
//   - prefix: The prefix to use for all metric names
//
// Returns:
//   - Option: A configuration option
func WithPrefix(prefix string) Option {
	return func(c *Collector) {
		c.prefix = prefix
	}
}

// WithMetricsSet sets the metrics set to use.
//
// If provided, the collector will register metrics with this set instead of
// creating a new one. The caller is responsible for exposing this set
// (e.g., via metrics.WritePrometheus or a custom handler).
//
// Parameters:
//   - set: The metrics set to use
//
// Returns:
//   - Option: A configuration option
func WithMetricsSet(set *metrics.Set) Option {
	return func(c *Collector) {
		c.set = set
	}
}

// failureKinds are the kinds that get a pre-created retry/satisfied series.
var failureKinds = []types.FailureKind{
	types.FailureOperationTimeout,
	types.FailureReadTimeout,
	types.FailureReadFailure,
	types.FailureWriteTimeout,
	types.FailureWriteFailure,
	types.FailureConfigurationExists,
	types.FailureAlreadyExists,
	types.FailureUnclassified,
}

// Collector implements types.MetricsCollector using VictoriaMetrics.
//
// Statement and host metrics are pre-created at initialization time.
// Cluster-labelled series are created on first use because cluster names are
// only known at runtime. Thread-safe for concurrent use.
type Collector struct {
	set    *metrics.Set
	prefix string

	// Statement metrics
	statementAttempts  *metrics.Counter
	statementExhausted *metrics.Counter
	statementDuration  *metrics.Histogram
	statementRetries   map[types.FailureKind]*metrics.Counter
	statementSatisfied map[types.FailureKind]*metrics.Counter

	// Host metrics
	hostUp   *metrics.Counter
	hostDown *metrics.Counter

	// Pool metrics
	connectionHolders atomic.Int64
	poolViolations    *metrics.Counter
}

// New creates a new VictoriaMetrics-based metrics collector.
//
// The collector creates its own metrics.Set and registers it globally.
//
// Parameters:
//   - opts: Configuration options (e.g., WithPrefix)
//
// Returns:
//   - *Collector: A new metrics collector ready for use
//
// Example:
//
//	collector := vm.New(vm.WithPrefix("itest"))
//	h, _ := cqlharness.New(cfg, cqlharness.WithMetrics(collector))
func New(opts ...Option) *Collector {
	c := &Collector{
		prefix: "cqlharness",
	}

	for _, opt := range opts {
		opt(c)
	}

	// If no set is provided, create a new one and register it globally.
	// If a set is provided, we assume the caller manages it.
	if c.set == nil {
		c.set = metrics.NewSet()
		metrics.RegisterSet(c.set)
	}

	c.initMetrics()

	return c
}

// initMetrics pre-creates all fixed-label metrics with the configured prefix.
func (c *Collector) initMetrics() {
	p := c.prefix

	c.statementAttempts = c.set.NewCounter(fmt.Sprintf(`%s_statement_attempts_total`, p))
	c.statementExhausted = c.set.NewCounter(fmt.Sprintf(`%s_statement_exhausted_total`, p))
	c.statementDuration = c.set.NewHistogram(fmt.Sprintf(`%s_statement_duration_seconds`, p))

	c.statementRetries = make(map[types.FailureKind]*metrics.Counter, len(failureKinds))
	c.statementSatisfied = make(map[types.FailureKind]*metrics.Counter, len(failureKinds))
	for _, k := range failureKinds {
		c.statementRetries[k] = c.set.NewCounter(fmt.Sprintf(`%s_statement_retries_total{kind="%s"}`, p, k))
		c.statementSatisfied[k] = c.set.NewCounter(fmt.Sprintf(`%s_statement_satisfied_total{kind="%s"}`, p, k))
	}

	c.hostUp = c.set.NewCounter(fmt.Sprintf(`%s_host_events_total{state="up"}`, p))
	c.hostDown = c.set.NewCounter(fmt.Sprintf(`%s_host_events_total{state="down"}`, p))

	c.set.NewGauge(fmt.Sprintf(`%s_connection_holders`, p), func() float64 {
		return float64(c.connectionHolders.Load())
	})
	c.poolViolations = c.set.NewCounter(fmt.Sprintf(`%s_pool_violations_total`, p))
}

// Set returns the underlying metrics set.
func (c *Collector) Set() *metrics.Set {
	return c.set
}

// Handler returns an HTTP handler that exposes metrics in Prometheus format.
//
// Example:
//
//	http.HandleFunc("/metrics", collector.Handler)
func (c *Collector) Handler(w http.ResponseWriter, _ *http.Request) {
	c.set.WritePrometheus(w)
}

// WritePrometheus writes all metrics in Prometheus format to the given writer.
//
// Parameters:
//   - w: The writer to write metrics to
func (c *Collector) WritePrometheus(w io.Writer) {
	c.set.WritePrometheus(w)
}

func (c *Collector) clusterCounter(name, cluster string) *metrics.Counter {
	return c.set.GetOrCreateCounter(fmt.Sprintf(`%s_%s{cluster="%s"}`, c.prefix, name, cluster))
}

// ----------------------
// Statements
// ----------------------

// IncStatementAttempt increments the statement attempt counter.
func (c *Collector) IncStatementAttempt() {
	c.statementAttempts.Inc()
}

// IncStatementRetry increments the retry counter for kind.
func (c *Collector) IncStatementRetry(kind types.FailureKind) {
	if ctr, ok := c.statementRetries[kind]; ok {
		ctr.Inc()
	}
}

// IncStatementSatisfied increments the already-satisfied counter for kind.
func (c *Collector) IncStatementSatisfied(kind types.FailureKind) {
	if ctr, ok := c.statementSatisfied[kind]; ok {
		ctr.Inc()
	}
}

// IncStatementExhausted increments the exhausted statement counter.
func (c *Collector) IncStatementExhausted() {
	c.statementExhausted.Inc()
}

// ObserveStatementDuration records a statement duration in seconds.
func (c *Collector) ObserveStatementDuration(seconds float64) {
	c.statementDuration.Update(seconds)
}

// ----------------------
// Provisioning
// ----------------------

// IncClusterReused increments the reuse counter for cluster.
func (c *Collector) IncClusterReused(cluster string) {
	c.clusterCounter("cluster_reused_total", cluster).Inc()
}

// IncClusterCreated increments the create counter for cluster.
func (c *Collector) IncClusterCreated(cluster string) {
	c.clusterCounter("cluster_created_total", cluster).Inc()
}

// IncProvisionFailure increments the provisioning failure counter for cluster.
func (c *Collector) IncProvisionFailure(cluster string) {
	c.clusterCounter("provision_failures_total", cluster).Inc()
}

// ObserveProvisionDuration records a provisioning duration in seconds.
func (c *Collector) ObserveProvisionDuration(cluster string, seconds float64) {
	c.set.GetOrCreateHistogram(fmt.Sprintf(`%s_provision_duration_seconds{cluster="%s"}`, c.prefix, cluster)).Update(seconds)
}

// IncRemovalRetry increments the removal retry counter for cluster.
func (c *Collector) IncRemovalRetry(cluster string) {
	c.clusterCounter("removal_retries_total", cluster).Inc()
}

// ----------------------
// Host Events
// ----------------------

// IncHostEvent increments the host event counter for state.
func (c *Collector) IncHostEvent(state types.HostState) {
	switch state {
	case types.HostUp:
		c.hostUp.Inc()
	case types.HostDown:
		c.hostDown.Inc()
	default:
	}
}

// ----------------------
// Connection Pool
// ----------------------

// SetConnectionHolders sets the connection holder gauge.
func (c *Collector) SetConnectionHolders(count int) {
	c.connectionHolders.Store(int64(count))
}

// IncPoolViolation increments the pool violation counter.
func (c *Collector) IncPoolViolation() {
	c.poolViolations.Inc()
}
