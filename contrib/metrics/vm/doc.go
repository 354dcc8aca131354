// Package vm provides a VictoriaMetrics-based implementation of the MetricsCollector interface.
//
// This package uses github.com/VictoriaMetrics/metrics for lightweight,
// Prometheus-compatible metrics collection.
//
// # Basic Usage
//
// Create a collector with default prefix "cqlharness":
//
//	collector := vm.New()
//	h, _ := cqlharness.New(cfg, cqlharness.WithMetrics(collector))
//
// # Exposing Metrics
//
//	http.HandleFunc("/metrics", collector.Handler)
//
// Or use WritePrometheus to write metrics to a custom writer, for example
// at the end of an integration run:
//
//	collector.WritePrometheus(os.Stdout)
//
// # Metrics Provided
//
// Statements:
//   - {prefix}_statement_attempts_total - Counter of statement attempts
//   - {prefix}_statement_retries_total{kind} - Counter of transient retries
//   - {prefix}_statement_satisfied_total{kind} - Counter of already-satisfied results
//   - {prefix}_statement_exhausted_total - Counter of statements that hit their bound
//   - {prefix}_statement_duration_seconds - Histogram of total execution time
//
// Provisioning:
//   - {prefix}_cluster_reused_total{cluster}
//   - {prefix}_cluster_created_total{cluster}
//   - {prefix}_provision_failures_total{cluster}
//   - {prefix}_provision_duration_seconds{cluster}
//   - {prefix}_removal_retries_total{cluster}
//
// Hosts and pool:
//   - {prefix}_host_events_total{state}
//   - {prefix}_connection_holders
//   - {prefix}_pool_violations_total
package vm
