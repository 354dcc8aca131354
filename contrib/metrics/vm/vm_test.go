package vm

import (
	"bytes"
	"testing"

	"github.com/VictoriaMetrics/metrics"
	"github.com/arloliu/cqlharness/types"
	"github.com/stretchr/testify/assert"
)

func TestCollector(t *testing.T) {
	c := New(WithPrefix("itest"), WithMetricsSet(metrics.NewSet()))

	c.IncStatementAttempt()
	c.IncStatementAttempt()
	c.IncStatementRetry(types.FailureWriteTimeout)
	c.IncStatementSatisfied(types.FailureAlreadyExists)
	c.IncStatementExhausted()
	c.ObserveStatementDuration(0.25)
	c.IncClusterReused("test_cluster")
	c.IncClusterCreated("single_node")
	c.IncProvisionFailure("single_node")
	c.ObserveProvisionDuration("single_node", 42)
	c.IncRemovalRetry("single_node")
	c.IncHostEvent(types.HostDown)
	c.IncHostEvent(types.HostUnknown)
	c.SetConnectionHolders(4)
	c.IncPoolViolation()

	var buf bytes.Buffer
	c.WritePrometheus(&buf)
	out := buf.String()

	assert.Contains(t, out, "itest_statement_attempts_total 2")
	assert.Contains(t, out, `itest_statement_retries_total{kind="write_timeout"} 1`)
	assert.Contains(t, out, `itest_statement_satisfied_total{kind="already_exists"} 1`)
	assert.Contains(t, out, "itest_statement_exhausted_total 1")
	assert.Contains(t, out, `itest_cluster_reused_total{cluster="test_cluster"} 1`)
	assert.Contains(t, out, `itest_cluster_created_total{cluster="single_node"} 1`)
	assert.Contains(t, out, `itest_provision_failures_total{cluster="single_node"} 1`)
	assert.Contains(t, out, `itest_removal_retries_total{cluster="single_node"} 1`)
	assert.Contains(t, out, `itest_host_events_total{state="down"} 1`)
	assert.Contains(t, out, `itest_host_events_total{state="up"} 0`)
	assert.Contains(t, out, "itest_connection_holders 4")
	assert.Contains(t, out, "itest_pool_violations_total 1")
}

func TestCollectorImplementsInterface(t *testing.T) {
	var _ types.MetricsCollector = New(WithMetricsSet(metrics.NewSet()))
}
