// Package types provides shared types and errors for the cqlharness library.
//
// This is a "leaf" package with no imports from other cqlharness packages,
// allowing it to be imported by any package without causing import cycles.
package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Well-known cluster names used by the harness presets.
const (
	// SingleDCClusterName is the default three-node, single-datacenter cluster.
	SingleDCClusterName = "test_cluster"
	// SingleNodeClusterName is the one-node cluster.
	SingleNodeClusterName = "single_node"
	// MultiDCClusterName is the multi-datacenter cluster.
	MultiDCClusterName = "multidc_test_cluster"
)

// WellKnownClusterNames returns every cluster name the harness may provision.
//
// Package teardown removes each of them, tolerating clusters that do not exist.
func WellKnownClusterNames() []string {
	return []string{SingleDCClusterName, SingleNodeClusterName, MultiDCClusterName}
}

// Topology is an ordered list of per-datacenter node counts.
//
// Topology{3} is one datacenter with three nodes; Topology{2, 2} is two
// datacenters with two nodes each.
type Topology []int

// Equal reports whether two topologies have the same datacenter count and
// the same node count in each position.
func (t Topology) Equal(other Topology) bool {
	if len(t) != len(other) {
		return false
	}
	for i := range t {
		if t[i] != other[i] {
			return false
		}
	}

	return true
}

// Total returns the total number of nodes across all datacenters.
func (t Topology) Total() int {
	n := 0
	for _, c := range t {
		n += c
	}

	return n
}

// Validate checks that the topology describes at least one node and has no
// negative or empty datacenters.
//
// Returns:
//   - error: ErrInvalidTopology wrapped with details, or nil
func (t Topology) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("%w: no datacenters", ErrInvalidTopology)
	}
	for i, c := range t {
		if c <= 0 {
			return fmt.Errorf("%w: datacenter %d has %d nodes", ErrInvalidTopology, i+1, c)
		}
	}

	return nil
}

// String renders the topology as "[3]" or "[2 2]".
func (t Topology) String() string {
	parts := make([]string, len(t))
	for i, c := range t {
		parts[i] = strconv.Itoa(c)
	}

	return "[" + strings.Join(parts, " ") + "]"
}

// Clone returns an independent copy of the topology.
func (t Topology) Clone() Topology {
	if t == nil {
		return nil
	}
	out := make(Topology, len(t))
	copy(out, t)

	return out
}

// ClusterState is the lifecycle state of a provisioned test cluster.
type ClusterState int

const (
	// StateUnprovisioned means no cluster is held.
	StateUnprovisioned ClusterState = iota
	// StateStopped means the cluster is provisioned but its nodes are stopped.
	StateStopped
	// StateRunning means the cluster is provisioned and its nodes are started.
	StateRunning
)

// String returns the string representation of the ClusterState.
func (s ClusterState) String() string {
	switch s {
	case StateUnprovisioned:
		return "unprovisioned"
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// FailureKind classifies a failed statement attempt.
type FailureKind int

const (
	// FailureNone means the attempt succeeded.
	FailureNone FailureKind = iota
	// FailureOperationTimeout is a client-side timeout waiting for a response.
	FailureOperationTimeout
	// FailureReadTimeout is a coordinator-reported read timeout.
	FailureReadTimeout
	// FailureReadFailure is a coordinator-reported read failure.
	FailureReadFailure
	// FailureWriteTimeout is a coordinator-reported write timeout.
	FailureWriteTimeout
	// FailureWriteFailure is a coordinator-reported write failure.
	FailureWriteFailure
	// FailureConfigurationExists is a schema change rejected because the
	// configuration already exists.
	FailureConfigurationExists
	// FailureAlreadyExists is a create statement for an existing keyspace or table.
	FailureAlreadyExists
	// FailureUnclassified is any other error.
	FailureUnclassified
)

// String returns a snake_case name suitable for logs and metric labels.
func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureOperationTimeout:
		return "operation_timeout"
	case FailureReadTimeout:
		return "read_timeout"
	case FailureReadFailure:
		return "read_failure"
	case FailureWriteTimeout:
		return "write_timeout"
	case FailureWriteFailure:
		return "write_failure"
	case FailureConfigurationExists:
		return "configuration_exists"
	case FailureAlreadyExists:
		return "already_exists"
	default:
		return "unclassified"
	}
}

// HostState is the last known availability of a host.
type HostState int

const (
	// HostUnknown means no up or down event has been observed.
	HostUnknown HostState = iota
	// HostUp means the host was last reported up.
	HostUp
	// HostDown means the host was last reported down.
	HostDown
)

// String returns the string representation of the HostState.
func (s HostState) String() string {
	switch s {
	case HostUp:
		return "up"
	case HostDown:
		return "down"
	default:
		return "unknown"
	}
}

// ParseHostState parses "up" or "down". Anything else is HostUnknown.
func ParseHostState(s string) HostState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up":
		return HostUp
	case "down":
		return HostDown
	default:
		return HostUnknown
	}
}

// Sentinel errors for common failure scenarios.
var (
	// ErrAttemptsExhausted indicates a statement kept failing with transient
	// errors until the attempt bound was reached.
	ErrAttemptsExhausted = errors.New("cqlharness: statement attempts exhausted")

	// ErrRemovalExhausted indicates a cluster could not be removed within the
	// removal retry bound.
	ErrRemovalExhausted = errors.New("cqlharness: cluster removal attempts exhausted")

	// ErrClusterNotFound indicates the fleet controller has no cluster of that name.
	ErrClusterNotFound = errors.New("cqlharness: cluster not found")

	// ErrInvalidTopology indicates a topology with no nodes or an empty datacenter.
	ErrInvalidTopology = errors.New("cqlharness: invalid topology")

	// ErrNilSession indicates that a nil session was provided.
	ErrNilSession = errors.New("cqlharness: session cannot be nil")

	// ErrNilDriver indicates that a nil driver was provided.
	ErrNilDriver = errors.New("cqlharness: driver cannot be nil")

	// ErrNilHost indicates that a nil host was provided.
	ErrNilHost = errors.New("cqlharness: host cannot be nil")

	// ErrNotProvisioned indicates an operation needed a provisioned cluster.
	ErrNotProvisioned = errors.New("cqlharness: cluster is not provisioned")

	// ErrPoolNotQuiescent indicates the connection pool has in-flight work or
	// inconsistent idle state.
	ErrPoolNotQuiescent = errors.New("cqlharness: connection pool is not quiescent")

	// ErrHolderCountMismatch indicates the driver holds an unexpected number
	// of connection holders.
	ErrHolderCountMismatch = errors.New("cqlharness: connection holder count mismatch")

	// ErrNotRotated indicates a connection's request-id queue did not rotate
	// by exactly one position.
	ErrNotRotated = errors.New("cqlharness: request ids did not rotate by one")

	// ErrDriverClosed indicates an operation on a driver after Shutdown.
	ErrDriverClosed = errors.New("cqlharness: driver is shut down")
)

// AttemptsExhaustedError reports a statement that never succeeded within its
// retry bound. The last transient error is kept for inspection.
type AttemptsExhaustedError struct {
	// Statement is the CQL text that was executed.
	Statement string

	// Attempts is the number of attempts made.
	Attempts int

	// Kind is the classification of the last failure.
	Kind FailureKind

	// Last is the last error returned by the driver.
	Last error
}

// Error implements the error interface.
func (e *AttemptsExhaustedError) Error() string {
	msg := "cqlharness: failed to execute " + strconv.Quote(e.Statement) +
		" after " + strconv.Itoa(e.Attempts) + " attempts"
	if e.Last != nil {
		msg += ": " + e.Last.Error()
	}

	return msg
}

// Unwrap returns the sentinel and the last driver error for errors.Is/As.
func (e *AttemptsExhaustedError) Unwrap() []error {
	if e.Last == nil {
		return []error{ErrAttemptsExhausted}
	}

	return []error{ErrAttemptsExhausted, e.Last}
}

// ProvisionError reports a cluster that failed to start or bootstrap. By the
// time it is returned the cluster has been force-terminated and removed.
type ProvisionError struct {
	// Cluster is the cluster name.
	Cluster string

	// Phase is the step that failed, such as "start" or "bootstrap".
	Phase string

	// Cause is the underlying error.
	Cause error

	// CleanupErr is set when removal after the failure also failed.
	CleanupErr error
}

// Error implements the error interface.
func (e *ProvisionError) Error() string {
	msg := "cqlharness: cluster " + e.Cluster + " " + e.Phase + " failed: " + e.Cause.Error()
	if e.CleanupErr != nil {
		msg += " (cleanup: " + e.CleanupErr.Error() + ")"
	}

	return msg
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *ProvisionError) Unwrap() error {
	return e.Cause
}

// RemovalError reports a cluster removal that kept failing.
type RemovalError struct {
	// Cluster is the cluster name.
	Cluster string

	// Attempts is the number of removal attempts made.
	Attempts int

	// Last is the last removal error.
	Last error
}

// Error implements the error interface.
func (e *RemovalError) Error() string {
	msg := "cqlharness: failed to remove cluster " + e.Cluster +
		" after " + strconv.Itoa(e.Attempts) + " attempts"
	if e.Last != nil {
		msg += ": " + e.Last.Error()
	}

	return msg
}

// Unwrap returns the sentinel and the last removal error.
func (e *RemovalError) Unwrap() []error {
	if e.Last == nil {
		return []error{ErrRemovalExhausted}
	}

	return []error{ErrRemovalExhausted, e.Last}
}

// PoolViolation describes one failed pool invariant on one connection.
type PoolViolation struct {
	// Holder is the address of the connection holder.
	Holder string

	// Connection is the index of the connection within its holder.
	Connection int

	// Reason describes the violated invariant.
	Reason string
}

// String renders the violation for error messages.
func (v PoolViolation) String() string {
	return v.Holder + "#" + strconv.Itoa(v.Connection) + ": " + v.Reason
}

// PoolStateError lists every pool invariant violation found by one check.
type PoolStateError struct {
	// Violations are the individual failures, in holder order.
	Violations []PoolViolation
}

// Error implements the error interface.
func (e *PoolStateError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}

	return "cqlharness: connection pool is not quiescent: " + strings.Join(parts, "; ")
}

// Unwrap returns ErrPoolNotQuiescent.
func (e *PoolStateError) Unwrap() error {
	return ErrPoolNotQuiescent
}

// HostEvent is a host availability transition.
type HostEvent struct {
	// Address is the host address (ip or ip:port).
	Address string

	// State is the new state.
	State HostState

	// Timestamp is when the transition was observed.
	Timestamp time.Time
}
