// Package types provides shared types and error definitions for the cqlharness library.
//
// This is a leaf package with zero cqlharness imports to prevent import cycles.
// All packages in cqlharness can safely import this package.
//
// # Types
//
// Topology is an ordered list of per-datacenter node counts:
//
//	types.Topology{3}    // one DC, three nodes
//	types.Topology{2, 2} // two DCs, two nodes each
//
// ClusterState tracks a provisioned cluster:
//
//	const (
//	    StateUnprovisioned ClusterState = iota
//	    StateStopped
//	    StateRunning
//	)
//
// FailureKind classifies a failed statement attempt. The retry package maps
// each kind to retry, success or propagate.
//
// # Errors
//
// Sentinel errors are provided for common failure scenarios:
//
//   - ErrAttemptsExhausted: A statement kept failing transiently until its bound
//   - ErrRemovalExhausted: A cluster could not be removed
//   - ErrClusterNotFound: The fleet controller has no such cluster
//   - ErrPoolNotQuiescent: A pool check found in-flight work or bad idle state
//
// Typed errors wrap them with context and support errors.Is/As:
//
//	var exhausted *types.AttemptsExhaustedError
//	if errors.As(err, &exhausted) {
//	    log.Printf("gave up after %d attempts: %v", exhausted.Attempts, exhausted.Last)
//	}
package types
