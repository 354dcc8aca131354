package retry

import (
	"time"

	"github.com/arloliu/cqlharness/types"
)

// Decision is what the executor does with a classified attempt.
type Decision int

const (
	// DecisionSuccess returns the result.
	DecisionSuccess Decision = iota
	// DecisionSatisfied treats the failure as success with no rows.
	DecisionSatisfied
	// DecisionRetry re-issues the statement immediately.
	DecisionRetry
	// DecisionFail propagates the error unchanged.
	DecisionFail
)

// String returns the string representation of the Decision.
func (d Decision) String() string {
	switch d {
	case DecisionSuccess:
		return "success"
	case DecisionSatisfied:
		return "satisfied"
	case DecisionRetry:
		return "retry"
	default:
		return "fail"
	}
}

// Default bounds of the two executor variants.
const (
	// FastMaxAttempts is the attempt bound of the fast variant.
	FastMaxAttempts = 100
	// PatientMaxAttempts is the attempt bound of the patient variant.
	PatientMaxAttempts = 10
	// PatientAttemptTimeout is the per-attempt timeout of the patient variant.
	PatientAttemptTimeout = 30 * time.Second
)

// Policy is the data-driven retry policy of an Executor.
type Policy struct {
	// MaxAttempts bounds the number of attempts. Values below 1 mean 1.
	MaxAttempts int

	// AttemptTimeout bounds each attempt. Zero uses the driver default.
	AttemptTimeout time.Duration

	// Retryable are the failure kinds that are retried.
	Retryable []types.FailureKind

	// Satisfied are the failure kinds that count as success.
	Satisfied []types.FailureKind
}

// DefaultRetryable returns the transient failure kinds.
func DefaultRetryable() []types.FailureKind {
	return []types.FailureKind{
		types.FailureOperationTimeout,
		types.FailureReadTimeout,
		types.FailureReadFailure,
		types.FailureWriteTimeout,
		types.FailureWriteFailure,
	}
}

// DefaultSatisfied returns the already-satisfied failure kinds.
func DefaultSatisfied() []types.FailureKind {
	return []types.FailureKind{
		types.FailureConfigurationExists,
		types.FailureAlreadyExists,
	}
}

// FastPolicy returns the policy for statements that are expected to succeed
// quickly: 100 attempts, driver default timeout.
func FastPolicy() Policy {
	return Policy{
		MaxAttempts: FastMaxAttempts,
		Retryable:   DefaultRetryable(),
		Satisfied:   DefaultSatisfied(),
	}
}

// PatientPolicy returns the policy for schema changes on a cluster that may
// be slow to agree: 10 attempts, 30 seconds each.
func PatientPolicy() Policy {
	return Policy{
		MaxAttempts:    PatientMaxAttempts,
		AttemptTimeout: PatientAttemptTimeout,
		Retryable:      DefaultRetryable(),
		Satisfied:      DefaultSatisfied(),
	}
}

// Decide maps a failure kind to a decision. Satisfied takes precedence
// over Retryable when a kind is listed in both.
func (p Policy) Decide(kind types.FailureKind) Decision {
	if kind == types.FailureNone {
		return DecisionSuccess
	}
	if contains(p.Satisfied, kind) {
		return DecisionSatisfied
	}
	if contains(p.Retryable, kind) {
		return DecisionRetry
	}

	return DecisionFail
}

// attempts returns the effective attempt bound.
func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}

	return p.MaxAttempts
}

func contains(kinds []types.FailureKind, k types.FailureKind) bool {
	for _, c := range kinds {
		if c == k {
			return true
		}
	}

	return false
}
