package retry

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/arloliu/cqlharness/adapter/cql"
	"github.com/arloliu/cqlharness/internal/logging"
	"github.com/arloliu/cqlharness/internal/metrics"
	"github.com/arloliu/cqlharness/types"
)

// Outcome describes a finished execution.
type Outcome struct {
	// Result holds returned rows. It is empty (never nil) for satisfied
	// outcomes and nil on error.
	Result *cql.Result

	// Attempts is the number of attempts actually made.
	Attempts int

	// AlreadySatisfied is set when the target state already existed.
	AlreadySatisfied bool

	// Kind is the classification of the last failed attempt, or FailureNone.
	Kind types.FailureKind
}

// Executor runs statements with bounded retry on transient failures.
//
// Each attempt is classified into success, already-satisfied, transient or
// fatal. Transient failures are logged with a stack trace and re-issued
// immediately until the attempt bound; fatal errors propagate unchanged.
// Safe for concurrent use.
type Executor struct {
	policy     Policy
	classifier cql.ErrorClassifier
	logger     types.Logger
	metrics    types.MetricsCollector
	stacks     bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithClassifier sets the error classifier.
//
// Default: DefaultClassifier
//
// Parameters:
//   - c: Classifier mapping driver errors to failure kinds
//
// Returns:
//   - Option: Configuration option
func WithClassifier(c cql.ErrorClassifier) Option {
	return func(e *Executor) {
		if c != nil {
			e.classifier = c
		}
	}
}

// WithLogger sets the logger for retry warnings.
func WithLogger(logger types.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(collector types.MetricsCollector) Option {
	return func(e *Executor) {
		e.metrics = collector
	}
}

// WithStackTraces controls whether retry warnings carry a stack trace.
//
// Default: true
func WithStackTraces(enabled bool) Option {
	return func(e *Executor) {
		e.stacks = enabled
	}
}

// New creates an executor for policy.
//
// Parameters:
//   - policy: Retry policy
//   - opts: Optional classifier, logger and metrics
//
// Returns:
//   - *Executor: A ready executor
func New(policy Policy, opts ...Option) *Executor {
	e := &Executor{
		policy:     policy,
		classifier: DefaultClassifier,
		stacks:     true,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrNop(e.logger)
	e.metrics = metrics.OrNop(e.metrics)

	return e
}

// NewFast creates an executor with FastPolicy.
func NewFast(opts ...Option) *Executor {
	return New(FastPolicy(), opts...)
}

// NewPatient creates an executor with PatientPolicy.
func NewPatient(opts ...Option) *Executor {
	return New(PatientPolicy(), opts...)
}

// ExecuteUntilSuccess runs stmt with a fast executor, or a patient one when
// longWait is set, and returns the result rows.
func ExecuteUntilSuccess(ctx context.Context, session cql.Session, stmt cql.Statement, longWait bool, opts ...Option) (*cql.Result, error) {
	exec := NewFast(opts...)
	if longWait {
		exec = NewPatient(opts...)
	}
	out, err := exec.Execute(ctx, session, stmt)

	return out.Result, err
}

// Policy returns the executor's policy.
func (e *Executor) Policy() Policy {
	return e.policy
}

// Execute runs stmt on session until it succeeds, is already satisfied,
// fails fatally or exhausts the attempt bound.
//
// Parameters:
//   - ctx: Context; cancellation stops retrying between attempts
//   - session: Session to execute on
//   - stmt: Statement to execute
//
// Returns:
//   - Outcome: Result and attempt accounting
//   - error: The unchanged driver error for fatal failures,
//     *types.AttemptsExhaustedError on exhaustion, or ctx.Err()
func (e *Executor) Execute(ctx context.Context, session cql.Session, stmt cql.Statement) (Outcome, error) {
	if session == nil {
		return Outcome{}, types.ErrNilSession
	}

	start := time.Now()
	defer func() {
		e.metrics.ObserveStatementDuration(time.Since(start).Seconds())
	}()

	maxAttempts := e.policy.attempts()
	var lastErr error
	lastKind := types.FailureNone

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Outcome{Attempts: attempt - 1, Kind: lastKind}, err
		}

		e.metrics.IncStatementAttempt()
		res, err := e.attempt(ctx, session, stmt)
		if err == nil {
			if res == nil {
				res = &cql.Result{}
			}

			return Outcome{Result: res, Attempts: attempt}, nil
		}

		kind := e.classifier.Classify(err)
		switch e.policy.Decide(kind) {
		case DecisionSuccess:
			return Outcome{Result: &cql.Result{}, Attempts: attempt}, nil

		case DecisionSatisfied:
			e.metrics.IncStatementSatisfied(kind)
			e.logger.Debug("statement target already exists",
				"statement", stmt.CQL,
				"kind", kind.String(),
				"attempt", attempt,
			)

			return Outcome{Result: &cql.Result{}, Attempts: attempt, AlreadySatisfied: true, Kind: kind}, nil

		case DecisionRetry:
			lastErr, lastKind = err, kind
			e.metrics.IncStatementRetry(kind)
			kv := []any{
				"statement", stmt.CQL,
				"kind", kind.String(),
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"error", err.Error(),
			}
			if e.stacks {
				kv = append(kv, "stack", string(debug.Stack()))
			}
			e.logger.Warn("transient statement failure, retrying", kv...)

		default:
			return Outcome{Attempts: attempt, Kind: kind}, err
		}
	}

	e.metrics.IncStatementExhausted()
	e.logger.Error("statement attempts exhausted",
		"statement", stmt.CQL,
		"attempts", maxAttempts,
		"kind", lastKind.String(),
	)

	return Outcome{Attempts: maxAttempts, Kind: lastKind}, &types.AttemptsExhaustedError{
		Statement: stmt.CQL,
		Attempts:  maxAttempts,
		Kind:      lastKind,
		Last:      lastErr,
	}
}

// attempt issues one attempt bounded by the policy's attempt timeout.
func (e *Executor) attempt(ctx context.Context, session cql.Session, stmt cql.Statement) (*cql.Result, error) {
	if e.policy.AttemptTimeout <= 0 {
		return session.Execute(ctx, stmt)
	}

	if stmt.Timeout == 0 {
		stmt.Timeout = e.policy.AttemptTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, e.policy.AttemptTimeout)
	defer cancel()

	return session.Execute(attemptCtx, stmt)
}
