package v1

import (
	"context"
	"errors"

	"github.com/gocql/gocql"

	"github.com/arloliu/cqlharness/adapter/cql"
	"github.com/arloliu/cqlharness/retry"
	"github.com/arloliu/cqlharness/types"
)

// Native protocol error codes.
const (
	codeWriteTimeout  = 0x1100
	codeReadTimeout   = 0x1200
	codeReadFailure   = 0x1300
	codeWriteFailure  = 0x1500
	codeConfigError   = 0x2300
	codeAlreadyExists = 0x2400
)

// ClassifyError maps gocql errors onto failure kinds.
//
// Server errors are classified by their protocol error code; client-side
// response timeouts are operation timeouts. Errors gocql does not produce
// fall back to retry.ClassifyError.
func ClassifyError(err error) types.FailureKind {
	if err == nil {
		return types.FailureNone
	}

	var reqErr gocql.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.Code() {
		case codeWriteTimeout:
			return types.FailureWriteTimeout
		case codeReadTimeout:
			return types.FailureReadTimeout
		case codeReadFailure:
			return types.FailureReadFailure
		case codeWriteFailure:
			return types.FailureWriteFailure
		case codeConfigError:
			return types.FailureConfigurationExists
		case codeAlreadyExists:
			return types.FailureAlreadyExists
		}

		return types.FailureUnclassified
	}

	if errors.Is(err, gocql.ErrTimeoutNoResponse) || errors.Is(err, context.DeadlineExceeded) {
		return types.FailureOperationTimeout
	}

	return retry.ClassifyError(err)
}

// Classifier is ClassifyError as a cql.ErrorClassifier.
var Classifier cql.ErrorClassifier = cql.ErrorClassifierFunc(ClassifyError)
