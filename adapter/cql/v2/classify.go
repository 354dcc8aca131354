package v2

import (
	"errors"

	gocql "github.com/apache/cassandra-gocql-driver/v2"

	"github.com/arloliu/cqlharness/adapter/cql"
	"github.com/arloliu/cqlharness/retry"
	"github.com/arloliu/cqlharness/types"
)

var codeKinds = map[int]types.FailureKind{
	0x1100: types.FailureWriteTimeout,
	0x1200: types.FailureReadTimeout,
	0x1300: types.FailureReadFailure,
	0x1500: types.FailureWriteFailure,
	0x2300: types.FailureConfigurationExists,
	0x2400: types.FailureAlreadyExists,
}

// ClassifyError maps Apache driver errors onto failure kinds by protocol
// error code, falling back to retry.ClassifyError.
func ClassifyError(err error) types.FailureKind {
	if err == nil {
		return types.FailureNone
	}

	var reqErr gocql.RequestError
	if errors.As(err, &reqErr) {
		if kind, ok := codeKinds[reqErr.Code()]; ok {
			return kind
		}

		return types.FailureUnclassified
	}

	return retry.ClassifyError(err)
}

// Classifier is ClassifyError as a cql.ErrorClassifier.
var Classifier cql.ErrorClassifier = cql.ErrorClassifierFunc(ClassifyError)
