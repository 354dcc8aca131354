package retry

import (
	"context"
	"errors"

	"github.com/arloliu/cqlharness/adapter/cql"
	"github.com/arloliu/cqlharness/types"
)

// KindError is implemented by errors that know their own failure kind.
type KindError interface {
	error
	FailureKind() types.FailureKind
}

// ClassifyError is the default classifier. It recognizes errors carrying a
// FailureKind anywhere in their chain and treats context deadline errors as
// operation timeouts. Everything else is unclassified.
func ClassifyError(err error) types.FailureKind {
	if err == nil {
		return types.FailureNone
	}

	var ke KindError
	if errors.As(err, &ke) {
		return ke.FailureKind()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.FailureOperationTimeout
	}

	return types.FailureUnclassified
}

// DefaultClassifier is ClassifyError as a cql.ErrorClassifier.
var DefaultClassifier cql.ErrorClassifier = cql.ErrorClassifierFunc(ClassifyError)

// Chain returns a classifier that asks each classifier in turn and returns
// the first kind that is not unclassified.
func Chain(classifiers ...cql.ErrorClassifier) cql.ErrorClassifier {
	return cql.ErrorClassifierFunc(func(err error) types.FailureKind {
		if err == nil {
			return types.FailureNone
		}
		for _, c := range classifiers {
			if c == nil {
				continue
			}
			if k := c.Classify(err); k != types.FailureUnclassified {
				return k
			}
		}

		return types.FailureUnclassified
	})
}
