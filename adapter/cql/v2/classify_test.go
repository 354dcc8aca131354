package v2_test

import (
	"errors"
	"fmt"
	"testing"

	gocql "github.com/apache/cassandra-gocql-driver/v2"
	"github.com/stretchr/testify/assert"

	v2 "github.com/arloliu/cqlharness/adapter/cql/v2" //nolint:revive // required for v2_test package
	"github.com/arloliu/cqlharness/retry"
	"github.com/arloliu/cqlharness/types"
)

type requestError struct {
	code int
}

func (e requestError) Code() int       { return e.code }
func (e requestError) Message() string { return "server error" }
func (e requestError) Error() string   { return fmt.Sprintf("server error 0x%04x", e.code) }

var _ gocql.RequestError = requestError{}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.FailureKind
	}{
		{"nil", nil, types.FailureNone},
		{"write timeout", requestError{0x1100}, types.FailureWriteTimeout},
		{"read failure", requestError{0x1300}, types.FailureReadFailure},
		{"config error", requestError{0x2300}, types.FailureConfigurationExists},
		{"already exists", fmt.Errorf("create: %w", requestError{0x2400}), types.FailureAlreadyExists},
		{"overloaded", requestError{0x1001}, types.FailureUnclassified},
		{"other", errors.New("bad input"), types.FailureUnclassified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, v2.ClassifyError(tt.err))
		})
	}
}

func TestChainedWithDefault(t *testing.T) {
	c := retry.Chain(retry.DefaultClassifier, v2.Classifier)

	assert.Equal(t, types.FailureAlreadyExists, c.Classify(requestError{0x2400}))
	assert.Equal(t, types.FailureUnclassified, c.Classify(errors.New("bad input")))
}
