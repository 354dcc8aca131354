package v1_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"

	v1 "github.com/arloliu/cqlharness/adapter/cql/v1" //nolint:revive // required for v1_test package
	"github.com/arloliu/cqlharness/test/testutil"
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
		{"read timeout", requestError{0x1200}, types.FailureReadTimeout},
		{"read failure", requestError{0x1300}, types.FailureReadFailure},
		{"write failure", requestError{0x1500}, types.FailureWriteFailure},
		{"config error", requestError{0x2300}, types.FailureConfigurationExists},
		{"already exists", requestError{0x2400}, types.FailureAlreadyExists},
		{"unavailable", requestError{0x1000}, types.FailureUnclassified},
		{"wrapped", fmt.Errorf("create table: %w", requestError{0x2400}), types.FailureAlreadyExists},
		{"no response", gocql.ErrTimeoutNoResponse, types.FailureOperationTimeout},
		{"deadline", context.DeadlineExceeded, types.FailureOperationTimeout},
		{"kind error", testutil.NewFailure(types.FailureReadTimeout), types.FailureReadTimeout},
		{"other", errors.New("syntax error"), types.FailureUnclassified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, v1.ClassifyError(tt.err))
			assert.Equal(t, tt.want, v1.Classifier.Classify(tt.err))
		})
	}
}
