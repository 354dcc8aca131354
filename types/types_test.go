package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopology(t *testing.T) {
	t.Run("Equal", func(t *testing.T) {
		assert.True(t, Topology{3}.Equal(Topology{3}))
		assert.True(t, Topology{2, 2}.Equal(Topology{2, 2}))
		assert.False(t, Topology{3}.Equal(Topology{2, 1}))
		assert.False(t, Topology{2, 1}.Equal(Topology{1, 2}))
		assert.False(t, Topology{3}.Equal(nil))
	})

	t.Run("Total", func(t *testing.T) {
		assert.Equal(t, 0, Topology{}.Total())
		assert.Equal(t, 5, Topology{3, 2}.Total())
	})

	t.Run("Validate", func(t *testing.T) {
		require.NoError(t, Topology{1}.Validate())
		require.ErrorIs(t, Topology{}.Validate(), ErrInvalidTopology)
		require.ErrorIs(t, Topology{2, 0}.Validate(), ErrInvalidTopology)
	})

	t.Run("String", func(t *testing.T) {
		assert.Equal(t, "[3]", Topology{3}.String())
		assert.Equal(t, "[2 1]", Topology{2, 1}.String())
	})

	t.Run("Clone", func(t *testing.T) {
		orig := Topology{1, 2}
		c := orig.Clone()
		c[0] = 9
		assert.Equal(t, 1, orig[0])
		assert.Nil(t, Topology(nil).Clone())
	})
}

func TestAttemptsExhaustedError(t *testing.T) {
	last := errors.New("write timeout")
	err := &AttemptsExhaustedError{
		Statement: "CREATE KEYSPACE ks",
		Attempts:  10,
		Kind:      FailureWriteTimeout,
		Last:      last,
	}

	assert.Contains(t, err.Error(), "after 10 attempts")
	assert.Contains(t, err.Error(), "CREATE KEYSPACE ks")
	assert.Contains(t, err.Error(), "write timeout")
	assert.True(t, errors.Is(err, ErrAttemptsExhausted))
	assert.True(t, errors.Is(err, last))

	bare := &AttemptsExhaustedError{Statement: "x", Attempts: 1}
	assert.True(t, errors.Is(bare, ErrAttemptsExhausted))
}

func TestProvisionError(t *testing.T) {
	cause := errors.New("node1 failed to start")
	err := &ProvisionError{Cluster: "test_cluster", Phase: "start", Cause: cause}

	assert.Contains(t, err.Error(), "cluster test_cluster start failed")
	assert.True(t, errors.Is(err, cause))

	err.CleanupErr = errors.New("busy")
	assert.Contains(t, err.Error(), "cleanup: busy")
}

func TestRemovalError(t *testing.T) {
	last := errors.New("device busy")
	err := &RemovalError{Cluster: "c", Attempts: 100, Last: last}

	assert.Contains(t, err.Error(), "after 100 attempts")
	require.ErrorIs(t, err, ErrRemovalExhausted)
	require.ErrorIs(t, err, last)
}

func TestPoolStateError(t *testing.T) {
	err := &PoolStateError{Violations: []PoolViolation{
		{Holder: "127.0.0.1", Connection: 0, Reason: "2 requests in flight"},
		{Holder: "127.0.0.2", Connection: 1, Reason: "idle before heartbeat interval"},
	}}

	assert.Contains(t, err.Error(), "127.0.0.1#0: 2 requests in flight")
	assert.Contains(t, err.Error(), "127.0.0.2#1")
	assert.True(t, errors.Is(err, ErrPoolNotQuiescent))
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "unprovisioned", StateUnprovisioned.String())
	assert.Equal(t, "write_failure", FailureWriteFailure.String())
	assert.Equal(t, "unclassified", FailureKind(99).String())
	assert.Equal(t, "down", HostDown.String())
	assert.Equal(t, HostUp, ParseHostState(" UP "))
	assert.Equal(t, HostUnknown, ParseHostState("maybe"))
}

func TestWellKnownClusterNames(t *testing.T) {
	names := WellKnownClusterNames()
	assert.Equal(t, []string{"test_cluster", "single_node", "multidc_test_cluster"}, names)
}
