package events_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/cqlharness/events"
	"github.com/arloliu/cqlharness/test/testutil"
	"github.com/arloliu/cqlharness/types"
)

func TestWaiterNilHost(t *testing.T) {
	_, err := events.NewWaiter(nil)
	require.ErrorIs(t, err, types.ErrNilHost)
}

func TestWaiterDownThenUp(t *testing.T) {
	host := testutil.NewMockHost("127.0.0.1", "dc1")
	w, err := events.NewWaiter(host)
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, "127.0.0.1", w.Address())
	assert.False(t, w.Down())
	assert.False(t, w.Up())

	go func() {
		time.Sleep(20 * time.Millisecond)
		host.SetDown()
	}()
	assert.True(t, w.WaitForDown(2*time.Second))
	assert.False(t, w.Up())

	go func() {
		time.Sleep(20 * time.Millisecond)
		host.SetUp()
	}()
	assert.True(t, w.WaitForUp(2*time.Second))

	// Signals are latched
	assert.True(t, w.WaitForDown(time.Millisecond))
	assert.True(t, w.WaitForUp(time.Millisecond))
}

func TestWaiterTimeout(t *testing.T) {
	host := testutil.NewMockHost("127.0.0.1", "dc1")
	w, err := events.NewWaiter(host)
	require.NoError(t, err)
	defer w.Close()

	start := time.Now()
	assert.False(t, w.WaitForDown(50*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestWaiterContext(t *testing.T) {
	host := testutil.NewMockHost("127.0.0.1", "dc1")
	w, err := events.NewWaiter(host)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	assert.False(t, w.WaitForUpContext(ctx))

	host.SetUp()
	assert.True(t, w.WaitForUpContext(t.Context()))
}

func TestWaiterCloseUnsubscribes(t *testing.T) {
	host := testutil.NewMockHost("127.0.0.1", "dc1")
	w, err := events.NewWaiter(host)
	require.NoError(t, err)
	require.Equal(t, 1, host.Events().ObserverCount())

	w.Close()
	assert.Equal(t, 0, host.Events().ObserverCount())

	host.SetDown()
	assert.False(t, w.Down())
}

func TestWaiterOnlyLatchesFirst(t *testing.T) {
	host := testutil.NewMockHost("127.0.0.1", "dc1")
	w, err := events.NewWaiter(host)
	require.NoError(t, err)
	defer w.Close()

	host.SetDown()
	host.SetDown()
	host.SetUp()
	host.SetUp()
	assert.True(t, w.Down())
	assert.True(t, w.Up())
}

func TestDefaultWaitTimeoutIsFinite(t *testing.T) {
	assert.Greater(t, events.DefaultWaitTimeout, time.Duration(0))
}
