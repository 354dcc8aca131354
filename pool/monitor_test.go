package pool_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/cqlharness/adapter/cql"
	"github.com/arloliu/cqlharness/pool"
	"github.com/arloliu/cqlharness/test/testutil"
	"github.com/arloliu/cqlharness/types"
)

func threeHosts() []*testutil.MockHost {
	return []*testutil.MockHost{
		testutil.NewMockHost("127.0.0.1", "dc1"),
		testutil.NewMockHost("127.0.0.2", "dc1"),
		testutil.NewMockHost("127.0.0.3", "dc1"),
	}
}

func TestNewNilDriver(t *testing.T) {
	_, err := pool.New(nil)
	require.ErrorIs(t, err, types.ErrNilDriver)
}

func TestQuiescentAfterTraffic(t *testing.T) {
	driver := testutil.NewMockDriver(testutil.MockDriverConfig{Hosts: threeHosts()})
	defer driver.Shutdown()

	session, err := driver.Connect(t.Context(), cql.ConnectOptions{WaitForAllPools: true})
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		_, err := session.Execute(t.Context(), cql.NewStatement("INSERT INTO ks.t (k, v) VALUES (?, ?)", i, i))
		require.NoError(t, err)
	}

	metrics := testutil.NewMockMetrics()
	mon, err := pool.New(driver, pool.WithMetrics(metrics))
	require.NoError(t, err)

	require.NoError(t, mon.Quiescent())
	assert.True(t, mon.IsQuiescent())
	assert.Equal(t, 4, metrics.Holders())
	assert.Zero(t, metrics.PoolViolations())
}

func TestQuiescentDetectsInFlight(t *testing.T) {
	driver := testutil.NewMockDriver(testutil.MockDriverConfig{Hosts: threeHosts()})
	defer driver.Shutdown()

	_, err := driver.Connect(t.Context(), cql.ConnectOptions{WaitForAllPools: true})
	require.NoError(t, err)

	conn := driver.Sessions()[0].Holders()[1].MockConnections()[0]
	id := conn.Acquire()

	logger := testutil.NewMockLogger()
	metrics := testutil.NewMockMetrics()
	mon, err := pool.New(driver, pool.WithLogger(logger), pool.WithMetrics(metrics))
	require.NoError(t, err)

	err = mon.Quiescent()
	require.ErrorIs(t, err, types.ErrPoolNotQuiescent)

	var state *types.PoolStateError
	require.ErrorAs(t, err, &state)
	require.Len(t, state.Violations, 2)
	assert.Equal(t, "127.0.0.2", state.Violations[0].Holder)
	assert.Equal(t, "1 requests in flight", state.Violations[0].Reason)
	assert.Equal(t, "1 request ids still reserved", state.Violations[1].Reason)
	assert.Equal(t, 2, metrics.PoolViolations())
	assert.Len(t, logger.Entries("warn"), 2)

	conn.Release(id)
	require.NoError(t, mon.Quiescent())
}

func TestQuiescentZeroIntervalNeverIdle(t *testing.T) {
	driver := testutil.NewMockDriver(testutil.MockDriverConfig{Hosts: threeHosts()})
	defer driver.Shutdown()

	mon, err := pool.New(driver)
	require.NoError(t, err)

	// Without heartbeats nothing ever turns idle, which is correct.
	require.NoError(t, mon.Quiescent())
	require.Error(t, mon.AssertIdle())

	driver.Control().MockConnections()[0].SetIdle(true)
	err = mon.Quiescent()
	require.ErrorIs(t, err, types.ErrPoolNotQuiescent)
	assert.Contains(t, err.Error(), "control/127.0.0.1#0: idle with heartbeats disabled")
}

func TestQuiescentIdleBeforeInterval(t *testing.T) {
	driver := testutil.NewMockDriver(testutil.MockDriverConfig{
		Hosts:             threeHosts(),
		HeartbeatInterval: time.Hour,
	})
	defer driver.Shutdown()

	now := time.Now()
	conn := driver.Control().MockConnections()[0]
	conn.Touch(now)
	conn.SetIdle(true)

	early, err := pool.New(driver, pool.WithClock(func() time.Time { return now.Add(time.Minute) }))
	require.NoError(t, err)
	require.ErrorIs(t, early.Quiescent(), types.ErrPoolNotQuiescent)

	late, err := pool.New(driver, pool.WithClock(func() time.Time { return now.Add(2 * time.Hour) }))
	require.NoError(t, err)
	require.NoError(t, late.Quiescent())
}

func TestCheckHolderCount(t *testing.T) {
	hosts := threeHosts()
	driver := testutil.NewMockDriver(testutil.MockDriverConfig{Hosts: hosts})
	defer driver.Shutdown()

	mon, err := pool.New(driver)
	require.NoError(t, err)
	require.NoError(t, mon.CheckHolderCount(0, 3))

	for i := 0; i < 2; i++ {
		_, err := driver.Connect(t.Context(), cql.ConnectOptions{WaitForAllPools: true})
		require.NoError(t, err)
	}
	assert.Equal(t, 7, pool.ExpectedHolderCount(2, 3))
	require.NoError(t, mon.CheckHolderCount(2, 3))
	require.ErrorIs(t, mon.CheckHolderCount(1, 3), types.ErrHolderCountMismatch)
}

func TestRotated(t *testing.T) {
	assert.True(t, pool.Rotated([]int{0, 1, 2}, []int{1, 2, 0}, 1))
	assert.False(t, pool.Rotated([]int{0, 1, 2}, []int{2, 0, 1}, 1))
	assert.True(t, pool.Rotated([]int{0, 1, 2}, []int{2, 0, 1}, 2))
	assert.True(t, pool.Rotated([]int{0, 1, 2}, []int{0, 1, 2}, 0))
	assert.False(t, pool.Rotated([]int{0, 1}, []int{1, 0, 2}, 1))
	assert.False(t, pool.Rotated(nil, nil, 1))
}

func TestAssertRotatedManualHeartbeats(t *testing.T) {
	const interval = time.Hour
	driver := testutil.NewMockDriver(testutil.MockDriverConfig{
		Hosts:             threeHosts()[:1],
		HeartbeatInterval: interval,
		RequestIDs:        4,
	})
	defer driver.Shutdown()

	_, err := driver.Connect(t.Context(), cql.ConnectOptions{WaitForAllPools: true})
	require.NoError(t, err)

	mon, err := pool.New(driver)
	require.NoError(t, err)
	before := mon.Snapshot()
	assert.Equal(t, 2, before.Len())

	var conns []*testutil.MockConnection
	conns = append(conns, driver.Control().MockConnections()...)
	conns = append(conns, driver.Sessions()[0].Holders()[0].MockConnections()...)

	start := time.Now()
	for _, c := range conns {
		c.Heartbeat(start.Add(interval), interval)
	}
	require.ErrorIs(t, mon.AssertRotated(before), types.ErrNotRotated, "first beat only marks idle")

	for _, c := range conns {
		c.Heartbeat(start.Add(2*interval), interval)
	}
	require.NoError(t, mon.AssertRotated(before))
	require.NoError(t, mon.AssertIdle())

	for _, c := range conns {
		c.Heartbeat(start.Add(3*interval), interval)
	}
	err = mon.AssertRotated(before)
	require.ErrorIs(t, err, types.ErrNotRotated)
	assert.Contains(t, err.Error(), "control/127.0.0.1#0")
}

func TestHeartbeatRotationLive(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}

	const interval = 200 * time.Millisecond
	driver := testutil.NewMockDriver(testutil.MockDriverConfig{
		Hosts:             threeHosts(),
		HeartbeatInterval: interval,
	})
	defer driver.Shutdown()

	_, err := driver.Connect(t.Context(), cql.ConnectOptions{WaitForAllPools: true})
	require.NoError(t, err)

	mon, err := pool.New(driver)
	require.NoError(t, err)
	before := mon.Snapshot()
	require.NoError(t, mon.AssertActive())

	time.Sleep(2*interval + interval/2)

	require.NoError(t, mon.AssertRotated(before))
	require.NoError(t, mon.AssertIdle())
	require.NoError(t, mon.Quiescent())
}

func TestAssertActiveAfterTraffic(t *testing.T) {
	driver := testutil.NewMockDriver(testutil.MockDriverConfig{
		Hosts:             threeHosts(),
		HeartbeatInterval: time.Hour,
	})
	defer driver.Shutdown()

	session, err := driver.Connect(t.Context(), cql.ConnectOptions{WaitForAllPools: true})
	require.NoError(t, err)

	for _, h := range driver.Sessions()[0].Holders() {
		h.MockConnections()[0].SetIdle(true)
	}
	driver.Control().MockConnections()[0].SetIdle(true)

	mon, err := pool.New(driver)
	require.NoError(t, err)
	require.Error(t, mon.AssertActive())

	for i := 0; i < 3; i++ {
		_, err := session.Execute(t.Context(), cql.NewStatement("SELECT * FROM system.local"))
		require.NoError(t, err)
	}

	require.NoError(t, mon.AssertActive(), "control connection is not checked")
}

func TestWaitQuiescent(t *testing.T) {
	driver := testutil.NewMockDriver(testutil.MockDriverConfig{Hosts: threeHosts()})
	defer driver.Shutdown()

	conn := driver.Control().MockConnections()[0]
	id := conn.Acquire()

	mon, err := pool.New(driver)
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		conn.Release(id)
	}()
	require.NoError(t, mon.WaitQuiescent(t.Context(), 10*time.Millisecond))

	conn.Acquire()
	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Millisecond)
	defer cancel()
	err = mon.WaitQuiescent(ctx, 10*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorIs(t, err, types.ErrPoolNotQuiescent)
}
