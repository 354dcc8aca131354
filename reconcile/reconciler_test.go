package reconcile_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/cqlharness/adapter/cql"
	"github.com/arloliu/cqlharness/fleet"
	"github.com/arloliu/cqlharness/reconcile"
	"github.com/arloliu/cqlharness/test/testutil"
	"github.com/arloliu/cqlharness/types"
)

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.waits = append(s.waits, d)

	return nil
}

func (s *sleepRecorder) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]time.Duration(nil), s.waits...)
}

type fixture struct {
	local   *fleet.Local
	factory *testutil.MockDriverFactory
	logger  *testutil.MockLogger
	metrics *testutil.MockMetrics
	sleeps  *sleepRecorder
	r       *reconcile.Reconciler
}

func newFixture(t *testing.T, opts ...reconcile.Option) *fixture {
	t.Helper()

	f := &fixture{
		local:   fleet.NewLocal(),
		factory: testutil.NewMockDriverFactory(testutil.MockDriverConfig{Hosts: []*testutil.MockHost{testutil.NewMockHost("127.0.0.1", "dc1")}}),
		logger:  testutil.NewMockLogger(),
		metrics: testutil.NewMockMetrics(),
		sleeps:  &sleepRecorder{},
	}

	base := []reconcile.Option{
		reconcile.WithInstall(fleet.InstallSpec{Version: "3.11.4"}),
		reconcile.WithDriverFactory(f.factory.New),
		reconcile.WithLogger(f.logger),
		reconcile.WithMetrics(f.metrics),
		reconcile.WithSleep(f.sleeps.sleep),
	}

	r, err := reconcile.New(f.local, append(base, opts...)...)
	require.NoError(t, err)
	f.r = r

	return f
}

func TestNewRequiresController(t *testing.T) {
	_, err := reconcile.New(nil)
	require.Error(t, err)

	r, err := reconcile.New(nil, reconcile.WithExternal())
	require.NoError(t, err)
	assert.NotNil(t, r)
}

func TestEnsureCreatesAndBootstraps(t *testing.T) {
	f := newFixture(t)

	h, err := f.r.Ensure(t.Context(), "test_cluster", types.Topology{3})
	require.NoError(t, err)

	assert.Equal(t, "test_cluster", h.Name())
	assert.Equal(t, types.Topology{3}, h.Topology())
	assert.Equal(t, types.StateRunning, h.State())
	assert.False(t, h.External())
	assert.Same(t, h, f.r.Current())
	assert.Equal(t, []string{"127.0.0.1", "127.0.0.2", "127.0.0.3"}, h.ContactPoints())

	assert.Equal(t, []string{
		"test_cluster:load",
		"test_cluster:create",
		"test_cluster:configure",
		"test_cluster:populate",
		"test_cluster:start",
	}, f.local.Calls())

	lc, ok := f.local.Cluster("test_cluster")
	require.True(t, ok)
	assert.True(t, lc.Running())
	assert.Equal(t, "3.11.4", lc.Install().Version)
	assert.Equal(t, []string{fleet.CustomPayloadMirroringQueryHandlerFlag}, lc.JVMArgs())
	assert.Equal(t, true, lc.ConfigurationOptions()[fleet.OptEnableScriptedUserDefinedFunctions])

	// settle delay before bootstrap
	assert.Equal(t, []time.Duration{reconcile.DefaultSettleDelay}, f.sleeps.Waits())

	drivers := f.factory.Drivers()
	require.Len(t, drivers, 1)
	assert.True(t, drivers[0].IsShutdown())
	assert.Equal(t, []string{"127.0.0.1"}, f.factory.Options()[0].ContactPoints)
	assert.Equal(t, 4, f.factory.Options()[0].ProtocolVersion)
	assert.Equal(t, []string{
		"CREATE KEYSPACE test3rf WITH replication = {'class': 'SimpleStrategy', 'replication_factor': '3'}",
		"CREATE KEYSPACE test2rf WITH replication = {'class': 'SimpleStrategy', 'replication_factor': '2'}",
		"CREATE KEYSPACE test1rf WITH replication = {'class': 'SimpleStrategy', 'replication_factor': '1'}",
		"CREATE TABLE test3rf.test (k int PRIMARY KEY, v int)",
	}, drivers[0].Statements())

	assert.Equal(t, 1, f.metrics.Created("test_cluster"))
	assert.Len(t, f.metrics.ProvisionDurations("test_cluster"), 1)
}

func TestEnsureIsIdempotent(t *testing.T) {
	f := newFixture(t)

	first, err := f.r.Ensure(t.Context(), "test_cluster", types.Topology{3})
	require.NoError(t, err)
	f.local.ResetCalls()

	for range 3 {
		h, err := f.r.Ensure(t.Context(), "test_cluster", types.Topology{3})
		require.NoError(t, err)
		assert.Same(t, first, h)
		assert.Equal(t, first.ID(), h.ID())
	}

	assert.Empty(t, f.local.Calls(), "a matching cluster must not be restarted or wiped")
	assert.Len(t, f.factory.Drivers(), 1, "keyspaces are bootstrapped only once")
	assert.Equal(t, 3, f.metrics.Reused("test_cluster"))
}

func TestEnsureTopologyChangeSameName(t *testing.T) {
	f := newFixture(t)

	_, err := f.r.Ensure(t.Context(), "test_cluster", types.Topology{3})
	require.NoError(t, err)
	f.local.ResetCalls()

	h, err := f.r.Ensure(t.Context(), "test_cluster", types.Topology{2, 1})
	require.NoError(t, err)
	assert.Equal(t, types.Topology{2, 1}, h.Topology())

	assert.Equal(t, []string{
		"test_cluster:stop",
		"test_cluster:load",
		"test_cluster:remove",
		"test_cluster:create",
		"test_cluster:configure",
		"test_cluster:populate",
		"test_cluster:start",
	}, f.local.Calls())

	lc, ok := f.local.Cluster("test_cluster")
	require.True(t, ok)
	assert.Equal(t, types.Topology{2, 1}, fleet.DatacenterTopology(lc.Nodes()))
}

func TestEnsureSwitchesAndReloads(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	multi, err := f.r.Ensure(ctx, "test_cluster", types.Topology{3})
	require.NoError(t, err)

	single, err := f.r.Ensure(ctx, "single_node", types.Topology{1})
	require.NoError(t, err)
	assert.Equal(t, types.StateStopped, multi.State())
	assert.Same(t, single, f.r.Current())

	old, _ := f.local.Cluster("test_cluster")
	assert.False(t, old.Running(), "previous cluster must be stopped")

	f.local.ResetCalls()
	again, err := f.r.Ensure(ctx, "test_cluster", types.Topology{3})
	require.NoError(t, err)
	assert.NotSame(t, multi, again)

	assert.Equal(t, []string{
		"single_node:stop",
		"test_cluster:load",
		"test_cluster:clear",
		"test_cluster:install",
		"test_cluster:start",
	}, f.local.Calls())
}

func TestEnsureWithoutStart(t *testing.T) {
	f := newFixture(t)

	h, err := f.r.Ensure(t.Context(), "single_node", types.Topology{1}, reconcile.WithoutStart())
	require.NoError(t, err)
	assert.Equal(t, types.StateStopped, h.State())
	assert.NotContains(t, f.local.Calls(), "single_node:start")
	assert.Empty(t, f.factory.Drivers())

	// a later call with start brings the matching cluster up
	f.local.ResetCalls()
	h2, err := f.r.Ensure(t.Context(), "single_node", types.Topology{1})
	require.NoError(t, err)
	assert.Same(t, h, h2)
	assert.Equal(t, types.StateRunning, h2.State())
	assert.Equal(t, []string{"single_node:start"}, f.local.Calls())
}

func TestEnsureIPv6Format(t *testing.T) {
	f := newFixture(t)

	h, err := f.r.Ensure(t.Context(), "test_cluster", types.Topology{1}, reconcile.WithIPFormat("::%d"))
	require.NoError(t, err)

	lc, _ := f.local.Cluster("test_cluster")
	assert.Equal(t, "::%d", lc.IPFormat())
	assert.Equal(t, []string{"::1"}, h.ContactPoints())
	assert.Equal(t, []string{"::1"}, f.factory.Options()[0].ContactPoints)
}

func TestEnsureInvalidTopology(t *testing.T) {
	f := newFixture(t)

	_, err := f.r.Ensure(t.Context(), "test_cluster", types.Topology{})
	require.ErrorIs(t, err, types.ErrInvalidTopology)
	assert.Empty(t, f.local.Calls())
}

func TestEnsureStartFailureRemovesCluster(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("node1 failed to start")
	f.local.FailNextStart("test_cluster", boom)

	h, err := f.r.Ensure(t.Context(), "test_cluster", types.Topology{3})
	require.Error(t, err)
	assert.Nil(t, h)

	var perr *types.ProvisionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "start", perr.Phase)
	require.ErrorIs(t, err, boom)
	require.NoError(t, perr.CleanupErr)

	assert.Equal(t, []string{
		"test_cluster:load",
		"test_cluster:create",
		"test_cluster:configure",
		"test_cluster:populate",
		"test_cluster:start",
		"test_cluster:terminate",
		"test_cluster:remove",
	}, f.local.Calls())

	_, ok := f.local.Cluster("test_cluster")
	assert.False(t, ok)
	assert.Nil(t, f.r.Current())
	assert.Equal(t, 1, f.metrics.ProvisionFailures("test_cluster"))
	assert.True(t, f.logger.Contains("error", "failed to start cluster"))
}

func TestEnsureBootstrapFailureRemovesCluster(t *testing.T) {
	f := newFixture(t)
	f.factory.Err = errors.New("no hosts available")

	_, err := f.r.Ensure(t.Context(), "test_cluster", types.Topology{1})

	var perr *types.ProvisionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "bootstrap", perr.Phase)
	assert.Contains(t, f.local.Calls(), "test_cluster:terminate")
	assert.Nil(t, f.r.Current())
}

func TestEnsureCleanupFailureIsReported(t *testing.T) {
	f := newFixture(t, reconcile.WithRemoval(2, time.Second))
	f.local.FailNextStart("test_cluster", errors.New("boom"))
	f.local.FailRemove("test_cluster", fleet.ErrRemovalBusy, fleet.ErrRemovalBusy)

	_, err := f.r.Ensure(t.Context(), "test_cluster", types.Topology{1})

	var perr *types.ProvisionError
	require.ErrorAs(t, err, &perr)
	require.ErrorIs(t, perr.CleanupErr, types.ErrRemovalExhausted)
}

func TestTeardownRetriesBusyRemoval(t *testing.T) {
	f := newFixture(t, reconcile.WithSettleDelay(0))

	h, err := f.r.Ensure(t.Context(), "test_cluster", types.Topology{1})
	require.NoError(t, err)
	f.local.FailRemove("test_cluster", fleet.ErrRemovalBusy, fleet.ErrRemovalBusy, fleet.ErrRemovalBusy)
	f.local.ResetCalls()

	require.NoError(t, f.r.Teardown(t.Context(), h))

	assert.Equal(t, []string{
		"test_cluster:remove",
		"test_cluster:remove",
		"test_cluster:remove",
		"test_cluster:remove",
	}, f.local.Calls())
	assert.Equal(t, []time.Duration{0, time.Second, time.Second, time.Second}, f.sleeps.Waits())
	assert.Equal(t, 3, f.metrics.RemovalRetries("test_cluster"))
	assert.Equal(t, types.StateUnprovisioned, h.State())
	assert.Nil(t, f.r.Current())
}

func TestTeardownExhaustsRemovalAttempts(t *testing.T) {
	f := newFixture(t, reconcile.WithRemoval(5, 10*time.Millisecond))

	h, err := f.r.Ensure(t.Context(), "test_cluster", types.Topology{1}, reconcile.WithoutStart())
	require.NoError(t, err)

	busy := make([]error, 5)
	for i := range busy {
		busy[i] = fleet.ErrRemovalBusy
	}
	f.local.FailRemove("test_cluster", busy...)

	err = f.r.Teardown(t.Context(), h)

	var rerr *types.RemovalError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 5, rerr.Attempts)
	require.ErrorIs(t, err, fleet.ErrRemovalBusy)
	assert.Len(t, f.sleeps.Waits(), 4)
	assert.Same(t, h, f.r.Current(), "a cluster that could not be removed stays current")
}

func TestTeardownDoesNotRetryOtherErrors(t *testing.T) {
	f := newFixture(t)

	h, err := f.r.Ensure(t.Context(), "test_cluster", types.Topology{1}, reconcile.WithoutStart())
	require.NoError(t, err)
	denied := errors.New("cluster definition is read-only")
	f.local.FailRemove("test_cluster", denied)
	f.local.ResetCalls()

	err = f.r.Teardown(t.Context(), h)
	require.ErrorIs(t, err, denied)
	assert.Equal(t, []string{"test_cluster:remove"}, f.local.Calls())
}

func TestRemoveAll(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	stale, err := f.local.Create(ctx, "single_node", fleet.InstallSpec{})
	require.NoError(t, err)
	require.NoError(t, stale.Populate(ctx, types.Topology{1}, ""))

	_, err = f.r.Ensure(ctx, "test_cluster", types.Topology{3})
	require.NoError(t, err)
	f.local.ResetCalls()

	require.NoError(t, f.r.RemoveAll(ctx))

	assert.Equal(t, []string{
		"test_cluster:remove",
		"test_cluster:load",
		"single_node:load",
		"single_node:remove",
		"multidc_test_cluster:load",
	}, f.local.Calls())
	assert.Empty(t, f.local.Names())
	assert.Nil(t, f.r.Current())
	assert.True(t, f.logger.Contains("warn", "did not find cluster"))
}

func TestRemoveAllJoinsFailures(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	c, err := f.local.Create(ctx, "single_node", fleet.InstallSpec{})
	require.NoError(t, err)
	require.NoError(t, c.Populate(ctx, types.Topology{1}, ""))
	denied := errors.New("denied")
	f.local.FailRemove("single_node", denied)

	err = f.r.RemoveAll(ctx, "single_node", "test_cluster")
	require.ErrorIs(t, err, denied)
	assert.Contains(t, f.local.Calls(), "test_cluster:load", "later names are still tried")
}

func TestExternalMode(t *testing.T) {
	logger := testutil.NewMockLogger()
	r, err := reconcile.New(nil, reconcile.WithExternal("10.1.0.5"), reconcile.WithLogger(logger))
	require.NoError(t, err)

	h, err := r.Ensure(t.Context(), "test_cluster", types.Topology{3})
	require.NoError(t, err)
	assert.True(t, h.External())
	assert.Nil(t, h.Cluster())
	assert.Equal(t, types.StateRunning, h.State())
	assert.Equal(t, []string{"10.1.0.5"}, h.ContactPoints())

	again, err := r.Ensure(t.Context(), "test_cluster", types.Topology{3})
	require.NoError(t, err)
	assert.Same(t, h, again)

	require.NoError(t, r.Teardown(t.Context(), h))
	require.NoError(t, r.RemoveAll(t.Context()))
}

type presetDriver struct {
	*testutil.MockDriver
	session *testutil.MockSession
}

func (d *presetDriver) Connect(context.Context, cql.ConnectOptions) (cql.Session, error) {
	return d.session, nil
}

func TestBootstrapDropsExistingKeyspaces(t *testing.T) {
	session := testutil.NewMockSession()
	session.SetKeyspace("test1rf", true)
	session.SetKeyspace("test3rf", true)

	var driver *presetDriver
	factory := func(cql.DriverOptions) (cql.Driver, error) {
		driver = &presetDriver{MockDriver: testutil.NewMockDriver(testutil.MockDriverConfig{}), session: session}
		return driver, nil
	}

	r, err := reconcile.New(fleet.NewLocal(),
		reconcile.WithDriverFactory(factory),
		reconcile.WithSettleDelay(0),
	)
	require.NoError(t, err)

	_, err = r.Ensure(t.Context(), "single_node", types.Topology{1})
	require.NoError(t, err)

	stmts := session.Statements()
	require.Len(t, stmts, 6)
	assert.Equal(t, "DROP KEYSPACE test3rf", stmts[0])
	assert.Equal(t, "DROP KEYSPACE test1rf", stmts[1])
	assert.Contains(t, stmts[2], "CREATE KEYSPACE test3rf")
	assert.Equal(t, "CREATE TABLE test3rf.test (k int PRIMARY KEY, v int)", stmts[5])
	assert.True(t, session.IsClosed())
	assert.True(t, driver.IsShutdown())
}

func TestBootstrapRetriesTransientCreate(t *testing.T) {
	session := testutil.NewMockSession(
		testutil.NewFailure(types.FailureWriteTimeout),
		testutil.NewFailure(types.FailureAlreadyExists),
	)
	factory := func(cql.DriverOptions) (cql.Driver, error) {
		return &presetDriver{MockDriver: testutil.NewMockDriver(testutil.MockDriverConfig{}), session: session}, nil
	}

	r, err := reconcile.New(fleet.NewLocal(), reconcile.WithDriverFactory(factory), reconcile.WithSettleDelay(0))
	require.NoError(t, err)

	_, err = r.Ensure(t.Context(), "single_node", types.Topology{1})
	require.NoError(t, err)

	// the timed-out create is retried, the already-existing one counts as done
	require.Len(t, session.Statements(), 5)
	assert.Contains(t, session.Statements()[1], "CREATE KEYSPACE test3rf")
	assert.Contains(t, session.Statements()[2], "CREATE KEYSPACE test2rf")
}
