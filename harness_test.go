package cqlharness_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/cqlharness"
	"github.com/arloliu/cqlharness/adapter/cql"
	"github.com/arloliu/cqlharness/fleet"
	"github.com/arloliu/cqlharness/reconcile"
	"github.com/arloliu/cqlharness/retry"
	"github.com/arloliu/cqlharness/test/testutil"
	"github.com/arloliu/cqlharness/types"
)

type env struct {
	h       *cqlharness.Harness
	local   *fleet.Local
	factory *testutil.MockDriverFactory
	logger  *testutil.MockLogger
}

func newEnv(t *testing.T, cfg testutil.MockDriverConfig, opts ...cqlharness.Option) *env {
	t.Helper()

	if len(cfg.Hosts) == 0 {
		cfg.Hosts = []*testutil.MockHost{
			testutil.NewMockHost("127.0.0.1", "dc1"),
			testutil.NewMockHost("127.0.0.2", "dc1"),
			testutil.NewMockHost("127.0.0.3", "dc1"),
		}
	}

	e := &env{
		local:   fleet.NewLocal(),
		factory: testutil.NewMockDriverFactory(cfg),
		logger:  testutil.NewMockLogger(),
	}

	base := []cqlharness.Option{
		cqlharness.WithController(e.local),
		cqlharness.WithDriverFactory(e.factory.New),
		cqlharness.WithLogger(e.logger),
		cqlharness.WithVersion("3.11.4"),
		cqlharness.WithSettleDelay(0),
	}

	h, err := cqlharness.New(nil, append(base, opts...)...)
	require.NoError(t, err)
	e.h = h

	return e
}

func TestUsePresets(t *testing.T) {
	e := newEnv(t, testutil.MockDriverConfig{})
	ctx := t.Context()

	h, err := e.h.UseSingleDC(ctx)
	require.NoError(t, err)
	assert.Equal(t, cqlharness.SingleDCClusterName, h.Name())
	assert.Equal(t, cqlharness.Topology{3}, h.Topology())

	h, err = e.h.UseSingleNode(ctx)
	require.NoError(t, err)
	assert.Equal(t, cqlharness.SingleNodeClusterName, h.Name())

	h, err = e.h.UseMultiDC(ctx, cqlharness.Topology{2, 2})
	require.NoError(t, err)
	assert.Equal(t, cqlharness.MultiDCClusterName, h.Name())
	assert.Equal(t, cqlharness.Topology{2, 2}, h.Topology())
	assert.Same(t, h, e.h.Current())

	require.NoError(t, e.h.TeardownPackage(ctx))
	assert.Empty(t, e.local.Names())
	assert.Nil(t, e.h.Current())
}

func TestConnectRequiresCluster(t *testing.T) {
	e := newEnv(t, testutil.MockDriverConfig{})

	_, _, err := e.h.Connect(t.Context(), cqlharness.SessionOptions{})
	require.ErrorIs(t, err, types.ErrNotProvisioned)
}

func TestConnectUsesClusterContactPoints(t *testing.T) {
	e := newEnv(t, testutil.MockDriverConfig{}, cqlharness.WithHeartbeatInterval(0))
	ctx := t.Context()

	_, err := e.h.UseSingleDC(ctx)
	require.NoError(t, err)

	driver, session, err := e.h.Connect(ctx, cqlharness.SessionOptions{Keyspace: "test3rf", LocalDatacenter: "dc1"})
	require.NoError(t, err)
	defer driver.Shutdown()
	require.NotNil(t, session)

	opts := e.factory.Options()
	last := opts[len(opts)-1]
	assert.Equal(t, []string{"127.0.0.1", "127.0.0.2", "127.0.0.3"}, last.ContactPoints)
	assert.Equal(t, 4, last.ProtocolVersion)
	assert.Equal(t, "dc1", last.LocalDatacenter)
	assert.Zero(t, last.IdleHeartbeatInterval)

	md := driver.(*testutil.MockDriver)
	assert.Equal(t, []string{"test3rf"}, md.Keyspaces())
	assert.Len(t, driver.ConnectionHolders(), 3+1)
}

func TestExecuteHelpers(t *testing.T) {
	e := newEnv(t, testutil.MockDriverConfig{})
	session := testutil.NewMockSession(
		testutil.NewFailure(types.FailureOperationTimeout),
		testutil.NewFailure(types.FailureAlreadyExists),
	)

	res, err := e.h.ExecuteUntilPass(t.Context(), session, "CREATE TABLE ks.t (k int PRIMARY KEY)")
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.Equal(t, 2, session.Calls())

	stmt, ok := session.LastStatement()
	require.True(t, ok)
	assert.Zero(t, stmt.Timeout)

	res, err = e.h.ExecuteWithLongWaitRetry(t.Context(), session, "CREATE KEYSPACE ks WITH replication = {'class': 'SimpleStrategy', 'replication_factor': '1'}")
	require.NoError(t, err)
	assert.NotNil(t, res)

	stmt, _ = session.LastStatement()
	assert.Equal(t, retry.PatientAttemptTimeout, stmt.Timeout)
}

func TestExecuteHelpersPropagateFatalErrors(t *testing.T) {
	e := newEnv(t, testutil.MockDriverConfig{})
	syntax := errors.New("line 1:0 no viable alternative")
	session := testutil.NewMockSession(syntax)

	_, err := e.h.ExecuteUntilPass(t.Context(), session, "CRATE TABLE x")
	require.Same(t, syntax, err)
	assert.Equal(t, 1, session.Calls())
}

func TestDropKeyspaceAndShutdownSwallowsErrors(t *testing.T) {
	e := newEnv(t, testutil.MockDriverConfig{})
	driver := testutil.NewMockDriver(testutil.MockDriverConfig{})
	session := testutil.NewMockSession(errors.New("keyspace does not exist"))

	e.h.DropKeyspaceAndShutdown(t.Context(), driver, session, "gone")

	assert.True(t, driver.IsShutdown())
	assert.True(t, e.logger.Contains("warn", "error dropping keyspace"))
}

func TestServerVersions(t *testing.T) {
	e := newEnv(t, testutil.MockDriverConfig{})
	ctx := t.Context()

	_, err := e.h.UseSingleNode(ctx)
	require.NoError(t, err)

	session := testutil.NewMockSession()
	session.OnExecute = func(_ context.Context, stmt cql.Statement) (*cql.Result, error) {
		return &cql.Result{Rows: []map[string]any{{
			"cql_version":     "3.4.4",
			"release_version": "3.11.4-SNAPSHOT",
		}}}, nil
	}

	v, err := e.h.ServerVersions(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, reconcile.Version{Major: 3, Minor: 4, Patch: 4}, v.CQL)
	assert.Equal(t, reconcile.Version{Major: 3, Minor: 11, Patch: 4}, v.Release)

	// cached for the current cluster
	again, err := e.h.ServerVersions(ctx, testutil.NewMockSession(errors.New("unreachable")))
	require.NoError(t, err)
	assert.Equal(t, v, again)
	assert.Equal(t, 1, session.Calls())

	_, err = cqlharness.QueryServerVersions(ctx, testutil.NewMockSession())
	require.Error(t, err, "no rows")
	_, err = cqlharness.QueryServerVersions(ctx, nil)
	require.ErrorIs(t, err, types.ErrNilSession)
}

func TestKeyspaceFixture(t *testing.T) {
	e := newEnv(t, testutil.MockDriverConfig{})
	ctx := t.Context()

	_, err := e.h.UseSingleDC(ctx)
	require.NoError(t, err)

	f, err := e.h.NewKeyspaceFixture(ctx, "TestKeyspaceFixture", cqlharness.WithClassTable(), cqlharness.WithReplicationFactor(2))
	require.NoError(t, err)
	assert.Equal(t, "testkeyspacefixture", f.Keyspace())
	assert.Equal(t, 2, f.ReplicationFactor())

	table, err := f.CreateFunctionTable(ctx, "TestInsert")
	require.NoError(t, err)
	assert.Equal(t, "testinsert", table)
	require.NoError(t, f.DropFunctionTable(ctx, "TestInsert"))

	f.Teardown(ctx)

	md := f.Driver().(*testutil.MockDriver)
	assert.True(t, md.IsShutdown())
	assert.Equal(t, []string{
		"CREATE KEYSPACE testkeyspacefixture WITH replication = {'class': 'SimpleStrategy', 'replication_factor': '2'}",
		"CREATE TABLE testkeyspacefixture.testkeyspacefixture (k int PRIMARY KEY, v int)",
		"CREATE TABLE testkeyspacefixture.testinsert (k int PRIMARY KEY, v int)",
		"DROP TABLE testkeyspacefixture.testinsert",
		"DROP KEYSPACE testkeyspacefixture",
	}, md.Statements())
}

func TestKeyspaceFixtureCreateFailure(t *testing.T) {
	denied := errors.New("unauthorized")
	e := newEnv(t, testutil.MockDriverConfig{Errors: []error{denied}})
	ctx := t.Context()

	// without start there is no bootstrap, so the scripted error reaches the fixture
	_, err := e.h.UseSingleNode(ctx, reconcile.WithoutStart())
	require.NoError(t, err)

	_, err = e.h.NewKeyspaceFixture(ctx, "TestDenied")
	require.ErrorIs(t, err, denied)

	drivers := e.factory.Drivers()
	require.Len(t, drivers, 1)
	assert.True(t, drivers[0].IsShutdown())
}

func TestExternalMode(t *testing.T) {
	factory := testutil.NewMockDriverFactory(testutil.MockDriverConfig{
		Hosts: []*testutil.MockHost{testutil.NewMockHost("10.0.0.9", "dc1")},
	})
	h, err := cqlharness.New(nil,
		cqlharness.WithExternal("10.0.0.9"),
		cqlharness.WithDriverFactory(factory.New),
	)
	require.NoError(t, err)

	handle, err := h.UseSingleDC(t.Context())
	require.NoError(t, err)
	assert.True(t, handle.External())

	driver, _, err := h.Connect(t.Context(), cqlharness.SessionOptions{})
	require.NoError(t, err)
	driver.Shutdown()
	assert.Equal(t, []string{"10.0.0.9"}, factory.Options()[0].ContactPoints)

	require.NoError(t, h.Teardown(t.Context()))
	require.NoError(t, h.TeardownPackage(t.Context()))
}
