package commands_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/cqlharness"
	"github.com/arloliu/cqlharness/cmd/cqlharness/commands"
	"github.com/arloliu/cqlharness/fleet"
	"github.com/arloliu/cqlharness/test/testutil"
	"github.com/arloliu/cqlharness/types"
)

type cli struct {
	local   *fleet.Local
	factory *testutil.MockDriverFactory
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	t.Setenv(cqlharness.EnvConfigFile, "")
	t.Setenv(cqlharness.EnvExternal, "")
	t.Setenv(cqlharness.EnvProtocolVersion, "")

	return &cli{
		local: fleet.NewLocal(),
		factory: testutil.NewMockDriverFactory(testutil.MockDriverConfig{
			Hosts: []*testutil.MockHost{testutil.NewMockHost("127.0.0.1", "dc1")},
		}),
	}
}

func (c *cli) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := commands.RootWith(func(cfg *cqlharness.Config, logger types.Logger) (*cqlharness.Harness, error) {
		return cqlharness.New(cfg,
			cqlharness.WithLogger(logger),
			cqlharness.WithController(c.local),
			cqlharness.WithDriverFactory(c.factory.New),
			cqlharness.WithSettleDelay(0),
		)
	})
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())

	return out.String(), err
}

func TestEnsureAndStatus(t *testing.T) {
	c := newCLI(t)

	out, err := c.run(t, "ensure", "--topology", "2,1", "multidc_test_cluster")
	require.NoError(t, err)
	assert.Equal(t, "multidc_test_cluster [2 1] running 127.0.0.1,127.0.0.2,127.0.0.3\n", out)

	out, err = c.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "test_cluster absent\n")
	assert.Contains(t, out, "multidc_test_cluster [2 1] 127.0.0.1,127.0.0.2,127.0.0.3\n")

	_, err = c.run(t, "teardown", "multidc_test_cluster")
	require.NoError(t, err)
	assert.Empty(t, c.local.Names())
}

func TestEnsureWithoutStart(t *testing.T) {
	c := newCLI(t)

	out, err := c.run(t, "ensure", "--no-start", "-t", "1", "single_node")
	require.NoError(t, err)
	assert.Contains(t, out, "single_node [1] stopped")
	assert.Empty(t, c.factory.Options(), "no bootstrap without start")

	_, err = c.run(t, "remove-all")
	require.NoError(t, err)
	assert.Empty(t, c.local.Names())
}

func TestEnsureRejectsBadTopology(t *testing.T) {
	c := newCLI(t)

	_, err := c.run(t, "ensure", "--topology", "3,x")
	require.Error(t, err)

	_, err = c.run(t, "ensure", "--topology", "0")
	require.ErrorIs(t, err, types.ErrInvalidTopology)
	assert.Empty(t, c.local.Calls())
}

func TestTeardownRequiresName(t *testing.T) {
	c := newCLI(t)

	_, err := c.run(t, "teardown")
	require.Error(t, err)
}

func TestParseTopology(t *testing.T) {
	topo, err := commands.ParseTopology("3")
	require.NoError(t, err)
	assert.Equal(t, cqlharness.Topology{3}, topo)

	topo, err = commands.ParseTopology(" 2, 2 ")
	require.NoError(t, err)
	assert.Equal(t, cqlharness.Topology{2, 2}, topo)

	_, err = commands.ParseTopology("")
	require.Error(t, err)
}
