package fleet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/cqlharness/types"
)

func TestStoreRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	def := NewDefinition("test_cluster", BackendCassandra, InstallSpec{Version: "3.11.4"})
	def.Nodes = PlanNodes(types.Topology{2, 1})
	def.Config[OptStartNativeTransport] = true
	def.IPFormat = "127.0.0.%d"
	require.NoError(t, store.Save(def))

	loaded, err := store.Load("test_cluster")
	require.NoError(t, err)
	assert.Equal(t, def.ID, loaded.ID)
	assert.Equal(t, BackendCassandra, loaded.Backend)
	assert.Equal(t, "3.11.4", loaded.Install.Version)
	assert.Equal(t, def.Nodes, loaded.Nodes)
	assert.Equal(t, true, loaded.Config[OptStartNativeTransport])
	assert.Equal(t, "127.0.0.%d", loaded.IPFormat)

	_, err = os.Stat(filepath.Join(store.Dir("test_cluster"), definitionFile+".tmp"))
	assert.True(t, os.IsNotExist(err), "temporary file should be renamed away")
}

func TestStoreLoadMissing(t *testing.T) {
	store := NewStore(t.TempDir())

	_, err := store.Load("nope")
	require.ErrorIs(t, err, types.ErrClusterNotFound)
}

func TestStoreLoadEmptyConfig(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, store.Save(NewDefinition("c", BackendScylla, InstallSpec{})))

	loaded, err := store.Load("c")
	require.NoError(t, err)
	require.NotNil(t, loaded.Config)
	loaded.Config["k"] = 1
}

func TestStoreNamesAndDelete(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)

	names, err := store.Names()
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, store.Save(NewDefinition("a", BackendCassandra, InstallSpec{})))
	require.NoError(t, store.Save(NewDefinition("b", BackendCassandra, InstallSpec{})))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "stray"), 0o755))

	names, err = store.Names()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, names)

	require.NoError(t, store.Delete("a"))
	require.NoError(t, store.Delete("a"), "deleting twice is fine")

	names, err = store.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, names)
}

func TestStoreNamesMissingRoot(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing"))

	names, err := store.Names()
	require.NoError(t, err)
	assert.Nil(t, names)
}
