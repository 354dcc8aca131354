package fleet

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/cqlharness/types"
)

const definitionFile = "cluster.yaml"

// Definition is the persisted description of a cluster.
type Definition struct {
	// ID identifies this incarnation of the cluster.
	ID uuid.UUID `yaml:"id"`

	// Name is the cluster name.
	Name string `yaml:"name"`

	// Backend is the node software family ("cassandra" or "scylla").
	Backend Backend `yaml:"backend"`

	// Install is the installed software.
	Install InstallSpec `yaml:"install"`

	// Config holds node configuration options.
	Config map[string]any `yaml:"config,omitempty"`

	// IPFormat is the address format passed to Populate.
	IPFormat string `yaml:"ip_format,omitempty"`

	// Nodes are the populated nodes.
	Nodes []NodeInfo `yaml:"nodes,omitempty"`

	// Network is the container network name, once created.
	Network string `yaml:"network,omitempty"`

	// CreatedAt is when the definition was created.
	CreatedAt time.Time `yaml:"created_at"`
}

// NewDefinition creates a definition with a fresh ID.
func NewDefinition(name string, backend Backend, install InstallSpec) *Definition {
	return &Definition{
		ID:        uuid.New(),
		Name:      name,
		Backend:   backend,
		Install:   install,
		Config:    make(map[string]any),
		CreatedAt: time.Now().UTC(),
	}
}

// Store persists definitions under a root directory, one subdirectory per cluster.
type Store struct {
	root string
}

// NewStore creates a store rooted at root.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// Dir returns the directory of cluster name.
func (s *Store) Dir(name string) string {
	return filepath.Join(s.root, name)
}

// Load reads the definition of name.
//
// Returns:
//   - *Definition: The stored definition
//   - error: Wraps types.ErrClusterNotFound when no definition exists
func (s *Store) Load(name string) (*Definition, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir(name), definitionFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", types.ErrClusterNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("cqlharness/fleet: failed to read definition of %s: %w", name, err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("cqlharness/fleet: invalid definition of %s: %w", name, err)
	}
	if def.Config == nil {
		def.Config = make(map[string]any)
	}

	return &def, nil
}

// Save writes def atomically.
func (s *Store) Save(def *Definition) error {
	dir := s.Dir(def.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cqlharness/fleet: failed to create %s: %w", dir, err)
	}

	data, err := yaml.Marshal(def)
	if err != nil {
		return fmt.Errorf("cqlharness/fleet: failed to encode definition of %s: %w", def.Name, err)
	}

	tmp := filepath.Join(dir, definitionFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("cqlharness/fleet: failed to write definition of %s: %w", def.Name, err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, definitionFile)); err != nil {
		return fmt.Errorf("cqlharness/fleet: failed to write definition of %s: %w", def.Name, err)
	}

	return nil
}

// Delete removes the cluster directory. OS errors are returned unwrapped
// enough for IsRemovalRetryable to recognize them.
func (s *Store) Delete(name string) error {
	if err := os.RemoveAll(s.Dir(name)); err != nil {
		return fmt.Errorf("cqlharness/fleet: failed to delete %s: %w", name, err)
	}

	return nil
}

// Names lists the clusters with a stored definition.
func (s *Store) Names() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cqlharness/fleet: failed to list %s: %w", s.root, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, e.Name(), definitionFile)); err == nil {
			names = append(names, e.Name())
		}
	}

	return names, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
