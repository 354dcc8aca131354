package cqlharness

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/cqlharness/adapter/cql"
	"github.com/arloliu/cqlharness/fleet"
	"github.com/arloliu/cqlharness/internal/logging"
	"github.com/arloliu/cqlharness/internal/metrics"
	"github.com/arloliu/cqlharness/reconcile"
	"github.com/arloliu/cqlharness/types"
)

// Environment variables read by LoadConfigFromEnv.
const (
	EnvExternal        = "USE_CASS_EXTERNAL"
	EnvVersion         = "CASSANDRA_VERSION"
	EnvInstallDir      = "CASSANDRA_DIR"
	EnvProtocolVersion = "PROTOCOL_VERSION"
	EnvRoot            = "CQLHARNESS_ROOT"
	EnvConfigFile      = "CQLHARNESS_CONFIG"
)

// DefaultVersion is the server version used when none is configured.
const DefaultVersion = "2.2.0"

// Config holds the Harness configuration.
//
// The serializable fields can be loaded from a YAML file and environment
// variables; the collaborators are set with options.
type Config struct {
	// External means the cluster is managed outside the harness.
	External bool `yaml:"external"`

	// ExternalContactPoints are the addresses of an external cluster.
	ExternalContactPoints []string `yaml:"external_contact_points,omitempty"`

	// Version is the server release version, such as "3.11.4".
	Version string `yaml:"version"`

	// InstallDir is a local server installation directory.
	InstallDir string `yaml:"install_dir,omitempty"`

	// Image overrides the container image derived from Version.
	Image string `yaml:"image,omitempty"`

	// ProtocolVersion is the native protocol version. Zero derives it from Version.
	ProtocolVersion int `yaml:"protocol_version,omitempty"`

	// Root is the directory holding cluster definitions.
	Root string `yaml:"root"`

	// Backend selects the node containers: "cassandra" or "scylla".
	Backend string `yaml:"backend"`

	// IPFormat is the default node address format, such as "::%d".
	IPFormat string `yaml:"ip_format,omitempty"`

	// SettleDelay is waited after start before bootstrapping keyspaces.
	SettleDelay time.Duration `yaml:"settle_delay"`

	// HeartbeatInterval is the driver idle heartbeat interval for sessions
	// opened with Connect. Zero disables heartbeats.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval,omitempty"`

	// RemoveAttempts bounds cluster removal attempts.
	RemoveAttempts int `yaml:"remove_attempts"`

	// RemoveBackoff is the pause between removal attempts.
	RemoveBackoff time.Duration `yaml:"remove_backoff"`

	Controller    fleet.Controller       `yaml:"-"`
	DriverFactory cql.DriverFactory      `yaml:"-"`
	Logger        types.Logger           `yaml:"-"`
	Metrics       types.MetricsCollector `yaml:"-"`
}

// DefaultConfig returns a Config with default settings.
//
// Returns:
//   - *Config: Configuration with default settings
func DefaultConfig() *Config {
	return &Config{
		ExternalContactPoints: []string{"127.0.0.1"},
		Version:               DefaultVersion,
		Root:                  filepath.Join(os.TempDir(), "cqlharness"),
		Backend:               string(fleet.BackendCassandra),
		SettleDelay:           reconcile.DefaultSettleDelay,
		RemoveAttempts:        reconcile.DefaultRemoveAttempts,
		RemoveBackoff:         reconcile.DefaultRemoveBackoff,
		Logger:                logging.NewNopLogger(),
		Metrics:               metrics.NewNopMetrics(),
	}
}

// LoadConfigFile reads a YAML configuration file over the defaults.
//
// Parameters:
//   - path: YAML file path
//
// Returns:
//   - *Config: The loaded configuration
//   - error: Read or parse error
func LoadConfigFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	return nil
}

// LoadConfigFromEnv builds a Config from the defaults, the YAML file named
// by CQLHARNESS_CONFIG (if set) and then the environment:
//
//   - USE_CASS_EXTERNAL: any non-empty value other than a false boolean
//     selects external mode
//   - CASSANDRA_VERSION: server version (default 2.2.0)
//   - CASSANDRA_DIR: local installation directory
//   - PROTOCOL_VERSION: native protocol version (default derived from the version)
//   - CQLHARNESS_ROOT: cluster definition directory
//
// Returns:
//   - *Config: The loaded configuration
//   - error: Config file or PROTOCOL_VERSION errors
func LoadConfigFromEnv() (*Config, error) {
	cfg := DefaultConfig()

	if path, ok := os.LookupEnv(EnvConfigFile); ok && path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if v, ok := os.LookupEnv(EnvExternal); ok {
		cfg.External = parseFlag(v)
	}
	if v := os.Getenv(EnvVersion); v != "" {
		cfg.Version = v
	}
	if v := os.Getenv(EnvInstallDir); v != "" {
		cfg.InstallDir = v
	}
	if v := os.Getenv(EnvRoot); v != "" {
		cfg.Root = v
	}
	if v := os.Getenv(EnvProtocolVersion); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid %s %q", EnvProtocolVersion, v)
		}
		cfg.ProtocolVersion = n
	}

	return cfg, nil
}

func parseFlag(v string) bool {
	v = strings.TrimSpace(v)
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}

	return v != ""
}

// EffectiveProtocolVersion returns ProtocolVersion, or the highest version
// supported by Version when unset.
func (c *Config) EffectiveProtocolVersion() int {
	if c.ProtocolVersion > 0 {
		return c.ProtocolVersion
	}
	v, err := reconcile.ParseVersion(c.Version)
	if err != nil {
		return 4
	}

	return reconcile.DefaultProtocolVersion(v)
}

// Install returns the install spec for created clusters.
func (c *Config) Install() fleet.InstallSpec {
	return fleet.InstallSpec{Version: c.Version, InstallDir: c.InstallDir, Image: c.Image}
}

// Option configures a Config.
type Option func(*Config)

// WithExternal selects external mode with optional contact points.
//
// Parameters:
//   - contactPoints: External cluster addresses (empty keeps the default)
//
// Returns:
//   - Option: Configuration option
func WithExternal(contactPoints ...string) Option {
	return func(c *Config) {
		c.External = true
		if len(contactPoints) > 0 {
			c.ExternalContactPoints = contactPoints
		}
	}
}

// WithVersion sets the server version.
func WithVersion(version string) Option {
	return func(c *Config) {
		c.Version = version
	}
}

// WithInstallDir sets the local installation directory.
func WithInstallDir(dir string) Option {
	return func(c *Config) {
		c.InstallDir = dir
	}
}

// WithImage overrides the node container image.
func WithImage(image string) Option {
	return func(c *Config) {
		c.Image = image
	}
}

// WithProtocolVersion sets the native protocol version.
func WithProtocolVersion(v int) Option {
	return func(c *Config) {
		c.ProtocolVersion = v
	}
}

// WithRoot sets the cluster definition directory.
func WithRoot(root string) Option {
	return func(c *Config) {
		c.Root = root
	}
}

// WithBackend selects the node container backend.
func WithBackend(b fleet.Backend) Option {
	return func(c *Config) {
		c.Backend = string(b)
	}
}

// WithIPFormat sets the default node address format.
func WithIPFormat(format string) Option {
	return func(c *Config) {
		c.IPFormat = format
	}
}

// WithSettleDelay sets the wait between start and keyspace bootstrap.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Config) {
		c.SettleDelay = d
	}
}

// WithHeartbeatInterval sets the idle heartbeat interval for Connect.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *Config) {
		c.HeartbeatInterval = d
	}
}

// WithRemoval sets the cluster removal retry bound and backoff.
func WithRemoval(attempts int, backoff time.Duration) Option {
	return func(c *Config) {
		c.RemoveAttempts = attempts
		c.RemoveBackoff = backoff
	}
}

// WithController sets the fleet controller. By default a container
// controller rooted at Config.Root is used.
func WithController(ctrl fleet.Controller) Option {
	return func(c *Config) {
		c.Controller = ctrl
	}
}

// WithDriverFactory sets the driver factory. By default the gocql adapter
// is used.
func WithDriverFactory(f cql.DriverFactory) Option {
	return func(c *Config) {
		c.DriverFactory = f
	}
}

// WithLogger sets the logger.
//
// Parameters:
//   - logger: Logger implementation (e.g., zap.SugaredLogger or the slog adapter)
//
// Returns:
//   - Option: Configuration option
func WithLogger(logger types.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics sets the metrics collector.
//
// If not set, a no-op collector is used that discards all metrics.
// Use contrib/metrics/vm.New() for VictoriaMetrics integration.
//
// Parameters:
//   - collector: The metrics collector implementation
//
// Returns:
//   - Option: Configuration option
func WithMetrics(collector types.MetricsCollector) Option {
	return func(c *Config) {
		c.Metrics = collector
	}
}
