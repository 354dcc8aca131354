package reconcile

import (
	"context"
	"time"

	"github.com/arloliu/cqlharness/adapter/cql"
	"github.com/arloliu/cqlharness/fleet"
	"github.com/arloliu/cqlharness/internal/logging"
	"github.com/arloliu/cqlharness/internal/metrics"
	"github.com/arloliu/cqlharness/types"
)

// Defaults for reconciliation.
const (
	DefaultSettleDelay    = 10 * time.Second
	DefaultRemoveAttempts = 100
	DefaultRemoveBackoff  = time.Second
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config holds the Reconciler configuration.
type Config struct {
	// Install selects the server software for created clusters.
	Install fleet.InstallSpec

	// ProtocolVersion is the native protocol version used for bootstrap
	// sessions and the JVM argument gate. Zero derives it from Install.Version.
	ProtocolVersion int

	// IPFormat is the default node address format passed to Populate.
	IPFormat string

	// JVMArgs are extra JVM arguments for every start.
	JVMArgs []string

	// SettleDelay is waited after start before the bootstrap session connects.
	SettleDelay time.Duration

	// RemoveAttempts bounds cluster removal attempts.
	RemoveAttempts int

	// RemoveBackoff is the pause between removal attempts.
	RemoveBackoff time.Duration

	// External disables provisioning entirely: the cluster is managed outside
	// the harness and Ensure only returns a handle for it.
	External bool

	// ExternalContactPoints are the addresses of the external cluster.
	ExternalContactPoints []string

	// DriverFactory creates bootstrap sessions. Nil skips keyspace bootstrap.
	DriverFactory cql.DriverFactory

	// Classifier classifies bootstrap statement errors. Nil uses
	// retry.DefaultClassifier.
	Classifier cql.ErrorClassifier

	// Logger receives reconciliation logs.
	Logger types.Logger

	// Metrics receives provisioning metrics.
	Metrics types.MetricsCollector

	// Sleep replaces the settle and backoff waits, for tests.
	Sleep SleepFunc
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		SettleDelay:           DefaultSettleDelay,
		RemoveAttempts:        DefaultRemoveAttempts,
		RemoveBackoff:         DefaultRemoveBackoff,
		ExternalContactPoints: []string{"127.0.0.1"},
	}
}

// Option configures a Reconciler.
type Option func(*Config)

// WithInstall sets the software installed on created clusters.
func WithInstall(install fleet.InstallSpec) Option {
	return func(c *Config) {
		c.Install = install
	}
}

// WithProtocolVersion sets the native protocol version.
func WithProtocolVersion(v int) Option {
	return func(c *Config) {
		c.ProtocolVersion = v
	}
}

// WithDefaultIPFormat sets the node address format used when Ensure is not
// given one.
func WithDefaultIPFormat(format string) Option {
	return func(c *Config) {
		c.IPFormat = format
	}
}

// WithJVMArgs appends JVM arguments used on every start.
func WithJVMArgs(args ...string) Option {
	return func(c *Config) {
		c.JVMArgs = append(c.JVMArgs, args...)
	}
}

// WithSettleDelay sets the delay between start and keyspace bootstrap.
//
// Default: 10s
func WithSettleDelay(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.SettleDelay = d
		}
	}
}

// WithRemoval sets the removal retry bound and backoff.
//
// Default: 100 attempts, 1s apart
//
// Parameters:
//   - attempts: Maximum removal attempts (values < 1 are ignored)
//   - backoff: Pause between attempts
//
// Returns:
//   - Option: Configuration option
func WithRemoval(attempts int, backoff time.Duration) Option {
	return func(c *Config) {
		if attempts > 0 {
			c.RemoveAttempts = attempts
		}
		if backoff >= 0 {
			c.RemoveBackoff = backoff
		}
	}
}

// WithExternal marks the cluster as externally managed. Ensure then never
// provisions and Teardown never removes anything.
func WithExternal(contactPoints ...string) Option {
	return func(c *Config) {
		c.External = true
		if len(contactPoints) > 0 {
			c.ExternalContactPoints = contactPoints
		}
	}
}

// WithDriverFactory sets the factory for bootstrap sessions.
func WithDriverFactory(f cql.DriverFactory) Option {
	return func(c *Config) {
		c.DriverFactory = f
	}
}

// WithClassifier sets the error classifier for bootstrap statements.
func WithClassifier(c cql.ErrorClassifier) Option {
	return func(cfg *Config) {
		cfg.Classifier = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger types.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(collector types.MetricsCollector) Option {
	return func(c *Config) {
		c.Metrics = collector
	}
}

// WithSleep replaces the wait function.
func WithSleep(fn SleepFunc) Option {
	return func(c *Config) {
		c.Sleep = fn
	}
}

func (c *Config) normalize() {
	c.Logger = logging.OrNop(c.Logger)
	c.Metrics = metrics.OrNop(c.Metrics)
	if c.Sleep == nil {
		c.Sleep = sleepContext
	}
	if c.RemoveAttempts < 1 {
		c.RemoveAttempts = DefaultRemoveAttempts
	}
	if c.ProtocolVersion == 0 {
		c.ProtocolVersion = 4
		if v, err := ParseVersion(c.Install.Version); err == nil {
			c.ProtocolVersion = DefaultProtocolVersion(v)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// EnsureOption configures a single Ensure call.
type EnsureOption func(*ensureOptions)

type ensureOptions struct {
	start    bool
	ipFormat string
}

// WithoutStart provisions the cluster but leaves its nodes stopped and skips
// keyspace bootstrap.
func WithoutStart() EnsureOption {
	return func(o *ensureOptions) {
		o.start = false
	}
}

// WithIPFormat sets the node address format, such as "::%d" for IPv6 nodes.
func WithIPFormat(format string) EnsureOption {
	return func(o *ensureOptions) {
		o.ipFormat = format
	}
}
