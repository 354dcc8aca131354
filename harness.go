package cqlharness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/cqlharness/adapter/cql"
	v1 "github.com/arloliu/cqlharness/adapter/cql/v1"
	v2 "github.com/arloliu/cqlharness/adapter/cql/v2"
	"github.com/arloliu/cqlharness/fleet"
	"github.com/arloliu/cqlharness/internal/logging"
	"github.com/arloliu/cqlharness/internal/metrics"
	"github.com/arloliu/cqlharness/reconcile"
	"github.com/arloliu/cqlharness/retry"
	"github.com/arloliu/cqlharness/types"
)

// Harness is the entry point for integration tests: it keeps the requested
// cluster running, opens driver sessions against it and runs schema
// statements with retry.
//
// A Harness is meant to be shared by the tests of one package and used
// serially.
type Harness struct {
	cfg        *Config
	reconciler *reconcile.Reconciler
	classifier cql.ErrorClassifier
	fast       *retry.Executor
	patient    *retry.Executor
	logger     types.Logger
	metrics    types.MetricsCollector

	mu       sync.Mutex
	versions map[*ClusterHandle]ServerVersions
}

// New creates a Harness.
//
// Parameters:
//   - cfg: Configuration (nil uses DefaultConfig)
//   - opts: Options applied over cfg
//
// Returns:
//   - *Harness: The harness
//   - error: Configuration error
func New(cfg *Config, opts ...Option) (*Harness, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		copied := *cfg
		cfg = &copied
	}
	for _, opt := range opts {
		opt(cfg)
	}

	cfg.Logger = logging.OrNop(cfg.Logger)
	cfg.Metrics = metrics.OrNop(cfg.Metrics)
	if cfg.DriverFactory == nil {
		cfg.DriverFactory = v1.NewDriver
	}
	if cfg.Controller == nil && !cfg.External {
		cfg.Controller = fleet.NewContainerController(cfg.Root,
			fleet.WithBackend(fleet.Backend(cfg.Backend)),
			fleet.WithContainerLogger(cfg.Logger),
		)
	}

	// Sessions wrapped by the v2 adapter may be handed to the execute helpers.
	classifier := retry.Chain(v1.Classifier, v2.Classifier)
	rec, err := reconcile.New(cfg.Controller,
		reconcile.WithInstall(cfg.Install()),
		reconcile.WithProtocolVersion(cfg.EffectiveProtocolVersion()),
		reconcile.WithDefaultIPFormat(cfg.IPFormat),
		reconcile.WithSettleDelay(cfg.SettleDelay),
		reconcile.WithRemoval(cfg.RemoveAttempts, cfg.RemoveBackoff),
		reconcile.WithDriverFactory(cfg.DriverFactory),
		reconcile.WithClassifier(classifier),
		reconcile.WithLogger(cfg.Logger),
		reconcile.WithMetrics(cfg.Metrics),
		externalOption(cfg),
	)
	if err != nil {
		return nil, err
	}

	ropts := []retry.Option{
		retry.WithClassifier(classifier),
		retry.WithLogger(cfg.Logger),
		retry.WithMetrics(cfg.Metrics),
	}

	return &Harness{
		cfg:        cfg,
		reconciler: rec,
		classifier: classifier,
		fast:       retry.NewFast(ropts...),
		patient:    retry.NewPatient(ropts...),
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		versions:   make(map[*ClusterHandle]ServerVersions),
	}, nil
}

func externalOption(cfg *Config) reconcile.Option {
	if !cfg.External {
		return func(*reconcile.Config) {}
	}

	return reconcile.WithExternal(cfg.ExternalContactPoints...)
}

// Config returns the effective configuration.
func (h *Harness) Config() Config {
	return *h.cfg
}

// Reconciler returns the underlying reconciler.
func (h *Harness) Reconciler() *reconcile.Reconciler {
	return h.reconciler
}

// ProtocolVersion returns the native protocol version in use.
func (h *Harness) ProtocolVersion() int {
	return h.cfg.EffectiveProtocolVersion()
}

// Current returns the current cluster, or nil.
func (h *Harness) Current() *ClusterHandle {
	return h.reconciler.Current()
}

// UseCluster makes the named cluster with exactly topology current and running.
//
// Parameters:
//   - ctx: Context for provisioning
//   - name: Cluster name
//   - topology: Node count per datacenter
//   - opts: reconcile.WithoutStart, reconcile.WithIPFormat
//
// Returns:
//   - *ClusterHandle: The current cluster
//   - error: *types.ProvisionError and friends
func (h *Harness) UseCluster(ctx context.Context, name string, topology Topology, opts ...reconcile.EnsureOption) (*ClusterHandle, error) {
	return h.reconciler.Ensure(ctx, name, topology, opts...)
}

// UseSingleDC uses the three-node, single-datacenter cluster.
func (h *Harness) UseSingleDC(ctx context.Context, opts ...reconcile.EnsureOption) (*ClusterHandle, error) {
	return h.UseCluster(ctx, SingleDCClusterName, Topology{3}, opts...)
}

// UseSingleNode uses the one-node cluster.
func (h *Harness) UseSingleNode(ctx context.Context, opts ...reconcile.EnsureOption) (*ClusterHandle, error) {
	return h.UseCluster(ctx, SingleNodeClusterName, Topology{1}, opts...)
}

// UseMultiDC uses the multi-datacenter cluster with the given per-datacenter
// node counts.
func (h *Harness) UseMultiDC(ctx context.Context, dcs Topology, opts ...reconcile.EnsureOption) (*ClusterHandle, error) {
	return h.UseCluster(ctx, MultiDCClusterName, dcs, opts...)
}

// Teardown removes the current cluster. External clusters are left alone.
func (h *Harness) Teardown(ctx context.Context) error {
	return h.reconciler.Teardown(ctx, h.Current())
}

// TeardownPackage removes the current cluster and then every well-known
// cluster, tolerating clusters that do not exist. It is a no-op in external
// mode.
func (h *Harness) TeardownPackage(ctx context.Context) error {
	return h.reconciler.RemoveAll(ctx)
}

// SessionOptions controls Connect.
type SessionOptions struct {
	// Keyspace binds the session to a keyspace.
	Keyspace string

	// LocalDatacenter restricts the session to one datacenter's hosts.
	LocalDatacenter string

	// HeartbeatInterval overrides Config.HeartbeatInterval when non-zero.
	// Use a negative value to disable heartbeats.
	HeartbeatInterval time.Duration
}

// Connect opens a driver and one session against the current cluster, with
// every pool connected.
//
// Parameters:
//   - ctx: Context for connecting
//   - opts: Session options
//
// Returns:
//   - cql.Driver: The driver; the caller shuts it down
//   - cql.Session: The connected session
//   - error: types.ErrNotProvisioned or connection errors
func (h *Harness) Connect(ctx context.Context, opts SessionOptions) (cql.Driver, cql.Session, error) {
	cur := h.Current()
	if cur == nil {
		return nil, nil, types.ErrNotProvisioned
	}

	interval := h.cfg.HeartbeatInterval
	switch {
	case opts.HeartbeatInterval < 0:
		interval = 0
	case opts.HeartbeatInterval > 0:
		interval = opts.HeartbeatInterval
	}

	driver, err := h.cfg.DriverFactory(cql.DriverOptions{
		ContactPoints:         cur.ContactPoints(),
		ProtocolVersion:       h.ProtocolVersion(),
		LocalDatacenter:       opts.LocalDatacenter,
		IdleHeartbeatInterval: interval,
		Logger:                h.logger,
	})
	if err != nil {
		return nil, nil, err
	}

	session, err := driver.Connect(ctx, cql.ConnectOptions{Keyspace: opts.Keyspace, WaitForAllPools: true})
	if err != nil {
		driver.Shutdown()
		return nil, nil, err
	}

	return driver, session, nil
}

// ExecuteUntilPass runs a statement with the fast retry policy: up to 100
// attempts with the driver's default timeout.
func (h *Harness) ExecuteUntilPass(ctx context.Context, session cql.Session, stmt string, args ...any) (*cql.Result, error) {
	out, err := h.fast.Execute(ctx, session, cql.NewStatement(stmt, args...))
	if err != nil {
		return nil, err
	}

	return out.Result, nil
}

// ExecuteWithLongWaitRetry runs a statement with the patient retry policy:
// up to 10 attempts of 30 seconds each.
func (h *Harness) ExecuteWithLongWaitRetry(ctx context.Context, session cql.Session, stmt string, args ...any) (*cql.Result, error) {
	out, err := h.patient.Execute(ctx, session, cql.NewStatement(stmt, args...))
	if err != nil {
		return nil, err
	}

	return out.Result, nil
}

// DropKeyspaceAndShutdown drops keyspace and shuts the driver down. A
// failed drop is logged, never returned.
func (h *Harness) DropKeyspaceAndShutdown(ctx context.Context, driver cql.Driver, session cql.Session, keyspace string) {
	defer driver.Shutdown()

	if _, err := h.patient.Execute(ctx, session, cql.NewStatement(reconcile.DropKeyspaceCQL(keyspace))); err != nil {
		h.logger.Warn("error dropping keyspace", "keyspace", keyspace, "error", err.Error())
	}
}

// ServerVersions returns the CQL and release versions of the current
// cluster. The result is cached per cluster.
//
// Parameters:
//   - ctx: Context for the query
//   - session: Session connected to the current cluster
//
// Returns:
//   - ServerVersions: Parsed versions
//   - error: Query or parse error
func (h *Harness) ServerVersions(ctx context.Context, session cql.Session) (ServerVersions, error) {
	cur := h.Current()

	h.mu.Lock()
	if v, ok := h.versions[cur]; ok && cur != nil {
		h.mu.Unlock()
		return v, nil
	}
	h.mu.Unlock()

	v, err := QueryServerVersions(ctx, session)
	if err != nil {
		return ServerVersions{}, err
	}

	if cur != nil {
		h.mu.Lock()
		h.versions[cur] = v
		h.mu.Unlock()
	}

	return v, nil
}

// ServerVersions holds the versions reported by a node.
type ServerVersions struct {
	CQL     reconcile.Version
	Release reconcile.Version
}

const serverVersionsCQL = "SELECT cql_version, release_version FROM system.local"

// QueryServerVersions reads the CQL and release versions from system.local.
func QueryServerVersions(ctx context.Context, session cql.Session) (ServerVersions, error) {
	if session == nil {
		return ServerVersions{}, types.ErrNilSession
	}

	res, err := session.Execute(ctx, cql.NewStatement(serverVersionsCQL))
	if err != nil {
		return ServerVersions{}, err
	}
	if res.Empty() {
		return ServerVersions{}, errors.New("cqlharness: system.local returned no rows")
	}

	row := res.Rows[0]
	cqlVersion, err := reconcile.ParseVersion(fmt.Sprint(row["cql_version"]))
	if err != nil {
		return ServerVersions{}, err
	}
	release, err := reconcile.ParseVersion(fmt.Sprint(row["release_version"]))
	if err != nil {
		return ServerVersions{}, err
	}

	return ServerVersions{CQL: cqlVersion, Release: release}, nil
}
