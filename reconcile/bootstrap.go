package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/arloliu/cqlharness/adapter/cql"
	"github.com/arloliu/cqlharness/retry"
	"github.com/arloliu/cqlharness/types"
)

// Keyspaces created by the bootstrap, with their replication factors, in
// creation order.
var bootstrapKeyspaces = []struct {
	name string
	rf   int
}{
	{"test3rf", 3},
	{"test2rf", 2},
	{"test1rf", 1},
}

// BootstrapKeyspaces returns the names of the keyspaces created on every
// freshly started cluster.
func BootstrapKeyspaces() []string {
	names := make([]string, 0, len(bootstrapKeyspaces))
	for _, ks := range bootstrapKeyspaces {
		names = append(names, ks.name)
	}

	return names
}

// CreateKeyspaceCQL returns the SimpleStrategy keyspace creation statement.
func CreateKeyspaceCQL(keyspace string, rf int) string {
	return fmt.Sprintf("CREATE KEYSPACE %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': '%d'}", keyspace, rf)
}

// DropKeyspaceCQL returns the keyspace drop statement.
func DropKeyspaceCQL(keyspace string) string {
	return "DROP KEYSPACE " + keyspace
}

const createBootstrapTableCQL = "CREATE TABLE test3rf.test (k int PRIMARY KEY, v int)"

// KeyspaceBootstrapper recreates the fixed test keyspaces on a freshly
// started cluster.
type KeyspaceBootstrapper struct {
	factory  cql.DriverFactory
	protocol int
	settle   SleepFunc
	delay    time.Duration
	fast     *retry.Executor
	patient  *retry.Executor
	logger   types.Logger
}

// NewKeyspaceBootstrapper creates a bootstrapper from the reconciler
// configuration. It uses cfg.DriverFactory, ProtocolVersion, SettleDelay,
// Sleep, Logger and Metrics.
func NewKeyspaceBootstrapper(cfg Config) *KeyspaceBootstrapper {
	cfg.normalize()
	opts := []retry.Option{
		retry.WithLogger(cfg.Logger),
		retry.WithMetrics(cfg.Metrics),
		retry.WithClassifier(cfg.Classifier),
	}

	return &KeyspaceBootstrapper{
		factory:  cfg.DriverFactory,
		protocol: cfg.ProtocolVersion,
		settle:   cfg.Sleep,
		delay:    cfg.SettleDelay,
		fast:     retry.NewFast(opts...),
		patient:  retry.NewPatient(opts...),
		logger:   cfg.Logger,
	}
}

// contactPoint picks the address the bootstrap session connects to.
func contactPoint(points []string, ipFormat string) string {
	if len(points) > 0 && points[0] != "" {
		return points[0]
	}
	if ipFormat != "" {
		return "::1"
	}

	return "127.0.0.1"
}

// Bootstrap waits for the cluster to settle, drops any leftover test
// keyspaces and creates them afresh. The driver is always shut down. A nil
// driver factory makes Bootstrap a no-op.
//
// Parameters:
//   - ctx: Context for the settle wait and statements
//   - points: Cluster contact points; the first one is used
//   - ipFormat: Node address format; selects ::1 when points is empty
//
// Returns:
//   - error: Connection, retry exhaustion or fatal statement errors
func (b *KeyspaceBootstrapper) Bootstrap(ctx context.Context, points []string, ipFormat string) error {
	if b.factory == nil {
		return nil
	}
	if err := b.settle(ctx, b.delay); err != nil {
		return err
	}

	addr := contactPoint(points, ipFormat)
	driver, err := b.factory(cql.DriverOptions{
		ContactPoints:   []string{addr},
		ProtocolVersion: b.protocol,
		Logger:          b.logger,
	})
	if err != nil {
		return fmt.Errorf("create bootstrap driver: %w", err)
	}
	defer driver.Shutdown()

	session, err := driver.Connect(ctx, cql.ConnectOptions{})
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer session.Close()

	b.logger.Debug("bootstrapping test keyspaces", "contact_point", addr)

	for _, ks := range bootstrapKeyspaces {
		exists, err := session.KeyspaceExists(ctx, ks.name)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		if _, err := b.fast.Execute(ctx, session, cql.NewStatement(DropKeyspaceCQL(ks.name))); err != nil {
			return err
		}
	}

	for _, ks := range bootstrapKeyspaces {
		if _, err := b.patient.Execute(ctx, session, cql.NewStatement(CreateKeyspaceCQL(ks.name, ks.rf))); err != nil {
			return err
		}
	}

	_, err = b.patient.Execute(ctx, session, cql.NewStatement(createBootstrapTableCQL))

	return err
}
