package cqlharness

import (
	"context"
	"fmt"
	"strings"

	"github.com/arloliu/cqlharness/adapter/cql"
	"github.com/arloliu/cqlharness/reconcile"
)

// maxKeyspaceNameLen is the server limit on keyspace and table names.
const maxKeyspaceNameLen = 48

// KeyspaceName derives a keyspace or table name from a test name: lowercased,
// with every character outside [a-z0-9_] replaced by '_' and truncated to
// 48 characters.
//
// Example:
//
//	cqlharness.KeyspaceName("TestSchemaMetadata/UDTs") // "testschemametadata_udts"
func KeyspaceName(testName string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(testName) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}

	name := b.String()
	if len(name) > maxKeyspaceNameLen {
		name = name[:maxKeyspaceNameLen]
	}

	return name
}

// FixtureOption configures a KeyspaceFixture.
type FixtureOption func(*fixtureOptions)

type fixtureOptions struct {
	rf         int
	create     bool
	classTable bool
	session    SessionOptions
}

// WithReplicationFactor sets the keyspace replication factor.
//
// Default: 3
func WithReplicationFactor(rf int) FixtureOption {
	return func(o *fixtureOptions) {
		if rf > 0 {
			o.rf = rf
		}
	}
}

// WithoutKeyspace connects without creating the keyspace.
func WithoutKeyspace() FixtureOption {
	return func(o *fixtureOptions) {
		o.create = false
	}
}

// WithClassTable also creates the table <ks>.<ks> (k int PRIMARY KEY, v int).
func WithClassTable() FixtureOption {
	return func(o *fixtureOptions) {
		o.classTable = true
	}
}

// WithSessionOptions sets the options of the fixture's session.
func WithSessionOptions(opts SessionOptions) FixtureOption {
	return func(o *fixtureOptions) {
		o.session = opts
	}
}

// KeyspaceFixture is a driver, a session and a keyspace dedicated to one
// group of tests.
type KeyspaceFixture struct {
	h        *Harness
	driver   cql.Driver
	session  cql.Session
	keyspace string
	rf       int
}

// NewKeyspaceFixture connects to the current cluster and creates a
// SimpleStrategy keyspace named after the test.
//
// Parameters:
//   - ctx: Context for connecting and schema statements
//   - testName: Test name, usually t.Name(); see KeyspaceName
//   - opts: Fixture options
//
// Returns:
//   - *KeyspaceFixture: The fixture; call Teardown when done
//   - error: Connection or schema error (the driver is shut down)
func (h *Harness) NewKeyspaceFixture(ctx context.Context, testName string, opts ...FixtureOption) (*KeyspaceFixture, error) {
	o := fixtureOptions{rf: 3, create: true}
	for _, opt := range opts {
		opt(&o)
	}

	driver, session, err := h.Connect(ctx, o.session)
	if err != nil {
		return nil, err
	}

	f := &KeyspaceFixture{
		h:        h,
		driver:   driver,
		session:  session,
		keyspace: KeyspaceName(testName),
		rf:       o.rf,
	}

	if o.create {
		if err := f.CreateKeyspace(ctx, o.rf); err != nil {
			driver.Shutdown()
			return nil, err
		}
	}
	if o.classTable {
		if _, err := h.ExecuteUntilPass(ctx, session, f.tableDDL(f.keyspace)); err != nil {
			driver.Shutdown()
			return nil, err
		}
	}

	return f, nil
}

// Keyspace returns the keyspace name.
func (f *KeyspaceFixture) Keyspace() string { return f.keyspace }

// ReplicationFactor returns the keyspace replication factor.
func (f *KeyspaceFixture) ReplicationFactor() int { return f.rf }

// Session returns the fixture's session.
func (f *KeyspaceFixture) Session() cql.Session { return f.session }

// Driver returns the fixture's driver.
func (f *KeyspaceFixture) Driver() cql.Driver { return f.driver }

// CreateKeyspace creates the fixture keyspace with the patient retry policy.
func (f *KeyspaceFixture) CreateKeyspace(ctx context.Context, rf int) error {
	_, err := f.h.ExecuteWithLongWaitRetry(ctx, f.session, reconcile.CreateKeyspaceCQL(f.keyspace, rf))
	if err == nil {
		f.rf = rf
	}

	return err
}

// CreateFunctionTable creates <ks>.<name> (k int PRIMARY KEY, v int) for one
// test function. name is passed through KeyspaceName.
func (f *KeyspaceFixture) CreateFunctionTable(ctx context.Context, name string) (string, error) {
	table := KeyspaceName(name)
	_, err := f.h.ExecuteUntilPass(ctx, f.session, f.tableDDL(table))

	return table, err
}

// DropFunctionTable drops a table created by CreateFunctionTable.
func (f *KeyspaceFixture) DropFunctionTable(ctx context.Context, name string) error {
	_, err := f.h.ExecuteUntilPass(ctx, f.session, fmt.Sprintf("DROP TABLE %s.%s", f.keyspace, KeyspaceName(name)))

	return err
}

// Teardown drops the keyspace and shuts the driver down.
func (f *KeyspaceFixture) Teardown(ctx context.Context) {
	f.h.DropKeyspaceAndShutdown(ctx, f.driver, f.session, f.keyspace)
}

func (f *KeyspaceFixture) tableDDL(table string) string {
	return fmt.Sprintf("CREATE TABLE %s.%s (k int PRIMARY KEY, v int)", f.keyspace, table)
}
