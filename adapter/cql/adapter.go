// Package cql provides the driver abstraction the harness drives and observes.
package cql

import (
	"context"
	"sync"
	"time"

	"github.com/arloliu/cqlharness/types"
)

// Statement is a single CQL statement to execute.
type Statement struct {
	// CQL is the statement text with ? placeholders.
	CQL string

	// Args are the values bound to the placeholders.
	Args []any

	// Timeout bounds a single attempt. Zero uses the driver default.
	Timeout time.Duration
}

// NewStatement creates a statement with bound arguments.
func NewStatement(cql string, args ...any) Statement {
	return Statement{CQL: cql, Args: args}
}

// Result holds the rows returned by a statement.
//
// Schema statements return an empty Result.
type Result struct {
	// Rows are the returned rows keyed by column name.
	Rows []map[string]any
}

// Empty reports whether the result has no rows.
func (r *Result) Empty() bool {
	return r == nil || len(r.Rows) == 0
}

// ConnectOptions controls how a session is established.
type ConnectOptions struct {
	// Keyspace is the keyspace to bind the session to. Empty binds none.
	Keyspace string

	// WaitForAllPools blocks Connect until every matching host has an
	// open connection pool.
	WaitForAllPools bool
}

// DriverOptions configures a Driver instance.
type DriverOptions struct {
	// ContactPoints are the initial hosts to contact.
	ContactPoints []string

	// Port is the native protocol port. Zero uses 9042.
	Port int

	// ProtocolVersion is the native protocol version. Zero negotiates.
	ProtocolVersion int

	// LocalDatacenter enables datacenter-aware load balancing when set.
	// Only hosts in this datacenter are matched.
	LocalDatacenter string

	// IdleHeartbeatInterval is the idle heartbeat interval. Zero disables
	// heartbeats, so connections are never reported idle.
	IdleHeartbeatInterval time.Duration

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration

	// SchemaAgreementTimeout bounds the wait for schema agreement after DDL.
	SchemaAgreementTimeout time.Duration

	// NumConns is the number of connections per host.
	NumConns int

	// Logger receives driver-level events. Nil discards them.
	Logger types.Logger
}

// DriverFactory creates a Driver from options.
type DriverFactory func(opts DriverOptions) (Driver, error)

// Driver is a client driver instance: one cluster view, any number of sessions.
type Driver interface {
	// Connect opens a new session.
	//
	// Parameters:
	//   - ctx: Context bounding connection establishment
	//   - opts: Session options
	//
	// Returns:
	//   - Session: The connected session
	//   - error: Connection error
	Connect(ctx context.Context, opts ConnectOptions) (Session, error)

	// Shutdown closes every session and the control connection.
	Shutdown()

	// ConnectionHolders returns every connection holder: one per session per
	// matching host, plus the control connection holder.
	ConnectionHolders() []ConnectionHolder

	// Hosts returns the hosts known to the driver.
	Hosts() []Host

	// HeartbeatInterval returns the idle heartbeat interval (0 = disabled).
	HeartbeatInterval() time.Duration
}

// Session executes statements.
type Session interface {
	// Execute runs a statement once.
	//
	// Parameters:
	//   - ctx: Context for the attempt
	//   - stmt: The statement to execute
	//
	// Returns:
	//   - *Result: Returned rows (empty for schema statements)
	//   - error: The raw driver error
	Execute(ctx context.Context, stmt Statement) (*Result, error)

	// KeyspaceExists reports whether the keyspace is present in schema metadata.
	KeyspaceExists(ctx context.Context, keyspace string) (bool, error)

	// Close terminates the session.
	Close()
}

// Host is a node as seen by the driver.
type Host interface {
	// Address returns the host's connect address.
	Address() string

	// Datacenter returns the host's datacenter, if known.
	Datacenter() string

	// IsUp reports the driver's current view of the host.
	IsUp() bool

	// Monitor returns the host's state-change monitor.
	Monitor() HostMonitor
}

// HostObserver receives host availability notifications.
type HostObserver interface {
	// OnHostUp is called when the host is marked up.
	OnHostUp(address string)

	// OnHostDown is called when the host is marked down.
	OnHostDown(address string)
}

// HostMonitor fans out availability changes of one host to observers.
type HostMonitor interface {
	// Register adds an observer and returns a function that removes it.
	Register(observer HostObserver) (unregister func())
}

// ConnectionHolder owns the connections to one host (or the control connection).
type ConnectionHolder interface {
	// Address returns the host address of the holder.
	Address() string

	// IsControl reports whether this holder is the control connection holder.
	IsControl() bool

	// Connections returns the holder's connections.
	Connections() []Connection
}

// Connection is one pooled connection.
//
// The embedded Locker guards IsIdle and the request-id queue; callers must
// hold it while reading either.
type Connection interface {
	sync.Locker

	// IsIdle reports whether the connection has been idle for a heartbeat interval.
	IsIdle() bool

	// InFlight returns the number of outstanding requests.
	InFlight() int

	// LastActivity returns when the connection last sent or received a frame.
	LastActivity() time.Time

	// IsControl reports whether this is the control connection.
	IsControl() bool
}

// RequestIDTracker is implemented by connections that expose their free
// request-id (stream id) queue.
type RequestIDTracker interface {
	// RequestIDs returns the free request ids in queue order.
	RequestIDs() []int

	// HighestRequestID returns the highest request id ever allocated.
	HighestRequestID() int
}

// ErrorClassifier maps driver errors onto failure kinds.
type ErrorClassifier interface {
	// Classify returns the failure kind of err (FailureNone for nil).
	Classify(err error) types.FailureKind
}

// ErrorClassifierFunc adapts a function to ErrorClassifier.
type ErrorClassifierFunc func(err error) types.FailureKind

// Classify calls f(err).
func (f ErrorClassifierFunc) Classify(err error) types.FailureKind {
	return f(err)
}

// HostObserverFuncs adapts a pair of functions to HostObserver. Nil
// functions are skipped.
type HostObserverFuncs struct {
	Up   func(address string)
	Down func(address string)
}

// OnHostUp calls Up if set.
func (f HostObserverFuncs) OnHostUp(address string) {
	if f.Up != nil {
		f.Up(address)
	}
}

// OnHostDown calls Down if set.
func (f HostObserverFuncs) OnHostDown(address string) {
	if f.Down != nil {
		f.Down(address)
	}
}
