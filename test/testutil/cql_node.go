package testutil

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/cassandra"
	"github.com/testcontainers/testcontainers-go/modules/scylladb"
)

// CQLNodeType identifies the database backend of a test node.
type CQLNodeType int

const (
	// CQLNodeTypeNone indicates no node is running.
	CQLNodeTypeNone CQLNodeType = iota
	// CQLNodeTypeScyllaDB indicates ScyllaDB is being used.
	CQLNodeTypeScyllaDB
	// CQLNodeTypeCassandra indicates Cassandra is being used.
	CQLNodeTypeCassandra
)

// String returns the string representation of the node type.
func (t CQLNodeType) String() string {
	switch t {
	case CQLNodeTypeScyllaDB:
		return "ScyllaDB"
	case CQLNodeTypeCassandra:
		return "Cassandra"
	case CQLNodeTypeNone:
		return "None"
	}

	return "Unknown"
}

// CQLNode is a single-node CQL database container for adapter tests.
type CQLNode struct {
	Type CQLNodeType

	// Address and Port are the published native protocol endpoint.
	Address string
	Port    int

	scyllaContainer    *scylladb.Container
	cassandraContainer *cassandra.CassandraContainer
}

// Terminate terminates the container.
func (n *CQLNode) Terminate(ctx context.Context) error {
	switch n.Type {
	case CQLNodeTypeScyllaDB:
		if n.scyllaContainer != nil {
			return n.scyllaContainer.Terminate(ctx)
		}
	case CQLNodeTypeCassandra:
		if n.cassandraContainer != nil {
			return n.cassandraContainer.Terminate(ctx)
		}
	case CQLNodeTypeNone:
	}

	return nil
}

// CQLNodeOptions configures the test node container.
type CQLNodeOptions struct {
	// PreferScyllaDB attempts to use ScyllaDB first, falls back to Cassandra.
	// Default: false
	PreferScyllaDB bool
	// ScyllaDBImage is the ScyllaDB image. Default: "scylladb/scylla:6.2"
	ScyllaDBImage string
	// CassandraImage is the Cassandra image. Default: "cassandra:4.1"
	CassandraImage string
	// ReadyTimeout bounds the wait for the native protocol. Default: 60s
	ReadyTimeout time.Duration
}

// DefaultCQLNodeOptions returns default options.
func DefaultCQLNodeOptions() CQLNodeOptions {
	return CQLNodeOptions{
		ScyllaDBImage:  "scylladb/scylla:6.2",
		CassandraImage: "cassandra:4.1",
		ReadyTimeout:   60 * time.Second,
	}
}

// IsAIOAvailable checks if the system has available AIO slots for ScyllaDB.
func IsAIOAvailable() bool {
	aioNrData, err := os.ReadFile("/proc/sys/fs/aio-nr")
	if err != nil {
		return false
	}

	aioMaxNrData, err := os.ReadFile("/proc/sys/fs/aio-max-nr")
	if err != nil {
		return false
	}

	aioNr, _ := strconv.ParseInt(strings.TrimSpace(string(aioNrData)), 10, 64)
	aioMaxNr, _ := strconv.ParseInt(strings.TrimSpace(string(aioMaxNrData)), 10, 64)

	return aioNr < aioMaxNr
}

// StartCQLNode starts a single CQL node and waits until it serves queries.
//
// This function is designed for use in TestMain where *testing.T is not available.
// Caller is responsible for calling node.Terminate(ctx) for cleanup.
//
// Parameters:
//   - ctx: Context for container operations
//   - opts: Configuration options
//
// Returns:
//   - *CQLNode: Node with its published endpoint
//   - error: Error if the node fails to start
func StartCQLNode(ctx context.Context, opts CQLNodeOptions) (*CQLNode, error) {
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 60 * time.Second
	}

	if opts.PreferScyllaDB && IsAIOAvailable() {
		node, err := startScyllaDBNode(ctx, opts)
		if err == nil {
			return node, nil
		}
		fmt.Printf("ScyllaDB failed: %v, falling back to Cassandra...\n", err)
	}

	return startCassandraNode(ctx, opts)
}

func startScyllaDBNode(ctx context.Context, opts CQLNodeOptions) (*CQLNode, error) {
	container, err := scylladb.Run(ctx, opts.ScyllaDBImage,
		scylladb.WithShardAwareness(),
		scylladb.WithCustomCommands(
			"--memory=512M",
			"--smp=1",
			"--developer-mode=1",
			"--overprovisioned=1",
			"--reactor-backend=epoll",
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start ScyllaDB container: %w", err)
	}

	host, err := container.NonShardAwareConnectionHost(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection host: %w", err)
	}

	node, err := newCQLNode(CQLNodeTypeScyllaDB, host, opts.ReadyTimeout)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	node.scyllaContainer = container

	return node, nil
}

func startCassandraNode(ctx context.Context, opts CQLNodeOptions) (*CQLNode, error) {
	container, err := cassandra.Run(ctx, opts.CassandraImage,
		testcontainers.WithEnv(map[string]string{
			"HEAP_NEWSIZE":     "128M",
			"MAX_HEAP_SIZE":    "512M",
			"CASSANDRA_SNITCH": "SimpleSnitch",
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start Cassandra container: %w", err)
	}

	host, err := container.ConnectionHost(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection host: %w", err)
	}

	node, err := newCQLNode(CQLNodeTypeCassandra, host, opts.ReadyTimeout)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	node.cassandraContainer = container

	return node, nil
}

func newCQLNode(kind CQLNodeType, hostPort string, timeout time.Duration) (*CQLNode, error) {
	address, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		return nil, fmt.Errorf("invalid connection host %q: %w", hostPort, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid connection port %q: %w", portStr, err)
	}

	if err := waitForCQL(hostPort, timeout); err != nil {
		return nil, err
	}

	return &CQLNode{Type: kind, Address: address, Port: port}, nil
}

// waitForCQL connects with gocql until the node answers a system query.
func waitForCQL(hostPort string, timeout time.Duration) error {
	cluster := gocql.NewCluster(hostPort)
	cluster.Timeout = timeout
	cluster.ConnectTimeout = timeout
	cluster.Keyspace = "system"

	var err error
	for i := 0; i < 10; i++ {
		var session *gocql.Session
		session, err = cluster.CreateSession()
		if err == nil {
			var version string
			err = session.Query("SELECT release_version FROM system.local").Scan(&version)
			session.Close()
			if err == nil {
				return nil
			}
		}
		time.Sleep(3 * time.Second)
	}

	return fmt.Errorf("failed to query %s after retries: %w", hostPort, err)
}
