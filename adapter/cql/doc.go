// Package cql provides the driver abstraction used by the harness.
//
// The harness treats the client driver as a black box: it connects sessions,
// executes statements, enumerates connection holders for pool assertions and
// subscribes to per-host availability monitors.
//
// # Interfaces
//
//   - Driver: A driver instance owning sessions, hosts and connection holders
//   - Session: Executes statements and inspects schema metadata
//   - Host / HostMonitor / HostObserver: Host availability notifications
//   - ConnectionHolder / Connection: Pool state for quiescence checks
//   - RequestIDTracker: Optional request-id queue exposure
//   - ErrorClassifier: Maps driver errors onto types.FailureKind
//
// # Adapters
//
// Driver-specific adapters are provided in subpackages:
//
//   - [github.com/arloliu/cqlharness/adapter/cql/v1]: Adapter for gocql v1.x
//   - [github.com/arloliu/cqlharness/adapter/cql/v2]: Session adapter for the Apache driver v2
//
// # Usage
//
//	import v1 "github.com/arloliu/cqlharness/adapter/cql/v1"
//
//	driver, _ := v1.NewDriver(cql.DriverOptions{
//	    ContactPoints:         []string{"127.0.0.1"},
//	    ProtocolVersion:       4,
//	    IdleHeartbeatInterval: 2 * time.Second,
//	})
//	defer driver.Shutdown()
//
//	session, _ := driver.Connect(ctx, cql.ConnectOptions{WaitForAllPools: true})
//	_, err := session.Execute(ctx, cql.NewStatement("SELECT * FROM system.local"))
package cql
