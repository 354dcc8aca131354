// Package testutil provides test utilities and mock implementations for cqlharness testing.
//
// # Mock Implementations
//
//   - [MockSession]: cql.Session returning scripted errors, with keyspace tracking
//   - [MockHost]: cql.Host backed by an events.Monitor; SetDown/SetUp notify observers
//   - [MockDriver]: cql.Driver whose connections run a heartbeat goroutine and
//     keep a free request-id queue, for pool health tests
//   - [MockDriverFactory]: cql.DriverFactory handing out MockDrivers
//   - [MockLogger]: types.Logger recording entries with their fields
//   - [MockMetrics]: types.MetricsCollector recording counters
//   - [NewFailure]: an error carrying a types.FailureKind
//
// # Usage
//
//	host := testutil.NewMockHost("127.0.0.1", "dc1")
//	driver := testutil.NewMockDriver(testutil.MockDriverConfig{
//	    Hosts:             []*testutil.MockHost{host},
//	    HeartbeatInterval: 200 * time.Millisecond,
//	})
//	defer driver.Shutdown()
//
//	session, _ := driver.Connect(ctx, cql.ConnectOptions{WaitForAllPools: true})
//
// # Integration Test Helpers
//
//   - StartEmbeddedNATS: Starts an embedded NATS server with JetStream
//   - StartCQLNode: Starts a Cassandra or ScyllaDB test container (requires Docker)
package testutil
