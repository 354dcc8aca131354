// Package cqlharness runs integration tests against real multi-node CQL
// clusters.
//
// It keeps a named cluster with an exact per-datacenter topology running
// across tests, executes schema statements with bounded retry on transient
// server failures, and provides assertions about a driver's connection
// pool and host up/down events.
//
// # Key Features
//
//   - Idempotent Provisioning: A matching cluster is reused as is; anything
//     else is stopped and reloaded or created (package reconcile)
//   - Retrying Execution: Timeouts are retried, "already exists" counts as
//     success (package retry)
//   - Pool Assertions: Quiescence, idle heartbeats and request-id rotation
//     (package pool)
//   - Host Events: One-shot up/down waiters fed by the driver or NATS
//     (package events)
//
// # Basic Usage
//
//	func TestMain(m *testing.M) {
//	    cfg, err := cqlharness.LoadConfigFromEnv()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    h, err := cqlharness.New(cfg)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    ctx := context.Background()
//	    if _, err := h.UseSingleDC(ctx); err != nil {
//	        log.Fatal(err)
//	    }
//	    code := m.Run()
//	    _ = h.TeardownPackage(ctx)
//	    os.Exit(code)
//	}
//
// Tests then open a keyspace fixture:
//
//	f, err := h.NewKeyspaceFixture(ctx, t.Name(), cqlharness.WithClassTable())
//	require.NoError(t, err)
//	defer f.Teardown(ctx)
//
// # Configuration
//
// LoadConfigFromEnv reads USE_CASS_EXTERNAL, CASSANDRA_VERSION,
// CASSANDRA_DIR, PROTOCOL_VERSION and CQLHARNESS_ROOT, after an optional
// YAML file named by CQLHARNESS_CONFIG. In external mode nothing is
// provisioned or removed and sessions connect to the configured contact
// points.
//
// # Error Handling
//
// Errors are typed and support errors.Is/As:
//
//   - *types.AttemptsExhaustedError: A statement kept failing transiently
//   - *types.ProvisionError: A cluster failed to start; it was killed and removed
//   - *types.RemovalError: A cluster could not be removed
//   - *types.PoolStateError: A pool check found violations
//
// Statement errors that are neither transient nor already-satisfied are
// returned exactly as the driver produced them.
package cqlharness
