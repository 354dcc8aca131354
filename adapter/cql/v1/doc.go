// Package v1 provides a gocql v1.x (github.com/gocql/gocql) implementation
// of the harness driver abstraction.
//
// # Usage
//
//	driver, err := v1.New(cql.DriverOptions{
//	    ContactPoints:         []string{"127.0.0.1"},
//	    ProtocolVersion:       4,
//	    IdleHeartbeatInterval: 2 * time.Second,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer driver.Shutdown()
//
//	session, err := driver.Connect(ctx, cql.ConnectOptions{WaitForAllPools: true})
//
// NewDriver has the cql.DriverFactory signature and is the factory the
// harness uses by default.
//
// # Connection Holders
//
// gocql keeps its pools private. The adapter rebuilds them from what the
// driver does expose: the load-balancing policy learns about hosts coming
// and going, and a StreamObserver sees every request start and finish. Each
// session holds one holder per local, up host; the driver adds one control
// holder. A connection is idle once a full IdleHeartbeatInterval passes with
// no stream activity.
//
// Request ids (stream ids) are not observable through gocql, so connections
// from this adapter do not implement cql.RequestIDTracker.
//
// # Host Events
//
// Host up/down changes are published to an events.Registry. Share one with
// WithRegistry to combine driver events with events from other sources.
//
// # Error Classification
//
// ClassifyError maps protocol error codes (write/read timeout and failure,
// configuration error, already exists) and gocql response timeouts onto
// types.FailureKind. Use Classifier with retry.WithClassifier.
package v1
