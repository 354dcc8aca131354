// Package v2 adapts sessions of the Apache Cassandra Go driver
// (github.com/apache/cassandra-gocql-driver/v2) to the harness.
//
// Only cql.Session is provided: statements run through the retry executors
// and keyspace bootstrap, and ClassifyError understands the driver's
// protocol errors. Provisioning, host events and pool checks use the gocql
// v1 adapter.
//
// # Usage
//
//	cluster := gocql.NewCluster(handle.ContactPoints()...)
//	cluster.ProtoVersion = h.ProtocolVersion()
//	gs, err := cluster.CreateSession()
//	if err != nil {
//	    return err
//	}
//	defer gs.Close()
//
//	session := v2.WrapSession(gs)
//	_, err = h.ExecuteWithLongWaitRetry(ctx, session, "CREATE KEYSPACE ...")
package v2
