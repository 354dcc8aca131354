// Package retry executes statements with bounded retry on transient failures.
//
// Every attempt is classified by a [cql.ErrorClassifier] into a
// [types.FailureKind], and the [Policy] maps the kind to a [Decision]:
//
//	kind                               decision
//	---------------------------------  ---------
//	none                               success
//	configuration_exists, already_exists  satisfied (success, no rows)
//	operation/read/write timeout,      retry (immediately, no backoff)
//	read/write failure
//	anything else                      fail (error returned unchanged)
//
// Two variants are provided:
//
//	fast := retry.NewFast()       // 100 attempts, driver default timeout
//	patient := retry.NewPatient() // 10 attempts, 30s per attempt
//
//	out, err := patient.Execute(ctx, session, cql.NewStatement(
//	    "CREATE KEYSPACE ks WITH replication = {'class': 'SimpleStrategy', 'replication_factor': '1'}"))
//	if out.AlreadySatisfied {
//	    // keyspace existed
//	}
//
// When the bound is exhausted the error is a *types.AttemptsExhaustedError
// wrapping the last transient error.
package retry
