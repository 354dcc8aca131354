// Package pool checks connection pool health after traffic.
//
// A [Monitor] walks every connection holder of a driver (one per session per
// matching host, plus the control connection) and inspects each connection
// under its lock.
//
// # Quiescence
//
// [Monitor.Quiescent] passes when no connection has requests in flight, every
// allocated request id is back in the free queue exactly once, and idle flags
// agree with the heartbeat interval. An interval of zero disables heartbeats;
// connections then never become idle, and an idle connection is a violation.
//
//	mon, _ := pool.New(driver)
//	if err := mon.WaitQuiescent(ctx, 0); err != nil {
//	    t.Fatal(err)
//	}
//
// # Heartbeat Rotation
//
// A heartbeat on an idle connection takes the first free request id and
// returns it to the back of the queue. After two heartbeat intervals and a
// half without traffic, the queue is rotated by exactly one position:
//
//	before := mon.Snapshot()
//	time.Sleep(2*interval + interval/2)
//	require.NoError(t, mon.AssertRotated(before))
//	require.NoError(t, mon.AssertIdle())
package pool
