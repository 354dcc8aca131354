// Package events provides host availability fan-out and waiting.
//
// # Monitors and Registry
//
// A [Monitor] holds the observers of one host. Drivers (or any other source)
// call NotifyUp / NotifyDown; every registered observer is called outside
// the monitor lock. A [Registry] maps host addresses to monitors.
//
// # Waiter
//
// [Waiter] is the test-facing primitive. It subscribes to a host monitor and
// latches the first up and first down notification:
//
//	w, _ := events.NewWaiter(host)
//	defer w.Close()
//
//	_ = fleet.Pause(ctx, node)
//	if !w.WaitForDown(30 * time.Second) {
//	    t.Fatal("host never went down")
//	}
//
// A zero timeout waits at most [DefaultWaitTimeout]; there is no unbounded wait.
//
// # NATS
//
// [NATSPublisher] stores host events in a NATS KV bucket and [NATSSource]
// watches the bucket and dispatches into a Registry, falling back to
// polling if the watch fails. Values are MessagePack maps:
//
//	{"address": "127.0.0.2", "state": "down", "timestamp": <time>, "cluster": "test_cluster"}
package events
