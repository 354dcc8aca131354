// Package fleet provisions and controls named database clusters.
//
// A [Controller] loads and creates clusters by name; a [Cluster] populates
// nodes for a [types.Topology], starts, stops, clears and removes them, and
// can pause or resume single nodes to simulate failures.
//
// # Controllers
//
//   - [ContainerController]: One Docker container per node on a per-cluster
//     network, using testcontainers. Definitions are persisted as YAML under a
//     root directory so later processes can reuse the cluster.
//   - [Local]: In-memory controller with failure injection, for unit tests.
//
// # Container Usage
//
//	ctl := fleet.NewContainerController(os.ExpandEnv("$HOME/.cqlharness"),
//	    fleet.WithBackend(fleet.BackendCassandra),
//	)
//
//	c, _ := ctl.Create(ctx, "test_cluster", fleet.InstallSpec{Version: "4.1"})
//	_ = c.Populate(ctx, types.Topology{3}, "")
//	_ = c.SetConfigurationOptions(map[string]any{fleet.OptStartNativeTransport: true})
//	_ = c.Start(ctx, fleet.StartOptions{WaitForBinaryProto: true, WaitOtherNotice: true})
//
// Node addresses are container addresses on the cluster network and are
// directly reachable from the host on Linux.
//
// # Removal
//
// Remove may fail while containers or files are still in use. Such errors
// satisfy [IsRemovalRetryable] and callers are expected to retry.
package fleet
