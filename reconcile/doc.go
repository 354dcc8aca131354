// Package reconcile keeps a named test cluster with an exact per-datacenter
// topology running.
//
// A Reconciler holds at most one current cluster. Ensure is idempotent: when
// the current cluster already matches it is returned untouched. Anything
// else stops the current cluster and reuses or creates the requested one:
//
//	r, _ := reconcile.New(controller,
//	    reconcile.WithInstall(fleet.InstallSpec{Version: "3.11.4"}),
//	    reconcile.WithDriverFactory(v1.NewDriver),
//	)
//
//	h, err := r.Ensure(ctx, "test_cluster", types.Topology{3})
//	if err != nil {
//	    var perr *types.ProvisionError
//	    if errors.As(err, &perr) {
//	        // nodes were killed and the cluster removed
//	    }
//	}
//	defer r.Teardown(ctx, h)
//
// Every started cluster has the keyspaces test1rf, test2rf and test3rf
// (replication factors 1 to 3) and the table test3rf.test recreated.
//
// Removal retries resource-busy failures up to 100 times, one second
// apart. In external mode nothing is provisioned or removed.
package reconcile
