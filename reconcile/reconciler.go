package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/cqlharness/fleet"
	"github.com/arloliu/cqlharness/types"
)

// Reconciler makes a named cluster with an exact topology exist and run,
// reusing the current cluster when it already matches.
//
// At most one cluster is current at a time. All methods are serialized.
type Reconciler struct {
	controller fleet.Controller
	cfg        Config
	boot       *KeyspaceBootstrapper

	mu      sync.Mutex
	current *ClusterHandle
}

// New creates a Reconciler.
//
// Parameters:
//   - controller: Fleet controller that loads and creates clusters (may be
//     nil only in external mode)
//   - opts: Configuration options
//
// Returns:
//   - *Reconciler: The reconciler
//   - error: When controller is nil outside external mode
func New(controller fleet.Controller, opts ...Option) (*Reconciler, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.normalize()

	if controller == nil && !cfg.External {
		return nil, errors.New("cqlharness: fleet controller cannot be nil")
	}

	return &Reconciler{
		controller: controller,
		cfg:        cfg,
		boot:       NewKeyspaceBootstrapper(cfg),
	}, nil
}

// Config returns the effective configuration.
func (r *Reconciler) Config() Config {
	return r.cfg
}

// Current returns the current cluster handle, or nil if none is held.
func (r *Reconciler) Current() *ClusterHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.current
}

// Ensure makes the cluster name with exactly topology the current cluster.
//
// When the current cluster already has that name and per-datacenter node
// counts it is returned unchanged: no restart and no data wipe. Otherwise
// the current cluster is stopped, the stored cluster of that name is reused
// after clearing its data, or a fresh cluster is created and populated. A
// started cluster gets the test keyspaces bootstrapped. If start or
// bootstrap fails, every node is killed and the cluster removed before the
// ProvisionError is returned.
//
// Parameters:
//   - ctx: Context for provisioning
//   - name: Cluster name
//   - topology: Node count per datacenter
//   - opts: Per-call options such as WithoutStart and WithIPFormat
//
// Returns:
//   - *ClusterHandle: The current cluster
//   - error: Invalid topology, *types.ProvisionError or controller errors
func (r *Reconciler) Ensure(ctx context.Context, name string, topology types.Topology, opts ...EnsureOption) (*ClusterHandle, error) {
	eo := ensureOptions{start: true, ipFormat: r.cfg.IPFormat}
	for _, opt := range opts {
		opt(&eo)
	}

	if err := topology.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cfg.External {
		if r.current == nil || !r.current.matches(name, topology) {
			r.current = newExternalHandle(name, topology, r.cfg.ExternalContactPoints)
		}

		return r.current, nil
	}

	if cur := r.current; cur != nil && cur.matches(name, topology) {
		r.cfg.Logger.Debug("using existing cluster, matching topology", "cluster", name, "topology", topology.String())
		r.cfg.Metrics.IncClusterReused(name)

		if !eo.start || cur.State() == types.StateRunning {
			return cur, nil
		}
		if err := r.start(ctx, cur, eo.ipFormat); err != nil {
			return nil, err
		}

		return cur, nil
	}

	started := time.Now()

	if cur := r.current; cur != nil {
		r.cfg.Logger.Debug("stopping existing cluster, topology mismatch", "cluster", cur.Name(), "topology", cur.Topology().String())
		if err := cur.cluster.Stop(ctx); err != nil {
			r.cfg.Logger.Warn("failed to stop existing cluster", "cluster", cur.Name(), "error", err.Error())
		}
		cur.setState(types.StateStopped)
		r.current = nil
	}

	cluster, err := r.loadOrCreate(ctx, name, topology, eo.ipFormat)
	if err != nil {
		r.cfg.Metrics.IncProvisionFailure(name)

		return nil, &types.ProvisionError{Cluster: name, Phase: "create", Cause: err}
	}

	h := newHandle(name, fleet.DatacenterTopology(cluster.Nodes()), cluster)
	r.current = h
	r.cfg.Metrics.IncClusterCreated(name)

	if eo.start {
		if err := r.start(ctx, h, eo.ipFormat); err != nil {
			return nil, err
		}
	}

	r.cfg.Metrics.ObserveProvisionDuration(name, time.Since(started).Seconds())

	return h, nil
}

// loadOrCreate returns the stored cluster of that name with its data
// cleared, or creates and populates a new one.
func (r *Reconciler) loadOrCreate(ctx context.Context, name string, topology types.Topology, ipFormat string) (fleet.Cluster, error) {
	cluster, err := r.controller.Load(ctx, name)
	if err == nil {
		err = r.reuse(ctx, cluster, topology)
		if err == nil {
			r.cfg.Logger.Debug("reusing stored cluster", "cluster", name)

			return cluster, nil
		}
	}

	r.cfg.Logger.Warn("creating new cluster", "cluster", name, "topology", topology.String(), "reason", err.Error())

	cluster, err = r.controller.Create(ctx, name, r.cfg.Install)
	if err != nil {
		return nil, err
	}
	if err := cluster.SetConfigurationOptions(ConfigurationOptions(r.cfg.Install.Version)); err != nil {
		return nil, err
	}
	if err := cluster.Populate(ctx, topology, ipFormat); err != nil {
		return nil, err
	}

	return cluster, nil
}

// reuse prepares a stored cluster for use. A stored cluster with a different
// topology is removed so the replacement does not inherit its nodes.
func (r *Reconciler) reuse(ctx context.Context, cluster fleet.Cluster, topology types.Topology) error {
	if got := fleet.DatacenterTopology(cluster.Nodes()); !got.Equal(topology) {
		if err := r.remove(ctx, cluster); err != nil {
			return err
		}

		return fmt.Errorf("stored topology %s differs from %s", got, topology)
	}
	if err := cluster.Clear(ctx); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	if err := cluster.SetInstall(r.cfg.Install); err != nil {
		return fmt.Errorf("set install: %w", err)
	}

	return nil
}

// start starts h and bootstraps its keyspaces. On failure the cluster is
// killed and removed, and h is no longer current.
func (r *Reconciler) start(ctx context.Context, h *ClusterHandle, ipFormat string) error {
	phase := "start"
	err := h.cluster.Start(ctx, fleet.StartOptions{
		WaitForBinaryProto: true,
		WaitOtherNotice:    true,
		JVMArgs:            JVMArgs(r.cfg.ProtocolVersion, r.cfg.JVMArgs...),
	})
	if err == nil {
		h.setState(types.StateRunning)
		h.setTopology(fleet.DatacenterTopology(h.cluster.Nodes()))

		phase = "bootstrap"
		err = r.boot.Bootstrap(ctx, h.ContactPoints(), ipFormat)
	}
	if err == nil {
		return nil
	}

	r.cfg.Logger.Error("failed to start cluster, removing it", "cluster", h.Name(), "phase", phase, "error", err.Error())
	r.cfg.Metrics.IncProvisionFailure(h.Name())

	perr := &types.ProvisionError{Cluster: h.Name(), Phase: phase, Cause: err}

	// cleanup must run even when ctx caused the failure
	cleanup := context.WithoutCancel(ctx)
	if kerr := h.cluster.ForceTerminate(cleanup); kerr != nil {
		r.cfg.Logger.Warn("failed to kill cluster nodes", "cluster", h.Name(), "error", kerr.Error())
	}
	if rerr := r.remove(cleanup, h.cluster); rerr != nil {
		perr.CleanupErr = rerr
	}

	h.setState(types.StateUnprovisioned)
	if r.current == h {
		r.current = nil
	}

	return perr
}

// remove deletes cluster, retrying OS-level and busy-resource failures with
// a fixed backoff. Any other failure is returned immediately.
func (r *Reconciler) remove(ctx context.Context, cluster fleet.Cluster) error {
	var last error
	for attempt := 1; attempt <= r.cfg.RemoveAttempts; attempt++ {
		err := cluster.Remove(ctx)
		if err == nil {
			return nil
		}
		if !fleet.IsRemovalRetryable(err) {
			return fmt.Errorf("remove cluster %s: %w", cluster.Name(), err)
		}

		last = err
		r.cfg.Logger.Warn("cluster removal failed, retrying", "cluster", cluster.Name(), "attempt", attempt, "error", err.Error())
		r.cfg.Metrics.IncRemovalRetry(cluster.Name())

		if attempt < r.cfg.RemoveAttempts {
			if serr := r.cfg.Sleep(ctx, r.cfg.RemoveBackoff); serr != nil {
				return errors.Join(last, serr)
			}
		}
	}

	return &types.RemovalError{Cluster: cluster.Name(), Attempts: r.cfg.RemoveAttempts, Last: last}
}

// Teardown removes the cluster behind h. External clusters are left alone.
//
// Parameters:
//   - ctx: Context for removal
//   - h: Handle returned by Ensure (nil is a no-op)
//
// Returns:
//   - error: *types.RemovalError when removal kept failing
func (r *Reconciler) Teardown(ctx context.Context, h *ClusterHandle) error {
	if h == nil || h.External() || r.cfg.External {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.remove(ctx, h.cluster); err != nil {
		return err
	}

	h.setState(types.StateUnprovisioned)
	if r.current == h {
		r.current = nil
	}

	return nil
}

// RemoveAll removes the current cluster and then every named cluster the
// controller still knows. Clusters that are not found are skipped with a
// warning; other failures are logged and returned together after every
// name has been tried.
//
// Parameters:
//   - ctx: Context for removal
//   - names: Cluster names to remove (empty uses types.WellKnownClusterNames)
//
// Returns:
//   - error: Joined removal errors, or nil
func (r *Reconciler) RemoveAll(ctx context.Context, names ...string) error {
	if r.cfg.External {
		return nil
	}
	if len(names) == 0 {
		names = types.WellKnownClusterNames()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	if cur := r.current; cur != nil {
		if err := r.remove(ctx, cur.cluster); err != nil {
			r.cfg.Logger.Error("failed to remove current cluster", "cluster", cur.Name(), "error", err.Error())
			errs = append(errs, err)
		} else {
			cur.setState(types.StateUnprovisioned)
			r.current = nil
		}
	}

	for _, name := range names {
		cluster, err := r.controller.Load(ctx, name)
		if err != nil {
			if errors.Is(err, types.ErrClusterNotFound) {
				r.cfg.Logger.Warn("did not find cluster", "cluster", name)
			} else {
				r.cfg.Logger.Error("failed to load cluster", "cluster", name, "error", err.Error())
				errs = append(errs, err)
			}

			continue
		}
		if err := r.remove(ctx, cluster); err != nil {
			r.cfg.Logger.Error("failed to remove cluster", "cluster", name, "error", err.Error())
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
