package reconcile

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/arloliu/cqlharness/fleet"
	"github.com/arloliu/cqlharness/types"
)

// ClusterHandle identifies a provisioned cluster. It is owned and mutated
// only by the Reconciler that returned it; callers read it to connect.
type ClusterHandle struct {
	id       uuid.UUID
	name     string
	cluster  fleet.Cluster
	external []string

	mu       sync.RWMutex
	topology types.Topology
	state    types.ClusterState
}

func newHandle(name string, topology types.Topology, cluster fleet.Cluster) *ClusterHandle {
	return &ClusterHandle{
		id:       uuid.New(),
		name:     name,
		cluster:  cluster,
		topology: topology.Clone(),
		state:    types.StateStopped,
	}
}

func newExternalHandle(name string, topology types.Topology, contactPoints []string) *ClusterHandle {
	return &ClusterHandle{
		id:       uuid.New(),
		name:     name,
		external: append([]string(nil), contactPoints...),
		topology: topology.Clone(),
		state:    types.StateRunning,
	}
}

// ID returns the handle's generation id. A reused handle keeps its id.
func (h *ClusterHandle) ID() uuid.UUID {
	return h.id
}

// Name returns the cluster name.
func (h *ClusterHandle) Name() string {
	return h.name
}

// Topology returns the per-datacenter node counts.
func (h *ClusterHandle) Topology() types.Topology {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.topology.Clone()
}

// State returns the provisioning state.
func (h *ClusterHandle) State() types.ClusterState {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.state
}

// External reports whether the cluster is managed outside the harness.
func (h *ClusterHandle) External() bool {
	return h.cluster == nil
}

// Cluster returns the underlying fleet cluster, or nil for external clusters.
func (h *ClusterHandle) Cluster() fleet.Cluster {
	return h.cluster
}

// ContactPoints returns the node addresses to connect to.
func (h *ClusterHandle) ContactPoints() []string {
	if h.cluster == nil {
		return append([]string(nil), h.external...)
	}

	return h.cluster.ContactPoints()
}

// String implements fmt.Stringer.
func (h *ClusterHandle) String() string {
	return fmt.Sprintf("%s%s(%s)", h.name, h.Topology(), h.State())
}

// matches reports whether the handle is name with exactly topology, counting
// the cluster's nodes per datacenter.
func (h *ClusterHandle) matches(name string, topology types.Topology) bool {
	if h.name != name {
		return false
	}
	if h.cluster == nil {
		return h.Topology().Equal(topology)
	}

	return fleet.DatacenterTopology(h.cluster.Nodes()).Equal(topology)
}

func (h *ClusterHandle) setState(state types.ClusterState) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.state = state
}

func (h *ClusterHandle) setTopology(topology types.Topology) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.topology = topology.Clone()
}
