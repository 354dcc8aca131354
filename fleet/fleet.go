package fleet

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"syscall"

	"github.com/arloliu/cqlharness/types"
)

// ErrRemovalBusy marks a removal that failed because a resource was still in
// use. Removal of a busy cluster is retried.
var ErrRemovalBusy = errors.New("cqlharness/fleet: cluster resources busy")

// Well-known configuration option keys.
const (
	OptStartNativeTransport                = "start_native_transport"
	OptEnableUserDefinedFunctions          = "enable_user_defined_functions"
	OptEnableScriptedUserDefinedFunctions  = "enable_scripted_user_defined_functions"
	CustomPayloadMirroringQueryHandlerFlag = "-Dcassandra.custom_query_handler_class=org.apache.cassandra.cql3.CustomPayloadMirroringQueryHandler"
)

// InstallSpec selects the database software a cluster runs.
type InstallSpec struct {
	// Version is the release version, such as "3.11.4".
	Version string `yaml:"version"`

	// InstallDir is a local installation directory. Controllers that cannot
	// use one ignore it.
	InstallDir string `yaml:"install_dir,omitempty"`

	// Image overrides the container image derived from Version.
	Image string `yaml:"image,omitempty"`
}

// StartOptions controls Cluster.Start.
type StartOptions struct {
	// WaitForBinaryProto waits until every node accepts native protocol connections.
	WaitForBinaryProto bool

	// WaitOtherNotice waits until every node sees every other node up via gossip.
	WaitOtherNotice bool

	// JVMArgs are extra JVM arguments for every node.
	JVMArgs []string
}

// NodeInfo describes one node of a cluster.
type NodeInfo struct {
	// Name is the node name, such as "node1".
	Name string `yaml:"name"`

	// Datacenter is the node's datacenter, such as "dc1".
	Datacenter string `yaml:"datacenter"`

	// Address is the node's native protocol address once started.
	Address string `yaml:"address,omitempty"`
}

// Cluster is a named, provisioned set of nodes.
type Cluster interface {
	// Name returns the cluster name.
	Name() string

	// Populate creates nodes for topology. ipFormat, when set, selects the
	// address family and format of node addresses (e.g. "::%d" for IPv6).
	Populate(ctx context.Context, topology types.Topology, ipFormat string) error

	// SetConfigurationOptions merges options into the node configuration.
	SetConfigurationOptions(opts map[string]any) error

	// SetInstall changes the installed software.
	SetInstall(install InstallSpec) error

	// Start starts every node.
	Start(ctx context.Context, opts StartOptions) error

	// Stop stops every node, keeping data and configuration.
	Stop(ctx context.Context) error

	// Clear wipes node data, keeping configuration.
	Clear(ctx context.Context) error

	// Remove deletes the cluster and its nodes.
	Remove(ctx context.Context) error

	// ForceTerminate kills every node process immediately.
	ForceTerminate(ctx context.Context) error

	// Pause suspends one node's process.
	Pause(ctx context.Context, node string) error

	// Resume resumes a paused node.
	Resume(ctx context.Context, node string) error

	// NodePID returns the OS process id of a running node.
	NodePID(ctx context.Context, node string) (int, error)

	// Nodes returns the nodes in datacenter order.
	Nodes() []NodeInfo

	// ContactPoints returns the node addresses usable as driver contact points.
	ContactPoints() []string
}

// Controller loads and creates clusters by name.
type Controller interface {
	// Load returns an existing cluster or an error wrapping types.ErrClusterNotFound.
	Load(ctx context.Context, name string) (Cluster, error)

	// Create creates an empty cluster with install.
	Create(ctx context.Context, name string, install InstallSpec) (Cluster, error)
}

// EventPublisher receives host transitions forced by the fleet (pause/resume).
type EventPublisher interface {
	Publish(ctx context.Context, ev types.HostEvent) error
}

// IsRemovalRetryable reports whether a removal error is an OS-level or
// resource-busy condition worth retrying.
func IsRemovalRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRemovalBusy) {
		return true
	}

	var pathErr *fs.PathError
	var linkErr *os.LinkError
	var sysErr *os.SyscallError
	var errno syscall.Errno

	return errors.As(err, &pathErr) ||
		errors.As(err, &linkErr) ||
		errors.As(err, &sysErr) ||
		errors.As(err, &errno)
}

// DatacenterTopology groups nodes by datacenter, in first-seen order, and
// returns the per-datacenter node counts.
func DatacenterTopology(nodes []NodeInfo) types.Topology {
	var order []string
	counts := make(map[string]int)
	for _, n := range nodes {
		if _, ok := counts[n.Datacenter]; !ok {
			order = append(order, n.Datacenter)
		}
		counts[n.Datacenter]++
	}

	topo := make(types.Topology, len(order))
	for i, dc := range order {
		topo[i] = counts[dc]
	}

	return topo
}

// PlanNodes returns the node layout of topology: nodes are numbered
// across datacenters (node1..nodeN) and datacenters are dc1..dcK.
func PlanNodes(topology types.Topology) []NodeInfo {
	nodes := make([]NodeInfo, 0, topology.Total())
	n := 1
	for dc, count := range topology {
		for i := 0; i < count; i++ {
			nodes = append(nodes, NodeInfo{
				Name:       "node" + itoa(n),
				Datacenter: "dc" + itoa(dc+1),
			})
			n++
		}
	}

	return nodes
}
