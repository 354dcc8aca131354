package fleet

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	dockernetwork "github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"
	"github.com/testcontainers/testcontainers-go"
	tcexec "github.com/testcontainers/testcontainers-go/exec"
	"github.com/testcontainers/testcontainers-go/modules/cassandra"
	"github.com/testcontainers/testcontainers-go/modules/scylladb"
	"github.com/testcontainers/testcontainers-go/network"

	"github.com/arloliu/cqlharness/internal/logging"
	"github.com/arloliu/cqlharness/types"
)

// Backend is the node software family.
type Backend string

const (
	// BackendCassandra runs Apache Cassandra nodes.
	BackendCassandra Backend = "cassandra"
	// BackendScylla runs ScyllaDB nodes. Only single-datacenter topologies
	// are supported.
	BackendScylla Backend = "scylla"
)

// Container labels.
const (
	labelCluster = "org.cqlharness.cluster"
	labelNode    = "org.cqlharness.node"
	labelID      = "org.cqlharness.id"
)

// ContainerConfig configures a ContainerController.
type ContainerConfig struct {
	// Root is the directory where cluster definitions are stored.
	Root string

	// Backend selects the node software.
	// Default: BackendCassandra
	Backend Backend

	// MaxHeapSize and HeapNewSize bound each Cassandra node's JVM heap.
	// Default: "512M" and "128M"
	MaxHeapSize string
	HeapNewSize string

	// StartTimeout bounds each node's startup wait.
	// Default: 5 minutes
	StartTimeout time.Duration

	// GossipTimeout bounds the wait for all nodes to see each other.
	// Default: 3 minutes
	GossipTimeout time.Duration

	// StopTimeout is the graceful stop timeout per node.
	// Default: 30 seconds
	StopTimeout time.Duration

	// Logger receives lifecycle messages.
	Logger types.Logger

	// Publisher, if set, receives host events for pause and resume.
	Publisher EventPublisher
}

// DefaultContainerConfig returns a ContainerConfig with sensible defaults.
func DefaultContainerConfig(root string) ContainerConfig {
	return ContainerConfig{
		Root:          root,
		Backend:       BackendCassandra,
		MaxHeapSize:   "512M",
		HeapNewSize:   "128M",
		StartTimeout:  5 * time.Minute,
		GossipTimeout: 3 * time.Minute,
		StopTimeout:   30 * time.Second,
	}
}

// ContainerOption configures a ContainerController.
type ContainerOption func(*ContainerConfig)

// WithBackend selects the node software.
func WithBackend(b Backend) ContainerOption {
	return func(c *ContainerConfig) {
		c.Backend = b
	}
}

// WithHeap sets the JVM heap sizes of Cassandra nodes.
func WithHeap(maxHeap, newSize string) ContainerOption {
	return func(c *ContainerConfig) {
		c.MaxHeapSize = maxHeap
		c.HeapNewSize = newSize
	}
}

// WithStartTimeout sets the per-node startup timeout.
func WithStartTimeout(d time.Duration) ContainerOption {
	return func(c *ContainerConfig) {
		c.StartTimeout = d
	}
}

// WithGossipTimeout sets the gossip convergence timeout.
func WithGossipTimeout(d time.Duration) ContainerOption {
	return func(c *ContainerConfig) {
		c.GossipTimeout = d
	}
}

// WithContainerLogger sets the lifecycle logger.
func WithContainerLogger(l types.Logger) ContainerOption {
	return func(c *ContainerConfig) {
		c.Logger = l
	}
}

// WithEventPublisher sets the publisher notified on pause and resume.
func WithEventPublisher(p EventPublisher) ContainerOption {
	return func(c *ContainerConfig) {
		c.Publisher = p
	}
}

// ContainerController provisions clusters as Docker containers on a
// per-cluster network. Definitions are persisted under Root, so a cluster
// created by one process can be loaded by another.
type ContainerController struct {
	config ContainerConfig
	store  *Store
	logger types.Logger

	mu     sync.Mutex
	docker *testcontainers.DockerClient
}

var _ Controller = (*ContainerController)(nil)

// NewContainerController creates a controller storing definitions under root.
//
// Parameters:
//   - root: Provisioning root directory
//   - opts: Optional configuration
//
// Returns:
//   - *ContainerController: The controller; Docker is contacted lazily
func NewContainerController(root string, opts ...ContainerOption) *ContainerController {
	cfg := DefaultContainerConfig(root)
	for _, opt := range opts {
		opt(&cfg)
	}

	return &ContainerController{
		config: cfg,
		store:  NewStore(root),
		logger: logging.OrNop(cfg.Logger),
	}
}

// Config returns the controller configuration.
func (c *ContainerController) Config() ContainerConfig {
	return c.config
}

// Store returns the definition store.
func (c *ContainerController) Store() *Store {
	return c.store
}

// Load returns the stored cluster called name.
func (c *ContainerController) Load(_ context.Context, name string) (Cluster, error) {
	def, err := c.store.Load(name)
	if err != nil {
		return nil, err
	}

	return &containerCluster{ctl: c, def: def, containers: make(map[string]testcontainers.Container)}, nil
}

// Create stores a new empty cluster definition, replacing any previous one.
func (c *ContainerController) Create(_ context.Context, name string, install InstallSpec) (Cluster, error) {
	if install.InstallDir != "" {
		c.logger.Warn("install dir is not used by the container controller", "cluster", name, "install_dir", install.InstallDir)
	}

	def := NewDefinition(name, c.config.Backend, install)
	if err := c.store.Save(def); err != nil {
		return nil, err
	}

	return &containerCluster{ctl: c, def: def, containers: make(map[string]testcontainers.Container)}, nil
}

func (c *ContainerController) client(ctx context.Context) (*testcontainers.DockerClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.docker != nil {
		return c.docker, nil
	}
	cli, err := testcontainers.NewDockerClientWithOpts(ctx)
	if err != nil {
		return nil, fmt.Errorf("cqlharness/fleet: failed to connect to docker: %w", err)
	}
	c.docker = cli

	return cli, nil
}

// containerCluster is a Cluster backed by one container per node.
type containerCluster struct {
	ctl *ContainerController

	mu         sync.Mutex
	def        *Definition
	containers map[string]testcontainers.Container
}

var _ Cluster = (*containerCluster)(nil)

func (cc *containerCluster) Name() string {
	return cc.def.Name
}

func (cc *containerCluster) Populate(_ context.Context, topology types.Topology, ipFormat string) error {
	if err := topology.Validate(); err != nil {
		return err
	}
	if cc.def.Backend == BackendScylla && len(topology) > 1 {
		return fmt.Errorf("cqlharness/fleet: scylla backend supports one datacenter, got %s", topology)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()

	cc.def.Nodes = PlanNodes(topology)
	cc.def.IPFormat = ipFormat

	return cc.ctl.store.Save(cc.def)
}

func (cc *containerCluster) SetConfigurationOptions(opts map[string]any) error {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	for k, v := range opts {
		cc.def.Config[k] = v
	}

	return cc.ctl.store.Save(cc.def)
}

func (cc *containerCluster) SetInstall(install InstallSpec) error {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	cc.def.Install = install

	return cc.ctl.store.Save(cc.def)
}

func (cc *containerCluster) Start(ctx context.Context, opts StartOptions) error {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	if len(cc.def.Nodes) == 0 {
		return fmt.Errorf("cqlharness/fleet: cluster %s has no nodes", cc.def.Name)
	}

	netName, err := cc.ensureNetwork(ctx)
	if err != nil {
		return err
	}

	seeds := seedNames(cc.def.Name, cc.def.Nodes)
	for i, node := range cc.def.Nodes {
		startCtx, cancel := context.WithTimeout(ctx, cc.ctl.config.StartTimeout)
		ctr, err := cc.runNode(startCtx, netName, node, seeds, opts)
		cancel()
		if err != nil {
			return fmt.Errorf("cqlharness/fleet: failed to start %s/%s: %w", cc.def.Name, node.Name, err)
		}
		cc.containers[node.Name] = ctr

		ip, err := ctr.ContainerIP(ctx)
		if err != nil {
			return fmt.Errorf("cqlharness/fleet: failed to get address of %s/%s: %w", cc.def.Name, node.Name, err)
		}
		cc.def.Nodes[i].Address = ip
		cc.ctl.logger.Info("node started", "cluster", cc.def.Name, "node", node.Name, "address", ip)
	}

	if err := cc.ctl.store.Save(cc.def); err != nil {
		return err
	}

	if opts.WaitOtherNotice && len(cc.def.Nodes) > 1 {
		return cc.waitGossip(ctx)
	}

	return nil
}

// runNode creates (or reuses by name) and starts the container of node.
func (cc *containerCluster) runNode(ctx context.Context, netName string, node NodeInfo, seeds []string, opts StartOptions) (testcontainers.Container, error) {
	name := containerName(cc.def.Name, node.Name)
	common := []testcontainers.ContainerCustomizer{
		testcontainers.WithReuseByName(name),
		network.WithNetworkName([]string{name}, netName),
		testcontainers.WithLabels(map[string]string{
			labelCluster: cc.def.Name,
			labelNode:    node.Name,
			labelID:      cc.def.ID.String(),
		}),
	}

	if cc.def.Backend == BackendScylla {
		args := []string{
			"--smp=1",
			"--memory=512M",
			"--developer-mode=1",
			"--overprovisioned=1",
			"--reactor-backend=epoll",
			"--seeds=" + strings.Join(seeds, ","),
		}
		ctr, err := scylladb.Run(ctx, cc.def.Install.image(BackendScylla), append(common, scylladb.WithCustomCommands(args...))...)
		if err != nil {
			return nil, err
		}

		return ctr, nil
	}

	env := nodeEnv(cc.def.Name, node, seeds, opts.JVMArgs)
	env["MAX_HEAP_SIZE"] = cc.ctl.config.MaxHeapSize
	env["HEAP_NEWSIZE"] = cc.ctl.config.HeapNewSize

	customizers := append(common, testcontainers.WithEnv(env))
	if script := configScript(cc.def.Config); script != "" {
		customizers = append(customizers,
			testcontainers.WithEntrypoint("bash", "-c", script+"exec docker-entrypoint.sh cassandra -f"),
		)
	}

	ctr, err := cassandra.Run(ctx, cc.def.Install.image(BackendCassandra), customizers...)
	if err != nil {
		return nil, err
	}

	return ctr, nil
}

// ensureNetwork creates the cluster network once and records its name.
func (cc *containerCluster) ensureNetwork(ctx context.Context) (string, error) {
	cli, err := cc.ctl.client(ctx)
	if err != nil {
		return "", err
	}

	name := "cqlharness-" + cc.def.Name
	if _, err := cli.NetworkInspect(ctx, name, dockernetwork.InspectOptions{}); err == nil {
		cc.def.Network = name
		return name, nil
	}

	ipv6 := strings.Contains(cc.def.IPFormat, ":")
	_, err = cli.NetworkCreate(ctx, name, dockernetwork.CreateOptions{
		Driver:     "bridge",
		EnableIPv6: &ipv6,
		Labels:     map[string]string{labelCluster: cc.def.Name},
	})
	if err != nil && !errdefs.IsConflict(err) {
		return "", fmt.Errorf("cqlharness/fleet: failed to create network %s: %w", name, err)
	}
	cc.def.Network = name

	return name, nil
}

// waitGossip polls nodetool on the first node until every node is Up/Normal.
func (cc *containerCluster) waitGossip(ctx context.Context) error {
	first, ok := cc.containers[cc.def.Nodes[0].Name]
	if !ok {
		return fmt.Errorf("cqlharness/fleet: no running container for %s", cc.def.Nodes[0].Name)
	}

	ctx, cancel := context.WithTimeout(ctx, cc.ctl.config.GossipTimeout)
	defer cancel()

	want := len(cc.def.Nodes)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		code, out, err := first.Exec(ctx, []string{"nodetool", "status"}, tcexec.Multiplexed())
		if err == nil && code == 0 {
			up, perr := countUpNormal(out)
			if perr == nil && up >= want {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("cqlharness/fleet: nodes of %s did not see each other: %w", cc.def.Name, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (cc *containerCluster) Stop(ctx context.Context) error {
	cli, err := cc.ctl.client(ctx)
	if err != nil {
		return err
	}

	timeout := int(cc.ctl.config.StopTimeout.Seconds())
	var errs []error
	for _, name := range cc.containerNames() {
		err := cli.ContainerStop(ctx, name, container.StopOptions{Timeout: &timeout})
		if err != nil && !errdefs.IsNotFound(err) {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Clear removes the node containers and with them all node data. The
// definition and network are kept.
func (cc *containerCluster) Clear(ctx context.Context) error {
	if err := cc.removeContainers(ctx); err != nil {
		return err
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()

	for i := range cc.def.Nodes {
		cc.def.Nodes[i].Address = ""
	}
	cc.containers = make(map[string]testcontainers.Container)

	return cc.ctl.store.Save(cc.def)
}

func (cc *containerCluster) Remove(ctx context.Context) error {
	if err := cc.removeContainers(ctx); err != nil {
		return err
	}

	cli, err := cc.ctl.client(ctx)
	if err != nil {
		return err
	}
	if cc.def.Network != "" {
		err := cli.NetworkRemove(ctx, cc.def.Network)
		if err != nil && !errdefs.IsNotFound(err) {
			if errdefs.IsConflict(err) {
				return fmt.Errorf("%w: network %s: %w", ErrRemovalBusy, cc.def.Network, err)
			}

			return fmt.Errorf("cqlharness/fleet: failed to remove network %s: %w", cc.def.Network, err)
		}
	}

	return cc.ctl.store.Delete(cc.def.Name)
}

func (cc *containerCluster) removeContainers(ctx context.Context) error {
	cli, err := cc.ctl.client(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, name := range cc.containerNames() {
		err := cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true, RemoveVolumes: true})
		switch {
		case err == nil, errdefs.IsNotFound(err):
		case errdefs.IsConflict(err):
			errs = append(errs, fmt.Errorf("%w: container %s: %w", ErrRemovalBusy, name, err))
		default:
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (cc *containerCluster) ForceTerminate(ctx context.Context) error {
	cli, err := cc.ctl.client(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, name := range cc.containerNames() {
		err := cli.ContainerKill(ctx, name, "KILL")
		if err != nil && !errdefs.IsNotFound(err) && !errdefs.IsConflict(err) {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (cc *containerCluster) Pause(ctx context.Context, node string) error {
	addr, err := cc.signalNode(ctx, node, true)
	if err != nil {
		return err
	}
	cc.publish(ctx, addr, types.HostDown)

	return nil
}

func (cc *containerCluster) Resume(ctx context.Context, node string) error {
	addr, err := cc.signalNode(ctx, node, false)
	if err != nil {
		return err
	}
	cc.publish(ctx, addr, types.HostUp)

	return nil
}

func (cc *containerCluster) signalNode(ctx context.Context, node string, pause bool) (string, error) {
	info, ok := cc.node(node)
	if !ok {
		return "", fmt.Errorf("cqlharness/fleet: cluster %s has no node %s", cc.def.Name, node)
	}
	cli, err := cc.ctl.client(ctx)
	if err != nil {
		return "", err
	}

	name := containerName(cc.def.Name, node)
	if pause {
		err = cli.ContainerPause(ctx, name)
	} else {
		err = cli.ContainerUnpause(ctx, name)
	}
	if err != nil {
		return "", fmt.Errorf("cqlharness/fleet: failed to change state of %s: %w", name, err)
	}

	return info.Address, nil
}

func (cc *containerCluster) publish(ctx context.Context, address string, state types.HostState) {
	p := cc.ctl.config.Publisher
	if p == nil || address == "" {
		return
	}
	if err := p.Publish(ctx, types.HostEvent{Address: address, State: state, Timestamp: time.Now()}); err != nil {
		cc.ctl.logger.Warn("failed to publish host event", "host", address, "state", state.String(), "error", err.Error())
	}
}

func (cc *containerCluster) NodePID(ctx context.Context, node string) (int, error) {
	if _, ok := cc.node(node); !ok {
		return 0, fmt.Errorf("cqlharness/fleet: cluster %s has no node %s", cc.def.Name, node)
	}
	cli, err := cc.ctl.client(ctx)
	if err != nil {
		return 0, err
	}

	info, err := cli.ContainerInspect(ctx, containerName(cc.def.Name, node))
	if err != nil {
		return 0, fmt.Errorf("cqlharness/fleet: failed to inspect %s: %w", node, err)
	}
	if info.State == nil || !info.State.Running {
		return 0, fmt.Errorf("cqlharness/fleet: node %s is not running", node)
	}

	return info.State.Pid, nil
}

func (cc *containerCluster) Nodes() []NodeInfo {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	out := make([]NodeInfo, len(cc.def.Nodes))
	copy(out, cc.def.Nodes)

	return out
}

func (cc *containerCluster) ContactPoints() []string {
	var out []string
	for _, n := range cc.Nodes() {
		if n.Address != "" {
			out = append(out, n.Address)
		}
	}

	return out
}

func (cc *containerCluster) node(name string) (NodeInfo, bool) {
	for _, n := range cc.Nodes() {
		if n.Name == name {
			return n, true
		}
	}

	return NodeInfo{}, false
}

func (cc *containerCluster) containerNames() []string {
	nodes := cc.Nodes()
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = containerName(cc.def.Name, n.Name)
	}

	return out
}

// image returns the container image for backend.
func (i InstallSpec) image(backend Backend) string {
	if i.Image != "" {
		return i.Image
	}
	version := i.Version
	if version == "" {
		version = "latest"
	}
	if backend == BackendScylla {
		return "scylladb/scylla:" + version
	}

	return "cassandra:" + version
}

func containerName(cluster, node string) string {
	return "cqlharness-" + cluster + "-" + node
}

// seedNames returns the container name of the first node of every datacenter.
func seedNames(cluster string, nodes []NodeInfo) []string {
	seen := make(map[string]bool)
	var seeds []string
	for _, n := range nodes {
		if seen[n.Datacenter] {
			continue
		}
		seen[n.Datacenter] = true
		seeds = append(seeds, containerName(cluster, n.Name))
	}

	return seeds
}

// nodeEnv returns the Cassandra image environment for node.
func nodeEnv(cluster string, node NodeInfo, seeds []string, jvmArgs []string) map[string]string {
	env := map[string]string{
		"CASSANDRA_CLUSTER_NAME":    cluster,
		"CASSANDRA_DC":              node.Datacenter,
		"CASSANDRA_RACK":            "rack1",
		"CASSANDRA_SEEDS":           strings.Join(seeds, ","),
		"CASSANDRA_ENDPOINT_SNITCH": "GossipingPropertyFileSnitch",
	}
	if len(jvmArgs) > 0 {
		env["JVM_EXTRA_OPTS"] = strings.Join(jvmArgs, " ")
	}

	return env
}

// configScript renders shell commands that set options in cassandra.yaml.
// Keys are applied in sorted order.
func configScript(opts map[string]any) string {
	if len(opts) == 0 {
		return ""
	}

	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	const file = "/etc/cassandra/cassandra.yaml"
	var b strings.Builder
	for _, k := range keys {
		v := fmt.Sprint(opts[k])
		fmt.Fprintf(&b, "if grep -qE '^#?\\s*%s:' %s; then sed -i -E 's|^#?\\s*%s:.*|%s: %s|' %s; else echo '%s: %s' >> %s; fi; ",
			k, file, k, k, v, file, k, v, file)
	}

	return b.String()
}

// countUpNormal counts "UN" lines in nodetool status output.
func countUpNormal(r io.Reader) (int, error) {
	n := 0
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if strings.HasPrefix(strings.TrimSpace(sc.Text()), "UN ") {
			n++
		}
	}

	return n, sc.Err()
}
