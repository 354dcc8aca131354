package fleet

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/arloliu/cqlharness/types"
)

// Local is an in-memory Controller for tests and dry runs.
//
// Nodes never run; Local only records lifecycle transitions. Start and
// removal failures can be injected per cluster name, which makes it the
// controller of choice for unit tests of reconciliation logic.
type Local struct {
	mu        sync.Mutex
	clusters  map[string]*LocalCluster
	startErrs map[string]error
	removeErr map[string][]error
	calls     []string
	publisher EventPublisher
	nextPID   int
}

var _ Controller = (*Local)(nil)

// LocalOption configures a Local controller.
type LocalOption func(*Local)

// WithLocalPublisher sets the publisher notified on pause and resume.
func WithLocalPublisher(p EventPublisher) LocalOption {
	return func(l *Local) {
		l.publisher = p
	}
}

// NewLocal creates an empty in-memory controller.
//
// Returns:
//   - *Local: A new local controller
func NewLocal(opts ...LocalOption) *Local {
	l := &Local{
		clusters:  make(map[string]*LocalCluster),
		startErrs: make(map[string]error),
		removeErr: make(map[string][]error),
		nextPID:   1000,
	}
	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Load returns the cluster called name.
func (l *Local) Load(_ context.Context, name string) (Cluster, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.record(name, "load")
	c, ok := l.clusters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrClusterNotFound, name)
	}

	return c, nil
}

// Create registers a new empty cluster, replacing any previous one.
func (l *Local) Create(_ context.Context, name string, install InstallSpec) (Cluster, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.record(name, "create")
	c := &LocalCluster{
		owner:   l,
		name:    name,
		install: install,
		config:  make(map[string]any),
		paused:  make(map[string]bool),
	}
	l.clusters[name] = c

	return c, nil
}

// FailNextStart makes the next Start of cluster name return err.
func (l *Local) FailNextStart(name string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.startErrs[name] = err
}

// FailRemove makes the next len(errs) removals of cluster name return errs
// in order.
func (l *Local) FailRemove(name string, errs ...error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.removeErr[name] = append(l.removeErr[name], errs...)
}

// Cluster returns the registered cluster called name.
func (l *Local) Cluster(name string) (*LocalCluster, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.clusters[name]

	return c, ok
}

// Names returns the registered cluster names in sorted order.
func (l *Local) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	names := make([]string, 0, len(l.clusters))
	for name := range l.clusters {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Calls returns the recorded operations as "cluster:operation" strings.
func (l *Local) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, len(l.calls))
	copy(out, l.calls)

	return out
}

// ResetCalls clears the recorded operations.
func (l *Local) ResetCalls() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls = nil
}

// record must be called with l.mu held.
func (l *Local) record(cluster, op string) {
	l.calls = append(l.calls, cluster+":"+op)
}

func (l *Local) do(cluster, op string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.record(cluster, op)
}

// LocalCluster is a Cluster held by a Local controller.
type LocalCluster struct {
	owner *Local

	mu       sync.Mutex
	name     string
	install  InstallSpec
	config   map[string]any
	ipFormat string
	nodes    []NodeInfo
	running  bool
	jvmArgs  []string
	paused   map[string]bool
	pids     map[string]int
}

var _ Cluster = (*LocalCluster)(nil)

func (c *LocalCluster) Name() string {
	return c.name
}

func (c *LocalCluster) Populate(_ context.Context, topology types.Topology, ipFormat string) error {
	if err := topology.Validate(); err != nil {
		return err
	}
	c.owner.do(c.name, "populate")

	c.mu.Lock()
	defer c.mu.Unlock()

	c.ipFormat = ipFormat
	c.nodes = PlanNodes(topology)
	for i := range c.nodes {
		c.nodes[i].Address = localAddress(ipFormat, i+1)
	}

	return nil
}

func (c *LocalCluster) SetConfigurationOptions(opts map[string]any) error {
	c.owner.do(c.name, "configure")

	c.mu.Lock()
	defer c.mu.Unlock()

	maps.Copy(c.config, opts)

	return nil
}

func (c *LocalCluster) SetInstall(install InstallSpec) error {
	c.owner.do(c.name, "install")

	c.mu.Lock()
	defer c.mu.Unlock()

	c.install = install

	return nil
}

func (c *LocalCluster) Start(_ context.Context, opts StartOptions) error {
	c.owner.mu.Lock()
	c.owner.record(c.name, "start")
	err := c.owner.startErrs[c.name]
	delete(c.owner.startErrs, c.name)
	c.owner.mu.Unlock()

	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.nodes) == 0 {
		return fmt.Errorf("cqlharness/fleet: cluster %s has no nodes", c.name)
	}

	c.running = true
	c.jvmArgs = append([]string(nil), opts.JVMArgs...)
	c.pids = make(map[string]int, len(c.nodes))
	for _, n := range c.nodes {
		c.pids[n.Name] = c.owner.allocPID()
	}

	return nil
}

func (l *Local) allocPID() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextPID++

	return l.nextPID
}

func (c *LocalCluster) Stop(_ context.Context) error {
	c.owner.do(c.name, "stop")
	c.halt()

	return nil
}

func (c *LocalCluster) Clear(_ context.Context) error {
	c.owner.do(c.name, "clear")
	c.halt()

	return nil
}

func (c *LocalCluster) Remove(_ context.Context) error {
	c.owner.mu.Lock()
	c.owner.record(c.name, "remove")
	if errs := c.owner.removeErr[c.name]; len(errs) > 0 {
		err := errs[0]
		c.owner.removeErr[c.name] = errs[1:]
		c.owner.mu.Unlock()

		return err
	}
	if c.owner.clusters[c.name] == c {
		delete(c.owner.clusters, c.name)
	}
	c.owner.mu.Unlock()

	c.halt()

	return nil
}

func (c *LocalCluster) ForceTerminate(_ context.Context) error {
	c.owner.do(c.name, "terminate")
	c.halt()

	return nil
}

func (c *LocalCluster) halt() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.running = false
	c.pids = nil
	clear(c.paused)
}

func (c *LocalCluster) Pause(ctx context.Context, node string) error {
	return c.setPaused(ctx, node, true)
}

func (c *LocalCluster) Resume(ctx context.Context, node string) error {
	return c.setPaused(ctx, node, false)
}

func (c *LocalCluster) setPaused(ctx context.Context, node string, paused bool) error {
	op := "resume"
	state := types.HostUp
	if paused {
		op = "pause"
		state = types.HostDown
	}
	c.owner.do(c.name, op+" "+node)

	c.mu.Lock()
	info, ok := c.findNode(node)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("cqlharness/fleet: cluster %s has no node %s", c.name, node)
	}
	if !c.running {
		c.mu.Unlock()
		return fmt.Errorf("cqlharness/fleet: cluster %s is not running", c.name)
	}
	c.paused[node] = paused
	c.mu.Unlock()

	if p := c.owner.publisher; p != nil {
		return p.Publish(ctx, types.HostEvent{Address: info.Address, State: state, Timestamp: time.Now()})
	}

	return nil
}

func (c *LocalCluster) NodePID(_ context.Context, node string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.findNode(node); !ok {
		return 0, fmt.Errorf("cqlharness/fleet: cluster %s has no node %s", c.name, node)
	}
	pid, ok := c.pids[node]
	if !ok {
		return 0, fmt.Errorf("cqlharness/fleet: node %s is not running", node)
	}

	return pid, nil
}

func (c *LocalCluster) Nodes() []NodeInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]NodeInfo, len(c.nodes))
	copy(out, c.nodes)

	return out
}

func (c *LocalCluster) ContactPoints() []string {
	nodes := c.Nodes()
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Address)
	}

	return out
}

// Running reports whether the cluster has been started and not stopped since.
func (c *LocalCluster) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}

// Paused reports whether node is paused.
func (c *LocalCluster) Paused(node string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.paused[node]
}

// Install returns the installed software.
func (c *LocalCluster) Install() InstallSpec {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.install
}

// ConfigurationOptions returns a copy of the node configuration options.
func (c *LocalCluster) ConfigurationOptions() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	return maps.Clone(c.config)
}

// JVMArgs returns the JVM arguments of the last Start.
func (c *LocalCluster) JVMArgs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.jvmArgs...)
}

// IPFormat returns the address format passed to Populate.
func (c *LocalCluster) IPFormat() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ipFormat
}

func (c *LocalCluster) findNode(name string) (NodeInfo, bool) {
	for _, n := range c.nodes {
		if n.Name == name {
			return n, true
		}
	}

	return NodeInfo{}, false
}

// localAddress renders the address of the n-th node. An empty format yields
// 127.0.0.n.
func localAddress(format string, n int) string {
	if format == "" {
		format = "127.0.0.%d"
	}

	return fmt.Sprintf(format, n)
}
