package v1

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gocql/gocql"

	"github.com/arloliu/cqlharness/adapter/cql"
	"github.com/arloliu/cqlharness/events"
	"github.com/arloliu/cqlharness/internal/logging"
	"github.com/arloliu/cqlharness/types"
)

// Driver is a cql.Driver backed by gocql.
//
// Every Connect creates a gocql session sharing the driver's options. Host
// state changes seen by any session are fanned out through the driver's
// events.Registry, so EventWaiters can subscribe to Hosts()[i].Monitor().
type Driver struct {
	opts     cql.DriverOptions
	registry *events.Registry
	logger   types.Logger
	now      func() time.Time
	tune     func(*gocql.ClusterConfig)

	mu       sync.Mutex
	sessions []*Session
	hosts    map[string]*host
	control  *holder
	shutdown bool
}

var _ cql.Driver = (*Driver)(nil)

// Option configures a Driver.
type Option func(*Driver)

// WithRegistry shares a host monitor registry, for example one also fed by
// an events.NATSSource.
func WithRegistry(r *events.Registry) Option {
	return func(d *Driver) {
		if r != nil {
			d.registry = r
		}
	}
}

// WithClock sets the clock used for idle computation.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		if now != nil {
			d.now = now
		}
	}
}

// WithClusterConfig adjusts every gocql.ClusterConfig before a session is
// created.
func WithClusterConfig(fn func(*gocql.ClusterConfig)) Option {
	return func(d *Driver) {
		d.tune = fn
	}
}

// New creates a gocql-backed driver. No connection is made until Connect.
//
// Parameters:
//   - opts: Driver options (at least one contact point)
//   - dopts: Adapter options
//
// Returns:
//   - *Driver: The driver
//   - error: When no contact point is given
func New(opts cql.DriverOptions, dopts ...Option) (*Driver, error) {
	if len(opts.ContactPoints) == 0 {
		return nil, fmt.Errorf("cqlharness/v1: at least one contact point is required")
	}

	d := &Driver{
		opts:   opts,
		logger: logging.OrNop(opts.Logger),
		now:    time.Now,
		hosts:  make(map[string]*host),
	}
	for _, opt := range dopts {
		opt(d)
	}
	if d.registry == nil {
		d.registry = events.NewRegistry(events.WithLogger(d.logger))
	}
	d.control = &holder{
		address: opts.ContactPoints[0],
		control: true,
		conn:    newObservedConn(true, opts.IdleHeartbeatInterval, d.now),
	}

	return d, nil
}

// NewDriver is New as a cql.DriverFactory.
func NewDriver(opts cql.DriverOptions) (cql.Driver, error) {
	return New(opts)
}

// Registry returns the host monitor registry.
func (d *Driver) Registry() *events.Registry {
	return d.registry
}

// Connect creates a gocql session. gocql connects every host's pool before
// returning, so WaitForAllPools is always satisfied.
func (d *Driver) Connect(ctx context.Context, opts cql.ConnectOptions) (cql.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	if d.shutdown {
		d.mu.Unlock()
		return nil, types.ErrDriverClosed
	}
	d.mu.Unlock()

	s := &Session{
		driver:  d,
		holders: make(map[string]*holder),
	}

	cfg := NewClusterConfig(d.opts)
	cfg.Keyspace = opts.Keyspace
	cfg.StreamObserver = s
	cfg.PoolConfig.HostSelectionPolicy = &notifyingPolicy{
		HostSelectionPolicy: basePolicy(d.opts.LocalDatacenter),
		session:             s,
	}
	if d.tune != nil {
		d.tune(cfg)
	}

	gs, err := cfg.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect to %v: %w", d.opts.ContactPoints, err)
	}
	s.session = gs

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.shutdown {
		gs.Close()
		return nil, types.ErrDriverClosed
	}
	d.sessions = append(d.sessions, s)

	d.logger.Debug("session connected", "contact_points", d.opts.ContactPoints, "keyspace", opts.Keyspace)

	return s, nil
}

func basePolicy(localDC string) gocql.HostSelectionPolicy {
	if localDC != "" {
		return gocql.DCAwareRoundRobinPolicy(localDC)
	}

	return gocql.RoundRobinHostPolicy()
}

// Shutdown closes every session.
func (d *Driver) Shutdown() {
	d.mu.Lock()
	if d.shutdown {
		d.mu.Unlock()
		return
	}
	d.shutdown = true
	sessions := d.sessions
	d.sessions = nil
	d.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// ConnectionHolders returns one holder per session per matching up host,
// plus the control holder. It is empty after Shutdown.
func (d *Driver) ConnectionHolders() []cql.ConnectionHolder {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.shutdown {
		return nil
	}

	var out []cql.ConnectionHolder
	for _, s := range d.sessions {
		out = append(out, s.connectionHolders()...)
	}

	return append(out, d.control)
}

// Hosts returns every host any session has seen, sorted by address.
func (d *Driver) Hosts() []cql.Host {
	d.mu.Lock()
	defer d.mu.Unlock()

	addrs := make([]string, 0, len(d.hosts))
	for addr := range d.hosts {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	out := make([]cql.Host, len(addrs))
	for i, addr := range addrs {
		out[i] = d.hosts[addr]
	}

	return out
}

// HeartbeatInterval returns the idle heartbeat interval.
func (d *Driver) HeartbeatInterval() time.Duration {
	return d.opts.IdleHeartbeatInterval
}

// trackHost records info and returns the driver's host for it.
func (d *Driver) trackHost(info *gocql.HostInfo) *host {
	addr := hostAddress(info)

	d.mu.Lock()
	defer d.mu.Unlock()

	h, ok := d.hosts[addr]
	if !ok {
		h = &host{address: addr, monitor: d.registry.Monitor(addr)}
		d.hosts[addr] = h
	}
	h.datacenter.Store(info.DataCenter())

	return h
}

// setHostState updates the host and notifies its monitor on a change.
func (d *Driver) setHostState(info *gocql.HostInfo, up bool) {
	h := d.trackHost(info)
	if h.up.Swap(up) == up && h.monitor.State() != types.HostUnknown {
		return
	}
	if up {
		h.monitor.NotifyUp()
	} else {
		h.monitor.NotifyDown()
	}
}
