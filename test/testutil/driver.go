package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/arloliu/cqlharness/adapter/cql"
	"github.com/arloliu/cqlharness/types"
)

// DefaultRequestIDs is the request-id capacity of mock connections.
const DefaultRequestIDs = 32

// MockConnection is a cql.Connection with a free request-id queue and an
// idle flag driven by an optional heartbeat goroutine.
//
// Heartbeat cycle: a tick on a busy connection marks it idle once a full
// interval has passed since the last activity; a tick on an idle connection
// sends a heartbeat, which takes the first free id and returns it to the back
// of the queue. Foreground requests clear the idle flag.
type MockConnection struct {
	mu       sync.Mutex
	control  bool
	idle     bool
	inFlight int
	ids      []int
	highest  int
	last     time.Time
	beats    int
}

// Compile-time assertions.
var (
	_ cql.Connection       = (*MockConnection)(nil)
	_ cql.RequestIDTracker = (*MockConnection)(nil)
)

// NewMockConnection creates a connection with capacity free request ids.
func NewMockConnection(control bool, capacity int) *MockConnection {
	if capacity <= 0 {
		capacity = DefaultRequestIDs
	}
	ids := make([]int, capacity)
	for i := range ids {
		ids[i] = i
	}

	return &MockConnection{
		control: control,
		ids:     ids,
		highest: capacity - 1,
		last:    time.Now(),
	}
}

func (c *MockConnection) Lock()   { c.mu.Lock() }
func (c *MockConnection) Unlock() { c.mu.Unlock() }

// IsIdle must be called with the lock held.
func (c *MockConnection) IsIdle() bool { return c.idle }

// InFlight must be called with the lock held.
func (c *MockConnection) InFlight() int { return c.inFlight }

// LastActivity must be called with the lock held.
func (c *MockConnection) LastActivity() time.Time { return c.last }

func (c *MockConnection) IsControl() bool { return c.control }

// RequestIDs must be called with the lock held.
func (c *MockConnection) RequestIDs() []int {
	return append([]int(nil), c.ids...)
}

// HighestRequestID must be called with the lock held.
func (c *MockConnection) HighestRequestID() int { return c.highest }

// Acquire reserves a request id for a foreground request.
func (c *MockConnection) Acquire() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.take()
	c.inFlight++
	c.idle = false
	c.last = time.Now()

	return id
}

// Release returns id after its response arrived.
func (c *MockConnection) Release(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inFlight--
	c.ids = append(c.ids, id)
	c.last = time.Now()
}

// take must be called with c.mu held. An exhausted queue grows a new id.
func (c *MockConnection) take() int {
	if len(c.ids) == 0 {
		c.highest++
		return c.highest
	}
	id := c.ids[0]
	c.ids = c.ids[1:]

	return id
}

// Heartbeat runs one heartbeat cycle as of now.
func (c *MockConnection) Heartbeat(now time.Time, interval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if interval <= 0 {
		return
	}
	if !c.idle {
		if now.Sub(c.last) >= interval {
			c.idle = true
		}

		return
	}

	id := c.take()
	c.ids = append(c.ids, id)
	c.beats++
}

// Heartbeats returns the number of heartbeats sent.
func (c *MockConnection) Heartbeats() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.beats
}

// SetIdle forces the idle flag.
func (c *MockConnection) SetIdle(idle bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.idle = idle
}

// Touch records activity at t without a request.
func (c *MockConnection) Touch(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.last = t
}

// MockHolder is a cql.ConnectionHolder of mock connections.
type MockHolder struct {
	address string
	control bool
	conns   []*MockConnection
}

// Compile-time assertion that MockHolder implements cql.ConnectionHolder.
var _ cql.ConnectionHolder = (*MockHolder)(nil)

// NewMockHolder creates a holder owning conns.
func NewMockHolder(address string, control bool, conns ...*MockConnection) *MockHolder {
	return &MockHolder{address: address, control: control, conns: conns}
}

func (h *MockHolder) Address() string { return h.address }
func (h *MockHolder) IsControl() bool { return h.control }

func (h *MockHolder) Connections() []cql.Connection {
	out := make([]cql.Connection, len(h.conns))
	for i, c := range h.conns {
		out[i] = c
	}

	return out
}

// MockConnections returns the holder's connections with their concrete type.
func (h *MockHolder) MockConnections() []*MockConnection {
	return h.conns
}

// MockDriverSession is the session returned by MockDriver.Connect. Each
// Execute runs on one of the session's connections, round robin.
type MockDriverSession struct {
	*MockSession

	mu      sync.Mutex
	holders []*MockHolder
	next    int
}

// Compile-time assertion that MockDriverSession implements cql.Session.
var _ cql.Session = (*MockDriverSession)(nil)

// Execute reserves a request id for the duration of the statement.
func (s *MockDriverSession) Execute(ctx context.Context, stmt cql.Statement) (*cql.Result, error) {
	conn := s.pick()
	if conn != nil {
		id := conn.Acquire()
		defer conn.Release(id)
	}

	return s.MockSession.Execute(ctx, stmt)
}

func (s *MockDriverSession) pick() *MockConnection {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.holders) == 0 {
		return nil
	}
	h := s.holders[s.next%len(s.holders)]
	s.next++
	if len(h.conns) == 0 {
		return nil
	}

	return h.conns[0]
}

// Holders returns the session's per-host holders.
func (s *MockDriverSession) Holders() []*MockHolder {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]*MockHolder(nil), s.holders...)
}

// MockDriverConfig configures a MockDriver.
type MockDriverConfig struct {
	// Hosts are the cluster hosts. The control connection uses the first.
	Hosts []*MockHost

	// HeartbeatInterval drives connection heartbeats. Zero disables them.
	HeartbeatInterval time.Duration

	// RequestIDs is the per-connection request-id capacity.
	// Default: DefaultRequestIDs
	RequestIDs int

	// Errors are scripted into every session's MockSession.
	Errors []error

	// ConnectErr, if set, is returned by Connect.
	ConnectErr error
}

// MockDriver is a cql.Driver with heartbeat-driven mock connections.
type MockDriver struct {
	config MockDriverConfig

	mu       sync.Mutex
	control  *MockHolder
	sessions []*MockDriverSession
	keyspace []string
	shutdown bool
	stop     chan struct{}
	wg       sync.WaitGroup
}

// Compile-time assertion that MockDriver implements cql.Driver.
var _ cql.Driver = (*MockDriver)(nil)

// NewMockDriver creates a driver with a control connection to the first host.
func NewMockDriver(cfg MockDriverConfig) *MockDriver {
	d := &MockDriver{
		config: cfg,
		stop:   make(chan struct{}),
	}

	address := ""
	if len(cfg.Hosts) > 0 {
		address = cfg.Hosts[0].Address()
	}
	d.control = NewMockHolder(address, true, d.newConnection(true))

	return d
}

// newConnection creates a connection and starts its heartbeat.
func (d *MockDriver) newConnection(control bool) *MockConnection {
	conn := NewMockConnection(control, d.config.RequestIDs)
	interval := d.config.HeartbeatInterval
	if interval <= 0 {
		return conn
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-d.stop:
				return
			case now := <-ticker.C:
				conn.Heartbeat(now, interval)
			}
		}
	}()

	return conn
}

// Connect opens a session with one holder per up host.
func (d *MockDriver) Connect(_ context.Context, opts cql.ConnectOptions) (cql.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.shutdown {
		return nil, types.ErrDriverClosed
	}
	if d.config.ConnectErr != nil {
		return nil, d.config.ConnectErr
	}

	s := &MockDriverSession{MockSession: NewMockSession(d.config.Errors...)}
	for _, h := range d.config.Hosts {
		if !h.IsUp() {
			continue
		}
		s.holders = append(s.holders, NewMockHolder(h.Address(), false, d.newConnection(false)))
	}
	d.sessions = append(d.sessions, s)
	d.keyspace = append(d.keyspace, opts.Keyspace)

	return s, nil
}

// Shutdown stops heartbeats and closes every session.
func (d *MockDriver) Shutdown() {
	d.mu.Lock()
	if d.shutdown {
		d.mu.Unlock()
		return
	}
	d.shutdown = true
	close(d.stop)
	sessions := d.sessions
	d.mu.Unlock()

	d.wg.Wait()
	for _, s := range sessions {
		s.Close()
	}
}

// IsShutdown returns whether Shutdown was called.
func (d *MockDriver) IsShutdown() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.shutdown
}

func (d *MockDriver) ConnectionHolders() []cql.ConnectionHolder {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.shutdown {
		return nil
	}
	var out []cql.ConnectionHolder
	for _, s := range d.sessions {
		for _, h := range s.Holders() {
			out = append(out, h)
		}
	}

	return append(out, d.control)
}

func (d *MockDriver) Hosts() []cql.Host {
	out := make([]cql.Host, len(d.config.Hosts))
	for i, h := range d.config.Hosts {
		out[i] = h
	}

	return out
}

func (d *MockDriver) HeartbeatInterval() time.Duration {
	return d.config.HeartbeatInterval
}

// Control returns the control connection holder.
func (d *MockDriver) Control() *MockHolder {
	return d.control
}

// Sessions returns the sessions opened so far.
func (d *MockDriver) Sessions() []*MockDriverSession {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]*MockDriverSession(nil), d.sessions...)
}

// Keyspaces returns the keyspace requested by each Connect call.
func (d *MockDriver) Keyspaces() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]string(nil), d.keyspace...)
}

// Statements returns the statements executed across all sessions.
func (d *MockDriver) Statements() []string {
	var out []string
	for _, s := range d.Sessions() {
		out = append(out, s.Statements()...)
	}

	return out
}

// MockDriverFactory records driver options and hands out MockDrivers.
type MockDriverFactory struct {
	mu      sync.Mutex
	config  MockDriverConfig
	options []cql.DriverOptions
	drivers []*MockDriver

	// Err, if set, is returned instead of a driver.
	Err error
}

// NewMockDriverFactory creates a factory whose drivers use cfg.
func NewMockDriverFactory(cfg MockDriverConfig) *MockDriverFactory {
	return &MockDriverFactory{config: cfg}
}

// New implements cql.DriverFactory.
func (f *MockDriverFactory) New(opts cql.DriverOptions) (cql.Driver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.options = append(f.options, opts)
	if f.Err != nil {
		return nil, f.Err
	}

	cfg := f.config
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = opts.IdleHeartbeatInterval
	}
	d := NewMockDriver(cfg)
	f.drivers = append(f.drivers, d)

	return d, nil
}

// Options returns the options of every New call.
func (f *MockDriverFactory) Options() []cql.DriverOptions {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]cql.DriverOptions(nil), f.options...)
}

// Drivers returns every driver created.
func (f *MockDriverFactory) Drivers() []*MockDriver {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]*MockDriver(nil), f.drivers...)
}
