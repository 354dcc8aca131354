package v1

import (
	"sync"
	"time"

	"github.com/arloliu/cqlharness/adapter/cql"
)

// observedConn is a connection reconstructed from stream observations.
//
// gocql does not expose its pools, so in-flight counts and activity are
// tracked from StreamObserver callbacks. The connection is idle once a full
// heartbeat interval passes without a stream starting or finishing.
type observedConn struct {
	mu       sync.Mutex
	control  bool
	interval time.Duration
	now      func() time.Time
	inFlight int
	last     time.Time
}

var _ cql.Connection = (*observedConn)(nil)

func newObservedConn(control bool, interval time.Duration, now func() time.Time) *observedConn {
	return &observedConn{
		control:  control,
		interval: interval,
		now:      now,
		last:     now(),
	}
}

func (c *observedConn) Lock()   { c.mu.Lock() }
func (c *observedConn) Unlock() { c.mu.Unlock() }

// IsIdle must be called with the lock held.
func (c *observedConn) IsIdle() bool {
	return c.interval > 0 && c.inFlight == 0 && c.now().Sub(c.last) >= c.interval
}

// InFlight must be called with the lock held.
func (c *observedConn) InFlight() int { return c.inFlight }

// LastActivity must be called with the lock held.
func (c *observedConn) LastActivity() time.Time { return c.last }

func (c *observedConn) IsControl() bool { return c.control }

func (c *observedConn) started() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inFlight++
	c.last = c.now()
}

func (c *observedConn) finished() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// a stream may have started before the holder existed
	if c.inFlight > 0 {
		c.inFlight--
	}
	c.last = c.now()
}

// holder is the connection holder of one host in one session.
type holder struct {
	address string
	control bool
	conn    *observedConn
}

var _ cql.ConnectionHolder = (*holder)(nil)

func (h *holder) Address() string { return h.address }

func (h *holder) IsControl() bool { return h.control }

func (h *holder) Connections() []cql.Connection {
	return []cql.Connection{h.conn}
}
