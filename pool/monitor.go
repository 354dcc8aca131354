package pool

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/arloliu/cqlharness/adapter/cql"
	"github.com/arloliu/cqlharness/internal/logging"
	"github.com/arloliu/cqlharness/internal/metrics"
	"github.com/arloliu/cqlharness/types"
)

// DefaultPollInterval is the WaitQuiescent poll interval used when none is given.
const DefaultPollInterval = 100 * time.Millisecond

// Monitor inspects a driver's connection holders.
//
// Every check reads a connection's state under that connection's lock, so a
// concurrently running heartbeat cannot change the idle flag or the request-id
// queue halfway through the read.
type Monitor struct {
	driver  cql.Driver
	logger  types.Logger
	metrics types.MetricsCollector
	now     func() time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger for violation reports.
func WithLogger(logger types.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(collector types.MetricsCollector) Option {
	return func(m *Monitor) {
		m.metrics = collector
	}
}

// WithClock sets the time source used for idle checks.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// New creates a pool monitor for driver.
//
// Parameters:
//   - driver: The driver whose pools are inspected
//   - opts: Optional configuration
//
// Returns:
//   - *Monitor: The monitor
//   - error: types.ErrNilDriver if driver is nil
func New(driver cql.Driver, opts ...Option) (*Monitor, error) {
	if driver == nil {
		return nil, types.ErrNilDriver
	}

	m := &Monitor{driver: driver, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.OrNop(m.logger)
	m.metrics = metrics.OrNop(m.metrics)

	return m, nil
}

// Quiescent checks that the pool is at rest: no connection has requests in
// flight or reserved request ids, and every idle flag agrees with the
// heartbeat interval.
//
// Returns:
//   - error: nil, or *types.PoolStateError listing every violation
func (m *Monitor) Quiescent() error {
	holders := m.driver.ConnectionHolders()
	m.metrics.SetConnectionHolders(len(holders))

	interval := m.driver.HeartbeatInterval()
	var violations []types.PoolViolation
	for _, h := range holders {
		for i, conn := range h.Connections() {
			for _, reason := range m.checkConnection(conn, interval) {
				violations = append(violations, types.PoolViolation{
					Holder:     holderLabel(h),
					Connection: i,
					Reason:     reason,
				})
			}
		}
	}

	return m.report(violations)
}

// IsQuiescent reports whether Quiescent finds no violation.
func (m *Monitor) IsQuiescent() bool {
	return m.Quiescent() == nil
}

// WaitQuiescent polls Quiescent until it passes or ctx ends.
//
// Parameters:
//   - ctx: Bounds the wait
//   - poll: Poll interval; zero uses DefaultPollInterval
//
// Returns:
//   - error: nil once quiescent, otherwise the last violation joined with ctx.Err()
func (m *Monitor) WaitQuiescent(ctx context.Context, poll time.Duration) error {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		err := m.Quiescent()
		if err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (m *Monitor) checkConnection(conn cql.Connection, interval time.Duration) []string {
	conn.Lock()
	defer conn.Unlock()

	var reasons []string
	if n := conn.InFlight(); n != 0 {
		reasons = append(reasons, fmt.Sprintf("%d requests in flight", n))
	}

	if tracker, ok := conn.(cql.RequestIDTracker); ok {
		reasons = append(reasons, requestIDViolations(tracker.RequestIDs(), tracker.HighestRequestID())...)
	}

	idle := conn.IsIdle()
	switch {
	case interval <= 0 && idle:
		reasons = append(reasons, "idle with heartbeats disabled")
	case interval > 0 && idle && m.now().Sub(conn.LastActivity()) < interval:
		reasons = append(reasons, "idle before heartbeat interval elapsed")
	}

	return reasons
}

// requestIDViolations checks that the free queue holds every allocated id
// exactly once.
func requestIDViolations(ids []int, highest int) []string {
	var reasons []string

	seen := make(map[int]bool, len(ids))
	maxID := -1
	for _, id := range ids {
		if seen[id] {
			reasons = append(reasons, fmt.Sprintf("duplicate request id %d", id))
		}
		seen[id] = true
		maxID = max(maxID, id)
	}

	if maxID > highest {
		reasons = append(reasons, fmt.Sprintf("request id %d above highest allocated %d", maxID, highest))
	}
	if reserved := highest + 1 - len(seen); reserved > 0 {
		reasons = append(reasons, fmt.Sprintf("%d request ids still reserved", reserved))
	}

	return reasons
}

// ExpectedHolderCount returns the holder count of sessions connected with
// wait-for-all-pools to hosts matching hosts: one holder per session per
// host plus the control connection.
func ExpectedHolderCount(sessions, hosts int) int {
	return sessions*hosts + 1
}

// CheckHolderCount verifies the driver's holder count.
//
// Returns:
//   - error: Wraps types.ErrHolderCountMismatch on mismatch
func (m *Monitor) CheckHolderCount(sessions, hosts int) error {
	got := len(m.driver.ConnectionHolders())
	m.metrics.SetConnectionHolders(got)

	if want := ExpectedHolderCount(sessions, hosts); got != want {
		m.metrics.IncPoolViolation()
		return fmt.Errorf("%w: %d sessions x %d hosts + 1 = %d, got %d",
			types.ErrHolderCountMismatch, sessions, hosts, want, got)
	}

	return nil
}

// AssertIdle checks that every connection, including the control
// connection, is idle.
func (m *Monitor) AssertIdle() error {
	return m.assertIdleState(true, true)
}

// AssertActive checks that no non-control connection is idle.
func (m *Monitor) AssertActive() error {
	return m.assertIdleState(false, false)
}

func (m *Monitor) assertIdleState(want, includeControl bool) error {
	var violations []types.PoolViolation
	for _, h := range m.driver.ConnectionHolders() {
		for i, conn := range h.Connections() {
			if conn.IsControl() && !includeControl {
				continue
			}
			conn.Lock()
			idle := conn.IsIdle()
			conn.Unlock()

			if idle != want {
				reason := "not idle"
				if idle {
					reason = "idle"
				}
				violations = append(violations, types.PoolViolation{Holder: holderLabel(h), Connection: i, Reason: reason})
			}
		}
	}

	return m.report(violations)
}

func (m *Monitor) report(violations []types.PoolViolation) error {
	if len(violations) == 0 {
		return nil
	}

	for _, v := range violations {
		m.metrics.IncPoolViolation()
		m.logger.Warn("connection pool violation", "holder", v.Holder, "connection", v.Connection, "reason", v.Reason)
	}

	return &types.PoolStateError{Violations: violations}
}

func holderLabel(h cql.ConnectionHolder) string {
	if h.IsControl() {
		return "control/" + h.Address()
	}

	return h.Address()
}

// Snapshot is a capture of every tracked connection's free request-id queue.
type Snapshot struct {
	Taken time.Time

	ids    map[cql.Connection][]int
	labels map[cql.Connection]string
}

// Len returns the number of captured connections.
func (s Snapshot) Len() int {
	return len(s.ids)
}

// Snapshot captures the request-id queue of every connection that exposes one.
func (m *Monitor) Snapshot() Snapshot {
	s := Snapshot{
		Taken:  m.now(),
		ids:    make(map[cql.Connection][]int),
		labels: make(map[cql.Connection]string),
	}

	for _, h := range m.driver.ConnectionHolders() {
		for i, conn := range h.Connections() {
			tracker, ok := conn.(cql.RequestIDTracker)
			if !ok {
				continue
			}
			conn.Lock()
			s.ids[conn] = tracker.RequestIDs()
			conn.Unlock()
			s.labels[conn] = fmt.Sprintf("%s#%d", holderLabel(h), i)
		}
	}

	return s
}

// AssertRotated checks that every connection in before has had its
// request-id queue rotated left by exactly one position: one heartbeat took
// the first free id and returned it.
//
// Returns:
//   - error: Wraps types.ErrNotRotated naming every connection that did not rotate
func (m *Monitor) AssertRotated(before Snapshot) error {
	if before.Len() == 0 {
		return fmt.Errorf("%w: no connection exposes request ids", types.ErrNotRotated)
	}

	var failed []string
	for conn, prev := range before.ids {
		tracker := conn.(cql.RequestIDTracker)
		conn.Lock()
		cur := tracker.RequestIDs()
		conn.Unlock()

		if !Rotated(prev, cur, 1) {
			failed = append(failed, fmt.Sprintf("%s: %v -> %v", before.labels[conn], head(prev), head(cur)))
		}
	}
	if len(failed) == 0 {
		return nil
	}

	slices.Sort(failed)
	m.metrics.IncPoolViolation()
	m.logger.Warn("request ids did not rotate", "connections", len(failed))

	return fmt.Errorf("%w: %s", types.ErrNotRotated, strings.Join(failed, "; "))
}

// Rotated reports whether after equals before rotated left by n positions.
func Rotated(before, after []int, n int) bool {
	if len(before) != len(after) {
		return false
	}
	if len(before) == 0 {
		return n == 0
	}

	n %= len(before)
	for i := range before {
		if after[i] != before[(i+n)%len(before)] {
			return false
		}
	}

	return true
}

// head returns at most the first four ids, for messages.
func head(ids []int) []int {
	if len(ids) > 4 {
		return ids[:4]
	}

	return ids
}
