package events

import (
	"sync"

	"github.com/arloliu/cqlharness/adapter/cql"
	"github.com/arloliu/cqlharness/internal/logging"
	"github.com/arloliu/cqlharness/internal/metrics"
	"github.com/arloliu/cqlharness/types"
)

// Monitor fans out availability changes of one host to registered observers.
//
// Observers are copied under the lock and notified outside it, so an
// observer may unregister itself from inside a callback.
type Monitor struct {
	address string
	logger  types.Logger
	metrics types.MetricsCollector

	mu        sync.Mutex
	observers map[uint64]cql.HostObserver
	nextID    uint64
	state     types.HostState
}

var _ cql.HostMonitor = (*Monitor)(nil)

// NewMonitor creates a monitor for the host at address.
//
// Parameters:
//   - address: Host address used in notifications
//   - opts: Optional logger and metrics
//
// Returns:
//   - *Monitor: A monitor with no observers and unknown state
func NewMonitor(address string, opts ...Option) *Monitor {
	cfg := applyOptions(opts)

	return &Monitor{
		address:   address,
		logger:    cfg.logger,
		metrics:   cfg.metrics,
		observers: make(map[uint64]cql.HostObserver),
	}
}

// Address returns the monitored host address.
func (m *Monitor) Address() string {
	return m.address
}

// Register adds an observer and returns a function that removes it.
// The returned function is safe to call more than once.
func (m *Monitor) Register(observer cql.HostObserver) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.observers[id] = observer
	m.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.observers, id)
			m.mu.Unlock()
		})
	}
}

// ObserverCount returns the number of registered observers.
func (m *Monitor) ObserverCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.observers)
}

// State returns the last notified state.
func (m *Monitor) State() types.HostState {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// NotifyUp marks the host up and notifies every observer.
func (m *Monitor) NotifyUp() {
	m.notify(types.HostUp)
}

// NotifyDown marks the host down and notifies every observer.
func (m *Monitor) NotifyDown() {
	m.notify(types.HostDown)
}

// Notify dispatches state to observers. HostUnknown is ignored.
func (m *Monitor) Notify(state types.HostState) {
	m.notify(state)
}

func (m *Monitor) notify(state types.HostState) {
	if state != types.HostUp && state != types.HostDown {
		return
	}

	m.mu.Lock()
	prev := m.state
	m.state = state
	observers := make([]cql.HostObserver, 0, len(m.observers))
	for _, o := range m.observers {
		observers = append(observers, o)
	}
	m.mu.Unlock()

	m.metrics.IncHostEvent(state)
	if prev != state {
		m.logger.Debug("host state changed", "host", m.address, "from", prev.String(), "to", state.String())
	}

	for _, o := range observers {
		if state == types.HostUp {
			o.OnHostUp(m.address)
		} else {
			o.OnHostDown(m.address)
		}
	}
}

// Option configures monitors and registries.
type Option func(*options)

type options struct {
	logger  types.Logger
	metrics types.MetricsCollector
}

// WithLogger sets the logger for state-change messages.
//
// Parameters:
//   - logger: Logger implementation
//
// Returns:
//   - Option: Configuration option
func WithLogger(logger types.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics collector for host events.
//
// Parameters:
//   - collector: Metrics collector implementation
//
// Returns:
//   - Option: Configuration option
func WithMetrics(collector types.MetricsCollector) Option {
	return func(o *options) {
		o.metrics = collector
	}
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.OrNop(o.logger)
	o.metrics = metrics.OrNop(o.metrics)

	return o
}
