package testutil

import (
	"sync"

	"github.com/arloliu/cqlharness/types"
)

// MockMetrics is a test implementation of types.MetricsCollector
// that tracks method calls for assertions.
type MockMetrics struct {
	mu sync.RWMutex

	// Statements
	attempts  int
	retries   map[types.FailureKind]int
	satisfied map[types.FailureKind]int
	exhausted int
	durations []float64

	// Provisioning
	reused             map[string]int
	created            map[string]int
	provisionFailures  map[string]int
	provisionDurations map[string][]float64
	removalRetries     map[string]int

	// Hosts and pool
	hostEvents     map[types.HostState]int
	holders        int
	poolViolations int
}

// Compile-time assertion that MockMetrics implements types.MetricsCollector.
var _ types.MetricsCollector = (*MockMetrics)(nil)

// NewMockMetrics creates a new recording metrics collector.
func NewMockMetrics() *MockMetrics {
	return &MockMetrics{
		retries:            make(map[types.FailureKind]int),
		satisfied:          make(map[types.FailureKind]int),
		reused:             make(map[string]int),
		created:            make(map[string]int),
		provisionFailures:  make(map[string]int),
		provisionDurations: make(map[string][]float64),
		removalRetries:     make(map[string]int),
		hostEvents:         make(map[types.HostState]int),
	}
}

// ----------------------
// Statements
// ----------------------

func (m *MockMetrics) IncStatementAttempt() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
}

func (m *MockMetrics) IncStatementRetry(kind types.FailureKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries[kind]++
}

func (m *MockMetrics) IncStatementSatisfied(kind types.FailureKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.satisfied[kind]++
}

func (m *MockMetrics) IncStatementExhausted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exhausted++
}

func (m *MockMetrics) ObserveStatementDuration(seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations = append(m.durations, seconds)
}

// ----------------------
// Provisioning
// ----------------------

func (m *MockMetrics) IncClusterReused(cluster string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reused[cluster]++
}

func (m *MockMetrics) IncClusterCreated(cluster string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created[cluster]++
}

func (m *MockMetrics) IncProvisionFailure(cluster string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.provisionFailures[cluster]++
}

func (m *MockMetrics) ObserveProvisionDuration(cluster string, seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.provisionDurations[cluster] = append(m.provisionDurations[cluster], seconds)
}

func (m *MockMetrics) IncRemovalRetry(cluster string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removalRetries[cluster]++
}

// ----------------------
// Hosts and Pool
// ----------------------

func (m *MockMetrics) IncHostEvent(state types.HostState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hostEvents[state]++
}

func (m *MockMetrics) SetConnectionHolders(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holders = count
}

func (m *MockMetrics) IncPoolViolation() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.poolViolations++
}

// ----------------------
// Getters
// ----------------------

// Attempts returns the number of statement attempts.
func (m *MockMetrics) Attempts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.attempts
}

// Retries returns the number of retries for kind.
func (m *MockMetrics) Retries(kind types.FailureKind) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.retries[kind]
}

// Satisfied returns the number of already-satisfied statements for kind.
func (m *MockMetrics) Satisfied(kind types.FailureKind) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.satisfied[kind]
}

// Exhausted returns the number of statements that hit their attempt bound.
func (m *MockMetrics) Exhausted() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.exhausted
}

// StatementDurations returns the recorded statement durations.
func (m *MockMetrics) StatementDurations() []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]float64(nil), m.durations...)
}

// Reused returns how often cluster was reused.
func (m *MockMetrics) Reused(cluster string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.reused[cluster]
}

// Created returns how often cluster was created or reloaded.
func (m *MockMetrics) Created(cluster string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.created[cluster]
}

// ProvisionFailures returns how often provisioning of cluster failed.
func (m *MockMetrics) ProvisionFailures(cluster string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.provisionFailures[cluster]
}

// ProvisionDurations returns the recorded provisioning durations of cluster.
func (m *MockMetrics) ProvisionDurations(cluster string) []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]float64(nil), m.provisionDurations[cluster]...)
}

// RemovalRetries returns how often removal of cluster was retried.
func (m *MockMetrics) RemovalRetries(cluster string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.removalRetries[cluster]
}

// HostEvents returns the number of host events with state.
func (m *MockMetrics) HostEvents(state types.HostState) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.hostEvents[state]
}

// Holders returns the last connection holder count.
func (m *MockMetrics) Holders() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.holders
}

// PoolViolations returns the number of pool violations.
func (m *MockMetrics) PoolViolations() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.poolViolations
}
