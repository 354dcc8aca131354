package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/arloliu/cqlharness/adapter/cql"
	"github.com/arloliu/cqlharness/events"
	"github.com/arloliu/cqlharness/types"
)

// Failure is an error carrying a failure kind, as a classified driver error would.
type Failure struct {
	Kind    types.FailureKind
	Message string
}

// NewFailure creates a classified failure of kind.
func NewFailure(kind types.FailureKind) error {
	return &Failure{Kind: kind, Message: "mock " + kind.String()}
}

// Error implements error.
func (f *Failure) Error() string {
	return f.Message
}

// FailureKind returns the failure kind.
func (f *Failure) FailureKind() types.FailureKind {
	return f.Kind
}

// MockSession is a mock implementation of cql.Session for testing.
//
// Errors passed to NewMockSession are returned by successive Execute calls;
// once they are used up Execute succeeds with an empty result. Successful
// CREATE KEYSPACE and DROP KEYSPACE statements update the keyspaces reported
// by KeyspaceExists.
type MockSession struct {
	mu         sync.Mutex
	errs       []error
	statements []cql.Statement
	keyspaces  map[string]bool
	closed     bool

	// OnExecute, if set, replaces the scripted behavior.
	OnExecute func(ctx context.Context, stmt cql.Statement) (*cql.Result, error)
}

// Compile-time assertion that MockSession implements cql.Session.
var _ cql.Session = (*MockSession)(nil)

// NewMockSession creates a mock session returning errs in order.
func NewMockSession(errs ...error) *MockSession {
	return &MockSession{
		errs:      errs,
		keyspaces: make(map[string]bool),
	}
}

// Execute records stmt and returns the next scripted outcome.
func (m *MockSession) Execute(ctx context.Context, stmt cql.Statement) (*cql.Result, error) {
	m.mu.Lock()
	m.statements = append(m.statements, stmt)
	hook := m.OnExecute
	if hook != nil {
		m.mu.Unlock()
		return hook(ctx, stmt)
	}
	defer m.mu.Unlock()

	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	m.trackSchema(stmt.CQL)

	return &cql.Result{}, nil
}

// trackSchema must be called with m.mu held.
func (m *MockSession) trackSchema(stmt string) {
	fields := strings.Fields(strings.ToLower(stmt))
	if len(fields) < 3 || fields[1] != "keyspace" {
		return
	}

	idx := 2
	switch {
	case fields[0] == "create" && fields[2] == "if":
		idx = 5
	case fields[0] == "drop" && fields[2] == "if":
		idx = 4
	}
	if idx >= len(fields) {
		return
	}
	name := strings.Trim(fields[idx], `";`)

	switch fields[0] {
	case "create":
		m.keyspaces[name] = true
	case "drop":
		delete(m.keyspaces, name)
	}
}

// KeyspaceExists reports whether keyspace was created and not dropped.
func (m *MockSession) KeyspaceExists(_ context.Context, keyspace string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.keyspaces[strings.ToLower(keyspace)], nil
}

// SetKeyspace marks keyspace as present or absent.
func (m *MockSession) SetKeyspace(keyspace string, exists bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if exists {
		m.keyspaces[strings.ToLower(keyspace)] = true
	} else {
		delete(m.keyspaces, strings.ToLower(keyspace))
	}
}

// Close marks the session as closed.
func (m *MockSession) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
}

// IsClosed returns whether Close was called.
func (m *MockSession) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closed
}

// Calls returns the number of Execute calls.
func (m *MockSession) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.statements)
}

// Statements returns the CQL text of every executed statement in order.
func (m *MockSession) Statements() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.statements))
	for i, s := range m.statements {
		out[i] = s.CQL
	}

	return out
}

// LastStatement returns the last executed statement.
func (m *MockSession) LastStatement() (cql.Statement, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.statements) == 0 {
		return cql.Statement{}, false
	}

	return m.statements[len(m.statements)-1], true
}

// MockHost is a mock implementation of cql.Host backed by an events.Monitor.
type MockHost struct {
	address    string
	datacenter string
	up         atomic.Bool
	monitor    *events.Monitor
}

// Compile-time assertion that MockHost implements cql.Host.
var _ cql.Host = (*MockHost)(nil)

// NewMockHost creates a host that is initially up.
func NewMockHost(address, datacenter string) *MockHost {
	h := &MockHost{
		address:    address,
		datacenter: datacenter,
		monitor:    events.NewMonitor(address),
	}
	h.up.Store(true)

	return h
}

func (h *MockHost) Address() string         { return h.address }
func (h *MockHost) Datacenter() string      { return h.datacenter }
func (h *MockHost) IsUp() bool              { return h.up.Load() }
func (h *MockHost) Monitor() cql.HostMonitor { return h.monitor }

// Events returns the host's monitor.
func (h *MockHost) Events() *events.Monitor {
	return h.monitor
}

// SetDown marks the host down and notifies observers.
func (h *MockHost) SetDown() {
	h.up.Store(false)
	h.monitor.NotifyDown()
}

// SetUp marks the host up and notifies observers.
func (h *MockHost) SetUp() {
	h.up.Store(true)
	h.monitor.NotifyUp()
}

// LogEntry is one recorded log call.
type LogEntry struct {
	Level         string
	Message       string
	KeysAndValues []any
}

// Field returns the value logged under key, or nil.
func (e LogEntry) Field(key string) any {
	for i := 0; i+1 < len(e.KeysAndValues); i += 2 {
		if k, ok := e.KeysAndValues[i].(string); ok && k == key {
			return e.KeysAndValues[i+1]
		}
	}

	return nil
}

// MockLogger records log calls for assertions.
type MockLogger struct {
	mu      sync.Mutex
	entries []LogEntry
}

// Compile-time assertion that MockLogger implements types.Logger.
var _ types.Logger = (*MockLogger)(nil)

// NewMockLogger creates an empty recording logger.
func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

func (l *MockLogger) Debug(msg string, keysAndValues ...any) { l.log("debug", msg, keysAndValues) }
func (l *MockLogger) Info(msg string, keysAndValues ...any)  { l.log("info", msg, keysAndValues) }
func (l *MockLogger) Warn(msg string, keysAndValues ...any)  { l.log("warn", msg, keysAndValues) }
func (l *MockLogger) Error(msg string, keysAndValues ...any) { l.log("error", msg, keysAndValues) }

func (l *MockLogger) log(level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, LogEntry{Level: level, Message: msg, KeysAndValues: kv})
}

// Entries returns the entries logged at level, or all entries when level is empty.
func (l *MockLogger) Entries(level string) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []LogEntry
	for _, e := range l.entries {
		if level == "" || e.Level == level {
			out = append(out, e)
		}
	}

	return out
}

// Contains reports whether a message containing substr was logged at level.
func (l *MockLogger) Contains(level, substr string) bool {
	for _, e := range l.Entries(level) {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}

	return false
}

// String renders all entries, one per line.
func (l *MockLogger) String() string {
	var b strings.Builder
	for _, e := range l.Entries("") {
		fmt.Fprintf(&b, "%s %s %v\n", e.Level, e.Message, e.KeysAndValues)
	}

	return b.String()
}
