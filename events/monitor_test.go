package events_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/cqlharness/adapter/cql"
	"github.com/arloliu/cqlharness/events"
	"github.com/arloliu/cqlharness/test/testutil"
	"github.com/arloliu/cqlharness/types"
)

func TestMonitorFanOut(t *testing.T) {
	m := events.NewMonitor("127.0.0.1")

	var mu sync.Mutex
	var got []string
	record := func(prefix string) func(string) {
		return func(addr string) {
			mu.Lock()
			got = append(got, prefix+addr)
			mu.Unlock()
		}
	}

	unregA := m.Register(cql.HostObserverFuncs{Up: record("a-up:"), Down: record("a-down:")})
	m.Register(cql.HostObserverFuncs{Down: record("b-down:")})
	require.Equal(t, 2, m.ObserverCount())

	m.NotifyDown()
	assert.ElementsMatch(t, []string{"a-down:127.0.0.1", "b-down:127.0.0.1"}, got)
	assert.Equal(t, types.HostDown, m.State())

	unregA()
	unregA()
	assert.Equal(t, 1, m.ObserverCount())

	got = nil
	m.NotifyUp()
	assert.Empty(t, got)
	assert.Equal(t, types.HostUp, m.State())
}

func TestMonitorUnregisterFromCallback(t *testing.T) {
	m := events.NewMonitor("10.0.0.1")

	var unregister func()
	calls := 0
	unregister = m.Register(cql.HostObserverFuncs{Down: func(string) {
		calls++
		unregister()
	}})

	m.NotifyDown()
	m.NotifyDown()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, m.ObserverCount())
}

func TestMonitorIgnoresUnknown(t *testing.T) {
	metrics := testutil.NewMockMetrics()
	m := events.NewMonitor("10.0.0.1", events.WithMetrics(metrics))

	m.Notify(types.HostUnknown)
	assert.Equal(t, types.HostUnknown, m.State())
	assert.Equal(t, 0, metrics.HostEvents(types.HostUp)+metrics.HostEvents(types.HostDown))

	m.Notify(types.HostDown)
	assert.Equal(t, 1, metrics.HostEvents(types.HostDown))
}

func TestRegistry(t *testing.T) {
	r := events.NewRegistry()

	_, ok := r.Lookup("127.0.0.2")
	assert.False(t, ok)

	m := r.Monitor("127.0.0.2")
	assert.Same(t, m, r.Monitor("127.0.0.2"))

	w := events.NewWaiterFor("127.0.0.2", m)
	defer w.Close()

	r.Dispatch(types.HostEvent{Address: "127.0.0.2", State: types.HostDown})
	assert.True(t, w.Down())
	assert.False(t, w.Up())

	r.Monitor("127.0.0.1")
	assert.Equal(t, []string{"127.0.0.1", "127.0.0.2"}, r.Addresses())
}
