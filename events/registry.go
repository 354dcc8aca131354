package events

import (
	"sort"
	"sync"

	"github.com/arloliu/cqlharness/types"
)

// Registry maps host addresses to their monitors.
//
// A driver adapter feeds it with host transitions; EventWaiters obtain the
// per-host Monitor through it.
type Registry struct {
	opts []Option

	mu       sync.Mutex
	monitors map[string]*Monitor
}

// NewRegistry creates an empty registry. The options are applied to every
// monitor it creates.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		opts:     opts,
		monitors: make(map[string]*Monitor),
	}
}

// Monitor returns the monitor for address, creating it on first use.
func (r *Registry) Monitor(address string) *Monitor {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.monitors[address]
	if !ok {
		m = NewMonitor(address, r.opts...)
		r.monitors[address] = m
	}

	return m
}

// Lookup returns the monitor for address if one exists.
func (r *Registry) Lookup(address string) (*Monitor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.monitors[address]

	return m, ok
}

// Dispatch routes a host event to the monitor of its address.
func (r *Registry) Dispatch(ev types.HostEvent) {
	r.Monitor(ev.Address).Notify(ev.State)
}

// Addresses returns every known address in sorted order.
func (r *Registry) Addresses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.monitors))
	for addr := range r.monitors {
		out = append(out, addr)
	}
	sort.Strings(out)

	return out
}
