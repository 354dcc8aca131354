package events

import (
	"context"
	"sync"
	"time"

	"github.com/arloliu/cqlharness/adapter/cql"
	"github.com/arloliu/cqlharness/types"
)

// DefaultWaitTimeout bounds WaitForUp and WaitForDown when no positive
// timeout is given.
const DefaultWaitTimeout = 2 * time.Minute

// Waiter subscribes to one host's monitor and latches the first up and the
// first down notification it sees.
//
// Both signals are one-shot: once fired they stay fired, so later waits
// return immediately. Close removes the subscription.
type Waiter struct {
	address string
	down    chan struct{}
	up      chan struct{}

	downOnce   sync.Once
	upOnce     sync.Once
	unregister func()
}

// NewWaiter subscribes to host's monitor.
//
// Parameters:
//   - host: The host to observe
//
// Returns:
//   - *Waiter: A subscribed waiter with both signals cleared
//   - error: types.ErrNilHost if host is nil
func NewWaiter(host cql.Host) (*Waiter, error) {
	if host == nil {
		return nil, types.ErrNilHost
	}

	return NewWaiterFor(host.Address(), host.Monitor()), nil
}

// NewWaiterFor subscribes to monitor directly, for callers that hold a
// monitor but not a driver host.
func NewWaiterFor(address string, monitor cql.HostMonitor) *Waiter {
	w := &Waiter{
		address: address,
		down:    make(chan struct{}),
		up:      make(chan struct{}),
	}
	w.unregister = monitor.Register(w)

	return w
}

// Address returns the observed host address.
func (w *Waiter) Address() string {
	return w.address
}

// OnHostUp latches the up signal.
func (w *Waiter) OnHostUp(_ string) {
	w.upOnce.Do(func() { close(w.up) })
}

// OnHostDown latches the down signal.
func (w *Waiter) OnHostDown(_ string) {
	w.downOnce.Do(func() { close(w.down) })
}

// WaitForDown blocks until the down signal fires or timeout elapses.
//
// Parameters:
//   - timeout: Maximum wait; zero or negative uses DefaultWaitTimeout
//
// Returns:
//   - bool: true if the signal fired
func (w *Waiter) WaitForDown(timeout time.Duration) bool {
	return wait(context.Background(), w.down, timeout)
}

// WaitForUp blocks until the up signal fires or timeout elapses.
//
// Parameters:
//   - timeout: Maximum wait; zero or negative uses DefaultWaitTimeout
//
// Returns:
//   - bool: true if the signal fired
func (w *Waiter) WaitForUp(timeout time.Duration) bool {
	return wait(context.Background(), w.up, timeout)
}

// WaitForDownContext is WaitForDown bounded by ctx and DefaultWaitTimeout.
func (w *Waiter) WaitForDownContext(ctx context.Context) bool {
	return wait(ctx, w.down, 0)
}

// WaitForUpContext is WaitForUp bounded by ctx and DefaultWaitTimeout.
func (w *Waiter) WaitForUpContext(ctx context.Context) bool {
	return wait(ctx, w.up, 0)
}

// Down reports whether the down signal has fired.
func (w *Waiter) Down() bool {
	return fired(w.down)
}

// Up reports whether the up signal has fired.
func (w *Waiter) Up() bool {
	return fired(w.up)
}

// Close unsubscribes from the monitor. Latched signals are kept.
func (w *Waiter) Close() {
	w.unregister()
}

func wait(ctx context.Context, ch <-chan struct{}, timeout time.Duration) bool {
	if fired(ch) {
		return true
	}
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func fired(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
