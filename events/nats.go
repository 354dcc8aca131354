package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/cqlharness/internal/logging"
	"github.com/arloliu/cqlharness/types"
)

// NATSSource watches a NATS KV bucket for host events and dispatches them to
// a Registry.
//
// Events are published by NATSPublisher (for example when the fleet pauses a
// node) so that waiters observe transitions forced outside the driver.
// Each key revision is dispatched once.
//
// Watch() should be called once per instance. Subsequent calls return the
// same channel. The channel is closed when Close() is called or the context
// is cancelled.
type NATSSource struct {
	kv       jetstream.KeyValue
	registry *Registry
	config   SourceConfig
	logger   types.Logger

	mu           sync.Mutex
	revisions    map[string]uint64
	updates      chan types.HostEvent
	done         chan struct{}
	closed       bool
	watchStarted bool
	closeOnce    sync.Once
}

// NewNATSSource creates a host event source over kv.
//
// Parameters:
//   - kv: A NATS JetStream KeyValue store
//   - registry: Registry receiving dispatched events
//   - logger: Logger for decode failures; nil discards
//   - opts: Optional configuration options
//
// Returns:
//   - *NATSSource: A new source instance
//   - error: Error if kv or registry is nil
//
// Example:
//
//	nc, _ := nats.Connect(nats.DefaultURL)
//	js, _ := jetstream.New(nc)
//	kv, _ := js.KeyValue(ctx, "cqlharness")
//
//	source, _ := events.NewNATSSource(kv, registry, logger,
//	    events.WithCluster("test_cluster"),
//	)
//	source.Watch(ctx)
func NewNATSSource(kv jetstream.KeyValue, registry *Registry, logger types.Logger, opts ...SourceOption) (*NATSSource, error) {
	if kv == nil {
		return nil, errors.New("cqlharness/events: KeyValue store is nil")
	}
	if registry == nil {
		return nil, errors.New("cqlharness/events: registry is nil")
	}

	config := DefaultSourceConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return &NATSSource{
		kv:        kv,
		registry:  registry,
		config:    config,
		logger:    logging.OrNop(logger),
		revisions: make(map[string]uint64),
		updates:   make(chan types.HostEvent, 64),
		done:      make(chan struct{}),
	}, nil
}

// Watch starts the background watch and returns a channel mirroring every
// dispatched event. Slow readers miss events; the registry never does.
//
// Parameters:
//   - ctx: Context for cancellation (only used on first call)
//
// Returns:
//   - <-chan types.HostEvent: Channel of dispatched events
func (n *NATSSource) Watch(ctx context.Context) <-chan types.HostEvent {
	n.mu.Lock()
	if n.watchStarted {
		n.mu.Unlock()

		return n.updates
	}
	n.watchStarted = true
	n.mu.Unlock()

	go n.watchLoop(ctx)

	return n.updates
}

// Close stops the source. Safe to call multiple times.
func (n *NATSSource) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}

	n.closed = true
	close(n.done)

	return nil
}

// Config returns the source configuration.
func (n *NATSSource) Config() SourceConfig {
	return n.config
}

func (n *NATSSource) watchLoop(ctx context.Context) {
	defer n.closeOnce.Do(func() { close(n.updates) })

	watcher, err := n.kv.Watch(ctx, n.config.KeyPrefix+".>")
	if err != nil {
		n.logger.Warn("host event watch failed, polling", "error", err.Error())
		n.pollLoop(ctx)

		return
	}
	defer func() { _ = watcher.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return
		case <-n.done:
			return
		case entry, ok := <-watcher.Updates():
			if !ok {
				n.pollLoop(ctx)
				return
			}
			if entry == nil {
				// End of initial values
				continue
			}
			n.processEntry(entry)
		}
	}
}

func (n *NATSSource) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(n.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-n.done:
			return
		case <-ticker.C:
			n.poll(ctx)
		}
	}
}

func (n *NATSSource) poll(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, n.config.FetchTimeout)
	defer cancel()

	lister, err := n.kv.ListKeysFiltered(fetchCtx, n.config.KeyPrefix+".>")
	if err != nil {
		return
	}
	defer func() { _ = lister.Stop() }()

	for key := range lister.Keys() {
		entry, err := n.kv.Get(fetchCtx, key)
		if err != nil {
			continue
		}
		n.processEntry(entry)
	}
}

func (n *NATSSource) processEntry(entry jetstream.KeyValueEntry) {
	if entry.Operation() == jetstream.KeyValueDelete || entry.Operation() == jetstream.KeyValuePurge {
		n.mu.Lock()
		delete(n.revisions, entry.Key())
		n.mu.Unlock()

		return
	}

	n.mu.Lock()
	if rev, ok := n.revisions[entry.Key()]; ok && rev >= entry.Revision() {
		n.mu.Unlock()
		return
	}
	n.revisions[entry.Key()] = entry.Revision()
	n.mu.Unlock()

	msg, err := decodeHostEvent(entry.Value())
	if err != nil {
		n.logger.Warn("discarding malformed host event", "key", entry.Key(), "error", err.Error())
		return
	}
	if n.config.Cluster != "" && msg.Cluster != n.config.Cluster {
		return
	}

	n.registry.Dispatch(msg.Event)

	select {
	case n.updates <- msg.Event:
	default:
		// Channel full, the registry already has the event
	}
}

// NATSPublisher writes host events into a NATS KV bucket.
type NATSPublisher struct {
	kv     jetstream.KeyValue
	config SourceConfig
}

// NewNATSPublisher creates a publisher over kv.
//
// Parameters:
//   - kv: A NATS JetStream KeyValue store
//   - opts: Optional configuration options (key prefix, cluster label)
//
// Returns:
//   - *NATSPublisher: A new publisher
//   - error: Error if kv is nil
func NewNATSPublisher(kv jetstream.KeyValue, opts ...SourceOption) (*NATSPublisher, error) {
	if kv == nil {
		return nil, errors.New("cqlharness/events: KeyValue store is nil")
	}

	config := DefaultSourceConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return &NATSPublisher{kv: kv, config: config}, nil
}

// Publish stores ev under its host key. A zero timestamp is set to now.
//
// Parameters:
//   - ctx: Context for the KV write
//   - ev: The event to publish
//
// Returns:
//   - error: KV write error
func (p *NATSPublisher) Publish(ctx context.Context, ev types.HostEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	buf := encodeHostEvent(nil, p.config.Cluster, ev)
	if _, err := p.kv.Put(ctx, hostKey(p.config.KeyPrefix, ev.Address), buf); err != nil {
		return fmt.Errorf("cqlharness/events: failed to publish host event for %s: %w", ev.Address, err)
	}

	return nil
}

// Clear deletes the stored state of address.
func (p *NATSPublisher) Clear(ctx context.Context, address string) error {
	err := p.kv.Delete(ctx, hostKey(p.config.KeyPrefix, address))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("cqlharness/events: failed to clear host %s: %w", address, err)
	}

	return nil
}
