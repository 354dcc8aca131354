package v1

import (
	"context"
	"errors"
	"sync"

	"github.com/gocql/gocql"

	"github.com/arloliu/cqlharness/adapter/cql"
)

// Session wraps a gocql session created by a Driver.
type Session struct {
	driver  *Driver
	session *gocql.Session

	mu      sync.Mutex
	holders map[string]*holder
	order   []string
}

var (
	_ cql.Session          = (*Session)(nil)
	_ gocql.StreamObserver = (*Session)(nil)
)

// Execute runs stmt once and returns its rows. Errors are returned as gocql
// produced them.
func (s *Session) Execute(ctx context.Context, stmt cql.Statement) (*cql.Result, error) {
	if stmt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, stmt.Timeout)
		defer cancel()
	}

	iter := s.session.Query(stmt.CQL, stmt.Args...).WithContext(ctx).Iter()
	rows, err := iter.SliceMap()
	if cerr := iter.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}

	return &cql.Result{Rows: rows}, nil
}

// KeyspaceExists reports whether keyspace is in the session's schema metadata.
func (s *Session) KeyspaceExists(_ context.Context, keyspace string) (bool, error) {
	_, err := s.session.KeyspaceMetadata(keyspace)
	switch {
	case errors.Is(err, gocql.ErrKeyspaceDoesNotExist):
		return false, nil
	case err != nil:
		return false, err
	default:
		return true, nil
	}
}

// Close closes the gocql session.
func (s *Session) Close() {
	if s.session != nil {
		s.session.Close()
	}
}

// Unwrap returns the underlying gocql session.
func (s *Session) Unwrap() *gocql.Session {
	return s.session
}

// StreamContext implements gocql.StreamObserver.
func (s *Session) StreamContext(context.Context) gocql.StreamObserverContext {
	return streamObserver{s}
}

func (s *Session) connectionHolders() []cql.ConnectionHolder {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]cql.ConnectionHolder, 0, len(s.order))
	for _, addr := range s.order {
		out = append(out, s.holders[addr])
	}

	return out
}

func (s *Session) holder(info *gocql.HostInfo) (*holder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.holders[hostAddress(info)]

	return h, ok
}

func (s *Session) openHolder(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.holders[addr]; ok {
		return
	}
	s.holders[addr] = &holder{
		address: addr,
		conn:    newObservedConn(false, s.driver.opts.IdleHeartbeatInterval, s.driver.now),
	}
	s.order = append(s.order, addr)
}

func (s *Session) closeHolder(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.holders[addr]; !ok {
		return
	}
	delete(s.holders, addr)
	for i, a := range s.order {
		if a == addr {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *Session) hostAdded(info *gocql.HostInfo, local bool) {
	s.driver.setHostState(info, info.IsUp())
	if local && info.IsUp() {
		s.openHolder(hostAddress(info))
	}
}

func (s *Session) hostRemoved(info *gocql.HostInfo) {
	s.closeHolder(hostAddress(info))
}

func (s *Session) hostUp(info *gocql.HostInfo, local bool) {
	s.driver.setHostState(info, true)
	if local {
		s.openHolder(hostAddress(info))
	}
}

func (s *Session) hostDown(info *gocql.HostInfo) {
	s.driver.setHostState(info, false)
	s.closeHolder(hostAddress(info))
}

// streamObserver attributes streams to the holder of their host.
type streamObserver struct {
	s *Session
}

func (o streamObserver) StreamStarted(stream gocql.ObservedStream) {
	if h, ok := o.s.holder(stream.Host); ok {
		h.conn.started()
	}
}

func (o streamObserver) StreamAbandoned(stream gocql.ObservedStream) {
	o.StreamFinished(stream)
}

func (o streamObserver) StreamFinished(stream gocql.ObservedStream) {
	if h, ok := o.s.holder(stream.Host); ok {
		h.conn.finished()
	}
}
