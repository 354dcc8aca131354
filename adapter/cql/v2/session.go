package v2

import (
	"context"
	"errors"

	gocql "github.com/apache/cassandra-gocql-driver/v2"

	"github.com/arloliu/cqlharness/adapter/cql"
)

// Session adapts a session of the Apache driver to cql.Session, so that
// sessions created outside the harness can run through the retry executors.
//
// The Apache driver does not expose host or pool callbacks the harness can
// hook, so there is no Driver here: pool checks need the v1 adapter.
type Session struct {
	session *gocql.Session
}

var _ cql.Session = (*Session)(nil)

// NewSession wraps an Apache driver session.
//
// Parameters:
//   - session: A connected gocql v2 session
//
// Returns:
//   - *Session: An adapter implementing cql.Session
func NewSession(session *gocql.Session) *Session {
	return &Session{session: session}
}

// WrapSession is NewSession returning the interface type.
//
// Example:
//
//	cluster := gocql.NewCluster("127.0.0.1")
//	gs, _ := cluster.CreateSession()
//	_, err := h.ExecuteUntilPass(ctx, v2.WrapSession(gs), "CREATE KEYSPACE ...")
func WrapSession(session *gocql.Session) cql.Session {
	return NewSession(session)
}

// Execute runs stmt once and returns its rows.
func (s *Session) Execute(ctx context.Context, stmt cql.Statement) (*cql.Result, error) {
	if stmt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, stmt.Timeout)
		defer cancel()
	}

	iter := s.session.Query(stmt.CQL, stmt.Args...).IterContext(ctx)
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

// Close closes the wrapped session.
func (s *Session) Close() {
	if s.session != nil {
		s.session.Close()
	}
}

// UnwrapSession returns the underlying driver session.
//
// Example:
//
//	gs := v2.UnwrapSession(session)
//	meta, _ := gs.KeyspaceMetadata("test3rf")
func UnwrapSession(s *Session) *gocql.Session {
	return s.session
}
