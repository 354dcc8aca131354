package v1

import (
	"time"

	"github.com/gocql/gocql"

	"github.com/arloliu/cqlharness/adapter/cql"
)

// NewClusterConfig converts driver options to a gocql cluster configuration.
//
// Parameters:
//   - opts: Driver options
//
// Returns:
//   - *gocql.ClusterConfig: Configuration with the options applied over gocql defaults
//
// Example:
//
//	cfg := v1.NewClusterConfig(cql.DriverOptions{
//	    ContactPoints:   []string{"127.0.0.1"},
//	    ProtocolVersion: 4,
//	})
//	session, err := cfg.CreateSession()
func NewClusterConfig(opts cql.DriverOptions) *gocql.ClusterConfig {
	cfg := gocql.NewCluster(opts.ContactPoints...)
	if opts.Port > 0 {
		cfg.Port = opts.Port
	}
	if opts.ProtocolVersion > 0 {
		cfg.ProtoVersion = opts.ProtocolVersion
	}
	if opts.Timeout > 0 {
		cfg.Timeout = opts.Timeout
	}
	if opts.ConnectTimeout > 0 {
		cfg.ConnectTimeout = opts.ConnectTimeout
	}
	if opts.SchemaAgreementTimeout > 0 {
		cfg.MaxWaitSchemaAgreement = opts.SchemaAgreementTimeout
	}
	if opts.NumConns > 0 {
		cfg.NumConns = opts.NumConns
	}
	cfg.ReconnectInterval = time.Second

	return cfg
}

// UnwrapSession returns the gocql session behind s, or nil when s was not
// created by this package.
//
// Parameters:
//   - s: A session returned by Driver.Connect
//
// Returns:
//   - *gocql.Session: The underlying session, or nil
func UnwrapSession(s cql.Session) *gocql.Session {
	if gs, ok := s.(*Session); ok {
		return gs.session
	}

	return nil
}
