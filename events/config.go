package events

import "time"

// SourceConfig holds configuration for the NATS host event source and publisher.
type SourceConfig struct {
	// KeyPrefix is the KV key prefix; hosts live at "<prefix>.<address>".
	// Default: "cqlharness.hosts"
	KeyPrefix string

	// Cluster labels published events and filters received ones. Empty
	// accepts events from any cluster.
	Cluster string

	// PollInterval is the fallback polling interval if watch fails.
	// Default: 5 seconds
	PollInterval time.Duration

	// FetchTimeout bounds each KV read while polling.
	// Default: 10 seconds
	FetchTimeout time.Duration
}

// DefaultSourceConfig returns a SourceConfig with sensible defaults.
//
// Returns:
//   - SourceConfig: Default configuration
func DefaultSourceConfig() SourceConfig {
	return SourceConfig{
		KeyPrefix:    "cqlharness.hosts",
		PollInterval: 5 * time.Second,
		FetchTimeout: 10 * time.Second,
	}
}

// SourceOption configures a NATS source or publisher.
type SourceOption func(*SourceConfig)

// WithKeyPrefix sets the KV key prefix.
//
// Parameters:
//   - prefix: The key prefix (e.g., "itest.hosts")
//
// Returns:
//   - SourceOption: Configuration option
func WithKeyPrefix(prefix string) SourceOption {
	return func(c *SourceConfig) {
		c.KeyPrefix = prefix
	}
}

// WithCluster sets the cluster label.
//
// Parameters:
//   - name: Cluster name
//
// Returns:
//   - SourceOption: Configuration option
func WithCluster(name string) SourceOption {
	return func(c *SourceConfig) {
		c.Cluster = name
	}
}

// WithPollInterval sets the fallback polling interval.
//
// If the NATS watch fails or its channel closes, the source falls back to
// polling at this interval.
//
// Parameters:
//   - d: Polling interval duration
//
// Returns:
//   - SourceOption: Configuration option
func WithPollInterval(d time.Duration) SourceOption {
	return func(c *SourceConfig) {
		c.PollInterval = d
	}
}

// WithFetchTimeout sets the timeout for KV reads while polling.
//
// Parameters:
//   - d: Timeout duration
//
// Returns:
//   - SourceOption: Configuration option
func WithFetchTimeout(d time.Duration) SourceOption {
	return func(c *SourceConfig) {
		c.FetchTimeout = d
	}
}
