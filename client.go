package cqlharness

import (
	"github.com/arloliu/cqlharness/reconcile"
	"github.com/arloliu/cqlharness/types"
)

// Type aliases for convenience - re-export from types package.
type (
	Topology         = types.Topology
	ClusterState     = types.ClusterState
	FailureKind      = types.FailureKind
	HostState        = types.HostState
	HostEvent        = types.HostEvent
	Logger           = types.Logger
	MetricsCollector = types.MetricsCollector
	ClusterHandle    = reconcile.ClusterHandle
)

// Re-export well-known cluster names.
const (
	SingleDCClusterName   = types.SingleDCClusterName
	SingleNodeClusterName = types.SingleNodeClusterName
	MultiDCClusterName    = types.MultiDCClusterName
)

// Re-export cluster state constants.
const (
	StateUnprovisioned = types.StateUnprovisioned
	StateStopped       = types.StateStopped
	StateRunning       = types.StateRunning
)
