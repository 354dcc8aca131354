package v1

import (
	"sync/atomic"

	"github.com/gocql/gocql"

	"github.com/arloliu/cqlharness/adapter/cql"
	"github.com/arloliu/cqlharness/events"
)

// host is a node as seen by any session of a Driver.
type host struct {
	address    string
	datacenter atomic.Value // string
	up         atomic.Bool
	monitor    *events.Monitor
}

var _ cql.Host = (*host)(nil)

func (h *host) Address() string { return h.address }

func (h *host) Datacenter() string {
	dc, _ := h.datacenter.Load().(string)
	return dc
}

func (h *host) IsUp() bool { return h.up.Load() }

func (h *host) Monitor() cql.HostMonitor { return h.monitor }

// hostAddress returns the address gocql connects to.
func hostAddress(info *gocql.HostInfo) string {
	if info == nil {
		return ""
	}
	if ip := info.ConnectAddress(); ip != nil {
		return ip.String()
	}

	return info.HostnameAndPort()
}

// notifyingPolicy forwards host state changes to the driver before
// delegating to the wrapped load-balancing policy.
type notifyingPolicy struct {
	gocql.HostSelectionPolicy
	session *Session
}

func (p *notifyingPolicy) AddHost(info *gocql.HostInfo) {
	p.HostSelectionPolicy.AddHost(info)
	p.session.hostAdded(info, p.IsLocal(info))
}

func (p *notifyingPolicy) RemoveHost(info *gocql.HostInfo) {
	p.HostSelectionPolicy.RemoveHost(info)
	p.session.hostRemoved(info)
}

func (p *notifyingPolicy) HostUp(info *gocql.HostInfo) {
	p.HostSelectionPolicy.HostUp(info)
	p.session.hostUp(info, p.IsLocal(info))
}

func (p *notifyingPolicy) HostDown(info *gocql.HostInfo) {
	p.HostSelectionPolicy.HostDown(info)
	p.session.hostDown(info)
}
