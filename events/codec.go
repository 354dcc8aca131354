package events

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tinylib/msgp/msgp"

	"github.com/arloliu/cqlharness/types"
)

// Field names of the MessagePack host event map.
const (
	fieldAddress   = "address"
	fieldState     = "state"
	fieldTimestamp = "timestamp"
	fieldCluster   = "cluster"
)

// hostEventMessage is the wire form of a host event stored in the KV bucket.
type hostEventMessage struct {
	Cluster string
	Event   types.HostEvent
}

// encodeHostEvent appends ev as a MessagePack map.
func encodeHostEvent(buf []byte, cluster string, ev types.HostEvent) []byte {
	buf = msgp.AppendMapHeader(buf, 4)
	buf = msgp.AppendString(buf, fieldAddress)
	buf = msgp.AppendString(buf, ev.Address)
	buf = msgp.AppendString(buf, fieldState)
	buf = msgp.AppendString(buf, ev.State.String())
	buf = msgp.AppendString(buf, fieldTimestamp)
	buf = msgp.AppendTime(buf, ev.Timestamp)
	buf = msgp.AppendString(buf, fieldCluster)
	buf = msgp.AppendString(buf, cluster)

	return buf
}

// decodeHostEvent reads a MessagePack host event. Unknown fields are skipped.
func decodeHostEvent(raw []byte) (hostEventMessage, error) {
	var msg hostEventMessage

	sz, buf, err := msgp.ReadMapHeaderBytes(raw)
	if err != nil {
		return msg, fmt.Errorf("cqlharness/events: failed to read map header: %w", err)
	}

	for i := uint32(0); i < sz; i++ {
		var key string
		key, buf, err = msgp.ReadStringBytes(buf)
		if err != nil {
			return msg, fmt.Errorf("cqlharness/events: failed to read field name: %w", err)
		}

		switch key {
		case fieldAddress:
			msg.Event.Address, buf, err = msgp.ReadStringBytes(buf)
		case fieldState:
			var s string
			s, buf, err = msgp.ReadStringBytes(buf)
			msg.Event.State = types.ParseHostState(s)
		case fieldTimestamp:
			msg.Event.Timestamp, buf, err = msgp.ReadTimeBytes(buf)
		case fieldCluster:
			msg.Cluster, buf, err = msgp.ReadStringBytes(buf)
		default:
			buf, err = msgp.Skip(buf)
		}
		if err != nil {
			return msg, fmt.Errorf("cqlharness/events: failed to decode field %q: %w", key, err)
		}
	}

	if msg.Event.Address == "" {
		return msg, errors.New("cqlharness/events: host event has no address")
	}

	return msg, nil
}

// hostKey returns the KV key for address under prefix. Characters that are
// not valid in KV keys (IPv6 colons, brackets) become underscores.
func hostKey(prefix, address string) string {
	r := strings.NewReplacer(":", "_", "[", "_", "]", "_", "%", "_")

	return prefix + "." + r.Replace(address)
}
