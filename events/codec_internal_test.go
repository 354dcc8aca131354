package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinylib/msgp/msgp"

	"github.com/arloliu/cqlharness/types"
)

func TestHostEventCodec(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ev := types.HostEvent{Address: "::1", State: types.HostDown, Timestamp: ts}

	msg, err := decodeHostEvent(encodeHostEvent(nil, "test_cluster", ev))
	require.NoError(t, err)
	assert.Equal(t, "test_cluster", msg.Cluster)
	assert.Equal(t, "::1", msg.Event.Address)
	assert.Equal(t, types.HostDown, msg.Event.State)
	assert.True(t, ts.Equal(msg.Event.Timestamp))
}

func TestHostEventCodecSkipsUnknownFields(t *testing.T) {
	buf := msgp.AppendMapHeader(nil, 3)
	buf = msgp.AppendString(buf, "address")
	buf = msgp.AppendString(buf, "10.0.0.1")
	buf = msgp.AppendString(buf, "rack")
	buf = msgp.AppendArrayHeader(buf, 2)
	buf = msgp.AppendInt(buf, 1)
	buf = msgp.AppendInt(buf, 2)
	buf = msgp.AppendString(buf, "state")
	buf = msgp.AppendString(buf, "up")

	msg, err := decodeHostEvent(buf)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", msg.Event.Address)
	assert.Equal(t, types.HostUp, msg.Event.State)
}

func TestHostEventCodecErrors(t *testing.T) {
	_, err := decodeHostEvent([]byte{0xc1})
	require.Error(t, err)

	buf := msgp.AppendMapHeader(nil, 1)
	buf = msgp.AppendString(buf, "state")
	buf = msgp.AppendString(buf, "down")
	_, err = decodeHostEvent(buf)
	require.ErrorContains(t, err, "no address")
}

func TestHostKey(t *testing.T) {
	assert.Equal(t, "p.127.0.0.1", hostKey("p", "127.0.0.1"))
	assert.Equal(t, "p.__1", hostKey("p", "::1"))
	assert.Equal(t, "p.__1_", hostKey("p", "[::1]"))
}
