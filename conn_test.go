package mqttv5client

import (
	"bufio"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPacketConn(t *testing.T, maxSize uint32) (*packetConn, net.Conn, <-chan Packet, <-chan error) {
	t.Helper()

	client, server := net.Pipe()
	packets := make(chan Packet, 16)
	closed := make(chan error, 4)

	pc := newPacketConn(client, maxSize,
		func(p Packet) { packets <- p },
		func(err error) { closed <- err },
	)
	t.Cleanup(func() {
		pc.close()
		server.Close()
		pc.wait()
	})
	return pc, server, packets, closed
}

func TestPacketConnWritesInOrder(t *testing.T) {
	pc, server, _, _ := newTestPacketConn(t, 0)

	var written atomic.Int32
	for id := uint16(1); id <= 3; id++ {
		data, err := Encode(&PubackPacket{PacketID: id})
		require.NoError(t, err)
		require.NoError(t, pc.send(data, func(err error) {
			if err == nil {
				written.Add(1)
			}
		}))
	}

	r := bufio.NewReader(server)
	require.NoError(t, server.SetReadDeadline(time.Now().Add(5*time.Second)))
	for id := uint16(1); id <= 3; id++ {
		p, err := ReadPacket(r, 0)
		require.NoError(t, err)
		require.IsType(t, &PubackPacket{}, p)
		assert.Equal(t, id, p.(*PubackPacket).PacketID)
	}

	assert.Eventually(t, func() bool { return written.Load() == 3 }, time.Second, time.Millisecond)
}

func TestPacketConnDeliversInbound(t *testing.T) {
	_, server, packets, _ := newTestPacketConn(t, 0)

	data, err := Encode(&PingrespPacket{})
	require.NoError(t, err)
	go server.Write(data)

	select {
	case p := <-packets:
		assert.Equal(t, PacketPINGRESP, p.Type())
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for packet")
	}
}

func TestPacketConnCloseDoesNotReport(t *testing.T) {
	pc, _, _, closed := newTestPacketConn(t, 0)

	pc.close()
	pc.wait()

	assert.ErrorIs(t, pc.send([]byte{0xC0, 0}, nil), errConnClosed)
	assert.Empty(t, closed)
}

func TestPacketConnFailReportsOnce(t *testing.T) {
	pc, _, _, closed := newTestPacketConn(t, 0)

	pc.fail(ErrPingTimeout)
	pc.fail(errConnClosed)
	pc.wait()

	require.Len(t, closed, 1)
	assert.ErrorIs(t, <-closed, ErrPingTimeout)
}

func TestPacketConnPeerClose(t *testing.T) {
	pc, server, _, closed := newTestPacketConn(t, 0)

	server.Close()
	pc.wait()

	require.Len(t, closed, 1)
	assert.Error(t, <-closed)
}

func TestPacketConnRejectsOversizedPacket(t *testing.T) {
	pc, server, packets, closed := newTestPacketConn(t, 16)

	data, err := Encode(&PublishPacket{Topic: "a/long/topic/name", Payload: []byte("payload")})
	require.NoError(t, err)
	go server.Write(data)

	pc.wait()
	assert.Empty(t, packets)
	require.Len(t, closed, 1)
	assert.ErrorIs(t, <-closed, ErrPacketTooLarge)
}

func TestPacketConnCloseFromOnClose(t *testing.T) {
	client, server := net.Pipe()
	t.Cleanup(func() { server.Close() })

	closed := make(chan error, 1)
	var pc *packetConn
	pc = newPacketConn(client, 0,
		func(Packet) {},
		func(err error) {
			pc.close()
			closed <- err
		},
	)

	server.Close()

	select {
	case err := <-closed:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("onClose did not return")
	}
	pc.wait()
}
