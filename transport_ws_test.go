package mqttv5client

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsServer upgrades every request on /mqtt and hands the connection to handle.
func wsServer(t *testing.T, handle func(*websocket.Conn)) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{
		Subprotocols: []string{WebSocketSubprotocol},
		CheckOrigin:  func(*http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/mqtt", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func dialWS(t *testing.T, server *httptest.Server) net.Conn {
	t.Helper()

	host, port, err := net.SplitHostPort(server.Listener.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)

	cfg := DefaultClientConfig()
	cfg.HostName = host
	cfg.Port = p
	cfg.Transport = TransportWS

	dialer, address, err := NewDialer(&cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := dialer.Dial(ctx, address)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWSDialerNegotiatesSubprotocol(t *testing.T) {
	subprotocol := make(chan string, 1)
	server := wsServer(t, func(conn *websocket.Conn) {
		subprotocol <- conn.Subprotocol()
	})

	dialWS(t, server)

	select {
	case got := <-subprotocol:
		assert.Equal(t, WebSocketSubprotocol, got)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for upgrade")
	}
}

func TestWSConnPacketsAcrossMessages(t *testing.T) {
	pingreq, err := Encode(&PingreqPacket{})
	require.NoError(t, err)
	pingresp, err := Encode(&PingrespPacket{})
	require.NoError(t, err)

	server := wsServer(t, func(conn *websocket.Conn) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		// Two packets in one message, then one packet split over two.
		both := append(append([]byte{}, pingresp...), pingresp...)
		conn.WriteMessage(websocket.BinaryMessage, both)
		conn.WriteMessage(websocket.BinaryMessage, data[:1])
		conn.WriteMessage(websocket.BinaryMessage, data[1:])
		conn.ReadMessage()
	})

	conn := dialWS(t, server)
	_, err = conn.Write(pingreq)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for _, want := range []PacketType{PacketPINGRESP, PacketPINGRESP, PacketPINGREQ} {
		p, err := ReadPacket(conn, 0)
		require.NoError(t, err)
		assert.Equal(t, want, p.Type())
	}
}

func TestWSConnRejectsTextMessages(t *testing.T) {
	server := wsServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		conn.ReadMessage()
	})

	conn := dialWS(t, server)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	buf := make([]byte, 8)
	_, err := conn.Read(buf)
	assert.ErrorIs(t, err, ErrNonBinaryFrame)
}

func TestWSConnClosedByServer(t *testing.T) {
	server := wsServer(t, func(*websocket.Conn) {})

	conn := dialWS(t, server)
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err := io.ReadAll(conn)
	assert.Error(t, err)
	assert.NotNil(t, conn.LocalAddr())
	assert.NotNil(t, conn.RemoteAddr())
}
