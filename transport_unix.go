package mqttv5client

import (
	"context"
	"net"
)

// UnixDialer connects to MQTT brokers over Unix domain sockets.
// The address is the socket file path, e.g. "/var/run/mosquitto.sock".
type UnixDialer struct {
	dialer net.Dialer
}

// Dial connects to the Unix socket at address.
func (d *UnixDialer) Dial(ctx context.Context, address string) (net.Conn, error) {
	return d.dialer.DialContext(ctx, "unix", address)
}

// NewUnixDialer creates a new Unix socket dialer.
func NewUnixDialer() *UnixDialer {
	return &UnixDialer{}
}
