// Package brokertest provides a scripted MQTT server for client tests.
//
// Connections are in-memory pipes handed out by Broker.Dialer. A test accepts
// each connection and drives the server side one packet at a time:
//
//	b := brokertest.New(t)
//	client, _ := mqttv5client.NewClient(cfg, mqttv5client.WithDialer(b.Dialer()))
//	client.Start()
//	conn := b.Accept()
//	conn.Handshake(&mqttv5client.ConnackPacket{})
//	sub := brokertest.Expect[*mqttv5client.SubscribePacket](conn)
package brokertest

import (
	"bufio"
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/vitalvas/mqttv5client"
)

// Timeout bounds every wait in this package.
const Timeout = 5 * time.Second

// Broker hands out server ends of client connections.
type Broker struct {
	t     testing.TB
	conns chan *Conn

	mu      sync.Mutex
	dials   int
	dialErr error
}

// New returns a broker bound to t.
func New(t testing.TB) *Broker {
	return &Broker{
		t:     t,
		conns: make(chan *Conn, 16),
	}
}

// Dialer returns a dialer that connects to this broker.
func (b *Broker) Dialer() mqttv5client.Dialer {
	return mqttv5client.DialerFunc(b.dial)
}

func (b *Broker) dial(ctx context.Context, _ string) (net.Conn, error) {
	b.mu.Lock()
	b.dials++
	err := b.dialErr
	b.mu.Unlock()

	if err != nil {
		return nil, err
	}

	client, server := net.Pipe()
	c := &Conn{t: b.t, conn: server, r: bufio.NewReader(server)}
	select {
	case b.conns <- c:
		return client, nil
	case <-ctx.Done():
		client.Close()
		server.Close()
		return nil, ctx.Err()
	}
}

// FailDials makes every following dial return err. Pass nil to accept again.
func (b *Broker) FailDials(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dialErr = err
}

// Dials returns the number of dial attempts so far, failed ones included.
func (b *Broker) Dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

// Accept returns the next client connection.
func (b *Broker) Accept() *Conn {
	b.t.Helper()

	select {
	case c := <-b.conns:
		b.t.Cleanup(func() { c.conn.Close() })
		return c
	case <-time.After(Timeout):
		b.t.Fatalf("brokertest: no connection within %s", Timeout)
		return nil
	}
}

// NoConnection fails the test if a connection arrives within d.
func (b *Broker) NoConnection(d time.Duration) {
	b.t.Helper()

	select {
	case c := <-b.conns:
		c.conn.Close()
		b.t.Fatalf("brokertest: unexpected connection")
	case <-time.After(d):
	}
}

// Conn is the server end of one client connection.
type Conn struct {
	t    testing.TB
	conn net.Conn
	r    *bufio.Reader
}

// Next reads the next packet sent by the client.
func (c *Conn) Next() mqttv5client.Packet {
	c.t.Helper()

	c.conn.SetReadDeadline(time.Now().Add(Timeout))
	p, err := mqttv5client.ReadPacket(c.r, 0)
	if err != nil {
		c.t.Fatalf("brokertest: read packet: %v", err)
	}
	return p
}

// Expect reads the next packet and fails the test unless it is a T.
func Expect[T mqttv5client.Packet](c *Conn) T {
	c.t.Helper()

	p := c.Next()
	pkt, ok := p.(T)
	if !ok {
		var want T
		c.t.Fatalf("brokertest: got %s, want %T", p.Type(), want)
	}
	return pkt
}

// NoPacket fails the test if the client sends anything within d.
func (c *Conn) NoPacket(d time.Duration) {
	c.t.Helper()

	c.conn.SetReadDeadline(time.Now().Add(d))
	p, err := mqttv5client.ReadPacket(c.r, 0)
	if err == nil {
		c.t.Fatalf("brokertest: unexpected %s", p.Type())
	}
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		c.t.Fatalf("brokertest: read: %v", err)
	}
}

// ExpectClosed waits for the client to close the connection.
func (c *Conn) ExpectClosed() {
	c.t.Helper()

	c.conn.SetReadDeadline(time.Now().Add(Timeout))
	for {
		p, err := mqttv5client.ReadPacket(c.r, 0)
		if err == nil {
			// DISCONNECT may still be in the pipe.
			if p.Type() == mqttv5client.PacketDISCONNECT {
				continue
			}
			c.t.Fatalf("brokertest: got %s, want close", p.Type())
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			c.t.Fatalf("brokertest: connection still open after %s", Timeout)
		}
		return
	}
}

// Send writes p to the client.
func (c *Conn) Send(p mqttv5client.Packet) {
	c.t.Helper()

	data, err := mqttv5client.Encode(p)
	if err != nil {
		c.t.Fatalf("brokertest: encode %s: %v", p.Type(), err)
	}
	c.SendRaw(data)
}

// SendRaw writes data to the client unchanged, for frames Encode refuses to
// produce.
func (c *Conn) SendRaw(data []byte) {
	c.t.Helper()

	c.conn.SetWriteDeadline(time.Now().Add(Timeout))
	if _, err := c.conn.Write(data); err != nil {
		c.t.Fatalf("brokertest: write: %v", err)
	}
}

// Handshake reads CONNECT and answers with connack, a successful one when
// nil. It returns the CONNECT.
func (c *Conn) Handshake(connack *mqttv5client.ConnackPacket) *mqttv5client.ConnectPacket {
	c.t.Helper()

	connect := Expect[*mqttv5client.ConnectPacket](c)
	if connack == nil {
		connack = &mqttv5client.ConnackPacket{}
	}
	c.Send(connack)
	return connect
}

// Close drops the connection as a failing network would.
func (c *Conn) Close() {
	c.conn.Close()
}
