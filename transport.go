package mqttv5client

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Default ports per transport.
const (
	DefaultTCPPort  = 1883
	DefaultTLSPort  = 8883
	DefaultWSPort   = 80
	DefaultWSSPort  = 443
	DefaultQUICPort = 14567
)

// Transport names accepted by ClientConfig.Transport.
const (
	TransportTCP  = "tcp"
	TransportTLS  = "tls"
	TransportWS   = "ws"
	TransportWSS  = "wss"
	TransportQUIC = "quic"
	TransportUnix = "unix"
)

// Dialer establishes the byte stream a client speaks MQTT over.
// A new connection is dialed for every connection attempt.
type Dialer interface {
	// Dial connects to the address with the given context.
	Dial(ctx context.Context, address string) (net.Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, address string) (net.Conn, error)

// Dial calls f(ctx, address).
func (f DialerFunc) Dial(ctx context.Context, address string) (net.Conn, error) {
	return f(ctx, address)
}

// ContextDialer is the lower level dialer used underneath TCP and TLS.
// *net.Dialer and *ProxyDialer both implement it.
type ContextDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// TCPDialer connects to MQTT brokers over TCP.
type TCPDialer struct {
	// Timeout is the maximum time to wait for a connection.
	// Zero means no timeout.
	Timeout time.Duration

	// Forward dials the TCP connection. Nil uses a net.Dialer.
	Forward ContextDialer
}

// Dial connects to the address.
func (d *TCPDialer) Dial(ctx context.Context, address string) (net.Conn, error) {
	return dialForward(ctx, d.Forward, d.Timeout, address)
}

// TLSDialer connects to MQTT brokers over TLS.
type TLSDialer struct {
	// Config is the TLS configuration.
	Config *tls.Config

	// Timeout is the maximum time to wait for the connection and handshake.
	// Zero means no timeout.
	Timeout time.Duration

	// Forward dials the underlying TCP connection. Nil uses a net.Dialer.
	Forward ContextDialer
}

// Dial connects to the address and completes the TLS handshake.
func (d *TLSDialer) Dial(ctx context.Context, address string) (net.Conn, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	raw, err := dialForward(ctx, d.Forward, 0, address)
	if err != nil {
		return nil, err
	}

	cfg := d.Config
	if cfg == nil {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.ServerName == "" && !cfg.InsecureSkipVerify {
		host, _, _ := net.SplitHostPort(address)
		cfg = cfg.Clone()
		cfg.ServerName = host
	}

	conn := tls.Client(raw, cfg)
	if err := conn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}
	return conn, nil
}

func dialForward(ctx context.Context, forward ContextDialer, timeout time.Duration, address string) (net.Conn, error) {
	if forward == nil {
		forward = &net.Dialer{Timeout: timeout}
	} else if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return forward.DialContext(ctx, "tcp", address)
}

// NewDialer builds the dialer selected by cfg.Transport and returns it with
// the address to pass to Dial. tlsConfig is used by tls, wss and quic.
func NewDialer(cfg *ClientConfig, tlsConfig *tls.Config) (Dialer, string, error) {
	transport := strings.ToLower(cfg.Transport)

	var forward ContextDialer
	if cfg.Proxy.URL != "" {
		if transport == TransportQUIC || transport == TransportUnix {
			return nil, "", fmt.Errorf("%w: proxy is not supported for %s", ErrInvalidConfig, transport)
		}
		pd, err := NewProxyDialer(cfg.Proxy.URL, cfg.Proxy.Username, cfg.Proxy.Password)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		pd.forward.Timeout = cfg.ConnectTimeout
		forward = pd
	}

	hostPort := func(def int) string {
		port := cfg.Port
		if port == 0 {
			port = def
		}
		return net.JoinHostPort(cfg.HostName, strconv.Itoa(port))
	}

	switch transport {
	case "", TransportTCP:
		return &TCPDialer{Timeout: cfg.ConnectTimeout, Forward: forward}, hostPort(DefaultTCPPort), nil
	case TransportTLS:
		return &TLSDialer{Config: tlsConfig, Timeout: cfg.ConnectTimeout, Forward: forward}, hostPort(DefaultTLSPort), nil
	case TransportWS, TransportWSS:
		def := DefaultWSPort
		if transport == TransportWSS {
			def = DefaultWSSPort
		}
		path := cfg.Path
		if path == "" {
			path = "/mqtt"
		} else if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		d := NewWSDialer(tlsConfig, cfg.ConnectTimeout)
		if forward != nil {
			d.Dialer.NetDialContext = forward.DialContext
			d.Dialer.Proxy = nil
		}
		return d, transport + "://" + hostPort(def) + path, nil
	case TransportQUIC:
		return NewQUICDialer(tlsConfig), hostPort(DefaultQUICPort), nil
	case TransportUnix:
		return NewUnixDialer(), cfg.HostName, nil
	default:
		return nil, "", fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, cfg.Transport)
	}
}
