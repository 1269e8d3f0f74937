package mqttv5client

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

// State is the lifecycle state of a Client.
type State int

const (
	StateStopped State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateReconnectWaiting
	StateClosed
)

var stateNames = map[State]string{
	StateStopped:          "stopped",
	StateConnecting:       "connecting",
	StateConnected:        "connected",
	StateDisconnecting:    "disconnecting",
	StateReconnectWaiting: "reconnect_waiting",
	StateClosed:           "closed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Client is an MQTT v5 client that keeps a connection alive and sequences
// outbound operations over it.
//
// All state is guarded by one mutex and mutated from three places: the public
// API, callbacks from the current transport connection, and timers. Each
// connection attempt gets a new epoch; callbacks carrying an older epoch are
// ignored. Events are queued under the lock and delivered by a separate
// goroutine, so listeners may call back into the client.
type Client struct {
	cfg     ClientConfig
	logger  Logger
	metrics clientMetrics
	dialer  Dialer
	address string
	events  *eventDispatcher

	mu             sync.Mutex
	state          State
	epoch          uint64
	conn           *packetConn
	dialCancel     context.CancelFunc
	connect        *ConnectPacket
	settings       *NegotiatedSettings
	hasConnected   bool
	assignedID     string
	connectedAt    time.Time
	failedAttempts int

	queue         []*operation
	inflight      map[uint16]*operation
	writing       map[*operation]struct{}
	ids           *packetIDAllocator
	flow          *flowController
	inboundQoS2   map[uint16]struct{}
	aliases       *inboundTopicAliases
	subscriptions map[string]QoS

	backoff         *reconnectBackoff
	reconnectTimer  *time.Timer
	connackTimer    *time.Timer
	keepAliveTimer  *time.Timer
	pingTimer       *time.Timer
	disconnectTimer *time.Timer
	keepAlive       time.Duration
	lastWrite       time.Time

	stopFuture *Future[struct{}]
}

// NewClient validates cfg and returns a stopped client. Nothing is dialed
// until Start. Close must be called to release the event goroutine.
func NewClient(cfg ClientConfig, opts ...Option) (*Client, error) {
	o := &clientOptions{}
	for _, opt := range opts {
		opt(o)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dialer := o.dialer
	var address string
	if dialer == nil {
		d, addr, err := NewDialer(&cfg, o.tlsConfig)
		if err != nil {
			return nil, err
		}
		dialer, address = d, addr
	} else {
		port := cfg.Port
		if port == 0 {
			port = DefaultTCPPort
		}
		address = net.JoinHostPort(cfg.HostName, strconv.Itoa(port))
	}

	logger := o.logger
	if logger == nil {
		logger = NewNoOpLogger()
	}
	if cfg.ClientID != "" {
		logger = logger.WithFields(LogFields{LogFieldClientID: cfg.ClientID})
	}

	metrics := o.metrics
	if metrics == nil {
		metrics = &NoOpMetrics{}
	}

	c := &Client{
		cfg:           cfg,
		logger:        logger,
		metrics:       clientMetrics{m: metrics},
		dialer:        dialer,
		address:       address,
		events:        newEventDispatcher(),
		state:         StateStopped,
		inflight:      make(map[uint16]*operation),
		writing:       make(map[*operation]struct{}),
		ids:           newPacketIDAllocator(),
		flow:          newFlowController(defaultReceiveMaximum),
		inboundQoS2:   make(map[uint16]struct{}),
		subscriptions: make(map[string]QoS),
		backoff:       newReconnectBackoff(cfg.MinReconnectDelay, cfg.MaxReconnectDelay, cfg.RetryJitterMode),
	}
	for _, l := range o.listeners {
		c.events.add(l)
	}

	return c, nil
}

// AddListener registers l for every future event and returns a func that
// removes it.
func (c *Client) AddListener(l EventListener) (remove func()) {
	return c.events.add(l)
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// NegotiatedSettings returns a copy of the current connection's settings, or
// nil when not connected.
func (c *Client) NegotiatedSettings() *NegotiatedSettings {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.settings == nil {
		return nil
	}
	s := *c.settings
	return &s
}

// Start begins connecting. It is valid from StateStopped, and from
// StateReconnectWaiting where it skips the remaining backoff. The result of the
// attempt is reported through events.
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateClosed:
		return ErrClientClosed
	case StateStopped:
		c.backoff.reset()
		c.failedAttempts = 0
	case StateReconnectWaiting:
		stopTimer(&c.reconnectTimer)
	default:
		return fmt.Errorf("%w: start while %s", ErrInvalidState, c.state)
	}

	c.beginConnectLocked()
	return nil
}

// Stop ends the current connection and suppresses reconnects. When connected,
// disconnect (or a Normal Disconnection if nil) is sent first. In-flight
// operations fail with ErrClientStopped; queued operations stay queued for the
// next Start. The future resolves once the client is stopped.
func (c *Client) Stop(disconnect *DisconnectPacket) (*Future[struct{}], error) {
	if disconnect == nil {
		disconnect = &DisconnectPacket{ReasonCode: ReasonNormalDisconnection}
	}
	if err := disconnect.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateClosed:
		return nil, ErrClientClosed
	case StateStopped:
		return completedFuture(struct{}{}), nil
	case StateDisconnecting:
		return c.stopFuture, nil
	}

	f := newFuture[struct{}]()
	c.stopFuture = f

	if c.state == StateConnected {
		c.state = StateDisconnecting
		epoch := c.epoch
		err := c.writePacketLocked(disconnect, func(error) {
			c.onDisconnectWritten(epoch)
		})
		if err == nil {
			c.disconnectTimer = time.AfterFunc(c.cfg.ConnectTimeout, func() {
				c.onDisconnectWritten(epoch)
			})
			return f, nil
		}
	}

	c.finishStopLocked()
	return f, nil
}

// Close releases the client for good. Every queued and in-flight operation
// fails with ErrClientClosed and later calls return it. Events already emitted
// are still delivered. Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return nil
	}

	wasStopped := c.state == StateStopped
	c.teardownLocked()
	stopTimer(&c.reconnectTimer)

	c.failInflightLocked(ErrClientClosed)
	queued := c.queue
	c.queue = nil
	for _, op := range queued {
		c.completeLocked(op, nil, ErrClientClosed)
	}
	c.metrics.queueDepth(0, 0)

	if c.stopFuture != nil {
		c.stopFuture.resolve(struct{}{})
		c.stopFuture = nil
	}

	c.state = StateClosed
	if !wasStopped {
		c.emit(Event{Type: EventStopped})
	}
	c.logger.Info("client closed", nil)
	c.events.close()
	return nil
}

func (c *Client) emit(ev Event) {
	c.events.emit(ev)
}

func (c *Client) beginConnectLocked() {
	c.epoch++
	epoch := c.epoch
	c.state = StateConnecting
	c.emit(Event{Type: EventAttemptingConnect})
	c.logger.Debug("connecting", LogFields{LogFieldAddress: c.address})

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	c.dialCancel = cancel
	go c.dial(ctx, cancel, epoch)
}

func (c *Client) dial(ctx context.Context, cancel context.CancelFunc, epoch uint64) {
	defer cancel()

	conn, err := c.dialer.Dial(ctx, c.address)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch || c.state != StateConnecting {
		if conn != nil {
			conn.Close()
		}
		return
	}
	c.dialCancel = nil

	if err != nil {
		c.connectionFailedLocked(fmt.Errorf("%w: dial %s: %w", ErrConnectionLost, c.address, err))
		return
	}
	c.openLocked(epoch, conn)
}

// openLocked wraps a freshly dialed connection and sends CONNECT.
func (c *Client) openLocked(epoch uint64, conn net.Conn) {
	c.conn = newPacketConn(conn, c.cfg.maxInboundPacketSize(),
		func(p Packet) { c.onPacket(epoch, p) },
		func(err error) { c.onConnClosed(epoch, err) },
	)
	c.aliases = newInboundTopicAliases(c.cfg.TopicAliasMaximum)

	clientID := c.cfg.ClientID
	if clientID == "" {
		clientID = c.assignedID
	}
	c.connect = c.cfg.connectPacket(clientID, c.cleanStartLocked())

	if err := c.writePacketLocked(c.connect, nil); err != nil {
		c.connectionFailedLocked(err)
		return
	}
	c.connackTimer = time.AfterFunc(c.cfg.ConnackTimeout, func() {
		c.onConnackTimeout(epoch)
	})
}

func (c *Client) cleanStartLocked() bool {
	switch c.cfg.SessionBehavior {
	case SessionRejoinAlways:
		return false
	case SessionRejoinPostSuccess:
		return !c.hasConnected
	default:
		return true
	}
}

// writePacketLocked encodes p and queues it on the current connection.
func (c *Client) writePacketLocked(p Packet, done func(error)) error {
	data, err := Encode(p)
	if err != nil {
		return err
	}
	return c.writeLocked(p.Type(), data, done)
}

func (c *Client) writeLocked(t PacketType, data []byte, done func(error)) error {
	if c.conn == nil {
		return errConnClosed
	}
	if err := c.conn.send(data, done); err != nil {
		return err
	}
	c.lastWrite = time.Now()
	c.metrics.packetSent(t)
	return nil
}

func (c *Client) onConnClosed(epoch uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		return
	}
	c.connectionLostLocked(fmt.Errorf("%w: %w", ErrConnectionLost, err), nil)
}

func (c *Client) onPacket(epoch uint64, p Packet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		return
	}
	c.metrics.packetReceived(p.Type())

	if err := c.handlePacketLocked(p); err != nil {
		c.logger.Warn("closing connection", LogFields{
			LogFieldPacketType: p.Type().String(),
			LogFieldError:      err,
		})
		c.connectionLostLocked(err, nil)
	}
}

// handlePacketLocked applies one inbound packet. A returned error is fatal to
// the connection.
func (c *Client) handlePacketLocked(p Packet) error {
	if c.state == StateConnecting {
		switch pkt := p.(type) {
		case *ConnackPacket:
			c.handleConnackLocked(pkt)
			return nil
		case *DisconnectPacket:
			c.connectionLostLocked(nil, pkt)
			return nil
		default:
			return protocolErrorf("%s before CONNACK", p.Type())
		}
	}

	switch pkt := p.(type) {
	case *PublishPacket:
		return c.handlePublishLocked(pkt)
	case *PubackPacket:
		c.handleAckLocked(opPublish, pkt)
	case *SubackPacket:
		c.handleAckLocked(opSubscribe, pkt)
	case *UnsubackPacket:
		c.handleAckLocked(opUnsubscribe, pkt)
	case *PubrelPacket:
		c.handlePubrelLocked(pkt)
	case *PubrecPacket, *PubcompPacket:
		// Outbound QoS 2 is never sent.
		c.logger.Warn("dropping unexpected acknowledgment", LogFields{
			LogFieldPacketType: p.Type().String(),
			LogFieldPacketID:   pkt.(identified).packetID(),
		})
	case *PingrespPacket:
		stopTimer(&c.pingTimer)
	case *DisconnectPacket:
		c.connectionLostLocked(nil, pkt)
	default:
		return protocolErrorf("unexpected %s from server", p.Type())
	}
	return nil
}

func (c *Client) handleConnackLocked(pkt *ConnackPacket) {
	stopTimer(&c.connackTimer)

	if pkt.ReasonCode.IsError() {
		c.connectionFailedLocked(&ConnackError{Connack: pkt})
		return
	}

	settings := ResolveSettings(ConnectRequest{
		Connect:                 c.connect,
		MaximumQoS:              AtLeastOnce,
		AssumedServerMaximumQoS: c.cfg.assumedServerMaximumQoS(),
	}, pkt)

	c.settings = &settings
	if c.cfg.ClientID == "" {
		c.assignedID = settings.ClientID
	}
	c.hasConnected = true
	c.failedAttempts = 0
	c.connectedAt = time.Now()
	c.flow.setReceiveMaximum(settings.ReceiveMaximumFromServer)
	c.flow.reset()

	if !pkt.SessionPresent {
		clear(c.inboundQoS2)
		clear(c.subscriptions)
	}

	c.state = StateConnected
	c.metrics.connect("success")
	c.logger.Info("connected", LogFields{
		LogFieldAddress:    c.address,
		"rejoined_session": settings.RejoinedSession,
		"keep_alive":       settings.ServerKeepAlive,
	})

	event := settings
	c.emit(Event{Type: EventConnectionSuccess, Connack: pkt, Settings: &event})

	c.keepAlive = time.Duration(settings.ServerKeepAlive) * time.Second
	c.scheduleKeepAliveLocked(c.epoch, c.keepAlive)
	c.dispatchLocked()
}

func (c *Client) handlePublishLocked(pkt *PublishPacket) error {
	if pkt.TopicAlias != nil {
		if c.cfg.TopicAliasMaximum == 0 {
			return protocolErrorf("topic alias %d without a topic alias maximum", *pkt.TopicAlias)
		}
		if err := c.aliases.resolve(pkt); err != nil {
			return protocolErrorf("topic alias %d: %w", *pkt.TopicAlias, err)
		}
	}
	if pkt.Topic == "" {
		return protocolErrorf("publish without topic")
	}

	switch pkt.QoS {
	case AtMostOnce:
		c.emit(Event{Type: EventMessageReceived, Publish: pkt})
	case AtLeastOnce:
		c.emit(Event{Type: EventMessageReceived, Publish: pkt})
		c.writePacketLocked(&PubackPacket{PacketID: pkt.PacketID}, nil)
	case ExactlyOnce:
		if _, dup := c.inboundQoS2[pkt.PacketID]; !dup {
			c.inboundQoS2[pkt.PacketID] = struct{}{}
			c.emit(Event{Type: EventMessageReceived, Publish: pkt})
		}
		c.writePacketLocked(&PubrecPacket{PacketID: pkt.PacketID}, nil)
	}
	return nil
}

func (c *Client) handlePubrelLocked(pkt *PubrelPacket) {
	code := ReasonSuccess
	if _, ok := c.inboundQoS2[pkt.PacketID]; ok {
		delete(c.inboundQoS2, pkt.PacketID)
	} else {
		code = ReasonPacketIDNotFound
	}
	c.writePacketLocked(&PubcompPacket{PacketID: pkt.PacketID, ReasonCode: code}, nil)
}

// connectionFailedLocked ends an attempt that never reached StateConnected.
func (c *Client) connectionFailedLocked(err error) {
	c.teardownLocked()
	c.failedAttempts++
	c.metrics.connect("failure")
	c.logger.Warn("connection attempt failed", LogFields{
		LogFieldAddress: c.address,
		LogFieldError:   err,
	})
	c.emit(Event{Type: EventConnectionFailure, Err: err})
	c.scheduleReconnectLocked()
}

// connectionLostLocked handles the end of the current connection that was not
// requested by Stop. disconnect is set when the server sent DISCONNECT.
func (c *Client) connectionLostLocked(cause error, disconnect *DisconnectPacket) {
	switch c.state {
	case StateConnecting:
		err := cause
		if disconnect != nil {
			err = NewDisconnectionError(cause, disconnect)
		}
		c.connectionFailedLocked(err)
		return
	case StateDisconnecting:
		c.finishStopLocked()
		return
	case StateConnected:
	default:
		return
	}

	derr := NewDisconnectionError(cause, disconnect)
	connectedFor := time.Since(c.connectedAt)

	c.teardownLocked()
	c.failInflightLocked(derr)
	c.applyOfflineQueuePolicyLocked()

	fields := LogFields{LogFieldError: derr}
	if disconnect != nil {
		fields[LogFieldReasonCode] = disconnect.ReasonCode.String()
	}
	c.logger.Warn("connection lost", fields)
	c.emit(Event{Type: EventDisconnection, Err: derr, Disconnect: disconnect})

	if connectedFor >= c.cfg.MinConnectedTimeToResetReconnectDelay {
		c.backoff.reset()
	}
	c.scheduleReconnectLocked()
}

func (c *Client) scheduleReconnectLocked() {
	if c.cfg.MaxReconnectAttempts > 0 && c.failedAttempts >= c.cfg.MaxReconnectAttempts {
		c.logger.Error("giving up reconnecting", LogFields{"attempts": c.failedAttempts})
		c.state = StateStopped
		c.emit(Event{Type: EventStopped, Err: ErrReconnectAttemptsExhausted})
		return
	}

	delay := c.backoff.next()
	c.metrics.reconnectDelay(delay)
	c.state = StateReconnectWaiting
	c.logger.Info("reconnect scheduled", LogFields{LogFieldDelay: delay.String()})

	epoch := c.epoch
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.onReconnectTimer(epoch)
	})
}

func (c *Client) onReconnectTimer(epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch || c.state != StateReconnectWaiting {
		return
	}
	c.reconnectTimer = nil
	c.beginConnectLocked()
}

func (c *Client) onConnackTimeout(epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch || c.state != StateConnecting {
		return
	}
	c.connackTimer = nil
	c.connectionFailedLocked(ErrConnackTimeout)
}

func (c *Client) onDisconnectWritten(epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch || c.state != StateDisconnecting {
		return
	}
	c.finishStopLocked()
}

func (c *Client) finishStopLocked() {
	wasConnected := c.state == StateDisconnecting

	c.teardownLocked()
	stopTimer(&c.reconnectTimer)
	c.failInflightLocked(ErrClientStopped)
	c.state = StateStopped

	if wasConnected {
		c.emit(Event{Type: EventDisconnection, Err: NewDisconnectionError(ErrClientStopped, nil)})
	}
	c.emit(Event{Type: EventStopped})
	c.logger.Info("client stopped", nil)

	if c.stopFuture != nil {
		c.stopFuture.resolve(struct{}{})
		c.stopFuture = nil
	}
}

// teardownLocked drops the current connection and every timer tied to it.
// Bumping the epoch turns any callback still in flight into a no-op.
func (c *Client) teardownLocked() {
	c.epoch++

	stopTimer(&c.connackTimer)
	stopTimer(&c.keepAliveTimer)
	stopTimer(&c.pingTimer)
	stopTimer(&c.disconnectTimer)

	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	if c.conn != nil {
		c.conn.close()
		c.conn = nil
	}
	c.settings = nil
}

// scheduleKeepAliveLocked arms the keep-alive check to run after wait.
func (c *Client) scheduleKeepAliveLocked(epoch uint64, wait time.Duration) {
	if c.keepAlive <= 0 {
		return
	}
	c.keepAliveTimer = time.AfterFunc(wait, func() {
		c.onKeepAlive(epoch)
	})
}

// onKeepAlive sends PINGREQ when nothing has been written for a full interval.
func (c *Client) onKeepAlive(epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch || c.state != StateConnected {
		return
	}

	if idle := time.Since(c.lastWrite); idle < c.keepAlive {
		c.scheduleKeepAliveLocked(epoch, c.keepAlive-idle)
		return
	}

	if c.pingTimer == nil {
		if err := c.writePacketLocked(&PingreqPacket{}, nil); err == nil {
			c.pingTimer = time.AfterFunc(c.cfg.PingTimeout, func() {
				c.onPingTimeout(epoch)
			})
		}
	}
	c.scheduleKeepAliveLocked(epoch, c.keepAlive)
}

func (c *Client) onPingTimeout(epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		return
	}
	c.pingTimer = nil
	c.connectionLostLocked(ErrPingTimeout, nil)
}

func stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
