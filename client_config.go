package mqttv5client

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SessionBehavior controls the Clean Start flag of each CONNECT.
type SessionBehavior int

const (
	// SessionClean starts a fresh session on every connection.
	SessionClean SessionBehavior = iota
	// SessionRejoinPostSuccess starts clean until one connection succeeds,
	// then asks to resume the session on every reconnect.
	SessionRejoinPostSuccess
	// SessionRejoinAlways always asks to resume the session.
	SessionRejoinAlways
)

var sessionBehaviorNames = map[SessionBehavior]string{
	SessionClean:             "clean",
	SessionRejoinPostSuccess: "rejoin_post_success",
	SessionRejoinAlways:      "rejoin_always",
}

func (b SessionBehavior) String() string {
	if s, ok := sessionBehaviorNames[b]; ok {
		return s
	}
	return fmt.Sprintf("SessionBehavior(%d)", int(b))
}

func (b *SessionBehavior) UnmarshalText(text []byte) error {
	return unmarshalEnum(sessionBehaviorNames, text, "session behavior", b)
}

func (b SessionBehavior) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// OfflineQueueBehavior selects which queued, never-sent operations are failed
// when a connection ends. In-flight operations always fail.
type OfflineQueueBehavior int

const (
	// QueuePreserveAll keeps every queued operation for the next connection.
	QueuePreserveAll OfflineQueueBehavior = iota
	// QueueFailQoS0PublishOnDisconnect fails queued QoS 0 publishes.
	QueueFailQoS0PublishOnDisconnect
	// QueueFailNonQoS1PublishOnDisconnect fails everything except QoS 1 publishes.
	QueueFailNonQoS1PublishOnDisconnect
	// QueueFailAllOnDisconnect fails every queued operation.
	QueueFailAllOnDisconnect
)

var offlineQueueBehaviorNames = map[OfflineQueueBehavior]string{
	QueuePreserveAll:                    "preserve_all",
	QueueFailQoS0PublishOnDisconnect:    "fail_qos0_publish",
	QueueFailNonQoS1PublishOnDisconnect: "fail_non_qos1_publish",
	QueueFailAllOnDisconnect:            "fail_all",
}

func (b OfflineQueueBehavior) String() string {
	if s, ok := offlineQueueBehaviorNames[b]; ok {
		return s
	}
	return fmt.Sprintf("OfflineQueueBehavior(%d)", int(b))
}

func (b *OfflineQueueBehavior) UnmarshalText(text []byte) error {
	return unmarshalEnum(offlineQueueBehaviorNames, text, "offline queue behavior", b)
}

func (b OfflineQueueBehavior) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// fails reports whether a queued op is dropped at disconnect.
func (b OfflineQueueBehavior) fails(op *operation) bool {
	switch b {
	case QueueFailAllOnDisconnect:
		return true
	case QueueFailNonQoS1PublishOnDisconnect:
		return op.kind != opPublish || op.qos() != AtLeastOnce
	case QueueFailQoS0PublishOnDisconnect:
		return op.kind == opPublish && op.qos() == AtMostOnce
	default:
		return false
	}
}

func unmarshalEnum[T comparable](names map[T]string, text []byte, what string, dst *T) error {
	name := strings.ToLower(strings.TrimSpace(string(text)))
	for v, s := range names {
		if s == name {
			*dst = v
			return nil
		}
	}
	return fmt.Errorf("%w: unknown %s %q", ErrInvalidConfig, what, text)
}

// WillConfig describes the Will message sent in CONNECT.
type WillConfig struct {
	Topic                        string         `json:"topic"`
	Payload                      string         `json:"payload,omitempty"`
	QoS                          QoS            `json:"qos,omitempty"`
	Retain                       bool           `json:"retain,omitempty"`
	DelayIntervalSeconds         *uint32        `json:"delay_interval_seconds,omitempty"`
	MessageExpiryIntervalSeconds *uint32        `json:"message_expiry_interval_seconds,omitempty"`
	PayloadFormat                *PayloadFormat `json:"payload_format,omitempty"`
	ContentType                  string         `json:"content_type,omitempty"`
	ResponseTopic                string         `json:"response_topic,omitempty"`
	UserProperties               []UserProperty `json:"user_properties,omitempty"`
}

// ClientConfig is the complete, serializable client configuration.
// Start from DefaultClientConfig; zero durations are replaced by defaults in NewClient.
type ClientConfig struct {
	HostName  string      `json:"host_name"`
	Port      int         `json:"port,omitempty"`
	Transport string      `json:"transport,omitempty"`
	Path      string      `json:"path,omitempty"`
	Proxy     ProxyConfig `json:"proxy"`

	// ClientID may be empty to let the server assign one. The assigned
	// identifier is reused on reconnect.
	ClientID string `json:"client_id,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	KeepAliveIntervalSeconds     uint16         `json:"keep_alive_interval_seconds"`
	SessionExpiryIntervalSeconds *uint32        `json:"session_expiry_interval_seconds,omitempty"`
	ReceiveMaximum               *uint16        `json:"receive_maximum,omitempty"`
	MaximumPacketSizeBytes       *uint32        `json:"maximum_packet_size_bytes,omitempty"`
	TopicAliasMaximum            uint16         `json:"topic_alias_maximum,omitempty"`
	RequestResponseInformation   bool           `json:"request_response_information,omitempty"`
	Will                         *WillConfig    `json:"will,omitempty"`
	UserProperties               []UserProperty `json:"user_properties,omitempty"`

	SessionBehavior      SessionBehavior      `json:"session_behavior"`
	OfflineQueueBehavior OfflineQueueBehavior `json:"offline_queue_behavior"`

	// AssumedServerMaximumQoS is used when CONNACK omits Maximum QoS.
	// Nil means AtLeastOnce.
	AssumedServerMaximumQoS *QoS `json:"assumed_server_maximum_qos,omitempty"`

	MinReconnectDelay time.Duration `json:"min_reconnect_delay"`
	MaxReconnectDelay time.Duration `json:"max_reconnect_delay"`
	RetryJitterMode   JitterMode    `json:"retry_jitter_mode"`

	// MinConnectedTimeToResetReconnectDelay is how long a connection must last
	// before the reconnect backoff starts over.
	MinConnectedTimeToResetReconnectDelay time.Duration `json:"min_connected_time_to_reset_reconnect_delay"`

	// MaxReconnectAttempts stops the client after that many consecutive failed
	// attempts. Zero retries forever.
	MaxReconnectAttempts int `json:"max_reconnect_attempts,omitempty"`

	ConnectTimeout time.Duration `json:"connect_timeout"`
	ConnackTimeout time.Duration `json:"connack_timeout"`
	PingTimeout    time.Duration `json:"ping_timeout"`

	// AckTimeout bounds how long an in-flight operation waits for its
	// acknowledgment. Zero waits until the connection ends.
	AckTimeout time.Duration `json:"ack_timeout,omitempty"`
}

const (
	defaultKeepAlive             = 60
	defaultConnectTimeout        = 10 * time.Second
	defaultConnackTimeout        = 20 * time.Second
	defaultPingTimeout           = 30 * time.Second
	defaultMinReconnectDelay     = 1 * time.Second
	defaultMaxReconnectDelay     = 60 * time.Second
	defaultMinConnectedTimeReset = 30 * time.Second
)

// DefaultClientConfig returns a configuration with every default filled in.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Transport:                             TransportTCP,
		KeepAliveIntervalSeconds:              defaultKeepAlive,
		MinReconnectDelay:                     defaultMinReconnectDelay,
		MaxReconnectDelay:                     defaultMaxReconnectDelay,
		MinConnectedTimeToResetReconnectDelay: defaultMinConnectedTimeReset,
		ConnectTimeout:                        defaultConnectTimeout,
		ConnackTimeout:                        defaultConnackTimeout,
		PingTimeout:                           defaultPingTimeout,
	}
}

func (c *ClientConfig) applyDefaults() {
	if c.Transport == "" {
		c.Transport = TransportTCP
	}
	if c.MinReconnectDelay == 0 {
		c.MinReconnectDelay = defaultMinReconnectDelay
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = max(defaultMaxReconnectDelay, c.MinReconnectDelay)
	}
	if c.MinConnectedTimeToResetReconnectDelay == 0 {
		c.MinConnectedTimeToResetReconnectDelay = defaultMinConnectedTimeReset
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.ConnackTimeout == 0 {
		c.ConnackTimeout = defaultConnackTimeout
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = defaultPingTimeout
	}
}

// Validate reports every problem with c, joined and wrapped in ErrInvalidConfig.
func (c *ClientConfig) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.HostName == "" {
		add("host name is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		add("port %d out of range", c.Port)
	}
	if c.ReceiveMaximum != nil && *c.ReceiveMaximum == 0 {
		add("receive maximum must be positive")
	}
	if c.MaximumPacketSizeBytes != nil && *c.MaximumPacketSizeBytes == 0 {
		add("maximum packet size must be positive")
	}
	if c.Will != nil {
		if !ValidateTopic(c.Will.Topic, false).IsValid {
			add("will topic %q is not a valid topic", c.Will.Topic)
		}
		if !c.Will.QoS.Valid() {
			add("will QoS %d", c.Will.QoS)
		}
	}
	if c.AssumedServerMaximumQoS != nil && !c.AssumedServerMaximumQoS.Valid() {
		add("assumed server maximum QoS %d", *c.AssumedServerMaximumQoS)
	}
	if _, ok := sessionBehaviorNames[c.SessionBehavior]; !ok {
		add("session behavior %d", c.SessionBehavior)
	}
	if _, ok := offlineQueueBehaviorNames[c.OfflineQueueBehavior]; !ok {
		add("offline queue behavior %d", c.OfflineQueueBehavior)
	}
	if _, ok := jitterModeNames[c.RetryJitterMode]; !ok {
		add("jitter mode %d", c.RetryJitterMode)
	}
	if c.MinReconnectDelay < 0 || c.MaxReconnectDelay < c.MinReconnectDelay {
		add("reconnect delays must satisfy 0 <= min (%s) <= max (%s)", c.MinReconnectDelay, c.MaxReconnectDelay)
	}
	if c.MaxReconnectAttempts < 0 {
		add("max reconnect attempts must not be negative")
	}
	if c.ConnectTimeout < 0 || c.ConnackTimeout < 0 || c.PingTimeout < 0 || c.AckTimeout < 0 {
		add("timeouts must not be negative")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// connectPacket builds the CONNECT for one attempt.
func (c *ClientConfig) connectPacket(clientID string, cleanStart bool) *ConnectPacket {
	p := &ConnectPacket{
		ClientID:              clientID,
		CleanStart:            cleanStart,
		KeepAliveSeconds:      c.KeepAliveIntervalSeconds,
		SessionExpiryInterval: c.SessionExpiryIntervalSeconds,
		ReceiveMaximum:        c.ReceiveMaximum,
		MaximumPacketSize:     c.MaximumPacketSizeBytes,
		UserProperties:        c.UserProperties,
	}

	if c.Username != "" {
		p.Username = Ptr(c.Username)
	}
	if c.Password != "" {
		p.Password = []byte(c.Password)
	}
	if c.TopicAliasMaximum > 0 {
		p.TopicAliasMaximum = Ptr(c.TopicAliasMaximum)
	}
	if c.RequestResponseInformation {
		p.RequestResponseInformation = Ptr(true)
	}

	if w := c.Will; w != nil {
		p.Will = &PublishPacket{
			Topic:                 w.Topic,
			Payload:               []byte(w.Payload),
			QoS:                   w.QoS,
			Retain:                w.Retain,
			PayloadFormat:         w.PayloadFormat,
			MessageExpiryInterval: w.MessageExpiryIntervalSeconds,
			UserProperties:        w.UserProperties,
		}
		if w.ContentType != "" {
			p.Will.ContentType = Ptr(w.ContentType)
		}
		if w.ResponseTopic != "" {
			p.Will.ResponseTopic = Ptr(w.ResponseTopic)
		}
		p.WillDelayInterval = w.DelayIntervalSeconds
	}

	return p
}

// maxInboundPacketSize is the limit enforced on packets read from the server.
func (c *ClientConfig) maxInboundPacketSize() uint32 {
	if c.MaximumPacketSizeBytes != nil {
		return *c.MaximumPacketSizeBytes
	}
	return MaxPacketSize
}

func (c *ClientConfig) assumedServerMaximumQoS() QoS {
	if c.AssumedServerMaximumQoS != nil {
		return *c.AssumedServerMaximumQoS
	}
	return AtLeastOnce
}

// clientOptions holds the collaborators that do not belong in a config file.
type clientOptions struct {
	logger    Logger
	metrics   Metrics
	dialer    Dialer
	tlsConfig *tls.Config
	listeners []EventListener
}

// Option configures a Client.
type Option func(*clientOptions)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics backend. The default records nothing.
func WithMetrics(metrics Metrics) Option {
	return func(o *clientOptions) {
		o.metrics = metrics
	}
}

// WithDialer replaces the transport selected by ClientConfig.Transport.
// Dial receives "host:port" built from HostName and Port.
func WithDialer(d Dialer) Option {
	return func(o *clientOptions) {
		o.dialer = d
	}
}

// WithTLSConfig sets the TLS configuration for the tls, wss and quic transports.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *clientOptions) {
		o.tlsConfig = cfg
	}
}

// WithEventListener registers a listener before the client can emit anything.
func WithEventListener(l EventListener) Option {
	return func(o *clientOptions) {
		o.listeners = append(o.listeners, l)
	}
}
