package mqttv5client

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() ClientConfig {
	cfg := DefaultClientConfig()
	cfg.HostName = "localhost"
	return cfg
}

func TestClientConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*ClientConfig)
		valid  bool
	}{
		{"defaults", func(*ClientConfig) {}, true},
		{"missing host", func(c *ClientConfig) { c.HostName = "" }, false},
		{"port out of range", func(c *ClientConfig) { c.Port = 70000 }, false},
		{"zero receive maximum", func(c *ClientConfig) { c.ReceiveMaximum = Ptr[uint16](0) }, false},
		{"zero maximum packet size", func(c *ClientConfig) { c.MaximumPacketSizeBytes = Ptr[uint32](0) }, false},
		{"will with wildcard", func(c *ClientConfig) { c.Will = &WillConfig{Topic: "a/#"} }, false},
		{"will QoS", func(c *ClientConfig) { c.Will = &WillConfig{Topic: "a", QoS: 3} }, false},
		{"valid will", func(c *ClientConfig) { c.Will = &WillConfig{Topic: "a", QoS: AtLeastOnce} }, true},
		{"assumed QoS", func(c *ClientConfig) { c.AssumedServerMaximumQoS = Ptr(QoS(5)) }, false},
		{"session behavior", func(c *ClientConfig) { c.SessionBehavior = 9 }, false},
		{"offline queue behavior", func(c *ClientConfig) { c.OfflineQueueBehavior = 9 }, false},
		{"jitter mode", func(c *ClientConfig) { c.RetryJitterMode = 9 }, false},
		{"reconnect delays", func(c *ClientConfig) { c.MinReconnectDelay = time.Minute; c.MaxReconnectDelay = time.Second }, false},
		{"negative attempts", func(c *ClientConfig) { c.MaxReconnectAttempts = -1 }, false},
		{"negative timeout", func(c *ClientConfig) { c.AckTimeout = -time.Second }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestClientConfigValidateReportsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.HostName = ""
	cfg.MaxReconnectAttempts = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host name")
	assert.Contains(t, err.Error(), "max reconnect attempts")
}

func TestClientConfigApplyDefaults(t *testing.T) {
	cfg := ClientConfig{HostName: "h", MinReconnectDelay: 2 * time.Minute}
	cfg.applyDefaults()

	assert.Equal(t, TransportTCP, cfg.Transport)
	assert.Equal(t, 2*time.Minute, cfg.MinReconnectDelay)
	assert.Equal(t, 2*time.Minute, cfg.MaxReconnectDelay)
	assert.Equal(t, defaultConnectTimeout, cfg.ConnectTimeout)
	assert.Equal(t, defaultConnackTimeout, cfg.ConnackTimeout)
	assert.Equal(t, defaultPingTimeout, cfg.PingTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestClientConfigConnectPacket(t *testing.T) {
	cfg := validConfig()
	cfg.Username = "user"
	cfg.Password = "secret"
	cfg.KeepAliveIntervalSeconds = 30
	cfg.TopicAliasMaximum = 10
	cfg.RequestResponseInformation = true
	cfg.SessionExpiryIntervalSeconds = Ptr[uint32](3600)
	cfg.Will = &WillConfig{
		Topic:                "status/c1",
		Payload:              "offline",
		QoS:                  AtLeastOnce,
		Retain:               true,
		DelayIntervalSeconds: Ptr[uint32](5),
		ContentType:          "text/plain",
	}

	p := cfg.connectPacket("c1", true)

	assert.Equal(t, "c1", p.ClientID)
	assert.True(t, p.CleanStart)
	assert.Equal(t, uint16(30), p.KeepAliveSeconds)
	require.NotNil(t, p.Username)
	assert.Equal(t, "user", *p.Username)
	assert.Equal(t, []byte("secret"), p.Password)
	assert.Equal(t, uint16(10), *p.TopicAliasMaximum)
	assert.True(t, *p.RequestResponseInformation)
	assert.Equal(t, uint32(3600), *p.SessionExpiryInterval)
	require.NotNil(t, p.Will)
	assert.Equal(t, "status/c1", p.Will.Topic)
	assert.Equal(t, []byte("offline"), p.Will.Payload)
	assert.True(t, p.Will.Retain)
	assert.Equal(t, "text/plain", *p.Will.ContentType)
	assert.Equal(t, uint32(5), *p.WillDelayInterval)
	require.NoError(t, p.Validate())

	plain := validConfig()
	bare := plain.connectPacket("", false)
	assert.Nil(t, bare.Username)
	assert.Nil(t, bare.Password)
	assert.Nil(t, bare.TopicAliasMaximum)
	assert.Nil(t, bare.Will)
}

func TestOfflineQueueBehaviorFails(t *testing.T) {
	qos0 := &operation{kind: opPublish, packet: &PublishPacket{QoS: AtMostOnce}}
	qos1 := &operation{kind: opPublish, packet: &PublishPacket{QoS: AtLeastOnce}}
	sub := &operation{kind: opSubscribe, packet: &SubscribePacket{}}

	tests := []struct {
		behavior OfflineQueueBehavior
		want     [3]bool
	}{
		{QueuePreserveAll, [3]bool{false, false, false}},
		{QueueFailQoS0PublishOnDisconnect, [3]bool{true, false, false}},
		{QueueFailNonQoS1PublishOnDisconnect, [3]bool{true, false, true}},
		{QueueFailAllOnDisconnect, [3]bool{true, true, true}},
	}

	for _, tt := range tests {
		t.Run(tt.behavior.String(), func(t *testing.T) {
			got := [3]bool{tt.behavior.fails(qos0), tt.behavior.fails(qos1), tt.behavior.fails(sub)}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClientConfigJSON(t *testing.T) {
	cfg := validConfig()
	cfg.SessionBehavior = SessionRejoinAlways
	cfg.OfflineQueueBehavior = QueueFailAllOnDisconnect

	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"session_behavior":"rejoin_always"`)
	assert.Contains(t, string(data), `"offline_queue_behavior":"fail_all"`)
	assert.Contains(t, string(data), `"retry_jitter_mode":"default"`)

	var back ClientConfig
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, cfg, back)
}

func TestNewClientValidates(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg := validConfig()
	cfg.Transport = "carrier-pigeon"
	_, err = NewClient(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
