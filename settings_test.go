package mqttv5client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveSettingsDefaults(t *testing.T) {
	req := ConnectRequest{
		Connect:                 &ConnectPacket{ClientID: "c1", KeepAliveSeconds: 30},
		MaximumQoS:              AtLeastOnce,
		AssumedServerMaximumQoS: AtLeastOnce,
	}

	s := ResolveSettings(req, &ConnackPacket{})

	assert.Equal(t, NegotiatedSettings{
		MaximumQoS:                       AtLeastOnce,
		ReceiveMaximumFromServer:         65535,
		MaximumPacketSizeToServer:        MaxPacketSize,
		MaximumPacketSizeToClient:        MaxPacketSize,
		ServerKeepAlive:                  30,
		RetainAvailable:                  true,
		WildcardSubscriptionsAvailable:   true,
		SubscriptionIdentifiersAvailable: true,
		SharedSubscriptionsAvailable:     true,
		ClientID:                         "c1",
	}, s)
}

func TestResolveSettingsServerWins(t *testing.T) {
	req := ConnectRequest{
		Connect: &ConnectPacket{
			KeepAliveSeconds:      60,
			SessionExpiryInterval: Ptr[uint32](100),
			MaximumPacketSize:     Ptr[uint32](4096),
			TopicAliasMaximum:     Ptr[uint16](8),
		},
		MaximumQoS:              AtLeastOnce,
		AssumedServerMaximumQoS: AtLeastOnce,
	}
	connack := &ConnackPacket{
		SessionPresent:                   true,
		SessionExpiryInterval:            Ptr[uint32](10),
		ReceiveMaximum:                   Ptr[uint16](5),
		MaximumQoS:                       Ptr(AtMostOnce),
		RetainAvailable:                  Ptr(false),
		MaximumPacketSize:                Ptr[uint32](1024),
		AssignedClientIdentifier:         Ptr("auto-1"),
		TopicAliasMaximum:                Ptr[uint16](3),
		WildcardSubscriptionsAvailable:   Ptr(false),
		SubscriptionIdentifiersAvailable: Ptr(false),
		SharedSubscriptionsAvailable:     Ptr(false),
		ServerKeepAlive:                  Ptr[uint16](15),
	}

	s := ResolveSettings(req, connack)

	assert.Equal(t, AtMostOnce, s.MaximumQoS)
	assert.Equal(t, uint32(10), s.SessionExpiryInterval)
	assert.Equal(t, uint16(5), s.ReceiveMaximumFromServer)
	assert.Equal(t, uint32(1024), s.MaximumPacketSizeToServer)
	assert.Equal(t, uint32(4096), s.MaximumPacketSizeToClient)
	assert.Equal(t, uint16(3), s.TopicAliasMaximumToServer)
	assert.Equal(t, uint16(8), s.TopicAliasMaximumToClient)
	assert.Equal(t, uint16(15), s.ServerKeepAlive)
	assert.False(t, s.RetainAvailable)
	assert.False(t, s.WildcardSubscriptionsAvailable)
	assert.False(t, s.SubscriptionIdentifiersAvailable)
	assert.False(t, s.SharedSubscriptionsAvailable)
	assert.True(t, s.RejoinedSession)
	assert.Equal(t, "auto-1", s.ClientID)
}

func TestResolveSettingsMaximumQoS(t *testing.T) {
	tests := []struct {
		name    string
		client  QoS
		assumed QoS
		server  *QoS
		want    QoS
	}{
		{"server omits, assumed 1", AtLeastOnce, AtLeastOnce, nil, AtLeastOnce},
		{"server omits, assumed 0", AtLeastOnce, AtMostOnce, nil, AtMostOnce},
		{"server 0", AtLeastOnce, AtLeastOnce, Ptr(AtMostOnce), AtMostOnce},
		{"client caps", AtMostOnce, AtLeastOnce, Ptr(AtLeastOnce), AtMostOnce},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ResolveSettings(ConnectRequest{MaximumQoS: tt.client, AssumedServerMaximumQoS: tt.assumed},
				&ConnackPacket{MaximumQoS: tt.server})
			assert.Equal(t, tt.want, s.MaximumQoS)
		})
	}
}

func TestResolveSettingsKeepsRequestedClientID(t *testing.T) {
	s := ResolveSettings(ConnectRequest{Connect: &ConnectPacket{ClientID: "mine"}},
		&ConnackPacket{AssignedClientIdentifier: Ptr("theirs")})
	assert.Equal(t, "mine", s.ClientID)
}

func TestResolveSettingsIsDeterministic(t *testing.T) {
	req := ConnectRequest{
		Connect:    &ConnectPacket{KeepAliveSeconds: 10, ReceiveMaximum: Ptr[uint16](7)},
		MaximumQoS: AtLeastOnce,
	}
	connack := &ConnackPacket{SessionPresent: true, ServerKeepAlive: Ptr[uint16](20)}

	assert.Equal(t, ResolveSettings(req, connack), ResolveSettings(req, connack))
	assert.Equal(t, uint16(10), req.Connect.KeepAliveSeconds)
	assert.Equal(t, uint16(20), *connack.ServerKeepAlive)
}
