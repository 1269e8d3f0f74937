package mqttv5client

// ConnectRequest is the client half of a CONNACK negotiation.
type ConnectRequest struct {
	// Connect is the CONNECT packet that was sent.
	Connect *ConnectPacket

	// MaximumQoS is the highest QoS the client intends to publish with.
	MaximumQoS QoS

	// AssumedServerMaximumQoS stands in for the server's Maximum QoS when the
	// CONNACK omits the property.
	AssumedServerMaximumQoS QoS
}

// NegotiatedSettings is the authoritative view of one connection's session
// parameters. It is computed on every successful CONNACK and discarded when the
// connection ends.
type NegotiatedSettings struct {
	MaximumQoS                       QoS
	SessionExpiryInterval            uint32
	ReceiveMaximumFromServer         uint16
	MaximumPacketSizeToServer        uint32
	MaximumPacketSizeToClient        uint32
	TopicAliasMaximumToServer        uint16
	TopicAliasMaximumToClient        uint16
	ServerKeepAlive                  uint16
	RetainAvailable                  bool
	WildcardSubscriptionsAvailable   bool
	SubscriptionIdentifiersAvailable bool
	SharedSubscriptionsAvailable     bool
	RejoinedSession                  bool
	ClientID                         string
}

// ResolveSettings merges what the client asked for with what the server
// granted. Server values win when present. It has no side effects.
func ResolveSettings(req ConnectRequest, connack *ConnackPacket) NegotiatedSettings {
	connect := req.Connect
	if connect == nil {
		connect = &ConnectPacket{}
	}

	s := NegotiatedSettings{
		MaximumQoS:                       min(req.MaximumQoS, valueOr(connack.MaximumQoS, req.AssumedServerMaximumQoS)),
		SessionExpiryInterval:            valueOr(connack.SessionExpiryInterval, valueOr(connect.SessionExpiryInterval, 0)),
		ReceiveMaximumFromServer:         valueOr(connack.ReceiveMaximum, defaultReceiveMaximum),
		MaximumPacketSizeToServer:        valueOr(connack.MaximumPacketSize, MaxPacketSize),
		MaximumPacketSizeToClient:        valueOr(connect.MaximumPacketSize, MaxPacketSize),
		TopicAliasMaximumToServer:        valueOr(connack.TopicAliasMaximum, 0),
		TopicAliasMaximumToClient:        valueOr(connect.TopicAliasMaximum, 0),
		ServerKeepAlive:                  valueOr(connack.ServerKeepAlive, connect.KeepAliveSeconds),
		RetainAvailable:                  valueOr(connack.RetainAvailable, true),
		WildcardSubscriptionsAvailable:   valueOr(connack.WildcardSubscriptionsAvailable, true),
		SubscriptionIdentifiersAvailable: valueOr(connack.SubscriptionIdentifiersAvailable, true),
		SharedSubscriptionsAvailable:     valueOr(connack.SharedSubscriptionsAvailable, true),
		RejoinedSession:                  connack.SessionPresent,
		ClientID:                         connect.ClientID,
	}

	if connect.ClientID == "" && connack.AssignedClientIdentifier != nil {
		s.ClientID = *connack.AssignedClientIdentifier
	}

	return s
}

func valueOr[T any](v *T, fallback T) T {
	if v != nil {
		return *v
	}
	return fallback
}
