package mqttv5client

// ConnackPacket is the server's answer to CONNECT.
type ConnackPacket struct {
	SessionPresent bool
	ReasonCode     ReasonCode

	SessionExpiryInterval            *uint32
	ReceiveMaximum                   *uint16
	MaximumQoS                       *QoS
	RetainAvailable                  *bool
	MaximumPacketSize                *uint32
	AssignedClientIdentifier         *string
	TopicAliasMaximum                *uint16
	ReasonString                     *string
	UserProperties                   []UserProperty
	WildcardSubscriptionsAvailable   *bool
	SubscriptionIdentifiersAvailable *bool
	SharedSubscriptionsAvailable     *bool
	ServerKeepAlive                  *uint16
	ResponseInformation              *string
	ServerReference                  *string
}

func (p *ConnackPacket) Type() PacketType { return PacketCONNACK }

func (p *ConnackPacket) Validate() error {
	if p.SessionPresent && p.ReasonCode.IsError() {
		return invalidf("session present with failure reason %s", p.ReasonCode)
	}
	if p.MaximumQoS != nil && *p.MaximumQoS > AtLeastOnce {
		return invalidf("maximum QoS %d", *p.MaximumQoS)
	}
	if p.ReceiveMaximum != nil && *p.ReceiveMaximum == 0 {
		return invalidf("receive maximum must be positive")
	}
	if p.MaximumPacketSize != nil && *p.MaximumPacketSize == 0 {
		return invalidf("maximum packet size must be positive")
	}
	return nil
}

func (p *ConnackPacket) encode(e *encoder) byte {
	e.bool(p.SessionPresent)
	e.byte(byte(p.ReasonCode))

	var pw propertyWriter
	pw.optUint32(PropSessionExpiryInterval, p.SessionExpiryInterval)
	pw.optUint16(PropReceiveMaximum, p.ReceiveMaximum)
	if p.MaximumQoS != nil {
		pw.byteProp(PropMaximumQoS, byte(*p.MaximumQoS))
	}
	pw.optBool(PropRetainAvailable, p.RetainAvailable)
	pw.optUint32(PropMaximumPacketSize, p.MaximumPacketSize)
	pw.optString(PropAssignedClientIdentifier, p.AssignedClientIdentifier)
	pw.optUint16(PropTopicAliasMaximum, p.TopicAliasMaximum)
	pw.optString(PropReasonString, p.ReasonString)
	pw.userProperties(p.UserProperties)
	pw.optBool(PropWildcardSubAvailable, p.WildcardSubscriptionsAvailable)
	pw.optBool(PropSubscriptionIDAvailable, p.SubscriptionIdentifiersAvailable)
	pw.optBool(PropSharedSubAvailable, p.SharedSubscriptionsAvailable)
	pw.optUint16(PropServerKeepAlive, p.ServerKeepAlive)
	pw.optString(PropResponseInformation, p.ResponseInformation)
	pw.optString(PropServerReference, p.ServerReference)
	e.properties(&pw)
	return 0
}

func (p *ConnackPacket) decode(d *decoder, _ byte) {
	flags := d.byte()
	if flags&0xFE != 0 {
		d.fail("reserved connack flags 0x%02x", flags)
		return
	}
	p.SessionPresent = flags&0x01 != 0
	p.ReasonCode = ReasonCode(d.byte())

	d.properties(func(id PropertyID, pd *decoder) bool {
		switch id {
		case PropSessionExpiryInterval:
			p.SessionExpiryInterval = Ptr(pd.uint32())
		case PropReceiveMaximum:
			p.ReceiveMaximum = Ptr(pd.uint16())
		case PropMaximumQoS:
			p.MaximumQoS = Ptr(QoS(pd.byte()))
		case PropRetainAvailable:
			p.RetainAvailable = Ptr(pd.bool())
		case PropMaximumPacketSize:
			p.MaximumPacketSize = Ptr(pd.uint32())
		case PropAssignedClientIdentifier:
			p.AssignedClientIdentifier = Ptr(pd.string())
		case PropTopicAliasMaximum:
			p.TopicAliasMaximum = Ptr(pd.uint16())
		case PropReasonString:
			p.ReasonString = Ptr(pd.string())
		case PropUserProperty:
			p.UserProperties = append(p.UserProperties, pd.userProperty())
		case PropWildcardSubAvailable:
			p.WildcardSubscriptionsAvailable = Ptr(pd.bool())
		case PropSubscriptionIDAvailable:
			p.SubscriptionIdentifiersAvailable = Ptr(pd.bool())
		case PropSharedSubAvailable:
			p.SharedSubscriptionsAvailable = Ptr(pd.bool())
		case PropServerKeepAlive:
			p.ServerKeepAlive = Ptr(pd.uint16())
		case PropResponseInformation:
			p.ResponseInformation = Ptr(pd.string())
		case PropServerReference:
			p.ServerReference = Ptr(pd.string())
		case PropAuthenticationMethod:
			pd.string()
		case PropAuthenticationData:
			pd.binary()
		default:
			return false
		}
		return true
	})
	d.noTrailing()
}
