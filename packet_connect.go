package mqttv5client

const (
	protocolName    = "MQTT"
	protocolVersion = 5

	connectFlagCleanStart = 0x02
	connectFlagWill       = 0x04
	connectFlagWillRetain = 0x20
	connectFlagPassword   = 0x40
	connectFlagUsername   = 0x80
)

// ConnectPacket opens an MQTT session.
type ConnectPacket struct {
	ClientID         string
	CleanStart       bool
	KeepAliveSeconds uint16
	Username         *string
	Password         []byte

	SessionExpiryInterval      *uint32
	ReceiveMaximum             *uint16
	MaximumPacketSize          *uint32
	TopicAliasMaximum          *uint16
	RequestResponseInformation *bool
	RequestProblemInformation  *bool
	UserProperties             []UserProperty

	// Will is published by the server when the connection ends abnormally.
	// Only Topic, Payload, QoS, Retain and the message properties are used.
	Will              *PublishPacket
	WillDelayInterval *uint32
}

func (p *ConnectPacket) Type() PacketType { return PacketCONNECT }

func (p *ConnectPacket) Validate() error {
	if p.ReceiveMaximum != nil && *p.ReceiveMaximum == 0 {
		return invalidf("receive maximum must be positive")
	}
	if p.MaximumPacketSize != nil && *p.MaximumPacketSize == 0 {
		return invalidf("maximum packet size must be positive")
	}
	if p.Password != nil && len(p.Password) > maxUint16 {
		return ErrBinaryTooLong
	}
	if p.Will != nil {
		if !ValidateTopic(p.Will.Topic, false).IsValid {
			return invalidf("will topic %q", p.Will.Topic)
		}
		if !p.Will.QoS.Valid() {
			return invalidf("will QoS %d", p.Will.QoS)
		}
	}
	return nil
}

func (p *ConnectPacket) encode(e *encoder) byte {
	e.string(protocolName)
	e.byte(protocolVersion)

	var flags byte
	if p.CleanStart {
		flags |= connectFlagCleanStart
	}
	if p.Will != nil {
		flags |= connectFlagWill | byte(p.Will.QoS)<<3
		if p.Will.Retain {
			flags |= connectFlagWillRetain
		}
	}
	if p.Password != nil {
		flags |= connectFlagPassword
	}
	if p.Username != nil {
		flags |= connectFlagUsername
	}
	e.byte(flags)
	e.uint16(p.KeepAliveSeconds)

	var pw propertyWriter
	pw.optUint32(PropSessionExpiryInterval, p.SessionExpiryInterval)
	pw.optUint16(PropReceiveMaximum, p.ReceiveMaximum)
	pw.optUint32(PropMaximumPacketSize, p.MaximumPacketSize)
	pw.optUint16(PropTopicAliasMaximum, p.TopicAliasMaximum)
	pw.optBool(PropRequestResponseInfo, p.RequestResponseInformation)
	pw.optBool(PropRequestProblemInfo, p.RequestProblemInformation)
	pw.userProperties(p.UserProperties)
	e.properties(&pw)

	e.string(p.ClientID)

	if w := p.Will; w != nil {
		var wp propertyWriter
		wp.optUint32(PropWillDelayInterval, p.WillDelayInterval)
		w.writeMessageProperties(&wp)
		e.properties(&wp)
		e.string(w.Topic)
		e.binary(w.Payload)
	}
	if p.Username != nil {
		e.string(*p.Username)
	}
	if p.Password != nil {
		e.binary(p.Password)
	}
	return 0
}

func (p *ConnectPacket) decode(d *decoder, _ byte) {
	if name := d.string(); d.err == nil && name != protocolName {
		d.fail("protocol name %q", name)
		return
	}
	if version := d.byte(); d.err == nil && version != protocolVersion {
		d.fail("protocol version %d", version)
		return
	}

	flags := d.byte()
	if flags&0x01 != 0 {
		d.fail("reserved connect flag set")
		return
	}
	p.CleanStart = flags&connectFlagCleanStart != 0
	p.KeepAliveSeconds = d.uint16()

	d.properties(func(id PropertyID, pd *decoder) bool {
		switch id {
		case PropSessionExpiryInterval:
			p.SessionExpiryInterval = Ptr(pd.uint32())
		case PropReceiveMaximum:
			p.ReceiveMaximum = Ptr(pd.uint16())
		case PropMaximumPacketSize:
			p.MaximumPacketSize = Ptr(pd.uint32())
		case PropTopicAliasMaximum:
			p.TopicAliasMaximum = Ptr(pd.uint16())
		case PropRequestResponseInfo:
			p.RequestResponseInformation = Ptr(pd.bool())
		case PropRequestProblemInfo:
			p.RequestProblemInformation = Ptr(pd.bool())
		case PropUserProperty:
			p.UserProperties = append(p.UserProperties, pd.userProperty())
		default:
			return false
		}
		return true
	})

	p.ClientID = d.string()

	if flags&connectFlagWill != 0 {
		w := &PublishPacket{
			QoS:    QoS(flags>>3) & 0x03,
			Retain: flags&connectFlagWillRetain != 0,
		}
		d.properties(func(id PropertyID, pd *decoder) bool {
			if id == PropWillDelayInterval {
				p.WillDelayInterval = Ptr(pd.uint32())
				return true
			}
			return w.readMessageProperty(id, pd)
		})
		w.Topic = d.string()
		w.Payload = d.binary()
		p.Will = w
	}
	if flags&connectFlagUsername != 0 {
		p.Username = Ptr(d.string())
	}
	if flags&connectFlagPassword != 0 {
		p.Password = d.binary()
	}
	d.noTrailing()
}
