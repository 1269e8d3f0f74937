package mqttv5client

const (
	publishFlagRetain = 0x01
	publishFlagDup    = 0x08
)

// PublishPacket carries an application message in either direction.
type PublishPacket struct {
	PacketID  uint16
	Topic     string
	Payload   []byte
	QoS       QoS
	Retain    bool
	Duplicate bool

	PayloadFormat           *PayloadFormat
	MessageExpiryInterval   *uint32
	TopicAlias              *uint16
	ResponseTopic           *string
	CorrelationData         []byte
	SubscriptionIdentifiers []uint32
	ContentType             *string
	UserProperties          []UserProperty
}

func (p *PublishPacket) Type() PacketType { return PacketPUBLISH }

func (p *PublishPacket) packetID() uint16 { return p.PacketID }

func (p *PublishPacket) Validate() error {
	if !p.QoS.Valid() {
		return invalidf("QoS %d", p.QoS)
	}
	if p.QoS == AtMostOnce && p.Duplicate {
		return invalidf("duplicate flag on QoS 0 publish")
	}
	if p.QoS > AtMostOnce && p.PacketID == 0 {
		return ErrPacketIDRequired
	}
	if p.Topic == "" {
		if p.TopicAlias == nil {
			return invalidf("empty topic without topic alias")
		}
	} else if !ValidateTopic(p.Topic, false).IsValid {
		return invalidf("topic %q", p.Topic)
	}
	if p.TopicAlias != nil && *p.TopicAlias == 0 {
		return invalidf("topic alias must be positive")
	}
	if p.ResponseTopic != nil && !ValidateTopic(*p.ResponseTopic, false).IsValid {
		return invalidf("response topic %q", *p.ResponseTopic)
	}
	for _, id := range p.SubscriptionIdentifiers {
		if id == 0 || id > maxVarint {
			return invalidf("subscription identifier %d", id)
		}
	}
	return nil
}

func (p *PublishPacket) encode(e *encoder) byte {
	e.string(p.Topic)
	if p.QoS > AtMostOnce {
		e.uint16(p.PacketID)
	}

	var pw propertyWriter
	p.writeMessageProperties(&pw)
	pw.optUint16(PropTopicAlias, p.TopicAlias)
	for _, id := range p.SubscriptionIdentifiers {
		pw.varintProp(PropSubscriptionIdentifier, id)
	}
	e.properties(&pw)
	e.raw(p.Payload)

	flags := byte(p.QoS) << 1
	if p.Retain {
		flags |= publishFlagRetain
	}
	if p.Duplicate {
		flags |= publishFlagDup
	}
	return flags
}

func (p *PublishPacket) decode(d *decoder, flags byte) {
	p.Retain = flags&publishFlagRetain != 0
	p.Duplicate = flags&publishFlagDup != 0
	p.QoS = QoS(flags>>1) & 0x03
	if p.QoS > ExactlyOnce {
		d.fail("publish QoS 3")
		return
	}

	p.Topic = d.string()
	if p.QoS > AtMostOnce {
		p.PacketID = d.uint16()
	}

	d.properties(func(id PropertyID, pd *decoder) bool {
		switch id {
		case PropTopicAlias:
			p.TopicAlias = Ptr(pd.uint16())
		case PropSubscriptionIdentifier:
			p.SubscriptionIdentifiers = append(p.SubscriptionIdentifiers, pd.varint())
		default:
			return p.readMessageProperty(id, pd)
		}
		return true
	})
	p.Payload = d.rest()
}

// writeMessageProperties writes the properties shared by PUBLISH and the will.
func (p *PublishPacket) writeMessageProperties(pw *propertyWriter) {
	if p.PayloadFormat != nil {
		pw.byteProp(PropPayloadFormatIndicator, byte(*p.PayloadFormat))
	}
	pw.optUint32(PropMessageExpiryInterval, p.MessageExpiryInterval)
	pw.optString(PropContentType, p.ContentType)
	pw.optString(PropResponseTopic, p.ResponseTopic)
	pw.optBinary(PropCorrelationData, p.CorrelationData)
	pw.userProperties(p.UserProperties)
}

func (p *PublishPacket) readMessageProperty(id PropertyID, pd *decoder) bool {
	switch id {
	case PropPayloadFormatIndicator:
		p.PayloadFormat = Ptr(PayloadFormat(pd.byte()))
	case PropMessageExpiryInterval:
		p.MessageExpiryInterval = Ptr(pd.uint32())
	case PropContentType:
		p.ContentType = Ptr(pd.string())
	case PropResponseTopic:
		p.ResponseTopic = Ptr(pd.string())
	case PropCorrelationData:
		p.CorrelationData = pd.binary()
	case PropUserProperty:
		p.UserProperties = append(p.UserProperties, pd.userProperty())
	default:
		return false
	}
	return true
}
