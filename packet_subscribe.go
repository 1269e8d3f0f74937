package mqttv5client

// RetainHandling controls whether retained messages are sent on subscribe.
type RetainHandling byte

const (
	RetainSendOnSubscribe      RetainHandling = 0
	RetainSendOnSubscribeIfNew RetainHandling = 1
	RetainDoNotSendOnSubscribe RetainHandling = 2
)

const (
	subscriptionOptionNoLocal     = 0x04
	subscriptionOptionRetainAsPub = 0x08
	subscriptionOptionsReserved   = 0xC0
)

// Subscription is one topic filter of a SUBSCRIBE packet.
type Subscription struct {
	TopicFilter       string
	QoS               QoS
	NoLocal           bool
	RetainAsPublished bool
	RetainHandling    RetainHandling
}

// SubscribePacket requests one or more subscriptions.
type SubscribePacket struct {
	PacketID               uint16
	Subscriptions          []Subscription
	SubscriptionIdentifier *uint32
	UserProperties         []UserProperty
}

func (p *SubscribePacket) Type() PacketType { return PacketSUBSCRIBE }

func (p *SubscribePacket) packetID() uint16 { return p.PacketID }

func (p *SubscribePacket) Validate() error {
	if p.PacketID == 0 {
		return ErrPacketIDRequired
	}
	if len(p.Subscriptions) == 0 {
		return invalidf("subscribe without subscriptions")
	}
	for _, sub := range p.Subscriptions {
		v := ValidateTopic(sub.TopicFilter, true)
		if !v.IsValid {
			return invalidf("topic filter %q", sub.TopicFilter)
		}
		if !sub.QoS.Valid() {
			return invalidf("QoS %d", sub.QoS)
		}
		if sub.RetainHandling > RetainDoNotSendOnSubscribe {
			return invalidf("retain handling %d", sub.RetainHandling)
		}
		if v.IsShared && sub.NoLocal {
			return invalidf("no local on shared subscription %q", sub.TopicFilter)
		}
	}
	if id := p.SubscriptionIdentifier; id != nil && (*id == 0 || *id > maxVarint) {
		return invalidf("subscription identifier %d", *id)
	}
	return nil
}

func (p *SubscribePacket) encode(e *encoder) byte {
	e.uint16(p.PacketID)

	var pw propertyWriter
	if p.SubscriptionIdentifier != nil {
		pw.varintProp(PropSubscriptionIdentifier, *p.SubscriptionIdentifier)
	}
	pw.userProperties(p.UserProperties)
	e.properties(&pw)

	for _, sub := range p.Subscriptions {
		e.string(sub.TopicFilter)
		options := byte(sub.QoS) | byte(sub.RetainHandling)<<4
		if sub.NoLocal {
			options |= subscriptionOptionNoLocal
		}
		if sub.RetainAsPublished {
			options |= subscriptionOptionRetainAsPub
		}
		e.byte(options)
	}
	return 0x02
}

func (p *SubscribePacket) decode(d *decoder, _ byte) {
	p.PacketID = d.uint16()
	d.properties(func(id PropertyID, pd *decoder) bool {
		switch id {
		case PropSubscriptionIdentifier:
			p.SubscriptionIdentifier = Ptr(pd.varint())
		case PropUserProperty:
			p.UserProperties = append(p.UserProperties, pd.userProperty())
		default:
			return false
		}
		return true
	})

	for d.err == nil && d.remaining() > 0 {
		filter := d.string()
		options := d.byte()
		if options&subscriptionOptionsReserved != 0 {
			d.fail("reserved subscription option bits 0x%02x", options)
			return
		}
		p.Subscriptions = append(p.Subscriptions, Subscription{
			TopicFilter:       filter,
			QoS:               QoS(options & 0x03),
			NoLocal:           options&subscriptionOptionNoLocal != 0,
			RetainAsPublished: options&subscriptionOptionRetainAsPub != 0,
			RetainHandling:    RetainHandling(options>>4) & 0x03,
		})
	}
}

// SubackPacket answers SUBSCRIBE with one reason code per requested filter.
type SubackPacket struct {
	PacketID       uint16
	ReasonCodes    []ReasonCode
	ReasonString   *string
	UserProperties []UserProperty
}

func (p *SubackPacket) Type() PacketType { return PacketSUBACK }

func (p *SubackPacket) packetID() uint16 { return p.PacketID }

func (p *SubackPacket) Validate() error {
	if p.PacketID == 0 {
		return ErrPacketIDRequired
	}
	return nil
}

func (p *SubackPacket) encode(e *encoder) byte {
	encodeReasonList(e, p.PacketID, p.ReasonString, p.UserProperties, p.ReasonCodes)
	return 0
}

func (p *SubackPacket) decode(d *decoder, _ byte) {
	p.PacketID, p.ReasonString, p.UserProperties, p.ReasonCodes = decodeReasonList(d)
}

// encodeReasonList writes the shared SUBACK/UNSUBACK layout.
func encodeReasonList(e *encoder, id uint16, reason *string, ups []UserProperty, codes []ReasonCode) {
	e.uint16(id)
	var pw propertyWriter
	pw.optString(PropReasonString, reason)
	pw.userProperties(ups)
	e.properties(&pw)
	for _, rc := range codes {
		e.byte(byte(rc))
	}
}

func decodeReasonList(d *decoder) (id uint16, reason *string, ups []UserProperty, codes []ReasonCode) {
	id = d.uint16()
	d.properties(func(pid PropertyID, pd *decoder) bool {
		switch pid {
		case PropReasonString:
			reason = Ptr(pd.string())
		case PropUserProperty:
			ups = append(ups, pd.userProperty())
		default:
			return false
		}
		return true
	})
	for d.err == nil && d.remaining() > 0 {
		codes = append(codes, ReasonCode(d.byte()))
	}
	return id, reason, ups, codes
}
