package mqttv5client

// UnsubscribePacket removes one or more subscriptions.
type UnsubscribePacket struct {
	PacketID       uint16
	TopicFilters   []string
	UserProperties []UserProperty
}

func (p *UnsubscribePacket) Type() PacketType { return PacketUNSUBSCRIBE }

func (p *UnsubscribePacket) packetID() uint16 { return p.PacketID }

func (p *UnsubscribePacket) Validate() error {
	if p.PacketID == 0 {
		return ErrPacketIDRequired
	}
	if len(p.TopicFilters) == 0 {
		return invalidf("unsubscribe without topic filters")
	}
	for _, f := range p.TopicFilters {
		if !ValidateTopic(f, true).IsValid {
			return invalidf("topic filter %q", f)
		}
	}
	return nil
}

func (p *UnsubscribePacket) encode(e *encoder) byte {
	e.uint16(p.PacketID)
	var pw propertyWriter
	pw.userProperties(p.UserProperties)
	e.properties(&pw)
	for _, f := range p.TopicFilters {
		e.string(f)
	}
	return 0x02
}

func (p *UnsubscribePacket) decode(d *decoder, _ byte) {
	p.PacketID = d.uint16()
	d.properties(func(id PropertyID, pd *decoder) bool {
		if id != PropUserProperty {
			return false
		}
		p.UserProperties = append(p.UserProperties, pd.userProperty())
		return true
	})
	for d.err == nil && d.remaining() > 0 {
		p.TopicFilters = append(p.TopicFilters, d.string())
	}
}

// UnsubackPacket answers UNSUBSCRIBE with one reason code per filter.
type UnsubackPacket struct {
	PacketID       uint16
	ReasonCodes    []ReasonCode
	ReasonString   *string
	UserProperties []UserProperty
}

func (p *UnsubackPacket) Type() PacketType { return PacketUNSUBACK }

func (p *UnsubackPacket) packetID() uint16 { return p.PacketID }

func (p *UnsubackPacket) Validate() error {
	if p.PacketID == 0 {
		return ErrPacketIDRequired
	}
	return nil
}

func (p *UnsubackPacket) encode(e *encoder) byte {
	encodeReasonList(e, p.PacketID, p.ReasonString, p.UserProperties, p.ReasonCodes)
	return 0
}

func (p *UnsubackPacket) decode(d *decoder, _ byte) {
	p.PacketID, p.ReasonString, p.UserProperties, p.ReasonCodes = decodeReasonList(d)
}
