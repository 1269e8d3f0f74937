package mqttv5client

// DisconnectPacket ends a connection; either side may send it.
type DisconnectPacket struct {
	ReasonCode            ReasonCode
	SessionExpiryInterval *uint32
	ReasonString          *string
	ServerReference       *string
	UserProperties        []UserProperty
}

func (p *DisconnectPacket) Type() PacketType { return PacketDISCONNECT }

func (p *DisconnectPacket) Validate() error { return nil }

func (p *DisconnectPacket) encode(e *encoder) byte {
	var pw propertyWriter
	pw.optUint32(PropSessionExpiryInterval, p.SessionExpiryInterval)
	pw.optString(PropReasonString, p.ReasonString)
	pw.optString(PropServerReference, p.ServerReference)
	pw.userProperties(p.UserProperties)

	if p.ReasonCode == ReasonNormalDisconnection && len(pw.e.buf) == 0 && pw.e.err == nil {
		return 0
	}
	e.byte(byte(p.ReasonCode))
	e.properties(&pw)
	return 0
}

func (p *DisconnectPacket) decode(d *decoder, _ byte) {
	if d.remaining() == 0 {
		p.ReasonCode = ReasonNormalDisconnection
		return
	}
	p.ReasonCode = ReasonCode(d.byte())
	if d.remaining() == 0 {
		return
	}
	d.properties(func(id PropertyID, pd *decoder) bool {
		switch id {
		case PropSessionExpiryInterval:
			p.SessionExpiryInterval = Ptr(pd.uint32())
		case PropReasonString:
			p.ReasonString = Ptr(pd.string())
		case PropServerReference:
			p.ServerReference = Ptr(pd.string())
		case PropUserProperty:
			p.UserProperties = append(p.UserProperties, pd.userProperty())
		default:
			return false
		}
		return true
	})
	d.noTrailing()
}
