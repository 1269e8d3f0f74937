package mqttv5client

// ackPacket is the common shape of PUBACK, PUBREC, PUBREL and PUBCOMP.
type ackPacket struct {
	PacketID       uint16
	ReasonCode     ReasonCode
	ReasonString   *string
	UserProperties []UserProperty
}

func (a *ackPacket) validate() error {
	if a.PacketID == 0 {
		return ErrPacketIDRequired
	}
	return nil
}

func (a *ackPacket) encode(e *encoder) {
	e.uint16(a.PacketID)
	if a.ReasonCode == ReasonSuccess && a.ReasonString == nil && len(a.UserProperties) == 0 {
		return
	}
	e.byte(byte(a.ReasonCode))

	var pw propertyWriter
	pw.optString(PropReasonString, a.ReasonString)
	pw.userProperties(a.UserProperties)
	if len(pw.e.buf) > 0 || pw.e.err != nil {
		e.properties(&pw)
	}
}

func (a *ackPacket) decode(d *decoder) {
	a.PacketID = d.uint16()
	if d.remaining() == 0 {
		a.ReasonCode = ReasonSuccess
		return
	}
	a.ReasonCode = ReasonCode(d.byte())
	if d.remaining() > 0 {
		d.properties(func(id PropertyID, pd *decoder) bool {
			switch id {
			case PropReasonString:
				a.ReasonString = Ptr(pd.string())
			case PropUserProperty:
				a.UserProperties = append(a.UserProperties, pd.userProperty())
			default:
				return false
			}
			return true
		})
	}
	d.noTrailing()
}

// PubackPacket acknowledges a QoS 1 PUBLISH.
type PubackPacket ackPacket

func (p *PubackPacket) Type() PacketType          { return PacketPUBACK }
func (p *PubackPacket) Validate() error           { return (*ackPacket)(p).validate() }
func (p *PubackPacket) packetID() uint16          { return p.PacketID }
func (p *PubackPacket) encode(e *encoder) byte    { (*ackPacket)(p).encode(e); return 0 }
func (p *PubackPacket) decode(d *decoder, _ byte) { (*ackPacket)(p).decode(d) }

// PubrecPacket is the first acknowledgment of a QoS 2 PUBLISH.
type PubrecPacket ackPacket

func (p *PubrecPacket) Type() PacketType          { return PacketPUBREC }
func (p *PubrecPacket) Validate() error           { return (*ackPacket)(p).validate() }
func (p *PubrecPacket) packetID() uint16          { return p.PacketID }
func (p *PubrecPacket) encode(e *encoder) byte    { (*ackPacket)(p).encode(e); return 0 }
func (p *PubrecPacket) decode(d *decoder, _ byte) { (*ackPacket)(p).decode(d) }

// PubrelPacket releases a QoS 2 PUBLISH after PUBREC.
type PubrelPacket ackPacket

func (p *PubrelPacket) Type() PacketType          { return PacketPUBREL }
func (p *PubrelPacket) Validate() error           { return (*ackPacket)(p).validate() }
func (p *PubrelPacket) packetID() uint16          { return p.PacketID }
func (p *PubrelPacket) encode(e *encoder) byte    { (*ackPacket)(p).encode(e); return 0x02 }
func (p *PubrelPacket) decode(d *decoder, _ byte) { (*ackPacket)(p).decode(d) }

// PubcompPacket completes a QoS 2 exchange.
type PubcompPacket ackPacket

func (p *PubcompPacket) Type() PacketType          { return PacketPUBCOMP }
func (p *PubcompPacket) Validate() error           { return (*ackPacket)(p).validate() }
func (p *PubcompPacket) packetID() uint16          { return p.PacketID }
func (p *PubcompPacket) encode(e *encoder) byte    { (*ackPacket)(p).encode(e); return 0 }
func (p *PubcompPacket) decode(d *decoder, _ byte) { (*ackPacket)(p).decode(d) }
