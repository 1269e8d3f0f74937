package mqttv5client

// PingreqPacket is sent by the client to keep the connection alive.
type PingreqPacket struct{}

func (p *PingreqPacket) Type() PacketType          { return PacketPINGREQ }
func (p *PingreqPacket) Validate() error           { return nil }
func (p *PingreqPacket) encode(_ *encoder) byte    { return 0 }
func (p *PingreqPacket) decode(d *decoder, _ byte) { d.noTrailing() }

// PingrespPacket is the server's answer to PINGREQ.
type PingrespPacket struct{}

func (p *PingrespPacket) Type() PacketType          { return PacketPINGRESP }
func (p *PingrespPacket) Validate() error           { return nil }
func (p *PingrespPacket) encode(_ *encoder) byte    { return 0 }
func (p *PingrespPacket) decode(d *decoder, _ byte) { d.noTrailing() }
