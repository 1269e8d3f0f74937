package mqttv5client

import (
	"errors"
	"fmt"
)

// Packet errors.
var (
	ErrMalformedPacket   = errors.New("malformed packet")
	ErrPacketTooLarge    = errors.New("packet exceeds maximum size")
	ErrInvalidPacket     = errors.New("invalid packet")
	ErrPacketIDRequired  = errors.New("packet identifier required")
	ErrUnsupportedPacket = errors.New("unsupported packet type")
)

// Packet is a typed MQTT v5 control packet.
type Packet interface {
	// Type returns the control packet type.
	Type() PacketType

	// Validate checks the packet against the protocol rules that can be
	// verified without connection state.
	Validate() error

	encode(e *encoder) (flags byte)
	decode(d *decoder, flags byte)
}

// identified is implemented by packets that carry a packet identifier.
type identified interface {
	Packet
	packetID() uint16
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidPacket}, args...)...)
}

// noTrailing marks the packet malformed when unread bytes remain.
func (d *decoder) noTrailing() {
	if d.err == nil && d.remaining() != 0 {
		d.fail("%d trailing bytes", d.remaining())
	}
}
