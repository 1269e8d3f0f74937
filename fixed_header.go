package mqttv5client

import (
	"fmt"
	"io"
)

// PacketType represents an MQTT control packet type.
type PacketType byte

// MQTT control packet types.
const (
	PacketCONNECT     PacketType = 1
	PacketCONNACK     PacketType = 2
	PacketPUBLISH     PacketType = 3
	PacketPUBACK      PacketType = 4
	PacketPUBREC      PacketType = 5
	PacketPUBREL      PacketType = 6
	PacketPUBCOMP     PacketType = 7
	PacketSUBSCRIBE   PacketType = 8
	PacketSUBACK      PacketType = 9
	PacketUNSUBSCRIBE PacketType = 10
	PacketUNSUBACK    PacketType = 11
	PacketPINGREQ     PacketType = 12
	PacketPINGRESP    PacketType = 13
	PacketDISCONNECT  PacketType = 14
	PacketAUTH        PacketType = 15
)

var packetTypeNames = [...]string{
	PacketCONNECT:     "CONNECT",
	PacketCONNACK:     "CONNACK",
	PacketPUBLISH:     "PUBLISH",
	PacketPUBACK:      "PUBACK",
	PacketPUBREC:      "PUBREC",
	PacketPUBREL:      "PUBREL",
	PacketPUBCOMP:     "PUBCOMP",
	PacketSUBSCRIBE:   "SUBSCRIBE",
	PacketSUBACK:      "SUBACK",
	PacketUNSUBSCRIBE: "UNSUBSCRIBE",
	PacketUNSUBACK:    "UNSUBACK",
	PacketPINGREQ:     "PINGREQ",
	PacketPINGRESP:    "PINGRESP",
	PacketDISCONNECT:  "DISCONNECT",
	PacketAUTH:        "AUTH",
}

// String returns the string representation of the packet type.
func (p PacketType) String() string {
	if p.Valid() {
		return packetTypeNames[p]
	}
	return "UNKNOWN"
}

// Valid returns true if the packet type is valid.
func (p PacketType) Valid() bool {
	return p >= PacketCONNECT && p <= PacketAUTH
}

// requiredFlags returns the fixed flags for packet types that mandate them.
// PUBLISH carries variable flags and reports ok=false.
func (p PacketType) requiredFlags() (flags byte, ok bool) {
	switch p {
	case PacketPUBLISH:
		return 0, false
	case PacketPUBREL, PacketSUBSCRIBE, PacketUNSUBSCRIBE:
		return 0x02, true
	default:
		return 0x00, true
	}
}

// fixedHeader is the first part of every control packet.
type fixedHeader struct {
	packetType      PacketType
	flags           byte
	remainingLength uint32
}

// frame returns the header followed by body as one contiguous buffer.
func (h fixedHeader) frame(body []byte) []byte {
	out := make([]byte, 0, 1+varintSize(uint32(len(body)))+len(body))
	out = append(out, byte(h.packetType)<<4|h.flags&0x0F)
	out = appendVarint(out, uint32(len(body)))
	return append(out, body...)
}

// readFixedHeader reads the fixed header from a stream.
func readFixedHeader(r io.Reader) (fixedHeader, error) {
	var h fixedHeader
	var buf [1]byte

	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return h, err
	}
	h.packetType = PacketType(buf[0] >> 4)
	h.flags = buf[0] & 0x0F

	if !h.packetType.Valid() {
		return h, fmt.Errorf("%w: packet type %d", ErrMalformedPacket, h.packetType)
	}
	if required, ok := h.packetType.requiredFlags(); ok && h.flags != required {
		return h, fmt.Errorf("%w: invalid flags 0x%x for %s", ErrMalformedPacket, h.flags, h.packetType)
	}

	var shift uint
	for i := 0; ; i++ {
		if i == 4 {
			return h, fmt.Errorf("%w: remaining length longer than 4 bytes", ErrMalformedPacket)
		}
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return h, err
		}
		h.remainingLength |= uint32(buf[0]&varintValueMask) << shift
		if buf[0]&varintContinueBit == 0 {
			break
		}
		shift += 7
	}

	return h, nil
}
