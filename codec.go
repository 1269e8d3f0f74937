package mqttv5client

import (
	"fmt"
	"io"
)

// MaxPacketSize is the largest packet the protocol can express.
const MaxPacketSize = 268435460

// Encode validates p and returns its complete wire representation.
func Encode(p Packet) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var e encoder
	flags := p.encode(&e)
	if e.err != nil {
		return nil, fmt.Errorf("encode %s: %w", p.Type(), e.err)
	}
	if len(e.buf) > maxVarint {
		return nil, fmt.Errorf("encode %s: %w", p.Type(), ErrPacketTooLarge)
	}

	h := fixedHeader{packetType: p.Type(), flags: flags}
	return h.frame(e.buf), nil
}

// Decode parses exactly one complete frame.
func Decode(frame []byte) (Packet, error) {
	d := newDecoder(frame)
	first := d.byte()
	length := d.varint()
	if d.err != nil {
		return nil, d.err
	}
	if int(length) != d.remaining() {
		return nil, fmt.Errorf("%w: remaining length %d, have %d bytes", ErrMalformedPacket, length, d.remaining())
	}
	h := fixedHeader{packetType: PacketType(first >> 4), flags: first & 0x0F, remainingLength: length}
	return decodeBody(h, frame[len(frame)-int(length):])
}

// ReadPacket reads one packet from r. A non-zero maxSize bounds the whole
// frame; larger packets return ErrPacketTooLarge without reading the body.
func ReadPacket(r io.Reader, maxSize uint32) (Packet, error) {
	h, err := readFixedHeader(r)
	if err != nil {
		return nil, err
	}

	frameSize := uint64(1+varintSize(h.remainingLength)) + uint64(h.remainingLength)
	if maxSize > 0 && frameSize > uint64(maxSize) {
		return nil, fmt.Errorf("%w: %s of %d bytes", ErrPacketTooLarge, h.packetType, frameSize)
	}

	body := make([]byte, h.remainingLength)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return decodeBody(h, body)
}

func newPacket(t PacketType) (Packet, error) {
	switch t {
	case PacketCONNECT:
		return &ConnectPacket{}, nil
	case PacketCONNACK:
		return &ConnackPacket{}, nil
	case PacketPUBLISH:
		return &PublishPacket{}, nil
	case PacketPUBACK:
		return &PubackPacket{}, nil
	case PacketPUBREC:
		return &PubrecPacket{}, nil
	case PacketPUBREL:
		return &PubrelPacket{}, nil
	case PacketPUBCOMP:
		return &PubcompPacket{}, nil
	case PacketSUBSCRIBE:
		return &SubscribePacket{}, nil
	case PacketSUBACK:
		return &SubackPacket{}, nil
	case PacketUNSUBSCRIBE:
		return &UnsubscribePacket{}, nil
	case PacketUNSUBACK:
		return &UnsubackPacket{}, nil
	case PacketPINGREQ:
		return &PingreqPacket{}, nil
	case PacketPINGRESP:
		return &PingrespPacket{}, nil
	case PacketDISCONNECT:
		return &DisconnectPacket{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPacket, t)
	}
}

func decodeBody(h fixedHeader, body []byte) (Packet, error) {
	if !h.packetType.Valid() {
		return nil, fmt.Errorf("%w: packet type %d", ErrMalformedPacket, h.packetType)
	}
	if required, ok := h.packetType.requiredFlags(); ok && h.flags != required {
		return nil, fmt.Errorf("%w: invalid flags 0x%x for %s", ErrMalformedPacket, h.flags, h.packetType)
	}

	p, err := newPacket(h.packetType)
	if err != nil {
		return nil, err
	}

	d := newDecoder(body)
	p.decode(d, h.flags)
	if d.err != nil {
		return nil, fmt.Errorf("decode %s: %w", h.packetType, d.err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", h.packetType, err)
	}
	return p, nil
}
