package mqttv5client

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeWireFormat(t *testing.T) {
	tests := []struct {
		name   string
		packet Packet
		want   []byte
	}{
		{
			name:   "pingreq",
			packet: &PingreqPacket{},
			want:   []byte{0xC0, 0x00},
		},
		{
			name:   "puback success",
			packet: &PubackPacket{PacketID: 10},
			want:   []byte{0x40, 0x02, 0x00, 0x0A},
		},
		{
			name:   "puback with reason",
			packet: &PubackPacket{PacketID: 10, ReasonCode: ReasonNoMatchingSubscribers},
			want:   []byte{0x40, 0x03, 0x00, 0x0A, 0x10},
		},
		{
			name:   "publish QoS 1 retained",
			packet: &PublishPacket{PacketID: 1, Topic: "a/b", QoS: AtLeastOnce, Retain: true, Payload: []byte("hi")},
			want:   []byte{0x33, 0x0A, 0x00, 0x03, 'a', '/', 'b', 0x00, 0x01, 0x00, 'h', 'i'},
		},
		{
			name: "subscribe",
			packet: &SubscribePacket{PacketID: 2, Subscriptions: []Subscription{
				{TopicFilter: "x", QoS: AtLeastOnce, NoLocal: true},
			}},
			want: []byte{0x82, 0x07, 0x00, 0x02, 0x00, 0x00, 0x01, 'x', 0x05},
		},
		{
			name:   "disconnect normal",
			packet: &DisconnectPacket{},
			want:   []byte{0xE0, 0x00},
		},
		{
			name:   "disconnect with will",
			packet: &DisconnectPacket{ReasonCode: ReasonDisconnectWithWill},
			want:   []byte{0xE0, 0x02, 0x04, 0x00},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.packet)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			back, err := Decode(got)
			require.NoError(t, err)
			assert.Equal(t, tt.packet, back)
		})
	}
}

func TestDecodeConnackProperties(t *testing.T) {
	p, err := Decode([]byte{0x20, 0x08, 0x01, 0x00, 0x05, 0x21, 0x00, 0x0A, 0x24, 0x00})
	require.NoError(t, err)
	require.IsType(t, &ConnackPacket{}, p)

	connack := p.(*ConnackPacket)
	assert.True(t, connack.SessionPresent)
	assert.Equal(t, ReasonSuccess, connack.ReasonCode)
	assert.Equal(t, uint16(10), *connack.ReceiveMaximum)
	assert.Equal(t, AtMostOnce, *connack.MaximumQoS)
	assert.Nil(t, connack.TopicAliasMaximum)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
		err   error
	}{
		{"packet type 0", []byte{0x00, 0x00}, ErrMalformedPacket},
		{"pubrel flags", []byte{0x60, 0x02, 0x00, 0x01}, ErrMalformedPacket},
		{"publish QoS 3", []byte{0x36, 0x03, 0x00, 0x01, 'a'}, ErrMalformedPacket},
		{"length mismatch", []byte{0xC0, 0x01}, ErrMalformedPacket},
		{"trailing bytes", []byte{0xD0, 0x01, 0x00}, ErrMalformedPacket},
		{"truncated puback", []byte{0x40, 0x01, 0x00}, ErrMalformedPacket},
		{"invalid UTF-8 topic", []byte{0x30, 0x04, 0x00, 0x01, 0xFF, 0x00}, ErrMalformedPacket},
		{"duplicate property", []byte{0x20, 0x09, 0x00, 0x00, 0x06, 0x21, 0x00, 0x01, 0x21, 0x00, 0x02}, ErrMalformedPacket},
		{"property not allowed", []byte{0x20, 0x06, 0x00, 0x00, 0x03, 0x23, 0x00, 0x01}, ErrMalformedPacket},
		{"connack reserved flags", []byte{0x20, 0x03, 0x02, 0x00, 0x00}, ErrMalformedPacket},
		{"subscribe reserved options", []byte{0x82, 0x07, 0x00, 0x01, 0x00, 0x00, 0x01, 'x', 0xC0}, ErrMalformedPacket},
		{"publish QoS 1 without id", []byte{0x32, 0x06, 0x00, 0x01, 'a', 0x00, 0x00, 0x00}, ErrPacketIDRequired},
		{"auth", []byte{0xF0, 0x00}, ErrUnsupportedPacket},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.frame)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestEncodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		packet Packet
		err    error
	}{
		{
			name:   "publish without packet id",
			packet: &PublishPacket{Topic: "a", QoS: AtLeastOnce},
			err:    ErrPacketIDRequired,
		},
		{
			name:   "publish wildcard topic",
			packet: &PublishPacket{Topic: "a/+"},
			err:    ErrInvalidPacket,
		},
		{
			name:   "user property not UTF-8",
			packet: &PublishPacket{Topic: "a", UserProperties: []UserProperty{{Name: "\xff", Value: "v"}}},
			err:    ErrInvalidUTF8,
		},
		{
			name:   "user property with null",
			packet: &DisconnectPacket{UserProperties: []UserProperty{{Name: "k", Value: "a\x00b"}}},
			err:    ErrStringContainsNull,
		},
		{
			name:   "correlation data too long",
			packet: &PublishPacket{Topic: "a", CorrelationData: make([]byte, maxUint16+1)},
			err:    ErrBinaryTooLong,
		},
		{
			name:   "reason string too long",
			packet: &PubackPacket{PacketID: 1, ReasonString: Ptr(strings.Repeat("r", maxUint16+1))},
			err:    ErrStringTooLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.packet)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestReadPacket(t *testing.T) {
	t.Run("stream of packets", func(t *testing.T) {
		var buf bytes.Buffer
		for _, p := range []Packet{&PingrespPacket{}, &PubackPacket{PacketID: 7}, &DisconnectPacket{}} {
			data, err := Encode(p)
			require.NoError(t, err)
			buf.Write(data)
		}

		for _, want := range []PacketType{PacketPINGRESP, PacketPUBACK, PacketDISCONNECT} {
			p, err := ReadPacket(&buf, 0)
			require.NoError(t, err)
			assert.Equal(t, want, p.Type())
		}

		_, err := ReadPacket(&buf, 0)
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("truncated body", func(t *testing.T) {
		_, err := ReadPacket(bytes.NewReader([]byte{0x40, 0x02, 0x00}), 0)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("remaining length too long", func(t *testing.T) {
		_, err := ReadPacket(bytes.NewReader([]byte{0x30, 0xFF, 0xFF, 0xFF, 0xFF, 0x7F}), 0)
		assert.ErrorIs(t, err, ErrMalformedPacket)
	})

	t.Run("exceeds maximum size", func(t *testing.T) {
		data, err := Encode(&PublishPacket{Topic: "t", Payload: make([]byte, 100)})
		require.NoError(t, err)

		_, err = ReadPacket(bytes.NewReader(data), uint32(len(data)-1))
		assert.ErrorIs(t, err, ErrPacketTooLarge)

		p, err := ReadPacket(bytes.NewReader(data), uint32(len(data)))
		require.NoError(t, err)
		assert.Len(t, p.(*PublishPacket).Payload, 100)
	})
}

func TestVarint(t *testing.T) {
	tests := []struct {
		value uint32
		size  int
	}{
		{0, 1},
		{127, 1},
		{128, 2},
		{16383, 2},
		{16384, 3},
		{2097151, 3},
		{2097152, 4},
		{maxVarint, 4},
	}

	for _, tt := range tests {
		var e encoder
		e.varint(tt.value)
		require.NoError(t, e.err)
		assert.Len(t, e.buf, tt.size, "value %d", tt.value)
		assert.Equal(t, tt.size, varintSize(tt.value))

		d := newDecoder(e.buf)
		assert.Equal(t, tt.value, d.varint())
		assert.NoError(t, d.err)
	}

	var e encoder
	e.varint(maxVarint + 1)
	assert.ErrorIs(t, e.err, ErrVarintTooLarge)
}

func TestPacketTypeString(t *testing.T) {
	assert.Equal(t, "CONNECT", PacketCONNECT.String())
	assert.Equal(t, "AUTH", PacketAUTH.String())
	assert.Equal(t, "UNKNOWN", PacketType(0).String())
	assert.False(t, PacketType(16).Valid())
}
