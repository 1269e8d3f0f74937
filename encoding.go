package mqttv5client

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Encoding errors.
var (
	ErrStringTooLong      = errors.New("string exceeds maximum length of 65535 bytes")
	ErrBinaryTooLong      = errors.New("binary data exceeds maximum length of 65535 bytes")
	ErrInvalidUTF8        = errors.New("invalid UTF-8 string")
	ErrStringContainsNull = errors.New("string contains null character")
	ErrVarintTooLarge     = errors.New("variable byte integer exceeds maximum value")
)

const (
	maxUint16         = 65535
	maxVarint         = 268435455
	varintContinueBit = 0x80
	varintValueMask   = 0x7F
)

// encoder appends MQTT primitive types to a byte slice.
// The first failure is kept and every later call becomes a no-op.
type encoder struct {
	buf []byte
	err error
}

func (e *encoder) byte(b byte) {
	if e.err == nil {
		e.buf = append(e.buf, b)
	}
}

func (e *encoder) bool(v bool) {
	if v {
		e.byte(1)
	} else {
		e.byte(0)
	}
}

func (e *encoder) uint16(v uint16) {
	if e.err == nil {
		e.buf = binary.BigEndian.AppendUint16(e.buf, v)
	}
}

func (e *encoder) uint32(v uint32) {
	if e.err == nil {
		e.buf = binary.BigEndian.AppendUint32(e.buf, v)
	}
}

func (e *encoder) varint(v uint32) {
	if e.err != nil {
		return
	}
	if v > maxVarint {
		e.err = ErrVarintTooLarge
		return
	}
	e.buf = appendVarint(e.buf, v)
}

func (e *encoder) string(s string) {
	if e.err != nil {
		return
	}
	if err := checkString(s); err != nil {
		e.err = err
		return
	}
	e.buf = binary.BigEndian.AppendUint16(e.buf, uint16(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) binary(b []byte) {
	if e.err != nil {
		return
	}
	if len(b) > maxUint16 {
		e.err = ErrBinaryTooLong
		return
	}
	e.buf = binary.BigEndian.AppendUint16(e.buf, uint16(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encoder) raw(b []byte) {
	if e.err == nil {
		e.buf = append(e.buf, b...)
	}
}

// checkString enforces the MQTT UTF-8 string rules.
func checkString(s string) error {
	if len(s) > maxUint16 {
		return ErrStringTooLong
	}
	if !utf8.ValidString(s) {
		return ErrInvalidUTF8
	}
	for i := range len(s) {
		if s[i] == 0 {
			return ErrStringContainsNull
		}
	}
	return nil
}

func appendVarint(buf []byte, v uint32) []byte {
	for {
		b := byte(v & varintValueMask)
		v >>= 7
		if v > 0 {
			b |= varintContinueBit
		}
		buf = append(buf, b)
		if v == 0 {
			return buf
		}
	}
}

// varintSize returns the number of bytes needed to encode value.
func varintSize(value uint32) int {
	switch {
	case value < 128:
		return 1
	case value < 16384:
		return 2
	case value < 2097152:
		return 3
	default:
		return 4
	}
}

// decoder reads MQTT primitive types from a complete packet body.
// Like encoder it keeps the first error; reads past the end yield zero values.
type decoder struct {
	data []byte
	pos  int
	err  error
}

func newDecoder(data []byte) *decoder {
	return &decoder{data: data}
}

func (d *decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: "+format, append([]any{ErrMalformedPacket}, args...)...)
	}
}

func (d *decoder) remaining() int {
	return len(d.data) - d.pos
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.remaining() < n {
		d.fail("need %d bytes, have %d", n, d.remaining())
		return nil
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b
}

func (d *decoder) byte() byte {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *decoder) bool() bool {
	switch d.byte() {
	case 0:
		return false
	case 1:
		return true
	default:
		d.fail("boolean property out of range")
		return false
	}
}

func (d *decoder) uint16() uint16 {
	b := d.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (d *decoder) uint32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (d *decoder) varint() uint32 {
	var value uint32
	var shift uint
	for i := 0; i < 4; i++ {
		b := d.byte()
		if d.err != nil {
			return 0
		}
		value |= uint32(b&varintValueMask) << shift
		if b&varintContinueBit == 0 {
			return value
		}
		shift += 7
	}
	d.fail("variable byte integer longer than 4 bytes")
	return 0
}

func (d *decoder) string() string {
	n := d.uint16()
	b := d.take(int(n))
	if d.err != nil {
		return ""
	}
	s := string(b)
	if err := checkString(s); err != nil {
		d.fail("%v", err)
		return ""
	}
	return s
}

func (d *decoder) binary() []byte {
	n := d.uint16()
	b := d.take(int(n))
	if d.err != nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// rest returns a copy of the unread bytes.
func (d *decoder) rest() []byte {
	if d.err != nil || d.remaining() == 0 {
		return nil
	}
	out := make([]byte, d.remaining())
	copy(out, d.data[d.pos:])
	d.pos = len(d.data)
	return out
}
