package mqttv5client

import (
	"errors"
	"fmt"
)

// QoS is the delivery guarantee of a PUBLISH or subscription.
type QoS byte

const (
	AtMostOnce  QoS = 0
	AtLeastOnce QoS = 1
	ExactlyOnce QoS = 2
)

func (q QoS) String() string {
	switch q {
	case AtMostOnce:
		return "AtMostOnce"
	case AtLeastOnce:
		return "AtLeastOnce"
	case ExactlyOnce:
		return "ExactlyOnce"
	default:
		return fmt.Sprintf("QoS(%d)", byte(q))
	}
}

// Valid reports whether q is one of the three defined levels.
func (q QoS) Valid() bool {
	return q <= ExactlyOnce
}

// PayloadFormat is the Payload Format Indicator of a PUBLISH.
type PayloadFormat byte

const (
	PayloadFormatBytes PayloadFormat = 0
	PayloadFormatUTF8  PayloadFormat = 1
)

// ErrPacketIDExhausted is returned when all 65535 packet identifiers are in flight.
var ErrPacketIDExhausted = errors.New("no available packet IDs")

// packetIDAllocator hands out packet identifiers from a monotonic counter that
// wraps from 65535 back to 1, skipping identifiers still in flight.
// It is not safe for concurrent use; the client lock guards it.
type packetIDAllocator struct {
	used map[uint16]struct{}
	next uint16
}

func newPacketIDAllocator() *packetIDAllocator {
	return &packetIDAllocator{
		used: make(map[uint16]struct{}),
		next: 1,
	}
}

func (a *packetIDAllocator) advance() {
	a.next++
	if a.next == 0 {
		a.next = 1
	}
}

// allocate reserves the next free identifier.
func (a *packetIDAllocator) allocate() (uint16, error) {
	if len(a.used) >= maxUint16 {
		return 0, ErrPacketIDExhausted
	}
	for {
		id := a.next
		a.advance()
		if _, busy := a.used[id]; !busy {
			a.used[id] = struct{}{}
			return id, nil
		}
	}
}

func (a *packetIDAllocator) release(id uint16) {
	delete(a.used, id)
}

// reset frees every identifier without rewinding the counter.
func (a *packetIDAllocator) reset() {
	clear(a.used)
}
