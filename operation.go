package mqttv5client

import (
	"fmt"
	"time"
)

type operationKind int

const (
	opSubscribe operationKind = iota + 1
	opUnsubscribe
	opPublish
)

func (k operationKind) String() string {
	switch k {
	case opSubscribe:
		return "subscribe"
	case opUnsubscribe:
		return "unsubscribe"
	case opPublish:
		return "publish"
	default:
		return fmt.Sprintf("operationKind(%d)", int(k))
	}
}

// ackType is the packet type that completes the operation.
func (k operationKind) ackType() PacketType {
	switch k {
	case opSubscribe:
		return PacketSUBACK
	case opUnsubscribe:
		return PacketUNSUBACK
	default:
		return PacketPUBACK
	}
}

type operationState int

const (
	opQueued   operationState = iota
	opWriting                 // QoS 0 publish handed to the transport
	opInflight                // awaiting acknowledgment
)

// operation is one caller request moving through the queue.
// Every field is guarded by the client lock.
type operation struct {
	kind   operationKind
	packet Packet
	size   int
	id     uint16
	state  operationState

	// complete settles the caller's future. ack is nil on error and for QoS 0.
	complete   func(ack Packet, err error)
	stopCancel func() bool
	timer      *time.Timer
	holdsFlow  bool
	enqueuedAt time.Time
	done       bool
}

func (op *operation) qos() QoS {
	if p, ok := op.packet.(*PublishPacket); ok {
		return p.QoS
	}
	return AtLeastOnce
}

// needsID reports whether the packet carries a packet identifier.
func (op *operation) needsID() bool {
	return op.qos() > AtMostOnce
}

// needsFlow reports whether the packet counts against Receive Maximum.
func (op *operation) needsFlow() bool {
	return op.kind == opPublish && op.qos() > AtMostOnce
}

func (op *operation) setPacketID(id uint16) {
	op.id = id
	switch p := op.packet.(type) {
	case *PublishPacket:
		p.PacketID = id
	case *SubscribePacket:
		p.PacketID = id
	case *UnsubscribePacket:
		p.PacketID = id
	}
}

// measure validates the packet and records its encoded size. A provisional
// identifier stands in until dispatch.
func (op *operation) measure() error {
	if op.needsID() {
		op.setPacketID(1)
		defer op.setPacketID(0)
	}
	data, err := Encode(op.packet)
	if err != nil {
		return err
	}
	op.size = len(data)
	return nil
}
