package mqttv5client

import (
	"bufio"
	"errors"
	"net"
	"sync"
	"sync/atomic"
)

var errConnClosed = errors.New("connection closed")

type pendingWrite struct {
	data []byte
	done func(error)
}

// packetConn owns one transport connection for the lifetime of a single
// connection attempt. A reader goroutine decodes inbound packets and a writer
// goroutine drains the outbound queue in order.
type packetConn struct {
	conn    net.Conn
	maxSize uint32

	onPacket func(Packet)
	onClose  func(error)

	mu     sync.Mutex
	cond   *sync.Cond
	writes []pendingWrite
	closed bool

	// reported is set by the first close or fail; only a fail that sets it
	// calls onClose.
	reported atomic.Bool
	wg       sync.WaitGroup
}

// newPacketConn starts the reader and writer. onPacket is called from the
// reader goroutine; onClose is called at most once, when the connection fails.
func newPacketConn(conn net.Conn, maxSize uint32, onPacket func(Packet), onClose func(error)) *packetConn {
	pc := &packetConn{
		conn:     conn,
		maxSize:  maxSize,
		onPacket: onPacket,
		onClose:  onClose,
	}
	pc.cond = sync.NewCond(&pc.mu)

	pc.wg.Add(2)
	go pc.readLoop()
	go pc.writeLoop()
	return pc
}

// send queues an encoded packet. done, if set, is called from the writer
// goroutine with the write result. Writes still queued when the connection
// closes are dropped without calling done; the owner fails their operations.
func (pc *packetConn) send(data []byte, done func(error)) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.closed {
		return errConnClosed
	}
	pc.writes = append(pc.writes, pendingWrite{data: data, done: done})
	pc.cond.Signal()
	return nil
}

// close shuts the connection down without calling onClose. It does not wait
// for the goroutines; use wait for that. It is safe to call from inside
// onClose.
func (pc *packetConn) close() {
	pc.reported.Store(true)
	pc.shutdown()
}

// fail shuts the connection down and reports err through onClose, unless the
// connection was already closed or failed.
func (pc *packetConn) fail(err error) {
	if !pc.reported.CompareAndSwap(false, true) {
		return
	}
	pc.shutdown()
	if pc.onClose != nil {
		pc.onClose(err)
	}
}

func (pc *packetConn) shutdown() {
	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		return
	}
	pc.closed = true
	pc.writes = nil
	pc.cond.Signal()
	pc.mu.Unlock()

	pc.conn.Close()
}

// wait blocks until both goroutines exit.
func (pc *packetConn) wait() {
	pc.wg.Wait()
}

func (pc *packetConn) readLoop() {
	defer pc.wg.Done()

	r := bufio.NewReader(pc.conn)
	for {
		pkt, err := ReadPacket(r, pc.maxSize)
		if err != nil {
			pc.fail(err)
			return
		}
		pc.onPacket(pkt)
	}
}

func (pc *packetConn) writeLoop() {
	defer pc.wg.Done()

	for {
		pc.mu.Lock()
		for len(pc.writes) == 0 && !pc.closed {
			pc.cond.Wait()
		}
		if pc.closed {
			pc.mu.Unlock()
			return
		}
		w := pc.writes[0]
		pc.writes[0] = pendingWrite{}
		pc.writes = pc.writes[1:]
		pc.mu.Unlock()

		_, err := pc.conn.Write(w.data)
		if w.done != nil {
			w.done(err)
		}
		if err != nil {
			pc.fail(err)
			return
		}
	}
}
