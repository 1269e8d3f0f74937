package mqttv5client

import (
	"fmt"
	"sync"
)

// EventType identifies a client lifecycle or message event.
type EventType int

const (
	// EventAttemptingConnect is emitted when a connection attempt starts.
	EventAttemptingConnect EventType = iota + 1
	// EventConnectionSuccess carries the CONNACK and the negotiated settings.
	EventConnectionSuccess
	// EventConnectionFailure carries the error that ended a connection attempt.
	EventConnectionFailure
	// EventDisconnection carries the error, and the server DISCONNECT if one was received.
	EventDisconnection
	// EventStopped is emitted when the client reaches the stopped state.
	EventStopped
	// EventMessageReceived carries an inbound PUBLISH.
	EventMessageReceived
)

var eventTypeNames = map[EventType]string{
	EventAttemptingConnect: "attempting_connect",
	EventConnectionSuccess: "connection_success",
	EventConnectionFailure: "connection_failure",
	EventDisconnection:     "disconnection",
	EventStopped:           "stopped",
	EventMessageReceived:   "message_received",
}

func (t EventType) String() string {
	if s, ok := eventTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// Event is delivered to listeners. Only the fields relevant to Type are set.
type Event struct {
	Type       EventType
	Connack    *ConnackPacket
	Settings   *NegotiatedSettings
	Err        error
	Disconnect *DisconnectPacket
	Publish    *PublishPacket
}

// EventListener receives client events. Listeners run on a single dispatcher
// goroutine in emission order; a slow listener delays the ones after it.
type EventListener func(Event)

type listenerEntry struct {
	id uint64
	fn EventListener
}

// eventDispatcher delivers events in order on one goroutine.
// emit never blocks; the queue is unbounded.
type eventDispatcher struct {
	mu        sync.Mutex
	cond      *sync.Cond
	queue     []Event
	listeners []listenerEntry
	nextID    uint64
	closed    bool
	done      chan struct{}
}

func newEventDispatcher() *eventDispatcher {
	d := &eventDispatcher{done: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

// add registers fn and returns a func that removes it. The remove func is idempotent.
func (d *eventDispatcher) add(fn EventListener) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	d.listeners = append(d.listeners, listenerEntry{id: id, fn: fn})

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		for i, l := range d.listeners {
			if l.id == id {
				d.listeners = append(d.listeners[:i:i], d.listeners[i+1:]...)
				return
			}
		}
	}
}

func (d *eventDispatcher) emit(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.queue = append(d.queue, ev)
	d.cond.Signal()
}

// close stops accepting events. Queued events are still delivered.
func (d *eventDispatcher) close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	d.cond.Signal()
}

func (d *eventDispatcher) run() {
	defer close(d.done)

	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		ev := d.queue[0]
		d.queue[0] = Event{}
		d.queue = d.queue[1:]
		listeners := d.listeners
		d.mu.Unlock()

		for _, l := range listeners {
			l.fn(ev)
		}
	}
}
