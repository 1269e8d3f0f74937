package mqttv5client

// defaultReceiveMaximum applies when the server does not send Receive Maximum.
const defaultReceiveMaximum = 65535

// flowController enforces the server's Receive Maximum: the number of QoS 1
// PUBLISH packets that may be unacknowledged at once.
// Like packetIDAllocator it relies on the client lock.
type flowController struct {
	receiveMaximum uint16
	inFlight       uint16
}

func newFlowController(receiveMaximum uint16) *flowController {
	f := &flowController{}
	f.setReceiveMaximum(receiveMaximum)
	return f
}

// setReceiveMaximum changes the quota. Zero means the protocol default.
func (f *flowController) setReceiveMaximum(maximum uint16) {
	if maximum == 0 {
		maximum = defaultReceiveMaximum
	}
	f.receiveMaximum = maximum
}

// tryAcquire takes one slot if available.
func (f *flowController) tryAcquire() bool {
	if f.inFlight >= f.receiveMaximum {
		return false
	}
	f.inFlight++
	return true
}

func (f *flowController) release() {
	if f.inFlight > 0 {
		f.inFlight--
	}
}

// reset drops every slot, used when a connection ends.
func (f *flowController) reset() {
	f.inFlight = 0
}
