package mqttv5client

import (
	"errors"
	"fmt"
)

// Sentinel errors for the client lifecycle - check with errors.Is().
var (
	// ErrClientClosed is returned for every operation on, or pending in, a closed client.
	ErrClientClosed = errors.New("client closed")

	// ErrClientStopped fails in-flight operations when Stop is called.
	ErrClientStopped = errors.New("client stopped")

	// ErrInvalidState is returned when a lifecycle call is not valid in the current state.
	ErrInvalidState = errors.New("invalid client state")

	// ErrInvalidConfig is returned for configuration that cannot be used.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrReconnectAttemptsExhausted is reported when MaxReconnectAttempts is reached.
	ErrReconnectAttemptsExhausted = errors.New("reconnect attempts exhausted")
)

// Sentinel errors for the connection - check with errors.Is().
var (
	// ErrConnectionLost wraps the transport failure that ended a connection.
	ErrConnectionLost = errors.New("connection lost")

	// ErrServerDisconnect is used when the server sends DISCONNECT.
	ErrServerDisconnect = errors.New("server disconnect")

	// ErrPingTimeout is used when PINGRESP does not arrive in time.
	ErrPingTimeout = errors.New("ping timeout")

	// ErrConnackTimeout is used when CONNACK does not arrive in time.
	ErrConnackTimeout = errors.New("connack timeout")

	// ErrProtocolError is used for packets that are well formed but not allowed.
	ErrProtocolError = errors.New("protocol error")
)

// Sentinel errors for operations - check with errors.Is().
var (
	// ErrOperationTimeout rejects an operation that was not acknowledged in time.
	ErrOperationTimeout = errors.New("operation timed out")

	// ErrQoSNotSupported rejects an outbound QoS 2 publish.
	ErrQoSNotSupported = errors.New("QoS not supported")

	// ErrNegotiatedSettingsViolation rejects an operation the server said it cannot accept.
	ErrNegotiatedSettingsViolation = errors.New("operation violates negotiated settings")

	// ErrOfflineQueuePolicy rejects queued operations dropped by OfflineQueueBehavior.
	ErrOfflineQueuePolicy = errors.New("operation failed by offline queue policy")
)

// ConnackError reports a CONNACK with a failure reason code.
// Extract with errors.As().
type ConnackError struct {
	Connack *ConnackPacket
}

func (e *ConnackError) Error() string {
	msg := "connection refused: " + e.Connack.ReasonCode.String()
	if e.Connack.ReasonString != nil {
		msg += " (" + *e.Connack.ReasonString + ")"
	}
	return msg
}

func (e *ConnackError) Unwrap() error { return ErrProtocolError }

// DisconnectionError fails in-flight operations and is carried by the
// Disconnection event. Disconnect is set when the server sent DISCONNECT.
// Extract with errors.As().
type DisconnectionError struct {
	err        error
	Disconnect *DisconnectPacket
}

func (e *DisconnectionError) Error() string {
	if e.Disconnect != nil {
		return fmt.Sprintf("%v: %s", e.err, e.Disconnect.ReasonCode)
	}
	return e.err.Error()
}

func (e *DisconnectionError) Unwrap() error { return e.err }

// NewDisconnectionError wraps cause; a non-nil disconnect marks a server DISCONNECT.
func NewDisconnectionError(cause error, disconnect *DisconnectPacket) *DisconnectionError {
	if disconnect != nil && cause == nil {
		cause = ErrServerDisconnect
	}
	if cause == nil {
		cause = ErrConnectionLost
	}
	return &DisconnectionError{err: cause, Disconnect: disconnect}
}

// AckError rejects an operation whose acknowledgment carried a failure reason code.
// Extract with errors.As().
type AckError struct {
	Packet     Packet
	ReasonCode ReasonCode
}

func (e *AckError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Packet.Type(), e.ReasonCode)
}

func (e *AckError) Unwrap() error { return ErrProtocolError }

func protocolErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrProtocolError}, args...)...)
}
