// Package rpc provides request/response on top of mqttv5client.
// It uses MQTT v5.0 correlation data and response topic properties to match
// requests with their responses.
// MQTT v5.0 spec: Section 4.10 (Request / Response)
package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vitalvas/mqttv5client"
)

var (
	// ErrTimeout is returned when a request times out waiting for a response.
	ErrTimeout = errors.New("rpc: request timeout")

	// ErrHandlerClosed is returned for calls on, or pending in, a closed handler.
	ErrHandlerClosed = errors.New("rpc: handler closed")

	// ErrSubscriptionRejected is returned when the server refuses the response topic.
	ErrSubscriptionRejected = errors.New("rpc: response subscription rejected")
)

// Headers represents RPC headers as key-value pairs.
// Headers are transmitted using MQTT v5.0 User Properties.
type Headers map[string]string

// Request represents an RPC request with optional headers.
type Request struct {
	// Payload is the request body.
	Payload []byte

	// Headers contains optional request headers.
	// These are transmitted as MQTT v5.0 User Properties.
	Headers Headers

	// ContentType is the MIME type of the payload (optional).
	ContentType string
}

// Response represents an RPC response with headers.
type Response struct {
	Payload         []byte
	Headers         Headers
	ContentType     string
	CorrelationData []byte
}

// Client is the subset of *mqttv5client.Client used by the handler.
type Client interface {
	Subscribe(ctx context.Context, pkt *mqttv5client.SubscribePacket) (*mqttv5client.Future[*mqttv5client.SubackPacket], error)
	Unsubscribe(ctx context.Context, pkt *mqttv5client.UnsubscribePacket) (*mqttv5client.Future[*mqttv5client.UnsubackPacket], error)
	Publish(ctx context.Context, pkt *mqttv5client.PublishPacket) (*mqttv5client.Future[*mqttv5client.PublishResult], error)
	AddListener(l mqttv5client.EventListener) (remove func())
}

// Handler provides request/response functionality using MQTT v5.0 properties.
type Handler struct {
	mu             sync.Mutex
	client         Client
	pending        map[string]chan *Response
	closed         bool
	removeListener func()
	responseTopic  string
	qos            mqttv5client.QoS
}

// HandlerOptions configures the RPC handler.
type HandlerOptions struct {
	// ResponseTopic is the topic where responses will be received.
	// If empty, defaults to "rpc/response/{uuid}".
	ResponseTopic string

	// QoS is the quality of service level for requests and the response
	// subscription. Defaults to 0.
	QoS mqttv5client.QoS
}

// NewHandler subscribes to the response topic and waits for the SUBACK.
// The subscription is queued like any other operation, so ctx should carry a
// deadline when the client may be disconnected.
func NewHandler(ctx context.Context, client Client, opts *HandlerOptions) (*Handler, error) {
	if client == nil {
		return nil, errors.New("rpc: client is required")
	}

	if opts == nil {
		opts = &HandlerOptions{}
	}

	responseTopic := opts.ResponseTopic
	if responseTopic == "" {
		responseTopic = "rpc/response/" + uuid.NewString()
	}

	h := &Handler{
		client:        client,
		pending:       make(map[string]chan *Response),
		responseTopic: responseTopic,
		qos:           opts.QoS,
	}
	h.removeListener = client.AddListener(h.onEvent)

	f, err := client.Subscribe(ctx, &mqttv5client.SubscribePacket{
		Subscriptions: []mqttv5client.Subscription{{TopicFilter: responseTopic, QoS: opts.QoS}},
	})
	if err == nil {
		err = checkSuback(f.Wait(ctx))
	}
	if err != nil {
		h.removeListener()
		return nil, fmt.Errorf("rpc: subscribe to response topic: %w", err)
	}

	return h, nil
}

func checkSuback(ack *mqttv5client.SubackPacket, err error) error {
	if err != nil {
		return err
	}
	for _, rc := range ack.ReasonCodes {
		if rc.IsError() {
			return fmt.Errorf("%w: %s", ErrSubscriptionRejected, rc)
		}
	}
	return nil
}

// ResponseTopic returns the configured response topic.
func (h *Handler) ResponseTopic() string {
	return h.responseTopic
}

// Call publishes req to topic with the response topic, a fresh correlation ID
// and headers set, then blocks until the response arrives or ctx ends.
func (h *Handler) Call(ctx context.Context, topic string, req *Request) (*Response, error) {
	if req == nil {
		req = &Request{}
	}

	correlID := uuid.NewString()
	respChan := make(chan *Response, 1)
	if !h.addPending(correlID, respChan) {
		return nil, ErrHandlerClosed
	}
	defer h.removePending(correlID)

	msg := &mqttv5client.PublishPacket{
		Topic:           topic,
		Payload:         req.Payload,
		QoS:             h.qos,
		ResponseTopic:   &h.responseTopic,
		CorrelationData: []byte(correlID),
	}
	if req.ContentType != "" {
		msg.ContentType = &req.ContentType
	}
	for k, v := range req.Headers {
		msg.UserProperties = append(msg.UserProperties, mqttv5client.UserProperty{Name: k, Value: v})
	}

	f, err := h.client.Publish(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("rpc: publish request: %w", err)
	}

	select {
	case resp, ok := <-respChan:
		if !ok {
			return nil, ErrHandlerClosed
		}
		return resp, nil
	case <-f.Done():
		if _, err := f.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rpc: publish request: %w", err)
		}
	case <-ctx.Done():
		return nil, ctxErr(ctx)
	}

	select {
	case resp, ok := <-respChan:
		if !ok {
			return nil, ErrHandlerClosed
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctxErr(ctx)
	}
}

func ctxErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ctx.Err()
}

// CallWithTimeout is a convenience method that creates a context with timeout.
func (h *Handler) CallWithTimeout(topic string, req *Request, timeout time.Duration) (*Response, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return h.Call(ctx, topic, req)
}

// Request sends a simple request without headers and waits for a response.
func (h *Handler) Request(ctx context.Context, topic string, payload []byte) (*Response, error) {
	return h.Call(ctx, topic, &Request{Payload: payload})
}

// Close fails pending calls with ErrHandlerClosed and unsubscribes from the
// response topic without waiting for the UNSUBACK.
func (h *Handler) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	for correlID, ch := range h.pending {
		close(ch)
		delete(h.pending, correlID)
	}
	h.mu.Unlock()

	h.removeListener()
	_, err := h.client.Unsubscribe(context.Background(), &mqttv5client.UnsubscribePacket{
		TopicFilters: []string{h.responseTopic},
	})
	return err
}

func (h *Handler) addPending(correlID string, ch chan *Response) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.pending[correlID] = ch
	return true
}

func (h *Handler) removePending(correlID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.pending, correlID)
}

func (h *Handler) onEvent(ev mqttv5client.Event) {
	if ev.Type != mqttv5client.EventMessageReceived {
		return
	}
	msg := ev.Publish
	if msg == nil || len(msg.CorrelationData) == 0 || !mqttv5client.TopicMatch(h.responseTopic, msg.Topic) {
		return
	}

	resp := &Response{
		Payload:         msg.Payload,
		CorrelationData: msg.CorrelationData,
	}
	if msg.ContentType != nil {
		resp.ContentType = *msg.ContentType
	}
	if len(msg.UserProperties) > 0 {
		resp.Headers = make(Headers, len(msg.UserProperties))
		for _, prop := range msg.UserProperties {
			resp.Headers[prop.Name] = prop.Value
		}
	}

	// Sending under the lock keeps Close from closing the channel mid-send.
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := h.pending[string(msg.CorrelationData)]
	if ch == nil {
		return
	}
	select {
	case ch <- resp:
	default:
	}
}
