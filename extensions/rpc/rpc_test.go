package rpc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalvas/mqttv5client"
	"github.com/vitalvas/mqttv5client/internal/brokertest"
)

func connectedClient(t *testing.T) (*mqttv5client.Client, *brokertest.Conn) {
	t.Helper()

	b := brokertest.New(t)
	cfg := mqttv5client.DefaultClientConfig()
	cfg.HostName = "broker.test"
	cfg.ClientID = "rpc-test"

	client, err := mqttv5client.NewClient(cfg, mqttv5client.WithDialer(b.Dialer()))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.Start())
	conn := b.Accept()
	conn.Handshake(nil)
	return client, conn
}

// newHandler runs NewHandler while the broker grants the response
// subscription with code.
func newHandler(t *testing.T, client *mqttv5client.Client, conn *brokertest.Conn, opts *HandlerOptions, code mqttv5client.ReasonCode) (*Handler, error) {
	t.Helper()

	type result struct {
		h   *Handler
		err error
	}
	done := make(chan result, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), brokertest.Timeout)
		defer cancel()
		h, err := NewHandler(ctx, client, opts)
		done <- result{h, err}
	}()

	sub := brokertest.Expect[*mqttv5client.SubscribePacket](conn)
	require.Len(t, sub.Subscriptions, 1)
	conn.Send(&mqttv5client.SubackPacket{PacketID: sub.PacketID, ReasonCodes: []mqttv5client.ReasonCode{code}})

	r := <-done
	return r.h, r.err
}

func TestNewHandler(t *testing.T) {
	t.Run("nil client", func(t *testing.T) {
		_, err := NewHandler(context.Background(), nil, nil)
		assert.Error(t, err)
	})

	t.Run("default response topic", func(t *testing.T) {
		client, conn := connectedClient(t)

		h, err := newHandler(t, client, conn, nil, mqttv5client.ReasonGrantedQoS0)
		require.NoError(t, err)
		assert.Regexp(t, `^rpc/response/[0-9a-f-]{36}$`, h.ResponseTopic())
	})

	t.Run("custom response topic", func(t *testing.T) {
		client, conn := connectedClient(t)

		h, err := newHandler(t, client, conn, &HandlerOptions{ResponseTopic: "replies/me"}, mqttv5client.ReasonGrantedQoS0)
		require.NoError(t, err)
		assert.Equal(t, "replies/me", h.ResponseTopic())
	})

	t.Run("subscription rejected", func(t *testing.T) {
		client, conn := connectedClient(t)

		_, err := newHandler(t, client, conn, nil, mqttv5client.ReasonNotAuthorized)
		assert.ErrorIs(t, err, ErrSubscriptionRejected)
	})
}

func TestHandlerCall(t *testing.T) {
	client, conn := connectedClient(t)
	h, err := newHandler(t, client, conn, &HandlerOptions{ResponseTopic: "replies/me"}, mqttv5client.ReasonGrantedQoS0)
	require.NoError(t, err)

	type result struct {
		resp *Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := h.Call(context.Background(), "service/echo", &Request{
			Payload:     []byte("ping"),
			Headers:     Headers{"trace": "abc"},
			ContentType: "text/plain",
		})
		done <- result{resp, err}
	}()

	req := brokertest.Expect[*mqttv5client.PublishPacket](conn)
	assert.Equal(t, "service/echo", req.Topic)
	assert.Equal(t, []byte("ping"), req.Payload)
	require.NotNil(t, req.ResponseTopic)
	assert.Equal(t, "replies/me", *req.ResponseTopic)
	require.NotNil(t, req.ContentType)
	assert.Equal(t, "text/plain", *req.ContentType)
	assert.Equal(t, []mqttv5client.UserProperty{{Name: "trace", Value: "abc"}}, req.UserProperties)
	require.NotEmpty(t, req.CorrelationData)

	// A response for another request is ignored.
	conn.Send(&mqttv5client.PublishPacket{Topic: "replies/me", Payload: []byte("other"), CorrelationData: []byte("nope")})
	conn.Send(&mqttv5client.PublishPacket{
		Topic:           "replies/me",
		Payload:         []byte("pong"),
		CorrelationData: req.CorrelationData,
		ContentType:     mqttv5client.Ptr("text/plain"),
		UserProperties:  []mqttv5client.UserProperty{{Name: "status", Value: "ok"}},
	})

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, []byte("pong"), r.resp.Payload)
		assert.Equal(t, "text/plain", r.resp.ContentType)
		assert.Equal(t, Headers{"status": "ok"}, r.resp.Headers)
		assert.Equal(t, req.CorrelationData, r.resp.CorrelationData)
	case <-time.After(brokertest.Timeout):
		t.Fatal("call did not return")
	}
}

func TestHandlerCallTimeout(t *testing.T) {
	client, conn := connectedClient(t)
	h, err := newHandler(t, client, conn, nil, mqttv5client.ReasonGrantedQoS0)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := h.CallWithTimeout("service/slow", nil, 50*time.Millisecond)
		done <- err
	}()

	brokertest.Expect[*mqttv5client.PublishPacket](conn)
	assert.ErrorIs(t, <-done, ErrTimeout)
}

func TestHandlerCallCanceled(t *testing.T) {
	client, conn := connectedClient(t)
	h, err := newHandler(t, client, conn, nil, mqttv5client.ReasonGrantedQoS0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := h.Request(ctx, "service/slow", []byte("x"))
		done <- err
	}()

	brokertest.Expect[*mqttv5client.PublishPacket](conn)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestHandlerClose(t *testing.T) {
	client, conn := connectedClient(t)
	h, err := newHandler(t, client, conn, &HandlerOptions{ResponseTopic: "replies/me"}, mqttv5client.ReasonGrantedQoS0)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := h.Request(context.Background(), "service/any", nil)
		done <- err
	}()
	brokertest.Expect[*mqttv5client.PublishPacket](conn)

	require.NoError(t, h.Close())
	assert.ErrorIs(t, <-done, ErrHandlerClosed)

	unsub := brokertest.Expect[*mqttv5client.UnsubscribePacket](conn)
	assert.Equal(t, []string{"replies/me"}, unsub.TopicFilters)

	_, err = h.Request(context.Background(), "service/any", nil)
	assert.True(t, errors.Is(err, ErrHandlerClosed))

	assert.NoError(t, h.Close())
}
