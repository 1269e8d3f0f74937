//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/vitalvas/mqttv5client"
	"github.com/vitalvas/mqttv5client/extensions/rpc"
)

const mosquittoConf = `listener 1883
allow_anonymous true
persistence false
log_dest stdout
`

func startMosquitto(ctx context.Context, t *testing.T) (host string, port int) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "mosquitto.conf")
	require.NoError(t, os.WriteFile(path, []byte(mosquittoConf), 0o644))

	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
		Files: []tc.ContainerFile{
			{
				HostFilePath:      path,
				ContainerFilePath: "/mosquitto/config/mosquitto.conf",
				FileMode:          0o644,
			},
		},
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("mosquitto container: %v", err)
	}
	t.Cleanup(func() {
		if err := cont.Terminate(context.Background()); err != nil {
			t.Logf("terminate: %v", err)
		}
	})

	host, err = cont.Host(ctx)
	require.NoError(t, err)
	mapped, err := cont.MappedPort(ctx, "1883")
	require.NoError(t, err)
	port, err = strconv.Atoi(mapped.Port())
	require.NoError(t, err)
	return host, port
}

func newClient(t *testing.T, host string, port int, clientID string, listeners ...mqttv5client.EventListener) *mqttv5client.Client {
	t.Helper()

	cfg := mqttv5client.DefaultClientConfig()
	cfg.HostName = host
	cfg.Port = port
	cfg.ClientID = clientID
	cfg.MinReconnectDelay = 100 * time.Millisecond
	cfg.MaxReconnectDelay = time.Second

	opts := []mqttv5client.Option{
		mqttv5client.WithLogger(mqttv5client.NewConsoleLogger(os.Stderr, mqttv5client.LogLevelWarn, clientID)),
	}
	for _, l := range listeners {
		opts = append(opts, mqttv5client.WithEventListener(l))
	}

	client, err := mqttv5client.NewClient(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, client.Start())

	t.Cleanup(func() {
		if f, err := client.Stop(nil); err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			f.Wait(ctx)
			cancel()
		}
		client.Close()
	})
	return client
}

func TestPublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	host, port := startMosquitto(ctx, t)

	received := make(chan *mqttv5client.PublishPacket, 10)
	connected := make(chan *mqttv5client.NegotiatedSettings, 1)
	client := newClient(t, host, port, "itest-pubsub", func(ev mqttv5client.Event) {
		switch ev.Type {
		case mqttv5client.EventMessageReceived:
			received <- ev.Publish
		case mqttv5client.EventConnectionSuccess:
			connected <- ev.Settings
		}
	})

	subF, err := client.Subscribe(ctx, &mqttv5client.SubscribePacket{
		Subscriptions: []mqttv5client.Subscription{{TopicFilter: "itest/+/temp", QoS: mqttv5client.AtLeastOnce}},
	})
	require.NoError(t, err)

	select {
	case settings := <-connected:
		assert.Equal(t, "itest-pubsub", settings.ClientID)
		assert.False(t, settings.RejoinedSession)
	case <-ctx.Done():
		t.Fatal("not connected")
	}

	suback, err := subF.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, []mqttv5client.ReasonCode{mqttv5client.ReasonGrantedQoS1}, suback.ReasonCodes)

	pubF, err := client.Publish(ctx, &mqttv5client.PublishPacket{
		Topic:          "itest/kitchen/temp",
		Payload:        []byte("21.5"),
		QoS:            mqttv5client.AtLeastOnce,
		ContentType:    mqttv5client.Ptr("text/plain"),
		UserProperties: []mqttv5client.UserProperty{{Name: "unit", Value: "C"}},
	})
	require.NoError(t, err)
	res, err := pubF.Wait(ctx)
	require.NoError(t, err)
	require.NotNil(t, res.Puback)

	select {
	case msg := <-received:
		assert.Equal(t, "itest/kitchen/temp", msg.Topic)
		assert.Equal(t, []byte("21.5"), msg.Payload)
		assert.Equal(t, mqttv5client.AtLeastOnce, msg.QoS)
		assert.Equal(t, "text/plain", *msg.ContentType)
		assert.Equal(t, []mqttv5client.UserProperty{{Name: "unit", Value: "C"}}, msg.UserProperties)
	case <-ctx.Done():
		t.Fatal("message not received")
	}

	assert.Equal(t, map[string]mqttv5client.QoS{"itest/+/temp": mqttv5client.AtLeastOnce}, client.Subscriptions())
	assert.Zero(t, client.Statistics().IncompleteOperationCount)
}

func TestRequestResponse(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	host, port := startMosquitto(ctx, t)

	requests := make(chan *mqttv5client.PublishPacket, 1)
	responder := newClient(t, host, port, "itest-responder", func(ev mqttv5client.Event) {
		if ev.Type == mqttv5client.EventMessageReceived {
			requests <- ev.Publish
		}
	})

	subF, err := responder.Subscribe(ctx, &mqttv5client.SubscribePacket{
		Subscriptions: []mqttv5client.Subscription{{TopicFilter: "itest/rpc/echo", QoS: mqttv5client.AtLeastOnce}},
	})
	require.NoError(t, err)
	_, err = subF.Wait(ctx)
	require.NoError(t, err)

	go func() {
		select {
		case req := <-requests:
			responder.Publish(ctx, &mqttv5client.PublishPacket{
				Topic:           *req.ResponseTopic,
				Payload:         append([]byte("echo: "), req.Payload...),
				QoS:             mqttv5client.AtLeastOnce,
				CorrelationData: req.CorrelationData,
			})
		case <-ctx.Done():
		}
	}()

	requester := newClient(t, host, port, "itest-requester")
	h, err := rpc.NewHandler(ctx, requester, &rpc.HandlerOptions{QoS: mqttv5client.AtLeastOnce})
	require.NoError(t, err)
	defer h.Close()

	resp, err := h.CallWithTimeout("itest/rpc/echo", &rpc.Request{Payload: []byte("hello")}, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", string(resp.Payload))
}
