package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalvas/mqttv5client"
	"github.com/vitalvas/mqttv5client/internal/config"
)

func TestCommands(t *testing.T) {
	names := make([]string, 0)
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"pub", "sub", "rpc"})

	flag := rootCmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "c", flag.Shorthand)
}

func TestApplyFlags(t *testing.T) {
	t.Cleanup(func() { metricsAddr, clientID = "", "" })

	cfg := config.Default()
	applyFlags(cfg)
	assert.Regexp(t, `^mqttv5ctl-[0-9a-f-]{36}$`, cfg.Client.ClientID)
	assert.Empty(t, cfg.Metrics.Addr)

	metricsAddr, clientID = ":9090", "sensor-1"
	cfg = config.Default()
	applyFlags(cfg)
	assert.Equal(t, "sensor-1", cfg.Client.ClientID)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
}

func TestNewLogger(t *testing.T) {
	assert.IsType(t, &mqttv5client.ZerologLogger{}, newLogger(config.LoggingConfig{Format: config.FormatJSON}))
	assert.IsType(t, &mqttv5client.ZerologLogger{}, newLogger(config.LoggingConfig{Format: config.FormatConsole}))
}

func TestServeMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := mqttv5client.NewPrometheusMetrics(reg)
	m.Counter(mqttv5client.MetricConnects, mqttv5client.MetricLabels{"result": "success"}).Inc()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveMetrics(ctx, ln, "/metrics", reg) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), mqttv5client.MetricConnects)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}

func TestPrintMessage(t *testing.T) {
	msg := &mqttv5client.PublishPacket{
		Topic:          "sensors/1",
		Payload:        []byte("21.5"),
		QoS:            mqttv5client.AtLeastOnce,
		Retain:         true,
		ContentType:    mqttv5client.Ptr("text/plain"),
		UserProperties: []mqttv5client.UserProperty{{Name: "unit", Value: "C"}},
	}

	var buf bytes.Buffer
	printMessage(&buf, msg, false)
	assert.Equal(t, "sensors/1 21.5\n", buf.String())

	buf.Reset()
	printMessage(&buf, msg, true)
	assert.Equal(t, "sensors/1 qos=1 retain=true content_type=text/plain unit=C 21.5\n", buf.String())
}

func TestCloneSubscribe(t *testing.T) {
	req := &mqttv5client.SubscribePacket{Subscriptions: []mqttv5client.Subscription{{TopicFilter: "a/#"}}}
	c := cloneSubscribe(req)
	c.PacketID = 7
	c.Subscriptions[0].TopicFilter = "b"

	assert.Zero(t, req.PacketID)
	assert.Equal(t, "a/#", req.Subscriptions[0].TopicFilter)
}
