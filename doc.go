// Package mqttv5client implements an MQTT v5.0 client built around an
// operational state machine.
//
// This package implements the client side of the MQTT Version 5.0 OASIS Standard:
// https://docs.oasis-open.org/mqtt/mqtt/v5.0/mqtt-v5.0.html
//
// # Features
//
//   - Typed packets for CONNECT, CONNACK, PUBLISH and its acknowledgments,
//     SUBSCRIBE, SUBACK, UNSUBSCRIBE, UNSUBACK, PINGREQ, PINGRESP and DISCONNECT
//   - Topic name and filter validation, including shared subscriptions
//   - Session settings negotiated from CONNACK
//   - FIFO operation queue with Receive Maximum flow control
//   - Automatic reconnect with exponential backoff and jitter
//   - Transport: TCP, TLS, WebSocket, WSS, QUIC, Unix sockets, HTTP and SOCKS5 proxies
//
// # Lifecycle
//
// A Client is created stopped. Start connects in the background and reports
// progress through events; it never blocks on the network:
//
//	cfg := mqttv5client.DefaultClientConfig()
//	cfg.HostName = "localhost"
//	cfg.ClientID = "sensor-1"
//
//	client, err := mqttv5client.NewClient(cfg,
//	    mqttv5client.WithLogger(mqttv5client.NewZerologLogger(os.Stderr, mqttv5client.LogLevelInfo, "mqtt")),
//	    mqttv5client.WithEventListener(func(ev mqttv5client.Event) {
//	        if ev.Type == mqttv5client.EventConnectionSuccess {
//	            log.Printf("connected, rejoined=%v", ev.Settings.RejoinedSession)
//	        }
//	    }),
//	)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	if err := client.Start(); err != nil {
//	    return err
//	}
//
// States move Stopped, Connecting, Connected, Disconnecting and back to
// Stopped. An unexpected connection loss goes through ReconnectWaiting and
// retries on its own until Stop is called. Close is terminal.
//
// # Operations
//
// Subscribe, Unsubscribe and Publish are accepted in any state except Closed.
// Operations submitted while disconnected wait in the queue and are sent in
// order after the next CONNACK. Each returns a Future:
//
//	f, err := client.Subscribe(ctx, &mqttv5client.SubscribePacket{
//	    Subscriptions: []mqttv5client.Subscription{{TopicFilter: "sensors/+/temp", QoS: mqttv5client.AtLeastOnce}},
//	})
//	if err != nil {
//	    return err // invalid filter, never queued
//	}
//	suback, err := f.Wait(ctx)
//
// The context passed to an operation cancels only that operation. Stop fails
// in-flight operations with ErrClientStopped and keeps queued ones; Close fails
// everything with ErrClientClosed.
//
// Re-subscribing after a reconnect is left to the caller: check
// NegotiatedSettings.RejoinedSession in the EventConnectionSuccess event.
//
// # Errors
//
// Use errors.Is with the sentinel errors (ErrClientClosed, ErrPingTimeout,
// ErrNegotiatedSettingsViolation, ...) and errors.As with *ConnackError,
// *DisconnectionError and *AckError.
package mqttv5client
