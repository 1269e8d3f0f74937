package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitalvas/mqttv5client"
	"github.com/vitalvas/mqttv5client/extensions/rpc"
)

type rpcOptions struct {
	topic         string
	message       string
	responseTopic string
	contentType   string
	headers       map[string]string
	qos           int
	timeout       time.Duration
}

var rpcOpts rpcOptions

var rpcCmd = &cobra.Command{
	Use:   "rpc",
	Short: "Send a request and print the response",
	RunE:  runRPC,
}

func init() {
	f := rpcCmd.Flags()
	f.StringVarP(&rpcOpts.topic, "topic", "t", "", "request topic")
	f.StringVarP(&rpcOpts.message, "message", "m", "", "request payload")
	f.StringVar(&rpcOpts.responseTopic, "response-topic", "", "response topic, generated when empty")
	f.StringVar(&rpcOpts.contentType, "content-type", "", "content type property")
	f.StringToStringVarP(&rpcOpts.headers, "header", "H", nil, "request header as key=value, repeatable")
	f.IntVarP(&rpcOpts.qos, "qos", "q", 1, "QoS level (0 or 1)")
	f.DurationVar(&rpcOpts.timeout, "timeout", 10*time.Second, "time to wait for the connection and the response")
	rpcCmd.MarkFlagRequired("topic")

	rootCmd.AddCommand(rpcCmd)
}

func runRPC(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, rpcOpts.timeout)
	defer cancel()

	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()
	if err := s.start(); err != nil {
		return err
	}

	select {
	case <-s.connected:
	case <-ctx.Done():
		return fmt.Errorf("connect to %s: %w", s.cfg.Client.HostName, ctx.Err())
	}

	h, err := rpc.NewHandler(ctx, s.client, &rpc.HandlerOptions{
		ResponseTopic: rpcOpts.responseTopic,
		QoS:           mqttv5client.QoS(rpcOpts.qos),
	})
	if err != nil {
		return err
	}
	defer h.Close()

	resp, err := h.Call(ctx, rpcOpts.topic, &rpc.Request{
		Payload:     []byte(rpcOpts.message),
		Headers:     rpcOpts.headers,
		ContentType: rpcOpts.contentType,
	})
	if err != nil {
		return err
	}

	for k, v := range resp.Headers {
		s.logger.Debug("response header", mqttv5client.LogFields{"name": k, "value": v})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", resp.Payload)
	return nil
}
