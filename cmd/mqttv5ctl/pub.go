package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/vitalvas/mqttv5client"
)

type pubOptions struct {
	topic       string
	message     string
	qos         int
	retain      bool
	count       int
	rate        float64
	contentType string
}

var pubOpts pubOptions

var pubCmd = &cobra.Command{
	Use:   "pub",
	Short: "Publish messages to a topic",
	RunE:  runPub,
}

func init() {
	f := pubCmd.Flags()
	f.StringVarP(&pubOpts.topic, "topic", "t", "", "topic to publish to")
	f.StringVarP(&pubOpts.message, "message", "m", "", "message payload")
	f.IntVarP(&pubOpts.qos, "qos", "q", 0, "QoS level (0 or 1)")
	f.BoolVarP(&pubOpts.retain, "retain", "r", false, "set the retain flag")
	f.IntVarP(&pubOpts.count, "count", "n", 1, "number of messages to publish")
	f.Float64Var(&pubOpts.rate, "rate", 0, "messages per second, 0 for unlimited")
	f.StringVar(&pubOpts.contentType, "content-type", "", "content type property")
	pubCmd.MarkFlagRequired("topic")

	rootCmd.AddCommand(pubCmd)
}

func runPub(cmd *cobra.Command, _ []string) error {
	if pubOpts.count < 1 {
		return errors.New("count must be positive")
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()
	if err := s.start(); err != nil {
		return err
	}

	limit := rate.Inf
	if pubOpts.rate > 0 {
		limit = rate.Limit(pubOpts.rate)
	}
	limiter := rate.NewLimiter(limit, 1)

	futures := make([]*mqttv5client.Future[*mqttv5client.PublishResult], 0, pubOpts.count)
	for i := 0; i < pubOpts.count; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		pkt := &mqttv5client.PublishPacket{
			Topic:   pubOpts.topic,
			Payload: []byte(pubOpts.message),
			QoS:     mqttv5client.QoS(pubOpts.qos),
			Retain:  pubOpts.retain,
		}
		if pubOpts.contentType != "" {
			pkt.ContentType = mqttv5client.Ptr(pubOpts.contentType)
		}

		f, err := s.client.Publish(ctx, pkt)
		if err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		futures = append(futures, f)
	}

	var failed int
	for _, f := range futures {
		if _, err := f.Wait(ctx); err != nil {
			failed++
			s.logger.Error("publish failed", mqttv5client.LogFields{"error": err})
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "published %d/%d messages to %s\n", len(futures)-failed, len(futures), pubOpts.topic)
	if failed > 0 {
		return fmt.Errorf("%d publishes failed", failed)
	}
	return nil
}
