package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vitalvas/mqttv5client"
	"github.com/vitalvas/mqttv5client/extensions/router"
)

type subOptions struct {
	topics  []string
	qos     int
	noLocal bool
	verbose bool
}

var subOpts subOptions

var subCmd = &cobra.Command{
	Use:   "sub",
	Short: "Subscribe to topic filters and print received messages",
	RunE:  runSub,
}

func init() {
	f := subCmd.Flags()
	f.StringSliceVarP(&subOpts.topics, "topic", "t", nil, "topic filter, repeatable")
	f.IntVarP(&subOpts.qos, "qos", "q", 0, "maximum QoS (0 or 1)")
	f.BoolVar(&subOpts.noLocal, "no-local", false, "do not receive own publications")
	f.BoolVarP(&subOpts.verbose, "verbose", "v", false, "print QoS, retain and properties")
	subCmd.MarkFlagRequired("topic")

	rootCmd.AddCommand(subCmd)
}

func runSub(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	out := cmd.OutOrStdout()
	r := router.New()
	for _, filter := range subOpts.topics {
		r.Handle(func(msg *mqttv5client.PublishPacket) {
			printMessage(out, msg, subOpts.verbose)
		}, router.WithTopic(filter))
	}
	// A resumed session can still deliver for filters from an earlier run.
	r.HandleDefault(func(msg *mqttv5client.PublishPacket) {
		s.logger.Debug("message matched no filter", mqttv5client.LogFields{mqttv5client.LogFieldTopic: msg.Topic})
	})
	s.client.AddListener(r.Listener())

	req := &mqttv5client.SubscribePacket{}
	for _, filter := range r.Filters() {
		req.Subscriptions = append(req.Subscriptions, mqttv5client.Subscription{
			TopicFilter: filter,
			QoS:         mqttv5client.QoS(subOpts.qos),
			NoLocal:     subOpts.noLocal,
		})
	}

	// Subscriptions do not survive a clean session, so subscribe after
	// every connection that did not resume one.
	subscribe := func() {
		f, err := s.client.Subscribe(ctx, cloneSubscribe(req))
		if err != nil {
			s.logger.Error("subscribe", mqttv5client.LogFields{"error": err})
			return
		}
		go func() {
			ack, err := f.Wait(ctx)
			if err != nil {
				s.logger.Error("subscribe failed", mqttv5client.LogFields{"error": err})
				return
			}
			for i, code := range ack.ReasonCodes {
				if code.IsError() && i < len(req.Subscriptions) {
					s.logger.Warn("subscription rejected", mqttv5client.LogFields{
						"filter": req.Subscriptions[i].TopicFilter,
						"reason": code.String(),
					})
				}
			}
		}()
	}

	s.client.AddListener(func(ev mqttv5client.Event) {
		if ev.Type == mqttv5client.EventConnectionSuccess && !ev.Settings.RejoinedSession {
			subscribe()
		}
	})
	if err := s.start(); err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}

// cloneSubscribe copies req so every SUBSCRIBE carries its own packet identifier.
func cloneSubscribe(req *mqttv5client.SubscribePacket) *mqttv5client.SubscribePacket {
	c := *req
	c.Subscriptions = append([]mqttv5client.Subscription(nil), req.Subscriptions...)
	return &c
}

func printMessage(w io.Writer, msg *mqttv5client.PublishPacket, verbose bool) {
	if !verbose {
		fmt.Fprintf(w, "%s %s\n", msg.Topic, msg.Payload)
		return
	}

	fmt.Fprintf(w, "%s qos=%d retain=%t", msg.Topic, msg.QoS, msg.Retain)
	if msg.ContentType != nil {
		fmt.Fprintf(w, " content_type=%s", *msg.ContentType)
	}
	for _, up := range msg.UserProperties {
		fmt.Fprintf(w, " %s=%s", up.Name, up.Value)
	}
	fmt.Fprintf(w, " %s\n", msg.Payload)
}
