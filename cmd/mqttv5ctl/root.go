package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/vitalvas/mqttv5client"
	"github.com/vitalvas/mqttv5client/internal/config"
)

const stopTimeout = 5 * time.Second

var (
	cfgPath     string
	metricsAddr string
	clientID    string
)

var rootCmd = &cobra.Command{
	Use:          "mqttv5ctl",
	Short:        "MQTT v5 command line client",
	SilenceUsage: true,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&cfgPath, "config", "c", "", "configuration file (yaml or json)")
	f.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	f.StringVar(&clientID, "client-id", "", "client identifier, generated when empty")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// applyFlags lets command line flags override the loaded configuration.
func applyFlags(cfg *config.Config) {
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
	if clientID != "" {
		cfg.Client.ClientID = clientID
	}
	if cfg.Client.ClientID == "" {
		cfg.Client.ClientID = "mqttv5ctl-" + uuid.NewString()
	}
}

func newLogger(cfg config.LoggingConfig) mqttv5client.Logger {
	if cfg.Format == config.FormatJSON {
		return mqttv5client.NewZerologLogger(os.Stderr, cfg.Level, "mqttv5ctl")
	}
	return mqttv5client.NewConsoleLogger(os.Stderr, cfg.Level, "mqttv5ctl")
}

// session is a started client plus the metrics endpoint, if configured.
type session struct {
	cfg       *config.Config
	client    *mqttv5client.Client
	logger    mqttv5client.Logger
	connected chan struct{}
}

// newSession builds a stopped client from the configuration. Register
// listeners before calling start.
func newSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyFlags(cfg)

	s := &session{
		cfg:       cfg,
		logger:    newLogger(cfg.Logging),
		connected: make(chan struct{}),
	}

	opts := []mqttv5client.Option{
		mqttv5client.WithLogger(s.logger),
		mqttv5client.WithEventListener(s.logEvent()),
	}

	if cfg.Metrics.Addr != "" {
		ln, err := net.Listen("tcp", cfg.Metrics.Addr)
		if err != nil {
			return nil, fmt.Errorf("metrics listener: %w", err)
		}
		reg := prometheus.NewRegistry()
		opts = append(opts, mqttv5client.WithMetrics(mqttv5client.NewPrometheusMetrics(reg)))
		go func() {
			if err := serveMetrics(ctx, ln, cfg.Metrics.Path, reg); err != nil {
				s.logger.Error("metrics server failed", mqttv5client.LogFields{"error": err})
			}
		}()
	}

	s.client, err = mqttv5client.NewClient(cfg.Client, opts...)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *session) logEvent() mqttv5client.EventListener {
	var once sync.Once
	return func(ev mqttv5client.Event) {
		switch ev.Type {
		case mqttv5client.EventConnectionSuccess:
			once.Do(func() { close(s.connected) })
		case mqttv5client.EventConnectionFailure:
			s.logger.Warn("connection attempt failed", mqttv5client.LogFields{"error": ev.Err})
		case mqttv5client.EventDisconnection:
			s.logger.Warn("connection lost", mqttv5client.LogFields{"error": ev.Err})
		}
	}
}

func (s *session) start() error {
	return s.client.Start()
}

// close sends DISCONNECT when connected and releases the client.
func (s *session) close() {
	if f, err := s.client.Stop(nil); err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		if _, err := f.Wait(ctx); err != nil {
			s.logger.Debug("stop", mqttv5client.LogFields{"error": err})
		}
		cancel()
	}
	if err := s.client.Close(); err != nil {
		s.logger.Error("close client", mqttv5client.LogFields{"error": err})
	}
}
