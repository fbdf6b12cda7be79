package mqttsink

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/MrEthical07/authcore"
)

var (
	ErrConnectionFailed = errors.New("mqttsink: connection failed")
	ErrPublishFailed    = errors.New("mqttsink: publish failed")
	ErrInvalidConfig    = errors.New("mqttsink: invalid config")
)

const (
	DefaultTopicPrefix = "authcore/audit"

	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultKeepAlive      = 60 * time.Second
	disconnectQuiesceMS   = 500
	maxQoS                = 2
)

// Config describes the broker connection.
type Config struct {
	// Broker is a paho broker URL such as tcp://localhost:1883 or
	// ssl://broker:8883.
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	QoS            byte
	PublishTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.TopicPrefix == "" {
		c.TopicPrefix = DefaultTopicPrefix
	}
	c.TopicPrefix = strings.TrimRight(c.TopicPrefix, "/")
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = defaultPublishTimeout
	}
	if c.ClientID == "" {
		c.ClientID = "authcore-audit"
	}
	return c
}

func (c Config) validate() error {
	if c.QoS > maxQoS {
		return fmt.Errorf("%w: qos must be 0, 1 or 2", ErrInvalidConfig)
	}
	if strings.ContainsAny(c.TopicPrefix, "+#") {
		return fmt.Errorf("%w: topic prefix may not contain wildcards", ErrInvalidConfig)
	}
	return nil
}

var _ authcore.AuditSink = (*Sink)(nil)

// Sink is an [authcore.AuditSink] backed by a paho client.
type Sink struct {
	client pahomqtt.Client
	cfg    Config
	logger *slog.Logger
}

// Connect dials the broker and returns a ready sink.
func Connect(cfg Config, logger *slog.Logger) (*Sink, error) {
	cfg = cfg.withDefaults()
	if cfg.Broker == "" {
		return nil, fmt.Errorf("%w: broker required", ErrInvalidConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(defaultConnectTimeout).
		SetKeepAlive(defaultKeepAlive)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	if strings.HasPrefix(cfg.Broker, "ssl://") || strings.HasPrefix(cfg.Broker, "tls://") {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return New(client, cfg, logger)
}

// New wraps an existing client. The client is expected to be connected or
// auto-reconnecting.
func New(client pahomqtt.Client, cfg Config, logger *slog.Logger) (*Sink, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: nil client", ErrInvalidConfig)
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "mqttsink"),
	}, nil
}

// Topic returns the topic eventType is published on.
func (s *Sink) Topic(eventType string) string {
	return s.cfg.TopicPrefix + "/" + eventType
}

// Emit publishes event. Failures are logged; the dispatcher has no way to
// act on them.
func (s *Sink) Emit(_ context.Context, event authcore.AuditEvent) {
	if err := s.Publish(event); err != nil {
		s.logger.Warn("audit publish failed", "event_type", event.EventType, "error", err)
	}
}

// Publish sends event and waits for the broker acknowledgement demanded by
// the configured QoS.
func (s *Sink) Publish(event authcore.AuditEvent) error {
	if event.EventType == "" {
		return fmt.Errorf("%w: empty event type", ErrPublishFailed)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	if !s.client.IsConnectionOpen() {
		return fmt.Errorf("%w: not connected", ErrPublishFailed)
	}

	token := s.client.Publish(s.Topic(event.EventType), s.cfg.QoS, false, payload)
	if !token.WaitTimeout(s.cfg.PublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, s.cfg.PublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Close disconnects from the broker after in-flight messages settle.
func (s *Sink) Close() {
	if s == nil || s.client == nil {
		return
	}
	s.client.Disconnect(disconnectQuiesceMS)
}
