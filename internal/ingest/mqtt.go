// Package ingest receives sensor readings over MQTT. Each message carries one
// reading as JSON in the same shape the readings API accepts.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/rewired-gh/comfortdash/internal/models"
)

// ErrStopped is returned by Connect after Disconnect.
var ErrStopped = errors.New("subscriber stopped")

// Config holds broker settings.
type Config struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string
	Topic    string
	QoS      byte
	Username string
	Password string
}

// Subscriber validates incoming readings and hands them to a handler.
type Subscriber struct {
	client    mqtt.Client
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once

	handler func(models.Reading) error
}

// NewSubscriber creates a subscriber; it does not connect.
func NewSubscriber(cfg Config, logger *slog.Logger) *Subscriber {
	s := &Subscriber{
		cfg:    cfg,
		logger: logger.With("component", "mqtt"),
		now:    time.Now,
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		s.setConnected(true)
		s.logger.Info("mqtt connected", "broker", cfg.Broker)
		// Clean sessions lose subscriptions on reconnect.
		if err := s.subscribe(); err != nil {
			s.logger.Error("mqtt resubscribe failed", "error", err)
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.setConnected(false)
		s.logger.Warn("mqtt connection lost", "error", err)
	})

	s.client = mqtt.NewClient(opts)
	return s
}

// SetMessageHandler installs the callback for valid readings.
func (s *Subscriber) SetMessageHandler(handler func(models.Reading) error) {
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()
}

// Connect connects to the broker and subscribes to the configured topic.
func (s *Subscriber) Connect(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return ErrStopped
	default:
	}

	if s.IsConnected() {
		return nil
	}

	token := s.client.Connect()

	const poll = 200 * time.Millisecond
	for !token.WaitTimeout(poll) {
		select {
		case <-ctx.Done():
			s.client.Disconnect(0)
			return ctx.Err()
		case <-s.stopCh:
			s.client.Disconnect(0)
			return ErrStopped
		default:
		}
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

func (s *Subscriber) subscribe() error {
	token := s.client.Subscribe(s.cfg.Topic, s.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		s.handleMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for topic %s", s.cfg.Topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.cfg.Topic, err)
	}
	s.logger.Info("subscribed to mqtt topic", "topic", s.cfg.Topic, "qos", s.cfg.QoS)
	return nil
}

// handleMessage decodes and validates one payload. Sensors without a clock
// may omit the timestamp; those readings are stamped on receipt.
func (s *Subscriber) handleMessage(topic string, payload []byte) {
	s.logger.Debug("received mqtt message", "topic", topic, "size", len(payload))

	var raw models.RawReading
	if err := json.Unmarshal(payload, &raw); err != nil {
		s.logger.Warn("failed to parse reading", "topic", topic, "error", err, "payload", string(payload))
		return
	}
	if raw.Timestamp == nil || !raw.Timestamp.Valid {
		raw.Timestamp = &models.Timestamp{Time: s.now().UTC(), Valid: true}
	}

	reading, err := raw.Validate()
	if err != nil {
		s.logger.Warn("invalid reading", "topic", topic, "error", err)
		return
	}

	s.mu.RLock()
	handler := s.handler
	s.mu.RUnlock()
	if handler == nil {
		return
	}
	if err := handler(reading); err != nil {
		s.logger.Error("reading handler failed", "topic", topic, "timestamp", reading.Timestamp, "error", err)
		return
	}
	s.logger.Debug("stored reading", "timestamp", reading.Timestamp, "temperature", reading.Temperature)
}

// IsConnected reports whether the client is connected.
func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Disconnect stops the subscriber. Idempotent.
func (s *Subscriber) Disconnect() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	if s.IsConnected() {
		token := s.client.Unsubscribe(s.cfg.Topic)
		token.WaitTimeout(2 * time.Second)
	}
	s.client.Disconnect(250)

	s.setConnected(false)
	s.logger.Info("mqtt subscriber disconnected")
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
