package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/manthysbr/aule-agent/internal/core/domain"
	"github.com/manthysbr/aule-agent/internal/core/ports"
)

// AlertPublisher pushes device alerts to an MQTT broker. Every alert goes
// to {topic_prefix}/{device_id}/alert at QoS 1.
type AlertPublisher struct {
	cfg    domain.MQTTConfig
	logger *slog.Logger

	mu sync.RWMutex
	cm *autopaho.ConnectionManager
}

var _ ports.AlertPublisher = (*AlertPublisher)(nil)

// NewAlertPublisher creates a publisher but does not connect. Call Start.
func NewAlertPublisher(cfg domain.MQTTConfig, logger *slog.Logger) *AlertPublisher {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "aule/devices"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "aule-agent"
	}
	return &AlertPublisher{cfg: cfg, logger: logger}
}

// Start connects to the broker. It waits up to 30s for the first
// connection; after that autopaho keeps retrying in the background.
func (p *AlertPublisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	availTopic := p.availabilityTopic()

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   availTopic,
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected to broker", "broker", p.cfg.Broker)
			p.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: p.cfg.ClientID,
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.mu.Lock()
	p.cm = cm
	p.mu.Unlock()

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		p.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}
	return nil
}

// Run starts the publisher, blocks until ctx is cancelled and then stops it.
func (p *AlertPublisher) Run(ctx context.Context) error {
	if err := p.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.Stop(stopCtx)
}

// Stop publishes "offline" and disconnects.
func (p *AlertPublisher) Stop(ctx context.Context) error {
	p.mu.RLock()
	cm := p.cm
	p.mu.RUnlock()
	if cm == nil {
		return nil
	}
	p.publishAvailability(ctx, cm, "offline")
	return cm.Disconnect(ctx)
}

// PublishAlert sends one alert as JSON.
func (p *AlertPublisher) PublishAlert(ctx context.Context, alert domain.DeviceAlert) error {
	p.mu.RLock()
	cm := p.cm
	p.mu.RUnlock()
	if cm == nil {
		return fmt.Errorf("mqtt alert publisher not started")
	}

	topic, err := p.alertTopic(alert.DeviceID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     1,
	}); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	p.logger.Info("device alert published", "device_id", alert.DeviceID, "severity", alert.Severity, "topic", topic)
	return nil
}

// --- Topic helpers ---

func (p *AlertPublisher) availabilityTopic() string {
	return strings.TrimRight(p.cfg.TopicPrefix, "/") + "/" + p.cfg.ClientID + "/availability"
}

func (p *AlertPublisher) alertTopic(deviceID string) (string, error) {
	id := strings.TrimSpace(deviceID)
	if id == "" {
		return "", fmt.Errorf("device id is empty")
	}
	if strings.ContainsAny(id, "/+#") {
		return "", fmt.Errorf("device id %q contains MQTT topic characters", deviceID)
	}
	return strings.TrimRight(p.cfg.TopicPrefix, "/") + "/" + id + "/alert", nil
}

func (p *AlertPublisher) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt availability publish failed", "status", status, "error", err)
	} else {
		p.logger.Info("mqtt availability published", "status", status)
	}
}

// NoopAlertPublisher logs alerts when no broker is configured.
type NoopAlertPublisher struct {
	logger *slog.Logger
}

var _ ports.AlertPublisher = NoopAlertPublisher{}

func NewNoopAlertPublisher(logger *slog.Logger) NoopAlertPublisher {
	return NoopAlertPublisher{logger: logger}
}

func (n NoopAlertPublisher) PublishAlert(_ context.Context, alert domain.DeviceAlert) error {
	n.logger.Warn("mqtt disabled, alert not delivered",
		"device_id", alert.DeviceID, "severity", alert.Severity, "message", alert.Message)
	return nil
}
