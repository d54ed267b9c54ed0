package mqttbridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/foodlens/framelink/internal/config"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 250
	publishQoS        = 1
)

// PahoPublisher publishes through an auto-reconnecting paho client.
type PahoPublisher struct {
	client mqtt.Client
	logger *slog.Logger
}

// Dial connects to cfg.Broker.
func Dial(ctx context.Context, cfg config.MQTTConfig, logger *slog.Logger) (*PahoPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	broker := strings.TrimSpace(cfg.Broker)
	if broker == "" {
		return nil, fmt.Errorf("mqtt broker is not configured")
	}
	clientID := strings.TrimSpace(cfg.ClientID)
	if clientID == "" {
		clientID = fmt.Sprintf("framelink-%d", time.Now().UnixNano())
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetOnConnectHandler(func(mqtt.Client) {
			logger.Info("mqtt connected", "broker", broker, "client_id", clientID)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", "broker", broker, "error", err)
		})

	client := mqtt.NewClient(opts)
	if err := waitToken(ctx, client.Connect(), connectTimeout); err != nil {
		client.Disconnect(disconnectQuiesce)
		return nil, fmt.Errorf("connect mqtt broker %s: %w", broker, err)
	}

	return &PahoPublisher{client: client, logger: logger}, nil
}

func (p *PahoPublisher) Publish(ctx context.Context, topic string, retained bool, payload []byte) error {
	return waitToken(ctx, p.client.Publish(topic, publishQoS, retained, payload), publishTimeout)
}

func (p *PahoPublisher) Close() {
	p.client.Disconnect(disconnectQuiesce)
}

func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrBrokerTimeout
	}
}
