// Package mqttbridge forwards meal and connection events to an MQTT broker.
package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/foodlens/framelink/internal/bus"
	"github.com/foodlens/framelink/internal/connectors"
	"github.com/foodlens/framelink/internal/metrics"
)

const (
	MealsSuffix  = "meals"
	StatusSuffix = "status"
)

// ErrBrokerTimeout is returned when the broker does not acknowledge in time.
var ErrBrokerTimeout = errors.New("mqtt broker did not respond in time")

// Publisher delivers one message to the broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, retained bool, payload []byte) error
	Close()
}

// Options configures a Bridge.
type Options struct {
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	TopicPrefix string
}

type Bridge struct {
	logger  *slog.Logger
	bus     bus.MessageBus
	pub     Publisher
	metrics *metrics.Metrics
	prefix  string
}

func New(b bus.MessageBus, pub Publisher, opts Options) *Bridge {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prefix := strings.Trim(strings.TrimSpace(opts.TopicPrefix), "/")
	if prefix == "" {
		prefix = "framelink"
	}

	return &Bridge{
		logger:  logger,
		bus:     b,
		pub:     pub,
		metrics: opts.Metrics,
		prefix:  prefix,
	}
}

// MealsTopic is where meal events go.
func (br *Bridge) MealsTopic() string {
	return br.prefix + "/" + MealsSuffix
}

// StatusTopic carries the retained device connection state.
func (br *Bridge) StatusTopic() string {
	return br.prefix + "/" + StatusSuffix
}

// Run forwards events until ctx ends or the bus closes. Delivery failures are
// logged and counted; they never stop the bridge.
func (br *Bridge) Run(ctx context.Context) error {
	sub := br.bus.Subscribe(connectors.TopicMealLogged, connectors.TopicConnStatus)
	defer br.bus.Unsubscribe(sub)

	br.logger.Info("mqtt bridge started", "meals_topic", br.MealsTopic(), "status_topic", br.StatusTopic())
	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-sub:
			if !ok {
				return nil
			}
			br.forward(ctx, raw)
		}
	}
}

func (br *Bridge) forward(ctx context.Context, raw any) {
	var (
		topic    string
		retained bool
	)
	switch raw.(type) {
	case connectors.MealLoggedEvent:
		topic = br.MealsTopic()
	case connectors.ConnectionStatus:
		topic = br.StatusTopic()
		retained = true
	default:
		return
	}

	payload, err := json.Marshal(raw)
	if err != nil {
		br.logger.Warn("encode mqtt payload", "topic", topic, "error", err)
		return
	}
	if err := br.pub.Publish(ctx, topic, retained, payload); err != nil {
		br.metrics.MQTTPublishFailed()
		br.logger.Warn("mqtt publish failed", "topic", topic, "error", err)
		return
	}
	br.logger.Debug("mqtt event published", "topic", topic, "bytes", len(payload))
}
