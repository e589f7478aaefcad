// Package mqttpublish provides the `mqtt_publish` action.
package mqttpublish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	defaultPublishTimeout = 5 * time.Second
	defaultConnectTimeout = 10 * time.Second
	maxQoS                = 2
)

var (
	ErrTopicRequired  = errors.New("mqtt_publish: topic is required")
	ErrInvalidQoS     = errors.New("mqtt_publish: qos must be 0, 1 or 2")
	ErrPublishTimeout = errors.New("mqtt_publish: timed out waiting for broker acknowledgement")
)

// Publisher is the part of the paho client the action needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

type Action struct {
	client  Publisher
	timeout time.Duration
	logger  *slog.Logger
}

func NewAction(client Publisher, logger *slog.Logger) *Action {
	return &Action{
		client:  client,
		timeout: defaultPublishTimeout,
		logger:  logger.With("action_type", "mqtt_publish"),
	}
}

func (*Action) ID() string {
	return "mqtt_publish"
}

// Execute publishes config["payload"] (or the trigger data as JSON) to
// config["topic"] with optional qos and retained flags.
func (a *Action) Execute(ctx context.Context, config map[string]any, triggerData map[string]any) error {
	topic, _ := config["topic"].(string)
	if topic == "" {
		return ErrTopicRequired
	}

	qos := 0
	if v, ok := config["qos"].(float64); ok {
		qos = int(v)
	}

	if qos < 0 || qos > maxQoS {
		return ErrInvalidQoS
	}

	retained, _ := config["retained"].(bool)

	payload, err := buildPayload(config["payload"], triggerData)
	if err != nil {
		return err
	}

	token := a.client.Publish(topic, byte(qos), retained, payload)

	if !token.WaitTimeout(a.timeout) {
		return ErrPublishTimeout
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt_publish: %w", err)
	}

	a.logger.DebugContext(ctx, "Published message", "topic", topic, "qos", qos, "retained", retained)

	return nil
}

func buildPayload(configured any, triggerData map[string]any) ([]byte, error) {
	switch v := configured.(type) {
	case string:
		return []byte(v), nil
	case nil:
		configured = triggerData
	}

	payload, err := json.Marshal(configured)
	if err != nil {
		return nil, fmt.Errorf("mqtt_publish: failed to encode payload: %w", err)
	}

	return payload, nil
}

// Connect opens a paho client for brokerURL (tcp://host:port).
func Connect(brokerURL, clientID, username, password string) (pahomqtt.Client, error) {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(clientID)

	if username != "" {
		opts.SetUsername(username)
		opts.SetPassword(password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(defaultConnectTimeout)

	client := pahomqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("mqtt: connection timeout after %v", defaultConnectTimeout)
	}

	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: %w", err)
	}

	return client, nil
}
