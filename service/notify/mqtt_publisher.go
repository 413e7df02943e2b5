package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes events to <topic>/<kind>.
type MQTTPublisher struct {
	client  mqttClient
	topic   string
	qos     byte
	timeout time.Duration
}

// MQTTOptions configures NewMQTTPublisher.
type MQTTOptions struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
}

// NewMQTTPublisher connects to the broker with auto-reconnect enabled.
func NewMQTTPublisher(opts MQTTOptions) (*MQTTPublisher, error) {
	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	co.SetCleanSession(true)
	co.SetKeepAlive(30 * time.Second)
	co.SetAutoReconnect(true)
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("mqtt connection lost", "broker", opts.Broker, "error", err)
	})

	client := mqtt.NewClient(co)
	if token := client.Connect(); token.WaitTimeout(10*time.Second) && token.Error() != nil {
		return nil, fmt.Errorf("notify: mqtt connect %s: %w", opts.Broker, token.Error())
	}
	slog.Info("mqtt connected", "broker", opts.Broker, "client_id", opts.ClientID)
	return &MQTTPublisher{client: client, topic: opts.Topic, qos: opts.QoS, timeout: 10 * time.Second}, nil
}

func (p *MQTTPublisher) Publish(ctx context.Context, event RunCompleted) error {
	payload, err := event.encode()
	if err != nil {
		return fmt.Errorf("notify: encode event: %w", err)
	}
	topic := p.topic + "/" + event.Kind
	token := p.client.Publish(topic, p.qos, false, payload)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("notify: mqtt topic %s: %w", topic, ctx.Err())
	case <-time.After(p.timeout):
		return fmt.Errorf("notify: mqtt topic %s: publish timed out after %s", topic, p.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("notify: mqtt topic %s: %w", topic, err)
	}
	slog.Debug("run event sent to mqtt", "topic", topic, "run_id", event.RunID)
	return nil
}

func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
