package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTPublisher publishes projector output through a Paho client.
type MQTTPublisher struct {
	client mqtt.Client
	qos    byte
	logger *slog.Logger
}

// MQTTOptions configures the MQTT publisher.
type MQTTOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
	// StatusTopic carries a retained "online" on every (re)connect and a
	// retained "offline" will for unclean disconnects. Empty disables both.
	StatusTopic string
	Logger      *slog.Logger
}

// NewMQTTPublisher connects to the broker. The client keeps reconnecting
// in the background after the first successful connect.
func NewMQTTPublisher(opts MQTTOptions) (*MQTTPublisher, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &MQTTPublisher{qos: opts.QoS, logger: logger}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetKeepAlive(30 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(60 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", "broker", opts.Broker, "error", err)
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			logger.Info("mqtt connected", "broker", opts.Broker)
			if opts.StatusTopic != "" {
				c.Publish(opts.StatusTopic, opts.QoS, true, "online")
			}
		})
	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username).SetPassword(opts.Password)
	}
	if opts.StatusTopic != "" {
		clientOpts.SetWill(opts.StatusTopic, "offline", opts.QoS, true)
	}

	p.client = mqtt.NewClient(clientOpts)
	token := p.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to MQTT broker %s: %w", opts.Broker, err)
	}
	return p, nil
}

// Publish waits for the broker acknowledgement or ctx, whichever is first.
func (p *MQTTPublisher) Publish(ctx context.Context, msg Message) error {
	token := p.client.Publish(msg.Topic, p.qos, msg.Retained, msg.Payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publishing %s: %w", msg.Topic, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publishing %s: %w", msg.Topic, ctx.Err())
	}
}

// Close disconnects, giving in-flight publishes a second to drain.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(1000)
	p.logger.Debug("mqtt disconnected")
	return nil
}
