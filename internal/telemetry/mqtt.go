package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Config describes the MQTT broker connection.
type Config struct {
	BrokerURL      string
	Username       string
	Password       string
	ClientID       string
	TelemetryTopic string
	CommandTopic   string
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.TelemetryTopic == "" {
		c.TelemetryTopic = "v1/devices/me/telemetry"
	}
	if c.CommandTopic == "" {
		c.CommandTopic = "v1/devices/me/rpc/request/+"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 10 * time.Second
	}
}

// Client wraps the paho MQTT client: QoS 1 publishes on the telemetry topic
// and subscription on the dedicated command topic.
type Client struct {
	cfg  Config
	conn mqtt.Client
}

// Dial connects to the broker, retrying with a fixed delay until the context
// is cancelled, matching the device's network bring-up behavior.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	cfg.applyDefaults()
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.ConnectTimeout)
	conn := mqtt.NewClient(opts)

	for {
		tok := conn.Connect()
		tok.Wait()
		if tok.Error() == nil {
			slog.Info("mqtt connected", "broker", cfg.BrokerURL, "client_id", cfg.ClientID)
			return &Client{cfg: cfg, conn: conn}, nil
		}
		slog.Error("mqtt connect failed, retrying", "broker", cfg.BrokerURL, "error", tok.Error())
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("mqtt connect: %w", ctx.Err())
		case <-time.After(5 * time.Second):
		}
	}
}

// Publish sends payload to the telemetry topic at QoS 1.
func (c *Client) Publish(ctx context.Context, payload []byte) error {
	tok := c.conn.Publish(c.cfg.TelemetryTopic, 1, false, payload)
	if !tok.WaitTimeout(c.cfg.PublishTimeout) {
		return fmt.Errorf("publish to %s timed out", c.cfg.TelemetryTopic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", c.cfg.TelemetryTopic, err)
	}
	return nil
}

// SubscribeCommands registers handler for every message on the command topic.
func (c *Client) SubscribeCommands(handler func(payload []byte)) error {
	tok := c.conn.Subscribe(c.cfg.CommandTopic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Payload())
	})
	tok.Wait()
	if err := tok.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", c.cfg.CommandTopic, err)
	}
	slog.Info("command topic subscribed", "topic", c.cfg.CommandTopic)
	return nil
}

func (c *Client) Close() {
	c.conn.Disconnect(250)
}
