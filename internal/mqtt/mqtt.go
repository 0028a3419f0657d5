// Package mqtt is the broker-facing channel: prompts arrive on a
// subscribe topic, replies and announcements go out as publishes.
package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/marlowe-agent/marlowe/internal/agent"
	"github.com/marlowe-agent/marlowe/internal/config"
)

// Channel bridges an MQTT broker to the agent. Topics live under the
// configured prefix:
//
//	<prefix>/prompt    inbound prompts
//	<prefix>/response  replies to prompts
//	<prefix>/announce  unsolicited output
//	<prefix>/availability  online/offline with a broker will
type Channel struct {
	logger  *slog.Logger
	cfg     config.MQTTConfig
	gateway *agent.Gateway
	cm      *autopaho.ConnectionManager
}

func New(logger *slog.Logger, cfg config.MQTTConfig, gateway *agent.Gateway) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		logger:  logger.With("component", "mqtt"),
		cfg:     cfg,
		gateway: gateway,
	}
}

// Name implements channel.Channel.
func (c *Channel) Name() string { return "mqtt" }

func (c *Channel) topic(leaf string) string {
	return c.cfg.TopicPrefix + "/" + leaf
}

// Run connects to the broker and serves prompts until ctx is
// cancelled. Reconnects are handled by the connection manager.
func (c *Channel) Run(ctx context.Context) error {
	brokerURL, err := url.Parse(c.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: c.cfg.Username,
		ConnectPassword: []byte(c.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   c.topic("availability"),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			c.logger.Info("connected to broker", "broker", c.cfg.Broker)
			if _, err := cm.Subscribe(ctx, &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{
					{Topic: c.topic("prompt"), QoS: 1},
				},
			}); err != nil {
				c.logger.Error("subscribe failed", "error", err)
			}
			c.publish(ctx, cm, "availability", "online", true)
		},
		OnConnectError: func(err error) {
			c.logger.Warn("connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "marlowe-" + c.cfg.TopicPrefix,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					if pr.Packet.Topic != c.topic("prompt") {
						return false, nil
					}
					c.handlePrompt(ctx, string(pr.Packet.Payload))
					return true, nil
				},
			},
		},
	}
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	c.cm = cm

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		c.logger.Warn("initial connection timed out, retrying in background", "error", err)
	}

	<-ctx.Done()
	return ctx.Err()
}

// Stop publishes a clean offline notice and disconnects.
func (c *Channel) Stop(ctx context.Context) error {
	if c.cm == nil {
		return nil
	}
	c.publish(ctx, c.cm, "availability", "offline", true)
	return c.cm.Disconnect(ctx)
}

func (c *Channel) handlePrompt(ctx context.Context, prompt string) {
	if prompt == "" {
		return
	}
	c.logger.Info("prompt received", "bytes", len(prompt))

	out, err := c.gateway.Send(ctx, agent.SendRequest{
		Content:    prompt,
		Channel:    c.Name(),
		UseContext: true,
		UseTools:   true,
		AddTurn:    true,
	})
	if err != nil {
		c.logger.Error("prompt failed", "error", err)
		out = "error: " + err.Error()
	}
	c.publish(ctx, c.cm, "response", out, false)
}

// Announce implements channel.Channel.
func (c *Channel) Announce(ctx context.Context, text string) error {
	if c.cm == nil {
		return fmt.Errorf("not connected")
	}
	_, err := c.cm.Publish(ctx, &paho.Publish{
		Topic:   c.topic("announce"),
		Payload: []byte(text),
		QoS:     1,
	})
	return err
}

func (c *Channel) publish(ctx context.Context, cm *autopaho.ConnectionManager, leaf, payload string, retain bool) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   c.topic(leaf),
		Payload: []byte(payload),
		QoS:     1,
		Retain:  retain,
	}); err != nil {
		c.logger.Warn("publish failed", "topic", c.topic(leaf), "error", err)
	}
}
