// Package mirror republishes the latest rig state to an MQTT broker.
package mirror

import (
	"context"
	"fmt"
	"time"

	"espresso_rig/internal/config"
	"espresso_rig/internal/logger"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	connectAttempts     = 5
	disconnectQuiesceMs = 250
	publishTimeout      = 2 * time.Second
)

// MQTTPublisher publishes with QoS 0 and no retain flag.
type MQTTPublisher struct {
	client mqtt.Client
}

// Connect dials the broker, retrying with exponential backoff.
func Connect(ctx context.Context, cfg config.MQTTConfig, log *logger.Logger) (*MQTTPublisher, error) {
	log = logger.OrNop(log)
	addr := fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(addr)
	opts.SetUsername(cfg.User)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(cfg.ClientID + "-" + uuid.NewString()[:8])
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			log.Warnw("mqtt_connect_failed", "broker", addr, "error", token.Error())
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, connectAttempts-1), ctx))
	if err != nil {
		return nil, fmt.Errorf("connect mqtt broker %s: %w", addr, err)
	}

	log.Infow("mqtt_connected", "broker", addr)
	return &MQTTPublisher{client: client}, nil
}

// Publish sends payload to topic and waits for the hand-off to the client.
func (p *MQTTPublisher) Publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects if still connected.
func (p *MQTTPublisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(disconnectQuiesceMs)
	}
}
