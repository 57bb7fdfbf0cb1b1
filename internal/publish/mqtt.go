package publish

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/neilk/octowatch/internal/store"
)

// Config holds the MQTT connection settings. An empty BrokerURL disables
// publishing entirely.
type Config struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	Retain      bool
}

// Publisher mirrors entity state changes onto an MQTT broker, one topic per
// state key: {prefix}/{entity}/{key}.
type Publisher struct {
	client mqtt.Client
	cfg    Config
	log    *zap.Logger
}

// New connects to the broker. Publishing is best-effort; the paho client
// reconnects on its own and messages during an outage are dropped, since
// every value is republished on the next change anyway.
func New(cfg Config, log *zap.Logger) (*Publisher, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "octowatch"
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "octowatch"
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(10 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return nil, fmt.Errorf("connecting to broker %s: timeout", cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to broker %s: %w", cfg.BrokerURL, err)
	}
	return &Publisher{client: client, cfg: cfg, log: log}, nil
}

// Run consumes the change stream until the context is cancelled.
func (p *Publisher) Run(ctx context.Context, changes <-chan store.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case ch, ok := <-changes:
			if !ok {
				return
			}
			p.publish(ch)
		}
	}
}

func (p *Publisher) publish(ch store.Change) {
	for key, value := range ch.States {
		topic := fmt.Sprintf("%s/%s/%s", p.cfg.TopicPrefix, ch.EntityID, key)
		token := p.client.Publish(topic, p.cfg.QoS, p.cfg.Retain, value)
		go func(topic string) {
			if token.WaitTimeout(10*time.Second) && token.Error() != nil {
				p.log.Warn("mqtt publish failed", zap.String("topic", topic), zap.Error(token.Error()))
			}
		}(topic)
	}
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
