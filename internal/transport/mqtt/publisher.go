package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/gurkepunktli/hslu-iot/internal/metrics"
)

var ErrNotConnected = errors.New("upstream broker not connected")

// Publisher forwards to the upstream broker at QoS 0. The paho client
// owns its own connection and reconnects on its own, independent of any
// caller context.
type Publisher struct {
	client  paho.Client
	timeout time.Duration
	logger  *slog.Logger
}

func NewPublisher(broker, clientID string, tlsConfig *tls.Config, timeout time.Duration, logger *slog.Logger) *Publisher {
	p := &Publisher{
		timeout: timeout,
		logger:  logger.With("component", "mqtt-upstream"),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetKeepAlive(keepAlive)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	if tlsConfig != nil {
		opts.SetTLSConfig(tlsConfig)
	}
	opts.SetOnConnectHandler(func(_ paho.Client) {
		p.logger.Info("connected to upstream broker")
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		p.logger.Warn("upstream connection lost", "error", err)
	})

	p.client = paho.NewClient(opts)
	return p
}

func (p *Publisher) Connect() error {
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("timed out connecting to upstream broker")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to upstream broker: %w", err)
	}
	return nil
}

func (p *Publisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Publish enqueues the message and returns without waiting for the
// broker. Completion is checked in the background with the publish
// timeout; failures are logged and counted, never retried.
func (p *Publisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := p.client.Publish(topic, 0, false, payload)
	go p.await(topic, token)
	return nil
}

func (p *Publisher) await(topic string, token paho.Token) {
	if !token.WaitTimeout(p.timeout) {
		metrics.PublishFailures.Inc()
		p.logger.Warn("publish timed out", "topic", topic, "timeout", p.timeout)
		return
	}
	if err := token.Error(); err != nil {
		metrics.PublishFailures.Inc()
		p.logger.Error("publish failed", "topic", topic, "error", err)
	}
}

func (p *Publisher) Close() {
	p.client.Disconnect(disconnectMS)
}
