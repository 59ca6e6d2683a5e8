// Package mqtt connects the bridge to the local bus and the upstream
// broker.
package mqtt

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/gurkepunktli/hslu-iot/internal/domain"
	"github.com/gurkepunktli/hslu-iot/internal/metrics"
)

const (
	connectTimeout = 10 * time.Second
	keepAlive      = 60 * time.Second
	disconnectMS   = 250
)

// Subscriber receives local bus messages and queues them for the
// bridge. It resubscribes on every (re)connect.
type Subscriber struct {
	client paho.Client
	topics []string
	out    chan domain.Message
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

func NewSubscriber(broker, clientID string, topics []string, bufferSize int, logger *slog.Logger) *Subscriber {
	s := &Subscriber{
		topics: topics,
		out:    make(chan domain.Message, bufferSize),
		logger: logger.With("component", "mqtt-local"),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetKeepAlive(keepAlive)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		s.logger.Warn("local broker connection lost", "error", err)
	})

	s.client = paho.NewClient(opts)
	return s
}

// Messages is closed by Close.
func (s *Subscriber) Messages() <-chan domain.Message {
	return s.out
}

func (s *Subscriber) Connect() error {
	token := s.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("timed out connecting to local broker")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to local broker: %w", err)
	}
	return nil
}

// Close disconnects and closes the message channel. Messages arriving
// after Close are discarded.
func (s *Subscriber) Close() {
	s.client.Disconnect(disconnectMS)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.out)
	}
}

func (s *Subscriber) onConnect(c paho.Client) {
	s.logger.Info("connected to local broker")

	filters := make(map[string]byte, len(s.topics))
	for _, t := range s.topics {
		filters[t] = 0
	}
	token := c.SubscribeMultiple(filters, s.handle)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			s.logger.Error("subscribe failed", "topics", s.topics, "error", err)
			return
		}
		s.logger.Info("subscribed", "topics", s.topics)
	}()
}

func (s *Subscriber) handle(_ paho.Client, m paho.Message) {
	s.enqueue(toMessage(m, time.Now()))
}

// enqueue never blocks the paho callback. A full queue drops.
func (s *Subscriber) enqueue(msg domain.Message) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	select {
	case s.out <- msg:
	default:
		metrics.InboundDrops.Inc()
		s.logger.Warn("inbound queue full, dropping", "topic", msg.Topic)
	}
}

func toMessage(m paho.Message, now time.Time) domain.Message {
	payload := make([]byte, len(m.Payload()))
	copy(payload, m.Payload())
	return domain.Message{
		Topic:      m.Topic(),
		Payload:    payload,
		ReceivedAt: now,
	}
}
