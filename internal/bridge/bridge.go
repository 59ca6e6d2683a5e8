// Package bridge relays local bus messages to the upstream broker.
//
// For every message the bridge feeds GPS readings to the theft
// detector, resolves the outbound topic, applies the per-topic cooldown
// and hands the payload to the publisher. A failure on one message is
// logged and never stops the loop.
package bridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/gurkepunktli/hslu-iot/internal/domain"
	"github.com/gurkepunktli/hslu-iot/internal/metrics"
	"github.com/gurkepunktli/hslu-iot/internal/ratelimit"
	"github.com/gurkepunktli/hslu-iot/internal/router"
)

// Publisher sends a payload upstream with at-most-once delivery. It
// must return once the publish is enqueued.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

type Detector interface {
	Process(r domain.GPSReading, now time.Time) domain.DeviceSnapshot
}

// StateSink receives device snapshots. Offer must not block.
type StateSink interface {
	Offer(snap domain.DeviceSnapshot)
}

type Outcome int

const (
	Forwarded Outcome = iota
	RateLimited
	Rejected
	PublishFailed
)

func (o Outcome) String() string {
	switch o {
	case Forwarded:
		return "forwarded"
	case RateLimited:
		return "rate_limited"
	case Rejected:
		return "rejected"
	case PublishFailed:
		return "publish_failed"
	default:
		return "unknown"
	}
}

type Bridge struct {
	gpsTopics      map[string]struct{}
	fallbackDevice string
	router         *router.Router
	limiter        *ratelimit.Limiter
	detector       Detector
	publisher      Publisher
	state          StateSink
	now            func() time.Time
	logger         *slog.Logger
}

// NewBridge wires the bridge. state may be nil.
func NewBridge(
	gpsTopics []string,
	fallbackDevice string,
	r *router.Router,
	limiter *ratelimit.Limiter,
	detector Detector,
	publisher Publisher,
	state StateSink,
	logger *slog.Logger,
) *Bridge {
	topics := make(map[string]struct{}, len(gpsTopics))
	for _, t := range gpsTopics {
		topics[t] = struct{}{}
	}
	return &Bridge{
		gpsTopics:      topics,
		fallbackDevice: fallbackDevice,
		router:         r,
		limiter:        limiter,
		detector:       detector,
		publisher:      publisher,
		state:          state,
		now:            time.Now,
		logger:         logger.With("component", "bridge"),
	}
}

// Run handles messages from in until it is closed or ctx is done.
func (b *Bridge) Run(ctx context.Context, in <-chan domain.Message) {
	for {
		select {
		case msg, ok := <-in:
			if !ok {
				return
			}
			b.Handle(ctx, msg)

		case <-ctx.Done():
			return
		}
	}
}

// Handle processes one message. Safe for concurrent use.
func (b *Bridge) Handle(ctx context.Context, msg domain.Message) Outcome {
	metrics.MessagesReceived.Inc()
	now := b.now()

	payload := msg.Payload
	if _, ok := b.gpsTopics[msg.Topic]; ok {
		payload = b.observeGPS(msg, now)
	}

	outTopic, rule, ok := b.router.Resolve(msg.Topic)
	if !ok {
		return Rejected
	}

	if !b.limiter.Allow(outTopic, now) {
		metrics.RateLimited.Inc()
		b.logger.Debug("skipping, cooldown active", "topic", outTopic)
		return RateLimited
	}

	if err := b.publisher.Publish(ctx, outTopic, payload); err != nil {
		metrics.PublishFailures.Inc()
		b.logger.Error("upstream publish failed", "topic", outTopic, "error", err)
		return PublishFailed
	}

	metrics.MessagesForwarded.WithLabelValues(string(rule)).Inc()
	b.logger.Info("forwarding", "from", msg.Topic, "to", outTopic, "rule", rule)
	return Forwarded
}

// observeGPS runs the detector and returns the payload to forward. An
// undecodable payload is relayed verbatim.
func (b *Bridge) observeGPS(msg domain.Message, now time.Time) []byte {
	reading, payload, err := decodeGPS(msg.Payload, b.fallbackDevice)
	if err != nil {
		metrics.GPSDecodeFailures.Inc()
		b.logger.Warn("gps payload not decodable, relaying as is", "topic", msg.Topic, "error", err)
		return msg.Payload
	}

	snap := b.detector.Process(reading, now)
	if b.state != nil {
		b.state.Offer(snap)
	}
	return payload
}
