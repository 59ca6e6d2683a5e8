package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gurkepunktli/hslu-iot/internal/domain"
	"github.com/gurkepunktli/hslu-iot/internal/metrics"
	"github.com/gurkepunktli/hslu-iot/internal/notify"
)

// AlertPublisher fans a notification out to live subscribers.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, deviceID string, payload []byte) error
}

// AlertNotifier delivers alerts to the notification sink off the
// message path. Delivery failures are logged and dropped.
type AlertNotifier struct {
	ch        <-chan domain.TheftAlert
	sink      notify.Sink
	publisher AlertPublisher
	timeout   time.Duration
	logger    *slog.Logger
}

// NewAlertNotifier builds a worker. publisher may be nil.
func NewAlertNotifier(
	ch <-chan domain.TheftAlert,
	sink notify.Sink,
	publisher AlertPublisher,
	timeout time.Duration,
	logger *slog.Logger,
) *AlertNotifier {
	return &AlertNotifier{
		ch:        ch,
		sink:      sink,
		publisher: publisher,
		timeout:   timeout,
		logger:    logger.With("component", "alert_notifier"),
	}
}

func (n *AlertNotifier) Run(ctx context.Context) {
	for {
		select {
		case alert, ok := <-n.ch:
			if !ok {
				return
			}
			n.deliver(ctx, alert)

		case <-ctx.Done():
			return
		}
	}
}

func (n *AlertNotifier) deliver(ctx context.Context, alert domain.TheftAlert) {
	msg := notify.FromAlert(alert)

	sendCtx, cancel := context.WithTimeout(ctx, n.timeout)
	err := n.sink.Send(sendCtx, msg)
	cancel()
	if err != nil {
		metrics.WebhookFailures.Inc()
		n.logger.Error("alert delivery failed", "device", alert.DeviceID, "alert_id", alert.ID, "error", err)
	} else {
		n.logger.Info("alert delivered", "device", alert.DeviceID, "alert_id", alert.ID)
	}

	if n.publisher == nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		n.logger.Error("alert marshal failed", "device", alert.DeviceID, "error", err)
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	if err := n.publisher.PublishAlert(pubCtx, alert.DeviceID, payload); err != nil {
		n.logger.Error("alert publish failed", "device", alert.DeviceID, "error", err)
	}
}
