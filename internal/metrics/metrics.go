package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_messages_received_total",
		Help: "Messages received from the local bus",
	})
	InboundDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_inbound_drops_total",
		Help: "Local bus messages dropped because the inbound queue was full",
	})
	MessagesForwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_messages_forwarded_total",
		Help: "Messages handed to the upstream publisher, by routing rule",
	}, []string{"rule"})
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_rate_limited_total",
		Help: "Messages dropped by the per-topic cooldown",
	})
	GPSDecodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_gps_decode_failures_total",
		Help: "GPS payloads that could not be decoded and were relayed verbatim",
	})
	PublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_publish_failures_total",
		Help: "Upstream publishes that failed or timed out",
	})
	AlertsFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_theft_alerts_total",
		Help: "Theft alerts raised by the detector",
	})
	AlertChannelDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_alert_channel_drops_total",
		Help: "Alerts dropped because a sink queue was full",
	}, []string{"sink"})
	WebhookFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_webhook_failures_total",
		Help: "Alert webhook deliveries that failed",
	})
	AlertRecordFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_alert_record_failures_total",
		Help: "Alerts that could not be written to the alert history",
	})
	StateChannelDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_state_channel_drops_total",
		Help: "Device snapshots dropped because the state queue was full",
	})
	StateWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_state_write_failures_total",
		Help: "Device snapshots that could not be mirrored to redis",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
