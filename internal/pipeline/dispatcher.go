package pipeline

import (
	"github.com/gurkepunktli/hslu-iot/internal/domain"
	"github.com/gurkepunktli/hslu-iot/internal/metrics"
)

// AlertDispatcher hands alerts to the sink workers. Fire never blocks:
// a full queue drops the alert for that sink. It does not dedup; the
// detector only fires once per lock cycle.
type AlertDispatcher struct {
	NotifyChan chan domain.TheftAlert
	RecordChan chan domain.TheftAlert
}

// NewAlertDispatcher creates the notify queue and, when record is set,
// the alert history queue.
func NewAlertDispatcher(size int, record bool) *AlertDispatcher {
	d := &AlertDispatcher{
		NotifyChan: make(chan domain.TheftAlert, size),
	}
	if record {
		d.RecordChan = make(chan domain.TheftAlert, size)
	}
	return d
}

func (d *AlertDispatcher) Fire(alert domain.TheftAlert) {
	metrics.AlertsFired.Inc()

	select {
	case d.NotifyChan <- alert:
	default:
		metrics.AlertChannelDrops.WithLabelValues("notify").Inc()
	}

	if d.RecordChan == nil {
		return
	}
	select {
	case d.RecordChan <- alert:
	default:
		metrics.AlertChannelDrops.WithLabelValues("record").Inc()
	}
}

// Close closes the queues. Call only after nothing can Fire any more.
func (d *AlertDispatcher) Close() {
	close(d.NotifyChan)
	if d.RecordChan != nil {
		close(d.RecordChan)
	}
}
