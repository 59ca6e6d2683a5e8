package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/gurkepunktli/hslu-iot/internal/domain"
	"github.com/gurkepunktli/hslu-iot/internal/metrics"
)

// AlertStore keeps the history of fired alerts.
type AlertStore interface {
	InsertAlerts(ctx context.Context, alerts []domain.TheftAlert) error
}

// AlertRecorder batches alerts into the history store, flushing on
// batch size or interval, whichever comes first.
type AlertRecorder struct {
	ch         <-chan domain.TheftAlert
	store      AlertStore
	batchSize  int
	flushMS    int
	retryDelay time.Duration
	logger     *slog.Logger
}

func NewAlertRecorder(
	ch <-chan domain.TheftAlert,
	store AlertStore,
	batchSize int,
	flushMS int,
	logger *slog.Logger,
) *AlertRecorder {
	if batchSize < 1 {
		batchSize = 1
	}
	if flushMS < 1 {
		flushMS = 1000
	}
	return &AlertRecorder{
		ch:         ch,
		store:      store,
		batchSize:  batchSize,
		flushMS:    flushMS,
		retryDelay: 500 * time.Millisecond,
		logger:     logger.With("component", "alert_recorder"),
	}
}

func (w *AlertRecorder) Run(ctx context.Context) {
	batch := make([]domain.TheftAlert, 0, w.batchSize)
	ticker := time.NewTicker(time.Duration(w.flushMS) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case alert, ok := <-w.ch:
			if !ok {
				if len(batch) > 0 {
					w.flush(context.Background(), batch)
				}
				return
			}
			batch = append(batch, alert)
			if len(batch) >= w.batchSize {
				w.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			if len(batch) > 0 {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				w.flush(flushCtx, batch)
				cancel()
			}
			return
		}
	}
}

func (w *AlertRecorder) flush(ctx context.Context, batch []domain.TheftAlert) {
	err := w.store.InsertAlerts(ctx, batch)
	if err != nil {
		w.logger.Warn("alert history write failed, retrying", "batch", len(batch), "error", err)
		time.Sleep(w.retryDelay)
		err = w.store.InsertAlerts(ctx, batch)
		if err != nil {
			w.logger.Error("alert history write permanently failed", "batch", len(batch), "error", err)
			metrics.AlertRecordFailures.Add(float64(len(batch)))
			return
		}
	}
	w.logger.Debug("alert history written", "batch", len(batch))
}
