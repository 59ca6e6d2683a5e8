package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/gurkepunktli/hslu-iot/internal/domain"
	"github.com/gurkepunktli/hslu-iot/internal/metrics"
)

// StateStore mirrors the latest device snapshot somewhere the dashboard
// can read it.
type StateStore interface {
	PipelineStateUpdate(ctx context.Context, snap domain.DeviceSnapshot) error
}

// StateWriter coalesces snapshots per device and writes the newest one
// on every tick.
type StateWriter struct {
	ch     chan domain.DeviceSnapshot
	store  StateStore
	every  time.Duration
	logger *slog.Logger
}

func NewStateWriter(size int, store StateStore, logger *slog.Logger) *StateWriter {
	return &StateWriter{
		ch:     make(chan domain.DeviceSnapshot, size),
		store:  store,
		every:  250 * time.Millisecond,
		logger: logger.With("component", "state_writer"),
	}
}

// Offer queues a snapshot without blocking; a full queue drops it.
func (w *StateWriter) Offer(snap domain.DeviceSnapshot) {
	select {
	case w.ch <- snap:
	default:
		metrics.StateChannelDrops.Inc()
	}
}

func (w *StateWriter) Run(ctx context.Context) {
	pending := make(map[string]domain.DeviceSnapshot)
	ticker := time.NewTicker(w.every)
	defer ticker.Stop()

	for {
		select {
		case snap := <-w.ch:
			pending[snap.DeviceID] = snap

		case <-ticker.C:
			if len(pending) > 0 {
				w.flush(ctx, pending)
				clear(pending)
			}

		case <-ctx.Done():
			if len(pending) > 0 {
				flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				w.flush(flushCtx, pending)
				cancel()
			}
			return
		}
	}
}

func (w *StateWriter) flush(ctx context.Context, pending map[string]domain.DeviceSnapshot) {
	for _, snap := range pending {
		if err := w.store.PipelineStateUpdate(ctx, snap); err != nil {
			metrics.StateWriteFailures.Inc()
			w.logger.Error("redis state update failed", "device", snap.DeviceID, "error", err)
		}
	}
}
