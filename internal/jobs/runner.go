package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type API interface {
	Poll(ctx context.Context) (*Job, error)
	Report(ctx context.Context, result Result) error
}

// Handler runs one job and returns its textual output.
type Handler func(ctx context.Context, params map[string]any) (string, error)

type Runner struct {
	api      API
	interval time.Duration
	handlers map[string]Handler
	logger   *slog.Logger
}

func NewRunner(api API, interval time.Duration, logger *slog.Logger) *Runner {
	return &Runner{
		api:      api,
		interval: interval,
		handlers: make(map[string]Handler),
		logger:   logger.With("component", "jobs"),
	}
}

// Register must be called before Run.
func (r *Runner) Register(jobType string, h Handler) {
	r.handlers[jobType] = h
}

// Run polls once immediately and then every interval until ctx is done.
// Jobs run one at a time on the polling goroutine.
func (r *Runner) Run(ctx context.Context) {
	r.logger.Info("job poller started", "interval", r.interval)
	defer r.logger.Info("job poller stopped")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.pollOnce(ctx)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) pollOnce(ctx context.Context) {
	job, err := r.api.Poll(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("poll failed", "error", err)
		}
		return
	}
	if job == nil {
		return
	}

	r.logger.Info("received job", "job_id", job.ID, "type", job.Type)
	result := r.Execute(ctx, *job)

	if err := r.api.Report(ctx, result); err != nil {
		r.logger.Error("failed to report job result", "job_id", job.ID, "error", err)
		return
	}
	r.logger.Info("job result reported",
		"job_id", job.ID,
		"status", result.Status,
		"duration_ms", result.DurationMS,
	)
}

// Execute runs job with its registered handler.
func (r *Runner) Execute(ctx context.Context, job Job) Result {
	start := time.Now()
	result := Result{JobID: job.ID}

	h, ok := r.handlers[job.Type]
	if !ok {
		result.Status = StatusFailed
		result.Output = fmt.Sprintf("Unknown job type: %s", job.Type)
		r.logger.Warn("unknown job type", "job_id", job.ID, "type", job.Type)
	} else if out, err := h(ctx, job.Params); err != nil {
		result.Status = StatusFailed
		result.Output = fmt.Sprintf("Job execution failed: %v", err)
	} else {
		result.Status = StatusDone
		result.Output = out
	}

	result.DurationMS = time.Since(start).Milliseconds()
	return result
}
