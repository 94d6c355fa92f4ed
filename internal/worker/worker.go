package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/yusufkaraaslan/lazy-bird/internal/config"
	"github.com/yusufkaraaslan/lazy-bird/internal/models"
	"github.com/yusufkaraaslan/lazy-bird/internal/queue"
	"github.com/yusufkaraaslan/lazy-bird/internal/telemetry"
)

// Executor runs a dequeued job to a terminal state.
type Executor interface {
	Execute(ctx context.Context, job models.Job) models.Job
}

// Worker drains the queue one job at a time. A single worker goroutine
// serializes all test execution; Godot instances must never overlap.
type Worker struct {
	cfg       *config.Config
	queue     *queue.JobQueue
	executor  Executor
	logger    *slog.Logger
	client    *http.Client
	processed atomic.Int64
}

// New creates a worker bound to the queue and executor.
func New(cfg *config.Config, q *queue.JobQueue, exec Executor, logger *slog.Logger) *Worker {
	return &Worker{
		cfg:      cfg,
		queue:    q,
		executor: exec,
		logger:   logger,
		client:   &http.Client{Timeout: cfg.CallbackTimeout},
	}
}

// Run processes jobs until the context is cancelled. Job failures and
// panics never stop the loop.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped", slog.Int64("processed", w.processed.Load()))
			return
		default:
			w.runOnce(ctx)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("worker recovered from panic", slog.Any("panic", r))
			time.Sleep(time.Second)
		}
	}()

	telemetry.QueueDepth.Set(float64(w.queue.Depth()))

	job, ok := w.queue.Dequeue(w.cfg.DequeueWait)
	if !ok {
		return
	}

	done := w.executor.Execute(ctx, job)
	w.queue.Update(done)
	w.processed.Add(1)

	telemetry.JobsProcessed.WithLabelValues(done.Status).Inc()
	if done.Status == models.StatusComplete {
		telemetry.TestDuration.Observe(done.DurationSeconds())
	}

	if done.CallbackURL != "" {
		go w.notify(done)
	}
}

// notify posts the finished job record to the agent's callback URL.
// Delivery is best effort: failures are logged and counted, never retried.
func (w *Worker) notify(job models.Job) {
	body, err := json.Marshal(job)
	if err != nil {
		w.logger.Warn("encode callback payload", slog.String("job_id", job.ID), slog.Any("error", err))
		telemetry.CallbackFailures.Inc()
		return
	}

	resp, err := w.client.Post(job.CallbackURL, "application/json", bytes.NewReader(body))
	if err != nil {
		w.logger.Warn("callback failed",
			slog.String("job_id", job.ID),
			slog.String("url", job.CallbackURL),
			slog.Any("error", err))
		telemetry.CallbackFailures.Inc()
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		w.logger.Warn("callback rejected",
			slog.String("job_id", job.ID),
			slog.String("url", job.CallbackURL),
			slog.Int("status", resp.StatusCode))
		telemetry.CallbackFailures.Inc()
	}
}

// Processed is the number of jobs finished since startup.
func (w *Worker) Processed() int64 {
	return w.processed.Load()
}
