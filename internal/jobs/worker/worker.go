package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/yungbote/learnworld-backend/internal/jobs/runtime"
	"github.com/yungbote/learnworld-backend/internal/observability"
	"github.com/yungbote/learnworld-backend/internal/platform/envutil"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
)

var (
	ErrQueueFull = errors.New("job queue is full")
	ErrStopped   = errors.New("job worker is stopped")
)

// Task is a detached unit of work. Its context outlives the request that scheduled it.
type Task func(ctx context.Context) error

type Config struct {
	Concurrency int
	QueueSize   int
}

func ConfigFromEnv() Config {
	return Config{
		Concurrency: envutil.Int("WORKER_CONCURRENCY", 4),
		QueueSize:   envutil.Int("WORKER_QUEUE_SIZE", 256),
	}
}

type queued struct {
	name string
	run  Task
}

// Worker runs scheduled tasks on a fixed pool of goroutines fed by a bounded queue.
type Worker struct {
	log      *logger.Logger
	registry *runtime.Registry
	cfg      Config

	base   context.Context
	cancel context.CancelFunc
	queue  chan queued
	wg     sync.WaitGroup

	mu      sync.RWMutex
	started bool
	stopped bool
}

func NewWorker(baseLog *logger.Logger, registry *runtime.Registry, cfg Config) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	base, cancel := context.WithCancel(context.Background())
	return &Worker{
		log:      baseLog.With("component", "JobWorker"),
		registry: registry,
		cfg:      cfg,
		base:     base,
		cancel:   cancel,
		queue:    make(chan queued, cfg.QueueSize),
	}
}

func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopped {
		return
	}
	w.started = true
	w.log.Info("Starting job worker pool", "concurrency", w.cfg.Concurrency, "queue_size", w.cfg.QueueSize)
	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.runLoop(i + 1)
	}
}

// Schedule enqueues fn without waiting for it. It fails fast when the queue is full.
func (w *Worker) Schedule(name string, fn Task) error {
	if fn == nil {
		return fmt.Errorf("nil task")
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return ErrStopped
	}
	select {
	case w.queue <- queued{name: name, run: fn}:
		observability.Current().SetSchedulerQueued(len(w.queue))
		return nil
	default:
		observability.Current().IncSchedulerRejected()
		w.log.Warn("job queue full; rejecting task", "task", name)
		return ErrQueueFull
	}
}

// Submit schedules a job for the handler registered under its type.
func (w *Worker) Submit(job runtime.Job) error {
	h, ok := w.registry.Get(job.Type)
	if !ok {
		return &missingHandlerError{JobType: job.Type}
	}
	return w.Schedule(job.Type, func(ctx context.Context) error {
		return h.Run(runtime.NewContext(ctx, job, w.log))
	})
}

func (w *Worker) Queued() int {
	return len(w.queue)
}

// Shutdown stops intake and waits for queued and running tasks. When ctx expires first
// the shared task context is canceled and ctx.Err() is returned.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.queue)
	started := w.started
	w.mu.Unlock()

	if !started {
		w.cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		w.cancel()
		w.log.Info("job worker drained")
		return nil
	case <-ctx.Done():
		w.cancel()
		w.log.Warn("job worker shutdown grace expired; canceling running tasks", "queued", len(w.queue))
		return ctx.Err()
	}
}

func (w *Worker) runLoop(workerID int) {
	defer w.wg.Done()
	for item := range w.queue {
		observability.Current().SetSchedulerQueued(len(w.queue))
		w.runOne(workerID, item)
	}
}

func (w *Worker) runOne(workerID int, item queued) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Job task panic",
				"worker_id", workerID,
				"task", item.name,
				"panic", r,
			)
		}
	}()
	if err := item.run(w.base); err != nil {
		w.log.Warn("Job task returned error",
			"worker_id", workerID,
			"task", item.name,
			"error", err,
		)
	}
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string { return "no handler registered for job_type=" + e.JobType }
