package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

type Job struct {
	Message Message
	Channel Channel
}

type Worker struct {
	ID         int
	WorkerPool chan chan Job
	JobChannel chan Job
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan Job, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan Job),
		Logger:     logger,
	}
}

// Start runs the worker until quit is closed. A job already handed over is
// always processed before the worker returns.
func (w *Worker) Start(quit <-chan struct{}, wg *sync.WaitGroup, processFunc func(Job)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			select {
			case w.WorkerPool <- w.JobChannel:
			case <-quit:
				return
			}

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker delivering notification",
					"worker_id", w.ID,
					"channel", job.Channel.Name(),
					"recipient_id", job.Message.RecipientID)
				processFunc(job)
			case <-quit:
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

type PoolConfig struct {
	Workers        int
	QueueSize      int
	MaxRetries     int
	InitialBackoff time.Duration
}

// Pool delivers messages to every channel on a fixed set of workers. Each
// delivery is retried with exponential backoff.
type Pool struct {
	channels       []Channel
	maxRetries     uint64
	initialBackoff time.Duration
	logger         *slog.Logger

	jobQueue   chan Job
	workerPool chan chan Job
	workers    int
	// ctx aborts in-flight retries; it is only cancelled when a drain overruns.
	ctx    context.Context
	cancel context.CancelFunc
	// quit is closed once the dispatcher has handed out the last queued job.
	quit    chan struct{}
	drained chan struct{}
	wg      sync.WaitGroup
	once    sync.Once

	mu     sync.Mutex
	closed bool
}

func NewPool(cfg PoolConfig, channels []Channel, logger *slog.Logger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	// one message needs a slot per channel
	queueSize = max(queueSize, len(channels))
	backoff := cfg.InitialBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	p := &Pool{
		channels:       channels,
		maxRetries:     uint64(max(cfg.MaxRetries, 0)),
		initialBackoff: backoff,
		logger:         logger,
		jobQueue:       make(chan Job, queueSize),
		workerPool:     make(chan chan Job, workers),
		workers:        workers,
		ctx:            ctx,
		cancel:         cancel,
		quit:           make(chan struct{}),
		drained:        make(chan struct{}),
	}
	p.start()
	return p
}

func (p *Pool) start() {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			NewWorker(i, p.workerPool, p.logger).Start(p.quit, &p.wg, p.deliver)
		}

		go p.dispatch()

		p.logger.Info("notification worker pool started",
			"workers", p.workers,
			"queue_size", cap(p.jobQueue),
			"channels", len(p.channels))
	})
}

// Enqueue schedules msg on every channel without blocking. The message is
// either queued for all channels or for none of them.
func (p *Pool) Enqueue(msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	if free := cap(p.jobQueue) - len(p.jobQueue); free < len(p.channels) {
		p.logger.Warn("notification queue full",
			"event_type", msg.EventType,
			"recipient_id", msg.RecipientID,
			"channels", len(p.channels),
			"queue_capacity", cap(p.jobQueue))
		return ErrQueueFull
	}
	// only the dispatcher drains the queue, so the free slots counted above
	// cannot shrink while mu is held
	for _, ch := range p.channels {
		p.jobQueue <- Job{Message: msg, Channel: ch}
	}
	return nil
}

// Queued is the number of jobs waiting for a worker.
func (p *Pool) Queued() int {
	return len(p.jobQueue)
}

func (p *Pool) dispatch() {
	defer close(p.drained)

	for job := range p.jobQueue {
		select {
		case jobChannel := <-p.workerPool:
			select {
			case jobChannel <- job:
			case <-p.ctx.Done():
				return
			}
		case <-p.ctx.Done():
			return
		}
	}
	p.logger.Info("notification queue drained")
}

func (p *Pool) deliver(job Job) {
	backoff := retry.WithMaxRetries(p.maxRetries, retry.NewExponential(p.initialBackoff))

	attempt := 0
	err := retry.Do(p.ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := job.Channel.Send(ctx, job.Message); err != nil {
			p.logger.Warn("notification delivery failed",
				"channel", job.Channel.Name(),
				"event_type", job.Message.EventType,
				"recipient_id", job.Message.RecipientID,
				"attempt", attempt,
				"error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		p.logger.Error("notification abandoned",
			"channel", job.Channel.Name(),
			"event_id", job.Message.EventID,
			"recipient_id", job.Message.RecipientID,
			"attempts", attempt,
			"error", err)
	}
}

// Shutdown stops accepting messages and waits for the queued and in-flight
// deliveries to finish. When ctx expires first, outstanding retries are
// aborted and the remaining jobs are dropped.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobQueue)
	p.mu.Unlock()

	p.logger.Info("shutting down notification pool", "queued", len(p.jobQueue))

	done := make(chan struct{})
	go func() {
		<-p.drained
		close(p.quit)
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("notification pool shutdown complete")
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		p.logger.Warn("notification pool drain interrupted",
			"dropped", len(p.jobQueue),
			"error", ctx.Err())
		return fmt.Errorf("drain notification pool: %w", ctx.Err())
	}
}
