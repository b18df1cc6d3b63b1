// Package workers provides a worker pool implementation for concurrent
// probe and discovery execution in netreach. It supports job queuing,
// rate limiting, graceful shutdown, and integrates with the structured
// logging and metrics systems.
package workers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/anstrom/netreach/internal/logging"
	"github.com/anstrom/netreach/internal/metrics"
)

// Job represents a unit of work to be executed by a worker.
type Job interface {
	// Execute performs the job and returns an error if it fails.
	Execute(ctx context.Context) error
	// ID returns a unique identifier for the job.
	ID() string
	// Type returns the job type for metrics and logging.
	Type() string
}

// Result represents the result of executing a job.
type Result struct {
	JobID    string
	JobType  string
	Error    error
	Duration time.Duration
}

// Config holds configuration for the worker pool.
type Config struct {
	// Size is the number of worker goroutines to create.
	Size int
	// QueueSize is the maximum number of jobs that can be queued.
	QueueSize int
	// ShutdownTimeout is the maximum time to wait for workers to finish.
	ShutdownTimeout time.Duration
	// RateLimit is the maximum number of jobs per second (0 = no limit).
	RateLimit int
}

// DefaultConfig returns a default worker pool configuration.
func DefaultConfig() Config {
	return Config{
		Size:            10,
		QueueSize:       100,
		ShutdownTimeout: 30 * time.Second,
		RateLimit:       0,
	}
}

// Pool manages a pool of worker goroutines for concurrent job execution.
type Pool struct {
	config     Config
	jobs       chan Job
	results    chan Result
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	limiter    *rate.Limiter
	inFlight   int64
	startOnce  sync.Once
	shutdown32 int32
}

// New creates a new worker pool with the given configuration.
func New(config Config) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		config:  config,
		jobs:    make(chan Job, config.QueueSize),
		results: make(chan Result, config.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	if config.RateLimit > 0 {
		pool.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}

	return pool
}

// Start begins the worker pool operations.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		logging.Debug("Starting worker pool",
			"worker_count", p.config.Size,
			"queue_size", p.config.QueueSize,
			"rate_limit", p.config.RateLimit)

		for i := 0; i < p.config.Size; i++ {
			p.wg.Add(1)
			go p.runWorker(i)
		}

		metrics.Gauge("worker_pool_size", float64(p.config.Size), metrics.Labels{
			metrics.LabelComponent: "workers",
		})
	})
}

// Submit adds a job to the worker pool queue. It blocks while the queue
// is full so callers can enqueue more work than the queue holds.
func (p *Pool) Submit(job Job) error {
	if atomic.LoadInt32(&p.shutdown32) == 1 {
		return fmt.Errorf("worker pool is shut down")
	}

	select {
	case p.jobs <- job:
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("worker pool is shutting down")
	}
}

// Close marks the end of submissions. Workers drain the remaining queue
// and exit; Wait returns once they have.
func (p *Pool) Close() {
	if atomic.CompareAndSwapInt32(&p.shutdown32, 0, 1) {
		close(p.jobs)
	}
}

// Results returns the channel job results are delivered on. The channel
// is closed after Close once all workers have finished.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Wait blocks until all workers have exited, then closes the results
// channel.
func (p *Pool) Wait() {
	p.wg.Wait()
	close(p.results)
}

// Stop cancels in-flight jobs and releases pool resources.
func (p *Pool) Stop() {
	p.Close()
	p.cancel()
}

// InFlight returns the number of jobs currently executing.
func (p *Pool) InFlight() int {
	return int(atomic.LoadInt64(&p.inFlight))
}

// runWorker executes the worker loop.
func (p *Pool) runWorker(id int) {
	defer p.wg.Done()

	for job := range p.jobs {
		if p.ctx.Err() != nil {
			return
		}
		p.executeJob(id, job)
	}
}

// executeJob executes a single job, honoring the pool rate limit.
func (p *Pool) executeJob(workerID int, job Job) {
	if p.limiter != nil {
		if err := p.limiter.Wait(p.ctx); err != nil {
			return
		}
	}

	atomic.AddInt64(&p.inFlight, 1)
	metrics.SetTasksInFlight(p.InFlight())

	start := time.Now()
	err := job.Execute(p.ctx)
	duration := time.Since(start)

	atomic.AddInt64(&p.inFlight, -1)

	if err != nil {
		logging.Debug("Job failed",
			"job_id", job.ID(),
			"job_type", job.Type(),
			"worker_id", workerID,
			"error", err)
		metrics.Counter("jobs_completed_total", metrics.Labels{
			"job_type":          job.Type(),
			metrics.LabelStatus: "error",
		})
	} else {
		metrics.Counter("jobs_completed_total", metrics.Labels{
			"job_type":          job.Type(),
			metrics.LabelStatus: "success",
		})
	}

	select {
	case p.results <- Result{
		JobID:    job.ID(),
		JobType:  job.Type(),
		Error:    err,
		Duration: duration,
	}:
	case <-p.ctx.Done():
	}
}
