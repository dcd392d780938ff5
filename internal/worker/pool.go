package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dontdude/coderoom/internal/domain"
)

// DefaultJobTimeout bounds a whole job: image pull, container setup and both phases.
const DefaultJobTimeout = 2 * time.Minute

// ResultSink is where finished jobs are reported. domain.JobQueue satisfies it.
type ResultSink interface {
	Broadcast(ctx context.Context, result domain.JobResult) error
	Acknowledge(ctx context.Context, rawID string) error
}

// Pool implements a fixed-size worker pool.
// The number of workers bounds how many sandbox containers run at once.
type Pool struct {
	workerCount int
	// tasksCh is the queue for incoming jobs.
	tasksCh chan domain.Job
	// wg tracks active workers to ensure graceful shutdown.
	wg         sync.WaitGroup
	sandbox    domain.Sandbox
	sink       ResultSink
	jobTimeout time.Duration
}

// NewPool initializes the worker pool with a fixed concurrency limit.
func NewPool(concurrency int, sandbox domain.Sandbox, sink ResultSink) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{
		workerCount: concurrency,
		// Buffer the channel to allow non-blocking submission up to a certain point.
		tasksCh:    make(chan domain.Job, concurrency),
		sandbox:    sandbox,
		sink:       sink,
		jobTimeout: DefaultJobTimeout,
	}
}

// Start spawns the fixed number of worker goroutines.
// It returns immediately.
func (p *Pool) Start() {
	slog.Info("Starting worker pool", "concurrency", p.workerCount)

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop closes the jobs channel and blocks until every worker has finished its
// current job and exited. Submit must not be called afterwards.
func (p *Pool) Stop() {
	slog.Info("Stopping worker pool, waiting for tasks to drain...")
	close(p.tasksCh)
	p.wg.Wait()
	slog.Info("Worker pool stopped")
}

// Submit adds a job to the queue.
// It blocks if the queue (and workers) are fully saturated.
func (p *Pool) Submit(job domain.Job) {
	p.tasksCh <- job
}

// Consume submits every job from jobs until the channel is closed.
func (p *Pool) Consume(jobs <-chan domain.Job) {
	for job := range jobs {
		p.Submit(job)
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	slog.Info("Worker started", "workerID", id)

	for job := range p.tasksCh {
		p.process(id, job)
	}

	slog.Info("Worker stopped", "workerID", id)
}

// process runs one job, reports its result and acknowledges it. Sandbox
// failures are reported as error results so the gateway stops waiting.
func (p *Pool) process(workerID int, job domain.Job) {
	slog.Debug("Processing job", "workerID", workerID, "jobID", job.ID, "language", job.Request.Language)
	start := time.Now()

	resp, err := p.run(job)

	result := domain.JobResult{JobID: job.ID}
	if err != nil {
		slog.Error("Job failed", "workerID", workerID, "jobID", job.ID, "error", err)
		result.Error = err.Error()
	} else {
		result.Response = resp
		slog.Info("Job finished", "workerID", workerID, "jobID", job.ID, "elapsed", time.Since(start))
	}

	// Reporting must survive the job's own deadline.
	reportCtx, cancelReport := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelReport()

	if err := p.sink.Broadcast(reportCtx, result); err != nil {
		slog.Error("Failed to broadcast result", "jobID", job.ID, "error", err)
		return
	}
	if job.RawID == "" {
		return
	}
	if err := p.sink.Acknowledge(reportCtx, job.RawID); err != nil {
		slog.Error("Failed to acknowledge job", "jobID", job.ID, "msgID", job.RawID, "error", err)
	}
}

// run executes the job in the sandbox. Languages the sandbox has no runtime
// for are rejected before any container work starts.
func (p *Pool) run(job domain.Job) (*domain.ServiceResponse, error) {
	if !p.sandbox.Supports(job.Request.Language) {
		return nil, fmt.Errorf("%s runtime is not supported by this worker", job.Request.Language)
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.jobTimeout)
	defer cancel()
	return p.sandbox.Run(ctx, job.Request)
}
