package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dontdude/coderoom/internal/domain"
)

var (
	// ErrUnknownRuntime is returned for a language/version no worker can run.
	ErrUnknownRuntime = errors.New("runtime is unknown")
	// ErrTimeout is returned when no worker answered within the wait bound.
	ErrTimeout = errors.New("timed out waiting for an execution result")
	// ErrNotStarted is returned by Execute before Start has subscribed to results.
	ErrNotStarted = errors.New("gateway is not started")
)

// Queue is the part of domain.JobQueue the gateway uses.
type Queue interface {
	Publish(ctx context.Context, job domain.Job) error
	SubscribeResults(ctx context.Context) (<-chan domain.JobResult, error)
}

// JobError is a failure reported by the worker that ran the job.
type JobError struct {
	JobID   string
	Message string
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}

// Gateway accepts execution requests, hands them to the workers through the
// queue and waits for the matching result.
type Gateway struct {
	queue    Queue
	runtimes []domain.Runtime
	wait     time.Duration

	mu      sync.Mutex
	started bool
	pending map[string]chan domain.JobResult
}

func New(q Queue, runtimes []domain.Runtime, wait time.Duration) *Gateway {
	return &Gateway{
		queue:    q,
		runtimes: runtimes,
		wait:     wait,
		pending:  make(map[string]chan domain.JobResult),
	}
}

// Start subscribes to worker results and routes them to waiting requests
// until ctx ends.
func (g *Gateway) Start(ctx context.Context) error {
	results, err := g.queue.SubscribeResults(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to results: %w", err)
	}

	g.mu.Lock()
	g.started = true
	g.mu.Unlock()

	go g.dispatch(results)
	return nil
}

func (g *Gateway) dispatch(results <-chan domain.JobResult) {
	for result := range results {
		g.mu.Lock()
		ch, ok := g.pending[result.JobID]
		if ok {
			delete(g.pending, result.JobID)
		}
		g.mu.Unlock()

		if !ok {
			// Another gateway instance accepted this job, or we stopped waiting.
			slog.Debug("Ignoring result for unknown job", "jobID", result.JobID)
			continue
		}
		ch <- result
	}

	g.mu.Lock()
	g.started = false
	g.mu.Unlock()
	slog.Info("Result dispatcher stopped")
}

// Runtimes lists the languages workers can run.
func (g *Gateway) Runtimes() []domain.Runtime {
	out := make([]domain.Runtime, len(g.runtimes))
	copy(out, g.runtimes)
	return out
}

// Resolve finds the runtime for a language id or alias. An empty version or
// "*" matches any version.
func (g *Gateway) Resolve(language, version string) (domain.Runtime, bool) {
	for _, rt := range g.runtimes {
		if rt.Language != language && !contains(rt.Aliases, language) {
			continue
		}
		if version == "" || version == "*" || version == rt.Version {
			return rt, true
		}
	}
	return domain.Runtime{}, false
}

// Execute publishes req as a job and blocks until a worker reports its result,
// the wait bound elapses or ctx ends.
func (g *Gateway) Execute(ctx context.Context, req domain.ServiceRequest) (*domain.ServiceResponse, error) {
	rt, ok := g.Resolve(req.Language, req.Version)
	if !ok {
		return nil, fmt.Errorf("%s-%s %w", req.Language, req.Version, ErrUnknownRuntime)
	}
	req.Language, req.Version = rt.Language, rt.Version

	job := domain.Job{ID: uuid.New().String(), Request: req}
	ch := make(chan domain.JobResult, 1)

	g.mu.Lock()
	if !g.started {
		g.mu.Unlock()
		return nil, ErrNotStarted
	}
	g.pending[job.ID] = ch
	g.mu.Unlock()
	defer g.forget(job.ID)

	slog.Info("Received submission", "jobID", job.ID, "language", req.Language, "version", req.Version)
	if err := g.queue.Publish(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}

	timer := time.NewTimer(g.wait)
	defer timer.Stop()

	select {
	case result := <-ch:
		if result.Error != "" {
			return nil, &JobError{JobID: job.ID, Message: result.Error}
		}
		if result.Response == nil {
			return nil, &JobError{JobID: job.ID, Message: "worker returned no response"}
		}
		return result.Response, nil
	case <-timer.C:
		slog.Warn("Execution timed out", "jobID", job.ID, "wait", g.wait)
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *Gateway) forget(jobID string) {
	g.mu.Lock()
	delete(g.pending, jobID)
	g.mu.Unlock()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
