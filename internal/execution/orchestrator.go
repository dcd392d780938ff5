package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dontdude/coderoom/internal/domain"
)

// State is the lifecycle stage of a client's execution request.
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateAwaitingResult
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSubmitting:
		return "submitting"
	case StateAwaitingResult:
		return "awaiting-result"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

func (s State) inFlight() bool {
	return s == StateSubmitting || s == StateAwaitingResult
}

// Executor performs one request/response exchange with the execution service.
type Executor interface {
	Execute(ctx context.Context, req domain.ExecutionRequest) (*domain.ServiceResponse, error)
}

// Orchestrator runs at most one execution at a time for a client and keeps the
// last displayed result.
type Orchestrator struct {
	executor Executor
	notifier domain.Notifier

	mu      sync.Mutex
	state   State
	seq     uint64
	output  *Result
	lastErr error
}

func NewOrchestrator(e Executor, n domain.Notifier) *Orchestrator {
	if n == nil {
		n = domain.Discard
	}
	return &Orchestrator{executor: e, notifier: n}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Output returns the result currently on display, nil if there is none.
func (o *Orchestrator) Output() *Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.output
}

// Err returns the error of the last failed run.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// Submit runs source as lang with the given standard input and blocks until the
// service answers or ctx ends.
//
// Errors: domain.ErrExecutionInFlight if a run is outstanding (state unchanged);
// domain.ErrEmptyBuffer for empty source (no network call); *domain.TransportError
// for a failed exchange; domain.ErrInvalidResponse for a response without a
// result; domain.ErrDiscarded if Reset was called while waiting. A program that
// exits non-zero is returned as a Result, not an error.
func (o *Orchestrator) Submit(ctx context.Context, source string, lang domain.Language, stdin string) (*Result, error) {
	o.mu.Lock()
	if o.state.inFlight() {
		o.mu.Unlock()
		return nil, domain.ErrExecutionInFlight
	}
	if source == "" {
		o.state = StateFailed
		o.lastErr = domain.ErrEmptyBuffer
		o.mu.Unlock()
		o.notifier.Notify(domain.NoticeFailure, "No code to execute")
		return nil, domain.ErrEmptyBuffer
	}

	o.state = StateSubmitting
	o.seq++
	seq := o.seq
	o.output = nil
	o.lastErr = nil
	req := BuildRequest(lang, source, stdin)
	o.state = StateAwaitingResult
	o.mu.Unlock()

	slog.Debug("submitting execution", "language", req.ServiceLanguage, "version", req.RuntimeVersion, "file", req.FileName)
	resp, err := o.executor.Execute(ctx, req)

	o.mu.Lock()
	if seq != o.seq {
		o.mu.Unlock()
		slog.Debug("discarding stale execution result", "seq", seq)
		return nil, domain.ErrDiscarded
	}

	if err != nil {
		var te *domain.TransportError
		if !errors.As(err, &te) {
			err = &domain.TransportError{Err: err}
		}
		o.fail(err)
		o.mu.Unlock()
		o.notifier.Notify(domain.NoticeFailure, fmt.Sprintf("Failed to execute code: %v", err))
		return nil, err
	}

	result, err := Normalize(resp)
	if err != nil {
		o.fail(err)
		o.mu.Unlock()
		o.notifier.Notify(domain.NoticeFailure, fmt.Sprintf("Failed to execute code: %v", err))
		return nil, err
	}

	o.state = StateSucceeded
	o.output = result
	o.mu.Unlock()

	if result.Succeeded() {
		o.notifier.Notify(domain.NoticeSuccess, "Code executed successfully")
	} else {
		o.notifier.Notify(domain.NoticeFailure, fmt.Sprintf("Execution finished with exit code %d", result.ExitCode))
	}
	return result, nil
}

// Dismiss returns a finished run to Idle once its outcome has been shown.
func (o *Orchestrator) Dismiss() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.state.inFlight() {
		o.state = StateIdle
	}
}

// Reset abandons any outstanding run: its response will be discarded when it
// arrives. The request itself is not cancelled.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seq++
	o.state = StateIdle
	o.output = nil
	o.lastErr = nil
}

// fail must be called with o.mu held.
func (o *Orchestrator) fail(err error) {
	o.state = StateFailed
	o.output = nil
	o.lastErr = err
	slog.Warn("execution failed", "error", err)
}
