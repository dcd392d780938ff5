package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dontdude/coderoom/internal/domain"
)

type fakeSandbox struct {
	running   atomic.Int32
	peak      atomic.Int32
	calls     atomic.Int32
	delay     time.Duration
	err       error
	languages []string // nil supports everything
}

func (f *fakeSandbox) Run(ctx context.Context, req domain.ServiceRequest) (*domain.ServiceResponse, error) {
	f.calls.Add(1)
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(f.delay)
	if f.err != nil {
		return nil, f.err
	}
	code := 0
	return &domain.ServiceResponse{
		Language: req.Language,
		Run:      &domain.ServicePhase{Output: req.Files[0].Content, Code: &code},
	}, nil
}

func (f *fakeSandbox) Supports(language string) bool {
	if f.languages == nil {
		return true
	}
	for _, l := range f.languages {
		if l == language {
			return true
		}
	}
	return false
}

type fakeSink struct {
	mu      sync.Mutex
	results []domain.JobResult
	acked   []string
	failPub bool
}

func (f *fakeSink) Broadcast(_ context.Context, r domain.JobResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPub {
		return errors.New("redis down")
	}
	f.results = append(f.results, r)
	return nil
}

func (f *fakeSink) Acknowledge(_ context.Context, rawID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, rawID)
	return nil
}

func (f *fakeSink) snapshot() ([]domain.JobResult, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.JobResult(nil), f.results...), append([]string(nil), f.acked...)
}

func job(id, content string) domain.Job {
	return domain.Job{
		ID:    id,
		RawID: "raw-" + id,
		Request: domain.ServiceRequest{
			Language: "python",
			Files:    []domain.ServiceFile{{Name: "main.py", Content: content}},
		},
	}
}

func TestPool_ReportsAndAcknowledges(t *testing.T) {
	sandbox := &fakeSandbox{}
	sink := &fakeSink{}
	p := NewPool(2, sandbox, sink)
	p.Start()

	p.Submit(job("a", "print(1)"))
	p.Submit(job("b", "print(2)"))
	p.Stop()

	results, acked := sink.snapshot()
	require.Len(t, results, 2)
	byID := map[string]domain.JobResult{}
	for _, r := range results {
		byID[r.JobID] = r
	}
	require.NotNil(t, byID["a"].Response)
	assert.Equal(t, "print(1)", byID["a"].Response.Run.Output)
	assert.Empty(t, byID["a"].Error)
	assert.ElementsMatch(t, []string{"raw-a", "raw-b"}, acked)
}

func TestPool_SandboxErrorBecomesErrorResult(t *testing.T) {
	sink := &fakeSink{}
	p := NewPool(1, &fakeSandbox{err: errors.New("cobol- runtime is unknown")}, sink)
	p.Start()

	p.Submit(job("c", "x"))
	p.Stop()

	results, acked := sink.snapshot()
	require.Len(t, results, 1)
	assert.Nil(t, results[0].Response)
	assert.Equal(t, "cobol- runtime is unknown", results[0].Error)
	assert.Equal(t, []string{"raw-c"}, acked)
}

func TestPool_UnreportedJobIsNotAcknowledged(t *testing.T) {
	sink := &fakeSink{failPub: true}
	p := NewPool(1, &fakeSandbox{}, sink)
	p.Start()

	p.Submit(job("d", "x"))
	p.Stop()

	_, acked := sink.snapshot()
	assert.Empty(t, acked)
}

func TestPool_RespectsConcurrencyLimit(t *testing.T) {
	sandbox := &fakeSandbox{delay: 20 * time.Millisecond}
	sink := &fakeSink{}
	p := NewPool(3, sandbox, sink)
	p.Start()

	jobs := make(chan domain.Job)
	go func() {
		defer close(jobs)
		for i := 0; i < 12; i++ {
			jobs <- job(string(rune('a'+i)), "x")
		}
	}()
	p.Consume(jobs)
	p.Stop()

	results, _ := sink.snapshot()
	assert.Len(t, results, 12)
	assert.LessOrEqual(t, sandbox.peak.Load(), int32(3))
	assert.GreaterOrEqual(t, sandbox.peak.Load(), int32(1))
}

func TestNewPool_MinimumOneWorker(t *testing.T) {
	p := NewPool(0, &fakeSandbox{}, &fakeSink{})
	assert.Equal(t, 1, p.workerCount)
}

func TestPool_UnsupportedLanguageSkipsSandbox(t *testing.T) {
	sandbox := &fakeSandbox{languages: []string{"ruby"}}
	sink := &fakeSink{}
	p := NewPool(1, sandbox, sink)
	p.Start()

	p.Submit(job("d", "print(1)"))
	p.Stop()

	results, acked := sink.snapshot()
	require.Len(t, results, 1)
	assert.Nil(t, results[0].Response)
	assert.Equal(t, "python runtime is not supported by this worker", results[0].Error)
	assert.Equal(t, []string{"raw-d"}, acked)
	assert.Zero(t, sandbox.calls.Load())
}
