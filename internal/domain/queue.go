package domain

import "context"

// JobQueue defines the contract for the distributed execution queue.
// It decouples the gateway and the workers from the underlying broker.
type JobQueue interface {
	// Publish enqueues a job for processing.
	Publish(ctx context.Context, job Job) error

	// Subscribe returns a read-only channel that streams jobs from the queue.
	// It handles the details of consumer groups internally.
	Subscribe(ctx context.Context) (<-chan Job, error)

	// Acknowledge confirms that a job has been processed.
	// rawID is the broker's own id for the entry (Job.RawID), not the job id.
	Acknowledge(ctx context.Context, rawID string) error

	// Broadcast publishes the job execution result to every gateway.
	Broadcast(ctx context.Context, result JobResult) error

	// SubscribeResults returns a channel that streams execution results from all workers.
	SubscribeResults(ctx context.Context) (<-chan JobResult, error)
}

// Job is a unit of work for the workers: one execution request accepted by the gateway.
type Job struct {
	ID      string         `json:"id"`
	Request ServiceRequest `json:"request"`

	// RawID is the internal Stream ID from Redis (e.g. 1700000-0).
	// We need this to Acknowledge the message later.
	RawID string `json:"-"`
}

// JobResult carries the outcome of a job back to the gateway that accepted it.
// Exactly one of Response and Error is set.
type JobResult struct {
	JobID    string           `json:"job_id"`
	Response *ServiceResponse `json:"response,omitempty"`
	Error    string           `json:"error,omitempty"`
}
