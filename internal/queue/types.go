package queue

import (
	"context"
	"time"
)

// Handler executes the work for one job type. Payload is passed through
// from Enqueue unchanged. Handlers may return an error (retried up to
// MaxAttempts) or panic (converted to an error at the worker boundary).
type Handler func(ctx context.Context, payload any) error

// Status is the lifecycle state of an ad-hoc job.
//
//	pending --(dequeued)--> processing --(ok)--> completed
//	processing --(err, attempts < max)--> pending
//	processing --(err, attempts == max)--> failed
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Job is a single unit of work. Mutated only by the worker loop after
// Enqueue returns.
type Job struct {
	ID          string
	Type        string
	Payload     any
	Priority    int // higher dequeues first
	Status      Status
	Attempts    int // incremented on each failed attempt
	MaxAttempts int
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	LastError   string
}

type Config struct {
	// MaxAttempts is the default retry budget per job (min 1).
	MaxAttempts int
}

// Options tunes a single enqueued job.
type Options struct {
	// MaxAttempts overrides Config.MaxAttempts when > 0.
	MaxAttempts int
}

// QueueStatus reports counts over the live job set. Terminal jobs
// (completed/failed) have already left the set.
type QueueStatus struct {
	Pending    int
	Processing int
}

// Snapshot is a lightweight diagnostics view.
type Snapshot struct {
	Pending    int
	Processing int

	Enqueued       uint64
	Completed      uint64
	Failed         uint64
	Retries        uint64
	DroppedUnknown uint64
}
