package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// TaskType enumerates supported task categories.
type TaskType string

const (
	// TaskTypeChunk asks a worker to chunk a document.
	TaskTypeChunk TaskType = "chunk"
	// TaskTypeChunked carries the chunks produced for a document.
	TaskTypeChunked TaskType = "chunked"
)

// Subject returns the NATS subject tasks of this type are published on.
func (t TaskType) Subject() string {
	return "tasks." + string(t)
}

// Task is the envelope shared by producers and workers.
type Task struct {
	ID          uuid.UUID
	Type        TaskType
	Payload     []byte
	Attempts    int
	MaxAttempts int
	NotBefore   time.Time
}

type Handler func(context.Context, Task) error

// Queue exposes a minimal contract to enqueue and consume tasks.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Worker(ctx context.Context, taskType TaskType, handler Handler) error
}

// EnqueueWithRetry attempts to enqueue with retries and exponential backoff.
func EnqueueWithRetry(ctx context.Context, q Queue, task Task, attempts int, base time.Duration) error {
	if attempts <= 0 {
		attempts = 1
	}
	if base <= 0 {
		base = time.Millisecond
	}
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(base)) // #nosec G115 -- attempts >= 1
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := q.Enqueue(ctx, task); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
