package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"semchunk/internal/app"
	"semchunk/internal/chunker"
	"semchunk/internal/queue"
)

type chunkTaskPayload struct {
	DocumentID uuid.UUID `json:"document_id"`
	Content    string    `json:"content"`
	Strategy   string    `json:"strategy"`
}

type chunkedPayload struct {
	DocumentID uuid.UUID       `json:"document_id"`
	Strategy   string          `json:"strategy"`
	Chunks     []chunker.Chunk `json:"chunks"`
}

// chunkTaskHandler chunks queued documents and publishes the result. Only
// transient embedding failures are returned for redelivery; bad payloads and
// configuration errors are logged and dropped.
func chunkTaskHandler(deps app.Deps) queue.Handler {
	return func(ctx context.Context, task queue.Task) error {
		log := deps.Log.With("task_id", task.ID, "attempt", task.Attempts)

		var payload chunkTaskPayload
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			log.Error("invalid chunk task payload", "err", err)
			return nil
		}
		log = log.With("document_id", payload.DocumentID)

		chunks, err := chunkText(ctx, deps, payload.Strategy, payload.Content, nil)
		if err != nil {
			if chunker.IsRetryable(err) {
				return fmt.Errorf("chunk document %s: %w", payload.DocumentID, err)
			}
			log.Error("chunk task failed permanently", "err", err)
			return nil
		}

		body, err := json.Marshal(chunkedPayload{
			DocumentID: payload.DocumentID,
			Strategy:   payload.Strategy,
			Chunks:     chunks,
		})
		if err != nil {
			return err
		}
		out := queue.Task{Type: queue.TaskTypeChunked, Payload: body, NotBefore: time.Now()}
		if err := queue.EnqueueWithRetry(ctx, deps.Queue, out, 3, 200*time.Millisecond); err != nil {
			return fmt.Errorf("publish chunks for %s: %w", payload.DocumentID, err)
		}
		log.Info("document chunked", "chunks", len(chunks))
		return nil
	}
}
