package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const maxJobAttempts = 3

// Handlers wires the per-queue processors consumed by the pool.
type Handlers struct {
	Timeline *TimelineWorker
	Mirror   *MirrorWorker
	Report   *ReportWorker
}

// StartWorkerPool launches numWorkers goroutines consuming all queues.
// Each goroutine blocks on BRPOP — zero CPU when idle.
func StartWorkerPool(ctx context.Context, rdb *redis.Client, numWorkers int, handlers Handlers) {
	for i := 0; i < numWorkers; i++ {
		go runWorker(ctx, rdb, i, handlers)
	}
	log.Info().Msgf("worker pool started with %d workers", numWorkers)
}

func runWorker(ctx context.Context, rdb *redis.Client, id int, handlers Handlers) {
	queues := []string{QueueTimeline, QueueMirror, QueueReport}
	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("worker %d shutting down", id)
			return
		default:
			// Blocking pop — waits up to 5s then loops to check ctx
			result, err := rdb.BRPop(ctx, 5*time.Second, queues...).Result()
			if err != nil {
				continue // timeout or context cancelled
			}
			if len(result) < 2 {
				continue
			}
			processJob(ctx, rdb, handlers, result[0], result[1])
		}
	}
}

// processJob dispatches by source queue. A handler failure is retried with
// exponential backoff; a job that exhausts its attempts lands in the DLQ.
func processJob(ctx context.Context, rdb *redis.Client, handlers Handlers, queue, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Error().Str("queue", queue).Err(err).Msg("failed to unmarshal job")
		return
	}

	var handle func(context.Context, json.RawMessage) error
	switch queue {
	case QueueTimeline:
		if handlers.Timeline != nil {
			handle = handlers.Timeline.Process
		}
	case QueueMirror:
		if handlers.Mirror != nil {
			handle = handlers.Mirror.Process
		}
	case QueueReport:
		if handlers.Report != nil {
			handle = handlers.Report.Process
		}
	}
	if handle == nil {
		log.Warn().Str("queue", queue).Str("type", job.Type).Msg("no handler wired for queue")
		return
	}

	err := withRetry(ctx, maxJobAttempts, func(attempt int) error {
		if attempt > 0 {
			log.Warn().Str("type", job.Type).Int("attempt", attempt+1).Msg("retrying job")
		}
		return handle(ctx, job.Payload)
	})
	if err != nil {
		SendToDLQ(ctx, rdb, queue, job.Type, job.Payload, err.Error(), maxJobAttempts)
	}
}

// withRetry calls fn up to maxAttempts times with exponential backoff.
// Backoff schedule: attempt 1 = immediate, 2 = 1s, 3 = 2s.
// Returns nil if any attempt succeeds; last error otherwise.
func withRetry(ctx context.Context, maxAttempts int, fn func(attempt int) error) error {
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		if i > 0 {
			wait := time.Duration(1<<uint(i-1)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		if err := fn(i); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}
