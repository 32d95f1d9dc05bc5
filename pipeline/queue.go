package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	queueKey      = "transcode:queue"
	processingKey = "transcode:processing"
)

// Queue is a FIFO job queue on a Redis list with at-least-once delivery:
// dequeue atomically moves the payload onto a processing list, and Ack
// removes it once the job reaches a terminal state. A payload left on the
// processing list by a crashed worker is pushed back onto the queue by
// Reclaim the next time the coordinator starts its workers.
type Queue struct {
	rdb *redis.Client
}

func NewQueue(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

func (q *Queue) Enqueue(ctx context.Context, job TranscodeJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	if err := q.rdb.LPush(ctx, queueKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Dequeue blocks up to timeout for the oldest queued job. The raw payload is
// returned alongside the decoded job so Ack can remove that exact entry.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (TranscodeJob, string, error) {
	payload, err := q.rdb.BLMove(ctx, queueKey, processingKey, "RIGHT", "LEFT", timeout).Result()
	if err != nil {
		return TranscodeJob{}, "", err
	}
	var job TranscodeJob
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		// Undecodable payloads are dropped rather than redelivered forever.
		_ = q.rdb.LRem(ctx, processingKey, 1, payload).Err()
		return TranscodeJob{}, "", fmt.Errorf("failed to decode job payload: %w", err)
	}
	return job, payload, nil
}

// Reclaim moves every stranded processing payload back onto the queue and
// reports how many it moved. It must only run before workers start: at that
// point anything still on the processing list belonged to a worker that died
// mid-job. Payloads come off the newest end of the processing list so the
// oldest job lands back at the consuming end of the queue.
func (q *Queue) Reclaim(ctx context.Context) (int, error) {
	reclaimed := 0
	for {
		err := q.rdb.LMove(ctx, processingKey, queueKey, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return reclaimed, nil
		}
		if err != nil {
			return reclaimed, fmt.Errorf("failed to reclaim job: %w", err)
		}
		reclaimed++
	}
}

func (q *Queue) Ack(ctx context.Context, payload string) error {
	return q.rdb.LRem(ctx, processingKey, 1, payload).Err()
}

// Depth reports how many jobs are waiting, for health reporting.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, queueKey).Result()
}
