package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"classdeck-backend/internal/models"
)

// Queue pushes device batches for the pool to pick up.
type Queue struct {
	redis *redis.Client
}

func NewQueue(redisClient *redis.Client) *Queue {
	return &Queue{redis: redisClient}
}

func (q *Queue) Enqueue(ctx context.Context, job models.QueuedJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.Job.ID, err)
	}
	return q.redis.RPush(ctx, DeviceActionsQueue, string(data)).Err()
}
