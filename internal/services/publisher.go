package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"classdeck-backend/internal/models"
)

// UpdatesChannel is the pub/sub channel the websocket hub relays to a teacher.
func UpdatesChannel(teacherID string) string {
	return "teacher_updates:" + teacherID
}

// UpdatePublisher sends console updates through Redis pub/sub.
type UpdatePublisher struct {
	redis *redis.Client
}

func NewUpdatePublisher(redisClient *redis.Client) *UpdatePublisher {
	return &UpdatePublisher{redis: redisClient}
}

func (p *UpdatePublisher) Publish(ctx context.Context, teacherID string, msg models.WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s update: %w", msg.Type, err)
	}
	return p.redis.Publish(ctx, UpdatesChannel(teacherID), string(data)).Err()
}
