package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClients splits the device queue from pub/sub. A subscribed connection
// cannot issue BLPOP, so the websocket hub gets its own client.
type RedisClients struct {
	Queue  *redis.Client
	PubSub *redis.Client
}

func NewRedisClients(ctx context.Context, redisURL string) (*RedisClients, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	queue, err := dialRedis(ctx, opt, "queue")
	if err != nil {
		return nil, err
	}
	pubsub, err := dialRedis(ctx, opt, "pubsub")
	if err != nil {
		queue.Close()
		return nil, err
	}
	return &RedisClients{Queue: queue, PubSub: pubsub}, nil
}

func dialRedis(ctx context.Context, opt *redis.Options, role string) (*redis.Client, error) {
	o := *opt
	o.ClientName = "classdeck-" + role
	client := redis.NewClient(&o)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis (%s): %w", role, err)
	}
	return client, nil
}

func (r *RedisClients) Close() {
	r.Queue.Close()
	r.PubSub.Close()
}
