package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/zulandar/buildyard/internal/config"
	"github.com/zulandar/buildyard/internal/logging"
)

// streamAdder is the subset of *redis.Client used for publishing.
type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Redis publishes each task to the stream "<prefix>:<task name>".
type Redis struct {
	client streamAdder
	prefix string
	log    *slog.Logger
}

// NewRedis wraps an existing client.
func NewRedis(client streamAdder, prefix string, log *slog.Logger) *Redis {
	return &Redis{client: client, prefix: prefix, log: logging.OrDefault(log)}
}

// Dial opens a go-redis client from cfg and checks it with PING.
func Dial(ctx context.Context, cfg config.QueueConfig, log *slog.Logger) (*Redis, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("queue: connect redis %s: %w", cfg.RedisAddr, err)
	}
	return NewRedis(client, cfg.StreamPrefix, log), client, nil
}

// Stream returns the stream a task name is published to.
func (r *Redis) Stream(name string) string {
	return r.prefix + ":" + name
}

// Enqueue appends task to its stream.
func (r *Redis) Enqueue(ctx context.Context, task Task) error {
	values := map[string]interface{}{
		"task_id":   task.ID,
		"parent_id": task.ParentID,
	}
	for k, v := range task.Payload {
		values[k] = v
	}
	stream := r.Stream(task.Name)
	id, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()
	if err != nil {
		return fmt.Errorf("queue: enqueue %s %s: %w", task.Name, task.ID, err)
	}
	r.log.Debug("task enqueued", "stream", stream, "task", task.ID, "entry", id)
	return nil
}
