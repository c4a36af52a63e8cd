/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"k8s.io/klog/v2"

	"github.com/certsocietegenerale/fame/pkg/config"
	"github.com/certsocietegenerale/fame/pkg/errors"
)

const keyPrefix = "fame:queue:"

// RedisQueue is the production transport: one Redis list per queue,
// LPUSH to enqueue and BRPOP to consume.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue connects to the Redis instance named in the
// configuration.
func NewRedisQueue(ctx context.Context) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.GetRedisAddr(),
		Password: config.GetRedisPassword(),
		DB:       config.GetRedisDB(),
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.NewInternalError("cannot reach redis at %s: %v", config.GetRedisAddr(), err)
	}
	return &RedisQueue{client: client}, nil
}

// NewRedisQueueWithClient wraps an existing client, used by tests.
func NewRedisQueueWithClient(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func queueKey(queueName string) string {
	return keyPrefix + queueName
}

// Push appends a task to a named queue.
func (q *RedisQueue) Push(ctx context.Context, queueName string, task *Task) error {
	if task == nil {
		return errors.NewBadRequest("the input is empty")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, queueKey(queueName), data).Err(); err != nil {
		klog.ErrorS(err, "failed to push task", "queue", queueName, "module", task.Module)
		return err
	}
	return nil
}

// Pop blocks on the given queues and returns the next task. A nil task
// means the timeout elapsed.
func (q *RedisQueue) Pop(ctx context.Context, queueNames []string, timeout time.Duration) (*Task, string, error) {
	keys := make([]string, 0, len(queueNames))
	for _, name := range queueNames {
		keys = append(keys, queueKey(name))
	}
	result, err := q.client.BRPop(ctx, timeout, keys...).Result()
	if err == redis.Nil {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	// BRPOP returns the key and the popped value.
	task := &Task{}
	if err := json.Unmarshal([]byte(result[1]), task); err != nil {
		klog.ErrorS(err, "discarding malformed task", "queue", result[0])
		return nil, "", err
	}
	return task, result[0][len(keyPrefix):], nil
}

// Length returns the number of pending tasks on a queue.
func (q *RedisQueue) Length(ctx context.Context, queueName string) (int64, error) {
	return q.client.LLen(ctx, queueKey(queueName)).Result()
}

// Close releases the connection pool.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

var _ Interface = &RedisQueue{}
