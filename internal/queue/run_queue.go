package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wintersim/muonio/pkg/queue"
)

// requestsKey is the Redis list holding queued run requests, oldest first.
const requestsKey = "run-requests"

// RunQueue is a FIFO of scenario run requests shared by the API and workers.
type RunQueue struct {
	client *Client
}

func NewRunQueue(client *Client) *RunQueue {
	return &RunQueue{
		client: client,
	}
}

// Enqueue adds a request to the end of the queue
func (q *RunQueue) Enqueue(ctx context.Context, req *queue.Request) error {
	data, err := req.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize request: %w", err)
	}

	if err := q.client.rdb.RPush(ctx, requestsKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue request: %w", err)
	}
	q.client.logger.Debug("Enqueued run request",
		"request_id", req.RequestID,
		"run_id", req.RunID.String(),
		"scenario", req.Config.Name)
	return nil
}

// Dequeue removes and returns the next request.
// Returns nil if queue is empty
func (q *RunQueue) Dequeue(ctx context.Context) (*queue.Request, error) {
	result, err := q.client.rdb.LPop(ctx, requestsKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Queue is empty
		}
		return nil, fmt.Errorf("failed to dequeue request: %w", err)
	}

	req, err := queue.FromJSON([]byte(result))
	if err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}

	return req, nil
}

// BlockingDequeue waits up to timeout for a request. It returns nil, nil
// when the timeout passes with the queue still empty.
func (q *RunQueue) BlockingDequeue(ctx context.Context, timeout time.Duration) (*queue.Request, error) {
	result, err := q.client.rdb.BLPop(ctx, timeout, requestsKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue request: %w", err)
	}

	// BLPop returns [key, value]
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BLPop result: %v", result)
	}

	req, err := queue.FromJSON([]byte(result[1]))
	if err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}

	return req, nil
}

// Requeue puts a request back at the front of the queue.
func (q *RunQueue) Requeue(ctx context.Context, req *queue.Request) error {
	data, err := req.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize request: %w", err)
	}
	if err := q.client.rdb.LPush(ctx, requestsKey, data).Err(); err != nil {
		return fmt.Errorf("failed to requeue request: %w", err)
	}
	return nil
}

// Peek returns up to limit queued requests without removing them.
// limit <= 0 returns all of them.
func (q *RunQueue) Peek(ctx context.Context, limit int) ([]*queue.Request, error) {
	end := int64(limit - 1)
	if limit <= 0 {
		end = -1 // Get all
	}
	items, err := q.client.rdb.LRange(ctx, requestsKey, 0, end).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to peek requests: %w", err)
	}

	reqs := make([]*queue.Request, 0, len(items))
	for _, item := range items {
		req, err := queue.FromJSON([]byte(item))
		if err != nil {
			return nil, fmt.Errorf("failed to parse request: %w", err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// Depth returns the number of queued requests
func (q *RunQueue) Depth(ctx context.Context) (int, error) {
	count, err := q.client.rdb.LLen(ctx, requestsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue depth: %w", err)
	}
	return int(count), nil
}
