package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrQueueFull is returned by Enqueue when the message was dropped.
	ErrQueueFull = errors.New("notification queue full")
	// ErrQueueClosed is returned once the queue stopped accepting or yielding messages.
	ErrQueueClosed = errors.New("notification queue closed")
)

// Queue is the outbound buffer between the services and the delivery worker.
// Enqueue never blocks on a slow consumer.
type Queue interface {
	Enqueue(ctx context.Context, msg Message) error
	Dequeue(ctx context.Context) (Message, error)
	Close() error
}

// MemoryQueue is a bounded in-process queue.
type MemoryQueue struct {
	ch     chan Message
	done   chan struct{}
	closed sync.Once
}

// NewMemoryQueue creates a queue holding up to size messages.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 1
	}
	return &MemoryQueue{ch: make(chan Message, size), done: make(chan struct{})}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, msg Message) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case q.ch <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (Message, error) {
	select {
	case msg := <-q.ch:
		return msg, nil
	case <-q.done:
		return Message{}, ErrQueueClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Len reports the number of buffered messages.
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

func (q *MemoryQueue) Close() error {
	q.closed.Do(func() { close(q.done) })
	return nil
}

// RedisQueue keeps the outbound messages in a Redis list so they survive a restart.
type RedisQueue struct {
	client  redis.UniversalClient
	key     string
	maxLen  int64
	timeout time.Duration
}

// NewRedisQueue builds a list-backed queue. maxLen bounds the list; 0 means unbounded.
func NewRedisQueue(client redis.UniversalClient, key string, maxLen int) *RedisQueue {
	return &RedisQueue{client: client, key: key, maxLen: int64(maxLen), timeout: 5 * time.Second}
}

func (q *RedisQueue) Enqueue(ctx context.Context, msg Message) error {
	if q.maxLen > 0 {
		n, err := q.client.LLen(ctx, q.key).Result()
		if err != nil {
			return fmt.Errorf("queue length: %w", err)
		}
		if n >= q.maxLen {
			return ErrQueueFull
		}
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, payload).Err()
}

// Dequeue blocks until a message arrives or ctx ends.
func (q *RedisQueue) Dequeue(ctx context.Context) (Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Message{}, err
		}
		res, err := q.client.BRPop(ctx, q.timeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return Message{}, ctx.Err()
			}
			return Message{}, err
		}
		// BRPOP answers [key, value].
		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			return Message{}, fmt.Errorf("decode queued notification: %w", err)
		}
		return msg, nil
	}
}

func (q *RedisQueue) Close() error {
	return nil
}
