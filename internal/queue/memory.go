package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue is a process-local TaskQueue. Released jobs re-enter the
// queue after their delay via a timer, mirroring the RabbitMQ wait-queue
// behavior closely enough for tests and single-process runs.
type MemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	pending  map[string][]Job
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		handlers: make(map[string][]Handler),
		pending:  make(map[string][]Job),
	}
}

func (q *MemoryQueue) Publish(ctx context.Context, queueName string, job Job) error {
	q.mu.Lock()
	handlers := q.handlers[queueName]
	if len(handlers) == 0 {
		q.pending[queueName] = append(q.pending[queueName], job)
		q.mu.Unlock()
		return nil
	}
	q.mu.Unlock()

	for _, handler := range handlers {
		handler(ctx, job)
	}
	return nil
}

func (q *MemoryQueue) Release(ctx context.Context, queueName string, job Job, delay time.Duration) error {
	if delay <= 0 {
		return q.Publish(ctx, queueName, job)
	}
	time.AfterFunc(delay, func() {
		_ = q.Publish(context.Background(), queueName, job)
	})
	return nil
}

// Subscribe registers a handler and drains any jobs published before a
// consumer existed.
func (q *MemoryQueue) Subscribe(ctx context.Context, queueName string, handler Handler) {
	q.mu.Lock()
	q.handlers[queueName] = append(q.handlers[queueName], handler)
	backlog := q.pending[queueName]
	q.pending[queueName] = nil
	q.mu.Unlock()

	for _, job := range backlog {
		handler(ctx, job)
	}
}

// Pending returns jobs published to a queue nobody subscribed to yet.
func (q *MemoryQueue) Pending(queueName string) []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, len(q.pending[queueName]))
	copy(out, q.pending[queueName])
	return out
}
