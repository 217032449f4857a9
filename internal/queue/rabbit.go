package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
)

// RabbitQueue implements TaskQueue on RabbitMQ. Delayed release uses a
// per-delay wait queue whose messages dead-letter back into the work queue
// after their TTL expires, so no worker ever sleeps holding a delivery.
type RabbitQueue struct {
	conn    *amqp.Connection
	channel *amqp.Channel

	mu       sync.Mutex
	declared map[string]bool
}

func NewRabbitQueue(rabbitURL string) (*RabbitQueue, error) {
	conn, err := amqp.Dial(rabbitURL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	return &RabbitQueue{
		conn:     conn,
		channel:  ch,
		declared: make(map[string]bool),
	}, nil
}

func (q *RabbitQueue) Close() error {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

// DeclareWorkQueue declares a durable work queue. Idempotent.
func (q *RabbitQueue) DeclareWorkQueue(queueName string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.declareLocked(queueName, nil)
}

func (q *RabbitQueue) declareLocked(queueName string, args amqp.Table) error {
	if q.declared[queueName] {
		return nil
	}
	if _, err := q.channel.QueueDeclare(
		queueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		args,
	); err != nil {
		return fmt.Errorf("declare queue %s: %w", queueName, err)
	}
	q.declared[queueName] = true
	return nil
}

// waitQueueName derives the wait queue for a given work queue and delay.
func waitQueueName(queueName string, delay time.Duration) string {
	return queueName + ".wait." + strconv.FormatInt(delay.Milliseconds(), 10)
}

// ensureWaitQueue declares the TTL queue that dead-letters expired messages
// back into the work queue.
func (q *RabbitQueue) ensureWaitQueue(queueName string, delay time.Duration) (string, error) {
	waitName := waitQueueName(queueName, delay)
	q.mu.Lock()
	defer q.mu.Unlock()
	err := q.declareLocked(waitName, amqp.Table{
		"x-message-ttl":             delay.Milliseconds(),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queueName,
	})
	if err != nil {
		return "", err
	}
	return waitName, nil
}

func (q *RabbitQueue) publish(ctx context.Context, queueName string, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	return q.channel.PublishWithContext(ctx, "", queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

func (q *RabbitQueue) Publish(ctx context.Context, queueName string, job Job) error {
	if err := q.DeclareWorkQueue(queueName); err != nil {
		return err
	}
	return q.publish(ctx, queueName, job)
}

func (q *RabbitQueue) Release(ctx context.Context, queueName string, job Job, delay time.Duration) error {
	if delay <= 0 {
		return q.Publish(ctx, queueName, job)
	}
	if err := q.DeclareWorkQueue(queueName); err != nil {
		return err
	}
	waitName, err := q.ensureWaitQueue(queueName, delay)
	if err != nil {
		return err
	}
	return q.publish(ctx, waitName, job)
}

// Consume pulls jobs from the work queue and runs the handler on each.
// Deliveries are acked after the handler returns; the orchestrators own the
// retry decision through Release. Blocks until the context is cancelled.
func (q *RabbitQueue) Consume(ctx context.Context, queueName string, handler Handler) error {
	if err := q.DeclareWorkQueue(queueName); err != nil {
		return err
	}

	if err := q.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := q.channel.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queueName, err)
	}

	log.WithField("queue", queueName).Info("Consuming dispatch jobs")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, open := <-deliveries:
			if !open {
				return fmt.Errorf("delivery channel for %s closed", queueName)
			}

			var job Job
			if err := json.Unmarshal(delivery.Body, &job); err != nil {
				log.WithError(err).WithField("queue", queueName).Error("Discarding malformed job")
				delivery.Nack(false, false)
				continue
			}

			handler(ctx, job)
			delivery.Ack(false)
		}
	}
}
