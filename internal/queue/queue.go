// Package queue carries dispatch work between the API process and the
// workers. The production implementation sits on RabbitMQ; an in-memory
// implementation backs tests and single-process runs.
package queue

import (
	"context"
	"time"
)

// Job is the envelope for one unit of dispatch work. Campaign jobs carry
// TaskID/CampaignID, webhook jobs carry LogID/EndpointID; both carry the
// tenant and the attempt counter.
type Job struct {
	TaskID     uint `json:"task_id,omitempty"`
	CampaignID uint `json:"campaign_id,omitempty"`
	LogID      uint `json:"log_id,omitempty"`
	EndpointID uint `json:"endpoint_id,omitempty"`
	TenantID   uint `json:"tenant_id"`
	Attempt    int  `json:"attempt"`
}

// TaskQueue is the enqueue/release capability handed to the orchestrators.
// Release re-enqueues a job after a delay; it is how paused campaigns yield
// and how failed attempts back off.
type TaskQueue interface {
	Publish(ctx context.Context, queueName string, job Job) error
	Release(ctx context.Context, queueName string, job Job, delay time.Duration) error
}

// Handler processes one consumed job. Consumers ack after the handler
// returns; retries happen through explicit Release calls, never redelivery.
type Handler func(ctx context.Context, job Job)
