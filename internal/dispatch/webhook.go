package dispatch

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/akunesiateam/akunchatlagi-sub002/internal/cache"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/fields"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/models"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/queue"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/whatsapp"
)

// WebhookDispatcher processes one template send per inbound webhook
// delivery: extract configured fields from the payload, render, send, and
// resolve the activity log row.
type WebhookDispatcher struct {
	Store     LogStore
	Sender    Sender
	Queue     queue.TaskQueue
	Lock      cache.DistributedLock
	Breaker   cache.Breaker
	Policy    Policy
	QueueName string
}

// Process runs one unit of webhook dispatch work. Configuration failures
// resolve the log row as failed immediately with no retry; send failures
// follow the bounded backoff policy.
func (d *WebhookDispatcher) Process(ctx context.Context, job queue.Job) {
	logger := log.WithFields(log.Fields{
		"log_id":      job.LogID,
		"endpoint_id": job.EndpointID,
		"tenant_id":   job.TenantID,
		"attempt":     job.Attempt,
	})

	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(log.Fields{
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("Unexpected failure in webhook dispatch")
			d.failAndMaybeRetry(ctx, job, logger, "unexpected error during dispatch")
		}
	}()

	token, acquired, err := d.Lock.Acquire(ctx, logLockKey(job.LogID), d.Policy.LockTTL)
	if err != nil {
		logger.WithError(err).Error("Lock acquire failed, releasing job")
		d.release(ctx, job, d.Policy.delayForAttempt(job.Attempt), logger)
		return
	}
	if !acquired {
		logger.Info("Log row already being processed elsewhere, skipping")
		return
	}
	defer d.Lock.Release(ctx, logLockKey(job.LogID), token)

	logRow, err := d.Store.GetActivityLog(job.LogID)
	if err != nil {
		logger.WithError(err).Error("Activity log reload failed, releasing")
		d.release(ctx, job, d.Policy.delayForAttempt(job.Attempt), logger)
		return
	}
	if logRow == nil {
		logger.Info("Activity log row gone, nothing to do")
		return
	}
	if logRow.SendStatus == models.SendSent {
		logger.Info("Activity log already sent, skipping")
		return
	}

	// Configuration guards. Each failure here is terminal: the tenant has
	// to fix the endpoint, retrying cannot help.
	endpoint, err := d.Store.GetEndpoint(logRow.WebhookEndpointID)
	if err != nil {
		logger.WithError(err).Error("Endpoint lookup failed, releasing")
		d.release(ctx, job, d.Policy.delayForAttempt(job.Attempt), logger)
		return
	}
	if endpoint == nil {
		d.resolveFailed(job.LogID, ReasonEndpointMissing, logger)
		return
	}
	if !endpoint.Active {
		d.resolveFailed(job.LogID, ReasonEndpointInactive, logger)
		return
	}
	if endpoint.TemplateID == "" {
		d.resolveFailed(job.LogID, ReasonNoTemplate, logger)
		return
	}

	var payload interface{}
	if err := json.Unmarshal([]byte(logRow.Payload), &payload); err != nil {
		d.resolveFailed(job.LogID, "Webhook payload is not valid JSON", logger)
		return
	}

	// Field extraction runs before template resolution and is persisted
	// immediately so partial progress is visible for diagnostics.
	mappings, err := endpoint.ParseFieldMappings()
	if err != nil {
		d.resolveFailed(job.LogID, err.Error(), logger)
		return
	}
	extracted, fieldErrs := fields.ExtractFields(payload, toFieldMappings(mappings))
	for _, fe := range fieldErrs {
		logger.WithField("variable", fe.Variable).WithError(fe.Err).Warn("Field transformation failed")
	}

	phone := logRow.RecipientPhone
	if phone == "" && endpoint.PhonePath != "" {
		phone = fields.Stringify(fields.Resolve(payload, endpoint.PhonePath))
	}

	extractedJSON, _ := json.Marshal(extracted)
	if err := d.Store.SaveExtractedFields(job.LogID, string(extractedJSON), phone); err != nil {
		logger.WithError(err).Error("Failed to persist extracted fields, releasing")
		d.release(ctx, job, d.Policy.delayForAttempt(job.Attempt), logger)
		return
	}

	if phone == "" {
		d.resolveFailed(job.LogID, ReasonNoRecipient, logger)
		return
	}

	template, err := d.Store.GetTemplate(endpoint.TemplateID)
	if err != nil {
		logger.WithError(err).Error("Template lookup failed, releasing")
		d.release(ctx, job, d.Policy.delayForAttempt(job.Attempt), logger)
		return
	}
	if template == nil {
		d.resolveFailed(job.LogID, ReasonNoTemplate, logger)
		return
	}

	if allowed, _ := d.Breaker.Allow(ctx, ClassWebhook); !allowed {
		logger.Warn("Webhook dispatch breaker open, deferring job")
		d.release(ctx, job, d.Policy.delayForAttempt(job.Attempt), logger)
		return
	}

	meta, err := whatsapp.ParseComponents(template.Components)
	if err != nil {
		d.resolveFailed(job.LogID, err.Error(), logger)
		return
	}

	result := d.Sender.SendTemplate(whatsapp.TemplateSend{
		To:           phone,
		Name:         template.Name,
		Language:     template.Language,
		HeaderFormat: meta.HeaderFormat,
		BodyParams:   orderedValues(mappings, extracted),
		Buttons:      meta.Buttons,
		FlowContext: map[string]interface{}{
			"webhook_endpoint_id": endpoint.ID,
			"log_id":              logRow.ID,
			"tenant_id":           logRow.TenantID,
		},
	})

	if result.Success {
		ok, err := d.Store.ResolveLogSent(job.LogID, result.MessageID, map[string]interface{}{
			"whatsapp_triggered": true,
			"triggered_at":       time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			logger.WithError(err).Error("Failed to persist sent status")
			return
		}
		if !ok {
			logger.Warn("Log row resolved concurrently after send")
			return
		}
		logger.WithField("message_id", result.MessageID).Info("Webhook message sent")
		return
	}

	_ = d.Breaker.RecordFailure(ctx, ClassWebhook)
	logger.WithFields(log.Fields{
		"http_status": result.HTTPStatus,
		"error":       result.ErrorMessage,
	}).Warn("Webhook send failed")
	d.failAndMaybeRetry(ctx, job, logger, result.ErrorMessage)
}

// resolveFailed records a terminal configuration failure. No retry follows.
func (d *WebhookDispatcher) resolveFailed(logID uint, reason string, logger *log.Entry) {
	ok, err := d.Store.ResolveLogFailed(logID, reason, map[string]interface{}{
		"whatsapp_triggered": false,
		"error":              reason,
		"failed_at":          time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		logger.WithError(err).Error("Failed to persist failure status")
		return
	}
	if ok {
		logger.WithField("reason", reason).Warn("Webhook dispatch failed")
	}
}

// failAndMaybeRetry records a send failure and releases the job with
// backoff while attempts remain.
func (d *WebhookDispatcher) failAndMaybeRetry(ctx context.Context, job queue.Job, logger *log.Entry, reason string) {
	d.resolveFailed(job.LogID, reason, logger)

	nextAttempt := job.Attempt + 1
	if nextAttempt >= d.Policy.MaxAttempts {
		logger.WithField("attempts", nextAttempt).Error("Webhook dispatch permanently failed")
		return
	}

	retry := job
	retry.Attempt = nextAttempt
	d.release(ctx, retry, d.Policy.delayForAttempt(job.Attempt), logger)
}

func (d *WebhookDispatcher) release(ctx context.Context, job queue.Job, delay time.Duration, logger *log.Entry) {
	if err := d.Queue.Release(ctx, d.QueueName, job, delay); err != nil {
		logger.WithError(err).Error("Failed to release job back onto the queue")
	}
}

// toFieldMappings converts the stored mapping form into the extraction
// package's input type.
func toFieldMappings(mappings []models.FieldMapping) []fields.Mapping {
	out := make([]fields.Mapping, 0, len(mappings))
	for _, m := range mappings {
		transforms := make([]fields.Transform, 0, len(m.Transformations))
		for _, t := range m.Transformations {
			transforms = append(transforms, fields.Transform{Type: t.Type, Options: t.Options})
		}
		out = append(out, fields.Mapping{
			SourcePath:       m.SourcePath,
			TemplateVariable: m.TemplateVariable,
			DefaultValue:     m.DefaultValue,
			Transformations:  transforms,
		})
	}
	return out
}

// orderedValues lists the extracted values in mapping order, which is the
// numbered-parameter order of the linked template.
func orderedValues(mappings []models.FieldMapping, extracted map[string]string) []string {
	var out []string
	for _, m := range mappings {
		if m.SourcePath == "" || m.TemplateVariable == "" {
			continue
		}
		out = append(out, extracted[m.TemplateVariable])
	}
	return out
}
