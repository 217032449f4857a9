package dispatch

import (
	"context"
	"runtime/debug"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/akunesiateam/akunchatlagi-sub002/internal/cache"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/fields"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/models"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/queue"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/whatsapp"
)

// CampaignDispatcher processes one template send per campaign recipient.
type CampaignDispatcher struct {
	Store     TaskStore
	Sender    Sender
	Queue     queue.TaskQueue
	Cache     cache.KeyValueCache
	Lock      cache.DistributedLock
	Breaker   cache.Breaker
	Policy    Policy
	QueueName string
}

// Process runs one unit of campaign dispatch work. It never lets an error
// or panic escape: every outcome ends as a row mutation plus a log entry,
// or a release back onto the queue.
func (d *CampaignDispatcher) Process(ctx context.Context, job queue.Job) {
	logger := log.WithFields(log.Fields{
		"task_id":     job.TaskID,
		"campaign_id": job.CampaignID,
		"tenant_id":   job.TenantID,
		"attempt":     job.Attempt,
	})

	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(log.Fields{
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("Unexpected failure in campaign dispatch")
			d.failAndMaybeRetry(ctx, job, logger, "unexpected error during dispatch")
		}
	}()

	// Per-task exclusivity: a concurrent attempt for the same task identity
	// is ignored, never double-sent.
	token, acquired, err := d.Lock.Acquire(ctx, taskLockKey(job.TaskID), d.Policy.LockTTL)
	if err != nil {
		logger.WithError(err).Error("Lock acquire failed, releasing task")
		d.release(ctx, job, d.Policy.delayForAttempt(job.Attempt), logger)
		return
	}
	if !acquired {
		logger.Info("Task already being processed elsewhere, skipping")
		return
	}
	defer d.Lock.Release(ctx, taskLockKey(job.TaskID), token)

	// Guard 1: campaign pause flag, cached with a short TTL. A paused
	// campaign yields cooperatively; the task is neither failed nor lost.
	paused, campaign, err := d.campaignPaused(ctx, job.CampaignID)
	if err != nil {
		logger.WithError(err).Error("Pause check failed, releasing task")
		d.release(ctx, job, d.Policy.delayForAttempt(job.Attempt), logger)
		return
	}
	if campaign == nil {
		logger.Warn("Campaign gone, marking task failed")
		d.markFailed(job.TaskID, "failed", ReasonCampaignMissing, logger)
		return
	}
	if paused {
		logger.Info("Campaign paused, releasing task")
		d.release(ctx, job, d.Policy.PauseReleaseDelay, logger)
		return
	}

	// Guard 2+3: fresh reload. A missing row or a non-pending status means
	// the task was handled elsewhere; this attempt silently stands down.
	task, err := d.Store.GetTask(job.TaskID)
	if err != nil {
		logger.WithError(err).Error("Task reload failed, releasing")
		d.release(ctx, job, d.Policy.delayForAttempt(job.Attempt), logger)
		return
	}
	if task == nil {
		logger.Info("Task row gone, nothing to do")
		return
	}
	if task.Status != models.TaskPending {
		logger.WithField("status", task.Status).Info("Task already processed, skipping")
		return
	}

	// Guard 4+5: recipient must exist, have a phone number and not have
	// opted out. These are configuration failures, recorded without retry.
	contact, err := d.Store.GetContact(task.ContactID)
	if err != nil {
		logger.WithError(err).Error("Contact lookup failed, releasing")
		d.release(ctx, job, d.Policy.delayForAttempt(job.Attempt), logger)
		return
	}
	if contact == nil || contact.WaID == "" {
		d.markFailed(job.TaskID, "failed", ReasonContactMissing, logger)
		return
	}
	if contact.OptedOut {
		d.markFailed(job.TaskID, "skipped", ReasonOptedOut, logger)
		return
	}

	// Guard 6: a campaign without a resolvable template is operator error.
	if campaign.TemplateID == "" {
		d.markFailed(job.TaskID, "failed", ReasonTemplateMissing, logger)
		return
	}
	template, err := d.Store.GetTemplate(campaign.TemplateID)
	if err != nil {
		logger.WithError(err).Error("Template lookup failed, releasing")
		d.release(ctx, job, d.Policy.delayForAttempt(job.Attempt), logger)
		return
	}
	if template == nil {
		d.markFailed(job.TaskID, "failed", ReasonTemplateMissing, logger)
		return
	}

	// Retry-storm protection for the whole task class.
	if allowed, _ := d.Breaker.Allow(ctx, ClassCampaign); !allowed {
		logger.Warn("Campaign dispatch breaker open, deferring task")
		d.release(ctx, job, d.Policy.delayForAttempt(job.Attempt), logger)
		return
	}

	send, err := d.buildSend(campaign, contact, task, template)
	if err != nil {
		// Broken parameter configuration fails the task, not the worker.
		logger.WithError(err).Warn("Campaign parameters unrenderable")
		d.markFailed(job.TaskID, "failed", err.Error(), logger)
		return
	}

	result := d.Sender.SendTemplate(send)
	if result.Success {
		ok, err := d.Store.MarkTaskSent(job.TaskID, result.MessageID)
		if err != nil {
			logger.WithError(err).Error("Failed to persist sent status")
			return
		}
		if !ok {
			logger.Warn("Task resolved concurrently after send")
			return
		}
		logger.WithField("message_id", result.MessageID).Info("Campaign message sent")
		return
	}

	_ = d.Breaker.RecordFailure(ctx, ClassCampaign)
	logger.WithFields(log.Fields{
		"http_status": result.HTTPStatus,
		"error":       result.ErrorMessage,
	}).Warn("Campaign send failed")
	d.failAndMaybeRetry(ctx, job, logger, result.ErrorMessage)
}

// campaignPaused answers the pause guard from cache when fresh, falling
// back to storage and repopulating the flag. Stale "not paused" reads are
// acceptable: the worst case is one extra send before the pause lands.
func (d *CampaignDispatcher) campaignPaused(ctx context.Context, campaignID uint) (bool, *models.Campaign, error) {
	if paused, found, err := d.Cache.GetBool(ctx, PauseFlagKey(campaignID)); err == nil && found {
		if !paused {
			campaign, err := d.Store.GetCampaign(campaignID)
			return false, campaign, err
		}
		// Paused per cache; the campaign row is not needed to yield.
		return true, &models.Campaign{ID: campaignID}, nil
	}

	campaign, err := d.Store.GetCampaign(campaignID)
	if err != nil || campaign == nil {
		return false, campaign, err
	}
	_ = d.Cache.SetBool(ctx, PauseFlagKey(campaignID), campaign.Paused, d.Policy.PauseCheckTTL)
	return campaign.Paused, campaign, nil
}

// buildSend renders the campaign parameter definition against the
// per-contact payload and assembles the template send.
func (d *CampaignDispatcher) buildSend(campaign *models.Campaign, contact *models.Contact, task *models.CampaignRecipientTask, template *models.Template) (whatsapp.TemplateSend, error) {
	meta, err := whatsapp.ParseComponents(template.Components)
	if err != nil {
		return whatsapp.TemplateSend{}, err
	}

	payload := map[string]interface{}{
		"contact": map[string]interface{}{
			"name":  contact.Name,
			"wa_id": contact.WaID,
		},
		"campaign": map[string]interface{}{
			"name": campaign.Name,
		},
	}

	bodyParams, err := fields.RenderParamArray(payload, campaign.ParamsJSON)
	if err != nil {
		return whatsapp.TemplateSend{}, err
	}

	return whatsapp.TemplateSend{
		To:           contact.WaID,
		Name:         template.Name,
		Language:     template.Language,
		HeaderFormat: meta.HeaderFormat,
		HeaderLink:   campaign.HeaderLink,
		BodyParams:   bodyParams,
		Buttons:      meta.Buttons,
		FlowContext: map[string]interface{}{
			"campaign_id": campaign.ID,
			"task_id":     task.ID,
			"tenant_id":   task.TenantID,
		},
	}, nil
}

func (d *CampaignDispatcher) markFailed(taskID uint, messageStatus, reason string, logger *log.Entry) {
	ok, err := d.Store.MarkTaskFailed(taskID, messageStatus, reason)
	if err != nil {
		logger.WithError(err).Error("Failed to persist failure status")
		return
	}
	if ok {
		logger.WithField("reason", reason).Warn("Task failed")
	}
}

// failAndMaybeRetry records the failure and, while attempts remain, flips
// the task back to pending and releases it with the scheduled backoff.
// Exhausted tasks stay permanently failed.
func (d *CampaignDispatcher) failAndMaybeRetry(ctx context.Context, job queue.Job, logger *log.Entry, reason string) {
	d.markFailed(job.TaskID, "failed", reason, logger)

	nextAttempt := job.Attempt + 1
	if nextAttempt >= d.Policy.MaxAttempts {
		logger.WithField("attempts", nextAttempt).Error("Task permanently failed")
		return
	}

	if err := d.Store.RequeueTask(job.TaskID); err != nil {
		logger.WithError(err).Error("Failed to requeue task for retry")
		return
	}
	retry := job
	retry.Attempt = nextAttempt
	d.release(ctx, retry, d.Policy.delayForAttempt(job.Attempt), logger)
}

func (d *CampaignDispatcher) release(ctx context.Context, job queue.Job, delay time.Duration, logger *log.Entry) {
	if err := d.Queue.Release(ctx, d.QueueName, job, delay); err != nil {
		logger.WithError(err).Error("Failed to release task back onto the queue")
	}
}
