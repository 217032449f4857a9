// Package dispatch holds the two queue-driven orchestrators: one send per
// campaign recipient and one send per inbound webhook delivery. Both share
// the same shape: entry guards, render, one provider call, one conditional
// row mutation, and a bounded retry/backoff policy. Nothing escapes a unit
// uncaught.
package dispatch

import (
	"fmt"
	"time"

	"github.com/akunesiateam/akunchatlagi-sub002/internal/models"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/whatsapp"
)

// Sender is the external send adapter boundary. It always returns a result;
// provider rejections are values, not errors.
type Sender interface {
	SendTemplate(t whatsapp.TemplateSend) whatsapp.SendResult
}

// TaskStore is the persistence the campaign orchestrator needs.
type TaskStore interface {
	GetTask(id uint) (*models.CampaignRecipientTask, error)
	MarkTaskSent(id uint, messageID string) (bool, error)
	MarkTaskFailed(id uint, messageStatus, reason string) (bool, error)
	RequeueTask(id uint) error
	GetCampaign(id uint) (*models.Campaign, error)
	GetContact(id uint) (*models.Contact, error)
	GetTemplate(id string) (*models.Template, error)
}

// LogStore is the persistence the webhook orchestrator needs.
type LogStore interface {
	GetActivityLog(id uint) (*models.WebhookActivityLog, error)
	GetEndpoint(id uint) (*models.WebhookEndpoint, error)
	GetTemplate(id string) (*models.Template, error)
	SaveExtractedFields(logID uint, extractedJSON, recipientPhone string) error
	ResolveLogSent(logID uint, messageID string, metaUpdates map[string]interface{}) (bool, error)
	ResolveLogFailed(logID uint, reason string, metaUpdates map[string]interface{}) (bool, error)
}

// Guard rejection reasons surfaced to tenants. Kept stable because UI
// listings and older log rows match on them.
const (
	ReasonContactMissing  = "Contact not found or missing phone number"
	ReasonOptedOut        = "User has opted-out for campaign"
	ReasonCampaignMissing = "Campaign not found"
	ReasonTemplateMissing = "Template not found for campaign"

	ReasonEndpointMissing  = "Webhook endpoint not found"
	ReasonEndpointInactive = "Webhook endpoint is inactive"
	ReasonNoTemplate       = "No template linked to webhook endpoint"
	ReasonNoRecipient      = "Recipient phone number not found in payload"
)

// Breaker task classes.
const (
	ClassCampaign = "campaign"
	ClassWebhook  = "webhook"
)

// PauseFlagKey is the cache key for a campaign's pause flag. The API layer
// drops it on pause/resume so workers converge within one cache TTL.
func PauseFlagKey(campaignID uint) string {
	return fmt.Sprintf("campaign:%d:paused", campaignID)
}

func taskLockKey(taskID uint) string {
	return fmt.Sprintf("campaign-task:%d", taskID)
}

func logLockKey(logID uint) string {
	return fmt.Sprintf("webhook-log:%d", logID)
}

// Policy is the shared retry/backoff configuration.
type Policy struct {
	MaxAttempts       int
	ReleaseDelays     []time.Duration
	PauseCheckTTL     time.Duration
	PauseReleaseDelay time.Duration
	LockTTL           time.Duration
}

// delayForAttempt returns the release delay before the given retry attempt
// (0-based). Attempts past the configured schedule reuse the last delay.
func (p Policy) delayForAttempt(attempt int) time.Duration {
	if len(p.ReleaseDelays) == 0 {
		return 5 * time.Minute
	}
	if attempt >= len(p.ReleaseDelays) {
		return p.ReleaseDelays[len(p.ReleaseDelays)-1]
	}
	return p.ReleaseDelays[attempt]
}
