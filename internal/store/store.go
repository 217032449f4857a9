// Package store is the persistence layer for dispatch work. Every status
// transition is a single conditional update so concurrent workers can never
// double-resolve a task or regress a terminal status.
package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/akunesiateam/akunchatlagi-sub002/internal/models"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

// --- Campaigns & contacts ---

func (s *Store) GetCampaign(id uint) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := s.db.First(&campaign, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &campaign, nil
}

func (s *Store) SetCampaignPaused(id uint, paused bool) error {
	return s.db.Model(&models.Campaign{}).Where("id = ?", id).
		Update("paused", paused).Error
}

func (s *Store) GetContact(id uint) (*models.Contact, error) {
	var contact models.Contact
	if err := s.db.First(&contact, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &contact, nil
}

// SetContactOptOut flips the opt-out flag for every contact row holding the
// given WhatsApp id. Missing contacts are not an error; the keyword may
// arrive from a number this platform never messaged.
func (s *Store) SetContactOptOut(waID string, optedOut bool) error {
	return s.db.Model(&models.Contact{}).Where("wa_id = ?", waID).
		Update("opted_out", optedOut).Error
}

// --- Templates ---

func (s *Store) GetTemplate(id string) (*models.Template, error) {
	var template models.Template
	if err := s.db.First(&template, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &template, nil
}

// --- Campaign recipient tasks ---

// GetTask reloads a task fresh from storage. A missing row returns nil
// without error; the dispatcher treats that as "handled elsewhere".
func (s *Store) GetTask(id uint) (*models.CampaignRecipientTask, error) {
	var task models.CampaignRecipientTask
	if err := s.db.First(&task, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

// MarkTaskSent transitions pending -> sent. Returns false when the task was
// no longer pending, in which case nothing was written.
func (s *Store) MarkTaskSent(id uint, messageID string) (bool, error) {
	result := s.db.Model(&models.CampaignRecipientTask{}).
		Where("id = ? AND status = ?", id, models.TaskPending).
		Updates(map[string]interface{}{
			"status":              models.TaskSent,
			"message_status":      "sent",
			"whatsapp_message_id": messageID,
			"response_message":    "",
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkTaskFailed transitions pending -> failed with a reason. A task already
// resolved as sent is left untouched.
func (s *Store) MarkTaskFailed(id uint, messageStatus, reason string) (bool, error) {
	result := s.db.Model(&models.CampaignRecipientTask{}).
		Where("id = ? AND status = ?", id, models.TaskPending).
		Updates(map[string]interface{}{
			"status":           models.TaskFailed,
			"message_status":   messageStatus,
			"response_message": reason,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// RequeueTask flips a failed task back to pending ahead of a retry release.
// This is the only path that reverses a failure.
func (s *Store) RequeueTask(id uint) error {
	return s.db.Model(&models.CampaignRecipientTask{}).
		Where("id = ? AND status = ?", id, models.TaskFailed).
		Update("status", models.TaskPending).Error
}

func (s *Store) PendingTasks(campaignID uint) ([]models.CampaignRecipientTask, error) {
	var tasks []models.CampaignRecipientTask
	err := s.db.Where("campaign_id = ? AND status = ?", campaignID, models.TaskPending).
		Find(&tasks).Error
	return tasks, err
}

// --- Webhook endpoints & activity logs ---

func (s *Store) GetEndpoint(id uint) (*models.WebhookEndpoint, error) {
	var endpoint models.WebhookEndpoint
	if err := s.db.First(&endpoint, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &endpoint, nil
}

func (s *Store) GetEndpointByUUID(uuid string) (*models.WebhookEndpoint, error) {
	var endpoint models.WebhookEndpoint
	if err := s.db.First(&endpoint, "uuid = ?", uuid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &endpoint, nil
}

func (s *Store) GetActivityLog(id uint) (*models.WebhookActivityLog, error) {
	var logRow models.WebhookActivityLog
	if err := s.db.First(&logRow, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &logRow, nil
}

func (s *Store) CreateActivityLog(logRow *models.WebhookActivityLog) error {
	return s.db.Create(logRow).Error
}

// SaveExtractedFields persists partial progress before the send so the
// extraction outcome is visible even when the send later fails.
func (s *Store) SaveExtractedFields(logID uint, extractedJSON, recipientPhone string) error {
	return s.db.Model(&models.WebhookActivityLog{}).Where("id = ?", logID).
		Updates(map[string]interface{}{
			"extracted_fields": extractedJSON,
			"recipient_phone":  recipientPhone,
		}).Error
}

// ResolveLogSent marks the log row sent and merges the given keys into
// meta_response. A row already sent is left untouched.
func (s *Store) ResolveLogSent(logID uint, messageID string, metaUpdates map[string]interface{}) (bool, error) {
	return s.resolveLog(logID, func(logRow *models.WebhookActivityLog, now time.Time) {
		logRow.SendStatus = models.SendSent
		logRow.WhatsAppMessageID = messageID
		logRow.FailureReason = ""
		logRow.ProcessedAt = &now
	}, metaUpdates)
}

// ResolveLogFailed marks the log row failed with a reason and merges the
// given keys into meta_response. A row already sent is left untouched.
func (s *Store) ResolveLogFailed(logID uint, reason string, metaUpdates map[string]interface{}) (bool, error) {
	return s.resolveLog(logID, func(logRow *models.WebhookActivityLog, now time.Time) {
		logRow.SendStatus = models.SendFailed
		logRow.FailureReason = reason
		logRow.ProcessedAt = &now
	}, metaUpdates)
}

// resolveLog performs the read-merge-write cycle for a log resolution inside
// a transaction. The sent status is terminal; everything else may be retried.
func (s *Store) resolveLog(logID uint, mutate func(*models.WebhookActivityLog, time.Time), metaUpdates map[string]interface{}) (bool, error) {
	resolved := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var logRow models.WebhookActivityLog
		if err := tx.First(&logRow, logID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if logRow.SendStatus == models.SendSent {
			return nil
		}

		if err := logRow.MergeMetaResponse(metaUpdates); err != nil {
			return err
		}
		mutate(&logRow, time.Now())

		if err := tx.Save(&logRow).Error; err != nil {
			return fmt.Errorf("save activity log %d: %w", logID, err)
		}
		resolved = true
		return nil
	})
	return resolved, err
}

// UpdateDeliveryStatus records a provider delivery callback (sent, delivered,
// read, failed) against the log row holding the message id.
func (s *Store) UpdateDeliveryStatus(messageID, status string) error {
	now := time.Now()
	return s.db.Model(&models.WebhookActivityLog{}).
		Where("whatsapp_message_id = ?", messageID).
		Updates(map[string]interface{}{
			"delivery_status":   status,
			"status_updated_at": now,
		}).Error
}
