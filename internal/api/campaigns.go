// Package api is the management HTTP surface: campaigns, contacts, webhook
// endpoint configuration, templates and activity listings. Handlers stay
// thin; all dispatch semantics live in the worker.
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/akunesiateam/akunchatlagi-sub002/internal/cache"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/dispatch"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/models"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/queue"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/store"
)

type CampaignHandler struct {
	Store     *store.Store
	Queue     queue.TaskQueue
	Cache     cache.KeyValueCache
	QueueName string
}

func NewCampaignHandler(st *store.Store, q queue.TaskQueue, kv cache.KeyValueCache, queueName string) *CampaignHandler {
	return &CampaignHandler{Store: st, Queue: q, Cache: kv, QueueName: queueName}
}

func (h *CampaignHandler) GetCampaigns(c *gin.Context) {
	var campaigns []models.Campaign
	if err := h.Store.DB().Order("created_at DESC").Find(&campaigns).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if campaigns == nil {
		campaigns = []models.Campaign{}
	}
	c.JSON(http.StatusOK, campaigns)
}

type CreateCampaignRequest struct {
	Name       string `json:"name" binding:"required"`
	TemplateID string `json:"template_id" binding:"required"`
	ParamsJSON string `json:"params_json"`
	HeaderLink string `json:"header_link"`
	TenantID   uint   `json:"tenant_id"`
}

func (h *CampaignHandler) CreateCampaign(c *gin.Context) {
	var req CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	campaign := models.Campaign{
		TenantID:   req.TenantID,
		Name:       req.Name,
		TemplateID: req.TemplateID,
		ParamsJSON: req.ParamsJSON,
		HeaderLink: req.HeaderLink,
		Status:     "draft",
	}
	if err := h.Store.DB().Create(&campaign).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create campaign"})
		return
	}
	c.JSON(http.StatusCreated, campaign)
}

type StartCampaignRequest struct {
	ContactIDs []uint `json:"contact_ids" binding:"required"`
}

// StartCampaign creates one recipient task per contact and enqueues each.
// Contacts already holding a task for this campaign are skipped so a double
// start cannot double-send.
func (h *CampaignHandler) StartCampaign(c *gin.Context) {
	campaign, ok := h.loadCampaign(c)
	if !ok {
		return
	}

	var req StartCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	queued := 0
	for _, contactID := range req.ContactIDs {
		var existing int64
		h.Store.DB().Model(&models.CampaignRecipientTask{}).
			Where("campaign_id = ? AND contact_id = ?", campaign.ID, contactID).
			Count(&existing)
		if existing > 0 {
			continue
		}

		task := models.CampaignRecipientTask{
			CampaignID: campaign.ID,
			TenantID:   campaign.TenantID,
			ContactID:  contactID,
			Status:     models.TaskPending,
		}
		if err := h.Store.DB().Create(&task).Error; err != nil {
			log.WithError(err).WithField("contact_id", contactID).Error("Failed to create recipient task")
			continue
		}

		job := queue.Job{TaskID: task.ID, CampaignID: campaign.ID, TenantID: campaign.TenantID}
		if err := h.Queue.Publish(c.Request.Context(), h.QueueName, job); err != nil {
			log.WithError(err).WithField("task_id", task.ID).Error("Failed to enqueue recipient task")
			continue
		}
		queued++
	}

	h.Store.DB().Model(&models.Campaign{}).Where("id = ?", campaign.ID).Update("status", "running")
	c.JSON(http.StatusOK, gin.H{"status": "Campaign started", "queued": queued, "total": len(req.ContactIDs)})
}

// PauseCampaign sets the pause flag and drops its cache entry so workers see
// the change on their next check instead of after the cache TTL.
func (h *CampaignHandler) PauseCampaign(c *gin.Context) {
	h.setPaused(c, true, "Campaign paused")
}

func (h *CampaignHandler) ResumeCampaign(c *gin.Context) {
	h.setPaused(c, false, "Campaign resumed")
}

func (h *CampaignHandler) setPaused(c *gin.Context, paused bool, status string) {
	campaign, ok := h.loadCampaign(c)
	if !ok {
		return
	}

	if err := h.Store.SetCampaignPaused(campaign.ID, paused); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update campaign"})
		return
	}
	if err := h.Cache.Delete(c.Request.Context(), dispatch.PauseFlagKey(campaign.ID)); err != nil {
		// Workers still converge after the flag TTL expires.
		log.WithError(err).WithField("campaign_id", campaign.ID).Warn("Failed to invalidate pause flag")
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

// GetCampaignTasks lists the recipient tasks of one campaign, optionally
// filtered by status.
func (h *CampaignHandler) GetCampaignTasks(c *gin.Context) {
	campaign, ok := h.loadCampaign(c)
	if !ok {
		return
	}

	query := h.Store.DB().Where("campaign_id = ?", campaign.ID)
	if raw := c.Query("status"); raw != "" {
		status, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be an integer"})
			return
		}
		query = query.Where("status = ?", status)
	}

	var tasks []models.CampaignRecipientTask
	if err := query.Order("id").Find(&tasks).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if tasks == nil {
		tasks = []models.CampaignRecipientTask{}
	}
	c.JSON(http.StatusOK, tasks)
}

// RequeueFailed flips every failed task of a campaign back to pending and
// re-enqueues it. Manual recovery after a provider outage.
func (h *CampaignHandler) RequeueFailed(c *gin.Context) {
	campaign, ok := h.loadCampaign(c)
	if !ok {
		return
	}

	var tasks []models.CampaignRecipientTask
	if err := h.Store.DB().Where("campaign_id = ? AND status = ?", campaign.ID, models.TaskFailed).
		Find(&tasks).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	requeued := 0
	for _, task := range tasks {
		if err := h.Store.RequeueTask(task.ID); err != nil {
			log.WithError(err).WithField("task_id", task.ID).Error("Failed to requeue task")
			continue
		}
		job := queue.Job{TaskID: task.ID, CampaignID: campaign.ID, TenantID: campaign.TenantID}
		if err := h.Queue.Publish(c.Request.Context(), h.QueueName, job); err != nil {
			log.WithError(err).WithField("task_id", task.ID).Error("Failed to enqueue requeued task")
			continue
		}
		requeued++
	}
	c.JSON(http.StatusOK, gin.H{"status": "Failed tasks requeued", "requeued": requeued})
}

func (h *CampaignHandler) loadCampaign(c *gin.Context) (*models.Campaign, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid campaign id"})
		return nil, false
	}
	campaign, err := h.Store.GetCampaign(uint(id))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	if campaign == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Campaign not found"})
		return nil, false
	}
	return campaign, true
}
