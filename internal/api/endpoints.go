package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/akunesiateam/akunchatlagi-sub002/internal/models"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/store"
)

type EndpointHandler struct {
	Store *store.Store
}

func NewEndpointHandler(st *store.Store) *EndpointHandler {
	return &EndpointHandler{Store: st}
}

func (h *EndpointHandler) GetEndpoints(c *gin.Context) {
	var endpoints []models.WebhookEndpoint
	if err := h.Store.DB().Order("created_at DESC").Find(&endpoints).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if endpoints == nil {
		endpoints = []models.WebhookEndpoint{}
	}
	c.JSON(http.StatusOK, endpoints)
}

type CreateEndpointRequest struct {
	Name          string `json:"name" binding:"required"`
	Method        string `json:"method"`
	Secret        string `json:"secret"`
	TemplateID    string `json:"template_id"`
	PhonePath     string `json:"phone_path"`
	FieldMappings string `json:"field_mappings"`
	TenantID      uint   `json:"tenant_id"`
}

// CreateEndpoint issues the endpoint its permanent UUID. The receiving URL
// never changes afterwards, so integrations configured once keep working.
func (h *EndpointHandler) CreateEndpoint(c *gin.Context) {
	var req CreateEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.FieldMappings != "" {
		probe := models.WebhookEndpoint{FieldMappings: req.FieldMappings}
		if _, err := probe.ParseFieldMappings(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "field_mappings is not a valid mapping list"})
			return
		}
	}

	method := req.Method
	if method == "" {
		method = "POST"
	}

	endpoint := models.WebhookEndpoint{
		TenantID:      req.TenantID,
		UUID:          uuid.NewString(),
		Name:          req.Name,
		Secret:        req.Secret,
		Method:        method,
		Active:        true,
		TemplateID:    req.TemplateID,
		PhonePath:     req.PhonePath,
		FieldMappings: req.FieldMappings,
	}
	if err := h.Store.DB().Create(&endpoint).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create endpoint"})
		return
	}
	c.JSON(http.StatusCreated, endpoint)
}

type UpdateEndpointRequest struct {
	Name          *string `json:"name"`
	Method        *string `json:"method"`
	Secret        *string `json:"secret"`
	Active        *bool   `json:"active"`
	TemplateID    *string `json:"template_id"`
	PhonePath     *string `json:"phone_path"`
	FieldMappings *string `json:"field_mappings"`
}

// UpdateEndpoint changes endpoint configuration. The UUID is immutable and
// silently ignored if sent.
func (h *EndpointHandler) UpdateEndpoint(c *gin.Context) {
	endpoint, ok := h.loadEndpoint(c)
	if !ok {
		return
	}

	var req UpdateEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Method != nil {
		updates["method"] = *req.Method
	}
	if req.Secret != nil {
		updates["secret"] = *req.Secret
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}
	if req.TemplateID != nil {
		updates["template_id"] = *req.TemplateID
	}
	if req.PhonePath != nil {
		updates["phone_path"] = *req.PhonePath
	}
	if req.FieldMappings != nil {
		probe := models.WebhookEndpoint{FieldMappings: *req.FieldMappings}
		if _, err := probe.ParseFieldMappings(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "field_mappings is not a valid mapping list"})
			return
		}
		updates["field_mappings"] = *req.FieldMappings
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}

	if err := h.Store.DB().Model(&models.WebhookEndpoint{}).Where("id = ?", endpoint.ID).
		Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update endpoint"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "Endpoint updated"})
}

func (h *EndpointHandler) DeleteEndpoint(c *gin.Context) {
	endpoint, ok := h.loadEndpoint(c)
	if !ok {
		return
	}

	if err := h.Store.DB().Delete(&models.WebhookEndpoint{}, endpoint.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete endpoint"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "Endpoint deleted"})
}

// GetEndpointLogs lists the activity log of one endpoint, newest first,
// optionally filtered by send status.
func (h *EndpointHandler) GetEndpointLogs(c *gin.Context) {
	endpoint, ok := h.loadEndpoint(c)
	if !ok {
		return
	}

	query := h.Store.DB().Where("webhook_endpoint_id = ?", endpoint.ID)
	if status := c.Query("status"); status != "" {
		query = query.Where("send_status = ?", status)
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	var logs []models.WebhookActivityLog
	if err := query.Order("id DESC").Limit(limit).Find(&logs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if logs == nil {
		logs = []models.WebhookActivityLog{}
	}
	c.JSON(http.StatusOK, logs)
}

func (h *EndpointHandler) loadEndpoint(c *gin.Context) (*models.WebhookEndpoint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid endpoint id"})
		return nil, false
	}
	endpoint, err := h.Store.GetEndpoint(uint(id))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	if endpoint == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Webhook endpoint not found"})
		return nil, false
	}
	return endpoint, true
}
