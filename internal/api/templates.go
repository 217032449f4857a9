package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/akunesiateam/akunchatlagi-sub002/internal/config"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/models"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/store"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/whatsapp"
)

type TemplateHandler struct {
	Store  *store.Store
	Client *whatsapp.Client
	Config *config.Config
}

func NewTemplateHandler(st *store.Store, client *whatsapp.Client, cfg *config.Config) *TemplateHandler {
	return &TemplateHandler{Store: st, Client: client, Config: cfg}
}

// GetTemplates returns stored templates from the local database.
func (h *TemplateHandler) GetTemplates(c *gin.Context) {
	var templates []models.Template
	if err := h.Store.DB().Find(&templates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if templates == nil {
		templates = []models.Template{}
	}
	c.JSON(http.StatusOK, templates)
}

// SyncTemplates fetches the WABA template list from Meta and upserts it
// locally. Campaign and webhook sends render against this local copy.
func (h *TemplateHandler) SyncTemplates(c *gin.Context) {
	if h.Config.WhatsAppBusinessAccountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "WABA_ID not configured"})
		return
	}

	metaTemplates, err := h.Client.GetTemplates()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch templates from Meta: " + err.Error()})
		return
	}

	syncedCount := 0
	for _, mt := range metaTemplates {
		componentsJSON := "[]"
		if len(mt.Components) > 0 {
			componentsJSON = string(mt.Components)
		}

		template := models.Template{
			ID:         mt.ID,
			Name:       mt.Name,
			Language:   mt.Language,
			Category:   mt.Category,
			Status:     mt.Status,
			Components: componentsJSON,
		}
		if err := h.Store.DB().Save(&template).Error; err != nil {
			log.WithError(err).WithField("template", mt.Name).Error("Failed to save template")
			continue
		}
		syncedCount++
	}

	c.JSON(http.StatusOK, gin.H{"status": "Templates synced", "count": syncedCount})
}
