// Seeds a local database with demo data: a synced-looking template, a few
// contacts, a draft campaign and a receiver endpoint with field mappings.
// Intended for development environments only.
package main

import (
	"encoding/json"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/akunesiateam/akunchatlagi-sub002/internal/config"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/database"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/models"
)

func main() {
	cfg := config.LoadConfig()

	db, err := database.InitGorm(cfg)
	if err != nil {
		log.WithError(err).Fatal("Database initialization failed")
	}

	template := models.Template{
		ID:       "demo-order-confirmation",
		Name:     "order_confirmation",
		Language: "en_US",
		Category: "UTILITY",
		Status:   "APPROVED",
		Components: `[{"type":"BODY","text":"Hi {{1}}, your order {{2}} for {{3}} was received."},` +
			`{"type":"FOOTER","text":"Reply STOP to unsubscribe"}]`,
	}
	if err := db.Save(&template).Error; err != nil {
		log.WithError(err).Fatal("Failed to seed template")
	}

	contacts := []models.Contact{
		{TenantID: 1, WaID: "5511999990001", Name: "Ana Lima"},
		{TenantID: 1, WaID: "5511999990002", Name: "Ben Costa"},
		{TenantID: 1, WaID: "5511999990003", Name: "Clara Reis", OptedOut: true},
	}
	for _, contact := range contacts {
		var existing int64
		db.Model(&models.Contact{}).Where("wa_id = ?", contact.WaID).Count(&existing)
		if existing > 0 {
			continue
		}
		if err := db.Create(&contact).Error; err != nil {
			log.WithError(err).WithField("wa_id", contact.WaID).Error("Failed to seed contact")
		}
	}

	campaign := models.Campaign{
		TenantID:   1,
		Name:       "Welcome blast",
		TemplateID: template.ID,
		ParamsJSON: `["{contact.name}", "DEMO-1", "$0.00"]`,
		Status:     "draft",
	}
	var campaignCount int64
	db.Model(&models.Campaign{}).Where("name = ?", campaign.Name).Count(&campaignCount)
	if campaignCount == 0 {
		if err := db.Create(&campaign).Error; err != nil {
			log.WithError(err).Fatal("Failed to seed campaign")
		}
	}

	mappings, _ := json.Marshal([]models.FieldMapping{
		{SourcePath: "customer.name", TemplateVariable: "name", Transformations: []models.Transformation{{Type: "title_case"}}},
		{SourcePath: "order.id", TemplateVariable: "order_id", Transformations: []models.Transformation{{Type: "prefix", Options: map[string]string{"text": "#"}}}},
		{SourcePath: "order.total", TemplateVariable: "total", Transformations: []models.Transformation{{Type: "format_currency"}}},
	})
	endpoint := models.WebhookEndpoint{
		TenantID:      1,
		UUID:          uuid.NewString(),
		Name:          "Demo order hook",
		Method:        "POST",
		Active:        true,
		TemplateID:    template.ID,
		PhonePath:     "customer.phone",
		FieldMappings: string(mappings),
	}
	var endpointCount int64
	db.Model(&models.WebhookEndpoint{}).Where("name = ?", endpoint.Name).Count(&endpointCount)
	if endpointCount == 0 {
		if err := db.Create(&endpoint).Error; err != nil {
			log.WithError(err).Fatal("Failed to seed webhook endpoint")
		}
		log.WithField("url", "/hooks/"+endpoint.UUID).Info("Receiver endpoint seeded")
	}

	log.Info("Seed complete")
}
