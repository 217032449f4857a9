package main

import (
	"context"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/akunesiateam/akunchatlagi-sub002/internal/api"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/cache"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/config"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/database"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/queue"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/store"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/webhook"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/whatsapp"
)

func main() {
	cfg := config.LoadConfig()
	ctx := context.Background()

	db, err := database.InitGorm(cfg)
	if err != nil {
		log.WithError(err).Fatal("Database initialization failed")
	}
	st := store.NewStore(db)

	rabbit, err := queue.NewRabbitQueue(cfg.RabbitURL)
	if err != nil {
		log.WithError(err).Fatal("RabbitMQ connection failed")
	}
	defer rabbit.Close()
	if err := rabbit.DeclareWorkQueue(cfg.CampaignQueue); err != nil {
		log.WithError(err).Fatal("Queue declaration failed")
	}
	if err := rabbit.DeclareWorkQueue(cfg.WebhookQueue); err != nil {
		log.WithError(err).Fatal("Queue declaration failed")
	}

	rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.WithError(err).Fatal("Redis connection failed")
	}
	kv := cache.NewRedisCache(rdb, cfg.CacheKeyPrefix)

	whatsappClient := whatsapp.NewClient(cfg)

	webhookHandler := webhook.NewHandler(cfg, st, rabbit)
	campaignHandler := api.NewCampaignHandler(st, rabbit, kv, cfg.CampaignQueue)
	contactHandler := api.NewContactHandler(st)
	endpointHandler := api.NewEndpointHandler(st)
	templateHandler := api.NewTemplateHandler(st, whatsappClient, cfg)

	r := gin.Default()

	// CORS Middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Webhook-Secret")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Meta platform webhook
	r.GET("/webhook", webhookHandler.VerifyPlatformWebhook)
	r.POST("/webhook", webhookHandler.HandlePlatformCallback)

	// Tenant receiver endpoints
	r.Any("/hooks/:uuid", webhookHandler.Receive)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/campaigns", campaignHandler.GetCampaigns)
		apiGroup.POST("/campaigns", campaignHandler.CreateCampaign)
		apiGroup.POST("/campaigns/:id/start", campaignHandler.StartCampaign)
		apiGroup.POST("/campaigns/:id/pause", campaignHandler.PauseCampaign)
		apiGroup.POST("/campaigns/:id/resume", campaignHandler.ResumeCampaign)
		apiGroup.GET("/campaigns/:id/tasks", campaignHandler.GetCampaignTasks)
		apiGroup.POST("/campaigns/:id/requeue", campaignHandler.RequeueFailed)

		apiGroup.GET("/contacts", contactHandler.GetContacts)
		apiGroup.POST("/contacts", contactHandler.CreateContact)
		apiGroup.PUT("/contacts/:waId", contactHandler.UpdateContact)
		apiGroup.DELETE("/contacts/:waId", contactHandler.DeleteContact)
		apiGroup.GET("/contacts/export", contactHandler.ExportContacts)

		apiGroup.GET("/templates", templateHandler.GetTemplates)
		apiGroup.POST("/templates/sync", templateHandler.SyncTemplates)

		apiGroup.GET("/webhooks", endpointHandler.GetEndpoints)
		apiGroup.POST("/webhooks", endpointHandler.CreateEndpoint)
		apiGroup.PUT("/webhooks/:id", endpointHandler.UpdateEndpoint)
		apiGroup.DELETE("/webhooks/:id", endpointHandler.DeleteEndpoint)
		apiGroup.GET("/webhooks/:id/logs", endpointHandler.GetEndpointLogs)
	}

	log.WithField("port", cfg.Port).Info("Server starting")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.WithError(err).Fatal("Failed to run server")
	}
}
