package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/akunesiateam/akunchatlagi-sub002/internal/cache"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/config"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/database"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/dispatch"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/queue"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/store"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/whatsapp"
)

func main() {
	cfg := config.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.WithError(err).Fatal("Redis connection failed")
	}
	kv := cache.NewRedisCache(rdb, cfg.CacheKeyPrefix)
	lock := cache.NewRedisLock(rdb, cfg.CacheKeyPrefix)
	breaker := cache.NewRedisBreaker(rdb, cfg.CacheKeyPrefix, cfg.BreakerThreshold, cfg.BreakerWindow)

	policy := dispatch.Policy{
		MaxAttempts:       cfg.MaxSendAttempts,
		ReleaseDelays:     cfg.ReleaseDelays,
		PauseCheckTTL:     cfg.PauseCheckTTL,
		PauseReleaseDelay: cfg.PauseReleaseDelay,
		LockTTL:           cfg.LockTTL,
	}
	sender := whatsapp.NewClient(cfg)

	campaignDispatcher := &dispatch.CampaignDispatcher{
		Store:     st,
		Sender:    sender,
		Queue:     rabbit,
		Cache:     kv,
		Lock:      lock,
		Breaker:   breaker,
		Policy:    policy,
		QueueName: cfg.CampaignQueue,
	}
	webhookDispatcher := &dispatch.WebhookDispatcher{
		Store:     st,
		Sender:    sender,
		Queue:     rabbit,
		Lock:      lock,
		Breaker:   breaker,
		Policy:    policy,
		QueueName: cfg.WebhookQueue,
	}

	// The webhook consumer needs its own channel; consuming two queues over
	// one channel with Qos(1) would let a slow campaign send starve webhooks.
	webhookRabbit, err := queue.NewRabbitQueue(cfg.RabbitURL)
	if err != nil {
		log.WithError(err).Fatal("RabbitMQ connection failed")
	}
	defer webhookRabbit.Close()

	errs := make(chan error, 2)
	go func() {
		errs <- rabbit.Consume(ctx, cfg.CampaignQueue, campaignDispatcher.Process)
	}()
	go func() {
		errs <- webhookRabbit.Consume(ctx, cfg.WebhookQueue, webhookDispatcher.Process)
	}()

	log.WithFields(log.Fields{
		"campaign_queue": cfg.CampaignQueue,
		"webhook_queue":  cfg.WebhookQueue,
	}).Info("Dispatch worker started")

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err := <-errs:
		if err != nil && err != context.Canceled {
			log.WithError(err).Fatal("Consumer stopped")
		}
	}
}
