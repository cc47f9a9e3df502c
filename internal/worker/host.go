// Package worker composes the post-call processing host: the asynq consumer
// plus every outbound client the pipeline needs.
package worker

import (
	"context"

	"voicedesk_backend/internal/automation"
	"voicedesk_backend/internal/calls/analysis"
	"voicedesk_backend/internal/calls/postcall"
	"voicedesk_backend/internal/calls/repository"
	"voicedesk_backend/internal/crm"
	"voicedesk_backend/internal/events"
	"voicedesk_backend/internal/notification"
	"voicedesk_backend/platform/config"
	"voicedesk_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config combines the configuration the worker host needs.
type Config interface {
	config.SchedulerConfig
	config.AnalysisConfig
	config.EmailConfig
	config.SMSConfig
	config.CRMConfig
	config.AutomationConfig
	config.NotificationConfig
}

// Host owns the post-call queue consumer and its queue client.
type Host struct {
	worker *postcall.Worker
	queue  *postcall.Client
	log    *logger.Logger
}

// New builds the host. Redis is mandatory here; a worker without a queue has
// nothing to consume.
func New(ctx context.Context, pool *pgxpool.Pool, bus events.Bus, cfg Config, log *logger.Logger) (*Host, error) {
	repo := repository.New(pool)

	analyzer, err := analysis.New(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	queue, err := postcall.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	emailSender := notification.NewEmailSender(cfg)
	smsClient := notification.NewSMSClient(cfg, log)
	notifier := notification.New(emailSender, smsClient, cfg, log)

	processor := postcall.NewProcessor(
		analyzer,
		repo,
		notifier,
		crm.NewClient(cfg, log),
		automation.NewClient(cfg, log),
		repo,
		queue,
		cfg.GetIntegrationTargets(),
		bus,
		log,
	)

	consumer, err := postcall.NewWorker(cfg, processor, notifier, log)
	if err != nil {
		_ = queue.Close()
		return nil, err
	}

	return &Host{worker: consumer, queue: queue, log: log}, nil
}

// Run consumes the queue until ctx is cancelled.
func (h *Host) Run(ctx context.Context) {
	h.log.Info("post-call worker running")
	h.worker.Run(ctx)
}

// Close releases the queue client.
func (h *Host) Close() {
	_ = h.queue.Close()
}
