// Package calls wires the call-lifecycle module: durable runtime, activity
// gateway, outbound clients, HTTP handler, and the post-call queue client.
package calls

import (
	"context"
	"time"

	"voicedesk_backend/internal/archive"
	"voicedesk_backend/internal/automation"
	"voicedesk_backend/internal/calls/activity"
	"voicedesk_backend/internal/calls/analysis"
	"voicedesk_backend/internal/calls/durable"
	"voicedesk_backend/internal/calls/engine"
	"voicedesk_backend/internal/calls/handler"
	"voicedesk_backend/internal/calls/postcall"
	"voicedesk_backend/internal/calls/repository"
	"voicedesk_backend/internal/calls/service"
	"voicedesk_backend/internal/crm"
	"voicedesk_backend/internal/events"
	apphttp "voicedesk_backend/internal/http"
	"voicedesk_backend/internal/notification"
	"voicedesk_backend/internal/payments"
	"voicedesk_backend/internal/transfer"
	"voicedesk_backend/platform/config"
	"voicedesk_backend/platform/logger"
	"voicedesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config combines the configuration the calls module needs.
type Config interface {
	config.RuntimeConfig
	config.AnalysisConfig
	config.EmailConfig
	config.SMSConfig
	config.CRMConfig
	config.AutomationConfig
	config.PaymentConfig
	config.TransferConfig
	config.ArchiveConfig
	config.NotificationConfig
}

// Module is the calls bounded context.
type Module struct {
	handler *handler.Handler
	service *service.Service
	runtime *durable.Runtime
	repo    *repository.Repository
	acts    activity.Set
	log     *logger.Logger
}

// NewModule builds the module. The queue client may be nil in environments
// without Redis; post-call enqueueing then fails into the call's error count.
func NewModule(ctx context.Context, pool *pgxpool.Pool, bus events.Bus, queue *postcall.Client, cfg Config, val *validator.Validator, log *logger.Logger) (*Module, error) {
	repo := repository.New(pool)

	analyzer, err := analysis.New(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	archiver, err := archive.NewMinIOArchiver(cfg, log)
	if err != nil {
		return nil, err
	}

	emailSender := notification.NewEmailSender(cfg)
	smsClient := notification.NewSMSClient(cfg, log)

	acts := activity.Set{
		Analyzer:   analyzer,
		Calls:      repo,
		Leads:      repo,
		Notifier:   notification.New(emailSender, smsClient, cfg, log),
		CRM:        crm.NewClient(cfg, log),
		Automation: automation.NewClient(cfg, log),
		Payments:   payments.NewClient(cfg, log),
		Scheduler:  service.NewScheduler(repo, queue),
		Transfers:  transfer.NewClient(cfg, log),
		Archive:    archiver,
		Queue:      queue,
	}

	gateway := activity.NewGateway(activity.DefaultPolicy(), cfg.GetMaxConcurrentActivities(), log)
	factory := engine.NewFactory(gateway, acts, bus, log)

	runtime := durable.NewRuntime(durable.NewPostgresStore(pool), factory, durable.Options{
		Ceiling:             cfg.GetCallCeiling(),
		MaxConcurrentCalls:  cfg.GetMaxConcurrentCalls(),
		MaxRetiredInstances: cfg.GetMaxCachedInstances(),
	}, log)

	svc := service.New(runtime, repo, log)

	return &Module{
		handler: handler.New(svc, val),
		service: svc,
		runtime: runtime,
		repo:    repo,
		acts:    acts,
		log:     log,
	}, nil
}

// Name implements the HTTP module interface.
func (m *Module) Name() string { return "calls" }

// RegisterRoutes mounts the calls API and the provider webhook ingress.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/calls"))
	m.handler.RegisterWebhookRoutes(ctx.Webhooks)
}

// Recover resumes interrupted call workflows from their journals. Call this
// before serving traffic.
func (m *Module) Recover(ctx context.Context) error {
	return m.runtime.Recover(ctx)
}

// Shutdown drains the runtime, waiting up to grace for live calls to finish.
func (m *Module) Shutdown(grace time.Duration) {
	m.runtime.Shutdown(grace)
}

// Runtime exposes the durable runtime for operational introspection.
func (m *Module) Runtime() *durable.Runtime { return m.runtime }

// Repository exposes the module's repository for the worker process.
func (m *Module) Repository() *repository.Repository { return m.repo }

// Activities exposes the wired activity set for the worker process.
func (m *Module) Activities() activity.Set { return m.acts }

// EnsureArchiveBucket creates the archive bucket when archival is enabled.
func (m *Module) EnsureArchiveBucket(ctx context.Context) error {
	archiver, ok := m.acts.Archive.(*archive.MinIOArchiver)
	if !ok || archiver == nil {
		return nil
	}
	return archiver.EnsureBucketExists(ctx)
}
