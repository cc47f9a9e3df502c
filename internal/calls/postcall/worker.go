package postcall

import (
	"context"
	"fmt"

	"voicedesk_backend/internal/calls/activity"
	"voicedesk_backend/platform/config"
	"voicedesk_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Worker consumes the post-call queue.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor *Processor
	notifier  activity.Notifier
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, processor *Processor, notifier activity.Notifier, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		mux:       mux,
		processor: processor,
		notifier:  notifier,
		log:       log,
	}

	mux.HandleFunc(TaskPostCallProcess, w.handlePostCall)
	mux.HandleFunc(TaskFollowUpDue, w.handleFollowUpDue)

	return w, nil
}

func (w *Worker) handlePostCall(ctx context.Context, task *asynq.Task) error {
	job, err := ParsePostCallPayload(task)
	if err != nil {
		return err
	}
	return w.processor.Handle(ctx, job)
}

func (w *Worker) handleFollowUpDue(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseFollowUpDuePayload(task)
	if err != nil {
		return err
	}

	return w.notifier.SendNotification(ctx, activity.Notification{
		TenantID: payload.TenantID,
		LeadID:   payload.LeadID,
		CallID:   payload.CallID,
		Kind:     "follow_up_due",
		Subject:  "Follow-up due for lead",
		Body:     payload.Reason,
	})
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("post-call worker stopped", "error", err)
	}
}
