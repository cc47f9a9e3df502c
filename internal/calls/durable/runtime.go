package durable

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"voicedesk_backend/internal/calls/domain"
	"voicedesk_backend/platform/apperr"
	"voicedesk_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Workflow is the reducer the runtime drives. One goroutine owns each
// workflow; HandleQuery is the only method that may be called from other
// goroutines and must synchronize internally.
type Workflow interface {
	// Begin runs the workflow's startup step. On permanent failure the
	// workflow marks itself done in a failed state.
	Begin(ctx context.Context) error
	// HandleSignal applies one journaled signal. Per-event processing
	// failures are absorbed into workflow state; a returned error means the
	// signal itself could not be decoded or journaled.
	HandleSignal(ctx context.Context, channel string, payload json.RawMessage) error
	// HandleQuery answers a synchronous read from a status snapshot.
	HandleQuery(channel string) (any, error)
	// Done reports whether the workflow has reached a terminal stage.
	Done() bool
	// ExpireCeiling ends the call because it hit the maximum duration.
	ExpireCeiling()
	// Finalize runs the completion path and returns the recorded outcome.
	Finalize(ctx context.Context) (string, error)
}

// Factory builds a workflow bound to its call context and journal session.
type Factory func(call domain.CallContext, sess *Session) Workflow

// Options tune the runtime's capacity and lifetimes.
type Options struct {
	// Ceiling is the maximum call duration measured from CallContext.StartedAt.
	Ceiling time.Duration
	// MaxConcurrentCalls caps live workflow goroutines.
	MaxConcurrentCalls int
	// MaxRetiredInstances caps completed workflows retained for late queries.
	MaxRetiredInstances int
	// InboxSize is the per-call signal buffer; senders block when it is full.
	InboxSize int
}

func (o Options) withDefaults() Options {
	if o.Ceiling <= 0 {
		o.Ceiling = time.Hour
	}
	if o.MaxConcurrentCalls <= 0 {
		o.MaxConcurrentCalls = 200
	}
	if o.MaxRetiredInstances <= 0 {
		o.MaxRetiredInstances = 1000
	}
	if o.InboxSize <= 0 {
		o.InboxSize = 64
	}
	return o
}

type signalEnvelope struct {
	channel string
	payload json.RawMessage
}

type instance struct {
	call  domain.CallContext
	wf    Workflow
	sess  *Session
	inbox chan signalEnvelope

	// sendMu orders the journal append and inbox send so delivery order
	// matches journal order.
	sendMu sync.Mutex
}

// Runtime hosts one actor goroutine per live call. Signals are journaled and
// then delivered through the call's inbox; queries read snapshots directly.
type Runtime struct {
	store   Store
	factory Factory
	opts    Options
	log     *logger.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.RWMutex
	live     map[uuid.UUID]*instance
	retired  map[uuid.UUID]*instance
	retireQ  []uuid.UUID
	draining bool
}

// NewRuntime creates a stopped-clean runtime. Call Recover before accepting
// traffic so interrupted calls resume first.
func NewRuntime(store Store, factory Factory, opts Options, log *logger.Logger) *Runtime {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runtime{
		store:   store,
		factory: factory,
		opts:    opts.withDefaults(),
		log:     log,
		baseCtx: ctx,
		cancel:  cancel,
		live:    make(map[uuid.UUID]*instance),
		retired: make(map[uuid.UUID]*instance),
	}
}

// StartCall opens a journal for the call and spawns its actor goroutine.
func (r *Runtime) StartCall(ctx context.Context, call domain.CallContext) error {
	payload, err := json.Marshal(call)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "encode call context", err).WithOp("durable.StartCall")
	}

	r.mu.Lock()
	if r.draining {
		r.mu.Unlock()
		return apperr.New(apperr.KindUnavailable, "runtime is shutting down")
	}
	if _, exists := r.live[call.CallID]; exists {
		r.mu.Unlock()
		return apperr.New(apperr.KindConflict, "call workflow already running")
	}
	if _, exists := r.retired[call.CallID]; exists {
		r.mu.Unlock()
		return apperr.New(apperr.KindConflict, "call workflow already completed")
	}
	if len(r.live) >= r.opts.MaxConcurrentCalls {
		r.mu.Unlock()
		return apperr.New(apperr.KindUnavailable, "call capacity reached")
	}

	sess := newSession(r.store, call.CallID)
	inst := &instance{
		call:  call,
		sess:  sess,
		wf:    r.factory(call, sess),
		inbox: make(chan signalEnvelope, r.opts.InboxSize),
	}
	r.live[call.CallID] = inst
	r.mu.Unlock()

	if err := sess.recordStarted(ctx, payload); err != nil {
		r.unregister(call.CallID, false)
		return err
	}

	r.wg.Add(1)
	go r.run(inst, nil)
	return nil
}

// SendSignal journals the signal and delivers it to the call's inbox. Delivery
// order for one call matches arrival order at this method.
func (r *Runtime) SendSignal(ctx context.Context, callID uuid.UUID, channel string, payload json.RawMessage) error {
	r.mu.RLock()
	inst, ok := r.live[callID]
	_, wasRetired := r.retired[callID]
	r.mu.RUnlock()

	if !ok {
		if wasRetired {
			return apperr.New(apperr.KindConflict, "call workflow already completed")
		}
		return apperr.New(apperr.KindNotFound, "no running workflow for call")
	}

	inst.sendMu.Lock()
	defer inst.sendMu.Unlock()

	if err := inst.sess.RecordSignal(ctx, channel, payload); err != nil {
		return err
	}

	select {
	case inst.inbox <- signalEnvelope{channel: channel, payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.baseCtx.Done():
		return apperr.New(apperr.KindUnavailable, "runtime is shutting down")
	}
}

// Query answers a synchronous read against a live or recently completed call.
func (r *Runtime) Query(callID uuid.UUID, channel string) (any, error) {
	r.mu.RLock()
	inst, ok := r.live[callID]
	if !ok {
		inst, ok = r.retired[callID]
	}
	r.mu.RUnlock()

	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "no workflow for call")
	}
	return inst.wf.HandleQuery(channel)
}

// Recover resumes every open journal: checkpointed activities are served from
// the journal instead of re-executing, journaled signals replay through the
// reducer, then the call continues live. Journals load concurrently since each
// call is independent.
func (r *Runtime) Recover(ctx context.Context) error {
	open, err := r.store.ListOpen(ctx)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for _, callID := range open {
		g.Go(func() error {
			return r.recoverOne(ctx, callID)
		})
	}
	return g.Wait()
}

func (r *Runtime) recoverOne(ctx context.Context, callID uuid.UUID) error {
	journal, err := r.store.Load(ctx, callID)
	if err != nil {
		return err
	}

	var call domain.CallContext
	var started bool
	var replaySignals []Entry
	for _, entry := range journal {
		switch entry.Kind {
		case EntryStarted:
			if err := json.Unmarshal(entry.Payload, &call); err != nil {
				return apperr.Wrap(apperr.KindInternal, "decode call context from journal", err).WithOp("durable.Recover")
			}
			started = true
		case EntrySignal:
			replaySignals = append(replaySignals, entry)
		}
	}
	if !started {
		r.log.Warn("skipping journal without started entry", "call_id", callID.String())
		return nil
	}

	sess := restoreSession(r.store, callID, journal)
	inst := &instance{
		call:  call,
		sess:  sess,
		wf:    r.factory(call, sess),
		inbox: make(chan signalEnvelope, r.opts.InboxSize),
	}

	r.mu.Lock()
	if _, exists := r.live[callID]; exists {
		r.mu.Unlock()
		return nil
	}
	r.live[callID] = inst
	r.mu.Unlock()

	r.log.WithCallID(callID.String()).Info("recovering call workflow",
		"journal_entries", len(journal), "replay_signals", len(replaySignals))

	r.wg.Add(1)
	go r.run(inst, replaySignals)
	return nil
}

// Shutdown stops accepting new calls and waits up to grace for live workflows
// to finish, then cancels them. Interrupted calls resume via Recover on the
// next start.
func (r *Runtime) Shutdown(grace time.Duration) {
	r.mu.Lock()
	r.draining = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		r.log.Warn("shutdown grace elapsed, interrupting live calls")
	}

	r.cancel()
	<-done
}

// CallInfo returns the call context for a live or retired workflow.
func (r *Runtime) CallInfo(callID uuid.UUID) (domain.CallContext, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if inst, ok := r.live[callID]; ok {
		return inst.call, true
	}
	if inst, ok := r.retired[callID]; ok {
		return inst.call, true
	}
	return domain.CallContext{}, false
}

// LiveCount reports the number of running call workflows.
func (r *Runtime) LiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.live)
}

func (r *Runtime) run(inst *instance, replaySignals []Entry) {
	defer r.wg.Done()

	callID := inst.call.CallID
	log := r.log.WithCallID(callID.String())
	ctx := r.baseCtx

	if err := inst.wf.Begin(ctx); err != nil {
		log.Error("workflow begin failed", "error", err.Error())
	}

	for _, sig := range replaySignals {
		if inst.wf.Done() {
			break
		}
		if err := inst.wf.HandleSignal(ctx, sig.Channel, sig.Payload); err != nil {
			log.Error("replayed signal failed", "channel", sig.Channel, "error", err.Error())
		}
	}

	deadline := inst.call.StartedAt.Add(r.opts.Ceiling)
	ceiling := time.NewTimer(time.Until(deadline))
	defer ceiling.Stop()

	for !inst.wf.Done() {
		select {
		case env := <-inst.inbox:
			if err := inst.wf.HandleSignal(ctx, env.channel, env.payload); err != nil {
				log.Error("signal failed", "channel", env.channel, "error", err.Error())
			}
		case <-ceiling.C:
			log.Info("call ceiling reached, ending call")
			inst.wf.ExpireCeiling()
		case <-ctx.Done():
			// Journal retains everything; the call resumes on recovery.
			r.unregister(callID, false)
			return
		}
	}

	outcome, err := inst.wf.Finalize(ctx)
	if err != nil {
		log.Error("workflow finalize failed", "outcome", outcome, "error", err.Error())
	}

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := inst.sess.close(closeCtx, outcome); err != nil {
		log.Error("failed to close journal", "error", err.Error())
	}

	r.unregister(callID, true)
	log.Info("call workflow finished", "outcome", outcome)
}

// unregister removes the call from the live set, optionally retiring it so
// late queries still answer from its final snapshot.
func (r *Runtime) unregister(callID uuid.UUID, retire bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.live[callID]
	delete(r.live, callID)
	if !retire || !ok {
		return
	}

	r.retired[callID] = inst
	r.retireQ = append(r.retireQ, callID)
	for len(r.retireQ) > r.opts.MaxRetiredInstances {
		evict := r.retireQ[0]
		r.retireQ = r.retireQ[1:]
		delete(r.retired, evict)
	}
}
