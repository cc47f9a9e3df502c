package durable

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"voicedesk_backend/internal/calls/domain"
	"voicedesk_backend/platform/apperr"
	"voicedesk_backend/platform/logger"

	"github.com/google/uuid"
)

// fakeWorkflow records signals and terminates on the call-end channel.
type fakeWorkflow struct {
	mu        sync.Mutex
	signals   []string
	done      bool
	finalized chan struct{}
}

func newFakeWorkflow() *fakeWorkflow {
	return &fakeWorkflow{finalized: make(chan struct{})}
}

func (f *fakeWorkflow) Begin(context.Context) error { return nil }

func (f *fakeWorkflow) HandleSignal(_ context.Context, channel string, payload json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, channel+":"+string(payload))
	if channel == "call-end" {
		f.done = true
	}
	return nil
}

func (f *fakeWorkflow) HandleQuery(string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.signals))
	copy(out, f.signals)
	return out, nil
}

func (f *fakeWorkflow) Done() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

func (f *fakeWorkflow) ExpireCeiling() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.done = true
}

func (f *fakeWorkflow) Finalize(context.Context) (string, error) {
	close(f.finalized)
	return "completed", nil
}

type fakeFactory struct {
	mu        sync.Mutex
	workflows map[uuid.UUID]*fakeWorkflow
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{workflows: make(map[uuid.UUID]*fakeWorkflow)}
}

func (f *fakeFactory) build(call domain.CallContext, _ *Session) Workflow {
	f.mu.Lock()
	defer f.mu.Unlock()
	wf := newFakeWorkflow()
	f.workflows[call.CallID] = wf
	return wf
}

func (f *fakeFactory) get(callID uuid.UUID) *fakeWorkflow {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.workflows[callID]
}

func testCall() domain.CallContext {
	return domain.CallContext{
		CallID:    uuid.New(),
		TenantID:  uuid.New(),
		LeadID:    uuid.New(),
		Phone:     "+15551234567",
		Provider:  "vapi",
		StartedAt: time.Now().UTC(),
	}
}

func waitRetired(t *testing.T, r *Runtime, callID uuid.UUID) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.RLock()
		_, retired := r.retired[callID]
		r.mu.RUnlock()
		if retired {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("call never retired")
}

func TestRuntimeDeliversSignalsInOrder(t *testing.T) {
	factory := newFakeFactory()
	r := NewRuntime(NewMemoryStore(), factory.build, Options{}, logger.New("development"))
	defer r.Shutdown(time.Second)

	call := testCall()
	ctx := context.Background()
	if err := r.StartCall(ctx, call); err != nil {
		t.Fatalf("StartCall: %v", err)
	}

	for i := 0; i < 20; i++ {
		payload := json.RawMessage(fmt.Sprintf(`%d`, i))
		if err := r.SendSignal(ctx, call.CallID, "transcript", payload); err != nil {
			t.Fatalf("SendSignal %d: %v", i, err)
		}
	}
	if err := r.SendSignal(ctx, call.CallID, "call-end", nil); err != nil {
		t.Fatalf("SendSignal call-end: %v", err)
	}

	wf := factory.get(call.CallID)
	select {
	case <-wf.finalized:
	case <-time.After(2 * time.Second):
		t.Fatal("workflow never finalized")
	}

	wf.mu.Lock()
	defer wf.mu.Unlock()
	if len(wf.signals) != 21 {
		t.Fatalf("received %d signals, want 21", len(wf.signals))
	}
	for i := 0; i < 20; i++ {
		want := fmt.Sprintf("transcript:%d", i)
		if wf.signals[i] != want {
			t.Errorf("signal %d = %q, want %q", i, wf.signals[i], want)
		}
	}
}

func TestRuntimeRejectsDuplicateCalls(t *testing.T) {
	factory := newFakeFactory()
	r := NewRuntime(NewMemoryStore(), factory.build, Options{}, logger.New("development"))
	defer r.Shutdown(time.Second)

	call := testCall()
	ctx := context.Background()
	if err := r.StartCall(ctx, call); err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	if err := r.StartCall(ctx, call); apperr.GetKind(err) != apperr.KindConflict {
		t.Errorf("duplicate StartCall = %v, want conflict", err)
	}
}

func TestRuntimeEnforcesCallCapacity(t *testing.T) {
	factory := newFakeFactory()
	r := NewRuntime(NewMemoryStore(), factory.build, Options{MaxConcurrentCalls: 1}, logger.New("development"))
	defer r.Shutdown(time.Second)

	ctx := context.Background()
	if err := r.StartCall(ctx, testCall()); err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	if err := r.StartCall(ctx, testCall()); apperr.GetKind(err) != apperr.KindUnavailable {
		t.Errorf("over-capacity StartCall = %v, want unavailable", err)
	}
}

func TestRuntimeAnswersQueriesAfterRetirement(t *testing.T) {
	factory := newFakeFactory()
	r := NewRuntime(NewMemoryStore(), factory.build, Options{}, logger.New("development"))
	defer r.Shutdown(time.Second)

	call := testCall()
	ctx := context.Background()
	if err := r.StartCall(ctx, call); err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	_ = r.SendSignal(ctx, call.CallID, "transcript", json.RawMessage(`"hi"`))
	_ = r.SendSignal(ctx, call.CallID, "call-end", nil)

	waitRetired(t, r, call.CallID)

	result, err := r.Query(call.CallID, "call-status")
	if err != nil {
		t.Fatalf("Query after retirement: %v", err)
	}
	signals, ok := result.([]string)
	if !ok || len(signals) != 2 {
		t.Errorf("retired query result = %v", result)
	}

	// New signals for a completed call are conflicts, not not-found.
	err = r.SendSignal(ctx, call.CallID, "transcript", nil)
	if apperr.GetKind(err) != apperr.KindConflict {
		t.Errorf("signal after completion = %v, want conflict", err)
	}
}

func TestRuntimeSignalForUnknownCall(t *testing.T) {
	factory := newFakeFactory()
	r := NewRuntime(NewMemoryStore(), factory.build, Options{}, logger.New("development"))
	defer r.Shutdown(time.Second)

	err := r.SendSignal(context.Background(), uuid.New(), "transcript", nil)
	if apperr.GetKind(err) != apperr.KindNotFound {
		t.Errorf("signal for unknown call = %v, want not found", err)
	}
}

func TestRuntimeRetiredEvictionIsFIFO(t *testing.T) {
	factory := newFakeFactory()
	r := NewRuntime(NewMemoryStore(), factory.build, Options{MaxRetiredInstances: 2}, logger.New("development"))
	defer r.Shutdown(time.Second)

	ctx := context.Background()
	var callIDs []uuid.UUID
	for i := 0; i < 3; i++ {
		call := testCall()
		callIDs = append(callIDs, call.CallID)
		if err := r.StartCall(ctx, call); err != nil {
			t.Fatalf("StartCall %d: %v", i, err)
		}
		_ = r.SendSignal(ctx, call.CallID, "call-end", nil)
		waitRetired(t, r, call.CallID)
	}

	if _, err := r.Query(callIDs[0], "call-status"); apperr.GetKind(err) != apperr.KindNotFound {
		t.Errorf("oldest retired call still queryable, err = %v", err)
	}
	if _, err := r.Query(callIDs[2], "call-status"); err != nil {
		t.Errorf("newest retired call not queryable: %v", err)
	}
}

func TestRuntimeRecoverReplaysJournaledSignals(t *testing.T) {
	store := NewMemoryStore()
	call := testCall()
	ctx := context.Background()

	// Simulate a prior process: journal a start and two signals, no close.
	sess := newSession(store, call.CallID)
	payload, _ := json.Marshal(call)
	_ = sess.recordStarted(ctx, payload)
	_ = sess.RecordSignal(ctx, "transcript", json.RawMessage(`"a"`))
	_ = sess.RecordSignal(ctx, "transcript", json.RawMessage(`"b"`))

	factory := newFakeFactory()
	r := NewRuntime(store, factory.build, Options{}, logger.New("development"))
	defer r.Shutdown(time.Second)

	if err := r.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for factory.get(call.CallID) == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	wf := factory.get(call.CallID)
	if wf == nil {
		t.Fatal("recovery never built the workflow")
	}

	for time.Now().Before(deadline) {
		wf.mu.Lock()
		n := len(wf.signals)
		wf.mu.Unlock()
		if n == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	wf.mu.Lock()
	defer wf.mu.Unlock()
	if len(wf.signals) != 2 || wf.signals[0] != `transcript:"a"` || wf.signals[1] != `transcript:"b"` {
		t.Errorf("replayed signals = %v", wf.signals)
	}
}

func TestRuntimeRecoverSkipsClosedJournals(t *testing.T) {
	store := NewMemoryStore()
	call := testCall()
	ctx := context.Background()

	sess := newSession(store, call.CallID)
	payload, _ := json.Marshal(call)
	_ = sess.recordStarted(ctx, payload)
	_ = sess.close(ctx, "completed")

	factory := newFakeFactory()
	r := NewRuntime(store, factory.build, Options{}, logger.New("development"))
	defer r.Shutdown(time.Second)

	if err := r.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if factory.get(call.CallID) != nil {
		t.Error("closed journal was recovered")
	}
}

func TestRuntimeRejectsCallsWhileDraining(t *testing.T) {
	factory := newFakeFactory()
	r := NewRuntime(NewMemoryStore(), factory.build, Options{}, logger.New("development"))

	r.Shutdown(10 * time.Millisecond)

	err := r.StartCall(context.Background(), testCall())
	if apperr.GetKind(err) != apperr.KindUnavailable {
		t.Errorf("StartCall while draining = %v, want unavailable", err)
	}
}

func TestRuntimeJournalsSignalsBeforeDelivery(t *testing.T) {
	store := NewMemoryStore()
	factory := newFakeFactory()
	r := NewRuntime(store, factory.build, Options{}, logger.New("development"))
	defer r.Shutdown(time.Second)

	call := testCall()
	ctx := context.Background()
	if err := r.StartCall(ctx, call); err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	if err := r.SendSignal(ctx, call.CallID, "transcript", json.RawMessage(`"x"`)); err != nil {
		t.Fatalf("SendSignal: %v", err)
	}

	journal, err := store.Load(ctx, call.CallID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	var found bool
	for _, entry := range journal {
		if entry.Kind == EntrySignal && entry.Channel == "transcript" {
			found = true
		}
	}
	if !found {
		t.Error("signal accepted but not journaled")
	}
}
