package durable

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"voicedesk_backend/platform/apperr"

	"github.com/google/uuid"
)

// Session is a call's handle on its journal. It owns the append cursor and,
// during recovery, a replay cursor over previously checkpointed activities.
// The activity gateway consumes it as its checkpointer; all methods are called
// from the call's single actor goroutine, the mutex only guards against the
// runtime closing the journal during shutdown.
type Session struct {
	store  Store
	callID uuid.UUID

	mu     sync.Mutex
	seq    int
	replay []Entry // pending activity checkpoints, consumed in order
	closed bool
}

func newSession(store Store, callID uuid.UUID) *Session {
	return &Session{store: store, callID: callID}
}

// restoreSession rebuilds a session from a loaded journal: the append cursor
// continues after the last entry and the replay cursor serves every activity
// checkpoint back in order.
func restoreSession(store Store, callID uuid.UUID, journal []Entry) *Session {
	s := newSession(store, callID)
	for _, entry := range journal {
		if entry.Seq >= s.seq {
			s.seq = entry.Seq + 1
		}
		if entry.Kind == EntryActivity {
			s.replay = append(s.replay, entry)
		}
	}
	return s
}

// Replaying reports whether unconsumed activity checkpoints remain.
func (s *Session) Replaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.replay) > 0
}

// NextRecorded serves the next checkpointed result for the named activity. A
// name mismatch at the cursor means the code path diverged from the journal;
// the remaining checkpoints are discarded and execution continues live.
func (s *Session) NextRecorded(name string) (json.RawMessage, string, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.replay) == 0 {
		return nil, "", "", false
	}

	head := s.replay[0]
	if head.Channel != name {
		s.replay = nil
		return nil, "", "", false
	}

	s.replay = s.replay[1:]
	return head.Payload, head.Error, head.ErrorKind, true
}

// Record journals a completed activity invocation. Failures keep their error
// kind so a replay surfaces them as the original error, not a generic one.
func (s *Session) Record(ctx context.Context, name string, result any, actErr error) error {
	var payload json.RawMessage
	var errMsg, errKind string

	if actErr != nil {
		errMsg = actErr.Error()
		errKind = apperr.GetKind(actErr).String()
	} else if result != nil {
		encoded, err := json.Marshal(result)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, "encode activity checkpoint", err).WithOp(name)
		}
		payload = encoded
	}

	return s.append(ctx, Entry{
		Kind:      EntryActivity,
		Channel:   name,
		Payload:   payload,
		Error:     errMsg,
		ErrorKind: errKind,
	})
}

// RecordSignal journals an inbound signal before it is delivered.
func (s *Session) RecordSignal(ctx context.Context, channel string, payload json.RawMessage) error {
	return s.append(ctx, Entry{
		Kind:    EntrySignal,
		Channel: channel,
		Payload: payload,
	})
}

func (s *Session) recordStarted(ctx context.Context, payload json.RawMessage) error {
	return s.append(ctx, Entry{Kind: EntryStarted, Payload: payload})
}

// close seals the journal so the call is skipped by future recovery scans.
func (s *Session) close(ctx context.Context, outcome string) error {
	return s.append(ctx, Entry{Kind: EntryClosed, Channel: outcome})
}

func (s *Session) append(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return apperr.New(apperr.KindConflict, "journal already closed")
	}
	entry.Seq = s.seq
	s.seq++
	if entry.Kind == EntryClosed {
		s.closed = true
	}
	s.mu.Unlock()

	entry.RecordedAt = time.Now().UTC()
	return s.store.Append(ctx, s.callID, entry)
}
