// Package durable provides the durable-execution substrate for call
// workflows: an event-sourced journal plus a per-call actor runtime. State
// accumulated between yield points survives process restarts because every
// inbound signal and completed activity is journaled before it takes effect,
// and open journals are replayed through the reducer on recovery.
package durable

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EntryKind classifies journal entries.
type EntryKind string

const (
	// EntryStarted opens a call journal; its payload is the CallContext.
	EntryStarted EntryKind = "started"
	// EntrySignal records an inbound signal before delivery.
	EntrySignal EntryKind = "signal"
	// EntryActivity checkpoints a completed activity invocation.
	EntryActivity EntryKind = "activity"
	// EntryClosed seals a journal; closed calls are not recovered.
	EntryClosed EntryKind = "closed"
)

// Entry is one journal record. Entries for a call are strictly ordered by Seq.
type Entry struct {
	Seq        int             `json:"seq"`
	Kind       EntryKind       `json:"kind"`
	Channel    string          `json:"channel,omitempty"` // signal channel or activity name
	Payload    json.RawMessage `json:"payload,omitempty"`
	Error      string          `json:"error,omitempty"`     // recorded permanent activity failure
	ErrorKind  string          `json:"errorKind,omitempty"` // apperr kind of that failure
	RecordedAt time.Time       `json:"recordedAt"`
}

// Store persists call journals. Implementations must make Append atomic per
// entry; entries for one call are only ever appended by that call's session.
type Store interface {
	Append(ctx context.Context, callID uuid.UUID, entry Entry) error
	Load(ctx context.Context, callID uuid.UUID) ([]Entry, error)
	// ListOpen returns calls with a started entry but no closed entry.
	ListOpen(ctx context.Context) ([]uuid.UUID, error)
}

// MemoryStore is an in-process Store used in tests and single-node setups.
type MemoryStore struct {
	mu       sync.RWMutex
	journals map[uuid.UUID][]Entry
}

// NewMemoryStore creates an empty in-memory journal store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{journals: make(map[uuid.UUID][]Entry)}
}

func (s *MemoryStore) Append(_ context.Context, callID uuid.UUID, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journals[callID] = append(s.journals[callID], entry)
	return nil
}

func (s *MemoryStore) Load(_ context.Context, callID uuid.UUID) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	journal := s.journals[callID]
	out := make([]Entry, len(journal))
	copy(out, journal)
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *MemoryStore) ListOpen(_ context.Context) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var open []uuid.UUID
	for callID, journal := range s.journals {
		closed := false
		for _, entry := range journal {
			if entry.Kind == EntryClosed {
				closed = true
				break
			}
		}
		if !closed {
			open = append(open, callID)
		}
	}
	return open, nil
}

var _ Store = (*MemoryStore)(nil)
