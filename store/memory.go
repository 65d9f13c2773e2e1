package store

import (
	"context"
	"sort"
	"sync"

	"github.com/hupe1980/teammesh/core"
)

// MemoryStore is a volatile Store keeping runs in a process local map. It is
// safe for concurrent use and best suited for tests and short lived
// processes. Returned runs are clones.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*Run)}
}

// Publish implements core.EventSink by recording ev.
func (s *MemoryStore) Publish(_ context.Context, ev core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := s.getOrCreateLocked(ev)

	switch ev.Type {
	case core.EventRunStarted:
		run.StartedAt = ev.Timestamp
		if ev.Message != nil {
			run.Request = ev.Message.Content
			run.Messages = append(run.Messages, *ev.Message)
		}
	case core.EventDecision:
		if ev.Decision != nil {
			run.Decisions = append(run.Decisions, decisionFromEvent(ev))
		}
	case core.EventMessage:
		if ev.Message != nil {
			run.Messages = append(run.Messages, *ev.Message)
		}
	case core.EventRunEnded:
		run.State = ev.State
		run.Turns = ev.Step
		run.Error = errorText(ev)
		ended := ev.Timestamp
		run.EndedAt = &ended
	}

	return nil
}

// GetRun implements Store.
func (s *MemoryStore) GetRun(_ context.Context, runID string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}
	return run.clone(), nil
}

// ListRuns implements Store.
func (s *MemoryStore) ListRuns(_ context.Context, sessionID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Run
	for _, r := range s.runs {
		if sessionID != "" && r.SessionID != sessionID {
			continue
		}
		h := *r
		h.Decisions, h.Messages = nil, nil
		if r.EndedAt != nil {
			t := *r.EndedAt
			h.EndedAt = &t
		}
		out = append(out, h)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close implements Store. It is a no-op.
func (s *MemoryStore) Close() error { return nil }

// getOrCreateLocked returns the run of ev, creating it on first sight; caller
// must hold the write lock.
func (s *MemoryStore) getOrCreateLocked(ev core.Event) *Run {
	run, ok := s.runs[ev.RunID]
	if !ok {
		run = &Run{ID: ev.RunID, SessionID: ev.SessionID, State: StateRunning, StartedAt: ev.Timestamp}
		s.runs[ev.RunID] = run
	}
	return run
}
