// Package store persists decision results, overrides, and history entries.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"arbiter/internal/decision"
	id "arbiter/pkg/domain"
	"arbiter/pkg/platform/sentinel"
)

// InMemory keeps decision state in process for tests and local development.
type InMemory struct {
	mu        sync.RWMutex
	results   map[id.DecisionID]*decision.Result
	overrides map[id.DecisionID][]decision.Override
	history   map[id.DecisionID][]decision.HistoryEntry
}

func NewInMemory() *InMemory {
	return &InMemory{
		results:   make(map[id.DecisionID]*decision.Result),
		overrides: make(map[id.DecisionID][]decision.Override),
		history:   make(map[id.DecisionID][]decision.HistoryEntry),
	}
}

func (s *InMemory) SaveResult(_ context.Context, result *decision.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.results[result.ID]; exists {
		return sentinel.ErrConflict
	}
	cp := *result
	s.results[result.ID] = &cp
	return nil
}

func (s *InMemory) GetResult(_ context.Context, decisionID id.DecisionID) (*decision.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[decisionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *result
	return &cp, nil
}

func (s *InMemory) ListResults(_ context.Context, schemeID id.SchemeID, from, to time.Time) ([]decision.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []decision.Result
	for _, result := range s.results {
		if result.SchemeID != schemeID {
			continue
		}
		if result.CreatedAt.Before(from) || !result.CreatedAt.Before(to) {
			continue
		}
		out = append(out, *result)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemory) AppendOverride(_ context.Context, override *decision.Override, expectedSeq int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[override.DecisionID]; !ok {
		return sentinel.ErrNotFound
	}
	current := s.overrides[override.DecisionID]
	if len(current) != expectedSeq {
		return sentinel.ErrConflict
	}
	override.Seq = expectedSeq + 1
	s.overrides[override.DecisionID] = append(current, *override)
	return nil
}

func (s *InMemory) ListOverrides(_ context.Context, decisionID id.DecisionID) ([]decision.Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]decision.Override(nil), s.overrides[decisionID]...), nil
}

func (s *InMemory) AppendHistory(_ context.Context, entry decision.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[entry.DecisionID] = append(s.history[entry.DecisionID], entry)
	return nil
}

func (s *InMemory) ListHistory(_ context.Context, decisionID id.DecisionID) ([]decision.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]decision.HistoryEntry(nil), s.history[decisionID]...), nil
}
