// Package store persists rule drafts, published versions, and snapshots.
// Stores return sentinel errors; the service layer translates them into
// domain errors.
package store

import (
	"context"
	"sync"

	"arbiter/internal/rules/models"
	id "arbiter/pkg/domain"
	"arbiter/pkg/platform/sentinel"
)

type snapshotKey struct {
	scheme id.SchemeID
	name   string
}

// InMemory keeps all rule state in process. Used by unit tests and local
// development; the Postgres store is its production counterpart.
type InMemory struct {
	mu        sync.RWMutex
	rules     map[id.RuleID]*models.Rule
	published map[id.RuleID]bool
	versions  map[id.SchemeID][]*models.RuleVersion
	snapshots map[snapshotKey]*models.RuleSetSnapshot
}

func NewInMemory() *InMemory {
	return &InMemory{
		rules:     make(map[id.RuleID]*models.Rule),
		published: make(map[id.RuleID]bool),
		versions:  make(map[id.SchemeID][]*models.RuleVersion),
		snapshots: make(map[snapshotKey]*models.RuleSetSnapshot),
	}
}

func (s *InMemory) CreateRule(_ context.Context, rule *models.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rules[rule.ID]; exists {
		return sentinel.ErrConflict
	}
	cp := *rule
	s.rules[rule.ID] = &cp
	return nil
}

func (s *InMemory) GetRule(_ context.Context, ruleID id.RuleID) (*models.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[ruleID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *rule
	return &cp, nil
}

func (s *InMemory) UpdateRule(_ context.Context, rule *models.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[rule.ID]; !ok {
		return sentinel.ErrNotFound
	}
	if s.published[rule.ID] {
		return sentinel.ErrInvalidState
	}
	cp := *rule
	s.rules[rule.ID] = &cp
	return nil
}

func (s *InMemory) DeleteRule(_ context.Context, ruleID id.RuleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[ruleID]; !ok {
		return sentinel.ErrNotFound
	}
	if s.published[ruleID] {
		return sentinel.ErrInvalidState
	}
	delete(s.rules, ruleID)
	return nil
}

// SetActive toggles the active flag. Allowed on published rules: the flag
// controls inclusion in the next publish and does not touch frozen versions.
func (s *InMemory) SetActive(_ context.Context, ruleID id.RuleID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[ruleID]
	if !ok {
		return sentinel.ErrNotFound
	}
	rule.Active = active
	return nil
}

func (s *InMemory) ListRules(_ context.Context, schemeID id.SchemeID) ([]models.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Rule
	for _, rule := range s.rules {
		if rule.SchemeID == schemeID {
			out = append(out, *rule)
		}
	}
	return out, nil
}

// SaveVersion appends a published version. The version number must be exactly
// one past the scheme's latest; anything else is a concurrent-publish race.
// The rules contained in the version are marked published.
func (s *InMemory) SaveVersion(_ context.Context, version *models.RuleVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest := 0
	if versions := s.versions[version.SchemeID]; len(versions) > 0 {
		latest = versions[len(versions)-1].Version
	}
	if version.Version != latest+1 {
		return sentinel.ErrConflict
	}
	cp := *version
	cp.Rules = append([]models.Rule(nil), version.Rules...)
	s.versions[version.SchemeID] = append(s.versions[version.SchemeID], &cp)
	for _, rule := range version.Rules {
		if _, ok := s.rules[rule.ID]; ok {
			s.published[rule.ID] = true
		}
	}
	return nil
}

func (s *InMemory) GetVersion(_ context.Context, schemeID id.SchemeID, version int) (*models.RuleVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.versions[schemeID] {
		if v.Version == version {
			return copyVersion(v), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// LatestVersion returns the scheme's active (most recently published) version.
func (s *InMemory) LatestVersion(_ context.Context, schemeID id.SchemeID) (*models.RuleVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions := s.versions[schemeID]
	if len(versions) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return copyVersion(versions[len(versions)-1]), nil
}

func (s *InMemory) SaveSnapshot(_ context.Context, snapshot *models.RuleSetSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := snapshotKey{scheme: snapshot.SchemeID, name: snapshot.Name}
	if _, exists := s.snapshots[key]; exists {
		return sentinel.ErrConflict
	}
	cp := *snapshot
	s.snapshots[key] = &cp
	return nil
}

func (s *InMemory) GetSnapshot(_ context.Context, schemeID id.SchemeID, name string) (*models.RuleSetSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.snapshots[snapshotKey{scheme: schemeID, name: name}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *snapshot
	return &cp, nil
}

func copyVersion(v *models.RuleVersion) *models.RuleVersion {
	cp := *v
	cp.Rules = append([]models.Rule(nil), v.Rules...)
	return &cp
}
