// Package service implements the rule lifecycle: draft CRUD, publish, clone,
// rollback, and snapshots. Publish is serialized per scheme so two concurrent
// publishes cannot interleave into a version with partial rule content.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"arbiter/internal/rules/expr"
	"arbiter/internal/rules/models"
	id "arbiter/pkg/domain"
	dErrors "arbiter/pkg/domain-errors"
	"arbiter/pkg/platform/sentinel"
	"arbiter/pkg/requestcontext"
)

// Store is the persistence contract the service needs.
type Store interface {
	CreateRule(ctx context.Context, rule *models.Rule) error
	GetRule(ctx context.Context, ruleID id.RuleID) (*models.Rule, error)
	UpdateRule(ctx context.Context, rule *models.Rule) error
	DeleteRule(ctx context.Context, ruleID id.RuleID) error
	SetActive(ctx context.Context, ruleID id.RuleID, active bool) error
	ListRules(ctx context.Context, schemeID id.SchemeID) ([]models.Rule, error)
	SaveVersion(ctx context.Context, version *models.RuleVersion) error
	GetVersion(ctx context.Context, schemeID id.SchemeID, version int) (*models.RuleVersion, error)
	LatestVersion(ctx context.Context, schemeID id.SchemeID) (*models.RuleVersion, error)
	SaveSnapshot(ctx context.Context, snapshot *models.RuleSetSnapshot) error
	GetSnapshot(ctx context.Context, schemeID id.SchemeID, name string) (*models.RuleSetSnapshot, error)
}

type Service struct {
	store  Store
	logger *slog.Logger

	// publishMu serializes publish/rollback per scheme. The store's version
	// check is the backstop for multi-instance deployments.
	mu        sync.Mutex
	publishMu map[id.SchemeID]*sync.Mutex
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("rule store is required")
	}
	svc := &Service{
		store:     store,
		publishMu: make(map[id.SchemeID]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func (s *Service) schemeMu(schemeID id.SchemeID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	mu, ok := s.publishMu[schemeID]
	if !ok {
		mu = &sync.Mutex{}
		s.publishMu[schemeID] = mu
	}
	return mu
}

// CreateRule adds a draft rule. The expression is compiled immediately so an
// author learns about a malformed rule at save time, long before publish.
func (s *Service) CreateRule(ctx context.Context, rule *models.Rule) (*models.Rule, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if _, err := expr.Compile(rule.Expression); err != nil {
		return nil, err
	}
	if rule.ID.IsNil() {
		rule.ID = id.NewRuleID()
	}
	now := requestcontext.Now(ctx)
	rule.CreatedAt = now
	rule.UpdatedAt = now
	if err := s.store.CreateRule(ctx, rule); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "rule already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create rule")
	}
	return rule, nil
}

// UpdateRule mutates a draft. Rules frozen into a published version are
// immutable; edit them through Clone.
func (s *Service) UpdateRule(ctx context.Context, rule *models.Rule) (*models.Rule, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if _, err := expr.Compile(rule.Expression); err != nil {
		return nil, err
	}
	rule.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.UpdateRule(ctx, rule); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "rule not found")
		case errors.Is(err, sentinel.ErrInvalidState):
			return nil, dErrors.New(dErrors.CodeInvalidInput, "rule is published; clone it to edit")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "update rule")
	}
	return rule, nil
}

// DeleteRule removes a draft. Published rules cannot be deleted; deactivate
// them instead so history stays reconstructible.
func (s *Service) DeleteRule(ctx context.Context, ruleID id.RuleID) error {
	if err := s.store.DeleteRule(ctx, ruleID); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return dErrors.New(dErrors.CodeNotFound, "rule not found")
		case errors.Is(err, sentinel.ErrInvalidState):
			return dErrors.New(dErrors.CodeInvalidInput, "rule is published; deactivate it instead")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "delete rule")
	}
	return nil
}

// SetActive toggles whether the rule participates in the next publish. The
// flag is lifecycle metadata, not rule content, so it is permitted on
// published rules without breaking version immutability.
func (s *Service) SetActive(ctx context.Context, ruleID id.RuleID, active bool) error {
	if err := s.store.SetActive(ctx, ruleID, active); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "rule not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "set rule active")
	}
	return nil
}

// GetRule fetches one rule.
func (s *Service) GetRule(ctx context.Context, ruleID id.RuleID) (*models.Rule, error) {
	rule, err := s.store.GetRule(ctx, ruleID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "rule not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get rule")
	}
	return rule, nil
}

// ListRules returns the scheme's working rule set (drafts and published).
func (s *Service) ListRules(ctx context.Context, schemeID id.SchemeID) ([]models.Rule, error) {
	rules, err := s.store.ListRules(ctx, schemeID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list rules")
	}
	return rules, nil
}

// Clone duplicates a rule as an editable draft with a fresh id.
func (s *Service) Clone(ctx context.Context, ruleID id.RuleID) (*models.Rule, error) {
	src, err := s.GetRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	clone := *src
	clone.ID = id.NewRuleID()
	clone.Name = src.Name + " (copy)"
	clone.CreatedAt = now
	clone.UpdatedAt = now
	if err := s.store.CreateRule(ctx, &clone); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "clone rule")
	}
	return &clone, nil
}

// Publish freezes all active rules of the scheme into a new immutable
// version. Every expression is re-validated first: a rule that fails static
// checking rejects the whole publish.
func (s *Service) Publish(ctx context.Context, schemeID id.SchemeID) (*models.RuleVersion, error) {
	if schemeID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "scheme_id is required")
	}

	mu := s.schemeMu(schemeID)
	mu.Lock()
	defer mu.Unlock()

	rules, err := s.store.ListRules(ctx, schemeID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list rules for publish")
	}

	var active []models.Rule
	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		if _, err := expr.Compile(rule.Expression); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation,
				fmt.Sprintf("rule %q fails validation", rule.Name))
		}
		active = append(active, rule)
	}
	if len(active) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "scheme has no active rules to publish")
	}

	return s.saveNextVersion(ctx, schemeID, active, 0)
}

// Rollback re-activates a prior version's rule content as a new version.
// History is never mutated: the result is a fresh version whose content
// equals the target.
func (s *Service) Rollback(ctx context.Context, schemeID id.SchemeID, targetVersion int) (*models.RuleVersion, error) {
	mu := s.schemeMu(schemeID)
	mu.Lock()
	defer mu.Unlock()

	target, err := s.store.GetVersion(ctx, schemeID, targetVersion)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "version %d not found", targetVersion)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get rollback target")
	}

	return s.saveNextVersion(ctx, schemeID, target.Rules, target.Version)
}

func (s *Service) saveNextVersion(ctx context.Context, schemeID id.SchemeID, rules []models.Rule, rolledBackFrom int) (*models.RuleVersion, error) {
	latest := 0
	current, err := s.store.LatestVersion(ctx, schemeID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "latest version")
	}
	if current != nil {
		latest = current.Version
	}

	version := &models.RuleVersion{
		ID:             id.NewVersionID(),
		SchemeID:       schemeID,
		Version:        latest + 1,
		Rules:          rules,
		PublishedAt:    requestcontext.Now(ctx),
		RolledBackFrom: rolledBackFrom,
	}
	if err := s.store.SaveVersion(ctx, version); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "concurrent publish detected; retry")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "save version")
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "rule version published",
			"scheme_id", schemeID,
			"version", version.Version,
			"rules", len(version.Rules),
			"rolled_back_from", rolledBackFrom,
		)
	}
	return version, nil
}

// Snapshot tags a version with a name for reproducible retrieval.
func (s *Service) Snapshot(ctx context.Context, schemeID id.SchemeID, version int, name string) (*models.RuleSetSnapshot, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "snapshot name is required")
	}
	target, err := s.GetVersion(ctx, schemeID, version)
	if err != nil {
		return nil, err
	}
	snapshot := &models.RuleSetSnapshot{
		Name:      name,
		SchemeID:  schemeID,
		VersionID: target.ID,
		Version:   target.Version,
		CreatedAt: requestcontext.Now(ctx),
	}
	if err := s.store.SaveSnapshot(ctx, snapshot); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Newf(dErrors.CodeConflict, "snapshot %q already exists", name)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "save snapshot")
	}
	return snapshot, nil
}

// GetSnapshot retrieves a named snapshot.
func (s *Service) GetSnapshot(ctx context.Context, schemeID id.SchemeID, name string) (*models.RuleSetSnapshot, error) {
	snapshot, err := s.store.GetSnapshot(ctx, schemeID, name)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "snapshot %q not found", name)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get snapshot")
	}
	return snapshot, nil
}

// GetVersion fetches a published version by its tag.
func (s *Service) GetVersion(ctx context.Context, schemeID id.SchemeID, version int) (*models.RuleVersion, error) {
	v, err := s.store.GetVersion(ctx, schemeID, version)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "version %d not found", version)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get version")
	}
	return v, nil
}

// ActiveVersion returns the scheme's currently active (latest) version.
func (s *Service) ActiveVersion(ctx context.Context, schemeID id.SchemeID) (*models.RuleVersion, error) {
	v, err := s.store.LatestVersion(ctx, schemeID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "scheme has no published rule version")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "active version")
	}
	return v, nil
}
