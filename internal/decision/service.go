package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"arbiter/internal/decision/metrics"
	"arbiter/internal/evaluator"
	"arbiter/internal/facts"
	"arbiter/internal/risk"
	"arbiter/internal/rules/models"
	id "arbiter/pkg/domain"
	dErrors "arbiter/pkg/domain-errors"
	"arbiter/pkg/platform/sentinel"
	"arbiter/pkg/requestcontext"
)

// VersionSource supplies frozen rule versions. The rules service implements it.
type VersionSource interface {
	ActiveVersion(ctx context.Context, schemeID id.SchemeID) (*models.RuleVersion, error)
	GetVersion(ctx context.Context, schemeID id.SchemeID, version int) (*models.RuleVersion, error)
}

// Assessor produces a banded risk assessment. The risk adapter implements it.
type Assessor interface {
	Assess(ctx context.Context, schemeID id.SchemeID, applicantID id.ApplicantID, f facts.Facts) (*risk.Assessment, error)
}

// Store persists results, overrides, and history. The ports package mirrors
// this contract for collaborators outside the decision package.
type Store interface {
	SaveResult(ctx context.Context, result *Result) error
	GetResult(ctx context.Context, decisionID id.DecisionID) (*Result, error)
	ListResults(ctx context.Context, schemeID id.SchemeID, from, to time.Time) ([]Result, error)
	AppendOverride(ctx context.Context, override *Override, expectedSeq int) error
	ListOverrides(ctx context.Context, decisionID id.DecisionID) ([]Override, error)
	AppendHistory(ctx context.Context, entry HistoryEntry) error
	ListHistory(ctx context.Context, decisionID id.DecisionID) ([]HistoryEntry, error)
}

// Dispatcher enqueues decided results downstream, at-least-once.
type Dispatcher interface {
	Dispatch(ctx context.Context, result *Result) error
}

// Service orchestrates one applicant evaluation: facts, rules, risk, policy,
// persistence, dispatch.
type Service struct {
	versions   VersionSource
	facts      facts.Provider
	assessor   Assessor
	store      Store
	dispatcher Dispatcher
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithDispatcher(d Dispatcher) Option {
	return func(s *Service) { s.dispatcher = d }
}

func NewService(versions VersionSource, provider facts.Provider, assessor Assessor, store Store, opts ...Option) (*Service, error) {
	if versions == nil {
		return nil, fmt.Errorf("version source is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("fact provider is required")
	}
	if assessor == nil {
		return nil, fmt.Errorf("risk assessor is required")
	}
	if store == nil {
		return nil, fmt.Errorf("decision store is required")
	}
	svc := &Service{
		versions: versions,
		facts:    provider,
		assessor: assessor,
		store:    store,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Evaluate runs the full pipeline against the scheme's active rule version
// and persists an immutable result plus its first history entry.
func (s *Service) Evaluate(ctx context.Context, applicantID id.ApplicantID, schemeID id.SchemeID) (*Result, error) {
	version, err := s.versions.ActiveVersion(ctx, schemeID)
	if err != nil {
		return nil, err
	}
	return s.evaluateAgainst(ctx, applicantID, version)
}

// EvaluateVersion runs the pipeline against a specific frozen version. The
// comparison engine uses it to replay historical applicants.
func (s *Service) EvaluateVersion(ctx context.Context, applicantID id.ApplicantID, schemeID id.SchemeID, versionTag int) (*Result, error) {
	version, err := s.versions.GetVersion(ctx, schemeID, versionTag)
	if err != nil {
		return nil, err
	}
	return s.evaluateAgainst(ctx, applicantID, version)
}

func (s *Service) evaluateAgainst(ctx context.Context, applicantID id.ApplicantID, version *models.RuleVersion) (*Result, error) {
	start := time.Now()

	f, err := s.facts.GetFacts(ctx, applicantID, version.SchemeID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "applicant facts not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "fetch applicant facts")
	}

	result, err := s.decide(ctx, applicantID, version, f)
	if err != nil {
		return nil, err
	}

	if err := s.persist(ctx, result); err != nil {
		return nil, err
	}
	s.dispatch(ctx, result)

	s.metrics.IncrementOutcome(string(result.Type), result.SchemeID.String())
	s.metrics.ObserveEvaluateLatency(time.Since(start))

	if s.logger != nil {
		s.logger.InfoContext(ctx, "decision evaluated",
			"request_id", requestcontext.RequestID(ctx),
			"applicant_id", applicantID,
			"scheme_id", version.SchemeID,
			"rule_version", version.Version,
			"decision_type", result.Type,
			"risk_unknown", result.RiskUnknown,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return result, nil
}

// decide is the side-effect-free part of the pipeline: evaluate rules, score
// risk, apply the policy. The comparison engine and worklist generation call
// it through Preview so batch runs do not persist candidate decisions.
func (s *Service) decide(ctx context.Context, applicantID id.ApplicantID, version *models.RuleVersion, f facts.Facts) (*Result, error) {
	outcome := evaluator.Evaluate(version, f)

	input := PolicyInput{Outcome: outcome}
	assessment, err := s.assessor.Assess(ctx, version.SchemeID, applicantID, f)
	switch {
	case err == nil:
		input.Risk = assessment
	case risk.Unavailable(err):
		// Risk unknown forces officer routing; never defaulted to a band.
		input.RiskUnknown = true
		s.metrics.IncScorerUnavailable()
		if s.logger != nil {
			s.logger.WarnContext(ctx, "risk scorer unavailable, failing safe to officer review",
				"applicant_id", applicantID, "scheme_id", version.SchemeID, "error", err)
		}
	default:
		return nil, err
	}

	decisionType := Decide(input)
	return &Result{
		ID:            id.NewDecisionID(),
		ApplicantID:   applicantID,
		SchemeID:      version.SchemeID,
		RuleVersion:   version.Version,
		Type:          decisionType,
		Status:        decisionType.Status(),
		Evaluations:   outcome.Evaluations,
		Risk:          input.Risk,
		RiskUnknown:   input.RiskUnknown,
		RoutingTarget: RoutingTarget(decisionType, version.SchemeID),
		CreatedAt:     requestcontext.Now(ctx),
	}, nil
}

// Preview evaluates against a frozen version without persisting or
// dispatching anything. Version comparison and worklist generation use it.
func (s *Service) Preview(ctx context.Context, applicantID id.ApplicantID, version *models.RuleVersion, f facts.Facts) (*Result, error) {
	return s.decide(ctx, applicantID, version, f)
}

func (s *Service) persist(ctx context.Context, result *Result) error {
	if err := s.store.SaveResult(ctx, result); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "save decision result")
	}
	entry := HistoryEntry{
		DecisionID:    result.ID,
		FromStatus:    StatusEvaluating,
		ToStatus:      string(result.Type),
		Actor:         ChangedBySystem,
		ChangedByType: ChangedBySystem,
		Reason:        "automated evaluation",
		At:            result.CreatedAt,
	}
	if err := s.store.AppendHistory(ctx, entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "append decision history")
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, result *Result) {
	if s.dispatcher == nil {
		return
	}
	// Fire-and-forget from this core's perspective: a dispatch failure is
	// logged, not fatal; consumers dedupe on decision id.
	if err := s.dispatcher.Dispatch(ctx, result); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "decision dispatch failed",
			"decision_id", result.ID, "routing_target", result.RoutingTarget, "error", err)
	}
}

// GetResult fetches one decision.
func (s *Service) GetResult(ctx context.Context, decisionID id.DecisionID) (*Result, error) {
	result, err := s.store.GetResult(ctx, decisionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "decision not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get decision")
	}
	return result, nil
}

// History returns the chronological audit trail for a decision.
func (s *Service) History(ctx context.Context, decisionID id.DecisionID) ([]HistoryEntry, error) {
	if _, err := s.GetResult(ctx, decisionID); err != nil {
		return nil, err
	}
	entries, err := s.store.ListHistory(ctx, decisionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list decision history")
	}
	return entries, nil
}
