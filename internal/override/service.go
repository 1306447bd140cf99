// Package override implements officer corrections of automated decisions.
// Overrides never mutate a decision result; they are appended alongside it
// and the effective decision is the latest override, falling back to the
// original result.
package override

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"arbiter/internal/decision"
	"arbiter/internal/decision/metrics"
	"arbiter/internal/decision/ports"
	id "arbiter/pkg/domain"
	dErrors "arbiter/pkg/domain-errors"
	"arbiter/pkg/platform/sentinel"
	"arbiter/pkg/requestcontext"
)

// Request carries one override attempt.
type Request struct {
	DecisionID id.DecisionID
	OfficerID  id.OfficerID
	NewType    decision.Type
	Reason     string
}

// Effective is a decision as currently in force: the original result plus the
// override chain, with the last override (if any) winning.
type Effective struct {
	Result    *decision.Result
	Overrides []decision.Override
}

// Type returns the decision type currently in force.
func (e *Effective) Type() decision.Type {
	if n := len(e.Overrides); n > 0 {
		return e.Overrides[n-1].NewType
	}
	return e.Result.Type
}

// Status returns the application status currently in force.
func (e *Effective) Status() decision.Status {
	return e.Type().Status()
}

// Service appends overrides and maintains the audit trail.
type Service struct {
	store   ports.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(store ports.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("decision store is required")
	}
	svc := &Service{store: store}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Apply records an officer override. The reason is mandatory. Two officers
// racing on the same decision lose deterministically: the store rejects the
// second append with a conflict, surfaced as CodeConflict so the caller can
// re-read and retry.
func (s *Service) Apply(ctx context.Context, req Request) (*decision.Override, error) {
	if strings.TrimSpace(req.Reason) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "override reason is required")
	}
	if req.OfficerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "officer id is required")
	}
	if _, err := decision.ParseType(string(req.NewType)); err != nil {
		return nil, err
	}

	result, err := s.store.GetResult(ctx, req.DecisionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "decision not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "fetch decision")
	}

	existing, err := s.store.ListOverrides(ctx, req.DecisionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list overrides")
	}

	fromStatus := string(result.Type)
	if n := len(existing); n > 0 {
		fromStatus = string(existing[n-1].NewType)
	}

	ov := &decision.Override{
		ID:         id.NewOverrideID(),
		DecisionID: req.DecisionID,
		NewType:    req.NewType,
		Reason:     strings.TrimSpace(req.Reason),
		OfficerID:  req.OfficerID,
		CreatedAt:  requestcontext.Now(ctx),
	}
	if err := s.store.AppendOverride(ctx, ov, len(existing)); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "decision was overridden concurrently; re-read and retry")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "append override")
	}

	entry := decision.HistoryEntry{
		DecisionID:    req.DecisionID,
		FromStatus:    fromStatus,
		ToStatus:      string(req.NewType),
		Actor:         req.OfficerID.String(),
		ChangedByType: decision.ChangedByOfficer,
		Reason:        ov.Reason,
		At:            ov.CreatedAt,
	}
	if err := s.store.AppendHistory(ctx, entry); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "append override history")
	}

	s.metrics.IncrementOverride(string(req.NewType))
	if s.logger != nil {
		s.logger.InfoContext(ctx, "decision overridden",
			"request_id", requestcontext.RequestID(ctx),
			"decision_id", req.DecisionID,
			"officer_id", req.OfficerID,
			"from", fromStatus,
			"to", req.NewType,
		)
	}
	return ov, nil
}

// Get returns the decision as currently in force, override chain included.
func (s *Service) Get(ctx context.Context, decisionID id.DecisionID) (*Effective, error) {
	result, err := s.store.GetResult(ctx, decisionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "decision not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "fetch decision")
	}
	overrides, err := s.store.ListOverrides(ctx, decisionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list overrides")
	}
	return &Effective{Result: result, Overrides: overrides}, nil
}
