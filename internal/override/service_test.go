package override

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"arbiter/internal/decision"
	"arbiter/internal/decision/store"
	id "arbiter/pkg/domain"
	dErrors "arbiter/pkg/domain-errors"
	"arbiter/pkg/platform/sentinel"
)

type OverrideServiceSuite struct {
	suite.Suite
	ctx      context.Context
	store    *store.InMemory
	service  *Service
	decision *decision.Result
	officer  id.OfficerID
}

func TestOverrideServiceSuite(t *testing.T) {
	suite.Run(t, new(OverrideServiceSuite))
}

// Subtests apply overrides against the shared decision, so each one starts
// from a fresh store to keep its override chain to itself.
func (s *OverrideServiceSuite) SetupSubTest() {
	s.SetupTest()
}

func (s *OverrideServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewInMemory()
	s.officer = id.NewOfficerID()

	var err error
	s.service, err = New(s.store)
	s.Require().NoError(err)

	s.decision = &decision.Result{
		ID:          id.NewDecisionID(),
		ApplicantID: id.NewApplicantID(),
		SchemeID:    id.NewSchemeID(),
		RuleVersion: 1,
		Type:        decision.TypeAutoReject,
		Status:      decision.StatusRejected,
		CreatedAt:   time.Now().UTC(),
	}
	s.Require().NoError(s.store.SaveResult(s.ctx, s.decision))
}

func (s *OverrideServiceSuite) TestApply() {
	s.Run("records override and audit entry without touching the result", func() {
		ov, err := s.service.Apply(s.ctx, Request{
			DecisionID: s.decision.ID,
			OfficerID:  s.officer,
			NewType:    decision.TypeRouteToOfficer,
			Reason:     "income document was misread by OCR",
		})
		s.Require().NoError(err)
		s.Equal(1, ov.Seq)

		original, err := s.store.GetResult(s.ctx, s.decision.ID)
		s.Require().NoError(err)
		s.Equal(decision.TypeAutoReject, original.Type, "original result stays immutable")

		history, err := s.store.ListHistory(s.ctx, s.decision.ID)
		s.Require().NoError(err)
		s.Require().Len(history, 1)
		s.Equal(string(decision.TypeAutoReject), history[0].FromStatus)
		s.Equal(string(decision.TypeRouteToOfficer), history[0].ToStatus)
		s.Equal(decision.ChangedByOfficer, history[0].ChangedByType)
		s.Equal(s.officer.String(), history[0].Actor)
	})

	s.Run("second override chains from the first", func() {
		_, err := s.service.Apply(s.ctx, Request{
			DecisionID: s.decision.ID,
			OfficerID:  s.officer,
			NewType:    decision.TypeRouteToOfficer,
			Reason:     "needs manual verification",
		})
		s.Require().NoError(err)

		ov, err := s.service.Apply(s.ctx, Request{
			DecisionID: s.decision.ID,
			OfficerID:  s.officer,
			NewType:    decision.TypeAutoApprove,
			Reason:     "verified income below threshold",
		})
		s.Require().NoError(err)
		s.Equal(2, ov.Seq)

		history, err := s.store.ListHistory(s.ctx, s.decision.ID)
		s.Require().NoError(err)
		s.Require().Len(history, 2)
		s.Equal(string(decision.TypeRouteToOfficer), history[1].FromStatus)
		s.Equal(string(decision.TypeAutoApprove), history[1].ToStatus)
	})

	s.Run("empty reason is rejected", func() {
		_, err := s.service.Apply(s.ctx, Request{
			DecisionID: s.decision.ID,
			OfficerID:  s.officer,
			NewType:    decision.TypeAutoApprove,
			Reason:     "   ",
		})
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown decision type is rejected", func() {
		_, err := s.service.Apply(s.ctx, Request{
			DecisionID: s.decision.ID,
			OfficerID:  s.officer,
			NewType:    decision.Type("ESCALATE"),
			Reason:     "some reason",
		})
		s.Error(err)
	})

	s.Run("missing decision fails not found", func() {
		_, err := s.service.Apply(s.ctx, Request{
			DecisionID: id.NewDecisionID(),
			OfficerID:  s.officer,
			NewType:    decision.TypeAutoApprove,
			Reason:     "some reason",
		})
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *OverrideServiceSuite) TestApply_ConcurrentOverrides() {
	const attempts = 8

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.service.Apply(s.ctx, Request{
				DecisionID: s.decision.ID,
				OfficerID:  id.NewOfficerID(),
				NewType:    decision.TypeRouteToOfficer,
				Reason:     "concurrent correction",
			})
		}()
	}
	wg.Wait()

	// Racing officers either win a sequence slot or get a conflict; the
	// chain itself never ends up with gaps or duplicate slots.
	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		s.True(dErrors.HasCode(err, dErrors.CodeConflict), "losers must get a conflict, got: %v", err)
	}

	overrides, err := s.store.ListOverrides(s.ctx, s.decision.ID)
	s.Require().NoError(err)
	s.Len(overrides, succeeded)
	for i, ov := range overrides {
		s.Equal(i+1, ov.Seq)
	}
}

type conflictingStore struct {
	*store.InMemory
}

func (c *conflictingStore) AppendOverride(_ context.Context, _ *decision.Override, _ int) error {
	return sentinel.ErrConflict
}

func (s *OverrideServiceSuite) TestApply_StoreConflictSurfacesAsCodeConflict() {
	svc, err := New(&conflictingStore{InMemory: s.store})
	s.Require().NoError(err)

	_, err = svc.Apply(s.ctx, Request{
		DecisionID: s.decision.ID,
		OfficerID:  s.officer,
		NewType:    decision.TypeAutoApprove,
		Reason:     "stale read",
	})
	s.Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *OverrideServiceSuite) TestGet_EffectiveDecision() {
	eff, err := s.service.Get(s.ctx, s.decision.ID)
	s.Require().NoError(err)
	s.Equal(decision.TypeAutoReject, eff.Type())
	s.Equal(decision.StatusRejected, eff.Status())

	_, err = s.service.Apply(s.ctx, Request{
		DecisionID: s.decision.ID,
		OfficerID:  s.officer,
		NewType:    decision.TypeAutoApprove,
		Reason:     "appeal upheld",
	})
	s.Require().NoError(err)

	eff, err = s.service.Get(s.ctx, s.decision.ID)
	s.Require().NoError(err)
	s.Equal(decision.TypeAutoApprove, eff.Type())
	s.Equal(decision.StatusApproved, eff.Status())
	s.Len(eff.Overrides, 1)
}
