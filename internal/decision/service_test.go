package decision_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	. "arbiter/internal/decision"
	"arbiter/internal/decision/store"
	"arbiter/internal/facts"
	"arbiter/internal/risk"
	"arbiter/internal/rules/models"
	ruleservice "arbiter/internal/rules/service"
	rulestore "arbiter/internal/rules/store"
	id "arbiter/pkg/domain"
	dErrors "arbiter/pkg/domain-errors"
)

type stubAssessor struct {
	assessment *risk.Assessment
	err        error
	calls      int
}

func (a *stubAssessor) Assess(_ context.Context, _ id.SchemeID, _ id.ApplicantID, _ facts.Facts) (*risk.Assessment, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return a.assessment, nil
}

type recordingDispatcher struct {
	dispatched []*Result
	err        error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, result *Result) error {
	if d.err != nil {
		return d.err
	}
	d.dispatched = append(d.dispatched, result)
	return nil
}

type DecisionServiceSuite struct {
	suite.Suite
	ctx        context.Context
	scheme     id.SchemeID
	applicant  id.ApplicantID
	rules      *ruleservice.Service
	provider   *facts.InMemoryProvider
	assessor   *stubAssessor
	store      *store.InMemory
	dispatcher *recordingDispatcher
	service    *Service
}

func TestDecisionServiceSuite(t *testing.T) {
	suite.Run(t, new(DecisionServiceSuite))
}

func (s *DecisionServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.scheme = id.NewSchemeID()
	s.applicant = id.NewApplicantID()

	var err error
	s.rules, err = ruleservice.New(rulestore.NewInMemory())
	s.Require().NoError(err)

	s.provider = facts.NewInMemoryProvider()
	s.assessor = &stubAssessor{assessment: &risk.Assessment{Score: 0.15, Band: risk.BandLow, ModelVersion: "v1"}}
	s.store = store.NewInMemory()
	s.dispatcher = &recordingDispatcher{}

	s.service, err = NewService(s.rules, s.provider, s.assessor, s.store,
		WithDispatcher(s.dispatcher))
	s.Require().NoError(err)

	s.seedRules()
	s.provider.Put(s.applicant, s.scheme, "north", facts.Facts{
		"income":         facts.Number(50000),
		"age":            facts.Number(70),
		"duplicate_flag": facts.Bool(false),
	})
}

func (s *DecisionServiceSuite) seedRules() {
	for _, r := range []*models.Rule{
		{SchemeID: s.scheme, Category: models.CategoryIncome, Name: "income cap",
			Expression: `facts.income < 100000.0`, Severity: models.SeverityCritical, Active: true},
		{SchemeID: s.scheme, Category: models.CategoryEligibility, Name: "age floor",
			Expression: `facts.age >= 60.0`, Severity: models.SeverityMajor, Active: true},
		{SchemeID: s.scheme, Category: models.CategoryDuplicate, Name: "no duplicate",
			Expression: `facts.duplicate_flag == false`, Severity: models.SeverityCritical, Active: true},
	} {
		_, err := s.rules.CreateRule(s.ctx, r)
		s.Require().NoError(err)
	}
	_, err := s.rules.Publish(s.ctx, s.scheme)
	s.Require().NoError(err)
}

func (s *DecisionServiceSuite) TestEvaluate() {
	s.Run("qualifying applicant with LOW risk auto-approves", func() {
		result, err := s.service.Evaluate(s.ctx, s.applicant, s.scheme)
		s.Require().NoError(err)
		s.Equal(TypeAutoApprove, result.Type)
		s.Equal(StatusApproved, result.Status)
		s.Len(result.Evaluations, 3)
		s.Equal(1, result.RuleVersion)

		stored, err := s.service.GetResult(s.ctx, result.ID)
		s.Require().NoError(err)
		s.Equal(result.Type, stored.Type)
	})

	s.Run("writes the EVALUATING transition to history", func() {
		result, err := s.service.Evaluate(s.ctx, s.applicant, s.scheme)
		s.Require().NoError(err)

		history, err := s.service.History(s.ctx, result.ID)
		s.Require().NoError(err)
		s.Require().Len(history, 1)
		s.Equal(StatusEvaluating, history[0].FromStatus)
		s.Equal(string(TypeAutoApprove), history[0].ToStatus)
		s.Equal(ChangedBySystem, history[0].ChangedByType)
	})

	s.Run("dispatches the result downstream", func() {
		before := len(s.dispatcher.dispatched)
		result, err := s.service.Evaluate(s.ctx, s.applicant, s.scheme)
		s.Require().NoError(err)
		s.Len(s.dispatcher.dispatched, before+1)
		s.Equal(result.ID, s.dispatcher.dispatched[len(s.dispatcher.dispatched)-1].ID)
	})

	s.Run("duplicate flag triggers fraud routing regardless of risk", func() {
		s.provider.Put(s.applicant, s.scheme, "north", facts.Facts{
			"income":         facts.Number(50000),
			"age":            facts.Number(70),
			"duplicate_flag": facts.Bool(true),
		})
		result, err := s.service.Evaluate(s.ctx, s.applicant, s.scheme)
		s.Require().NoError(err)
		s.Equal(TypeRouteToFraud, result.Type)
		s.Equal(FraudQueue, result.RoutingTarget)
	})

	s.Run("MEDIUM band with all rules passed routes to officer", func() {
		s.assessor.assessment = &risk.Assessment{Score: 0.5, Band: risk.BandMedium, ModelVersion: "v1"}
		s.provider.Put(s.applicant, s.scheme, "north", facts.Facts{
			"income":         facts.Number(50000),
			"age":            facts.Number(70),
			"duplicate_flag": facts.Bool(false),
		})
		result, err := s.service.Evaluate(s.ctx, s.applicant, s.scheme)
		s.Require().NoError(err)
		s.Equal(TypeRouteToOfficer, result.Type)
	})

	s.Run("unknown applicant fails not found", func() {
		_, err := s.service.Evaluate(s.ctx, id.NewApplicantID(), s.scheme)
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("scheme without published version fails not found", func() {
		_, err := s.service.Evaluate(s.ctx, s.applicant, id.NewSchemeID())
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *DecisionServiceSuite) TestEvaluateVersion() {
	s.Run("pins evaluation to a frozen version", func() {
		result, err := s.service.EvaluateVersion(s.ctx, s.applicant, s.scheme, 1)
		s.Require().NoError(err)
		s.Equal(1, result.RuleVersion)
		s.Equal(TypeAutoApprove, result.Type)
	})

	s.Run("unpublished version fails not found", func() {
		_, err := s.service.EvaluateVersion(s.ctx, s.applicant, s.scheme, 7)
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *DecisionServiceSuite) TestEvaluate_ScorerUnavailable() {
	s.assessor.err = dErrors.Wrap(errors.New("dial tcp: refused"), dErrors.CodeUnavailable, "risk scorer unreachable")

	result, err := s.service.Evaluate(s.ctx, s.applicant, s.scheme)
	s.Require().NoError(err)
	s.Equal(TypeRouteToOfficer, result.Type, "risk unknown must never auto-approve")
	s.True(result.RiskUnknown)
	s.Nil(result.Risk)
}

func (s *DecisionServiceSuite) TestEvaluate_DispatchFailureIsNotFatal() {
	s.dispatcher.err = errors.New("broker down")

	result, err := s.service.Evaluate(s.ctx, s.applicant, s.scheme)
	s.Require().NoError(err)

	// Result persisted even though dispatch failed.
	stored, err := s.service.GetResult(s.ctx, result.ID)
	s.Require().NoError(err)
	s.Equal(result.ID, stored.ID)
}
