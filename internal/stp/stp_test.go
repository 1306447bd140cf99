package stp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"arbiter/internal/decision"
	"arbiter/internal/decision/store"
	id "arbiter/pkg/domain"
	dErrors "arbiter/pkg/domain-errors"
)

type AggregatorSuite struct {
	suite.Suite
	ctx    context.Context
	scheme id.SchemeID
	store  *store.InMemory
	agg    *Aggregator
	base   time.Time
}

func TestAggregatorSuite(t *testing.T) {
	suite.Run(t, new(AggregatorSuite))
}

func (s *AggregatorSuite) SetupTest() {
	s.ctx = context.Background()
	s.scheme = id.NewSchemeID()
	s.store = store.NewInMemory()
	s.base = time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	var err error
	s.agg, err = New(s.store)
	s.Require().NoError(err)
}

func (s *AggregatorSuite) saveResult(t decision.Type, at time.Time) *decision.Result {
	result := &decision.Result{
		ID:          id.NewDecisionID(),
		ApplicantID: id.NewApplicantID(),
		SchemeID:    s.scheme,
		RuleVersion: 1,
		Type:        t,
		Status:      t.Status(),
		CreatedAt:   at,
	}
	s.Require().NoError(s.store.SaveResult(s.ctx, result))
	return result
}

func (s *AggregatorSuite) override(d *decision.Result, to decision.Type, at time.Time, seq int) {
	s.Require().NoError(s.store.AppendOverride(s.ctx, &decision.Override{
		ID:         id.NewOverrideID(),
		DecisionID: d.ID,
		NewType:    to,
		Reason:     "manual review finished",
		OfficerID:  id.NewOfficerID(),
		CreatedAt:  at,
	}, seq))
}

func (s *AggregatorSuite) TestAggregate() {
	// Two auto approvals, one auto rejection, two routed to an officer.
	s.saveResult(decision.TypeAutoApprove, s.base)
	s.saveResult(decision.TypeAutoApprove, s.base.Add(1*time.Hour))
	s.saveResult(decision.TypeAutoReject, s.base.Add(2*time.Hour))
	routed := s.saveResult(decision.TypeRouteToOfficer, s.base.Add(3*time.Hour))
	s.saveResult(decision.TypeRouteToOfficer, s.base.Add(4*time.Hour))

	// The first routed case is settled by an override two hours later.
	s.override(routed, decision.TypeAutoApprove, s.base.Add(5*time.Hour), 0)

	report, err := s.agg.Aggregate(s.ctx, s.scheme, s.base, s.base.Add(24*time.Hour))
	s.Require().NoError(err)

	s.Equal(5, report.Total)
	s.Equal(2, report.ByType[decision.TypeAutoApprove])
	s.Equal(1, report.ByType[decision.TypeAutoReject])
	s.Equal(2, report.ByType[decision.TypeRouteToOfficer])
	s.Equal(1, report.Overrides)
	s.Equal(1, report.Unresolved)

	s.InDelta(0.4, report.AutoApprovalRate, 1e-9)
	// Three decisions were terminal without any officer touching them.
	s.InDelta(0.6, report.StraightThroughRate, 1e-9)

	// Three auto decisions settled instantly, the overridden one took two
	// hours: average over four finalized decisions is 30 minutes.
	s.Equal(30*time.Minute, report.AvgTimeToFinal)
}

func (s *AggregatorSuite) TestAggregate_WindowBounds() {
	s.saveResult(decision.TypeAutoApprove, s.base.Add(-time.Minute))
	inside := s.saveResult(decision.TypeAutoApprove, s.base)
	s.saveResult(decision.TypeAutoApprove, s.base.Add(24*time.Hour))

	report, err := s.agg.Aggregate(s.ctx, s.scheme, s.base, s.base.Add(24*time.Hour))
	s.Require().NoError(err)
	s.Equal(1, report.Total, "window is [from, to): only %s counts", inside.ID)
}

func (s *AggregatorSuite) TestAggregate_EmptyWindow() {
	report, err := s.agg.Aggregate(s.ctx, s.scheme, s.base, s.base.Add(time.Hour))
	s.Require().NoError(err)
	s.Equal(0, report.Total)
	s.Zero(report.AutoApprovalRate)
	s.Zero(report.AvgTimeToFinal)
}

func (s *AggregatorSuite) TestAggregate_InvalidWindow() {
	_, err := s.agg.Aggregate(s.ctx, s.scheme, s.base, s.base)
	s.Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *AggregatorSuite) TestAggregate_OverrideChainUsesLatest() {
	routed := s.saveResult(decision.TypeRouteToOfficer, s.base)
	s.override(routed, decision.TypeAutoReject, s.base.Add(time.Hour), 0)
	s.override(routed, decision.TypeRouteToOfficer, s.base.Add(2*time.Hour), 1)

	report, err := s.agg.Aggregate(s.ctx, s.scheme, s.base, s.base.Add(24*time.Hour))
	s.Require().NoError(err)

	// The latest override reopened the case, so it is unresolved again.
	s.Equal(1, report.Unresolved)
	s.Equal(2, report.Overrides)
}
