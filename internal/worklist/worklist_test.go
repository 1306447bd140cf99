package worklist

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"arbiter/internal/decision"
	decisionstore "arbiter/internal/decision/store"
	"arbiter/internal/facts"
	"arbiter/internal/risk"
	"arbiter/internal/rules/models"
	ruleservice "arbiter/internal/rules/service"
	rulestore "arbiter/internal/rules/store"
	id "arbiter/pkg/domain"
	dErrors "arbiter/pkg/domain-errors"
)

// scriptedScorer returns a per-applicant score, tracking peak concurrency.
type scriptedScorer struct {
	mu       sync.Mutex
	scores   map[id.ApplicantID]float64
	failing  map[id.ApplicantID]bool
	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (s *scriptedScorer) Assess(_ context.Context, _ id.SchemeID, applicantID id.ApplicantID, _ facts.Facts) (*risk.Assessment, error) {
	cur := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		old := s.peak.Load()
		if cur <= old || s.peak.CompareAndSwap(old, cur) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing[applicantID] {
		return nil, dErrors.New(dErrors.CodeUnavailable, "scorer unreachable")
	}
	score := s.scores[applicantID]
	return &risk.Assessment{Score: score, Band: risk.Thresholds{LowBelow: 0.3, HighFrom: 0.7}.BandFor(score), ModelVersion: "v1"}, nil
}

type WorklistSuite struct {
	suite.Suite
	ctx       context.Context
	scheme    id.SchemeID
	provider  *facts.InMemoryProvider
	scorer    *scriptedScorer
	rules     *ruleservice.Service
	generator *Generator
}

func TestWorklistSuite(t *testing.T) {
	suite.Run(t, new(WorklistSuite))
}

func (s *WorklistSuite) SetupTest() {
	s.reset()
}

// Subtests add applicants to the shared provider, so each one scans a fresh
// scheme to keep its candidate set to itself.
func (s *WorklistSuite) SetupSubTest() {
	s.reset()
}

func (s *WorklistSuite) reset() {
	s.ctx = context.Background()
	s.scheme = id.NewSchemeID()
	s.provider = facts.NewInMemoryProvider()
	s.scorer = &scriptedScorer{
		scores:  make(map[id.ApplicantID]float64),
		failing: make(map[id.ApplicantID]bool),
	}

	var err error
	s.rules, err = ruleservice.New(rulestore.NewInMemory())
	s.Require().NoError(err)

	_, err = s.rules.CreateRule(s.ctx, &models.Rule{
		SchemeID:   s.scheme,
		Category:   models.CategoryIncome,
		Name:       "income cap",
		Expression: `facts.income < 100000.0`,
		Severity:   models.SeverityMajor,
		Active:     true,
	})
	s.Require().NoError(err)
	_, err = s.rules.Publish(s.ctx, s.scheme)
	s.Require().NoError(err)

	decisions, err := decision.NewService(s.rules, s.provider, s.scorer, decisionstore.NewInMemory())
	s.Require().NoError(err)

	s.generator, err = New(s.rules, s.provider, s.provider, decisions, WithConcurrency(3))
	s.Require().NoError(err)
}

func (s *WorklistSuite) addApplicant(district string, income float64, score float64) id.ApplicantID {
	applicantID := id.NewApplicantID()
	s.provider.Put(applicantID, s.scheme, district, facts.Facts{
		"income": facts.Number(income),
	})
	s.scorer.mu.Lock()
	s.scorer.scores[applicantID] = score
	s.scorer.mu.Unlock()
	return applicantID
}

func (s *WorklistSuite) TestGenerate() {
	s.Run("ranks candidates by risk score descending", func() {
		low := s.addApplicant("north", 50000, 0.35)
		high := s.addApplicant("north", 50000, 0.9)
		mid := s.addApplicant("north", 50000, 0.55)

		candidates, err := s.generator.Generate(s.ctx, Params{SchemeID: s.scheme})
		s.Require().NoError(err)
		s.Require().Len(candidates, 3)
		s.Equal(high, candidates[0].ApplicantID)
		s.Equal(mid, candidates[1].ApplicantID)
		s.Equal(low, candidates[2].ApplicantID)
		s.Equal(risk.BandHigh, candidates[0].RiskBand)
	})

	s.Run("min score filters low-risk applicants out", func() {
		s.addApplicant("north", 50000, 0.1)
		keep := s.addApplicant("north", 50000, 0.8)

		candidates, err := s.generator.Generate(s.ctx, Params{SchemeID: s.scheme, MinScore: 0.5})
		s.Require().NoError(err)
		s.Require().Len(candidates, 1)
		s.Equal(keep, candidates[0].ApplicantID)
	})

	s.Run("district filter narrows the scan", func() {
		s.addApplicant("north", 50000, 0.6)
		south := s.addApplicant("south", 50000, 0.6)

		candidates, err := s.generator.Generate(s.ctx, Params{SchemeID: s.scheme, District: "south"})
		s.Require().NoError(err)
		s.Require().Len(candidates, 1)
		s.Equal(south, candidates[0].ApplicantID)
	})

	s.Run("limit caps emitted candidates", func() {
		for range 10 {
			s.addApplicant("north", 50000, 0.6)
		}
		candidates, err := s.generator.Generate(s.ctx, Params{SchemeID: s.scheme, Limit: 4})
		s.Require().NoError(err)
		s.Len(candidates, 4)
	})

	s.Run("invalid params rejected up front", func() {
		_, err := s.generator.Generate(s.ctx, Params{SchemeID: s.scheme, MinScore: 1.5})
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		_, err = s.generator.Generate(s.ctx, Params{SchemeID: id.SchemeID{}})
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *WorklistSuite) TestGenerate_FailuresAreIsolated() {
	healthy := s.addApplicant("north", 50000, 0.6)
	broken := s.addApplicant("north", 50000, 0.6)
	s.scorer.mu.Lock()
	s.scorer.failing[broken] = true
	s.scorer.mu.Unlock()

	candidates, err := s.generator.Generate(s.ctx, Params{SchemeID: s.scheme})
	s.Require().NoError(err)
	s.Require().Len(candidates, 1, "scoring failure must skip that applicant only")
	s.Equal(healthy, candidates[0].ApplicantID)
}

func (s *WorklistSuite) TestStream_BoundsConcurrency() {
	for i := range 12 {
		s.addApplicant(fmt.Sprintf("district-%d", i%2), 50000, 0.6)
	}
	s.scorer.delay = 5 * time.Millisecond

	stream, err := s.generator.Stream(s.ctx, Params{SchemeID: s.scheme})
	s.Require().NoError(err)

	seen := 0
	for range stream {
		seen++
	}
	s.Equal(12, seen)
	s.LessOrEqual(s.scorer.peak.Load(), int32(3), "scorer calls must respect the concurrency limit")
}

func (s *WorklistSuite) TestStream_Cancellation() {
	for range 20 {
		s.addApplicant("north", 50000, 0.6)
	}
	s.scorer.delay = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(s.ctx)
	stream, err := s.generator.Stream(ctx, Params{SchemeID: s.scheme})
	s.Require().NoError(err)

	<-stream
	cancel()

	// Channel closes promptly instead of draining the whole scan.
	done := make(chan struct{})
	go func() {
		for range stream {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		s.Fail("stream did not close after cancellation")
	}
}
