// Package worklist scans a scheme's applicants against the active rule
// version and streams the ones an officer should look at. The scan is a
// bounded fan-out: the concurrency limit caps in-flight risk scorer calls,
// which are the expensive part of each evaluation.
package worklist

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"arbiter/internal/decision"
	"arbiter/internal/facts"
	"arbiter/internal/risk"
	"arbiter/internal/rules/models"
	id "arbiter/pkg/domain"
	dErrors "arbiter/pkg/domain-errors"
)

const defaultConcurrency = 8

// Params filters one worklist generation run.
type Params struct {
	SchemeID id.SchemeID
	// MinScore drops candidates whose risk score is below it.
	MinScore float64
	// District restricts the scan to one district; empty scans all.
	District string
	// Limit caps how many candidates are emitted; zero means no cap.
	Limit int
}

func (p Params) validate() error {
	if p.SchemeID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "scheme id is required")
	}
	if p.MinScore < 0 || p.MinScore > 1 {
		return dErrors.New(dErrors.CodeValidation, "min score must be within [0, 1]")
	}
	if p.Limit < 0 {
		return dErrors.New(dErrors.CodeValidation, "limit must not be negative")
	}
	return nil
}

// Candidate is one applicant queued for officer attention.
type Candidate struct {
	ApplicantID id.ApplicantID `json:"applicant_id"`
	SchemeID    id.SchemeID    `json:"scheme_id"`
	RuleVersion int            `json:"rule_version"`
	Type        decision.Type  `json:"decision_type"`
	RiskScore   float64        `json:"risk_score"`
	RiskBand    risk.Band      `json:"risk_band"`
	FailedRules int            `json:"failed_rules"`
}

// Previewer evaluates one applicant against a frozen version without
// persisting anything. The decision service implements it.
type Previewer interface {
	Preview(ctx context.Context, applicantID id.ApplicantID, version *models.RuleVersion, f facts.Facts) (*decision.Result, error)
}

// VersionSource supplies the scheme's active rule version.
type VersionSource interface {
	ActiveVersion(ctx context.Context, schemeID id.SchemeID) (*models.RuleVersion, error)
}

// Generator runs worklist scans.
type Generator struct {
	versions    VersionSource
	lister      facts.Lister
	provider    facts.Provider
	previewer   Previewer
	concurrency int
	logger      *slog.Logger
}

type Option func(*Generator)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) { g.logger = logger }
}

// WithConcurrency bounds the number of applicants evaluated in parallel.
func WithConcurrency(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.concurrency = n
		}
	}
}

func New(versions VersionSource, lister facts.Lister, provider facts.Provider, previewer Previewer, opts ...Option) (*Generator, error) {
	if versions == nil {
		return nil, errors.New("version source is required")
	}
	if lister == nil {
		return nil, errors.New("applicant lister is required")
	}
	if provider == nil {
		return nil, errors.New("fact provider is required")
	}
	if previewer == nil {
		return nil, errors.New("previewer is required")
	}
	g := &Generator{
		versions:    versions,
		lister:      lister,
		provider:    provider,
		previewer:   previewer,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Stream fans the scan out over the bounded worker pool and sends candidates
// as they qualify. The channel closes when the scan finishes, the limit is
// reached, or ctx is cancelled; order follows completion, not rank. One
// applicant's failure is logged and skipped, never fatal to the scan.
func (g *Generator) Stream(ctx context.Context, params Params) (<-chan Candidate, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	version, err := g.versions.ActiveVersion(ctx, params.SchemeID)
	if err != nil {
		return nil, err
	}
	applicants, err := g.lister.ListApplicants(ctx, params.SchemeID, params.District)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list applicants")
	}

	out := make(chan Candidate)
	go func() {
		defer close(out)

		// Cancels the remaining workers once the limit is reached.
		scanCtx, stop := context.WithCancel(ctx)
		defer stop()

		var (
			mu      sync.Mutex
			emitted int
		)
		group, groupCtx := errgroup.WithContext(scanCtx)
		group.SetLimit(g.concurrency)

		for _, applicantID := range applicants {
			if groupCtx.Err() != nil {
				break
			}
			group.Go(func() error {
				candidate, ok := g.evaluate(groupCtx, version, applicantID, params)
				if !ok {
					return nil
				}
				mu.Lock()
				if params.Limit > 0 && emitted >= params.Limit {
					mu.Unlock()
					stop()
					return nil
				}
				emitted++
				atLimit := params.Limit > 0 && emitted >= params.Limit
				mu.Unlock()

				select {
				case out <- *candidate:
				case <-ctx.Done():
					return nil
				}
				if atLimit {
					stop()
				}
				return nil
			})
		}
		_ = group.Wait() // workers never return errors
	}()
	return out, nil
}

// Generate runs Stream to completion and returns the candidates ranked by
// risk score, highest first.
func (g *Generator) Generate(ctx context.Context, params Params) ([]Candidate, error) {
	stream, err := g.Stream(ctx, params)
	if err != nil {
		return nil, err
	}
	candidates := make([]Candidate, 0)
	for candidate := range stream {
		candidates = append(candidates, candidate)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].RiskScore > candidates[j].RiskScore
	})
	return candidates, nil
}

// evaluate previews one applicant and decides whether they qualify. Failures
// and filtered applicants return ok=false.
func (g *Generator) evaluate(ctx context.Context, version *models.RuleVersion, applicantID id.ApplicantID, params Params) (*Candidate, bool) {
	f, err := g.provider.GetFacts(ctx, applicantID, params.SchemeID)
	if err != nil {
		g.skip(ctx, applicantID, "fetch facts", err)
		return nil, false
	}
	result, err := g.previewer.Preview(ctx, applicantID, version, f)
	if err != nil {
		g.skip(ctx, applicantID, "preview decision", err)
		return nil, false
	}
	if result.RiskUnknown {
		g.skip(ctx, applicantID, "risk score", errors.New("scorer unavailable"))
		return nil, false
	}
	if result.Risk.Score < params.MinScore {
		return nil, false
	}

	failed := 0
	for _, ev := range result.Evaluations {
		if !ev.Passed {
			failed++
		}
	}
	return &Candidate{
		ApplicantID: applicantID,
		SchemeID:    params.SchemeID,
		RuleVersion: result.RuleVersion,
		Type:        result.Type,
		RiskScore:   result.Risk.Score,
		RiskBand:    result.Risk.Band,
		FailedRules: failed,
	}, true
}

func (g *Generator) skip(ctx context.Context, applicantID id.ApplicantID, step string, err error) {
	if g.logger == nil || ctx.Err() != nil {
		return
	}
	g.logger.WarnContext(ctx, "worklist applicant skipped",
		"applicant_id", applicantID, "step", step, "error", err)
}
