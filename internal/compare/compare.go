// Package compare replays applicants against two frozen rule versions and
// reports where the outcomes diverge. Nothing here persists: comparison runs
// are what-if analysis for officers validating a rule change before or after
// publishing it.
package compare

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"arbiter/internal/decision"
	"arbiter/internal/evaluator"
	"arbiter/internal/facts"
	"arbiter/internal/risk"
	"arbiter/internal/rules/models"
	id "arbiter/pkg/domain"
	dErrors "arbiter/pkg/domain-errors"
	"arbiter/pkg/platform/sentinel"
)

// RuleChange describes one rule whose evaluation differs between the two
// versions. A nil Passed pointer means the rule does not exist in that
// version.
type RuleChange struct {
	Name      string          `json:"name"`
	Category  models.Category `json:"category"`
	OldPassed *bool           `json:"old_passed"`
	NewPassed *bool           `json:"new_passed"`
}

// Comparison is the outcome of replaying one applicant against two versions.
type Comparison struct {
	ApplicantID id.ApplicantID `json:"applicant_id"`
	SchemeID    id.SchemeID    `json:"scheme_id"`
	OldVersion  int            `json:"old_version"`
	NewVersion  int            `json:"new_version"`
	OldType     decision.Type  `json:"old_type"`
	NewType     decision.Type  `json:"new_type"`
	Diverged    bool           `json:"diverged"`
	RuleChanges []RuleChange   `json:"rule_changes,omitempty"`
}

// VersionSource supplies frozen rule versions.
type VersionSource interface {
	GetVersion(ctx context.Context, schemeID id.SchemeID, version int) (*models.RuleVersion, error)
}

// Engine runs version comparisons. Both versions see the same facts and the
// same risk assessment, so any divergence is attributable to the rules alone.
type Engine struct {
	versions VersionSource
	facts    facts.Provider
	assessor decision.Assessor
	logger   *slog.Logger
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func New(versions VersionSource, provider facts.Provider, assessor decision.Assessor, opts ...Option) (*Engine, error) {
	if versions == nil {
		return nil, errors.New("version source is required")
	}
	if provider == nil {
		return nil, errors.New("fact provider is required")
	}
	if assessor == nil {
		return nil, errors.New("risk assessor is required")
	}
	e := &Engine{versions: versions, facts: provider, assessor: assessor}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Compare replays the applicant against oldVersion and newVersion of the
// scheme's rules and reports whether the decision type changes.
func (e *Engine) Compare(ctx context.Context, schemeID id.SchemeID, applicantID id.ApplicantID, oldVersion, newVersion int) (*Comparison, error) {
	if oldVersion == newVersion {
		return nil, dErrors.New(dErrors.CodeValidation, "versions to compare must differ")
	}

	vOld, err := e.versions.GetVersion(ctx, schemeID, oldVersion)
	if err != nil {
		return nil, err
	}
	vNew, err := e.versions.GetVersion(ctx, schemeID, newVersion)
	if err != nil {
		return nil, err
	}

	f, err := e.facts.GetFacts(ctx, applicantID, schemeID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "applicant facts not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "fetch applicant facts")
	}

	// One assessment shared by both sides keeps risk out of the diff.
	input := decision.PolicyInput{}
	assessment, err := e.assessor.Assess(ctx, schemeID, applicantID, f)
	switch {
	case err == nil:
		input.Risk = assessment
	case risk.Unavailable(err):
		input.RiskUnknown = true
	default:
		return nil, err
	}

	oldOutcome := evaluator.Evaluate(vOld, f)
	newOutcome := evaluator.Evaluate(vNew, f)

	oldInput, newInput := input, input
	oldInput.Outcome = oldOutcome
	newInput.Outcome = newOutcome

	cmp := &Comparison{
		ApplicantID: applicantID,
		SchemeID:    schemeID,
		OldVersion:  vOld.Version,
		NewVersion:  vNew.Version,
		OldType:     decision.Decide(oldInput),
		NewType:     decision.Decide(newInput),
		RuleChanges: ruleChanges(oldOutcome, newOutcome),
	}
	cmp.Diverged = cmp.OldType != cmp.NewType

	if e.logger != nil && cmp.Diverged {
		e.logger.InfoContext(ctx, "version comparison diverged",
			"scheme_id", schemeID,
			"applicant_id", applicantID,
			"old_version", cmp.OldVersion, "old_type", cmp.OldType,
			"new_version", cmp.NewVersion, "new_type", cmp.NewType,
		)
	}
	return cmp, nil
}

// CompareMany replays a batch of applicants and returns only the diverging
// comparisons, ordered by applicant id for stable output.
func (e *Engine) CompareMany(ctx context.Context, schemeID id.SchemeID, applicantIDs []id.ApplicantID, oldVersion, newVersion int) ([]Comparison, error) {
	diverged := make([]Comparison, 0)
	for _, applicantID := range applicantIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cmp, err := e.Compare(ctx, schemeID, applicantID, oldVersion, newVersion)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				continue
			}
			return nil, err
		}
		if cmp.Diverged {
			diverged = append(diverged, *cmp)
		}
	}
	sort.Slice(diverged, func(i, j int) bool {
		return diverged[i].ApplicantID.String() < diverged[j].ApplicantID.String()
	})
	return diverged, nil
}

// ruleChanges diffs the two evaluation lists by rule name within category.
// Renamed rules show up as a removal plus an addition, which is what an
// officer reading the diff would expect.
func ruleChanges(oldOutcome, newOutcome evaluator.Outcome) []RuleChange {
	type key struct {
		category models.Category
		name     string
	}
	oldByKey := make(map[key]bool, len(oldOutcome.Evaluations))
	for _, ev := range oldOutcome.Evaluations {
		oldByKey[key{ev.Category, ev.Name}] = ev.Passed
	}
	newByKey := make(map[key]bool, len(newOutcome.Evaluations))
	for _, ev := range newOutcome.Evaluations {
		newByKey[key{ev.Category, ev.Name}] = ev.Passed
	}

	changes := make([]RuleChange, 0)
	for _, ev := range oldOutcome.Evaluations {
		k := key{ev.Category, ev.Name}
		oldPassed := ev.Passed
		newPassed, inNew := newByKey[k]
		if inNew && newPassed == oldPassed {
			continue
		}
		change := RuleChange{Name: ev.Name, Category: ev.Category, OldPassed: &oldPassed}
		if inNew {
			change.NewPassed = &newPassed
		}
		changes = append(changes, change)
	}
	for _, ev := range newOutcome.Evaluations {
		k := key{ev.Category, ev.Name}
		if _, inOld := oldByKey[k]; inOld {
			continue
		}
		newPassed := ev.Passed
		changes = append(changes, RuleChange{Name: ev.Name, Category: ev.Category, NewPassed: &newPassed})
	}
	sort.Slice(changes, func(i, j int) bool {
		if changes[i].Category != changes[j].Category {
			return changes[i].Category < changes[j].Category
		}
		return changes[i].Name < changes[j].Name
	})
	return changes
}
