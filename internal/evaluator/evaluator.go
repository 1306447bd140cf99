// Package evaluator executes a frozen rule version against one applicant's
// facts. Evaluation is pure and deterministic: no I/O, no clock, no
// randomness, so version comparison and audit replay stay meaningful.
package evaluator

import (
	"sort"

	"arbiter/internal/facts"
	"arbiter/internal/rules/expr"
	"arbiter/internal/rules/models"
	id "arbiter/pkg/domain"
)

// RuleEvaluation is the result of evaluating one rule against one fact set.
type RuleEvaluation struct {
	RuleID   id.RuleID
	Category models.Category
	Name     string
	Severity models.Severity
	Passed   bool
	Message  string
}

// Outcome aggregates the evaluations of one rule version.
type Outcome struct {
	Version     int
	Evaluations []RuleEvaluation
}

// AllPassed is true only if no rule failed.
func (o Outcome) AllPassed() bool {
	for _, e := range o.Evaluations {
		if !e.Passed {
			return false
		}
	}
	return true
}

// CriticalFailures returns the failing rules with CRITICAL severity.
func (o Outcome) CriticalFailures() []RuleEvaluation {
	var out []RuleEvaluation
	for _, e := range o.Evaluations {
		if !e.Passed && e.Severity == models.SeverityCritical {
			out = append(out, e)
		}
	}
	return out
}

// HasFraudCriticalFailure reports whether any critical failure sits in a
// fraud-indicative category.
func (o Outcome) HasFraudCriticalFailure() bool {
	for _, e := range o.CriticalFailures() {
		if e.Category.FraudIndicative() {
			return true
		}
	}
	return false
}

// Evaluate runs every rule in the version against the facts. A missing
// referenced field fails the rule (never passes it) with a
// "missing field: <name>" message; a runtime expression error likewise fails
// the rule. Output is sorted by category then name so repeated runs compare
// byte-for-byte.
func Evaluate(version *models.RuleVersion, f facts.Facts) Outcome {
	activation := f.Activation()
	evaluations := make([]RuleEvaluation, 0, len(version.Rules))

	for _, rule := range version.Rules {
		evaluations = append(evaluations, evaluateRule(rule, f, activation))
	}

	sort.Slice(evaluations, func(i, j int) bool {
		if evaluations[i].Category != evaluations[j].Category {
			return evaluations[i].Category < evaluations[j].Category
		}
		return evaluations[i].Name < evaluations[j].Name
	})

	return Outcome{Version: version.Version, Evaluations: evaluations}
}

func evaluateRule(rule models.Rule, f facts.Facts, activation map[string]any) RuleEvaluation {
	result := RuleEvaluation{
		RuleID:   rule.ID,
		Category: rule.Category,
		Name:     rule.Name,
		Severity: rule.Severity,
	}

	compiled, err := expr.Compile(rule.Expression)
	if err != nil {
		// Publish validates expressions, so this only fires for versions
		// created before validation existed. Fail conservatively.
		result.Message = "expression error: " + err.Error()
		return result
	}

	for _, field := range compiled.Fields {
		if !f.Has(field) {
			result.Message = "missing field: " + field
			return result
		}
	}

	passed, err := compiled.Eval(activation)
	if err != nil {
		result.Message = "expression error: " + err.Error()
		return result
	}
	result.Passed = passed
	if !passed {
		result.Message = "rule failed"
	}
	return result
}
