package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"arbiter/internal/evaluator"
	"arbiter/internal/risk"
	"arbiter/internal/rules/models"
	id "arbiter/pkg/domain"
)

func outcome(evals ...evaluator.RuleEvaluation) evaluator.Outcome {
	return evaluator.Outcome{Version: 1, Evaluations: evals}
}

func passed(name string, severity models.Severity, category models.Category) evaluator.RuleEvaluation {
	return evaluator.RuleEvaluation{RuleID: id.NewRuleID(), Name: name, Severity: severity, Category: category, Passed: true}
}

func failed(name string, severity models.Severity, category models.Category) evaluator.RuleEvaluation {
	return evaluator.RuleEvaluation{RuleID: id.NewRuleID(), Name: name, Severity: severity, Category: category, Message: "rule failed"}
}

func assessment(score float64, band risk.Band) *risk.Assessment {
	return &risk.Assessment{Score: score, Band: band, ModelVersion: "v1"}
}

func TestDecide(t *testing.T) {
	t.Run("all pass with LOW band auto-approves", func(t *testing.T) {
		in := PolicyInput{
			Outcome: outcome(passed("income cap", models.SeverityCritical, models.CategoryIncome)),
			Risk:    assessment(0.15, risk.BandLow),
		}
		assert.Equal(t, TypeAutoApprove, Decide(in))
	})

	t.Run("fraud-category critical failure routes to fraud regardless of risk", func(t *testing.T) {
		in := PolicyInput{
			Outcome: outcome(
				passed("income cap", models.SeverityCritical, models.CategoryIncome),
				failed("no duplicate", models.SeverityCritical, models.CategoryDuplicate),
			),
			Risk: assessment(0.15, risk.BandLow),
		}
		assert.Equal(t, TypeRouteToFraud, Decide(in))
	})

	t.Run("non-fraud critical failure auto-rejects", func(t *testing.T) {
		in := PolicyInput{
			Outcome: outcome(failed("income cap", models.SeverityCritical, models.CategoryIncome)),
			Risk:    assessment(0.15, risk.BandLow),
		}
		assert.Equal(t, TypeAutoReject, Decide(in))
	})

	t.Run("fraud takes priority over plain critical failure", func(t *testing.T) {
		in := PolicyInput{
			Outcome: outcome(
				failed("income cap", models.SeverityCritical, models.CategoryIncome),
				failed("identity match", models.SeverityCritical, models.CategoryIdentity),
			),
			RiskUnknown: true,
		}
		assert.Equal(t, TypeRouteToFraud, Decide(in))
	})

	t.Run("risk unknown routes to officer for any rule-pass state", func(t *testing.T) {
		allPass := PolicyInput{
			Outcome:     outcome(passed("income cap", models.SeverityCritical, models.CategoryIncome)),
			RiskUnknown: true,
		}
		assert.Equal(t, TypeRouteToOfficer, Decide(allPass))

		minorFail := PolicyInput{
			Outcome:     outcome(failed("doc check", models.SeverityMinor, models.CategoryDocumentation)),
			RiskUnknown: true,
		}
		assert.Equal(t, TypeRouteToOfficer, Decide(minorFail))
	})

	t.Run("MEDIUM band with all rules passed routes to officer", func(t *testing.T) {
		in := PolicyInput{
			Outcome: outcome(passed("income cap", models.SeverityCritical, models.CategoryIncome)),
			Risk:    assessment(0.5, risk.BandMedium),
		}
		assert.Equal(t, TypeRouteToOfficer, Decide(in))
	})

	t.Run("non-critical failure routes to officer even on LOW band", func(t *testing.T) {
		in := PolicyInput{
			Outcome: outcome(failed("doc check", models.SeverityMajor, models.CategoryDocumentation)),
			Risk:    assessment(0.1, risk.BandLow),
		}
		assert.Equal(t, TypeRouteToOfficer, Decide(in))
	})

	t.Run("critical failure never auto-approves under any band", func(t *testing.T) {
		for _, band := range []risk.Band{risk.BandLow, risk.BandMedium, risk.BandHigh} {
			in := PolicyInput{
				Outcome: outcome(failed("income cap", models.SeverityCritical, models.CategoryIncome)),
				Risk:    assessment(0.1, band),
			}
			got := Decide(in)
			assert.Contains(t, []Type{TypeAutoReject, TypeRouteToFraud}, got, "band %s", band)
		}
	})
}

func TestRoutingTarget(t *testing.T) {
	schemeID := id.NewSchemeID()

	t.Run("fraud always goes to the dedicated queue", func(t *testing.T) {
		assert.Equal(t, FraudQueue, RoutingTarget(TypeRouteToFraud, schemeID))
		assert.Equal(t, FraudQueue, RoutingTarget(TypeRouteToFraud, id.NewSchemeID()))
	})

	t.Run("officer queue is scheme-scoped", func(t *testing.T) {
		assert.Equal(t, "queue:officer:"+schemeID.String(), RoutingTarget(TypeRouteToOfficer, schemeID))
	})

	t.Run("auto decisions route to application handling", func(t *testing.T) {
		assert.Equal(t, "queue:applications:"+schemeID.String(), RoutingTarget(TypeAutoApprove, schemeID))
		assert.Equal(t, "queue:applications:"+schemeID.String(), RoutingTarget(TypeAutoReject, schemeID))
	})
}

func TestTypeStatus(t *testing.T) {
	assert.Equal(t, StatusApproved, TypeAutoApprove.Status())
	assert.Equal(t, StatusRejected, TypeAutoReject.Status())
	assert.Equal(t, StatusUnderReview, TypeRouteToOfficer.Status())
	assert.Equal(t, StatusUnderReview, TypeRouteToFraud.Status())

	assert.True(t, StatusApproved.Terminal())
	assert.True(t, StatusRejected.Terminal())
	assert.False(t, StatusUnderReview.Terminal())
}
