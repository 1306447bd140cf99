package decision

import (
	"arbiter/internal/evaluator"
	"arbiter/internal/risk"
	id "arbiter/pkg/domain"
)

// PolicyInput carries everything the routing decision depends on.
type PolicyInput struct {
	Outcome evaluator.Outcome
	// Risk is nil when RiskUnknown is set.
	Risk        *risk.Assessment
	RiskUnknown bool
}

// Decide applies the routing policy. This is pure domain logic - no I/O, no
// side effects. Priority order (first match wins):
//  1. Critical failure in a fraud-indicative category - fraud review
//  2. Any other critical failure - auto reject
//  3. Risk unknown - officer review (never auto-approve without a risk read)
//  4. All rules passed, LOW band - auto approve
//  5. Everything else (non-critical failures, MEDIUM/HIGH band) - officer review
func Decide(in PolicyInput) Type {
	if in.Outcome.HasFraudCriticalFailure() {
		return TypeRouteToFraud
	}
	if len(in.Outcome.CriticalFailures()) > 0 {
		return TypeAutoReject
	}
	if in.RiskUnknown {
		return TypeRouteToOfficer
	}
	if in.Outcome.AllPassed() && in.Risk.Band == risk.BandLow {
		return TypeAutoApprove
	}
	return TypeRouteToOfficer
}

// FraudQueue is the dedicated fraud review queue; fraud routing ignores the
// scheme.
const FraudQueue = "queue:fraud-review"

// RoutingTarget names the downstream queue for a decision.
func RoutingTarget(t Type, schemeID id.SchemeID) string {
	switch t {
	case TypeRouteToFraud:
		return FraudQueue
	case TypeRouteToOfficer:
		return "queue:officer:" + schemeID.String()
	default:
		// Auto decisions flow back to application submission handling.
		return "queue:applications:" + schemeID.String()
	}
}
