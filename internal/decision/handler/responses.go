package handler

import (
	"time"

	"arbiter/internal/decision"
	"arbiter/internal/risk"
)

// EvaluationResponse is the HTTP shape of one rule evaluation.
type EvaluationResponse struct {
	RuleID   string `json:"rule_id"`
	Category string `json:"category"`
	Name     string `json:"name"`
	Severity string `json:"severity"`
	Passed   bool   `json:"passed"`
	Message  string `json:"message,omitempty"`
}

// DecisionResponse is the HTTP shape of one decision result.
type DecisionResponse struct {
	ID            string               `json:"id"`
	ApplicantID   string               `json:"applicant_id"`
	SchemeID      string               `json:"scheme_id"`
	RuleVersion   int                  `json:"rule_version"`
	Type          string               `json:"decision_type"`
	Status        string               `json:"decision_status"`
	Evaluations   []EvaluationResponse `json:"evaluations"`
	Risk          *risk.Assessment     `json:"risk,omitempty"`
	RiskUnknown   bool                 `json:"risk_unknown,omitempty"`
	RoutingTarget string               `json:"routing_target"`
	CreatedAt     time.Time            `json:"created_at"`
}

// FromResult converts a decision result to its HTTP shape.
func FromResult(result *decision.Result) *DecisionResponse {
	evaluations := make([]EvaluationResponse, 0, len(result.Evaluations))
	for _, ev := range result.Evaluations {
		evaluations = append(evaluations, EvaluationResponse{
			RuleID:   ev.RuleID.String(),
			Category: string(ev.Category),
			Name:     ev.Name,
			Severity: string(ev.Severity),
			Passed:   ev.Passed,
			Message:  ev.Message,
		})
	}
	return &DecisionResponse{
		ID:            result.ID.String(),
		ApplicantID:   result.ApplicantID.String(),
		SchemeID:      result.SchemeID.String(),
		RuleVersion:   result.RuleVersion,
		Type:          string(result.Type),
		Status:        string(result.Status),
		Evaluations:   evaluations,
		Risk:          result.Risk,
		RiskUnknown:   result.RiskUnknown,
		RoutingTarget: result.RoutingTarget,
		CreatedAt:     result.CreatedAt,
	}
}

// OverrideResponse is the HTTP shape of one override.
type OverrideResponse struct {
	ID         string    `json:"id"`
	DecisionID string    `json:"decision_id"`
	NewType    string    `json:"new_type"`
	Reason     string    `json:"reason"`
	OfficerID  string    `json:"officer_id"`
	Seq        int       `json:"seq"`
	CreatedAt  time.Time `json:"created_at"`
}

// FromOverride converts an override to its HTTP shape.
func FromOverride(ov *decision.Override) *OverrideResponse {
	return &OverrideResponse{
		ID:         ov.ID.String(),
		DecisionID: ov.DecisionID.String(),
		NewType:    string(ov.NewType),
		Reason:     ov.Reason,
		OfficerID:  ov.OfficerID.String(),
		Seq:        ov.Seq,
		CreatedAt:  ov.CreatedAt,
	}
}

// HistoryEntryResponse is the HTTP shape of one audit trail transition.
type HistoryEntryResponse struct {
	FromStatus    string    `json:"from_status"`
	ToStatus      string    `json:"to_status"`
	Actor         string    `json:"actor"`
	ChangedByType string    `json:"changed_by_type"`
	Reason        string    `json:"reason"`
	At            time.Time `json:"at"`
}

// FromHistory converts the audit trail to its HTTP shape.
func FromHistory(entries []decision.HistoryEntry) []HistoryEntryResponse {
	out := make([]HistoryEntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, HistoryEntryResponse{
			FromStatus:    entry.FromStatus,
			ToStatus:      entry.ToStatus,
			Actor:         entry.Actor,
			ChangedByType: entry.ChangedByType,
			Reason:        entry.Reason,
			At:            entry.At,
		})
	}
	return out
}

// EffectiveResponse is the HTTP shape of a decision with its override chain.
type EffectiveResponse struct {
	Decision        *DecisionResponse  `json:"decision"`
	Overrides       []OverrideResponse `json:"overrides"`
	EffectiveType   string             `json:"effective_type"`
	EffectiveStatus string             `json:"effective_status"`
}
