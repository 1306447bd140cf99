// Package decision derives and records the routing decision for one
// applicant evaluation. The policy itself is a pure function; the service
// wraps it with fact fetching, scoring, persistence, and dispatch.
package decision

import (
	"time"

	"arbiter/internal/evaluator"
	"arbiter/internal/risk"
	id "arbiter/pkg/domain"
	dErrors "arbiter/pkg/domain-errors"
)

// Type is the terminal routing decision for an evaluation.
type Type string

const (
	TypeAutoApprove    Type = "AUTO_APPROVE"
	TypeRouteToOfficer Type = "ROUTE_TO_OFFICER"
	TypeRouteToFraud   Type = "ROUTE_TO_FRAUD"
	TypeAutoReject     Type = "AUTO_REJECT"
)

// ParseType validates a decision type string.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeAutoApprove, TypeRouteToOfficer, TypeRouteToFraud, TypeAutoReject:
		return Type(s), nil
	}
	return "", dErrors.Newf(dErrors.CodeValidation, "unknown decision type %q", s)
}

// Status is the application-facing state a decision type implies.
type Status string

const (
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusUnderReview Status = "under_review"
)

// StatusEvaluating is the transient state a history trail starts from.
const StatusEvaluating = "EVALUATING"

// Status maps a decision type to its application status.
func (t Type) Status() Status {
	switch t {
	case TypeAutoApprove:
		return StatusApproved
	case TypeAutoReject:
		return StatusRejected
	default:
		return StatusUnderReview
	}
}

// Terminal reports whether the status needs no further human action.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Result is one immutable decision record. Corrections happen via Override,
// never by mutating the result.
type Result struct {
	ID            id.DecisionID
	ApplicantID   id.ApplicantID
	SchemeID      id.SchemeID
	RuleVersion   int
	Type          Type
	Status        Status
	Evaluations   []evaluator.RuleEvaluation
	Risk          *risk.Assessment
	RiskUnknown   bool
	RoutingTarget string
	CreatedAt     time.Time
}

// Override records an officer correcting an automated decision. Overrides are
// append-only; Seq orders them and backs the optimistic concurrency check.
type Override struct {
	ID         id.OverrideID
	DecisionID id.DecisionID
	NewType    Type
	Reason     string
	OfficerID  id.OfficerID
	Seq        int
	CreatedAt  time.Time
}

// HistoryEntry is one append-only transition in the audit trail. It is never
// mutated or deleted; decision history is reconstructed by replaying entries
// chronologically.
type HistoryEntry struct {
	DecisionID    id.DecisionID
	FromStatus    string
	ToStatus      string
	Actor         string
	ChangedByType string
	Reason        string
	At            time.Time
}

// Actor types recorded on history entries.
const (
	ChangedBySystem  = "system"
	ChangedByOfficer = "officer"
)
