package handler

import (
	"strings"

	"arbiter/internal/decision"
	id "arbiter/pkg/domain"
	dErrors "arbiter/pkg/domain-errors"
)

// EvaluateRequest is the HTTP body for POST /decisions/evaluate. Version is
// optional; zero means the scheme's active version.
type EvaluateRequest struct {
	ApplicantID string `json:"applicant_id"`
	SchemeID    string `json:"scheme_id"`
	Version     int    `json:"version,omitempty"`

	parsedApplicantID id.ApplicantID
	parsedSchemeID    id.SchemeID
}

func (r *EvaluateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	applicantID, err := id.ParseApplicantID(r.ApplicantID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "applicant_id is invalid")
	}
	r.parsedApplicantID = applicantID

	schemeID, err := id.ParseSchemeID(r.SchemeID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "scheme_id is invalid")
	}
	r.parsedSchemeID = schemeID

	if r.Version < 0 {
		return dErrors.New(dErrors.CodeValidation, "version must be positive when set")
	}
	return nil
}

func (r *EvaluateRequest) ParsedApplicantID() id.ApplicantID { return r.parsedApplicantID }
func (r *EvaluateRequest) ParsedSchemeID() id.SchemeID       { return r.parsedSchemeID }

// OverrideRequest is the HTTP body for POST /decisions/{decisionID}/override.
type OverrideRequest struct {
	NewType string `json:"new_type"`
	Reason  string `json:"reason"`

	parsedType decision.Type
}

func (r *OverrideRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	parsed, err := decision.ParseType(r.NewType)
	if err != nil {
		return err
	}
	r.parsedType = parsed

	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	if len(r.Reason) > 2000 {
		return dErrors.New(dErrors.CodeValidation, "reason must be at most 2000 characters")
	}
	return nil
}

func (r *OverrideRequest) ParsedType() decision.Type { return r.parsedType }

// CompareRequest is the HTTP body for POST /schemes/{schemeID}/compare.
type CompareRequest struct {
	ApplicantID string `json:"applicant_id"`
	OldVersion  int    `json:"old_version"`
	NewVersion  int    `json:"new_version"`

	parsedApplicantID id.ApplicantID
}

func (r *CompareRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	applicantID, err := id.ParseApplicantID(r.ApplicantID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "applicant_id is invalid")
	}
	r.parsedApplicantID = applicantID

	if r.OldVersion < 1 || r.NewVersion < 1 {
		return dErrors.New(dErrors.CodeValidation, "versions must be at least 1")
	}
	return nil
}

func (r *CompareRequest) ParsedApplicantID() id.ApplicantID { return r.parsedApplicantID }

// ThresholdsRequest is the HTTP body for PUT /schemes/{schemeID}/risk-thresholds.
type ThresholdsRequest struct {
	LowBelow float64 `json:"low_below"`
	HighFrom float64 `json:"high_from"`
}

func (r *ThresholdsRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	// Range/order checks live on risk.Thresholds; the handler only rejects
	// an absent body here.
	return nil
}
