// Package domain defines typed identifiers shared across modules.
//
// Each entity gets its own uuid-backed type so the compiler rejects mixing a
// SchemeID where a RuleID is expected. ParseXxxID enforces the invariant that
// ids are valid, non-empty, non-nil UUIDs at trust boundaries.
package domain

import (
	"github.com/google/uuid"

	dErrors "arbiter/pkg/domain-errors"
)

type (
	// SchemeID identifies a welfare scheme.
	SchemeID uuid.UUID
	// RuleID identifies a single eligibility/compliance rule.
	RuleID uuid.UUID
	// VersionID identifies a published rule version.
	VersionID uuid.UUID
	// ApplicantID identifies an applicant.
	ApplicantID uuid.UUID
	// DecisionID identifies a decision result.
	DecisionID uuid.UUID
	// OverrideID identifies an officer override.
	OverrideID uuid.UUID
	// OfficerID identifies a human reviewer.
	OfficerID uuid.UUID
)

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "malformed id")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "nil id")
	}
	return u, nil
}

func ParseSchemeID(s string) (SchemeID, error) {
	u, err := parseUUID(s)
	return SchemeID(u), err
}

func ParseRuleID(s string) (RuleID, error) {
	u, err := parseUUID(s)
	return RuleID(u), err
}

func ParseVersionID(s string) (VersionID, error) {
	u, err := parseUUID(s)
	return VersionID(u), err
}

func ParseApplicantID(s string) (ApplicantID, error) {
	u, err := parseUUID(s)
	return ApplicantID(u), err
}

func ParseDecisionID(s string) (DecisionID, error) {
	u, err := parseUUID(s)
	return DecisionID(u), err
}

func ParseOverrideID(s string) (OverrideID, error) {
	u, err := parseUUID(s)
	return OverrideID(u), err
}

func ParseOfficerID(s string) (OfficerID, error) {
	u, err := parseUUID(s)
	return OfficerID(u), err
}

func (id SchemeID) String() string    { return uuid.UUID(id).String() }
func (id RuleID) String() string      { return uuid.UUID(id).String() }
func (id VersionID) String() string   { return uuid.UUID(id).String() }
func (id ApplicantID) String() string { return uuid.UUID(id).String() }
func (id DecisionID) String() string  { return uuid.UUID(id).String() }
func (id OverrideID) String() string  { return uuid.UUID(id).String() }
func (id OfficerID) String() string   { return uuid.UUID(id).String() }

// MarshalText keeps ids as canonical uuid strings on the wire. Defined types
// do not inherit uuid.UUID's method set, so each id carries its own.
func (id SchemeID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id RuleID) MarshalText() ([]byte, error)      { return []byte(id.String()), nil }
func (id VersionID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }
func (id ApplicantID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id DecisionID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id OverrideID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id OfficerID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }

func (id *SchemeID) UnmarshalText(b []byte) error {
	parsed, err := ParseSchemeID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *RuleID) UnmarshalText(b []byte) error {
	parsed, err := ParseRuleID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *VersionID) UnmarshalText(b []byte) error {
	parsed, err := ParseVersionID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ApplicantID) UnmarshalText(b []byte) error {
	parsed, err := ParseApplicantID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *DecisionID) UnmarshalText(b []byte) error {
	parsed, err := ParseDecisionID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *OverrideID) UnmarshalText(b []byte) error {
	parsed, err := ParseOverrideID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *OfficerID) UnmarshalText(b []byte) error {
	parsed, err := ParseOfficerID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id SchemeID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id RuleID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id VersionID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id ApplicantID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id DecisionID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id OverrideID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id OfficerID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

// NewSchemeID generates a fresh scheme id.
func NewSchemeID() SchemeID { return SchemeID(uuid.New()) }

// NewRuleID generates a fresh rule id.
func NewRuleID() RuleID { return RuleID(uuid.New()) }

// NewVersionID generates a fresh version id.
func NewVersionID() VersionID { return VersionID(uuid.New()) }

// NewApplicantID generates a fresh applicant id.
func NewApplicantID() ApplicantID { return ApplicantID(uuid.New()) }

// NewDecisionID generates a fresh decision id.
func NewDecisionID() DecisionID { return DecisionID(uuid.New()) }

// NewOverrideID generates a fresh override id.
func NewOverrideID() OverrideID { return OverrideID(uuid.New()) }

// NewOfficerID generates a fresh officer id.
func NewOfficerID() OfficerID { return OfficerID(uuid.New()) }
