// Package models holds the rule lifecycle entities: draft rules, published
// immutable versions, and named snapshots.
package models

import (
	"time"

	id "arbiter/pkg/domain"
	dErrors "arbiter/pkg/domain-errors"
)

// Severity determines whether a rule failure can alone cause rejection.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityMajor    Severity = "MAJOR"
	SeverityMinor    Severity = "MINOR"
	SeverityInfo     Severity = "INFO"
)

// ParseSeverity validates a severity string.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityCritical, SeverityMajor, SeverityMinor, SeverityInfo:
		return Severity(s), nil
	}
	return "", dErrors.Newf(dErrors.CodeValidation, "unknown severity %q", s)
}

// Category groups rules for routing and stable ordering. Identity and
// duplicate categories are fraud-indicative: a critical failure there routes
// to the fraud queue instead of auto-reject.
type Category string

const (
	CategoryEligibility   Category = "eligibility"
	CategoryIncome        Category = "income"
	CategoryIdentity      Category = "identity"
	CategoryDuplicate     Category = "duplicate"
	CategoryCompliance    Category = "compliance"
	CategoryDocumentation Category = "documentation"
)

// ParseCategory validates a category string.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryEligibility, CategoryIncome, CategoryIdentity,
		CategoryDuplicate, CategoryCompliance, CategoryDocumentation:
		return Category(s), nil
	}
	return "", dErrors.Newf(dErrors.CodeValidation, "unknown rule category %q", s)
}

// FraudIndicative reports whether a critical failure in this category should
// route to fraud review rather than auto-reject.
func (c Category) FraudIndicative() bool {
	return c == CategoryIdentity || c == CategoryDuplicate
}

// Rule is a single eligibility/compliance check. A rule is mutable only while
// it is a draft; publish freezes it into a RuleVersion.
type Rule struct {
	ID       id.RuleID
	SchemeID id.SchemeID
	Category Category
	Name     string
	// Expression is a boolean expression over applicant facts. It is
	// statically validated at publish time, never at evaluation time.
	Expression string
	Severity   Severity
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate checks the structural fields. Expression syntax/type checking is
// the expr package's job.
func (r *Rule) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "rule is required")
	}
	if r.SchemeID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "scheme_id is required")
	}
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if r.Expression == "" {
		return dErrors.New(dErrors.CodeValidation, "expression is required")
	}
	if _, err := ParseSeverity(string(r.Severity)); err != nil {
		return err
	}
	if _, err := ParseCategory(string(r.Category)); err != nil {
		return err
	}
	return nil
}

// RuleVersion is an immutable snapshot of a scheme's active rules, created by
// publish or rollback. Version numbers increase monotonically per scheme.
// Superseded versions are retained for audit and comparison, never deleted.
type RuleVersion struct {
	ID          id.VersionID
	SchemeID    id.SchemeID
	Version     int
	Rules       []Rule
	PublishedAt time.Time
	// RolledBackFrom records the version a rollback reproduced, zero for
	// ordinary publishes.
	RolledBackFrom int
}

// RuleSetSnapshot is a named, user-taggable pointer to a specific
// RuleVersion, used for reproducible comparison and rollback targets.
type RuleSetSnapshot struct {
	Name      string
	SchemeID  id.SchemeID
	VersionID id.VersionID
	Version   int
	CreatedAt time.Time
}
