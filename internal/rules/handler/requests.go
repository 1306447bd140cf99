package handler

import (
	"strings"

	"arbiter/internal/rules/models"
	dErrors "arbiter/pkg/domain-errors"
)

// RuleRequest is the HTTP body for creating or updating a rule.
type RuleRequest struct {
	Category   string `json:"category"`
	Name       string `json:"name"`
	Expression string `json:"expression"`
	Severity   string `json:"severity"`
	Active     bool   `json:"active"`

	parsedCategory models.Category
	parsedSeverity models.Severity
}

// Validate parses the enum fields and checks required ones. Expression
// syntax/type checking happens in the service, where the compiler lives.
func (r *RuleRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	r.Expression = strings.TrimSpace(r.Expression)
	if r.Expression == "" {
		return dErrors.New(dErrors.CodeValidation, "expression is required")
	}

	category, err := models.ParseCategory(r.Category)
	if err != nil {
		return err
	}
	r.parsedCategory = category

	severity, err := models.ParseSeverity(r.Severity)
	if err != nil {
		return err
	}
	r.parsedSeverity = severity
	return nil
}

// ParsedCategory returns the validated category.
func (r *RuleRequest) ParsedCategory() models.Category { return r.parsedCategory }

// ParsedSeverity returns the validated severity.
func (r *RuleRequest) ParsedSeverity() models.Severity { return r.parsedSeverity }

// SetActiveRequest is the HTTP body for toggling a rule's active flag.
type SetActiveRequest struct {
	Active *bool `json:"active"`
}

func (r *SetActiveRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Active == nil {
		return dErrors.New(dErrors.CodeValidation, "active is required")
	}
	return nil
}

// RollbackRequest is the HTTP body for rolling a scheme back to a prior
// version's content.
type RollbackRequest struct {
	TargetVersion int `json:"target_version"`
}

func (r *RollbackRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.TargetVersion < 1 {
		return dErrors.New(dErrors.CodeValidation, "target_version must be at least 1")
	}
	return nil
}

// SnapshotRequest is the HTTP body for tagging a version with a name.
type SnapshotRequest struct {
	Version int    `json:"version"`
	Name    string `json:"name"`
}

func (r *SnapshotRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Version < 1 {
		return dErrors.New(dErrors.CodeValidation, "version must be at least 1")
	}
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if len(r.Name) > 128 {
		return dErrors.New(dErrors.CodeValidation, "name must be at most 128 characters")
	}
	return nil
}
