package handler

import (
	"time"

	"arbiter/internal/rules/models"
)

// RuleResponse is the HTTP shape of one rule.
type RuleResponse struct {
	ID         string    `json:"id"`
	SchemeID   string    `json:"scheme_id"`
	Category   string    `json:"category"`
	Name       string    `json:"name"`
	Expression string    `json:"expression"`
	Severity   string    `json:"severity"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// FromRule converts a domain rule to its HTTP shape.
func FromRule(rule *models.Rule) *RuleResponse {
	return &RuleResponse{
		ID:         rule.ID.String(),
		SchemeID:   rule.SchemeID.String(),
		Category:   string(rule.Category),
		Name:       rule.Name,
		Expression: rule.Expression,
		Severity:   string(rule.Severity),
		Active:     rule.Active,
		CreatedAt:  rule.CreatedAt,
		UpdatedAt:  rule.UpdatedAt,
	}
}

// VersionResponse is the HTTP shape of one published rule version.
type VersionResponse struct {
	ID             string         `json:"id"`
	SchemeID       string         `json:"scheme_id"`
	Version        int            `json:"version"`
	Rules          []RuleResponse `json:"rules"`
	PublishedAt    time.Time      `json:"published_at"`
	RolledBackFrom int            `json:"rolled_back_from,omitempty"`
}

// FromVersion converts a frozen version to its HTTP shape.
func FromVersion(version *models.RuleVersion) *VersionResponse {
	rules := make([]RuleResponse, 0, len(version.Rules))
	for i := range version.Rules {
		rules = append(rules, *FromRule(&version.Rules[i]))
	}
	return &VersionResponse{
		ID:             version.ID.String(),
		SchemeID:       version.SchemeID.String(),
		Version:        version.Version,
		Rules:          rules,
		PublishedAt:    version.PublishedAt,
		RolledBackFrom: version.RolledBackFrom,
	}
}

// SnapshotResponse is the HTTP shape of a named version tag.
type SnapshotResponse struct {
	Name      string    `json:"name"`
	SchemeID  string    `json:"scheme_id"`
	VersionID string    `json:"version_id"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// FromSnapshot converts a snapshot to its HTTP shape.
func FromSnapshot(snapshot *models.RuleSetSnapshot) *SnapshotResponse {
	return &SnapshotResponse{
		Name:      snapshot.Name,
		SchemeID:  snapshot.SchemeID.String(),
		VersionID: snapshot.VersionID.String(),
		Version:   snapshot.Version,
		CreatedAt: snapshot.CreatedAt,
	}
}
