// Package handler exposes rule authoring and version lifecycle over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"arbiter/internal/rules/models"
	id "arbiter/pkg/domain"
	dErrors "arbiter/pkg/domain-errors"
	"arbiter/pkg/platform/httputil"
	"arbiter/pkg/requestcontext"
)

// Service defines the rule operations the handler needs.
type Service interface {
	CreateRule(ctx context.Context, rule *models.Rule) (*models.Rule, error)
	UpdateRule(ctx context.Context, rule *models.Rule) (*models.Rule, error)
	DeleteRule(ctx context.Context, ruleID id.RuleID) error
	SetActive(ctx context.Context, ruleID id.RuleID, active bool) error
	GetRule(ctx context.Context, ruleID id.RuleID) (*models.Rule, error)
	ListRules(ctx context.Context, schemeID id.SchemeID) ([]models.Rule, error)
	Clone(ctx context.Context, ruleID id.RuleID) (*models.Rule, error)
	Publish(ctx context.Context, schemeID id.SchemeID) (*models.RuleVersion, error)
	Rollback(ctx context.Context, schemeID id.SchemeID, targetVersion int) (*models.RuleVersion, error)
	Snapshot(ctx context.Context, schemeID id.SchemeID, version int, name string) (*models.RuleSetSnapshot, error)
	GetSnapshot(ctx context.Context, schemeID id.SchemeID, name string) (*models.RuleSetSnapshot, error)
	GetVersion(ctx context.Context, schemeID id.SchemeID, version int) (*models.RuleVersion, error)
	ActiveVersion(ctx context.Context, schemeID id.SchemeID) (*models.RuleVersion, error)
}

// Handler wires rule endpoints to the rule service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a rules handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts rule endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/schemes/{schemeID}", func(r chi.Router) {
		r.Post("/rules", h.HandleCreateRule)
		r.Get("/rules", h.HandleListRules)
		r.Post("/publish", h.HandlePublish)
		r.Post("/rollback", h.HandleRollback)
		r.Post("/snapshots", h.HandleSnapshot)
		r.Get("/snapshots/{name}", h.HandleGetSnapshot)
		r.Get("/versions/active", h.HandleActiveVersion)
		r.Get("/versions/{version}", h.HandleGetVersion)
	})
	r.Route("/rules/{ruleID}", func(r chi.Router) {
		r.Get("/", h.HandleGetRule)
		r.Put("/", h.HandleUpdateRule)
		r.Delete("/", h.HandleDeleteRule)
		r.Post("/clone", h.HandleClone)
		r.Post("/active", h.HandleSetActive)
	})
}

func (h *Handler) schemeID(w http.ResponseWriter, r *http.Request) (id.SchemeID, bool) {
	schemeID, err := id.ParseSchemeID(chi.URLParam(r, "schemeID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.SchemeID{}, false
	}
	return schemeID, true
}

func (h *Handler) ruleID(w http.ResponseWriter, r *http.Request) (id.RuleID, bool) {
	ruleID, err := id.ParseRuleID(chi.URLParam(r, "ruleID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.RuleID{}, false
	}
	return ruleID, true
}

// HandleCreateRule handles POST /schemes/{schemeID}/rules.
func (h *Handler) HandleCreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	schemeID, ok := h.schemeID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RuleRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	rule, err := h.service.CreateRule(ctx, &models.Rule{
		SchemeID:   schemeID,
		Category:   req.ParsedCategory(),
		Name:       req.Name,
		Expression: req.Expression,
		Severity:   req.ParsedSeverity(),
		Active:     req.Active,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "rule created",
		"request_id", requestID, "scheme_id", schemeID, "rule_id", rule.ID, "category", rule.Category)
	httputil.WriteJSON(w, http.StatusCreated, FromRule(rule))
}

// HandleListRules handles GET /schemes/{schemeID}/rules.
func (h *Handler) HandleListRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	schemeID, ok := h.schemeID(w, r)
	if !ok {
		return
	}
	rules, err := h.service.ListRules(ctx, schemeID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]RuleResponse, 0, len(rules))
	for i := range rules {
		out = append(out, *FromRule(&rules[i]))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"rules": out})
}

// HandleGetRule handles GET /rules/{ruleID}.
func (h *Handler) HandleGetRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	rule, err := h.service.GetRule(ctx, ruleID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRule(rule))
}

// HandleUpdateRule handles PUT /rules/{ruleID}. Only drafts can change.
func (h *Handler) HandleUpdateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	ruleID, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RuleRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	existing, err := h.service.GetRule(ctx, ruleID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	existing.Category = req.ParsedCategory()
	existing.Name = req.Name
	existing.Expression = req.Expression
	existing.Severity = req.ParsedSeverity()
	existing.Active = req.Active

	rule, err := h.service.UpdateRule(ctx, existing)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "rule updated",
		"request_id", requestID, "rule_id", rule.ID)
	httputil.WriteJSON(w, http.StatusOK, FromRule(rule))
}

// HandleDeleteRule handles DELETE /rules/{ruleID}.
func (h *Handler) HandleDeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteRule(ctx, ruleID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleClone handles POST /rules/{ruleID}/clone.
func (h *Handler) HandleClone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	clone, err := h.service.Clone(ctx, ruleID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "rule cloned",
		"request_id", requestcontext.RequestID(ctx), "source_rule_id", ruleID, "clone_id", clone.ID)
	httputil.WriteJSON(w, http.StatusCreated, FromRule(clone))
}

// HandleSetActive handles POST /rules/{ruleID}/active.
func (h *Handler) HandleSetActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	ruleID, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SetActiveRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.service.SetActive(ctx, ruleID, *req.Active); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandlePublish handles POST /schemes/{schemeID}/publish.
func (h *Handler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	schemeID, ok := h.schemeID(w, r)
	if !ok {
		return
	}
	version, err := h.service.Publish(ctx, schemeID)
	if err != nil {
		h.logger.ErrorContext(ctx, "publish failed",
			"request_id", requestID, "scheme_id", schemeID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "rule version published",
		"request_id", requestID, "scheme_id", schemeID,
		"version", version.Version, "rules", len(version.Rules))
	httputil.WriteJSON(w, http.StatusCreated, FromVersion(version))
}

// HandleRollback handles POST /schemes/{schemeID}/rollback.
func (h *Handler) HandleRollback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	schemeID, ok := h.schemeID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RollbackRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	version, err := h.service.Rollback(ctx, schemeID, req.TargetVersion)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "scheme rolled back",
		"request_id", requestID, "scheme_id", schemeID,
		"target_version", req.TargetVersion, "new_version", version.Version)
	httputil.WriteJSON(w, http.StatusCreated, FromVersion(version))
}

// HandleSnapshot handles POST /schemes/{schemeID}/snapshots.
func (h *Handler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	schemeID, ok := h.schemeID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SnapshotRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	snapshot, err := h.service.Snapshot(ctx, schemeID, req.Version, req.Name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromSnapshot(snapshot))
}

// HandleGetSnapshot handles GET /schemes/{schemeID}/snapshots/{name}.
func (h *Handler) HandleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	schemeID, ok := h.schemeID(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	snapshot, err := h.service.GetSnapshot(ctx, schemeID, name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSnapshot(snapshot))
}

// HandleActiveVersion handles GET /schemes/{schemeID}/versions/active.
func (h *Handler) HandleActiveVersion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	schemeID, ok := h.schemeID(w, r)
	if !ok {
		return
	}
	version, err := h.service.ActiveVersion(ctx, schemeID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromVersion(version))
}

// HandleGetVersion handles GET /schemes/{schemeID}/versions/{version}.
func (h *Handler) HandleGetVersion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	schemeID, ok := h.schemeID(w, r)
	if !ok {
		return
	}
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || version < 1 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "version must be a positive integer"))
		return
	}
	frozen, err := h.service.GetVersion(ctx, schemeID, version)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromVersion(frozen))
}
