// Package handler exposes evaluation, overrides, audit reads, version
// comparison, STP metrics, and worklist generation over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"arbiter/internal/compare"
	"arbiter/internal/decision"
	"arbiter/internal/override"
	"arbiter/internal/risk"
	"arbiter/internal/stp"
	"arbiter/internal/worklist"
	id "arbiter/pkg/domain"
	dErrors "arbiter/pkg/domain-errors"
	"arbiter/pkg/platform/httputil"
	"arbiter/pkg/requestcontext"
)

// DecisionService runs evaluations and reads results.
type DecisionService interface {
	Evaluate(ctx context.Context, applicantID id.ApplicantID, schemeID id.SchemeID) (*decision.Result, error)
	EvaluateVersion(ctx context.Context, applicantID id.ApplicantID, schemeID id.SchemeID, versionTag int) (*decision.Result, error)
	GetResult(ctx context.Context, decisionID id.DecisionID) (*decision.Result, error)
	History(ctx context.Context, decisionID id.DecisionID) ([]decision.HistoryEntry, error)
}

// OverrideService applies officer corrections.
type OverrideService interface {
	Apply(ctx context.Context, req override.Request) (*decision.Override, error)
	Get(ctx context.Context, decisionID id.DecisionID) (*override.Effective, error)
}

// CompareEngine replays applicants against two versions.
type CompareEngine interface {
	Compare(ctx context.Context, schemeID id.SchemeID, applicantID id.ApplicantID, oldVersion, newVersion int) (*compare.Comparison, error)
}

// Aggregator computes STP reports.
type Aggregator interface {
	Aggregate(ctx context.Context, schemeID id.SchemeID, from, to time.Time) (*stp.Report, error)
}

// WorklistGenerator streams review candidates.
type WorklistGenerator interface {
	Stream(ctx context.Context, params worklist.Params) (<-chan worklist.Candidate, error)
}

// Thresholds administers per-scheme risk banding.
type Thresholds interface {
	Get(schemeID id.SchemeID) risk.Thresholds
	Set(schemeID id.SchemeID, t risk.Thresholds) error
}

// Handler wires decision endpoints to their services.
type Handler struct {
	decisions  DecisionService
	overrides  OverrideService
	comparer   CompareEngine
	aggregator Aggregator
	worklists  WorklistGenerator
	thresholds Thresholds
	logger     *slog.Logger
}

// New constructs a decision handler with its dependencies.
func New(decisions DecisionService, overrides OverrideService, comparer CompareEngine, aggregator Aggregator, worklists WorklistGenerator, thresholds Thresholds, logger *slog.Logger) *Handler {
	return &Handler{
		decisions:  decisions,
		overrides:  overrides,
		comparer:   comparer,
		aggregator: aggregator,
		worklists:  worklists,
		thresholds: thresholds,
		logger:     logger,
	}
}

// Register mounts decision endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/decisions/evaluate", h.HandleEvaluate)
	r.Route("/decisions/{decisionID}", func(r chi.Router) {
		r.Get("/", h.HandleGetDecision)
		r.Get("/history", h.HandleHistory)
		r.Post("/override", h.HandleOverride)
	})
	r.Route("/schemes/{schemeID}", func(r chi.Router) {
		r.Post("/compare", h.HandleCompare)
		r.Get("/stp-metrics", h.HandleSTPMetrics)
		r.Get("/worklist", h.HandleWorklist)
		r.Get("/risk-thresholds", h.HandleGetThresholds)
		r.Put("/risk-thresholds", h.HandleSetThresholds)
	})
}

func (h *Handler) decisionID(w http.ResponseWriter, r *http.Request) (id.DecisionID, bool) {
	decisionID, err := id.ParseDecisionID(chi.URLParam(r, "decisionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.DecisionID{}, false
	}
	return decisionID, true
}

func (h *Handler) schemeID(w http.ResponseWriter, r *http.Request) (id.SchemeID, bool) {
	schemeID, err := id.ParseSchemeID(chi.URLParam(r, "schemeID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.SchemeID{}, false
	}
	return schemeID, true
}

// HandleEvaluate handles POST /decisions/evaluate.
func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[EvaluateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	var result *decision.Result
	var err error
	if req.Version > 0 {
		result, err = h.decisions.EvaluateVersion(ctx, req.ParsedApplicantID(), req.ParsedSchemeID(), req.Version)
	} else {
		result, err = h.decisions.Evaluate(ctx, req.ParsedApplicantID(), req.ParsedSchemeID())
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "evaluation failed",
			"request_id", requestID,
			"applicant_id", req.ApplicantID,
			"scheme_id", req.SchemeID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromResult(result))
}

// HandleGetDecision handles GET /decisions/{decisionID}; the response carries
// the override chain and the decision currently in force.
func (h *Handler) HandleGetDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	decisionID, ok := h.decisionID(w, r)
	if !ok {
		return
	}
	effective, err := h.overrides.Get(ctx, decisionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	overrides := make([]OverrideResponse, 0, len(effective.Overrides))
	for i := range effective.Overrides {
		overrides = append(overrides, *FromOverride(&effective.Overrides[i]))
	}
	httputil.WriteJSON(w, http.StatusOK, &EffectiveResponse{
		Decision:        FromResult(effective.Result),
		Overrides:       overrides,
		EffectiveType:   string(effective.Type()),
		EffectiveStatus: string(effective.Status()),
	})
}

// HandleHistory handles GET /decisions/{decisionID}/history.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	decisionID, ok := h.decisionID(w, r)
	if !ok {
		return
	}
	entries, err := h.decisions.History(ctx, decisionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"history": FromHistory(entries)})
}

// HandleOverride handles POST /decisions/{decisionID}/override. The officer
// identity comes from the request context, not the body.
func (h *Handler) HandleOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	officerID := requestcontext.OfficerID(ctx)
	if officerID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "officer identity required"))
		return
	}
	decisionID, ok := h.decisionID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[OverrideRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	ov, err := h.overrides.Apply(ctx, override.Request{
		DecisionID: decisionID,
		OfficerID:  officerID,
		NewType:    req.ParsedType(),
		Reason:     req.Reason,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "override failed",
			"request_id", requestID,
			"decision_id", decisionID,
			"officer_id", officerID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromOverride(ov))
}

// HandleCompare handles POST /schemes/{schemeID}/compare.
func (h *Handler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	schemeID, ok := h.schemeID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CompareRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	cmp, err := h.comparer.Compare(ctx, schemeID, req.ParsedApplicantID(), req.OldVersion, req.NewVersion)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cmp)
}

// HandleSTPMetrics handles GET /schemes/{schemeID}/stp-metrics?from=...&to=...
// with RFC 3339 bounds.
func (h *Handler) HandleSTPMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	schemeID, ok := h.schemeID(w, r)
	if !ok {
		return
	}
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "from must be an RFC 3339 timestamp"))
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "to must be an RFC 3339 timestamp"))
		return
	}

	report, err := h.aggregator.Aggregate(ctx, schemeID, from, to)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// HandleWorklist handles GET /schemes/{schemeID}/worklist and streams
// candidates as NDJSON so large scans never buffer server-side.
func (h *Handler) HandleWorklist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	schemeID, ok := h.schemeID(w, r)
	if !ok {
		return
	}

	params := worklist.Params{
		SchemeID: schemeID,
		District: r.URL.Query().Get("district"),
	}
	if raw := r.URL.Query().Get("min_score"); raw != "" {
		minScore, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "min_score must be a number"))
			return
		}
		params.MinScore = minScore
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be an integer"))
			return
		}
		params.Limit = limit
	}

	stream, err := h.worklists.Stream(ctx, params)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	encoder := json.NewEncoder(w)
	for candidate := range stream {
		if err := encoder.Encode(candidate); err != nil {
			// Client went away; drain is handled by ctx cancellation.
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// HandleGetThresholds handles GET /schemes/{schemeID}/risk-thresholds.
func (h *Handler) HandleGetThresholds(w http.ResponseWriter, r *http.Request) {
	schemeID, ok := h.schemeID(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.thresholds.Get(schemeID))
}

// HandleSetThresholds handles PUT /schemes/{schemeID}/risk-thresholds.
func (h *Handler) HandleSetThresholds(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	schemeID, ok := h.schemeID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ThresholdsRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	thresholds := risk.Thresholds{LowBelow: req.LowBelow, HighFrom: req.HighFrom}
	if err := h.thresholds.Set(schemeID, thresholds); err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "risk thresholds updated",
		"request_id", requestID, "scheme_id", schemeID,
		"low_below", thresholds.LowBelow, "high_from", thresholds.HighFrom)
	httputil.WriteJSON(w, http.StatusOK, thresholds)
}
