// Package stp aggregates straight-through-processing metrics over a window
// of decisions: how many applications the engine settled without a human,
// and how long the rest took to reach a terminal status.
package stp

import (
	"context"
	"errors"
	"time"

	"arbiter/internal/decision"
	"arbiter/internal/decision/ports"
	id "arbiter/pkg/domain"
	dErrors "arbiter/pkg/domain-errors"
)

// Report summarizes decisions for one scheme over [From, To).
type Report struct {
	SchemeID id.SchemeID `json:"scheme_id"`
	From     time.Time   `json:"from"`
	To       time.Time   `json:"to"`

	Total     int                   `json:"total"`
	ByType    map[decision.Type]int `json:"by_type"`
	Overrides int                   `json:"overrides"`

	// AutoApprovalRate is AUTO_APPROVE decisions over all decisions.
	AutoApprovalRate float64 `json:"auto_approval_rate"`
	// StraightThroughRate counts decisions that reached a terminal status
	// without officer involvement.
	StraightThroughRate float64 `json:"straight_through_rate"`

	// AvgTimeToFinal averages the time from evaluation to a terminal
	// status. Auto decisions are terminal at creation; routed decisions
	// count from creation to the override that settled them. Decisions
	// still under review are excluded.
	AvgTimeToFinal time.Duration `json:"avg_time_to_final_ns"`
	// Unresolved is how many routed decisions have not reached a terminal
	// status yet.
	Unresolved int `json:"unresolved"`
}

// Aggregator computes Reports from the decision store.
type Aggregator struct {
	store ports.Store
}

func New(store ports.Store) (*Aggregator, error) {
	if store == nil {
		return nil, errors.New("decision store is required")
	}
	return &Aggregator{store: store}, nil
}

// Aggregate builds the report for one scheme over [from, to).
func (a *Aggregator) Aggregate(ctx context.Context, schemeID id.SchemeID, from, to time.Time) (*Report, error) {
	if !to.After(from) {
		return nil, dErrors.New(dErrors.CodeValidation, "aggregation window end must be after its start")
	}

	results, err := a.store.ListResults(ctx, schemeID, from, to)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list decision results")
	}

	report := &Report{
		SchemeID: schemeID,
		From:     from,
		To:       to,
		Total:    len(results),
		ByType:   make(map[decision.Type]int),
	}

	var (
		finalized       int
		totalToFinal    time.Duration
		straightThrough int
	)
	for i := range results {
		result := &results[i]
		report.ByType[result.Type]++

		overrides, err := a.store.ListOverrides(ctx, result.ID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list overrides")
		}
		report.Overrides += len(overrides)

		settledAt, terminal := settledAt(result, overrides)
		if !terminal {
			report.Unresolved++
			continue
		}
		finalized++
		totalToFinal += settledAt.Sub(result.CreatedAt)
		if len(overrides) == 0 && result.Status.Terminal() {
			straightThrough++
		}
	}

	if report.Total > 0 {
		report.AutoApprovalRate = float64(report.ByType[decision.TypeAutoApprove]) / float64(report.Total)
		report.StraightThroughRate = float64(straightThrough) / float64(report.Total)
	}
	if finalized > 0 {
		report.AvgTimeToFinal = totalToFinal / time.Duration(finalized)
	}
	return report, nil
}

// settledAt finds when a decision reached a terminal status, walking the
// override chain in order. An overridden decision is settled by the first
// override whose type is terminal and not undone by a later one; in practice
// that is simply the last override, since only the latest is in force.
func settledAt(result *decision.Result, overrides []decision.Override) (time.Time, bool) {
	if n := len(overrides); n > 0 {
		last := overrides[n-1]
		return last.CreatedAt, last.NewType.Status().Terminal()
	}
	return result.CreatedAt, result.Status.Terminal()
}
