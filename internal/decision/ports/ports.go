// Package ports declares the collaborator contracts the decision service and
// the override manager depend on, so implementations stay swappable in tests.
package ports

import (
	"context"
	"time"

	"arbiter/internal/decision"
	id "arbiter/pkg/domain"
)

// Store persists decision results, overrides, and the append-only history
// trail. Results are immutable once saved; overrides are append-only with an
// optimistic sequence check.
type Store interface {
	SaveResult(ctx context.Context, result *decision.Result) error
	GetResult(ctx context.Context, decisionID id.DecisionID) (*decision.Result, error)
	ListResults(ctx context.Context, schemeID id.SchemeID, from, to time.Time) ([]decision.Result, error)

	// AppendOverride fails with sentinel.ErrConflict unless the decision
	// currently has exactly expectedSeq overrides.
	AppendOverride(ctx context.Context, override *decision.Override, expectedSeq int) error
	ListOverrides(ctx context.Context, decisionID id.DecisionID) ([]decision.Override, error)

	AppendHistory(ctx context.Context, entry decision.HistoryEntry) error
	ListHistory(ctx context.Context, decisionID id.DecisionID) ([]decision.HistoryEntry, error)
}

// Dispatcher enqueues a decided result for downstream handling. Delivery is
// at-least-once; consumers dedupe on decision id.
type Dispatcher interface {
	Dispatch(ctx context.Context, result *decision.Result) error
}
