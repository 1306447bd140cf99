package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"arbiter/internal/decision"
	"arbiter/internal/risk"
	id "arbiter/pkg/domain"
	"arbiter/pkg/platform/sentinel"
)

// Postgres persists decision records. Rule evaluations and the risk
// assessment are frozen as JSONB alongside the result so audit replay does
// not depend on the rule tables. The override sequence check runs inside a
// transaction so concurrent overrides of one decision serialize.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) SaveResult(ctx context.Context, result *decision.Result) error {
	evals, err := json.Marshal(result.Evaluations)
	if err != nil {
		return fmt.Errorf("marshal evaluations: %w", err)
	}
	var riskDoc []byte
	if result.Risk != nil {
		if riskDoc, err = json.Marshal(result.Risk); err != nil {
			return fmt.Errorf("marshal risk: %w", err)
		}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO decision_results
			(id, applicant_id, scheme_id, rule_version, decision_type, decision_status,
			 evaluations, risk, risk_unknown, routing_target, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		result.ID.String(), result.ApplicantID.String(), result.SchemeID.String(),
		result.RuleVersion, string(result.Type), string(result.Status),
		evals, riskDoc, result.RiskUnknown, result.RoutingTarget, result.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("save decision: %w", err)
	}
	return nil
}

func (s *Postgres) GetResult(ctx context.Context, decisionID id.DecisionID) (*decision.Result, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, applicant_id, scheme_id, rule_version, decision_type, decision_status,
		       evaluations, risk, risk_unknown, routing_target, created_at
		FROM decision_results WHERE id = $1`, decisionID.String())
	result, err := scanResult(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get decision: %w", err)
	}
	return result, nil
}

func (s *Postgres) ListResults(ctx context.Context, schemeID id.SchemeID, from, to time.Time) ([]decision.Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, applicant_id, scheme_id, rule_version, decision_type, decision_status,
		       evaluations, risk, risk_unknown, routing_target, created_at
		FROM decision_results
		WHERE scheme_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at`, schemeID.String(), from, to)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []decision.Result
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("list decisions: %w", err)
		}
		out = append(out, *result)
	}
	return out, rows.Err()
}

func (s *Postgres) AppendOverride(ctx context.Context, override *decision.Override, expectedSeq int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin override: %w", err)
	}
	defer tx.Rollback()

	// Lock the parent row so concurrent overrides of one decision serialize;
	// the lock also doubles as the existence check.
	var one int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM decision_results WHERE id = $1 FOR UPDATE`,
		override.DecisionID.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock decision: %w", err)
	}

	var current int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM decision_overrides WHERE decision_id = $1`,
		override.DecisionID.String()).Scan(&current); err != nil {
		return fmt.Errorf("current override seq: %w", err)
	}
	if current != expectedSeq {
		return sentinel.ErrConflict
	}

	override.Seq = expectedSeq + 1
	_, err = tx.ExecContext(ctx, `
		INSERT INTO decision_overrides (id, decision_id, new_type, reason, officer_id, seq, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		override.ID.String(), override.DecisionID.String(), string(override.NewType),
		override.Reason, override.OfficerID.String(), override.Seq, override.CreatedAt,
	)
	if err != nil {
		// Unique (decision_id, seq) backs the race check across instances.
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("append override: %w", err)
	}
	return tx.Commit()
}

func (s *Postgres) ListOverrides(ctx context.Context, decisionID id.DecisionID) ([]decision.Override, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, decision_id, new_type, reason, officer_id, seq, created_at
		FROM decision_overrides WHERE decision_id = $1 ORDER BY seq`, decisionID.String())
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	defer rows.Close()

	var out []decision.Override
	for rows.Next() {
		var (
			ov         decision.Override
			idStr      string
			decIDStr   string
			newType    string
			officerStr string
		)
		if err := rows.Scan(&idStr, &decIDStr, &newType, &ov.Reason, &officerStr, &ov.Seq, &ov.CreatedAt); err != nil {
			return nil, fmt.Errorf("list overrides: %w", err)
		}
		if ov.ID, err = id.ParseOverrideID(idStr); err != nil {
			return nil, err
		}
		if ov.DecisionID, err = id.ParseDecisionID(decIDStr); err != nil {
			return nil, err
		}
		if ov.OfficerID, err = id.ParseOfficerID(officerStr); err != nil {
			return nil, err
		}
		ov.NewType = decision.Type(newType)
		out = append(out, ov)
	}
	return out, rows.Err()
}

func (s *Postgres) AppendHistory(ctx context.Context, entry decision.HistoryEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decision_history (decision_id, from_status, to_status, actor, changed_by_type, reason, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.DecisionID.String(), entry.FromStatus, entry.ToStatus,
		entry.Actor, entry.ChangedByType, entry.Reason, entry.At,
	)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (s *Postgres) ListHistory(ctx context.Context, decisionID id.DecisionID) ([]decision.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT decision_id, from_status, to_status, actor, changed_by_type, reason, at
		FROM decision_history WHERE decision_id = $1 ORDER BY at`, decisionID.String())
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []decision.HistoryEntry
	for rows.Next() {
		var (
			entry    decision.HistoryEntry
			decIDStr string
		)
		if err := rows.Scan(&decIDStr, &entry.FromStatus, &entry.ToStatus,
			&entry.Actor, &entry.ChangedByType, &entry.Reason, &entry.At); err != nil {
			return nil, fmt.Errorf("list history: %w", err)
		}
		if entry.DecisionID, err = id.ParseDecisionID(decIDStr); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// isUniqueViolation reports whether err is a SQLSTATE 23505 unique violation,
// the only insert failure that maps to an optimistic-concurrency conflict.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func scanResult(row interface{ Scan(...any) error }) (*decision.Result, error) {
	var (
		result    decision.Result
		idStr     string
		appStr    string
		schemeStr string
		typeStr   string
		statusStr string
		evals     []byte
		riskDoc   []byte
	)
	err := row.Scan(&idStr, &appStr, &schemeStr, &result.RuleVersion, &typeStr, &statusStr,
		&evals, &riskDoc, &result.RiskUnknown, &result.RoutingTarget, &result.CreatedAt)
	if err != nil {
		return nil, err
	}
	if result.ID, err = id.ParseDecisionID(idStr); err != nil {
		return nil, err
	}
	if result.ApplicantID, err = id.ParseApplicantID(appStr); err != nil {
		return nil, err
	}
	if result.SchemeID, err = id.ParseSchemeID(schemeStr); err != nil {
		return nil, err
	}
	result.Type = decision.Type(typeStr)
	result.Status = decision.Status(statusStr)
	if len(evals) > 0 {
		if err := json.Unmarshal(evals, &result.Evaluations); err != nil {
			return nil, fmt.Errorf("unmarshal evaluations: %w", err)
		}
	}
	if len(riskDoc) > 0 {
		result.Risk = &risk.Assessment{}
		if err := json.Unmarshal(riskDoc, result.Risk); err != nil {
			return nil, fmt.Errorf("unmarshal risk: %w", err)
		}
	}
	return &result, nil
}
