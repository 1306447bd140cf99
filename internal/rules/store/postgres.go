package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	// Registers the pgx stdlib driver.
	_ "github.com/jackc/pgx/v5/stdlib"

	"arbiter/internal/rules/models"
	id "arbiter/pkg/domain"
	"arbiter/pkg/platform/sentinel"
)

// Postgres persists rule state in PostgreSQL. Published versions freeze their
// rules as a JSONB document so later draft edits can never reach back into a
// version. The unique (scheme_id, version) index backs the optimistic
// concurrent-publish check.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) CreateRule(ctx context.Context, rule *models.Rule) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rules (id, scheme_id, category, name, expression, severity, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rule.ID.String(), rule.SchemeID.String(), string(rule.Category), rule.Name,
		rule.Expression, string(rule.Severity), rule.Active, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	return nil
}

func (s *Postgres) GetRule(ctx context.Context, ruleID id.RuleID) (*models.Rule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, scheme_id, category, name, expression, severity, active, created_at, updated_at
		FROM rules WHERE id = $1`, ruleID.String())
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return rule, nil
}

func (s *Postgres) isPublished(ctx context.Context, ruleID id.RuleID) (bool, error) {
	var exists, published bool
	err := s.db.QueryRowContext(ctx, `
		SELECT true, EXISTS (SELECT 1 FROM published_rules WHERE rule_id = $1)
		FROM rules WHERE id = $1`, ruleID.String()).Scan(&exists, &published)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, sentinel.ErrNotFound
		}
		return false, fmt.Errorf("check published: %w", err)
	}
	return published, nil
}

func (s *Postgres) UpdateRule(ctx context.Context, rule *models.Rule) error {
	published, err := s.isPublished(ctx, rule.ID)
	if err != nil {
		return err
	}
	if published {
		return sentinel.ErrInvalidState
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE rules SET category = $2, name = $3, expression = $4, severity = $5, active = $6, updated_at = $7
		WHERE id = $1`,
		rule.ID.String(), string(rule.Category), rule.Name, rule.Expression,
		string(rule.Severity), rule.Active, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	return requireRow(res)
}

func (s *Postgres) DeleteRule(ctx context.Context, ruleID id.RuleID) error {
	published, err := s.isPublished(ctx, ruleID)
	if err != nil {
		return err
	}
	if published {
		return sentinel.ErrInvalidState
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = $1`, ruleID.String())
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return requireRow(res)
}

func (s *Postgres) SetActive(ctx context.Context, ruleID id.RuleID, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE rules SET active = $2 WHERE id = $1`, ruleID.String(), active)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	return requireRow(res)
}

func (s *Postgres) ListRules(ctx context.Context, schemeID id.SchemeID) ([]models.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scheme_id, category, name, expression, severity, active, created_at, updated_at
		FROM rules WHERE scheme_id = $1`, schemeID.String())
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []models.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("list rules: %w", err)
		}
		out = append(out, *rule)
	}
	return out, rows.Err()
}

func (s *Postgres) SaveVersion(ctx context.Context, version *models.RuleVersion) error {
	frozen, err := json.Marshal(version.Rules)
	if err != nil {
		return fmt.Errorf("marshal version rules: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin publish: %w", err)
	}
	defer tx.Rollback()

	var latest int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM rule_versions WHERE scheme_id = $1`,
		version.SchemeID.String()).Scan(&latest)
	if err != nil {
		return fmt.Errorf("latest version: %w", err)
	}
	if version.Version != latest+1 {
		return sentinel.ErrConflict
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rule_versions (id, scheme_id, version, rules, published_at, rolled_back_from)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		version.ID.String(), version.SchemeID.String(), version.Version,
		frozen, version.PublishedAt, version.RolledBackFrom,
	)
	if err != nil {
		// Unique (scheme_id, version) races surface here under concurrent publish.
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("save version: %w", err)
	}

	for _, rule := range version.Rules {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO published_rules (rule_id) VALUES ($1) ON CONFLICT DO NOTHING`,
			rule.ID.String())
		if err != nil {
			return fmt.Errorf("mark rule published: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit publish: %w", err)
	}
	return nil
}

func (s *Postgres) GetVersion(ctx context.Context, schemeID id.SchemeID, version int) (*models.RuleVersion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, scheme_id, version, rules, published_at, rolled_back_from
		FROM rule_versions WHERE scheme_id = $1 AND version = $2`,
		schemeID.String(), version)
	return scanVersion(row)
}

func (s *Postgres) LatestVersion(ctx context.Context, schemeID id.SchemeID) (*models.RuleVersion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, scheme_id, version, rules, published_at, rolled_back_from
		FROM rule_versions WHERE scheme_id = $1 ORDER BY version DESC LIMIT 1`,
		schemeID.String())
	return scanVersion(row)
}

func (s *Postgres) SaveSnapshot(ctx context.Context, snapshot *models.RuleSetSnapshot) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO rule_snapshots (scheme_id, name, version_id, version, created_at)
		VALUES ($1, $2, $3, $4, $5) ON CONFLICT DO NOTHING`,
		snapshot.SchemeID.String(), snapshot.Name, snapshot.VersionID.String(),
		snapshot.Version, snapshot.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *Postgres) GetSnapshot(ctx context.Context, schemeID id.SchemeID, name string) (*models.RuleSetSnapshot, error) {
	var (
		snapshot     models.RuleSetSnapshot
		schemeStr    string
		versionIDStr string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT scheme_id, name, version_id, version, created_at
		FROM rule_snapshots WHERE scheme_id = $1 AND name = $2`,
		schemeID.String(), name,
	).Scan(&schemeStr, &snapshot.Name, &versionIDStr, &snapshot.Version, &snapshot.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	if snapshot.SchemeID, err = parseSchemeID(schemeStr); err != nil {
		return nil, err
	}
	if snapshot.VersionID, err = parseVersionID(versionIDStr); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*models.Rule, error) {
	var (
		rule      models.Rule
		idStr     string
		schemeStr string
		category  string
		severity  string
	)
	err := row.Scan(&idStr, &schemeStr, &category, &rule.Name, &rule.Expression,
		&severity, &rule.Active, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if rule.ID, err = parseRuleID(idStr); err != nil {
		return nil, err
	}
	if rule.SchemeID, err = parseSchemeID(schemeStr); err != nil {
		return nil, err
	}
	rule.Category = models.Category(category)
	rule.Severity = models.Severity(severity)
	return &rule, nil
}

func scanVersion(row rowScanner) (*models.RuleVersion, error) {
	var (
		version   models.RuleVersion
		idStr     string
		schemeStr string
		frozen    []byte
	)
	err := row.Scan(&idStr, &schemeStr, &version.Version, &frozen,
		&version.PublishedAt, &version.RolledBackFrom)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get version: %w", err)
	}
	if version.ID, err = parseVersionID(idStr); err != nil {
		return nil, err
	}
	if version.SchemeID, err = parseSchemeID(schemeStr); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(frozen, &version.Rules); err != nil {
		return nil, fmt.Errorf("unmarshal version rules: %w", err)
	}
	return &version, nil
}

// isUniqueViolation reports whether err is a SQLSTATE 23505 unique violation,
// the only insert failure that maps to an optimistic-concurrency conflict.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func parseRuleID(s string) (id.RuleID, error)       { return id.ParseRuleID(s) }
func parseSchemeID(s string) (id.SchemeID, error)   { return id.ParseSchemeID(s) }
func parseVersionID(s string) (id.VersionID, error) { return id.ParseVersionID(s) }
