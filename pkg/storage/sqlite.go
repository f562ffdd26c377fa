package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yapay-ai/cloudcost-sentinel/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLite implements the AlertStore interface using an SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens or creates an SQLite database at the given path.
func NewSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) CreateRule(ctx context.Context, rule *model.AlertRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now
	if rule.Type == model.AlertSpikeDetection && rule.ThresholdPct < 1 {
		rule.ThresholdPct = model.DefaultSpikeThresholdPct
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alert_rules (id, owner_id, type, scope, threshold_value, threshold_pct, enabled, last_triggered_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.OwnerID, string(rule.Type), string(rule.Scope),
		rule.ThresholdValue.String(), rule.ThresholdPct, rule.Enabled,
		nullableTime(rule.LastTriggeredAt), rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert rule: %w", err)
	}
	return nil
}

func (s *SQLite) GetRule(ctx context.Context, id string) (*model.AlertRule, error) {
	row := s.db.QueryRowContext(ctx, selectRuleColumns+" WHERE id = ?", id)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *SQLite) ListRules(ctx context.Context) ([]model.AlertRule, error) {
	return s.queryRules(ctx, selectRuleColumns+" ORDER BY created_at")
}

func (s *SQLite) ListEnabledRules(ctx context.Context) ([]model.AlertRule, error) {
	return s.queryRules(ctx, selectRuleColumns+" WHERE enabled = 1 ORDER BY created_at")
}

func (s *SQLite) DeleteRule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM alert_rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete alert rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (s *SQLite) UpdateLastTriggered(ctx context.Context, ruleID string, expected *time.Time, triggeredAt time.Time) error {
	return s.conditionalTriggerUpdate(ctx, s.db, ruleID, expected, triggeredAt)
}

func (s *SQLite) AppendHistory(ctx context.Context, entry *model.AlertHistoryEntry) error {
	return insertHistory(ctx, s.db, entry)
}

func (s *SQLite) RecordTrigger(ctx context.Context, ruleID string, expected *time.Time, triggeredAt time.Time, entries []model.AlertHistoryEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin trigger transaction: %w", err)
	}

	if err := s.conditionalTriggerUpdate(ctx, tx, ruleID, expected, triggeredAt); err != nil {
		_ = tx.Rollback()
		return err
	}
	for i := range entries {
		if err := insertHistory(ctx, tx, &entries[i]); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit trigger transaction: %w", err)
	}
	return nil
}

func (s *SQLite) ListHistory(ctx context.Context, ruleID string, limit int) ([]model.AlertHistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, rule_id, triggered_at, current_value, comparison_value, provider, message FROM alert_history`
	args := []any{}
	if ruleID != "" {
		query += " WHERE rule_id = ?"
		args = append(args, ruleID)
	}
	query += " ORDER BY triggered_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alert history: %w", err)
	}
	defer rows.Close()

	var entries []model.AlertHistoryEntry
	for rows.Next() {
		var e model.AlertHistoryEntry
		var current, comparison string
		if err := rows.Scan(&e.ID, &e.RuleID, &e.TriggeredAt, &current, &comparison, &e.Provider, &e.Message); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		if e.CurrentValue, err = decimal.NewFromString(current); err != nil {
			return nil, fmt.Errorf("parse current value %q: %w", current, err)
		}
		if e.ComparisonValue, err = decimal.NewFromString(comparison); err != nil {
			return nil, fmt.Errorf("parse comparison value %q: %w", comparison, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// conditionalTriggerUpdate applies the optimistic-concurrency write: the
// last-triggered timestamp moves forward only if it still holds the value the
// evaluator read, so two overlapping evaluators cannot double-trigger.
func (s *SQLite) conditionalTriggerUpdate(ctx context.Context, ex execer, ruleID string, expected *time.Time, triggeredAt time.Time) error {
	var (
		res sql.Result
		err error
	)
	if expected == nil {
		res, err = ex.ExecContext(ctx,
			`UPDATE alert_rules SET last_triggered_at = ?, updated_at = ? WHERE id = ? AND last_triggered_at IS NULL`,
			triggeredAt.UTC(), time.Now().UTC(), ruleID,
		)
	} else {
		res, err = ex.ExecContext(ctx,
			`UPDATE alert_rules SET last_triggered_at = ?, updated_at = ? WHERE id = ? AND last_triggered_at = ?`,
			triggeredAt.UTC(), time.Now().UTC(), ruleID, expected.UTC(),
		)
	}
	if err != nil {
		return fmt.Errorf("update last triggered: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update last triggered: %w", err)
	}
	if n == 0 {
		var exists int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM alert_rules WHERE id = ?", ruleID).Scan(&exists); err != nil {
			return fmt.Errorf("check rule existence: %w", err)
		}
		if exists == 0 {
			return ErrRuleNotFound
		}
		return ErrStaleRule
	}
	return nil
}

func insertHistory(ctx context.Context, ex execer, entry *model.AlertHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.TriggeredAt.IsZero() {
		entry.TriggeredAt = time.Now().UTC()
	}

	_, err := ex.ExecContext(ctx,
		`INSERT INTO alert_history (id, rule_id, triggered_at, current_value, comparison_value, provider, message)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.RuleID, entry.TriggeredAt.UTC(),
		entry.CurrentValue.String(), entry.ComparisonValue.String(),
		entry.Provider, entry.Message,
	)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

const selectRuleColumns = `SELECT id, owner_id, type, scope, threshold_value, threshold_pct, enabled, last_triggered_at, created_at, updated_at FROM alert_rules`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*model.AlertRule, error) {
	var (
		r         model.AlertRule
		ruleType  string
		scope     string
		threshold string
		lastTrig  sql.NullTime
	)
	err := row.Scan(&r.ID, &r.OwnerID, &ruleType, &scope, &threshold, &r.ThresholdPct,
		&r.Enabled, &lastTrig, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	r.Type = model.AlertType(ruleType)
	r.Scope = model.ProviderScope(scope)
	if r.ThresholdValue, err = decimal.NewFromString(threshold); err != nil {
		return nil, fmt.Errorf("parse threshold %q: %w", threshold, err)
	}
	if lastTrig.Valid {
		t := lastTrig.Time.UTC()
		r.LastTriggeredAt = &t
	}
	return &r, nil
}

func (s *SQLite) queryRules(ctx context.Context, query string, args ...any) ([]model.AlertRule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alert rules: %w", err)
	}
	defer rows.Close()

	var rules []model.AlertRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule row: %w", err)
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
