package storage

import (
	"database/sql"
	"fmt"
)

var migrations = []string{
	// Migration 1: Initial schema
	`CREATE TABLE IF NOT EXISTS alert_rules (
		id                TEXT PRIMARY KEY,
		owner_id          TEXT NOT NULL DEFAULT '',
		type              TEXT NOT NULL CHECK(type IN ('budget_threshold', 'spike_detection', 'daily_summary', 'weekly_summary')),
		scope             TEXT NOT NULL CHECK(scope IN ('aws', 'azure', 'gcp', 'all')),
		threshold_value   TEXT NOT NULL DEFAULT '0',
		threshold_pct     INTEGER NOT NULL DEFAULT 20,
		enabled           INTEGER NOT NULL DEFAULT 1,
		last_triggered_at DATETIME,
		created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_rules_enabled ON alert_rules(enabled);
	CREATE INDEX IF NOT EXISTS idx_rules_owner ON alert_rules(owner_id);

	CREATE TABLE IF NOT EXISTS alert_history (
		id               TEXT PRIMARY KEY,
		rule_id          TEXT NOT NULL REFERENCES alert_rules(id) ON DELETE CASCADE,
		triggered_at     DATETIME NOT NULL,
		current_value    TEXT NOT NULL DEFAULT '0',
		comparison_value TEXT NOT NULL DEFAULT '0',
		provider         TEXT NOT NULL DEFAULT '',
		message          TEXT NOT NULL DEFAULT '',
		created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_history_rule ON alert_history(rule_id);
	CREATE INDEX IF NOT EXISTS idx_history_triggered ON alert_history(triggered_at);

	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
}

// runMigrations applies pending schema migrations.
func runMigrations(db *sql.DB) error {
	// Ensure migration tracking table exists
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create migration table: %w", err)
	}

	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("check migration version: %w", err)
	}

	for i := currentVersion; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec(migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("run migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", i+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", i+1, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}

	return nil
}
