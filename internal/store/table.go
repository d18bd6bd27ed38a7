package store

import (
	"database/sql"
	"fmt"
)

const schemaVersion = 1

func Migrate(db *sql.DB) error {

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return err
	}

	if v >= schemaVersion {
		return tx.Commit()
	}

	// ---- Schema v1: tables ----

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS runs (
  run_id TEXT PRIMARY KEY,
  input_path TEXT NOT NULL,
  input_sha256 TEXT NOT NULL,
  reference_date TEXT NOT NULL,
  input_count INTEGER NOT NULL,
  clean_count INTEGER NOT NULL,
  dropped_count INTEGER NOT NULL,
  change_count INTEGER NOT NULL,
  review_count INTEGER NOT NULL
);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS clean_records (
  run_id TEXT NOT NULL,
  position INTEGER NOT NULL,
  record_id TEXT NOT NULL,
  ssn TEXT,
  email_valid INTEGER,
  age INTEGER,
  annual_income REAL,
  savings_balance REAL,
  debt_to_income REAL,
  credit_history_months REAL,
  flags TEXT NOT NULL DEFAULT '[]',
  record TEXT NOT NULL,
  PRIMARY KEY (run_id, record_id)
);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS dropped_records (
  run_id TEXT NOT NULL,
  source_index INTEGER NOT NULL,
  record_id TEXT NOT NULL,
  reason TEXT NOT NULL,
  kept_id TEXT NOT NULL,
  raw TEXT NOT NULL,
  PRIMARY KEY (run_id, source_index)
);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS changes (
  run_id TEXT NOT NULL,
  seq INTEGER NOT NULL,
  record_id TEXT NOT NULL,
  rule TEXT NOT NULL,
  field TEXT NOT NULL,
  before TEXT,
  after TEXT,
  PRIMARY KEY (run_id, seq)
);
`); err != nil {
		return err
	}

	// ---- Schema v1: indexes ----

	if _, err := tx.Exec(`
CREATE INDEX IF NOT EXISTS idx_clean_records_ssn
ON clean_records(run_id, ssn);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE INDEX IF NOT EXISTS idx_changes_record
ON changes(run_id, record_id);
`); err != nil {
		return err
	}

	if !columnExists(tx, "runs", "input_count") {
		return fmt.Errorf("runs table predates schema v%d; remove the audit database and rerun", schemaVersion)
	}

	if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d;`, schemaVersion)); err != nil {
		return err
	}

	return tx.Commit()
}

func columnExists(q interface {
	QueryRow(query string, args ...any) *sql.Row
}, table, col string) bool {
	query := fmt.Sprintf(`
SELECT 1
FROM pragma_table_info('%s')
WHERE name = ?
LIMIT 1;
`, table)

	var one int
	err := q.QueryRow(query, col).Scan(&one)
	return err == nil
}
