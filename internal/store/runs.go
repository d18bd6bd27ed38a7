package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"novacred-engine/internal/clean"
	"novacred-engine/internal/domain"
)

var ErrRunNotFound = errors.New("run not found")

type RunInsert struct {
	RunID         string
	InputPath     string
	InputSHA256   string
	ReferenceDate string
	InputCount    int
	Result        *clean.Result
}

type Run struct {
	RunID         string `json:"runId"`
	InputPath     string `json:"inputPath"`
	InputSHA256   string `json:"inputSha256"`
	ReferenceDate string `json:"referenceDate"`
	InputCount    int    `json:"inputCount"`
	CleanCount    int    `json:"cleanCount"`
	DroppedCount  int    `json:"droppedCount"`
	ChangeCount   int    `json:"changeCount"`
	ReviewCount   int    `json:"reviewCount"`
}

type DroppedRow struct {
	SourceIndex int
	RecordID    string
	Reason      string
	KeptID      string
}

// SaveRun replaces everything stored for run.RunID in one transaction, so a
// rerun over the same input leaves the database as one run would.
func SaveRun(ctx context.Context, db *sql.DB, run RunInsert) error {
	res := run.Result
	if res == nil {
		return errors.New("save run: nil result")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"changes", "dropped_records", "clean_records", "runs"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE run_id = ?;`, table), run.RunID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO runs (run_id, input_path, input_sha256, reference_date, input_count, clean_count, dropped_count, change_count, review_count)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		run.RunID, run.InputPath, run.InputSHA256, run.ReferenceDate, run.InputCount,
		len(res.Clean), len(res.Dropped), len(res.Changes), len(res.Review),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	recStmt, err := tx.PrepareContext(ctx, `
INSERT INTO clean_records (run_id, position, record_id, ssn, email_valid, age, annual_income, savings_balance, debt_to_income, credit_history_months, flags, record)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`)
	if err != nil {
		return err
	}
	defer recStmt.Close()

	for i, r := range res.Clean {
		flags, err := json.Marshal(r.Flags.Sorted())
		if err != nil {
			return err
		}
		body, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode %s: %w", r.ID, err)
		}
		if _, err := recStmt.ExecContext(ctx,
			run.RunID, i, r.ID,
			nullString(r.Applicant.SSN),
			emailValid(r),
			nullInt(r.Applicant.Age),
			nullFloat(r.Financials.AnnualIncome),
			nullFloat(r.Financials.SavingsBalance),
			nullFloat(r.Financials.DebtToIncome),
			nullFloat(r.Financials.CreditHistoryMonths),
			string(flags), string(body),
		); err != nil {
			return fmt.Errorf("insert record %s: %w", r.ID, err)
		}
	}

	for _, d := range res.Dropped {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO dropped_records (run_id, source_index, record_id, reason, kept_id, raw)
VALUES (?, ?, ?, ?, ?, ?);`,
			run.RunID, d.Index, d.ID, d.Reason, d.KeptID, string(d.Raw),
		); err != nil {
			return fmt.Errorf("insert dropped %s: %w", d.ID, err)
		}
	}

	chStmt, err := tx.PrepareContext(ctx, `
INSERT INTO changes (run_id, seq, record_id, rule, field, before, after)
VALUES (?, ?, ?, ?, ?, ?, ?);`)
	if err != nil {
		return err
	}
	defer chStmt.Close()

	for i, c := range res.Changes {
		if _, err := chStmt.ExecContext(ctx,
			run.RunID, i, c.RecordID, c.Rule, c.Field, nullString(c.Before), nullString(c.After),
		); err != nil {
			return fmt.Errorf("insert change %d: %w", i, err)
		}
	}

	return tx.Commit()
}

func GetRun(ctx context.Context, db *sql.DB, runID string) (Run, error) {
	var r Run
	err := db.QueryRowContext(ctx, `
SELECT run_id, input_path, input_sha256, reference_date, input_count, clean_count, dropped_count, change_count, review_count
FROM runs
WHERE run_id = ?;`, runID).Scan(
		&r.RunID, &r.InputPath, &r.InputSHA256, &r.ReferenceDate,
		&r.InputCount, &r.CleanCount, &r.DroppedCount, &r.ChangeCount, &r.ReviewCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	return r, err
}

// CountRecords counts the stored clean and dropped rows of a run.
func CountRecords(ctx context.Context, db *sql.DB, runID string) (cleanRows, droppedRows int, err error) {
	err = db.QueryRowContext(ctx, `
SELECT
  (SELECT COUNT(*) FROM clean_records WHERE run_id = ?),
  (SELECT COUNT(*) FROM dropped_records WHERE run_id = ?);`,
		runID, runID).Scan(&cleanRows, &droppedRows)
	return cleanRows, droppedRows, err
}

// ListDropped returns the dropped records of a run in source order.
func ListDropped(ctx context.Context, db *sql.DB, runID string) ([]DroppedRow, error) {
	rows, err := db.QueryContext(ctx, `
SELECT source_index, record_id, reason, kept_id
FROM dropped_records
WHERE run_id = ?
ORDER BY source_index;`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DroppedRow
	for rows.Next() {
		var d DroppedRow
		if err := rows.Scan(&d.SourceIndex, &d.RecordID, &d.Reason, &d.KeptID); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListDroppedIDs is ListDropped reduced to record ids.
func ListDroppedIDs(ctx context.Context, db *sql.DB, runID string) ([]string, error) {
	dropped, err := ListDropped(ctx, db, runID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(dropped))
	for _, d := range dropped {
		ids = append(ids, d.RecordID)
	}
	return ids, nil
}

// LoadRecord decodes the stored clean record.
func LoadRecord(ctx context.Context, db *sql.DB, runID, recordID string) (domain.Record, error) {
	var body string
	err := db.QueryRowContext(ctx, `
SELECT record FROM clean_records WHERE run_id = ? AND record_id = ?;`, runID, recordID).Scan(&body)
	if err != nil {
		return domain.Record{}, err
	}
	var r domain.Record
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return domain.Record{}, fmt.Errorf("decode %s: %w", recordID, err)
	}
	return r, nil
}

func emailValid(r domain.Record) any {
	v := clean.EmailValid(r)
	switch {
	case v == nil:
		return nil
	case *v:
		return 1
	}
	return 0
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullFloat(n *domain.Number) any {
	if v, ok := n.Float(); ok {
		return v
	}
	return nil
}
