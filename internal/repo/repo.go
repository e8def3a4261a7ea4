package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"pabench/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// RunFilters narrows ListRuns. Passed is tri-state: nil means any verdict.
type RunFilters struct {
	ScenarioID      string
	Passed          *bool
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

// InsertRunTx stores a run and its ordered checks.
func (r Repo) InsertRunTx(ctx context.Context, tx *sql.Tx, run domain.Run) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO runs(id,scenario_id,kind,source,reward,passed,message,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		run.ID, run.ScenarioID, run.Kind, run.Source, run.Reward, boolInt(run.Passed), run.Message, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for i, c := range run.Checks {
		if _, err := tx.ExecContext(ctx, `INSERT INTO run_checks(run_id,position,name,verdict,reason) VALUES (?,?,?,?,?)`,
			run.ID, i, c.Name, boolInt(c.Verdict), c.Reason); err != nil {
			return fmt.Errorf("insert check %s: %w", c.Name, err)
		}
	}
	return nil
}

func (r Repo) GetRun(ctx context.Context, id string) (domain.Run, error) {
	var run domain.Run
	var passed int
	err := r.DB.QueryRowContext(ctx, `SELECT id,scenario_id,kind,source,reward,passed,message,created_at FROM runs WHERE id=?`, id).
		Scan(&run.ID, &run.ScenarioID, &run.Kind, &run.Source, &run.Reward, &passed, &run.Message, &run.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return run, ErrNotFound
	}
	if err != nil {
		return run, err
	}
	run.Passed = passed != 0
	run.Checks, err = r.ListChecks(ctx, id)
	return run, err
}

// ListChecks returns a run's checks in recorded order.
func (r Repo) ListChecks(ctx context.Context, runID string) ([]domain.Check, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT name,verdict,reason FROM run_checks WHERE run_id=? ORDER BY position`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Check{}
	for rows.Next() {
		var c domain.Check
		var verdict int
		if err := rows.Scan(&c.Name, &verdict, &c.Reason); err != nil {
			return nil, err
		}
		c.Verdict = verdict != 0
		res = append(res, c)
	}
	return res, rows.Err()
}

// ListRuns returns runs newest first, without their checks.
func (r Repo) ListRuns(ctx context.Context, f RunFilters) ([]domain.Run, error) {
	var clauses []string
	var args []any
	if f.ScenarioID != "" {
		clauses = append(clauses, "scenario_id=?")
		args = append(args, f.ScenarioID)
	}
	if f.Passed != nil {
		clauses = append(clauses, "passed=?")
		args = append(args, boolInt(*f.Passed))
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT id,scenario_id,kind,source,reward,passed,message,created_at FROM runs ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Run{}
	for rows.Next() {
		var run domain.Run
		var passed int
		if err := rows.Scan(&run.ID, &run.ScenarioID, &run.Kind, &run.Source, &run.Reward, &passed, &run.Message, &run.CreatedAt); err != nil {
			return nil, err
		}
		run.Passed = passed != 0
		res = append(res, run)
	}
	return res, rows.Err()
}

// ScenarioStats summarizes the runs recorded for one scenario.
type ScenarioStats struct {
	ScenarioID string  `json:"scenario_id"`
	Runs       int     `json:"runs"`
	Passed     int     `json:"passed"`
	MeanReward float64 `json:"mean_reward"`
	LastRunAt  string  `json:"last_run_at,omitempty"`
}

func (r Repo) Stats(ctx context.Context) ([]ScenarioStats, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT scenario_id,COUNT(*),COALESCE(SUM(passed),0),COALESCE(AVG(reward),0),COALESCE(MAX(created_at),'') FROM runs GROUP BY scenario_id ORDER BY scenario_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []ScenarioStats{}
	for rows.Next() {
		var s ScenarioStats
		if err := rows.Scan(&s.ScenarioID, &s.Runs, &s.Passed, &s.MeanReward, &s.LastRunAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
