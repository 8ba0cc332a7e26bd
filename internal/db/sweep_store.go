package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/paramsweep/internal/dispatch"
)

// Sweep status values.
const (
	SweepRunning   = "running"
	SweepCompleted = "completed"
	SweepFailed    = "failed"
	SweepCancelled = "cancelled"
)

// SweepRecord is a persisted sweep.
type SweepRecord struct {
	SweepID     string          `json:"sweep_id"`
	Name        string          `json:"name"`
	Status      string          `json:"status"`
	ParamNames  []string        `json:"param_names"`
	TotalRuns   int             `json:"total_runs"`
	FailedRuns  int             `json:"failed_runs"`
	SaveFolder  string          `json:"save_folder,omitempty"`
	Config      json.RawMessage `json:"config,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// RunRecord is one persisted run of a sweep.
type RunRecord struct {
	RunID     string          `json:"run_id"`
	SweepID   string          `json:"sweep_id"`
	Index     int             `json:"run_index"`
	RunDir    string          `json:"run_dir,omitempty"`
	Status    string          `json:"status"`
	Params    json.RawMessage `json:"params"`
	Stage     string          `json:"stage,omitempty"`
	Error     string          `json:"error,omitempty"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration"`
}

// SweepStore persists sweeps and their runs.
type SweepStore struct {
	db *sql.DB
}

// NewSweepStore creates a new SweepStore.
func NewSweepStore(db *sql.DB) *SweepStore {
	return &SweepStore{db: db}
}

// InsertSweep creates a sweep record when a sweep starts.
func (s *SweepStore) InsertSweep(rec SweepRecord) error {
	names, err := json.Marshal(rec.ParamNames)
	if err != nil {
		return fmt.Errorf("encoding parameter names: %w", err)
	}
	if rec.Status == "" {
		rec.Status = SweepRunning
	}
	query := `
		INSERT INTO sweeps (
			sweep_id, name, status, param_names, total_runs, save_folder,
			config_json, started_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	err = retryOnBusy(func() error {
		_, err := s.db.Exec(query,
			rec.SweepID,
			rec.Name,
			rec.Status,
			string(names),
			rec.TotalRuns,
			nullStr(rec.SaveFolder),
			nullJSON(rec.Config),
			formatTime(rec.StartedAt),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("inserting sweep %s: %w", rec.SweepID, err)
	}
	return nil
}

// CompleteSweep records the final status of a sweep.
func (s *SweepStore) CompleteSweep(sweepID, status string, failedRuns int, completedAt time.Time, errMsg string) error {
	query := `
		UPDATE sweeps
		SET status = ?, failed_runs = ?, completed_at = ?, error = ?
		WHERE sweep_id = ?
	`
	var n int64
	err := retryOnBusy(func() error {
		res, err := s.db.Exec(query, status, failedRuns, formatTime(completedAt), nullStr(errMsg), sweepID)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("completing sweep %s: %w", sweepID, err)
	}
	if n == 0 {
		return fmt.Errorf("completing sweep %s: %w", sweepID, sql.ErrNoRows)
	}
	return nil
}

// GetSweep returns a sweep by ID, or nil when none exists.
func (s *SweepStore) GetSweep(sweepID string) (*SweepRecord, error) {
	query := `
		SELECT sweep_id, name, status, param_names, total_runs, failed_runs,
		       save_folder, config_json, error, started_at, completed_at
		FROM sweeps
		WHERE sweep_id = ?
	`
	rec, err := scanSweep(s.db.QueryRow(query, sweepID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying sweep %s: %w", sweepID, err)
	}
	return rec, nil
}

// ListSweeps returns recent sweeps, most recent first. The stored
// configuration is omitted.
func (s *SweepStore) ListSweeps(limit int) ([]SweepRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	query := `
		SELECT sweep_id, name, status, param_names, total_runs, failed_runs,
		       save_folder, NULL, error, started_at, completed_at
		FROM sweeps
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`
	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sweeps: %w", err)
	}
	defer rows.Close()

	var sweeps []SweepRecord
	for rows.Next() {
		rec, err := scanSweep(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning sweep row: %w", err)
		}
		sweeps = append(sweeps, *rec)
	}
	return sweeps, rows.Err()
}

// DeleteSweep removes a sweep and its runs.
func (s *SweepStore) DeleteSweep(sweepID string) error {
	return retryOnBusy(func() error {
		_, err := s.db.Exec(`DELETE FROM sweeps WHERE sweep_id = ?`, sweepID)
		return err
	})
}

// InsertRun records one finished run.
func (s *SweepStore) InsertRun(rec RunRecord) error {
	params := rec.Params
	if len(params) == 0 {
		params = json.RawMessage("[]")
	}
	query := `
		INSERT INTO runs (
			run_id, sweep_id, run_index, run_dir, status, params_json,
			stage, error, started_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var started *string
	if !rec.StartedAt.IsZero() {
		v := formatTime(rec.StartedAt)
		started = &v
	}
	err := retryOnBusy(func() error {
		_, err := s.db.Exec(query,
			rec.RunID,
			rec.SweepID,
			rec.Index,
			nullStr(rec.RunDir),
			rec.Status,
			string(params),
			nullStr(rec.Stage),
			nullStr(rec.Error),
			started,
			rec.Duration.Milliseconds(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("inserting run %d of sweep %s: %w", rec.Index, rec.SweepID, err)
	}
	return nil
}

// RecordResult persists a dispatch result as a run of sweepID.
func (s *SweepStore) RecordResult(sweepID string, r dispatch.Result) error {
	rec, err := RunFromResult(sweepID, r)
	if err != nil {
		return err
	}
	return s.InsertRun(rec)
}

// RunFromResult converts a dispatch result into a run record.
func RunFromResult(sweepID string, r dispatch.Result) (RunRecord, error) {
	params, err := json.Marshal(r.Task.Assignments())
	if err != nil {
		return RunRecord{}, fmt.Errorf("encoding parameters of %s: %w", r.Task, err)
	}
	rec := RunRecord{
		RunID:     r.Task.ID.String(),
		SweepID:   sweepID,
		Index:     r.Task.Index,
		RunDir:    r.RunDir,
		Status:    r.Status,
		Params:    params,
		StartedAt: r.Started,
		Duration:  r.Duration,
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
		var te *dispatch.TaskError
		if errors.As(r.Err, &te) {
			rec.Stage = te.Stage
		}
	}
	return rec, nil
}

// ListRuns returns the runs of a sweep in run order. A non-empty status
// filters by status.
func (s *SweepStore) ListRuns(sweepID, status string) ([]RunRecord, error) {
	query := `
		SELECT run_id, sweep_id, run_index, run_dir, status, params_json,
		       stage, error, started_at, duration_ms
		FROM runs
		WHERE sweep_id = ? AND (? = '' OR status = ?)
		ORDER BY run_index
	`
	rows, err := s.db.Query(query, sweepID, status, status)
	if err != nil {
		return nil, fmt.Errorf("listing runs of sweep %s: %w", sweepID, err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var rec RunRecord
		var runDir, stage, errMsg, startedAt sql.NullString
		var params string
		var durationMs int64
		if err := rows.Scan(&rec.RunID, &rec.SweepID, &rec.Index, &runDir, &rec.Status, &params,
			&stage, &errMsg, &startedAt, &durationMs); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		rec.RunDir = runDir.String
		rec.Stage = stage.String
		rec.Error = errMsg.String
		rec.Params = json.RawMessage(params)
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		if startedAt.Valid {
			t, err := parseTime(startedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parsing started_at for run %s: %w", rec.RunID, err)
			}
			rec.StartedAt = t
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

// RunCounts returns the number of runs of a sweep per status.
func (s *SweepStore) RunCounts(sweepID string) (map[string]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM runs WHERE sweep_id = ? GROUP BY status`, sweepID)
	if err != nil {
		return nil, fmt.Errorf("counting runs of sweep %s: %w", sweepID, err)
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSweep(row rowScanner) (*SweepRecord, error) {
	var rec SweepRecord
	var names string
	var saveFolder, config, errMsg, completedAt sql.NullString
	var startedAt string
	if err := row.Scan(&rec.SweepID, &rec.Name, &rec.Status, &names, &rec.TotalRuns, &rec.FailedRuns,
		&saveFolder, &config, &errMsg, &startedAt, &completedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(names), &rec.ParamNames); err != nil {
		return nil, fmt.Errorf("decoding parameter names of sweep %s: %w", rec.SweepID, err)
	}
	rec.SaveFolder = saveFolder.String
	rec.Config = jsonOrNil(config)
	rec.Error = errMsg.String

	t, err := parseTime(startedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at for sweep %s: %w", rec.SweepID, err)
	}
	rec.StartedAt = t
	if completedAt.Valid {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing completed_at for sweep %s: %w", rec.SweepID, err)
		}
		rec.CompletedAt = &t
	}
	return &rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// nullStr returns nil for empty strings, pointer to string otherwise.
func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullJSON treats nil or empty JSON as NULL.
func nullJSON(data json.RawMessage) *string {
	if len(data) == 0 {
		return nil
	}
	s := string(data)
	return &s
}

func jsonOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

const (
	busyRetries   = 5
	busyBaseDelay = 10 * time.Millisecond
)

// retryOnBusy calls fn until it succeeds, fails with an error other than
// SQLITE_BUSY, or busyRetries attempts have been made.
func retryOnBusy(fn func() error) error {
	var err error
	delay := busyBaseDelay
	for attempt := 0; attempt < busyRetries; attempt++ {
		if err = fn(); err == nil || !isSQLiteBusy(err) {
			return err
		}
		if attempt < busyRetries-1 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return err
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
