// Package persistence stores sweep.TestResult history in SQLite,
// following a plain repository pattern (one struct per table, plain
// database/sql, explicit scans) backed by modernc.org/sqlite's pure-Go
// driver instead of a cgo one.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/enose-rig/enosectl/internal/sweep"
)

// Store persists sweep cycle history to a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures its schema exists. path may be ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open persistence database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping persistence database: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init persistence schema: %w", err)
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS test_cycles (
		cycle_key TEXT PRIMARY KEY,
		paramset_id TEXT NOT NULL,
		paramset_name TEXT NOT NULL,
		cycle_index INTEGER NOT NULL,
		state TEXT NOT NULL,
		success INTEGER NOT NULL,
		error_code TEXT,
		error_message TEXT,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		empty_weight_g REAL NOT NULL,
		full_weight_g REAL NOT NULL,
		delta_weight_g REAL NOT NULL,
		step_durations_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_test_cycles_started_at ON test_cycles(started_at);
	CREATE INDEX IF NOT EXISTS idx_test_cycles_paramset_id ON test_cycles(paramset_id);

	CREATE TABLE IF NOT EXISTS test_cycle_logs (
		cycle_key TEXT NOT NULL,
		seq INTEGER NOT NULL,
		line TEXT NOT NULL,
		FOREIGN KEY (cycle_key) REFERENCES test_cycles(cycle_key) ON DELETE CASCADE
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// cycleKey identifies one cycle of one ParamSet, since a ParamSet with
// Cycles > 1 produces multiple TestResult rows that all share ParamSetID.
func cycleKey(r sweep.TestResult) string {
	return fmt.Sprintf("%s#%d", r.ParamSetID, r.CycleIndex)
}

// SaveResult persists one sweep.TestResult, overwriting any prior row for
// the same ParamSetID/CycleIndex pair (a sweep that re-runs a cycle
// replaces its record rather than accumulating duplicates).
func (s *Store) SaveResult(ctx context.Context, result sweep.TestResult) error {
	durationsJSON, err := json.Marshal(result.StepDurations)
	if err != nil {
		return fmt.Errorf("marshal step durations: %w", err)
	}
	key := cycleKey(result)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin persistence transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO test_cycles (
			cycle_key, paramset_id, paramset_name, cycle_index, state,
			success, error_code, error_message, started_at, finished_at,
			empty_weight_g, full_weight_g, delta_weight_g, step_durations_json
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cycle_key) DO UPDATE SET
			paramset_name = excluded.paramset_name,
			state = excluded.state,
			success = excluded.success,
			error_code = excluded.error_code,
			error_message = excluded.error_message,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			empty_weight_g = excluded.empty_weight_g,
			full_weight_g = excluded.full_weight_g,
			delta_weight_g = excluded.delta_weight_g,
			step_durations_json = excluded.step_durations_json
	`,
		key, result.ParamSetID, result.ParamSetName, result.CycleIndex, result.State.String(),
		boolToInt(result.Success), result.ErrorCode, result.ErrorMessage,
		result.StartedAt.Unix(), result.FinishedAt.Unix(),
		result.EmptyWeightG, result.FullWeightG, result.DeltaWeightG, string(durationsJSON),
	)
	if err != nil {
		return fmt.Errorf("insert test cycle: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM test_cycle_logs WHERE cycle_key = ?`, key); err != nil {
		return fmt.Errorf("clear prior cycle logs: %w", err)
	}
	for i, line := range result.Logs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO test_cycle_logs (cycle_key, seq, line) VALUES (?, ?, ?)`, key, i, line); err != nil {
			return fmt.Errorf("insert cycle log line: %w", err)
		}
	}

	return tx.Commit()
}

// Get loads one cycle by its ParamSet ID and cycle index, or (nil, nil)
// if no such cycle was recorded.
func (s *Store) Get(ctx context.Context, paramSetID string, cycleIndex int) (*sweep.TestResult, error) {
	key := fmt.Sprintf("%s#%d", paramSetID, cycleIndex)
	row := s.db.QueryRowContext(ctx, `
		SELECT paramset_id, paramset_name, cycle_index, state, success, error_code, error_message,
			started_at, finished_at, empty_weight_g, full_weight_g, delta_weight_g, step_durations_json
		FROM test_cycles WHERE cycle_key = ?
	`, key)

	rec, err := scanResult(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan test cycle: %w", err)
	}

	logs, err := s.logsFor(ctx, key)
	if err != nil {
		return nil, err
	}
	rec.Logs = logs
	return rec, nil
}

// ListSince returns every cycle started at or after since, most recent
// first.
func (s *Store) ListSince(ctx context.Context, since time.Time) ([]sweep.TestResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT paramset_id, paramset_name, cycle_index, state, success, error_code, error_message,
			started_at, finished_at, empty_weight_g, full_weight_g, delta_weight_g, step_durations_json
		FROM test_cycles WHERE started_at >= ? ORDER BY started_at DESC
	`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("query test cycles: %w", err)
	}
	defer rows.Close()

	var out []sweep.TestResult
	for rows.Next() {
		rec, err := scanResult(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan test cycle: %w", err)
		}
		logs, err := s.logsFor(ctx, cycleKey(*rec))
		if err != nil {
			return nil, err
		}
		rec.Logs = logs
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *Store) logsFor(ctx context.Context, key string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT line FROM test_cycle_logs WHERE cycle_key = ? ORDER BY seq`, key)
	if err != nil {
		return nil, fmt.Errorf("query cycle logs: %w", err)
	}
	defer rows.Close()

	var logs []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("scan cycle log line: %w", err)
		}
		logs = append(logs, line)
	}
	return logs, rows.Err()
}

func scanResult(scan func(dest ...any) error) (*sweep.TestResult, error) {
	var rec sweep.TestResult
	var stateStr, durationsJSON string
	var success int
	var startedAt, finishedAt int64
	var errorCode, errorMessage sql.NullString

	if err := scan(&rec.ParamSetID, &rec.ParamSetName, &rec.CycleIndex, &stateStr, &success, &errorCode, &errorMessage,
		&startedAt, &finishedAt, &rec.EmptyWeightG, &rec.FullWeightG, &rec.DeltaWeightG, &durationsJSON); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(durationsJSON), &rec.StepDurations); err != nil {
		return nil, fmt.Errorf("unmarshal step durations: %w", err)
	}
	rec.State = stateFromString(stateStr)
	rec.Success = success != 0
	rec.ErrorCode = errorCode.String
	rec.ErrorMessage = errorMessage.String
	rec.StartedAt = time.Unix(startedAt, 0)
	rec.FinishedAt = time.Unix(finishedAt, 0)
	return &rec, nil
}

func stateFromString(s string) sweep.CycleState {
	for _, st := range []sweep.CycleState{
		sweep.CycleIdle, sweep.CycleDraining, sweep.CycleWaitingEmpty, sweep.CycleRecordingEmpty,
		sweep.CycleInjecting, sweep.CycleWaitingStable, sweep.CycleRecordingFull,
		sweep.CycleComplete, sweep.CycleError, sweep.CycleStopping,
	} {
		if st.String() == s {
			return st
		}
	}
	return sweep.CycleError
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
