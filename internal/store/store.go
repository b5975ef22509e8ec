// Package store archives learning results in sqlite so finished runs are
// queryable without re-parsing loose JSON snapshots. Single-writer access;
// the driver is pure Go (modernc.org/sqlite).
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"orgbench/internal/learning"
)

// Store wraps the results database.
type Store struct {
	mu sync.RWMutex
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS conditions (
	id               TEXT PRIMARY KEY,
	task_id          TEXT NOT NULL,
	topology         TEXT NOT NULL,
	final_delta      REAL NOT NULL,
	final_sa_score   REAL NOT NULL,
	final_ma_score   REAL NOT NULL,
	convergence_iter INTEGER NOT NULL,
	learning_rate    REAL NOT NULL,
	converged        INTEGER NOT NULL,
	total_time_ns    INTEGER NOT NULL,
	org_memory       TEXT NOT NULL,
	created_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS iterations (
	condition_id TEXT NOT NULL REFERENCES conditions(id),
	iteration    INTEGER NOT NULL,
	sa_score     REAL NOT NULL,
	ma_score     REAL NOT NULL,
	delta        REAL NOT NULL,
	p_value      REAL NOT NULL,
	cohens_d     REAL NOT NULL,
	sa_std       REAL NOT NULL,
	ma_std       REAL NOT NULL,
	failure_mode TEXT NOT NULL,
	protocol_fix TEXT NOT NULL,
	calls        INTEGER NOT NULL,
	prompt_tokens     INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	timestamp    TEXT NOT NULL,
	PRIMARY KEY (condition_id, iteration)
);

CREATE INDEX IF NOT EXISTS idx_conditions_task ON conditions(task_id, topology);
`

// Open opens (creating if needed) the results database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open results db: %w", err)
	}

	// WAL for concurrent readers, busy_timeout so a slow writer doesn't
	// surface as SQLITE_BUSY.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// SaveResult archives one condition result and its iterations atomically.
// Returns the generated condition ID.
func (s *Store) SaveResult(res *learning.Result) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	memJSON, err := json.Marshal(res.Memory)
	if err != nil {
		return "", fmt.Errorf("failed to marshal org memory: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	id := uuid.New().String()
	_, err = tx.Exec(`INSERT INTO conditions
		(id, task_id, topology, final_delta, final_sa_score, final_ma_score,
		 convergence_iter, learning_rate, converged, total_time_ns, org_memory, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, res.TaskID, res.Topology, res.FinalDelta, res.FinalBaselineScore, res.FinalOrgScore,
		res.ConvergenceIter, res.LearningRate, res.Converged, int64(res.TotalTime), string(memJSON),
		time.Now().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("failed to insert condition: %w", err)
	}

	for _, it := range res.Iterations {
		_, err = tx.Exec(`INSERT INTO iterations
			(condition_id, iteration, sa_score, ma_score, delta, p_value, cohens_d,
			 sa_std, ma_std, failure_mode, protocol_fix, calls, prompt_tokens, completion_tokens, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, it.Iteration, it.BaselineScore, it.OrgScore, it.Delta, it.PValue, it.CohensD,
			it.BaselineStd, it.OrgStd, it.FailureMode, it.ProtocolFix,
			it.Usage.Calls, it.Usage.PromptTokens, it.Usage.CompletionTokens, it.Timestamp)
		if err != nil {
			return "", fmt.Errorf("failed to insert iteration %d: %w", it.Iteration, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}
	return id, nil
}

// ConditionSummary is one archived condition without its iteration detail.
type ConditionSummary struct {
	ID              string
	TaskID          string
	Topology        string
	FinalDelta      float64
	ConvergenceIter int
	LearningRate    float64
	Converged       bool
	CreatedAt       string
}

// ListConditions returns archived conditions, newest first, optionally
// filtered by task.
func (s *Store) ListConditions(taskID string) ([]ConditionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, task_id, topology, final_delta, convergence_iter, learning_rate, converged, created_at
		FROM conditions`
	args := []any{}
	if taskID != "" {
		query += " WHERE task_id = ?"
		args = append(args, taskID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query conditions: %w", err)
	}
	defer rows.Close()

	var out []ConditionSummary
	for rows.Next() {
		var c ConditionSummary
		if err := rows.Scan(&c.ID, &c.TaskID, &c.Topology, &c.FinalDelta,
			&c.ConvergenceIter, &c.LearningRate, &c.Converged, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan condition: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LoadIterations returns the iteration records of one archived condition.
func (s *Store) LoadIterations(conditionID string) ([]learning.IterationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT iteration, sa_score, ma_score, delta, p_value, cohens_d,
		sa_std, ma_std, failure_mode, protocol_fix, calls, prompt_tokens, completion_tokens, timestamp
		FROM iterations WHERE condition_id = ? ORDER BY iteration`, conditionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query iterations: %w", err)
	}
	defer rows.Close()

	var out []learning.IterationRecord
	for rows.Next() {
		var it learning.IterationRecord
		if err := rows.Scan(&it.Iteration, &it.BaselineScore, &it.OrgScore, &it.Delta,
			&it.PValue, &it.CohensD, &it.BaselineStd, &it.OrgStd,
			&it.FailureMode, &it.ProtocolFix,
			&it.Usage.Calls, &it.Usage.PromptTokens, &it.Usage.CompletionTokens, &it.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan iteration: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
