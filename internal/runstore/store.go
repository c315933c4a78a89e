// Package runstore keeps the history of batches, per-repository results and
// agent invocations in SQLite.
package runstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hochfrequenz/pr-fanout/internal/domain"
)

// Store provides SQLite-backed run history
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New opens (and migrates) the database at dbPath. ":memory:" is allowed.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// one connection keeps ":memory:" databases intact and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateBatch records the start of a batch
func (s *Store) CreateBatch(b *domain.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO batches (id, change_id, source, started_at)
		VALUES (?, ?, ?, ?)
	`, b.ID, b.ChangeID, string(b.Source), b.StartedAt)
	return err
}

// FinishBatch stamps the end time of a batch
func (s *Store) FinishBatch(id string, finished time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`UPDATE batches SET finished_at = ? WHERE id = ?`, finished, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("batch %s not found", id)
	}
	return nil
}

// SaveResult stores the result of one repository run
func (s *Store) SaveResult(batchID string, r domain.RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO results (batch_id, repository, stage, outcome, error, branch, workspace, pr_url, checks, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		batchID,
		r.Repository.URL,
		string(r.StageReached),
		string(r.Outcome),
		r.ErrorText(),
		r.Branch,
		r.Workspace,
		r.PullRequestURL,
		string(r.Checks),
		r.StartedAt,
		r.FinishedAt,
	)
	return err
}

// RecordInvocation stores an agent invocation. Only the names of the
// secrets passed to the agent are kept.
func (s *Store) RecordInvocation(rec domain.InvocationRecord) error {
	namesJSON, err := json.Marshal(rec.SecretNames)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`
		INSERT INTO invocations (id, batch_id, repository, role, backend, workspace, secret_names, succeeded, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.BatchID,
		rec.Repository,
		string(rec.Role),
		rec.Backend,
		rec.Workspace,
		string(namesJSON),
		rec.Succeeded,
		rec.StartedAt,
		rec.FinishedAt,
	)
	return err
}

// ListBatches returns the most recent batches first, without results
func (s *Store) ListBatches(limit int) ([]*domain.Batch, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, change_id, source, started_at, finished_at
		FROM batches ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []*domain.Batch
	for rows.Next() {
		var b domain.Batch
		var changeID sql.NullString
		var source string
		var finished sql.NullTime
		if err := rows.Scan(&b.ID, &changeID, &source, &b.StartedAt, &finished); err != nil {
			return nil, err
		}
		b.ChangeID = changeID.String
		b.Source = domain.PromptSource(source)
		if finished.Valid {
			t := finished.Time
			b.FinishedAt = &t
		}
		batches = append(batches, &b)
	}
	return batches, rows.Err()
}

// GetResults returns the results of a batch in the order they were saved
func (s *Store) GetResults(batchID string) ([]domain.RunResult, error) {
	rows, err := s.db.Query(`
		SELECT repository, stage, outcome, error, branch, workspace, pr_url, checks, started_at, finished_at
		FROM results WHERE batch_id = ? ORDER BY id
	`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.RunResult
	for rows.Next() {
		var r domain.RunResult
		var stage, outcome, checks string
		var errText, branch, workspace, prURL sql.NullString
		var started, finished sql.NullTime
		if err := rows.Scan(&r.Repository.URL, &stage, &outcome, &errText, &branch, &workspace, &prURL, &checks, &started, &finished); err != nil {
			return nil, err
		}
		r.StageReached = domain.Stage(stage)
		r.Outcome = domain.Outcome(outcome)
		r.Checks = domain.ChecksStatus(checks)
		r.Branch = branch.String
		r.Workspace = workspace.String
		r.PullRequestURL = prURL.String
		if errText.String != "" {
			r.Err = errors.New(errText.String)
		}
		if started.Valid {
			r.StartedAt = started.Time
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ListInvocations returns the agent invocations recorded for a batch
func (s *Store) ListInvocations(batchID string) ([]domain.InvocationRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, batch_id, repository, role, backend, workspace, secret_names, succeeded, started_at, finished_at
		FROM invocations WHERE batch_id = ? ORDER BY started_at, id
	`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []domain.InvocationRecord
	for rows.Next() {
		var rec domain.InvocationRecord
		var batch, repository, workspace, namesJSON sql.NullString
		var role string
		var started, finished sql.NullTime
		if err := rows.Scan(&rec.ID, &batch, &repository, &role, &rec.Backend, &workspace, &namesJSON, &rec.Succeeded, &started, &finished); err != nil {
			return nil, err
		}
		rec.BatchID = batch.String
		rec.Repository = repository.String
		rec.Workspace = workspace.String
		rec.Role = domain.Role(role)
		if namesJSON.String != "" && namesJSON.String != "null" {
			if err := json.Unmarshal([]byte(namesJSON.String), &rec.SecretNames); err != nil {
				return nil, err
			}
		}
		if started.Valid {
			rec.StartedAt = started.Time
		}
		if finished.Valid {
			rec.FinishedAt = finished.Time
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
