package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/programme-lv/autograder/api"
)

// ErrNotFound is returned when a submission id has no row.
var ErrNotFound = errors.New("submission not found")

// Store is the normalized result store: one row per submission in
// submissions, one row per non-passed test in results_filtered.
type Store struct {
	db *sqlx.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS submissions (
	submission_id TEXT PRIMARY KEY,
	status        TEXT
);
CREATE TABLE IF NOT EXISTS results_filtered (
	submission_id TEXT,
	name          TEXT,
	status        TEXT,
	output        TEXT,
	PRIMARY KEY (submission_id, name),
	FOREIGN KEY (submission_id) REFERENCES submissions(submission_id)
);
`

// Open opens (creating if needed) the SQLite store at path. The pool is
// capped at a single connection so the PRAGMAs apply to every query.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON;`); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Submission is one row of the submissions table.
type Submission struct {
	SubmissionID string `db:"submission_id"`
	Status       string `db:"status"`
}

// UpsertSubmission inserts or updates the overall status for an id.
func (s *Store) UpsertSubmission(ctx context.Context, submissionID, status string) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO submissions (submission_id, status) VALUES (?, ?)
		 ON CONFLICT(submission_id) DO UPDATE SET status = excluded.status`,
		submissionID,
		status,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert submission %s: %w", submissionID, err)
	}
	return nil
}

// UpsertFailedTest inserts or updates one failed-test row. The
// referenced submission must already exist.
func (s *Store) UpsertFailedTest(ctx context.Context, rec api.FailedTest) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO results_filtered (submission_id, name, status, output) VALUES (?, ?, ?, ?)
		 ON CONFLICT(submission_id, name) DO UPDATE SET
		   status = excluded.status,
		   output = excluded.output`,
		rec.SubmissionID,
		rec.Name,
		rec.Status,
		rec.Output,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert failed test (%s, %s): %w", rec.SubmissionID, rec.Name, err)
	}
	return nil
}

// SaveReport upserts one submission's status and failed-test rows in a
// single transaction. Stale rows from an earlier aggregation of the
// same submission are cleared first so a re-run that passes leaves no
// leftover failures behind.
func (s *Store) SaveReport(ctx context.Context, report api.SubmissionReport) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO submissions (submission_id, status) VALUES (?, ?)
		 ON CONFLICT(submission_id) DO UPDATE SET status = excluded.status`,
		report.SubmissionID,
		report.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert submission %s: %w", report.SubmissionID, err)
	}

	_, err = tx.ExecContext(
		ctx,
		`DELETE FROM results_filtered WHERE submission_id = ?`,
		report.SubmissionID,
	)
	if err != nil {
		return err
	}

	for _, rec := range report.FailedTests {
		_, err = tx.ExecContext(
			ctx,
			`INSERT INTO results_filtered (submission_id, name, status, output) VALUES (?, ?, ?, ?)
			 ON CONFLICT(submission_id, name) DO UPDATE SET
			   status = excluded.status,
			   output = excluded.output`,
			report.SubmissionID,
			rec.Name,
			rec.Status,
			rec.Output,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert failed test (%s, %s): %w", report.SubmissionID, rec.Name, err)
		}
	}

	return tx.Commit()
}

func (s *Store) GetSubmission(ctx context.Context, submissionID string) (Submission, error) {
	var subm Submission
	err := s.db.GetContext(ctx, &subm,
		`SELECT submission_id, status FROM submissions WHERE submission_id = ?`,
		submissionID)
	if errors.Is(err, sql.ErrNoRows) {
		return Submission{}, ErrNotFound
	}
	if err != nil {
		return Submission{}, fmt.Errorf("failed to get submission %s: %w", submissionID, err)
	}
	return subm, nil
}

func (s *Store) ListSubmissions(ctx context.Context) ([]Submission, error) {
	var subms []Submission
	err := s.db.SelectContext(ctx, &subms,
		`SELECT submission_id, status FROM submissions ORDER BY submission_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	return subms, nil
}

func (s *Store) ListFailedTests(ctx context.Context, submissionID string) ([]api.FailedTest, error) {
	var recs []api.FailedTest
	err := s.db.SelectContext(ctx, &recs,
		`SELECT submission_id, name, status, output FROM results_filtered
		 WHERE submission_id = ? ORDER BY name`,
		submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed tests for %s: %w", submissionID, err)
	}
	return recs, nil
}

// GroupedOutputs returns every failed-test output grouped by submission
// id, the shape downstream feedback tooling consumes.
func (s *Store) GroupedOutputs(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT submission_id, COALESCE(output, '') FROM results_filtered
		 ORDER BY submission_id, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query grouped outputs: %w", err)
	}
	defer rows.Close()

	grouped := map[string][]string{}
	for rows.Next() {
		var sid, output string
		if err := rows.Scan(&sid, &output); err != nil {
			return nil, err
		}
		grouped[sid] = append(grouped[sid], output)
	}
	return grouped, rows.Err()
}
