package jobstorage

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/cockroachdb/errors"
	jobentity "github.com/veedubyou/stemsplit/src/shared/job/entity"
	"github.com/veedubyou/stemsplit/src/shared/lib/errors/mark"
	_ "modernc.org/sqlite"
)

var _ jobentity.Store = &SQLite{}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  owner TEXT NOT NULL,
  state TEXT NOT NULL,
  input_ref TEXT NOT NULL,
  input_name TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL,
  started_at INTEGER NOT NULL DEFAULT 0,
  finished_at INTEGER NOT NULL DEFAULT 0,
  stem_outputs TEXT NOT NULL DEFAULT '{}',
  error_kind TEXT NOT NULL DEFAULT '',
  error_message TEXT NOT NULL DEFAULT '',
  instance_id TEXT NOT NULL DEFAULT '',
  updated_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS jobs_owner_idx ON jobs(owner, created_at);
CREATE INDEX IF NOT EXISTS jobs_state_idx ON jobs(state);
`

const selectColumns = `id, owner, state, input_ref, input_name, created_at, started_at, finished_at, stem_outputs, error_kind, error_message, instance_id, updated_at`

// columns added after the first release, for databases created before them
var addedColumns = map[string]string{
	"instance_id": "instance_id TEXT NOT NULL DEFAULT ''",
	"updated_at":  "updated_at INTEGER NOT NULL DEFAULT 0",
}

// SQLite keeps job records in a local database file. Used for development
// and by the CLI.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to open sqlite database at %s", path)
	}

	// a single connection keeps writes serialized without busy errors
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, "Failed to apply %s", pragma)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "Failed to create jobs schema")
	}

	if err := addMissingColumns(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func addMissingColumns(db *sql.DB) error {
	rows, err := db.Query(`PRAGMA table_info(jobs)`)
	if err != nil {
		return errors.Wrap(err, "Failed to read jobs schema")
	}

	existing := map[string]bool{}
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, colType    string
			defaultValue     sql.NullString
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultValue, &pk); err != nil {
			_ = rows.Close()
			return errors.Wrap(err, "Failed to scan jobs schema")
		}
		existing[name] = true
	}
	_ = rows.Close()

	for name, definition := range addedColumns {
		if existing[name] {
			continue
		}

		if _, err := db.Exec(`ALTER TABLE jobs ADD COLUMN ` + definition); err != nil {
			return errors.Wrapf(err, "Failed to add column %s", name)
		}
	}

	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) PutJob(ctx context.Context, job jobentity.Job) error {
	if job.ID == "" {
		return mark.Message(IDEmptyMark, "Job ID is not defined")
	}

	rec := toRecord(job)
	stemOutputs, err := json.Marshal(rec.StemOutputs)
	if err != nil {
		return mark.Wrap(err, DefaultErrorMark, "Failed to marshal stem outputs")
	}

	result, err := s.db.ExecContext(ctx, `
INSERT INTO jobs (`+selectColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  owner = excluded.owner,
  state = excluded.state,
  input_ref = excluded.input_ref,
  input_name = excluded.input_name,
  created_at = excluded.created_at,
  started_at = excluded.started_at,
  finished_at = excluded.finished_at,
  stem_outputs = excluded.stem_outputs,
  error_kind = excluded.error_kind,
  error_message = excluded.error_message,
  instance_id = excluded.instance_id,
  updated_at = excluded.updated_at
WHERE jobs.state IN (?, ?)`,
		rec.ID,
		rec.Owner,
		rec.State,
		rec.InputRef,
		rec.InputName,
		rec.CreatedAt,
		rec.StartedAt,
		rec.FinishedAt,
		string(stemOutputs),
		rec.ErrorKind,
		rec.ErrorMessage,
		rec.InstanceID,
		rec.UpdatedAt,
		string(jobentity.Queued),
		string(jobentity.Running),
	)
	if err != nil {
		return mark.Wrap(err, DefaultErrorMark, "Failed to upsert job row")
	}

	changed, err := result.RowsAffected()
	if err != nil {
		return mark.Wrap(err, DefaultErrorMark, "Failed to count upserted rows")
	}
	if changed == 0 {
		return mark.Message(JobFinishedMark, "Job record is already final")
	}

	return nil
}

func (s *SQLite) RenameJob(ctx context.Context, jobID string, inputName string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE jobs SET input_name = ? WHERE id = ?`, inputName, jobID)
	if err != nil {
		return mark.Wrap(err, DefaultErrorMark, "Failed to rename job row")
	}

	changed, err := result.RowsAffected()
	if err != nil {
		return mark.Wrap(err, DefaultErrorMark, "Failed to count renamed rows")
	}
	if changed == 0 {
		return mark.Message(JobNotFound, "Job is not found")
	}

	return nil
}

func (s *SQLite) GetJob(ctx context.Context, jobID string) (jobentity.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM jobs WHERE id = ?`, jobID)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return jobentity.Job{}, mark.Wrap(err, JobNotFound, "Job is not found")
		}
		return jobentity.Job{}, err
	}

	return job, nil
}

func (s *SQLite) ListJobsForOwner(ctx context.Context, owner string) ([]jobentity.Job, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM jobs WHERE owner = ? ORDER BY created_at DESC`, owner)
}

func (s *SQLite) ListUnfinishedJobs(ctx context.Context) ([]jobentity.Job, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM jobs WHERE state IN (?, ?) ORDER BY created_at`,
		string(jobentity.Queued), string(jobentity.Running))
}

// ListRecentJobs returns the newest jobs across all owners.
func (s *SQLite) ListRecentJobs(ctx context.Context, limit int) ([]jobentity.Job, error) {
	if limit <= 0 {
		limit = 25
	}

	return s.query(ctx, `SELECT `+selectColumns+` FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
}

func (s *SQLite) DeleteJob(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, jobID)
	if err != nil {
		return mark.Wrap(err, DefaultErrorMark, "Failed to delete job row")
	}

	return nil
}

func (s *SQLite) query(ctx context.Context, query string, args ...any) ([]jobentity.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mark.Wrap(err, DefaultErrorMark, "Failed to query jobs")
	}
	defer rows.Close()

	jobs := []jobentity.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, mark.Wrap(err, DefaultErrorMark, "Failed to iterate job rows")
	}

	return jobs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (jobentity.Job, error) {
	rec := record{}
	var stemOutputs string

	err := row.Scan(
		&rec.ID,
		&rec.Owner,
		&rec.State,
		&rec.InputRef,
		&rec.InputName,
		&rec.CreatedAt,
		&rec.StartedAt,
		&rec.FinishedAt,
		&stemOutputs,
		&rec.ErrorKind,
		&rec.ErrorMessage,
		&rec.InstanceID,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return jobentity.Job{}, err
		}
		return jobentity.Job{}, mark.Wrap(err, DefaultErrorMark, "Failed to scan job row")
	}

	if err := json.Unmarshal([]byte(stemOutputs), &rec.StemOutputs); err != nil {
		return jobentity.Job{}, mark.Wrap(err, UnmarshalMark, "Failed to unmarshal stem outputs")
	}

	return rec.toEntity(), nil
}
