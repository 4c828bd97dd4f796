package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/example/transcribe/api-go/internal/model"
)

type SQLite struct {
	db *sql.DB
}

const jobColumns = `id, created_at, updated_at, status, progress, filename, file_path, result_key, error_message`

func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Serialise writers; the pure-Go driver returns SQLITE_BUSY otherwise.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS transcription_jobs (
  id TEXT PRIMARY KEY,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  status TEXT NOT NULL,
  progress REAL NOT NULL DEFAULT 0,
  filename TEXT NOT NULL,
  file_path TEXT NOT NULL,
  result_key TEXT,
  error_message TEXT
);
`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) CreateJob(ctx context.Context, job model.Job) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcription_jobs (id, created_at, updated_at, status, progress, filename, file_path)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.CreatedAt.UnixMilli(),
		job.UpdatedAt.UnixMilli(),
		string(job.Status),
		job.Progress,
		job.Filename,
		job.FilePath,
	)
	return err
}

func (s *SQLite) GetJob(ctx context.Context, id string) (model.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM transcription_jobs WHERE id = ?`, id,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Job{}, model.ErrNotFound
	}
	return job, err
}

func (s *SQLite) ListJobs(ctx context.Context, status *model.JobStatus, limit int) ([]model.Job, error) {
	if limit <= 0 {
		limit = 25
	}

	query := `SELECT ` + jobColumns + ` FROM transcription_jobs`
	args := []any{}
	if status != nil {
		query += " WHERE status = ?"
		args = append(args, string(*status))
	}
	query += " ORDER BY updated_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// UpdateJob applies patch and refreshes updated_at in one statement.
func (s *SQLite) UpdateJob(ctx context.Context, id string, patch model.JobPatch) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE transcription_jobs
         SET updated_at = ?,
             status = COALESCE(?, status),
             progress = COALESCE(?, progress),
             result_key = COALESCE(?, result_key),
             error_message = COALESCE(?, error_message)
         WHERE id = ?`,
		time.Now().UnixMilli(),
		nullableStatus(patch.Status),
		nullableFloat64(patch.Progress),
		nullableString(patch.ResultKey),
		nullableString(patch.Error),
		id,
	)
	if err != nil {
		return err
	}
	return expectOne(res, model.ErrNotFound)
}

// TransitionJob applies patch only while the job is still in status from.
// A job in any other state yields model.ErrInvalidState and is left untouched.
func (s *SQLite) TransitionJob(ctx context.Context, id string, from model.JobStatus, patch model.JobPatch) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE transcription_jobs
         SET updated_at = ?,
             status = COALESCE(?, status),
             progress = COALESCE(?, progress),
             result_key = COALESCE(?, result_key),
             error_message = COALESCE(?, error_message)
         WHERE id = ? AND status = ?`,
		time.Now().UnixMilli(),
		nullableStatus(patch.Status),
		nullableFloat64(patch.Progress),
		nullableString(patch.ResultKey),
		nullableString(patch.Error),
		id,
		string(from),
	)
	if err != nil {
		return err
	}
	if err := expectOne(res, model.ErrInvalidState); err != nil {
		if _, getErr := s.GetJob(ctx, id); errors.Is(getErr, model.ErrNotFound) {
			return model.ErrNotFound
		}
		return fmt.Errorf("%w: job %s is no longer %s", err, id, from)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (model.Job, error) {
	var (
		jid, statusStr, filename, filePath string
		createdMs, updatedMs               int64
		progress                           float64
		resultKey                          sql.NullString
		errorMsg                           sql.NullString
	)
	if err := row.Scan(&jid, &createdMs, &updatedMs, &statusStr, &progress, &filename, &filePath, &resultKey, &errorMsg); err != nil {
		return model.Job{}, err
	}
	job := model.Job{
		ID:        jid,
		CreatedAt: time.UnixMilli(createdMs),
		UpdatedAt: time.UnixMilli(updatedMs),
		Status:    model.JobStatus(statusStr),
		Progress:  progress,
		Filename:  filename,
		FilePath:  filePath,
	}
	if resultKey.Valid {
		job.ResultKey = resultKey.String
	}
	if errorMsg.Valid {
		job.Error = errorMsg.String
	}
	return job, nil
}

func expectOne(res sql.Result, otherwise error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return otherwise
	}
	return nil
}

func nullableStatus(v *model.JobStatus) any {
	if v == nil {
		return nil
	}
	return string(*v)
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloat64(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
