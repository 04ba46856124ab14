package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const maxErrorBytes = 64 * 1024

const jobColumns = `id, subworld, nprocs, args, trace, status, submitted_by, ranks, exit_status,
  created_at, started_at, completed_at, last_error`

type Queue struct {
	db *sql.DB
}

func New(db *sql.DB) *Queue {
	return &Queue{db: db}
}

func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (string, error) {
	if req.Subworld == "" {
		return "", fmt.Errorf("subworld is empty")
	}
	if req.NProcs <= 0 {
		return "", fmt.Errorf("nprocs must be positive (got %d)", req.NProcs)
	}
	if req.SubmittedBy == "" {
		return "", fmt.Errorf("submitted_by is empty")
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := q.db.ExecContext(ctx, `
INSERT INTO spawn_jobs(id, subworld, nprocs, args, trace, status, submitted_by, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?);
`, id, req.Subworld, req.NProcs, req.Args, req.Trace, StatusQueued, req.SubmittedBy, now)
	if err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return id, nil
}

// Next returns the oldest queued job without claiming it. Returns (nil, nil)
// if the queue is empty.
func (q *Queue) Next(ctx context.Context) (*Job, error) {
	row := q.db.QueryRowContext(ctx, `
SELECT `+jobColumns+`
FROM spawn_jobs
WHERE status = ?
ORDER BY rowid ASC
LIMIT 1;
`, StatusQueued)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next job: %w", err)
	}
	return j, nil
}

// Start marks a queued job running on ranks.
func (q *Queue) Start(ctx context.Context, jobID string, ranks []int) error {
	ranksJSON, err := json.Marshal(ranks)
	if err != nil {
		return fmt.Errorf("encode ranks: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := q.db.ExecContext(ctx, `
UPDATE spawn_jobs
SET status = ?, started_at = ?, ranks = ?
WHERE id = ? AND status = ?;
`, StatusRunning, now, string(ranksJSON), jobID, StatusQueued)
	if err != nil {
		return fmt.Errorf("start job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("start job %s: %w", jobID, ErrJobNotFound)
	}
	return nil
}

// Report records the status one rank returned for a job.
func (q *Queue) Report(ctx context.Context, jobID string, rank int, status int32) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := q.db.ExecContext(ctx, `
INSERT INTO spawn_reports(job_id, rank, status, reported_at)
VALUES(?, ?, ?, ?)
ON CONFLICT(job_id, rank) DO UPDATE SET status = excluded.status, reported_at = excluded.reported_at;
`, jobID, rank, status, now)
	if err != nil {
		return fmt.Errorf("record report for job %s rank %d: %w", jobID, rank, err)
	}
	return nil
}

// Complete marks a job terminal.
func (q *Queue) Complete(ctx context.Context, jobID string, status Status, exitStatus int, lastError *string) error {
	if jobID == "" {
		return fmt.Errorf("jobID is empty")
	}
	if !status.Terminal() {
		return fmt.Errorf("invalid terminal status: %q", status)
	}

	var errVal any
	if lastError != nil {
		s := *lastError
		if len(s) > maxErrorBytes {
			s = s[:maxErrorBytes]
		}
		errVal = s
	}

	completedAt := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := q.db.ExecContext(ctx, `
UPDATE spawn_jobs
SET status = ?, exit_status = ?, completed_at = ?, last_error = ?
WHERE id = ?;
`, status, exitStatus, completedAt, errVal, jobID)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("complete job %s: %w", jobID, ErrJobNotFound)
	}
	return nil
}

// RecoverRunning marks jobs left running by an earlier run as dead. A spawn
// run owns the whole process group, so such jobs cannot still be alive.
func (q *Queue) RecoverRunning(ctx context.Context) (int, error) {
	msg := "run ended before the job reported"
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := q.db.ExecContext(ctx, `
UPDATE spawn_jobs
SET status = ?, completed_at = ?, last_error = ?
WHERE status = ?;
`, StatusDead, now, msg, StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("recover running jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("recover running jobs: %w", err)
	}
	return int(n), nil
}

func (q *Queue) Get(ctx context.Context, jobID string) (*Job, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM spawn_jobs WHERE id = ?;`, jobID)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// List returns up to limit jobs, newest first. A non-positive limit returns
// every job.
func (q *Queue) List(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := q.db.QueryContext(ctx, `
SELECT `+jobColumns+`
FROM spawn_jobs
ORDER BY rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// Reports returns the per-rank reports of a job ordered by rank.
func (q *Queue) Reports(ctx context.Context, jobID string) ([]Report, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT job_id, rank, status, reported_at
FROM spawn_reports
WHERE job_id = ?
ORDER BY rank ASC;
`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		var (
			r           Report
			reportedAtS string
		)
		if err := rows.Scan(&r.JobID, &r.Rank, &r.Status, &reportedAtS); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, reportedAtS); err == nil {
			r.ReportedAt = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var (
		j            Job
		statusS      string
		ranks        sql.NullString
		exitStatus   sql.NullInt64
		createdAtS   string
		startedAtS   sql.NullString
		completedAtS sql.NullString
		lastError    sql.NullString
	)
	if err := row.Scan(
		&j.ID, &j.Subworld, &j.NProcs, &j.Args, &j.Trace, &statusS, &j.SubmittedBy, &ranks, &exitStatus,
		&createdAtS, &startedAtS, &completedAtS, &lastError,
	); err != nil {
		return nil, err
	}

	j.Status = Status(statusS)
	if ranks.Valid {
		if err := json.Unmarshal([]byte(ranks.String), &j.Ranks); err != nil {
			return nil, fmt.Errorf("decode ranks of job %s: %w", j.ID, err)
		}
	}
	if exitStatus.Valid {
		v := int(exitStatus.Int64)
		j.ExitStatus = &v
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
		j.CreatedAt = t
	}
	if startedAtS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, startedAtS.String); err == nil {
			j.StartedAt = &t
		}
	}
	if completedAtS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, completedAtS.String); err == nil {
			j.CompletedAt = &t
		}
	}
	if lastError.Valid {
		j.LastError = &lastError.String
	}
	return &j, nil
}
