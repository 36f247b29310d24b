package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	pkgerrors "github.com/k-code-yt/go-storefront/pkg/errors"
)

const (
	DBTableName_QueueJobs   = "queue_jobs"
	DBTableName_DeadLetters = "job_dead_letters"
)

// LedgerRepo persists job state so that dedup and attempt counts survive
// redelivery and restarts.
type LedgerRepo struct {
	repo      *sqlx.DB
	tableName string
	now       func() time.Time
}

func NewLedgerRepo(db *sqlx.DB) *LedgerRepo {
	return &LedgerRepo{
		repo:      db,
		tableName: DBTableName_QueueJobs,
		now:       time.Now,
	}
}

func (r *LedgerRepo) GetRepo() *sqlx.DB {
	return r.repo
}

// Create inserts a queued entry. It reports false when an entry with the
// same dedup key already exists, whatever its status.
func (r *LedgerRepo) Create(ctx context.Context, tx *sqlx.Tx, job *Job, maxAttempts int) (bool, error) {
	q := fmt.Sprintf(`INSERT INTO %s (dedup_key, event_id, status, attempts, max_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, $5, $5)
		ON CONFLICT (dedup_key) DO NOTHING`, r.tableName)
	res, err := tx.ExecContext(ctx, q, job.DedupKey, job.EventID, JobStatus_Queued, maxAttempts, r.now().UTC())
	if err != nil {
		return false, fmt.Errorf("insert ledger entry %s: %w", job.DedupKey, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// Claim marks the job running and bumps its attempt counter. An entry that
// is missing is created on the fly. ok is false when the entry is already
// succeeded or dead.
func (r *LedgerRepo) Claim(ctx context.Context, job *Job, maxAttempts int) (attempt int, ok bool, err error) {
	q := fmt.Sprintf(`INSERT INTO %[1]s (dedup_key, event_id, status, attempts, max_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, 1, $4, $5, $5)
		ON CONFLICT (dedup_key) DO UPDATE
		SET status = EXCLUDED.status, attempts = %[1]s.attempts + 1, updated_at = EXCLUDED.updated_at
		WHERE %[1]s.status NOT IN ($6, $7)
		RETURNING attempts`, r.tableName)

	err = r.repo.GetContext(ctx, &attempt, q, job.DedupKey, job.EventID, JobStatus_Running, maxAttempts, r.now().UTC(), JobStatus_Succeeded, JobStatus_Dead)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("claim %s: %w", job.DedupKey, err)
	}
	return attempt, true, nil
}

func (r *LedgerRepo) MarkSucceeded(ctx context.Context, dedupKey string) error {
	return r.setStatus(ctx, dedupKey, JobStatus_Succeeded, nil, nil)
}

func (r *LedgerRepo) MarkRetrying(ctx context.Context, dedupKey string, reason string, nextRunAt time.Time) error {
	return r.setStatus(ctx, dedupKey, JobStatus_Retrying, &reason, &nextRunAt)
}

func (r *LedgerRepo) MarkDead(ctx context.Context, dedupKey string, reason string) error {
	return r.setStatus(ctx, dedupKey, JobStatus_Dead, &reason, nil)
}

func (r *LedgerRepo) setStatus(ctx context.Context, dedupKey string, status JobStatus, reason *string, nextRunAt *time.Time) error {
	q := fmt.Sprintf(`UPDATE %s SET status = $1, last_error = COALESCE($2, last_error), next_run_at = $3, updated_at = $4 WHERE dedup_key = $5`, r.tableName)
	res, err := r.repo.ExecContext(ctx, q, status, reason, nextRunAt, r.now().UTC(), dedupKey)
	if err != nil {
		return fmt.Errorf("set %s status=%s: %w", dedupKey, status, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return pkgerrors.NewNonExistingKeyError(fmt.Errorf("ledger entry %s", dedupKey))
	}
	return nil
}

// Reset moves any entry that has not succeeded back to queued with a fresh
// attempt budget. Besides dead jobs this covers entries stranded in running
// or retrying when the runner could not record them as dead.
func (r *LedgerRepo) Reset(ctx context.Context, tx *sqlx.Tx, dedupKey string) (*Job, error) {
	q := fmt.Sprintf(`UPDATE %s SET status = $1, attempts = 0, last_error = NULL, next_run_at = NULL, updated_at = $2
		WHERE dedup_key = $3 AND status <> $4
		RETURNING event_id`, r.tableName)

	job := &Job{DedupKey: dedupKey, EnqueuedAt: r.now().UTC()}
	err := tx.GetContext(ctx, &job.EventID, q, JobStatus_Queued, job.EnqueuedAt, dedupKey, JobStatus_Succeeded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.NewNonExistingKeyError(fmt.Errorf("no unfinished job %s", dedupKey))
	}
	if err != nil {
		return nil, fmt.Errorf("reset %s: %w", dedupKey, err)
	}
	return job, nil
}

func (r *LedgerRepo) Get(ctx context.Context, dedupKey string) (*Entry, error) {
	e := &Entry{}
	q := fmt.Sprintf(`SELECT dedup_key, event_id, status, attempts, max_attempts, last_error, next_run_at, created_at, updated_at FROM %s WHERE dedup_key = $1`, r.tableName)
	err := r.repo.GetContext(ctx, e, q, dedupKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}
