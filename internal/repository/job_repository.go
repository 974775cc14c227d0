package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/mgthompo1/payeez-sub001/internal/models"
)

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(ctx context.Context, job *models.BillingJob) error {
	query := `
		INSERT INTO billing_jobs (id, tenant_id, job_type, target_id, scheduled_for, attempts, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.TenantID, job.JobType, job.TargetID, job.ScheduledFor,
		job.Attempts, job.Status, job.CreatedAt, job.UpdatedAt,
	)
	return err
}

// ListDue returns pending jobs whose scheduled time has passed, oldest
// first.
func (r *JobRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.BillingJob, error) {
	query := `
		SELECT id, tenant_id, job_type, target_id, scheduled_for, attempts, status, coalesce(last_error, ''), created_at, updated_at
		FROM billing_jobs
		WHERE status = 'pending' AND scheduled_for <= $1
		ORDER BY scheduled_for ASC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.BillingJob
	for rows.Next() {
		job := &models.BillingJob{}
		if err := rows.Scan(&job.ID, &job.TenantID, &job.JobType, &job.TargetID, &job.ScheduledFor, &job.Attempts, &job.Status, &job.LastError, &job.CreatedAt, &job.UpdatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

func (r *JobRepository) MarkCompleted(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE billing_jobs SET status = 'completed', updated_at = $1 WHERE id = $2`,
		time.Now(), id)
	return err
}

// Reschedule records a failed attempt and sets the next run time.
func (r *JobRepository) Reschedule(ctx context.Context, id string, attempts int, nextRun time.Time, lastError string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE billing_jobs
		SET attempts = $1, scheduled_for = $2, last_error = nullif($3, ''), updated_at = $4
		WHERE id = $5
	`, attempts, nextRun, lastError, time.Now(), id)
	return err
}

func (r *JobRepository) MarkFailed(ctx context.Context, id string, attempts int, lastError string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE billing_jobs
		SET status = 'failed', attempts = $1, last_error = nullif($2, ''), updated_at = $3
		WHERE id = $4
	`, attempts, lastError, time.Now(), id)
	return err
}
