package models

import "time"

type JobType string

const (
	JobTypeRetryPayment JobType = "retry_payment"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// RetryOffsets is the fixed dunning schedule, in hours from the failure
// that created or rescheduled the job.
var RetryOffsets = []time.Duration{
	0,
	24 * time.Hour,
	72 * time.Hour,
	168 * time.Hour,
	336 * time.Hour,
}

type BillingJob struct {
	ID           string    `json:"id" db:"id"`
	TenantID     string    `json:"tenant_id" db:"tenant_id"`
	JobType      JobType   `json:"job_type" db:"job_type"`
	TargetID     string    `json:"target_id" db:"target_id"`
	ScheduledFor time.Time `json:"scheduled_for" db:"scheduled_for"`
	Attempts     int       `json:"attempts" db:"attempts"`
	Status       JobStatus `json:"status" db:"status"`
	LastError    string    `json:"last_error,omitempty" db:"last_error"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

const BillingJobSchema = `
CREATE TABLE IF NOT EXISTS billing_jobs (
    id VARCHAR(36) PRIMARY KEY,
    tenant_id VARCHAR(36) NOT NULL,
    job_type VARCHAR(32) NOT NULL,
    target_id VARCHAR(36) NOT NULL,
    scheduled_for TIMESTAMP NOT NULL,
    attempts INT NOT NULL DEFAULT 0,
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    last_error TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_jobs_due ON billing_jobs (status, scheduled_for);
`
