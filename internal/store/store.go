// Package store persists batch jobs, partner results, audit entries and
// partner credentials.
package store

import (
	"context"

	"github.com/nexcred/backoffice/internal/model"
)

// JobFilter specifies criteria for listing batch jobs.
type JobFilter struct {
	Status   model.JobStatus `json:"status,omitempty"`
	Provider model.Provider  `json:"provider,omitempty"`
	OwnerID  string          `json:"owner_id,omitempty"`
	Limit    int             `json:"limit,omitempty"`
	Offset   int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the batch subsystem.
//
// Concurrency contract: a job row has exactly one writer after creation (the
// batch runner for that job), but result rows may be written by both the
// synchronous gateway path and the webhook receiver for the same key, so
// UpsertResult must be an idempotent last-write-wins upsert.
type Store interface {
	// Jobs
	CreateJob(ctx context.Context, job *model.BatchJob) error
	GetJob(ctx context.Context, jobID string) (*model.BatchJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.BatchJob, error)
	// IncrementJobProgress atomically advances the processed counter.
	// It refuses to advance past total or on a terminal job.
	IncrementJobProgress(ctx context.Context, jobID string) error
	// FinalizeJob moves a processing job to completed or error. Terminal
	// jobs are immutable; finalizing one is an error.
	FinalizeJob(ctx context.Context, jobID string, status model.JobStatus, errMsg string) error

	// Results
	UpsertResult(ctx context.Context, rec *model.ResultRecord) error
	GetResult(ctx context.Context, correlationKey string) (*model.ResultRecord, error)
	GetResults(ctx context.Context, correlationKeys []string) (map[string]model.ResultRecord, error)

	// Activity log
	AppendActivity(ctx context.Context, entry *model.ActivityLogEntry) error
	ListActivity(ctx context.Context, limit int) ([]model.ActivityLogEntry, error)

	// Partner credentials
	GetCredentials(ctx context.Context, ownerID string, provider model.Provider) (*model.PartnerCredentials, error)
	PutCredentials(ctx context.Context, creds *model.PartnerCredentials) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
