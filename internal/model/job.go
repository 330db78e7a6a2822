package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Provider identifies a partner financial API.
type Provider string

const (
	ProviderV8    Provider = "v8"
	ProviderFacta Provider = "facta"
	ProviderC6    Provider = "c6"
)

// ParseProvider validates a provider tag from user input.
func ParseProvider(s string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(s))) {
	case ProviderV8:
		return ProviderV8, nil
	case ProviderFacta:
		return ProviderFacta, nil
	case ProviderC6:
		return ProviderC6, nil
	}
	return "", eris.Errorf("model: unknown provider %q", s)
}

// JobStatus represents the current state of a batch job.
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
)

// BatchJob is a submitted balance-query batch. The identifier list is copied
// by value at submission time and never changes afterwards.
type BatchJob struct {
	ID          string    `json:"id"`
	Provider    Provider  `json:"provider"`
	FileName    string    `json:"file_name"`
	Identifiers []string  `json:"identifiers"`
	Total       int       `json:"total"`
	Processed   int       `json:"processed"`
	Status      JobStatus `json:"status"`
	ErrorMsg    string    `json:"error_msg,omitempty"`
	OwnerID     string    `json:"owner_id"`
	OwnerEmail  string    `json:"owner_email"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewJobID derives an opaque job id from the provider and submission time.
func NewJobID(provider Provider, at time.Time) string {
	return fmt.Sprintf("%s-%d-%s", provider, at.UnixMilli(), uuid.New().String()[:8])
}

// Terminal reports whether the job has reached a final state.
func (j *BatchJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusError
}
