package model

import "time"

// ActivityLogEntry is an immutable audit record. Entries are appended by any
// operation that touches partner data and are never mutated or deleted.
type ActivityLogEntry struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	UserEmail  string    `json:"user_email"`
	Action     string    `json:"action"`
	Identifier string    `json:"identifier,omitempty"`
	Provider   Provider  `json:"provider,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Audit action labels.
const (
	ActionBatchSubmitted   = "batch_submitted"
	ActionWebhookReceived  = "webhook_received"
	ActionReportGenerated  = "report_generated"
	ActionCredentialsSaved = "credentials_saved"
)
