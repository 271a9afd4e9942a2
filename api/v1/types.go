// Package v1 holds the wire types exchanged with the e2e backend and the
// local status API. The backend speaks snake_case; the translation lives
// entirely in this package's struct tags and converters so the rest of the
// agent only sees internal models.
package v1

import "github.com/google/uuid"

// ChangedFile is one file-level diff on the wire.
type ChangedFile struct {
	Path      string `json:"path"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Patch     string `json:"patch"`
}

// BranchMetadata describes the branch a changeset came from.
type BranchMetadata struct {
	Name       string `json:"name"`
	IsDetached bool   `json:"is_detached"`
}

// CommitSuiteRequest is the body of POST /e2e/commit-suites.
type CommitSuiteRequest struct {
	TunnelURL      string         `json:"tunnel_url"`
	Branch         BranchMetadata `json:"branch"`
	CommitSHA      string         `json:"commit_sha,omitempty"`
	ChangedFiles   []ChangedFile  `json:"changed_files"`
	SuiteKind      string         `json:"suite_kind"`
	IdempotencyKey string         `json:"idempotency_key"`
}

// CommitSuiteResponse is the body returned on suite creation.
type CommitSuiteResponse struct {
	SuiteID uuid.UUID `json:"suite_id"`
}

// ArtifactRef points at one downloadable artifact of a completed suite.
type ArtifactRef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	MediaType string `json:"media_type"`
	SizeBytes int64  `json:"size_bytes"`
}

// SuiteStatusResponse is the body of GET /e2e/commit-suites/{id}.
type SuiteStatusResponse struct {
	Status        string        `json:"status"`
	FailureReason string        `json:"failure_reason,omitempty"`
	Artifacts     []ArtifactRef `json:"artifacts,omitempty"`
}

// Remote suite status values.
const (
	SuiteStatusPending   = "pending"
	SuiteStatusRunning   = "running"
	SuiteStatusCompleted = "completed"
	SuiteStatusFailed    = "failed"
)
