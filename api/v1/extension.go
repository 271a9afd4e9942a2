package v1

import (
	"github.com/loopback-labs/e2e-agent/internal/models"
)

// NewCommitSuiteRequest converts an internal suite request to its wire form.
func NewCommitSuiteRequest(req models.SuiteRequest) CommitSuiteRequest {
	files := make([]ChangedFile, 0, len(req.FilesChanged))
	for _, f := range req.FilesChanged {
		files = append(files, ChangedFile{
			Path:      f.Path,
			Additions: f.Additions,
			Deletions: f.Deletions,
			Patch:     f.Patch,
		})
	}
	return CommitSuiteRequest{
		TunnelURL: req.TunnelURL,
		Branch: BranchMetadata{
			Name:       req.Branch.Name,
			IsDetached: req.Branch.IsDetached,
		},
		CommitSHA:      req.CommitSHA,
		ChangedFiles:   files,
		SuiteKind:      string(req.Kind),
		IdempotencyKey: req.IdempotencyKey,
	}
}

// ToModel converts a wire status to the internal representation. Unknown
// status strings are treated as pending so a newer backend cannot push the
// poll loop into a bogus terminal state.
func (r SuiteStatusResponse) ToModel() models.SuiteStatus {
	status := models.SuiteStatus{
		FailureReason: r.FailureReason,
	}
	switch r.Status {
	case SuiteStatusRunning:
		status.State = models.SuiteStateRunning
	case SuiteStatusCompleted:
		status.State = models.SuiteStateCompleted
	case SuiteStatusFailed:
		status.State = models.SuiteStateFailed
	default:
		status.State = models.SuiteStatePending
	}
	for _, a := range r.Artifacts {
		status.Artifacts = append(status.Artifacts, models.Artifact{
			ID:        a.ID,
			Name:      a.Name,
			MediaType: a.MediaType,
			Size:      a.SizeBytes,
		})
	}
	return status
}
