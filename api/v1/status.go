package v1

import (
	"time"

	"github.com/loopback-labs/e2e-agent/internal/models"
)

// SuiteResult is the local status API view of one suite.
type SuiteResult struct {
	SuiteID       string   `json:"suite_id,omitempty"`
	CommitSHA     string   `json:"commit_sha,omitempty"`
	State         string   `json:"state"`
	FailureReason string   `json:"failure_reason,omitempty"`
	TestFiles     []string `json:"test_files,omitempty"`
}

// RunStatusResponse is returned by GET /api/v1/status.
type RunStatusResponse struct {
	Phase     string        `json:"phase"`
	Kind      string        `json:"kind,omitempty"`
	TunnelURL string        `json:"tunnel_url,omitempty"`
	Suites    []SuiteResult `json:"suites"`
	Error     string        `json:"error,omitempty"`
}

// RunResponse is one run in the history listing.
type RunResponse struct {
	ID         string        `json:"id"`
	Kind       string        `json:"kind"`
	TunnelURL  string        `json:"tunnel_url,omitempty"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
	Suites     []SuiteResult `json:"suites,omitempty"`
}

// NewRunStatusResponse converts an orchestrator snapshot to its wire form.
func NewRunStatusResponse(status models.RunStatus) RunStatusResponse {
	resp := RunStatusResponse{
		Phase:     string(status.Phase),
		Kind:      string(status.Kind),
		TunnelURL: status.TunnelURL,
		Suites:    newSuiteResults(status.Suites),
		Error:     status.Error,
	}
	return resp
}

// NewRunResponse converts a stored run to its wire form.
func NewRunResponse(run models.RunResult) RunResponse {
	return RunResponse{
		ID:         run.RunID,
		Kind:       string(run.Kind),
		TunnelURL:  run.TunnelURL,
		Success:    run.Success,
		Error:      run.Error,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Suites:     newSuiteResults(run.Suites),
	}
}

func newSuiteResults(suites []models.SuiteResult) []SuiteResult {
	out := make([]SuiteResult, 0, len(suites))
	for _, s := range suites {
		out = append(out, SuiteResult{
			SuiteID:       s.SuiteID,
			CommitSHA:     s.CommitSHA,
			State:         string(s.State),
			FailureReason: s.FailureReason,
			TestFiles:     s.TestFiles,
		})
	}
	return out
}
