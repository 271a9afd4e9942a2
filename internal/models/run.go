package models

import "time"

// RunKind selects the unit of change a run tests.
type RunKind string

const (
	RunKindWorkingChanges RunKind = "working-changes"
	RunKindPRSequence     RunKind = "pr-sequence"
)

// RunPhase is the orchestrator's coarse progress indicator, exposed by the
// local status API.
type RunPhase string

const (
	RunPhaseIdle        RunPhase = "idle"
	RunPhaseProbing     RunPhase = "probing"
	RunPhaseTunneling   RunPhase = "tunneling"
	RunPhaseAnalyzing   RunPhase = "analyzing"
	RunPhaseSubmitting  RunPhase = "submitting"
	RunPhasePolling     RunPhase = "polling"
	RunPhaseDownloading RunPhase = "downloading"
	RunPhaseDone        RunPhase = "done"
)

// SuiteResult is the outcome of one submitted suite. A pull request run
// carries one per commit.
type SuiteResult struct {
	SuiteID       string
	CommitSHA     string
	State         SuiteState
	FailureReason string
	TestFiles     []string
}

// RunResult aggregates a whole run. Success is true only when every suite
// completed; partial outcomes stay visible in Suites.
type RunResult struct {
	RunID      string
	Kind       RunKind
	TunnelURL  string
	Suites     []SuiteResult
	Success    bool
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// SuiteIDs returns the backend ids of all submitted suites, in order.
func (r *RunResult) SuiteIDs() []string {
	ids := make([]string, 0, len(r.Suites))
	for _, s := range r.Suites {
		if s.SuiteID != "" {
			ids = append(ids, s.SuiteID)
		}
	}
	return ids
}

// RunStatus is a point-in-time snapshot of the orchestrator.
type RunStatus struct {
	Phase     RunPhase
	Kind      RunKind
	TunnelURL string
	Suites    []SuiteResult
	Error     string
}
