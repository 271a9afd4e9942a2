package models

// SuiteState is the remote suite lifecycle. Transitions only move forward;
// terminal states never change again.
type SuiteState string

const (
	SuiteStatePending   SuiteState = "pending"
	SuiteStateRunning   SuiteState = "running"
	SuiteStateCompleted SuiteState = "completed"
	SuiteStateFailed    SuiteState = "failed"
	SuiteStateTimedOut  SuiteState = "timed_out"
)

var suiteStateRank = map[SuiteState]int{
	SuiteStatePending:   0,
	SuiteStateRunning:   1,
	SuiteStateCompleted: 2,
	SuiteStateFailed:    2,
	SuiteStateTimedOut:  2,
}

// Terminal reports whether the state admits no further transitions.
func (s SuiteState) Terminal() bool {
	switch s {
	case SuiteStateCompleted, SuiteStateFailed, SuiteStateTimedOut:
		return true
	}
	return false
}

// Advance returns the later of the two states, keeping observed progress
// monotonic even when the backend reports stale statuses out of order.
func (s SuiteState) Advance(next SuiteState) SuiteState {
	if s.Terminal() {
		return s
	}
	if suiteStateRank[next] >= suiteStateRank[s] {
		return next
	}
	return s
}

// Artifact is an opaque downloadable reference produced by a completed
// suite.
type Artifact struct {
	ID        string
	Name      string
	MediaType string
	Size      int64
}

// SuiteStatus is the observed status of one remote suite.
type SuiteStatus struct {
	State         SuiteState
	Artifacts     []Artifact
	FailureReason string
}

// SuiteRequest is built once per submission and never mutated after send.
type SuiteRequest struct {
	TunnelURL      string
	Branch         BranchInfo
	CommitSHA      string
	FilesChanged   []FileChange
	Kind           RunKind
	IdempotencyKey string
}
