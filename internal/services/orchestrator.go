package services

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	v1 "github.com/loopback-labs/e2e-agent/api/v1"
	"github.com/loopback-labs/e2e-agent/internal/models"
)

const (
	// DefaultPollInterval is the initial pause between status polls. The
	// interval backs off exponentially up to maxPollInterval to bound
	// backend load.
	DefaultPollInterval = 5 * time.Second
	maxPollInterval     = 30 * time.Second

	// DefaultMaxWait bounds how long a single suite is polled before the
	// run gives up on it.
	DefaultMaxWait = 10 * time.Minute

	// DefaultReadinessTimeout bounds the wait for the local server.
	DefaultReadinessTimeout = 30 * time.Second

	// maxTransientPollFailures is how many consecutive transport errors a
	// poll loop absorbs before escalating.
	maxTransientPollFailures = 3
)

// SuiteService is the backend capability the orchestrator needs: submit,
// poll, download. Nothing wider.
type SuiteService interface {
	CreateCommitSuite(ctx context.Context, req v1.CommitSuiteRequest) (uuid.UUID, error)
	GetSuite(ctx context.Context, suiteID uuid.UUID) (v1.SuiteStatusResponse, error)
	DownloadArtifact(ctx context.Context, suiteID uuid.UUID, artifactID string, w io.Writer) error
}

// TunnelManager owns the run's single tunnel. Cleanup must be idempotent.
type TunnelManager interface {
	Open(ctx context.Context, localPort int, subdomainHint string) (*models.TunnelInfo, error)
	Cleanup(ctx context.Context) error
}

// ChangeAnalyzer derives the unit of change to test.
type ChangeAnalyzer interface {
	WorkingChanges() (*models.WorkingChanges, error)
	BranchInfo() (models.BranchInfo, error)
	PRCommitSequence(ctx context.Context, baseBranch, headBranch string) (*models.PRCommitSequence, error)
}

// RunRecorder persists run outcomes. The orchestrator works without one.
type RunRecorder interface {
	SaveRun(ctx context.Context, result *models.RunResult) error
	FinishRun(ctx context.Context, result *models.RunResult) error
}

// WaitFunc probes local server readiness.
type WaitFunc func(ctx context.Context, port int, timeout, interval time.Duration) (bool, error)

// RunOptions configures one run.
type RunOptions struct {
	Port          int
	SubdomainHint string

	// ProbeReadiness gates the run on the local server accepting
	// connections first.
	ProbeReadiness   bool
	ReadinessTimeout time.Duration

	PollInterval time.Duration
	MaxWait      time.Duration

	// BaseBranch and HeadBranch select the PR to replay; only used by
	// RunPRSequenceTests.
	BaseBranch string
	HeadBranch string

	// Parallelism caps concurrent suites in PR sequence mode. Zero or one
	// means serial.
	Parallelism int

	DownloadArtifacts bool
	DownloadDir       string
}

func (o *RunOptions) withDefaults() RunOptions {
	opts := *o
	if opts.ReadinessTimeout <= 0 {
		opts.ReadinessTimeout = DefaultReadinessTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = DefaultMaxWait
	}
	return opts
}

// Orchestrator drives a run end to end: readiness, tunnel, changesets,
// submission, polling, artifacts, teardown. One orchestrator handles one run
// at a time; a local port can host only one tunnel anyway.
type Orchestrator struct {
	backend  SuiteService
	tunnel   TunnelManager
	analyzer ChangeAnalyzer
	history  RunRecorder
	waitFn   WaitFunc

	mu     sync.Mutex
	status models.RunStatus
}

func NewOrchestrator(backend SuiteService, tunnel TunnelManager, analyzer ChangeAnalyzer, history RunRecorder, waitFn WaitFunc) *Orchestrator {
	return &Orchestrator{
		backend:  backend,
		tunnel:   tunnel,
		analyzer: analyzer,
		history:  history,
		waitFn:   waitFn,
		status:   models.RunStatus{Phase: models.RunPhaseIdle},
	}
}

// Status returns a point-in-time snapshot of the current run.
func (o *Orchestrator) Status() models.RunStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	snapshot := o.status
	snapshot.Suites = make([]models.SuiteResult, len(o.status.Suites))
	copy(snapshot.Suites, o.status.Suites)
	return snapshot
}

func (o *Orchestrator) setPhase(phase models.RunPhase) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status.Phase = phase
}

func (o *Orchestrator) beginRun(kind models.RunKind, suites int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status = models.RunStatus{
		Phase:  models.RunPhaseProbing,
		Kind:   kind,
		Suites: make([]models.SuiteResult, suites),
	}
}

func (o *Orchestrator) setTunnelURL(url string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status.TunnelURL = url
}

func (o *Orchestrator) setSuiteCount(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status.Suites = make([]models.SuiteResult, n)
}

func (o *Orchestrator) updateSuite(idx int, result models.SuiteResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if idx >= 0 && idx < len(o.status.Suites) {
		o.status.Suites[idx] = result
	}
}

func (o *Orchestrator) setError(msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status.Error = msg
}
