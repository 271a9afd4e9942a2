package services_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	v1 "github.com/loopback-labs/e2e-agent/api/v1"
	"github.com/loopback-labs/e2e-agent/internal/models"
	"github.com/loopback-labs/e2e-agent/internal/services"
	srvErrors "github.com/loopback-labs/e2e-agent/pkg/errors"
)

func TestServices(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Services Suite")
}

// fakeBackend scripts suite creation and status polling.
type fakeBackend struct {
	mu sync.Mutex

	// createErrs fails the n-th CreateCommitSuite call (1-based) with the
	// mapped error.
	createErrs map[int]error
	createN    int
	requests   []v1.CommitSuiteRequest

	// statuses is played back per poll; the last entry repeats.
	statuses  []v1.SuiteStatusResponse
	pollErrs  []error
	pollN     int
	artifacts map[string]string
}

func (f *fakeBackend) CreateCommitSuite(ctx context.Context, req v1.CommitSuiteRequest) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createN++
	f.requests = append(f.requests, req)
	if err, ok := f.createErrs[f.createN]; ok {
		return uuid.Nil, err
	}
	return uuid.New(), nil
}

func (f *fakeBackend) GetSuite(ctx context.Context, suiteID uuid.UUID) (v1.SuiteStatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.pollN
	f.pollN++
	if idx < len(f.pollErrs) && f.pollErrs[idx] != nil {
		return v1.SuiteStatusResponse{}, f.pollErrs[idx]
	}
	if len(f.statuses) == 0 {
		return v1.SuiteStatusResponse{Status: v1.SuiteStatusCompleted}, nil
	}
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	return f.statuses[idx], nil
}

func (f *fakeBackend) DownloadArtifact(ctx context.Context, suiteID uuid.UUID, artifactID string, w io.Writer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.artifacts[artifactID]
	if !ok {
		return srvErrors.NewArtifactNotFoundError(suiteID.String(), artifactID)
	}
	_, err := io.WriteString(w, content)
	return err
}

// fakeTunnel counts lifecycle calls.
type fakeTunnel struct {
	mu           sync.Mutex
	openErr      error
	openCalls    int
	cleanupCalls int
}

func (f *fakeTunnel) Open(ctx context.Context, localPort int, subdomainHint string) (*models.TunnelInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openCalls++
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &models.TunnelInfo{URL: "https://abc123.tunnelgate.dev", Port: localPort}, nil
}

func (f *fakeTunnel) Cleanup(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanupCalls++
	return nil
}

func (f *fakeTunnel) cleanups() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleanupCalls
}

// fakeAnalyzer serves canned changesets.
type fakeAnalyzer struct {
	working    *models.WorkingChanges
	workingErr error
	sequence   *models.PRCommitSequence
	seqErr     error
}

func (f *fakeAnalyzer) WorkingChanges() (*models.WorkingChanges, error) {
	return f.working, f.workingErr
}

func (f *fakeAnalyzer) BranchInfo() (models.BranchInfo, error) {
	return models.BranchInfo{Name: "feature"}, nil
}

func (f *fakeAnalyzer) PRCommitSequence(ctx context.Context, base, head string) (*models.PRCommitSequence, error) {
	return f.sequence, f.seqErr
}

func serverUp(ctx context.Context, port int, timeout, interval time.Duration) (bool, error) {
	return true, nil
}

func serverDown(ctx context.Context, port int, timeout, interval time.Duration) (bool, error) {
	return false, nil
}

func someWorkingChanges() *models.WorkingChanges {
	return &models.WorkingChanges{
		BaseRef:    "main",
		BranchName: "feature",
		FilesChanged: []models.FileChange{
			{Path: "app.go", Additions: 3, Deletions: 1, Patch: "+new\n-old\n"},
		},
	}
}

func someSequence(n int) *models.PRCommitSequence {
	seq := &models.PRCommitSequence{
		BaseBranch:   "main",
		HeadBranch:   "feature",
		MergeBaseSHA: "base0000",
	}
	for i := range n {
		seq.Commits = append(seq.Commits, models.CommitChangeset{
			Commit: models.CommitInfo{SHA: fmt.Sprintf("commit%d", i+1)},
			FilesChanged: []models.FileChange{
				{Path: fmt.Sprintf("file%d.go", i+1), Additions: 1, Patch: "+x\n"},
			},
		})
	}
	return seq
}

// fastOpts keeps the poll loop quick enough for tests.
func fastOpts() services.RunOptions {
	return services.RunOptions{
		Port:         3000,
		PollInterval: time.Millisecond,
		MaxWait:      2 * time.Second,
	}
}

var _ = Describe("Orchestrator", func() {
	var (
		ctx      context.Context
		backend  *fakeBackend
		tun      *fakeTunnel
		analyzer *fakeAnalyzer
		o        *services.Orchestrator
	)

	BeforeEach(func() {
		ctx = context.Background()
		backend = &fakeBackend{}
		tun = &fakeTunnel{}
		analyzer = &fakeAnalyzer{working: someWorkingChanges()}
		o = services.NewOrchestrator(backend, tun, analyzer, nil, serverUp)
	})

	Describe("PollUntilComplete", func() {
		// Given a suite that progresses pending, running, completed
		// When we poll it
		// Then the terminal status is completed
		It("should follow the suite to completion", func() {
			backend.statuses = []v1.SuiteStatusResponse{
				{Status: v1.SuiteStatusPending},
				{Status: v1.SuiteStatusRunning},
				{Status: v1.SuiteStatusCompleted},
			}

			status := o.PollUntilComplete(ctx, uuid.New(), 2*time.Second, time.Millisecond)

			Expect(status.State).To(Equal(models.SuiteStateCompleted))
		})

		// Given a backend that reports a stale pending after running
		// When we poll
		// Then observed progress never regresses and polling continues
		It("should ignore stale status regressions", func() {
			backend.statuses = []v1.SuiteStatusResponse{
				{Status: v1.SuiteStatusRunning},
				{Status: v1.SuiteStatusPending},
				{Status: v1.SuiteStatusCompleted},
			}

			status := o.PollUntilComplete(ctx, uuid.New(), 2*time.Second, time.Millisecond)

			Expect(status.State).To(Equal(models.SuiteStateCompleted))
		})

		// Given a suite that never finishes
		// When maxWait elapses
		// Then the result is TimedOut, never Failed
		It("should report TimedOut when maxWait elapses", func() {
			backend.statuses = []v1.SuiteStatusResponse{{Status: v1.SuiteStatusRunning}}

			start := time.Now()
			status := o.PollUntilComplete(ctx, uuid.New(), 50*time.Millisecond, time.Millisecond)

			Expect(status.State).To(Equal(models.SuiteStateTimedOut))
			Expect(time.Since(start)).To(BeNumerically("<", time.Second))
		})

		It("should report TimedOut when the context is cancelled", func() {
			backend.statuses = []v1.SuiteStatusResponse{{Status: v1.SuiteStatusRunning}}
			cancelCtx, cancel := context.WithCancel(ctx)
			cancel()

			status := o.PollUntilComplete(cancelCtx, uuid.New(), 2*time.Second, time.Millisecond)

			Expect(status.State).To(Equal(models.SuiteStateTimedOut))
		})

		// Given a couple of transient poll failures followed by recovery
		// When we poll
		// Then the failures are absorbed and the terminal state comes through
		It("should absorb transient poll errors below the bound", func() {
			transient := srvErrors.NewNetworkTransientError("get suite", errors.New("connection reset"))
			backend.pollErrs = []error{transient, transient, nil}
			backend.statuses = []v1.SuiteStatusResponse{
				{},
				{},
				{Status: v1.SuiteStatusCompleted},
			}

			status := o.PollUntilComplete(ctx, uuid.New(), 2*time.Second, time.Millisecond)

			Expect(status.State).To(Equal(models.SuiteStateCompleted))
		})

		It("should fail after consecutive transient errors reach the bound", func() {
			transient := srvErrors.NewNetworkTransientError("get suite", errors.New("connection reset"))
			backend.pollErrs = []error{transient, transient, transient}

			status := o.PollUntilComplete(ctx, uuid.New(), 2*time.Second, time.Millisecond)

			Expect(status.State).To(Equal(models.SuiteStateFailed))
			Expect(status.FailureReason).To(Equal("polling unreachable"))
		})

		It("should fail immediately on a permanent poll error", func() {
			id := uuid.New()
			backend.pollErrs = []error{srvErrors.NewSuiteNotFoundError(id.String())}

			status := o.PollUntilComplete(ctx, id, 2*time.Second, time.Millisecond)

			Expect(status.State).To(Equal(models.SuiteStateFailed))
			Expect(status.FailureReason).To(ContainSubstring("not found"))
		})
	})

	Describe("RunCommitTests", func() {
		// Given working changes and a healthy backend
		// When the run executes
		// Then it succeeds and the tunnel is cleaned up exactly once
		It("should run one suite to completion and clean up", func() {
			result := o.RunCommitTests(ctx, fastOpts())

			Expect(result.Success).To(BeTrue())
			Expect(result.Error).To(BeEmpty())
			Expect(result.TunnelURL).To(Equal("https://abc123.tunnelgate.dev"))
			Expect(result.Suites).To(HaveLen(1))
			Expect(result.Suites[0].State).To(Equal(models.SuiteStateCompleted))
			Expect(tun.cleanups()).To(Equal(1))

			Expect(backend.requests).To(HaveLen(1))
			req := backend.requests[0]
			Expect(req.TunnelURL).To(Equal("https://abc123.tunnelgate.dev"))
			Expect(req.SuiteKind).To(Equal("working-changes"))
			Expect(req.IdempotencyKey).NotTo(BeEmpty())
			Expect(req.ChangedFiles).To(HaveLen(1))
		})

		It("should derive the same idempotency key for an identical resubmission", func() {
			o.RunCommitTests(ctx, fastOpts())
			o.RunCommitTests(ctx, fastOpts())

			Expect(backend.requests).To(HaveLen(2))
			Expect(backend.requests[1].IdempotencyKey).To(Equal(backend.requests[0].IdempotencyKey))
		})

		It("should fail without submitting when there are no local changes", func() {
			analyzer.working = &models.WorkingChanges{BaseRef: "main", BranchName: "feature"}

			result := o.RunCommitTests(ctx, fastOpts())

			Expect(result.Success).To(BeFalse())
			Expect(result.Error).To(Equal("no local changes to test"))
			Expect(backend.requests).To(BeEmpty())
			Expect(tun.cleanups()).To(Equal(1))
		})

		// The tunnel must be torn down on every exit path.
		It("should clean up when the readiness probe fails", func() {
			o = services.NewOrchestrator(backend, tun, analyzer, nil, serverDown)

			opts := fastOpts()
			opts.ProbeReadiness = true
			opts.ReadinessTimeout = 50 * time.Millisecond
			result := o.RunCommitTests(ctx, opts)

			Expect(result.Success).To(BeFalse())
			Expect(result.Error).To(ContainSubstring("did not become ready"))
			Expect(tun.openCalls).To(BeZero())
			Expect(tun.cleanups()).To(Equal(1))
		})

		It("should clean up when the tunnel cannot be opened", func() {
			tun.openErr = srvErrors.NewTunnelProvisionError("quota exceeded")

			result := o.RunCommitTests(ctx, fastOpts())

			Expect(result.Success).To(BeFalse())
			Expect(result.Error).To(ContainSubstring("quota exceeded"))
			Expect(tun.cleanups()).To(Equal(1))
		})

		It("should clean up when changeset analysis fails", func() {
			analyzer.workingErr = srvErrors.NewNoBaseRefError("feature")

			result := o.RunCommitTests(ctx, fastOpts())

			Expect(result.Success).To(BeFalse())
			Expect(tun.cleanups()).To(Equal(1))
		})

		It("should clean up when the suite fails remotely", func() {
			backend.statuses = []v1.SuiteStatusResponse{
				{Status: v1.SuiteStatusFailed, FailureReason: "assertion failed"},
			}

			result := o.RunCommitTests(ctx, fastOpts())

			Expect(result.Success).To(BeFalse())
			Expect(result.Suites[0].State).To(Equal(models.SuiteStateFailed))
			Expect(result.Suites[0].FailureReason).To(Equal("assertion failed"))
			Expect(tun.cleanups()).To(Equal(1))
		})
	})

	Describe("RunPRSequenceTests", func() {
		BeforeEach(func() {
			analyzer.sequence = someSequence(3)
		})

		It("should run one suite per commit, in order", func() {
			result := o.RunPRSequenceTests(ctx, fastOpts())

			Expect(result.Success).To(BeTrue())
			Expect(result.Suites).To(HaveLen(3))
			for i, suite := range result.Suites {
				Expect(suite.CommitSHA).To(Equal(fmt.Sprintf("commit%d", i+1)))
				Expect(suite.State).To(Equal(models.SuiteStateCompleted))
			}
			Expect(tun.cleanups()).To(Equal(1))
		})

		// Given the second commit's submission fails
		// When the run executes
		// Then the other commits still complete and the aggregate reports the loss
		It("should isolate one commit's failure from its siblings", func() {
			backend.createErrs = map[int]error{2: errors.New("backend rejected the request")}

			result := o.RunPRSequenceTests(ctx, fastOpts())

			Expect(result.Success).To(BeFalse())
			Expect(result.Error).To(Equal("1 of 3 suites did not complete"))
			Expect(result.Suites).To(HaveLen(3))
			Expect(result.Suites[0].State).To(Equal(models.SuiteStateCompleted))
			Expect(result.Suites[1].State).To(Equal(models.SuiteStateFailed))
			Expect(result.Suites[1].FailureReason).To(ContainSubstring("backend rejected"))
			Expect(result.Suites[2].State).To(Equal(models.SuiteStateCompleted))
			Expect(tun.cleanups()).To(Equal(1))
		})

		It("should keep result order aligned with commit order when running in parallel", func() {
			opts := fastOpts()
			opts.Parallelism = 2

			result := o.RunPRSequenceTests(ctx, opts)

			Expect(result.Success).To(BeTrue())
			Expect(result.Suites).To(HaveLen(3))
			for i, suite := range result.Suites {
				Expect(suite.CommitSHA).To(Equal(fmt.Sprintf("commit%d", i+1)))
				Expect(suite.State).To(Equal(models.SuiteStateCompleted))
			}
			Expect(tun.cleanups()).To(Equal(1))
		})

		// Given a run context that has already been cancelled
		// When suites execute on the worker pool
		// Then polling stops immediately instead of waiting out MaxWait
		It("should stop parallel suites promptly when the run context is cancelled", func() {
			backend.statuses = []v1.SuiteStatusResponse{{Status: v1.SuiteStatusRunning}}
			opts := fastOpts()
			opts.Parallelism = 2
			opts.MaxWait = 5 * time.Second
			cancelCtx, cancel := context.WithCancel(ctx)
			cancel()

			start := time.Now()
			result := o.RunPRSequenceTests(cancelCtx, opts)

			Expect(time.Since(start)).To(BeNumerically("<", time.Second))
			Expect(result.Success).To(BeFalse())
			Expect(result.Suites).To(HaveLen(3))
			for _, suite := range result.Suites {
				Expect(suite.State).To(Equal(models.SuiteStateTimedOut))
			}
			Expect(tun.cleanups()).To(Equal(1))
		})

		It("should fail the run when the branch has no commits", func() {
			analyzer.sequence = someSequence(0)

			opts := fastOpts()
			opts.BaseBranch = "main"
			opts.HeadBranch = "feature"
			result := o.RunPRSequenceTests(ctx, opts)

			Expect(result.Success).To(BeFalse())
			Expect(result.Error).To(ContainSubstring("no commits between"))
			Expect(tun.cleanups()).To(Equal(1))
		})
	})

	Describe("DownloadArtifacts", func() {
		It("should refuse a suite that is not completed", func() {
			status := models.SuiteStatus{State: models.SuiteStateRunning}

			_, err := o.DownloadArtifacts(ctx, uuid.New(), status, GinkgoT().TempDir())

			Expect(srvErrors.IsArtifactNotFoundError(err)).To(BeTrue())
		})

		It("should write every artifact under a per-suite directory", func() {
			backend.artifacts = map[string]string{
				"art-1": "spec result one",
				"art-2": "spec result two",
			}
			suiteID := uuid.New()
			status := models.SuiteStatus{
				State: models.SuiteStateCompleted,
				Artifacts: []models.Artifact{
					{ID: "art-1", Name: "login.spec.ts"},
					{ID: "art-2", Name: "checkout.spec.ts"},
				},
			}
			dir := GinkgoT().TempDir()

			paths, err := o.DownloadArtifacts(ctx, suiteID, status, dir)

			Expect(err).NotTo(HaveOccurred())
			Expect(paths).To(HaveLen(2))
			Expect(paths[0]).To(Equal(filepath.Join(dir, suiteID.String(), "login.spec.ts")))

			data, err := os.ReadFile(paths[0])
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("spec result one"))
		})

		It("should surface a missing artifact without leaving partial files", func() {
			backend.artifacts = map[string]string{}
			suiteID := uuid.New()
			status := models.SuiteStatus{
				State:     models.SuiteStateCompleted,
				Artifacts: []models.Artifact{{ID: "gone", Name: "gone.spec.ts"}},
			}
			dir := GinkgoT().TempDir()

			_, err := o.DownloadArtifacts(ctx, suiteID, status, dir)

			Expect(err).To(HaveOccurred())
			_, statErr := os.Stat(filepath.Join(dir, suiteID.String(), "gone.spec.ts"))
			Expect(os.IsNotExist(statErr)).To(BeTrue())
		})
	})

	Describe("Status", func() {
		It("should expose the terminal snapshot after a run", func() {
			result := o.RunCommitTests(ctx, fastOpts())
			Expect(result.Success).To(BeTrue())

			status := o.Status()

			Expect(status.Phase).To(Equal(models.RunPhaseDone))
			Expect(status.Kind).To(Equal(models.RunKindWorkingChanges))
			Expect(status.TunnelURL).To(Equal("https://abc123.tunnelgate.dev"))
			Expect(status.Suites).To(HaveLen(1))
			Expect(status.Suites[0].State).To(Equal(models.SuiteStateCompleted))
		})
	})
})
