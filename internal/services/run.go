package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loopback-labs/e2e-agent/internal/models"
	"github.com/loopback-labs/e2e-agent/pkg/workpool"
)

const cleanupTimeout = 30 * time.Second

// suiteUnit is one changeset scheduled for submission.
type suiteUnit struct {
	changeID  string
	commitSHA string
	files     []models.FileChange
	branch    models.BranchInfo
}

// RunCommitTests tests the current working changes: probe readiness, open a
// tunnel, snapshot uncommitted work, submit one suite, poll it, optionally
// download artifacts. The tunnel is torn down whatever happens.
func (o *Orchestrator) RunCommitTests(ctx context.Context, opts RunOptions) *models.RunResult {
	opts = opts.withDefaults()
	result := o.startRun(ctx, models.RunKindWorkingChanges)
	defer o.finishRun(ctx, result)

	tunnelURL, ok := o.prepare(ctx, result, opts)
	if !ok {
		return result
	}

	o.setPhase(models.RunPhaseAnalyzing)
	changes, err := o.analyzer.WorkingChanges()
	if err != nil {
		return o.fail(result, err.Error())
	}
	if len(changes.FilesChanged) == 0 {
		return o.fail(result, "no local changes to test")
	}
	branch, err := o.analyzer.BranchInfo()
	if err != nil {
		return o.fail(result, err.Error())
	}

	o.setSuiteCount(1)
	unit := suiteUnit{
		changeID: changesetDigest(changes.FilesChanged),
		files:    changes.FilesChanged,
		branch:   branch,
	}
	res := o.executeSuite(ctx, 0, unit, tunnelURL, models.RunKindWorkingChanges, opts)
	result.Suites = []models.SuiteResult{res}
	o.aggregate(result)
	return result
}

// RunPRSequenceTests replays a pull request one commit at a time, each
// commit getting its own independently polled suite. One commit's failure
// never aborts its siblings; the aggregate result keeps every per-commit
// outcome. Suites run serially unless Parallelism caps a worker pool above
// one.
func (o *Orchestrator) RunPRSequenceTests(ctx context.Context, opts RunOptions) *models.RunResult {
	opts = opts.withDefaults()
	result := o.startRun(ctx, models.RunKindPRSequence)
	defer o.finishRun(ctx, result)

	tunnelURL, ok := o.prepare(ctx, result, opts)
	if !ok {
		return result
	}

	o.setPhase(models.RunPhaseAnalyzing)
	seq, err := o.analyzer.PRCommitSequence(ctx, opts.BaseBranch, opts.HeadBranch)
	if err != nil {
		return o.fail(result, err.Error())
	}
	if len(seq.Commits) == 0 {
		return o.fail(result, fmt.Sprintf("no commits between %s and %s", opts.BaseBranch, opts.HeadBranch))
	}

	units := make([]suiteUnit, 0, len(seq.Commits))
	branch := models.BranchInfo{Name: opts.HeadBranch}
	for _, cc := range seq.Commits {
		units = append(units, suiteUnit{
			changeID:  cc.Commit.SHA,
			commitSHA: cc.Commit.SHA,
			files:     cc.FilesChanged,
			branch:    branch,
		})
	}

	o.setSuiteCount(len(units))
	result.Suites = make([]models.SuiteResult, len(units))

	if opts.Parallelism > 1 {
		o.runParallel(ctx, result, units, tunnelURL, opts)
	} else {
		for i, unit := range units {
			result.Suites[i] = o.executeSuite(ctx, i, unit, tunnelURL, models.RunKindPRSequence, opts)
		}
	}

	o.aggregate(result)
	return result
}

// runParallel executes suite units on a bounded pool, keeping result order
// aligned with commit order. Failures stay isolated per unit.
func (o *Orchestrator) runParallel(ctx context.Context, result *models.RunResult, units []suiteUnit, tunnelURL string, opts RunOptions) {
	size := opts.Parallelism
	if size > len(units) {
		size = len(units)
	}
	pool := workpool.New(size)
	defer pool.Close()

	futures := make([]*workpool.Future[workpool.Result[any]], len(units))
	for i, unit := range units {
		futures[i] = pool.Submit(func(workCtx context.Context) (any, error) {
			// The pool derives work contexts from its own root, not from the
			// run; tie them together so cancelling either stops the suite.
			suiteCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			stop := context.AfterFunc(workCtx, cancel)
			defer stop()
			return o.executeSuite(suiteCtx, i, unit, tunnelURL, models.RunKindPRSequence, opts), nil
		})
	}
	for i, future := range futures {
		r := <-future.C()
		if res, ok := r.Data.(models.SuiteResult); ok {
			result.Suites[i] = res
			continue
		}
		// A panicked worker reports through the future's error.
		result.Suites[i] = models.SuiteResult{
			CommitSHA:     units[i].commitSHA,
			State:         models.SuiteStateFailed,
			FailureReason: fmt.Sprintf("suite execution failed: %v", r.Err),
		}
	}
}

// executeSuite submits one changeset and drives it to a terminal state.
func (o *Orchestrator) executeSuite(ctx context.Context, idx int, unit suiteUnit, tunnelURL string, kind models.RunKind, opts RunOptions) models.SuiteResult {
	o.setPhase(models.RunPhaseSubmitting)
	req := models.SuiteRequest{
		TunnelURL:      tunnelURL,
		Branch:         unit.branch,
		CommitSHA:      unit.commitSHA,
		FilesChanged:   unit.files,
		Kind:           kind,
		IdempotencyKey: idempotencyKey(unit.changeID, tunnelURL, kind),
	}

	suiteID, err := o.CreateCommitTestSuite(ctx, req)
	if err != nil {
		res := models.SuiteResult{
			CommitSHA:     unit.commitSHA,
			State:         models.SuiteStateFailed,
			FailureReason: err.Error(),
		}
		o.updateSuite(idx, res)
		return res
	}

	o.updateSuite(idx, models.SuiteResult{
		SuiteID:   suiteID.String(),
		CommitSHA: unit.commitSHA,
		State:     models.SuiteStatePending,
	})

	o.setPhase(models.RunPhasePolling)
	status := o.PollUntilComplete(ctx, suiteID, opts.MaxWait, opts.PollInterval)

	res := models.SuiteResult{
		SuiteID:       suiteID.String(),
		CommitSHA:     unit.commitSHA,
		State:         status.State,
		FailureReason: status.FailureReason,
	}

	if status.State == models.SuiteStateCompleted && opts.DownloadArtifacts && len(status.Artifacts) > 0 {
		o.setPhase(models.RunPhaseDownloading)
		paths, err := o.DownloadArtifacts(ctx, suiteID, status, opts.DownloadDir)
		res.TestFiles = paths
		if err != nil {
			res.FailureReason = fmt.Sprintf("artifact download failed: %v", err)
		}
	}

	o.updateSuite(idx, res)
	return res
}

// prepare runs the readiness probe and opens the tunnel. On failure the
// result carries the error and the run stops; the deferred finishRun still
// performs teardown.
func (o *Orchestrator) prepare(ctx context.Context, result *models.RunResult, opts RunOptions) (string, bool) {
	log := zap.S().Named("orchestrator")

	if opts.ProbeReadiness {
		o.setPhase(models.RunPhaseProbing)
		up, err := o.waitFn(ctx, opts.Port, opts.ReadinessTimeout, 0)
		if err != nil {
			o.fail(result, err.Error())
			return "", false
		}
		if !up {
			o.fail(result, fmt.Sprintf("local server on port %d did not become ready within %s", opts.Port, opts.ReadinessTimeout))
			return "", false
		}
	}

	o.setPhase(models.RunPhaseTunneling)
	info, err := o.tunnel.Open(ctx, opts.Port, opts.SubdomainHint)
	if err != nil {
		o.fail(result, err.Error())
		return "", false
	}
	result.TunnelURL = info.URL
	o.setTunnelURL(info.URL)
	log.Infow("run prepared", "runId", result.RunID, "tunnelUrl", info.URL)
	return info.URL, true
}

func (o *Orchestrator) startRun(ctx context.Context, kind models.RunKind) *models.RunResult {
	result := &models.RunResult{
		RunID:     uuid.NewString(),
		Kind:      kind,
		StartedAt: time.Now(),
	}
	o.beginRun(kind, 0)
	if o.history != nil {
		if err := o.history.SaveRun(ctx, result); err != nil {
			zap.S().Named("orchestrator").Warnw("failed to record run start", "runId", result.RunID, "error", err)
		}
	}
	return result
}

// finishRun is the run's resource-safety anchor: tunnel teardown happens
// here on every exit path, with a context that survives cancellation of the
// run itself.
func (o *Orchestrator) finishRun(ctx context.Context, result *models.RunResult) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := o.tunnel.Cleanup(cleanupCtx); err != nil {
		zap.S().Named("orchestrator").Errorw("tunnel cleanup failed", "runId", result.RunID, "error", err)
		if result.Error == "" {
			result.Error = fmt.Sprintf("tunnel cleanup failed: %v", err)
			result.Success = false
		}
	}

	result.FinishedAt = time.Now()
	if o.history != nil {
		if err := o.history.FinishRun(cleanupCtx, result); err != nil {
			zap.S().Named("orchestrator").Warnw("failed to record run outcome", "runId", result.RunID, "error", err)
		}
	}
	o.setPhase(models.RunPhaseDone)
}

// aggregate folds per-suite outcomes into the run verdict. Partial success
// stays visible in Suites; the error summarizes without collapsing it.
func (o *Orchestrator) aggregate(result *models.RunResult) {
	completed := 0
	for _, s := range result.Suites {
		if s.State == models.SuiteStateCompleted && s.FailureReason == "" {
			completed++
		}
	}
	result.Success = len(result.Suites) > 0 && completed == len(result.Suites)
	if !result.Success && result.Error == "" {
		result.Error = fmt.Sprintf("%d of %d suites did not complete", len(result.Suites)-completed, len(result.Suites))
	}
	if result.Success {
		result.Error = ""
	}
}

// fail marks the run failed and mirrors the message into the status
// snapshot.
func (o *Orchestrator) fail(result *models.RunResult, msg string) *models.RunResult {
	result.Success = false
	result.Error = msg
	o.setError(msg)
	zap.S().Named("orchestrator").Errorw("run failed", "runId", result.RunID, "error", msg)
	return result
}
