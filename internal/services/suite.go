package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	v1 "github.com/loopback-labs/e2e-agent/api/v1"
	"github.com/loopback-labs/e2e-agent/internal/models"
	srvErrors "github.com/loopback-labs/e2e-agent/pkg/errors"
)

// CreateCommitTestSuite submits a single suite creation request. Submission
// failures are surfaced immediately, never retried here; the caller decides
// whether to retry the whole run.
func (o *Orchestrator) CreateCommitTestSuite(ctx context.Context, req models.SuiteRequest) (uuid.UUID, error) {
	suiteID, err := o.backend.CreateCommitSuite(ctx, v1.NewCommitSuiteRequest(req))
	if err != nil {
		return uuid.Nil, srvErrors.NewSubmissionError(err)
	}
	zap.S().Named("orchestrator").Infow("suite created",
		"suiteId", suiteID, "commit", req.CommitSHA, "kind", req.Kind)
	return suiteID, nil
}

// PollUntilComplete queries the suite status until a terminal state or until
// maxWait elapses, in which case it reports TimedOut. TimedOut is not a
// failure: the remote job may still be running, the caller has merely
// stopped waiting. Consecutive transient transport errors are absorbed up to
// a small bound, then escalated to Failed; they are never confused with the
// remote job's own failure.
func (o *Orchestrator) PollUntilComplete(ctx context.Context, suiteID uuid.UUID, maxWait, pollInterval time.Duration) models.SuiteStatus {
	log := zap.S().Named("orchestrator")

	interval := backoff.NewExponentialBackOff()
	interval.InitialInterval = pollInterval
	interval.MaxInterval = maxPollInterval

	deadline := time.Now().Add(maxWait)
	state := models.SuiteStatePending
	transientFailures := 0

	for {
		resp, err := o.backend.GetSuite(ctx, suiteID)
		switch {
		case err == nil:
			transientFailures = 0
			observed := resp.ToModel()
			state = state.Advance(observed.State)
			if state.Terminal() {
				observed.State = state
				log.Infow("suite reached terminal state", "suiteId", suiteID, "state", state)
				return observed
			}
		case srvErrors.IsNetworkTransientError(err):
			transientFailures++
			log.Warnw("suite status poll failed", "suiteId", suiteID,
				"attempt", transientFailures, "error", err)
			if transientFailures >= maxTransientPollFailures {
				return models.SuiteStatus{
					State:         models.SuiteStateFailed,
					FailureReason: "polling unreachable",
				}
			}
		default:
			// Auth errors and unknown suites will not heal with more polling.
			log.Errorw("suite status poll failed permanently", "suiteId", suiteID, "error", err)
			return models.SuiteStatus{
				State:         models.SuiteStateFailed,
				FailureReason: err.Error(),
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			log.Warnw("gave up waiting for suite", "suiteId", suiteID, "maxWait", maxWait)
			return models.SuiteStatus{State: models.SuiteStateTimedOut}
		}
		wait := interval.NextBackOff()
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return models.SuiteStatus{State: models.SuiteStateTimedOut}
		case <-time.After(wait):
		}
	}
}

// DownloadArtifacts fetches every artifact of a completed suite into
// destDir/<suiteID>/. Requesting artifacts for a suite in any other state is
// an error.
func (o *Orchestrator) DownloadArtifacts(ctx context.Context, suiteID uuid.UUID, status models.SuiteStatus, destDir string) ([]string, error) {
	if status.State != models.SuiteStateCompleted {
		return nil, srvErrors.NewArtifactNotFoundError(suiteID.String(), "")
	}

	dir := filepath.Join(destDir, suiteID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact dir: %w", err)
	}

	log := zap.S().Named("orchestrator")
	paths := make([]string, 0, len(status.Artifacts))
	for _, artifact := range status.Artifacts {
		name := artifact.Name
		if name == "" {
			name = artifact.ID
		}
		dest := filepath.Join(dir, filepath.Base(name))
		f, err := os.Create(dest)
		if err != nil {
			return paths, fmt.Errorf("failed to create %s: %w", dest, err)
		}
		if err := o.backend.DownloadArtifact(ctx, suiteID, artifact.ID, f); err != nil {
			f.Close()
			os.Remove(dest)
			return paths, err
		}
		if err := f.Close(); err != nil {
			return paths, err
		}
		log.Debugw("artifact downloaded", "suiteId", suiteID, "artifact", artifact.ID, "path", dest)
		paths = append(paths, dest)
	}
	return paths, nil
}

// idempotencyKey derives a stable key from the changeset identity, the
// tunnel URL and the suite kind, letting the backend deduplicate retried
// submissions.
func idempotencyKey(changeID, tunnelURL string, kind models.RunKind) string {
	sum := sha256.Sum256([]byte(changeID + "|" + tunnelURL + "|" + string(kind)))
	return hex.EncodeToString(sum[:])
}

// changesetDigest identifies uncommitted work by its patch content.
func changesetDigest(files []models.FileChange) string {
	h := sha256.New()
	for _, f := range files {
		h.Write([]byte(f.Path))
		h.Write([]byte{0})
		h.Write([]byte(f.Patch))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
