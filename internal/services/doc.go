// Package services implements the orchestration logic of the e2e-agent.
//
// The orchestrator drives one run end to end: it probes the local server,
// opens a public tunnel, derives the changesets to test, submits them to the
// remote backend, polls every suite to a terminal state and tears the tunnel
// down again. Handlers and the CLI talk to the orchestrator; the orchestrator
// talks to everything else through narrow interfaces.
//
// # Dependency Graph
//
//	CLI / Handlers
//	    │
//	    ▼
//	Orchestrator
//	    ├── SuiteService ──► remote e2e backend (submit, poll, download)
//	    ├── TunnelManager ─► tunnel provider (open, cleanup)
//	    ├── ChangeAnalyzer ► local git repository
//	    ├── RunRecorder ───► run history store (optional)
//	    └── WaitFunc ──────► local server readiness probe
//
// # Suite Lifecycle
//
// Every submitted suite is polled through the same state machine:
//
//	┌─────────┐    ┌─────────┐    ┌───────────┐
//	│ Pending │───►│ Running │───►│ Completed │
//	└─────────┘    └─────────┘    └───────────┘
//	     │              │          (terminal)
//	     │              │
//	     ▼              ▼
//	┌──────────────────────┐    ┌──────────┐
//	│        Failed        │    │ TimedOut │
//	└──────────────────────┘    └──────────┘
//	      (terminal)             (terminal)
//
// States only move forward: a stale poll response can never regress an
// observed Running suite back to Pending, and terminal states never change.
// TimedOut is reported when maxWait elapses before the backend reaches a
// terminal state; it is deliberately distinct from Failed because the remote
// job may still be running after the agent stops waiting.
//
// Key behaviors:
//   - One run at a time; the run's single tunnel is torn down on every exit
//     path, including cancellation and panics unwinding through the deferred
//     finishRun.
//   - Consecutive transient poll errors are absorbed up to a small bound and
//     reset on any successful poll; past the bound the suite is marked Failed
//     with reason "polling unreachable".
//   - In a pull request run every commit gets its own suite and failures stay
//     isolated: one commit's failed submission never aborts its siblings.
//   - Submissions carry an idempotency key derived from the changeset, the
//     tunnel URL and the run kind, so a retried request cannot create a
//     duplicate suite.
package services
