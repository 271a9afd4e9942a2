package errors

import (
	"errors"
	"fmt"
)

// AuthError indicates bad or missing credentials. It is fatal; callers must
// not retry until the credentials change.
type AuthError struct {
	System string
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s authentication failed: %s", e.System, e.Reason)
}

func NewTunnelAuthError(reason string) *AuthError {
	return &AuthError{System: "tunnel provider", Reason: reason}
}

func NewBackendAuthError(reason string) *AuthError {
	return &AuthError{System: "backend", Reason: reason}
}

func IsAuthError(err error) bool {
	var e *AuthError
	return errors.As(err, &e)
}

// ProvisionError indicates the tunnel provider or backend failed to allocate
// a resource (quota, name collision, provider outage). Retryable by the
// caller with backoff, never retried internally.
type ProvisionError struct {
	Resource string
	Reason   string
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("failed to provision %s: %s", e.Resource, e.Reason)
}

func NewTunnelProvisionError(reason string) *ProvisionError {
	return &ProvisionError{Resource: "tunnel", Reason: reason}
}

func IsProvisionError(err error) bool {
	var e *ProvisionError
	return errors.As(err, &e)
}

// TunnelConflictError is returned when a second tunnel is requested while one
// is already active for the run.
type TunnelConflictError struct {
	ActiveURL string
}

func (e *TunnelConflictError) Error() string {
	return fmt.Sprintf("a tunnel is already active: %s", e.ActiveURL)
}

func NewTunnelConflictError(activeURL string) *TunnelConflictError {
	return &TunnelConflictError{ActiveURL: activeURL}
}

func IsTunnelConflictError(err error) bool {
	var e *TunnelConflictError
	return errors.As(err, &e)
}

// NetworkTransientError wraps a single failed network call. Polling retries
// these a bounded number of times before escalating.
type NetworkTransientError struct {
	Op  string
	Err error
}

func (e *NetworkTransientError) Error() string {
	return fmt.Sprintf("transient network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkTransientError) Unwrap() error { return e.Err }

func NewNetworkTransientError(op string, err error) *NetworkTransientError {
	return &NetworkTransientError{Op: op, Err: err}
}

func IsNetworkTransientError(err error) bool {
	var e *NetworkTransientError
	return errors.As(err, &e)
}

// SubmissionError indicates the suite creation request could not be
// delivered. The caller decides whether to retry the whole run.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("suite submission failed: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

func NewSubmissionError(err error) *SubmissionError {
	return &SubmissionError{Err: err}
}

func IsSubmissionError(err error) bool {
	var e *SubmissionError
	return errors.As(err, &e)
}

// RepositoryStateError covers unusable local repository state: missing
// metadata, unresolvable base ref, unrelated histories. Fatal; requires user
// action.
type RepositoryStateError struct {
	Kind   RepositoryErrorKind
	Detail string
}

type RepositoryErrorKind string

const (
	RepositoryErrorNotARepository   RepositoryErrorKind = "not_a_repository"
	RepositoryErrorNoBaseRef        RepositoryErrorKind = "no_base_ref"
	RepositoryErrorAmbiguousHistory RepositoryErrorKind = "ambiguous_history"
)

func (e *RepositoryStateError) Error() string {
	return fmt.Sprintf("repository error (%s): %s", e.Kind, e.Detail)
}

func NewNotARepositoryError(path string) *RepositoryStateError {
	return &RepositoryStateError{
		Kind:   RepositoryErrorNotARepository,
		Detail: fmt.Sprintf("no repository found at %s", path),
	}
}

func NewNoBaseRefError(branch string) *RepositoryStateError {
	return &RepositoryStateError{
		Kind:   RepositoryErrorNoBaseRef,
		Detail: fmt.Sprintf("no base ref could be resolved for branch %q", branch),
	}
}

func NewAmbiguousHistoryError(base, head string) *RepositoryStateError {
	return &RepositoryStateError{
		Kind:   RepositoryErrorAmbiguousHistory,
		Detail: fmt.Sprintf("%s and %s share no merge base", base, head),
	}
}

func IsRepositoryStateError(err error) bool {
	var e *RepositoryStateError
	return errors.As(err, &e)
}

func IsNotARepositoryError(err error) bool {
	var e *RepositoryStateError
	return errors.As(err, &e) && e.Kind == RepositoryErrorNotARepository
}

func IsNoBaseRefError(err error) bool {
	var e *RepositoryStateError
	return errors.As(err, &e) && e.Kind == RepositoryErrorNoBaseRef
}

func IsAmbiguousHistoryError(err error) bool {
	var e *RepositoryStateError
	return errors.As(err, &e) && e.Kind == RepositoryErrorAmbiguousHistory
}

// ArtifactNotFoundError is returned when an artifact is requested for a
// suite that is not in a completed state, or the backend has no such
// artifact.
type ArtifactNotFoundError struct {
	SuiteID    string
	ArtifactID string
}

func (e *ArtifactNotFoundError) Error() string {
	return fmt.Sprintf("artifact %s not found for suite %s", e.ArtifactID, e.SuiteID)
}

func NewArtifactNotFoundError(suiteID, artifactID string) *ArtifactNotFoundError {
	return &ArtifactNotFoundError{SuiteID: suiteID, ArtifactID: artifactID}
}

func IsArtifactNotFoundError(err error) bool {
	var e *ArtifactNotFoundError
	return errors.As(err, &e)
}

// SuiteNotFoundError is returned when the backend has no suite with the
// given id.
type SuiteNotFoundError struct {
	SuiteID string
}

func (e *SuiteNotFoundError) Error() string {
	return fmt.Sprintf("suite %s not found", e.SuiteID)
}

func NewSuiteNotFoundError(suiteID string) *SuiteNotFoundError {
	return &SuiteNotFoundError{SuiteID: suiteID}
}

func IsSuiteNotFoundError(err error) bool {
	var e *SuiteNotFoundError
	return errors.As(err, &e)
}

// RunNotFoundError is returned by the run history store.
type RunNotFoundError struct {
	RunID string
}

func (e *RunNotFoundError) Error() string {
	return fmt.Sprintf("run %s not found", e.RunID)
}

func NewRunNotFoundError(runID string) *RunNotFoundError {
	return &RunNotFoundError{RunID: runID}
}

func IsRunNotFoundError(err error) bool {
	var e *RunNotFoundError
	return errors.As(err, &e)
}
