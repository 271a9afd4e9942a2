// Package changeset derives units of change to test from a local git
// repository: either a snapshot of uncommitted work, or an ordered replay of
// a pull request one commit at a time.
package changeset

import (
	"errors"
	"fmt"
	"path/filepath"

	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/loopback-labs/e2e-agent/internal/models"
	srvErrors "github.com/loopback-labs/e2e-agent/pkg/errors"
)

// Analyzer answers read-only queries against one repository. All results are
// deterministic for an unchanged repository state.
type Analyzer struct {
	repoPath      string
	defaultBranch string
	repo          *gitlib.Repository
}

// NewAnalyzer opens the repository at repoPath. defaultBranch is the
// fallback base ref used when the checked-out branch tracks nothing.
func NewAnalyzer(repoPath, defaultBranch string) (*Analyzer, error) {
	abs, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, err
	}
	repo, err := gitlib.PlainOpenWithOptions(abs, &gitlib.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, gitlib.ErrRepositoryNotExists) {
			return nil, srvErrors.NewNotARepositoryError(abs)
		}
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}
	return &Analyzer{
		repoPath:      abs,
		defaultBranch: defaultBranch,
		repo:          repo,
	}, nil
}

func (a *Analyzer) RepoPath() string {
	return a.repoPath
}

// BranchInfo returns the checked-out branch name and whether HEAD is
// detached. A detached HEAD reports the short commit hash as its name.
func (a *Analyzer) BranchInfo() (models.BranchInfo, error) {
	head, err := a.repo.Head()
	if err != nil {
		return models.BranchInfo{}, fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	if head.Name().IsBranch() {
		return models.BranchInfo{Name: head.Name().Short()}, nil
	}
	return models.BranchInfo{
		Name:       head.Hash().String()[:7],
		IsDetached: true,
	}, nil
}

// resolveBaseRef picks the base to diff against: the current branch's remote
// tracking ref when configured, otherwise the configured default branch
// (local first, then origin).
func (a *Analyzer) resolveBaseRef(branchName string) (string, *object.Commit, error) {
	log := zap.S().Named("changeset")

	var candidates []string
	cfg, err := a.repo.Config()
	if err == nil {
		if branchCfg, ok := cfg.Branches[branchName]; ok && branchCfg.Merge != "" {
			candidates = append(candidates,
				fmt.Sprintf("%s/%s", branchCfg.Remote, branchCfg.Merge.Short()))
		}
	}
	if a.defaultBranch != "" {
		candidates = append(candidates, a.defaultBranch, "origin/"+a.defaultBranch)
	}

	for _, name := range candidates {
		hash, err := a.repo.ResolveRevision(plumbing.Revision(name))
		if err != nil {
			continue
		}
		commit, err := a.repo.CommitObject(*hash)
		if err != nil {
			continue
		}
		log.Debugw("resolved base ref", "branch", branchName, "base", name)
		return name, commit, nil
	}
	return "", nil, srvErrors.NewNoBaseRefError(branchName)
}

// resolveCommit turns a revision (branch name, remote ref, hash) into a
// commit object.
func (a *Analyzer) resolveCommit(rev string) (*object.Commit, error) {
	hash, err := a.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", rev, err)
	}
	commit, err := a.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("failed to load commit for %q: %w", rev, err)
	}
	return commit, nil
}
