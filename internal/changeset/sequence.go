package changeset

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/loopback-labs/e2e-agent/internal/models"
	srvErrors "github.com/loopback-labs/e2e-agent/pkg/errors"
)

// PRCommitSequence enumerates the commits reachable from headBranch but not
// from baseBranch, oldest first, each paired with its incremental diff from
// the previous element. The first element diffs against the merge base.
func (a *Analyzer) PRCommitSequence(ctx context.Context, baseBranch, headBranch string) (*models.PRCommitSequence, error) {
	baseCommit, err := a.resolveCommit(baseBranch)
	if err != nil {
		return nil, srvErrors.NewNoBaseRefError(baseBranch)
	}
	headCommit, err := a.resolveCommit(headBranch)
	if err != nil {
		return nil, err
	}

	mergeBases, err := headCommit.MergeBase(baseCommit)
	if err != nil {
		return nil, fmt.Errorf("failed to compute merge base: %w", err)
	}
	if len(mergeBases) == 0 {
		return nil, srvErrors.NewAmbiguousHistoryError(baseBranch, headBranch)
	}
	mergeBase := mergeBases[0]

	commits, err := a.commitsAheadOfBase(headCommit, baseCommit)
	if err != nil {
		return nil, err
	}
	ordered := topoSortOldestFirst(commits)

	seq := &models.PRCommitSequence{
		BaseBranch:   baseBranch,
		HeadBranch:   headBranch,
		MergeBaseSHA: mergeBase.Hash.String(),
	}

	prev := mergeBase
	for _, commit := range ordered {
		files, err := commitDiff(ctx, prev, commit)
		if err != nil {
			return nil, err
		}
		parents := make([]string, 0, commit.NumParents())
		for _, p := range commit.ParentHashes {
			parents = append(parents, p.String())
		}
		seq.Commits = append(seq.Commits, models.CommitChangeset{
			Commit: models.CommitInfo{
				SHA:        commit.Hash.String(),
				AuthorDate: commit.Author.When,
				Message:    commit.Message,
				ParentSHAs: parents,
			},
			FilesChanged: files,
		})
		prev = commit
	}

	zap.S().Named("changeset").Debugw("computed PR commit sequence",
		"base", baseBranch, "head", headBranch, "commits", len(seq.Commits))
	return seq, nil
}

// commitsAheadOfBase collects every commit reachable from head but not from
// base.
func (a *Analyzer) commitsAheadOfBase(head, base *object.Commit) (map[plumbing.Hash]*object.Commit, error) {
	baseSet := map[plumbing.Hash]struct{}{}
	baseIter := object.NewCommitPreorderIter(base, nil, nil)
	err := baseIter.ForEach(func(c *object.Commit) error {
		baseSet[c.Hash] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk base history: %w", err)
	}

	commits := map[plumbing.Hash]*object.Commit{}
	headIter := object.NewCommitPreorderIter(head, nil, nil)
	err = headIter.ForEach(func(c *object.Commit) error {
		if _, reachable := baseSet[c.Hash]; reachable {
			return nil
		}
		commits[c.Hash] = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk head history: %w", err)
	}
	return commits, nil
}

// topoSortOldestFirst orders the commit set ancestor before descendant.
// Among commits whose parents are all placed, the earliest committer date
// goes first, then the lexicographically smaller hash. The result is stable
// for a given repository state.
func topoSortOldestFirst(commits map[plumbing.Hash]*object.Commit) []*object.Commit {
	pending := make(map[plumbing.Hash]int, len(commits))
	children := make(map[plumbing.Hash][]*object.Commit, len(commits))
	for _, c := range commits {
		inSet := 0
		for _, parent := range c.ParentHashes {
			if _, ok := commits[parent]; ok {
				inSet++
				children[parent] = append(children[parent], c)
			}
		}
		pending[c.Hash] = inSet
	}

	var ready []*object.Commit
	for _, c := range commits {
		if pending[c.Hash] == 0 {
			ready = append(ready, c)
		}
	}

	less := func(x, y *object.Commit) bool {
		if !x.Committer.When.Equal(y.Committer.When) {
			return x.Committer.When.Before(y.Committer.When)
		}
		return x.Hash.String() < y.Hash.String()
	}

	ordered := make([]*object.Commit, 0, len(commits))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })
		next := ready[0]
		ready = ready[1:]
		ordered = append(ordered, next)
		for _, child := range children[next.Hash] {
			pending[child.Hash]--
			if pending[child.Hash] == 0 {
				ready = append(ready, child)
			}
		}
	}
	return ordered
}

// commitDiff produces per-file diffs between two commits' trees.
func commitDiff(ctx context.Context, from, to *object.Commit) ([]models.FileChange, error) {
	fromTree, err := from.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to load tree for %s: %w", from.Hash, err)
	}
	toTree, err := to.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to load tree for %s: %w", to.Hash, err)
	}
	diff, err := object.DiffTreeWithOptions(ctx, fromTree, toTree, object.DefaultDiffTreeOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to diff trees: %w", err)
	}
	if len(diff) == 0 {
		return nil, nil
	}
	patch, err := diff.PatchContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to render patch: %w", err)
	}
	return splitPatchByFile(patch.String()), nil
}
