package changeset

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/go-git/go-billy/v5"
	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pmezard/go-difflib/difflib"
	"go.uber.org/zap"

	"github.com/loopback-labs/e2e-agent/internal/models"
)

// WorkingChanges diffs the working tree, staged changes included, against
// the resolved base ref. Untracked files count as fully added. Files are
// ordered by path so repeated calls on an unchanged repository return
// identical results.
func (a *Analyzer) WorkingChanges() (*models.WorkingChanges, error) {
	branch, err := a.BranchInfo()
	if err != nil {
		return nil, err
	}

	baseRef, baseCommit, err := a.resolveBaseRef(branch.Name)
	if err != nil {
		return nil, err
	}
	baseTree, err := baseCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to load base tree: %w", err)
	}

	wt, err := a.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to open worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to compute worktree status: %w", err)
	}

	paths := make([]string, 0, len(status))
	for path, st := range status {
		if st.Staging == gitlib.Unmodified && st.Worktree == gitlib.Unmodified {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)

	changes := &models.WorkingChanges{
		BaseRef:    baseRef,
		BranchName: branch.Name,
	}
	for _, path := range paths {
		old, err := blobContents(baseTree, path)
		if err != nil {
			return nil, err
		}
		current, err := a.worktreeContents(wt.Filesystem, path)
		if err != nil {
			return nil, err
		}
		if old == current {
			continue
		}
		fc, err := fileChange(path, old, current)
		if err != nil {
			return nil, err
		}
		changes.FilesChanged = append(changes.FilesChanged, fc)
	}

	zap.S().Named("changeset").Debugw("computed working changes",
		"branch", branch.Name, "base", baseRef, "files", len(changes.FilesChanged))
	return changes, nil
}

// blobContents returns the base version of path, or "" when the file did not
// exist there.
func blobContents(tree *object.Tree, path string) (string, error) {
	file, err := tree.File(path)
	if err != nil {
		if err == object.ErrFileNotFound {
			return "", nil
		}
		return "", fmt.Errorf("failed to load base blob %s: %w", path, err)
	}
	contents, err := file.Contents()
	if err != nil {
		return "", fmt.Errorf("failed to read base blob %s: %w", path, err)
	}
	return contents, nil
}

// worktreeContents returns the current version of path, or "" when it was
// deleted. Open failures other than a missing file are surfaced.
func (a *Analyzer) worktreeContents(fs billy.Filesystem, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

// fileChange builds a unified diff between two versions of one file.
func fileChange(path, old, current string) (models.FileChange, error) {
	patch, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(old),
		B:        difflib.SplitLines(current),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  3,
	})
	if err != nil {
		return models.FileChange{}, fmt.Errorf("failed to diff %s: %w", path, err)
	}
	additions, deletions := countPatchLines(patch)
	return models.FileChange{
		Path:      path,
		Additions: additions,
		Deletions: deletions,
		Patch:     patch,
	}, nil
}
