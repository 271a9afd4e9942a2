package models

import "time"

// FileChange is one file-level diff inside a changeset.
type FileChange struct {
	Path      string
	Additions int
	Deletions int
	Patch     string
}

// WorkingChanges is a snapshot of uncommitted and staged work relative to a
// base ref. It is computed fresh per invocation and read-only downstream.
type WorkingChanges struct {
	BaseRef      string
	BranchName   string
	FilesChanged []FileChange
}

// BranchInfo describes the checked-out branch.
type BranchInfo struct {
	Name       string
	IsDetached bool
}

// CommitInfo identifies one commit in a sequence.
type CommitInfo struct {
	SHA        string
	AuthorDate time.Time
	Message    string
	ParentSHAs []string
}

// CommitChangeset pairs a commit with its incremental diff from the previous
// element in the sequence. The first element diffs against the merge base.
type CommitChangeset struct {
	Commit       CommitInfo
	FilesChanged []FileChange
}

// PRCommitSequence is an ordered replay of a pull request, oldest commit
// first. Order is topological, consistent with parent links; ties are broken
// by commit date, then hash.
type PRCommitSequence struct {
	BaseBranch   string
	HeadBranch   string
	MergeBaseSHA string
	Commits      []CommitChangeset
}
