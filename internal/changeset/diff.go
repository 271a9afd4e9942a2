package changeset

import (
	"sort"
	"strings"

	"github.com/loopback-labs/e2e-agent/internal/models"
)

const diffHeaderPrefix = "diff --git "

// splitPatchByFile cuts a multi-file unified diff into per-file changes,
// keyed on the "diff --git" headers. Output is ordered by path.
func splitPatchByFile(patchText string) []models.FileChange {
	lines := strings.SplitAfter(patchText, "\n")

	var files []models.FileChange
	var current *models.FileChange
	var chunk strings.Builder

	flush := func() {
		if current == nil {
			return
		}
		current.Patch = chunk.String()
		current.Additions, current.Deletions = countPatchLines(current.Patch)
		files = append(files, *current)
		current = nil
		chunk.Reset()
	}

	for _, line := range lines {
		if strings.HasPrefix(line, diffHeaderPrefix) {
			flush()
			current = &models.FileChange{Path: diffHeaderPath(line)}
		}
		if current != nil {
			chunk.WriteString(line)
		}
	}
	flush()

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files
}

// diffHeaderPath extracts the post-image path from a "diff --git a/x b/x"
// line. When both sides name the same file the halves are equal length, so
// splitting at the midpoint keeps paths with spaces intact; renames fall
// back to the last whitespace-separated field.
func diffHeaderPath(line string) string {
	rest := strings.TrimSpace(strings.TrimPrefix(line, diffHeaderPrefix))
	if len(rest)%2 == 1 {
		from, to := rest[:len(rest)/2], rest[len(rest)/2+1:]
		if strings.HasPrefix(from, "a/") && strings.HasPrefix(to, "b/") && from[2:] == to[2:] {
			return to[2:]
		}
	}
	fields := strings.Fields(rest)
	if len(fields) < 2 {
		return ""
	}
	return strings.TrimPrefix(fields[len(fields)-1], "b/")
}

// countPatchLines tallies added and removed lines in a unified diff,
// skipping the file headers.
func countPatchLines(patch string) (additions, deletions int) {
	for _, line := range strings.Split(patch, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			additions++
		case strings.HasPrefix(line, "-"):
			deletions++
		}
	}
	return additions, deletions
}
