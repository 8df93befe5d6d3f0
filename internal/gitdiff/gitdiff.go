// Package gitdiff materializes the files changed between two commits of a repository.
package gitdiff

import (
	"context"
	"sort"
	"unicode/utf8"

	"github.com/VAR-META-Tech/intent-verification/internal/constants"
)

// FileChange is one file of the change set between two commits.
type FileChange struct {
	Path       string
	OldPath    string
	ChangeType string
	// Content is the file at the newer commit. Empty for deletions and binary files.
	Content   string
	Patch     string
	Additions int
	Deletions int
	Binary    bool
	// SkipReason is set when the content could not be obtained.
	SkipReason string
}

// Reviewable reports whether the change carries text content worth reviewing.
func (f FileChange) Reviewable() bool {
	return f.ChangeType != constants.ChangeDeleted && !f.Binary && f.SkipReason == ""
}

// NotReviewableReason describes why Reviewable is false.
func (f FileChange) NotReviewableReason() string {
	switch {
	case f.ChangeType == constants.ChangeDeleted:
		return "file deleted"
	case f.SkipReason != "":
		return f.SkipReason
	default:
		return "binary file"
	}
}

// Source lists the files changed between two commits of a repository.
type Source interface {
	ChangedFiles(ctx context.Context, repoURL, from, to string) ([]FileChange, error)
}

// setContent stores data as the new content, marking non-UTF-8 data as binary.
func (f *FileChange) setContent(data []byte) {
	if !utf8.Valid(data) {
		f.Binary = true
		f.Content = ""
		return
	}
	f.Content = string(data)
}

func sortByPath(files []FileChange) {
	sort.SliceStable(files, func(i, j int) bool { return files[i].Path < files[j].Path })
}
