// Package targets locates the functions and files that a test intent names
// in the tree of a commit.
package targets

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/VAR-META-Tech/intent-verification/internal/gitdiff"
)

// Targets lists the functions and files expected to work.
type Targets struct {
	Functions []string `json:"functions" yaml:"functions"`
	Files     []string `json:"files" yaml:"files"`
}

// Normalize trims every name and drops blanks and duplicates, keeping order.
func (t Targets) Normalize() Targets {
	return Targets{Functions: unique(t.Functions), Files: unique(t.Files)}
}

// Empty reports whether no target is named.
func (t Targets) Empty() bool {
	return len(t.Functions) == 0 && len(t.Files) == 0
}

func unique(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// File is a target file as found at the test commit.
type File struct {
	Path    string `json:"path" yaml:"path"`
	Size    int    `json:"size" yaml:"size"`
	Content string `json:"-" yaml:"-"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Found reports whether the file was read.
func (f File) Found() bool { return f.Error == "" }

// Function is a target function as found at the test commit.
type Function struct {
	Name     string `json:"name" yaml:"name"`
	FilePath string `json:"file_path,omitempty" yaml:"file_path,omitempty"`
	Content  string `json:"content,omitempty" yaml:"content,omitempty"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Found reports whether a definition was located.
func (f Function) Found() bool { return f.Content != "" }

// Resolved holds the targets together with their code.
type Resolved struct {
	Targets   Targets    `json:"targets" yaml:"targets"`
	Functions []Function `json:"functions" yaml:"functions"`
	Files     []File     `json:"files" yaml:"files"`
}

// FoundFunctions counts the functions whose definition was located.
func (r *Resolved) FoundFunctions() int {
	n := 0
	for _, f := range r.Functions {
		if f.Found() {
			n++
		}
	}
	return n
}

// FoundFiles counts the files that could be read.
func (r *Resolved) FoundFiles() int {
	n := 0
	for _, f := range r.Files {
		if f.Found() {
			n++
		}
	}
	return n
}

// Resolve reads the target files from tree and searches its source files for
// the target functions. Targets that cannot be found are reported with an
// error message; only a failure to read the tree itself is returned.
func Resolve(tree gitdiff.Tree, t Targets) (*Resolved, error) {
	t = t.Normalize()
	r := &Resolved{
		Targets:   t,
		Functions: make([]Function, len(t.Functions)),
		Files:     make([]File, len(t.Files)),
	}

	for i, p := range t.Files {
		r.Files[i] = readFile(tree, p)
	}

	pending := make(map[string]int, len(t.Functions))
	for i, name := range t.Functions {
		r.Functions[i] = Function{Name: name}
		pending[name] = i
	}
	if len(pending) > 0 {
		err := tree.Walk(func(path, content string) bool {
			if !IsSourceFile(path) {
				return true
			}
			for name, i := range pending {
				if src, ok := ExtractFunction(content, name, path); ok {
					r.Functions[i].FilePath = path
					r.Functions[i].Content = src
					delete(pending, name)
				}
			}
			return len(pending) > 0
		})
		if err != nil {
			return nil, fmt.Errorf("searching target functions: %w", err)
		}
	}
	for _, i := range pending {
		r.Functions[i].Error = "not found in any source file"
	}

	return r, nil
}

func readFile(tree gitdiff.Tree, path string) File {
	content, err := tree.ReadFile(path)
	switch {
	case err == nil:
		return File{Path: path, Size: len(content), Content: content}
	case stderrors.Is(err, object.ErrFileNotFound):
		return File{Path: path, Error: "file not found"}
	case stderrors.Is(err, gitdiff.ErrNotText):
		return File{Path: path, Error: "not a text file"}
	default:
		return File{Path: path, Error: err.Error()}
	}
}
