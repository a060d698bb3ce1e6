package reconcile

import (
	"sort"
	"strings"

	tserrors "treesync/internal/errors"
	"treesync/internal/remote"
)

// FileRecord is a desired (path, content) pair. Path is repository-relative.
type FileRecord struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// NewFileRecord cleans path and rejects an empty one.
func NewFileRecord(path, content string) (FileRecord, error) {
	clean := remote.CleanPath(path)
	if clean == "" {
		return FileRecord{}, tserrors.PathInvalid(path, "file path is required")
	}
	return FileRecord{Path: clean, Content: content}, nil
}

// BranchSet is the set of branch names known to a session. It is never
// modified after construction.
type BranchSet struct {
	names map[string]struct{}
}

func NewBranchSet(names []string) BranchSet {
	set := BranchSet{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		set.names[n] = struct{}{}
	}
	return set
}

func (b BranchSet) Contains(branch string) bool {
	_, ok := b.names[branch]
	return ok
}

// Validate returns a BRANCH_NOT_FOUND error for unknown branches.
func (b BranchSet) Validate(branch string) error {
	if strings.TrimSpace(branch) == "" || !b.Contains(branch) {
		return tserrors.BranchNotFound(branch)
	}
	return nil
}

// Names returns the branch names in sorted order.
func (b BranchSet) Names() []string {
	names := make([]string, 0, len(b.names))
	for n := range b.names {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (b BranchSet) Len() int {
	return len(b.names)
}
