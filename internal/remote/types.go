// Package remote defines the capability the reconciliation core is written
// against: a version-controlled file store that can read files, list
// folders, and apply a batch of file actions as one commit. The package also
// holds the concrete stores (GitLab, badger-backed local, go-git) and the
// in-memory store the tests use.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned, possibly wrapped, when a file or folder does not
// exist on the requested ref.
var ErrNotFound = errors.New("not found")

// ErrCompareUnsupported is returned by wrappers whose backing store cannot
// diff revisions.
var ErrCompareUnsupported = errors.New("store cannot compare revisions")

// RootPath is the marker used for the repository root in tree listings.
const RootPath = "/"

// EntryKind distinguishes files from folders in a tree listing
type EntryKind int

const (
	Blob EntryKind = iota
	Tree
)

func (k EntryKind) String() string {
	switch k {
	case Blob:
		return "blob"
	case Tree:
		return "tree"
	default:
		return fmt.Sprintf("EntryKind(%d)", int(k))
	}
}

// ParseEntryKind maps the wire names "blob" and "tree".
func ParseEntryKind(s string) (EntryKind, error) {
	switch s {
	case "blob":
		return Blob, nil
	case "tree":
		return Tree, nil
	default:
		return 0, fmt.Errorf("unknown tree entry type %q", s)
	}
}

// TreeEntry is one item of a folder listing.
type TreeEntry struct {
	Path string    `json:"path"`
	Kind EntryKind `json:"kind"`
}

type ActionKind string

const (
	ActionCreate ActionKind = "create"
	ActionUpdate ActionKind = "update"
	ActionDelete ActionKind = "delete"
)

// Action is one file-level operation destined for a commit. Content is set
// for create and update and nil for delete.
type Action struct {
	Kind    ActionKind `json:"action"`
	Path    string     `json:"file_path"`
	Content *string    `json:"content,omitempty"`
}

func CreateAction(path, content string) Action {
	return Action{Kind: ActionCreate, Path: path, Content: &content}
}

func UpdateAction(path, content string) Action {
	return Action{Kind: ActionUpdate, Path: path, Content: &content}
}

func DeleteAction(path string) Action {
	return Action{Kind: ActionDelete, Path: path}
}

// Validate checks the per-kind content rules.
func (a Action) Validate() error {
	if a.Path == "" {
		return fmt.Errorf("action %s: empty file path", a.Kind)
	}
	switch a.Kind {
	case ActionCreate, ActionUpdate:
		if a.Content == nil {
			return fmt.Errorf("action %s %s: content is required", a.Kind, a.Path)
		}
	case ActionDelete:
		if a.Content != nil {
			return fmt.Errorf("action delete %s: content must be empty", a.Path)
		}
	default:
		return fmt.Errorf("unknown action %q for %s", a.Kind, a.Path)
	}
	return nil
}

// Text returns the action content, or "" for a delete.
func (a Action) Text() string {
	if a.Content == nil {
		return ""
	}
	return *a.Content
}

// Ack acknowledges an applied commit.
type Ack struct {
	ID        string    `json:"id"`
	Branch    string    `json:"branch"`
	Message   string    `json:"message"`
	Actions   int       `json:"actions"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the remote file store. Implementations must apply SubmitCommit
// atomically: either every action lands or none does.
type Store interface {
	ListBranches(ctx context.Context) ([]string, error)
	GetFile(ctx context.Context, path, ref string) (string, error)
	ListTree(ctx context.Context, path, ref string, recursive bool) ([]TreeEntry, error)
	SubmitCommit(ctx context.Context, actions []Action, branch, message string) (*Ack, error)
}

// Comparer is implemented by stores that can render unified diff text
// between two revisions.
type Comparer interface {
	Compare(ctx context.Context, from, to string) (string, error)
}

// CleanPath trims surrounding slashes; the empty result stands for the root.
func CleanPath(p string) string {
	return strings.Trim(strings.TrimSpace(p), "/")
}

// IsRoot reports whether p names the repository root.
func IsRoot(p string) bool {
	return CleanPath(p) == ""
}

// ValidateBatch checks every action and rejects duplicate paths.
func ValidateBatch(actions []Action) error {
	seen := make(map[string]bool, len(actions))
	for _, a := range actions {
		if err := a.Validate(); err != nil {
			return err
		}
		if seen[a.Path] {
			return fmt.Errorf("duplicate action for %s", a.Path)
		}
		seen[a.Path] = true
	}
	return nil
}
