package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Commit records one SubmitCommit call made against a MemoryStore.
type Commit struct {
	Branch  string
	Message string
	Actions []Action
}

// MemoryStore is an in-memory Store used by tests. Failures can be injected
// per path, and every call is counted.
type MemoryStore struct {
	mu       sync.Mutex
	branches map[string]map[string]string

	// Shallow makes ListTree ignore the recursive flag, like stores that
	// only return one level per call.
	Shallow bool

	ListErrors  map[string]error // keyed by cleaned folder path, "" is root
	GetErrors   map[string]error // keyed by file path
	CommitErr   error
	BranchesErr error

	GetFileCalls  int
	ListTreeCalls []string
	BranchCalls   int
	Commits       []Commit
}

func NewMemoryStore(branches ...string) *MemoryStore {
	m := &MemoryStore{
		branches:   make(map[string]map[string]string),
		ListErrors: make(map[string]error),
		GetErrors:  make(map[string]error),
	}
	for _, b := range branches {
		m.branches[b] = make(map[string]string)
	}
	return m
}

// SetFile writes a file directly, creating the branch if needed.
func (m *MemoryStore) SetFile(branch, path, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	files, ok := m.branches[branch]
	if !ok {
		files = make(map[string]string)
		m.branches[branch] = files
	}
	files[CleanPath(path)] = content
}

// Files returns a copy of the files on branch.
func (m *MemoryStore) Files(branch string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.branches[branch]))
	for p, c := range m.branches[branch] {
		out[p] = c
	}
	return out
}

func (m *MemoryStore) ListBranches(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BranchCalls++
	if m.BranchesErr != nil {
		return nil, m.BranchesErr
	}
	names := make([]string, 0, len(m.branches))
	for b := range m.branches {
		names = append(names, b)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStore) GetFile(ctx context.Context, path, ref string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetFileCalls++
	path = CleanPath(path)
	if err := m.GetErrors[path]; err != nil {
		return "", err
	}
	files, ok := m.branches[ref]
	if !ok {
		return "", fmt.Errorf("ref %s: %w", ref, ErrNotFound)
	}
	content, ok := files[path]
	if !ok {
		return "", fmt.Errorf("file %s: %w", path, ErrNotFound)
	}
	return content, nil
}

func (m *MemoryStore) ListTree(ctx context.Context, path, ref string, recursive bool) ([]TreeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dir := CleanPath(path)
	m.ListTreeCalls = append(m.ListTreeCalls, dir)
	if err := m.ListErrors[dir]; err != nil {
		return nil, err
	}
	files, ok := m.branches[ref]
	if !ok {
		return nil, fmt.Errorf("ref %s: %w", ref, ErrNotFound)
	}

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	entries := buildListing(paths, dir, recursive && !m.Shallow)
	if len(entries) == 0 && dir != "" {
		return nil, fmt.Errorf("tree %s: %w", dir, ErrNotFound)
	}
	return entries, nil
}

func (m *MemoryStore) SubmitCommit(ctx context.Context, actions []Action, branch, message string) (*Ack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Commits = append(m.Commits, Commit{Branch: branch, Message: message, Actions: actions})
	if m.CommitErr != nil {
		return nil, m.CommitErr
	}
	files, ok := m.branches[branch]
	if !ok {
		return nil, fmt.Errorf("branch %s: %w", branch, ErrNotFound)
	}
	next, err := applyActions(files, actions)
	if err != nil {
		return nil, err
	}
	m.branches[branch] = next
	return &Ack{
		ID:        fmt.Sprintf("mem-%d", len(m.Commits)),
		Branch:    branch,
		Message:   message,
		Actions:   len(actions),
		CreatedAt: time.Now(),
	}, nil
}

// applyActions returns a new file map with actions applied, or an error and
// no changes if any action does not fit the current state.
func applyActions(files map[string]string, actions []Action) (map[string]string, error) {
	if err := ValidateBatch(actions); err != nil {
		return nil, err
	}
	next := make(map[string]string, len(files))
	for p, c := range files {
		next[p] = c
	}
	for _, a := range actions {
		_, exists := next[a.Path]
		switch a.Kind {
		case ActionCreate:
			if exists {
				return nil, fmt.Errorf("a file with this name already exists: %s", a.Path)
			}
			next[a.Path] = a.Text()
		case ActionUpdate:
			if !exists {
				return nil, fmt.Errorf("update %s: %w", a.Path, ErrNotFound)
			}
			next[a.Path] = a.Text()
		case ActionDelete:
			if !exists {
				return nil, fmt.Errorf("delete %s: %w", a.Path, ErrNotFound)
			}
			delete(next, a.Path)
		}
	}
	return next, nil
}
