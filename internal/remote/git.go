package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"go.uber.org/zap"
)

// GitOptions configures a GitStore.
type GitOptions struct {
	AuthorName  string
	AuthorEmail string
	Logger      *zap.Logger
}

func (o *GitOptions) applyDefaults() {
	if o.AuthorName == "" {
		o.AuthorName = "treesync"
	}
	if o.AuthorEmail == "" {
		o.AuthorEmail = "treesync@localhost"
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// GitStore serves a git repository through go-git. Reads go through the
// object store; commits are staged in the repository worktree, which the
// store owns exclusively.
type GitStore struct {
	mu     sync.Mutex
	repo   *git.Repository
	wt     *git.Worktree
	opts   GitOptions
	logger *zap.Logger
}

// NewMemoryGitStore creates an in-memory repository whose defaultBranch holds
// one empty commit.
func NewMemoryGitStore(defaultBranch string, opts GitOptions) (*GitStore, error) {
	repo, err := git.Init(memory.NewStorage(), memfs.New())
	if err != nil {
		return nil, fmt.Errorf("initializing repository: %w", err)
	}
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(defaultBranch))
	if err := repo.Storer.SetReference(head); err != nil {
		return nil, fmt.Errorf("setting HEAD: %w", err)
	}

	s, err := newGitStore(repo, opts)
	if err != nil {
		return nil, err
	}
	if _, err := s.wt.Commit("initial commit", &git.CommitOptions{
		Author:            s.signature(),
		AllowEmptyCommits: true,
	}); err != nil {
		return nil, fmt.Errorf("creating initial commit: %w", err)
	}
	return s, nil
}

// OpenGitStore opens a non-bare repository on disk. Its worktree is reset on
// every commit, so it should be a checkout dedicated to the store.
func OpenGitStore(path string, opts GitOptions) (*GitStore, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("opening repository %s: %w", path, err)
	}
	return newGitStore(repo, opts)
}

func newGitStore(repo *git.Repository, opts GitOptions) (*GitStore, error) {
	opts.applyDefaults()
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("getting worktree: %w", err)
	}
	return &GitStore{repo: repo, wt: wt, opts: opts, logger: opts.Logger}, nil
}

func (s *GitStore) signature() *object.Signature {
	return &object.Signature{
		Name:  s.opts.AuthorName,
		Email: s.opts.AuthorEmail,
		When:  time.Now(),
	}
}

// CreateBranch points a new branch at the commit from resolves to.
func (s *GitStore) CreateBranch(ctx context.Context, name, from string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	refName := plumbing.NewBranchReferenceName(name)
	if _, err := s.repo.Reference(refName, true); err == nil {
		return fmt.Errorf("branch %s already exists", name)
	}
	commit, err := s.commit(from)
	if err != nil {
		return err
	}
	return s.repo.Storer.SetReference(plumbing.NewHashReference(refName, commit.Hash))
}

func (s *GitStore) ListBranches(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	iter, err := s.repo.Branches()
	if err != nil {
		return nil, fmt.Errorf("listing branches: %w", err)
	}
	defer iter.Close()

	var names []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		names = append(names, ref.Name().Short())
		return nil
	})
	sort.Strings(names)
	return names, err
}

func (s *GitStore) GetFile(ctx context.Context, path, ref string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tree, err := s.tree(ref)
	if err != nil {
		return "", err
	}
	path = CleanPath(path)
	f, err := tree.File(path)
	if errors.Is(err, object.ErrFileNotFound) {
		return "", fmt.Errorf("file %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return f.Contents()
}

func (s *GitStore) ListTree(ctx context.Context, path, ref string, recursive bool) ([]TreeEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tree, err := s.tree(ref)
	if err != nil {
		return nil, err
	}
	dir := CleanPath(path)
	if dir != "" {
		tree, err = tree.Tree(dir)
		if errors.Is(err, object.ErrDirectoryNotFound) {
			return nil, fmt.Errorf("tree %s: %w", dir, ErrNotFound)
		}
		if err != nil {
			return nil, err
		}
	}

	var entries []TreeEntry
	if !recursive {
		for _, e := range tree.Entries {
			entries = append(entries, TreeEntry{Path: joinPath(dir, e.Name), Kind: entryKind(e.Mode)})
		}
	} else {
		walker := object.NewTreeWalker(tree, true, nil)
		defer walker.Close()
		for {
			name, e, err := walker.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, err
			}
			entries = append(entries, TreeEntry{Path: joinPath(dir, name), Kind: entryKind(e.Mode)})
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func entryKind(mode filemode.FileMode) EntryKind {
	if mode == filemode.Dir {
		return Tree
	}
	return Blob
}

// SubmitCommit checks every action against the branch tip before touching
// the worktree, then stages and commits them together.
func (s *GitStore) SubmitCommit(ctx context.Context, actions []Action, branch, message string) (*Ack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateBatch(actions); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tree, err := s.tree(branch)
	if err != nil {
		return nil, err
	}
	for _, a := range actions {
		_, err := tree.File(a.Path)
		exists := err == nil
		if err != nil && !errors.Is(err, object.ErrFileNotFound) {
			return nil, err
		}
		switch {
		case a.Kind == ActionCreate && exists:
			return nil, fmt.Errorf("a file with this name already exists: %s", a.Path)
		case a.Kind != ActionCreate && !exists:
			return nil, fmt.Errorf("%s %s: %w", a.Kind, a.Path, ErrNotFound)
		}
	}

	if err := s.wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Force:  true,
	}); err != nil {
		return nil, fmt.Errorf("checking out %s: %w", branch, err)
	}

	if err := s.stage(actions); err != nil {
		if resetErr := s.wt.Reset(&git.ResetOptions{Mode: git.HardReset}); resetErr != nil {
			s.logger.Error("failed to reset worktree", zap.Error(resetErr))
		}
		return nil, err
	}

	hash, err := s.wt.Commit(message, &git.CommitOptions{
		Author:            s.signature(),
		AllowEmptyCommits: true,
	})
	if err != nil {
		return nil, fmt.Errorf("committing: %w", err)
	}

	s.logger.Debug("commit applied",
		zap.String("id", hash.String()),
		zap.String("branch", branch),
		zap.Int("actions", len(actions)))

	return &Ack{
		ID:        hash.String(),
		Branch:    branch,
		Message:   message,
		Actions:   len(actions),
		CreatedAt: time.Now(),
	}, nil
}

func (s *GitStore) stage(actions []Action) error {
	for _, a := range actions {
		if a.Kind == ActionDelete {
			if _, err := s.wt.Remove(a.Path); err != nil {
				return fmt.Errorf("removing %s: %w", a.Path, err)
			}
			continue
		}
		if err := util.WriteFile(s.wt.Filesystem, a.Path, []byte(a.Text()), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", a.Path, err)
		}
		if _, err := s.wt.Add(a.Path); err != nil {
			return fmt.Errorf("staging %s: %w", a.Path, err)
		}
	}
	return nil
}

// Compare renders the patch between two revisions.
func (s *GitStore) Compare(ctx context.Context, from, to string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldCommit, err := s.commit(from)
	if err != nil {
		return "", err
	}
	newCommit, err := s.commit(to)
	if err != nil {
		return "", err
	}
	patch, err := oldCommit.PatchContext(ctx, newCommit)
	if err != nil {
		return "", fmt.Errorf("computing patch: %w", err)
	}
	return patch.String(), nil
}

func (s *GitStore) commit(rev string) (*object.Commit, error) {
	hash, err := s.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("ref %s: %w", rev, ErrNotFound)
	}
	return s.repo.CommitObject(*hash)
}

func (s *GitStore) tree(rev string) (*object.Tree, error) {
	commit, err := s.commit(rev)
	if err != nil {
		return nil, err
	}
	return commit.Tree()
}
