// Package session ties the enumerator, planner and batcher to one remote
// store and the branch set fetched when the session opens.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"treesync/internal/commit"
	"treesync/internal/diff"
	tserrors "treesync/internal/errors"
	"treesync/internal/reconcile"
	"treesync/internal/remote"
	"treesync/internal/tree"
)

const DefaultBranch = "main"

type Options struct {
	DefaultBranch        string
	Concurrency          int
	NormalizeLineEndings bool
	DeepListing          bool
	// ReadCacheSize enables an lru cache for GetFile and Exists. Planning
	// always reads the store directly.
	ReadCacheSize int
}

type Option func(*Options)

func WithDefaultBranch(branch string) Option {
	return func(o *Options) { o.DefaultBranch = branch }
}

func WithConcurrency(n int) Option {
	return func(o *Options) { o.Concurrency = n }
}

func WithLineEndingNormalization(enabled bool) Option {
	return func(o *Options) { o.NormalizeLineEndings = enabled }
}

func WithDeepListing(enabled bool) Option {
	return func(o *Options) { o.DeepListing = enabled }
}

func WithReadCache(size int) Option {
	return func(o *Options) { o.ReadCacheSize = size }
}

// Session is safe for concurrent use; its branch set never changes.
type Session struct {
	store      remote.Store
	reads      remote.Store
	cache      *remote.CachedStore
	branches   reconcile.BranchSet
	enumerator *tree.Enumerator
	planner    *reconcile.Planner
	batcher    *commit.Batcher
	opts       Options
}

// Open fetches the branch list once and builds the session around it.
func Open(ctx context.Context, store remote.Store, logger *zap.Logger, opts ...Option) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := Options{DefaultBranch: DefaultBranch, Concurrency: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.DefaultBranch == "" {
		o.DefaultBranch = DefaultBranch
	}

	names, err := store.ListBranches(ctx)
	if err != nil {
		return nil, tserrors.Remote("list branches", err)
	}
	branches := reconcile.NewBranchSet(names)

	// a caller-supplied cache only serves reads, planning sees the store
	// behind it
	reads := store
	cache, _ := store.(*remote.CachedStore)
	if cache != nil {
		store = cache.Store
	} else if o.ReadCacheSize > 0 {
		if cache, err = remote.NewCachedStore(store, o.ReadCacheSize); err != nil {
			return nil, err
		}
		reads = cache
	}

	var treeOpts []tree.Option
	if o.DeepListing {
		treeOpts = append(treeOpts, tree.WithDeepListing())
	}
	enumerator := tree.NewEnumerator(store, logger, treeOpts...)

	planOpts := []reconcile.Option{
		reconcile.WithConcurrency(o.Concurrency),
		reconcile.WithEnumerator(enumerator),
	}
	if o.NormalizeLineEndings {
		planOpts = append(planOpts, reconcile.WithLineEndingNormalization())
	}

	logger.Info("session opened",
		zap.Int("branches", branches.Len()),
		zap.String("default_branch", o.DefaultBranch))

	return &Session{
		store:      store,
		reads:      reads,
		cache:      cache,
		branches:   branches,
		enumerator: enumerator,
		planner:    reconcile.NewPlanner(store, branches, logger, planOpts...),
		batcher:    commit.NewBatcher(store, logger),
		opts:       o,
	}, nil
}

func (s *Session) Branches() []string {
	return s.branches.Names()
}

func (s *Session) DefaultBranch() string {
	return s.opts.DefaultBranch
}

func (s *Session) branch(branch string) string {
	if strings.TrimSpace(branch) == "" {
		return s.opts.DefaultBranch
	}
	return branch
}

// ValidateBranch resolves "" to the default branch and checks it exists.
func (s *Session) ValidateBranch(branch string) (string, error) {
	branch = s.branch(branch)
	if err := s.branches.Validate(branch); err != nil {
		return "", err
	}
	return branch, nil
}

// ValidatePath cleans a file path and rejects an empty one.
func ValidatePath(path string) (string, error) {
	clean := remote.CleanPath(path)
	if clean == "" {
		return "", tserrors.PathInvalid(path, "file path is required")
	}
	return clean, nil
}

// GetFile reads path on branch. found is false when the file does not exist.
func (s *Session) GetFile(ctx context.Context, path, branch string) (content string, found bool, err error) {
	if branch, err = s.ValidateBranch(branch); err != nil {
		return "", false, err
	}
	if path, err = ValidatePath(path); err != nil {
		return "", false, err
	}

	content, err = s.reads.GetFile(ctx, path, branch)
	if errors.Is(err, remote.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, tserrors.Remote("get file "+path, err)
	}
	return content, true, nil
}

// Exists reports whether path names a file or a folder holding at least one
// file on branch.
func (s *Session) Exists(ctx context.Context, path, branch string) (bool, error) {
	_, found, err := s.GetFile(ctx, path, branch)
	if err != nil || found {
		return found, err
	}
	files, err := s.ListFiles(ctx, path, branch)
	if err != nil {
		return false, err
	}
	return len(files) > 0, nil
}

func (s *Session) ListFiles(ctx context.Context, folder, branch string) ([]string, error) {
	branch, err := s.ValidateBranch(branch)
	if err != nil {
		return nil, err
	}
	return s.enumerator.Enumerate(ctx, folder, branch)
}

// Plan computes the actions CommitFiles would submit, without submitting.
func (s *Session) Plan(ctx context.Context, files []reconcile.FileRecord, branch string) ([]remote.Action, error) {
	branch, err := s.ValidateBranch(branch)
	if err != nil {
		return nil, err
	}
	return s.planner.PlanCommit(ctx, files, branch)
}

// CommitFiles brings files on branch to the given contents in one commit.
// Files already up to date are left alone; nothing is submitted when all are.
func (s *Session) CommitFiles(ctx context.Context, files []reconcile.FileRecord, message, branch string) (*commit.Result, error) {
	branch, err := s.ValidateBranch(branch)
	if err != nil {
		return nil, err
	}
	actions, err := s.planner.PlanCommit(ctx, files, branch)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, actions, branch, commitMessage(message, "Update files", len(actions)))
}

// DeleteFile removes path from branch. A missing file is a no-op.
func (s *Session) DeleteFile(ctx context.Context, path, message, branch string) (*commit.Result, error) {
	branch, err := s.ValidateBranch(branch)
	if err != nil {
		return nil, err
	}
	actions, err := s.planner.PlanFileDelete(ctx, path, branch)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, actions, branch, commitMessage(message, "Delete "+remote.CleanPath(path), len(actions)))
}

// DeleteFolder removes every file under folder in one commit. An empty or
// missing folder is a no-op.
func (s *Session) DeleteFolder(ctx context.Context, folder, message, branch string) (*commit.Result, error) {
	branch, err := s.ValidateBranch(branch)
	if err != nil {
		return nil, err
	}
	actions, err := s.planner.PlanDelete(ctx, folder, branch)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, actions, branch, commitMessage(message, "Delete "+tree.Normalize(folder), len(actions)))
}

// Compare parses the store's diff between two revisions. The store must
// implement remote.Comparer.
func (s *Session) Compare(ctx context.Context, from, to string) ([]diff.Record, error) {
	if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
		return nil, tserrors.ValidationError("both revisions are required", map[string]string{"from": from, "to": to})
	}
	comparer, ok := s.store.(remote.Comparer)
	if !ok {
		return nil, tserrors.ValidationError("store does not support compare", nil)
	}
	text, err := comparer.Compare(ctx, from, to)
	if err != nil {
		if errors.Is(err, remote.ErrCompareUnsupported) {
			return nil, tserrors.ValidationError("store does not support compare", nil)
		}
		if errors.Is(err, remote.ErrNotFound) {
			return nil, tserrors.NotFound(fmt.Sprintf("revision %s or %s not found", from, to))
		}
		return nil, tserrors.Remote("compare", err)
	}
	return diff.Parse(text), nil
}

// submit commits actions and drops cached reads of branch once the commit
// lands.
func (s *Session) submit(ctx context.Context, actions []remote.Action, branch, message string) (*commit.Result, error) {
	result, err := s.batcher.Submit(ctx, actions, branch, message)
	if err != nil {
		return nil, err
	}
	if result.Submitted && s.cache != nil {
		s.cache.Purge(branch)
	}
	return result, nil
}

func commitMessage(message, fallback string, n int) string {
	if strings.TrimSpace(message) != "" {
		return message
	}
	return fmt.Sprintf("%s (%d changes)", fallback, n)
}
