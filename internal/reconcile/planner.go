// Package reconcile turns a desired file set into the create, update and
// delete actions that bring a remote branch into that state.
package reconcile

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	tserrors "treesync/internal/errors"
	"treesync/internal/remote"
	"treesync/internal/tree"
)

type Option func(*Planner)

// WithConcurrency bounds the number of content fetches in flight. Values
// below one mean one.
func WithConcurrency(n int) Option {
	return func(p *Planner) {
		if n < 1 {
			n = 1
		}
		p.concurrency = n
	}
}

// WithLineEndingNormalization treats CRLF and LF as equal when deciding
// whether a file changed. Comparison is byte-exact without it.
func WithLineEndingNormalization() Option {
	return func(p *Planner) {
		p.normalize = true
	}
}

// WithEnumerator replaces the enumerator used by PlanDelete.
func WithEnumerator(e *tree.Enumerator) Option {
	return func(p *Planner) {
		p.enumerator = e
	}
}

type Planner struct {
	store       remote.Store
	branches    BranchSet
	enumerator  *tree.Enumerator
	logger      *zap.Logger
	concurrency int
	normalize   bool
}

func NewPlanner(store remote.Store, branches BranchSet, logger *zap.Logger, opts ...Option) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Planner{
		store:       store,
		branches:    branches,
		logger:      logger,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.enumerator == nil {
		p.enumerator = tree.NewEnumerator(store, logger)
	}
	return p
}

// PlanCommit compares every desired record against the branch and returns
// one action per record that differs, in input order. Records whose remote
// content is identical produce nothing, so planning again after a
// successful commit yields an empty list.
func (p *Planner) PlanCommit(ctx context.Context, desired []FileRecord, branch string) ([]remote.Action, error) {
	if err := p.branches.Validate(branch); err != nil {
		return nil, err
	}
	paths, err := validateRecords(desired)
	if err != nil {
		return nil, err
	}

	planned := make([]*remote.Action, len(desired))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i := range desired {
		i := i
		g.Go(func() error {
			action, err := p.planFile(gctx, paths[i], desired[i].Content, branch)
			if err != nil {
				return err
			}
			planned[i] = action
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	actions := make([]remote.Action, 0, len(planned))
	for _, a := range planned {
		if a != nil {
			actions = append(actions, *a)
		}
	}
	p.logger.Debug("planned commit",
		zap.String("branch", branch),
		zap.Int("desired", len(desired)),
		zap.Int("actions", len(actions)))
	return actions, nil
}

func (p *Planner) planFile(ctx context.Context, path, content, branch string) (*remote.Action, error) {
	current, err := p.store.GetFile(ctx, path, branch)
	if errors.Is(err, remote.ErrNotFound) {
		a := remote.CreateAction(path, content)
		return &a, nil
	}
	if err != nil {
		return nil, tserrors.Remote("get file "+path, err)
	}
	if p.equal(current, content) {
		return nil, nil
	}
	a := remote.UpdateAction(path, content)
	return &a, nil
}

func (p *Planner) equal(remoteContent, desired string) bool {
	if p.normalize {
		return normalizeLineEndings(remoteContent) == normalizeLineEndings(desired)
	}
	return remoteContent == desired
}

func normalizeLineEndings(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// PlanDelete returns one delete per file under folderPath. A folder with no
// files, including one that does not exist, yields an empty list.
func (p *Planner) PlanDelete(ctx context.Context, folderPath, branch string) ([]remote.Action, error) {
	if err := p.branches.Validate(branch); err != nil {
		return nil, err
	}
	paths, err := p.enumerator.Enumerate(ctx, folderPath, branch)
	if err != nil {
		return nil, err
	}
	actions := make([]remote.Action, 0, len(paths))
	for _, path := range paths {
		actions = append(actions, remote.DeleteAction(path))
	}
	return actions, nil
}

// PlanFileDelete returns a single delete when path exists on branch and an
// empty list when it does not.
func (p *Planner) PlanFileDelete(ctx context.Context, path, branch string) ([]remote.Action, error) {
	if err := p.branches.Validate(branch); err != nil {
		return nil, err
	}
	clean := remote.CleanPath(path)
	if clean == "" {
		return nil, tserrors.PathInvalid(path, "file path is required")
	}

	_, err := p.store.GetFile(ctx, clean, branch)
	if errors.Is(err, remote.ErrNotFound) {
		return []remote.Action{}, nil
	}
	if err != nil {
		return nil, tserrors.Remote("get file "+clean, err)
	}
	return []remote.Action{remote.DeleteAction(clean)}, nil
}

// validateRecords returns the cleaned path of every record, rejecting empty
// and repeated ones.
func validateRecords(desired []FileRecord) ([]string, error) {
	paths := make([]string, len(desired))
	seen := make(map[string]bool, len(desired))
	for i, rec := range desired {
		clean := remote.CleanPath(rec.Path)
		if clean == "" {
			return nil, tserrors.PathInvalid(rec.Path, "file path is required")
		}
		if seen[clean] {
			return nil, tserrors.PathInvalid(rec.Path, "path appears more than once")
		}
		seen[clean] = true
		paths[i] = clean
	}
	return paths, nil
}
