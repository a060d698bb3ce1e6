// Package tree walks a remote folder and collects every file path below it.
package tree

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	tserrors "treesync/internal/errors"
	"treesync/internal/remote"
)

type Option func(*Enumerator)

// WithDeepListing trusts the store to return every nested entry from a
// single recursive listing, so subfolders are not listed again.
func WithDeepListing() Option {
	return func(e *Enumerator) {
		e.deep = true
	}
}

// Enumerator lists folders through a remote.Store. A folder whose listing
// fails contributes no paths; the walk continues with the rest.
type Enumerator struct {
	store  remote.Store
	logger *zap.Logger
	deep   bool
}

func NewEnumerator(store remote.Store, logger *zap.Logger, opts ...Option) *Enumerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Enumerator{store: store, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Normalize maps "" and "/" to remote.RootPath and trims surrounding slashes
// from anything else.
func Normalize(folderPath string) string {
	if remote.IsRoot(folderPath) {
		return remote.RootPath
	}
	return remote.CleanPath(folderPath)
}

// Enumerate returns the sorted, de-duplicated file paths under folderPath on
// branch. The only error it returns is a context error.
func (e *Enumerator) Enumerate(ctx context.Context, folderPath, branch string) ([]string, error) {
	root := Normalize(folderPath)
	pending := []string{root}
	visited := map[string]bool{root: true}
	files := make(map[string]struct{})

	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dir := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		entries, err := e.store.ListTree(ctx, dir, branch, true)
		if err != nil {
			e.logFailure(dir, branch, err)
			continue
		}

		for _, entry := range entries {
			switch entry.Kind {
			case remote.Blob:
				files[remote.CleanPath(entry.Path)] = struct{}{}
			case remote.Tree:
				sub := remote.CleanPath(entry.Path)
				if e.deep || sub == "" || visited[sub] {
					continue
				}
				visited[sub] = true
				pending = append(pending, sub)
			}
		}
	}

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func (e *Enumerator) logFailure(dir, branch string, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	if errors.Is(err, remote.ErrNotFound) {
		e.logger.Debug("folder not found", zap.String("path", dir), zap.String("branch", branch))
		return
	}
	e.logger.Warn("skipping folder after listing failure",
		zap.String("path", dir),
		zap.String("branch", branch),
		zap.Error(tserrors.Remote("list tree", err)))
}
