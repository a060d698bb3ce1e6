// Package app builds the remote store and session described by a Config.
package app

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"treesync/internal/config"
	"treesync/internal/remote"
	"treesync/internal/session"
	"treesync/internal/storage"
)

// App owns the store, its session and anything that must be closed.
type App struct {
	Config  *config.Config
	Store   remote.Store
	Session *session.Session
	Logger  *zap.Logger

	db *badger.DB
}

// BranchCreator is implemented by stores that can create branches.
type BranchCreator interface {
	CreateBranch(ctx context.Context, name, from string) error
}

func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{Config: cfg, Logger: logger}
	store, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store

	a.Session, err = session.Open(ctx, store, logger,
		session.WithDefaultBranch(cfg.Sync.DefaultBranch),
		session.WithConcurrency(cfg.Sync.Concurrency),
		session.WithLineEndingNormalization(cfg.Sync.NormalizeLineEndings),
		session.WithDeepListing(cfg.UseDeepListing()),
		session.WithReadCache(cfg.Cache.Size),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context) (remote.Store, error) {
	cfg := a.Config
	switch cfg.Remote.Kind {
	case config.RemoteGitLab:
		return remote.NewGitLabStore(remote.GitLabOptions{
			BaseURL:   cfg.Remote.BaseURL,
			ProjectID: cfg.Remote.ProjectID,
			Token:     cfg.Remote.Token,
			Timeout:   time.Duration(cfg.Remote.TimeoutSeconds) * time.Second,
			Logger:    a.Logger,
		})

	case config.RemoteGit:
		opts := remote.GitOptions{Logger: a.Logger}
		if cfg.Remote.RepoPath == storage.MemoryPath {
			return remote.NewMemoryGitStore(cfg.Sync.DefaultBranch, opts)
		}
		return remote.OpenGitStore(cfg.Remote.RepoPath, opts)

	default:
		db, err := storage.OpenDB(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		a.db = db
		store, err := remote.NewLocalStore(db, a.Logger)
		if err != nil {
			return nil, err
		}
		if err := ensureBranch(ctx, store, cfg.Sync.DefaultBranch); err != nil {
			return nil, err
		}
		return store, nil
	}
}

// ensureBranch creates branch on an empty store so a fresh database is
// usable right away.
func ensureBranch(ctx context.Context, store remote.Store, branch string) error {
	creator, ok := store.(BranchCreator)
	if !ok || branch == "" {
		return nil
	}
	names, err := store.ListBranches(ctx)
	if err != nil {
		return err
	}
	if slices.Contains(names, branch) {
		return nil
	}
	return creator.CreateBranch(ctx, branch, "")
}

// CreateBranch creates name from an existing branch when the store supports
// it.
func (a *App) CreateBranch(ctx context.Context, name, from string) error {
	creator, ok := a.Store.(BranchCreator)
	if !ok {
		return fmt.Errorf("%s remote does not support creating branches", a.Config.Remote.Kind)
	}
	return creator.CreateBranch(ctx, name, from)
}

func (a *App) Close() error {
	if a.db != nil {
		err := a.db.Close()
		a.db = nil
		return err
	}
	return nil
}
