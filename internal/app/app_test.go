package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"treesync/internal/config"
	"treesync/internal/reconcile"
	"treesync/internal/remote"
	"treesync/internal/storage"
)

func TestOpenLocal(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Database.Path = storage.MemoryPath
	cfg.Cache.Size = 16

	a, err := Open(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &remote.LocalStore{}, a.Store)
	assert.Equal(t, []string{"main"}, a.Session.Branches())

	result, err := a.Session.CommitFiles(ctx, []reconcile.FileRecord{{Path: "a.txt", Content: "1"}}, "", "")
	require.NoError(t, err)
	assert.True(t, result.Submitted)

	require.NoError(t, a.CreateBranch(ctx, "feature", "main"))
	branches, err := a.Store.ListBranches(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"feature", "main"}, branches)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}

func TestOpenGitMemory(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Remote.Kind = config.RemoteGit
	cfg.Remote.RepoPath = storage.MemoryPath
	cfg.Cache.Size = 0
	cfg.Sync.DefaultBranch = "trunk"

	a, err := Open(ctx, cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &remote.GitStore{}, a.Store)
	assert.Equal(t, []string{"trunk"}, a.Session.Branches())
	assert.Equal(t, "trunk", a.Session.DefaultBranch())
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Remote.Kind = config.RemoteGitLab
	cfg.Remote.ProjectID = ""

	_, err := Open(context.Background(), cfg, nil)
	assert.Error(t, err)
}
