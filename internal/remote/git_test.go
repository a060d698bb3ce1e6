package remote

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"treesync/internal/diff"
)

func setupGitStore(t *testing.T) *GitStore {
	store, err := NewMemoryGitStore("main", GitOptions{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	return store
}

func TestGitStoreCommitAndRead(t *testing.T) {
	ctx := context.Background()
	store := setupGitStore(t)

	branches, err := store.ListBranches(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"main"}, branches)

	ack, err := store.SubmitCommit(ctx, []Action{
		CreateAction("a/x.txt", "x"),
		CreateAction("a/b/y.txt", "y"),
		CreateAction("z.txt", "z"),
	}, "main", "initial files")
	require.NoError(t, err)
	assert.Len(t, ack.ID, 40)

	content, err := store.GetFile(ctx, "a/b/y.txt", "main")
	require.NoError(t, err)
	assert.Equal(t, "y", content)

	_, err = store.GetFile(ctx, "nope.txt", "main")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetFile(ctx, "z.txt", "missing-branch")
	assert.ErrorIs(t, err, ErrNotFound)

	entries, err := store.ListTree(ctx, "/", "main", false)
	require.NoError(t, err)
	assert.Equal(t, []TreeEntry{{Path: "a", Kind: Tree}, {Path: "z.txt", Kind: Blob}}, entries)

	entries, err = store.ListTree(ctx, "a", "main", true)
	require.NoError(t, err)
	assert.Equal(t, []TreeEntry{
		{Path: "a/b", Kind: Tree},
		{Path: "a/b/y.txt", Kind: Blob},
		{Path: "a/x.txt", Kind: Blob},
	}, entries)

	_, err = store.ListTree(ctx, "ghost", "main", false)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.SubmitCommit(ctx, []Action{
		UpdateAction("a/x.txt", "x2"),
		DeleteAction("z.txt"),
	}, "main", "second")
	require.NoError(t, err)

	content, err = store.GetFile(ctx, "a/x.txt", "main")
	require.NoError(t, err)
	assert.Equal(t, "x2", content)
	_, err = store.GetFile(ctx, "z.txt", "main")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGitStoreRejectsBadBatch(t *testing.T) {
	ctx := context.Background()
	store := setupGitStore(t)

	_, err := store.SubmitCommit(ctx, []Action{CreateAction("keep.txt", "v1")}, "main", "seed")
	require.NoError(t, err)

	_, err = store.SubmitCommit(ctx, []Action{
		UpdateAction("keep.txt", "v2"),
		DeleteAction("ghost.txt"),
	}, "main", "bad")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.SubmitCommit(ctx, []Action{CreateAction("keep.txt", "v3")}, "main", "bad")
	assert.Error(t, err)

	content, err := store.GetFile(ctx, "keep.txt", "main")
	require.NoError(t, err)
	assert.Equal(t, "v1", content)
}

func TestGitStoreBranchesAndCompare(t *testing.T) {
	ctx := context.Background()
	store := setupGitStore(t)

	_, err := store.SubmitCommit(ctx, []Action{CreateAction("doc.txt", "one\ntwo\n")}, "main", "seed")
	require.NoError(t, err)

	require.NoError(t, store.CreateBranch(ctx, "feature", "main"))
	assert.Error(t, store.CreateBranch(ctx, "feature", "main"))
	assert.ErrorIs(t, store.CreateBranch(ctx, "other", "ghost"), ErrNotFound)

	_, err = store.SubmitCommit(ctx, []Action{UpdateAction("doc.txt", "one\n2\n")}, "feature", "edit")
	require.NoError(t, err)

	content, err := store.GetFile(ctx, "doc.txt", "main")
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", content)

	text, err := store.Compare(ctx, "main", "feature")
	require.NoError(t, err)
	records := diff.Parse(text)
	require.Len(t, records, 1)
	assert.Equal(t, "doc.txt", records[0].FilePath)
	assert.Equal(t, 1, records[0].Stats().Additions)
	assert.Equal(t, 1, records[0].Stats().Deletions)
}
