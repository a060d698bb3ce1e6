package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treesync/internal/api"
	tserrors "treesync/internal/errors"
	"treesync/internal/reconcile"
	"treesync/internal/remote"
	"treesync/internal/session"
)

func newClient(t *testing.T) (*Client, *remote.MemoryStore) {
	t.Helper()
	store := remote.NewMemoryStore("main")
	store.SetFile("main", "docs/a.md", "a")

	s, err := session.Open(context.Background(), store, nil)
	require.NoError(t, err)
	mux := http.NewServeMux()
	api.NewSyncHandler(s, nil).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(srv.URL + "/"), store
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, store := newClient(t)

	branches, err := c.Branches(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"main"}, branches.Branches)

	content, err := c.GetFile(ctx, "docs/a.md", "")
	require.NoError(t, err)
	assert.Equal(t, "a", content)

	files := []reconcile.FileRecord{{Path: "docs/a.md", Content: "a"}, {Path: "docs/b.md", Content: "b"}}
	actions, err := c.Plan(ctx, files, "main")
	require.NoError(t, err)
	assert.Equal(t, []remote.Action{remote.CreateAction("docs/b.md", "b")}, actions)

	result, err := c.Commit(ctx, files, "add b", "main")
	require.NoError(t, err)
	assert.True(t, result.Submitted)
	assert.Equal(t, "b", store.Files("main")["docs/b.md"])

	listed, err := c.ListFiles(ctx, "docs", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/a.md", "docs/b.md"}, listed)

	result, err = c.DeleteFile(ctx, "docs/a.md", "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Actions)

	result, err = c.DeleteFolder(ctx, "docs", "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Actions)
	assert.Empty(t, store.Files("main"))
}

func TestClientErrors(t *testing.T) {
	ctx := context.Background()
	c, _ := newClient(t)

	_, err := c.GetFile(ctx, "missing.md", "")
	assert.True(t, tserrors.Is(err, tserrors.ErrorTypeNotFound))

	_, err = c.ListFiles(ctx, "", "ghost")
	assert.True(t, tserrors.Is(err, tserrors.ErrorTypeBranchNotFound))

	_, err = c.Compare(ctx, "main", "main")
	assert.True(t, tserrors.Is(err, tserrors.ErrorTypeValidation))
}

func TestClientParseDiff(t *testing.T) {
	c, _ := newClient(t)

	text := "diff --git a/x b/x\n@@ -1 +1 @@\n-old\n+new\n"
	out, err := c.ParseDiff(context.Background(), strings.NewReader(text))
	require.NoError(t, err)
	require.Len(t, out.Records, 1)
	assert.Equal(t, "x", out.Records[0].FilePath)
	assert.Equal(t, 2, out.Stats.Changes)
}

func TestClientUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusTeapot)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Branches(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "418")
}
