package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treesync/internal/commit"
	"treesync/internal/errors"
	"treesync/internal/reconcile"
	"treesync/internal/remote"
	"treesync/internal/session"
)

func newTestServer(t *testing.T, store remote.Store) *httptest.Server {
	t.Helper()
	s, err := session.Open(context.Background(), store, nil)
	require.NoError(t, err)

	mux := http.NewServeMux()
	NewSyncHandler(s, nil).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func seededStore() *remote.MemoryStore {
	store := remote.NewMemoryStore("main", "dev")
	store.SetFile("main", "README.md", "hello")
	store.SetFile("main", "docs/a.md", "a")
	store.SetFile("main", "docs/b.md", "b")
	return store
}

func do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestReadEndpoints(t *testing.T) {
	srv := newTestServer(t, seededStore())

	tests := []struct {
		name       string
		url        string
		wantStatus int
		wantType   errors.ErrorType
	}{
		{"health", "/health", http.StatusOK, ""},
		{"branches", "/api/branches", http.StatusOK, ""},
		{"files", "/api/files?path=docs", http.StatusOK, ""},
		{"files unknown branch", "/api/files?branch=ghost", http.StatusNotFound, errors.ErrorTypeBranchNotFound},
		{"file", "/api/file?path=README.md", http.StatusOK, ""},
		{"file missing", "/api/file?path=nope.md", http.StatusNotFound, errors.ErrorTypeNotFound},
		{"file no path", "/api/file", http.StatusBadRequest, errors.ErrorTypePathInvalid},
		{"wrong method", "/api/commits", http.StatusMethodNotAllowed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodGet, srv.URL+tt.url, nil)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantType != "" {
				e := decode[errors.Error](t, resp)
				assert.Equal(t, tt.wantType, e.Type)
				assert.Equal(t, tt.wantStatus, e.Code)
			}
		})
	}
}

func TestBranchesAndFilesBodies(t *testing.T) {
	srv := newTestServer(t, seededStore())

	branches := decode[BranchesResponse](t, do(t, http.MethodGet, srv.URL+"/api/branches", nil))
	assert.Equal(t, []string{"dev", "main"}, branches.Branches)
	assert.Equal(t, "main", branches.Default)

	files := decode[FilesResponse](t, do(t, http.MethodGet, srv.URL+"/api/files?path=/", nil))
	assert.Equal(t, "main", files.Branch)
	assert.Equal(t, []string{"README.md", "docs/a.md", "docs/b.md"}, files.Files)

	file := decode[FileResponse](t, do(t, http.MethodGet, srv.URL+"/api/file?path=docs/a.md", nil))
	assert.Equal(t, "a", file.Content)
}

func TestPlanAndCommit(t *testing.T) {
	store := seededStore()
	srv := newTestServer(t, store)

	req := CommitRequest{
		Message: "sync",
		Files: []reconcile.FileRecord{
			{Path: "README.md", Content: "hello"},
			{Path: "docs/a.md", Content: "A"},
			{Path: "new.txt", Content: "n"},
		},
	}

	resp := do(t, http.MethodPost, srv.URL+"/api/plans", req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	plan := decode[PlanResponse](t, resp)
	require.Len(t, plan.Actions, 2)
	assert.Equal(t, remote.ActionUpdate, plan.Actions[0].Kind)
	assert.Equal(t, remote.ActionCreate, plan.Actions[1].Kind)
	assert.Empty(t, store.Commits)

	resp = do(t, http.MethodPost, srv.URL+"/api/commits", req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	result := decode[commit.Result](t, resp)
	assert.True(t, result.Submitted)
	assert.Equal(t, 2, result.Actions)
	assert.Equal(t, "A", store.Files("main")["docs/a.md"])

	// second push is already in sync
	resp = do(t, http.MethodPost, srv.URL+"/api/commits", req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decode[commit.Result](t, resp).Submitted)
	assert.Len(t, store.Commits, 1)
}

func TestCommitRejectsBadBodies(t *testing.T) {
	srv := newTestServer(t, seededStore())

	tests := []struct {
		name     string
		body     any
		wantType errors.ErrorType
	}{
		{"not json", "{", errors.ErrorTypeValidation},
		{"no files", CommitRequest{}, errors.ErrorTypeValidation},
		{"empty path", CommitRequest{Files: []reconcile.FileRecord{{Path: "", Content: "x"}}}, errors.ErrorTypePathInvalid},
		{"unknown branch", CommitRequest{Branch: "ghost", Files: []reconcile.FileRecord{{Path: "a", Content: "x"}}}, errors.ErrorTypeBranchNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodPost, srv.URL+"/api/commits", tt.body)
			e := decode[errors.Error](t, resp)
			assert.Equal(t, tt.wantType, e.Type)
			assert.Equal(t, e.Code, resp.StatusCode)
		})
	}
}

func TestDeleteEndpoints(t *testing.T) {
	store := seededStore()
	srv := newTestServer(t, store)

	resp := do(t, http.MethodDelete, srv.URL+"/api/folders?path=docs&message=cleanup", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[commit.Result](t, resp)
	assert.True(t, result.Submitted)
	assert.Equal(t, 2, result.Actions)
	assert.Equal(t, "cleanup", result.Ack.Message)

	resp = do(t, http.MethodDelete, srv.URL+"/api/folders?path=docs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decode[commit.Result](t, resp).Submitted)

	resp = do(t, http.MethodDelete, srv.URL+"/api/file?path=README.md", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, decode[commit.Result](t, resp).Actions)
	assert.Empty(t, store.Files("main"))
}

func TestParseDiff(t *testing.T) {
	srv := newTestServer(t, seededStore())

	body := strings.Join([]string{
		"diff --git a/main.go b/main.go",
		"--- a/main.go",
		"+++ b/main.go",
		"@@ -1,2 +1,2 @@",
		" package main",
		"-var x = 1",
		"+var x = 2",
		"",
	}, "\n")
	resp := do(t, http.MethodPost, srv.URL+"/api/diffs", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode[DiffResponse](t, resp)
	require.Len(t, out.Records, 1)
	assert.Equal(t, "main.go", out.Records[0].FilePath)
	assert.Equal(t, 1, out.Stats.Additions)
	assert.Equal(t, 1, out.Stats.Deletions)
}

func TestCompare(t *testing.T) {
	t.Run("unsupported store", func(t *testing.T) {
		srv := newTestServer(t, seededStore())
		resp := do(t, http.MethodGet, srv.URL+"/api/compare?from=main&to=dev", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("git store", func(t *testing.T) {
		ctx := context.Background()
		store, err := remote.NewMemoryGitStore("main", remote.GitOptions{})
		require.NoError(t, err)
		require.NoError(t, store.CreateBranch(ctx, "feature", "main"))
		_, err = store.SubmitCommit(ctx, []remote.Action{remote.CreateAction("a.txt", "one\n")}, "feature", "add a")
		require.NoError(t, err)

		srv := newTestServer(t, store)
		resp := do(t, http.MethodGet, srv.URL+"/api/compare?from=main&to=feature", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		out := decode[DiffResponse](t, resp)
		require.Len(t, out.Records, 1)
		assert.Equal(t, "a.txt", out.Records[0].FilePath)
		assert.Equal(t, 1, out.Stats.Additions)

		resp = do(t, http.MethodGet, srv.URL+"/api/compare?from=main&to=ghost", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
