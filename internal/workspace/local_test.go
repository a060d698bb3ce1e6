package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"treesync/internal/reconcile"
)

func writeFile(t *testing.T, root, rel, content string) {
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestCollect(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "README.md", "hello")
	writeFile(t, root, "src/app/main.go", "package main")
	writeFile(t, root, ".env", "SECRET=1")
	writeFile(t, root, ".git/config", "[core]")
	writeFile(t, root, "node_modules/pkg/index.js", "x")
	writeFile(t, root, "src/build/out.txt", "generated")
	writeFile(t, root, "logo.png", "\x89PNG\x00\x00")

	tests := []struct {
		name   string
		prefix string
		want   []reconcile.FileRecord
	}{
		{
			name: "no prefix",
			want: []reconcile.FileRecord{
				{Path: "README.md", Content: "hello"},
				{Path: "src/app/main.go", Content: "package main"},
			},
		},
		{
			name:   "with prefix",
			prefix: "/site/",
			want: []reconcile.FileRecord{
				{Path: "site/README.md", Content: "hello"},
				{Path: "site/src/app/main.go", Content: "package main"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws, err := NewLocalWorkspace(root, tt.prefix, zaptest.NewLogger(t))
			require.NoError(t, err)

			records, err := ws.Collect()
			require.NoError(t, err)
			assert.Equal(t, tt.want, records)
		})
	}
}

func TestNewLocalWorkspaceRejectsFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "file.txt", "x")

	_, err := NewLocalWorkspace(filepath.Join(root, "file.txt"), "", nil)
	assert.Error(t, err)
	_, err = NewLocalWorkspace(filepath.Join(root, "missing"), "", nil)
	assert.Error(t, err)
}

func TestShouldIgnore(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"", true},
		{"main.go", false},
		{"docs/guide.md", false},
		{".gitignore", true},
		{"a/.hidden/b", true},
		{"vendor/x.go", true},
		{"web/dist/app.js", true},
		{"builder/x", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ShouldIgnore(tt.path), tt.path)
	}
}
