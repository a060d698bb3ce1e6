// Package workspace reads a local directory tree into the desired file set
// pushed to a remote branch.
package workspace

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"treesync/internal/reconcile"
	"treesync/internal/remote"
)

// LocalWorkspace maps files under Root to remote paths under Prefix.
type LocalWorkspace struct {
	Root   string
	Prefix string
	Logger *zap.Logger
}

func NewLocalWorkspace(root, prefix string, logger *zap.Logger) (*LocalWorkspace, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("opening workspace: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", absRoot)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalWorkspace{
		Root:   absRoot,
		Prefix: remote.CleanPath(prefix),
		Logger: logger,
	}, nil
}

// Collect returns one record per regular file, sorted by remote path.
// Ignored entries and binary files are skipped.
func (w *LocalWorkspace) Collect() ([]reconcile.FileRecord, error) {
	var records []reconcile.FileRecord

	err := filepath.WalkDir(w.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(w.Root, p)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}
		if ShouldIgnore(relPath) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		content, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("reading %s: %w", relPath, err)
		}
		if isBinary(content) {
			w.Logger.Warn("Skipping binary file", zap.String("path", relPath))
			return nil
		}

		rec, err := reconcile.NewFileRecord(w.RemotePath(relPath), string(content))
		if err != nil {
			return err
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	w.Logger.Debug("Collected workspace",
		zap.String("root", w.Root),
		zap.Int("files", len(records)))
	return records, nil
}

// RemotePath converts a path relative to Root into its remote path.
func (w *LocalWorkspace) RemotePath(relPath string) string {
	return path.Join(w.Prefix, filepath.ToSlash(relPath))
}

// ShouldIgnore reports whether a path relative to the workspace root is
// excluded from pushes.
func ShouldIgnore(relPath string) bool {
	if relPath == "" {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(relPath), "/") {
		if part == "" || part == "." {
			continue
		}
		// hidden files and directories, including .git
		if strings.HasPrefix(part, ".") {
			return true
		}
		switch part {
		case "node_modules", "vendor", "dist", "build":
			return true
		}
	}
	return false
}

// isBinary uses the same heuristic as git: a NUL byte in the first 8000 bytes.
func isBinary(content []byte) bool {
	if len(content) > 8000 {
		content = content[:8000]
	}
	return bytes.IndexByte(content, 0) >= 0
}
