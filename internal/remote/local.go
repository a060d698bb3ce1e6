package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"treesync/internal/diff"
	"treesync/internal/safe"
	"treesync/internal/storage"
)

type branchRecord struct {
	Name      string    `json:"name"`
	Head      string    `json:"head,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (b *branchRecord) GetID() string { return b.Name }

// fileRecord maps a path on a branch to the hash of its content in the safe.
type fileRecord struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
}

func (f *fileRecord) GetID() string { return f.Path }

type commitRecord struct {
	ID        string    `json:"id"`
	Branch    string    `json:"branch"`
	Parent    string    `json:"parent,omitempty"`
	Message   string    `json:"message"`
	Actions   []Action  `json:"actions"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *commitRecord) GetID() string { return c.ID }

// LocalStore keeps branches in a badger database. Each branch is an index of
// path to content hash; content lives deduplicated in a safe.Safe.
type LocalStore struct {
	db       *badger.DB
	safe     *safe.Safe
	branches *storage.BadgerStore
	commits  *storage.BadgerStore
	engine   *diff.Engine
	logger   *zap.Logger
}

func NewLocalStore(db *badger.DB, logger *zap.Logger) (*LocalStore, error) {
	blobs, err := safe.New(db, safe.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("creating content safe: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalStore{
		db:       db,
		safe:     blobs,
		branches: storage.NewBadgerStore(db, "branch"),
		commits:  storage.NewBadgerStore(db, "commit"),
		engine:   diff.NewEngine(3),
		logger:   logger,
	}, nil
}

func (s *LocalStore) tree(branch string) *storage.BadgerStore {
	return storage.NewBadgerStore(s.db, "tree:"+branch)
}

// CreateBranch creates name as a copy of from, or empty when from is "".
func (s *LocalStore) CreateBranch(ctx context.Context, name, from string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if name == "" || strings.ContainsAny(name, ": ") {
		return fmt.Errorf("invalid branch name %q", name)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		rec := &branchRecord{Name: name, CreatedAt: time.Now()}
		if from != "" {
			var src branchRecord
			if err := s.branches.With(txn).Get(from, &src); err != nil {
				return mapStorageErr(err)
			}
			rec.Head = src.Head

			index, err := s.readIndex(txn, from)
			if err != nil {
				return err
			}
			dst := s.tree(name).With(txn)
			for path, hash := range index {
				if err := s.safe.Retain(txn, hash); err != nil {
					return fmt.Errorf("retaining %s: %w", path, err)
				}
				if err := dst.Put(&fileRecord{Path: path, Hash: hash}); err != nil {
					return err
				}
			}
		}
		if err := s.branches.With(txn).Create(rec); err != nil {
			return fmt.Errorf("creating branch: %w", err)
		}
		return nil
	})
}

func (s *LocalStore) ListBranches(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var records []branchRecord
	if err := s.branches.List(&records); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(records))
	for _, r := range records {
		names = append(names, r.Name)
	}
	return names, nil
}

func (s *LocalStore) GetFile(ctx context.Context, path, ref string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path = CleanPath(path)

	var rec fileRecord
	err := s.db.View(func(txn *badger.Txn) error {
		if err := s.requireBranch(txn, ref); err != nil {
			return err
		}
		return s.tree(ref).With(txn).Get(path, &rec)
	})
	if err != nil {
		return "", mapStorageErr(err)
	}

	content, err := s.safe.Get(rec.Hash)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(content), nil
}

func (s *LocalStore) ListTree(ctx context.Context, path, ref string, recursive bool) ([]TreeEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := CleanPath(path)

	var paths []string
	err := s.db.View(func(txn *badger.Txn) error {
		index, err := s.readIndex(txn, ref)
		if err != nil {
			return err
		}
		for p := range index {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	entries := buildListing(paths, dir, recursive)
	if len(entries) == 0 && dir != "" {
		return nil, fmt.Errorf("tree %s: %w", dir, ErrNotFound)
	}
	return entries, nil
}

// SubmitCommit applies actions in a single badger transaction. Any action
// that does not fit the branch state rolls the whole batch back.
func (s *LocalStore) SubmitCommit(ctx context.Context, actions []Action, branch, message string) (*Ack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateBatch(actions); err != nil {
		return nil, err
	}

	commit := &commitRecord{
		ID:        uuid.New().String(),
		Branch:    branch,
		Message:   message,
		Actions:   actions,
		CreatedAt: time.Now(),
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		var head branchRecord
		if err := s.branches.With(txn).Get(branch, &head); err != nil {
			return mapStorageErr(err)
		}

		index := s.tree(branch).With(txn)
		for _, a := range actions {
			if err := s.apply(txn, index, a); err != nil {
				return err
			}
		}

		commit.Parent = head.Head
		head.Head = commit.ID
		if err := s.commits.With(txn).Create(commit); err != nil {
			return err
		}
		return s.branches.With(txn).Put(&head)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("commit applied",
		zap.String("id", commit.ID),
		zap.String("branch", branch),
		zap.Int("actions", len(actions)))

	return &Ack{
		ID:        commit.ID,
		Branch:    branch,
		Message:   message,
		Actions:   len(actions),
		CreatedAt: commit.CreatedAt,
	}, nil
}

func (s *LocalStore) apply(txn *badger.Txn, index *storage.Tx, a Action) error {
	var current fileRecord
	err := index.Get(a.Path, &current)
	exists := err == nil
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	switch a.Kind {
	case ActionCreate:
		if exists {
			return fmt.Errorf("a file with this name already exists: %s", a.Path)
		}
	case ActionUpdate, ActionDelete:
		if !exists {
			return fmt.Errorf("%s %s: %w", a.Kind, a.Path, ErrNotFound)
		}
	}

	if a.Kind == ActionDelete {
		if err := s.safe.Release(txn, current.Hash); err != nil {
			return err
		}
		return index.Delete(a.Path)
	}

	hash, err := s.safe.Put(txn, a.Path, []byte(a.Text()))
	if err != nil {
		return fmt.Errorf("storing %s: %w", a.Path, err)
	}
	if exists {
		if err := s.safe.Release(txn, current.Hash); err != nil {
			return err
		}
	}
	return index.Put(&fileRecord{Path: a.Path, Hash: hash})
}

// Compare renders a unified diff of every file that differs between the two
// branches, in path order.
func (s *LocalStore) Compare(ctx context.Context, from, to string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var oldIndex, newIndex map[string]string
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		if oldIndex, err = s.readIndex(txn, from); err != nil {
			return err
		}
		newIndex, err = s.readIndex(txn, to)
		return err
	})
	if err != nil {
		return "", err
	}

	seen := make(map[string]bool)
	var paths []string
	for _, index := range []map[string]string{oldIndex, newIndex} {
		for p := range index {
			if !seen[p] {
				seen[p] = true
				paths = append(paths, p)
			}
		}
	}
	sort.Strings(paths)

	var out strings.Builder
	for _, p := range paths {
		if oldIndex[p] == newIndex[p] {
			continue
		}
		oldContent, err := s.blob(oldIndex[p])
		if err != nil {
			return "", err
		}
		newContent, err := s.blob(newIndex[p])
		if err != nil {
			return "", err
		}
		out.WriteString(s.engine.Diff(oldContent, newContent).FormatFile(p))
	}
	return out.String(), nil
}

func (s *LocalStore) blob(hash string) (string, error) {
	if hash == "" {
		return "", nil
	}
	content, err := s.safe.Get(hash)
	return string(content), err
}

func (s *LocalStore) requireBranch(txn *badger.Txn, branch string) error {
	exists, err := s.branches.With(txn).Exists(branch)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("ref %s: %w", branch, ErrNotFound)
	}
	return nil
}

func (s *LocalStore) readIndex(txn *badger.Txn, branch string) (map[string]string, error) {
	if err := s.requireBranch(txn, branch); err != nil {
		return nil, err
	}
	index := make(map[string]string)
	err := s.tree(branch).With(txn).Scan("", func(_ string, val []byte) error {
		var rec fileRecord
		if err := json.Unmarshal(val, &rec); err != nil {
			return err
		}
		index[rec.Path] = rec.Hash
		return nil
	})
	return index, err
}

// mapStorageErr translates storage misses into ErrNotFound.
func mapStorageErr(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%v: %w", err, ErrNotFound)
	}
	return err
}
