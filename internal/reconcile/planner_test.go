package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	tserrors "treesync/internal/errors"
	"treesync/internal/remote"
	"treesync/internal/tree"
)

func setup(t *testing.T, opts ...Option) (*remote.MemoryStore, *Planner) {
	store := remote.NewMemoryStore("main", "dev")
	store.SetFile("main", "same.txt", "unchanged")
	store.SetFile("main", "old.txt", "v1")
	branches, err := store.ListBranches(context.Background())
	require.NoError(t, err)
	return store, NewPlanner(store, NewBranchSet(branches), zaptest.NewLogger(t), opts...)
}

func records(t *testing.T, pairs ...string) []FileRecord {
	var out []FileRecord
	for i := 0; i < len(pairs); i += 2 {
		rec, err := NewFileRecord(pairs[i], pairs[i+1])
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}

func TestNewFileRecord(t *testing.T) {
	rec, err := NewFileRecord("/docs/a.md/", "x")
	require.NoError(t, err)
	assert.Equal(t, FileRecord{Path: "docs/a.md", Content: "x"}, rec)

	_, err = NewFileRecord(" / ", "x")
	assert.True(t, tserrors.Is(err, tserrors.ErrorTypePathInvalid))
}

func TestBranchSet(t *testing.T) {
	set := NewBranchSet([]string{"main", "dev", "main"})
	assert.Equal(t, 2, set.Len())
	assert.Equal(t, []string{"dev", "main"}, set.Names())
	assert.NoError(t, set.Validate("dev"))
	assert.True(t, tserrors.Is(set.Validate("nope"), tserrors.ErrorTypeBranchNotFound))
	assert.True(t, tserrors.Is(set.Validate(""), tserrors.ErrorTypeBranchNotFound))
}

func TestPlanCommit(t *testing.T) {
	ctx := context.Background()
	_, planner := setup(t)

	actions, err := planner.PlanCommit(ctx, records(t,
		"new.txt", "hello",
		"same.txt", "unchanged",
		"old.txt", "v2",
	), "main")
	require.NoError(t, err)
	assert.Equal(t, []remote.Action{
		remote.CreateAction("new.txt", "hello"),
		remote.UpdateAction("old.txt", "v2"),
	}, actions)
}

func TestPlanCommitIdempotent(t *testing.T) {
	ctx := context.Background()
	store, planner := setup(t)
	desired := records(t, "new.txt", "hello", "old.txt", "v2")

	first, err := planner.PlanCommit(ctx, desired, "main")
	require.NoError(t, err)
	require.Len(t, first, 2)

	_, err = store.SubmitCommit(ctx, first, "main", "apply")
	require.NoError(t, err)

	second, err := planner.PlanCommit(ctx, desired, "main")
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestPlanCommitFailsFast(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		desired []FileRecord
		branch  string
		want    tserrors.ErrorType
	}{
		{"unknown branch", []FileRecord{{Path: "a", Content: "x"}}, "nope", tserrors.ErrorTypeBranchNotFound},
		{"empty path", []FileRecord{{Path: "a"}, {Path: ""}}, "main", tserrors.ErrorTypePathInvalid},
		{"duplicate path", []FileRecord{{Path: "a"}, {Path: "/a"}}, "main", tserrors.ErrorTypePathInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, planner := setup(t)
			_, err := planner.PlanCommit(ctx, tt.desired, tt.branch)
			assert.True(t, tserrors.Is(err, tt.want), "got %v", err)
			assert.Zero(t, store.GetFileCalls)
		})
	}
}

func TestPlanCommitRemoteError(t *testing.T) {
	store, planner := setup(t)
	cause := errors.New("502 bad gateway")
	store.GetErrors["old.txt"] = cause

	_, err := planner.PlanCommit(context.Background(), records(t, "old.txt", "v2"), "main")
	assert.True(t, tserrors.Is(err, tserrors.ErrorTypeRemote))
	assert.ErrorIs(t, err, cause)

	store.GetErrors["old.txt"] = fmt.Errorf("gone: %w", remote.ErrNotFound)
	actions, err := planner.PlanCommit(context.Background(), records(t, "old.txt", "v2"), "main")
	require.NoError(t, err)
	assert.Equal(t, []remote.Action{remote.CreateAction("old.txt", "v2")}, actions)
}

func TestPlanCommitLineEndings(t *testing.T) {
	ctx := context.Background()
	desired := records(t, "crlf.txt", "a\r\nb\r\n")

	store, exact := setup(t)
	store.SetFile("main", "crlf.txt", "a\nb\n")
	actions, err := exact.PlanCommit(ctx, desired, "main")
	require.NoError(t, err)
	assert.Len(t, actions, 1)

	store, normalized := setup(t, WithLineEndingNormalization())
	store.SetFile("main", "crlf.txt", "a\nb\n")
	actions, err = normalized.PlanCommit(ctx, desired, "main")
	require.NoError(t, err)
	assert.Empty(t, actions)
}

// slowStore answers earlier paths last, so completion order is the reverse
// of request order.
type slowStore struct {
	*remote.MemoryStore
	delays   map[string]time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (s *slowStore) GetFile(ctx context.Context, path, ref string) (string, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		seen := s.maxSeen.Load()
		if n <= seen || s.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(s.delays[path])
	return s.MemoryStore.GetFile(ctx, path, ref)
}

func TestPlanCommitConcurrentKeepsOrder(t *testing.T) {
	mem := remote.NewMemoryStore("main")
	store := &slowStore{MemoryStore: mem, delays: make(map[string]time.Duration)}

	var desired []FileRecord
	var want []remote.Action
	for i := 0; i < 8; i++ {
		path := fmt.Sprintf("f%d.txt", i)
		store.delays[path] = time.Duration(8-i) * 5 * time.Millisecond
		desired = append(desired, FileRecord{Path: path, Content: path})
		want = append(want, remote.CreateAction(path, path))
	}

	planner := NewPlanner(store, NewBranchSet([]string{"main"}), nil, WithConcurrency(4))
	actions, err := planner.PlanCommit(context.Background(), desired, "main")
	require.NoError(t, err)
	assert.Equal(t, want, actions)
	assert.LessOrEqual(t, store.maxSeen.Load(), int32(4))
	assert.Greater(t, store.maxSeen.Load(), int32(1))
}

func TestPlanDelete(t *testing.T) {
	ctx := context.Background()
	store, planner := setup(t)
	store.SetFile("main", "dir/a", "1")
	store.SetFile("main", "dir/sub/b", "2")

	actions, err := planner.PlanDelete(ctx, "dir/", "main")
	require.NoError(t, err)
	assert.Equal(t, []remote.Action{
		remote.DeleteAction("dir/a"),
		remote.DeleteAction("dir/sub/b"),
	}, actions)

	actions, err = planner.PlanDelete(ctx, "ghost/", "main")
	require.NoError(t, err)
	assert.NotNil(t, actions)
	assert.Empty(t, actions)

	calls := len(store.ListTreeCalls)
	_, err = planner.PlanDelete(ctx, "dir", "nope")
	assert.True(t, tserrors.Is(err, tserrors.ErrorTypeBranchNotFound))
	assert.Len(t, store.ListTreeCalls, calls)
}

func TestPlanDeleteWithDeepListing(t *testing.T) {
	store := remote.NewMemoryStore("main")
	store.SetFile("main", "dir/a/b/c", "1")
	e := tree.NewEnumerator(store, nil, tree.WithDeepListing())
	planner := NewPlanner(store, NewBranchSet([]string{"main"}), nil, WithEnumerator(e))

	actions, err := planner.PlanDelete(context.Background(), "dir", "main")
	require.NoError(t, err)
	assert.Equal(t, []remote.Action{remote.DeleteAction("dir/a/b/c")}, actions)
	assert.Len(t, store.ListTreeCalls, 1)
}

func TestPlanFileDelete(t *testing.T) {
	ctx := context.Background()
	_, planner := setup(t)

	actions, err := planner.PlanFileDelete(ctx, "/old.txt", "main")
	require.NoError(t, err)
	assert.Equal(t, []remote.Action{remote.DeleteAction("old.txt")}, actions)

	actions, err = planner.PlanFileDelete(ctx, "missing.txt", "main")
	require.NoError(t, err)
	assert.Empty(t, actions)

	_, err = planner.PlanFileDelete(ctx, "", "main")
	assert.True(t, tserrors.Is(err, tserrors.ErrorTypePathInvalid))
}
