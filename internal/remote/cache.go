package remote

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cacheKey struct {
	ref  string
	path string
}

type cachedFile struct {
	content string
	absent  bool
}

// CachedStore memoizes GetFile results, including absent files, per ref and
// path. A successful commit purges every entry for the committed branch.
// Entries go stale when another writer moves the branch, so it must not
// serve reads that decide what to commit.
type CachedStore struct {
	Store
	cache *lru.Cache[cacheKey, cachedFile]
}

func NewCachedStore(store Store, size int) (*CachedStore, error) {
	cache, err := lru.New[cacheKey, cachedFile](size)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}
	return &CachedStore{Store: store, cache: cache}, nil
}

func (c *CachedStore) GetFile(ctx context.Context, path, ref string) (string, error) {
	key := cacheKey{ref: ref, path: CleanPath(path)}
	if f, ok := c.cache.Get(key); ok {
		if f.absent {
			return "", fmt.Errorf("file %s: %w", key.path, ErrNotFound)
		}
		return f.content, nil
	}

	content, err := c.Store.GetFile(ctx, path, ref)
	switch {
	case err == nil:
		c.cache.Add(key, cachedFile{content: content})
	case errors.Is(err, ErrNotFound):
		c.cache.Add(key, cachedFile{absent: true})
	}
	return content, err
}

func (c *CachedStore) SubmitCommit(ctx context.Context, actions []Action, branch, message string) (*Ack, error) {
	ack, err := c.Store.SubmitCommit(ctx, actions, branch, message)
	if err != nil {
		return nil, err
	}
	c.Purge(branch)
	return ack, nil
}

// Purge drops cached files of one ref.
func (c *CachedStore) Purge(ref string) {
	for _, key := range c.cache.Keys() {
		if key.ref == ref {
			c.cache.Remove(key)
		}
	}
}

// Compare forwards to the wrapped store when it supports diffs.
func (c *CachedStore) Compare(ctx context.Context, from, to string) (string, error) {
	cmp, ok := c.Store.(Comparer)
	if !ok {
		return "", fmt.Errorf("store %T: %w", c.Store, ErrCompareUnsupported)
	}
	return cmp.Compare(ctx, from, to)
}

func (c *CachedStore) Len() int {
	return c.cache.Len()
}
