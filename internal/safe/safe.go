// internal/safe/safe.go
package safe

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	ErrContentNotFound = errors.New("content not found")
	ErrInvalidHash     = errors.New("invalid content hash")
)

const (
	metaPrefix = "safe:meta:"
	dataPrefix = "safe:data:"
)

// ContentMeta stores metadata about stored content
type ContentMeta struct {
	Hash       string    `json:"hash"`
	Size       int64     `json:"size"`
	RefCount   uint32    `json:"ref_count"`
	Compressed bool      `json:"compressed"`
	CreatedAt  time.Time `json:"created_at"`
}

// Safe provides deduplicated, reference-counted blob storage inside badger.
// Writes take a caller-owned transaction so blobs commit together with the
// tree index that references them.
type Safe struct {
	db    *badger.DB
	cache *lru.Cache[string, []byte]
	cm    *compressionManager
}

// Options configures Safe behavior
type Options struct {
	CacheSize   int // Number of blobs to cache
	Compression CompressionOptions
}

func DefaultOptions() Options {
	return Options{
		CacheSize:   512,
		Compression: DefaultCompressionOptions(),
	}
}

// New creates a new Safe instance
func New(db *badger.DB, opts Options) (*Safe, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 512
	}

	cache, err := lru.New[string, []byte](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	cm, err := newCompressionManager(opts.Compression)
	if err != nil {
		return nil, fmt.Errorf("creating compression manager: %w", err)
	}

	return &Safe{db: db, cache: cache, cm: cm}, nil
}

// Put stores content within txn, or bumps its reference count when it is
// already present, and returns its hash. path only steers compression.
func (s *Safe) Put(txn *badger.Txn, path string, content []byte) (string, error) {
	if content == nil {
		content = []byte{}
	}
	hash := HashContent(content)

	meta, err := s.getMeta(txn, hash)
	switch {
	case err == nil:
		meta.RefCount++
		return hash, s.storeMeta(txn, meta)
	case !errors.Is(err, ErrContentNotFound):
		return "", fmt.Errorf("checking existence: %w", err)
	}

	data, compressed := s.cm.compress(path, content)
	if err := txn.Set([]byte(dataPrefix+hash), data); err != nil {
		return "", fmt.Errorf("writing content: %w", err)
	}

	meta = ContentMeta{
		Hash:       hash,
		Size:       int64(len(content)),
		RefCount:   1,
		Compressed: compressed,
		CreatedAt:  time.Now(),
	}
	if err := s.storeMeta(txn, meta); err != nil {
		return "", fmt.Errorf("storing metadata: %w", err)
	}
	return hash, nil
}

// Retain adds a reference to content that is already stored.
func (s *Safe) Retain(txn *badger.Txn, hash string) error {
	if !isValidHash(hash) {
		return ErrInvalidHash
	}
	meta, err := s.getMeta(txn, hash)
	if err != nil {
		return fmt.Errorf("getting metadata: %w", err)
	}
	meta.RefCount++
	return s.storeMeta(txn, meta)
}

// Release drops one reference within txn and deletes the blob at zero.
func (s *Safe) Release(txn *badger.Txn, hash string) error {
	if !isValidHash(hash) {
		return ErrInvalidHash
	}

	meta, err := s.getMeta(txn, hash)
	if err != nil {
		return fmt.Errorf("getting metadata: %w", err)
	}

	if meta.RefCount > 1 {
		meta.RefCount--
		return s.storeMeta(txn, meta)
	}

	if err := txn.Delete([]byte(dataPrefix + hash)); err != nil {
		return fmt.Errorf("removing content: %w", err)
	}
	if err := txn.Delete([]byte(metaPrefix + hash)); err != nil {
		return fmt.Errorf("removing metadata: %w", err)
	}
	s.cache.Remove(hash)
	return nil
}

// Get retrieves content by hash
func (s *Safe) Get(hash string) ([]byte, error) {
	if !isValidHash(hash) {
		return nil, ErrInvalidHash
	}
	if content, ok := s.cache.Get(hash); ok {
		return content, nil
	}

	var content []byte
	err := s.db.View(func(txn *badger.Txn) error {
		meta, err := s.getMeta(txn, hash)
		if err != nil {
			return err
		}
		item, err := txn.Get([]byte(dataPrefix + hash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrContentNotFound
		}
		if err != nil {
			return err
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if meta.Compressed {
			if data, err = s.cm.decompress(data); err != nil {
				return fmt.Errorf("decompressing content: %w", err)
			}
		}
		content = data
		return nil
	})
	if err != nil {
		return nil, err
	}

	if HashContent(content) != hash {
		return nil, fmt.Errorf("content hash mismatch for %s", hash)
	}
	s.cache.Add(hash, content)
	return content, nil
}

// Meta returns the stored metadata for hash.
func (s *Safe) Meta(hash string) (ContentMeta, error) {
	var meta ContentMeta
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		meta, err = s.getMeta(txn, hash)
		return err
	})
	return meta, err
}

// Exists checks if content exists
func (s *Safe) Exists(hash string) (bool, error) {
	if !isValidHash(hash) {
		return false, ErrInvalidHash
	}
	_, err := s.Meta(hash)
	if errors.Is(err, ErrContentNotFound) {
		return false, nil
	}
	return err == nil, err
}

func HashContent(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

func isValidHash(hash string) bool {
	if len(hash) != 64 {
		return false
	}
	_, err := hex.DecodeString(hash)
	return err == nil
}

func (s *Safe) storeMeta(txn *badger.Txn, meta ContentMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return txn.Set([]byte(metaPrefix+meta.Hash), data)
}

func (s *Safe) getMeta(txn *badger.Txn, hash string) (ContentMeta, error) {
	var meta ContentMeta

	item, err := txn.Get([]byte(metaPrefix + hash))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return meta, ErrContentNotFound
	}
	if err != nil {
		return meta, err
	}

	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &meta)
	})
	return meta, err
}
