package storage

import (
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// MemoryPath opens an in-memory database instead of one on disk.
const MemoryPath = ":memory:"

func dbOptions(path string) badger.Options {
	if path == MemoryPath {
		return badger.DefaultOptions("").
			WithInMemory(true).
			WithNumVersionsToKeep(1).
			WithLogger(nil)
	}
	return badger.DefaultOptions(path).
		WithLoggingLevel(badger.WARNING)
}

// OpenDB opens the badger database at path, creating the directory first.
func OpenDB(path string) (*badger.DB, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := badger.Open(dbOptions(path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}
