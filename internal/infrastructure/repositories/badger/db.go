package badger

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Open opens the embedded store at path. An empty path opens an in-memory
// database, which tests and throwaway deployments use.
func Open(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %q: %w", path, err)
	}
	return db, nil
}
