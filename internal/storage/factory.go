package storage

import "fmt"

// Kinds lists the supported store backends.
var Kinds = []string{"memory", "sqlite", "badger"}

// NewStore builds a backend by name. path is the sqlite database file or the
// badger directory; an empty badger path keeps the database in memory.
func NewStore(kind, path string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(path), nil
	case "badger":
		return NewBadgerStore(path), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
