package storage

import (
	"errors"
	"fmt"
)

// DefaultSQLitePath is used when a sqlite store is requested without a path.
const DefaultSQLitePath = "haplotrack.db"

var ErrUnsupportedBackend = errors.New("unsupported store backend")

// SupportedKind reports whether kind names a backend; empty picks the build
// default.
func SupportedKind(kind string) bool {
	switch kind {
	case "", "memory", "sqlite":
		return true
	default:
		return false
	}
}

func NewStore(kind, sqlitePath string) (Store, error) {
	if kind == "" {
		kind = DefaultStoreKind()
	}
	switch kind {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		if sqlitePath == "" {
			sqlitePath = DefaultSQLitePath
		}
		return newSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBackend, kind)
	}
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
