package storage

import (
	"fmt"

	"mercator-hq/relay/pkg/usage"
)

// Open returns the backend named by backend: "memory", DriverSQLite or
// DriverSQLite3. path is ignored for the memory backend.
func Open(backend, path string) (usage.Storage, error) {
	switch backend {
	case "memory":
		return NewMemoryStorage(), nil
	case DriverSQLite, DriverSQLite3:
		config := DefaultSQLiteConfig()
		config.Driver = backend
		config.Path = path
		return NewSQLiteStorage(config)
	default:
		return nil, usage.NewStorageError(backend, "open", fmt.Errorf("unknown backend %q", backend))
	}
}
