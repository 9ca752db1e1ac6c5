package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"mercator-hq/relay/pkg/usage"
)

// Driver names registered by the two SQLite drivers.
const (
	// DriverSQLite is the pure Go driver (modernc.org/sqlite).
	DriverSQLite = "sqlite"

	// DriverSQLite3 is the cgo driver (github.com/mattn/go-sqlite3).
	DriverSQLite3 = "sqlite3"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Driver selects the database/sql driver: DriverSQLite or DriverSQLite3.
	// Default: DriverSQLite
	Driver string

	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 4
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 2
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Driver:       DriverSQLite,
		Path:         "data/usage.db",
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage implements usage.Storage on SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	insert *sql.Stmt
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage opens the database, enables WAL mode if configured and
// creates the schema.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Driver == "" {
		config.Driver = DriverSQLite
	}
	if config.Driver != DriverSQLite && config.Driver != DriverSQLite3 {
		return nil, usage.NewStorageError(config.Driver, "open",
			fmt.Errorf("unsupported driver %q", config.Driver))
	}

	logger := slog.Default().With("component", "usage.storage.sqlite")

	db, err := sql.Open(config.Driver, config.Path)
	if err != nil {
		return nil, usage.NewStorageError(config.Driver, "open", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}

	s := &SQLiteStorage{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite storage initialized",
		"driver", config.Driver,
		"path", config.Path,
		"wal_mode", config.WALMode,
	)

	return s, nil
}

// initialize sets up the database schema and prepares statements.
func (s *SQLiteStorage) initialize() error {
	backend := s.config.Driver

	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return usage.NewStorageError(backend, "enable_wal", err)
		}
	}

	busyTimeoutMs := s.config.BusyTimeout.Milliseconds()
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeoutMs)); err != nil {
		return usage.NewStorageError(backend, "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return usage.NewStorageError(backend, "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return usage.NewStorageError(backend, "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return usage.NewStorageError(backend, "get_schema_version", err)
	}
	if version != SchemaVersion {
		return usage.NewStorageError(backend, "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	stmt, err := s.db.Prepare(insertRecord)
	if err != nil {
		return usage.NewStorageError(backend, "prepare", err)
	}
	s.insert = stmt

	return nil
}

// Append persists an access record.
func (s *SQLiteStorage) Append(ctx context.Context, record *usage.Record) error {
	_, err := s.insert.ExecContext(ctx,
		record.SessionID, record.Method, record.URL, record.Status, record.Time.UnixMilli(),
	)
	if err != nil {
		return usage.NewStorageError(s.config.Driver, "append", err)
	}
	return nil
}

// Summarize counts the records in [from, to).
func (s *SQLiteStorage) Summarize(ctx context.Context, from, to time.Time) (*usage.Summary, error) {
	summary := &usage.Summary{}
	err := s.db.QueryRowContext(ctx, summarizeRecords,
		from.UnixMilli(), to.UnixMilli(), usage.UnknownSession,
	).Scan(&summary.UniqueDevices, &summary.TotalRequests)
	if err != nil {
		return nil, usage.NewStorageError(s.config.Driver, "summarize", err)
	}
	return summary, nil
}

// Prune deletes records older than before.
func (s *SQLiteStorage) Prune(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, pruneRecords, before.UnixMilli())
	if err != nil {
		return 0, usage.NewStorageError(s.config.Driver, "prune", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, usage.NewStorageError(s.config.Driver, "prune", err)
	}
	return count, nil
}

// Count returns the number of stored records.
func (s *SQLiteStorage) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, countRecords).Scan(&count); err != nil {
		return 0, usage.NewStorageError(s.config.Driver, "count", err)
	}
	return count, nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases resources held by the storage backend.
func (s *SQLiteStorage) Close() error {
	if s.insert != nil {
		s.insert.Close()
	}

	if err := s.db.Close(); err != nil {
		return usage.NewStorageError(s.config.Driver, "close", err)
	}

	s.logger.Info("SQLite storage closed")
	return nil
}
