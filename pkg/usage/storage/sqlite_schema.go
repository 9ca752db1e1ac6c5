package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the usage database schema.
// Times are stored as Unix milliseconds so both drivers agree on ordering.
const Schema = `
-- Access log
CREATE TABLE IF NOT EXISTS access_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    method TEXT NOT NULL,
    url TEXT NOT NULL,
    status INTEGER NOT NULL,
    recorded_at INTEGER NOT NULL
);

-- Schema version table
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_access_records_recorded_at ON access_records(recorded_at);
CREATE INDEX IF NOT EXISTS idx_access_records_session_id ON access_records(session_id);
`

// InsertSchemaVersion inserts the schema version into the schema_version table.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

const insertRecord = `
INSERT INTO access_records (session_id, method, url, status, recorded_at)
VALUES (?, ?, ?, ?, ?);
`

const summarizeRecords = `
SELECT COUNT(DISTINCT session_id), COUNT(*)
FROM access_records
WHERE recorded_at >= ? AND recorded_at < ? AND session_id <> ?;
`

const pruneRecords = `DELETE FROM access_records WHERE recorded_at < ?;`

const countRecords = `SELECT COUNT(*) FROM access_records;`
