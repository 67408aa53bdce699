package db

// SchemaVersion is the current database schema version
const SchemaVersion = 4

const schema = `
CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Timeline entries (nhat ky) with sync metadata
CREATE TABLE IF NOT EXISTS timeline_entries (
    id TEXT PRIMARY KEY,
    local_id TEXT NOT NULL DEFAULT '',
    owner_id TEXT NOT NULL DEFAULT '',
    unit_id TEXT NOT NULL DEFAULT '',
    exec_date_key TEXT NOT NULL DEFAULT '',
    insert_seq INTEGER NOT NULL,
    body TEXT NOT NULL,
    record_version INTEGER NOT NULL DEFAULT 2,
    sync_status TEXT NOT NULL,
    operation TEXT NOT NULL,
    last_modified INTEGER NOT NULL,
    sync_error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_timeline_owner ON timeline_entries(owner_id, exec_date_key);
CREATE INDEX IF NOT EXISTS idx_timeline_status ON timeline_entries(sync_status);

-- One outstanding mutation per entry; seq is the queue position
CREATE TABLE IF NOT EXISTS sync_queue (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    entry_id TEXT NOT NULL UNIQUE,
    operation TEXT NOT NULL,
    payload TEXT NOT NULL,
    enqueued_at INTEGER NOT NULL,
    revision INTEGER NOT NULL DEFAULT 0,
    retry_count INTEGER NOT NULL DEFAULT 0,
    next_attempt_at INTEGER NOT NULL DEFAULT 0,
    dead INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS response_cache (
    url TEXT PRIMARY KEY,
    body BLOB NOT NULL,
    captured_at INTEGER NOT NULL
);

-- Reference collections mirrored from the server
CREATE TABLE IF NOT EXISTS seasons (
    id TEXT PRIMARY KEY,
    body TEXT NOT NULL,
    refreshed_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS stages (
    id TEXT PRIMARY KEY,
    body TEXT NOT NULL,
    refreshed_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    stage_id TEXT NOT NULL DEFAULT '',
    body TEXT NOT NULL,
    refreshed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_stage ON tasks(stage_id);

CREATE TABLE IF NOT EXISTS sync_conflicts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entry_id TEXT NOT NULL,
    local_data TEXT,
    remote_data TEXT,
    detected_at INTEGER NOT NULL
);

-- Local-only entries deleted on the device; a create for one may still be in flight
CREATE TABLE IF NOT EXISTS local_tombstones (
    local_id TEXT PRIMARY KEY,
    deleted_at INTEGER NOT NULL
);
`

// Migration represents a forward schema migration. Migrations never drop
// user data: pending queue items must survive every upgrade.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations is the list of all database migrations in order
var Migrations = []Migration{
	// Version 1 is the initial schema - no migration needed
	{
		Version:     2,
		Description: "Add retry policy columns to sync_queue and record_version to timeline_entries",
		SQL: `
ALTER TABLE sync_queue ADD COLUMN revision INTEGER NOT NULL DEFAULT 0;
ALTER TABLE sync_queue ADD COLUMN next_attempt_at INTEGER NOT NULL DEFAULT 0;
ALTER TABLE sync_queue ADD COLUMN dead INTEGER NOT NULL DEFAULT 0;
ALTER TABLE sync_queue ADD COLUMN last_error TEXT NOT NULL DEFAULT '';
ALTER TABLE timeline_entries ADD COLUMN record_version INTEGER NOT NULL DEFAULT 1;
UPDATE sync_queue SET revision = COALESCE(
    (SELECT last_modified FROM timeline_entries WHERE timeline_entries.id = sync_queue.entry_id), 0);
`,
	},
	{
		Version:     3,
		Description: "Index tasks by stage and add sync_conflicts",
		SQL: `
ALTER TABLE tasks ADD COLUMN stage_id TEXT NOT NULL DEFAULT '';
UPDATE tasks SET stage_id = COALESCE(json_extract(body, '$.stageId'), '');
CREATE INDEX IF NOT EXISTS idx_tasks_stage ON tasks(stage_id);
CREATE TABLE IF NOT EXISTS sync_conflicts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entry_id TEXT NOT NULL,
    local_data TEXT,
    remote_data TEXT,
    detected_at INTEGER NOT NULL
);
`,
	},
	{
		Version:     4,
		Description: "Add local_tombstones for deletes racing an in-flight create",
		SQL: `
CREATE TABLE IF NOT EXISTS local_tombstones (
    local_id TEXT PRIMARY KEY,
    deleted_at INTEGER NOT NULL
);
`,
	},
}
