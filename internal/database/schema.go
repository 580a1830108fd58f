package database

// Schema is the full index schema as a single script, kept in sync with the
// migration files. Tests use it to set up in-memory databases without going
// through the migration machinery.
const Schema = `
CREATE TABLE targets (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    ra REAL,
    dec REAL
);

CREATE TABLE allocations (
    id TEXT PRIMARY KEY,
    term TEXT NOT NULL,
    number INTEGER NOT NULL,
    UNIQUE (term, number)
);

CREATE TABLE sessions (
    id TEXT PRIMARY KEY,
    allocation_id TEXT NOT NULL REFERENCES allocations (id),
    number INTEGER NOT NULL,
    UNIQUE (allocation_id, number)
);

CREATE TABLE scan_sets (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions (id),
    kind TEXT NOT NULL
);

CREATE TABLE scans (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions (id),
    number INTEGER NOT NULL,
    scan_set_id TEXT REFERENCES scan_sets (id),
    target_id TEXT REFERENCES targets (id),
    mode TEXT NOT NULL,
    cadence REAL,
    ra_min REAL,
    ra_max REAL,
    dec_min REAL,
    dec_max REAL,
    az_min REAL,
    az_max REAL,
    el_min REAL,
    el_max REAL,
    start_time REAL,
    end_time REAL,
    UNIQUE (session_id, number)
);

CREATE TABLE files (
    id TEXT PRIMARY KEY,
    filename TEXT NOT NULL,
    directory TEXT NOT NULL,
    checksum TEXT,
    UNIQUE (directory, filename)
);

CREATE TABLE file_copies (
    id TEXT PRIMARY KEY,
    file_id TEXT NOT NULL REFERENCES files (id),
    host TEXT NOT NULL,
    path TEXT NOT NULL,
    checksum TEXT,
    corrupt INTEGER NOT NULL DEFAULT 0,
    UNIQUE (file_id, host, path)
);

CREATE TABLE guppi_files (
    id TEXT PRIMARY KEY,
    scan_id TEXT NOT NULL REFERENCES scans (id),
    file_id TEXT NOT NULL UNIQUE REFERENCES files (id),
    number INTEGER NOT NULL,
    UNIQUE (scan_id, number)
);

CREATE TABLE index_operations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at REAL NOT NULL,
    finished_at REAL,
    operation TEXT NOT NULL,
    parameters TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'running'
);
`
