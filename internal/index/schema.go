// Package index mirrors the page graph into SQLite so backlinks and block
// search survive restarts and can be queried without the in-memory graph.
// Full-text search uses FTS5 when built with the sqlite_fts5 tag.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS pages (
	path        TEXT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	checksum    TEXT NOT NULL DEFAULT '',
	tags        TEXT NOT NULL DEFAULT '[]',
	aliases     TEXT NOT NULL DEFAULT '[]',
	public      INTEGER NOT NULL DEFAULT 1,
	block_count INTEGER NOT NULL DEFAULT 0,
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS blocks (
	page     TEXT NOT NULL REFERENCES pages(path) ON DELETE CASCADE,
	id       TEXT NOT NULL,
	parent   TEXT NOT NULL DEFAULT '',
	depth    INTEGER NOT NULL DEFAULT 0,
	position INTEGER NOT NULL,
	task     TEXT NOT NULL DEFAULT '',
	content  TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (page, id)
);

CREATE TABLE IF NOT EXISTS links (
	source   TEXT NOT NULL REFERENCES pages(path) ON DELETE CASCADE,
	target   TEXT NOT NULL,
	name     TEXT NOT NULL DEFAULT '',
	kind     TEXT NOT NULL,
	block    TEXT NOT NULL DEFAULT '',
	to_block INTEGER NOT NULL DEFAULT 0,
	position INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_blocks_id ON blocks(id);
CREATE INDEX IF NOT EXISTS idx_links_source ON links(source);
CREATE INDEX IF NOT EXISTS idx_links_target ON links(target);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
