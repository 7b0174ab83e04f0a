package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection.
type DB struct {
	conn    *sql.DB
	dataDir string // root directory for mirrored code files
}

// New creates a new DB, opening (or creating) the SQLite file at dbPath.
// dataDir is the root directory where code blocks mirror their source.
func New(dbPath, dataDir string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite only supports one writer; a single connection avoids SQLITE_BUSY.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn, dataDir: dataDir}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// DataDir returns the root data directory.
func (db *DB) DataDir() string {
	return db.dataDir
}

// Conn returns the underlying database connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS notebooks (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			icon TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS pages (
			id TEXT PRIMARY KEY,
			notebook_id TEXT NOT NULL REFERENCES notebooks(id),
			name TEXT NOT NULL,
			sort_order INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS blocks (
			id TEXT PRIMARY KEY,
			page_id TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'text',
			x REAL NOT NULL DEFAULT 0,
			y REAL NOT NULL DEFAULT 0,
			width REAL NOT NULL DEFAULT 300,
			height REAL NOT NULL DEFAULT 200,
			content TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL DEFAULT '',
			group_id TEXT NOT NULL DEFAULT '',
			file_path TEXT NOT NULL DEFAULT '',
			style_json TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		// Line anchors of code blocks.
		`CREATE TABLE IF NOT EXISTS frames (
			id TEXT PRIMARY KEY,
			block_id TEXT NOT NULL,
			group_id TEXT NOT NULL DEFAULT '',
			line INTEGER NOT NULL,
			x REAL NOT NULL DEFAULT 0,
			y REAL NOT NULL DEFAULT 0,
			width REAL NOT NULL DEFAULT 0,
			height REAL NOT NULL DEFAULT 0
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_frames_block_line ON frames(block_id, line)`,
		`CREATE TABLE IF NOT EXISTS block_groups (
			id TEXT PRIMARY KEY,
			page_id TEXT NOT NULL,
			block_id TEXT NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_groups_block ON block_groups(block_id)`,
		// Connectors reference blocks or frames by id on either end; a free
		// end has an empty node id and only a position.
		`CREATE TABLE IF NOT EXISTS connections (
			id TEXT PRIMARY KEY,
			page_id TEXT NOT NULL,
			start_node_id TEXT NOT NULL DEFAULT '',
			start_magnet TEXT NOT NULL DEFAULT 'NONE',
			start_x REAL NOT NULL DEFAULT 0,
			start_y REAL NOT NULL DEFAULT 0,
			end_node_id TEXT NOT NULL DEFAULT '',
			end_magnet TEXT NOT NULL DEFAULT 'NONE',
			end_x REAL NOT NULL DEFAULT 0,
			end_y REAL NOT NULL DEFAULT 0,
			label TEXT NOT NULL DEFAULT '',
			color TEXT NOT NULL DEFAULT '#666666',
			style TEXT NOT NULL DEFAULT 'solid',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pages_notebook ON pages(notebook_id)`,
		`CREATE INDEX IF NOT EXISTS idx_blocks_page ON blocks(page_id)`,
		`CREATE INDEX IF NOT EXISTS idx_connections_page ON connections(page_id)`,
		`CREATE INDEX IF NOT EXISTS idx_connections_start ON connections(start_node_id)`,
		`CREATE INDEX IF NOT EXISTS idx_connections_end ON connections(end_node_id)`,
		// Session results, keyed "blockId:line" (or any storeAny key).
		`CREATE TABLE IF NOT EXISTS results (
			result_key TEXT PRIMARY KEY,
			block_id TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL,
			data BLOB NOT NULL,
			compressed INTEGER NOT NULL DEFAULT 0,
			stored_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_block ON results(block_id)`,
		`CREATE TABLE IF NOT EXISTS schedules (
			id TEXT PRIMARY KEY,
			block_id TEXT NOT NULL,
			cron TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			last_run_at TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_block ON schedules(block_id)`,
		// External database connections read by database blocks.
		`CREATE TABLE IF NOT EXISTS db_connections (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			driver TEXT NOT NULL,
			host TEXT NOT NULL DEFAULT '',
			port INTEGER NOT NULL DEFAULT 0,
			database_name TEXT NOT NULL DEFAULT '',
			username TEXT NOT NULL DEFAULT '',
			ssl_mode TEXT NOT NULL DEFAULT 'disable',
			extra_json TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %s: %w", m[:40], err)
		}
	}

	return nil
}
