package store

import (
	"database/sql"
	"fmt"
)

type sqliteMigration struct {
	Version int
	Name    string
	SQL     string
}

var sqliteMigrations = []sqliteMigration{
	{Version: 1, Name: "generations_and_runs", SQL: `
CREATE TABLE generations (
	id           TEXT PRIMARY KEY,
	state        TEXT NOT NULL CHECK (state IN ('staging', 'live', 'retired')),
	created_at   TEXT NOT NULL,
	activated_at TEXT
);
CREATE UNIQUE INDEX generations_single_live ON generations(state) WHERE state = 'live';

CREATE TABLE stories (
	generation_id     TEXT NOT NULL REFERENCES generations(id) ON DELETE CASCADE,
	id                TEXT NOT NULL,
	seq               INTEGER NOT NULL,
	headline          TEXT NOT NULL,
	summary           TEXT NOT NULL DEFAULT '',
	categories        TEXT NOT NULL,
	interests         TEXT NOT NULL DEFAULT '[]',
	degraded          INTEGER NOT NULL DEFAULT 0,
	category_fallback INTEGER NOT NULL DEFAULT 0,
	embedding         BLOB,
	PRIMARY KEY (generation_id, id)
);
CREATE INDEX stories_generation_seq ON stories(generation_id, seq);

CREATE TABLE evidence (
	generation_id TEXT NOT NULL,
	story_id      TEXT NOT NULL,
	position      INTEGER NOT NULL,
	key           TEXT NOT NULL,
	url           TEXT NOT NULL DEFAULT '',
	title         TEXT NOT NULL,
	body          TEXT NOT NULL,
	language      TEXT NOT NULL DEFAULT '',
	source_domain TEXT NOT NULL DEFAULT '',
	published_at  TEXT NOT NULL,
	fetched_at    TEXT NOT NULL,
	query         TEXT NOT NULL,
	interests     TEXT NOT NULL DEFAULT '[]',
	ord           INTEGER NOT NULL,
	PRIMARY KEY (generation_id, story_id, position),
	FOREIGN KEY (generation_id, story_id) REFERENCES stories(generation_id, id) ON DELETE CASCADE
);

CREATE TABLE runs (
	id            TEXT PRIMARY KEY,
	started_at    TEXT NOT NULL,
	finished_at   TEXT,
	status        TEXT NOT NULL,
	generation_id TEXT NOT NULL DEFAULT '',
	counters      TEXT NOT NULL,
	error         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX runs_started_at ON runs(started_at DESC);
`},
}

// migrateSQLite applies pending migrations, each in its own transaction.
func migrateSQLite(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	for _, m := range sqliteMigrations {
		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version).Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}
		if err := applySQLiteMigration(db, m); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

func applySQLiteMigration(db *sql.DB, m sqliteMigration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(m.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.Version, m.Name); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}
