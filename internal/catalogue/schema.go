package catalogue

import "database/sql"

// migrations is an additive, idempotent migration runner: each entry is one
// forward step, applied in order, never rewritten once released. A Go
// runner was chosen over a SQL migration framework because the whole
// schema is three tables and the catalogue already owns its own
// transaction discipline (BEGIN IMMEDIATE for claim) that a generic
// framework would fight rather than help.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS pages (
		url TEXT PRIMARY KEY,
		etag TEXT NOT NULL DEFAULT '',
		last_modified TEXT NOT NULL DEFAULT '',
		content_hash TEXT NOT NULL DEFAULT '',
		last_crawled TIMESTAMP,
		status INTEGER NOT NULL DEFAULT 0,
		title TEXT NOT NULL DEFAULT '',
		file_path TEXT NOT NULL DEFAULT '',
		content_status TEXT NOT NULL DEFAULT 'raw',
		context_attempts INTEGER NOT NULL DEFAULT 0,
		last_context_attempt TIMESTAMP,
		context_error TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS sitemap_urls (
		url TEXT PRIMARY KEY,
		language TEXT NOT NULL DEFAULT '',
		priority REAL NOT NULL DEFAULT 0,
		lastmod TEXT NOT NULL DEFAULT '',
		changefreq TEXT NOT NULL DEFAULT '',
		discovered_from_sitemap TEXT NOT NULL DEFAULT '',
		processed INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		pages_crawled INTEGER NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pages_content_status ON pages(content_status)`,
}

// applyMigrations brings db's schema up to len(migrations), tracked by a
// single schema_version row. Each step is wrapped in its own transaction so
// a crash mid-migration leaves the version at the last fully-applied step,
// and re-running Open simply resumes from there.
func applyMigrations(db *sql.DB) error {
	if _, err := db.Exec(migrations[0]); err != nil {
		return err
	}

	version := 0
	row := db.QueryRow(`SELECT version FROM schema_version LIMIT 1`)
	_ = row.Scan(&version)
	if version == 0 {
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return err
		}
	}

	for i := version; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Exec(`UPDATE schema_version SET version = ?`, i+1); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
