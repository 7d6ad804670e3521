package catalogue

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/contextcrawl/contextcrawl/internal/metadata"
)

/*
Catalogue is the crawl's single source of truth for per-URL state: what was
last fetched, whether its body changed, and where the enhancement pool
stands on turning it into contexted output.

On-disk layout, all under one output-directory-relative state dir:

	<dir>/current   - the last durably committed snapshot
	<dir>/previous  - the snapshot committed before that
	<dir>/session   - the live, read-write file this run mutates

Renames are the only operation ever applied to current/previous; nothing
ever writes into them directly. This is what keeps the published filename
always either the previous or the newly committed snapshot, never a
partially written one, even if the process is killed mid-commit.
*/
type Catalogue struct {
	dir          string
	db           *sql.DB
	metadataSink metadata.MetadataSink
	closed       bool
}

func currentPath(dir string) string  { return filepath.Join(dir, "current") }
func previousPath(dir string) string { return filepath.Join(dir, "previous") }
func sessionPath(dir string) string  { return filepath.Join(dir, "session") }

// Open prepares the catalogue under dir for a new crawl run: it recovers
// the most recent valid snapshot (current, falling back to previous, falling
// back to an empty catalogue), copies it into session, applies any pending
// schema migrations, and returns a Catalogue ready for Get/Upsert/Claim.
func Open(dir string, metadataSink metadata.MetadataSink) (*Catalogue, *CatalogueError) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &CatalogueError{
			Message: err.Error(), Retryable: true, Cause: ErrCauseOpenFailure,
		}
	}

	sp := sessionPath(dir)
	// A session file left over from a killed previous run is not trusted;
	// Open always derives a fresh session from current/previous.
	_ = os.Remove(sp)

	if err := seedSession(dir); err != nil {
		return nil, err
	}

	db, openErr := sql.Open("sqlite", sp)
	if openErr != nil {
		return nil, &CatalogueError{
			Message: openErr.Error(), Retryable: true, Cause: ErrCauseOpenFailure,
		}
	}
	// DELETE journal mode (the default) keeps the catalogue inside one
	// file; WAL mode would leave -wal/-shm side files that the
	// current/previous/session rename protocol is not designed around.
	if _, err := db.Exec(`PRAGMA journal_mode=DELETE`); err != nil {
		db.Close()
		return nil, &CatalogueError{Message: err.Error(), Retryable: true, Cause: ErrCauseOpenFailure}
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, &CatalogueError{
			Message: err.Error(), Retryable: false, Cause: ErrCauseMigrationFailure,
		}
	}

	return &Catalogue{dir: dir, db: db, metadataSink: metadataSink}, nil
}

// seedSession populates dir/session from the best available prior snapshot.
func seedSession(dir string) *CatalogueError {
	cp := currentPath(dir)
	pp := previousPath(dir)
	sp := sessionPath(dir)

	if fileExists(cp) {
		if checkIntegrity(cp) {
			return copyFile(cp, sp)
		}
		// current failed its integrity check; recover from previous.
		if fileExists(pp) && checkIntegrity(pp) {
			return copyFile(pp, sp)
		}
		// Nothing recoverable: start empty, matching "reset empty as last
		// resort" from the error-handling design.
		return nil
	}

	// current is missing: either a first run, or a crash between the
	// current<-previous and session<-current renames of a prior commit.
	// Promoting previous recovers that crash.
	if fileExists(pp) {
		return copyFile(pp, sp)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// checkIntegrity opens path read-only and runs SQLite's own integrity
// check; a catalogue file that fails this is never trusted as current.
func checkIntegrity(path string) bool {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return false
	}
	defer db.Close()

	var result string
	if err := db.QueryRow(`PRAGMA integrity_check`).Scan(&result); err != nil {
		return false
	}
	return strings.EqualFold(result, "ok")
}

func copyFile(src, dst string) *CatalogueError {
	data, err := os.ReadFile(src)
	if err != nil {
		return &CatalogueError{Message: err.Error(), Retryable: true, Cause: ErrCauseOpenFailure}
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return &CatalogueError{Message: err.Error(), Retryable: true, Cause: ErrCauseOpenFailure}
	}
	return nil
}

// Get returns the page record for url, if one exists.
func (c *Catalogue) Get(url string) (Page, bool, *CatalogueError) {
	row := c.db.QueryRow(`SELECT url, etag, last_modified, content_hash, last_crawled, status,
		title, file_path, content_status, context_attempts, last_context_attempt, context_error, language
		FROM pages WHERE url = ?`, url)
	page, err := scanPage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return Page{}, false, nil
		}
		return Page{}, false, c.queryErr(err, url)
	}
	return page, true, nil
}

// Upsert inserts page or replaces the existing row for page.URL.
func (c *Catalogue) Upsert(page Page) *CatalogueError {
	_, err := c.db.Exec(`INSERT INTO pages
		(url, etag, last_modified, content_hash, last_crawled, status, title, file_path,
		 content_status, context_attempts, last_context_attempt, context_error, language)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			etag=excluded.etag,
			last_modified=excluded.last_modified,
			content_hash=excluded.content_hash,
			last_crawled=excluded.last_crawled,
			status=excluded.status,
			title=excluded.title,
			file_path=excluded.file_path,
			content_status=excluded.content_status,
			context_attempts=excluded.context_attempts,
			last_context_attempt=excluded.last_context_attempt,
			context_error=excluded.context_error,
			language=excluded.language`,
		page.URL, page.ETag, page.LastModified, page.ContentHash, page.LastCrawled, page.Status,
		page.Title, page.FilePath, string(page.ContentStatus), page.ContextAttempts,
		page.LastContextAttempt, page.ContextError, page.Language,
	)
	if err != nil {
		return c.queryErr(err, page.URL)
	}
	return nil
}

// Claim atomically selects up to limit raw pages with a non-empty file_path,
// marks them processing under workerID, and returns the claimed rows. Two
// concurrent callers never see the same record: BEGIN IMMEDIATE takes the
// write lock before either the SELECT or the UPDATE runs, serializing
// claimers against each other for the duration of the transaction.
func (c *Catalogue) Claim(limit int, workerID string) ([]Page, *CatalogueError) {
	if limit <= 0 {
		return nil, nil
	}

	ctx := context.Background()
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, c.queryErr(err, "")
	}
	defer conn.Close()

	// BEGIN IMMEDIATE grabs the write lock up front, before the SELECT
	// runs, so a second claimer blocks here rather than racing the first
	// claimer's read. database/sql's own Tx type always issues a plain
	// BEGIN, so the immediate variant has to go over the raw connection.
	if _, err := conn.ExecContext(ctx, `BEGIN IMMEDIATE`); err != nil {
		return nil, c.queryErr(err, "")
	}
	rollback := func() { conn.ExecContext(ctx, `ROLLBACK`) }

	rows, err := conn.QueryContext(ctx, `SELECT url, etag, last_modified, content_hash, last_crawled, status,
		title, file_path, content_status, context_attempts, last_context_attempt, context_error, language
		FROM pages WHERE content_status = ? AND file_path != '' LIMIT ?`, string(StatusRaw), limit)
	if err != nil {
		rollback()
		return nil, c.queryErr(err, "")
	}

	var claimed []Page
	for rows.Next() {
		page, scanErr := scanPageRows(rows)
		if scanErr != nil {
			rows.Close()
			rollback()
			return nil, c.queryErr(scanErr, "")
		}
		claimed = append(claimed, page)
	}
	rows.Close()

	if len(claimed) == 0 {
		conn.ExecContext(ctx, `COMMIT`)
		return nil, nil
	}

	now := time.Now()
	for i := range claimed {
		claimed[i].ContentStatus = StatusProcessing
		claimed[i].LastContextAttempt = now
		claimed[i].ContextError = workerID

		if _, err := conn.ExecContext(ctx, `UPDATE pages SET content_status = ?, last_context_attempt = ?, context_error = ?
			WHERE url = ?`, string(StatusProcessing), now, workerID, claimed[i].URL); err != nil {
			rollback()
			return nil, c.queryErr(err, claimed[i].URL)
		}
	}

	if _, err := conn.ExecContext(ctx, `COMMIT`); err != nil {
		return nil, c.queryErr(err, "")
	}
	return claimed, nil
}

// UpsertSitemapURL records a URL discovered from a sitemap so the run can
// tell, after the fact, which admitted URLs came from sitemap discovery
// versus link traversal. It never itself admits the URL into the crawl.
func (c *Catalogue) UpsertSitemapURL(entry SitemapURL) *CatalogueError {
	_, err := c.db.Exec(`INSERT INTO sitemap_urls
		(url, language, priority, lastmod, changefreq, discovered_from_sitemap, processed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			language=excluded.language,
			priority=excluded.priority,
			lastmod=excluded.lastmod,
			changefreq=excluded.changefreq,
			discovered_from_sitemap=excluded.discovered_from_sitemap`,
		entry.URL, entry.Language, entry.Priority, entry.LastMod, entry.ChangeFreq,
		entry.DiscoveredFromSitemap, entry.Processed,
	)
	if err != nil {
		return c.queryErr(err, entry.URL)
	}
	return nil
}

// MarkSitemapURLProcessed records that url has already been submitted for
// crawl admission, so a rerun's sitemap fetch doesn't resubmit it.
func (c *Catalogue) MarkSitemapURLProcessed(url string) *CatalogueError {
	_, err := c.db.Exec(`UPDATE sitemap_urls SET processed = 1 WHERE url = ?`, url)
	if err != nil {
		return c.queryErr(err, url)
	}
	return nil
}

// MarkContexted transitions url to StatusContexted. Idempotent by URL: a
// repeated call for an already-contexted page is a no-op write, not an
// error, since only Claim is the single gate out of raw.
func (c *Catalogue) MarkContexted(url string) *CatalogueError {
	_, err := c.db.Exec(`UPDATE pages SET content_status = ?, context_error = '' WHERE url = ?`,
		string(StatusContexted), url)
	if err != nil {
		return c.queryErr(err, url)
	}
	return nil
}

// MarkFailed transitions url to StatusFailed and records errString so an
// operator can inspect why, and manually reset it to raw if desired.
func (c *Catalogue) MarkFailed(url string, errString string) *CatalogueError {
	_, err := c.db.Exec(`UPDATE pages SET content_status = ?, context_error = ? WHERE url = ?`,
		string(StatusFailed), errString, url)
	if err != nil {
		return c.queryErr(err, url)
	}
	return nil
}

// ResetStuck returns pages stuck in processing past threshold back to raw,
// so a dead enhancement worker's lease eventually expires without human
// intervention. It returns the number of pages reset.
func (c *Catalogue) ResetStuck(threshold time.Duration) (int, *CatalogueError) {
	cutoff := time.Now().Add(-threshold)
	result, err := c.db.Exec(`UPDATE pages SET content_status = ?, context_error = ''
		WHERE content_status = ? AND last_context_attempt < ?`,
		string(StatusRaw), string(StatusProcessing), cutoff)
	if err != nil {
		return 0, c.queryErr(err, "")
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// Commit publishes the session file as the new current snapshot, per the
// four-step protocol: verify, unlink previous, rename current->previous,
// rename session->current. A crash between steps 3 and 4 is recovered by
// Open's seedSession promoting previous on the next run.
func (c *Catalogue) Commit() *CatalogueError {
	var result string
	if err := c.db.QueryRow(`PRAGMA integrity_check`).Scan(&result); err != nil || !strings.EqualFold(result, "ok") {
		// Abort and retain current: nothing on disk changes.
		return &CatalogueError{
			Message: fmt.Sprintf("session failed integrity check: %v", err),
			Retryable: false, Cause: ErrCauseIntegrityFailure,
		}
	}

	if err := c.db.Close(); err != nil {
		return &CatalogueError{Message: err.Error(), Retryable: false, Cause: ErrCauseCommitFailure}
	}
	c.closed = true

	cp := currentPath(c.dir)
	pp := previousPath(c.dir)
	sp := sessionPath(c.dir)

	if fileExists(pp) {
		if err := os.Remove(pp); err != nil {
			return &CatalogueError{Message: err.Error(), Retryable: false, Cause: ErrCauseCommitFailure}
		}
	}
	if fileExists(cp) {
		if err := os.Rename(cp, pp); err != nil {
			return &CatalogueError{Message: err.Error(), Retryable: false, Cause: ErrCauseCommitFailure}
		}
	}
	if err := os.Rename(sp, cp); err != nil {
		return &CatalogueError{Message: err.Error(), Retryable: false, Cause: ErrCauseCommitFailure}
	}
	return nil
}

// Close releases the underlying database handle. Safe to call after
// Commit, which already closes it.
func (c *Catalogue) Close() *CatalogueError {
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.db.Close(); err != nil {
		return &CatalogueError{Message: err.Error(), Retryable: false, Cause: ErrCauseCommitFailure}
	}
	return nil
}

func (c *Catalogue) queryErr(err error, url string) *CatalogueError {
	cerr := &CatalogueError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure, URL: url}
	if c.metadataSink != nil {
		c.metadataSink.RecordError(
			time.Now(),
			"catalogue",
			"query",
			metadata.CauseStorageFailure,
			err.Error(),
			[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, url)},
		)
	}
	return cerr
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPage(row scanner) (Page, error) {
	return scanPageRows(row)
}

func scanPageRows(row scanner) (Page, error) {
	var p Page
	var lastCrawled, lastContextAttempt sql.NullTime
	var contentStatus string
	if err := row.Scan(
		&p.URL, &p.ETag, &p.LastModified, &p.ContentHash, &lastCrawled, &p.Status,
		&p.Title, &p.FilePath, &contentStatus, &p.ContextAttempts, &lastContextAttempt,
		&p.ContextError, &p.Language,
	); err != nil {
		return Page{}, err
	}
	p.ContentStatus = ContentStatus(contentStatus)
	if lastCrawled.Valid {
		p.LastCrawled = lastCrawled.Time
	}
	if lastContextAttempt.Valid {
		p.LastContextAttempt = lastContextAttempt.Time
	}
	return p, nil
}
