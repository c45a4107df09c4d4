// Package sqlite implements the persistent store on a single SQLite
// database file. WAL journaling provides durability; a periodic
// truncating checkpoint bounds log growth. One coarse mutex
// serializes every access, which is acceptable because each critical
// section is a handful of statements.
package sqlite

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/repository"
)

const schema = `
CREATE TABLE IF NOT EXISTS crawl_queue (
    url         TEXT PRIMARY KEY,
    depth       INTEGER NOT NULL DEFAULT 0,
    priority    INTEGER NOT NULL DEFAULT 0,
    profile     TEXT NOT NULL DEFAULT '',
    added_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS page_visits (
    url         TEXT PRIMARY KEY,
    status      TEXT NOT NULL DEFAULT 'done',
    depth       INTEGER NOT NULL DEFAULT 0,
    profile     TEXT NOT NULL DEFAULT '',
    visited_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS assets (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    asset_id        TEXT UNIQUE NOT NULL,
    source_url      TEXT NOT NULL DEFAULT '',
    title           TEXT NOT NULL DEFAULT '',
    creator         TEXT NOT NULL DEFAULT '',
    collection      TEXT NOT NULL DEFAULT '',
    resolution      TEXT NOT NULL DEFAULT '',
    duration        TEXT NOT NULL DEFAULT '',
    frame_rate      TEXT NOT NULL DEFAULT '',
    camera          TEXT NOT NULL DEFAULT '',
    formats         TEXT NOT NULL DEFAULT '',
    tags            TEXT NOT NULL DEFAULT '',
    stream_url      TEXT NOT NULL DEFAULT '',
    thumbnail_url   TEXT NOT NULL DEFAULT '',
    thumb_path      TEXT NOT NULL DEFAULT '',
    local_path      TEXT NOT NULL DEFAULT '',
    download_status TEXT NOT NULL DEFAULT '',
    user_rating     INTEGER NOT NULL DEFAULT 0,
    favorited       INTEGER NOT NULL DEFAULT 0,
    notes           TEXT NOT NULL DEFAULT '',
    user_tags       TEXT NOT NULL DEFAULT '',
    source_site     TEXT NOT NULL DEFAULT '',
    found_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS collections (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    name        TEXT UNIQUE NOT NULL,
    color       TEXT NOT NULL DEFAULT '#89b4fa',
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS collection_members (
    asset_id      TEXT NOT NULL,
    collection_id INTEGER NOT NULL,
    added_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (asset_id, collection_id)
);

CREATE TABLE IF NOT EXISTS saved_searches (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    name        TEXT UNIQUE NOT NULL,
    query       TEXT NOT NULL DEFAULT '',
    filters     TEXT NOT NULL DEFAULT '{}',
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_assets_creator    ON assets(creator);
CREATE INDEX IF NOT EXISTS idx_assets_collection ON assets(collection);
CREATE INDEX IF NOT EXISTS idx_queue_pri         ON crawl_queue(priority DESC, added_at ASC);
CREATE INDEX IF NOT EXISTS idx_members_coll      ON collection_members(collection_id);
`

// The index is external-content, so it must be written through the
// fts5 'delete' command rather than plain DELETE; the triggers keep
// it in step with every write path that touches an indexed column.
const schemaFTS = `
CREATE VIRTUAL TABLE IF NOT EXISTS assets_fts USING fts5(
    title, creator, collection, tags, user_tags, resolution, camera, duration,
    content='assets', content_rowid='id',
    tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS assets_fts_ai AFTER INSERT ON assets BEGIN
    INSERT INTO assets_fts(rowid, title, creator, collection, tags, user_tags, resolution, camera, duration)
    VALUES (new.id, new.title, new.creator, new.collection, new.tags, new.user_tags, new.resolution, new.camera, new.duration);
END;

CREATE TRIGGER IF NOT EXISTS assets_fts_ad AFTER DELETE ON assets BEGIN
    INSERT INTO assets_fts(assets_fts, rowid, title, creator, collection, tags, user_tags, resolution, camera, duration)
    VALUES ('delete', old.id, old.title, old.creator, old.collection, old.tags, old.user_tags, old.resolution, old.camera, old.duration);
END;

CREATE TRIGGER IF NOT EXISTS assets_fts_au
AFTER UPDATE OF title, creator, collection, tags, user_tags, resolution, camera, duration ON assets BEGIN
    INSERT INTO assets_fts(assets_fts, rowid, title, creator, collection, tags, user_tags, resolution, camera, duration)
    VALUES ('delete', old.id, old.title, old.creator, old.collection, old.tags, old.user_tags, old.resolution, old.camera, old.duration);
    INSERT INTO assets_fts(rowid, title, creator, collection, tags, user_tags, resolution, camera, duration)
    VALUES (new.id, new.title, new.creator, new.collection, new.tags, new.user_tags, new.resolution, new.camera, new.duration);
END;
`

// Store implements repository.Store on SQLite.
type Store struct {
	db *sqlx.DB
	mu sync.Mutex
}

var _ repository.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path, applies the
// WAL pragmas and migrates the schema.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// The coarse store lock already serializes access; a second
	// connection would only reintroduce SQLITE_BUSY handling.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	for _, ddl := range []string{schema, schemaFTS} {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Checkpoint truncates the write-ahead log back into the main file.
func (s *Store) Checkpoint(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// StartCheckpointer checkpoints on the given interval until ctx ends.
func (s *Store) StartCheckpointer(ctx context.Context, every time.Duration) {
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = s.Checkpoint(ctx)
			}
		}
	}()
}

// Close checkpoints and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}
