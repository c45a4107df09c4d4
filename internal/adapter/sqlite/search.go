package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/entity"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/repository"
)

// Columns that may appear as exact-match filters or in DistinctValues.
var filterColumns = map[string]struct{}{
	"creator": {}, "collection": {}, "resolution": {}, "frame_rate": {},
	"camera": {}, "formats": {}, "source_site": {}, "download_status": {},
}

func validColumn(col string) bool {
	_, ok := filterColumns[col]
	return ok
}

// Query runs the combined free-text and filter search. Free text goes
// through the FTS index; if the index errors the store rebuilds it
// once and retries, then degrades to a LIKE scan so search stays
// available on a corrupt index.
func (s *Store) Query(ctx context.Context, q repository.AssetQuery) ([]entity.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	where, args := []string{}, []any{}
	for col, val := range q.Filters {
		if !validColumn(col) {
			return nil, fmt.Errorf("invalid filter column %q", col)
		}
		where = append(where, fmt.Sprintf("a.%s = ?", col))
		args = append(args, val)
	}
	if q.FavoritesOnly {
		where = append(where, "a.favorited = 1")
	}
	if q.DownloadedOnly {
		where = append(where, "a.download_status = ?")
		args = append(args, entity.DownloadDone)
	}
	if q.MinRating > 0 {
		where = append(where, "a.user_rating >= ?")
		args = append(args, q.MinRating)
	}
	if q.CollectionID > 0 {
		where = append(where, "a.asset_id IN (SELECT asset_id FROM collection_members WHERE collection_id = ?)")
		args = append(args, q.CollectionID)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 500
	}

	if q.FreeText == "" {
		sql := "SELECT a.* FROM assets a"
		if len(where) > 0 {
			sql += " WHERE " + strings.Join(where, " AND ")
		}
		sql += " ORDER BY a.found_at DESC LIMIT ? OFFSET ?"
		args = append(args, limit, q.Offset)
		var out []entity.Asset
		err := s.db.SelectContext(ctx, &out, sql, args...)
		return out, err
	}

	match := ftsMatchExpr(q.FreeText)
	ftsSQL := `SELECT a.* FROM assets a
		JOIN assets_fts f ON f.rowid = a.id
		WHERE assets_fts MATCH ?`
	ftsArgs := append([]any{match}, args...)
	if len(where) > 0 {
		ftsSQL += " AND " + strings.Join(where, " AND ")
	}
	ftsSQL += " ORDER BY a.found_at DESC LIMIT ? OFFSET ?"
	ftsArgs = append(ftsArgs, limit, q.Offset)

	var out []entity.Asset
	err := s.db.SelectContext(ctx, &out, ftsSQL, ftsArgs...)
	if err == nil {
		return out, nil
	}

	// Index trouble: rebuild once and retry before degrading.
	if rerr := s.rebuildIndexLocked(ctx); rerr == nil {
		out = out[:0]
		if err = s.db.SelectContext(ctx, &out, ftsSQL, ftsArgs...); err == nil {
			return out, nil
		}
	}

	likeSQL := "SELECT a.* FROM assets a WHERE (" + strings.Join([]string{
		"a.title LIKE ?", "a.creator LIKE ?", "a.collection LIKE ?",
		"a.tags LIKE ?", "a.user_tags LIKE ?",
	}, " OR ") + ")"
	needle := "%" + q.FreeText + "%"
	likeArgs := []any{needle, needle, needle, needle, needle}
	if len(where) > 0 {
		likeSQL += " AND " + strings.Join(where, " AND ")
	}
	likeSQL += " ORDER BY a.found_at DESC LIMIT ? OFFSET ?"
	likeArgs = append(likeArgs, args...)
	likeArgs = append(likeArgs, limit, q.Offset)
	out = out[:0]
	err = s.db.SelectContext(ctx, &out, likeSQL, likeArgs...)
	return out, err
}

// RebuildIndex drops and repopulates the free-text index from the
// asset rows.
func (s *Store) RebuildIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuildIndexLocked(ctx)
}

func (s *Store) rebuildIndexLocked(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `INSERT INTO assets_fts(assets_fts) VALUES('delete-all')`); err != nil {
		// Damaged shadow tables can refuse even delete-all; recreate.
		if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS assets_fts`); err != nil {
			return fmt.Errorf("rebuild index: drop: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, schemaFTS); err != nil {
			return fmt.Errorf("rebuild index: recreate: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assets_fts(rowid, title, creator, collection, tags, user_tags, resolution, camera, duration)
		SELECT id, title, creator, collection, tags, user_tags, resolution, camera, duration
		FROM assets`)
	if err != nil {
		return fmt.Errorf("rebuild index: repopulate: %w", err)
	}
	return nil
}

// ftsMatchExpr turns loose user input into an FTS5 OR query of quoted
// terms, so punctuation in titles cannot break query syntax.
func ftsMatchExpr(text string) string {
	words := strings.Fields(text)
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ReplaceAll(w, `"`, ``)
		if w == "" {
			continue
		}
		quoted = append(quoted, `"`+w+`"`)
	}
	if len(quoted) == 0 {
		return `""`
	}
	return strings.Join(quoted, " OR ")
}
