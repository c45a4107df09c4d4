package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/entity"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/repository"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/stream"
)

// Descriptive fields merge fill-if-empty; these three may instead be
// overwritten when a later discovery carries a value, because stream
// upgrades legitimately change them.
var upgradeableFields = map[string]struct{}{
	"resolution": {}, "formats": {}, "frame_rate": {},
}

var metadataFields = []string{
	"source_url", "title", "creator", "collection", "resolution",
	"duration", "frame_rate", "camera", "formats", "tags",
	"thumbnail_url", "source_site",
}

// UpsertAsset inserts the asset on first discovery and merges
// metadata into the existing row afterwards. The stored stream URL is
// never replaced here; that path goes through UpgradeStream so both
// discovery routes share the same monotonic-quality rule.
func (s *Store) UpsertAsset(ctx context.Context, a *entity.Asset) (bool, error) {
	if a.AssetID == "" {
		return false, fmt.Errorf("upsert asset: empty asset_id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO assets
		(asset_id, source_url, title, creator, collection, resolution, duration,
		 frame_rate, camera, formats, tags, stream_url, thumbnail_url, source_site)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.AssetID, a.SourceURL, a.Title, a.Creator, a.Collection, a.Resolution,
		a.Duration, a.FrameRate, a.Camera, a.Formats, a.Tags, a.StreamURL,
		a.ThumbnailURL, a.SourceSite)
	if err != nil {
		return false, fmt.Errorf("upsert asset %s: %w", a.AssetID, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}

	// Existing row: merge metadata.
	sets, vals := []string{}, []any{}
	for _, f := range metadataFields {
		v := fieldValue(a, f)
		if v == "" {
			continue
		}
		if _, upgrade := upgradeableFields[f]; upgrade {
			sets = append(sets, f+" = ?")
		} else {
			sets = append(sets, fmt.Sprintf("%s = CASE WHEN %s = '' THEN ? ELSE %s END", f, f, f))
		}
		vals = append(vals, v)
	}
	if len(sets) > 0 {
		vals = append(vals, a.AssetID)
		q := "UPDATE assets SET " + strings.Join(sets, ", ") + " WHERE asset_id = ?"
		if _, err := s.db.ExecContext(ctx, q, vals...); err != nil {
			return false, fmt.Errorf("merge asset %s: %w", a.AssetID, err)
		}
	}
	return false, nil
}

// UpgradeStream applies the resolver's decision to the stored stream
// URL and, on an upgrade, re-derives the rendition fields from the
// candidate's filename.
func (s *Store) UpgradeStream(ctx context.Context, assetID, candidate string) (stream.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing string
	err := s.db.GetContext(ctx, &existing,
		`SELECT stream_url FROM assets WHERE asset_id = ?`, assetID)
	if errors.Is(err, sql.ErrNoRows) {
		return stream.NotFound, nil
	}
	if err != nil {
		return "", fmt.Errorf("upgrade stream %s: %w", assetID, err)
	}

	decision := stream.Resolve(existing, candidate)
	if decision != stream.SetNew && decision != stream.Upgraded {
		return decision, nil
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE assets SET stream_url = ? WHERE asset_id = ?`, candidate, assetID); err != nil {
		return "", fmt.Errorf("upgrade stream %s: %w", assetID, err)
	}
	if r, ok := stream.RenditionFromURL(candidate); ok {
		if r.Resolution != "" {
			_, _ = s.db.ExecContext(ctx,
				`UPDATE assets SET resolution = ?, frame_rate = ? WHERE asset_id = ?`,
				r.Resolution, r.FrameRate, assetID)
		}
		if r.Format != "" {
			_, _ = s.db.ExecContext(ctx,
				`UPDATE assets SET formats = ? WHERE asset_id = ?`, r.Format, assetID)
		}
	}
	return decision, nil
}

// GetAsset fetches one asset by its stable id.
func (s *Store) GetAsset(ctx context.Context, assetID string) (*entity.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var a entity.Asset
	err := s.db.GetContext(ctx, &a, `SELECT * FROM assets WHERE asset_id = ?`, assetID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrAssetNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// PendingDownloads returns assets with a stream URL but no completed
// local file, oldest first. This is the download pipeline's scan.
func (s *Store) PendingDownloads(ctx context.Context) ([]entity.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Asset
	err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM assets
		WHERE stream_url != '' AND (local_path = '' OR download_status != ?)
		ORDER BY found_at ASC`, entity.DownloadDone)
	return out, err
}

// DoneAssetIDs lists the ids of completed downloads, which seeds the
// download pool's duplicate guard at startup.
func (s *Store) DoneAssetIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	err := s.db.SelectContext(ctx, &ids,
		`SELECT asset_id FROM assets WHERE download_status = ?`, entity.DownloadDone)
	return ids, err
}

func (s *Store) SetDownloadStatus(ctx context.Context, assetID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`UPDATE assets SET download_status = ? WHERE asset_id = ?`, status, assetID)
	return err
}

func (s *Store) SetLocalPath(ctx context.Context, assetID, localPath, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`UPDATE assets SET local_path = ?, download_status = ? WHERE asset_id = ?`,
		localPath, status, assetID)
	return err
}

func (s *Store) SetThumbPath(ctx context.Context, assetID, thumbPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`UPDATE assets SET thumb_path = ? WHERE asset_id = ?`, thumbPath, assetID)
	return err
}

func (s *Store) SetRating(ctx context.Context, assetID string, rating int) error {
	if rating < 0 {
		rating = 0
	}
	if rating > 5 {
		rating = 5
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`UPDATE assets SET user_rating = ? WHERE asset_id = ?`, rating, assetID)
	return err
}

func (s *Store) SetNotes(ctx context.Context, assetID, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`UPDATE assets SET notes = ? WHERE asset_id = ?`, notes, assetID)
	return err
}

// SetUserTags stores the user's comma-separated tags; the index
// triggers pick them up for free-text search.
func (s *Store) SetUserTags(ctx context.Context, assetID, tags string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`UPDATE assets SET user_tags = ? WHERE asset_id = ?`, tags, assetID)
	return err
}

// ToggleFavorite flips the favorited flag and returns the new state.
func (s *Store) ToggleFavorite(ctx context.Context, assetID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var fav bool
	err := s.db.GetContext(ctx, &fav, `SELECT favorited FROM assets WHERE asset_id = ?`, assetID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, repository.ErrAssetNotFound
	}
	if err != nil {
		return false, err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE assets SET favorited = ? WHERE asset_id = ?`, !fav, assetID)
	return !fav, err
}

// DistinctValues lists the distinct non-empty values of a whitelisted
// column, for filter dropdowns.
func (s *Store) DistinctValues(ctx context.Context, column string) ([]string, error) {
	if !validColumn(column) {
		return nil, fmt.Errorf("invalid column %q", column)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	err := s.db.SelectContext(ctx, &out, fmt.Sprintf(
		`SELECT DISTINCT %s FROM assets WHERE %s != '' ORDER BY %s`, column, column, column))
	return out, err
}

// Stats returns the snapshot the UI renders in the header.
func (s *Store) Stats(ctx context.Context) (*entity.CrawlStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st entity.CrawlStats
	queries := []struct {
		dst  *int
		sql  string
		args []any
	}{
		{&st.AssetsFound, `SELECT COUNT(*) FROM assets`, nil},
		{&st.StreamsFound, `SELECT COUNT(*) FROM assets WHERE stream_url != ''`, nil},
		{&st.PagesDone, `SELECT COUNT(*) FROM page_visits WHERE status = ?`, []any{entity.VisitDone}},
		{&st.Failed, `SELECT COUNT(*) FROM page_visits WHERE status = ?`, []any{entity.VisitFailed}},
		{&st.Queued, `SELECT COUNT(*) FROM crawl_queue`, nil},
	}
	for _, q := range queries {
		if err := s.db.GetContext(ctx, q.dst, q.sql, q.args...); err != nil {
			return nil, err
		}
	}
	return &st, nil
}

// ClearArchive deletes every asset, visit and queued item. The only
// path that destroys asset rows.
func (s *Store) ClearArchive(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stmt := range []string{
		`DELETE FROM assets`,
		`DELETE FROM collection_members`,
		`DELETE FROM collections`,
		`DELETE FROM page_visits`,
		`DELETE FROM crawl_queue`,
	} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear archive: %w", err)
		}
	}
	return nil
}

func fieldValue(a *entity.Asset, field string) string {
	switch field {
	case "source_url":
		return a.SourceURL
	case "title":
		return a.Title
	case "creator":
		return a.Creator
	case "collection":
		return a.Collection
	case "resolution":
		return a.Resolution
	case "duration":
		return a.Duration
	case "frame_rate":
		return a.FrameRate
	case "camera":
		return a.Camera
	case "formats":
		return a.Formats
	case "tags":
		return a.Tags
	case "thumbnail_url":
		return a.ThumbnailURL
	case "source_site":
		return a.SourceSite
	default:
		return ""
	}
}
