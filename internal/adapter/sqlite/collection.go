package sqlite

import (
	"context"
	"fmt"

	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/entity"
)

const defaultCollectionColor = "#89b4fa"

// CreateCollection makes a named collection, returning the existing
// id when the name is already taken.
func (s *Store) CreateCollection(ctx context.Context, name, color string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("create collection: empty name")
	}
	if color == "" {
		color = defaultCollectionColor
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO collections(name, color) VALUES (?, ?)`, name, color); err != nil {
		return 0, fmt.Errorf("create collection %q: %w", name, err)
	}
	var id int64
	if err := s.db.GetContext(ctx, &id,
		`SELECT id FROM collections WHERE name = ?`, name); err != nil {
		return 0, fmt.Errorf("create collection %q: %w", name, err)
	}
	return id, nil
}

// DeleteCollection removes the collection and its memberships; the
// assets themselves stay.
func (s *Store) DeleteCollection(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM collection_members WHERE collection_id = ?`, id); err != nil {
		return fmt.Errorf("delete collection %d: %w", id, err)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM collections WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete collection %d: %w", id, err)
	}
	return nil
}

// Collections lists all collections by name with member counts.
func (s *Store) Collections(ctx context.Context) ([]entity.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Collection
	err := s.db.SelectContext(ctx, &out, `
		SELECT c.id, c.name, c.color, c.created_at,
		       (SELECT COUNT(*) FROM collection_members m WHERE m.collection_id = c.id) AS asset_count
		FROM collections c ORDER BY c.name`)
	return out, err
}

func (s *Store) AddToCollection(ctx context.Context, assetID string, collectionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO collection_members(asset_id, collection_id) VALUES (?, ?)`,
		assetID, collectionID)
	return err
}

func (s *Store) RemoveFromCollection(ctx context.Context, assetID string, collectionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM collection_members WHERE asset_id = ? AND collection_id = ?`,
		assetID, collectionID)
	return err
}

// AssetCollections lists the collections one asset belongs to.
func (s *Store) AssetCollections(ctx context.Context, assetID string) ([]entity.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Collection
	err := s.db.SelectContext(ctx, &out, `
		SELECT c.id, c.name, c.color, c.created_at, 0 AS asset_count
		FROM collections c
		JOIN collection_members m ON m.collection_id = c.id
		WHERE m.asset_id = ? ORDER BY c.name`, assetID)
	return out, err
}

// SaveSearch stores or replaces a named search. filters is the
// serialized filter map.
func (s *Store) SaveSearch(ctx context.Context, name, query, filters string) error {
	if name == "" {
		return fmt.Errorf("save search: empty name")
	}
	if filters == "" {
		filters = "{}"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO saved_searches(name, query, filters) VALUES (?, ?, ?)`,
		name, query, filters)
	return err
}

func (s *Store) SavedSearches(ctx context.Context) ([]entity.SavedSearch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.SavedSearch
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, name, query, filters, created_at FROM saved_searches ORDER BY name`)
	return out, err
}

func (s *Store) DeleteSavedSearch(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM saved_searches WHERE id = ?`, id)
	return err
}
