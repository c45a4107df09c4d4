package entity

import "time"

// Collection is a user-defined grouping of assets, used to organize
// the archive independently of the source sites' own collections.
type Collection struct {
	ID         int64     `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Color      string    `db:"color" json:"color"`
	AssetCount int       `db:"asset_count" json:"asset_count"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// SavedSearch is a named free-text query plus filter set the user can
// re-run. Filters holds the filter map as JSON.
type SavedSearch struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Query     string    `db:"query" json:"query"`
	Filters   string    `db:"filters" json:"filters"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
