package entity

import "time"

// DownloadStatus values stored in the assets table.
const (
	DownloadPending    = ""
	DownloadQueued     = "queued"
	DownloadInProgress = "downloading"
	DownloadDone       = "done"
	DownloadError      = "error"
)

// Asset mirrors the `assets` SQLite table schema: one discoverable
// video item with metadata and an eventual downloadable stream URL.
type Asset struct {
	ID             int64     `db:"id" json:"-"`
	AssetID        string    `db:"asset_id" json:"asset_id"`
	SourceURL      string    `db:"source_url" json:"source_url"`
	Title          string    `db:"title" json:"title"`
	Creator        string    `db:"creator" json:"creator,omitempty"`
	Collection     string    `db:"collection" json:"collection,omitempty"`
	Resolution     string    `db:"resolution" json:"resolution,omitempty"`
	Duration       string    `db:"duration" json:"duration,omitempty"`
	FrameRate      string    `db:"frame_rate" json:"frame_rate,omitempty"`
	Camera         string    `db:"camera" json:"camera,omitempty"`
	Formats        string    `db:"formats" json:"formats,omitempty"`
	Tags           string    `db:"tags" json:"tags,omitempty"`
	StreamURL      string    `db:"stream_url" json:"stream_url,omitempty"`
	ThumbnailURL   string    `db:"thumbnail_url" json:"thumbnail_url,omitempty"`
	ThumbPath      string    `db:"thumb_path" json:"thumb_path,omitempty"`
	LocalPath      string    `db:"local_path" json:"local_path,omitempty"`
	DownloadStatus string    `db:"download_status" json:"download_status,omitempty"`
	UserRating     int       `db:"user_rating" json:"user_rating,omitempty"`
	Favorited      bool      `db:"favorited" json:"favorited,omitempty"`
	Notes          string    `db:"notes" json:"notes,omitempty"`
	UserTags       string    `db:"user_tags" json:"user_tags,omitempty"`
	SourceSite     string    `db:"source_site" json:"source_site,omitempty"`
	FoundAt        time.Time `db:"found_at" json:"found_at"`
}

// Downloadable reports whether the asset qualifies for the download
// pipeline: a stream URL is known and no local file has been produced.
func (a *Asset) Downloadable() bool {
	return a.StreamURL != "" && (a.LocalPath == "" || a.DownloadStatus != DownloadDone)
}
