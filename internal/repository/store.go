package repository

import (
	"context"
	"errors"

	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/entity"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/stream"
)

// ErrQueueEmpty is returned by Dequeue when no eligible work item exists.
var ErrQueueEmpty = errors.New("crawl queue is empty")

// ErrAssetNotFound is returned when an asset id has no record.
var ErrAssetNotFound = errors.New("asset not found")

// QueueRepository is the persistent crawl work queue. Enqueue is
// idempotent per URL; Dequeue removes and returns the
// highest-priority, earliest-inserted item.
type QueueRepository interface {
	Enqueue(ctx context.Context, url string, depth, priority int, profile string) error
	Dequeue(ctx context.Context, profile string) (*entity.WorkItem, error)
	QueueSize(ctx context.Context, profile string) (int, error)
}

// VisitedRepository is the page-visit ledger. One row per URL,
// idempotently overwritten on reprocessing.
type VisitedRepository interface {
	IsVisited(ctx context.Context, url string) (bool, error)
	MarkVisited(ctx context.Context, url string, depth int, profile, status string) error
	ResetVisit(ctx context.Context, url string) error
}

// AssetQuery bundles the filter surface of the asset search.
type AssetQuery struct {
	FreeText       string
	Filters        map[string]string // column -> exact value, whitelisted
	FavoritesOnly  bool
	DownloadedOnly bool
	MinRating      int
	CollectionID   int64 // restrict to one collection's members when > 0
	Limit          int
	Offset         int
}

// AssetRepository stores discovered assets and enforces the
// fill-if-empty / monotonic-stream-upgrade merge rules.
type AssetRepository interface {
	UpsertAsset(ctx context.Context, a *entity.Asset) (isNew bool, err error)
	UpgradeStream(ctx context.Context, assetID, candidate string) (stream.Decision, error)
	GetAsset(ctx context.Context, assetID string) (*entity.Asset, error)
	Query(ctx context.Context, q AssetQuery) ([]entity.Asset, error)
	PendingDownloads(ctx context.Context) ([]entity.Asset, error)
	DoneAssetIDs(ctx context.Context) ([]string, error)
	SetDownloadStatus(ctx context.Context, assetID, status string) error
	SetLocalPath(ctx context.Context, assetID, localPath, status string) error
	SetThumbPath(ctx context.Context, assetID, thumbPath string) error
	SetRating(ctx context.Context, assetID string, rating int) error
	SetNotes(ctx context.Context, assetID, notes string) error
	SetUserTags(ctx context.Context, assetID, tags string) error
	ToggleFavorite(ctx context.Context, assetID string) (bool, error)
	DistinctValues(ctx context.Context, column string) ([]string, error)
	Stats(ctx context.Context) (*entity.CrawlStats, error)
	ClearArchive(ctx context.Context) error
}

// CollectionRepository groups assets into user-defined collections
// and keeps named searches for later re-runs.
type CollectionRepository interface {
	CreateCollection(ctx context.Context, name, color string) (int64, error)
	DeleteCollection(ctx context.Context, id int64) error
	Collections(ctx context.Context) ([]entity.Collection, error)
	AddToCollection(ctx context.Context, assetID string, collectionID int64) error
	RemoveFromCollection(ctx context.Context, assetID string, collectionID int64) error
	AssetCollections(ctx context.Context, assetID string) ([]entity.Collection, error)
	SaveSearch(ctx context.Context, name, query, filters string) error
	SavedSearches(ctx context.Context) ([]entity.SavedSearch, error)
	DeleteSavedSearch(ctx context.Context, id int64) error
}

// Store is the single durable source of truth shared by the
// orchestrator, the download pipeline and the harvest engine.
type Store interface {
	QueueRepository
	VisitedRepository
	AssetRepository
	CollectionRepository
	RebuildIndex(ctx context.Context) error
	Checkpoint(ctx context.Context) error
	Close() error
}
