package request

// StartCrawlRequest selects profiles and overrides the crawl defaults
// for one run. Zero-valued fields fall back to the server config.
type StartCrawlRequest struct {
	Profiles  []string `json:"profiles"`
	StartURLs []string `json:"start_urls"`
	MaxDepth  int      `json:"max_depth"`
	BatchSize int      `json:"batch_size"`
	Resume    *bool    `json:"resume"`
}

// EnqueueDownloadsRequest submits assets to the download pool, either
// an explicit id list or everything pending in the store.
type EnqueueDownloadsRequest struct {
	AssetIDs []string `json:"asset_ids"`
	All      bool     `json:"all"`
}

// HarvestRequest describes one bulk catalog sweep.
type HarvestRequest struct {
	Site       string              `json:"site"`
	Endpoint   string              `json:"endpoint"`
	Method     string              `json:"method"`
	Headers    map[string]string   `json:"headers"`
	Params     map[string]string   `json:"params"`
	Fields     map[string]string   `json:"fields"`
	Variations []map[string]string `json:"variations"`
	PageParam  string              `json:"page_param"`
	MaxPages   int                 `json:"max_pages"`
}

// RateRequest sets the user rating for an asset.
type RateRequest struct {
	Rating int `json:"rating"`
}

// NotesRequest replaces the free-form notes on an asset.
type NotesRequest struct {
	Notes string `json:"notes"`
}

// TagsRequest replaces the user-applied tag list on an asset.
type TagsRequest struct {
	Tags string `json:"tags"`
}

// CollectionRequest creates a named collection.
type CollectionRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// SaveSearchRequest stores a named search for later re-runs.
type SaveSearchRequest struct {
	Name    string            `json:"name"`
	Query   string            `json:"query"`
	Filters map[string]string `json:"filters"`
}
