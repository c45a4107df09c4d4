package response

import "github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/entity"

// ControlResponse acknowledges a control action (start, pause,
// resume, stop).
type ControlResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// DownloadsResponse reports how many assets were accepted by the
// download pool.
type DownloadsResponse struct {
	Status string `json:"status"`
	Queued int    `json:"queued"`
}

// AssetListResponse wraps an asset query result.
type AssetListResponse struct {
	Count  int            `json:"count"`
	Assets []entity.Asset `json:"assets"`
}

// StatsResponse is the crawl counters snapshot plus orchestrator state.
type StatsResponse struct {
	State string             `json:"state"` // running, idle
	Stats *entity.CrawlStats `json:"stats"`
}
