package entity

import "time"

// Page visit outcomes recorded in the page_visits ledger.
const (
	VisitDone   = "done"
	VisitFailed = "failed"
)

// WorkItem is one URL pending classification/extraction in the crawl
// queue. Unique per URL; queued and visited membership is disjoint.
type WorkItem struct {
	URL      string    `db:"url"`
	Depth    int       `db:"depth"`
	Priority int       `db:"priority"`
	Profile  string    `db:"profile"`
	AddedAt  time.Time `db:"added_at"`
}

// PageVisit is the ledger row written when a WorkItem has been
// processed. Idempotently overwritten on reprocessing.
type PageVisit struct {
	URL       string    `db:"url"`
	Status    string    `db:"status"`
	Depth     int       `db:"depth"`
	Profile   string    `db:"profile"`
	VisitedAt time.Time `db:"visited_at"`
}

// CrawlStats is the snapshot emitted to the UI after each processed page.
type CrawlStats struct {
	AssetsFound  int `json:"assets_found"`
	StreamsFound int `json:"streams_found"`
	PagesDone    int `json:"pages_done"`
	Queued       int `json:"queued"`
	Failed       int `json:"failed"`
}
