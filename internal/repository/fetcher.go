package repository

import (
	"context"

	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/profile"
)

// FetchResult is one captured page render: the settled DOM plus every
// stream candidate observed at the network level while it loaded.
type FetchResult struct {
	URL        string
	Title      string
	HTML       string
	Status     int
	StreamURLs []string // observation order, deduplicated
}

// PageFetcher renders pages in a real browser. Item and catalog
// fetches differ in interaction recipe (player triggering vs
// scroll/load-more), not in capture mechanics.
type PageFetcher interface {
	FetchItem(ctx context.Context, url string, p *profile.Profile) (*FetchResult, error)
	FetchCatalog(ctx context.Context, url string, p *profile.Profile) (*FetchResult, error)
	Close() error
}
