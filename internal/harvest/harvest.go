// Package harvest mines a site's catalog API directly. A single
// observed request is captured as a QueryTemplate, then replayed
// across a sweep of parameter variations without loading any pages.
package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/entity"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/event"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/repository"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/pkg/metrics"
)

// QueryTemplate is one catalog API request captured from the network
// log of a real browse session. The sweep varies Params on top of it.
type QueryTemplate struct {
	Endpoint string            `json:"endpoint"`
	Method   string            `json:"method"`
	Headers  map[string]string `json:"headers"`
	Params   map[string]string `json:"params"`
}

// Variation is one branch of the sweep: a named set of parameter
// overrides (sort order, category, search term).
type Variation struct {
	Name   string            `json:"name"`
	Params map[string]string `json:"params"`
}

// FieldMap locates asset fields inside the JSON response. Paths are
// dot-separated object keys; Items must resolve to an array.
type FieldMap struct {
	Items      string `json:"items"`
	AssetID    string `json:"asset_id"`
	Title      string `json:"title"`
	PageURL    string `json:"page_url"`
	StreamURL  string `json:"stream_url"`
	Thumbnail  string `json:"thumbnail"`
	Creator    string `json:"creator"`
	Duration   string `json:"duration"`
	Resolution string `json:"resolution"`
	Tags       string `json:"tags"`
}

// Config bounds a sweep run.
type Config struct {
	Concurrency    int    // parallel branches
	PageParam      string // query parameter carrying the page number
	StartPage      int
	MaxPages       int // per-branch hard stop
	DuplicateLimit int // consecutive all-duplicate pages before a branch quits
	RequestTimeout time.Duration
	PageDelay      time.Duration // between pages within one branch
}

func (c *Config) defaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 3
	}
	if c.PageParam == "" {
		c.PageParam = "page"
	}
	if c.StartPage <= 0 {
		c.StartPage = 1
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 200
	}
	if c.DuplicateLimit <= 0 {
		c.DuplicateLimit = 2
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
}

// Result summarizes one sweep run.
type Result struct {
	Pages      int
	Assets     int
	NewAssets  int
	Duplicates int
}

// Engine replays a QueryTemplate across variations and feeds every
// hit through the same asset merge rules as the page crawler.
type Engine struct {
	cfg    Config
	tmpl   QueryTemplate
	fields FieldMap
	site   string

	store  repository.AssetRepository
	client *http.Client
	bus    *event.Bus
	log    *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
	res  Result
}

func NewEngine(cfg Config, tmpl QueryTemplate, fields FieldMap, site string,
	store repository.AssetRepository, bus *event.Bus, log *slog.Logger) *Engine {
	cfg.defaults()
	return &Engine{
		cfg:    cfg,
		tmpl:   tmpl,
		fields: fields,
		site:   site,
		store:  store,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		bus:    bus,
		log:    log.With("component", "harvest", "site", site),
		seen:   make(map[string]struct{}),
	}
}

// Run sweeps all variations. Branches run concurrently up to
// cfg.Concurrency and terminate independently; the shared dedup set
// spans the whole run and resets on the next Run.
func (e *Engine) Run(ctx context.Context, variations []Variation) (Result, error) {
	if e.tmpl.Endpoint == "" {
		return Result{}, fmt.Errorf("harvest: no endpoint captured")
	}
	if len(variations) == 0 {
		variations = []Variation{{Name: "default"}}
	}

	e.mu.Lock()
	e.seen = make(map[string]struct{})
	e.res = Result{}
	e.mu.Unlock()

	sem := make(chan struct{}, e.cfg.Concurrency)
	var wg sync.WaitGroup
	for _, v := range variations {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return e.snapshot(), ctx.Err()
		}
		wg.Add(1)
		go func(v Variation) {
			defer wg.Done()
			defer func() { <-sem }()
			e.runBranch(ctx, v)
		}(v)
	}
	wg.Wait()

	res := e.snapshot()
	e.log.Info("harvest run finished",
		"pages", res.Pages, "assets", res.Assets, "new", res.NewAssets)
	return res, ctx.Err()
}

func (e *Engine) snapshot() Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.res
}

func (e *Engine) runBranch(ctx context.Context, v Variation) {
	log := e.log.With("branch", v.Name)
	dupRun := 0
	for page := e.cfg.StartPage; page < e.cfg.StartPage+e.cfg.MaxPages; page++ {
		if ctx.Err() != nil {
			return
		}
		items, err := e.fetchPage(ctx, v, page)
		if err != nil {
			log.Warn("harvest page failed", "page", page, "error", err)
			metrics.HarvestPagesTotal.WithLabelValues(e.site, "error").Inc()
			return
		}
		metrics.HarvestPagesTotal.WithLabelValues(e.site, "ok").Inc()
		e.mu.Lock()
		e.res.Pages++
		e.mu.Unlock()

		if len(items) == 0 {
			log.Debug("branch exhausted", "page", page)
			return
		}
		fresh := e.ingest(ctx, items, log)
		if fresh == 0 {
			dupRun++
			if dupRun >= e.cfg.DuplicateLimit {
				log.Debug("branch saturated", "page", page)
				return
			}
		} else {
			dupRun = 0
		}

		if e.cfg.PageDelay > 0 {
			select {
			case <-time.After(e.cfg.PageDelay):
			case <-ctx.Done():
				return
			}
		}
	}
}

// fetchPage issues one templated request and returns the decoded
// item objects.
func (e *Engine) fetchPage(ctx context.Context, v Variation, page int) ([]map[string]any, error) {
	method := e.tmpl.Method
	if method == "" {
		method = http.MethodGet
	}

	q := url.Values{}
	for k, val := range e.tmpl.Params {
		q.Set(k, val)
	}
	for k, val := range v.Params {
		q.Set(k, val)
	}
	q.Set(e.cfg.PageParam, strconv.Itoa(page))

	reqURL := e.tmpl.Endpoint
	if method == http.MethodGet {
		sep := "?"
		if strings.Contains(reqURL, "?") {
			sep = "&"
		}
		reqURL += sep + q.Encode()
	}

	var body io.Reader
	if method != http.MethodGet {
		body = strings.NewReader(q.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}
	for k, val := range e.tmpl.Headers {
		req.Header.Set(k, val)
	}
	if method != http.MethodGet && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("harvest: %s returned %d", e.tmpl.Endpoint, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("harvest: decode response: %w", err)
	}

	node := lookup(doc, e.fields.Items)
	arr, ok := node.([]any)
	if !ok {
		return nil, fmt.Errorf("harvest: items path %q is not an array", e.fields.Items)
	}
	items := make([]map[string]any, 0, len(arr))
	for _, el := range arr {
		if m, ok := el.(map[string]any); ok {
			items = append(items, m)
		}
	}
	return items, nil
}

// ingest upserts every non-duplicate item and returns how many were
// new to this run.
func (e *Engine) ingest(ctx context.Context, items []map[string]any, log *slog.Logger) int {
	fresh := 0
	for _, item := range items {
		id := stringAt(item, e.fields.AssetID)
		if id == "" {
			continue
		}
		e.mu.Lock()
		e.res.Assets++
		if _, dup := e.seen[id]; dup {
			e.res.Duplicates++
			e.mu.Unlock()
			continue
		}
		e.seen[id] = struct{}{}
		e.mu.Unlock()
		fresh++

		a := e.assetFromItem(id, item)
		isNew, err := e.store.UpsertAsset(ctx, a)
		if err != nil {
			log.Error("harvest upsert failed", "asset_id", id, "error", err)
			continue
		}
		if isNew {
			e.mu.Lock()
			e.res.NewAssets++
			e.mu.Unlock()
		}
		metrics.AssetsFoundTotal.WithLabelValues(e.site, strconv.FormatBool(isNew)).Inc()

		decision := ""
		if streamURL := stringAt(item, e.fields.StreamURL); streamURL != "" {
			d, err := e.store.UpgradeStream(ctx, id, streamURL)
			if err != nil {
				log.Warn("harvest stream upgrade failed", "asset_id", id, "error", err)
			} else {
				decision = string(d)
			}
		}
		e.bus.Publish(event.TypeAssetDiscovered, event.AssetDiscovered{
			AssetID:    id,
			Title:      a.Title,
			SourceSite: e.site,
			New:        isNew,
			Stream:     decision,
		})
	}
	return fresh
}

func (e *Engine) assetFromItem(id string, item map[string]any) *entity.Asset {
	return &entity.Asset{
		AssetID:      id,
		SourceURL:    stringAt(item, e.fields.PageURL),
		SourceSite:   e.site,
		Title:        stringAt(item, e.fields.Title),
		Creator:      stringAt(item, e.fields.Creator),
		Duration:     stringAt(item, e.fields.Duration),
		Resolution:   stringAt(item, e.fields.Resolution),
		Tags:         stringAt(item, e.fields.Tags),
		ThumbnailURL: stringAt(item, e.fields.Thumbnail),
	}
}

// lookup walks a dot-separated path through nested JSON objects.
// An empty path returns the document itself.
func lookup(doc any, path string) any {
	if path == "" {
		return doc
	}
	cur := doc
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}

// stringAt reads a path as a string, rendering numbers without an
// exponent and joining string arrays with ", ".
func stringAt(item map[string]any, path string) string {
	if path == "" {
		return ""
	}
	switch v := lookup(item, path).(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, el := range v {
			if s, ok := el.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}
