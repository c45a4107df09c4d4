// Package chromedp_fetcher renders pages in headless Chrome and
// captures the stream URLs the player requests while loading.
package chromedp_fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/profile"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/repository"
)

var userAgents = []string{
	`Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36`,
	`Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36`,
	`Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36`,
}

// stealthJS papers over the most common headless tells before any
// page script runs.
const stealthJS = `
Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
Object.defineProperty(navigator, 'languages', {get: () => ['en-US', 'en']});
Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3]});
window.chrome = window.chrome || {runtime: {}};
`

// xhrLogJS mirrors fetch/XHR URLs into a page-side log so candidates
// requested before the CDP listener attached are still visible.
const xhrLogJS = `
window.__xhrLog = [];
(function() {
  const push = u => { try { window.__xhrLog.push(String(u)); } catch (e) {} };
  const origOpen = XMLHttpRequest.prototype.open;
  XMLHttpRequest.prototype.open = function(m, u) { push(u); return origOpen.apply(this, arguments); };
  const origFetch = window.fetch;
  window.fetch = function(u) { push(u && u.url ? u.url : u); return origFetch.apply(this, arguments); };
})();
`

const triggerPlayersJS = `
(function() {
  document.querySelectorAll('video').forEach(v => {
    try { v.muted = true; v.play(); } catch (e) {}
  });
  document.querySelectorAll('[class*="play"], [aria-label*="play" i], [aria-label*="Play"]').forEach(el => {
    try { el.click(); } catch (e) {}
  });
  return document.querySelectorAll('video').length;
})()
`

// Config tunes the browser adapter.
type Config struct {
	Headless    bool
	PageTimeout time.Duration
	SettleWait  time.Duration
	ScrollSteps int
}

func (c *Config) defaults() {
	if c.PageTimeout == 0 {
		c.PageTimeout = 60 * time.Second
	}
	if c.SettleWait == 0 {
		c.SettleWait = 3 * time.Second
	}
	if c.ScrollSteps == 0 {
		c.ScrollSteps = 6
	}
}

// Fetcher owns one Chrome process (the exec allocator); each fetch
// gets its own isolated browser context on top of it.
type Fetcher struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	cfg         Config
	log         *slog.Logger
}

var _ repository.PageFetcher = (*Fetcher)(nil)

// New starts the browser allocator. Close releases it.
func New(cfg Config, log *slog.Logger) (*Fetcher, error) {
	cfg.defaults()
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("mute-audio", true),
		chromedp.UserAgent(userAgents[rand.Intn(len(userAgents))]),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Fetcher{allocCtx: allocCtx, allocCancel: cancel, cfg: cfg, log: log}, nil
}

// FetchItem renders an item page: trigger the players, wait for the
// stream request to fire, capture DOM and network candidates.
func (f *Fetcher) FetchItem(ctx context.Context, url string, p *profile.Profile) (*repository.FetchResult, error) {
	return f.fetch(ctx, url, p, f.itemActions())
}

// FetchCatalog renders a catalog page: incremental scrolling and
// load-more clicks per the profile recipe, so lazy cards materialize.
func (f *Fetcher) FetchCatalog(ctx context.Context, url string, p *profile.Profile) (*repository.FetchResult, error) {
	return f.fetch(ctx, url, p, f.catalogActions(p))
}

func (f *Fetcher) Close() error {
	f.allocCancel()
	return nil
}

// capture accumulates network observations for one fetch. Scoped to
// the fetch so teardown is deterministic.
type capture struct {
	mu       sync.Mutex
	pattern  func(string) bool
	urls     []string
	seen     map[string]struct{}
	status   int
	jsonReqs []network.RequestID
}

func (c *capture) add(u string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.seen[u]; dup {
		return
	}
	c.seen[u] = struct{}{}
	c.urls = append(c.urls, u)
}

func (f *Fetcher) fetch(ctx context.Context, url string, p *profile.Profile, actions []chromedp.Action) (*repository.FetchResult, error) {
	taskCtx, cancel := chromedp.NewContext(f.allocCtx)
	defer cancel()
	taskCtx, cancel = context.WithTimeout(taskCtx, f.cfg.PageTimeout)
	defer cancel()
	// Propagate the caller's cancellation into the browser context.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	videoRe := p.VideoURLPattern()
	capt := &capture{
		pattern: p.IsVideoURL,
		seen:    make(map[string]struct{}),
	}

	chromedp.ListenTarget(taskCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			u := e.Response.URL
			if e.Type == network.ResourceTypeDocument && capt.status == 0 {
				capt.mu.Lock()
				capt.status = int(e.Response.Status)
				capt.mu.Unlock()
			}
			if capt.pattern(u) {
				capt.add(u)
				return
			}
			// Small JSON XHRs often carry the rendition list.
			if (e.Type == network.ResourceTypeXHR || e.Type == network.ResourceTypeFetch) &&
				strings.Contains(e.Response.MimeType, "json") &&
				e.Response.EncodedDataLength < 512*1024 {
				capt.mu.Lock()
				capt.jsonReqs = append(capt.jsonReqs, e.RequestID)
				capt.mu.Unlock()
			}
		case *fetch.EventRequestPaused:
			// Abort HLS segment downloads; the playlist alone is enough.
			go func() {
				c := chromedp.FromContext(taskCtx)
				execCtx := cdp.WithExecutor(taskCtx, c.Target)
				if strings.Contains(e.Request.URL, ".ts") {
					_ = fetch.FailRequest(e.RequestID, network.ErrorReasonAborted).Do(execCtx)
					return
				}
				_ = fetch.ContinueRequest(e.RequestID).Do(execCtx)
			}()
		}
	})

	var html, title string
	run := []chromedp.Action{
		fetch.Enable().WithPatterns([]*fetch.RequestPattern{{URLPattern: "*.ts*"}}),
		network.Enable(),
		injectOnNewDocument(stealthJS),
		injectOnNewDocument(xhrLogJS),
		chromedp.Navigate(url),
	}
	run = append(run, actions...)
	run = append(run,
		chromedp.Sleep(f.cfg.SettleWait),
		scanJSONBodies(capt, videoRe.FindAllString),
		drainXHRLog(capt),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &html),
	)

	if err := chromedp.Run(taskCtx, run...); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}

	f.log.Debug("page fetched",
		"url", url, "status", capt.status, "candidates", len(capt.urls))
	return &repository.FetchResult{
		URL:        url,
		Title:      title,
		HTML:       html,
		Status:     capt.status,
		StreamURLs: capt.urls,
	}, nil
}

func (f *Fetcher) itemActions() []chromedp.Action {
	return []chromedp.Action{
		chromedp.Sleep(f.cfg.SettleWait),
		chromedp.Evaluate(triggerPlayersJS, nil),
	}
}

func (f *Fetcher) catalogActions(p *profile.Profile) []chromedp.Action {
	var acts []chromedp.Action
	if p.ScrollItems {
		acts = append(acts, f.scrollAction())
	}
	for i := 0; i < p.LoadMoreClicks && p.LoadMoreSelector != ""; i++ {
		acts = append(acts,
			clickIfPresent(p.LoadMoreSelector),
			chromedp.Sleep(time.Second),
		)
	}
	return acts
}

// scrollAction scrolls one viewport at a time with short pauses,
// which is what lazy-loading catalogs key off.
func (f *Fetcher) scrollAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for i := 0; i < f.cfg.ScrollSteps; i++ {
			if err := chromedp.Evaluate(`window.scrollBy(0, window.innerHeight * 0.8)`, nil).Do(ctx); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(500*time.Millisecond + time.Duration(rand.Intn(400))*time.Millisecond):
			}
		}
		return nil
	})
}

func clickIfPresent(selector string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		clickCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		// Absence of the button is the normal end of paging.
		_ = chromedp.Click(selector, chromedp.ByQuery).Do(clickCtx)
		return nil
	})
}

func injectOnNewDocument(script string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
		return err
	})
}

// scanJSONBodies pulls the bodies of the small JSON XHRs recorded
// during load and scans them for stream URLs.
func scanJSONBodies(capt *capture, findAll func(string, int) []string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		capt.mu.Lock()
		reqs := append([]network.RequestID(nil), capt.jsonReqs...)
		capt.mu.Unlock()
		for _, id := range reqs {
			body, err := network.GetResponseBody(id).Do(ctx)
			if err != nil {
				continue // body may be gone; not worth failing the fetch
			}
			for _, m := range findAll(unescapeJSON(string(body)), -1) {
				if capt.pattern(m) {
					capt.add(m)
				}
			}
		}
		return nil
	})
}

// drainXHRLog folds the page-side request log into the capture set.
func drainXHRLog(capt *capture) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var logged []string
		if err := chromedp.Evaluate(`window.__xhrLog || []`, &logged).Do(ctx); err != nil {
			return nil
		}
		for _, u := range logged {
			if capt.pattern(u) {
				capt.add(u)
			}
		}
		return nil
	})
}

// unescapeJSON undoes the escaping stream URLs typically carry inside
// JSON string literals.
func unescapeJSON(s string) string {
	s = strings.ReplaceAll(s, `\/`, `/`)
	s = strings.ReplaceAll(s, `\u0026`, `&`)
	return s
}
