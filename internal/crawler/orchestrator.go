// Package crawler runs the cooperative crawl loop: one page in
// flight per orchestrator, round-robin across the selected site
// profiles, with challenge-aware pacing.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/entity"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/event"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/extract"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/profile"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/repository"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/stream"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/pkg/metrics"
)

// Queue priorities: item pages are always worth visiting, catalog
// pages only while depth remains.
const (
	priorityItem    = 10
	priorityCatalog = 5
)

var (
	ErrNoProfiles     = errors.New("no crawl profiles selected")
	ErrNoStartURL     = errors.New("no start URL and the queue is empty")
	ErrUnknownProfile = errors.New("unknown profile")
	ErrRunning        = errors.New("crawl already running")
)

// Config tunes one crawl run.
type Config struct {
	Profiles  []string
	StartURLs []string // optional extra seeds; routed to profiles by domain
	MaxDepth  int
	BatchSize int // pages per profile per rotation
	Resume    bool

	PageDelay     time.Duration
	ChallengeWait time.Duration

	// Candidate attribution knobs for item pages.
	ScopeToAssetID     bool
	AcceptUnattributed bool

	// With a visible browser the operator can clear a challenge by
	// hand, so the loop polls for clearance instead of backing off.
	InteractiveChallenges bool
	ChallengePoll         time.Duration
	ChallengePollTimeout  time.Duration
}

func (c *Config) defaults() {
	if c.MaxDepth == 0 {
		c.MaxDepth = 2
	}
	if c.BatchSize == 0 {
		c.BatchSize = 5
	}
	if c.PageDelay == 0 {
		c.PageDelay = 2 * time.Second
	}
	if c.ChallengeWait == 0 {
		c.ChallengeWait = 30 * time.Second
	}
	if c.ChallengePoll == 0 {
		c.ChallengePoll = 15 * time.Second
	}
	if c.ChallengePollTimeout == 0 {
		c.ChallengePollTimeout = 5 * time.Minute
	}
}

// Orchestrator drives the crawl. One page in flight at a time;
// concurrency comes from running several instances over the shared
// store, which is why backoff state is per-instance.
type Orchestrator struct {
	cfg     Config
	store   repository.Store
	fetcher repository.PageFetcher
	reg     *profile.Registry
	bus     *event.Bus
	log     *slog.Logger

	mu       sync.Mutex
	running  bool
	paused   bool
	resumeCh chan struct{}
	cancel   context.CancelFunc
	done     chan struct{}

	backoff *backoff
}

func New(cfg Config, store repository.Store, fetcher repository.PageFetcher,
	reg *profile.Registry, bus *event.Bus, log *slog.Logger) *Orchestrator {
	cfg.defaults()
	return &Orchestrator{
		cfg:     cfg,
		store:   store,
		fetcher: fetcher,
		reg:     reg,
		bus:     bus,
		log:     log,
		backoff: newBackoff(),
	}
}

// Start validates the run configuration, seeds the queue and launches
// the loop. Configuration problems are the only errors surfaced
// before work begins.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return ErrRunning
	}
	if len(o.cfg.Profiles) == 0 {
		return ErrNoProfiles
	}

	profiles := make([]*profile.Profile, 0, len(o.cfg.Profiles))
	for _, name := range o.cfg.Profiles {
		p, ok := o.reg.Get(name)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownProfile, name)
		}
		profiles = append(profiles, p)
	}

	if err := o.seed(ctx, profiles); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.done = make(chan struct{})
	o.running = true
	o.paused = false

	o.bus.Publish(event.TypeStatus, event.Status{State: "running"})
	go o.run(runCtx, profiles)
	return nil
}

// seed enqueues each profile's start URL plus any configured extras,
// and clears their visit rows so a fresh run re-crawls them.
func (o *Orchestrator) seed(ctx context.Context, profiles []*profile.Profile) error {
	seeded := false
	enqueue := func(url string, p *profile.Profile) error {
		if url == "" {
			return nil
		}
		if err := o.store.ResetVisit(ctx, url); err != nil {
			return err
		}
		if err := o.store.Enqueue(ctx, url, 0, priorityCatalog, p.Name); err != nil {
			return err
		}
		seeded = true
		return nil
	}
	for _, p := range profiles {
		if err := enqueue(p.StartURL, p); err != nil {
			return err
		}
	}
	for _, u := range o.cfg.StartURLs {
		if err := enqueue(u, routeProfile(u, profiles)); err != nil {
			return err
		}
	}
	if !seeded {
		// A resumed run may still have queued work from last time.
		n, err := o.store.QueueSize(ctx, "")
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNoStartURL
		}
	}
	return nil
}

// routeProfile picks the first profile whose domain list admits the
// URL's host; the first selected profile is the fallback.
func routeProfile(rawURL string, profiles []*profile.Profile) *profile.Profile {
	if u, err := url.Parse(rawURL); err == nil {
		for _, p := range profiles {
			if len(p.Domains) > 0 && p.IsAllowedDomain(u.Host) {
				return p
			}
		}
	}
	return profiles[0]
}

func (o *Orchestrator) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running || o.paused {
		return
	}
	o.paused = true
	o.resumeCh = make(chan struct{})
	o.bus.Publish(event.TypeStatus, event.Status{State: "paused"})
}

func (o *Orchestrator) Resume() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.paused {
		return
	}
	o.paused = false
	close(o.resumeCh)
	o.bus.Publish(event.TypeStatus, event.Status{State: "running"})
}

// Stop cancels the run and waits up to grace for the in-flight page
// to finish.
func (o *Orchestrator) Stop(grace time.Duration) {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	cancel, done := o.cancel, o.done
	if o.paused {
		o.paused = false
		close(o.resumeCh)
	}
	o.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(grace):
	}
}

// Running reports whether a crawl loop is active.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// gate blocks while paused. False means the run was cancelled.
func (o *Orchestrator) gate(ctx context.Context) bool {
	for {
		o.mu.Lock()
		paused, ch := o.paused, o.resumeCh
		o.mu.Unlock()
		if !paused {
			return ctx.Err() == nil
		}
		select {
		case <-ctx.Done():
			return false
		case <-ch:
		}
	}
}

func (o *Orchestrator) run(ctx context.Context, profiles []*profile.Profile) {
	defer func() {
		o.mu.Lock()
		o.running = false
		close(o.done)
		o.mu.Unlock()
	}()

	for {
		processed := 0
		for _, p := range profiles {
			for i := 0; i < o.cfg.BatchSize; i++ {
				if !o.gate(ctx) {
					o.bus.Publish(event.TypeStatus, event.Status{State: "stopped"})
					return
				}
				item, err := o.store.Dequeue(ctx, p.Name)
				if errors.Is(err, repository.ErrQueueEmpty) {
					break
				}
				if err != nil {
					o.log.Error("dequeue failed", "profile", p.Name, "error", err)
					break
				}
				o.processPage(ctx, item, p)
				processed++
				o.publishStats(ctx)
				o.politeDelay(ctx)
			}
			if n, err := o.store.QueueSize(ctx, p.Name); err == nil {
				metrics.QueueDepth.WithLabelValues(p.Name).Set(float64(n))
			}
		}
		if processed == 0 {
			o.opLog("info", "crawl finished, all queues empty")
			o.bus.Publish(event.TypeStatus, event.Status{State: "finished"})
			return
		}
	}
}

func (o *Orchestrator) processPage(ctx context.Context, item *entity.WorkItem, p *profile.Profile) {
	if o.cfg.Resume {
		if seen, err := o.store.IsVisited(ctx, item.URL); err == nil && seen {
			return
		}
	}

	class := p.Classify(item.URL)
	start := time.Now()

	var res *repository.FetchResult
	var err error
	if class == profile.Item {
		res, err = o.fetcher.FetchItem(ctx, item.URL, p)
	} else {
		res, err = o.fetcher.FetchCatalog(ctx, item.URL, p)
	}
	metrics.PageFetchDuration.WithLabelValues(p.Name).Observe(time.Since(start).Seconds())

	if err != nil {
		o.log.Warn("page fetch failed", "url", item.URL, "error", err)
		o.opLog("warn", "fetch failed: "+item.URL)
		metrics.PagesCrawledTotal.WithLabelValues(p.Name, class.String(), "failed").Inc()
		_ = o.store.MarkVisited(ctx, item.URL, item.Depth, p.Name, entity.VisitFailed)
		return
	}

	if isChallenge(res.Title, res.HTML) {
		if o.cfg.InteractiveChallenges {
			res = o.awaitClearance(ctx, item, p, class)
		}
		if res == nil || isChallenge(res.Title, res.HTML) {
			o.onChallenge(ctx, item, p, class)
			return
		}
	}
	metrics.ChallengeBackoff.Set(o.backoff.relax())

	if class == profile.Item {
		o.processItem(ctx, item, p, res)
	} else {
		o.processCatalog(ctx, item, p, res)
	}

	metrics.PagesCrawledTotal.WithLabelValues(p.Name, class.String(), "done").Inc()
	_ = o.store.MarkVisited(ctx, item.URL, item.Depth, p.Name, entity.VisitDone)
}

// awaitClearance polls a challenged page while the operator solves it
// in the visible browser. Returns the first clean render, or nil on
// timeout.
func (o *Orchestrator) awaitClearance(ctx context.Context, item *entity.WorkItem, p *profile.Profile, class profile.PageClass) *repository.FetchResult {
	o.opLog("warn", "waiting for manual challenge clearance: "+item.URL)
	deadline := time.Now().Add(o.cfg.ChallengePollTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(o.cfg.ChallengePoll):
		}
		var res *repository.FetchResult
		var err error
		if class == profile.Item {
			res, err = o.fetcher.FetchItem(ctx, item.URL, p)
		} else {
			res, err = o.fetcher.FetchCatalog(ctx, item.URL, p)
		}
		if err != nil {
			continue
		}
		if !isChallenge(res.Title, res.HTML) {
			o.opLog("info", "challenge cleared: "+item.URL)
			metrics.ChallengeBackoff.Set(o.backoff.relax())
			return res
		}
	}
	return nil
}

// onChallenge re-enqueues the page below catalog priority, doubles
// the pacing multiplier and sits out the cooldown.
func (o *Orchestrator) onChallenge(ctx context.Context, item *entity.WorkItem, p *profile.Profile, class profile.PageClass) {
	mult := o.backoff.raise()
	metrics.ChallengeBackoff.Set(mult)
	metrics.PagesCrawledTotal.WithLabelValues(p.Name, class.String(), "challenged").Inc()

	o.log.Warn("challenge page detected", "url", item.URL, "backoff", mult)
	o.opLog("warn", "anti-bot challenge on "+item.URL)
	o.bus.Publish(event.TypeStatus, event.Status{State: "challenged", Detail: item.URL})
	_ = o.store.Enqueue(ctx, item.URL, item.Depth, item.Priority-1, p.Name)

	cooldown := time.Duration(float64(o.cfg.ChallengeWait) * mult)
	select {
	case <-ctx.Done():
	case <-time.After(cooldown):
	}
}

func (o *Orchestrator) processItem(ctx context.Context, item *entity.WorkItem, p *profile.Profile, res *repository.FetchResult) {
	asset := extract.AssetFromItemPage(item.URL, res.HTML, p)
	if asset.AssetID == "" {
		o.log.Debug("item page without extractable id", "url", item.URL)
		return
	}

	candidates := append([]string{}, res.StreamURLs...)
	candidates = append(candidates, extract.StreamCandidates(res.HTML, p)...)
	candidates = o.scopeCandidates(candidates, asset.AssetID)

	isNew, err := o.store.UpsertAsset(ctx, asset)
	if err != nil {
		o.log.Error("asset upsert failed", "asset_id", asset.AssetID, "error", err)
		return
	}

	decision := stream.Decision("")
	if best := stream.BestOf(candidates); best != "" {
		decision, err = o.store.UpgradeStream(ctx, asset.AssetID, best)
		if err != nil {
			o.log.Error("stream upgrade failed", "asset_id", asset.AssetID, "error", err)
		} else {
			metrics.StreamUpgradesTotal.WithLabelValues(string(decision)).Inc()
		}
	}

	metrics.AssetsFoundTotal.WithLabelValues(p.Name, boolLabel(isNew)).Inc()
	o.bus.Publish(event.TypeAssetDiscovered, event.AssetDiscovered{
		AssetID:    asset.AssetID,
		Title:      asset.Title,
		SourceSite: asset.SourceSite,
		New:        isNew,
		Stream:     string(decision),
	})

	o.enqueueLinks(ctx, item, p, res.HTML)
}

func (o *Orchestrator) processCatalog(ctx context.Context, item *entity.WorkItem, p *profile.Profile, res *repository.FetchResult) {
	for _, card := range extract.CatalogCards(item.URL, res.HTML, p) {
		a := &entity.Asset{
			AssetID:      card.AssetID,
			SourceURL:    card.PageURL,
			Title:        card.Title,
			ThumbnailURL: card.ThumbnailURL,
			SourceSite:   p.Name,
		}
		isNew, err := o.store.UpsertAsset(ctx, a)
		if err != nil {
			o.log.Error("card upsert failed", "asset_id", card.AssetID, "error", err)
			continue
		}
		if card.StreamURL != "" {
			if d, err := o.store.UpgradeStream(ctx, card.AssetID, card.StreamURL); err == nil {
				metrics.StreamUpgradesTotal.WithLabelValues(string(d)).Inc()
			}
		}
		if isNew {
			metrics.AssetsFoundTotal.WithLabelValues(p.Name, "true").Inc()
			o.bus.Publish(event.TypeAssetDiscovered, event.AssetDiscovered{
				AssetID: card.AssetID, Title: card.Title, SourceSite: p.Name, New: true,
			})
		}
		if card.PageURL != "" {
			o.enqueueOne(ctx, card.PageURL, item.Depth+1, priorityItem, p)
		}
	}

	// Network captures on catalog pages (preview players) are grouped
	// per embedded id and recorded against those assets.
	for _, u := range res.StreamURLs {
		id := extract.EmbeddedID(u)
		if id == "" {
			continue
		}
		if _, err := o.store.GetAsset(ctx, id); err != nil {
			continue
		}
		if d, err := o.store.UpgradeStream(ctx, id, u); err == nil {
			metrics.StreamUpgradesTotal.WithLabelValues(string(d)).Inc()
		}
	}

	o.enqueueLinks(ctx, item, p, res.HTML)
}

// enqueueLinks classifies the page's outbound links. Item links are
// followed at any depth; catalog links only while depth remains.
func (o *Orchestrator) enqueueLinks(ctx context.Context, item *entity.WorkItem, p *profile.Profile, html string) {
	for _, link := range extract.Links(item.URL, html, p) {
		switch p.Classify(link) {
		case profile.Item:
			o.enqueueOne(ctx, link, item.Depth+1, priorityItem, p)
		case profile.Catalog:
			if item.Depth+1 <= o.cfg.MaxDepth {
				o.enqueueOne(ctx, link, item.Depth+1, priorityCatalog, p)
			}
		}
	}
}

func (o *Orchestrator) enqueueOne(ctx context.Context, url string, depth, priority int, p *profile.Profile) {
	if o.cfg.Resume {
		if seen, err := o.store.IsVisited(ctx, url); err == nil && seen {
			return
		}
	}
	if err := o.store.Enqueue(ctx, url, depth, priority, p.Name); err != nil {
		o.log.Error("enqueue failed", "url", url, "error", err)
	}
}

// scopeCandidates keeps the candidates attributable to the current
// asset. Streams with a different embedded id belong to recommended
// clips rendered on the same page; a single id-less candidate is
// accepted when the policy allows, since players often serve streams
// from opaque CDN paths.
func (o *Orchestrator) scopeCandidates(candidates []string, assetID string) []string {
	if !o.cfg.ScopeToAssetID {
		return candidates
	}
	var scoped, unattributed []string
	for _, c := range candidates {
		switch extract.EmbeddedID(c) {
		case assetID:
			scoped = append(scoped, c)
		case "":
			unattributed = append(unattributed, c)
		}
	}
	if len(scoped) > 0 {
		return scoped
	}
	if o.cfg.AcceptUnattributed && len(unattributed) == 1 {
		return unattributed
	}
	return nil
}

func (o *Orchestrator) publishStats(ctx context.Context) {
	if st, err := o.store.Stats(ctx); err == nil {
		o.bus.Publish(event.TypeStats, *st)
	}
}

// opLog mirrors a log line onto the event bus for UI consumers.
func (o *Orchestrator) opLog(level, msg string) {
	o.bus.Publish(event.TypeLog, event.Log{Level: level, Message: msg})
}

func (o *Orchestrator) politeDelay(ctx context.Context) {
	delay := time.Duration(float64(o.cfg.PageDelay) * o.backoff.factor())
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
