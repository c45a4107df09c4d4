package crawler

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/adapter/sqlite"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/event"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/profile"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/repository"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/pkg/metrics"
)

// fakeFetcher serves canned pages and can present a challenge page a
// fixed number of times per URL before the real content.
type fakeFetcher struct {
	mu         sync.Mutex
	pages      map[string]*repository.FetchResult
	challenges map[string]int
	fetched    []string
}

func (f *fakeFetcher) fetch(url string) (*repository.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, url)
	if n := f.challenges[url]; n > 0 {
		f.challenges[url] = n - 1
		return &repository.FetchResult{
			URL:   url,
			Title: "Just a moment...",
			HTML:  `<html><body>Checking your browser before accessing</body></html>`,
		}, nil
	}
	if res, ok := f.pages[url]; ok {
		return res, nil
	}
	return &repository.FetchResult{URL: url, HTML: "<html><body></body></html>"}, nil
}

func (f *fakeFetcher) FetchItem(_ context.Context, url string, _ *profile.Profile) (*repository.FetchResult, error) {
	return f.fetch(url)
}

func (f *fakeFetcher) FetchCatalog(_ context.Context, url string, _ *profile.Profile) (*repository.FetchResult, error) {
	return f.fetch(url)
}

func (f *fakeFetcher) Close() error { return nil }

func (f *fakeFetcher) fetchCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.fetched {
		if u == url {
			n++
		}
	}
	return n
}

func testRegistry(t *testing.T) *profile.Registry {
	t.Helper()
	reg := profile.NewRegistry()
	require.NoError(t, reg.Register(&profile.Profile{
		Name:            "testsite",
		Domains:         []string{"example.com"},
		StartURL:        "https://example.com/browse",
		CatalogPatterns: []string{"/browse"},
		ItemURLRegex:    `/video/[^/]+-\d+$`,
		VideoTypes:      []string{"mp4", "m3u8"},
		OGFallback:      true,
	}))
	return reg
}

func newTestOrchestrator(t *testing.T, cfg Config, fetcher repository.PageFetcher) (*Orchestrator, repository.Store) {
	t.Helper()
	metrics.Init()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "crawl.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	if cfg.PageDelay == 0 {
		cfg.PageDelay = time.Millisecond
	}
	if cfg.ChallengeWait == 0 {
		cfg.ChallengeWait = 5 * time.Millisecond
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	o := New(cfg, store, fetcher, testRegistry(t), event.NewBus(), log)
	return o, store
}

const catalogHTML = `<html><body>
<a href="/video/sunset-pier-9001"><img src="/t/9001.jpg" alt="Sunset Pier"></a>
<a href="/video/city-night-9002"><img src="/t/9002.jpg" alt="City Night"></a>
<a href="/browse?page=2">Next</a>
</body></html>`

func itemPage(url, title, stream string) *repository.FetchResult {
	return &repository.FetchResult{
		URL:        url,
		Title:      title,
		HTML:       `<html><head><meta property="og:title" content="` + title + `"></head><body></body></html>`,
		StreamURLs: []string{stream},
	}
}

func TestCrawlEndToEnd(t *testing.T) {
	f := &fakeFetcher{
		pages: map[string]*repository.FetchResult{
			"https://example.com/browse": {URL: "https://example.com/browse", HTML: catalogHTML},
			"https://example.com/video/sunset-pier-9001": itemPage(
				"https://example.com/video/sunset-pier-9001", "Sunset Pier",
				"https://cdn.example/v/9001/hd_1920_1080_25fps.mp4"),
			"https://example.com/video/city-night-9002": itemPage(
				"https://example.com/video/city-night-9002", "City Night",
				"https://cdn.example/v/9002/sd_640_360_25fps.mp4"),
		},
		challenges: map[string]int{},
	}
	o, store := newTestOrchestrator(t, Config{
		Profiles:       []string{"testsite"},
		MaxDepth:       1,
		Resume:         true,
		ScopeToAssetID: true,
	}, f)

	ctx := context.Background()
	require.NoError(t, o.Start(ctx))
	require.Eventually(t, func() bool { return !o.Running() }, 10*time.Second, 10*time.Millisecond)

	a, err := store.GetAsset(ctx, "9001")
	require.NoError(t, err)
	assert.Equal(t, "Sunset Pier", a.Title)
	assert.Equal(t, "https://cdn.example/v/9001/hd_1920_1080_25fps.mp4", a.StreamURL)
	assert.Equal(t, "1920x1080", a.Resolution)

	b, err := store.GetAsset(ctx, "9002")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/v/9002/sd_640_360_25fps.mp4", b.StreamURL)

	n, err := store.QueueSize(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, n, "queue drains to empty")

	seen, err := store.IsVisited(ctx, "https://example.com/video/sunset-pier-9001")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestChallengeBackoffAndRecovery(t *testing.T) {
	itemURL := "https://example.com/video/sunset-pier-9001"
	f := &fakeFetcher{
		pages: map[string]*repository.FetchResult{
			"https://example.com/browse": {
				URL:  "https://example.com/browse",
				HTML: `<html><body><a href="/video/sunset-pier-9001"><img src="/t/9001.jpg"></a></body></html>`,
			},
			itemURL: itemPage(itemURL, "Sunset Pier", "https://cdn.example/v/9001/hd.mp4"),
		},
		challenges: map[string]int{itemURL: 1},
	}
	o, store := newTestOrchestrator(t, Config{
		Profiles: []string{"testsite"},
		Resume:   true,
	}, f)

	ctx := context.Background()
	require.NoError(t, o.Start(ctx))
	require.Eventually(t, func() bool { return !o.Running() }, 10*time.Second, 10*time.Millisecond)

	// Challenged once, then recovered on the re-enqueued attempt.
	assert.Equal(t, 2, f.fetchCount(itemURL))
	_, err := store.GetAsset(ctx, "9001")
	require.NoError(t, err)
	assert.Less(t, o.backoff.factor(), 2.0, "the successful retry relaxes the raised multiplier")
}

func TestInteractiveChallengeClearance(t *testing.T) {
	itemURL := "https://example.com/video/sunset-pier-9001"
	f := &fakeFetcher{
		pages: map[string]*repository.FetchResult{
			"https://example.com/browse": {
				URL:  "https://example.com/browse",
				HTML: `<html><body><a href="/video/sunset-pier-9001"><img src="/t/9001.jpg"></a></body></html>`,
			},
			itemURL: itemPage(itemURL, "Sunset Pier", "https://cdn.example/v/9001/hd.mp4"),
		},
		challenges: map[string]int{itemURL: 2},
	}
	o, store := newTestOrchestrator(t, Config{
		Profiles:              []string{"testsite"},
		Resume:                true,
		InteractiveChallenges: true,
		ChallengePoll:         time.Millisecond,
		ChallengePollTimeout:  time.Second,
	}, f)

	ctx := context.Background()
	require.NoError(t, o.Start(ctx))
	require.Eventually(t, func() bool { return !o.Running() }, 10*time.Second, 10*time.Millisecond)

	// One challenged fetch, two polls, the second of which comes back clean.
	assert.Equal(t, 3, f.fetchCount(itemURL))
	_, err := store.GetAsset(ctx, "9001")
	require.NoError(t, err)
	assert.Equal(t, 1.0, o.backoff.factor(), "cleared in place, never re-enqueued")
}

func TestPauseBlocksProgress(t *testing.T) {
	f := &fakeFetcher{
		pages: map[string]*repository.FetchResult{
			"https://example.com/browse": {URL: "https://example.com/browse", HTML: catalogHTML},
		},
		challenges: map[string]int{},
	}
	o, _ := newTestOrchestrator(t, Config{Profiles: []string{"testsite"}, Resume: true}, f)

	o.Pause() // pausing while idle is a no-op
	require.NoError(t, o.Start(context.Background()))
	o.Pause()
	time.Sleep(50 * time.Millisecond)
	before := f.fetchCount("https://example.com/browse")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, f.fetchCount("https://example.com/browse"))

	o.Resume()
	require.Eventually(t, func() bool { return !o.Running() }, 10*time.Second, 10*time.Millisecond)
}

func TestStopBoundedGrace(t *testing.T) {
	f := &fakeFetcher{
		pages:      map[string]*repository.FetchResult{},
		challenges: map[string]int{},
	}
	o, _ := newTestOrchestrator(t, Config{Profiles: []string{"testsite"}, Resume: true}, f)

	require.NoError(t, o.Start(context.Background()))
	o.Stop(2 * time.Second)
	assert.False(t, o.Running())
}

func TestStartValidation(t *testing.T) {
	f := &fakeFetcher{pages: map[string]*repository.FetchResult{}, challenges: map[string]int{}}

	o, _ := newTestOrchestrator(t, Config{}, f)
	assert.ErrorIs(t, o.Start(context.Background()), ErrNoProfiles)

	o2, _ := newTestOrchestrator(t, Config{Profiles: []string{"nope"}}, f)
	assert.ErrorIs(t, o2.Start(context.Background()), ErrUnknownProfile)

	o3, _ := newTestOrchestrator(t, Config{Profiles: []string{"generic"}}, f)
	assert.ErrorIs(t, o3.Start(context.Background()), ErrNoStartURL)
}
