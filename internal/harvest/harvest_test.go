package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/adapter/sqlite"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/event"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/pkg/metrics"
)

type catalogItem struct {
	ID     int      `json:"id"`
	Name   string   `json:"name"`
	Link   string   `json:"link"`
	Stream string   `json:"stream"`
	Labels []string `json:"labels"`
}

// fakeCatalog serves a paged API: each sort order exposes the same
// pool of clips in a different order, spread over fixed-size pages.
type fakeCatalog struct {
	mu       sync.Mutex
	requests int
	pageSize int
	pool     map[string][]catalogItem // sort value -> ordered items
}

func (f *fakeCatalog) handler(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests++
	f.mu.Unlock()

	sort := r.URL.Query().Get("sort")
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	items := f.pool[sort]

	lo := (page - 1) * f.pageSize
	hi := lo + f.pageSize
	if lo > len(items) {
		lo = len(items)
	}
	if hi > len(items) {
		hi = len(items)
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": map[string]any{"items": items[lo:hi]},
	})
}

func (f *fakeCatalog) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func clip(id int) catalogItem {
	return catalogItem{
		ID:     id,
		Name:   fmt.Sprintf("Clip %d", id),
		Link:   fmt.Sprintf("https://example.com/video/clip-%d", id),
		Stream: fmt.Sprintf("https://cdn.example.com/%d/1920_1080_25fps.mp4", id),
		Labels: []string{"nature", "aerial"},
	}
}

func testFields() FieldMap {
	return FieldMap{
		Items:     "data.items",
		AssetID:   "id",
		Title:     "name",
		PageURL:   "link",
		StreamURL: "stream",
		Tags:      "labels",
	}
}

func newTestEngine(t *testing.T, endpoint string, cfg Config) (*Engine, *sqlite.Store) {
	t.Helper()
	metrics.Init()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "harvest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	tmpl := QueryTemplate{
		Endpoint: endpoint,
		Headers:  map[string]string{"X-Requested-With": "XMLHttpRequest"},
		Params:   map[string]string{"per_page": "2"},
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(cfg, tmpl, testFields(), "testsite", store, event.NewBus(), log), store
}

func TestSweepCollectsAndDeduplicates(t *testing.T) {
	cat := &fakeCatalog{
		pageSize: 2,
		pool: map[string][]catalogItem{
			"newest":  {clip(1), clip(2), clip(3)},
			"popular": {clip(3), clip(2), clip(4)},
		},
	}
	srv := httptest.NewServer(http.HandlerFunc(cat.handler))
	defer srv.Close()

	eng, store := newTestEngine(t, srv.URL+"/api/clips", Config{Concurrency: 2})
	res, err := eng.Run(context.Background(), []Variation{
		{Name: "newest", Params: map[string]string{"sort": "newest"}},
		{Name: "popular", Params: map[string]string{"sort": "popular"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 4, res.NewAssets)
	assert.Equal(t, res.Assets-4, res.Duplicates)

	a, err := store.GetAsset(context.Background(), "4")
	require.NoError(t, err)
	assert.Equal(t, "Clip 4", a.Title)
	assert.Equal(t, "testsite", a.SourceSite)
	assert.Equal(t, "nature, aerial", a.Tags)
	assert.Contains(t, a.StreamURL, "1920_1080")
	assert.Equal(t, "1920x1080", a.Resolution)
}

func TestBranchStopsOnEmptyPage(t *testing.T) {
	cat := &fakeCatalog{
		pageSize: 2,
		pool:     map[string][]catalogItem{"newest": {clip(1), clip(2), clip(3)}},
	}
	srv := httptest.NewServer(http.HandlerFunc(cat.handler))
	defer srv.Close()

	eng, _ := newTestEngine(t, srv.URL+"/api/clips", Config{MaxPages: 50})
	res, err := eng.Run(context.Background(), []Variation{
		{Name: "newest", Params: map[string]string{"sort": "newest"}},
	})
	require.NoError(t, err)

	// pages 1 and 2 have items, page 3 is empty; no page 4 request
	assert.Equal(t, 3, cat.requestCount())
	assert.Equal(t, 3, res.NewAssets)
}

func TestBranchStopsAfterConsecutiveDuplicatePages(t *testing.T) {
	// Both variations resolve to the same ordering, so the second
	// branch sees only duplicates and must quit after DuplicateLimit
	// pages instead of walking all 50.
	items := []catalogItem{clip(1), clip(2), clip(3), clip(4), clip(5), clip(6), clip(7), clip(8)}
	cat := &fakeCatalog{
		pageSize: 2,
		pool:     map[string][]catalogItem{"a": items, "b": items},
	}
	srv := httptest.NewServer(http.HandlerFunc(cat.handler))
	defer srv.Close()

	eng, _ := newTestEngine(t, srv.URL+"/api/clips", Config{
		Concurrency:    1,
		MaxPages:       50,
		DuplicateLimit: 2,
	})
	res, err := eng.Run(context.Background(), []Variation{
		{Name: "a", Params: map[string]string{"sort": "a"}},
		{Name: "b", Params: map[string]string{"sort": "b"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 8, res.NewAssets)
	// branch a: 4 item pages + 1 empty; branch b: 2 all-duplicate pages
	assert.Equal(t, 7, cat.requestCount())
}

func TestRunRequiresEndpoint(t *testing.T) {
	eng, _ := newTestEngine(t, "", Config{})
	_, err := eng.Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestRunHonorsCancellation(t *testing.T) {
	cat := &fakeCatalog{
		pageSize: 2,
		pool:     map[string][]catalogItem{"": {clip(1), clip(2), clip(3), clip(4)}},
	}
	srv := httptest.NewServer(http.HandlerFunc(cat.handler))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	eng, _ := newTestEngine(t, srv.URL+"/api/clips", Config{})
	_, err := eng.Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFieldPathLookup(t *testing.T) {
	item := map[string]any{
		"meta": map[string]any{"id": float64(42)},
		"tags": []any{"one", "two"},
		"ok":   true,
	}
	assert.Equal(t, "42", stringAt(item, "meta.id"))
	assert.Equal(t, "one, two", stringAt(item, "tags"))
	assert.Equal(t, "true", stringAt(item, "ok"))
	assert.Equal(t, "", stringAt(item, "meta.missing"))
	assert.Equal(t, "", stringAt(item, "meta.id.deeper"))
	assert.Equal(t, "", stringAt(item, ""))
}
