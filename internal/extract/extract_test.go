package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/profile"
)

func genericProfile(t *testing.T) *profile.Profile {
	t.Helper()
	reg := profile.NewRegistry()
	p, ok := reg.Get("generic")
	require.True(t, ok)
	return p
}

func namedProfile(t *testing.T, name string) *profile.Profile {
	t.Helper()
	reg := profile.NewRegistry()
	p, ok := reg.Get(name)
	require.True(t, ok)
	return p
}

const itemPageHTML = `<!doctype html><html><head>
<title>Site | Player</title>
<meta property="og:title" content="Aerial Ocean Waves">
<meta property="og:image" content="https://cdn.example/thumb/857251.jpg">
<script type="application/ld+json">
{"@type":"VideoObject","name":"Aerial Ocean Waves at Dawn",
 "thumbnailUrl":"https://cdn.example/ld/857251.jpg",
 "duration":"PT1M30S",
 "creator":{"@type":"Person","name":"Jane Filmmaker"}}
</script>
</head><body>
<h1>Fallback Heading</h1>
<p>Clip ID 857251</p>
<p>Resolution 3840x2160</p>
</body></html>`

func TestAssetFromItemPageFallbackChain(t *testing.T) {
	p := namedProfile(t, "pexels")
	a := AssetFromItemPage("https://www.pexels.com/video/aerial-ocean-857251/", itemPageHTML, p)

	assert.Equal(t, "857251", a.AssetID)
	assert.Equal(t, "Aerial Ocean Waves at Dawn", a.Title, "structured data wins over og and headings")
	assert.Equal(t, "Jane Filmmaker", a.Creator)
	assert.Equal(t, "https://cdn.example/ld/857251.jpg", a.ThumbnailURL)
	assert.Equal(t, "1:30", a.Duration)
	assert.Equal(t, "Pexels", a.SourceSite)
}

func TestAssetFromItemPageTextRecipes(t *testing.T) {
	p := namedProfile(t, "artlist")
	a := AssetFromItemPage("https://artlist.io/stock-footage/clip/aerial-ocean/857251", itemPageHTML, p)

	assert.Equal(t, "857251", a.AssetID)
	assert.Equal(t, "Aerial Ocean Waves", a.Title, "og title; JSON-LD is off for this profile")
	assert.Equal(t, "3840x2160", a.Resolution)
}

func TestAssetFromItemPageHeuristicsOnly(t *testing.T) {
	p := genericProfile(t)
	a := AssetFromItemPage("https://example.com/video/rainy-street-4412", `<html><body></body></html>`, p)
	assert.Equal(t, "4412", a.AssetID)
	assert.Equal(t, "Rainy Street", a.Title)
}

func TestLinks(t *testing.T) {
	p := genericProfile(t)
	html := `<html><body>
	<a href="/video/a-1?utm_source=feed">A</a>
	<a href="https://example.com/video/b-2#player">B</a>
	<a href="https://example.com/video/a-1">A again</a>
	<a href="https://example.com/login">excluded</a>
	<a href="mailto:hi@example.com">mail</a>
	</body></html>`

	got := Links("https://example.com/browse", html, p)
	assert.Equal(t, []string{
		"https://example.com/video/a-1",
		"https://example.com/video/b-2",
	}, got)
}

func TestStreamCandidates(t *testing.T) {
	p := genericProfile(t)
	html := `var cfg = {"src":"https://cdn.example/v/4412/master.m3u8?tok=1",
	 "mp4":"https://cdn.example/v/4412/hd.mp4"};
	 <img src="https://cdn.example/v/4412/poster.jpg">`

	got := StreamCandidates(html, p)
	assert.Equal(t, []string{
		"https://cdn.example/v/4412/master.m3u8?tok=1",
		"https://cdn.example/v/4412/hd.mp4",
	}, got)
}

func TestCatalogCards(t *testing.T) {
	p := genericProfile(t)
	html := `<html><body>
	<a href="/video/sunset-pier-9001">
	  <video poster="/thumbs/9001.jpg"><source src="https://cdn.example/previews/9001/preview.mp4"></video>
	</a>
	<a href="/video/city-night-9002"><img src="/thumbs/9002.jpg" alt="City Night"></a>
	<a href="/about">not a card</a>
	</body></html>`

	cards := CatalogCards("https://example.com/browse", html, p)
	require.Len(t, cards, 2)

	assert.Equal(t, "9001", cards[0].AssetID)
	assert.Equal(t, "https://cdn.example/previews/9001/preview.mp4", cards[0].StreamURL)
	assert.Equal(t, "https://example.com/thumbs/9001.jpg", cards[0].ThumbnailURL)
	assert.Equal(t, "https://example.com/video/sunset-pier-9001", cards[0].PageURL)

	assert.Equal(t, "9002", cards[1].AssetID)
	assert.Equal(t, "City Night", cards[1].Title)
	assert.Empty(t, cards[1].StreamURL)
}

func TestEmbeddedID(t *testing.T) {
	assert.Equal(t, "857251", EmbeddedID("https://cdn.example/video-files/857251/hd_1920_1080_25fps.mp4"))
	assert.Equal(t, "", EmbeddedID("https://cdn.example/assets/master.m3u8"))
}

func TestNormalizeISODuration(t *testing.T) {
	assert.Equal(t, "1:30", normalizeISODuration("PT1M30S"))
	assert.Equal(t, "61:05", normalizeISODuration("PT1H1M5S"))
	assert.Equal(t, "0:42", normalizeISODuration("PT42S"))
	assert.Equal(t, "2:15", normalizeISODuration("2:15"), "non-ISO passes through")
}
