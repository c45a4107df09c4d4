package chromedp_fetcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/profile"
)

func TestUnescapeJSON(t *testing.T) {
	body := `{"src":"https:\/\/videos.pexels.com\/file.mp4?a=1&b=2"}`
	assert.Contains(t, unescapeJSON(body), "https://videos.pexels.com/file.mp4?a=1&b=2")
}

func TestCaptureDeduplicatesAndFilters(t *testing.T) {
	r := profile.NewRegistry()
	pexels, ok := r.Get("Pexels")
	require.True(t, ok)

	capt := &capture{
		pattern: pexels.IsVideoURL,
		seen:    make(map[string]struct{}),
	}
	for _, u := range []string{
		"https://videos.pexels.com/video-files/857251/857251-hd.mp4",
		"https://videos.pexels.com/video-files/857251/857251-hd.mp4",
		"https://tracker.example.net/pixel.mp4",
	} {
		if capt.pattern(u) {
			capt.add(u)
		}
	}
	assert.Equal(t, []string{"https://videos.pexels.com/video-files/857251/857251-hd.mp4"}, capt.urls)
}
