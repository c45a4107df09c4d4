package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want int
	}{
		{"empty", "", 0},
		{"filename resolution landscape", "https://cdn.example.com/video-files/123/1920_1080_25fps.mp4", 1920},
		{"filename resolution portrait", "https://cdn.example.com/video-files/123/1080_1920_30fps.mp4", 1920},
		{"uhd token", "https://cdn.example.com/file-uhd_123.mp4", 2560},
		{"hd token", "https://cdn.example.com/file-hd_123.mp4", 1080},
		{"sd token", "https://cdn.example.com/file-sd_123.mp4", 360},
		{"adaptive manifest", "https://stream.example.com/master.m3u8?token=x", 2000},
		{"unknown", "https://cdn.example.com/clip.mp4", 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.url))
		})
	}
}

func TestResolve(t *testing.T) {
	hd := "https://cdn.example.com/video-files/9/1280_720_25fps.mp4"
	fhd := "https://cdn.example.com/video-files/9/1920_1080_25fps.mp4"

	assert.Equal(t, SetNew, Resolve("", hd))
	assert.Equal(t, Same, Resolve(hd, hd))
	assert.Equal(t, Upgraded, Resolve(hd, fhd))
	assert.Equal(t, Kept, Resolve(fhd, hd))
}

func TestResolveMonotonic(t *testing.T) {
	// After any sequence of resolutions, the stored URL's score must
	// be >= every candidate ever submitted.
	candidates := []string{
		"https://c.example.com/v/640_360_25fps.mp4",
		"https://c.example.com/v/1920_1080_25fps.mp4",
		"https://c.example.com/v/1280_720_25fps.mp4",
		"https://c.example.com/master.m3u8",
		"https://c.example.com/v-sd_1.mp4",
	}
	stored := ""
	for _, c := range candidates {
		switch Resolve(stored, c) {
		case SetNew, Upgraded:
			stored = c
		}
	}
	for _, c := range candidates {
		assert.GreaterOrEqual(t, Score(stored), Score(c), "candidate %s", c)
	}
}

func TestBestOf(t *testing.T) {
	urls := []string{
		"https://c.example.com/v/1280_720_25fps.mp4",
		"https://c.example.com/v/3840_2160_25fps.mp4",
		"https://c.example.com/v/1920_1080_25fps.mp4",
	}
	assert.Equal(t, urls[1], BestOf(urls))
	assert.Equal(t, "", BestOf(nil))
}

func TestRenditionFromURL(t *testing.T) {
	r, ok := RenditionFromURL("https://c.example.com/v/1920_1080_25fps.mp4")
	assert.True(t, ok)
	assert.Equal(t, "1920x1080", r.Resolution)
	assert.Equal(t, "25", r.FrameRate)

	r, ok = RenditionFromURL("https://c.example.com/clip-uhd_00441.mp4")
	assert.True(t, ok)
	assert.Equal(t, "UHD", r.Format)
	assert.Empty(t, r.Resolution)

	_, ok = RenditionFromURL("https://c.example.com/clip.mp4")
	assert.False(t, ok)
}
