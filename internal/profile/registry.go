package profile

import (
	"fmt"
	"sort"
	"strings"
)

// Registry maps profile names to registered profiles. Built once at
// startup and passed into each orchestrator instance; there is no
// process-wide mutable active profile.
type Registry struct {
	profiles map[string]*Profile
}

// NewRegistry returns a registry pre-loaded with the built-in profiles.
func NewRegistry() *Registry {
	r := &Registry{profiles: make(map[string]*Profile)}
	for _, p := range builtins() {
		if err := r.Register(p); err != nil {
			panic(err) // built-ins are static; a bad regex is a programming error
		}
	}
	return r
}

// Register compiles and stores a profile. Profiles are immutable once
// registered; re-registering a name replaces the old entry.
func (r *Registry) Register(p *Profile) error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	if err := p.compile(); err != nil {
		return err
	}
	r.profiles[strings.ToLower(p.Name)] = p
	return nil
}

// Get looks up a profile by name, case-insensitively.
func (r *Registry) Get(name string) (*Profile, bool) {
	p, ok := r.profiles[strings.ToLower(name)]
	return p, ok
}

// Names returns the registered display names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for _, p := range r.profiles {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

func builtins() []*Profile {
	return []*Profile{
		{
			Name:            "Artlist",
			Description:     "Artlist.io stock footage, HLS streams",
			Domains:         []string{"artlist.io"},
			StartURL:        "https://artlist.io/stock-footage/",
			CatalogPatterns: []string{"/stock-footage"},
			ItemPatterns:    []string{"/stock-footage/"},
			ExcludePatterns: []string{
				"/sfx", "/stock-music", "/video-templates", "/song/",
				"/sound-effects", "/templates", "/playlist", "/browse",
				"/editorial", "/enterprise", "/teams", "/voice-over",
				"/royalty-free-music", "/luts", "/tools", "/favorites",
				"/downloads", "/spotlight", "/page/pricing",
			},
			ItemURLRegex: `/stock-footage/.+/\d{4,}$`,
			VideoTypes:   []string{"m3u8"},
			ScrollItems:  true,
			MetadataSelectors: map[string]string{
				"asset_id":   `Clip\s+ID\s+(\d+)`,
				"resolution": `Resolution\s+([\d]{3,4}\s*[xX\x{00d7}]\s*[\d]{3,4})`,
				"duration":   `Length\s+([\d:]{4,8})`,
				"frame_rate": `Frame\s+Rate\s+(\d+)`,
				"camera":     `Camera\s+([^\n\r]{2,50}?)(?:\n|\r|Available)`,
				"formats":    `Available\s+Formats\s+((?:(?:HD|SD|4K|2K|ProRes|MP4|MOV|RAW)\s*)+)`,
				"creator":    `Clip by\s*\n?\s*([^\n\r]{2,50})`,
				"collection": `Part of\s*\n?\s*([^\n\r]{2,60})`,
			},
			OGFallback: true,
		},
		{
			Name:            "Pexels",
			Description:     "Pexels.com free stock videos, direct MP4 renditions",
			Domains:         []string{"pexels.com", "www.pexels.com"},
			StartURL:        "https://www.pexels.com/videos/",
			CatalogPatterns: []string{"/videos/", "/search/videos/", "/collections/"},
			ItemPatterns:    []string{"/video/"},
			ExcludePatterns: []string{
				"/download/", "/license/", "/photo/", "/ja-jp/", "/ko-kr/",
				"/de-de/", "/fr-fr/", "/es-es/", "/pt-br/", "/zh-cn/", "/zh-tw/",
				"/ru-ru/", "/it-it/", "/nl-nl/", "/pl-pl/", "/sv-se/", "/tr-tr/",
			},
			ItemURLRegex:     `pexels\.com/video/[^/]+-\d+/?$`,
			VideoTypes:       []string{"mp4", "webm"},
			VideoCDNDomain:   "videos.pexels.com",
			ScrollItems:      true,
			OGFallback:       true,
			JSONLDFallback:   true,
			LoadMoreSelector: `[class*="loadMore"], [class*="LoadMore"]`,
			LoadMoreClicks:   15,
		},
		{
			Name:            "Pixabay",
			Description:     "Pixabay.com free stock videos",
			Domains:         []string{"pixabay.com", "www.pixabay.com"},
			StartURL:        "https://pixabay.com/videos/",
			CatalogPatterns: []string{"/videos/"},
			ItemPatterns:    []string{"/videos/"},
			ItemURLRegex:    `/videos/[^/]+-\d+/?$`,
			VideoTypes:      []string{"mp4", "webm"},
			ScrollItems:     true,
			OGFallback:      true,
			JSONLDFallback:  true,
		},
		{
			Name:            "Storyblocks",
			Description:     "Storyblocks.com stock video, HLS streams",
			Domains:         []string{"storyblocks.com", "www.storyblocks.com"},
			StartURL:        "https://www.storyblocks.com/video/",
			CatalogPatterns: []string{"/video/"},
			ItemPatterns:    []string{"/video/stock/"},
			ItemURLRegex:    `/video/stock/.+`,
			VideoTypes:      []string{"m3u8", "mp4", "webm"},
			ScrollItems:     true,
			OGFallback:      true,
			JSONLDFallback:  true,
		},
		{
			Name:           "Generic",
			Description:    "Auto-detect video streams on any site",
			VideoTypes:     []string{"m3u8", "mp4", "webm", "mpd", "mov"},
			ScrollItems:    true,
			OGFallback:     true,
			JSONLDFallback: true,
		},
	}
}
