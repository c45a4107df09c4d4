// Package profile holds the declarative per-site rulesets that drive
// URL classification, filtering and metadata extraction. Profiles are
// configuration, not behavior: the orchestrator looks them up by name
// and stays agnostic of any particular site.
package profile

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// PageClass is the result of classifying a URL against a profile.
type PageClass int

const (
	Generic PageClass = iota
	Catalog
	Item
)

func (c PageClass) String() string {
	switch c {
	case Catalog:
		return "catalog"
	case Item:
		return "item"
	default:
		return "generic"
	}
}

// Query parameters stripped during URL normalization (trackers).
var trackingParams = map[string]struct{}{
	"utm_source": {}, "utm_medium": {}, "utm_campaign": {},
	"ref": {}, "fbclid": {}, "gclid": {}, "gad_source": {},
}

// Exclude path substrings shared by most profiles.
var commonExcludes = []string{
	"/login", "/register", "/signup", "/pricing", "/account", "/blog",
	"/about", "/careers", "/contact", "/legal", "/privacy",
	"/terms", "/help", "/support", "/faq", "/press",
	"javascript:", "mailto:", "tel:", "#",
}

// Profile describes how the crawler behaves on one site (or
// generically). Immutable after registration.
type Profile struct {
	Name        string
	Description string

	// Domains allowed for this profile; empty allows all.
	Domains  []string
	StartURL string

	// URL path substrings identifying listing pages and item pages,
	// plus an optional regex that overrides the item heuristics.
	CatalogPatterns []string
	ItemPatterns    []string
	ItemURLRegex    string
	ExcludePatterns []string

	// Video container extensions this profile records (m3u8, mp4, ...).
	VideoTypes []string
	// Only record stream URLs served from this host, when set.
	VideoCDNDomain string

	// Metadata-extraction recipe: field name -> regex with one capture
	// group, applied to the rendered page's visible text.
	MetadataSelectors map[string]string
	OGFallback        bool
	JSONLDFallback    bool

	// Catalog pagination: CSS selector of the "load more" control and
	// how many times to click it.
	LoadMoreSelector string
	LoadMoreClicks   int
	ScrollItems      bool

	itemRe  *regexp.Regexp
	videoRe *regexp.Regexp
}

// compile finishes construction: merges the common excludes and
// builds the item/video regexes once.
func (p *Profile) compile() error {
	p.ExcludePatterns = append(append([]string{}, commonExcludes...), p.ExcludePatterns...)
	if p.ItemURLRegex != "" {
		re, err := regexp.Compile(p.ItemURLRegex)
		if err != nil {
			return fmt.Errorf("profile %s: item regex: %w", p.Name, err)
		}
		p.itemRe = re
	}
	if len(p.VideoTypes) == 0 {
		p.VideoTypes = []string{"m3u8", "mp4", "webm", "mpd"}
	}
	exts := strings.Join(p.VideoTypes, "|")
	re, err := regexp.Compile(`(?i)https?://[^\s"'<>]+\.(?:` + exts + `)(?:\?[^\s"'<>]*)?`)
	if err != nil {
		return fmt.Errorf("profile %s: video regex: %w", p.Name, err)
	}
	p.videoRe = re
	return nil
}

// IsAllowedDomain reports whether host falls within the profile's
// allowed domains. An empty domain list allows everything.
func (p *Profile) IsAllowedDomain(host string) bool {
	if len(p.Domains) == 0 {
		return true
	}
	for _, d := range p.Domains {
		if strings.Contains(host, d) {
			return true
		}
	}
	return false
}

// IsExcluded reports whether the URL contains any excluded path substring.
func (p *Profile) IsExcluded(rawURL string) bool {
	for _, pat := range p.ExcludePatterns {
		if strings.Contains(rawURL, pat) {
			return true
		}
	}
	return false
}

// Classify buckets a URL as an item page, a catalog page, or generic.
// Item detection prefers the profile regex; without one it combines
// the item path patterns with a numeric-final-segment heuristic,
// trading a little precision for not having to verify every URL.
func (p *Profile) Classify(rawURL string) PageClass {
	if p.isItem(rawURL) {
		return Item
	}
	for _, pat := range p.CatalogPatterns {
		if strings.Contains(rawURL, pat) {
			return Catalog
		}
	}
	return Generic
}

func (p *Profile) isItem(rawURL string) bool {
	if p.itemRe != nil {
		return p.itemRe.MatchString(rawURL)
	}
	if len(p.ItemPatterns) == 0 {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.TrimRight(u.Path, "/")
	matched := false
	for _, pat := range p.ItemPatterns {
		if strings.Contains(path, pat) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	final := path[strings.LastIndex(path, "/")+1:]
	return final != "" && isDigits(final)
}

// NormalizeURL strips the fragment and tracking query parameters and
// returns the canonical form. The second return is false for URLs
// outside the profile's allowed domains or that fail to parse.
func (p *Profile) NormalizeURL(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	if !p.IsAllowedDomain(u.Host) {
		return "", false
	}
	q := u.Query()
	for k := range q {
		if _, skip := trackingParams[k]; skip {
			q.Del(k)
		}
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String(), true
}

// AssetIDFromURL pulls the asset's numeric id out of an item URL:
// the item regex's first capture group when the profile has one,
// otherwise the final numeric path segment.
func (p *Profile) AssetIDFromURL(rawURL string) string {
	if p.itemRe != nil {
		if m := p.itemRe.FindStringSubmatch(rawURL); len(m) > 1 {
			return m[1]
		}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	path := strings.TrimRight(u.Path, "/")
	final := path[strings.LastIndex(path, "/")+1:]
	if isDigits(final) {
		return final
	}
	// Slug-with-trailing-id form, e.g. "ocean-waves-857251".
	if i := strings.LastIndex(final, "-"); i >= 0 && isDigits(final[i+1:]) {
		return final[i+1:]
	}
	return ""
}

// VideoURLPattern returns the compiled regex matching any stream URL
// of this profile's video types.
func (p *Profile) VideoURLPattern() *regexp.Regexp {
	return p.videoRe
}

// IsVideoURL reports whether raw is a stream URL this profile records:
// it must match the video pattern and, when VideoCDNDomain is set, be
// served from that host or a subdomain of it.
func (p *Profile) IsVideoURL(raw string) bool {
	if !p.videoRe.MatchString(raw) {
		return false
	}
	if p.VideoCDNDomain == "" {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	cdn := strings.ToLower(p.VideoCDNDomain)
	return host == cdn || strings.HasSuffix(host, "."+cdn)
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}
