// Package extract parses fetched page HTML into asset metadata,
// outbound links and catalog cards. Extraction is best-effort
// throughout: a miss leaves the field empty, it is never an error.
package extract

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/entity"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/profile"
)

// Card is one entry scraped from a catalog page: enough to enqueue
// the item page and, when the card embeds a preview, to record a
// stream candidate immediately.
type Card struct {
	PageURL      string
	StreamURL    string
	ThumbnailURL string
	Title        string
	AssetID      string
}

// AssetFromItemPage builds the asset record for an item page using an
// ordered fallback chain: structured data first (JSON-LD, OpenGraph),
// then the profile's text recipes, then page heuristics. Each stage
// only fills fields the earlier stages left empty.
func AssetFromItemPage(pageURL, html string, p *profile.Profile) *entity.Asset {
	a := &entity.Asset{
		AssetID:    p.AssetIDFromURL(pageURL),
		SourceURL:  pageURL,
		SourceSite: p.Name,
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return a
	}

	if p.JSONLDFallback {
		applyJSONLD(doc, a)
	}
	if p.OGFallback {
		applyOpenGraph(doc, a)
	}
	applyRecipes(doc, p, a)

	if a.Title == "" {
		a.Title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	if a.Title == "" {
		a.Title = titleFromSlug(pageURL)
	}
	if a.Title == "" {
		a.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	return a
}

// videoObject is the subset of schema.org VideoObject we consume.
type videoObject struct {
	Type         string        `json:"@type"`
	Name         string        `json:"name"`
	ThumbnailURL jsonString    `json:"thumbnailUrl"`
	ContentURL   string        `json:"contentUrl"`
	Duration     string        `json:"duration"`
	Creator      jsonPerson    `json:"creator"`
	Author       jsonPerson    `json:"author"`
	Graph        []videoObject `json:"@graph"`
}

// jsonString tolerates "x" and ["x", ...] forms.
type jsonString string

func (s *jsonString) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*s = jsonString(one)
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err == nil && len(many) > 0 {
		*s = jsonString(many[0])
	}
	return nil
}

// jsonPerson tolerates "Name" and {"name": "Name"} forms.
type jsonPerson string

func (p *jsonPerson) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*p = jsonPerson(one)
		return nil
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(b, &obj); err == nil {
		*p = jsonPerson(obj.Name)
	}
	return nil
}

func applyJSONLD(doc *goquery.Document, a *entity.Asset) {
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var objs []videoObject
		text := strings.TrimSpace(s.Text())
		var one videoObject
		if err := json.Unmarshal([]byte(text), &one); err == nil {
			objs = append(objs, one)
			objs = append(objs, one.Graph...)
		} else if err := json.Unmarshal([]byte(text), &objs); err != nil {
			return true
		}
		for _, v := range objs {
			if !strings.EqualFold(v.Type, "VideoObject") {
				continue
			}
			fillEmpty(&a.Title, v.Name)
			fillEmpty(&a.ThumbnailURL, string(v.ThumbnailURL))
			fillEmpty(&a.Duration, normalizeISODuration(v.Duration))
			creator := string(v.Creator)
			if creator == "" {
				creator = string(v.Author)
			}
			fillEmpty(&a.Creator, creator)
			return false
		}
		return true
	})
}

func applyOpenGraph(doc *goquery.Document, a *entity.Asset) {
	og := map[string]string{}
	doc.Find(`meta[property^="og:"]`).Each(func(_ int, s *goquery.Selection) {
		prop, _ := s.Attr("property")
		content, _ := s.Attr("content")
		if content != "" {
			if _, dup := og[prop]; !dup {
				og[prop] = content
			}
		}
	})
	fillEmpty(&a.Title, strings.TrimSpace(og["og:title"]))
	fillEmpty(&a.ThumbnailURL, og["og:image"])
	fillEmpty(&a.Duration, og["og:video:duration"])
}

// applyRecipes runs the profile's field regexes against the page's
// visible text. Each value is the recipe's first capture group.
func applyRecipes(doc *goquery.Document, p *profile.Profile, a *entity.Asset) {
	if len(p.MetadataSelectors) == 0 {
		return
	}
	body := doc.Clone()
	body.Find("script, style, noscript").Remove()
	text := body.Find("body").Text()

	for field, pattern := range p.MetadataSelectors {
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		m := re.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		val := strings.TrimSpace(m[1])
		switch field {
		case "asset_id":
			fillEmpty(&a.AssetID, val)
		case "title":
			fillEmpty(&a.Title, val)
		case "creator":
			fillEmpty(&a.Creator, val)
		case "collection":
			fillEmpty(&a.Collection, val)
		case "resolution":
			fillEmpty(&a.Resolution, val)
		case "duration":
			fillEmpty(&a.Duration, val)
		case "frame_rate":
			fillEmpty(&a.FrameRate, val)
		case "camera":
			fillEmpty(&a.Camera, val)
		case "formats":
			fillEmpty(&a.Formats, val)
		case "tags":
			fillEmpty(&a.Tags, val)
		}
	}
}

// Links extracts every same-site outbound link: absolute, normalized,
// unexcluded, deduplicated in document order.
func Links(pageURL, html string, p *profile.Profile) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	seen := map[string]struct{}{}
	var out []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs := resolve(base, href)
		if abs == "" {
			return
		}
		norm, ok := p.NormalizeURL(abs)
		if !ok || p.IsExcluded(norm) || norm == pageURL {
			return
		}
		if _, dup := seen[norm]; dup {
			return
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	})
	return out
}

// StreamCandidates scans raw page source for URLs matching the
// profile's video pattern. Catches player config blobs that never
// render into the DOM.
func StreamCandidates(html string, p *profile.Profile) []string {
	matches := p.VideoURLPattern().FindAllString(html, -1)
	seen := map[string]struct{}{}
	var out []string
	for _, m := range matches {
		m = strings.TrimRight(m, `\`)
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// CatalogCards scrapes a catalog page with two strategies: embedded
// preview <video> elements, then item links carrying a thumbnail.
func CatalogCards(pageURL, html string, p *profile.Profile) []Card {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	byID := map[string]int{}
	var cards []Card
	add := func(c Card) {
		if c.AssetID == "" && c.PageURL != "" {
			c.AssetID = p.AssetIDFromURL(c.PageURL)
		}
		if c.AssetID == "" {
			return
		}
		if i, dup := byID[c.AssetID]; dup {
			// Merge: a later strategy may fill what the first missed.
			fillEmpty(&cards[i].StreamURL, c.StreamURL)
			fillEmpty(&cards[i].ThumbnailURL, c.ThumbnailURL)
			fillEmpty(&cards[i].Title, c.Title)
			fillEmpty(&cards[i].PageURL, c.PageURL)
			return
		}
		byID[c.AssetID] = len(cards)
		cards = append(cards, c)
	}

	doc.Find("video").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if src == "" {
			src, _ = s.Find("source").First().Attr("src")
		}
		src = resolve(base, src)
		if src == "" || !p.VideoURLPattern().MatchString(src) {
			return
		}
		c := Card{StreamURL: src}
		c.ThumbnailURL = resolve(base, attrOf(s, "poster"))
		if anchor := s.Closest("a[href]"); anchor.Length() > 0 {
			href, _ := anchor.Attr("href")
			if abs := resolve(base, href); abs != "" {
				if norm, ok := p.NormalizeURL(abs); ok {
					c.PageURL = norm
				}
			}
		}
		if c.AssetID = EmbeddedID(src); c.AssetID == "" && c.PageURL != "" {
			c.AssetID = p.AssetIDFromURL(c.PageURL)
		}
		add(c)
	})

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs := resolve(base, href)
		if abs == "" {
			return
		}
		norm, ok := p.NormalizeURL(abs)
		if !ok || p.IsExcluded(norm) {
			return
		}
		// A link counts as a card when the profile classifies it as an
		// item page, or when it carries a thumbnail and an extractable id.
		img := s.Find("img").First()
		if p.Classify(norm) != profile.Item {
			if img.Length() == 0 || p.AssetIDFromURL(norm) == "" {
				return
			}
		}
		c := Card{PageURL: norm}
		if img.Length() > 0 {
			c.ThumbnailURL = resolve(base, attrOf(img, "src"))
			c.Title, _ = img.Attr("alt")
		}
		if c.Title == "" {
			c.Title, _ = s.Attr("title")
		}
		c.Title = strings.TrimSpace(c.Title)
		add(c)
	})
	return cards
}

var embeddedIDRe = regexp.MustCompile(`/(\d{4,})[/._-]`)

// EmbeddedID pulls the first plausible numeric asset id embedded in a
// URL path, used to group stream candidates by the asset they belong to.
func EmbeddedID(u string) string {
	if m := embeddedIDRe.FindStringSubmatch(u); m != nil {
		return m[1]
	}
	return ""
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	return abs.String()
}

func attrOf(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return v
}

func fillEmpty(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
}

var isoDurationRe = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?$`)

// normalizeISODuration turns "PT1M30S" into "1:30"; anything that is
// not ISO 8601 passes through unchanged.
func normalizeISODuration(d string) string {
	m := isoDurationRe.FindStringSubmatch(d)
	if m == nil {
		return d
	}
	h, _ := strconv.Atoi(zeroIfEmpty(m[1]))
	min, _ := strconv.Atoi(zeroIfEmpty(m[2]))
	secF, _ := strconv.ParseFloat(zeroIfEmpty(m[3]), 64)
	min += h * 60
	sec := int(secF)
	if min == 0 && sec == 0 {
		return d
	}
	return fmt.Sprintf("%d:%02d", min, sec)
}

func zeroIfEmpty(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

var slugStripRe = regexp.MustCompile(`-\d+$`)

// titleFromSlug recovers a human title from the URL's final path
// segment, e.g. "aerial-ocean-waves-857251" -> "Aerial Ocean Waves".
func titleFromSlug(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	path := strings.TrimRight(u.Path, "/")
	seg := path[strings.LastIndex(path, "/")+1:]
	seg = slugStripRe.ReplaceAllString(seg, "")
	if seg == "" || isAllDigits(seg) {
		return ""
	}
	words := strings.Split(strings.ReplaceAll(seg, "_", "-"), "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.TrimSpace(strings.Join(words, " "))
}

func isAllDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}
