// Package stream scores candidate video stream URLs and decides
// whether a newly discovered URL should replace a stored one. The
// crawl and harvest paths both resolve through this package, so an
// asset's stored URL upgrades identically regardless of how the
// candidate was discovered.
package stream

import (
	"fmt"
	"regexp"
	"strings"
)

// Decision is the outcome of comparing a candidate URL against the
// stream URL already stored for an asset.
type Decision string

const (
	SetNew   Decision = "set_new"
	Same     Decision = "same"
	Upgraded Decision = "upgraded"
	Kept     Decision = "kept"
	NotFound Decision = "not_found"
)

var (
	renditionRe = regexp.MustCompile(`(\d{3,4})_(\d{3,4})_(\d+)fps`)
	qualityRe   = regexp.MustCompile(`(?i)-(uhd|hd|sd)_`)
)

// Score rates a stream URL by quality; higher is better. Resolution
// encoded in the filename wins, then a quality-tier token, then the
// adaptive-manifest fallback: an .m3u8 rendition ladder usually tops
// out well above any single progressive file.
func Score(url string) int {
	if url == "" {
		return 0
	}
	if m := renditionRe.FindStringSubmatch(url); m != nil {
		w, h := atoi(m[1]), atoi(m[2])
		if w > h {
			return w
		}
		return h
	}
	if strings.Contains(strings.ToLower(url), "uhd") {
		return 2560
	}
	if strings.Contains(url, "-hd_") {
		return 1080
	}
	if strings.Contains(url, "-sd_") {
		return 360
	}
	if strings.Contains(url, ".m3u8") {
		return 2000
	}
	return 100
}

// Resolve decides what to do with candidate given the existing stored
// URL. The stored URL only ever moves to a strictly higher score.
func Resolve(existing, candidate string) Decision {
	switch {
	case existing == "":
		return SetNew
	case existing == candidate:
		return Same
	case Score(candidate) > Score(existing):
		return Upgraded
	default:
		return Kept
	}
}

// BestOf returns the highest-scoring URL from a set of candidates for
// the same asset. Empty input yields "".
func BestOf(urls []string) string {
	best, bestScore := "", -1
	for _, u := range urls {
		if s := Score(u); s > bestScore {
			best, bestScore = u, s
		}
	}
	return best
}

// Rendition is metadata re-derived from a stream URL's filename.
type Rendition struct {
	Resolution string // "1920x1080"
	FrameRate  string // "25"
	Format     string // "UHD", "HD", "SD"
}

// RenditionFromURL best-effort parses resolution, frame rate and
// quality tier out of a candidate URL. Returns false when the URL
// encodes none of them.
func RenditionFromURL(url string) (Rendition, bool) {
	var r Rendition
	ok := false
	if m := renditionRe.FindStringSubmatch(url); m != nil {
		r.Resolution = fmt.Sprintf("%sx%s", m[1], m[2])
		r.FrameRate = m[3]
		ok = true
	}
	if m := qualityRe.FindStringSubmatch(url); m != nil {
		r.Format = strings.ToUpper(m[1])
		ok = true
	}
	return r, ok
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}
