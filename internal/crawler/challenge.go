package crawler

import "strings"

// Markers that identify anti-bot interstitials in the page title or
// early body text.
var challengeMarkers = []string{
	"just a moment",
	"checking your browser",
	"verify you are human",
	"verifying you are human",
	"attention required",
	"access denied",
	"are you a robot",
	"unusual traffic",
	"ddos protection",
	"captcha",
	"cf-challenge",
	"perimeterx",
	"px-captcha",
	"request blocked",
}

// isChallenge inspects the rendered title and the first chunk of the
// page body. Scanning the whole document would false-positive on
// pages that merely mention these phrases.
func isChallenge(title, html string) bool {
	probe := strings.ToLower(title)
	body := strings.ToLower(html)
	if len(body) > 4096 {
		body = body[:4096]
	}
	for _, m := range challengeMarkers {
		if strings.Contains(probe, m) || strings.Contains(body, m) {
			return true
		}
	}
	return false
}

// backoff is the per-orchestrator challenge delay multiplier: raised
// on each challenge hit, relaxed by successful pages.
type backoff struct {
	mult float64
}

func newBackoff() *backoff { return &backoff{mult: 1.0} }

func (b *backoff) raise() float64 {
	b.mult *= 2
	if b.mult > 8.0 {
		b.mult = 8.0
	}
	return b.mult
}

func (b *backoff) relax() float64 {
	b.mult *= 0.7
	if b.mult < 1.0 {
		b.mult = 1.0
	}
	return b.mult
}

func (b *backoff) factor() float64 { return b.mult }
