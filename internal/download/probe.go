package download

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Prober checks that a stream URL is still served before a worker
// commits to the remux. Injectable for tests.
type Prober interface {
	Probe(ctx context.Context, url string) FailureKind
}

// HTTPProber probes with HEAD, falling back to a ranged GET for
// origins that reject HEAD.
type HTTPProber struct {
	Client  *http.Client
	Timeout time.Duration
}

func NewHTTPProber() *HTTPProber {
	return &HTTPProber{
		Client:  &http.Client{Timeout: 15 * time.Second},
		Timeout: 15 * time.Second,
	}
}

func (p *HTTPProber) Probe(ctx context.Context, url string) FailureKind {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	status, kind := p.request(ctx, http.MethodHead, url)
	// Some CDNs 403 or 405 HEAD while happily serving GET, so only
	// the GET verdict is final for those.
	if kind == FailureTransient || status == http.StatusForbidden || status == http.StatusMethodNotAllowed {
		_, kind = p.request(ctx, http.MethodGet, url)
	}
	return kind
}

func (p *HTTPProber) request(ctx context.Context, method, url string) (int, FailureKind) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, FailureGone
	}
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 0, FailureCanceled
		}
		// Timeouts and connection errors are all worth retrying.
		return 0, FailureTransient
	}
	defer resp.Body.Close()
	return resp.StatusCode, classifyStatus(resp.StatusCode)
}

// classifyStatus maps the probe response onto the failure set. The
// permanent statuses mean the asset is gone at the origin; taking
// them as final avoids burning retry budget (and never leaves a
// zero-byte output file behind).
func classifyStatus(status int) FailureKind {
	switch {
	case status >= 200 && status < 400:
		return FailureNone
	case status == http.StatusNotFound,
		status == http.StatusGone,
		status == http.StatusForbidden,
		status == http.StatusUnavailableForLegalReasons:
		return FailureGone
	default:
		// 429, 5xx and the odd 4xx: transient.
		return FailureTransient
	}
}
