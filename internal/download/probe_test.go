package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func probeServer(t *testing.T, handler http.HandlerFunc) (*HTTPProber, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &HTTPProber{Client: srv.Client(), Timeout: 5 * time.Second}, srv.URL + "/stream.mp4"
}

// Some CDNs reject HEAD outright; the ranged GET fallback has to get
// the last word for 403 and 405 as well as transient statuses.
func TestProbeFallsBackToGETOnHeadRejection(t *testing.T) {
	for _, headStatus := range []int{http.StatusForbidden, http.StatusMethodNotAllowed} {
		var gets atomic.Int32
		p, url := probeServer(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodHead:
				w.WriteHeader(headStatus)
			case http.MethodGet:
				gets.Add(1)
				assert.Equal(t, "bytes=0-0", r.Header.Get("Range"))
				w.WriteHeader(http.StatusPartialContent)
			}
		})

		assert.Equal(t, FailureNone, p.Probe(context.Background(), url), headStatus)
		assert.Equal(t, int32(1), gets.Load(), headStatus)
	}
}

func TestProbePermanentSkipsFallback(t *testing.T) {
	var gets atomic.Int32
	p, url := probeServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			gets.Add(1)
		}
		w.WriteHeader(http.StatusNotFound)
	})

	assert.Equal(t, FailureGone, p.Probe(context.Background(), url))
	assert.Zero(t, gets.Load(), "a definitive HEAD answer needs no GET")
}

func TestProbeGoneWhenBothMethodsRejected(t *testing.T) {
	p, url := probeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	assert.Equal(t, FailureGone, p.Probe(context.Background(), url))
}
