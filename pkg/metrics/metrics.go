package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PagesCrawledTotal   *prometheus.CounterVec
	PageFetchDuration   *prometheus.HistogramVec
	AssetsFoundTotal    *prometheus.CounterVec
	StreamUpgradesTotal *prometheus.CounterVec
	QueueDepth          *prometheus.GaugeVec
	ChallengeBackoff    prometheus.Gauge
	DownloadsTotal      *prometheus.CounterVec
	DownloadDuration    prometheus.Histogram
	DownloadBytesTotal  prometheus.Counter
	HarvestPagesTotal   *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
)

var initOnce sync.Once

// Init registers the collectors with the default registry. Safe to
// call more than once.
func Init() {
	initOnce.Do(initAll)
}

func initAll() {
	PagesCrawledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pages_crawled_total",
			Help: "Pages processed by the crawl loop.",
		},
		[]string{"profile", "class", "status"}, // status: done, failed, challenged
	)

	PageFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "page_fetch_duration_seconds",
			Help:    "Browser fetch duration per page.",
			Buckets: []float64{1, 5, 10, 15, 30, 60, 120},
		},
		[]string{"profile"},
	)

	AssetsFoundTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assets_found_total",
			Help: "Assets discovered, by site and novelty.",
		},
		[]string{"site", "new"},
	)

	StreamUpgradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_upgrades_total",
			Help: "Stream URL resolution outcomes.",
		},
		[]string{"decision"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crawl_queue_depth",
			Help: "Current number of URLs in the crawl queue.",
		},
		[]string{"profile"},
	)

	ChallengeBackoff = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "challenge_backoff_multiplier",
			Help: "Current anti-bot backoff delay multiplier.",
		},
	)

	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "downloads_total",
			Help: "Download attempts by outcome and failure kind.",
		},
		[]string{"outcome", "kind"},
	)

	DownloadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "download_duration_seconds",
			Help:    "Wall time of completed downloads.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	DownloadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "download_bytes_total",
			Help: "Bytes of remuxed output written to disk.",
		},
	)

	HarvestPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_pages_total",
			Help: "Catalog API pages fetched by the harvest engine.",
		},
		[]string{"site", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Control server requests by method, path and status.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Control server request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
}
