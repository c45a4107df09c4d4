package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/delivery/http/handler"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/delivery/http/middleware"
)

func New(h *handler.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging)
	r.Use(middleware.Metrics)

	r.Route("/crawl", func(r chi.Router) {
		r.Post("/start", h.HandleStartCrawl)
		r.Post("/pause", h.HandlePauseCrawl)
		r.Post("/resume", h.HandleResumeCrawl)
		r.Post("/stop", h.HandleStopCrawl)
	})

	r.Post("/downloads", h.HandleEnqueueDownloads)
	r.Post("/downloads/stop", h.HandleStopDownloads)
	r.Post("/harvest/run", h.HandleRunHarvest)

	r.Route("/assets", func(r chi.Router) {
		r.Get("/", h.HandleListAssets)
		r.Get("/filters", h.HandleAssetFilters)
		r.Get("/{assetID}", h.HandleGetAsset)
		r.Get("/{assetID}/collections", h.HandleAssetCollections)
		r.Post("/{assetID}/rating", h.HandleRateAsset)
		r.Post("/{assetID}/notes", h.HandleSetNotes)
		r.Post("/{assetID}/tags", h.HandleSetTags)
		r.Post("/{assetID}/favorite", h.HandleToggleFavorite)
	})

	r.Route("/collections", func(r chi.Router) {
		r.Get("/", h.HandleListCollections)
		r.Post("/", h.HandleCreateCollection)
		r.Delete("/{collectionID}", h.HandleDeleteCollection)
		r.Post("/{collectionID}/assets/{assetID}", h.HandleAddToCollection)
		r.Delete("/{collectionID}/assets/{assetID}", h.HandleRemoveFromCollection)
	})

	r.Route("/searches", func(r chi.Router) {
		r.Get("/", h.HandleListSavedSearches)
		r.Post("/", h.HandleSaveSearch)
		r.Delete("/{searchID}", h.HandleDeleteSavedSearch)
	})

	r.Post("/archive/clear", h.HandleClearArchive)
	r.Get("/stats", h.HandleStats)
	r.Get("/events", h.HandleEvents)
	r.Get("/healthz", h.HandleHealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
