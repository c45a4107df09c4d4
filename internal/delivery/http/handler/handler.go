package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/crawler"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/delivery/http/request"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/delivery/http/response"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/download"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/entity"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/event"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/harvest"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/repository"
)

const stopGrace = 10 * time.Second

// OrchestratorFactory builds a crawl run from a merged config. Each
// start request gets a fresh orchestrator over the shared store.
type OrchestratorFactory func(crawler.Config) *crawler.Orchestrator

// HarvesterFactory builds a sweep engine for one captured query.
type HarvesterFactory func(harvest.Config, harvest.QueryTemplate, harvest.FieldMap, string) *harvest.Engine

type Handler struct {
	base      crawler.Config
	orchFn    OrchestratorFactory
	harvestFn HarvesterFactory
	pool      *download.Pool
	store     repository.Store
	bus       *event.Bus
	log       *slog.Logger

	mu   sync.Mutex
	orch *crawler.Orchestrator
}

func NewHandler(base crawler.Config, orchFn OrchestratorFactory, harvestFn HarvesterFactory,
	pool *download.Pool, store repository.Store, bus *event.Bus, log *slog.Logger) *Handler {
	return &Handler{
		base:      base,
		orchFn:    orchFn,
		harvestFn: harvestFn,
		pool:      pool,
		store:     store,
		bus:       bus,
		log:       log,
	}
}

func (h *Handler) HandleStartCrawl(w http.ResponseWriter, r *http.Request) {
	var req request.StartCrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	cfg := h.base
	if len(req.Profiles) > 0 {
		cfg.Profiles = req.Profiles
	}
	if len(req.StartURLs) > 0 {
		cfg.StartURLs = req.StartURLs
	}
	if req.MaxDepth > 0 {
		cfg.MaxDepth = req.MaxDepth
	}
	if req.BatchSize > 0 {
		cfg.BatchSize = req.BatchSize
	}
	if req.Resume != nil {
		cfg.Resume = *req.Resume
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.orch != nil && h.orch.Running() {
		h.writeJSONError(w, "a crawl is already running", http.StatusConflict)
		return
	}

	orch := h.orchFn(cfg)
	// The crawl outlives the request.
	if err := orch.Start(context.Background()); err != nil {
		switch {
		case errors.Is(err, crawler.ErrNoProfiles), errors.Is(err, crawler.ErrNoStartURL),
			errors.Is(err, crawler.ErrUnknownProfile):
			h.writeJSONError(w, err.Error(), http.StatusBadRequest)
		default:
			h.log.Error("crawl start failed", "error", err)
			h.writeJSONError(w, "internal server error", http.StatusInternalServerError)
		}
		return
	}
	h.orch = orch
	h.writeJSON(w, http.StatusAccepted, response.ControlResponse{
		Status:  "success",
		Message: "crawl started",
	})
}

func (h *Handler) HandlePauseCrawl(w http.ResponseWriter, r *http.Request) {
	orch := h.Current()
	if orch == nil || !orch.Running() {
		h.writeJSONError(w, "no crawl is running", http.StatusConflict)
		return
	}
	orch.Pause()
	h.writeJSON(w, http.StatusOK, response.ControlResponse{Status: "success", Message: "crawl paused"})
}

func (h *Handler) HandleResumeCrawl(w http.ResponseWriter, r *http.Request) {
	orch := h.Current()
	if orch == nil || !orch.Running() {
		h.writeJSONError(w, "no crawl is running", http.StatusConflict)
		return
	}
	orch.Resume()
	h.writeJSON(w, http.StatusOK, response.ControlResponse{Status: "success", Message: "crawl resumed"})
}

func (h *Handler) HandleStopCrawl(w http.ResponseWriter, r *http.Request) {
	orch := h.Current()
	if orch == nil {
		h.writeJSONError(w, "no crawl is running", http.StatusConflict)
		return
	}
	orch.Stop(stopGrace)
	h.writeJSON(w, http.StatusOK, response.ControlResponse{Status: "success", Message: "crawl stopped"})
}

// Current returns the most recently started orchestrator, if any.
// Shutdown uses it to stop an in-flight crawl.
func (h *Handler) Current() *crawler.Orchestrator {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.orch
}

func (h *Handler) HandleEnqueueDownloads(w http.ResponseWriter, r *http.Request) {
	var req request.EnqueueDownloadsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.All && len(req.AssetIDs) == 0 {
		h.writeJSONError(w, "asset_ids or all is required", http.StatusBadRequest)
		return
	}

	if err := h.pool.Start(r.Context()); err != nil {
		h.log.Error("download pool start failed", "error", err)
		h.writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	queued := 0
	if req.All {
		n, err := h.pool.EnqueuePending(r.Context())
		if err != nil {
			h.log.Error("enqueue pending failed", "error", err)
			h.writeJSONError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		queued = n
	} else {
		for _, id := range req.AssetIDs {
			a, err := h.store.GetAsset(r.Context(), id)
			if err != nil {
				if errors.Is(err, repository.ErrAssetNotFound) {
					continue
				}
				h.log.Error("asset lookup failed", "asset_id", id, "error", err)
				h.writeJSONError(w, "internal server error", http.StatusInternalServerError)
				return
			}
			if h.pool.Enqueue(a) {
				queued++
			}
		}
	}
	h.writeJSON(w, http.StatusAccepted, response.DownloadsResponse{
		Status: "success",
		Queued: queued,
	})
}

func (h *Handler) HandleStopDownloads(w http.ResponseWriter, r *http.Request) {
	h.pool.Stop(stopGrace)
	h.writeJSON(w, http.StatusOK, response.ControlResponse{Status: "success", Message: "downloads stopped"})
}

func (h *Handler) HandleRunHarvest(w http.ResponseWriter, r *http.Request) {
	var req request.HarvestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Endpoint == "" {
		h.writeJSONError(w, "endpoint is required", http.StatusBadRequest)
		return
	}

	tmpl := harvest.QueryTemplate{
		Endpoint: req.Endpoint,
		Method:   req.Method,
		Headers:  req.Headers,
		Params:   req.Params,
	}
	cfg := harvest.Config{PageParam: req.PageParam, MaxPages: req.MaxPages}
	eng := h.harvestFn(cfg, tmpl, fieldMapFrom(req.Fields), req.Site)

	variations := make([]harvest.Variation, 0, len(req.Variations))
	for i, params := range req.Variations {
		variations = append(variations, harvest.Variation{
			Name:   fmt.Sprintf("branch-%d", i+1),
			Params: params,
		})
	}

	go func() {
		res, err := eng.Run(context.Background(), variations)
		if err != nil {
			h.log.Error("harvest run failed", "site", req.Site, "error", err)
			return
		}
		h.log.Info("harvest run done", "site", req.Site,
			"pages", res.Pages, "new_assets", res.NewAssets)
	}()
	h.writeJSON(w, http.StatusAccepted, response.ControlResponse{
		Status:  "success",
		Message: "harvest started",
	})
}

func fieldMapFrom(m map[string]string) harvest.FieldMap {
	return harvest.FieldMap{
		Items:      m["items"],
		AssetID:    m["asset_id"],
		Title:      m["title"],
		PageURL:    m["page_url"],
		StreamURL:  m["stream_url"],
		Thumbnail:  m["thumbnail"],
		Creator:    m["creator"],
		Duration:   m["duration"],
		Resolution: m["resolution"],
		Tags:       m["tags"],
	}
}

var assetFilterParams = []string{
	"creator", "collection", "resolution", "frame_rate",
	"camera", "formats", "source_site", "download_status",
}

func (h *Handler) HandleListAssets(w http.ResponseWriter, r *http.Request) {
	qp := r.URL.Query()
	q := repository.AssetQuery{
		FreeText: qp.Get("q"),
		Filters:  map[string]string{},
	}
	for _, col := range assetFilterParams {
		if v := qp.Get(col); v != "" {
			q.Filters[col] = v
		}
	}
	q.FavoritesOnly = qp.Get("favorites") == "1"
	q.DownloadedOnly = qp.Get("downloaded") == "1"
	q.MinRating, _ = strconv.Atoi(qp.Get("min_rating"))
	q.CollectionID, _ = strconv.ParseInt(qp.Get("collection_id"), 10, 64)
	q.Limit, _ = strconv.Atoi(qp.Get("limit"))
	q.Offset, _ = strconv.Atoi(qp.Get("offset"))

	assets, err := h.store.Query(r.Context(), q)
	if err != nil {
		h.log.Error("asset query failed", "error", err)
		h.writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, response.AssetListResponse{
		Count:  len(assets),
		Assets: assets,
	})
}

func (h *Handler) HandleGetAsset(w http.ResponseWriter, r *http.Request) {
	a, err := h.store.GetAsset(r.Context(), chi.URLParam(r, "assetID"))
	if err != nil {
		if errors.Is(err, repository.ErrAssetNotFound) {
			h.writeJSONError(w, "asset not found", http.StatusNotFound)
			return
		}
		h.log.Error("asset lookup failed", "error", err)
		h.writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, a)
}

func (h *Handler) HandleRateAsset(w http.ResponseWriter, r *http.Request) {
	var req request.RateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	h.curate(w, r, h.store.SetRating(r.Context(), chi.URLParam(r, "assetID"), req.Rating))
}

func (h *Handler) HandleSetNotes(w http.ResponseWriter, r *http.Request) {
	var req request.NotesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	h.curate(w, r, h.store.SetNotes(r.Context(), chi.URLParam(r, "assetID"), req.Notes))
}

func (h *Handler) HandleSetTags(w http.ResponseWriter, r *http.Request) {
	var req request.TagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	h.curate(w, r, h.store.SetUserTags(r.Context(), chi.URLParam(r, "assetID"), req.Tags))
}

func (h *Handler) HandleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	fav, err := h.store.ToggleFavorite(r.Context(), chi.URLParam(r, "assetID"))
	if err != nil {
		if errors.Is(err, repository.ErrAssetNotFound) {
			h.writeJSONError(w, "asset not found", http.StatusNotFound)
			return
		}
		h.log.Error("favorite toggle failed", "error", err)
		h.writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"favorited": fav})
}

func (h *Handler) curate(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		h.log.Error("asset update failed", "asset_id", chi.URLParam(r, "assetID"), "error", err)
		h.writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, response.ControlResponse{Status: "success"})
}

func (h *Handler) HandleListCollections(w http.ResponseWriter, r *http.Request) {
	cols, err := h.store.Collections(r.Context())
	if err != nil {
		h.log.Error("collection list failed", "error", err)
		h.writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if cols == nil {
		cols = []entity.Collection{}
	}
	h.writeJSON(w, http.StatusOK, cols)
}

func (h *Handler) HandleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var req request.CollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		h.writeJSONError(w, "collection name is required", http.StatusBadRequest)
		return
	}
	id, err := h.store.CreateCollection(r.Context(), req.Name, req.Color)
	if err != nil {
		h.log.Error("collection create failed", "error", err)
		h.writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handler) HandleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "collectionID"), 10, 64)
	if err != nil {
		h.writeJSONError(w, "invalid collection id", http.StatusBadRequest)
		return
	}
	if err := h.store.DeleteCollection(r.Context(), id); err != nil {
		h.log.Error("collection delete failed", "error", err)
		h.writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, response.ControlResponse{Status: "success"})
}

func (h *Handler) HandleAddToCollection(w http.ResponseWriter, r *http.Request) {
	h.memberChange(w, r, h.store.AddToCollection)
}

func (h *Handler) HandleRemoveFromCollection(w http.ResponseWriter, r *http.Request) {
	h.memberChange(w, r, h.store.RemoveFromCollection)
}

func (h *Handler) memberChange(w http.ResponseWriter, r *http.Request, op func(context.Context, string, int64) error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "collectionID"), 10, 64)
	if err != nil {
		h.writeJSONError(w, "invalid collection id", http.StatusBadRequest)
		return
	}
	assetID := chi.URLParam(r, "assetID")
	if _, err := h.store.GetAsset(r.Context(), assetID); err != nil {
		if errors.Is(err, repository.ErrAssetNotFound) {
			h.writeJSONError(w, "asset not found", http.StatusNotFound)
			return
		}
		h.log.Error("asset lookup failed", "error", err)
		h.writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if err := op(r.Context(), assetID, id); err != nil {
		h.log.Error("collection membership change failed", "error", err)
		h.writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, response.ControlResponse{Status: "success"})
}

func (h *Handler) HandleAssetCollections(w http.ResponseWriter, r *http.Request) {
	cols, err := h.store.AssetCollections(r.Context(), chi.URLParam(r, "assetID"))
	if err != nil {
		h.log.Error("asset collections lookup failed", "error", err)
		h.writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if cols == nil {
		cols = []entity.Collection{}
	}
	h.writeJSON(w, http.StatusOK, cols)
}

func (h *Handler) HandleListSavedSearches(w http.ResponseWriter, r *http.Request) {
	searches, err := h.store.SavedSearches(r.Context())
	if err != nil {
		h.log.Error("saved search list failed", "error", err)
		h.writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if searches == nil {
		searches = []entity.SavedSearch{}
	}
	h.writeJSON(w, http.StatusOK, searches)
}

func (h *Handler) HandleSaveSearch(w http.ResponseWriter, r *http.Request) {
	var req request.SaveSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		h.writeJSONError(w, "search name is required", http.StatusBadRequest)
		return
	}
	filters := "{}"
	if len(req.Filters) > 0 {
		b, err := json.Marshal(req.Filters)
		if err != nil {
			h.writeJSONError(w, "invalid filters", http.StatusBadRequest)
			return
		}
		filters = string(b)
	}
	if err := h.store.SaveSearch(r.Context(), req.Name, req.Query, filters); err != nil {
		h.log.Error("save search failed", "error", err)
		h.writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusCreated, response.ControlResponse{Status: "success"})
}

func (h *Handler) HandleDeleteSavedSearch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "searchID"), 10, 64)
	if err != nil {
		h.writeJSONError(w, "invalid search id", http.StatusBadRequest)
		return
	}
	if err := h.store.DeleteSavedSearch(r.Context(), id); err != nil {
		h.log.Error("saved search delete failed", "error", err)
		h.writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, response.ControlResponse{Status: "success"})
}

// HandleAssetFilters returns the distinct values of the filterable
// columns, which the UI uses to populate its dropdowns.
func (h *Handler) HandleAssetFilters(w http.ResponseWriter, r *http.Request) {
	cols := []string{"creator", "collection", "resolution", "frame_rate", "camera", "source_site"}
	filters := make(map[string][]string, len(cols))
	for _, col := range cols {
		vals, err := h.store.DistinctValues(r.Context(), col)
		if err != nil {
			h.log.Error("distinct values query failed", "column", col, "error", err)
			h.writeJSONError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		filters[col] = vals
	}
	h.writeJSON(w, http.StatusOK, filters)
}

// HandleClearArchive wipes every asset, visit and queued URL. Refused
// while a crawl is running.
func (h *Handler) HandleClearArchive(w http.ResponseWriter, r *http.Request) {
	if orch := h.Current(); orch != nil && orch.Running() {
		h.writeJSONError(w, "crawl in progress", http.StatusConflict)
		return
	}
	if err := h.store.ClearArchive(r.Context()); err != nil {
		h.log.Error("archive clear failed", "error", err)
		h.writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, response.ControlResponse{Status: "success", Message: "archive cleared"})
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.log.Error("stats query failed", "error", err)
		h.writeJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	state := "idle"
	if orch := h.Current(); orch != nil && orch.Running() {
		state = "running"
	}
	h.writeJSON(w, http.StatusOK, response.StatsResponse{State: state, Stats: stats})
}

// HandleEvents streams the event bus as server-sent events until the
// client disconnects.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeJSONError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ch, unsubscribe := h.bus.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case ev := <-ch:
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error("write JSON response failed", "error", err)
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
