package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/adapter/chromedp_fetcher"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/adapter/sqlite"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/crawler"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/delivery/http/handler"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/delivery/http/router"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/download"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/event"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/harvest"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/profile"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/pkg/config"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/pkg/logger"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/pkg/metrics"
)

const shutdownGrace = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Unable to load configuration", "error", err)
		os.Exit(1)
	}

	logger.Init(os.Stdout, logger.ParseLevel(cfg.LogLevel))
	log := slog.Default()
	log.Info("Logger initialized", "level", cfg.LogLevel)

	metrics.Init()

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		log.Error("Unable to open store", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	log.Info("Store opened", "path", cfg.DBPath)

	checkpointCtx, stopCheckpointer := context.WithCancel(context.Background())
	store.StartCheckpointer(checkpointCtx, time.Duration(cfg.CheckpointSec)*time.Second)

	reg := profile.NewRegistry()
	log.Info("Site profiles registered", "profiles", reg.Names())

	bus := event.NewBus()

	fetcher, err := chromedp_fetcher.New(chromedp_fetcher.Config{
		Headless:    cfg.Headless,
		PageTimeout: time.Duration(cfg.PageTimeoutSec) * time.Second,
		SettleWait:  time.Duration(cfg.SettleWaitSec) * time.Second,
		ScrollSteps: cfg.ScrollSteps,
	}, log)
	if err != nil {
		log.Error("Unable to start browser allocator", "error", err)
		os.Exit(1)
	}

	baseCrawl := crawler.Config{
		Profiles:              cfg.Profiles,
		StartURLs:             cfg.StartURLs,
		MaxDepth:              cfg.MaxDepth,
		BatchSize:             cfg.BatchSize,
		Resume:                cfg.Resume,
		PageDelay:             time.Duration(cfg.PageDelaySec) * time.Second,
		ChallengeWait:         time.Duration(cfg.ChallengeWaitSec) * time.Second,
		ScopeToAssetID:        cfg.ScopeToAssetID,
		AcceptUnattributed:    cfg.AcceptUnattributed,
		InteractiveChallenges: !cfg.Headless,
	}
	orchFn := func(c crawler.Config) *crawler.Orchestrator {
		return crawler.New(c, store, fetcher, reg, bus, log)
	}
	harvestFn := func(hc harvest.Config, tmpl harvest.QueryTemplate, fields harvest.FieldMap, site string) *harvest.Engine {
		return harvest.NewEngine(hc, tmpl, fields, site, store, bus, log)
	}

	remuxer := download.NewFFmpegRemuxer(cfg.FFmpegPath, time.Duration(cfg.StallTimeoutSec)*time.Second)
	pool := download.NewPool(download.Config{
		Workers:          cfg.DownloadWorkers,
		MaxRetries:       cfg.MaxRetries,
		DownloadDir:      cfg.DownloadDir,
		ThumbDir:         cfg.ThumbDir,
		MinFreeDiskMB:    cfg.MinFreeDiskMB,
		FilenameTemplate: cfg.FilenameTemplate,
		WriteSidecars:    cfg.WriteSidecars,
		MakeThumbnails:   cfg.MakeThumbnails,
	}, store, download.NewHTTPProber(), download.StatfsSpacer{}, remuxer,
		&download.FFmpegThumbnailer{BinPath: cfg.FFmpegPath}, bus, log)

	ctl := handler.NewHandler(baseCrawl, orchFn, harvestFn, pool, store, bus, log)
	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     router.New(ctl),
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting control server", "port", cfg.ServerPort)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info("Shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Control server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	// Order matters: stop producing work, then kill children and
	// drain, then flush and close the store.
	if orch := ctl.Current(); orch != nil {
		orch.Stop(10 * time.Second)
	}
	pool.Stop(15 * time.Second)
	if err := fetcher.Close(); err != nil {
		log.Warn("Browser close failed", "error", err)
	}
	stopCheckpointer()
	if err := store.Checkpoint(context.Background()); err != nil {
		log.Warn("Final checkpoint failed", "error", err)
	}
	if err := store.Close(); err != nil {
		log.Warn("Store close failed", "error", err)
	}
	log.Info("Shutdown complete")
}
