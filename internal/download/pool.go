// Package download runs the bounded-concurrency download pipeline:
// probe, disk check, ffmpeg remux, sidecar and thumbnail.
package download

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/entity"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/event"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/repository"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/pkg/metrics"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/pkg/utils"
)

// Config tunes the pool.
type Config struct {
	Workers          int
	MaxRetries       int
	DownloadDir      string
	ThumbDir         string
	MinFreeDiskMB    int64
	FilenameTemplate string
	WriteSidecars    bool
	MakeThumbnails   bool
	RetryBaseWait    time.Duration
}

func (c *Config) defaults() {
	if c.Workers == 0 {
		c.Workers = 2
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.DownloadDir == "" {
		c.DownloadDir = "downloads"
	}
	if c.ThumbDir == "" {
		c.ThumbDir = filepath.Join(c.DownloadDir, "thumbs")
	}
	if c.RetryBaseWait == 0 {
		c.RetryBaseWait = time.Second
	}
}

type job struct {
	id    uuid.UUID
	asset entity.Asset
}

// Pool is the download worker pool. One job per asset, ever: the
// seen set (pre-seeded from completed downloads) makes Enqueue
// idempotent across restarts.
type Pool struct {
	cfg    Config
	store  repository.AssetRepository
	prober Prober
	disk   DiskSpacer
	remux  Remuxer
	thumb  Thumbnailer
	bus    *event.Bus
	log    *slog.Logger

	taskQueue chan job
	stopChan  chan struct{}
	wg        sync.WaitGroup

	runCtx    context.Context
	runCancel context.CancelFunc

	mu      sync.Mutex
	seen    map[string]struct{}
	started bool
}

func NewPool(cfg Config, store repository.AssetRepository, prober Prober, disk DiskSpacer,
	remux Remuxer, thumb Thumbnailer, bus *event.Bus, log *slog.Logger) *Pool {
	cfg.defaults()
	runCtx, cancel := context.WithCancel(context.Background())
	return &Pool{
		cfg:       cfg,
		store:     store,
		prober:    prober,
		disk:      disk,
		remux:     remux,
		thumb:     thumb,
		bus:       bus,
		log:       log,
		taskQueue: make(chan job, 1024),
		stopChan:  make(chan struct{}),
		runCtx:    runCtx,
		runCancel: cancel,
		seen:      make(map[string]struct{}),
	}
}

// Start seeds the duplicate guard from completed downloads and
// launches the workers.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	done, err := p.store.DoneAssetIDs(ctx)
	if err != nil {
		return fmt.Errorf("seed download dedup: %w", err)
	}
	for _, id := range done {
		p.seen[id] = struct{}{}
	}
	if err := os.MkdirAll(p.cfg.DownloadDir, 0o755); err != nil {
		return err
	}
	if p.cfg.MakeThumbnails {
		if err := os.MkdirAll(p.cfg.ThumbDir, 0o755); err != nil {
			return err
		}
	}
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.started = true
	return nil
}

// Enqueue submits an asset. False means it is not downloadable, was
// already handled, or the queue is full.
func (p *Pool) Enqueue(a *entity.Asset) bool {
	if a == nil || !a.Downloadable() {
		return false
	}
	p.mu.Lock()
	if _, dup := p.seen[a.AssetID]; dup {
		p.mu.Unlock()
		return false
	}
	p.seen[a.AssetID] = struct{}{}
	p.mu.Unlock()

	select {
	case p.taskQueue <- job{id: uuid.New(), asset: *a}:
		_ = p.store.SetDownloadStatus(context.Background(), a.AssetID, entity.DownloadQueued)
		return true
	default:
		p.mu.Lock()
		delete(p.seen, a.AssetID)
		p.mu.Unlock()
		return false
	}
}

// EnqueuePending scans the store for assets with a stream but no
// completed file and submits them all.
func (p *Pool) EnqueuePending(ctx context.Context) (int, error) {
	pending, err := p.store.PendingDownloads(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range pending {
		if p.Enqueue(&pending[i]) {
			n++
		}
	}
	return n, nil
}

// Stop terminates in-flight ffmpeg processes and drains the workers,
// waiting at most grace.
func (p *Pool) Stop(grace time.Duration) {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()

	close(p.stopChan)
	p.runCancel()

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(grace):
		p.log.Warn("download pool stop timed out", "grace", grace)
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			return
		case j := <-p.taskQueue:
			p.process(j)
		}
	}
}

func (p *Pool) process(j job) {
	a := &j.asset
	log := p.log.With("asset_id", a.AssetID, "job_id", j.id.String())
	_ = p.store.SetDownloadStatus(p.runCtx, a.AssetID, entity.DownloadInProgress)
	start := time.Now()

	var kind FailureKind
	var dst string
	for attempt := 0; ; attempt++ {
		dst, kind = p.attempt(a, log)
		if kind == FailureNone {
			p.onSuccess(a, dst, start, log)
			return
		}
		if !kind.Retryable() || attempt >= p.cfg.MaxRetries {
			break
		}
		wait := p.cfg.RetryBaseWait << uint(attempt)
		if limit := 30 * p.cfg.RetryBaseWait; wait > limit {
			wait = limit
		}
		log.Warn("download attempt failed, retrying", "kind", string(kind), "wait", wait)
		select {
		case <-p.runCtx.Done():
			kind = FailureCanceled
		case <-time.After(wait):
			continue
		}
		break
	}
	p.onFailure(a, kind, log)
}

// attempt runs one probe + remux cycle. Returns the final output path
// on success.
func (p *Pool) attempt(a *entity.Asset, log *slog.Logger) (string, FailureKind) {
	if err := p.runCtx.Err(); err != nil {
		return "", FailureCanceled
	}
	if kind := p.prober.Probe(p.runCtx, a.StreamURL); kind != FailureNone {
		return "", kind
	}
	if kind := checkDisk(p.disk, p.cfg.DownloadDir, uint64(p.cfg.MinFreeDiskMB)*1024*1024); kind != FailureNone {
		return "", kind
	}

	name := utils.RenderFilename(p.cfg.FilenameTemplate, a)
	dst := filepath.Join(p.cfg.DownloadDir, name+".mp4")
	tmp := dst + ".part"

	err := p.remux.Remux(p.runCtx, a.StreamURL, tmp, p.progressFunc(a, tmp))
	if err != nil {
		_ = os.Remove(tmp)
		switch {
		case errors.Is(err, ErrStalled):
			return "", FailureStalled
		case p.runCtx.Err() != nil:
			return "", FailureCanceled
		default:
			log.Warn("remux failed", "error", err)
			return "", FailureRemux
		}
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		log.Error("rename failed", "error", err)
		return "", FailureRemux
	}
	return dst, FailureNone
}

// progressFunc emits throttled progress events: percent from the
// remux position, throughput from output growth, ETA from the
// observed remux speed.
func (p *Pool) progressFunc(a *entity.Asset, tmpPath string) func(Progress) {
	var lastEmit time.Time
	var lastMedia time.Duration
	var lastWall time.Time
	var lastSize int64

	return func(pr Progress) {
		now := time.Now()
		if now.Sub(lastEmit) < time.Second {
			return
		}

		ev := event.DownloadProgress{AssetID: a.AssetID}
		if pr.Duration > 0 {
			ev.Percent = 100 * float64(pr.MediaTime) / float64(pr.Duration)
			if ev.Percent > 100 {
				ev.Percent = 100
			}
		}
		if fi, err := os.Stat(tmpPath); err == nil && !lastWall.IsZero() {
			wall := now.Sub(lastWall).Seconds()
			if wall > 0 {
				ev.BytesPerSec = float64(fi.Size()-lastSize) / wall
				lastSize = fi.Size()
			}
			mediaAdvance := pr.MediaTime - lastMedia
			if mediaAdvance > 0 && pr.Duration > pr.MediaTime {
				speed := float64(mediaAdvance) / wall // media seconds per wall second
				ev.ETASeconds = int(float64(pr.Duration-pr.MediaTime) / speed / float64(time.Second))
			}
		}
		lastEmit, lastWall, lastMedia = now, now, pr.MediaTime
		p.bus.Publish(event.TypeDownloadProgress, ev)
	}
}

func (p *Pool) onSuccess(a *entity.Asset, dst string, start time.Time, log *slog.Logger) {
	// Status writes survive Stop: the file is on disk either way.
	ctx := context.Background()
	if err := p.store.SetLocalPath(ctx, a.AssetID, dst, entity.DownloadDone); err != nil {
		log.Error("record local path failed", "error", err)
	}
	if fi, err := os.Stat(dst); err == nil {
		metrics.DownloadBytesTotal.Add(float64(fi.Size()))
	}
	metrics.DownloadsTotal.WithLabelValues("success", "").Inc()
	metrics.DownloadDuration.Observe(time.Since(start).Seconds())

	if p.cfg.WriteSidecars {
		if err := writeSidecar(dst, a); err != nil {
			log.Warn("sidecar write failed", "error", err)
		}
	}
	if p.cfg.MakeThumbnails && p.thumb != nil {
		thumbPath := filepath.Join(p.cfg.ThumbDir, a.AssetID+".jpg")
		if err := p.thumb.Thumbnail(ctx, dst, thumbPath); err != nil {
			log.Debug("thumbnail failed", "error", err)
		} else {
			_ = p.store.SetThumbPath(ctx, a.AssetID, thumbPath)
		}
	}

	log.Info("download complete", "path", dst)
	p.bus.Publish(event.TypeDownloadComplete, event.DownloadComplete{
		AssetID: a.AssetID, LocalPath: dst,
	})
}

func (p *Pool) onFailure(a *entity.Asset, kind FailureKind, log *slog.Logger) {
	_ = p.store.SetDownloadStatus(context.Background(), a.AssetID, entity.DownloadError)
	metrics.DownloadsTotal.WithLabelValues("failure", string(kind)).Inc()

	// Unfinished work may be retried on a later run.
	if kind != FailureGone {
		p.mu.Lock()
		delete(p.seen, a.AssetID)
		p.mu.Unlock()
	}

	log.Warn("download failed", "kind", string(kind))
	p.bus.Publish(event.TypeDownloadComplete, event.DownloadComplete{
		AssetID: a.AssetID,
		Error:   "download failed",
		Failure: string(kind),
	})
}

// writeSidecar drops the asset's metadata next to the video file.
func writeSidecar(videoPath string, a *entity.Asset) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(videoPath+".json", data, 0o644)
}
