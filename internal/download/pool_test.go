package download

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/adapter/sqlite"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/entity"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/event"
	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/pkg/metrics"
)

type fakeProber struct {
	mu    sync.Mutex
	kinds []FailureKind // consumed per call; last value repeats
	calls int
}

func (f *fakeProber) Probe(context.Context, string) FailureKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.kinds) == 0 {
		return FailureNone
	}
	k := f.kinds[0]
	if len(f.kinds) > 1 {
		f.kinds = f.kinds[1:]
	}
	return k
}

func (f *fakeProber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeDisk struct{ free uint64 }

func (f fakeDisk) FreeBytes(string) (uint64, error) { return f.free, nil }

type fakeRemux struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeRemux) Remux(_ context.Context, _, dst string, onProgress func(Progress)) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if err := os.WriteFile(dst, []byte("video-bytes"), 0o644); err != nil {
		return err
	}
	if onProgress != nil {
		onProgress(Progress{MediaTime: 30 * time.Second, Duration: time.Minute})
	}
	return nil
}

func (f *fakeRemux) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type testRig struct {
	pool  *Pool
	store *sqlite.Store
	bus   *event.Bus
}

func newRig(t *testing.T, cfg Config, prober Prober, remux Remuxer) *testRig {
	t.Helper()
	metrics.Init()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "dl.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	if cfg.DownloadDir == "" {
		cfg.DownloadDir = t.TempDir()
	}
	cfg.RetryBaseWait = time.Millisecond
	cfg.MakeThumbnails = false

	bus := event.NewBus()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := NewPool(cfg, store, prober, fakeDisk{free: 1 << 40}, remux, nil, bus, log)
	t.Cleanup(func() { p.Stop(time.Second) })
	return &testRig{pool: p, store: store, bus: bus}
}

func seedAsset(t *testing.T, rig *testRig, id, stream string) *entity.Asset {
	t.Helper()
	a := &entity.Asset{AssetID: id, Title: "Clip " + id, StreamURL: stream}
	_, err := rig.store.UpsertAsset(context.Background(), a)
	require.NoError(t, err)
	got, err := rig.store.GetAsset(context.Background(), id)
	require.NoError(t, err)
	return got
}

// waitComplete blocks until a download_complete event for the asset
// arrives.
func waitComplete(t *testing.T, ch <-chan event.Event, assetID string) event.DownloadComplete {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type != event.TypeDownloadComplete {
				continue
			}
			dc := ev.Data.(event.DownloadComplete)
			if dc.AssetID == assetID {
				return dc
			}
		case <-deadline:
			t.Fatal("timed out waiting for download completion")
		}
	}
}

func TestEnqueueGuards(t *testing.T) {
	rig := newRig(t, Config{WriteSidecars: false}, &fakeProber{}, &fakeRemux{})

	assert.False(t, rig.pool.Enqueue(&entity.Asset{AssetID: "1"}), "no stream URL")
	a := seedAsset(t, rig, "2", "https://cdn.example/2.m3u8")
	assert.True(t, rig.pool.Enqueue(a))
	assert.False(t, rig.pool.Enqueue(a), "duplicate")
}

func TestSeenSetPreSeededFromStore(t *testing.T) {
	rig := newRig(t, Config{}, &fakeProber{}, &fakeRemux{})
	ctx := context.Background()

	a := seedAsset(t, rig, "7", "https://cdn.example/7.m3u8")
	require.NoError(t, rig.store.SetLocalPath(ctx, "7", "/videos/7.mp4", entity.DownloadDone))
	require.NoError(t, rig.pool.Start(ctx))

	a.DownloadStatus = "" // stale in-memory copy must not defeat the guard
	assert.False(t, rig.pool.Enqueue(a))
}

func TestSuccessWritesFileAndSidecar(t *testing.T) {
	dir := t.TempDir()
	remux := &fakeRemux{}
	rig := newRig(t, Config{DownloadDir: dir, WriteSidecars: true, FilenameTemplate: "{title}"}, &fakeProber{}, remux)
	ctx := context.Background()

	ch, unsub := rig.bus.Subscribe()
	defer unsub()
	require.NoError(t, rig.pool.Start(ctx))

	a := seedAsset(t, rig, "42", "https://cdn.example/42/hd.mp4")
	require.True(t, rig.pool.Enqueue(a))

	dc := waitComplete(t, ch, "42")
	assert.Empty(t, dc.Error)
	assert.FileExists(t, dc.LocalPath)
	assert.FileExists(t, dc.LocalPath+".json")
	assert.Equal(t, filepath.Join(dir, "Clip 42_42.mp4"), dc.LocalPath)

	got, err := rig.store.GetAsset(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, entity.DownloadDone, got.DownloadStatus)
	assert.Equal(t, dc.LocalPath, got.LocalPath)
	assert.Equal(t, 1, remux.callCount())
}

func TestPermanentProbeFailureSkipsRemux(t *testing.T) {
	remux := &fakeRemux{}
	prober := &fakeProber{kinds: []FailureKind{FailureGone}}
	rig := newRig(t, Config{MaxRetries: 3}, prober, remux)
	ctx := context.Background()

	ch, unsub := rig.bus.Subscribe()
	defer unsub()
	require.NoError(t, rig.pool.Start(ctx))

	a := seedAsset(t, rig, "404", "https://cdn.example/404.mp4")
	require.True(t, rig.pool.Enqueue(a))

	dc := waitComplete(t, ch, "404")
	assert.Equal(t, string(FailureGone), dc.Failure)
	assert.Equal(t, 1, prober.callCount(), "permanent failures burn no retries")
	assert.Zero(t, remux.callCount(), "no output attempted for a gone stream")

	got, err := rig.store.GetAsset(ctx, "404")
	require.NoError(t, err)
	assert.Equal(t, entity.DownloadError, got.DownloadStatus)
	assert.Empty(t, got.LocalPath)
}

func TestTransientRetriesAreBounded(t *testing.T) {
	prober := &fakeProber{kinds: []FailureKind{FailureTransient}}
	rig := newRig(t, Config{MaxRetries: 2}, prober, &fakeRemux{})

	ch, unsub := rig.bus.Subscribe()
	defer unsub()
	require.NoError(t, rig.pool.Start(context.Background()))

	a := seedAsset(t, rig, "503", "https://cdn.example/503.mp4")
	require.True(t, rig.pool.Enqueue(a))

	dc := waitComplete(t, ch, "503")
	assert.Equal(t, string(FailureTransient), dc.Failure)
	assert.Equal(t, 3, prober.callCount(), "initial attempt plus MaxRetries")
}

func TestTransientThenSuccess(t *testing.T) {
	prober := &fakeProber{kinds: []FailureKind{FailureTransient, FailureNone}}
	rig := newRig(t, Config{MaxRetries: 3}, prober, &fakeRemux{})

	ch, unsub := rig.bus.Subscribe()
	defer unsub()
	require.NoError(t, rig.pool.Start(context.Background()))

	a := seedAsset(t, rig, "200", "https://cdn.example/200.mp4")
	require.True(t, rig.pool.Enqueue(a))

	dc := waitComplete(t, ch, "200")
	assert.Empty(t, dc.Failure)
	assert.NotEmpty(t, dc.LocalPath)
}

func TestDiskFloorBlocksDownload(t *testing.T) {
	metrics.Init()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "dl.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	bus := event.NewBus()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	remux := &fakeRemux{}
	p := NewPool(Config{
		DownloadDir:   t.TempDir(),
		MinFreeDiskMB: 100,
		RetryBaseWait: time.Millisecond,
	}, store, &fakeProber{}, fakeDisk{free: 1024}, remux, nil, bus, log)
	t.Cleanup(func() { p.Stop(time.Second) })

	ch, unsub := bus.Subscribe()
	defer unsub()
	require.NoError(t, p.Start(context.Background()))

	a := &entity.Asset{AssetID: "9", StreamURL: "https://cdn.example/9.mp4"}
	_, err = store.UpsertAsset(context.Background(), a)
	require.NoError(t, err)
	require.True(t, p.Enqueue(a))

	dc := waitComplete(t, ch, "9")
	assert.Equal(t, string(FailureDiskFull), dc.Failure)
	assert.Zero(t, remux.callCount())
}

func TestStalledRemuxRetries(t *testing.T) {
	remux := &fakeRemux{err: ErrStalled}
	rig := newRig(t, Config{MaxRetries: 1}, &fakeProber{}, remux)

	ch, unsub := rig.bus.Subscribe()
	defer unsub()
	require.NoError(t, rig.pool.Start(context.Background()))

	a := seedAsset(t, rig, "77", "https://cdn.example/77.m3u8")
	require.True(t, rig.pool.Enqueue(a))

	dc := waitComplete(t, ch, "77")
	assert.Equal(t, string(FailureStalled), dc.Failure)
	assert.Equal(t, 2, remux.callCount(), "stalls retry up to the bound")
}

func TestEnqueuePending(t *testing.T) {
	rig := newRig(t, Config{}, &fakeProber{}, &fakeRemux{})
	ctx := context.Background()

	seedAsset(t, rig, "p1", "https://cdn.example/p1.mp4")
	seedAsset(t, rig, "p2", "https://cdn.example/p2.mp4")
	seedAsset(t, rig, "p3", "") // no stream, not pending

	n, err := rig.pool.EnqueuePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
