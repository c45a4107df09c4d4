// Package event is the typed fan-out bus connecting the crawl and
// download pipelines to the control surface.
package event

import (
	"sync"
	"time"
)

type Type string

const (
	TypeLog              Type = "log"
	TypeStats            Type = "stats"
	TypeAssetDiscovered  Type = "asset_discovered"
	TypeStatus           Type = "status"
	TypeDownloadProgress Type = "download_progress"
	TypeDownloadComplete Type = "download_complete"
)

// Event is one bus message. Data is one of the payload structs below,
// keyed by Type.
type Event struct {
	Type Type      `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

type Log struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

type Status struct {
	State  string `json:"state"`
	Detail string `json:"detail,omitempty"`
}

type AssetDiscovered struct {
	AssetID    string `json:"asset_id"`
	Title      string `json:"title"`
	SourceSite string `json:"source_site"`
	New        bool   `json:"new"`
	Stream     string `json:"stream,omitempty"` // resolver decision, when a candidate was seen
}

type DownloadProgress struct {
	AssetID     string  `json:"asset_id"`
	Percent     float64 `json:"percent"`
	BytesPerSec float64 `json:"bytes_per_sec"`
	ETASeconds  int     `json:"eta_seconds"`
}

type DownloadComplete struct {
	AssetID   string `json:"asset_id"`
	LocalPath string `json:"local_path,omitempty"`
	Error     string `json:"error,omitempty"`
	Failure   string `json:"failure,omitempty"` // failure kind on error
}

// Bus fans events out to subscribers. Publishing never blocks: a
// subscriber that falls behind loses events rather than stalling the
// pipelines.
type Bus struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a buffered listener. The returned func
// unsubscribes and closes the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 256)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
}

// Publish delivers to every subscriber that has buffer room.
func (b *Bus) Publish(t Type, data any) {
	ev := Event{Type: t, At: time.Now(), Data: data}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
