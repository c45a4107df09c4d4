package download

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"sync"
	"time"
)

// ErrStalled marks a remux killed by the watchdog. Callers classify
// failures with errors.Is, never by message text.
var ErrStalled = errors.New("remux stalled")

// Progress is one remux progress sample parsed from ffmpeg output.
type Progress struct {
	MediaTime time.Duration // position the remux has reached
	Duration  time.Duration // total media duration, 0 until known
}

// Remuxer copies a network stream into a local container.
// Injectable so the pipeline is testable without ffmpeg.
type Remuxer interface {
	Remux(ctx context.Context, srcURL, dstPath string, onProgress func(Progress)) error
}

// Thumbnailer grabs a representative still from a local video file.
type Thumbnailer interface {
	Thumbnail(ctx context.Context, videoPath, thumbPath string) error
}

// FFmpegRemuxer shells out to ffmpeg: stream copy, audio stripped,
// faststart for scrubbing. A watchdog kills the process when
// progress output stops, which is how dead HLS origins present.
type FFmpegRemuxer struct {
	BinPath      string
	StallTimeout time.Duration
}

func NewFFmpegRemuxer(binPath string, stallTimeout time.Duration) *FFmpegRemuxer {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	if stallTimeout == 0 {
		stallTimeout = 60 * time.Second
	}
	return &FFmpegRemuxer{BinPath: binPath, StallTimeout: stallTimeout}
}

var (
	durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2})(?:\.(\d+))?`)
	timeRe     = regexp.MustCompile(`time=\s*(\d+):(\d{2}):(\d{2})(?:\.(\d+))?`)
)

func (r *FFmpegRemuxer) Remux(ctx context.Context, srcURL, dstPath string, onProgress func(Progress)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.BinPath,
		"-y",
		"-protocol_whitelist", "file,http,https,tcp,tls,crypto,hls",
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-i", srcURL,
		"-c:v", "copy",
		"-an",
		"-movflags", "+faststart",
		dstPath,
	)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("remux pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("remux start: %w", err)
	}

	var mu sync.Mutex
	lastProgress := time.Now()
	stalled := false

	watchdog := time.NewTicker(r.StallTimeout / 4)
	defer watchdog.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-watchdog.C:
				mu.Lock()
				quiet := time.Since(lastProgress)
				mu.Unlock()
				if quiet > r.StallTimeout {
					mu.Lock()
					stalled = true
					mu.Unlock()
					cancel() // CommandContext kills the process
					return
				}
			}
		}
	}()

	var total time.Duration
	scanner := bufio.NewScanner(stderr)
	scanner.Split(scanCRLines)
	scanner.Buffer(make([]byte, 64*1024), 256*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if total == 0 {
			if d, ok := parseClock(durationRe, line); ok {
				total = d
			}
		}
		if pos, ok := parseClock(timeRe, line); ok {
			mu.Lock()
			lastProgress = time.Now()
			mu.Unlock()
			if onProgress != nil {
				onProgress(Progress{MediaTime: pos, Duration: total})
			}
		}
	}

	err = cmd.Wait()
	mu.Lock()
	wasStalled := stalled
	mu.Unlock()
	if wasStalled {
		return fmt.Errorf("remux %s: no progress for %s: %w", srcURL, r.StallTimeout, ErrStalled)
	}
	if err != nil {
		return fmt.Errorf("remux %s: %w", srcURL, err)
	}
	return nil
}

// scanCRLines splits on \r as well as \n; ffmpeg rewrites its status
// line with bare carriage returns.
func scanCRLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func parseClock(re *regexp.Regexp, line string) (time.Duration, bool) {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	s, _ := strconv.Atoi(m[3])
	d := time.Duration(h)*time.Hour + time.Duration(min)*time.Minute + time.Duration(s)*time.Second
	if m[4] != "" {
		frac, _ := strconv.ParseFloat("0."+m[4], 64)
		d += time.Duration(frac * float64(time.Second))
	}
	return d, true
}

// FFmpegThumbnailer grabs a frame a few seconds in, scaled to a
// 320px-wide preview.
type FFmpegThumbnailer struct {
	BinPath string
}

func (t *FFmpegThumbnailer) Thumbnail(ctx context.Context, videoPath, thumbPath string) error {
	bin := t.BinPath
	if bin == "" {
		bin = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, bin,
		"-y",
		"-ss", "3",
		"-i", videoPath,
		"-frames:v", "1",
		"-vf", "thumbnail,scale=320:-1",
		thumbPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("thumbnail %s: %w: %s", videoPath, err, firstLine(out))
	}
	return nil
}

func firstLine(b []byte) string {
	for i, c := range b {
		if c == '\n' {
			return string(b[:i])
		}
	}
	return string(b)
}
