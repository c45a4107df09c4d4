package download

import (
	"bufio"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	d, ok := parseClock(durationRe, "  Duration: 00:01:30.50, start: 0.000000, bitrate: 2816 kb/s")
	require.True(t, ok)
	assert.Equal(t, 90*time.Second+500*time.Millisecond, d)

	pos, ok := parseClock(timeRe, "frame= 1234 fps=250 q=-1.0 size=   10240KiB time=00:00:42.00 bitrate=1997.5kbits/s")
	require.True(t, ok)
	assert.Equal(t, 42*time.Second, pos)

	_, ok = parseClock(timeRe, "Press [q] to stop, [?] for help")
	assert.False(t, ok)
}

// ffmpeg rewrites its progress line with bare carriage returns, so
// the splitter has to treat \r as a line break.
func TestScanCRLines(t *testing.T) {
	input := "Duration: 00:01:00.00\ntime=00:00:10.00\rtime=00:00:20.00\rtime=00:00:30.00\n"
	sc := bufio.NewScanner(strings.NewReader(input))
	sc.Split(scanCRLines)

	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, []string{
		"Duration: 00:01:00.00",
		"time=00:00:10.00",
		"time=00:00:20.00",
		"time=00:00:30.00",
	}, lines)
}

func TestClassifyStatus(t *testing.T) {
	assert.Equal(t, FailureNone, classifyStatus(200))
	assert.Equal(t, FailureNone, classifyStatus(206))
	assert.Equal(t, FailureNone, classifyStatus(302))
	assert.Equal(t, FailureGone, classifyStatus(404))
	assert.Equal(t, FailureGone, classifyStatus(410))
	assert.Equal(t, FailureGone, classifyStatus(403))
	assert.Equal(t, FailureTransient, classifyStatus(429))
	assert.Equal(t, FailureTransient, classifyStatus(503))
}

func TestCheckDisk(t *testing.T) {
	assert.Equal(t, FailureNone, checkDisk(nil, "/tmp", 1024), "no spacer means no floor")
	assert.Equal(t, FailureNone, checkDisk(fakeDisk{free: 2048}, "/tmp", 0), "zero floor disables the check")
	assert.Equal(t, FailureNone, checkDisk(fakeDisk{free: 2048}, "/tmp", 1024))
	assert.Equal(t, FailureDiskFull, checkDisk(fakeDisk{free: 512}, "/tmp", 1024))
}

func TestFailureKindRetryable(t *testing.T) {
	assert.True(t, FailureTransient.Retryable())
	assert.True(t, FailureStalled.Retryable())
	assert.False(t, FailureGone.Retryable())
	assert.False(t, FailureDiskFull.Retryable())
	assert.False(t, FailureCanceled.Retryable())
	assert.False(t, FailureRemux.Retryable())
}
