package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsChallenge(t *testing.T) {
	assert.True(t, isChallenge("Just a moment...", "<html></html>"))
	assert.True(t, isChallenge("", "<html><body>Verifying you are human</body></html>"))
	assert.False(t, isChallenge("Sunset Pier | Stock Video", "<html><body>ocean waves</body></html>"))
}

func TestBackoffBounds(t *testing.T) {
	b := newBackoff()
	for i := 0; i < 10; i++ {
		b.raise()
	}
	assert.Equal(t, 8.0, b.factor(), "raise caps at 8x")

	for i := 0; i < 20; i++ {
		b.relax()
	}
	assert.Equal(t, 1.0, b.factor(), "relax floors at 1x")
}

func TestScopeCandidates(t *testing.T) {
	o := &Orchestrator{cfg: Config{ScopeToAssetID: true, AcceptUnattributed: true}}

	got := o.scopeCandidates([]string{
		"https://cdn.example/v/111/a.mp4",
		"https://cdn.example/v/2222/b.mp4",
		"https://cdn.example/v/3333/c.mp4",
	}, "2222")
	assert.Equal(t, []string{"https://cdn.example/v/2222/b.mp4"}, got)

	// No id match: a lone opaque candidate is trusted.
	got = o.scopeCandidates([]string{"https://cdn.example/opaque/master.m3u8"}, "2222")
	assert.Len(t, got, 1)

	// Several opaque candidates are ambiguous and dropped.
	got = o.scopeCandidates([]string{
		"https://cdn.example/opaque/a.m3u8",
		"https://cdn.example/opaque/b.m3u8",
	}, "2222")
	assert.Empty(t, got)
}
