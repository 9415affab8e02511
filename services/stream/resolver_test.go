package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aniflow/models"
)

func manifestFixture() *models.StreamManifest {
	return &models.StreamManifest{
		EpisodeSlug: "frieren-episode-28",
		StreamURLs:  []string{"https://player.test/embed/default"},
		Downloads: map[string][]string{
			"mp4 480p ZD":  {"https://dl.test/480.mp4"},
			"MKV 720":      {"https://dl.test/720.mp4"},
			"FullHD 1080p": {"https://dl.test/1080.mp4"},
		},
	}
}

func TestNormalizeLabel(t *testing.T) {
	cases := map[string]string{
		"mp4 480p ZD":   Label480,
		"HD 720":        Label720,
		"540p":          Label720,
		"FullHD 1080p":  Label1080,
		"4K 2160p":      Label1080,
		"360p low":      Label360,
		"240p":          Label360,
		"Server Utama":  LabelAuto,
		"":              LabelAuto,
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeLabel(raw), "label %q", raw)
	}
}

func TestTransportClassification(t *testing.T) {
	direct := []string{
		"https://cdn.test/master.m3u8",
		"https://cdn.test/ep.mp4?token=x",
		"https://cdn.test/manifest.mpd",
		"https://video.test/play?mime=video/mp4",
	}
	for _, url := range direct {
		assert.Equal(t, TransportDirect, TransportFor(url), "url %q", url)
	}
	embedded := []string{
		"https://desustream.info/stream/ep.mp4",
		"https://www.blogger.com/video.g?token=abc",
		"https://host.test/index.php?id=42&file=ep.mp4",
		"https://player.test/embed/720",
	}
	for _, url := range embedded {
		assert.Equal(t, TransportEmbedded, TransportFor(url), "url %q", url)
	}
}

func TestMimeHint(t *testing.T) {
	assert.Equal(t, "application/x-mpegURL", MimeHint("https://cdn.test/m.m3u8"))
	assert.Equal(t, "video/mp4", MimeHint("https://cdn.test/ep.mp4"))
	assert.Equal(t, "", MimeHint("https://player.test/embed/720"))
}

func TestSelectionBuckets(t *testing.T) {
	sel := NewSelection(manifestFixture())
	assert.Equal(t, []string{Label480, Label720, Label1080, LabelAuto}, sel.Labels())
	assert.Equal(t, LabelAuto, sel.Current())
}

func TestSelectPopulatedBucket(t *testing.T) {
	sel := NewSelection(manifestFixture())
	require.NoError(t, sel.Select("480p"))
	assert.Equal(t, Label480, sel.Current())
	assert.Equal(t, "https://dl.test/480.mp4", sel.PlaybackURL())
}

func TestSelectEmptyBucketKeepsPrevious(t *testing.T) {
	sel := NewSelection(manifestFixture())
	require.NoError(t, sel.Select("720p"))

	err := sel.Select("360p")
	require.ErrorIs(t, err, ErrResolutionUnavailable)
	assert.Equal(t, Label720, sel.Current(), "failed select must not change the active bucket")
	assert.Equal(t, "https://dl.test/720.mp4", sel.PlaybackURL())
}

func TestPlaybackFallsBackToAutoThenLowest(t *testing.T) {
	manifest := &models.StreamManifest{
		Downloads: map[string][]string{"1080p": {"https://dl.test/1080.mp4"}},
	}
	sel := NewSelection(manifest)
	// Auto bucket is empty here, so playback walks up to the first
	// populated bucket.
	assert.Equal(t, "https://dl.test/1080.mp4", sel.PlaybackURL())

	withAuto := NewSelection(manifestFixture())
	assert.Equal(t, "https://player.test/embed/default", withAuto.PlaybackURL())
}

func TestEmptySelection(t *testing.T) {
	sel := NewSelection(nil)
	assert.Empty(t, sel.Labels())
	assert.Empty(t, sel.PlaybackURL())
	assert.ErrorIs(t, sel.Select("720p"), ErrResolutionUnavailable)
}
