package library

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aniflow/internal/database"
	"aniflow/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "library.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewService(database.NewLibraryDAO(db), 0, 0)
}

func TestWatchlistHonorsConfiguredCap(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "library.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	svc := NewService(database.NewLibraryDAO(db), 2, 0)
	ctx := context.Background()

	require.NoError(t, svc.AddToWatchlist(ctx, models.Anime{Slug: "a", Title: "A"}))
	require.NoError(t, svc.AddToWatchlist(ctx, models.Anime{Slug: "b", Title: "B"}))
	require.NoError(t, svc.AddToWatchlist(ctx, models.Anime{Slug: "c", Title: "C"}))

	entries, err := svc.Watchlist(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].AnimeSlug)
	assert.Equal(t, "b", entries[1].AnimeSlug)
}

func TestWatchlistRoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.AddToWatchlist(ctx, models.Anime{Slug: "frieren", Title: "Frieren", CoverURL: "https://cdn.test/f.jpg"}))

	present, err := svc.InWatchlist(ctx, "frieren")
	require.NoError(t, err)
	assert.True(t, present)

	entries, err := svc.Watchlist(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Frieren", entries[0].Title)

	require.NoError(t, svc.RemoveFromWatchlist(ctx, "frieren"))
	entries, err = svc.Watchlist(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries, "mutation must invalidate the memoized read")
}

func TestReAddMovesEntryToTop(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.AddToWatchlist(ctx, models.Anime{Slug: "a", Title: "A"}))
	require.NoError(t, svc.AddToWatchlist(ctx, models.Anime{Slug: "b", Title: "B"}))
	require.NoError(t, svc.AddToWatchlist(ctx, models.Anime{Slug: "a", Title: "A"}))

	entries, err := svc.Watchlist(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].AnimeSlug)
}

func TestToggleWatchlist(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	anime := models.Anime{Slug: "frieren", Title: "Frieren"}

	added, err := svc.ToggleWatchlist(ctx, anime)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = svc.ToggleWatchlist(ctx, anime)
	require.NoError(t, err)
	assert.False(t, added)

	present, err := svc.InWatchlist(ctx, "frieren")
	require.NoError(t, err)
	assert.False(t, present)
}

func TestRecordProgressThresholdAndMonotonicity(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// Below the threshold: silently dropped.
	require.NoError(t, svc.RecordProgress(ctx, "frieren", "ep-1", 3000))
	records, err := svc.History(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	require.NoError(t, svc.RecordProgress(ctx, "frieren", "ep-1", 60000))
	progress, err := svc.ProgressFor(ctx, "frieren", "ep-1")
	require.NoError(t, err)
	assert.Equal(t, int64(60000), progress)

	// A lower report never regresses the stored position.
	require.NoError(t, svc.RecordProgress(ctx, "frieren", "ep-1", 30000))
	progress, err = svc.ProgressFor(ctx, "frieren", "ep-1")
	require.NoError(t, err)
	assert.Equal(t, int64(60000), progress)

	// But a higher one advances it, in the same row.
	require.NoError(t, svc.RecordProgress(ctx, "frieren", "ep-1", 90000))
	records, err = svc.History(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(90000), records[0].ProgressMs)
}

func TestLowerReportStillBumpsTimestamp(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	svc.now = func() time.Time { return base }
	require.NoError(t, svc.RecordProgress(ctx, "frieren", "ep-1", 60000))

	later := base.Add(30 * time.Minute)
	svc.now = func() time.Time { return later }
	require.NoError(t, svc.RecordProgress(ctx, "frieren", "ep-1", 10000))

	rec, err := svc.LatestForAnime(ctx, "frieren")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(60000), rec.ProgressMs)
	assert.Equal(t, later.UnixMilli(), rec.Timestamp.UnixMilli())
}

func TestContinueWatchingCollapsesPerAnime(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, pair := range []struct{ anime, episode string }{
		{"frieren", "ep-1"},
		{"one-piece", "op-1100"},
		{"frieren", "ep-2"},
	} {
		at := base.Add(time.Duration(i) * time.Minute)
		svc.now = func() time.Time { return at }
		require.NoError(t, svc.RecordProgress(ctx, pair.anime, pair.episode, 60000))
	}

	items, err := svc.ContinueWatching(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "ep-2", items[0].EpisodeSlug, "most recent episode per anime wins")
	assert.Equal(t, "op-1100", items[1].EpisodeSlug)
}

func TestHistoryManagement(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.RecordProgress(ctx, "frieren", "ep-1", 60000))
	require.NoError(t, svc.RecordProgress(ctx, "frieren", "ep-2", 60000))

	records, err := svc.History(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.NoError(t, svc.RemoveHistory(ctx, records[0].ID))
	records, err = svc.History(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)

	require.NoError(t, svc.ClearHistory(ctx))
	records, err = svc.History(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDownloadRegistryUpsertsPerResolution(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.RegisterDownload(ctx, "ep-1", "720p", "/files/ep1-720.mp4"))
	require.NoError(t, svc.RegisterDownload(ctx, "ep-1", "1080p", "/files/ep1-1080.mp4"))
	require.NoError(t, svc.RegisterDownload(ctx, "ep-1", "720p", "/files/ep1-720-v2.mp4"))

	downloads, err := svc.Downloads(ctx)
	require.NoError(t, err)
	assert.Len(t, downloads, 2, "same episode+resolution must not duplicate")

	rec, err := svc.DownloadFor(ctx, "ep-1", "720p")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "/files/ep1-720-v2.mp4", rec.Path)

	require.NoError(t, svc.RemoveDownload(ctx, rec.ID))
	rec, err = svc.DownloadFor(ctx, "ep-1", "720p")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestDownloadWithoutResolutionStoresAuto(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.RegisterDownload(ctx, "ep-1", "", "/files/ep1.mp4"))

	downloads, err := svc.Downloads(ctx)
	require.NoError(t, err)
	require.Len(t, downloads, 1)
	assert.Equal(t, "Auto", downloads[0].Resolution)

	rec, err := svc.DownloadFor(ctx, "ep-1", "  ")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "/files/ep1.mp4", rec.Path)

	// Registering again without a resolution updates the same Auto row.
	require.NoError(t, svc.RegisterDownload(ctx, "ep-1", "", "/files/ep1-v2.mp4"))
	downloads, err = svc.Downloads(ctx)
	require.NoError(t, err)
	assert.Len(t, downloads, 1)
}

func TestValidationErrors(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.AddToWatchlist(ctx, models.Anime{}), ErrEmptySlug)
	assert.ErrorIs(t, svc.RecordProgress(ctx, "frieren", "", 60000), ErrEmptyEpisode)
	assert.ErrorIs(t, svc.RegisterDownload(ctx, "", "720p", "/x"), ErrEmptyEpisode)
}
