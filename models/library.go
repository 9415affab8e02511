package models

import "time"

// WatchlistEntry is a durable bookmark of a catalog entry. Only the fields
// needed to render the list again are persisted; the rest is refetched.
type WatchlistEntry struct {
	ID        int64     `json:"id"`
	AnimeSlug string    `json:"animeSlug"`
	Title     string    `json:"title"`
	Thumbnail string    `json:"thumbnail,omitempty"`
	AddedAt   time.Time `json:"addedAt"`
}

// WatchHistoryRecord is the durable playback position for one
// (anime, episode) pair. Progress never regresses; the timestamp always
// advances to the latest report.
type WatchHistoryRecord struct {
	ID          int64     `json:"id"`
	AnimeSlug   string    `json:"animeSlug"`
	EpisodeSlug string    `json:"episodeSlug"`
	ProgressMs  int64     `json:"progressMs"`
	Timestamp   time.Time `json:"timestamp"`
}

// WatchHistoryItem is a history record joined with whatever catalog data is
// available locally, ready for display.
type WatchHistoryItem struct {
	Anime      Anime     `json:"anime"`
	Episode    Episode   `json:"episode"`
	ProgressMs int64     `json:"progressMs"`
	DurationMs int64     `json:"durationMs,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	HistoryID  int64     `json:"historyId"`
}

// DownloadRecord tracks one completed episode download at a given resolution.
type DownloadRecord struct {
	ID          int64     `json:"id"`
	EpisodeSlug string    `json:"episodeSlug"`
	Path        string    `json:"path"`
	Resolution  string    `json:"resolution"`
	CreatedAt   time.Time `json:"createdAt"`
}
