// Package library is the on-device collection: watchlist, watch history and
// the download registry. Reads are memoized for a few seconds because the UI
// refreshes these lists on every screen change; any mutation drops the memo
// synchronously so the next read sees its own write.
package library

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"aniflow/internal/database"
	"aniflow/models"
)

const (
	defaultMaxWatchlistItems = 200
	defaultMaxHistoryItems   = 300

	// minProgressMs filters accidental opens out of the history.
	minProgressMs = 5000

	memoTTL = 15 * time.Second
)

var (
	ErrEmptySlug    = errors.New("library: anime slug is required")
	ErrEmptyEpisode = errors.New("library: episode slug is required")
)

type memo[T any] struct {
	value    T
	cachedAt time.Time
}

func (m *memo[T]) get(now time.Time, ttl time.Duration) (T, bool) {
	var zero T
	if m.cachedAt.IsZero() || now.Sub(m.cachedAt) > ttl {
		return zero, false
	}
	return m.value, true
}

func (m *memo[T]) set(value T, now time.Time) {
	m.value = value
	m.cachedAt = now
}

func (m *memo[T]) drop() {
	m.cachedAt = time.Time{}
}

// Service wraps the library DAO with memoized reads and the retention rules.
type Service struct {
	dao          *database.LibraryDAO
	now          func() time.Time
	maxWatchlist int
	maxHistory   int

	mu            sync.Mutex
	watchlistMemo memo[[]models.WatchlistEntry]
	historyMemo   memo[[]models.WatchHistoryRecord]
	downloadsMemo memo[[]models.DownloadRecord]
}

// NewService wires the DAO with the retention caps. Caps at or below zero
// fall back to the defaults.
func NewService(dao *database.LibraryDAO, maxWatchlist, maxHistory int) *Service {
	if maxWatchlist <= 0 {
		maxWatchlist = defaultMaxWatchlistItems
	}
	if maxHistory <= 0 {
		maxHistory = defaultMaxHistoryItems
	}
	return &Service{dao: dao, now: time.Now, maxWatchlist: maxWatchlist, maxHistory: maxHistory}
}

// AddToWatchlist bookmarks an anime. Re-adding refreshes the entry's position
// at the top of the list; the oldest entries beyond the cap are dropped.
func (s *Service) AddToWatchlist(ctx context.Context, anime models.Anime) error {
	if anime.Slug == "" {
		return ErrEmptySlug
	}
	_, err := s.dao.UpsertWatchlist(models.WatchlistEntry{
		AnimeSlug: anime.Slug,
		Title:     anime.Title,
		Thumbnail: anime.CoverURL,
		AddedAt:   s.now(),
	})
	if err != nil {
		return err
	}
	if err := s.dao.TrimWatchlist(s.maxWatchlist); err != nil {
		log.Printf("[library] watchlist trim failed: %v", err)
	}
	s.invalidateWatchlist()
	return nil
}

func (s *Service) RemoveFromWatchlist(ctx context.Context, animeSlug string) error {
	if animeSlug == "" {
		return ErrEmptySlug
	}
	if err := s.dao.DeleteWatchlistBySlug(animeSlug); err != nil {
		return err
	}
	s.invalidateWatchlist()
	return nil
}

func (s *Service) InWatchlist(ctx context.Context, animeSlug string) (bool, error) {
	entry, err := s.dao.WatchlistBySlug(animeSlug)
	if err != nil {
		return false, err
	}
	return entry != nil, nil
}

// ToggleWatchlist flips membership and reports the new state.
func (s *Service) ToggleWatchlist(ctx context.Context, anime models.Anime) (bool, error) {
	present, err := s.InWatchlist(ctx, anime.Slug)
	if err != nil {
		return false, err
	}
	if present {
		return false, s.RemoveFromWatchlist(ctx, anime.Slug)
	}
	return true, s.AddToWatchlist(ctx, anime)
}

// Watchlist returns the bookmarks, newest first.
func (s *Service) Watchlist(ctx context.Context) ([]models.WatchlistEntry, error) {
	s.mu.Lock()
	if cached, ok := s.watchlistMemo.get(s.now(), memoTTL); ok {
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	entries, err := s.dao.AllWatchlistOrderByLatest()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.watchlistMemo.set(entries, s.now())
	s.mu.Unlock()
	return entries, nil
}

// RecordProgress persists a playback position. Positions under the threshold
// are dropped. Progress is monotonic per (anime, episode): a lower report
// keeps the stored position but still bumps the row's timestamp so the entry
// surfaces as most recently watched.
func (s *Service) RecordProgress(ctx context.Context, animeSlug, episodeSlug string, progressMs int64) error {
	if episodeSlug == "" {
		return ErrEmptyEpisode
	}
	if progressMs < minProgressMs {
		return nil
	}

	existing, err := s.dao.HistoryByAnimeAndEpisode(animeSlug, episodeSlug)
	if err != nil {
		return err
	}
	if existing != nil {
		if progressMs < existing.ProgressMs {
			progressMs = existing.ProgressMs
		}
		existing.ProgressMs = progressMs
		existing.Timestamp = s.now()
		if err := s.dao.UpdateHistory(*existing); err != nil {
			return err
		}
	} else {
		_, err := s.dao.InsertHistory(models.WatchHistoryRecord{
			AnimeSlug:   animeSlug,
			EpisodeSlug: episodeSlug,
			ProgressMs:  progressMs,
			Timestamp:   s.now(),
		})
		if err != nil {
			return err
		}
		if err := s.dao.TrimHistory(s.maxHistory); err != nil {
			log.Printf("[library] history trim failed: %v", err)
		}
	}
	s.invalidateHistory()
	return nil
}

// History returns all watch records, most recent first.
func (s *Service) History(ctx context.Context) ([]models.WatchHistoryRecord, error) {
	s.mu.Lock()
	if cached, ok := s.historyMemo.get(s.now(), memoTTL); ok {
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	records, err := s.dao.AllHistoryOrderByLatest()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.historyMemo.set(records, s.now())
	s.mu.Unlock()
	return records, nil
}

// ContinueWatching is the history collapsed to one row per anime, keeping the
// most recent episode of each.
func (s *Service) ContinueWatching(ctx context.Context) ([]models.WatchHistoryRecord, error) {
	records, err := s.History(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(records))
	out := make([]models.WatchHistoryRecord, 0, len(records))
	for _, rec := range records {
		if _, dup := seen[rec.AnimeSlug]; dup {
			continue
		}
		seen[rec.AnimeSlug] = struct{}{}
		out = append(out, rec)
	}
	return out, nil
}

// LatestForAnime returns the most recent record for one anime, or nil.
func (s *Service) LatestForAnime(ctx context.Context, animeSlug string) (*models.WatchHistoryRecord, error) {
	if animeSlug == "" {
		return nil, ErrEmptySlug
	}
	return s.dao.LatestHistoryByAnime(animeSlug)
}

// ProgressFor returns the stored position for an episode, 0 when unseen.
func (s *Service) ProgressFor(ctx context.Context, animeSlug, episodeSlug string) (int64, error) {
	rec, err := s.dao.HistoryByAnimeAndEpisode(animeSlug, episodeSlug)
	if err != nil {
		return 0, err
	}
	if rec == nil {
		return 0, nil
	}
	return rec.ProgressMs, nil
}

func (s *Service) RemoveHistory(ctx context.Context, id int64) error {
	if err := s.dao.DeleteHistoryByID(id); err != nil {
		return err
	}
	s.invalidateHistory()
	return nil
}

func (s *Service) ClearHistory(ctx context.Context) error {
	if err := s.dao.ClearHistory(); err != nil {
		return err
	}
	s.invalidateHistory()
	return nil
}

// RegisterDownload records a finished download. One row per
// (episode, resolution); registering again just updates the file path.
func (s *Service) RegisterDownload(ctx context.Context, episodeSlug, resolution, path string) error {
	if episodeSlug == "" {
		return ErrEmptyEpisode
	}
	resolution = strings.TrimSpace(resolution)
	if resolution == "" {
		resolution = "Auto"
	}
	existing, err := s.dao.DownloadByEpisodeAndResolution(episodeSlug, resolution)
	if err != nil {
		return err
	}
	if existing != nil {
		if err := s.dao.UpdateDownloadPath(existing.ID, path); err != nil {
			return err
		}
	} else {
		_, err := s.dao.InsertDownload(models.DownloadRecord{
			EpisodeSlug: episodeSlug,
			Resolution:  resolution,
			Path:        path,
			CreatedAt:   s.now(),
		})
		if err != nil {
			return err
		}
	}
	s.invalidateDownloads()
	return nil
}

func (s *Service) Downloads(ctx context.Context) ([]models.DownloadRecord, error) {
	s.mu.Lock()
	if cached, ok := s.downloadsMemo.get(s.now(), memoTTL); ok {
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	records, err := s.dao.AllDownloadsOrderByLatest()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.downloadsMemo.set(records, s.now())
	s.mu.Unlock()
	return records, nil
}

// DownloadFor returns the download row for an episode at a resolution, nil
// when none exists.
func (s *Service) DownloadFor(ctx context.Context, episodeSlug, resolution string) (*models.DownloadRecord, error) {
	resolution = strings.TrimSpace(resolution)
	if resolution == "" {
		resolution = "Auto"
	}
	return s.dao.DownloadByEpisodeAndResolution(episodeSlug, resolution)
}

func (s *Service) RemoveDownload(ctx context.Context, id int64) error {
	if err := s.dao.DeleteDownloadByID(id); err != nil {
		return err
	}
	s.invalidateDownloads()
	return nil
}

func (s *Service) invalidateWatchlist() {
	s.mu.Lock()
	s.watchlistMemo.drop()
	s.mu.Unlock()
}

func (s *Service) invalidateHistory() {
	s.mu.Lock()
	s.historyMemo.drop()
	s.mu.Unlock()
}

func (s *Service) invalidateDownloads() {
	s.mu.Lock()
	s.downloadsMemo.drop()
	s.mu.Unlock()
}
