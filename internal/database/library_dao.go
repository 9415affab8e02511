package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"aniflow/models"
)

// LibraryDAO is the persistence collaborator for the local library. All
// methods are synchronous; callers layer their own read caching on top.
type LibraryDAO struct {
	db *sql.DB
}

// NewLibraryDAO wraps an open database handle.
func NewLibraryDAO(db *sql.DB) *LibraryDAO {
	return &LibraryDAO{db: db}
}

// --- watchlist ---

// UpsertWatchlist replaces any existing row for the slug and inserts a fresh
// one, so a re-add bumps the entry back to the top of the list.
func (d *LibraryDAO) UpsertWatchlist(entry models.WatchlistEntry) (int64, error) {
	if _, err := d.db.Exec(`DELETE FROM watchlist WHERE anime_slug = ?`, entry.AnimeSlug); err != nil {
		return 0, fmt.Errorf("replace watchlist row: %w", err)
	}
	res, err := d.db.Exec(
		`INSERT INTO watchlist (anime_slug, title, thumbnail, added_at) VALUES (?, ?, ?, ?)`,
		entry.AnimeSlug, entry.Title, entry.Thumbnail, entry.AddedAt.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert watchlist row: %w", err)
	}
	return res.LastInsertId()
}

func (d *LibraryDAO) DeleteWatchlistBySlug(animeSlug string) error {
	_, err := d.db.Exec(`DELETE FROM watchlist WHERE anime_slug = ?`, animeSlug)
	return err
}

// WatchlistBySlug returns nil when the slug is not bookmarked.
func (d *LibraryDAO) WatchlistBySlug(animeSlug string) (*models.WatchlistEntry, error) {
	row := d.db.QueryRow(
		`SELECT id, anime_slug, title, thumbnail, added_at FROM watchlist WHERE anime_slug = ? LIMIT 1`,
		animeSlug,
	)
	entry, err := scanWatchlist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (d *LibraryDAO) AllWatchlistOrderByLatest() ([]models.WatchlistEntry, error) {
	rows, err := d.db.Query(`SELECT id, anime_slug, title, thumbnail, added_at FROM watchlist ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]models.WatchlistEntry, 0)
	for rows.Next() {
		entry, err := scanWatchlist(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// TrimWatchlist drops the oldest rows beyond maxRows.
func (d *LibraryDAO) TrimWatchlist(maxRows int) error {
	_, err := d.db.Exec(
		`DELETE FROM watchlist WHERE id NOT IN (SELECT id FROM watchlist ORDER BY id DESC LIMIT ?)`,
		maxRows,
	)
	return err
}

func (d *LibraryDAO) CountWatchlist() (int, error) {
	var count int
	err := d.db.QueryRow(`SELECT COUNT(1) FROM watchlist`).Scan(&count)
	return count, err
}

// --- history ---

func (d *LibraryDAO) InsertHistory(rec models.WatchHistoryRecord) (int64, error) {
	res, err := d.db.Exec(
		`INSERT INTO history (anime_slug, episode_slug, progress_ms, timestamp) VALUES (?, ?, ?, ?)`,
		rec.AnimeSlug, rec.EpisodeSlug, rec.ProgressMs, rec.Timestamp.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert history row: %w", err)
	}
	return res.LastInsertId()
}

func (d *LibraryDAO) UpdateHistory(rec models.WatchHistoryRecord) error {
	_, err := d.db.Exec(
		`UPDATE history SET progress_ms = ?, timestamp = ? WHERE id = ?`,
		rec.ProgressMs, rec.Timestamp.UnixMilli(), rec.ID,
	)
	return err
}

// HistoryByAnimeAndEpisode is a point lookup by composite key; nil when absent.
func (d *LibraryDAO) HistoryByAnimeAndEpisode(animeSlug, episodeSlug string) (*models.WatchHistoryRecord, error) {
	row := d.db.QueryRow(
		`SELECT id, anime_slug, episode_slug, progress_ms, timestamp FROM history
		 WHERE anime_slug = ? AND episode_slug = ? LIMIT 1`,
		animeSlug, episodeSlug,
	)
	return nilOnNoRows(scanHistory(row))
}

// LatestHistoryByAnime returns the most recent record for the anime, nil when
// the anime has no history.
func (d *LibraryDAO) LatestHistoryByAnime(animeSlug string) (*models.WatchHistoryRecord, error) {
	row := d.db.QueryRow(
		`SELECT id, anime_slug, episode_slug, progress_ms, timestamp FROM history
		 WHERE anime_slug = ? ORDER BY timestamp DESC LIMIT 1`,
		animeSlug,
	)
	return nilOnNoRows(scanHistory(row))
}

func (d *LibraryDAO) HistoryByID(id int64) (*models.WatchHistoryRecord, error) {
	row := d.db.QueryRow(
		`SELECT id, anime_slug, episode_slug, progress_ms, timestamp FROM history WHERE id = ? LIMIT 1`,
		id,
	)
	return nilOnNoRows(scanHistory(row))
}

func (d *LibraryDAO) AllHistoryOrderByLatest() ([]models.WatchHistoryRecord, error) {
	rows, err := d.db.Query(
		`SELECT id, anime_slug, episode_slug, progress_ms, timestamp FROM history ORDER BY timestamp DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]models.WatchHistoryRecord, 0)
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (d *LibraryDAO) DeleteHistoryByID(id int64) error {
	_, err := d.db.Exec(`DELETE FROM history WHERE id = ?`, id)
	return err
}

func (d *LibraryDAO) ClearHistory() error {
	_, err := d.db.Exec(`DELETE FROM history`)
	return err
}

// TrimHistory drops the oldest rows (by timestamp) beyond maxRows.
func (d *LibraryDAO) TrimHistory(maxRows int) error {
	_, err := d.db.Exec(
		`DELETE FROM history WHERE id NOT IN (SELECT id FROM history ORDER BY timestamp DESC LIMIT ?)`,
		maxRows,
	)
	return err
}

// --- downloads ---

func (d *LibraryDAO) InsertDownload(rec models.DownloadRecord) (int64, error) {
	res, err := d.db.Exec(
		`INSERT INTO downloads (episode_slug, path, resolution, created_at) VALUES (?, ?, ?, ?)`,
		rec.EpisodeSlug, rec.Path, rec.Resolution, rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert download row: %w", err)
	}
	return res.LastInsertId()
}

func (d *LibraryDAO) UpdateDownloadPath(id int64, path string) error {
	_, err := d.db.Exec(`UPDATE downloads SET path = ? WHERE id = ?`, path, id)
	return err
}

func (d *LibraryDAO) DownloadByEpisodeAndResolution(episodeSlug, resolution string) (*models.DownloadRecord, error) {
	row := d.db.QueryRow(
		`SELECT id, episode_slug, path, resolution, created_at FROM downloads
		 WHERE episode_slug = ? AND resolution = ? LIMIT 1`,
		episodeSlug, resolution,
	)
	rec, err := scanDownload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (d *LibraryDAO) DownloadByID(id int64) (*models.DownloadRecord, error) {
	row := d.db.QueryRow(
		`SELECT id, episode_slug, path, resolution, created_at FROM downloads WHERE id = ? LIMIT 1`,
		id,
	)
	rec, err := scanDownload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (d *LibraryDAO) AllDownloadsOrderByLatest() ([]models.DownloadRecord, error) {
	rows, err := d.db.Query(`SELECT id, episode_slug, path, resolution, created_at FROM downloads ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]models.DownloadRecord, 0)
	for rows.Next() {
		rec, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (d *LibraryDAO) DeleteDownloadByID(id int64) error {
	_, err := d.db.Exec(`DELETE FROM downloads WHERE id = ?`, id)
	return err
}

func (d *LibraryDAO) CountDownloads() (int, error) {
	var count int
	err := d.db.QueryRow(`SELECT COUNT(1) FROM downloads`).Scan(&count)
	return count, err
}

// --- scanning ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWatchlist(row rowScanner) (models.WatchlistEntry, error) {
	var (
		entry models.WatchlistEntry
		added int64
	)
	if err := row.Scan(&entry.ID, &entry.AnimeSlug, &entry.Title, &entry.Thumbnail, &added); err != nil {
		return models.WatchlistEntry{}, err
	}
	entry.AddedAt = time.UnixMilli(added)
	return entry, nil
}

func scanHistory(row rowScanner) (models.WatchHistoryRecord, error) {
	var (
		rec models.WatchHistoryRecord
		ts  int64
	)
	if err := row.Scan(&rec.ID, &rec.AnimeSlug, &rec.EpisodeSlug, &rec.ProgressMs, &ts); err != nil {
		return models.WatchHistoryRecord{}, err
	}
	rec.Timestamp = time.UnixMilli(ts)
	return rec, nil
}

func scanDownload(row rowScanner) (models.DownloadRecord, error) {
	var (
		rec     models.DownloadRecord
		created int64
	)
	if err := row.Scan(&rec.ID, &rec.EpisodeSlug, &rec.Path, &rec.Resolution, &created); err != nil {
		return models.DownloadRecord{}, err
	}
	rec.CreatedAt = time.UnixMilli(created)
	return rec, nil
}

func nilOnNoRows(rec models.WatchHistoryRecord, err error) (*models.WatchHistoryRecord, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
