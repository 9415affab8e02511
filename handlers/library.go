package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"aniflow/models"
	"aniflow/services/library"

	"github.com/gorilla/mux"
)

type libraryService interface {
	AddToWatchlist(ctx context.Context, anime models.Anime) error
	RemoveFromWatchlist(ctx context.Context, animeSlug string) error
	InWatchlist(ctx context.Context, animeSlug string) (bool, error)
	ToggleWatchlist(ctx context.Context, anime models.Anime) (bool, error)
	Watchlist(ctx context.Context) ([]models.WatchlistEntry, error)

	RecordProgress(ctx context.Context, animeSlug, episodeSlug string, progressMs int64) error
	History(ctx context.Context) ([]models.WatchHistoryRecord, error)
	ContinueWatching(ctx context.Context) ([]models.WatchHistoryRecord, error)
	LatestForAnime(ctx context.Context, animeSlug string) (*models.WatchHistoryRecord, error)
	RemoveHistory(ctx context.Context, id int64) error
	ClearHistory(ctx context.Context) error

	RegisterDownload(ctx context.Context, episodeSlug, resolution, path string) error
	Downloads(ctx context.Context) ([]models.DownloadRecord, error)
	RemoveDownload(ctx context.Context, id int64) error
}

var _ libraryService = (*library.Service)(nil)

type LibraryHandler struct {
	Service libraryService
}

func NewLibraryHandler(service libraryService) *LibraryHandler {
	return &LibraryHandler{Service: service}
}

func (h *LibraryHandler) ListWatchlist(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Service.Watchlist(r.Context())
	if err != nil {
		http.Error(w, err.Error(), libraryStatus(err))
		return
	}
	if entries == nil {
		entries = []models.WatchlistEntry{}
	}
	writeJSON(w, entries)
}

func (h *LibraryHandler) AddWatchlist(w http.ResponseWriter, r *http.Request) {
	var anime models.Anime
	if err := json.NewDecoder(r.Body).Decode(&anime); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.Service.AddToWatchlist(r.Context(), anime); err != nil {
		http.Error(w, err.Error(), libraryStatus(err))
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *LibraryHandler) ToggleWatchlist(w http.ResponseWriter, r *http.Request) {
	var anime models.Anime
	if err := json.NewDecoder(r.Body).Decode(&anime); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	added, err := h.Service.ToggleWatchlist(r.Context(), anime)
	if err != nil {
		http.Error(w, err.Error(), libraryStatus(err))
		return
	}
	writeJSON(w, map[string]bool{"inWatchlist": added})
}

func (h *LibraryHandler) RemoveWatchlist(w http.ResponseWriter, r *http.Request) {
	slug := strings.TrimSpace(mux.Vars(r)["slug"])
	if err := h.Service.RemoveFromWatchlist(r.Context(), slug); err != nil {
		http.Error(w, err.Error(), libraryStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LibraryHandler) WatchlistContains(w http.ResponseWriter, r *http.Request) {
	slug := strings.TrimSpace(mux.Vars(r)["slug"])
	present, err := h.Service.InWatchlist(r.Context(), slug)
	if err != nil {
		http.Error(w, err.Error(), libraryStatus(err))
		return
	}
	writeJSON(w, map[string]bool{"inWatchlist": present})
}

type progressRequest struct {
	AnimeSlug   string `json:"animeSlug"`
	EpisodeSlug string `json:"episodeSlug"`
	ProgressMs  int64  `json:"progressMs"`
}

func (h *LibraryHandler) RecordProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.Service.RecordProgress(r.Context(), req.AnimeSlug, req.EpisodeSlug, req.ProgressMs); err != nil {
		http.Error(w, err.Error(), libraryStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LibraryHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	records, err := h.Service.History(r.Context())
	if err != nil {
		http.Error(w, err.Error(), libraryStatus(err))
		return
	}
	if records == nil {
		records = []models.WatchHistoryRecord{}
	}
	writeJSON(w, records)
}

func (h *LibraryHandler) ContinueWatching(w http.ResponseWriter, r *http.Request) {
	records, err := h.Service.ContinueWatching(r.Context())
	if err != nil {
		http.Error(w, err.Error(), libraryStatus(err))
		return
	}
	if records == nil {
		records = []models.WatchHistoryRecord{}
	}
	writeJSON(w, records)
}

func (h *LibraryHandler) LatestForAnime(w http.ResponseWriter, r *http.Request) {
	slug := strings.TrimSpace(mux.Vars(r)["slug"])
	record, err := h.Service.LatestForAnime(r.Context(), slug)
	if err != nil {
		http.Error(w, err.Error(), libraryStatus(err))
		return
	}
	if record == nil {
		http.Error(w, "no history for anime", http.StatusNotFound)
		return
	}
	writeJSON(w, record)
}

func (h *LibraryHandler) RemoveHistory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, "invalid history id", http.StatusBadRequest)
		return
	}
	if err := h.Service.RemoveHistory(r.Context(), id); err != nil {
		http.Error(w, err.Error(), libraryStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LibraryHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.ClearHistory(r.Context()); err != nil {
		http.Error(w, err.Error(), libraryStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type downloadRequest struct {
	EpisodeSlug string `json:"episodeSlug"`
	Resolution  string `json:"resolution"`
	Path        string `json:"path"`
}

func (h *LibraryHandler) RegisterDownload(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.Service.RegisterDownload(r.Context(), req.EpisodeSlug, req.Resolution, req.Path); err != nil {
		http.Error(w, err.Error(), libraryStatus(err))
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *LibraryHandler) ListDownloads(w http.ResponseWriter, r *http.Request) {
	records, err := h.Service.Downloads(r.Context())
	if err != nil {
		http.Error(w, err.Error(), libraryStatus(err))
		return
	}
	if records == nil {
		records = []models.DownloadRecord{}
	}
	writeJSON(w, records)
}

func (h *LibraryHandler) RemoveDownload(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, "invalid download id", http.StatusBadRequest)
		return
	}
	if err := h.Service.RemoveDownload(r.Context(), id); err != nil {
		http.Error(w, err.Error(), libraryStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func libraryStatus(err error) int {
	switch {
	case errors.Is(err, library.ErrEmptySlug), errors.Is(err, library.ErrEmptyEpisode):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}
