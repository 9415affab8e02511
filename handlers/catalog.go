package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"aniflow/models"
	"aniflow/services/catalog"
	"aniflow/services/stream"

	"github.com/gorilla/mux"
)

type catalogService interface {
	Home(ctx context.Context) ([]models.Anime, error)
	Ongoing(ctx context.Context, page int) ([]models.Anime, error)
	Search(ctx context.Context, query string) ([]models.Anime, error)
	Trending(ctx context.Context) ([]models.Anime, error)
	TopRated(ctx context.Context) ([]models.Anime, error)
	Genres(ctx context.Context) ([]models.Genre, error)
	GenreAnime(ctx context.Context, genreSlug string, page int) ([]models.Anime, error)
	Detail(ctx context.Context, slug string) (*models.AnimeDetail, error)
	Stream(ctx context.Context, episodeSlug string) (*models.StreamManifest, error)
}

var _ catalogService = (*catalog.Service)(nil)

type CatalogHandler struct {
	Service catalogService
}

func NewCatalogHandler(service catalogService) *CatalogHandler {
	return &CatalogHandler{Service: service}
}

func (h *CatalogHandler) Home(w http.ResponseWriter, r *http.Request) {
	items, err := h.Service.Home(r.Context())
	if err != nil {
		http.Error(w, err.Error(), catalogStatus(err))
		return
	}
	writeJSON(w, items)
}

func (h *CatalogHandler) Ongoing(w http.ResponseWriter, r *http.Request) {
	items, err := h.Service.Ongoing(r.Context(), pageParam(r))
	if err != nil {
		http.Error(w, err.Error(), catalogStatus(err))
		return
	}
	writeJSON(w, items)
}

func (h *CatalogHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		http.Error(w, "query parameter q is required", http.StatusBadRequest)
		return
	}
	items, err := h.Service.Search(r.Context(), query)
	if err != nil {
		http.Error(w, err.Error(), catalogStatus(err))
		return
	}
	if items == nil {
		items = []models.Anime{}
	}
	writeJSON(w, items)
}

func (h *CatalogHandler) Trending(w http.ResponseWriter, r *http.Request) {
	items, err := h.Service.Trending(r.Context())
	if err != nil {
		http.Error(w, err.Error(), catalogStatus(err))
		return
	}
	writeJSON(w, items)
}

func (h *CatalogHandler) TopRated(w http.ResponseWriter, r *http.Request) {
	items, err := h.Service.TopRated(r.Context())
	if err != nil {
		http.Error(w, err.Error(), catalogStatus(err))
		return
	}
	writeJSON(w, items)
}

func (h *CatalogHandler) Genres(w http.ResponseWriter, r *http.Request) {
	genres, err := h.Service.Genres(r.Context())
	if err != nil {
		http.Error(w, err.Error(), catalogStatus(err))
		return
	}
	writeJSON(w, genres)
}

func (h *CatalogHandler) GenreAnime(w http.ResponseWriter, r *http.Request) {
	genreSlug := strings.TrimSpace(mux.Vars(r)["genre"])
	if genreSlug == "" {
		http.Error(w, "genre slug is required", http.StatusBadRequest)
		return
	}
	items, err := h.Service.GenreAnime(r.Context(), genreSlug, pageParam(r))
	if err != nil {
		http.Error(w, err.Error(), catalogStatus(err))
		return
	}
	writeJSON(w, items)
}

func (h *CatalogHandler) Detail(w http.ResponseWriter, r *http.Request) {
	slug := strings.TrimSpace(mux.Vars(r)["slug"])
	if slug == "" {
		http.Error(w, "anime slug is required", http.StatusBadRequest)
		return
	}
	detail, err := h.Service.Detail(r.Context(), slug)
	if err != nil {
		http.Error(w, err.Error(), catalogStatus(err))
		return
	}
	writeJSON(w, detail)
}

// streamResponse is the manifest plus the resolution buckets that actually
// have sources, so clients can render the quality picker without re-deriving
// the buckets.
type streamResponse struct {
	Manifest    *models.StreamManifest `json:"manifest"`
	Resolutions []string               `json:"resolutions"`
	PlaybackURL string                 `json:"playbackUrl"`
}

func (h *CatalogHandler) Stream(w http.ResponseWriter, r *http.Request) {
	episodeSlug := strings.TrimSpace(mux.Vars(r)["episodeSlug"])
	if episodeSlug == "" {
		http.Error(w, "episode slug is required", http.StatusBadRequest)
		return
	}
	manifest, err := h.Service.Stream(r.Context(), episodeSlug)
	if err != nil {
		http.Error(w, err.Error(), catalogStatus(err))
		return
	}
	selection := stream.NewSelection(manifest)
	writeJSON(w, streamResponse{
		Manifest:    manifest,
		Resolutions: selection.Labels(),
		PlaybackURL: selection.PlaybackURL(),
	})
}

func catalogStatus(err error) int {
	switch {
	case errors.Is(err, catalog.ErrNoTrending),
		errors.Is(err, catalog.ErrNoTopRated),
		errors.Is(err, catalog.ErrDetailBroken),
		errors.Is(err, catalog.ErrEmptyPayload):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrNoEndpoint):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func pageParam(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}
