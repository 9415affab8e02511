package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"aniflow/models"
	"aniflow/services/catalog"
)

type fakeCatalog struct {
	home     []models.Anime
	homeErr  error
	detail   *models.AnimeDetail
	manifest *models.StreamManifest
	err      error
}

func (f *fakeCatalog) Home(ctx context.Context) ([]models.Anime, error) {
	return f.home, f.homeErr
}
func (f *fakeCatalog) Ongoing(ctx context.Context, page int) ([]models.Anime, error) {
	return f.home, f.homeErr
}
func (f *fakeCatalog) Search(ctx context.Context, query string) ([]models.Anime, error) {
	return f.home, f.homeErr
}
func (f *fakeCatalog) Trending(ctx context.Context) ([]models.Anime, error) {
	return f.home, f.err
}
func (f *fakeCatalog) TopRated(ctx context.Context) ([]models.Anime, error) {
	return f.home, f.err
}
func (f *fakeCatalog) Genres(ctx context.Context) ([]models.Genre, error) {
	return nil, nil
}
func (f *fakeCatalog) GenreAnime(ctx context.Context, genreSlug string, page int) ([]models.Anime, error) {
	return f.home, nil
}
func (f *fakeCatalog) Detail(ctx context.Context, slug string) (*models.AnimeDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.detail, nil
}
func (f *fakeCatalog) Stream(ctx context.Context, episodeSlug string) (*models.StreamManifest, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.manifest, nil
}

func catalogRouter(h *CatalogHandler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/home", h.Home).Methods(http.MethodGet)
	r.HandleFunc("/api/search", h.Search).Methods(http.MethodGet)
	r.HandleFunc("/api/anime/{slug}", h.Detail).Methods(http.MethodGet)
	r.HandleFunc("/api/episode/{episodeSlug}/stream", h.Stream).Methods(http.MethodGet)
	return r
}

func TestHomeHandler(t *testing.T) {
	h := NewCatalogHandler(&fakeCatalog{home: []models.Anime{{Slug: "frieren", Title: "Frieren"}}})
	req := httptest.NewRequest(http.MethodGet, "/api/home", nil)
	rec := httptest.NewRecorder()
	catalogRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var items []models.Anime
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 || items[0].Slug != "frieren" {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	h := NewCatalogHandler(&fakeCatalog{})
	req := httptest.NewRequest(http.MethodGet, "/api/search", nil)
	rec := httptest.NewRecorder()
	catalogRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDetailMapsBrokenPayloadTo404(t *testing.T) {
	h := NewCatalogHandler(&fakeCatalog{err: catalog.ErrDetailBroken})
	req := httptest.NewRequest(http.MethodGet, "/api/anime/frieren", nil)
	rec := httptest.NewRecorder()
	catalogRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestDetailMapsUpstreamFailureTo502(t *testing.T) {
	h := NewCatalogHandler(&fakeCatalog{err: catalog.ErrNoEndpoint})
	req := httptest.NewRequest(http.MethodGet, "/api/anime/frieren", nil)
	rec := httptest.NewRecorder()
	catalogRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestStreamIncludesResolutions(t *testing.T) {
	h := NewCatalogHandler(&fakeCatalog{manifest: &models.StreamManifest{
		EpisodeSlug: "ep-1",
		StreamURLs:  []string{"https://player.test/embed"},
		Downloads:   map[string][]string{"720p": {"https://dl.test/720.mp4"}},
	}})
	req := httptest.NewRequest(http.MethodGet, "/api/episode/ep-1/stream", nil)
	rec := httptest.NewRecorder()
	catalogRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp streamResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Resolutions) != 2 {
		t.Errorf("resolutions = %v", resp.Resolutions)
	}
	if resp.PlaybackURL != "https://player.test/embed" {
		t.Errorf("playback url = %q", resp.PlaybackURL)
	}
}
