package catalog

import (
	"context"
	"errors"
	"testing"

	"aniflow/internal/pool"
	"aniflow/models"
)

type fakeStructured struct {
	home    []models.Anime
	homeErr error
	detail  *models.AnimeDetail
	stream  *models.StreamManifest
}

func (f *fakeStructured) Home(ctx context.Context) ([]models.Anime, error) {
	return f.home, f.homeErr
}
func (f *fakeStructured) Ongoing(ctx context.Context, page int) ([]models.Anime, error) {
	return f.home, f.homeErr
}
func (f *fakeStructured) Complete(ctx context.Context, page int) ([]models.Anime, error) {
	return f.home, f.homeErr
}
func (f *fakeStructured) Search(ctx context.Context, query string) ([]models.Anime, error) {
	return f.home, f.homeErr
}
func (f *fakeStructured) Genres(ctx context.Context) ([]models.Genre, error) {
	return nil, errors.New("genres down")
}
func (f *fakeStructured) GenreAnime(ctx context.Context, genreSlug string, page int) ([]models.Anime, error) {
	return nil, nil
}
func (f *fakeStructured) Detail(ctx context.Context, slug string) (*models.AnimeDetail, error) {
	if f.detail == nil {
		return nil, errors.New("no detail")
	}
	return f.detail, nil
}
func (f *fakeStructured) Stream(ctx context.Context, episodeSlug string) (*models.StreamManifest, error) {
	return f.stream, nil
}

type fakeScraped struct {
	home     []models.Anime
	homeErr  error
	topRated []models.Anime
	detail   *models.AnimeDetail
}

func (f *fakeScraped) Home(ctx context.Context) ([]models.Anime, error) {
	return f.home, f.homeErr
}
func (f *fakeScraped) Ongoing(ctx context.Context, page int) ([]models.Anime, error) {
	return f.home, f.homeErr
}
func (f *fakeScraped) Search(ctx context.Context, query string) ([]models.Anime, error) {
	return f.home, f.homeErr
}
func (f *fakeScraped) TopRated(ctx context.Context) ([]models.Anime, error) {
	return f.topRated, nil
}
func (f *fakeScraped) Detail(ctx context.Context, slug string) (*models.AnimeDetail, error) {
	if f.detail == nil {
		return nil, errors.New("no detail")
	}
	return f.detail, nil
}
func (f *fakeScraped) Stream(ctx context.Context, episodeSlug string) (*models.StreamManifest, error) {
	return nil, errors.New("no stream")
}

func anime(slug, title string) models.Anime {
	return models.Anime{Slug: slug, Title: title}
}

func TestHomeMergeDedupFirstProviderWins(t *testing.T) {
	structured := &fakeStructured{home: []models.Anime{
		anime("one-piece", "One Piece (API)"),
		anime("frieren", "Frieren"),
	}}
	scraped := &fakeScraped{home: []models.Anime{
		anime("ONE-PIECE", "One Piece (scraped)"),
		anime("anichin__btth", "Battle Through the Heavens"),
	}}
	svc := NewService(structured, scraped, pool.New(2))

	merged, err := svc.Home(context.Background())
	if err != nil {
		t.Fatalf("Home returned error: %v", err)
	}
	if len(merged) != 3 {
		t.Fatalf("expected 3 after dedup, got %d: %+v", len(merged), merged)
	}
	if merged[0].Title != "One Piece (API)" {
		t.Errorf("first provider should win on duplicate slug, got %q", merged[0].Title)
	}
	if merged[2].Slug != "anichin__btth" {
		t.Errorf("scraped-only record missing: %+v", merged)
	}
}

func TestHomeDegradesWhenOneProviderFails(t *testing.T) {
	structured := &fakeStructured{homeErr: errors.New("api down")}
	scraped := &fakeScraped{home: []models.Anime{anime("anichin__sl2", "Soul Land 2")}}
	svc := NewService(structured, scraped, pool.New(2))

	merged, err := svc.Home(context.Background())
	if err != nil {
		t.Fatalf("Home should degrade, got error: %v", err)
	}
	if len(merged) != 1 || merged[0].Slug != "anichin__sl2" {
		t.Fatalf("unexpected merge: %+v", merged)
	}
}

func TestHomeFailsWhenBothProvidersEmpty(t *testing.T) {
	svc := NewService(&fakeStructured{homeErr: errors.New("down")}, &fakeScraped{homeErr: errors.New("down")}, pool.New(2))
	if _, err := svc.Home(context.Background()); err == nil {
		t.Fatal("expected error when both providers are empty")
	}
}

func TestMergeSyntheticKeysDoNotCollide(t *testing.T) {
	merged := mergeAnime(
		[]models.Anime{{Title: "No Slug A"}, {Title: "No Slug B"}},
		[]models.Anime{{Title: "No Slug A"}},
	)
	if len(merged) != 3 {
		t.Fatalf("slugless records must never dedup each other, got %d", len(merged))
	}
}

func TestTrendingReturnsOngoingList(t *testing.T) {
	structured := &fakeStructured{home: []models.Anime{{Slug: "one-piece", Title: "One Piece"}}}
	svc := NewService(structured, &fakeScraped{}, pool.New(2))

	items, err := svc.Trending(context.Background())
	if err != nil {
		t.Fatalf("Trending returned error: %v", err)
	}
	if len(items) != 1 || items[0].Slug != "one-piece" {
		t.Errorf("unexpected trending list: %+v", items)
	}
}

func TestDirectReadsGoThroughWorkerPool(t *testing.T) {
	structured := &fakeStructured{home: []models.Anime{{Slug: "one-piece", Title: "One Piece"}}}
	svc := NewService(structured, &fakeScraped{}, pool.New(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.Trending(ctx); !errors.Is(err, ErrNoTrending) {
		t.Fatalf("expected ErrNoTrending for rejected admission, got %v", err)
	}
	if _, err := svc.GenreAnime(ctx, "action", 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled from the pool, got %v", err)
	}
	if _, err := svc.Stream(ctx, "one-piece-episode-1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled from the pool, got %v", err)
	}
}

func TestTrendingErrorsOnEmpty(t *testing.T) {
	svc := NewService(&fakeStructured{}, &fakeScraped{}, pool.New(2))
	if _, err := svc.Trending(context.Background()); !errors.Is(err, ErrNoTrending) {
		t.Fatalf("expected ErrNoTrending, got %v", err)
	}
}

func TestTopRatedSortsByScoreDescending(t *testing.T) {
	scraped := &fakeScraped{topRated: []models.Anime{
		{Slug: "anichin__a", Title: "A", Score: 8.1},
		{Slug: "anichin__b", Title: "B", Score: 9.4},
		{Slug: "anichin__c", Title: "C", Score: 8.9},
	}}
	svc := NewService(&fakeStructured{}, scraped, pool.New(2))

	items, err := svc.TopRated(context.Background())
	if err != nil {
		t.Fatalf("TopRated returned error: %v", err)
	}
	if items[0].Slug != "anichin__b" || items[2].Slug != "anichin__a" {
		t.Errorf("not sorted by score: %+v", items)
	}
}

func TestGenresDegradeToEmpty(t *testing.T) {
	svc := NewService(&fakeStructured{}, &fakeScraped{}, pool.New(2))
	genres, err := svc.Genres(context.Background())
	if err != nil {
		t.Fatalf("Genres should degrade, got error: %v", err)
	}
	if genres == nil || len(genres) != 0 {
		t.Fatalf("expected empty slice, got %+v", genres)
	}
}

func TestDetailRoutesByNamespaceAndValidates(t *testing.T) {
	usable := &models.AnimeDetail{
		Anime:    anime("anichin__btth", "Battle Through the Heavens"),
		Episodes: []models.Episode{{Number: 1, Slug: "anichin__btth-episode-1"}},
	}
	broken := &models.AnimeDetail{Anime: anime("frieren", "Untitled")}
	svc := NewService(&fakeStructured{detail: broken}, &fakeScraped{detail: usable}, pool.New(2))

	detail, err := svc.Detail(context.Background(), "anichin__btth")
	if err != nil {
		t.Fatalf("scraped detail should resolve: %v", err)
	}
	if detail.Anime.Slug != "anichin__btth" {
		t.Errorf("wrong provider answered: %+v", detail.Anime)
	}

	if _, err := svc.Detail(context.Background(), "frieren"); !errors.Is(err, ErrDetailBroken) {
		t.Fatalf("broken detail must be rejected, got %v", err)
	}
}

func TestDetailRejectsEpisodelessPayload(t *testing.T) {
	empty := &models.AnimeDetail{Anime: anime("frieren", "Frieren")}
	svc := NewService(&fakeStructured{detail: empty}, &fakeScraped{}, pool.New(2))
	if _, err := svc.Detail(context.Background(), "frieren"); !errors.Is(err, ErrDetailBroken) {
		t.Fatalf("expected ErrDetailBroken, got %v", err)
	}
}
