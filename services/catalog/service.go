package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/sourcegraph/conc"

	"aniflow/internal/pool"
	"aniflow/models"
)

var (
	ErrNoTrending   = errors.New("catalog: no trending data available")
	ErrNoTopRated   = errors.New("catalog: no top-rated data available")
	ErrDetailBroken = errors.New("catalog: detail page is not usable")
)

// structuredProvider is the JSON-API side of the aggregation.
type structuredProvider interface {
	Home(ctx context.Context) ([]models.Anime, error)
	Ongoing(ctx context.Context, page int) ([]models.Anime, error)
	Complete(ctx context.Context, page int) ([]models.Anime, error)
	Search(ctx context.Context, query string) ([]models.Anime, error)
	Genres(ctx context.Context) ([]models.Genre, error)
	GenreAnime(ctx context.Context, genreSlug string, page int) ([]models.Anime, error)
	Detail(ctx context.Context, slug string) (*models.AnimeDetail, error)
	Stream(ctx context.Context, episodeSlug string) (*models.StreamManifest, error)
}

// scrapedProvider is the HTML-scraped side.
type scrapedProvider interface {
	Home(ctx context.Context) ([]models.Anime, error)
	Ongoing(ctx context.Context, page int) ([]models.Anime, error)
	Search(ctx context.Context, query string) ([]models.Anime, error)
	TopRated(ctx context.Context) ([]models.Anime, error)
	Detail(ctx context.Context, slug string) (*models.AnimeDetail, error)
	Stream(ctx context.Context, episodeSlug string) (*models.StreamManifest, error)
}

// Service aggregates the two providers. Multi-provider reads fan out
// concurrently through the shared worker pool and degrade per provider: a
// failed side contributes an empty list instead of failing the merge.
type Service struct {
	structured structuredProvider
	scraped    scrapedProvider
	workers    *pool.Pool
}

func NewService(structured structuredProvider, scraped scrapedProvider, workers *pool.Pool) *Service {
	if workers == nil {
		workers = pool.New(4)
	}
	return &Service{structured: structured, scraped: scraped, workers: workers}
}

func (s *Service) Home(ctx context.Context) ([]models.Anime, error) {
	primary, secondary := s.fanOut(ctx, "home",
		func(ctx context.Context) ([]models.Anime, error) { return s.structured.Home(ctx) },
		func(ctx context.Context) ([]models.Anime, error) { return s.scraped.Home(ctx) },
	)
	merged := mergeAnime(primary, secondary)
	if len(merged) == 0 {
		return nil, fmt.Errorf("catalog: home: %w", ErrEmptyPayload)
	}
	return merged, nil
}

func (s *Service) Ongoing(ctx context.Context, page int) ([]models.Anime, error) {
	primary, secondary := s.fanOut(ctx, "ongoing",
		func(ctx context.Context) ([]models.Anime, error) { return s.structured.Ongoing(ctx, page) },
		func(ctx context.Context) ([]models.Anime, error) { return s.scraped.Ongoing(ctx, page) },
	)
	merged := mergeAnime(primary, secondary)
	if len(merged) == 0 {
		return nil, fmt.Errorf("catalog: ongoing: %w", ErrEmptyPayload)
	}
	return merged, nil
}

func (s *Service) Search(ctx context.Context, query string) ([]models.Anime, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, nil
	}
	primary, secondary := s.fanOut(ctx, "search",
		func(ctx context.Context) ([]models.Anime, error) { return s.structured.Search(ctx, trimmed) },
		func(ctx context.Context) ([]models.Anime, error) { return s.scraped.Search(ctx, trimmed) },
	)
	return mergeAnime(primary, secondary), nil
}

// Trending comes from the structured provider's ongoing list; an empty result
// is an error rather than a silent blank rail.
func (s *Service) Trending(ctx context.Context) ([]models.Anime, error) {
	items, err := admit(ctx, s.workers, func(ctx context.Context) ([]models.Anime, error) {
		return s.structured.Ongoing(ctx, 1)
	})
	if err != nil || len(items) == 0 {
		if err != nil {
			log.Printf("[catalog] trending fetch failed: %v", err)
		}
		return nil, ErrNoTrending
	}
	return items, nil
}

// TopRated comes from the scraped provider only, sorted by score descending.
func (s *Service) TopRated(ctx context.Context) ([]models.Anime, error) {
	items, err := admit(ctx, s.workers, s.scraped.TopRated)
	if err != nil || len(items) == 0 {
		if err != nil {
			log.Printf("[catalog] top-rated fetch failed: %v", err)
		}
		return nil, ErrNoTopRated
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
	return items, nil
}

// Genres degrades to an empty list; the browse screen just hides the rail.
func (s *Service) Genres(ctx context.Context) ([]models.Genre, error) {
	genres, err := admit(ctx, s.workers, s.structured.Genres)
	if err != nil {
		log.Printf("[catalog] genres fetch failed: %v", err)
		return []models.Genre{}, nil
	}
	return genres, nil
}

func (s *Service) GenreAnime(ctx context.Context, genreSlug string, page int) ([]models.Anime, error) {
	return admit(ctx, s.workers, func(ctx context.Context) ([]models.Anime, error) {
		return s.structured.GenreAnime(ctx, genreSlug, page)
	})
}

// Detail routes on the slug namespace and then checks the payload is actually
// renderable: a usable detail has a real title and at least one episode.
func (s *Service) Detail(ctx context.Context, slug string) (*models.AnimeDetail, error) {
	var (
		detail *models.AnimeDetail
		err    error
	)
	detail, err = admit(ctx, s.workers, func(ctx context.Context) (*models.AnimeDetail, error) {
		if IsAnichinSlug(slug) {
			return s.scraped.Detail(ctx, slug)
		}
		return s.structured.Detail(ctx, slug)
	})
	if err != nil {
		return nil, err
	}
	if !isDetailUsable(detail) {
		return nil, fmt.Errorf("%w: %s", ErrDetailBroken, slug)
	}
	return detail, nil
}

func (s *Service) Stream(ctx context.Context, episodeSlug string) (*models.StreamManifest, error) {
	return admit(ctx, s.workers, func(ctx context.Context) (*models.StreamManifest, error) {
		if IsAnichinSlug(episodeSlug) {
			return s.scraped.Stream(ctx, episodeSlug)
		}
		return s.structured.Stream(ctx, episodeSlug)
	})
}

type listFetch func(ctx context.Context) ([]models.Anime, error)

// fanOut runs both provider fetches concurrently through the worker pool.
// Either side failing logs and yields nil; the caller decides whether an
// all-empty merge is an error.
func (s *Service) fanOut(ctx context.Context, operation string, primary, secondary listFetch) ([]models.Anime, []models.Anime) {
	var primaryItems, secondaryItems []models.Anime
	var wg conc.WaitGroup
	wg.Go(func() {
		primaryItems = s.safeList(ctx, operation+"/structured", primary)
	})
	wg.Go(func() {
		secondaryItems = s.safeList(ctx, operation+"/scraped", secondary)
	})
	wg.Wait()
	return primaryItems, secondaryItems
}

func (s *Service) safeList(ctx context.Context, label string, fetch listFetch) []models.Anime {
	var items []models.Anime
	err := s.workers.Do(ctx, func() error {
		var fetchErr error
		items, fetchErr = fetch(ctx)
		return fetchErr
	})
	if err != nil {
		log.Printf("[catalog] %s fetch degraded to empty: %v", label, err)
		return nil
	}
	return items
}

// admit runs a single provider call through the shared worker pool so direct
// reads compete for the same fetch budget as the merge fan-outs.
func admit[T any](ctx context.Context, workers *pool.Pool, fetch func(context.Context) (T, error)) (T, error) {
	var out T
	err := workers.Do(ctx, func() error {
		var fetchErr error
		out, fetchErr = fetch(ctx)
		return fetchErr
	})
	return out, err
}

// mergeAnime concatenates provider lists with order-preserving dedup. The key
// is the lowercase slug; records without one get a synthetic key from their
// position and title so they never collide away real entries. First
// occurrence wins, so the earlier provider's record is authoritative.
func mergeAnime(lists ...[]models.Anime) []models.Anime {
	seen := make(map[string]struct{})
	var out []models.Anime
	position := 0
	for _, list := range lists {
		for _, anime := range list {
			key := strings.ToLower(strings.TrimSpace(anime.Slug))
			if key == "" {
				key = fmt.Sprintf("anime_%d_%d", position, slugHash(strings.ToLower(anime.Title)))
			}
			position++
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, anime)
		}
	}
	return out
}

func isDetailUsable(detail *models.AnimeDetail) bool {
	if detail == nil {
		return false
	}
	if isInvalidTitle(detail.Anime.Title) {
		return false
	}
	return len(detail.Episodes) > 0
}
