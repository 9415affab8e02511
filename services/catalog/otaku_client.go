package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"aniflow/internal/cache"
	"aniflow/models"
)

const (
	defaultOtakuBaseURL = "https://otakudesu-api.vercel.app/api"

	fetchAttempts = 3
	fetchBackoff  = 350 * time.Millisecond

	maxGenresPerAnime = 5
)

var (
	ErrNoEndpoint   = errors.New("catalog: all endpoint candidates failed")
	ErrEmptyPayload = errors.New("catalog: provider returned no usable records")
)

// FetchPolicy bounds the retry loop shared by both provider clients. Zero
// values fall back to the built-in defaults.
type FetchPolicy struct {
	Attempts uint
	Backoff  time.Duration
}

func (p FetchPolicy) withDefaults() FetchPolicy {
	if p.Attempts == 0 {
		p.Attempts = fetchAttempts
	}
	if p.Backoff <= 0 {
		p.Backoff = fetchBackoff
	}
	return p
}

// OtakuClient talks to the structured JSON catalog API. Every endpoint has an
// ordered list of path candidates because the upstream deployment renames
// routes between releases; the first candidate that yields a valid payload
// wins and later candidates are not tried.
type OtakuClient struct {
	httpClient *http.Client
	baseURL    string
	cache      *cache.Store
	policy     FetchPolicy
}

func NewOtakuClient(httpClient *http.Client, baseURL string, store *cache.Store, policy FetchPolicy) *OtakuClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	if baseURL == "" {
		baseURL = defaultOtakuBaseURL
	}
	return &OtakuClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		cache:      store,
		policy:     policy.withDefaults(),
	}
}

func (c *OtakuClient) Home(ctx context.Context) ([]models.Anime, error) {
	return c.fetchList(ctx, cache.Key("otaku", "home"), []string{"/home"})
}

func (c *OtakuClient) Ongoing(ctx context.Context, page int) ([]models.Anime, error) {
	if page < 1 {
		page = 1
	}
	candidates := []string{
		fmt.Sprintf("/ongoing-anime?page=%d", page),
		fmt.Sprintf("/ongoing?page=%d", page),
	}
	return c.fetchList(ctx, cache.Key("otaku", "ongoing", fmt.Sprint(page)), candidates)
}

func (c *OtakuClient) Complete(ctx context.Context, page int) ([]models.Anime, error) {
	if page < 1 {
		page = 1
	}
	candidates := []string{
		fmt.Sprintf("/complete-anime?page=%d", page),
		fmt.Sprintf("/complete?page=%d", page),
	}
	return c.fetchList(ctx, cache.Key("otaku", "complete", fmt.Sprint(page)), candidates)
}

func (c *OtakuClient) Search(ctx context.Context, query string) ([]models.Anime, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, nil
	}
	escaped := url.PathEscape(trimmed)
	candidates := []string{
		"/search/" + escaped,
		"/search?q=" + url.QueryEscape(trimmed),
	}
	return c.fetchList(ctx, cache.Key("otaku", "search", strings.ToLower(trimmed)), candidates)
}

func (c *OtakuClient) Genres(ctx context.Context) ([]models.Genre, error) {
	payload, err := c.fetchJSON(ctx, cache.Key("otaku", "genres"), []string{"/genres", "/genre-list"})
	if err != nil {
		return nil, err
	}
	items := extractList(payload)
	genres := make([]models.Genre, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name := stringField(obj, "name", "genre", "title")
		slug := firstNonEmpty(stringField(obj, "slug"), lastPathSegment(stringField(obj, "endpoint", "url")))
		if name == "" && slug == "" {
			continue
		}
		if name == "" {
			name = prettifySlug(slug)
		}
		genres = append(genres, models.Genre{Name: name, Slug: slug})
	}
	return genres, nil
}

func (c *OtakuClient) GenreAnime(ctx context.Context, genreSlug string, page int) ([]models.Anime, error) {
	if page < 1 {
		page = 1
	}
	escaped := url.PathEscape(strings.TrimSpace(genreSlug))
	candidates := []string{
		fmt.Sprintf("/genres/%s?page=%d", escaped, page),
		fmt.Sprintf("/genre/%s?page=%d", escaped, page),
	}
	return c.fetchList(ctx, cache.Key("otaku", "genre", genreSlug, fmt.Sprint(page)), candidates)
}

func (c *OtakuClient) Detail(ctx context.Context, slug string) (*models.AnimeDetail, error) {
	trimmed := strings.TrimSpace(slug)
	if trimmed == "" {
		return nil, fmt.Errorf("catalog: empty anime slug")
	}
	escaped := url.PathEscape(trimmed)
	payload, err := c.fetchJSON(ctx, cache.Key("otaku", "detail", trimmed), []string{
		"/anime/" + escaped,
		"/detail/" + escaped,
	})
	if err != nil {
		return nil, err
	}
	detail := c.parseDetail(payload, trimmed)
	if detail == nil {
		return nil, fmt.Errorf("catalog: no detail payload for %q: %w", trimmed, ErrEmptyPayload)
	}
	return detail, nil
}

func (c *OtakuClient) Stream(ctx context.Context, episodeSlug string) (*models.StreamManifest, error) {
	trimmed := strings.TrimSpace(episodeSlug)
	if trimmed == "" {
		return nil, fmt.Errorf("catalog: empty episode slug")
	}
	escaped := url.PathEscape(trimmed)
	payload, err := c.fetchJSON(ctx, cache.Key("otaku", "stream", trimmed), []string{
		"/episode/" + escaped,
		"/watch/" + escaped,
	})
	if err != nil {
		return nil, err
	}
	manifest := c.parseStream(payload, trimmed)
	if manifest == nil || !manifest.HasPlayable() {
		return nil, fmt.Errorf("catalog: no playable stream for %q: %w", trimmed, ErrEmptyPayload)
	}
	return manifest, nil
}

// fetchList fetches from the first working candidate and normalizes the
// records out of whatever envelope shape came back.
func (c *OtakuClient) fetchList(ctx context.Context, cacheKey string, candidates []string) ([]models.Anime, error) {
	payload, err := c.fetchJSON(ctx, cacheKey, candidates)
	if err != nil {
		return nil, err
	}
	items := extractList(payload)
	out := make([]models.Anime, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		anime, ok := c.parseAnime(obj)
		if !ok {
			continue
		}
		out = append(out, anime)
	}
	if len(out) == 0 {
		return nil, ErrEmptyPayload
	}
	return out, nil
}

// fetchJSON walks the candidate endpoints, retrying each with a linear
// backoff, and falls back to the cache (first fresh, then stale) when the
// whole cascade fails. Every successful response overwrites the cache entry
// regardless of what was there.
func (c *OtakuClient) fetchJSON(ctx context.Context, cacheKey string, candidates []string) (any, error) {
	var lastErr error
	for _, candidate := range candidates {
		endpoint := c.baseURL + candidate
		body, err := c.fetchOnce(ctx, endpoint)
		if err != nil {
			lastErr = err
			log.Printf("[catalog] endpoint candidate failed: %s: %v", endpoint, err)
			continue
		}
		var payload any
		if err := json.Unmarshal(body, &payload); err != nil {
			lastErr = fmt.Errorf("decode %s: %w", endpoint, err)
			continue
		}
		if err := payloadError(payload); err != nil {
			lastErr = fmt.Errorf("%s: %w", endpoint, err)
			continue
		}
		if c.cache != nil {
			c.cache.Put(cacheKey, body)
		}
		return payload, nil
	}

	if c.cache != nil {
		if raw, ok := c.cache.Get(cacheKey, true); ok {
			var payload any
			if err := json.Unmarshal(raw, &payload); err == nil {
				log.Printf("[catalog] serving cached payload for %s after fetch failure", cacheKey)
				return payload, nil
			}
		}
	}
	if lastErr == nil {
		lastErr = ErrNoEndpoint
	}
	return nil, fmt.Errorf("%w: %v", ErrNoEndpoint, lastErr)
}

func (c *OtakuClient) fetchOnce(ctx context.Context, endpoint string) ([]byte, error) {
	return retry.DoWithData(
		func() ([]byte, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return nil, retry.Unrecoverable(err)
			}
			req.Header.Set("Accept", "application/json")
			resp, err := c.httpClient.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				io.Copy(io.Discard, resp.Body)
				return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
			}
			return io.ReadAll(resp.Body)
		},
		retry.Context(ctx),
		retry.Attempts(c.policy.Attempts),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return time.Duration(n+1) * c.policy.Backoff
		}),
		retry.LastErrorOnly(true),
	)
}

// payloadError rejects bodies that are HTTP 200 but semantically failures.
func payloadError(payload any) error {
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	if msg, present := obj["error"]; present && msg != nil {
		if text, ok := msg.(string); ok && text != "" {
			return fmt.Errorf("provider error: %s", text)
		}
		return fmt.Errorf("provider error field set")
	}
	if success, present := obj["success"]; present {
		if flag, ok := success.(bool); ok && !flag {
			return fmt.Errorf("provider reported success=false")
		}
	}
	return nil
}

// listKeys are the envelope field names the upstream has used for its record
// arrays across deployments, in probe order.
var listKeys = []string{"home", "ongoing", "trending", "popular", "complete", "results", "anime", "list", "items"}

// extractList digs the record array out of the payload: a bare array, a keyed
// array under any known list key, or the same again one "data" level deeper.
func extractList(payload any) []any {
	switch value := payload.(type) {
	case []any:
		return value
	case map[string]any:
		for _, key := range listKeys {
			if arr, ok := value[key].([]any); ok && len(arr) > 0 {
				return arr
			}
		}
		if inner, ok := value["data"]; ok {
			return extractList(inner)
		}
	}
	return nil
}

func unwrapData(payload any) map[string]any {
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	if inner, ok := obj["data"].(map[string]any); ok {
		return inner
	}
	return obj
}

func stringField(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := obj[key]; ok {
			switch v := value.(type) {
			case string:
				if trimmed := strings.TrimSpace(v); trimmed != "" {
					return trimmed
				}
			case float64:
				return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", v), "0"), ".")
			}
		}
	}
	return ""
}

func stringSliceField(obj map[string]any, keys ...string) []string {
	for _, key := range keys {
		value, ok := obj[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				switch g := item.(type) {
				case string:
					out = append(out, g)
				case map[string]any:
					if name := stringField(g, "name", "title", "genre"); name != "" {
						out = append(out, name)
					}
				}
			}
			if len(out) > 0 {
				return out
			}
		case string:
			if v != "" {
				return strings.Split(v, ",")
			}
		}
	}
	return nil
}

func (c *OtakuClient) parseAnime(obj map[string]any) (models.Anime, bool) {
	title := cleanTitle(stringField(obj, "title", "judul", "name", "anime_title"))
	slug := firstNonEmpty(
		stringField(obj, "slug", "anime_slug", "animeId", "anime_id"),
		lastPathSegment(stringField(obj, "endpoint", "link", "url")),
	)
	if isInvalidTitle(title) {
		if slug == "" {
			return models.Anime{}, false
		}
		title = prettifySlug(slug)
		if isInvalidTitle(title) {
			return models.Anime{}, false
		}
	}
	if slug == "" {
		return models.Anime{}, false
	}

	score := parseScore(stringField(obj, "score", "rating", "rate"))
	episodeLabel := stringField(obj, "episode", "current_episode", "episode_count", "total_episode")
	totalLabel := stringField(obj, "total_episodes", "totalEpisodes", "total_episode")
	cover := normalizeImageURL(stringField(obj, "poster", "thumb", "image", "thumbnail"), c.baseURL)
	anime := models.Anime{
		ID:            slugHash(slug),
		Slug:          slug,
		Title:         title,
		CoverURL:      cover,
		BannerURL:     normalizeImageURL(firstNonEmpty(stringField(obj, "banner", "banner_url"), cover), c.baseURL),
		Synopsis:      cleanSynopsis(stringField(obj, "synopsis", "sinopsis", "description")),
		Status:        normalizeStatus(stringField(obj, "status")),
		Score:         score,
		ScoreText:     scoreText(score),
		Genres:        normalizeGenres(stringSliceField(obj, "genres", "genre", "genre_list"), maxGenresPerAnime),
		EpisodeLabel:  episodeLabel,
		EpisodeCount:  parseEpisodeCount(episodeLabel),
		TotalEpisodes: parseEpisodeCount(firstNonEmpty(totalLabel, episodeLabel)),
		ReleaseDate:   formatReleaseDate(stringField(obj, "release_day", "newest_release_date", "release_date", "updated_on")),
		ReleaseYear:   extractYear(stringField(obj, "release_date", "season", "release_year", "aired")),
		Studio:        normalizeStudios(stringField(obj, "studio", "studios"), 3),
		Producer:      normalizePeople(stringField(obj, "produser", "producer", "producers"), 3),
		Duration:      normalizeDuration(stringField(obj, "duration", "durasi")),
		TrailerURL:    stringField(obj, "trailer", "trailer_url", "trailerUrl"),
		SourceURL:     stringField(obj, "url", "link", "otakudesu_url"),
	}
	return anime, true
}

func (c *OtakuClient) parseDetail(payload any, slug string) *models.AnimeDetail {
	obj := unwrapData(payload)
	if obj == nil {
		return nil
	}
	anime, ok := c.parseAnime(obj)
	if !ok {
		anime = models.Anime{
			ID:    slugHash(slug),
			Slug:  slug,
			Title: prettifySlug(slug),
		}
	}
	if anime.Slug == "" {
		anime.Slug = slug
	}

	detail := &models.AnimeDetail{
		Anime: anime,
		Type:  stringField(obj, "type", "tipe"),
	}

	episodes, ok := obj["episode_lists"].([]any)
	if !ok {
		if episodes, ok = obj["episodes"].([]any); !ok {
			episodes, _ = obj["episode_list"].([]any)
		}
	}
	for _, item := range episodes {
		epObj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		epSlug := firstNonEmpty(
			stringField(epObj, "slug", "episode_slug", "id"),
			lastPathSegment(stringField(epObj, "endpoint", "link", "url")),
		)
		if epSlug == "" {
			continue
		}
		epTitle := stringField(epObj, "episode", "title", "episode_title")
		number := parseLastNumber(firstNonEmpty(epTitle, epSlug))
		releaseDate := formatReleaseDate(stringField(epObj, "release_date", "uploaded_on", "date"))
		detail.Episodes = append(detail.Episodes, models.Episode{
			Number:       number,
			Title:        firstNonEmpty(epTitle, fmt.Sprintf("Episode %d", number)),
			Slug:         epSlug,
			ReleaseDate:  releaseDate,
			ThumbnailURL: normalizeImageURL(firstNonEmpty(stringField(epObj, "thumbnail", "thumbnail_url"), anime.CoverURL), c.baseURL),
			Duration:     normalizeDuration(firstNonEmpty(stringField(epObj, "duration", "durasi"), anime.Duration)),
			Released:     inferReleased(stringField(epObj, "release_date", "uploaded_on", "date")),
		})
	}
	if detail.Anime.EpisodeCount == 0 {
		detail.Anime.EpisodeCount = len(detail.Episodes)
	}
	return detail
}

func (c *OtakuClient) parseStream(payload any, episodeSlug string) *models.StreamManifest {
	obj := unwrapData(payload)
	if obj == nil {
		return nil
	}
	manifest := &models.StreamManifest{
		Title:       stringField(obj, "episode", "title"),
		EpisodeSlug: episodeSlug,
		AnimeSlug: firstNonEmpty(
			stringField(obj, "anime_slug"),
			lastPathSegment(stringField(obj, "anime_url", "anime_endpoint")),
		),
		PrevEpisodeSlug: lastPathSegment(stringField(obj, "previous_episode", "prev_episode", "previous_episode_slug")),
		NextEpisodeSlug: lastPathSegment(stringField(obj, "next_episode", "next_episode_slug")),
		Downloads:       map[string][]string{},
	}

	// Primary player URL plus every other http(s) URL reachable in the
	// payload; the shape varies too much between deployments to enumerate.
	if primary := stringField(obj, "streaming_url", "stream_url", "url"); primary != "" {
		manifest.StreamURLs = append(manifest.StreamURLs, primary)
	}
	seen := map[string]struct{}{}
	for _, u := range manifest.StreamURLs {
		seen[u] = struct{}{}
	}
	for _, key := range []string{"mirrors", "mirror", "servers", "streaming"} {
		for _, u := range collectURLs(obj[key]) {
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			manifest.StreamURLs = append(manifest.StreamURLs, u)
		}
	}

	for _, key := range []string{"download_urls", "downloads", "download"} {
		section, ok := obj[key].(map[string]any)
		if !ok {
			continue
		}
		for format, value := range section {
			groups, ok := value.([]any)
			if !ok {
				continue
			}
			for _, group := range groups {
				groupObj, ok := group.(map[string]any)
				if !ok {
					continue
				}
				resolution := firstNonEmpty(stringField(groupObj, "resolution", "quality"), format)
				urls := collectURLs(groupObj["urls"])
				if len(urls) == 0 {
					urls = collectURLs(groupObj)
				}
				if len(urls) > 0 {
					manifest.Downloads[resolution] = append(manifest.Downloads[resolution], urls...)
				}
			}
		}
		break
	}
	return manifest
}

// urlKeys are the field names that carry links in stream payloads.
var urlKeys = []string{"url", "src", "link", "href", "file"}

// collectURLs walks an arbitrary decoded JSON value and gathers every http(s)
// URL stored under a known link key, depth first.
func collectURLs(value any) []string {
	var out []string
	switch v := value.(type) {
	case string:
		if strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") {
			out = append(out, v)
		}
	case []any:
		for _, item := range v {
			out = append(out, collectURLs(item)...)
		}
	case map[string]any:
		for _, key := range urlKeys {
			out = append(out, collectURLs(v[key])...)
		}
		for key, inner := range v {
			if isURLKey(key) {
				continue
			}
			switch inner.(type) {
			case []any, map[string]any:
				out = append(out, collectURLs(inner)...)
			}
		}
	}
	return out
}

func isURLKey(key string) bool {
	for _, k := range urlKeys {
		if k == key {
			return true
		}
	}
	return false
}
