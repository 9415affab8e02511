package catalog

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/avast/retry-go/v4"

	"aniflow/internal/cache"
	"aniflow/models"
)

const (
	defaultAnichinBaseURL = "https://anichin.cafe"

	// AnichinSlugPrefix namespaces scraped slugs so the detail and stream
	// resolvers can route them back to this client.
	AnichinSlugPrefix = "anichin__"
)

var ErrNotAnichinSlug = errors.New("catalog: slug is not namespaced for anichin")

// AnichinClient scrapes the donghua site. The markup drifts between theme
// updates, so every extraction runs an ordered chain of selectors and takes
// the first non-empty result.
type AnichinClient struct {
	httpClient *http.Client
	baseURL    string
	cache      *cache.Store
	policy     FetchPolicy
}

func NewAnichinClient(httpClient *http.Client, baseURL string, store *cache.Store, policy FetchPolicy) *AnichinClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 25 * time.Second}
	}
	if baseURL == "" {
		baseURL = defaultAnichinBaseURL
	}
	return &AnichinClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		cache:      store,
		policy:     policy.withDefaults(),
	}
}

// IsAnichinSlug reports whether the slug carries this client's namespace.
func IsAnichinSlug(slug string) bool {
	return strings.HasPrefix(slug, AnichinSlugPrefix)
}

// StripAnichinPrefix returns the site-native slug.
func StripAnichinPrefix(slug string) string {
	return strings.TrimPrefix(slug, AnichinSlugPrefix)
}

func (c *AnichinClient) Home(ctx context.Context) ([]models.Anime, error) {
	doc, err := c.fetchDocument(ctx, cache.Key("anichin", "home"), c.baseURL+"/")
	if err != nil {
		return nil, err
	}
	items := c.parseSeriesCards(doc)
	if len(items) == 0 {
		return nil, ErrEmptyPayload
	}
	return items, nil
}

func (c *AnichinClient) Ongoing(ctx context.Context, page int) ([]models.Anime, error) {
	if page < 1 {
		page = 1
	}
	pageURL := fmt.Sprintf("%s/anime/?page=%d&status=ongoing&order=update", c.baseURL, page)
	doc, err := c.fetchDocument(ctx, cache.Key("anichin", "ongoing", fmt.Sprint(page)), pageURL)
	if err != nil {
		return nil, err
	}
	items := c.parseSeriesCards(doc)
	if len(items) == 0 {
		return nil, ErrEmptyPayload
	}
	return items, nil
}

func (c *AnichinClient) Search(ctx context.Context, query string) ([]models.Anime, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, nil
	}
	pageURL := c.baseURL + "/?s=" + url.QueryEscape(trimmed)
	doc, err := c.fetchDocument(ctx, cache.Key("anichin", "search", strings.ToLower(trimmed)), pageURL)
	if err != nil {
		return nil, err
	}
	return c.parseSeriesCards(doc), nil
}

// TopRated scrapes the popular-series ranking. The site stopped exposing
// numeric ratings on list pages, so a score is synthesized from the rank when
// the markup carries none.
func (c *AnichinClient) TopRated(ctx context.Context) ([]models.Anime, error) {
	pageURL := c.baseURL + "/anime/?order=popular"
	doc, err := c.fetchDocument(ctx, cache.Key("anichin", "top-rated"), pageURL)
	if err != nil {
		return nil, err
	}
	items := c.parseSeriesCards(doc)
	if len(items) == 0 {
		return nil, ErrEmptyPayload
	}
	for i := range items {
		if items[i].Score == 0 {
			score := 9.8 - float64(i)*0.05
			if score < 7.0 {
				score = 7.0
			}
			items[i].Score = score
			items[i].ScoreText = scoreText(score)
		}
	}
	return items, nil
}

func (c *AnichinClient) Detail(ctx context.Context, slug string) (*models.AnimeDetail, error) {
	if !IsAnichinSlug(slug) {
		return nil, ErrNotAnichinSlug
	}
	native := StripAnichinPrefix(slug)
	if native == "" {
		return nil, fmt.Errorf("catalog: empty anichin slug")
	}
	pageURL := c.baseURL + "/seri/" + url.PathEscape(native) + "/"
	doc, err := c.fetchDocument(ctx, cache.Key("anichin", "detail", native), pageURL)
	if err != nil {
		return nil, err
	}
	return c.parseDetail(doc, slug, pageURL)
}

func (c *AnichinClient) Stream(ctx context.Context, episodeSlug string) (*models.StreamManifest, error) {
	if !IsAnichinSlug(episodeSlug) {
		return nil, ErrNotAnichinSlug
	}
	native := StripAnichinPrefix(episodeSlug)
	if native == "" {
		return nil, fmt.Errorf("catalog: empty anichin episode slug")
	}
	pageURL := c.baseURL + "/" + url.PathEscape(native) + "/"
	doc, err := c.fetchDocument(ctx, cache.Key("anichin", "stream", native), pageURL)
	if err != nil {
		return nil, err
	}
	manifest := c.parseStreamPage(doc, episodeSlug)
	if manifest == nil || !manifest.HasPlayable() {
		return nil, fmt.Errorf("catalog: no playable stream for %q: %w", episodeSlug, ErrEmptyPayload)
	}
	return manifest, nil
}

func (c *AnichinClient) fetchDocument(ctx context.Context, cacheKey, pageURL string) (*goquery.Document, error) {
	body, err := c.fetchOnce(ctx, pageURL)
	if err != nil {
		log.Printf("[catalog] anichin fetch failed: %s: %v", pageURL, err)
		if c.cache != nil {
			if raw, ok := c.cache.Get(cacheKey, true); ok {
				log.Printf("[catalog] serving cached page for %s after fetch failure", cacheKey)
				return goquery.NewDocumentFromReader(bytes.NewReader(raw))
			}
		}
		return nil, err
	}
	if c.cache != nil {
		c.cache.Put(cacheKey, body)
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

func (c *AnichinClient) fetchOnce(ctx context.Context, pageURL string) ([]byte, error) {
	return retry.DoWithData(
		func() ([]byte, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
			if err != nil {
				return nil, retry.Unrecoverable(err)
			}
			req.Header.Set("User-Agent", "Mozilla/5.0 (Linux; Android 13) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Mobile Safari/537.36")
			req.Header.Set("Accept-Language", "id-ID,id;q=0.9,en;q=0.8")
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

// selectFirstText runs selector candidates in order and returns the first
// non-blank text.
func selectFirstText(doc *goquery.Document, selectors ...string) string {
	for _, selector := range selectors {
		if text := strings.TrimSpace(doc.Find(selector).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func selectFirstAttr(sel *goquery.Selection, attr string, selectors ...string) string {
	for _, selector := range selectors {
		if value, ok := sel.Find(selector).First().Attr(attr); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

func imageSrc(sel *goquery.Selection, selectors ...string) string {
	for _, selector := range selectors {
		img := sel.Find(selector).First()
		for _, attr := range []string{"data-src", "data-lazy-src", "src"} {
			if value, ok := img.Attr(attr); ok {
				if trimmed := strings.TrimSpace(value); trimmed != "" {
					return trimmed
				}
			}
		}
	}
	return ""
}

// parseSeriesCards extracts series tiles from any listing page. The grid
// wrapper class changes between themes; fall back to bare article cards.
func (c *AnichinClient) parseSeriesCards(doc *goquery.Document) []models.Anime {
	cards := doc.Find("div.listupd article.bs")
	if cards.Length() == 0 {
		cards = doc.Find("article.bs")
	}
	out := make([]models.Anime, 0, cards.Length())
	cards.Each(func(rank int, card *goquery.Selection) {
		href := selectFirstAttr(card, "href", "a")
		slug := lastPathSegment(href)
		if slug == "" {
			return
		}
		title := cleanTitle(firstNonEmpty(
			card.Find("div.tt h2").First().Text(),
			card.Find("div.tt").First().Text(),
			selectFirstAttr(card, "title", "a"),
		))
		if isInvalidTitle(title) {
			title = prettifySlug(slug)
			if isInvalidTitle(title) {
				return
			}
		}
		namespaced := AnichinSlugPrefix + slug
		score := parseScore(card.Find("div.numscore").First().Text())
		episodeLabel := strings.TrimSpace(card.Find("span.epx").First().Text())
		out = append(out, models.Anime{
			ID:           slugHash(namespaced),
			Slug:         namespaced,
			Title:        title,
			CoverURL:     normalizeImageURL(imageSrc(card, "img"), c.baseURL),
			Status:       normalizeStatus(episodeLabel),
			Score:        score,
			ScoreText:    scoreText(score),
			EpisodeLabel: episodeLabel,
			EpisodeCount: parseEpisodeCount(episodeLabel),
			SourceURL:    href,
		})
	})
	return out
}

func (c *AnichinClient) parseDetail(doc *goquery.Document, namespacedSlug, pageURL string) (*models.AnimeDetail, error) {
	title := cleanTitle(firstNonEmpty(
		selectFirstText(doc, "h1.entry-title", "div.infox h1", "div.breadcrumb li:last-child span"),
		prettifySlug(StripAnichinPrefix(namespacedSlug)),
	))
	if isInvalidTitle(title) {
		return nil, fmt.Errorf("catalog: no usable detail page for %q: %w", namespacedSlug, ErrEmptyPayload)
	}

	specs := parseSpecs(doc)
	score := parseScore(firstNonEmpty(
		selectFirstText(doc, "div.rating strong", "div.rating-prc div.num", "span[itemprop=ratingValue]"),
		specs["rating"],
	))

	var genres []string
	doc.Find("div.genxed a, span.genxed a, div.info-content div.genre a").Each(func(_ int, link *goquery.Selection) {
		genres = append(genres, link.Text())
	})

	synopsis := firstNonEmpty(
		selectFirstText(doc, "div.entry-content[itemprop=description]", "div.synp div.entry-content", "div.desc"),
	)

	anime := models.Anime{
		ID:          slugHash(namespacedSlug),
		Slug:        namespacedSlug,
		Title:       title,
		CoverURL:    normalizeImageURL(imageSrc(doc.Selection, "div.thumb img", "div.thumbook img"), pageURL),
		BannerURL:   normalizeImageURL(imageSrc(doc.Selection, "div.bigcover img"), pageURL),
		Synopsis:    cleanSynopsis(synopsis),
		Status:      normalizeStatus(firstNonEmpty(specs["status"], selectFirstText(doc, "div.spe span:contains(Status)"))),
		Score:       score,
		ScoreText:   scoreText(score),
		Genres:      normalizeGenres(genres, maxGenresPerAnime),
		ReleaseDate: formatReleaseDate(firstNonEmpty(specs["released"], specs["rilis"])),
		ReleaseYear: extractYear(firstNonEmpty(specs["released"], specs["rilis"], specs["season"])),
		Studio:      normalizeStudios(specs["studio"], 3),
		Producer:    normalizePeople(firstNonEmpty(specs["network"], specs["produser"]), 3),
		Duration:    normalizeDuration(specs["duration"]),
		SourceURL:   pageURL,
	}

	detail := &models.AnimeDetail{
		Anime: anime,
		Type:  firstNonEmpty(specs["type"], specs["tipe"]),
	}

	// Episode list; newest first in the markup. Fall back to the
	// latest-episode teaser block when the full list is missing.
	doc.Find("div.eplister ul li a").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		epSlug := lastPathSegment(href)
		if epSlug == "" {
			return
		}
		numText := strings.TrimSpace(link.Find("div.epl-num").First().Text())
		epTitle := strings.TrimSpace(link.Find("div.epl-title").First().Text())
		number := parseLastNumber(firstNonEmpty(numText, epSlug))
		releaseDate := strings.TrimSpace(link.Find("div.epl-date").First().Text())
		detail.Episodes = append(detail.Episodes, models.Episode{
			Number:      number,
			Title:       firstNonEmpty(epTitle, fmt.Sprintf("Episode %d", number)),
			Slug:        AnichinSlugPrefix + epSlug,
			ReleaseDate: formatReleaseDate(releaseDate),
			Released:    inferReleased(releaseDate),
		})
	})
	if len(detail.Episodes) == 0 {
		doc.Find("div.lastend div.inepcx a").Each(func(_ int, link *goquery.Selection) {
			href, _ := link.Attr("href")
			epSlug := lastPathSegment(href)
			if epSlug == "" {
				return
			}
			number := parseLastNumber(epSlug)
			detail.Episodes = append(detail.Episodes, models.Episode{
				Number:   number,
				Title:    fmt.Sprintf("Episode %d", number),
				Slug:     AnichinSlugPrefix + epSlug,
				Released: true,
			})
		})
	}
	if detail.Anime.EpisodeCount == 0 {
		detail.Anime.EpisodeCount = len(detail.Episodes)
	}
	return detail, nil
}

// parseSpecs reads the "Status: Ongoing" style info rows into a lowercase
// label map.
func parseSpecs(doc *goquery.Document) map[string]string {
	specs := map[string]string{}
	doc.Find("div.info-content div.spe span, div.spe span").Each(func(_ int, row *goquery.Selection) {
		text := strings.TrimSpace(row.Text())
		label, value, found := strings.Cut(text, ":")
		if !found {
			return
		}
		key := strings.ToLower(strings.TrimSpace(label))
		if _, exists := specs[key]; !exists {
			specs[key] = strings.TrimSpace(value)
		}
	})
	return specs
}

func (c *AnichinClient) parseStreamPage(doc *goquery.Document, namespacedSlug string) *models.StreamManifest {
	manifest := &models.StreamManifest{
		Title:       selectFirstText(doc, "h1.entry-title", "div.infox h1"),
		EpisodeSlug: namespacedSlug,
		Downloads:   map[string][]string{},
	}

	if href := selectFirstAttr(doc.Selection, "href", "div.naveps a.prev, a[rel=prev]"); href != "" {
		if slug := lastPathSegment(href); slug != "" {
			manifest.PrevEpisodeSlug = AnichinSlugPrefix + slug
		}
	}
	if href := selectFirstAttr(doc.Selection, "href", "div.naveps a.next, a[rel=next]"); href != "" {
		if slug := lastPathSegment(href); slug != "" {
			manifest.NextEpisodeSlug = AnichinSlugPrefix + slug
		}
	}
	if href := selectFirstAttr(doc.Selection, "href", "div.det a, span.year a"); href != "" {
		if slug := lastPathSegment(href); slug != "" {
			manifest.AnimeSlug = AnichinSlugPrefix + slug
		}
	}

	seen := map[string]struct{}{}
	addStream := func(raw string) {
		u := strings.TrimSpace(raw)
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		manifest.StreamURLs = append(manifest.StreamURLs, u)
	}

	// Default player iframe.
	if src := selectFirstAttr(doc.Selection, "src", "div#pembed iframe, div.player-embed iframe, iframe"); src != "" {
		addStream(src)
	}

	// Mirror dropdown: each option value is a base64 blob of embed markup.
	doc.Find("select.mirror option").Each(func(_ int, option *goquery.Selection) {
		encoded, ok := option.Attr("value")
		if !ok || strings.TrimSpace(encoded) == "" {
			return
		}
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
		if err != nil {
			return
		}
		fragment, err := goquery.NewDocumentFromReader(bytes.NewReader(decoded))
		if err != nil {
			return
		}
		if src, ok := fragment.Find("iframe").First().Attr("src"); ok {
			addStream(src)
		}
	})

	// Download table grouped by resolution.
	doc.Find("div.mctnx div.soraddlx, div.soraddlx").Each(func(_ int, block *goquery.Selection) {
		block.Find("div.soraurlx").Each(func(_ int, group *goquery.Selection) {
			resolution := strings.TrimSpace(group.Find("strong").First().Text())
			if resolution == "" {
				resolution = "Auto"
			}
			group.Find("a").Each(func(_ int, link *goquery.Selection) {
				href, _ := link.Attr("href")
				href = strings.TrimSpace(href)
				if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
					manifest.Downloads[resolution] = append(manifest.Downloads[resolution], href)
				}
			})
		})
	})
	return manifest
}
