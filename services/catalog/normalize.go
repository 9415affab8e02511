package catalog

import (
	"fmt"
	"hash/fnv"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"aniflow/models"
)

var (
	digitPattern      = regexp.MustCompile(`(\d+)`)
	yearPattern       = regexp.MustCompile(`(19\d{2}|20\d{2})`)
	lastNumberPattern = regexp.MustCompile(`(\d+)(?:\D*)$`)
	spacesPattern     = regexp.MustCompile(`\s{2,}`)
	subtitleTagRe     = regexp.MustCompile(`(?i)subtitle indonesia`)
	peopleLabelRe     = regexp.MustCompile(`(?i)(?:produser|producer)\s*[:：]\s*`)
	studioLabelRe     = regexp.MustCompile(`(?i)^studio\s*[:：]?\s*`)
	peopleSplitRe     = regexp.MustCompile(`[,;/]|\band\b|\bdan\b`)
	nonScoreCharRe    = regexp.MustCompile(`[^0-9.]`)
)

// Titles some providers return for broken records; any of these means the
// record is unusable.
var badTitles = map[string]struct{}{
	"untitled":    {},
	"unknown":     {},
	"unseen love": {},
	"null":        {},
	"-":           {},
}

func isInvalidTitle(title string) bool {
	value := strings.ToLower(strings.TrimSpace(title))
	if value == "" {
		return true
	}
	_, bad := badTitles[value]
	return bad
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func cleanTitle(value string) string {
	title := subtitleTagRe.ReplaceAllString(strings.TrimSpace(value), "")
	return strings.TrimSpace(spacesPattern.ReplaceAllString(title, " "))
}

// cleanSynopsis collapses whitespace and suppresses "synopses" that are really
// episode listings pasted into the field.
func cleanSynopsis(text string) string {
	value := strings.TrimSpace(text)
	if value == "" {
		return ""
	}
	value = strings.ReplaceAll(value, " ", " ")
	value = strings.Join(strings.Fields(value), " ")

	lower := strings.ToLower(value)
	seasonMentions := strings.Count(lower, "season ")
	episodeMentions := strings.Count(lower, "episode ")
	if seasonMentions >= 3 || (seasonMentions >= 2 && episodeMentions >= 4) {
		return ""
	}
	return value
}

// parseScore extracts a 0-10 rating. Values above 10 are provider garbage
// (percentages leaking into the rating field) and read as absent, not clamped.
func parseScore(raw string) float64 {
	sanitized := nonScoreCharRe.ReplaceAllString(strings.ReplaceAll(raw, ",", "."), "")
	if sanitized == "" {
		return 0
	}
	value, err := strconv.ParseFloat(sanitized, 64)
	if err != nil || value < 0 || value > 10 {
		return 0
	}
	return value
}

func scoreText(score float64) string {
	if score > 0 {
		return fmt.Sprintf("%.2f", score)
	}
	return "-"
}

func parseEpisodeCount(text string) int {
	match := digitPattern.FindString(text)
	if match == "" {
		return 0
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return n
}

func parseLastNumber(text string) int {
	match := lastNumberPattern.FindStringSubmatch(text)
	if match == nil {
		return 0
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return n
}

func normalizeStatus(raw string) models.AnimeStatus {
	value := strings.TrimSpace(raw)
	if value == "" {
		return models.StatusUnknown
	}
	lower := strings.ToLower(value)
	switch {
	case strings.Contains(lower, "complete") || strings.Contains(lower, "finish") || strings.Contains(lower, "end"):
		return models.StatusCompleted
	case strings.Contains(lower, "ongoing") || strings.Contains(lower, "release"):
		return models.StatusOngoing
	case strings.Contains(lower, "upcoming") || strings.Contains(lower, "coming") ||
		strings.Contains(lower, "soon") || strings.Contains(lower, "preview"):
		return models.StatusUpcoming
	}
	return models.AnimeStatus(value)
}

func normalizeGenres(genres []string, max int) []string {
	if len(genres) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(genres))
	out := make([]string, 0, max)
	for _, genre := range genres {
		cleaned := strings.TrimSpace(genre)
		if cleaned == "" {
			continue
		}
		if _, dup := seen[cleaned]; dup {
			continue
		}
		seen[cleaned] = struct{}{}
		out = append(out, cleaned)
		if len(out) >= max {
			break
		}
	}
	return out
}

// normalizePeople splits a free-text credits field on common separators, drops
// label noise, and caps the result.
func normalizePeople(raw string, max int) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "-"
	}
	value = peopleLabelRe.ReplaceAllString(value, "")
	value = strings.TrimSpace(spacesPattern.ReplaceAllString(value, " "))

	seen := make(map[string]struct{})
	cleaned := make([]string, 0, max)
	for _, part := range peopleSplitRe.Split(value, -1) {
		token := strings.TrimSpace(part)
		token = strings.TrimSpace(studioLabelRe.ReplaceAllString(token, ""))
		if token == "" || strings.EqualFold(token, "studio") {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		cleaned = append(cleaned, token)
		if len(cleaned) >= max {
			break
		}
	}
	if len(cleaned) == 0 {
		return "-"
	}
	return strings.Join(cleaned, ", ")
}

func normalizeStudios(raw string, max int) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "-"
	}
	// Some providers jam "Produser: X Studio: Y" into one field; keep the
	// studio tail.
	lower := strings.ToLower(value)
	if strings.Contains(lower, "produser") && strings.Contains(lower, "studio") {
		if idx := strings.LastIndex(lower, "studio"); idx >= 0 && idx+6 < len(value) {
			value = strings.TrimSpace(value[idx+6:])
		}
	}
	value = studioLabelRe.ReplaceAllString(value, "")
	return normalizePeople(value, max)
}

func normalizeDuration(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "-"
	}
	if match := digitPattern.FindString(value); match != "" {
		return match + " menit"
	}
	return value
}

func extractYear(raw string) string {
	if match := yearPattern.FindString(raw); match != "" {
		return match
	}
	return "-"
}

// shortMonths maps English and Indonesian month spellings to the short form
// used in the normalized release date.
var shortMonths = map[string]string{
	"jan": "Jan", "january": "Jan", "januari": "Jan",
	"feb": "Feb", "february": "Feb", "februari": "Feb",
	"mar": "Mar", "march": "Mar", "maret": "Mar",
	"apr": "Apr", "april": "Apr",
	"mei": "Mei", "may": "Mei",
	"jun": "Jun", "june": "Jun", "juni": "Jun",
	"jul": "Jul", "july": "Jul", "juli": "Jul",
	"aug": "Agu", "agu": "Agu", "august": "Agu", "agustus": "Agu",
	"sep": "Sep", "september": "Sep",
	"oct": "Okt", "okt": "Okt", "october": "Okt", "oktober": "Okt",
	"nov": "Nov", "november": "Nov",
	"dec": "Des", "des": "Des", "december": "Des", "desember": "Des",
}

func shortMonth(token string) string {
	return shortMonths[strings.ToLower(strings.TrimSpace(token))]
}

func isMonth(token string) bool { return shortMonth(token) != "" }

func isNumber(token string) bool {
	_, err := strconv.Atoi(token)
	return err == nil
}

func isYearToken(token string) bool {
	n, err := strconv.Atoi(token)
	return err == nil && n >= 1900 && n <= 2100
}

func twoDigit(day string) string {
	n, err := strconv.Atoi(day)
	if err != nil {
		return day
	}
	return fmt.Sprintf("%02d", n)
}

// formatReleaseDate normalizes free-text release dates to "DD Mon [YYYY]".
// Unrecognized shapes pass through with months shortened.
func formatReleaseDate(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "-"
	}
	value = strings.ReplaceAll(value, ",", " ")
	parts := strings.Fields(value)
	if len(parts) < 2 {
		return strings.Join(parts, " ")
	}
	for i, part := range parts {
		if short := shortMonth(part); short != "" {
			parts[i] = short
		}
	}

	switch {
	case isMonth(parts[0]) && isNumber(parts[1]):
		if len(parts) >= 3 && isYearToken(parts[2]) {
			return twoDigit(parts[1]) + " " + parts[0] + " " + parts[2]
		}
		return twoDigit(parts[1]) + " " + parts[0]
	case isNumber(parts[0]) && isMonth(parts[1]):
		if len(parts) >= 3 && isYearToken(parts[2]) {
			return twoDigit(parts[0]) + " " + parts[1] + " " + parts[2]
		}
		return twoDigit(parts[0]) + " " + parts[1]
	}
	return strings.Join(parts, " ")
}

var releaseDateLayouts = []string{
	"02 Jan 2006", "2 Jan 2006", "02 January 2006", "2 January 2006",
	"Jan 02 2006", "Jan 2 2006", "January 02 2006", "January 2 2006",
	"02 Jan", "2 Jan", "02 January", "2 January",
}

// englishMonths undoes the Indonesian short forms so time.Parse can work.
var englishMonths = map[string]string{
	"Mei": "May", "Agu": "Aug", "Okt": "Oct", "Des": "Dec",
}

func tryParseDate(raw string) (time.Time, bool) {
	formatted := formatReleaseDate(raw)
	parts := strings.Fields(formatted)
	for i, part := range parts {
		if en, ok := englishMonths[part]; ok {
			parts[i] = en
		}
	}
	formatted = strings.Join(parts, " ")

	for _, layout := range releaseDateLayouts {
		parsed, err := time.Parse(layout, formatted)
		if err != nil {
			continue
		}
		if parsed.Year() == 0 {
			now := time.Now()
			parsed = time.Date(now.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.Local)
		}
		return parsed, true
	}
	return time.Time{}, false
}

// inferReleased decides whether an episode is actually out based on its
// release-date text. Unparseable dates are released unless the text says
// otherwise; parseable dates up to 18h in the future count as released to
// absorb timezone skew.
func inferReleased(releaseDateRaw string) bool {
	raw := strings.TrimSpace(releaseDateRaw)
	if raw == "" {
		return true
	}
	parsed, ok := tryParseDate(raw)
	if !ok {
		lower := strings.ToLower(raw)
		return !strings.Contains(lower, "coming soon") &&
			!strings.Contains(lower, "preview") &&
			!strings.Contains(lower, "upcoming")
	}
	return !parsed.After(time.Now().Add(18 * time.Hour))
}

// normalizeImageURL absolutizes relative image paths against the page origin.
func normalizeImageURL(rawImageURL, pageURL string) string {
	value := strings.TrimSpace(rawImageURL)
	if value == "" {
		return ""
	}
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		return value
	}
	if strings.HasPrefix(value, "//") {
		return "https:" + value
	}
	origin := extractOrigin(pageURL)
	if origin == "" {
		return value
	}
	if strings.HasPrefix(value, "/") {
		return origin + value
	}
	return origin + "/" + value
}

func extractOrigin(rawURL string) string {
	value := strings.TrimSpace(rawURL)
	if value == "" {
		return ""
	}
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// lastPathSegment canonicalizes a slug out of a URL or path: query string and
// fragment are stripped, then the last non-empty path segment wins.
func lastPathSegment(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	if idx := strings.IndexByte(value, '?'); idx >= 0 {
		value = value[:idx]
	}
	if idx := strings.IndexByte(value, '#'); idx >= 0 {
		value = value[:idx]
	}
	if !strings.Contains(value, "/") {
		return value
	}
	parts := strings.Split(value, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if token := strings.TrimSpace(parts[i]); token != "" {
			return token
		}
	}
	return ""
}

// prettifySlug turns "one-piece" into "One Piece" for fallback display titles.
func prettifySlug(value string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(value), "_", "-")
	normalized = strings.ReplaceAll(normalized, "-", " ")
	words := strings.Fields(normalized)
	if len(words) == 0 {
		return ""
	}
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

// slugHash gives deterministic numeric IDs to records whose provider supplies
// none.
func slugHash(slug string) int64 {
	h := fnv.New32a()
	h.Write([]byte(slug))
	return int64(h.Sum32())
}
