package catalog

import (
	"testing"

	"aniflow/models"
)

func TestParseScore(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
	}{
		{"8.5", 8.5},
		{"7,25", 7.25},
		{"Rating 9.1", 9.1},
		{"92", 0},
		{"10.5", 0},
		{"", 0},
		{"N/A", 0},
	}
	for _, tc := range cases {
		if got := parseScore(tc.raw); got != tc.want {
			t.Errorf("parseScore(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestNormalizeStatus(t *testing.T) {
	cases := []struct {
		raw  string
		want models.AnimeStatus
	}{
		{"Ongoing", models.StatusOngoing},
		{"Currently Releasing", models.StatusOngoing},
		{"Completed", models.StatusCompleted},
		{"Finished Airing", models.StatusCompleted},
		{"Coming Soon", models.StatusUpcoming},
		{"", models.StatusUnknown},
		{"Hiatus", models.AnimeStatus("Hiatus")},
	}
	for _, tc := range cases {
		if got := normalizeStatus(tc.raw); got != tc.want {
			t.Errorf("normalizeStatus(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestFormatReleaseDate(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"Apr 3, 2024", "03 Apr 2024"},
		{"3 April 2024", "03 Apr 2024"},
		{"17 Agustus 2023", "17 Agu 2023"},
		{"Desember 25", "25 Des"},
		{"", "-"},
		{"Senin", "Senin"},
	}
	for _, tc := range cases {
		if got := formatReleaseDate(tc.raw); got != tc.want {
			t.Errorf("formatReleaseDate(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestLastPathSegment(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"https://example.com/anime/one-piece/", "one-piece"},
		{"https://example.com/anime/one-piece?ref=home", "one-piece"},
		{"/episode/op-episode-12/#comments", "op-episode-12"},
		{"bare-slug", "bare-slug"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := lastPathSegment(tc.raw); got != tc.want {
			t.Errorf("lastPathSegment(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestPrettifySlug(t *testing.T) {
	if got := prettifySlug("one-piece"); got != "One Piece" {
		t.Errorf("prettifySlug = %q, want %q", got, "One Piece")
	}
	if got := prettifySlug("soul_land-2"); got != "Soul Land 2" {
		t.Errorf("prettifySlug = %q, want %q", got, "Soul Land 2")
	}
}

func TestIsInvalidTitle(t *testing.T) {
	for _, bad := range []string{"", "  ", "Untitled", "UNKNOWN", "null", "-", "Unseen Love"} {
		if !isInvalidTitle(bad) {
			t.Errorf("isInvalidTitle(%q) = false, want true", bad)
		}
	}
	if isInvalidTitle("One Piece") {
		t.Error("isInvalidTitle rejected a real title")
	}
}

func TestParseEpisodeCount(t *testing.T) {
	if got := parseEpisodeCount("Episode 112"); got != 112 {
		t.Errorf("parseEpisodeCount = %d, want 112", got)
	}
	if got := parseEpisodeCount("?? Episodes"); got != 0 {
		t.Errorf("parseEpisodeCount = %d, want 0", got)
	}
}

func TestCleanSynopsisSuppressesEpisodeListings(t *testing.T) {
	listing := "Season 1 Episode 1 Episode 2 Season 2 Episode 1 Episode 2 Season 3"
	if got := cleanSynopsis(listing); got != "" {
		t.Errorf("cleanSynopsis kept an episode listing: %q", got)
	}
	real := "A boy sets out to become the pirate king."
	if got := cleanSynopsis(real); got != real {
		t.Errorf("cleanSynopsis mangled a real synopsis: %q", got)
	}
}

func TestNormalizeImageURL(t *testing.T) {
	page := "https://anichin.cafe/seri/some-show/"
	cases := []struct {
		raw  string
		want string
	}{
		{"https://cdn.example.com/a.jpg", "https://cdn.example.com/a.jpg"},
		{"//cdn.example.com/a.jpg", "https://cdn.example.com/a.jpg"},
		{"/wp-content/a.jpg", "https://anichin.cafe/wp-content/a.jpg"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := normalizeImageURL(tc.raw, page); got != tc.want {
			t.Errorf("normalizeImageURL(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}
