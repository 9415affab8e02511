package models

// AnimeStatus is the normalized airing status of a catalog entry.
type AnimeStatus string

const (
	StatusUnknown   AnimeStatus = "Unknown"
	StatusOngoing   AnimeStatus = "Ongoing"
	StatusCompleted AnimeStatus = "Completed"
	StatusUpcoming  AnimeStatus = "Upcoming"
)

// Anime is the canonical catalog entry shared by all providers. The slug is the
// primary identity; entries from the scraped provider carry a namespace prefix
// on the slug so the two identifier spaces never collide.
type Anime struct {
	ID            int64       `json:"id"`
	Slug          string      `json:"slug"`
	Title         string      `json:"title"`
	CoverURL      string      `json:"coverUrl,omitempty"`
	BannerURL     string      `json:"bannerUrl,omitempty"`
	Synopsis      string      `json:"synopsis,omitempty"`
	Status        AnimeStatus `json:"status"`
	Score         float64     `json:"score"`
	ScoreText     string      `json:"scoreText"`
	Genres        []string    `json:"genres,omitempty"`
	EpisodeLabel  string      `json:"episodeLabel,omitempty"`
	EpisodeCount  int         `json:"episodeCount"`
	TotalEpisodes int         `json:"totalEpisodes"`
	ReleaseDate   string      `json:"releaseDate,omitempty"`
	ReleaseYear   string      `json:"releaseYear,omitempty"`
	Studio        string      `json:"studio,omitempty"`
	Producer      string      `json:"producer,omitempty"`
	Duration      string      `json:"duration,omitempty"`
	TrailerURL    string      `json:"trailerUrl,omitempty"`
	SourceURL     string      `json:"sourceUrl,omitempty"`
}

// Episode is one entry of a title's episode list. Number 0 means unknown.
type Episode struct {
	Number       int    `json:"number"`
	Title        string `json:"title"`
	Slug         string `json:"slug"`
	ReleaseDate  string `json:"releaseDate,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	Duration     string `json:"duration,omitempty"`
	Released     bool   `json:"released"`
}

// AnimeDetail bundles a title with its full episode list.
type AnimeDetail struct {
	Anime    Anime     `json:"anime"`
	Episodes []Episode `json:"episodes"`
	Type     string    `json:"type,omitempty"`
}

// Genre is a provider-declared genre tag.
type Genre struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}
