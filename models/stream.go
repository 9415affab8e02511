package models

import "strings"

// StreamManifest describes everything a player needs for one episode: the
// ordered streaming candidates, download links grouped by quality label, and
// navigation slugs that work even when the local episode list is unavailable.
type StreamManifest struct {
	Title           string              `json:"title"`
	EpisodeSlug     string              `json:"episodeSlug"`
	StreamURLs      []string            `json:"streamUrls"`
	Downloads       map[string][]string `json:"downloads,omitempty"`
	PrevEpisodeSlug string              `json:"prevEpisodeSlug,omitempty"`
	NextEpisodeSlug string              `json:"nextEpisodeSlug,omitempty"`
	AnimeSlug       string              `json:"animeSlug,omitempty"`
}

// FirstPlayableURL returns the first non-blank stream candidate, falling back
// to the first download link of any quality. Empty string means the manifest
// has nothing playable.
func (m *StreamManifest) FirstPlayableURL() string {
	if m == nil {
		return ""
	}
	for _, u := range m.StreamURLs {
		if strings.TrimSpace(u) != "" {
			return strings.TrimSpace(u)
		}
	}
	for _, urls := range m.Downloads {
		for _, u := range urls {
			if strings.TrimSpace(u) != "" {
				return strings.TrimSpace(u)
			}
		}
	}
	return ""
}

// HasPlayable reports whether the manifest carries at least one stream or
// download URL.
func (m *StreamManifest) HasPlayable() bool {
	return m.FirstPlayableURL() != ""
}
