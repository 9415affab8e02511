// Package stream sorts the raw URL lists of an episode manifest into
// resolution buckets and classifies how each URL should be played.
package stream

import (
	"errors"
	"regexp"
	"strings"
	"sync"

	"aniflow/models"
)

// Canonical resolution labels, ascending. Auto holds everything whose label
// carries no recognizable height.
const (
	Label360  = "360p"
	Label480  = "480p"
	Label720  = "720p"
	Label1080 = "1080p"
	LabelAuto = "Auto"
)

// bucketOrder is the fallback scan order when the preferred bucket is empty.
var bucketOrder = []string{Label360, Label480, Label720, Label1080, LabelAuto}

var ErrResolutionUnavailable = errors.New("stream: no sources at requested resolution")

// Transport says how a URL must be handed to the player.
type Transport int

const (
	// TransportDirect is a raw media stream the native player can open.
	TransportDirect Transport = iota
	// TransportEmbedded is a hosted player page that needs a web view.
	TransportEmbedded
)

var heightPattern = regexp.MustCompile(`(2160|1440|1080|720|540|480|360|240|144)`)

// directMarkers flag URLs the native player can consume.
var directMarkers = []string{".m3u8", ".mp4", ".mpd", "mime=video"}

// embedHosts override the direct markers: these serve player pages even when
// the URL looks like a media file.
var embedHosts = []string{"desustream", "blogger.com/video.g", "index.php?id="}

// NormalizeLabel maps a provider quality label ("HD 720", "mp4 1080p ZD") to
// a canonical bucket. Heights snap to the nearest canonical tier at or below.
func NormalizeLabel(raw string) string {
	match := heightPattern.FindString(raw)
	switch match {
	case "2160", "1440", "1080":
		return Label1080
	case "720", "540":
		return Label720
	case "480":
		return Label480
	case "360", "240", "144":
		return Label360
	}
	return LabelAuto
}

// TransportFor classifies a playback URL. Known embed hosts are always
// embedded regardless of how the URL ends.
func TransportFor(url string) Transport {
	lower := strings.ToLower(url)
	for _, host := range embedHosts {
		if strings.Contains(lower, host) {
			return TransportEmbedded
		}
	}
	for _, marker := range directMarkers {
		if strings.Contains(lower, marker) {
			return TransportDirect
		}
	}
	return TransportEmbedded
}

// MimeHint guesses a container mime type for direct URLs; empty for embeds.
func MimeHint(url string) string {
	lower := strings.ToLower(url)
	switch {
	case strings.Contains(lower, ".m3u8"):
		return "application/x-mpegURL"
	case strings.Contains(lower, ".mpd"):
		return "application/dash+xml"
	case strings.Contains(lower, ".mp4"), strings.Contains(lower, "mime=video"):
		return "video/mp4"
	}
	return ""
}

// Source is one playable URL with its classification.
type Source struct {
	URL       string
	Label     string
	Transport Transport
}

// Selection buckets a manifest's URLs by resolution and tracks the viewer's
// current choice. Safe for concurrent use.
type Selection struct {
	mu      sync.RWMutex
	buckets map[string][]Source
	current string
}

// NewSelection builds buckets from a manifest. Stream URLs are unlabeled and
// land in Auto; download URLs are bucketed by their resolution label. The
// initial selection is Auto.
func NewSelection(manifest *models.StreamManifest) *Selection {
	buckets := map[string][]Source{
		Label360:  {},
		Label480:  {},
		Label720:  {},
		Label1080: {},
		LabelAuto: {},
	}
	if manifest != nil {
		for _, url := range manifest.StreamURLs {
			if strings.TrimSpace(url) == "" {
				continue
			}
			buckets[LabelAuto] = append(buckets[LabelAuto], Source{
				URL:       url,
				Label:     LabelAuto,
				Transport: TransportFor(url),
			})
		}
		for rawLabel, urls := range manifest.Downloads {
			label := NormalizeLabel(rawLabel)
			for _, url := range urls {
				if strings.TrimSpace(url) == "" {
					continue
				}
				buckets[label] = append(buckets[label], Source{
					URL:       url,
					Label:     label,
					Transport: TransportFor(url),
				})
			}
		}
	}
	return &Selection{buckets: buckets, current: LabelAuto}
}

// Labels returns the canonical labels that actually have sources, in
// ascending order.
func (s *Selection) Labels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(bucketOrder))
	for _, label := range bucketOrder {
		if len(s.buckets[label]) > 0 {
			out = append(out, label)
		}
	}
	return out
}

// Current returns the active resolution label.
func (s *Selection) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Select switches to the given resolution. Selecting an empty bucket keeps
// the previous selection and reports ErrResolutionUnavailable so the caller
// can surface it without interrupting playback.
func (s *Selection) Select(rawLabel string) error {
	label := NormalizeLabel(rawLabel)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buckets[label]) == 0 {
		return ErrResolutionUnavailable
	}
	s.current = label
	return nil
}

// Sources returns the bucket for the active selection.
func (s *Selection) Sources() []Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Source(nil), s.buckets[s.current]...)
}

// PlaybackSources resolves where playback should start: the active bucket if
// populated, then Auto, then the lowest populated bucket upward. A fully
// empty selection yields nil.
func (s *Selection) PlaybackSources() []Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.buckets[s.current]) > 0 {
		return append([]Source(nil), s.buckets[s.current]...)
	}
	if len(s.buckets[LabelAuto]) > 0 {
		return append([]Source(nil), s.buckets[LabelAuto]...)
	}
	for _, label := range bucketOrder {
		if len(s.buckets[label]) > 0 {
			return append([]Source(nil), s.buckets[label]...)
		}
	}
	return nil
}

// PlaybackURL is the first URL of PlaybackSources, or empty.
func (s *Selection) PlaybackURL() string {
	sources := s.PlaybackSources()
	if len(sources) == 0 {
		return ""
	}
	return sources[0].URL
}
