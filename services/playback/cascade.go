// Package playback drives an episode playback session through its source
// cascade: retry the failing source in place, drop to an embedded player for
// the same source, then move to the next source, and only error out when the
// whole candidate list is exhausted.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"aniflow/models"
	"aniflow/services/catalog"
	"aniflow/services/library"
	"aniflow/services/stream"
)

type State string

const (
	StateIdle            State = "idle"
	StateLoading         State = "loading"
	StatePlayingDirect   State = "playing_direct"
	StatePlayingEmbedded State = "playing_embedded"
	StateError           State = "error"
	StateEnded           State = "ended"
)

const (
	// defaultMaxInPlaceRetries is how often a failing source is retried
	// before the cascade moves on.
	defaultMaxInPlaceRetries = 2
	defaultRetryDelay        = 700 * time.Millisecond

	// progressReportThresholdMs filters out accidental taps; shorter
	// positions are never persisted.
	progressReportThresholdMs = 5000

	// maxErrorTextLen keeps provider stack traces out of the UI.
	maxErrorTextLen = 72
)

var (
	ErrNoSources     = errors.New("playback: no playable sources")
	ErrNoNextEpisode = errors.New("playback: no next episode")
	ErrNoPrevEpisode = errors.New("playback: no previous episode")
)

// StreamLoader resolves an episode slug to its manifest.
type StreamLoader interface {
	Stream(ctx context.Context, episodeSlug string) (*models.StreamManifest, error)
}

// NativeTransport plays direct media URLs.
type NativeTransport interface {
	Play(ctx context.Context, url, mimeHint string) error
	Stop()
}

// EmbeddedTransport renders hosted player pages.
type EmbeddedTransport interface {
	Open(ctx context.Context, url string) error
	Close()
}

// ProgressRecorder persists watch positions.
type ProgressRecorder interface {
	RecordProgress(ctx context.Context, animeSlug, episodeSlug string, progressMs int64) error
}

// Tuning adjusts the retry behavior of a session. Zero values fall back to
// the defaults.
type Tuning struct {
	MaxInPlaceRetries int
	RetryDelay        time.Duration
}

func (t Tuning) withDefaults() Tuning {
	if t.MaxInPlaceRetries <= 0 {
		t.MaxInPlaceRetries = defaultMaxInPlaceRetries
	}
	if t.RetryDelay <= 0 {
		t.RetryDelay = defaultRetryDelay
	}
	return t
}

var (
	_ StreamLoader     = (*catalog.Service)(nil)
	_ ProgressRecorder = (*library.Service)(nil)
)

// Session is one viewer watching one anime. Episode changes reuse the
// session; a new sequence number invalidates callbacks from the previous
// episode so a stale retry can never clobber the current source.
type Session struct {
	ID string

	loader   StreamLoader
	native   NativeTransport
	embedded EmbeddedTransport
	recorder ProgressRecorder
	tuning   Tuning

	// sleep is swapped out in tests.
	sleep func(time.Duration)

	seq atomic.Uint64

	mu            sync.Mutex
	state         State
	lastError     string
	animeSlug     string
	episodeSlug   string
	episodes      []models.Episode
	episodeIdx    int
	manifest      *models.StreamManifest
	selection     *stream.Selection
	sources       []stream.Source
	sourceIdx     int
	retryCount    int
	embeddedTried bool
	positionMs    int64
	durationMs    int64
	lastReportMs  int64
}

// NewSession builds an idle session. episodes may be nil; Next and Prev then
// rely solely on the manifest's navigation slugs.
func NewSession(loader StreamLoader, native NativeTransport, embedded EmbeddedTransport, recorder ProgressRecorder, animeSlug string, episodes []models.Episode, tuning Tuning) *Session {
	return &Session{
		ID:        uuid.NewString(),
		loader:    loader,
		native:    native,
		embedded:  embedded,
		recorder:  recorder,
		tuning:    tuning.withDefaults(),
		sleep:     time.Sleep,
		state:     StateIdle,
		animeSlug: animeSlug,
		episodes:  episodes,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

func (s *Session) EpisodeSlug() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.episodeSlug
}

// ResolutionLabels lists the populated resolution buckets of the current
// episode.
func (s *Session) ResolutionLabels() []string {
	s.mu.Lock()
	sel := s.selection
	s.mu.Unlock()
	if sel == nil {
		return nil
	}
	return sel.Labels()
}

// Play loads the episode's manifest and starts the cascade at its first
// source.
func (s *Session) Play(ctx context.Context, episodeSlug string) error {
	token := s.seq.Add(1)

	s.mu.Lock()
	s.state = StateLoading
	s.episodeSlug = episodeSlug
	s.episodeIdx = s.indexOfLocked(episodeSlug)
	s.positionMs = 0
	s.durationMs = 0
	s.lastReportMs = 0
	s.mu.Unlock()

	manifest, err := s.loader.Stream(ctx, episodeSlug)
	if err != nil {
		s.enterError(token, err)
		return err
	}

	s.mu.Lock()
	if s.stale(token) {
		s.mu.Unlock()
		return nil
	}
	s.manifest = manifest
	if manifest.AnimeSlug != "" {
		s.animeSlug = manifest.AnimeSlug
	}
	s.selection = stream.NewSelection(manifest)
	s.sources = s.selection.PlaybackSources()
	s.sourceIdx = 0
	s.retryCount = 0
	s.embeddedTried = false
	s.mu.Unlock()

	return s.playCurrent(ctx, token)
}

// SelectResolution switches buckets and restarts playback from the new
// bucket's first source. Selecting the bucket that already backs the active
// source is a no-op apart from resetting the retry counters. An unavailable
// resolution is reported without touching playback.
func (s *Session) SelectResolution(ctx context.Context, label string) error {
	s.mu.Lock()
	if s.selection == nil {
		s.mu.Unlock()
		return ErrNoSources
	}
	sel := s.selection
	currentURL := s.currentURLLocked()
	s.mu.Unlock()

	if err := sel.Select(label); err != nil {
		return err
	}

	token := s.seq.Add(1)
	s.mu.Lock()
	s.sources = sel.PlaybackSources()
	s.sourceIdx = 0
	s.retryCount = 0
	s.embeddedTried = false
	sameURL := len(s.sources) > 0 && s.sources[0].URL == currentURL
	s.mu.Unlock()

	if sameURL {
		return nil
	}
	return s.playCurrent(ctx, token)
}

// ReportFailure feeds a player error into the cascade. Direct sources get
// retried in place with a short delay, then handed to the embedded player
// once; embedded failures advance immediately. A stale report (from before
// the last Play or SelectResolution) is discarded.
func (s *Session) ReportFailure(ctx context.Context, cause error) {
	token := s.seq.Load()

	s.mu.Lock()
	if s.state != StatePlayingDirect && s.state != StatePlayingEmbedded && s.state != StateLoading {
		s.mu.Unlock()
		return
	}
	if len(s.sources) == 0 {
		s.mu.Unlock()
		s.enterError(token, ErrNoSources)
		return
	}
	source := s.sources[s.sourceIdx]
	embeddedNow := s.state == StatePlayingEmbedded

	switch {
	case !embeddedNow && source.Transport == stream.TransportDirect && s.retryCount < s.tuning.MaxInPlaceRetries:
		s.retryCount++
		retry := s.retryCount
		s.mu.Unlock()
		log.Printf("[playback] %s retry %d/%d for %s: %v", s.ID, retry, s.tuning.MaxInPlaceRetries, source.URL, cause)
		s.sleep(s.tuning.RetryDelay)
		if s.seq.Load() != token {
			return
		}
		s.playCurrent(ctx, token)
		return

	case !embeddedNow && source.Transport == stream.TransportDirect && !s.embeddedTried:
		s.embeddedTried = true
		s.mu.Unlock()
		log.Printf("[playback] %s falling back to embedded player for %s", s.ID, source.URL)
		s.playEmbedded(ctx, token, source.URL)
		return

	default:
		s.sourceIdx++
		s.retryCount = 0
		s.embeddedTried = false
		exhausted := s.sourceIdx >= len(s.sources)
		s.mu.Unlock()
		if exhausted {
			s.enterError(token, fmt.Errorf("all sources failed: %w", causeOr(cause, ErrNoSources)))
			return
		}
		log.Printf("[playback] %s advancing to next source: %v", s.ID, cause)
		s.playCurrent(ctx, token)
	}
}

// ReportEnded marks natural end of playback and flushes the final position.
func (s *Session) ReportEnded(ctx context.Context) {
	s.mu.Lock()
	s.state = StateEnded
	s.mu.Unlock()
	s.flushProgress(ctx, true)
}

// Tick records the player position; call it about once a second. Positions
// past the report threshold are persisted.
func (s *Session) Tick(ctx context.Context, positionMs, durationMs int64) {
	s.mu.Lock()
	if s.state != StatePlayingDirect && s.state != StatePlayingEmbedded {
		s.mu.Unlock()
		return
	}
	s.positionMs = positionMs
	if durationMs > 0 {
		s.durationMs = durationMs
	}
	s.mu.Unlock()
	s.flushProgress(ctx, false)
}

// Next advances to the following episode: the local episode list first, the
// manifest's navigation slug as fallback.
func (s *Session) Next(ctx context.Context) error {
	slug, err := s.neighbor(1)
	if err != nil {
		return err
	}
	s.flushProgress(ctx, true)
	return s.Play(ctx, slug)
}

// Prev goes back one episode.
func (s *Session) Prev(ctx context.Context) error {
	slug, err := s.neighbor(-1)
	if err != nil {
		return err
	}
	s.flushProgress(ctx, true)
	return s.Play(ctx, slug)
}

// Stop tears down both transports and force-flushes progress. The session is
// terminal afterwards.
func (s *Session) Stop(ctx context.Context) {
	s.seq.Add(1)
	s.flushProgress(ctx, true)
	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()
	if s.native != nil {
		s.native.Stop()
	}
	if s.embedded != nil {
		s.embedded.Close()
	}
}

func (s *Session) playCurrent(ctx context.Context, token uint64) error {
	s.mu.Lock()
	if s.stale(token) {
		s.mu.Unlock()
		return nil
	}
	if len(s.sources) == 0 || s.sourceIdx >= len(s.sources) {
		s.mu.Unlock()
		s.enterError(token, ErrNoSources)
		return ErrNoSources
	}
	source := s.sources[s.sourceIdx]
	s.mu.Unlock()

	if source.Transport == stream.TransportEmbedded {
		return s.playEmbedded(ctx, token, source.URL)
	}

	err := s.native.Play(ctx, source.URL, stream.MimeHint(source.URL))
	if err != nil {
		// Startup failures run through the same cascade as mid-play ones.
		s.ReportFailure(ctx, err)
		return nil
	}
	s.mu.Lock()
	if !s.stale(token) {
		s.state = StatePlayingDirect
		s.lastError = ""
	}
	s.mu.Unlock()
	return nil
}

func (s *Session) playEmbedded(ctx context.Context, token uint64, url string) error {
	if s.native != nil {
		s.native.Stop()
	}
	err := s.embedded.Open(ctx, url)
	if err != nil {
		s.mu.Lock()
		s.sourceIdx++
		s.retryCount = 0
		s.embeddedTried = false
		exhausted := s.sourceIdx >= len(s.sources)
		s.mu.Unlock()
		if exhausted {
			s.enterError(token, fmt.Errorf("embedded player failed: %w", err))
			return err
		}
		return s.playCurrent(ctx, token)
	}
	s.mu.Lock()
	if !s.stale(token) {
		s.state = StatePlayingEmbedded
		s.lastError = ""
	}
	s.mu.Unlock()
	return nil
}

func (s *Session) enterError(token uint64, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stale(token) {
		return
	}
	s.state = StateError
	s.lastError = truncateError(cause)
	log.Printf("[playback] %s terminal error: %v", s.ID, cause)
}

// stale reports whether token belongs to a superseded Play or resolution
// switch. Callers hold s.mu.
func (s *Session) stale(token uint64) bool {
	return s.seq.Load() != token
}

func (s *Session) currentURLLocked() string {
	if len(s.sources) == 0 || s.sourceIdx >= len(s.sources) {
		return ""
	}
	return s.sources[s.sourceIdx].URL
}

func (s *Session) indexOfLocked(episodeSlug string) int {
	for i, ep := range s.episodes {
		if ep.Slug == episodeSlug {
			return i
		}
	}
	return -1
}

func (s *Session) neighbor(step int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.episodeIdx >= 0 {
		next := s.episodeIdx + step
		if next >= 0 && next < len(s.episodes) {
			return s.episodes[next].Slug, nil
		}
	}
	if s.manifest != nil {
		if step > 0 && s.manifest.NextEpisodeSlug != "" {
			return s.manifest.NextEpisodeSlug, nil
		}
		if step < 0 && s.manifest.PrevEpisodeSlug != "" {
			return s.manifest.PrevEpisodeSlug, nil
		}
	}
	if step > 0 {
		return "", ErrNoNextEpisode
	}
	return "", ErrNoPrevEpisode
}

// flushProgress persists the current position. Unless forced, it reports only
// positions past the threshold and skips unchanged positions.
func (s *Session) flushProgress(ctx context.Context, force bool) {
	if s.recorder == nil {
		return
	}
	s.mu.Lock()
	position := s.positionMs
	animeSlug, episodeSlug := s.animeSlug, s.episodeSlug
	if episodeSlug == "" || position < progressReportThresholdMs {
		s.mu.Unlock()
		return
	}
	if !force && position == s.lastReportMs {
		s.mu.Unlock()
		return
	}
	s.lastReportMs = position
	s.mu.Unlock()

	if err := s.recorder.RecordProgress(ctx, animeSlug, episodeSlug, position); err != nil {
		log.Printf("[playback] %s progress report failed: %v", s.ID, err)
	}
}

func truncateError(err error) string {
	text := err.Error()
	if len(text) > maxErrorTextLen {
		return text[:maxErrorTextLen]
	}
	return text
}

func causeOr(err, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}
