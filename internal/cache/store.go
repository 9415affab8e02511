// Package cache implements the two-tier response cache shared by the provider
// clients: a memory map in front of a persisted tier on an afero filesystem.
// Reads are freshness-checked against a TTL unless the caller explicitly asks
// for stale data, which callers only do as a last-resort fallback after a live
// fetch has failed.
package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// Entry is a cached payload plus the moment it was written. The payload is
// opaque to the store; providers put raw response bytes in and parse on the
// way out.
type Entry struct {
	Payload   []byte    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is safe for concurrent use from multiple workers. There is no eviction
// beyond TTL freshness: the key space is the bounded set of (operation, query)
// pairs, so unbounded growth is accepted.
type Store struct {
	fs  afero.Fs
	dir string
	ttl time.Duration

	mu     sync.RWMutex
	memory map[string]Entry

	now func() time.Time
}

// New creates a store rooted at dir on the given filesystem. The directory is
// created if missing.
func New(fs afero.Fs, dir string, ttl time.Duration) (*Store, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Store{
		fs:     fs,
		dir:    dir,
		ttl:    ttl,
		memory: make(map[string]Entry),
		now:    time.Now,
	}, nil
}

// Key builds a cache key from its parts. The persisted filename is a hash, so
// parts may contain anything.
func Key(parts ...string) string {
	return strings.Join(parts, "-")
}

// Put writes the payload to both tiers with the current timestamp,
// unconditionally overwriting any previous entry. Persisted-tier failures are
// logged, not surfaced; the memory tier alone still honors the contract for
// the life of the process.
func (s *Store) Put(key string, payload []byte) {
	if len(payload) == 0 {
		return
	}

	entry := Entry{Payload: payload, Timestamp: s.now()}

	s.mu.Lock()
	s.memory[key] = entry
	s.mu.Unlock()

	raw, err := json.Marshal(entry)
	if err != nil {
		log.Printf("[cache] marshal entry for %q: %v", key, err)
		return
	}
	if err := afero.WriteFile(s.fs, s.pathFor(key), raw, 0o644); err != nil {
		log.Printf("[cache] persist entry for %q: %v", key, err)
	}
}

// Get returns the cached payload for key. With allowStale=false only a fresh
// entry (age <= TTL) is returned; with allowStale=true any parseable entry is
// returned regardless of age. A disk hit is promoted back into memory. Absent
// or unparseable entries are a miss, never an error.
func (s *Store) Get(key string, allowStale bool) ([]byte, bool) {
	s.mu.RLock()
	entry, ok := s.memory[key]
	s.mu.RUnlock()
	if ok {
		if payload, valid := s.usable(entry, allowStale); valid {
			return payload, true
		}
	}

	raw, err := afero.ReadFile(s.fs, s.pathFor(key))
	if err != nil {
		return nil, false
	}
	var disk Entry
	if err := json.Unmarshal(raw, &disk); err != nil {
		// Corrupt persisted entries are treated as absent.
		return nil, false
	}
	payload, valid := s.usable(disk, allowStale)
	if !valid {
		return nil, false
	}

	s.mu.Lock()
	s.memory[key] = disk
	s.mu.Unlock()
	return payload, true
}

func (s *Store) usable(entry Entry, allowStale bool) ([]byte, bool) {
	if len(entry.Payload) == 0 {
		return nil, false
	}
	if !allowStale && s.now().Sub(entry.Timestamp) > s.ttl {
		return nil, false
	}
	return entry.Payload, true
}

func (s *Store) pathFor(key string) string {
	sum := sha1.Sum([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+".json")
}
