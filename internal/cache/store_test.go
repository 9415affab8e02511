package cache

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func newTestStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	store, err := New(afero.NewMemMapFs(), "cache", ttl)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestGetReturnsFreshEntry(t *testing.T) {
	store := newTestStore(t, time.Hour)
	store.Put("home", []byte(`{"data":[]}`))

	payload, ok := store.Get("home", false)
	if !ok {
		t.Fatal("expected fresh hit")
	}
	if string(payload) != `{"data":[]}` {
		t.Fatalf("unexpected payload %q", payload)
	}
}

func TestGetMissesExpiredEntryUnlessStaleAllowed(t *testing.T) {
	store := newTestStore(t, time.Hour)
	store.Put("home", []byte(`old`))

	// Move the clock past the TTL.
	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if _, ok := store.Get("home", false); ok {
		t.Fatal("expired entry must not be returned when staleness is not allowed")
	}

	payload, ok := store.Get("home", true)
	if !ok {
		t.Fatal("stale read must return any parseable entry")
	}
	if string(payload) != "old" {
		t.Fatalf("unexpected payload %q", payload)
	}
}

func TestGetMissingKeyIsMissNotError(t *testing.T) {
	store := newTestStore(t, time.Hour)
	if _, ok := store.Get("absent", true); ok {
		t.Fatal("expected miss for absent key")
	}
}

func TestDiskHitPromotedToMemory(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := New(fs, "cache", time.Hour)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	store.Put("search_naruto", []byte(`payload`))

	// Simulate a process restart: fresh memory tier over the same filesystem.
	restarted, err := New(fs, "cache", time.Hour)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	payload, ok := restarted.Get("search_naruto", false)
	if !ok || string(payload) != "payload" {
		t.Fatalf("expected disk hit, got ok=%v payload=%q", ok, payload)
	}

	restarted.mu.RLock()
	_, inMemory := restarted.memory["search_naruto"]
	restarted.mu.RUnlock()
	if !inMemory {
		t.Fatal("disk hit should be promoted into the memory tier")
	}
}

func TestCorruptPersistedEntryIsMiss(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := New(fs, "cache", time.Hour)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := afero.WriteFile(fs, store.pathFor("bad"), []byte("not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, ok := store.Get("bad", true); ok {
		t.Fatal("corrupt entry must read as a miss")
	}
}

func TestPutOverwritesUnconditionally(t *testing.T) {
	store := newTestStore(t, time.Hour)
	store.Put("k", []byte("first"))
	store.Put("k", []byte("second"))

	payload, ok := store.Get("k", false)
	if !ok || string(payload) != "second" {
		t.Fatalf("expected overwrite, got ok=%v payload=%q", ok, payload)
	}

	raw, err := afero.ReadFile(store.fs, store.pathFor("k"))
	if err != nil {
		t.Fatalf("read persisted: %v", err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		t.Fatalf("unmarshal persisted: %v", err)
	}
	if string(entry.Payload) != "second" {
		t.Fatalf("persisted tier not overwritten: %q", entry.Payload)
	}
}
